// SPDX-License-Identifier: MPL-2.0

// Package artifact defines the data model shared by every stage of the fetch
// pipeline: requests, type hints, materialized artifacts, and the outcome of a
// fetch.
//
// An Artifact is one typed, addressable unit of data. A request for a plain
// resource yields exactly one Artifact; a request for a container (zip) yields
// one Artifact per member, each carrying a path hint relative to the container
// root.
//
// Payloads form a closed set of variants:
//
//   - RawBytes: opaque bytes, used when a spreadsheet decoder rejects a file
//   - *Table: rows by columns (csv, xlsx, xls)
//   - *JSONValue: a generic decoded JSON document
//   - *GeoTable: geometry-bearing rows (geojson, shapefile)
//   - nil: a correctly classified resource that is deliberately not decoded
//     (landing pages, recognized but unhandled formats)
package artifact
