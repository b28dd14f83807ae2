// SPDX-License-Identifier: MPL-2.0

// Package materialize turns fetched bytes of a resolved type into an artifact
// payload.
//
// Tabular formats decode to *artifact.Table, JSON to *artifact.JSONValue and
// geometry formats to *artifact.GeoTable. Spreadsheets that their decoder
// rejects fall back to artifact.RawBytes instead of failing. Landing pages and
// recognized formats without a decoder yield a nil payload, which is a valid
// result rather than an error.
package materialize
