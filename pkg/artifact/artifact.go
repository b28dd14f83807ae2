// SPDX-License-Identifier: MPL-2.0

package artifact

import (
	"fmt"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// WholeResource is the path hint of an artifact that is the entire resource.
const WholeResource = "."

const (
	// PayloadNone marks an artifact that was classified but not decoded.
	PayloadNone PayloadKind = "none"
	// PayloadRaw marks opaque bytes.
	PayloadRaw PayloadKind = "raw"
	// PayloadTable marks a decoded rows-by-columns table.
	PayloadTable PayloadKind = "table"
	// PayloadJSON marks a decoded generic JSON document.
	PayloadJSON PayloadKind = "json"
	// PayloadGeo marks geometry-bearing rows.
	PayloadGeo PayloadKind = "geo"
)

type (
	// PayloadKind tags the payload variant carried by an Artifact.
	PayloadKind string

	// Payload is implemented by every payload variant.
	Payload interface {
		Kind() PayloadKind
	}

	// RawBytes is an undecoded payload.
	RawBytes []byte

	// Table is a decoded rows-by-columns payload. Columns holds the header
	// row; Rows holds every following record.
	Table struct {
		Columns []string
		Rows    [][]string
	}

	// JSONValue is a decoded JSON document (object, array, or scalar).
	JSONValue struct {
		Value any
	}

	// GeoFeature is one row of a GeoTable.
	GeoFeature struct {
		Properties map[string]any
		Geometry   orb.Geometry
	}

	// GeoTable is a geometry-bearing table. Columns is the sorted union of
	// property names across all features.
	GeoTable struct {
		Columns  []string
		Features []GeoFeature
	}

	// Artifact is one typed, materialized unit of data.
	Artifact struct {
		// Payload is nil for landing pages and unhandled formats.
		Payload Payload
		// PathHint is WholeResource for a plain resource, or the member path
		// relative to the container root.
		PathHint  string
		MIME      string
		Extension string
		OriginURI string
		// Size is the byte length of the fetched resource or member.
		Size int64
		// Digest is the hex blake3 digest of the fetched bytes.
		Digest string
		// Title is the <title> of an html landing page, if any.
		Title string
	}

	// Summary is a payload-free view of an Artifact for reports and CLI output.
	Summary struct {
		PathHint  string      `json:"path_hint" yaml:"path_hint" toml:"path_hint"`
		MIME      string      `json:"mime" yaml:"mime" toml:"mime"`
		Extension string      `json:"extension" yaml:"extension" toml:"extension"`
		OriginURI string      `json:"origin_uri" yaml:"origin_uri" toml:"origin_uri"`
		Size      int64       `json:"size" yaml:"size" toml:"size"`
		Digest    string      `json:"digest,omitempty" yaml:"digest,omitempty" toml:"digest,omitempty"`
		Payload   PayloadKind `json:"payload" yaml:"payload" toml:"payload"`
		Rows      int         `json:"rows,omitempty" yaml:"rows,omitempty" toml:"rows,omitempty"`
		Columns   int         `json:"columns,omitempty" yaml:"columns,omitempty" toml:"columns,omitempty"`
		Title     string      `json:"title,omitempty" yaml:"title,omitempty" toml:"title,omitempty"`
	}
)

// Kind implements Payload.
func (RawBytes) Kind() PayloadKind { return PayloadRaw }

// Kind implements Payload.
func (*Table) Kind() PayloadKind { return PayloadTable }

// Kind implements Payload.
func (*JSONValue) Kind() PayloadKind { return PayloadJSON }

// Kind implements Payload.
func (*GeoTable) Kind() PayloadKind { return PayloadGeo }

// RowCount returns the number of data rows, excluding the header.
func (t *Table) RowCount() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnCount returns the header width.
func (t *Table) ColumnCount() int {
	if t == nil {
		return 0
	}
	return len(t.Columns)
}

// Records returns the header followed by every row, the shape encoding/csv writes.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, slices.Clone(t.Columns))
	for _, row := range t.Rows {
		out = append(out, slices.Clone(row))
	}
	return out
}

// RowCount returns the number of features.
func (g *GeoTable) RowCount() int {
	if g == nil {
		return 0
	}
	return len(g.Features)
}

// FeatureCollection renders the table back into GeoJSON form.
func (g *GeoTable) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, feature := range g.Features {
		f := geojson.NewFeature(feature.Geometry)
		for k, v := range feature.Properties {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	return fc
}

// NewGeoTable builds a GeoTable from a decoded feature collection.
func NewGeoTable(fc *geojson.FeatureCollection) *GeoTable {
	table := &GeoTable{Features: make([]GeoFeature, 0, len(fc.Features))}
	seen := make(map[string]struct{})
	for _, f := range fc.Features {
		props := make(map[string]any, len(f.Properties))
		for k, v := range f.Properties {
			props[k] = v
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				table.Columns = append(table.Columns, k)
			}
		}
		table.Features = append(table.Features, GeoFeature{Properties: props, Geometry: f.Geometry})
	}
	slices.Sort(table.Columns)
	return table
}

// Type returns the artifact's resolved type.
func (a *Artifact) Type() TypeHint {
	return TypeHint{MIME: a.MIME, Extension: a.Extension}
}

// PayloadKind returns the payload variant, PayloadNone for a nil payload.
func (a *Artifact) PayloadKind() PayloadKind {
	if a.Payload == nil {
		return PayloadNone
	}
	return a.Payload.Kind()
}

// Summary returns the payload-free view of a.
func (a *Artifact) Summary() Summary {
	s := Summary{
		PathHint:  a.PathHint,
		MIME:      a.MIME,
		Extension: a.Extension,
		OriginURI: a.OriginURI,
		Size:      a.Size,
		Digest:    a.Digest,
		Payload:   a.PayloadKind(),
		Title:     a.Title,
	}
	switch p := a.Payload.(type) {
	case *Table:
		s.Rows, s.Columns = p.RowCount(), p.ColumnCount()
	case *GeoTable:
		s.Rows, s.Columns = p.RowCount(), len(p.Columns)
	}
	return s
}

// String renders a one-line description.
func (a *Artifact) String() string {
	return fmt.Sprintf("%s [%s] %s", a.PathHint, a.Extension, a.PayloadKind())
}
