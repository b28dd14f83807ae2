// SPDX-License-Identifier: MPL-2.0

package materialize

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/datafy/datafy/pkg/artifact"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// decodeGeoJSON accepts a FeatureCollection, a single Feature or a bare
// Geometry and always yields a GeoTable.
func decodeGeoJSON(m *Materializer, hint artifact.TypeHint, src Source) (Materialized, error) {
	data := m.text(src)
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Materialized{}, decodeError(hint, err)
	}

	fc := geojson.NewFeatureCollection()
	switch head.Type {
	case "FeatureCollection":
		decoded, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return Materialized{}, decodeError(hint, err)
		}
		fc = decoded
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return Materialized{}, decodeError(hint, err)
		}
		fc.Append(f)
	case "":
		return Materialized{}, decodeError(hint, errors.New("missing GeoJSON type member"))
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return Materialized{}, decodeError(hint, err)
		}
		fc.Append(geojson.NewFeature(g.Geometry()))
	}
	return Materialized{Payload: artifact.NewGeoTable(fc)}, nil
}

// decodeShapefile reads a .shp and its sibling .dbf from disk. A shapefile
// without a local path yields a nil payload; one without a .dbf yields
// features with empty properties.
func decodeShapefile(m *Materializer, hint artifact.TypeHint, src Source) (out Materialized, err error) {
	if src.LocalPath == "" {
		return Materialized{}, nil
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = Materialized{}, decodeError(hint, fmt.Errorf("shapefile decoder panic: %v", r))
		}
	}()

	reader, err := shp.Open(src.LocalPath)
	if err != nil {
		return Materialized{}, decodeError(hint, err)
	}
	defer reader.Close()

	var names []string
	if attributeTable(src.LocalPath) != "" {
		fields := reader.Fields()
		names = make([]string, len(fields))
		for i, f := range fields {
			names[i] = strings.TrimRight(f.String(), "\x00 ")
		}
	} else {
		m.logger.Debug("shapefile has no attribute table", "path", src.LocalPath)
	}

	fc := geojson.NewFeatureCollection()
	for reader.Next() {
		n, shape := reader.Shape()
		feature := geojson.NewFeature(shapeGeometry(shape))
		for i, name := range names {
			feature.Properties[name] = utf8String(strings.TrimSpace(reader.ReadAttribute(n, i)))
		}
		fc.Append(feature)
	}
	if err := reader.Err(); err != nil {
		return Materialized{}, decodeError(hint, err)
	}
	return Materialized{Payload: artifact.NewGeoTable(fc)}, nil
}

// attributeTable returns the .dbf path the shapefile reader opens for
// shpPath, or "" when it does not exist.
func attributeTable(shpPath string) string {
	dbf := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".dbf"
	if info, err := os.Stat(dbf); err != nil || info.IsDir() {
		return ""
	}
	return dbf
}

// shapeGeometry converts the common 2D shape types. Other shape types keep
// their attributes with a nil geometry.
func shapeGeometry(shape shp.Shape) orb.Geometry {
	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}
	case *shp.MultiPoint:
		mp := make(orb.MultiPoint, len(s.Points))
		for i, p := range s.Points {
			mp[i] = orb.Point{p.X, p.Y}
		}
		return mp
	case *shp.PolyLine:
		parts := splitParts(s.Parts, s.Points)
		if len(parts) == 1 {
			return orb.LineString(parts[0])
		}
		mls := make(orb.MultiLineString, len(parts))
		for i, part := range parts {
			mls[i] = orb.LineString(part)
		}
		return mls
	case *shp.Polygon:
		parts := splitParts(s.Parts, s.Points)
		poly := make(orb.Polygon, len(parts))
		for i, part := range parts {
			poly[i] = orb.Ring(part)
		}
		return poly
	default:
		return nil
	}
}

// splitParts slices a flat point list at the part start offsets.
func splitParts(parts []int32, points []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || int(end) > len(points) {
			continue
		}
		part := make([]orb.Point, 0, end-start)
		for _, p := range points[start:end] {
			part = append(part, orb.Point{p.X, p.Y})
		}
		out = append(out, part)
	}
	return out
}
