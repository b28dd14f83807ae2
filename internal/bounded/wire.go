// SPDX-License-Identifier: MPL-2.0

package bounded

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/datafy/datafy/pkg/artifact"

	"github.com/paulmach/orb/geojson"
)

type (
	// WorkRequest is what the executor writes to a worker's stdin.
	WorkRequest struct {
		Request    artifact.Request `cbor:"request"`
		ScratchDir string           `cbor:"scratch_dir,omitempty"`
	}

	// WorkerError is the failure reported by a worker. It unwraps to the
	// sentinel of its kind so errors.Is keeps working across the process
	// boundary.
	WorkerError struct {
		Kind    artifact.ErrorKind
		Message string
	}

	wireArtifact struct {
		PathHint  string               `cbor:"path_hint"`
		MIME      string               `cbor:"mime"`
		Extension string               `cbor:"extension"`
		OriginURI string               `cbor:"origin_uri"`
		Size      int64                `cbor:"size"`
		Digest    string               `cbor:"digest,omitempty"`
		Title     string               `cbor:"title,omitempty"`
		Kind      artifact.PayloadKind `cbor:"kind"`
		Raw       []byte               `cbor:"raw,omitempty"`
		Columns   []string             `cbor:"columns,omitempty"`
		Rows      [][]string           `cbor:"rows,omitempty"`
		JSON      []byte               `cbor:"json,omitempty"`
		GeoJSON   []byte               `cbor:"geojson,omitempty"`
	}

	wireOutcome struct {
		Status        artifact.Status         `cbor:"status"`
		Artifacts     []wireArtifact          `cbor:"artifacts,omitempty"`
		EntryFailures []artifact.EntryFailure `cbor:"entry_failures,omitempty"`
		Kind          artifact.ErrorKind      `cbor:"kind,omitempty"`
		Message       string                  `cbor:"message,omitempty"`
	}
)

var kindSentinels = map[artifact.ErrorKind]error{
	artifact.KindUnknownType:    artifact.ErrUnknownType,
	artifact.KindCorruptArchive: artifact.ErrCorruptArchive,
	artifact.KindDecode:         artifact.ErrDecode,
	artifact.KindTooLarge:       artifact.ErrTooLarge,
	artifact.KindHTTPStatus:     artifact.ErrHTTPStatus,
}

// Error implements the error interface.
func (e *WorkerError) Error() string {
	return e.Message
}

// Unwrap returns the sentinel for the error kind, if it has one.
func (e *WorkerError) Unwrap() error {
	return kindSentinels[e.Kind]
}

func toWire(o artifact.Outcome) (wireOutcome, error) {
	w := wireOutcome{Status: o.Status, EntryFailures: o.EntryFailures, Kind: o.Kind}
	if o.Err != nil {
		w.Message = o.Err.Error()
	}
	for _, a := range o.Artifacts {
		wa, err := artifactToWire(a)
		if err != nil {
			return wireOutcome{}, err
		}
		w.Artifacts = append(w.Artifacts, wa)
	}
	return w, nil
}

func artifactToWire(a artifact.Artifact) (wireArtifact, error) {
	wa := wireArtifact{
		PathHint:  a.PathHint,
		MIME:      a.MIME,
		Extension: a.Extension,
		OriginURI: a.OriginURI,
		Size:      a.Size,
		Digest:    a.Digest,
		Title:     a.Title,
		Kind:      a.PayloadKind(),
	}
	switch p := a.Payload.(type) {
	case nil:
	case artifact.RawBytes:
		wa.Raw = p
	case *artifact.Table:
		wa.Columns, wa.Rows = p.Columns, p.Rows
	case *artifact.JSONValue:
		data, err := json.Marshal(p.Value)
		if err != nil {
			return wireArtifact{}, fmt.Errorf("encoding json payload of %s: %w", a.PathHint, err)
		}
		wa.JSON = data
	case *artifact.GeoTable:
		data, err := p.FeatureCollection().MarshalJSON()
		if err != nil {
			return wireArtifact{}, fmt.Errorf("encoding geo payload of %s: %w", a.PathHint, err)
		}
		wa.GeoJSON = data
	default:
		return wireArtifact{}, fmt.Errorf("unsupported payload %T", a.Payload)
	}
	return wa, nil
}

func (w wireOutcome) outcome() (artifact.Outcome, error) {
	switch w.Status {
	case artifact.StatusTimedOut:
		return artifact.TimedOut(), nil
	case artifact.StatusFailed:
		return artifact.Outcome{
			Status: artifact.StatusFailed,
			Kind:   w.Kind,
			Err:    &WorkerError{Kind: w.Kind, Message: w.Message},
		}, nil
	case artifact.StatusOK:
	default:
		return artifact.Outcome{}, fmt.Errorf("unknown outcome status %q", w.Status)
	}

	res := &artifact.Result{EntryFailures: w.EntryFailures}
	for _, wa := range w.Artifacts {
		a, err := wa.artifact()
		if err != nil {
			return artifact.Outcome{}, err
		}
		res.Artifacts = append(res.Artifacts, a)
	}
	return artifact.OK(res), nil
}

func (wa wireArtifact) artifact() (artifact.Artifact, error) {
	a := artifact.Artifact{
		PathHint:  wa.PathHint,
		MIME:      wa.MIME,
		Extension: wa.Extension,
		OriginURI: wa.OriginURI,
		Size:      wa.Size,
		Digest:    wa.Digest,
		Title:     wa.Title,
	}
	switch wa.Kind {
	case artifact.PayloadNone, "":
	case artifact.PayloadRaw:
		a.Payload = artifact.RawBytes(wa.Raw)
	case artifact.PayloadTable:
		a.Payload = &artifact.Table{Columns: nonNil(wa.Columns), Rows: wa.Rows}
	case artifact.PayloadJSON:
		dec := json.NewDecoder(bytes.NewReader(wa.JSON))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return artifact.Artifact{}, fmt.Errorf("decoding json payload of %s: %w", wa.PathHint, err)
		}
		a.Payload = &artifact.JSONValue{Value: v}
	case artifact.PayloadGeo:
		fc, err := geojson.UnmarshalFeatureCollection(wa.GeoJSON)
		if err != nil {
			return artifact.Artifact{}, fmt.Errorf("decoding geo payload of %s: %w", wa.PathHint, err)
		}
		a.Payload = artifact.NewGeoTable(fc)
	default:
		return artifact.Artifact{}, fmt.Errorf("unknown payload kind %q", wa.Kind)
	}
	return a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
