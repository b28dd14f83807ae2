// SPDX-License-Identifier: MPL-2.0

package materialize

import (
	"errors"
	"io"

	"github.com/datafy/datafy/pkg/artifact"

	"github.com/charmbracelet/log"
)

// ErrContainer is returned when a container type reaches the materializer.
// Containers are expanded by the archive package instead.
var ErrContainer = errors.New("container payloads are expanded, not materialized")

type (
	// Source is the payload handed to the materializer. LocalPath is set
	// only when the bytes came from extracted scratch storage; formats split
	// across sibling files need it. Charset is the Content-Type charset
	// parameter, if the server sent one.
	Source struct {
		Data      []byte
		LocalPath string
		Charset   string
	}

	// Materialized is the decoded payload plus the page title for html.
	Materialized struct {
		Payload artifact.Payload
		Title   string
	}

	// Materializer decodes payloads by extension. It is stateless and safe
	// for concurrent use.
	Materializer struct {
		logger *log.Logger
	}

	// Option configures a Materializer.
	Option func(*Materializer)

	decodeFunc func(m *Materializer, hint artifact.TypeHint, src Source) (Materialized, error)
)

// decoders maps an extension to its decoder. Extensions not listed here are
// recognized-but-unhandled and yield a nil payload.
var decoders = map[string]decodeFunc{
	"csv":     decodeCSV,
	"json":    decodeJSON,
	"geojson": decodeGeoJSON,
	"shp":     decodeShapefile,
	"xlsx":    decodeXLSX,
	"xls":     decodeXLS,
	"html":    decodeHTML,
	"htm":     decodeHTML,
}

// WithLogger sets the logger used to report absorbed decode failures.
func WithLogger(l *log.Logger) Option {
	return func(m *Materializer) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a Materializer.
func New(opts ...Option) *Materializer {
	m := &Materializer{logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Materialize decodes src according to hint.
func (m *Materializer) Materialize(hint artifact.TypeHint, src Source) (Materialized, error) {
	if hint.IsContainer() {
		return Materialized{}, ErrContainer
	}
	decode, ok := decoders[hint.Extension]
	if !ok {
		return Materialized{}, nil
	}
	return decode(m, hint, src)
}

// rawFallback absorbs a spreadsheet decode failure and keeps the bytes.
func (m *Materializer) rawFallback(hint artifact.TypeHint, src Source, cause error) (Materialized, error) {
	m.logger.Debug("spreadsheet decode failed, keeping raw bytes", "extension", hint.Extension, "error", cause)
	return Materialized{Payload: artifact.RawBytes(src.Data)}, nil
}

func decodeError(hint artifact.TypeHint, cause error) error {
	return &artifact.DecodeError{Extension: hint.Extension, Cause: cause}
}
