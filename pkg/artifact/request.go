// SPDX-License-Identifier: MPL-2.0

package artifact

import (
	"errors"
	"fmt"
	"strings"
)

// ExtZip is the one container extension the pipeline expands.
const ExtZip = "zip"

var (
	// ErrInvalidRequest is the sentinel error wrapped by InvalidRequestError.
	ErrInvalidRequest = errors.New("invalid fetch request")
	// ErrInvalidTypeHint is returned when a TypeHint is not lower-case or has a leading dot.
	ErrInvalidTypeHint = errors.New("invalid type hint")
)

type (
	// TypeHint is a (MIME, extension) pair. Both are lower-case and the
	// extension carries no leading separator. Once attached to an Artifact
	// it is never revised.
	TypeHint struct {
		MIME      string `json:"mime"`
		Extension string `json:"extension"`
	}

	// Request describes a single fetch. It is built once per top-level call
	// and once per extracted container member, and is never mutated after
	// construction; the With* helpers return modified copies.
	Request struct {
		// URI is an http(s) URL, a file: URI, or a plain filesystem path.
		URI string `json:"uri"`
		// SizeLimit bounds the payload size in bytes. Zero means unlimited.
		SizeLimit int64 `json:"size_limit,omitempty"`
		// ExplicitType, when set, bypasses header and content inspection.
		ExplicitType *TypeHint `json:"explicit_type,omitempty"`
		// LocalEntry marks a member extracted from a container into scratch
		// storage. Its path hint is computed relative to the container root.
		LocalEntry bool `json:"local_entry,omitempty"`
		// Origin is the top-level URI a container member came from. Artifacts
		// report it instead of the synthetic scratch URI.
		Origin string `json:"origin,omitempty"`
		// Depth is the container nesting level; zero for top-level requests.
		Depth int `json:"depth,omitempty"`
	}

	// InvalidRequestError is returned when a Request cannot be fetched as given.
	// It wraps ErrInvalidRequest for errors.Is() compatibility.
	InvalidRequestError struct {
		URI    string
		Reason string
	}
)

// NewTypeHint builds a normalized TypeHint: lower-cased, MIME parameters
// dropped, extension stripped of its leading dot.
func NewTypeHint(mime, ext string) TypeHint {
	mime, _, _ = strings.Cut(mime, ";")
	return TypeHint{
		MIME:      strings.ToLower(strings.TrimSpace(mime)),
		Extension: strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), ".")),
	}
}

// IsZero reports whether neither field is set.
func (h TypeHint) IsZero() bool {
	return h.MIME == "" && h.Extension == ""
}

// IsContainer reports whether the hint names the expandable container format.
func (h TypeHint) IsContainer() bool {
	return h.Extension == ExtZip
}

// Validate checks the normalization rules.
func (h TypeHint) Validate() error {
	if h.Extension == "" {
		return fmt.Errorf("%w: empty extension", ErrInvalidTypeHint)
	}
	if strings.HasPrefix(h.Extension, ".") {
		return fmt.Errorf("%w: extension %q has a leading dot", ErrInvalidTypeHint, h.Extension)
	}
	if h.Extension != strings.ToLower(h.Extension) || h.MIME != strings.ToLower(h.MIME) {
		return fmt.Errorf("%w: %s/%s is not lower-case", ErrInvalidTypeHint, h.MIME, h.Extension)
	}
	return nil
}

// String renders the hint as "mime (ext)".
func (h TypeHint) String() string {
	return fmt.Sprintf("%s (%s)", h.MIME, h.Extension)
}

// NewRequest builds a top-level request.
func NewRequest(uri string, sizeLimit int64) Request {
	return Request{URI: strings.TrimSpace(uri), SizeLimit: sizeLimit}
}

// Validate checks that the request can be fetched.
func (r Request) Validate() error {
	if r.URI == "" {
		return &InvalidRequestError{Reason: "empty uri"}
	}
	if r.SizeLimit < 0 {
		return &InvalidRequestError{URI: r.URI, Reason: "negative size limit"}
	}
	if r.Depth < 0 {
		return &InvalidRequestError{URI: r.URI, Reason: "negative depth"}
	}
	if r.ExplicitType != nil {
		if err := r.ExplicitType.Validate(); err != nil {
			return &InvalidRequestError{URI: r.URI, Reason: err.Error()}
		}
	}
	return nil
}

// OriginURI returns the URI artifacts produced by this request should report.
func (r Request) OriginURI() string {
	if r.Origin != "" {
		return r.Origin
	}
	return r.URI
}

// Entry derives the request for a container member. The returned request is
// flagged as a local entry, inherits the size limit and origin, and sits one
// level deeper than r.
func (r Request) Entry(uri string, hint *TypeHint) Request {
	return Request{
		URI:          uri,
		SizeLimit:    r.SizeLimit,
		ExplicitType: hint,
		LocalEntry:   true,
		Origin:       r.OriginURI(),
		Depth:        r.Depth + 1,
	}
}

// WithExplicitType returns a copy of r carrying the given hint.
func (r Request) WithExplicitType(hint TypeHint) Request {
	r.ExplicitType = &hint
	return r
}

// Error implements the error interface.
func (e *InvalidRequestError) Error() string {
	if e.URI == "" {
		return fmt.Sprintf("invalid fetch request: %s", e.Reason)
	}
	return fmt.Sprintf("invalid fetch request %q: %s", e.URI, e.Reason)
}

// Unwrap returns ErrInvalidRequest for errors.Is() compatibility.
func (e *InvalidRequestError) Unwrap() error { return ErrInvalidRequest }
