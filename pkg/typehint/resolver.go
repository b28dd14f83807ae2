// SPDX-License-Identifier: MPL-2.0

package typehint

import (
	"mime"
	"net/http"
	"path"

	"github.com/datafy/datafy/pkg/artifact"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// DefaultSniffLimit is how many leading body bytes are inspected.
	DefaultSniffLimit = 3072

	octetStream = "application/octet-stream"
)

type (
	// SniffFunc returns the MIME type detected from a body prefix.
	SniffFunc func(sample []byte) string

	// Resolver runs the precedence cascade. It holds no mutable state and is
	// safe for concurrent use.
	Resolver struct {
		table      *Table
		sniff      SniffFunc
		sniffLimit int
	}

	// Option configures a Resolver.
	Option func(*Resolver)
)

// WithTable replaces the static table.
func WithTable(t *Table) Option {
	return func(r *Resolver) {
		if t != nil {
			r.table = t
		}
	}
}

// WithOverrides layers extra MIME to extension entries over the current table.
func WithOverrides(overrides map[string]string) Option {
	return func(r *Resolver) {
		if len(overrides) > 0 {
			r.table = r.table.WithOverrides(overrides)
		}
	}
}

// WithSniffer replaces the content sniffer.
func WithSniffer(fn SniffFunc) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.sniff = fn
		}
	}
}

// WithSniffLimit sets how many body bytes the sniffer sees.
func WithSniffLimit(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.sniffLimit = n
		}
	}
}

// New creates a Resolver over the default table.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		table:      DefaultTable(),
		sniff:      sniffMimetype,
		sniffLimit: DefaultSniffLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Table returns the resolver's static table.
func (r *Resolver) Table() *Table {
	return r.table
}

// Resolve determines the type of the resource at uri.
func (r *Resolver) Resolve(uri string, explicit *artifact.TypeHint, header http.Header, body []byte) (artifact.TypeHint, error) {
	if explicit != nil && !explicit.IsZero() {
		return *explicit, nil
	}

	declared := ""
	if header != nil {
		declared = normalizeMIME(header.Get("Content-Type"))
	}
	if declared != "" {
		if ext, ok := r.table.Lookup(declared); ok {
			return artifact.NewTypeHint(declared, ext), nil
		}
	}

	sniffed := r.Sniff(body)
	if hint, ok := r.fromSniffed(sniffed); ok {
		return hint, nil
	}

	observed := declared
	if observed == "" {
		observed = sniffed
	}
	return artifact.TypeHint{}, &artifact.UnknownTypeError{URI: uri, MIME: observed}
}

// SniffLimit returns how many leading bytes the sniffer inspects.
func (r *Resolver) SniffLimit() int {
	return r.sniffLimit
}

// Sniff returns the normalized MIME type detected from the body prefix.
func (r *Resolver) Sniff(body []byte) string {
	if len(body) > r.sniffLimit {
		body = body[:r.sniffLimit]
	}
	return normalizeMIME(r.sniff(body))
}

// EntryHint derives the explicit hint for a file extracted from a container,
// combining the filename extension with a sniff of its content. The
// extension wins when present; the MIME comes from the sniff when the two
// agree, otherwise from the table or the system MIME registry.
func (r *Resolver) EntryHint(name string, sample []byte) (artifact.TypeHint, bool) {
	ext := normalizeExt(path.Ext(name))
	sniffed := r.Sniff(sample)
	if ext == "" {
		return r.fromSniffed(sniffed)
	}
	if genericExt(sniffed) == ext {
		return artifact.NewTypeHint(sniffed, ext), true
	}
	if tableExt, ok := r.table.Lookup(sniffed); ok && tableExt == ext {
		return artifact.NewTypeHint(sniffed, ext), true
	}
	if m, ok := r.table.MIMEFor(ext); ok {
		return artifact.NewTypeHint(m, ext), true
	}
	if m := mime.TypeByExtension("." + ext); m != "" {
		return artifact.NewTypeHint(m, ext), true
	}
	if sniffed == "" {
		sniffed = octetStream
	}
	return artifact.NewTypeHint(sniffed, ext), true
}

// fromSniffed maps a sniffed MIME through the static table, then the
// generic fallback.
func (r *Resolver) fromSniffed(sniffed string) (artifact.TypeHint, bool) {
	if sniffed == "" || sniffed == octetStream {
		return artifact.TypeHint{}, false
	}
	if ext, ok := r.table.Lookup(sniffed); ok {
		return artifact.NewTypeHint(sniffed, ext), true
	}
	if ext := genericExt(sniffed); ext != "" {
		return artifact.NewTypeHint(sniffed, ext), true
	}
	return artifact.TypeHint{}, false
}

// genericExt is the library-backed MIME to extension fallback.
func genericExt(m string) string {
	if m == "" || m == octetStream {
		return ""
	}
	if known := mimetype.Lookup(m); known != nil && known.Extension() != "" {
		return normalizeExt(known.Extension())
	}
	exts, err := mime.ExtensionsByType(m)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return normalizeExt(exts[0])
}

func sniffMimetype(sample []byte) string {
	return mimetype.Detect(sample).String()
}
