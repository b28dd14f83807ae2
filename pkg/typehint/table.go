// SPDX-License-Identifier: MPL-2.0

package typehint

import (
	"maps"
	"strings"
)

// defaultEntries is the built-in MIME to extension table. Order matters only
// for the reverse lookup: the first MIME listed for an extension is canonical.
var defaultEntries = []struct {
	mime string
	ext  string
}{
	{"text/csv", "csv"},
	{"application/csv", "csv"},
	{"application/geo+json", "geojson"},
	// Obsolete registration still served by Socrata portals.
	{"application/vnd.geo+json", "geojson"},
	{"application/vnd.google-earth.kmz", "kmz"},
	{"application/vnd.google-earth.kml+xml", "kml"},
	{"application/zip", "zip"},
	{"application/x-zip-compressed", "zip"},
	{"application/json", "json"},
	{"application/xml", "xml"},
	{"text/xml", "xml"},
	{"text/html", "html"},
	{"application/vnd.ms-excel", "xls"},
	// Generic OLE guess that sniffers return for legacy spreadsheets.
	{"application/vnd.ms-office", "xls"},
	{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"},
	{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "docx"},
	{"application/x-esri-shape", "shp"},
}

// Table maps normalized MIME strings to extensions. It is built once at
// startup and only read afterwards.
type Table struct {
	byMIME map[string]string
	byExt  map[string]string
}

// DefaultTable returns the built-in table.
func DefaultTable() *Table {
	t := &Table{byMIME: make(map[string]string), byExt: make(map[string]string)}
	for _, e := range defaultEntries {
		t.add(e.mime, e.ext)
	}
	return t
}

// WithOverrides returns a copy of t with overrides layered on top. Keys and
// values are normalized the same way Lookup normalizes its input.
func (t *Table) WithOverrides(overrides map[string]string) *Table {
	out := &Table{byMIME: maps.Clone(t.byMIME), byExt: maps.Clone(t.byExt)}
	for mime, ext := range overrides {
		out.byMIME[normalizeMIME(mime)] = normalizeExt(ext)
		if _, ok := out.byExt[normalizeExt(ext)]; !ok {
			out.byExt[normalizeExt(ext)] = normalizeMIME(mime)
		}
	}
	return out
}

// Lookup returns the extension registered for mime.
func (t *Table) Lookup(mime string) (string, bool) {
	ext, ok := t.byMIME[normalizeMIME(mime)]
	return ext, ok && ext != ""
}

// MIMEFor returns the canonical MIME registered for ext.
func (t *Table) MIMEFor(ext string) (string, bool) {
	mime, ok := t.byExt[normalizeExt(ext)]
	return mime, ok
}

// Entries returns a copy of the MIME to extension mapping.
func (t *Table) Entries() map[string]string {
	return maps.Clone(t.byMIME)
}

func (t *Table) add(mime, ext string) {
	mime, ext = normalizeMIME(mime), normalizeExt(ext)
	t.byMIME[mime] = ext
	if _, ok := t.byExt[ext]; !ok {
		t.byExt[ext] = mime
	}
}

// normalizeMIME drops parameters ("; charset=utf-8") and lower-cases.
func normalizeMIME(mime string) string {
	mime, _, _ = strings.Cut(mime, ";")
	return strings.ToLower(strings.TrimSpace(mime))
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
