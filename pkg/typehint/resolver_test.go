// SPDX-License-Identifier: MPL-2.0

package typehint

import (
	"archive/zip"
	"bytes"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/datafy/datafy/pkg/artifact"
)

func header(contentType string) http.Header {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return h
}

// countingSniffer returns a fixed MIME and records how often it ran.
func countingSniffer(result string, calls *atomic.Int32) SniffFunc {
	return func([]byte) string {
		calls.Add(1)
		return result
	}
}

func TestResolveExplicitHintBypassesEverything(t *testing.T) {
	t.Parallel()

	hints := []artifact.TypeHint{
		artifact.NewTypeHint("text/csv", "csv"),
		artifact.NewTypeHint("application/json", "json"),
		artifact.NewTypeHint("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"),
		artifact.NewTypeHint("application/octet-stream", "shp"),
		artifact.NewTypeHint("application/x-made-up", "weird"),
	}

	for _, hint := range hints {
		t.Run(hint.Extension, func(t *testing.T) {
			t.Parallel()
			var calls atomic.Int32
			r := New(WithSniffer(countingSniffer("application/zip", &calls)))

			got, err := r.Resolve("https://example.org/x", &hint, header("text/html"), []byte("<html></html>"))
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != hint {
				t.Errorf("Resolve() = %+v, want %+v", got, hint)
			}
			if calls.Load() != 0 {
				t.Errorf("sniffer ran %d time(s) despite explicit hint", calls.Load())
			}
		})
	}
}

func TestResolveDeclaredHeaderShortCircuitsSniffing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		wantExt     string
	}{
		{contentType: "text/csv", wantExt: "csv"},
		{contentType: "text/csv; charset=utf-8", wantExt: "csv"},
		{contentType: "application/vnd.geo+json", wantExt: "geojson"},
		{contentType: "application/geo+json", wantExt: "geojson"},
		{contentType: "application/zip", wantExt: "zip"},
		{contentType: "Application/JSON", wantExt: "json"},
		{contentType: "text/xml", wantExt: "xml"},
		{contentType: "application/vnd.google-earth.kml+xml", wantExt: "kml"},
		{contentType: "application/vnd.ms-office", wantExt: "xls"},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			t.Parallel()
			var calls atomic.Int32
			r := New(WithSniffer(countingSniffer("text/plain", &calls)))

			got, err := r.Resolve("https://example.org/x", nil, header(tt.contentType), []byte("a,b\n1,2\n"))
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got.Extension != tt.wantExt {
				t.Errorf("Extension = %q, want %q", got.Extension, tt.wantExt)
			}
			if calls.Load() != 0 {
				t.Errorf("sniffer ran %d time(s) although the header resolved", calls.Load())
			}
		})
	}
}

func TestResolveSniffCorrectedByTable(t *testing.T) {
	t.Parallel()

	// A legacy spreadsheet served as octet-stream sniffs as the generic
	// Office MIME; the table corrects it to xls.
	var calls atomic.Int32
	r := New(WithSniffer(countingSniffer("application/vnd.ms-office", &calls)))

	got, err := r.Resolve("https://example.org/x", nil, header("application/octet-stream"), []byte{0xD0, 0xCF, 0x11, 0xE0})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Extension != "xls" {
		t.Errorf("Extension = %q, want xls", got.Extension)
	}
	if calls.Load() != 1 {
		t.Errorf("sniffer ran %d time(s), want 1", calls.Load())
	}
}

func TestResolveRealSniffer(t *testing.T) {
	t.Parallel()

	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	w, err := zw.Create("notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		body    []byte
		wantExt string
	}{
		{name: "zip magic", body: zipBuf.Bytes(), wantExt: "zip"},
		{name: "html page", body: []byte("<!DOCTYPE html><html><head><title>Portal</title></head><body></body></html>"), wantExt: "html"},
		{name: "pdf", body: []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"), wantExt: "pdf"},
	}

	r := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := r.Resolve("https://example.org/x", nil, header(""), tt.body)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got.Extension != tt.wantExt {
				t.Errorf("Extension = %q, want %q", got.Extension, tt.wantExt)
			}
		})
	}
}

func TestResolveUnknownType(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	r := New(WithSniffer(countingSniffer("application/octet-stream", &calls)))

	_, err := r.Resolve("https://example.org/blob", nil, header("application/x-portal-blob"), []byte{0, 1, 2, 3})
	if !errors.Is(err, artifact.ErrUnknownType) {
		t.Fatalf("Resolve() error = %v, want ErrUnknownType", err)
	}

	var unknown *artifact.UnknownTypeError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected *artifact.UnknownTypeError, got %T", err)
	}
	if unknown.URI != "https://example.org/blob" {
		t.Errorf("URI = %q", unknown.URI)
	}
	if unknown.MIME != "application/x-portal-blob" {
		t.Errorf("MIME = %q, want the declared content type", unknown.MIME)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	t.Parallel()

	r := New()
	body := []byte("name,count\nalpha,1\nbeta,2\ngamma,3\n")
	h := header("text/plain; charset=utf-8")

	first, firstErr := r.Resolve("https://example.org/x", nil, h, body)
	second, secondErr := r.Resolve("https://example.org/x", nil, h, body)
	if first != second || (firstErr == nil) != (secondErr == nil) {
		t.Errorf("Resolve() not idempotent: %+v/%v then %+v/%v", first, firstErr, second, secondErr)
	}
}

func TestResolveOverrides(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	r := New(
		WithOverrides(map[string]string{"Application/X-Portal-Export; charset=utf-8": ".CSV"}),
		WithSniffer(countingSniffer("application/octet-stream", &calls)),
	)

	got, err := r.Resolve("https://example.org/x", nil, header("application/x-portal-export"), nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Extension != "csv" {
		t.Errorf("Extension = %q, want csv", got.Extension)
	}
	if _, ok := DefaultTable().Lookup("application/x-portal-export"); ok {
		t.Error("overrides leaked into the default table")
	}
}

func TestEntryHint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		file     string
		sniffed  string
		want     artifact.TypeHint
		resolved bool
	}{
		{
			name:     "xlsx sniffed as zip takes the extension",
			file:     "reports/2016.xlsx",
			sniffed:  "application/zip",
			want:     artifact.NewTypeHint("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"),
			resolved: true,
		},
		{
			name:     "csv sniffed as text",
			file:     "data.CSV",
			sniffed:  "text/plain",
			want:     artifact.NewTypeHint("text/csv", "csv"),
			resolved: true,
		},
		{
			name:     "sniff agrees with extension",
			file:     "shape.json",
			sniffed:  "application/json",
			want:     artifact.NewTypeHint("application/json", "json"),
			resolved: true,
		},
		{
			name:     "no extension falls back to sniff",
			file:     "README",
			sniffed:  "text/html; charset=utf-8",
			want:     artifact.NewTypeHint("text/html", "html"),
			resolved: true,
		},
		{
			name:     "no extension and opaque content",
			file:     "blob",
			sniffed:  "application/octet-stream",
			resolved: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls atomic.Int32
			r := New(WithSniffer(countingSniffer(tt.sniffed, &calls)))

			got, ok := r.EntryHint(tt.file, []byte("irrelevant"))
			if ok != tt.resolved {
				t.Fatalf("EntryHint(%q) resolved = %v, want %v", tt.file, ok, tt.resolved)
			}
			if ok && got != tt.want {
				t.Errorf("EntryHint(%q) = %+v, want %+v", tt.file, got, tt.want)
			}
		})
	}
}
