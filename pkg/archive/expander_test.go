// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/datafy/datafy/internal/testutil"
	"github.com/datafy/datafy/pkg/artifact"
	"github.com/datafy/datafy/pkg/platform"
	"github.com/datafy/datafy/pkg/typehint"
)

type (
	// fakeFetcher stands in for the pipeline: it reads the member from
	// scratch storage and returns one artifact, recursing into nested zips.
	fakeFetcher struct {
		base     string
		expander *Expander
		fail     map[string]error

		mu        sync.Mutex
		seenDirs  []string
		seenHints map[string]artifact.TypeHint
	}
)

func (f *fakeFetcher) Do(ctx context.Context, req artifact.Request) (*artifact.Result, error) {
	rel := strings.TrimPrefix(req.URI, "file:")
	scratch, member, _ := strings.Cut(rel, "/")
	local := filepath.Join(f.base, filepath.FromSlash(rel))

	f.mu.Lock()
	f.seenDirs = append(f.seenDirs, filepath.Join(f.base, scratch))
	if req.ExplicitType != nil {
		if f.seenHints == nil {
			f.seenHints = make(map[string]artifact.TypeHint)
		}
		f.seenHints[member] = *req.ExplicitType
	}
	f.mu.Unlock()

	if err, ok := f.fail[member]; ok {
		return nil, err
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return nil, err
	}
	if req.ExplicitType != nil && req.ExplicitType.IsContainer() {
		return f.expander.Expand(ctx, req, data)
	}

	a := artifact.Artifact{PathHint: member, OriginURI: req.OriginURI(), Size: int64(len(data))}
	if req.ExplicitType != nil {
		a.MIME, a.Extension = req.ExplicitType.MIME, req.ExplicitType.Extension
	}
	return &artifact.Result{Artifacts: []artifact.Artifact{a}}, nil
}

func newTestExpander(t *testing.T, fetcher *fakeFetcher, opts ...Option) *Expander {
	t.Helper()
	fetcher.base = t.TempDir()
	opts = append([]Option{WithScratchDir(fetcher.base)}, opts...)
	e := New(fetcher, typehint.New(), opts...)
	fetcher.expander = e
	return e
}

func assertNoScratch(t *testing.T, base string) {
	t.Helper()
	entries, err := os.ReadDir(base)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ScratchPrefix) {
			t.Errorf("scratch directory %s left behind", e.Name())
		}
	}
}

func rootRequest() artifact.Request {
	return artifact.NewRequest("https://data.example.org/bundle.zip", 0)
}

func TestExpandReturnsEveryMemberInOrder(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	e := newTestExpander(t, fetcher)
	data := testutil.BuildZip(t,
		testutil.ZipEntry{Name: "b.csv", Body: []byte("a,b\n1,2\n")},
		testutil.ZipEntry{Name: "nested/"},
		testutil.ZipEntry{Name: "nested/a.json", Body: []byte(`{"x":1}`)},
		testutil.ZipEntry{Name: "c.geojson", Body: []byte(`{"type":"FeatureCollection","features":[]}`)},
	)

	res, err := e.Expand(context.Background(), rootRequest(), data)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	want := []string{"b.csv", "nested/a.json", "c.geojson"}
	if len(res.Artifacts) != len(want) {
		t.Fatalf("got %d artifacts, want %d", len(res.Artifacts), len(want))
	}
	for i, a := range res.Artifacts {
		if a.PathHint != want[i] {
			t.Errorf("artifact %d path = %q, want %q", i, a.PathHint, want[i])
		}
		if a.OriginURI != rootRequest().URI {
			t.Errorf("artifact %d origin = %q", i, a.OriginURI)
		}
	}
	if len(res.EntryFailures) != 0 {
		t.Errorf("unexpected entry failures: %v", res.EntryFailures)
	}
	assertNoScratch(t, fetcher.base)
}

func TestExpandKeepsCollidingMembers(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	e := newTestExpander(t, fetcher)
	bodies := []string{"a\n1\n", "a\n1\n2\n", "a\n1\n2\n3\n"}
	data := testutil.BuildZip(t,
		testutil.ZipEntry{Name: "exports/a.csv", Body: []byte(bodies[0])},
		testutil.ZipEntry{Name: "exports/a.csv", Body: []byte(bodies[1])},
		testutil.ZipEntry{Name: "exports/A.CSV", Body: []byte(bodies[2])},
	)

	res, err := e.Expand(context.Background(), rootRequest(), data)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(res.Artifacts) != 3 || len(res.EntryFailures) != 0 {
		t.Fatalf("got %d artifacts and %v, want 3 artifacts", len(res.Artifacts), res.EntryFailures)
	}
	wantHints := []string{"exports/a.csv", "exports/a.csv", "exports/A.CSV"}
	for i, a := range res.Artifacts {
		if a.PathHint != wantHints[i] {
			t.Errorf("artifact %d path = %q, want %q", i, a.PathHint, wantHints[i])
		}
		if a.Size != int64(len(bodies[i])) {
			t.Errorf("artifact %d size = %d, want %d", i, a.Size, len(bodies[i]))
		}
	}
	assertNoScratch(t, fetcher.base)
}

func TestExpandDecodesLegacyMemberNames(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	e := newTestExpander(t, fetcher)
	// 0x82 is é and 0x94 is ö in code page 437.
	data := testutil.BuildZip(t,
		testutil.ZipEntry{Name: "caf\x82.csv", Body: []byte("a\n1\n")},
		testutil.ZipEntry{Name: "K\x94ln/stra\xe1e.csv", Body: []byte("a\n1\n")},
		testutil.ZipEntry{Name: "plain.csv", Body: []byte("a\n1\n")},
	)

	res, err := e.Expand(context.Background(), rootRequest(), data)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	want := []string{"café.csv", "Köln/straße.csv", "plain.csv"}
	if len(res.Artifacts) != len(want) {
		t.Fatalf("got %d artifacts, want %d (failures: %v)", len(res.Artifacts), len(want), res.EntryFailures)
	}
	for i, a := range res.Artifacts {
		if a.PathHint != want[i] {
			t.Errorf("artifact %d path = %q, want %q", i, a.PathHint, want[i])
		}
		if a.Extension != "csv" {
			t.Errorf("artifact %d extension = %q, want csv", i, a.Extension)
		}
	}
	assertNoScratch(t, fetcher.base)
}

func TestUniqueName(t *testing.T) {
	t.Parallel()

	taken := map[string]bool{}
	tests := []struct {
		in, want string
	}{
		{"a.csv", "a.csv"},
		{"a.csv", "a~1.csv"},
		{"A.csv", "A~2.csv"},
		{"a~1.csv", "a~1~1.csv"},
		{"dir/README", "dir/README"},
		{"dir/readme", "dir/readme~1"},
		{"other/a.csv", "other/a.csv"},
	}
	for _, tt := range tests {
		if got := uniqueName(tt.in, taken); got != tt.want {
			t.Errorf("uniqueName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandSpreadsheetBundle(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	e := newTestExpander(t, fetcher)

	entries := make([]testutil.ZipEntry, 0, 8)
	for _, year := range []string{"2010", "2011", "2012", "2013", "2014", "2015", "2016"} {
		entries = append(entries, testutil.ZipEntry{Name: "budget/" + year + ".xlsx", Body: []byte("workbook " + year)})
	}
	entries = append(entries, testutil.ZipEntry{Name: "budget/README.docx", Body: []byte("notes")})

	res, err := e.Expand(context.Background(), rootRequest(), testutil.BuildZip(t, entries...))
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(res.Artifacts) != 8 {
		t.Fatalf("got %d artifacts, want 8", len(res.Artifacts))
	}

	counts := map[string]int{}
	for _, a := range res.Artifacts {
		counts[a.Extension]++
		if strings.Contains(a.PathHint, ScratchPrefix) {
			t.Errorf("path hint %q leaks the scratch directory", a.PathHint)
		}
	}
	if counts["xlsx"] != 7 || counts["docx"] != 1 {
		t.Errorf("extension counts = %v, want 7 xlsx and 1 docx", counts)
	}
	assertNoScratch(t, fetcher.base)
}

func TestExpandAttributesMemberFailures(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{fail: map[string]error{
		"broken.csv": &artifact.DecodeError{Extension: "csv", Cause: errors.New("bare quote")},
		"mystery":    &artifact.UnknownTypeError{URI: "file:mystery"},
	}}
	e := newTestExpander(t, fetcher)
	data := testutil.BuildZip(t,
		testutil.ZipEntry{Name: "good.csv", Body: []byte("a\n1\n")},
		testutil.ZipEntry{Name: "broken.csv", Body: []byte("\"a\n")},
		testutil.ZipEntry{Name: "mystery", Body: []byte{0, 1, 2}},
		testutil.ZipEntry{Name: "also-good.json", Body: []byte(`[]`)},
	)

	res, err := e.Expand(context.Background(), rootRequest(), data)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(res.Artifacts) != 2 {
		t.Errorf("got %d artifacts, want 2", len(res.Artifacts))
	}
	if len(res.Artifacts)+len(res.EntryFailures) != 4 {
		t.Fatalf("shortfall not attributed: %d artifacts, %d failures", len(res.Artifacts), len(res.EntryFailures))
	}

	wantKinds := map[string]artifact.ErrorKind{
		"broken.csv": artifact.KindDecode,
		"mystery":    artifact.KindUnknownType,
	}
	for _, f := range res.EntryFailures {
		if wantKinds[f.PathHint] != f.Kind {
			t.Errorf("failure %s kind = %s, want %s", f.PathHint, f.Kind, wantKinds[f.PathHint])
		}
	}
	assertNoScratch(t, fetcher.base)
}

func TestExpandScratchExistsOnlyDuringCall(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	e := newTestExpander(t, fetcher)
	data := testutil.BuildZip(t, testutil.ZipEntry{Name: "a.csv", Body: []byte("a\n1\n")})

	if _, err := e.Expand(context.Background(), rootRequest(), data); err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(fetcher.seenDirs) != 1 {
		t.Fatalf("fetcher called %d times, want 1", len(fetcher.seenDirs))
	}
	if _, err := os.Stat(fetcher.seenDirs[0]); !os.IsNotExist(err) {
		t.Errorf("scratch directory %s still exists (stat error %v)", fetcher.seenDirs[0], err)
	}
}

func TestExpandCorruptArchive(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	e := newTestExpander(t, fetcher)

	_, err := e.Expand(context.Background(), rootRequest(), []byte("PK\x03\x04 definitely not a zip"))
	if !errors.Is(err, artifact.ErrCorruptArchive) {
		t.Fatalf("Expand() error = %v, want ErrCorruptArchive", err)
	}
	var corrupt *artifact.CorruptArchiveError
	if !errors.As(err, &corrupt) || corrupt.URI != rootRequest().URI {
		t.Errorf("expected CorruptArchiveError for the origin URI, got %#v", err)
	}
	assertNoScratch(t, fetcher.base)
}

func TestExpandRejectsEscapingMembers(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	e := newTestExpander(t, fetcher)
	data := testutil.BuildZip(t,
		testutil.ZipEntry{Name: "ok.csv", Body: []byte("a\n1\n")},
		testutil.ZipEntry{Name: "../../evil.txt", Body: []byte("pwned")},
	)

	_, err := e.Expand(context.Background(), rootRequest(), data)
	if !errors.Is(err, artifact.ErrCorruptArchive) {
		t.Fatalf("Expand() error = %v, want ErrCorruptArchive", err)
	}
	if _, statErr := os.Stat(filepath.Join(filepath.Dir(fetcher.base), "evil.txt")); !os.IsNotExist(statErr) {
		t.Error("member escaped the scratch directory")
	}
	assertNoScratch(t, fetcher.base)
}

func TestExpandRejectsDeviceNamesOnWindows(t *testing.T) {
	t.Parallel()
	if !platform.IsWindows() {
		t.Skip("device names are ordinary files on this platform")
	}

	fetcher := &fakeFetcher{}
	e := newTestExpander(t, fetcher)
	data := testutil.BuildZip(t, testutil.ZipEntry{Name: "exports/nul.csv", Body: []byte("a\n1\n")})

	_, err := e.Expand(context.Background(), rootRequest(), data)
	if !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("Expand() error = %v, want ErrUnsafePath", err)
	}
	assertNoScratch(t, fetcher.base)
}

func TestExpandNestedArchives(t *testing.T) {
	t.Parallel()

	inner := testutil.BuildZip(t, testutil.ZipEntry{Name: "data.csv", Body: []byte("a,b\n1,2\n")})
	outer := testutil.BuildZip(t,
		testutil.ZipEntry{Name: "top.csv", Body: []byte("x\n1\n")},
		testutil.ZipEntry{Name: "parts/inner.zip", Body: inner},
	)

	t.Run("within depth", func(t *testing.T) {
		t.Parallel()
		fetcher := &fakeFetcher{}
		e := newTestExpander(t, fetcher)

		res, err := e.Expand(context.Background(), rootRequest(), outer)
		if err != nil {
			t.Fatalf("Expand() error = %v", err)
		}
		got := make([]string, 0, len(res.Artifacts))
		for _, a := range res.Artifacts {
			got = append(got, a.PathHint)
		}
		want := []string{"top.csv", "parts/inner.zip/data.csv"}
		if strings.Join(got, "|") != strings.Join(want, "|") {
			t.Errorf("path hints = %v, want %v", got, want)
		}
		assertNoScratch(t, fetcher.base)
	})

	t.Run("beyond depth", func(t *testing.T) {
		t.Parallel()
		fetcher := &fakeFetcher{}
		e := newTestExpander(t, fetcher, WithMaxDepth(0))

		res, err := e.Expand(context.Background(), rootRequest(), outer)
		if err != nil {
			t.Fatalf("Expand() error = %v", err)
		}
		if len(res.Artifacts) != 1 || len(res.EntryFailures) != 1 {
			t.Fatalf("got %d artifacts / %d failures, want 1 / 1", len(res.Artifacts), len(res.EntryFailures))
		}
		failure := res.EntryFailures[0]
		if failure.PathHint != "parts/inner.zip" || failure.Kind != artifact.KindCorruptArchive {
			t.Errorf("failure = %+v, want corrupt_archive on parts/inner.zip", failure)
		}
		assertNoScratch(t, fetcher.base)
	})
}

func TestExpandMemberHints(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	e := newTestExpander(t, fetcher)
	data := testutil.BuildZip(t,
		testutil.ZipEntry{Name: "Report.XLSX", Body: []byte("PK\x03\x04")},
		testutil.ZipEntry{Name: "rows.csv", Body: []byte("a,b\n1,2\n3,4\n")},
	)

	if _, err := e.Expand(context.Background(), rootRequest(), data); err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if got := fetcher.seenHints["Report.XLSX"].Extension; got != "xlsx" {
		t.Errorf("Report.XLSX hint extension = %q, want xlsx", got)
	}
	if got := fetcher.seenHints["rows.csv"].Extension; got != "csv" {
		t.Errorf("rows.csv hint extension = %q, want csv", got)
	}
}

func TestAllocateRetriesOnCollision(t *testing.T) {
	t.Parallel()

	ids := []string{"taken", "free"}
	var mu sync.Mutex
	next := func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[0]
		if len(ids) > 1 {
			ids = ids[1:]
		}
		return id
	}

	fetcher := &fakeFetcher{}
	e := newTestExpander(t, fetcher, WithIDFunc(next))
	taken := filepath.Join(fetcher.base, ScratchPrefix+"taken")
	if err := os.Mkdir(taken, 0o755); err != nil {
		t.Fatal(err)
	}

	data := testutil.BuildZip(t, testutil.ZipEntry{Name: "a.csv", Body: []byte("a\n1\n")})
	if _, err := e.Expand(context.Background(), rootRequest(), data); err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if want := filepath.Join(fetcher.base, ScratchPrefix+"free"); fetcher.seenDirs[0] != want {
		t.Errorf("scratch dir = %s, want %s", fetcher.seenDirs[0], want)
	}
	if _, err := os.Stat(taken); err != nil {
		t.Errorf("pre-existing directory was touched: %v", err)
	}
}

func TestAllocateGivesUp(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	e := newTestExpander(t, fetcher, WithIDFunc(func() string { return "fixed" }), WithAllocAttempts(3))
	if err := os.Mkdir(filepath.Join(fetcher.base, ScratchPrefix+"fixed"), 0o755); err != nil {
		t.Fatal(err)
	}

	data := testutil.BuildZip(t, testutil.ZipEntry{Name: "a.csv", Body: []byte("a\n1\n")})
	_, err := e.Expand(context.Background(), rootRequest(), data)
	if !errors.Is(err, ErrScratchExhausted) {
		t.Errorf("Expand() error = %v, want ErrScratchExhausted", err)
	}
}

func TestExpandStopsOnCancellation(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	e := newTestExpander(t, fetcher)
	data := testutil.BuildZip(t, testutil.ZipEntry{Name: "a.csv", Body: []byte("a\n1\n")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Expand(ctx, rootRequest(), data); !errors.Is(err, context.Canceled) {
		t.Errorf("Expand() error = %v, want context.Canceled", err)
	}
	assertNoScratch(t, fetcher.base)
}
