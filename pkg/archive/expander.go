// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/datafy/datafy/pkg/artifact"
	"github.com/datafy/datafy/pkg/platform"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"golang.org/x/text/encoding/charmap"
)

const (
	// ScratchPrefix starts the name of every scratch directory.
	ScratchPrefix = ".datafy-"

	// DefaultMaxDepth is the deepest container nesting level expanded.
	DefaultMaxDepth = 2

	defaultAllocAttempts = 8
)

var (
	// ErrTooDeep is the cause recorded when nesting exceeds the maximum depth.
	ErrTooDeep = errors.New("nested archive exceeds the supported depth")
	// ErrUnsafePath is the cause recorded for members that would escape the scratch directory.
	ErrUnsafePath = errors.New("archive member escapes the extraction root")
	// ErrScratchExhausted is returned when no free scratch name was found.
	ErrScratchExhausted = errors.New("could not allocate a scratch directory")
)

type (
	// Fetcher runs the fetch pipeline for one request. The pipeline
	// implements it; the expander calls back into it for every member.
	Fetcher interface {
		Do(ctx context.Context, req artifact.Request) (*artifact.Result, error)
	}

	// EntryTyper derives the explicit type hint of an extracted member.
	EntryTyper interface {
		EntryHint(name string, sample []byte) (artifact.TypeHint, bool)
		SniffLimit() int
	}

	// Expander expands zip payloads. It holds no per-call state and may be
	// shared by concurrent fetches; each call allocates its own scratch
	// directory.
	Expander struct {
		fetcher    Fetcher
		typer      EntryTyper
		scratchDir string
		maxDepth   int
		attempts   int
		newID      func() string
		logger     *log.Logger
	}

	// Option configures an Expander.
	Option func(*Expander)

	// member is one regular file extracted to scratch storage. name is the
	// path inside the archive; diskName is where it landed below the
	// scratch root, which differs when two members collide.
	member struct {
		name      string
		diskName  string
		localPath string
	}
)

// WithScratchDir sets the directory scratch directories are created under.
// An empty dir means the process working directory.
func WithScratchDir(dir string) Option {
	return func(e *Expander) {
		e.scratchDir = dir
	}
}

// WithMaxDepth sets the deepest nesting level that is expanded.
func WithMaxDepth(depth int) Option {
	return func(e *Expander) {
		if depth >= 0 {
			e.maxDepth = depth
		}
	}
}

// WithIDFunc replaces the random scratch name generator.
func WithIDFunc(fn func() string) Option {
	return func(e *Expander) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// WithAllocAttempts sets how many scratch names are tried before giving up.
func WithAllocAttempts(n int) Option {
	return func(e *Expander) {
		if n > 0 {
			e.attempts = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Expander) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Expander that recurses through fetcher.
func New(fetcher Fetcher, typer EntryTyper, opts ...Option) *Expander {
	e := &Expander{
		fetcher:  fetcher,
		typer:    typer,
		maxDepth: DefaultMaxDepth,
		attempts: defaultAllocAttempts,
		newID:    uuid.NewString,
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ScratchDir returns the absolute directory scratch directories live under.
func (e *Expander) ScratchDir() (string, error) {
	base := e.scratchDir
	if base == "" {
		base = "."
	}
	return filepath.Abs(base)
}

// Expand extracts data, the zip payload of req, and fetches every member.
// Artifacts come back in archive enumeration order with path hints relative
// to the archive root.
func (e *Expander) Expand(ctx context.Context, req artifact.Request, data []byte) (*artifact.Result, error) {
	if req.Depth > e.maxDepth {
		return nil, &artifact.CorruptArchiveError{URI: req.OriginURI(), Depth: req.Depth, Cause: ErrTooDeep}
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &artifact.CorruptArchiveError{URI: req.OriginURI(), Depth: req.Depth, Cause: err}
	}

	base, err := e.ScratchDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scratch directory: %w", err)
	}
	name, root, err := e.allocate(base)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := os.RemoveAll(root); rmErr != nil {
			e.logger.Warn("failed to remove scratch directory", "path", root, "error", rmErr)
		}
	}()

	members, err := extractAll(zr, root, req.SizeLimit)
	if err != nil {
		var corrupt *artifact.CorruptArchiveError
		if errors.As(err, &corrupt) {
			corrupt.URI, corrupt.Depth = req.OriginURI(), req.Depth
		}
		return nil, err
	}
	e.logger.Debug("archive extracted", "origin", req.OriginURI(), "members", len(members), "depth", req.Depth)

	result := &artifact.Result{}
	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.fetchMember(ctx, req, name, m, result)
	}
	return result, nil
}

// fetchMember recurses into one member and records its artifacts or its
// failure in result.
func (e *Expander) fetchMember(ctx context.Context, req artifact.Request, scratchName string, m member, result *artifact.Result) {
	var hint *artifact.TypeHint
	sample, err := readSample(m.localPath, e.typer.SniffLimit())
	if err != nil {
		result.EntryFailures = append(result.EntryFailures, artifact.NewEntryFailure(m.name, err))
		return
	}
	if h, ok := e.typer.EntryHint(m.name, sample); ok {
		hint = &h
	}

	sub := req.Entry("file:"+scratchName+"/"+m.diskName, hint)
	res, err := e.fetcher.Do(ctx, sub)
	if err != nil {
		e.logger.Debug("archive member failed", "origin", req.OriginURI(), "member", m.name, "error", err)
		result.EntryFailures = append(result.EntryFailures, artifact.NewEntryFailure(m.name, err))
		return
	}

	// A nested container reports paths relative to its own root.
	if hint != nil && hint.IsContainer() {
		for i := range res.Artifacts {
			res.Artifacts[i].PathHint = path.Join(m.name, res.Artifacts[i].PathHint)
		}
		for i := range res.EntryFailures {
			res.EntryFailures[i].PathHint = path.Join(m.name, res.EntryFailures[i].PathHint)
		}
	} else {
		for i := range res.Artifacts {
			res.Artifacts[i].PathHint = m.name
		}
	}
	result.Merge(res)
}

// allocate creates a fresh scratch directory under base, retrying on name
// collisions. It returns the directory name and its absolute path.
func (e *Expander) allocate(base string) (string, string, error) {
	for range e.attempts {
		name := ScratchPrefix + e.newID()
		dir := filepath.Join(base, name)
		if _, err := os.Lstat(dir); err == nil {
			continue
		}
		if err := os.Mkdir(dir, 0o700); err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return "", "", fmt.Errorf("failed to create scratch directory: %w", err)
		}
		return name, dir, nil
	}
	return "", "", fmt.Errorf("%w under %s after %d attempts", ErrScratchExhausted, base, e.attempts)
}

// extractAll writes every member of zr below root and returns the regular
// files in enumeration order. When limit is positive at most limit+1 bytes
// of each member are written, enough for the member fetch to report it as
// too large without filling the disk.
func extractAll(zr *zip.Reader, root string, limit int64) ([]member, error) {
	members := make([]member, 0, len(zr.File))
	taken := make(map[string]bool, len(zr.File))
	for _, file := range zr.File {
		raw := memberName(file)
		name := path.Clean(strings.TrimPrefix(raw, "/"))
		destPath := filepath.Join(root, filepath.FromSlash(name))

		relPath, err := filepath.Rel(root, destPath)
		if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
			return nil, &artifact.CorruptArchiveError{Cause: fmt.Errorf("%w: %s", ErrUnsafePath, raw)}
		}
		// Device names would open the device instead of a file.
		if platform.IsWindows() && platform.HasReservedSegment(name) {
			return nil, &artifact.CorruptArchiveError{Cause: fmt.Errorf("%w: reserved name %s", ErrUnsafePath, raw)}
		}

		if file.FileInfo().IsDir() || strings.HasSuffix(raw, "/") {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		}

		diskName := uniqueName(filepath.ToSlash(relPath), taken)
		destPath = filepath.Join(root, filepath.FromSlash(diskName))
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create parent directory: %w", err)
		}
		if err := extractFile(file, destPath, limit); err != nil {
			return nil, err
		}
		members = append(members, member{name: filepath.ToSlash(relPath), diskName: diskName, localPath: destPath})
	}
	return members, nil
}

// memberName returns the member's name as UTF-8. Archivers that do not set
// the UTF-8 flag write names in the DOS code page.
func memberName(file *zip.File) string {
	if utf8.ValidString(file.Name) {
		return file.Name
	}
	decoded, err := charmap.CodePage437.NewDecoder().String(file.Name)
	if err != nil {
		return strings.ToValidUTF8(file.Name, "_")
	}
	return decoded
}

// uniqueName returns name, or name with a ~N suffix on its stem when an
// earlier member already claimed it. Names are compared case-insensitively
// so the result is the same on case-folding filesystems.
func uniqueName(name string, taken map[string]bool) string {
	candidate := name
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; taken[strings.ToLower(candidate)]; n++ {
		candidate = stem + "~" + strconv.Itoa(n) + ext
	}
	taken[strings.ToLower(candidate)] = true
	return candidate
}

// extractFile copies one member to destPath.
func extractFile(file *zip.File, destPath string, limit int64) error {
	rc, err := file.Open()
	if err != nil {
		return &artifact.CorruptArchiveError{Cause: fmt.Errorf("failed to open %s: %w", file.Name, err)}
	}
	defer rc.Close()

	destFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", file.Name, err)
	}
	defer destFile.Close()

	var src io.Reader = rc
	if limit > 0 {
		src = io.LimitReader(rc, limit+1)
	}
	if _, err := io.Copy(destFile, src); err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return fmt.Errorf("failed to extract %s: %w", file.Name, err)
		}
		return &artifact.CorruptArchiveError{Cause: fmt.Errorf("failed to read %s: %w", file.Name, err)}
	}
	return nil
}

// readSample returns up to n leading bytes of the file at p.
func readSample(p string, n int) ([]byte, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}
