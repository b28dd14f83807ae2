// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/datafy/datafy/pkg/archive"
	"github.com/datafy/datafy/pkg/artifact"
	"github.com/datafy/datafy/pkg/materialize"
	"github.com/datafy/datafy/pkg/typehint"

	"github.com/charmbracelet/log"
	"github.com/zeebo/blake3"
)

const (
	// DefaultHeadTimeout bounds the HEAD size check.
	DefaultHeadTimeout = time.Second
	// DefaultGetTimeout bounds the body download.
	DefaultGetTimeout = 30 * time.Second
	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "datafy/0.1 (+https://github.com/datafy/datafy)"
)

type (
	// Pipeline composes size checks, download, type resolution, container
	// expansion and materialization. It is safe for concurrent use.
	Pipeline struct {
		client       *http.Client
		userAgent    string
		headTimeout  time.Duration
		getTimeout   time.Duration
		scratchDir   string
		maxDepth     int
		resolver     *typehint.Resolver
		materializer *materialize.Materializer
		expander     *archive.Expander
		logger       *log.Logger
	}

	// Option configures a Pipeline.
	Option func(*Pipeline)

	// body is a fetched payload before type resolution.
	body struct {
		data      []byte
		header    http.Header
		localPath string
		charset   string
	}
)

// WithHTTPClient sets the client used for HEAD and GET.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.client = c
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(p *Pipeline) {
		if ua != "" {
			p.userAgent = ua
		}
	}
}

// WithHeadTimeout bounds the HEAD size check.
func WithHeadTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.headTimeout = d
		}
	}
}

// WithGetTimeout bounds the GET download, body included.
func WithGetTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.getTimeout = d
		}
	}
}

// WithScratchDir sets where container members are extracted.
func WithScratchDir(dir string) Option {
	return func(p *Pipeline) {
		p.scratchDir = dir
	}
}

// WithMaxArchiveDepth sets the deepest nested container that is expanded.
func WithMaxArchiveDepth(depth int) Option {
	return func(p *Pipeline) {
		if depth >= 0 {
			p.maxDepth = depth
		}
	}
}

// WithResolver replaces the type resolver.
func WithResolver(r *typehint.Resolver) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.resolver = r
		}
	}
}

// WithMaterializer replaces the materializer.
func WithMaterializer(m *materialize.Materializer) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.materializer = m
		}
	}
}

// WithLogger sets the logger shared with the expander and materializer.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		client:      &http.Client{},
		userAgent:   DefaultUserAgent,
		headTimeout: DefaultHeadTimeout,
		getTimeout:  DefaultGetTimeout,
		maxDepth:    archive.DefaultMaxDepth,
		resolver:    typehint.New(),
		logger:      log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.materializer == nil {
		p.materializer = materialize.New(materialize.WithLogger(p.logger))
	}
	p.expander = archive.New(p, p.resolver,
		archive.WithScratchDir(p.scratchDir),
		archive.WithMaxDepth(p.maxDepth),
		archive.WithLogger(p.logger),
	)
	return p
}

// Fetch resolves and fetches uri. It never panics and always returns
// exactly one outcome; deadlines are the caller's concern.
func (p *Pipeline) Fetch(ctx context.Context, uri string, sizeLimit int64) artifact.Outcome {
	return artifact.FromResult(p.Do(ctx, artifact.NewRequest(uri, sizeLimit)))
}

// Do runs the pipeline for one request. A non-container request yields
// exactly one artifact; a container yields one per member that succeeded,
// with the others listed as entry failures.
func (p *Pipeline) Do(ctx context.Context, req artifact.Request) (*artifact.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	b, err := p.load(ctx, req)
	if err != nil {
		return nil, err
	}

	explicit := req.ExplicitType
	if explicit == nil && b.localPath != "" {
		// Files on disk carry no headers; their name is the declared type.
		if h, ok := p.resolver.EntryHint(filepath.Base(b.localPath), b.data); ok {
			explicit = &h
		}
	}

	hint, err := p.resolver.Resolve(req.URI, explicit, b.header, b.data)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("resolved type", "uri", req.URI, "mime", hint.MIME, "extension", hint.Extension)

	if hint.IsContainer() {
		return p.expander.Expand(ctx, req, b.data)
	}

	m, err := p.materializer.Materialize(hint, materialize.Source{Data: b.data, LocalPath: b.localPath, Charset: b.charset})
	if err != nil {
		return nil, err
	}

	pathHint, err := p.pathHint(req)
	if err != nil {
		return nil, err
	}
	a := artifact.Artifact{
		Payload:   m.Payload,
		PathHint:  pathHint,
		MIME:      hint.MIME,
		Extension: hint.Extension,
		OriginURI: req.OriginURI(),
		Size:      int64(len(b.data)),
		Digest:    digest(b.data),
		Title:     m.Title,
	}
	return &artifact.Result{Artifacts: []artifact.Artifact{a}}, nil
}

// load reads the request body from the network or from disk.
func (p *Pipeline) load(ctx context.Context, req artifact.Request) (body, error) {
	if isRemote(req.URI) {
		return p.loadRemote(ctx, req)
	}
	return p.loadLocal(req)
}

func digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func tooLarge(uri string, size, limit int64) error {
	return &artifact.TooLargeError{URI: uri, Size: size, Limit: limit}
}

func exceeds(size, limit int64) bool {
	return limit > 0 && size > limit
}
