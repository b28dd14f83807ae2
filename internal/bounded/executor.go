// SPDX-License-Identifier: MPL-2.0

package bounded

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/datafy/datafy/internal/codec"
	"github.com/datafy/datafy/pkg/artifact"

	"github.com/charmbracelet/log"
)

const (
	// ModeProcess runs every call in a worker subprocess.
	ModeProcess Mode = "process"
	// ModeInProcess runs every call on a goroutine.
	ModeInProcess Mode = "inprocess"

	// DefaultWaitDelay is how long a killed worker's pipes may stay open.
	DefaultWaitDelay = 100 * time.Millisecond

	workerScratchPattern = ".datafy-worker-*"
	maxStderrInError     = 2048
)

var (
	// ErrInvalidMode is returned for an unknown execution mode.
	ErrInvalidMode = errors.New("invalid execution mode")
	// ErrInvalidDeadline is returned for a non-positive deadline.
	ErrInvalidDeadline = errors.New("deadline must be positive")

	// DefaultWorkerArgs re-enter the datafy binary as a fetch worker.
	DefaultWorkerArgs = []string{"internal", "fetch-worker"}
)

type (
	// Mode selects how a bounded call is isolated.
	Mode string

	// Executor runs fetches under a deadline. It keeps no per-call state
	// and may be used from many goroutines at once.
	Executor struct {
		mode       Mode
		runner     Runner
		workerPath string
		workerArgs []string
		workerEnv  []string
		scratchDir string
		waitDelay  time.Duration
		metrics    *Metrics
		logger     *log.Logger
	}

	// Option configures an Executor.
	Option func(*Executor)
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeProcess, ModeInProcess:
		return m, nil
	case "":
		return ModeProcess, nil
	default:
		return "", fmt.Errorf("%w: %q (expected %s or %s)", ErrInvalidMode, s, ModeProcess, ModeInProcess)
	}
}

// WithMode sets the execution mode.
func WithMode(m Mode) Option {
	return func(e *Executor) {
		e.mode = m
	}
}

// WithRunner sets the pipeline used in in-process mode.
func WithRunner(r Runner) Option {
	return func(e *Executor) {
		e.runner = r
	}
}

// WithWorkerCommand sets the binary and arguments that start a worker.
func WithWorkerCommand(path string, args ...string) Option {
	return func(e *Executor) {
		e.workerPath = path
		e.workerArgs = args
	}
}

// WithWorkerEnv adds KEY=VALUE pairs to the worker environment.
func WithWorkerEnv(env ...string) Option {
	return func(e *Executor) {
		e.workerEnv = append(e.workerEnv, env...)
	}
}

// WithScratchDir sets where per-worker scratch directories are created.
func WithScratchDir(dir string) Option {
	return func(e *Executor) {
		e.scratchDir = dir
	}
}

// WithWaitDelay bounds how long a killed worker's output pipes are drained.
func WithWaitDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.waitDelay = d
		}
	}
}

// WithMetrics records every outcome in m.
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Executor. Process mode defaults to re-executing the
// current binary; in-process mode requires a Runner.
func New(opts ...Option) (*Executor, error) {
	e := &Executor{
		mode:       ModeProcess,
		workerArgs: DefaultWorkerArgs,
		waitDelay:  DefaultWaitDelay,
		logger:     log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(e)
	}

	switch e.mode {
	case ModeProcess:
		if e.workerPath == "" {
			self, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("locating worker binary: %w", err)
			}
			e.workerPath = self
		}
	case ModeInProcess:
		if e.runner == nil {
			return nil, errors.New("in-process mode requires a runner")
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, e.mode)
	}
	return e, nil
}

// Mode returns the execution mode.
func (e *Executor) Mode() Mode {
	return e.mode
}

// FetchBounded fetches uri with at most deadline of wall-clock time.
func (e *Executor) FetchBounded(ctx context.Context, uri string, sizeLimit int64, deadline time.Duration) artifact.Outcome {
	return e.Run(ctx, artifact.NewRequest(uri, sizeLimit), deadline)
}

// Run executes req and returns exactly one outcome. When the deadline
// elapses the unit of work is abandoned or killed and TimedOut is returned.
func (e *Executor) Run(ctx context.Context, req artifact.Request, deadline time.Duration) artifact.Outcome {
	start := time.Now()

	var out artifact.Outcome
	switch err := validate(req, deadline); {
	case err != nil:
		out = artifact.Failed(err)
	case e.mode == ModeInProcess:
		out = e.runInProcess(ctx, req, deadline)
	default:
		out = e.runProcess(ctx, req, deadline)
	}

	elapsed := time.Since(start)
	e.metrics.Observe(e.mode, out, elapsed)
	switch out.Status {
	case artifact.StatusTimedOut:
		e.logger.Info("fetch timed out", "uri", req.URI, "deadline", deadline, "mode", e.mode)
	case artifact.StatusFailed:
		e.logger.Debug("fetch failed", "uri", req.URI, "kind", out.Kind, "error", out.Err, "elapsed", elapsed)
	default:
		e.logger.Debug("fetch finished", "uri", req.URI, "artifacts", len(out.Artifacts), "elapsed", elapsed)
	}
	return out
}

func (e *Executor) runInProcess(ctx context.Context, req artifact.Request, deadline time.Duration) artifact.Outcome {
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	done := make(chan artifact.Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- artifact.Failed(fmt.Errorf("fetch panicked: %v", r))
			}
		}()
		done <- artifact.FromResult(e.runner.Do(runCtx, req))
	}()

	select {
	case out := <-done:
		if out.IsFailed() && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return artifact.TimedOut()
		}
		return out
	case <-runCtx.Done():
		return expired(ctx, runCtx)
	}
}

func (e *Executor) runProcess(ctx context.Context, req artifact.Request, deadline time.Duration) artifact.Outcome {
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	base, err := filepath.Abs(cmp.Or(e.scratchDir, "."))
	if err != nil {
		return artifact.Failed(err)
	}
	// The worker extracts containers under its own directory, so a killed
	// worker cannot leave scratch data behind.
	scratch, err := os.MkdirTemp(base, workerScratchPattern)
	if err != nil {
		return artifact.Failed(err)
	}
	defer func() {
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			e.logger.Warn("failed to remove worker scratch directory", "path", scratch, "error", rmErr)
		}
	}()

	payload, err := codec.Marshal(WorkRequest{Request: req, ScratchDir: scratch})
	if err != nil {
		return artifact.Failed(fmt.Errorf("encoding work request: %w", err))
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, e.workerPath, e.workerArgs...)
	cmd.Env = append(os.Environ(), e.workerEnv...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = e.waitDelay

	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return expired(ctx, runCtx)
		}
		return artifact.Failed(&WorkerError{
			Kind:    artifact.KindInternal,
			Message: fmt.Sprintf("fetch worker: %v: %s", err, tail(stderr.String(), maxStderrInError)),
		})
	}

	var wire wireOutcome
	if err := codec.Unmarshal(stdout.Bytes(), &wire); err != nil {
		return artifact.Failed(&WorkerError{
			Kind:    artifact.KindInternal,
			Message: fmt.Sprintf("fetch worker: malformed outcome: %v", err),
		})
	}
	out, err := wire.outcome()
	if err != nil {
		return artifact.Failed(&WorkerError{Kind: artifact.KindInternal, Message: err.Error()})
	}
	return out
}

func validate(req artifact.Request, deadline time.Duration) error {
	if deadline <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDeadline, deadline)
	}
	return req.Validate()
}

// expired distinguishes our own deadline from cancellation by the caller.
func expired(parent, runCtx context.Context) artifact.Outcome {
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return artifact.TimedOut()
	}
	if err := parent.Err(); err != nil {
		return artifact.Failed(err)
	}
	return artifact.Failed(runCtx.Err())
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
