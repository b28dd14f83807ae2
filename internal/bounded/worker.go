// SPDX-License-Identifier: MPL-2.0

package bounded

import (
	"context"
	"fmt"
	"io"

	"github.com/datafy/datafy/internal/codec"
	"github.com/datafy/datafy/pkg/artifact"
)

type (
	// Runner runs one fetch to completion. *fetch.Pipeline implements it.
	Runner interface {
		Do(ctx context.Context, req artifact.Request) (*artifact.Result, error)
	}

	// RunnerFactory builds the runner a worker uses, rooted at the scratch
	// directory the executor allocated for it.
	RunnerFactory func(scratchDir string) (Runner, error)
)

// ServeWorker is the worker side of process mode: it reads one WorkRequest
// from in, runs it, and writes the outcome to out. Failures of the fetch
// itself are part of the outcome; the returned error only reports protocol
// problems.
func ServeWorker(ctx context.Context, in io.Reader, out io.Writer, newRunner RunnerFactory) error {
	var req WorkRequest
	if err := codec.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("reading work request: %w", err)
	}

	runner, err := newRunner(req.ScratchDir)
	if err != nil {
		return fmt.Errorf("building fetch pipeline: %w", err)
	}

	outcome := artifact.FromResult(runner.Do(ctx, req.Request))
	wire, err := toWire(outcome)
	if err != nil {
		wire, _ = toWire(artifact.Failed(err))
	}
	if err := codec.NewEncoder(out).Encode(wire); err != nil {
		return fmt.Errorf("writing outcome: %w", err)
	}
	return nil
}
