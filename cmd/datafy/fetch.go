// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/datafy/datafy/internal/bounded"
	"github.com/datafy/datafy/internal/config"
	"github.com/datafy/datafy/internal/issue"
	"github.com/datafy/datafy/pkg/artifact"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

type fetchOptions struct {
	sizeLimit   int64
	deadline    time.Duration
	mode        string
	explicit    string
	concurrency int
	format      string
	metricsFile string
	explain     bool
}

func newFetchCommand(app *App) *cobra.Command {
	opts := fetchOptions{}

	fetchCmd := &cobra.Command{
		Use:   "fetch <uri>...",
		Short: "Fetch resources and list the artifacts they contain",
		Long: `Fetch each URI under a deadline and list the artifacts it yields.

URIs may be http(s) URLs, file: URIs or local paths. Each fetch runs in its
own worker process (or goroutine with --mode inprocess) and is stopped when
the deadline elapses. The exit status is 1 when any resource failed or
timed out.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd.Context(), app, opts, args)
		},
	}

	flags := fetchCmd.Flags()
	flags.Int64Var(&opts.sizeLimit, "size-limit", -1, "maximum resource size in bytes, 0 for unlimited (default from config)")
	flags.DurationVar(&opts.deadline, "deadline", 0, "wall-clock deadline per resource (default from config)")
	flags.StringVar(&opts.mode, "mode", "", "isolation mode: process or inprocess (default from config)")
	flags.StringVar(&opts.explicit, "type", "", "skip type detection: mime:ext or ext")
	flags.IntVarP(&opts.concurrency, "concurrency", "j", defaultConcurrency, "resources fetched at once")
	flags.StringVarP(&opts.format, "format", "o", string(formatTable), "output format: table, json, yaml or toml")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")
	flags.BoolVar(&opts.explain, "explain", false, "print a remediation guide for each kind of failure")

	return fetchCmd
}

func runFetch(ctx context.Context, app *App, opts fetchOptions, uris []string) error {
	format, err := parseFormat(opts.format)
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}
	if opts.concurrency < 1 {
		return &ExitError{Code: ExitUsage, Err: fmt.Errorf("--concurrency must be at least 1, got %d", opts.concurrency)}
	}
	explicit, err := parseExplicitType(opts.explicit)
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}

	loaded, err := app.loadConfig(ctx)
	if err != nil {
		fmt.Fprintln(app.stderr, formatErrorForDisplay(err, app.verbose))
		return &ExitError{Code: ExitUsage, Err: err}
	}
	cfg := loaded.Config
	logger := app.logger(cfg)

	settings, err := resolveSettings(cfg, opts)
	if err != nil {
		return &ExitError{Code: ExitUsage, Err: err}
	}

	registry := prometheus.NewRegistry()
	metrics, err := bounded.NewMetrics(registry)
	if err != nil {
		return err
	}
	executor, err := app.newExecutor(cfg, settings.mode, metrics, logger)
	if err != nil {
		return issue.WrapWithOperation(err, "start the fetch executor")
	}

	logger.Debug("fetching", "resources", len(uris), "mode", settings.mode, "deadline", settings.deadline, "config", loaded.Path)

	reports := make([]report, len(uris))
	var g errgroup.Group
	g.SetLimit(opts.concurrency)
	for i, uri := range uris {
		g.Go(func() error {
			req := artifact.NewRequest(uri, settings.sizeLimit)
			if explicit != nil {
				req = req.WithExplicitType(*explicit)
			}
			reports[i] = newReport(uri, executor.Run(ctx, req, settings.deadline))
			return nil
		})
	}
	_ = g.Wait()

	if err := writeReports(app.stdout, format, reports); err != nil {
		return err
	}

	if opts.metricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.metricsFile, registry); err != nil {
			wrapped := issue.WrapWithContext(err, "write metrics", opts.metricsFile)
			fmt.Fprintln(app.stderr, formatErrorForDisplay(wrapped, app.verbose))
			return wrapped
		}
	}

	failed := slices.ContainsFunc(reports, func(r report) bool { return r.Status != artifact.StatusOK })
	if opts.explain && failed {
		explainFailures(app, reports)
	}
	if failed {
		return &ExitError{Code: ExitFetchFailed, Err: errors.New("one or more resources did not yield artifacts")}
	}
	return nil
}

type fetchSettings struct {
	sizeLimit int64
	deadline  time.Duration
	mode      bounded.Mode
}

// resolveSettings layers flags over configuration.
func resolveSettings(cfg *config.Config, opts fetchOptions) (fetchSettings, error) {
	s := fetchSettings{
		sizeLimit: cfg.Fetch.SizeLimit,
		deadline:  cfg.Bounded.Deadline,
	}
	if opts.sizeLimit >= 0 {
		s.sizeLimit = opts.sizeLimit
	}
	if opts.deadline != 0 {
		if opts.deadline < 0 {
			return s, fmt.Errorf("--deadline must be positive, got %s", opts.deadline)
		}
		s.deadline = opts.deadline
	}

	modeName := string(cfg.Bounded.Mode)
	if opts.mode != "" {
		modeName = opts.mode
	}
	mode, err := bounded.ParseMode(modeName)
	if err != nil {
		return s, err
	}
	s.mode = mode
	return s, nil
}

// parseExplicitType accepts "mime:ext" or a bare extension.
func parseExplicitType(s string) (*artifact.TypeHint, error) {
	if s == "" {
		return nil, nil
	}
	mime, ext, found := strings.Cut(s, ":")
	if !found {
		mime, ext = "", s
	}
	hint := artifact.NewTypeHint(mime, ext)
	if err := hint.Validate(); err != nil {
		return nil, fmt.Errorf("--type %q: %w", s, err)
	}
	return &hint, nil
}

// explainFailures renders one guide per distinct failure kind to stderr.
func explainFailures(app *App, reports []report) {
	seen := map[issue.Id]bool{}
	for _, r := range reports {
		iss := issue.ForOutcome(r.outcome)
		if iss == nil || seen[iss.Id()] {
			continue
		}
		seen[iss.Id()] = true
		rendered, err := iss.Render("")
		if err != nil {
			rendered = string(iss.MarkdownMsg())
		}
		fmt.Fprint(app.stderr, rendered)
	}
}
