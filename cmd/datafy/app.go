// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"os"

	"github.com/datafy/datafy/internal/bounded"
	"github.com/datafy/datafy/internal/config"
	"github.com/datafy/datafy/pkg/fetch"
	"github.com/datafy/datafy/pkg/materialize"
	"github.com/datafy/datafy/pkg/typehint"

	"github.com/charmbracelet/log"
)

type (
	// App is the composition root of the CLI. Command handlers receive it
	// and reach configuration and I/O only through it.
	App struct {
		Config config.Provider
		stdin  io.Reader
		stdout io.Writer
		stderr io.Writer

		configPath string
		verbose    bool
	}

	// Dependencies are the injection points for NewApp. Nil fields get
	// production defaults.
	Dependencies struct {
		Config config.Provider
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}
)

// NewApp builds an App from deps.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config: deps.Config,
		stdin:  deps.Stdin,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.stdin == nil {
		app.stdin = os.Stdin
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

func (a *App) loadConfig(ctx context.Context) (*config.Loaded, error) {
	return a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.configPath})
}

// logger writes to stderr at the configured level; --verbose forces debug.
func (a *App) logger(cfg *config.Config) *log.Logger {
	level, err := log.ParseLevel(string(cfg.Log.Level))
	if err != nil {
		level = log.InfoLevel
	}
	if a.verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(a.stderr, log.Options{
		Prefix:          "datafy",
		Level:           level,
		ReportTimestamp: true,
	})
}

// newPipeline builds the fetch pipeline described by cfg. scratchDir
// overrides fetch.scratch_dir when set.
func newPipeline(cfg *config.Config, logger *log.Logger, scratchDir string) *fetch.Pipeline {
	if scratchDir == "" {
		scratchDir = cfg.Fetch.ScratchDir
	}
	resolver := typehint.New(
		typehint.WithOverrides(cfg.MIMEOverrides),
		typehint.WithSniffLimit(cfg.Fetch.SniffBytes),
	)
	return fetch.New(
		fetch.WithUserAgent(cfg.HTTP.UserAgent),
		fetch.WithHeadTimeout(cfg.HTTP.HeadTimeout),
		fetch.WithGetTimeout(cfg.HTTP.GetTimeout),
		fetch.WithScratchDir(scratchDir),
		fetch.WithMaxArchiveDepth(cfg.Fetch.MaxArchiveDepth),
		fetch.WithResolver(resolver),
		fetch.WithMaterializer(materialize.New(materialize.WithLogger(logger))),
		fetch.WithLogger(logger),
	)
}

// newExecutor builds the bounded executor for mode. Process-mode workers
// are this binary re-entered with the same --config flag, so they resolve
// the same configuration.
func (a *App) newExecutor(cfg *config.Config, mode bounded.Mode, metrics *bounded.Metrics, logger *log.Logger) (*bounded.Executor, error) {
	opts := []bounded.Option{
		bounded.WithMode(mode),
		bounded.WithScratchDir(cfg.Fetch.ScratchDir),
		bounded.WithMetrics(metrics),
		bounded.WithLogger(logger),
	}

	switch mode {
	case bounded.ModeInProcess:
		opts = append(opts, bounded.WithRunner(newPipeline(cfg, logger, "")))
	default:
		self, err := os.Executable()
		if err != nil {
			return nil, err
		}
		args := append([]string(nil), bounded.DefaultWorkerArgs...)
		if a.configPath != "" {
			args = append([]string{"--config", a.configPath}, args...)
		}
		if a.verbose {
			args = append([]string{"--verbose"}, args...)
		}
		opts = append(opts, bounded.WithWorkerCommand(self, args...))
	}

	return bounded.New(opts...)
}
