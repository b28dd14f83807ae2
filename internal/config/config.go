// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/datafy/datafy/internal/issue"
	"github.com/datafy/datafy/pkg/cueutil"
	"github.com/datafy/datafy/pkg/platform"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "datafy"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides (DATAFY_FETCH_SIZE_LIMIT).
	EnvPrefix = "DATAFY"

	// keyDelimiter replaces viper's "." so MIME override keys such as
	// "application/vnd.ms-excel" stay single keys.
	keyDelimiter = "::"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the datafy configuration directory: %APPDATA% on
// Windows, ~/Library/Application Support on macOS and $XDG_CONFIG_HOME
// (default ~/.config) elsewhere.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case platform.Windows:
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case platform.Darwin:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// ConfigFilePath returns the default config file location.
func ConfigFilePath() (string, error) {
	cfgDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt), nil
}

func key(parts ...string) string {
	return strings.Join(parts, keyDelimiter)
}

func newViper() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))

	defaults := DefaultConfig()
	v.SetDefault(key("http", "user_agent"), defaults.HTTP.UserAgent)
	v.SetDefault(key("http", "head_timeout"), defaults.HTTP.HeadTimeout)
	v.SetDefault(key("http", "get_timeout"), defaults.HTTP.GetTimeout)
	v.SetDefault(key("fetch", "size_limit"), defaults.Fetch.SizeLimit)
	v.SetDefault(key("fetch", "sniff_bytes"), defaults.Fetch.SniffBytes)
	v.SetDefault(key("fetch", "max_archive_depth"), defaults.Fetch.MaxArchiveDepth)
	v.SetDefault(key("fetch", "scratch_dir"), defaults.Fetch.ScratchDir)
	v.SetDefault(key("bounded", "deadline"), defaults.Bounded.Deadline)
	v.SetDefault(key("bounded", "mode"), string(defaults.Bounded.Mode))
	v.SetDefault("mime_overrides", defaults.MIMEOverrides)
	v.SetDefault(key("log", "level"), string(defaults.Log.Level))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()

	return v
}

// loadWithOptions loads configuration without touching package state.
// It returns the config and the path of the file that was merged, if any.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := newViper()

	resolvedPath, err := locate(opts)
	if err != nil {
		return nil, "", err
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestions(
					"Check that the file contains valid CUE syntax",
					"Verify the configuration values match the expected schema",
					"Run 'datafy config show' to see the effective configuration",
				).
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.MIMEOverrides == nil {
		cfg.MIMEOverrides = map[string]string{}
	}

	// Environment overrides bypass the CUE schema.
	if valid, errs := cfg.IsValid(); !valid {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Check DATAFY_* environment variables for malformed values").
			Wrap(errs[0]).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

// locate resolves which config file to load. An explicit path must exist;
// otherwise the config directory and then the working directory are tried,
// and "" means defaults only.
func locate(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestions(
					"Verify the file path is correct",
					"Run 'datafy config init' to create a default configuration",
				).
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	cfgDir := opts.ConfigDirPath
	if cfgDir == "" {
		dir, err := ConfigDir()
		if err != nil {
			return "", err
		}
		cfgDir = dir
	}

	if cuePath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt); fileExists(cuePath) {
		return cuePath, nil
	}
	if localCuePath := ConfigFileName + "." + ConfigFileExt; fileExists(localCuePath) {
		return localCuePath, nil
	}
	return "", nil
}

// loadCUEIntoViper parses a CUE file, validates it against #Config and
// merges it into v. Fields are optional, so validation is non-concrete and
// the result is decoded to a map rather than a struct.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return err
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return cueutil.FormatError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return cueutil.FormatError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default config file unless one exists. It
// returns the file path and whether it was written.
func CreateDefaultConfig() (string, bool, error) {
	cfgPath, err := ConfigFilePath()
	if err != nil {
		return "", false, err
	}

	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, false, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write config file: %w", err)
	}

	return cfgPath, true, nil
}

// GenerateCUE renders cfg as a config.cue document accepted by #Config.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// datafy configuration\n\n")

	sb.WriteString("http: {\n")
	fmt.Fprintf(&sb, "\tuser_agent:   %q\n", cfg.HTTP.UserAgent)
	fmt.Fprintf(&sb, "\thead_timeout: %q\n", cfg.HTTP.HeadTimeout.String())
	fmt.Fprintf(&sb, "\tget_timeout:  %q\n", cfg.HTTP.GetTimeout.String())
	sb.WriteString("}\n")

	sb.WriteString("\nfetch: {\n")
	sb.WriteString("\t// bytes, 0 disables the limit\n")
	fmt.Fprintf(&sb, "\tsize_limit:        %d\n", cfg.Fetch.SizeLimit)
	fmt.Fprintf(&sb, "\tsniff_bytes:       %d\n", cfg.Fetch.SniffBytes)
	fmt.Fprintf(&sb, "\tmax_archive_depth: %d\n", cfg.Fetch.MaxArchiveDepth)
	fmt.Fprintf(&sb, "\tscratch_dir:       %q\n", cfg.Fetch.ScratchDir)
	sb.WriteString("}\n")

	sb.WriteString("\nbounded: {\n")
	fmt.Fprintf(&sb, "\tdeadline: %q\n", cfg.Bounded.Deadline.String())
	fmt.Fprintf(&sb, "\tmode:     %q\n", cfg.Bounded.Mode)
	sb.WriteString("}\n")

	if len(cfg.MIMEOverrides) > 0 {
		sb.WriteString("\nmime_overrides: {\n")
		for _, mime := range slices.Sorted(maps.Keys(cfg.MIMEOverrides)) {
			fmt.Fprintf(&sb, "\t%q: %q\n", mime, cfg.MIMEOverrides[mime])
		}
		sb.WriteString("}\n")
	}

	sb.WriteString("\nlog: {\n")
	fmt.Fprintf(&sb, "\tlevel: %q\n", cfg.Log.Level)
	sb.WriteString("}\n")

	return sb.String()
}
