// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/datafy/datafy/pkg/archive"
	"github.com/datafy/datafy/pkg/artifact"
	"github.com/datafy/datafy/pkg/fetch"
	"github.com/datafy/datafy/pkg/typehint"
)

const (
	// WorkerModeProcess isolates each bounded fetch in a subprocess.
	WorkerModeProcess WorkerMode = "process"
	// WorkerModeInProcess runs bounded fetches on goroutines.
	// Defined locally to avoid coupling config to internal/bounded.
	WorkerModeInProcess WorkerMode = "inprocess"

	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"

	maxArchiveDepthLimit = 16
)

var (
	// ErrInvalidWorkerMode is returned when a WorkerMode value is not recognized.
	ErrInvalidWorkerMode = errors.New("invalid worker mode")
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidMIMEOverride is the sentinel wrapped by InvalidMIMEOverrideError.
	ErrInvalidMIMEOverride = errors.New("invalid MIME override")
	// ErrInvalidFetchConfig is the sentinel wrapped by InvalidFetchConfigError.
	ErrInvalidFetchConfig = errors.New("invalid fetch config")
	// ErrInvalidTimeout is returned for a non-positive timeout or deadline.
	ErrInvalidTimeout = errors.New("invalid timeout")
	// ErrInvalidConfig is the sentinel wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// WorkerMode selects how bounded fetches are isolated.
	WorkerMode string

	// InvalidWorkerModeError wraps ErrInvalidWorkerMode.
	InvalidWorkerModeError struct {
		Value WorkerMode
	}

	// LogLevel is the minimum level written by the CLI logger.
	LogLevel string

	// InvalidLogLevelError wraps ErrInvalidLogLevel.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidMIMEOverrideError is returned for an override entry whose MIME
	// type or extension is malformed.
	InvalidMIMEOverrideError struct {
		MIME      string
		Extension string
		Reason    string
	}

	// InvalidTimeoutError wraps ErrInvalidTimeout.
	InvalidTimeoutError struct {
		Field string
		Value time.Duration
	}

	// InvalidFetchConfigError collects field errors of a FetchConfig.
	InvalidFetchConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError collects field errors from every section.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		HTTP    HTTPConfig    `json:"http" mapstructure:"http"`
		Fetch   FetchConfig   `json:"fetch" mapstructure:"fetch"`
		Bounded BoundedConfig `json:"bounded" mapstructure:"bounded"`
		// MIMEOverrides maps MIME types to extensions over the built-in table.
		MIMEOverrides map[string]string `json:"mime_overrides" mapstructure:"mime_overrides"`
		Log           LogConfig         `json:"log" mapstructure:"log"`
	}

	// HTTPConfig configures the remote transport.
	HTTPConfig struct {
		UserAgent   string        `json:"user_agent" mapstructure:"user_agent"`
		HeadTimeout time.Duration `json:"head_timeout" mapstructure:"head_timeout"`
		GetTimeout  time.Duration `json:"get_timeout" mapstructure:"get_timeout"`
	}

	// FetchConfig configures the fetch pipeline.
	FetchConfig struct {
		// SizeLimit is in bytes; 0 disables the limit.
		SizeLimit       int64 `json:"size_limit" mapstructure:"size_limit"`
		SniffBytes      int   `json:"sniff_bytes" mapstructure:"sniff_bytes"`
		MaxArchiveDepth int   `json:"max_archive_depth" mapstructure:"max_archive_depth"`
		// ScratchDir hosts archive extraction; empty means the working directory.
		ScratchDir string `json:"scratch_dir" mapstructure:"scratch_dir"`
	}

	// BoundedConfig configures the bounded executor.
	BoundedConfig struct {
		Deadline time.Duration `json:"deadline" mapstructure:"deadline"`
		Mode     WorkerMode    `json:"mode" mapstructure:"mode"`
	}

	LogConfig struct {
		Level LogLevel `json:"level" mapstructure:"level"`
	}
)

func (e *InvalidWorkerModeError) Error() string {
	return fmt.Sprintf("invalid worker mode %q (valid: %s, %s)", e.Value, WorkerModeProcess, WorkerModeInProcess)
}

func (e *InvalidWorkerModeError) Unwrap() error { return ErrInvalidWorkerMode }

func (m WorkerMode) String() string { return string(m) }

// IsValid returns whether m is a known mode.
func (m WorkerMode) IsValid() (bool, []error) {
	switch m {
	case WorkerModeProcess, WorkerModeInProcess:
		return true, nil
	default:
		return false, []error{&InvalidWorkerModeError{Value: m}}
	}
}

func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

func (l LogLevel) String() string { return string(l) }

// IsValid returns whether l is a known level.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

func (e *InvalidMIMEOverrideError) Error() string {
	return fmt.Sprintf("invalid MIME override %q: %q: %s", e.MIME, e.Extension, e.Reason)
}

func (e *InvalidMIMEOverrideError) Unwrap() error { return ErrInvalidMIMEOverride }

func (e *InvalidTimeoutError) Error() string {
	return fmt.Sprintf("%s: %s must be positive", e.Field, e.Value)
}

func (e *InvalidTimeoutError) Unwrap() error { return ErrInvalidTimeout }

// IsValid returns whether the timeouts are positive.
func (c HTTPConfig) IsValid() (bool, []error) {
	var errs []error
	if c.HeadTimeout <= 0 {
		errs = append(errs, &InvalidTimeoutError{Field: "http.head_timeout", Value: c.HeadTimeout})
	}
	if c.GetTimeout <= 0 {
		errs = append(errs, &InvalidTimeoutError{Field: "http.get_timeout", Value: c.GetTimeout})
	}
	return len(errs) == 0, errs
}

// IsValid checks the numeric bounds of a FetchConfig.
func (c FetchConfig) IsValid() (bool, []error) {
	var errs []error
	if c.SizeLimit < 0 {
		errs = append(errs, fmt.Errorf("fetch.size_limit: %d is negative", c.SizeLimit))
	}
	if c.SniffBytes <= 0 {
		errs = append(errs, fmt.Errorf("fetch.sniff_bytes: %d must be positive", c.SniffBytes))
	}
	if c.MaxArchiveDepth < 0 || c.MaxArchiveDepth > maxArchiveDepthLimit {
		errs = append(errs, fmt.Errorf("fetch.max_archive_depth: %d is outside [0, %d]", c.MaxArchiveDepth, maxArchiveDepthLimit))
	}
	if c.ScratchDir != "" && strings.TrimSpace(c.ScratchDir) == "" {
		errs = append(errs, errors.New("fetch.scratch_dir: whitespace-only path"))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidFetchConfigError{FieldErrors: errs}}
	}
	return true, nil
}

func (e *InvalidFetchConfigError) Error() string {
	return fmt.Sprintf("invalid fetch config: %s", errors.Join(e.FieldErrors...))
}

func (e *InvalidFetchConfigError) Unwrap() error { return ErrInvalidFetchConfig }

// IsValid checks the deadline and mode.
func (c BoundedConfig) IsValid() (bool, []error) {
	var errs []error
	if c.Deadline <= 0 {
		errs = append(errs, &InvalidTimeoutError{Field: "bounded.deadline", Value: c.Deadline})
	}
	if valid, fieldErrs := c.Mode.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	return len(errs) == 0, errs
}

// ValidateMIMEOverrides checks that every entry normalizes to a well-formed
// type hint.
func ValidateMIMEOverrides(overrides map[string]string) []error {
	var errs []error
	for mime, ext := range overrides {
		hint := artifact.NewTypeHint(mime, ext)
		if !strings.Contains(hint.MIME, "/") {
			errs = append(errs, &InvalidMIMEOverrideError{MIME: mime, Extension: ext, Reason: "MIME type must be type/subtype"})
			continue
		}
		if err := hint.Validate(); err != nil {
			errs = append(errs, &InvalidMIMEOverrideError{MIME: mime, Extension: ext, Reason: err.Error()})
		}
	}
	return errs
}

// IsValid returns whether every section of c is valid.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := c.HTTP.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Fetch.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := c.Bounded.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	errs = append(errs, ValidateMIMEOverrides(c.MIMEOverrides)...)
	if valid, fieldErrs := c.Log.Level.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s", errors.Join(e.FieldErrors...))
}

// Unwrap exposes ErrInvalidConfig and every field error to errors.Is.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			UserAgent:   fetch.DefaultUserAgent,
			HeadTimeout: fetch.DefaultHeadTimeout,
			GetTimeout:  fetch.DefaultGetTimeout,
		},
		Fetch: FetchConfig{
			SizeLimit:       0,
			SniffBytes:      typehint.DefaultSniffLimit,
			MaxArchiveDepth: archive.DefaultMaxDepth,
			ScratchDir:      "",
		},
		Bounded: BoundedConfig{
			Deadline: time.Minute,
			Mode:     WorkerModeProcess,
		},
		MIMEOverrides: map[string]string{},
		Log:           LogConfig{Level: LogLevelInfo},
	}
}
