// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/datafy/datafy/internal/issue"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	t.Parallel()

	loaded, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Path != "" {
		t.Errorf("Path = %q, want empty", loaded.Path)
	}

	cfg := loaded.Config
	want := DefaultConfig()
	if cfg.HTTP != want.HTTP {
		t.Errorf("HTTP = %+v, want %+v", cfg.HTTP, want.HTTP)
	}
	if cfg.Fetch != want.Fetch {
		t.Errorf("Fetch = %+v, want %+v", cfg.Fetch, want.Fetch)
	}
	if cfg.Bounded != want.Bounded {
		t.Errorf("Bounded = %+v, want %+v", cfg.Bounded, want.Bounded)
	}
	if cfg.Log.Level != LogLevelInfo {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.MIMEOverrides == nil || len(cfg.MIMEOverrides) != 0 {
		t.Errorf("MIMEOverrides = %v, want empty map", cfg.MIMEOverrides)
	}
}

func TestLoad_CUEFileFromConfigDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, `
http: get_timeout: "2m"
fetch: {
	size_limit:        1048576
	max_archive_depth: 3
}
bounded: {
	deadline: "5s"
	mode:     "inprocess"
}
mime_overrides: {
	"application/vnd.ms-excel": "xls"
	"text/x-comma-separated-values": "csv"
}
log: level: "debug"
`)

	loaded, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Path != path {
		t.Errorf("Path = %q, want %q", loaded.Path, path)
	}

	cfg := loaded.Config
	if cfg.HTTP.GetTimeout != 2*time.Minute {
		t.Errorf("GetTimeout = %s, want 2m", cfg.HTTP.GetTimeout)
	}
	if cfg.HTTP.HeadTimeout != time.Second {
		t.Errorf("HeadTimeout = %s, default should survive a partial file", cfg.HTTP.HeadTimeout)
	}
	if cfg.Fetch.SizeLimit != 1048576 || cfg.Fetch.MaxArchiveDepth != 3 {
		t.Errorf("Fetch = %+v", cfg.Fetch)
	}
	if cfg.Fetch.SniffBytes != DefaultConfig().Fetch.SniffBytes {
		t.Errorf("SniffBytes = %d, want default", cfg.Fetch.SniffBytes)
	}
	if cfg.Bounded.Deadline != 5*time.Second || cfg.Bounded.Mode != WorkerModeInProcess {
		t.Errorf("Bounded = %+v", cfg.Bounded)
	}
	if got := cfg.MIMEOverrides["application/vnd.ms-excel"]; got != "xls" {
		t.Errorf("dotted MIME key lost: overrides = %v", cfg.MIMEOverrides)
	}
	if got := cfg.MIMEOverrides["text/x-comma-separated-values"]; got != "csv" {
		t.Errorf("overrides = %v", cfg.MIMEOverrides)
	}
	if cfg.Log.Level != LogLevelDebug {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoad_SchemaRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"negative depth", `fetch: max_archive_depth: -1`, "fetch.max_archive_depth"},
		{"unknown mode", `bounded: mode: "thread"`, "bounded.mode"},
		{"malformed duration", `bounded: deadline: "soon"`, "bounded.deadline"},
		{"extension with dot", `mime_overrides: "text/csv": ".csv"`, "mime_overrides"},
		{"unknown field", `retries: 3`, "retries"},
		{"syntax error", `fetch: {`, "config.cue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			path := writeConfig(t, dir, tt.content)

			_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
			if err == nil {
				t.Fatal("Load() should reject the file")
			}
			var ae *issue.ActionableError
			if !errors.As(err, &ae) || ae.Operation != "load configuration" {
				t.Errorf("error = %v, want an actionable load error", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error should mention %q, got: %v", tt.field, err)
			}
		})
	}
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "nope.cue")
	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: missing})
	if err == nil {
		t.Fatal("Load() should fail for a missing explicit file")
	}
	var ae *issue.ActionableError
	if !errors.As(err, &ae) || !ae.HasSuggestions() {
		t.Errorf("error = %v, want actionable error with suggestions", err)
	}
}

func TestLoad_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewProvider().Load(ctx, LoadOptions{ConfigDirPath: t.TempDir()}); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

// Not parallel: t.Setenv.
func TestLoad_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `fetch: size_limit: 100`)

	t.Setenv("DATAFY_FETCH_SIZE_LIMIT", "2048")
	t.Setenv("DATAFY_BOUNDED_DEADLINE", "750ms")

	loaded, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Config.Fetch.SizeLimit != 2048 {
		t.Errorf("SizeLimit = %d, env should win over the file", loaded.Config.Fetch.SizeLimit)
	}
	if loaded.Config.Bounded.Deadline != 750*time.Millisecond {
		t.Errorf("Deadline = %s, want 750ms", loaded.Config.Bounded.Deadline)
	}
}

// Not parallel: t.Setenv.
func TestLoad_InvalidEnvironmentOverride(t *testing.T) {
	t.Setenv("DATAFY_BOUNDED_MODE", "fork")

	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if !errors.Is(err, ErrInvalidWorkerMode) {
		t.Errorf("Load() error = %v, want ErrInvalidWorkerMode", err)
	}
}

func TestGenerateCUE_RoundTrip(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Fetch.SizeLimit = 5 << 20
	cfg.Bounded.Deadline = 90 * time.Second
	cfg.MIMEOverrides = map[string]string{
		"application/x-zip-compressed": "zip",
		"application/vnd.ms-excel":     "xls",
	}

	content := GenerateCUE(cfg)
	if strings.Index(content, "application/vnd.ms-excel") > strings.Index(content, "application/x-zip-compressed") {
		t.Error("overrides should be written in sorted order")
	}

	dir := t.TempDir()
	path := writeConfig(t, dir, content)
	loaded, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("generated config does not load: %v\n%s", err, content)
	}
	got := loaded.Config
	if got.Fetch != cfg.Fetch || got.Bounded != cfg.Bounded || got.HTTP != cfg.HTTP {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, cfg)
	}
	if len(got.MIMEOverrides) != 2 || got.MIMEOverrides["application/vnd.ms-excel"] != "xls" {
		t.Errorf("MIMEOverrides = %v", got.MIMEOverrides)
	}
}

// Not parallel: mutates the config dir override.
func TestCreateDefaultConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", AppName)
	SetConfigDirOverride(dir)
	t.Cleanup(Reset)

	path, created, err := CreateDefaultConfig()
	if err != nil {
		t.Fatalf("CreateDefaultConfig() error: %v", err)
	}
	if !created || path != filepath.Join(dir, "config.cue") {
		t.Errorf("CreateDefaultConfig() = %q, %v", path, created)
	}

	if err := os.WriteFile(path, []byte(`log: level: "warn"`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, created, err = CreateDefaultConfig(); err != nil || created {
		t.Errorf("second call = created %v, err %v; existing file must be kept", created, err)
	}

	loaded, err := NewProvider().Load(context.Background(), LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Config.Log.Level != LogLevelWarn || loaded.Path != path {
		t.Errorf("Load() = level %q from %q", loaded.Config.Log.Level, loaded.Path)
	}
}
