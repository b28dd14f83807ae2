// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/datafy/datafy/internal/bounded"
	"github.com/datafy/datafy/internal/codec"
	"github.com/datafy/datafy/pkg/artifact"
)

func TestFetchWorker_ServesOneRequest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	local := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(local, []byte(csvBody), 0o644); err != nil {
		t.Fatal(err)
	}

	payload, err := codec.Marshal(bounded.WorkRequest{
		Request:    artifact.NewRequest(local, 0),
		ScratchDir: t.TempDir(),
	})
	if err != nil {
		t.Fatal(err)
	}

	cfgPath := writeTestConfig(t, "")
	stdout, stderr, err := runCLI(t, string(payload), "--config", cfgPath, "internal", "fetch-worker")
	if err != nil {
		t.Fatalf("worker failed: %v\n%s", err, stderr)
	}

	var wire map[string]any
	if err := codec.Unmarshal([]byte(stdout), &wire); err != nil {
		t.Fatalf("worker output is not CBOR: %v", err)
	}
	if wire["status"] != string(artifact.StatusOK) {
		t.Errorf("status = %v, want ok (%v)", wire["status"], wire)
	}
	arts, ok := wire["artifacts"].([]any)
	if !ok || len(arts) != 1 {
		t.Errorf("artifacts = %v, want one", wire["artifacts"])
	}
}

func TestFetchWorker_RejectsGarbage(t *testing.T) {
	t.Parallel()

	cfgPath := writeTestConfig(t, "")
	if _, _, err := runCLI(t, "not cbor", "--config", cfgPath, "internal", "fetch-worker"); err == nil {
		t.Error("worker should fail on a malformed request")
	}
}
