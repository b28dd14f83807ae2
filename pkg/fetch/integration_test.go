// SPDX-License-Identifier: MPL-2.0

//go:build integration

package fetch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/datafy/datafy/internal/testutil"
	"github.com/datafy/datafy/pkg/artifact"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// dockerAvailable reports whether testcontainers can reach a Docker
// provider; provider detection may panic on hosts without one.
func dockerAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}
	defer provider.Close()
	return true
}

// startFixtureServer serves files from an nginx container so that the
// pipeline sees a real server's content types and framing.
func startFixtureServer(t *testing.T, files map[string][]byte) string {
	t.Helper()

	hostDir := t.TempDir()
	var containerFiles []testcontainers.ContainerFile
	for name, body := range files {
		hostPath := filepath.Join(hostDir, name)
		if err := os.WriteFile(hostPath, body, 0o644); err != nil {
			t.Fatal(err)
		}
		containerFiles = append(containerFiles, testcontainers.ContainerFile{
			HostFilePath:      hostPath,
			ContainerFilePath: "/usr/share/nginx/html/" + name,
			FileMode:          0o644,
		})
	}

	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nginx:1.27-alpine",
			ExposedPorts: []string{"80/tcp"},
			Files:        containerFiles,
			WaitingFor:   wait.ForHTTP("/").WithPort("80/tcp").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, c)
	if err != nil {
		t.Fatalf("starting nginx: %v", err)
	}

	endpoint, err := c.PortEndpoint(ctx, "80/tcp", "http")
	if err != nil {
		t.Fatalf("resolving endpoint: %v", err)
	}
	return endpoint
}

func TestFetchFromNginx(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !dockerAvailable() {
		t.Skip("skipping integration test: docker provider not available")
	}

	bundle := testutil.BuildZip(t,
		testutil.ZipEntry{Name: "stations.json", Body: []byte(`[{"id":1},{"id":2}]`)},
		testutil.ZipEntry{Name: "readings/2025.csv", Body: []byte("id,value\n1,3.5\n2,4.0\n")},
		testutil.ZipEntry{Name: "shape.geojson", Body: []byte(`{"type":"FeatureCollection","features":[]}`)},
	)
	base := startFixtureServer(t, map[string][]byte{
		"bundle.zip":    bundle,
		"metadata.json": []byte(`{"title":"Air quality","rows":2}`),
	})

	p, scratch := newTestPipeline(t)
	ctx := context.Background()

	t.Run("json document", func(t *testing.T) {
		out := p.Fetch(ctx, base+"/metadata.json", 1<<20)
		if !out.IsOK() || len(out.Artifacts) != 1 {
			t.Fatalf("outcome = %s", out)
		}
		if got := out.Artifacts[0]; got.Extension != "json" || got.PayloadKind() != artifact.PayloadJSON {
			t.Errorf("artifact = %s", &got)
		}
	})

	t.Run("zip bundle", func(t *testing.T) {
		out := p.Fetch(ctx, base+"/bundle.zip", 1<<20)
		if !out.IsOK() || len(out.EntryFailures) != 0 {
			t.Fatalf("outcome = %s, failures = %v", out, out.EntryFailures)
		}
		var hints []string
		for _, a := range out.Artifacts {
			hints = append(hints, a.PathHint)
		}
		slices.Sort(hints)
		want := []string{"readings/2025.csv", "shape.geojson", "stations.json"}
		if !slices.Equal(hints, want) {
			t.Errorf("path hints = %v, want %v", hints, want)
		}
		assertNoScratch(t, scratch)
	})

	t.Run("size limit from HEAD", func(t *testing.T) {
		out := p.Fetch(ctx, base+"/bundle.zip", 16)
		if !out.IsFailed() || out.Kind != artifact.KindTooLarge {
			t.Errorf("outcome = %s, want too_large", out)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		out := p.Fetch(ctx, base+"/nope.csv", 0)
		if !out.IsFailed() || out.Kind != artifact.KindHTTPStatus {
			t.Errorf("outcome = %s, want http_status", out)
		}
	})
}
