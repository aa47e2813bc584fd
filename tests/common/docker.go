package common

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/testcontainers/testcontainers-go"
)

// imageBuild builds one build-container image at most once per test run.
type imageBuild struct {
	once       sync.Once
	err        error
	repo       string
	dockerfile string
}

var imageBuilds = map[string]*imageBuild{
	"maven":  {repo: "crab-maven", dockerfile: "tests/docker/Dockerfile.maven"},
	"gradle": {repo: "crab-gradle", dockerfile: "tests/docker/Dockerfile.gradle"},
}

// RequireDocker skips the test unless Docker-backed tests are enabled.
func RequireDocker(t *testing.T) {
	t.Helper()
	if os.Getenv("CRAB_TEST_DOCKER") != "true" {
		t.Skip("Docker tests disabled (set CRAB_TEST_DOCKER=true to enable)")
	}
}

// EnsureBuildImage builds the crab-maven or crab-gradle image from the
// Dockerfiles under tests/docker, keeping it for the whole test run. The
// refinement pipeline resolves these images by name.
func EnsureBuildImage(t *testing.T, system string) {
	t.Helper()

	build, ok := imageBuilds[system]
	if !ok {
		t.Fatalf("Unknown build system %q", system)
	}

	build.once.Do(func() {
		ctx := context.Background()

		req := testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				FromDockerfile: testcontainers.FromDockerfile{
					Context:    findProjectRoot(),
					Dockerfile: build.dockerfile,
					Repo:       build.repo,
					Tag:        "latest",
					KeepImage:  true,
				},
			},
		}

		// The container is only a vehicle for the image build; it is
		// created stopped and removed right away.
		container, err := testcontainers.GenericContainer(ctx, req)
		if container != nil {
			_ = container.Terminate(ctx)
		}
		build.err = err
	})
	if build.err != nil {
		t.Fatalf("Failed to build %s image: %v", build.repo, build.err)
	}
}

// WriteRepoArchive writes a tar.gz repository snapshot named name into
// dir, containing the given files, and returns its path. The evaluation
// pipeline extracts these archives before injecting submissions.
func WriteRepoArchive(t *testing.T, dir, name string, files map[string]string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create archive %s: %v", path, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		content := files[n]
		hdr := &tar.Header{
			Name:     n,
			Mode:     0644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("Failed to write tar header for %s: %v", n, err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write tar entry for %s: %v", n, err)
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("Failed to close tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("Failed to close gzip writer: %v", err)
	}
	return path
}

// findProjectRoot walks up directories to find go.mod
func findProjectRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}
