package buildhandler

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crab-bench/crab-server/internal/common"
)

// writeTarGz builds a .tar.gz archive holding the given files and
// returns the directory it was written to.
func writeTarGz(t *testing.T, name string, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for entry, content := range files {
		hdr := &tar.Header{
			Name:     entry,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %q: %v", entry, err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("write entry %q: %v", entry, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return dir
}

func TestResolveMavenArchive(t *testing.T) {
	root := writeTarGz(t, "acme_demo_12_merged.tar.gz", map[string]string{
		"pom.xml":           "<project></project>",
		"src/main/Foo.java": "package foo;",
	})

	resolver := NewResolver(common.NewLogger("error"), false)
	got, err := resolver.Resolve(root, "acme_demo_12_merged.tar.gz")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	h, ok := got.(*Handler)
	if !ok {
		t.Fatalf("Resolve() returned %T, want *Handler", got)
	}
	defer h.Stop()

	if h.sys.Name() != "maven" {
		t.Errorf("build system = %q, want maven", h.sys.Name())
	}
	if !strings.HasPrefix(filepath.Base(h.Root()), "crab_repo_") {
		t.Errorf("extraction dir %q lacks crab_repo_ prefix", h.Root())
	}
	if _, err := os.Stat(filepath.Join(h.Root(), "src", "main", "Foo.java")); err != nil {
		t.Errorf("extracted file missing: %v", err)
	}
}

func TestResolveGradleArchive(t *testing.T) {
	root := writeTarGz(t, "repo.tar.gz", map[string]string{
		"build.gradle": "plugins { id 'java' }",
	})

	resolver := NewResolver(common.NewLogger("error"), false)
	got, err := resolver.Resolve(root, "repo.tar.gz")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	h := got.(*Handler)
	defer h.Stop()

	if h.sys.Name() != "gradle" {
		t.Errorf("build system = %q, want gradle", h.sys.Name())
	}
}

func TestResolveRejectsAmbiguousArchive(t *testing.T) {
	root := writeTarGz(t, "repo.tar.gz", map[string]string{
		"pom.xml":      "<project></project>",
		"build.gradle": "plugins {}",
	})

	resolver := NewResolver(common.NewLogger("error"), false)
	_, err := resolver.Resolve(root, "repo.tar.gz")
	var serr *SetupError
	if !errors.As(err, &serr) || serr.Reason != ReasonCantFindBuildFile {
		t.Fatalf("Resolve() error = %v, want cant-find-build-file setup error", err)
	}
}

func TestResolveRejectsArchiveWithoutBuildFile(t *testing.T) {
	root := writeTarGz(t, "repo.tar.gz", map[string]string{
		"README.md": "hello",
	})

	resolver := NewResolver(common.NewLogger("error"), false)
	_, err := resolver.Resolve(root, "repo.tar.gz")
	var serr *SetupError
	if !errors.As(err, &serr) || serr.Reason != ReasonCantFindBuildFile {
		t.Fatalf("Resolve() error = %v, want cant-find-build-file setup error", err)
	}
}

func TestResolveRejectsMissingArchive(t *testing.T) {
	resolver := NewResolver(common.NewLogger("error"), false)
	_, err := resolver.Resolve(t.TempDir(), "nope.tar.gz")
	var serr *SetupError
	if !errors.As(err, &serr) || serr.Reason != ReasonNotValidDirectory {
		t.Fatalf("Resolve() error = %v, want not-valid-directory setup error", err)
	}
}

func TestResolveRejectsNonArchive(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "junk.tar.gz"), []byte("not gzip"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	resolver := NewResolver(common.NewLogger("error"), false)
	_, err := resolver.Resolve(root, "junk.tar.gz")
	var serr *SetupError
	if !errors.As(err, &serr) || serr.Reason != ReasonNotValidDirectory {
		t.Fatalf("Resolve() error = %v, want not-valid-directory setup error", err)
	}
}

func TestResolveConfinesTraversalEntries(t *testing.T) {
	marker := "crab-escape-marker-48151.txt"
	root := writeTarGz(t, "repo.tar.gz", map[string]string{
		"pom.xml":           "<project></project>",
		"../" + marker:      "escaped",
		"a/../../" + marker: "escaped again",
	})

	resolver := NewResolver(common.NewLogger("error"), false)
	got, err := resolver.Resolve(root, "repo.tar.gz")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	h := got.(*Handler)
	defer h.Stop()

	if _, err := os.Stat(filepath.Join(os.TempDir(), marker)); !os.IsNotExist(err) {
		t.Errorf("traversal entry escaped the extraction dir")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(h.Root()), marker)); !os.IsNotExist(err) {
		t.Errorf("traversal entry landed next to the extraction dir")
	}
}

func TestResolveMockMode(t *testing.T) {
	resolver := NewResolver(common.NewLogger("error"), true)
	got, err := resolver.Resolve("ignored", "ignored.tar.gz")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if _, ok := got.(mockHandler); !ok {
		t.Fatalf("Resolve() returned %T, want mockHandler", got)
	}
}
