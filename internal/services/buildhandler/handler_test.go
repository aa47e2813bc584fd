package buildhandler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/crab-bench/crab-server/internal/common"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	dir, err := os.MkdirTemp("", "crab_repo_")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	h, err := newHandler(common.NewLogger("error"), mavenSystem{}, dir)
	if err != nil {
		t.Fatalf("newHandler: %v", err)
	}
	return h
}

func TestInjectChangesWritesFiles(t *testing.T) {
	h := newTestHandler(t)
	defer h.Stop()

	changes := map[string]string{
		"pom.xml":                      "<project></project>",
		"src/main/java/com/a/New.java": "package com.a;\nclass New {}",
		"docs/deep/nested/notes.md":    "notes",
	}
	if err := h.InjectChanges(changes); err != nil {
		t.Fatalf("InjectChanges() error = %v", err)
	}

	for name, want := range changes {
		got, err := os.ReadFile(filepath.Join(h.Root(), name))
		if err != nil {
			t.Fatalf("read %q: %v", name, err)
		}
		if string(got) != want {
			t.Errorf("content of %q = %q, want %q", name, got, want)
		}
	}
}

func TestInjectChangesOverwritesExisting(t *testing.T) {
	h := newTestHandler(t)
	defer h.Stop()

	if err := os.WriteFile(filepath.Join(h.Root(), "pom.xml"), []byte("old"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if err := h.InjectChanges(map[string]string{"pom.xml": "new"}); err != nil {
		t.Fatalf("InjectChanges() error = %v", err)
	}
	got, err := os.ReadFile(filepath.Join(h.Root(), "pom.xml"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "new" {
		t.Errorf("content = %q, want %q", got, "new")
	}
}

func TestInjectChangesRejectsEscapingPaths(t *testing.T) {
	h := newTestHandler(t)
	defer h.Stop()

	for _, path := range []string{"../evil.txt", "a/../../evil.txt", ".."} {
		err := h.InjectChanges(map[string]string{path: "x"})
		if err == nil {
			t.Fatalf("InjectChanges(%q) succeeded, want rejection", path)
		}
		if want := "Attempting to write to a file outside the repo. This is not allowed"; err.Error() != want {
			t.Errorf("InjectChanges(%q) error = %q, want %q", path, err.Error(), want)
		}
	}
}

func TestStopWithoutStartRemovesSnapshot(t *testing.T) {
	h := newTestHandler(t)
	root := h.Root()

	h.Stop()

	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Errorf("snapshot dir still present after Stop")
	}
}

func TestCheckCoverageFindsReportedClass(t *testing.T) {
	h := newTestHandler(t)
	defer h.Stop()

	writeRepoFile(t, h.Root(), "src/main/java/com/acme/App.java",
		"package com.acme;\n\npublic class App {}\n")
	writeRepoFile(t, h.Root(), "target/site/jacoco/jacoco.xml",
		`<report name="widget"><package name="com/acme">`+
			`<class name="com/acme/App" sourcefilename="App.java">`+
			`<counter type="INSTRUCTION" missed="1" covered="9"/>`+
			`<counter type="LINE" missed="2" covered="6"/>`+
			`</class></package></report>`)

	hits, err := h.CheckCoverage("src/main/java/com/acme/App.java")
	if err != nil {
		t.Fatalf("CheckCoverage() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("CheckCoverage() returned %d hits, want 1", len(hits))
	}
	if hits[0].Percent != 75.0 {
		t.Errorf("coverage = %v, want 75.0", hits[0].Percent)
	}
}

func TestCheckCoverageUncoveredFile(t *testing.T) {
	h := newTestHandler(t)
	defer h.Stop()

	writeRepoFile(t, h.Root(), "src/main/java/com/acme/Other.java",
		"package com.acme;\n\nclass Other {}\n")
	writeRepoFile(t, h.Root(), "target/site/jacoco/jacoco.xml",
		`<report name="widget"><package name="com/acme">`+
			`<class name="com/acme/App" sourcefilename="App.java">`+
			`<counter type="LINE" missed="0" covered="4"/>`+
			`</class></package></report>`)

	_, err := h.CheckCoverage("src/main/java/com/acme/Other.java")
	var herr *HandlerError
	if !errors.As(err, &herr) || herr.Reason != ReasonFileNotCovered {
		t.Fatalf("CheckCoverage() error = %v, want file-not-covered handler error", err)
	}
}
