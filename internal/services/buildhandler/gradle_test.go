package buildhandler

import (
	"errors"
	"strings"
	"testing"
)

const gradleTestReportHTML = `<!DOCTYPE html>
<html>
<head><title>Test results - Test Summary</title></head>
<body>
<div id="content">
<h1>Test Summary</h1>
<div id="summary">
<table><tr><td>
<div class="summaryGroup">
<div class="infoBox" id="tests"><div class="counter">7</div><p>tests</p></div>
</div>
</td><td>
<div class="infoBox" id="failures"><div class="counter">2</div><p>failures</p></div>
</td></tr></table>
</div>
</div>
</body>
</html>
`

func TestGradleExtractTestStats(t *testing.T) {
	repo := t.TempDir()
	writeRepoFile(t, repo, "build/reports/tests/test/index.html", gradleTestReportHTML)

	stats, err := gradleSystem{}.ExtractTestStats(repo, "")
	if err != nil {
		t.Fatalf("ExtractTestStats() error = %v", err)
	}

	if stats.NTests != 7 {
		t.Errorf("NTests = %d, want 7", stats.NTests)
	}
	if stats.NTestsFailed != 2 {
		t.Errorf("NTestsFailed = %d, want 2", stats.NTestsFailed)
	}
	if stats.NTestsPassed != 5 {
		t.Errorf("NTestsPassed = %d, want 5", stats.NTestsPassed)
	}
	// the summary page has no error or skip counters
	if stats.NTestsErrors != -1 {
		t.Errorf("NTestsErrors = %d, want -1", stats.NTestsErrors)
	}
	if stats.NTestsSkipped != -1 {
		t.Errorf("NTestsSkipped = %d, want -1", stats.NTestsSkipped)
	}
}

func TestGradleExtractTestStatsMissingReport(t *testing.T) {
	_, err := gradleSystem{}.ExtractTestStats(t.TempDir(), "")
	var herr *HandlerError
	if !errors.As(err, &herr) || herr.Reason != ReasonNoTestResults {
		t.Fatalf("ExtractTestStats() error = %v, want no-test-results handler error", err)
	}
	if !strings.Contains(herr.Detail, "sub-projects") {
		t.Errorf("detail = %q, want sub-projects hint", herr.Detail)
	}
}

func TestGradleExtractTestStatsMissingCounter(t *testing.T) {
	repo := t.TempDir()
	writeRepoFile(t, repo, "build/reports/tests/test/index.html",
		"<html><body><div class=\"infoBox\" id=\"other\"></div></body></html>")

	_, err := gradleSystem{}.ExtractTestStats(repo, "")
	var herr *HandlerError
	if !errors.As(err, &herr) || herr.Reason != ReasonNoTestResults {
		t.Fatalf("ExtractTestStats() error = %v, want no-test-results handler error", err)
	}
}

func TestGradleInjectCoveragePlugin(t *testing.T) {
	script := "plugins {\n    id 'java'\n}\n\ndependencies {\n}\n"

	patched, err := gradleSystem{}.InjectCoveragePlugin(script)
	if err != nil {
		t.Fatalf("InjectCoveragePlugin() error = %v", err)
	}
	if !strings.HasPrefix(patched, "plugins {\n    id 'jacoco'\n}") {
		t.Errorf("patched script does not start with jacoco plugins block: %q", patched)
	}
	if !strings.Contains(patched, "id 'java'") {
		t.Error("patched script lost original content")
	}

	again, err := gradleSystem{}.InjectCoveragePlugin(patched)
	if err != nil {
		t.Fatalf("InjectCoveragePlugin() second call error = %v", err)
	}
	if again != patched {
		t.Error("second injection changed the script")
	}
}

func TestGradleInjectCoveragePluginAppliedPlugin(t *testing.T) {
	script := "apply plugin: 'jacoco'\napply plugin: 'java'\n"

	patched, err := gradleSystem{}.InjectCoveragePlugin(script)
	if err != nil {
		t.Fatalf("InjectCoveragePlugin() error = %v", err)
	}
	if patched != script {
		t.Error("script with applied plugin should be unchanged")
	}
}

func TestGradleReportPaths(t *testing.T) {
	repo := t.TempDir()
	writeRepoFile(t, repo, "build/reports/jacoco/test/html/index.html", "<html></html>")
	// test report, not a jacoco one
	writeRepoFile(t, repo, "build/reports/tests/test/index.html", "<html></html>")

	reports, err := gradleSystem{}.ReportPaths(repo)
	if err != nil {
		t.Fatalf("ReportPaths() error = %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("ReportPaths() returned %d paths, want 1: %v", len(reports), reports)
	}
	if !strings.Contains(reports[0], "reports/jacoco") {
		t.Errorf("unexpected report path %q", reports[0])
	}
}

func TestGradleReportPathsNoneFound(t *testing.T) {
	_, err := gradleSystem{}.ReportPaths(t.TempDir())
	var herr *HandlerError
	if !errors.As(err, &herr) || herr.Reason != ReasonNoCoverageReport {
		t.Fatalf("ReportPaths() error = %v, want no-coverage-report handler error", err)
	}
}
