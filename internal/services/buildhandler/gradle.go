package buildhandler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/crab-bench/crab-server/internal/models"
)

// gradleJacocoSnippet is prepended to build.gradle when the coverage run
// fails because the project never configured JaCoCo.
const gradleJacocoSnippet = `plugins {
    id 'jacoco'
}

jacoco {
    toolVersion = "0.8.8"
}

test {
    finalizedBy jacocoTestReport
}

jacocoTestReport {
    dependsOn test
    reports {
        xml.required = true
        html.required = true
    }
}`

// gradleSystem runs builds through gradle without the daemon. Test
// counts come from the HTML report because gradle's console output has
// no summary line.
type gradleSystem struct{}

var gradleBase = []string{"gradle", "--no-daemon", "--console=plain"}

func (gradleSystem) Name() string { return "gradle" }

func (gradleSystem) Image() string { return "crab-gradle" }

func (gradleSystem) BuildFile() string { return "build.gradle" }

func (gradleSystem) CompileCmd() []string { return append(append([]string{}, gradleBase...), "compileJava") }

func (gradleSystem) TestCmd() []string { return append(append([]string{}, gradleBase...), "test") }

func (gradleSystem) CleanCmd() []string { return append(append([]string{}, gradleBase...), "clean") }

func (gradleSystem) CoverageCmd() []string { return append(append([]string{}, gradleBase...), "jacocoTestReport") }

// ExtractTestStats reads build/reports/tests/test/index.html. Error and
// skip counts stay -1: the summary page does not break them out.
func (gradleSystem) ExtractTestStats(repo, _ string) (models.TestStats, error) {
	stats := models.TestStats{
		NTests:        -1,
		NTestsPassed:  -1,
		NTestsFailed:  -1,
		NTestsErrors:  -1,
		NTestsSkipped: -1,
	}

	reportPath := filepath.Join(repo, "build", "reports", "tests", "test", "index.html")
	f, err := os.Open(reportPath)
	if err != nil {
		return stats, errNoTestResults("No test results found (prolly a repo with sub-projects)")
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return stats, errNoTestResults("No test results found (unparsable report page)")
	}

	total, err := counterValue(doc, "tests")
	if err != nil {
		return stats, err
	}
	stats.NTests = total

	failed, err := counterValue(doc, "failures")
	if err != nil {
		return stats, err
	}
	stats.NTestsFailed = failed
	stats.NTestsPassed = total - failed
	return stats, nil
}

// counterValue reads the numeric counter inside one of the report's
// summary info boxes.
func counterValue(doc *goquery.Document, boxID string) (int, error) {
	box := doc.Find("div.infoBox#" + boxID)
	if box.Length() == 0 {
		return 0, errNoTestResults(fmt.Sprintf("No test results found (no div.infoBox#%s)", boxID))
	}
	counter := box.Find("div.counter").First()
	if counter.Length() == 0 {
		return 0, errNoTestResults(fmt.Sprintf("No test results found (not div.counter for %s)", boxID))
	}
	n, err := strconv.Atoi(strings.TrimSpace(counter.Text()))
	if err != nil {
		return 0, errNoTestResults(fmt.Sprintf("No test results found (non-numeric counter for %s)", boxID))
	}
	return n, nil
}

// ReportPaths lists every index.html under a reports/jacoco directory.
func (gradleSystem) ReportPaths(repo string) ([]string, error) {
	var reports []string
	err := filepath.WalkDir(repo, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != "index.html" {
			return nil
		}
		if strings.Contains(filepath.Dir(path), "reports/jacoco") {
			reports = append(reports, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", repo, err)
	}
	if len(reports) == 0 {
		return nil, errNoCoverageReport(fmt.Sprintf("Couldn't find any 'index.html' inside any 'reports/jacoco' in %s", repo))
	}
	return reports, nil
}

// InjectCoveragePlugin prepends the JaCoCo plugin block to build.gradle
// content, unless the script already applies the plugin.
func (gradleSystem) InjectCoveragePlugin(content string) (string, error) {
	if strings.Contains(content, "id 'jacoco'") || strings.Contains(content, "apply plugin: 'jacoco'") {
		return content, nil
	}
	return gradleJacocoSnippet + "\n\n" + content, nil
}

var _ buildSystem = gradleSystem{}
