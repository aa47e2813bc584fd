package buildhandler

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/crab-bench/crab-server/internal/models"
)

// mavenTestResultsRe matches the surefire summary block. Multi-module
// builds print one block per module; all of them are summed.
var mavenTestResultsRe = regexp.MustCompile(
	`\[INFO\] Results:\n\[INFO\]\s*\n\[INFO\] Tests run: (\d+), Failures: (\d+), Errors: (\d+), Skipped: (\d+)`)

// mavenJacocoPlugin is inserted into pom.xml when the coverage run fails
// because the project never configured JaCoCo.
const mavenJacocoPlugin = `
    <plugin>
        <groupId>org.jacoco</groupId>
        <artifactId>jacoco-maven-plugin</artifactId>
        <version>0.8.8</version>
        <executions>
            <execution>
                <goals>
                    <goal>prepare-agent</goal>
                </goals>
            </execution>
            <execution>
                <id>report</id>
                <phase>test</phase>
                <goals>
                    <goal>report</goal>
                </goals>
            </execution>
        </executions>
    </plugin>
`

// mavenSystem runs builds through mvn in batch mode. Color and download
// progress output are disabled to keep failure messages greppable.
type mavenSystem struct{}

var mavenBase = []string{"mvn", "-B", "-Dstyle.color=never", "-Dartifact.download.skip=true"}

func (mavenSystem) Name() string { return "maven" }

func (mavenSystem) Image() string { return "crab-maven" }

func (mavenSystem) BuildFile() string { return "pom.xml" }

func (mavenSystem) CompileCmd() []string { return append(append([]string{}, mavenBase...), "clean", "compile") }

func (mavenSystem) TestCmd() []string { return append(append([]string{}, mavenBase...), "test") }

func (mavenSystem) CleanCmd() []string { return append(append([]string{}, mavenBase...), "clean") }

func (mavenSystem) CoverageCmd() []string {
	return append(append([]string{}, mavenBase...), "jacoco:report-aggregate")
}

func (mavenSystem) ExtractTestStats(repo, output string) (models.TestStats, error) {
	matches := mavenTestResultsRe.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return models.TestStats{}, errNoTestResults("No test results found in Maven output:\n" + output)
	}

	var stats models.TestStats
	for _, m := range matches {
		run, _ := strconv.Atoi(m[1])
		failures, _ := strconv.Atoi(m[2])
		errs, _ := strconv.Atoi(m[3])
		skipped, _ := strconv.Atoi(m[4])

		stats.NTests += run
		stats.NTestsFailed += failures
		stats.NTestsErrors += errs
		stats.NTestsSkipped += skipped
		stats.NTestsPassed += run - (failures + errs)
	}
	return stats, nil
}

// ReportPaths lists every jacoco.xml under a target/site directory.
// Stray jacoco.xml files elsewhere in the tree are ignored.
func (mavenSystem) ReportPaths(repo string) ([]string, error) {
	var reports []string
	err := filepath.WalkDir(repo, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != "jacoco.xml" {
			return nil
		}
		if strings.Contains(filepath.Dir(path), "target/site") {
			reports = append(reports, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", repo, err)
	}
	if len(reports) == 0 {
		return nil, errNoCoverageReport(fmt.Sprintf("Couldn't find any 'jacoco.xml' in %s", repo))
	}
	return reports, nil
}

// InjectCoveragePlugin adds the JaCoCo plugin to pom.xml content. When
// the pom has a <plugins> section the plugin slots into the first one,
// otherwise a whole <build><plugins> block is appended before
// </project>.
func (mavenSystem) InjectCoveragePlugin(content string) (string, error) {
	if strings.Contains(content, "<artifactId>jacoco-maven-plugin</artifactId>") {
		return content, nil
	}
	if strings.Contains(content, "<plugins>") {
		return strings.Replace(content, "<plugins>", "<plugins>\n"+mavenJacocoPlugin, 1), nil
	}
	if strings.Contains(content, "</project>") {
		block := "\n    <build>\n        <plugins>\n" + mavenJacocoPlugin + "\n        </plugins>\n    </build>\n"
		return strings.Replace(content, "</project>", block+"</project>", 1), nil
	}
	return "", errCantInjectJacoco("Could not find insertion point for plugins in pom.xml")
}

var _ buildSystem = mavenSystem{}
