package buildhandler

import (
	"os"
	"path/filepath"
	"testing"
)

const jacocoReportXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<!DOCTYPE report PUBLIC "-//JACOCO//DTD Report 1.1//EN" "report.dtd">
<report name="demo">
  <sessioninfo id="host-1" start="1" dump="2"/>
  <package name="com/example">
    <class name="com/example/Foo" sourcefilename="Foo.java">
      <method name="bar" desc="()V" line="5">
        <counter type="INSTRUCTION" missed="0" covered="4"/>
        <counter type="LINE" missed="0" covered="2"/>
      </method>
      <counter type="INSTRUCTION" missed="10" covered="30"/>
      <counter type="LINE" missed="2" covered="6"/>
    </class>
    <class name="com/example/Empty" sourcefilename="Empty.java">
      <counter type="LINE" missed="0" covered="0"/>
    </class>
    <sourcefile name="Foo.java">
      <line nr="5" mi="0" ci="2" mb="0" cb="0"/>
    </sourcefile>
  </package>
</report>
`

func writeReport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jacoco.xml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write report: %v", err)
	}
	return path
}

func TestCoverageForClass(t *testing.T) {
	report := writeReport(t, jacocoReportXML)

	pct, err := coverageForClass(report, "com/example/Foo", "Foo.java")
	if err != nil {
		t.Fatalf("coverageForClass() error = %v", err)
	}
	// class-level LINE counter: 6 covered of 8
	if want := 75.0; pct != want {
		t.Errorf("coverage = %v, want %v", pct, want)
	}
}

func TestCoverageForClassZeroLines(t *testing.T) {
	report := writeReport(t, jacocoReportXML)

	pct, err := coverageForClass(report, "com/example/Empty", "Empty.java")
	if err != nil {
		t.Fatalf("coverageForClass() error = %v", err)
	}
	if pct != 0 {
		t.Errorf("coverage = %v, want 0", pct)
	}
}

func TestCoverageForClassNotListed(t *testing.T) {
	report := writeReport(t, jacocoReportXML)

	pct, err := coverageForClass(report, "com/example/Missing", "Missing.java")
	if err != nil {
		t.Fatalf("coverageForClass() error = %v", err)
	}
	if pct != -1 {
		t.Errorf("coverage = %v, want -1", pct)
	}
}

func TestCoverageForClassRequiresBothAttributes(t *testing.T) {
	report := writeReport(t, jacocoReportXML)

	// right class name, wrong source file
	pct, err := coverageForClass(report, "com/example/Foo", "Bar.java")
	if err != nil {
		t.Fatalf("coverageForClass() error = %v", err)
	}
	if pct != -1 {
		t.Errorf("coverage = %v, want -1", pct)
	}
}

func TestCoverageForClassIgnoresHTML(t *testing.T) {
	html := `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>report</title></head>
<body><div class="percent">75%</div><br><hr></body></html>`
	report := writeReport(t, html)

	pct, err := coverageForClass(report, "com/example/Foo", "Foo.java")
	if err != nil {
		t.Fatalf("coverageForClass() error = %v", err)
	}
	if pct != -1 {
		t.Errorf("coverage = %v, want -1", pct)
	}
}
