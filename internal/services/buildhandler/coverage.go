package buildhandler

import (
	"encoding/xml"
	"io"
	"os"
)

type jacocoClass struct {
	Name           string          `xml:"name,attr"`
	SourceFileName string          `xml:"sourcefilename,attr"`
	Counters       []jacocoCounter `xml:"counter"`
}

type jacocoCounter struct {
	Type    string `xml:"type,attr"`
	Missed  int    `xml:"missed,attr"`
	Covered int    `xml:"covered,attr"`
}

// coverageForClass scans one JaCoCo report for the class matching fqc
// and basename and returns its line coverage percentage. Returns -1
// when the report does not list the class. Only class-level counters
// count; method-level ones are nested a level deeper and ignored.
func coverageForClass(reportPath, fqc, basename string) (float64, error) {
	f, err := os.Open(reportPath)
	if err != nil {
		return -1, err
	}
	defer f.Close()

	// Lenient parsing: Gradle's report tree also contains HTML files,
	// which simply yield no matching class element.
	dec := xml.NewDecoder(f)
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return -1, nil
		}
		if err != nil {
			return -1, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "class" {
			continue
		}
		var cls jacocoClass
		if err := dec.DecodeElement(&cls, &start); err != nil {
			return -1, err
		}
		if cls.SourceFileName != basename || cls.Name != fqc {
			continue
		}
		for _, counter := range cls.Counters {
			if counter.Type != "LINE" {
				continue
			}
			total := counter.Missed + counter.Covered
			if total == 0 {
				return 0, nil
			}
			return float64(counter.Covered) / float64(total) * 100, nil
		}
	}
}
