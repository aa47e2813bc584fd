package buildhandler

import (
	"regexp"
	"strings"
)

var (
	downloadLineRe  = regexp.MustCompile(`^\[INFO\] Download(ing|ed) from`)
	licensesStartRe = regexp.MustCompile(`^\[WARNING\] Files with unapproved licenses:`)
	licensesEntryRe = regexp.MustCompile(`^\s+\?/\.m2/repository`)
)

// cleanOutput collapses the noisy parts of build output so failure
// messages stay readable: consecutive dependency-download lines merge
// into a single placeholder, and the unapproved-licenses listing keeps
// its header with the per-file entries folded away.
func cleanOutput(output string) string {
	lines := strings.Split(output, "\n")
	lines = mergeDownloadLines(lines)
	lines = mergeUnapprovedLicenses(lines)
	return strings.Join(lines, "\n")
}

func mergeDownloadLines(lines []string) []string {
	cleaned := make([]string, 0, len(lines))
	inBlock := false
	for _, line := range lines {
		if downloadLineRe.MatchString(line) {
			if !inBlock {
				cleaned = append(cleaned, "[CRAB] Downloading stuff")
				inBlock = true
			}
		} else {
			cleaned = append(cleaned, line)
			inBlock = false
		}
	}
	return cleaned
}

func mergeUnapprovedLicenses(lines []string) []string {
	cleaned := make([]string, 0, len(lines))
	inBlock := false
	for _, line := range lines {
		if licensesStartRe.MatchString(line) {
			cleaned = append(cleaned, line, "[CRAB] List of all the unapproved licenses...")
			inBlock = true
		} else if inBlock && !licensesEntryRe.MatchString(line) {
			inBlock = false
		}
		if !inBlock {
			cleaned = append(cleaned, line)
		}
	}
	return cleaned
}
