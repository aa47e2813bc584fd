// Package bleu provides sentence-level BLEU scoring for review comments
package bleu

import (
	"math"
	"regexp"
	"strings"
)

// MaxOrder is the highest n-gram order used when scoring.
const MaxOrder = 4

// Sentence scores a candidate against one or more references on a 0-100
// scale. Scoring uses n-gram precisions up to MaxOrder with effective
// ordering (orders beyond the candidate length are ignored), exponential
// smoothing for orders with no matches, and a brevity penalty for
// candidates shorter than the closest reference. Text is lowercased
// before tokenization, so scoring is case-insensitive.
func Sentence(candidate string, references []string) float64 {
	sys := Tokenize(candidate)
	if len(sys) == 0 {
		return 0
	}

	refs := make([][]string, 0, len(references))
	for _, r := range references {
		refs = append(refs, Tokenize(r))
	}
	if len(refs) == 0 {
		return 0
	}

	correct, total := matchStats(sys, refs)

	smooth := 1.0
	logSum := 0.0
	effOrder := 0
	for n := 1; n <= MaxOrder; n++ {
		if total[n-1] == 0 {
			break
		}
		effOrder = n
		var precision float64
		if correct[n-1] == 0 {
			smooth *= 2
			precision = 100.0 / (smooth * float64(total[n-1]))
		} else {
			precision = 100.0 * float64(correct[n-1]) / float64(total[n-1])
		}
		logSum += math.Log(precision)
	}
	if effOrder == 0 {
		return 0
	}

	score := math.Exp(logSum / float64(effOrder))

	refLen := closestRefLen(len(sys), refs)
	if len(sys) < refLen {
		score *= math.Exp(1.0 - float64(refLen)/float64(len(sys)))
	}

	return score
}

// matchStats counts, for each n-gram order, how many candidate n-grams
// appear in any reference (clipped per reference) and how many the
// candidate contains in total.
func matchStats(sys []string, refs [][]string) (correct, total [MaxOrder]int) {
	for n := 1; n <= MaxOrder; n++ {
		refCounts := make(map[string]int)
		for _, ref := range refs {
			for gram, count := range ngramCounts(ref, n) {
				if count > refCounts[gram] {
					refCounts[gram] = count
				}
			}
		}

		for gram, count := range ngramCounts(sys, n) {
			total[n-1] += count
			if refCount := refCounts[gram]; refCount > 0 {
				if count < refCount {
					correct[n-1] += count
				} else {
					correct[n-1] += refCount
				}
			}
		}
	}
	return correct, total
}

func ngramCounts(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+n], " ")]++
	}
	return counts
}

// closestRefLen picks the reference length closest to the candidate
// length, preferring the shorter reference on ties.
func closestRefLen(sysLen int, refs [][]string) int {
	best := len(refs[0])
	for _, ref := range refs[1:] {
		length := len(ref)
		diff := absInt(length - sysLen)
		bestDiff := absInt(best - sysLen)
		if diff < bestDiff || (diff == bestDiff && length < best) {
			best = length
		}
	}
	return best
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

var (
	// Punctuation is padded with spaces, except apostrophes, dashes and
	// the period/comma cases handled below.
	splitPunct = regexp.MustCompile("([\\{-\\~\\[-` -\\&\\(-\\+\\:-\\@/])")
	// Periods and commas are split unless they sit between digits, so
	// "v1.2" stays whole while "typo." splits.
	splitPeriodBefore = regexp.MustCompile(`([^0-9])([\.,])`)
	splitPeriodAfter  = regexp.MustCompile(`([\.,])([^0-9])`)
	splitDashDigit    = regexp.MustCompile(`([0-9])(-)`)
)

// Tokenize lowercases text and splits it into tokens, padding
// punctuation with spaces while keeping digit-internal periods, commas
// and dashes attached.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	text = strings.ReplaceAll(text, "<skipped>", "")
	text = strings.ReplaceAll(text, "-\n", "")
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "&quot;", `"`)
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")

	text = " " + text + " "
	text = splitPunct.ReplaceAllString(text, " ${1} ")
	text = splitPeriodBefore.ReplaceAllString(text, "${1} ${2} ")
	text = splitPeriodAfter.ReplaceAllString(text, " ${1} ${2}")
	text = splitDashDigit.ReplaceAllString(text, "${1} ${2} ")

	return strings.Fields(text)
}
