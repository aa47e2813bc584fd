package evaluator

import "github.com/crab-bench/crab-server/internal/models"

// commentDistance measures the line gap between the proposed and the
// reference comment ranges. Overlapping ranges score 0; a side with no
// line information at all is NA. A single nil endpoint collapses that
// side to a one-line range.
func commentDistance(subFrom, subTo, refFrom, refTo *int) models.Distance {
	if subFrom == nil && subTo == nil {
		return models.DistanceNA()
	}
	if refFrom == nil && refTo == nil {
		return models.DistanceNA()
	}

	subStart, subEnd := collapseRange(subFrom, subTo)
	refStart, refEnd := collapseRange(refFrom, refTo)

	if subEnd >= refStart && refEnd >= subStart {
		return models.NewDistance(0)
	}
	if subEnd < refStart {
		return models.NewDistance(refStart - subEnd)
	}
	return models.NewDistance(subStart - refEnd)
}

// collapseRange resolves nil endpoints and normalizes start <= end.
// Caller guarantees at least one endpoint is set.
func collapseRange(from, to *int) (int, int) {
	var start, end int
	switch {
	case from != nil && to != nil:
		start, end = *from, *to
	case from != nil:
		start, end = *from, *from
	default:
		start, end = *to, *to
	}
	if start > end {
		start, end = end, start
	}
	return start, end
}
