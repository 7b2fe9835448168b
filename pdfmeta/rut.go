package pdfmeta

import (
	"regexp"
	"strings"
)

// rutLabeledRe matches a RUT label immediately followed by the dotted
// identifier, on the no-space view (e.g. "R.U.T.:76.124.890-1").
var rutLabeledRe = regexp.MustCompile(`(?i)R\.?U\.?T\.?[.:N°º]*(\d{1,3}\.\d{3}\.\d{3}-[0-9Kk])`)

// addresseeRe matches the addressee label ("Señor(es)") on the no-space
// view. Its position anchors disambiguation between duplicate RUTs.
var addresseeRe = regexp.MustCompile(`(?i)Se[ñn]or\(?es\)?`)

// extractRUT finds the labeled taxpayer identifier in the no-space view and
// returns it normalized to digits (plus check letter), or "" when absent.
func extractRUT(noSpace string) string {
	matches := rutLabeledRe.FindAllStringSubmatchIndex(noSpace, -1)
	if len(matches) == 0 {
		return ""
	}

	cands := make([]rutCandidate, 0, len(matches))
	for _, m := range matches {
		cands = append(cands, rutCandidate{
			pos:   m[2],
			value: noSpace[m[2]:m[3]],
		})
	}

	var anchors []int
	for _, a := range addresseeRe.FindAllStringIndex(noSpace, -1) {
		anchors = append(anchors, a[1])
	}

	return NormalizeRUT(selectRUT(cands, anchors))
}

// rutCandidate is one labeled RUT occurrence at a character position in the
// no-space view.
type rutCandidate struct {
	pos   int
	value string
}

// selectRUT picks the most contextually relevant candidate among duplicates:
// the one occurring nearest after (never before) an addressee anchor, by
// shortest forward distance; with no anchor following rule applicable, the
// last occurrence in document order. A single candidate is returned as-is.
//
// The heuristic is preserved exactly as observed in production documents;
// its behavior for three or more candidates has not been tightened.
func selectRUT(cands []rutCandidate, anchors []int) string {
	switch len(cands) {
	case 0:
		return ""
	case 1:
		return cands[0].value
	}

	best := -1
	bestDist := 0
	for i, c := range cands {
		for _, a := range anchors {
			if c.pos < a {
				continue
			}
			d := c.pos - a
			if best == -1 || d < bestDist {
				best = i
				bestDist = d
			}
		}
	}
	if best >= 0 {
		return cands[best].value
	}
	return cands[len(cands)-1].value
}

// NormalizeRUT strips the dot separators and the check-digit hyphen,
// yielding the bare identifier. Idempotent.
func NormalizeRUT(rut string) string {
	rut = strings.ReplaceAll(rut, ".", "")
	return strings.ReplaceAll(rut, "-", "")
}
