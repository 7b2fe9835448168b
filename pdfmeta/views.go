package pdfmeta

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	letterJoinRe = regexp.MustCompile(`([A-Za-zÁÉÍÓÚÑÜáéíóúñü]) ([A-Za-zÁÉÍÓÚÑÜáéíóúñü])`)
	digitJoinRe  = regexp.MustCompile(`([0-9]) ([0-9])`)
	punctJoinRe  = regexp.MustCompile(`([0-9]) ?([.\-/]) ?([0-9])`)
	multiSpaceRe = regexp.MustCompile(`\s+`)
)

// noSpaceView strips all whitespace from the reconstructed text. Used for
// pattern matching where the per-glyph spacing would break tokens apart.
func noSpaceView(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if !unicode.IsSpace(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// collapsedView rejoins letter/letter, digit/digit, and digit/punct/digit
// runs split by glyph spacing, then collapses remaining whitespace to
// single spaces. Word boundaries survive, so date phrases stay readable.
func collapsedView(text string) string {
	// Glyph spacing is a single inserted space; a real word gap carries the
	// space glyph as well and so survives as two or more spaces. Joining
	// must therefore run before whitespace collapsing, and only across
	// exactly one space. The join patterns consume their right-hand
	// capture, so a run like "d i c i e m b r e" needs repeated passes
	// until stable.
	s := text
	for {
		joined := letterJoinRe.ReplaceAllString(s, "$1$2")
		joined = digitJoinRe.ReplaceAllString(joined, "$1$2")
		joined = punctJoinRe.ReplaceAllString(joined, "$1$2$3")
		if joined == s {
			break
		}
		s = joined
	}
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(s, " "))
}
