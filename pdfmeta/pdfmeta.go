// Package pdfmeta derives document metadata (RUT and issue date) from the
// raw text layer of a captured PDF.
//
// Extraction is deterministic and pure: no I/O, no errors. A field that
// cannot be resolved is returned empty, never as a failure — the caller
// degrades to a generic filename.
//
// The PDF text layer arrives as per-glyph positioned runs, so the
// reconstructed stream carries a space between essentially every glyph.
// Two normalized views compensate:
//   - the no-space view (all whitespace stripped) for label + identifier
//     matching, where layout noise would break multi-character tokens;
//   - the collapsed view (adjacent letter and digit runs rejoined) for
//     date text, where word boundaries still matter.
package pdfmeta

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Metadata holds the identifiers extracted from a PDF. RUT is digits plus an
// optional trailing check letter, with all punctuation stripped. IssueDate is
// YYYY-MM-DD. Either field is empty when unresolved.
type Metadata struct {
	RUT       string
	IssueDate string
}

// Extract parses the text layer of buf and returns whatever metadata it can
// resolve. It never fails: unparseable input yields a zero Metadata.
func Extract(buf []byte) Metadata {
	text, err := extractText(buf)
	if err != nil || text == "" {
		return Metadata{}
	}

	noSpace := noSpaceView(text)
	collapsed := collapsedView(text)

	return Metadata{
		RUT:       extractRUT(noSpace),
		IssueDate: extractIssueDate(collapsed, noSpace),
	}
}

// extractText reconstructs a flat text stream from the PDF's content
// streams, one space between glyph runs.
func extractText(buf []byte) (string, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(buf), conf)
	if err != nil {
		return "", fmt.Errorf("pdfmeta: read: %w", err)
	}

	var sb strings.Builder
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
		if err != nil {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil || len(data) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(streamText(data))
	}
	return sb.String(), nil
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

// streamText pulls the string operands of the text-showing operators
// (Tj, TJ, ') out of a content stream. Each run is URI-decoded — some
// generators percent-encode non-ASCII glyphs — and runs are joined by
// single spaces.
func streamText(data []byte) string {
	var sb strings.Builder

	appendRuns := func(line []byte) {
		for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
			run := decodeRun(m[1])
			if run == "" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(run)
		}
	}

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		switch {
		case bytes.HasSuffix(line, []byte("Tj")),
			bytes.HasSuffix(line, []byte("TJ")):
			appendRuns(line)
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			appendRuns(line)
		}
	}
	return sb.String()
}

// decodeRun unescapes a PDF string literal and then applies URI decoding.
// Decoding failures fall back to the escaped form.
func decodeRun(raw []byte) string {
	s := unescapePDFString(raw)
	if decoded, err := url.PathUnescape(s); err == nil {
		return decoded
	}
	return s
}

// unescapePDFString handles the PDF string escape sequences, including
// octal escapes like \040.
func unescapePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			if raw[i] >= '0' && raw[i] <= '7' {
				val := int(raw[i] - '0')
				for j := 0; j < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; j++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				sb.WriteByte(byte(val))
			} else {
				sb.WriteByte(raw[i])
			}
		}
	}
	return sb.String()
}
