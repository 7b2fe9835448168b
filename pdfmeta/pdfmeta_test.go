package pdfmeta

import (
	"strings"
	"testing"
)

func TestExtract_InvoiceMetadata(t *testing.T) {
	// WHAT: PDF carrying a labeled RUT and a long-form Spanish issue date
	// yields both fields, normalized.
	// WHY: The two fields drive the deterministic filename; this is the
	// happy path of the whole extractor.
	raw := buildTextPDF(
		"(FACTURA ELECTRONICA) Tj",
		"(R.U.T.: 76.124.890-1) Tj",
		"(Fecha Emisión: 15 de diciembre de 2025) Tj",
	)

	meta := Extract(raw)
	if meta.RUT != "761248901" {
		t.Errorf("RUT = %q, want %q", meta.RUT, "761248901")
	}
	if meta.IssueDate != "2025-12-15" {
		t.Errorf("IssueDate = %q, want %q", meta.IssueDate, "2025-12-15")
	}
}

func TestExtract_GlyphSpacedText(t *testing.T) {
	// WHAT: Text emitted one glyph per string literal — the layout real
	// generators produce — still resolves both fields.
	// WHY: The per-glyph spacing is the reason the two normalized views
	// exist; a plain substring match would never see "R.U.T." intact.
	raw := buildTextPDF(
		glyphTJ("R.U.T.: 4.835.956-6"),
		glyphTJ("Fecha Emisión: 3 de enero de 2024"),
	)

	meta := Extract(raw)
	if meta.RUT != "48359566" {
		t.Errorf("RUT = %q, want %q", meta.RUT, "48359566")
	}
	if meta.IssueDate != "2024-01-03" {
		t.Errorf("IssueDate = %q, want %q", meta.IssueDate, "2024-01-03")
	}
}

func TestExtract_PercentEncodedGlyphs(t *testing.T) {
	// WHAT: Runs whose non-ASCII glyphs arrive percent-encoded decode
	// before matching.
	// WHY: Some generators URI-encode accented characters in the text
	// layer; "Emisi%C3%B3n" must still anchor the date.
	raw := buildTextPDF(
		"(Fecha Emisi%C3%B3n: 9 de julio de 2025) Tj",
		"(RUT: 12.345.678-K) Tj",
	)

	meta := Extract(raw)
	if meta.IssueDate != "2025-07-09" {
		t.Errorf("IssueDate = %q, want %q", meta.IssueDate, "2025-07-09")
	}
	if meta.RUT != "12345678K" {
		t.Errorf("RUT = %q, want %q", meta.RUT, "12345678K")
	}
}

func TestExtract_NoMetadata(t *testing.T) {
	// WHAT: A valid PDF without either field returns empty fields, not an
	// error.
	// WHY: Missing metadata degrades to the generic filename; it must
	// never fail a capture that already has the bytes.
	raw := buildTextPDF("(quarterly report, nothing fiscal here) Tj")

	meta := Extract(raw)
	if meta.RUT != "" || meta.IssueDate != "" {
		t.Errorf("expected zero metadata, got %+v", meta)
	}
}

func TestExtract_GarbageInput(t *testing.T) {
	// WHAT: Non-PDF bytes yield zero metadata without panicking.
	// WHY: Extract runs on whatever buffer the capture produced; it must
	// absorb anything.
	for _, buf := range [][]byte{nil, {}, []byte("<html>not a pdf</html>"), []byte("%PDF-truncated")} {
		meta := Extract(buf)
		if meta.RUT != "" || meta.IssueDate != "" {
			t.Errorf("Extract(%q) = %+v, want zero", buf, meta)
		}
	}
}

func TestUnescapePDFString(t *testing.T) {
	// WHAT: PDF string escapes, including octal, decode to their bytes.
	// WHY: Escaped parentheses and octal-coded glyphs appear in real
	// content streams and would otherwise corrupt the text views.
	cases := []struct {
		in   string
		want string
	}{
		{`plain`, "plain"},
		{`a\(b\)c`, "a(b)c"},
		{`line\nbreak`, "line\nbreak"},
		{`back\\slash`, `back\slash`},
		{`oct\040al`, "oct al"},
		{`\101BC`, "ABC"},
	}
	for _, tc := range cases {
		if got := unescapePDFString([]byte(tc.in)); got != tc.want {
			t.Errorf("unescapePDFString(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// --- PDF test helpers ---

// glyphTJ renders text as a TJ array with one string literal per glyph,
// spaces included, mimicking positioned per-glyph output.
func glyphTJ(text string) string {
	var parts []string
	for _, r := range text {
		s := string(r)
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, "(", `\(`)
		s = strings.ReplaceAll(s, ")", `\)`)
		parts = append(parts, "("+s+")")
	}
	return "[" + strings.Join(parts, " ") + "] TJ"
}

// buildTextPDF creates a valid single-page PDF with proper xref offsets
// whose content stream shows the given text operators.
func buildTextPDF(ops ...string) []byte {
	stream := "BT\n/F1 12 Tf\n72 720 Td\n" + strings.Join(ops, "\n") + "\nET"

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")

	offsets := make([]int, 6)

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	offsets[2] = b.Len()
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")

	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>\nendobj\n")

	offsets[4] = b.Len()
	b.WriteString("4 0 obj\n<< /Length ")
	b.WriteString(pdfItoa(len(stream)))
	b.WriteString(" >>\nstream\n")
	b.WriteString(stream)
	b.WriteString("\nendstream\nendobj\n")

	offsets[5] = b.Len()
	b.WriteString("5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	xrefOffset := b.Len()
	b.WriteString("xref\n0 6\n")
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= 5; i++ {
		b.WriteString(pdfPadOffset(offsets[i]))
		b.WriteString(" 00000 n \n")
	}
	b.WriteString("trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n")
	b.WriteString(pdfItoa(xrefOffset))
	b.WriteString("\n%%EOF\n")

	return []byte(b.String())
}

func pdfItoa(n int) string {
	if n == 0 {
		return "0"
	}
	s := ""
	for n > 0 {
		s = string(rune('0'+n%10)) + s
		n /= 10
	}
	return s
}

func pdfPadOffset(n int) string {
	s := pdfItoa(n)
	for len(s) < 10 {
		s = "0" + s
	}
	return s
}
