package pdfmeta

import "testing"

func TestNormalizeRUT(t *testing.T) {
	// WHAT: Dots and hyphen strip; already-normalized input is unchanged.
	// WHY: The filename uses the bare identifier, and normalization must
	// be idempotent so stored values can be re-normalized safely.
	cases := []struct {
		in   string
		want string
	}{
		{"4.835.956-6", "48359566"},
		{"76.124.890-1", "761248901"},
		{"12.345.678-K", "12345678K"},
		{"48359566", "48359566"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeRUT(tc.in); got != tc.want {
			t.Errorf("NormalizeRUT(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if got := NormalizeRUT(NormalizeRUT("4.835.956-6")); got != "48359566" {
		t.Errorf("NormalizeRUT not idempotent: %q", got)
	}
}

func TestExtractRUT_SingleCandidate(t *testing.T) {
	// WHAT: One labeled RUT is returned normalized; label variants all
	// match on the no-space view.
	// WHY: Invoices label the identifier inconsistently (RUT, R.U.T.,
	// RUTN°) and the extractor must accept all of them.
	cases := []struct {
		text string
		want string
	}{
		{"EmisorR.U.T.:76.124.890-1Giro", "761248901"},
		{"RUT:4.835.956-6", "48359566"},
		{"RUTN°12.345.678-K", "12345678K"},
		{"rut:1.234.567-8", "12345678"},
		{"sinidentificadoraqui", ""},
	}
	for _, tc := range cases {
		if got := extractRUT(tc.text); got != tc.want {
			t.Errorf("extractRUT(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestExtractRUT_PrefersAfterAddressee(t *testing.T) {
	// WHAT: With an emitter RUT and a recipient RUT, the one following the
	// addressee label wins.
	// WHY: Invoices carry the issuer's RUT in the header; the recipient's
	// RUT after "Señor(es)" is the one that names the document.
	text := "EMISORR.U.T.:76.124.890-1FACTURASeñor(es)ClienteLtda.RUT:4.835.956-6Direccion"
	if got := extractRUT(text); got != "48359566" {
		t.Errorf("extractRUT = %q, want %q", got, "48359566")
	}
}

func TestExtractRUT_NoAnchorPicksLast(t *testing.T) {
	// WHAT: Duplicate RUTs without an addressee label resolve to the last
	// occurrence.
	// WHY: In that layout the recipient block comes after the emitter
	// block, so document order is the only signal left.
	text := "RUT:76.124.890-1algodespuesRUT:4.835.956-6"
	if got := extractRUT(text); got != "48359566" {
		t.Errorf("extractRUT = %q, want %q", got, "48359566")
	}
}

func TestSelectRUT_NearestForwardOfAnchor(t *testing.T) {
	// WHAT: Candidates before the anchor never win even when closer in
	// absolute distance.
	// WHY: The label anchors what follows it; backwards proximity is a
	// coincidence of layout.
	cands := []rutCandidate{
		{pos: 95, value: "11.111.111-1"},
		{pos: 200, value: "22.222.222-2"},
	}
	anchors := []int{100}
	if got := selectRUT(cands, anchors); got != "22.222.222-2" {
		t.Errorf("selectRUT = %q, want %q", got, "22.222.222-2")
	}
}
