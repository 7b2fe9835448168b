package capture

import (
	"strings"
	"testing"
	"time"

	"github.com/situ-care/nubox-pdf-downloader/pdfmeta"
)

func TestFilename_WithMetadata(t *testing.T) {
	// WHAT: Resolved RUT and issue date produce the content-derived name
	// {rut}-{date}-{timestamp}-{hash}.pdf.
	// WHY: The name is the artifact's identity; same document, same
	// instant, same URL must always yield the same name.
	meta := pdfmeta.Metadata{RUT: "761248901", IssueDate: "2025-12-15"}
	now := time.Date(2026, 8, 25, 14, 30, 5, 0, time.UTC)

	got := Filename(meta, "https://example.test/invoice?id=42", now)
	if !strings.HasPrefix(got, "761248901-2025-12-15-20260825T143005-") {
		t.Errorf("unexpected prefix: %q", got)
	}
	if !strings.HasSuffix(got, ".pdf") {
		t.Errorf("missing .pdf suffix: %q", got)
	}

	again := Filename(meta, "https://example.test/invoice?id=42", now)
	if got != again {
		t.Errorf("not deterministic: %q vs %q", got, again)
	}
}

func TestFilename_GenericWhenIncomplete(t *testing.T) {
	// WHAT: A missing RUT or issue date drops to the generic pdf-… form.
	// WHY: Partial metadata must not produce half-identified names.
	now := time.Date(2026, 8, 25, 14, 30, 5, 0, time.UTC)
	for _, meta := range []pdfmeta.Metadata{
		{},
		{RUT: "761248901"},
		{IssueDate: "2025-12-15"},
	} {
		got := Filename(meta, "https://example.test/doc", now)
		if !strings.HasPrefix(got, "pdf-20260825T143005-") {
			t.Errorf("meta %+v: unexpected name %q", meta, got)
		}
	}
}

func TestFilename_TimestampIsUTC(t *testing.T) {
	// WHAT: The timestamp renders in UTC regardless of the input zone.
	// WHY: Names must sort consistently across deployments in different
	// time zones.
	loc := time.FixedZone("CLST", -3*3600)
	now := time.Date(2026, 8, 25, 21, 0, 0, 0, loc)
	got := Filename(pdfmeta.Metadata{}, "https://example.test/doc", now)
	if !strings.HasPrefix(got, "pdf-20260826T000000-") {
		t.Errorf("timestamp not UTC: %q", got)
	}
}

func TestURLHash(t *testing.T) {
	// WHAT: The digest is short, alphanumeric, and distinguishes URLs.
	// WHY: It only disambiguates concurrent captures of different URLs in
	// the same second, so it must be filesystem-safe above all.
	a := urlHash("https://example.test/doc/a")
	b := urlHash("https://example.test/doc/b")
	if a == b {
		t.Errorf("distinct URLs hash equal: %q", a)
	}
	// Targets share long scheme/host prefixes and differ only deep in the
	// query; the digest must still tell them apart.
	q1 := urlHash("https://portal.test/webservice/documento?folio=100")
	q2 := urlHash("https://portal.test/webservice/documento?folio=200")
	if q1 == q2 {
		t.Errorf("query-only difference hashes equal: %q", q1)
	}
	for _, h := range []string{a, b} {
		if len(h) > urlHashLen {
			t.Errorf("hash too long: %q", h)
		}
		for _, c := range h {
			alnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
			if !alnum {
				t.Errorf("hash %q contains %q", h, c)
			}
		}
	}
	if urlHash("https://example.test/doc/a") != a {
		t.Error("hash not deterministic")
	}
}
