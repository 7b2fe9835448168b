package capture

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/situ-care/nubox-pdf-downloader/pdfmeta"
)

// timestampLayout is sortable and colon-free, safe for every filesystem.
const timestampLayout = "20060102T150405"

// urlHashLen bounds the digest; it only keeps same-second captures of
// different URLs apart, it is not a security property.
const urlHashLen = 10

// Filename derives the artifact name from extracted metadata. With both
// RUT and issue date resolved the name is content-derived and
// deterministic up to the request instant; otherwise a generic form is
// used.
func Filename(meta pdfmeta.Metadata, rawURL string, now time.Time) string {
	ts := now.UTC().Format(timestampLayout)
	hash := urlHash(rawURL)
	if meta.RUT != "" && meta.IssueDate != "" {
		return fmt.Sprintf("%s-%s-%s-%s.pdf", meta.RUT, meta.IssueDate, ts, hash)
	}
	return fmt.Sprintf("pdf-%s-%s.pdf", ts, hash)
}

// urlHash is a short filesystem-safe digest of the request URL: FNV-1a over
// the full URL, hex, truncated. The whole URL contributes, so targets
// differing only in their query still get distinct names.
func urlHash(rawURL string) string {
	h := fnv.New64a()
	h.Write([]byte(rawURL))
	s := fmt.Sprintf("%016x", h.Sum64())
	return s[:urlHashLen]
}
