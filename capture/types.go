package capture

import (
	"bytes"
	"errors"
	"time"

	"github.com/situ-care/nubox-pdf-downloader/pdfmeta"
)

// Capture strategies, recorded on the document for diagnostics.
const (
	// StrategyResponseEvent: body read immediately when the response event
	// arrived (works for plain GET-served PDFs).
	StrategyResponseEvent = "response-event"
	// StrategyNetworkEvent: body retrieved after the loading-finished
	// network event, with settle and retry (POST-served PDFs).
	StrategyNetworkEvent = "network-event"
	// StrategyDirectResponse: the original navigation response itself was
	// the PDF and its buffer was read during fallback.
	StrategyDirectResponse = "direct-response"
	// StrategyFormReplay: the page's form submission was re-issued as an
	// in-page fetch carrying ambient cookies.
	StrategyFormReplay = "form-replay"
	// StrategySecondaryPage: a second, independent page navigated to the
	// post-submit URL produced the buffer.
	StrategySecondaryPage = "secondary-page"
)

// ErrNoPDF is returned when neither passive capture nor any fallback
// produced a magic-byte-validated buffer within the capture budget.
var ErrNoPDF = errors.New("capture: no PDF found within capture budget")

// pdfMagic is the fixed 4-byte marker at the start of every valid PDF.
var pdfMagic = []byte("%PDF")

// IsPDF reports whether buf begins with the PDF magic marker. Content-type
// claims alone never qualify a buffer as a document.
func IsPDF(buf []byte) bool {
	return len(buf) >= len(pdfMagic) && bytes.HasPrefix(buf, pdfMagic)
}

// Document is a captured PDF buffer plus the strategy that produced it.
// It is owned by the orchestrator for the duration of one request and never
// shared across requests.
type Document struct {
	Bytes    []byte
	Strategy string
}

// Outcome is the single result of a capture request.
type Outcome struct {
	CaptureID string
	Document  *Document
	Filename  string
	Metadata  pdfmeta.Metadata
	Elapsed   time.Duration
}
