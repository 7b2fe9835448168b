package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Settle timings for the low-level channel: bodies are not always
// retrievable the instant loading-finished fires, so the first read waits
// briefly and a failed read is retried once after a longer pause.
const (
	bodySettleDelay = 300 * time.Millisecond
	bodyRetryDelay  = time.Second
)

// ResponseRecord tracks one in-flight network exchange, keyed by the CDP
// request identifier. Records are transient — the map lives only as long as
// the page.
type ResponseRecord struct {
	RequestID   proto.NetworkRequestID
	URL         string
	Status      int
	MIMEType    string
	ContentType string
	PDFLike     bool
}

// Sniffer races two observation channels over the same page to obtain
// response bytes that identify as PDF:
//
//   - the immediate channel reads the body as soon as the response event
//     arrives — reliable for GET-served PDFs, but POST response bodies are
//     frequently already discarded by then;
//   - the deferred channel waits for the loading-finished event of a
//     request previously flagged PDF-like, then fetches the body with a
//     settle delay and one retry.
//
// Whichever channel validates the magic bytes first wins the result cell;
// the other becomes a no-op.
type Sniffer struct {
	page   *rod.Page
	logger *slog.Logger
	clock  Clock
	cell   resultCell

	mu      sync.Mutex
	records map[proto.NetworkRequestID]*ResponseRecord
	nav     *ResponseRecord
}

// NewSniffer creates a Sniffer scoped to one page. Arm it before the
// navigation starts so no response is missed.
func NewSniffer(page *rod.Page, logger *slog.Logger, clock Clock) *Sniffer {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Sniffer{
		page:    page,
		logger:  logger,
		clock:   clock,
		records: make(map[proto.NetworkRequestID]*ResponseRecord),
	}
}

// Arm enables the Network domain and starts listening for response events.
// Listeners live until ctx is cancelled or the page closes.
func (s *Sniffer) Arm(ctx context.Context) error {
	if err := (proto.NetworkEnable{}).Call(s.page); err != nil {
		return fmt.Errorf("sniffer: enable network: %w", err)
	}
	go s.listen(ctx)
	return nil
}

// Captured reports whether a validated document has been committed.
func (s *Sniffer) Captured() bool { return s.cell.get() != nil }

// Document returns the committed document, or nil while none is captured.
func (s *Sniffer) Document() *Document { return s.cell.get() }

// NavigationRecord returns the record of the main document response, if the
// navigation produced one.
func (s *Sniffer) NavigationRecord() *ResponseRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav
}

// FetchBody retrieves the response body for a request id via the protocol's
// body-retrieval call, decoding base64 payloads.
func (s *Sniffer) FetchBody(id proto.NetworkRequestID) ([]byte, error) {
	res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(s.page)
	if err != nil {
		return nil, fmt.Errorf("sniffer: get response body: %w", err)
	}
	if res.Base64Encoded {
		return base64.StdEncoding.DecodeString(res.Body)
	}
	return []byte(res.Body), nil
}

func (s *Sniffer) listen(ctx context.Context) {
	wait := s.page.Context(ctx).EachEvent(
		func(e *proto.NetworkResponseReceived) { s.onResponse(ctx, e) },
		func(e *proto.NetworkLoadingFinished) { s.onFinished(ctx, e) },
	)
	wait()
}

func (s *Sniffer) onResponse(ctx context.Context, e *proto.NetworkResponseReceived) {
	rec := &ResponseRecord{
		RequestID:   e.RequestID,
		URL:         e.Response.URL,
		Status:      e.Response.Status,
		MIMEType:    e.Response.MIMEType,
		ContentType: headerValue(e.Response.Headers, "content-type"),
	}
	rec.PDFLike = looksLikePDF(rec.ContentType, rec.MIMEType, rec.URL)

	s.mu.Lock()
	s.records[e.RequestID] = rec
	if e.Type == proto.NetworkResourceTypeDocument {
		s.nav = rec
	}
	s.mu.Unlock()

	if !rec.PDFLike || s.Captured() {
		return
	}
	s.logger.Debug("sniffer: pdf-like response", "url", rec.URL,
		"content_type", rec.ContentType, "status", rec.Status)

	// Immediate channel: try the body right away.
	go func() {
		body, err := s.FetchBody(rec.RequestID)
		if err != nil || len(body) == 0 {
			// Expected for POST responses whose body is not buffered yet;
			// the deferred channel picks those up.
			s.logger.Debug("sniffer: immediate body read failed",
				"url", rec.URL, "error", err)
			return
		}
		s.commit(body, StrategyResponseEvent, rec)
	}()
}

func (s *Sniffer) onFinished(ctx context.Context, e *proto.NetworkLoadingFinished) {
	s.mu.Lock()
	rec := s.records[e.RequestID]
	s.mu.Unlock()
	if rec == nil || !rec.PDFLike || s.Captured() {
		return
	}

	// Deferred channel: settle, fetch, retry once.
	go func() {
		if err := s.clock.Sleep(ctx, bodySettleDelay); err != nil {
			return
		}
		body, err := s.FetchBody(rec.RequestID)
		if err != nil || len(body) == 0 {
			if err := s.clock.Sleep(ctx, bodyRetryDelay); err != nil {
				return
			}
			body, err = s.FetchBody(rec.RequestID)
			if err != nil || len(body) == 0 {
				s.logger.Debug("sniffer: deferred body read failed",
					"url", rec.URL, "error", err)
				return
			}
		}
		s.commit(body, StrategyNetworkEvent, rec)
	}()
}

// commit validates the magic bytes and stores the buffer in the result
// cell. A content-type claiming PDF with a non-matching body is logged and
// discarded, never treated as success.
func (s *Sniffer) commit(body []byte, strategy string, rec *ResponseRecord) bool {
	if !IsPDF(body) {
		s.logger.Warn("sniffer: discarding non-PDF body",
			"url", rec.URL, "content_type", rec.ContentType, "bytes", len(body))
		return false
	}
	if !s.cell.commit(&Document{Bytes: body, Strategy: strategy}) {
		return false
	}
	s.logger.Info("sniffer: pdf captured",
		"url", rec.URL, "strategy", strategy, "bytes", len(body))
	return true
}

// looksLikePDF flags a response as a capture candidate from its declared
// type or URL. The flag only gates body retrieval; acceptance always goes
// through the magic-byte check.
func looksLikePDF(contentType, mimeType, rawURL string) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	if strings.Contains(strings.ToLower(mimeType), "application/pdf") {
		return true
	}
	u := strings.ToLower(rawURL)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.HasSuffix(u, ".pdf")
}

func headerValue(h proto.NetworkHeaders, name string) string {
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v.Str()
		}
	}
	return ""
}
