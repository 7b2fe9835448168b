package capture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// formDefJS serializes the page's first form: action, method, and all named
// control values with live checked state.
const formDefJS = `() => {
	const form = document.querySelector('form');
	if (!form) return '';
	const fields = {};
	for (const el of form.elements) {
		if (!el.name) continue;
		if ((el.type === 'checkbox' || el.type === 'radio') && !el.checked) continue;
		fields[el.name] = el.value;
	}
	return JSON.stringify({
		action: form.action || location.href,
		method: (form.method || 'GET').toUpperCase(),
		fields: fields,
	});
}`

// fetchReplayJS re-issues a submission from inside the page, so the request
// carries the browser's ambient cookies. Returns the response body base64.
const fetchReplayJS = `async (action, method, body) => {
	const opts = { method: method, credentials: 'include' };
	if (body) {
		opts.headers = { 'Content-Type': 'application/x-www-form-urlencoded' };
		opts.body = body;
	}
	const resp = await fetch(action, opts);
	const buf = await resp.arrayBuffer();
	const bytes = new Uint8Array(buf);
	let bin = '';
	const chunk = 0x8000;
	for (let i = 0; i < bytes.length; i += chunk) {
		bin += String.fromCharCode.apply(null, bytes.subarray(i, i + chunk));
	}
	return btoa(bin);
}`

// Recoverer replays the page's submission when passive capture fails.
// Attempts run in order and short-circuit on the first magic-byte-validated
// buffer; every attempt's error is logged and swallowed so the next path
// still runs.
type Recoverer struct {
	page    *rod.Page
	browser *rod.Browser
	sniffer *Sniffer
	logger  *slog.Logger
	clock   Clock
}

// NewRecoverer builds a Recoverer bound to the request's page and sniffer.
func NewRecoverer(page *rod.Page, browser *rod.Browser, sniffer *Sniffer, logger *slog.Logger, clock Clock) *Recoverer {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Recoverer{page: page, browser: browser, sniffer: sniffer, logger: logger, clock: clock}
}

// Recover tries each fallback path in order. Returns nil when all are
// exhausted.
func (r *Recoverer) Recover(ctx context.Context, targetURL string) *Document {
	if doc := r.directResponse(); doc != nil {
		return doc
	}
	if doc := r.replayForm(ctx, targetURL); doc != nil {
		return doc
	}
	return r.secondaryPage(ctx, targetURL)
}

// directResponse reads the buffer of the original navigation response when
// its content-type already claims PDF.
func (r *Recoverer) directResponse() *Document {
	rec := r.sniffer.NavigationRecord()
	if rec == nil || !rec.PDFLike {
		return nil
	}
	body, err := r.sniffer.FetchBody(rec.RequestID)
	if err != nil || !IsPDF(body) {
		r.logger.Debug("fallback: direct response read failed",
			"url", rec.URL, "error", err)
		return nil
	}
	r.logger.Info("fallback: pdf from direct navigation response",
		"url", rec.URL, "bytes", len(body))
	return &Document{Bytes: body, Strategy: StrategyDirectResponse}
}

// replayForm re-issues the page's form submission as an in-page fetch when
// the page has navigated away from the original target (the usual
// post-submit state). The form definition comes from live evaluation, with
// a DOM-snapshot parse as backstop.
func (r *Recoverer) replayForm(ctx context.Context, targetURL string) *Document {
	current := pageURL(r.page)
	if current == "" || current == targetURL {
		return nil
	}

	def, err := r.formDefinition(ctx, current)
	if err != nil {
		r.logger.Debug("fallback: form extraction failed", "error", err)
		return nil
	}

	method, body := def.Method, ""
	if def.HasFields() {
		body = def.Encode()
	} else {
		method = "GET"
	}

	res, err := r.page.Context(ctx).Eval(fetchReplayJS, def.Action, method, body)
	if err != nil {
		r.logger.Debug("fallback: fetch replay failed",
			"action", def.Action, "method", method, "error", err)
		return nil
	}
	buf, err := base64.StdEncoding.DecodeString(res.Value.Str())
	if err != nil || !IsPDF(buf) {
		r.logger.Debug("fallback: replay body is not a pdf",
			"action", def.Action, "bytes", len(buf))
		return nil
	}

	r.logger.Info("fallback: pdf from form replay",
		"action", def.Action, "method", method, "bytes", len(buf))
	return &Document{Bytes: buf, Strategy: StrategyFormReplay}
}

func (r *Recoverer) formDefinition(ctx context.Context, current string) (*FormDef, error) {
	res, err := r.page.Context(ctx).Eval(formDefJS)
	if err == nil && res.Value.Str() != "" {
		var raw struct {
			Action string            `json:"action"`
			Method string            `json:"method"`
			Fields map[string]string `json:"fields"`
		}
		if err := json.Unmarshal([]byte(res.Value.Str()), &raw); err == nil {
			def := &FormDef{Action: raw.Action, Method: raw.Method, Fields: url.Values{}}
			for k, v := range raw.Fields {
				def.Fields.Set(k, v)
			}
			return def, nil
		}
	}

	// Evaluation failed (or found nothing) — parse the serialized DOM.
	html, herr := r.page.Context(ctx).HTML()
	if herr != nil {
		return nil, fmt.Errorf("fallback: page html: %w", herr)
	}
	return ParseForm(html, current)
}

// secondaryPage opens an independent page, navigates it straight to the
// current URL with a network-idle bar, and retrieves the buffer there. The
// page is disposed on success and failure alike.
func (r *Recoverer) secondaryPage(ctx context.Context, targetURL string) *Document {
	current := pageURL(r.page)
	if current == "" {
		current = targetURL
	}

	second, err := r.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		r.logger.Warn("fallback: open secondary page", "error", err)
		return nil
	}
	defer func() {
		if err := second.Close(); err != nil {
			r.logger.Warn("fallback: close secondary page", "error", err)
		}
	}()

	sniffer := NewSniffer(second, r.logger, r.clock)
	if err := sniffer.Arm(ctx); err != nil {
		r.logger.Warn("fallback: arm secondary sniffer", "error", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	wait := second.Context(navCtx).WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
	if err := second.Context(navCtx).Navigate(current); err != nil {
		// Direct PDF payloads can abort the navigation; the sniffer may
		// still have observed the response.
		r.logger.Debug("fallback: secondary navigate", "url", current, "error", err)
	}
	wait()

	for i := 0; i < 10; i++ {
		if doc := sniffer.Document(); doc != nil {
			doc.Strategy = StrategySecondaryPage
			r.logger.Info("fallback: pdf from secondary page",
				"url", current, "bytes", len(doc.Bytes))
			return doc
		}
		if err := r.clock.Sleep(ctx, 500*time.Millisecond); err != nil {
			break
		}
	}

	// High-level read produced nothing: try the low-level body call on the
	// secondary page's navigation response.
	if rec := sniffer.NavigationRecord(); rec != nil {
		body, err := sniffer.FetchBody(rec.RequestID)
		if err == nil && IsPDF(body) {
			r.logger.Info("fallback: pdf from secondary page body call",
				"url", current, "bytes", len(body))
			return &Document{Bytes: body, Strategy: StrategySecondaryPage}
		}
		r.logger.Debug("fallback: secondary body call failed",
			"url", current, "error", err)
	}
	return nil
}

func pageURL(p *rod.Page) string {
	info, err := p.Info()
	if err != nil {
		return ""
	}
	return info.URL
}
