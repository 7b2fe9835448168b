// Package capture implements the PDF capture pipeline: navigation with
// auto-submit handling, two racing network observation channels, a
// composed timeout ladder, layered fallback recovery, and deterministic
// filename synthesis.
//
// One Orchestrator serves all requests; each request gets its own page,
// its own sniffer, and its own result cell, so concurrent captures cannot
// interfere through the capture mechanism itself.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/google/uuid"

	"github.com/situ-care/nubox-pdf-downloader/pdfmeta"
)

// BrowserSession is the browser handle the orchestrator works against. The
// lifecycle (launch, health check, replacement) is owned elsewhere and
// injected here.
type BrowserSession interface {
	// NewPage opens a fresh page on a healthy browser.
	NewPage(ctx context.Context) (*rod.Page, error)
	// Browser exposes the underlying handle for opening secondary pages.
	Browser() *rod.Browser
}

// Config tunes the capture pipeline. Zero values take the production
// defaults, which add up to a passive-capture budget of roughly 65s.
type Config struct {
	// SubmitWindow bounds the wait for the auto-submit navigation.
	SubmitWindow time.Duration
	// PollInterval and PollCount define the primary wait.
	PollInterval time.Duration
	PollCount    int
	// IdleWait bounds the network-idle wait after polling is exhausted.
	IdleWait time.Duration
	// SettleDelay and GraceDelay give POST bodies a last chance to arrive.
	SettleDelay time.Duration
	GraceDelay  time.Duration

	// SaveDir, when set, persists captured buffers locally (best effort).
	SaveDir string

	Clock  Clock
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.SubmitWindow <= 0 {
		c.SubmitWindow = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.PollCount <= 0 {
		c.PollCount = 80
	}
	if c.IdleWait <= 0 {
		c.IdleWait = 20 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 3 * time.Second
	}
	if c.GraceDelay <= 0 {
		c.GraceDelay = 2 * time.Second
	}
	if c.Clock == nil {
		c.Clock = SystemClock
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Orchestrator sequences one capture per call and returns exactly one
// outcome. Safe for concurrent use.
type Orchestrator struct {
	session BrowserSession
	cfg     Config
	logger  *slog.Logger
}

// NewOrchestrator creates an Orchestrator over the given browser session.
func NewOrchestrator(session BrowserSession, cfg Config) *Orchestrator {
	cfg.defaults()
	return &Orchestrator{session: session, cfg: cfg, logger: cfg.Logger}
}

// Capture loads targetURL, observes the network for a PDF payload, falls
// back to active recovery when passive capture fails, and names the
// artifact from its extracted metadata. The request's page is closed on
// every exit path. Returns ErrNoPDF when the budget is exhausted.
func (o *Orchestrator) Capture(ctx context.Context, targetURL string) (*Outcome, error) {
	captureID := uuid.NewString()
	log := o.logger.With("capture_id", captureID, "url", targetURL)
	start := o.cfg.Clock.Now()

	page, err := o.session.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture: new page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Warn("capture: page close", "error", err)
		}
	}()

	// Listeners must be armed before navigation so the very first response
	// is already observable.
	sniffer := NewSniffer(page, log, o.cfg.Clock)
	if err := sniffer.Arm(ctx); err != nil {
		log.Warn("capture: arm sniffer", "error", err)
	}

	nav := NewNavigator(page, log, o.cfg.SubmitWindow)
	if err := nav.Load(ctx, targetURL); err != nil {
		// A direct PDF payload aborts the navigation itself; the sniffer
		// may still observe the response, so this is not fatal.
		log.Warn("capture: navigation", "error", err)
	}
	nav.AwaitAutoSubmit(ctx)

	doc := o.awaitPassive(ctx, page, sniffer, log)
	if doc == nil {
		log.Info("capture: passive phase exhausted, entering fallback")
		rec := NewRecoverer(page, o.session.Browser(), sniffer, log, o.cfg.Clock)
		doc = rec.Recover(ctx, targetURL)
	}
	if doc == nil {
		return nil, ErrNoPDF
	}

	meta := pdfmeta.Extract(doc.Bytes)
	filename := Filename(meta, targetURL, o.cfg.Clock.Now())
	o.saveLocal(doc, filename, log)

	elapsed := o.cfg.Clock.Now().Sub(start)
	log.Info("capture: complete",
		"strategy", doc.Strategy, "filename", filename,
		"bytes", len(doc.Bytes), "elapsed_ms", elapsed.Milliseconds())

	return &Outcome{
		CaptureID: captureID,
		Document:  doc,
		Filename:  filename,
		Metadata:  meta,
		Elapsed:   elapsed,
	}, nil
}

// awaitPassive composes the timeout ladder over the page's network-idle
// wait and the sniffer's result cell.
func (o *Orchestrator) awaitPassive(ctx context.Context, page *rod.Page, sniffer *Sniffer, log *slog.Logger) *Document {
	idle := func() {
		idleCtx, cancel := context.WithTimeout(ctx, o.cfg.IdleWait)
		defer cancel()
		wait := page.Context(idleCtx).WaitRequestIdle(300*time.Millisecond, nil, nil, nil)
		wait()
	}
	return o.ladder(ctx, sniffer.Document, idle)
}

// ladder runs the passive-capture waits in order: the primary poll, a
// bounded network-idle wait, a settle delay, and a final grace delay —
// each short-circuiting the moment a buffer appears.
func (o *Orchestrator) ladder(ctx context.Context, poll func() *Document, idle func()) *Document {
	for i := 0; i < o.cfg.PollCount; i++ {
		if doc := poll(); doc != nil {
			return doc
		}
		if err := o.cfg.Clock.Sleep(ctx, o.cfg.PollInterval); err != nil {
			return poll()
		}
	}

	idle()

	for _, d := range []time.Duration{o.cfg.SettleDelay, o.cfg.GraceDelay} {
		if doc := poll(); doc != nil {
			return doc
		}
		if err := o.cfg.Clock.Sleep(ctx, d); err != nil {
			break
		}
	}
	return poll()
}

// saveLocal persists the buffer when a save directory is configured.
// Best effort: failures are logged and ignored.
func (o *Orchestrator) saveLocal(doc *Document, filename string, log *slog.Logger) {
	if o.cfg.SaveDir == "" {
		return
	}
	if err := os.MkdirAll(o.cfg.SaveDir, 0o755); err != nil {
		log.Warn("capture: save dir", "dir", o.cfg.SaveDir, "error", err)
		return
	}
	path := filepath.Join(o.cfg.SaveDir, filename)
	if err := os.WriteFile(path, doc.Bytes, 0o644); err != nil {
		log.Warn("capture: save file", "path", path, "error", err)
		return
	}
	log.Debug("capture: saved local copy", "path", path)
}
