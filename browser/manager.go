// Package browser manages the shared headless Chrome lifecycle: launch via
// Rod's launcher, health-check on page acquisition, transparent replacement
// after a crash, graceful close. One Manager (and one Chrome process) is
// shared by all concurrent capture requests; each request gets its own page.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// NoSandbox disables the Chrome sandbox (required in most containers).
	NoSandbox bool

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome process handle.
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	startAt time.Time
	closed  bool
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance). A launch
// failure is retried once with a minimal flag set before surfacing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	return m.launchLocked()
}

// Browser returns the current Rod browser handle. Thread-safe.
func (m *Manager) Browser() *rod.Browser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser
}

// NewPage opens a stealth page on a healthy browser. If the process died
// since the last call, it is replaced transparently first.
func (m *Manager) NewPage(ctx context.Context) (*rod.Page, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if !m.healthyLocked() {
		m.cfg.Logger.Warn("browser: unhealthy, replacing process",
			"uptime", time.Since(m.startAt))
		m.cleanupLocked()
		if err := m.launchLocked(); err != nil {
			m.mu.Unlock()
			return nil, fmt.Errorf("browser: replace: %w", err)
		}
	}
	b := m.browser
	m.mu.Unlock()

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	return page, nil
}

// Close shuts down Chrome. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.cleanupLocked()
	return nil
}

func (m *Manager) launchLocked() error {
	b, l, err := m.connect(false)
	if err != nil {
		m.cfg.Logger.Warn("browser: launch failed, retrying with minimal flags",
			"error", err)
		b, l, err = m.connect(true)
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
	}

	// Ignore certificate errors: target sites are third-party and some
	// serve through interception-prone chains.
	if err := b.IgnoreCertErrors(true); err != nil {
		m.cfg.Logger.Warn("browser: ignore cert errors failed", "error", err)
	}

	m.browser = b
	m.lnch = l
	m.startAt = time.Now()
	m.cfg.Logger.Info("browser: ready", "remote", m.cfg.RemoteURL != "")
	return nil
}

func (m *Manager) connect(minimal bool) (*rod.Browser, *launcher.Launcher, error) {
	var wsURL string
	var l *launcher.Launcher

	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
	} else {
		l = launcher.New().Headless(true)
		if m.cfg.NoSandbox {
			l = l.NoSandbox(true)
		}
		if !minimal {
			l = l.
				Set("disable-blink-features", "AutomationControlled").
				Set("disable-dev-shm-usage").
				Set("disable-gpu").
				Set("no-first-run")
		}
		u, err := l.Launch()
		if err != nil {
			if l != nil {
				l.Cleanup()
			}
			return nil, nil, err
		}
		wsURL = u
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Cleanup()
		}
		return nil, nil, fmt.Errorf("connect %s: %w", wsURL, err)
	}
	return b, l, nil
}

// healthyLocked pings the process over the protocol.
func (m *Manager) healthyLocked() bool {
	if m.browser == nil {
		return false
	}
	_, err := proto.BrowserGetVersion{}.Call(m.browser)
	return err == nil
}

func (m *Manager) cleanupLocked() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Warn("browser: close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}
