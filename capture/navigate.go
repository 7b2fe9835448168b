package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Navigator drives the target page: initial load with a "content parsed"
// readiness bar, then a bounded wait for the follow-on navigation the
// page's auto-submitting form triggers.
type Navigator struct {
	page         *rod.Page
	logger       *slog.Logger
	submitWindow time.Duration
}

// NewNavigator wraps a page. submitWindow bounds the auto-submit wait.
func NewNavigator(page *rod.Page, logger *slog.Logger, submitWindow time.Duration) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	if submitWindow <= 0 {
		submitWindow = 30 * time.Second
	}
	return &Navigator{page: page, logger: logger, submitWindow: submitWindow}
}

// Load navigates to targetURL and waits for DOMContentLoaded — not full
// network idle, since the page's own script still has work to do.
func (n *Navigator) Load(ctx context.Context, targetURL string) error {
	page := n.page.Context(ctx)
	wait := page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := page.Navigate(targetURL); err != nil {
		return fmt.Errorf("navigate %s: %w", targetURL, err)
	}
	wait()
	return nil
}

// AwaitAutoSubmit waits up to the submit window for the navigation the
// auto-submitting form produces. Timing out is not an error — pages that
// submit via in-page fetch never produce a full navigation, and the
// polling phase covers them.
func (n *Navigator) AwaitAutoSubmit(ctx context.Context) {
	subCtx, cancel := context.WithTimeout(ctx, n.submitWindow)
	defer cancel()

	wait := n.page.Context(subCtx).WaitNavigation(proto.PageLifecycleEventNameLoad)
	wait()

	if subCtx.Err() != nil {
		n.logger.Debug("navigator: no follow-on navigation within window",
			"window", n.submitWindow)
	}
}
