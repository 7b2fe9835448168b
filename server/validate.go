package server

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrMissingURL is returned when the url parameter is absent.
var ErrMissingURL = errors.New("url parameter is required")

// validateTargetURL checks the capture target before any browser work:
// present, parseable, http(s) scheme, non-empty host. Anything else is a
// 400, never a browser session.
func validateTargetURL(rawURL string) error {
	if rawURL == "" {
		return ErrMissingURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("unsupported scheme %q: only http and https are allowed", u.Scheme)
	}
	if u.Hostname() == "" {
		return errors.New("url has no host")
	}
	return nil
}
