// Package browser defines the page-automation surface the account-based
// provider drives, plus a static implementation that replays forms and
// links over HTTP.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a selector matches nothing.
var ErrNotFound = errors.New("browser: element not found")

// Page is a single navigable page owned by one adapter at a time.
type Page interface {
	// Navigate loads url.
	Navigate(ctx context.Context, url string) error
	// Fill sets the value of the first input matching selector.
	Fill(selector, value string) error
	// Click activates the first element matching selector: links are
	// followed, submit controls submit their form.
	Click(ctx context.Context, selector string) error
	// WaitFor blocks until selector matches or timeout elapses.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	// Exists reports whether selector matches on the current page.
	Exists(selector string) bool
	// Markup returns the current document.
	Markup() string
	// URL returns the current page address.
	URL() string
}
