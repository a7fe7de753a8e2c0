package scrape

import (
	"context"
	"net/http"
	"net/url"
)

// Request is a single page fetch. A non-nil Form turns it into a
// form-encoded POST.
type Request struct {
	URL     string
	Form    url.Values
	Header  http.Header
	Referer string
}

// Method returns the HTTP method implied by the request.
func (r Request) Method() string {
	if r.Form != nil {
		return http.MethodPost
	}
	return http.MethodGet
}

// Result holds a fetched page with its source.
type Result struct {
	URL        string // requested URL
	FinalURL   string // after redirects
	StatusCode int
	Header     http.Header
	Body       []byte
	Source     string // fetcher name, e.g. "unblocker", "direct"
}

// Markup returns the body as a string.
func (r *Result) Markup() string {
	return string(r.Body)
}

// Text returns the visible text of the page.
func (r *Result) Text() string {
	return StripHTML(string(r.Body))
}

// Fetcher retrieves a single page. Fetchers return a Result for any
// response below 500 so callers can inspect challenge pages; 5xx answers
// and transport failures are errors.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Result, error)
	Name() string
}
