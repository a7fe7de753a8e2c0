// Package twocaptcha is a minimal client for the 2captcha in.php/res.php
// solving API, limited to Cloudflare Turnstile tasks.
package twocaptcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://2captcha.com"

// NotReady is the status text returned while a task is still being solved.
// The service has historically spelled it both ways.
const (
	NotReady       = "CAPCHA_NOT_READY"
	NotReadyLegacy = "CAPTCHA_NOT_READY"
)

// Client defines the 2captcha operations the solver bridge needs.
type Client interface {
	// Submit creates a solving task and returns its job id.
	Submit(ctx context.Context, req TurnstileRequest) (string, error)
	// Result fetches the current state of a task.
	Result(ctx context.Context, jobID string) (*ResultResponse, error)
}

// TurnstileRequest describes a Turnstile widget to solve.
type TurnstileRequest struct {
	SiteKey string
	PageURL string
}

// ResultResponse is the decoded res.php answer.
type ResultResponse struct {
	Ready bool
	Token string
}

// apiResponse is the json=1 envelope both endpoints answer with.
type apiResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// APIError is returned when the service answers with status 0 and an
// error code, or with a non-2xx HTTP status.
type APIError struct {
	StatusCode int
	Code       string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 && e.StatusCode != http.StatusOK {
		return fmt.Sprintf("twocaptcha: HTTP %d: %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("twocaptcha: %s", e.Code)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a 2captcha client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Submit(ctx context.Context, req TurnstileRequest) (string, error) {
	if req.SiteKey == "" || req.PageURL == "" {
		return "", eris.New("twocaptcha: sitekey and pageurl required")
	}
	form := url.Values{
		"key":     {c.apiKey},
		"method":  {"turnstile"},
		"sitekey": {req.SiteKey},
		"pageurl": {req.PageURL},
		"json":    {"1"},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/in.php", strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "twocaptcha: create submit request")
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(httpReq)
	if err != nil {
		return "", passAPIError(err, "twocaptcha: submit")
	}
	if resp.Status != 1 {
		return "", &APIError{StatusCode: http.StatusOK, Code: resp.Request}
	}
	return resp.Request, nil
}

func (c *httpClient) Result(ctx context.Context, jobID string) (*ResultResponse, error) {
	q := url.Values{
		"key":    {c.apiKey},
		"action": {"get"},
		"id":     {jobID},
		"json":   {"1"},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/res.php?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "twocaptcha: create result request")
	}

	resp, err := c.do(httpReq)
	if err != nil {
		return nil, passAPIError(err, "twocaptcha: result "+jobID)
	}
	if resp.Status == 1 {
		return &ResultResponse{Ready: true, Token: resp.Request}, nil
	}
	if resp.Request == NotReady || resp.Request == NotReadyLegacy {
		return &ResultResponse{Ready: false}, nil
	}
	return nil, &APIError{StatusCode: http.StatusOK, Code: resp.Request}
}

// passAPIError returns API errors untouched so callers can match them with
// errors.As, and wraps everything else.
func passAPIError(err error, msg string) error {
	if _, ok := err.(*APIError); ok {
		return err
	}
	return eris.Wrap(err, msg)
}

func (c *httpClient) do(req *http.Request) (*apiResponse, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Code: strings.TrimSpace(string(data))}
	}

	var out apiResponse
	if err := json.Unmarshal(data, &out); err != nil {
		// Some accounts still answer in the legacy "OK|<value>" text form.
		txt := strings.TrimSpace(string(data))
		if v, ok := strings.CutPrefix(txt, "OK|"); ok {
			return &apiResponse{Status: 1, Request: v}, nil
		}
		return &apiResponse{Status: 0, Request: txt}, nil
	}
	return &out, nil
}
