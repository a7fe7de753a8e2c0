package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-resolver/internal/resilience"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxBodyBytes     = 4 << 20
)

// ProxyConfig describes an upstream proxy. A zero value means a direct
// connection. When SessionFormat is set, every request gets a fresh
// session id spliced into the proxy username, e.g. "%s-session-%s"
// yields "user-session-3f9a1c2b".
type ProxyConfig struct {
	URL           string `yaml:"url" mapstructure:"url"`
	Username      string `yaml:"username" mapstructure:"username"`
	Password      string `yaml:"password" mapstructure:"password"`
	SessionFormat string `yaml:"session_format" mapstructure:"session_format"`
}

// Enabled reports whether a proxy is configured.
func (p ProxyConfig) Enabled() bool {
	return p.URL != ""
}

// String renders the proxy with its credentials redacted.
func (p ProxyConfig) String() string {
	if !p.Enabled() {
		return "direct"
	}
	return RedactProxy(p.URL)
}

// proxyURL builds the proxy URL for one request.
func (p ProxyConfig) proxyURL() (*url.URL, error) {
	u, err := url.Parse(p.URL)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: parse proxy url")
	}
	user := p.Username
	if user == "" && u.User != nil {
		user = u.User.Username()
	}
	pass := p.Password
	if pass == "" && u.User != nil {
		pass, _ = u.User.Password()
	}
	if p.SessionFormat != "" && user != "" {
		user = fmt.Sprintf(p.SessionFormat, user, NewSessionID())
	}
	if user != "" {
		u.User = url.UserPassword(user, pass)
	}
	return u, nil
}

// NewSessionID returns a short random proxy session id.
func NewSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithProxy routes requests through the given proxy.
func WithProxy(p ProxyConfig) FetcherOption {
	return func(f *HTTPFetcher) { f.proxy = p }
}

// WithCookieJar shares a cookie jar, e.g. between a search and a detail fetcher.
func WithCookieJar(jar http.CookieJar) FetcherOption {
	return func(f *HTTPFetcher) { f.jar = jar }
}

// WithRateLimit paces requests to rps per second.
func WithRateLimit(rps float64) FetcherOption {
	return func(f *HTTPFetcher) {
		if rps > 0 {
			f.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithTimeout sets the per-request client timeout.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithUserAgent overrides the default browser user agent.
func WithUserAgent(ua string) FetcherOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// HTTPFetcher fetches pages over net/http, optionally through a proxy.
type HTTPFetcher struct {
	name      string
	proxy     ProxyConfig
	jar       http.CookieJar
	limiter   *rate.Limiter
	timeout   time.Duration
	userAgent string
	client    *http.Client
}

// NewHTTPFetcher creates a named fetcher.
func NewHTTPFetcher(name string, opts ...FetcherOption) (*HTTPFetcher, error) {
	f := &HTTPFetcher{
		name:      name,
		timeout:   30 * time.Second,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, eris.Wrap(err, "scrape: create cookie jar")
		}
		f.jar = jar
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        10,
		IdleConnTimeout:     60 * time.Second,
	}
	if f.proxy.Enabled() {
		if _, err := f.proxy.proxyURL(); err != nil {
			return nil, err
		}
		p := f.proxy
		transport.Proxy = func(*http.Request) (*url.URL, error) {
			return p.proxyURL()
		}
	}

	f.client = &http.Client{
		Timeout:   f.timeout,
		Jar:       f.jar,
		Transport: transport,
	}
	return f, nil
}

// Name returns the fetcher name.
func (f *HTTPFetcher) Name() string { return f.name }

// Jar returns the fetcher's cookie jar.
func (f *HTTPFetcher) Jar() http.CookieJar { return f.jar }

// Fetch performs the request and returns the page.
func (f *HTTPFetcher) Fetch(ctx context.Context, r Request) (*Result, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "scrape: rate limiter wait")
		}
	}

	var body io.Reader
	if r.Form != nil {
		body = strings.NewReader(r.Form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, r.Method(), r.URL, body)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: %s: create request", f.name)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", f.userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}
	if r.Form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if r.Referer != "" {
		req.Header.Set("Referer", r.Referer)
	}

	zap.L().Debug("scrape: fetch",
		zap.String("fetcher", f.name),
		zap.String("method", req.Method),
		zap.String("url", r.URL),
		zap.String("proxy", f.proxy.String()),
	)

	resp, err := f.client.Do(req)
	if err != nil {
		if code := f.tunnelStatus(err); code != 0 {
			return nil, &resilience.StatusError{Service: "scrape: " + f.name + ": proxy connect", StatusCode: code, Body: http.StatusText(code)}
		}
		return nil, eris.Wrapf(err, "scrape: %s: fetch", f.name)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: %s: read body", f.name)
	}

	if resp.StatusCode >= 500 {
		snippet := string(data)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &resilience.StatusError{Service: "scrape: " + f.name, StatusCode: resp.StatusCode, Body: snippet}
	}

	return &Result{
		URL:        r.URL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Source:     f.name,
	}, nil
}

// tunnelStatus recovers the 5xx status of a failed proxy CONNECT. The
// transport reports it only as the bare status text, e.g. "Bad Gateway".
func (f *HTTPFetcher) tunnelStatus(err error) int {
	if !f.proxy.Enabled() {
		return 0
	}
	var ue *url.Error
	if !errors.As(err, &ue) || ue.Err == nil {
		return 0
	}
	msg := strings.TrimSpace(ue.Err.Error())
	for code := http.StatusInternalServerError; code <= http.StatusGatewayTimeout; code++ {
		if text := http.StatusText(code); text != "" && (msg == text || strings.HasSuffix(msg, ": "+text)) {
			return code
		}
	}
	return 0
}

// DowngradeToHTTP rewrites an https URL to plain http. Other URLs are
// returned unchanged with ok=false.
func DowngradeToHTTP(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "https" {
		return rawURL, false
	}
	u.Scheme = "http"
	return u.String(), true
}
