package familytree

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/lead-resolver/internal/model"
	"github.com/sells-group/lead-resolver/internal/resilience"
	"github.com/sells-group/lead-resolver/internal/scrape"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const resultsPage = `<html><body>
<div class="results">
  <div class="card"><a class="btn-success detail-link" href="/search/people/detail?x=1">Details</a></div>
  <div class="card"><a href="/record/abc123">JOHN SMITH, 52</a></div>
</div></body></html>`

const detailPage = `<html><body>
<div class="panel panel-primary">
  <div class="panel-heading">Current Address</div>
  <div class="panel-body"><a class="linked-record" href="/addr/1">1234 Oak Hollow Dr
     Austin, TX 78701</a></div>
</div>
<div class="panel panel-primary">
  <div class="panel-heading">Phone Numbers</div>
  <div class="panel-body">
    <div class="col-xs-12 col-md-6">
      <a href="/search?phoneno=5125559876">(512) 555-9876</a> - Landline
      <span>Last reported Mar 2021</span> Southwestern Bell
    </div>
    <div class="col-xs-12 col-md-6">
      <a href="/search?phoneno=5125551234">(512) 555-1234</a> - Wireless
      Possible Primary Phone <span>Last reported Jan 2024</span> Verizon
    </div>
    <div class="col-xs-12 col-md-6">
      <a href="/search?phoneno=5125551234">512.555.1234</a> - Wireless
    </div>
  </div>
</div></body></html>`

const challengePage = `<html><head><title>Just a moment...</title></head><body>
<form id="challenge-form" action="/verify" method="POST">
  <input type="hidden" name="md" value="tok-md">
  <div class="cf-turnstile" data-sitekey="0x4AAAAAAA"></div>
</form></body></html>`

type fakeSolver struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *fakeSolver) SolveChallenge(_ context.Context, ch *model.CaptchaChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		ch.Status = model.ChallengeTimedOut
		return s.err
	}
	ch.Token = "solved-token"
	ch.Status = model.ChallengeSolved
	return nil
}

func newFetcher(t *testing.T) scrape.Fetcher {
	t.Helper()
	f, err := scrape.NewHTTPFetcher("direct")
	require.NoError(t, err)
	return f
}

func TestLookup_Success(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/genealogy/results":
			gotQuery = r.URL.RawQuery
			_, _ = w.Write([]byte(resultsPage))
		case "/record/abc123":
			_, _ = w.Write([]byte(detailPage))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	f := newFetcher(t)
	a := New(Config{BaseURL: ts.URL, DefaultState: "TX"}, f, f, nil)
	res := a.Lookup(context.Background(), model.Identity{FirstName: "John", LastName: "Smith", City: "Austin"})

	require.True(t, res.Success, "reason: %s %s", res.Reason, res.Detail)
	assert.Equal(t, Name, res.ProviderID)
	assert.Equal(t, 1, res.Tier)
	assert.Contains(t, gotQuery, "first=John")
	assert.Contains(t, gotQuery, "citystatezip=Austin%2C+TX")

	require.Len(t, res.Phones, 2)
	assert.Equal(t, "(512) 555-1234", res.Phones[0].Number)
	assert.Equal(t, model.PhoneWireless, res.Phones[0].Type)
	assert.True(t, res.Phones[0].IsPrimary)
	assert.Equal(t, "Verizon", res.Phones[0].Carrier)
	assert.Equal(t, "Jan 2024", res.Phones[0].LastReportedPeriod)
	assert.Equal(t, model.PhoneLandline, res.Phones[1].Type)
	assert.Equal(t, "1234 Oak Hollow Dr Austin, TX 78701", res.Address)
}

func TestLookup_Skipped(t *testing.T) {
	a := New(Config{}, nil, nil, nil)
	res := a.Lookup(context.Background(), model.Identity{FirstName: "Cher", City: "Austin"})
	assert.False(t, res.Success)
	assert.Equal(t, model.KindSkipped, res.Reason)

	res = a.Lookup(context.Background(), model.Identity{FirstName: "John", LastName: "Smith"})
	assert.Equal(t, model.KindSkipped, res.Reason)
}

func TestLookup_NoDetailLink(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>No records found.</p></body></html>`))
	}))
	defer ts.Close()

	f := newFetcher(t)
	res := New(Config{BaseURL: ts.URL}, f, f, nil).
		Lookup(context.Background(), model.Identity{FirstName: "John", LastName: "Smith", City: "Austin"})
	assert.False(t, res.Success)
	assert.Equal(t, model.KindNoDetailLink, res.Reason)
}

func TestLookup_ChallengeSolvedAndResubmitted(t *testing.T) {
	var verifyForm map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/genealogy/results":
			_, _ = w.Write([]byte(resultsPage))
		case "/record/abc123":
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(challengePage))
		case "/verify":
			require.NoError(t, r.ParseForm())
			verifyForm = map[string]string{
				"md":                    r.PostForm.Get("md"),
				"cf-turnstile-response": r.PostForm.Get("cf-turnstile-response"),
			}
			_, _ = w.Write([]byte(detailPage))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	f := newFetcher(t)
	solver := &fakeSolver{}
	res := New(Config{BaseURL: ts.URL}, f, f, solver).
		Lookup(context.Background(), model.Identity{FirstName: "John", LastName: "Smith", City: "Austin", State: "TX"})

	require.True(t, res.Success, "reason: %s", res.Reason)
	assert.Equal(t, 1, solver.calls)
	assert.Equal(t, "tok-md", verifyForm["md"])
	assert.Equal(t, "solved-token", verifyForm["cf-turnstile-response"])
	assert.Equal(t, "(512) 555-1234", res.Phones[0].Number)
}

func TestLookup_ChallengeTimeoutDumpsMarkup(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/genealogy/results":
			_, _ = w.Write([]byte(resultsPage))
		default:
			_, _ = w.Write([]byte(challengePage))
		}
	}))
	defer ts.Close()

	dir := t.TempDir()
	f := newFetcher(t)
	solver := &fakeSolver{err: model.WithKind(model.KindCaptchaTimeout, errors.New("deadline"))}
	res := New(Config{BaseURL: ts.URL, DebugDir: dir}, f, f, solver).
		Lookup(context.Background(), model.Identity{FirstName: "John", LastName: "Smith", City: "Austin"})

	assert.False(t, res.Success)
	assert.Equal(t, model.KindCaptchaTimeout, res.Reason)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "captcha_"))
}

func TestLookup_ChallengeWithoutSitekey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/genealogy/results":
			_, _ = w.Write([]byte(resultsPage))
		default:
			_, _ = w.Write([]byte(`<html><title>Just a moment...</title><body>Checking your browser</body></html>`))
		}
	}))
	defer ts.Close()

	f := newFetcher(t)
	solver := &fakeSolver{}
	res := New(Config{BaseURL: ts.URL}, f, f, solver).
		Lookup(context.Background(), model.Identity{FirstName: "John", LastName: "Smith", City: "Austin"})

	assert.False(t, res.Success)
	assert.Equal(t, model.KindNoSitekeyFound, res.Reason)
	assert.Zero(t, solver.calls)
}

// stubFetcher answers from a function so tests can fail https requests.
type stubFetcher struct {
	mu   sync.Mutex
	urls []string
	fn   func(req scrape.Request) (*scrape.Result, error)
}

func (s *stubFetcher) Name() string { return "stub" }

func (s *stubFetcher) Fetch(_ context.Context, req scrape.Request) (*scrape.Result, error) {
	s.mu.Lock()
	s.urls = append(s.urls, req.URL)
	s.mu.Unlock()
	return s.fn(req)
}

func TestLookup_GatewayErrorDowngradesOnce(t *testing.T) {
	search := &stubFetcher{fn: func(req scrape.Request) (*scrape.Result, error) {
		return &scrape.Result{URL: req.URL, FinalURL: "https://ftn.test/search/genealogy/results", StatusCode: 200, Body: []byte(resultsPage)}, nil
	}}
	detail := &stubFetcher{fn: func(req scrape.Request) (*scrape.Result, error) {
		if strings.HasPrefix(req.URL, "https://") {
			return nil, &resilience.StatusError{Service: "scrape: stub", StatusCode: http.StatusBadGateway}
		}
		return &scrape.Result{URL: req.URL, FinalURL: req.URL, StatusCode: 200, Body: []byte(detailPage)}, nil
	}}

	res := New(Config{BaseURL: "https://ftn.test"}, search, detail, nil).
		Lookup(context.Background(), model.Identity{FirstName: "John", LastName: "Smith", City: "Austin"})

	require.True(t, res.Success)
	assert.Equal(t, []string{"https://ftn.test/record/abc123", "http://ftn.test/record/abc123"}, detail.urls)
}

func TestLookup_GatewayErrorTwiceIsTransportError(t *testing.T) {
	search := &stubFetcher{fn: func(req scrape.Request) (*scrape.Result, error) {
		return &scrape.Result{URL: req.URL, FinalURL: "https://ftn.test/x", StatusCode: 200, Body: []byte(resultsPage)}, nil
	}}
	detail := &stubFetcher{fn: func(scrape.Request) (*scrape.Result, error) {
		return nil, &resilience.StatusError{Service: "scrape: stub", StatusCode: http.StatusGatewayTimeout}
	}}

	res := New(Config{BaseURL: "https://ftn.test"}, search, detail, nil).
		Lookup(context.Background(), model.Identity{FirstName: "John", LastName: "Smith", City: "Austin"})

	assert.False(t, res.Success)
	assert.Equal(t, model.KindProviderTransportError, res.Reason)
	assert.Len(t, detail.urls, 2)
}

func TestFindDetailLink_Priority(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   string
		ok     bool
	}{
		{"record beats button", resultsPage, "https://ftn.test/record/abc123", true},
		{"rid link", `<a href="/search/people/results?rid=9">x</a>`, "https://ftn.test/search/people/results?rid=9", true},
		{"data attribute", `<div data-detail-url="/d/7"></div>`, "https://ftn.test/d/7", true},
		{"view details text", `<a href="/p/1">View Details</a>`, "https://ftn.test/p/1", true},
		{"none", `<a href="/about">About</a>`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindDetailLink(tt.markup, "https://ftn.test/search/genealogy/results?first=a")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDetail_FallbackLinks(t *testing.T) {
	rec := ParseDetail(`<ul><li><a href="/x?phoneno=1">214-555-0000</a> Voip</li></ul>`)
	require.Len(t, rec.Phones, 1)
	assert.Equal(t, model.PhoneVoIP, rec.Phones[0].Type)
	assert.Empty(t, rec.Address)
}

func TestParseDetail_PhoneTypeSynonyms(t *testing.T) {
	markup := `<div class="panel-body">
	  <div class="col-xs-12 col-md-6"><a href="/s?phoneno=5125550001">(512) 555-0001</a> - Landline</div>
	  <div class="col-xs-12 col-md-6"><a href="/s?phoneno=5125550002">(512) 555-0002</a> - Mobile</div>
	  <div class="col-xs-12 col-md-6"><a href="/s?phoneno=5125550003">(512) 555-0003</a> - Cell</div>
	  <div class="col-xs-12 col-md-6"><a href="/s?phoneno=5125550004">(512) 555-0004</a> - Land Line</div>
	  <div class="col-xs-12 col-md-6"><a href="/s?phoneno=5125550005">(512) 555-0005</a> - Land-Line</div>
	</div>`

	rec := ParseDetail(markup)
	require.Len(t, rec.Phones, 5)
	want := []model.PhoneType{model.PhoneLandline, model.PhoneWireless, model.PhoneWireless, model.PhoneLandline, model.PhoneLandline}
	for i, p := range rec.Phones {
		assert.Equal(t, want[i], p.Type, p.Number)
	}

	ordered := rec.OrderedPhones()
	require.NotEmpty(t, ordered)
	assert.Equal(t, "(512) 555-0002", ordered[0].Number)
	assert.Equal(t, "(512) 555-0003", ordered[1].Number)
}

func TestIsDetailPage(t *testing.T) {
	assert.True(t, IsDetailPage(detailPage))
	assert.False(t, IsDetailPage(challengePage))
}
