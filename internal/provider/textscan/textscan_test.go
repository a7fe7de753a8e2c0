package textscan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/lead-resolver/internal/model"
	"github.com/sells-group/lead-resolver/internal/scrape"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type pageFetcher struct {
	name  string
	body  string
	err   error
	calls int
	url   string
}

func (f *pageFetcher) Name() string { return f.name }

func (f *pageFetcher) Fetch(_ context.Context, req scrape.Request) (*scrape.Result, error) {
	f.calls++
	f.url = req.URL
	if f.err != nil {
		return nil, f.err
	}
	return &scrape.Result{URL: req.URL, FinalURL: req.URL, StatusCode: 200, Body: []byte(f.body), Source: f.name}, nil
}

const cardsPage = `<html><body>
<div class="result"><div class="name">Amanda Jones</div><div class="phone">(213) 555-0101</div></div>
<div class="result"><div class="name">Amanda Terrell</div>
  <div class="address">44 Sunset Blvd
     Los Angeles, CA 90028</div>
  <div class="phone">(213) 555-0199</div><div class="email">amanda@example.com</div></div>
</body></html>`

var amanda = model.Identity{FirstName: "Amanda", LastName: "Terrell", City: "Los Angeles", State: "CA"}

func TestLookup_Cards(t *testing.T) {
	f := &pageFetcher{name: "unblocker", body: cardsPage}
	a := New(Config{BaseURL: "https://listing.test"}, f)

	res := a.Lookup(context.Background(), amanda)
	require.True(t, res.Success)
	assert.Equal(t, 3, res.Tier)
	assert.Equal(t, "(213) 555-0199", res.FirstPhone())
	assert.Equal(t, "44 Sunset Blvd Los Angeles, CA 90028", res.Address)
	assert.Equal(t, "amanda@example.com", res.Email)
	assert.Equal(t, "https://listing.test/name/Amanda-Terrell/Los-Angeles-CA", f.url)
}

func TestLookup_ChallengeFallsBackToNextFetcher(t *testing.T) {
	blocked := &pageFetcher{name: "unblocker", body: `<html><title>Just a moment...</title></html>`}
	residential := &pageFetcher{name: "residential", body: cardsPage}
	a := New(Config{}, blocked, residential)

	res := a.Lookup(context.Background(), amanda)
	require.True(t, res.Success)
	assert.Equal(t, 1, blocked.calls)
	assert.Equal(t, 1, residential.calls)
}

func TestLookup_ErrorFallsBack(t *testing.T) {
	broken := &pageFetcher{name: "unblocker", err: errors.New("proxy refused")}
	residential := &pageFetcher{name: "residential", body: cardsPage}

	res := New(Config{}, broken, residential).Lookup(context.Background(), amanda)
	assert.True(t, res.Success)
}

func TestLookup_TextFallbackStopsCascade(t *testing.T) {
	plain := &pageFetcher{name: "unblocker", body: `<html><body><p>Amanda Terrell, 213-555-0142, 44 Sunset Blvd</p></body></html>`}
	next := &pageFetcher{name: "residential", body: cardsPage}

	res := New(Config{}, plain, next).Lookup(context.Background(), amanda)
	require.True(t, res.Success)
	assert.Equal(t, "213-555-0142", res.FirstPhone())
	assert.Equal(t, "44 Sunset Blvd", res.Address)
	assert.Zero(t, next.calls)
}

func TestLookup_Failures(t *testing.T) {
	tests := []struct {
		name     string
		id       model.Identity
		fetchers []scrape.Fetcher
		want     model.ErrorKind
	}{
		{"missing city", model.Identity{FirstName: "A", LastName: "B"}, []scrape.Fetcher{&pageFetcher{}}, model.KindSkipped},
		{"no fetchers", amanda, nil, model.KindProviderTransportError},
		{"all blocked", amanda, []scrape.Fetcher{&pageFetcher{body: "please solve the captcha"}}, model.KindCaptchaSolveFailed},
		{"all broken", amanda, []scrape.Fetcher{&pageFetcher{err: errors.New("x")}}, model.KindProviderTransportError},
		{"empty page", amanda, []scrape.Fetcher{&pageFetcher{body: "<html><body>Nothing here</body></html>"}}, model.KindNoResults},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(Config{}, tt.fetchers...).Lookup(context.Background(), tt.id)
			assert.False(t, res.Success)
			assert.Equal(t, tt.want, res.Reason)
		})
	}
}

func TestPickCard(t *testing.T) {
	cards := []Card{{Name: "Zed Terrell"}, {Name: "Amanda Terrell"}}
	assert.Equal(t, "Amanda Terrell", pickCard(cards, amanda).Name)
	assert.Equal(t, "Zed Terrell", pickCard(cards[:1], amanda).Name)
	assert.Equal(t, "Bob Ross", pickCard([]Card{{Name: "Bob Ross"}}, amanda).Name)
}
