// Package familytree is the primary directory adapter: a name+city search
// on a public genealogy site, one detail record, phones and the current
// address parsed from that record.
package familytree

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-resolver/internal/challenge"
	"github.com/sells-group/lead-resolver/internal/model"
	"github.com/sells-group/lead-resolver/internal/resilience"
	"github.com/sells-group/lead-resolver/internal/scrape"
)

// Name is the provider identifier.
const Name = "familytree"

const (
	defaultBaseURL       = "https://www.familytreenow.com"
	defaultSearchTimeout = 45 * time.Second
	defaultDetailTimeout = 60 * time.Second
)

// Config is the per-adapter configuration. Transports are passed in
// explicitly; nothing here is read from the environment.
type Config struct {
	BaseURL       string
	DefaultState  string
	SearchTimeout time.Duration
	DetailTimeout time.Duration
	// DebugDir receives raw challenge markup when a challenge cannot be
	// solved. Empty disables dumps.
	DebugDir string
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = defaultSearchTimeout
	}
	if c.DetailTimeout <= 0 {
		c.DetailTimeout = defaultDetailTimeout
	}
	return c
}

// Adapter implements provider.Provider for the primary directory.
type Adapter struct {
	cfg    Config
	search scrape.Fetcher
	detail scrape.Fetcher
	solver challenge.Solver
}

// New creates an Adapter. search fetches results pages (typically an
// unblocker chain), detail fetches record pages (typically a residential
// proxy). solver may be nil, in which case challenges fail fast.
func New(cfg Config, search, detail scrape.Fetcher, solver challenge.Solver) *Adapter {
	return &Adapter{cfg: cfg.withDefaults(), search: search, detail: detail, solver: solver}
}

// Name implements provider.Provider.
func (a *Adapter) Name() string { return Name }

// Tier implements provider.Provider.
func (a *Adapter) Tier() int { return 1 }

// Lookup runs search, detail-link selection, challenge handling and
// extraction for id.
func (a *Adapter) Lookup(ctx context.Context, id model.Identity) model.ProviderResult {
	if !id.HasFullName() || strings.TrimSpace(id.City) == "" {
		return model.Failed(Name, a.Tier(), model.KindSkipped, "first name, last name and city required")
	}
	log := zap.L().With(zap.String("provider", Name), zap.String("name", id.FullName()), zap.String("city", id.City))

	searchURL := a.SearchURL(id)
	searchRes, err := a.fetchSearch(ctx, searchURL)
	if err != nil {
		log.Warn("familytree: search failed", zap.Error(err))
		return model.Failed(Name, a.Tier(), model.ErrorKindOf(err, model.KindProviderTransportError), err.Error())
	}

	detailURL, ok := FindDetailLink(searchRes.Markup(), searchRes.FinalURL)
	if !ok {
		log.Info("familytree: no detail link on results page")
		return model.Failed(Name, a.Tier(), model.KindNoDetailLink, searchURL)
	}
	log.Debug("familytree: following detail link", zap.String("url", detailURL))

	detailRes, challengeKind, err := a.fetchDetail(ctx, detailURL, searchURL)
	if err != nil {
		log.Warn("familytree: detail fetch failed", zap.Error(err))
		return model.Failed(Name, a.Tier(), model.ErrorKindOf(err, model.KindProviderTransportError), err.Error())
	}

	record := ParseDetail(detailRes.Markup())
	phones := record.OrderedPhones()
	if len(phones) == 0 && record.Address == "" {
		kind := challengeKind
		if kind == model.KindNone {
			kind = model.KindNoResults
		}
		log.Info("familytree: detail page yielded no facts", zap.String("reason", string(kind)))
		return model.Failed(Name, a.Tier(), kind, detailURL)
	}

	log.Info("familytree: resolved",
		zap.Int("phones", len(phones)),
		zap.Bool("address", record.Address != ""),
	)
	return model.ProviderResult{
		ProviderID: Name,
		Tier:       a.Tier(),
		Success:    true,
		Phones:     phones,
		Address:    record.Address,
		Reason:     challengeKind,
		Detail:     detailURL,
	}
}

// SearchURL builds the genealogy search URL for id.
func (a *Adapter) SearchURL(id model.Identity) string {
	state := id.State
	if state == "" {
		state = a.cfg.DefaultState
	}
	where := strings.TrimSpace(id.City)
	if state != "" {
		where += ", " + state
	}
	q := url.Values{}
	q.Set("first", strings.TrimSpace(id.FirstName))
	q.Set("last", strings.TrimSpace(id.LastName))
	q.Set("citystatezip", where)
	return a.cfg.BaseURL + "/search/genealogy/results?" + q.Encode()
}

func (a *Adapter) fetchSearch(ctx context.Context, searchURL string) (*scrape.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.SearchTimeout)
	defer cancel()

	res, err := a.search.Fetch(ctx, scrape.Request{URL: searchURL})
	if err != nil {
		return nil, eris.Wrap(err, "familytree: search")
	}
	if ch, ok := challenge.Detect(res); ok {
		solved, err := a.solve(ctx, a.search, ch, res)
		if err != nil {
			return nil, err
		}
		res = solved
	}
	return res, nil
}

// fetchDetail loads the record page. A gateway error over https is retried
// once over plain http. A challenge on the page is routed to the solver;
// when it cannot be solved the challenge page is returned together with
// the kind so the caller can still parse whatever is there.
func (a *Adapter) fetchDetail(ctx context.Context, detailURL, referer string) (*scrape.Result, model.ErrorKind, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.DetailTimeout)
	defer cancel()

	req := scrape.Request{URL: detailURL, Referer: referer}
	res, err := a.detail.Fetch(ctx, req)
	if err != nil && resilience.IsGatewayError(err) {
		if plain, ok := scrape.DowngradeToHTTP(detailURL); ok {
			zap.L().Warn("familytree: gateway error over https, retrying over http",
				zap.String("url", detailURL),
				zap.Error(err),
			)
			req.URL = plain
			res, err = a.detail.Fetch(ctx, req)
		}
	}
	if err != nil {
		return nil, model.KindNone, eris.Wrap(err, "familytree: detail")
	}

	if IsDetailPage(res.Markup()) {
		return res, model.KindNone, nil
	}
	ch, ok := challenge.Detect(res)
	if !ok {
		zap.L().Warn("familytree: unexpected detail page",
			zap.String("url", res.FinalURL),
			zap.String("title", scrape.ExtractTitle(res.Markup())),
		)
		return res, model.KindNone, nil
	}
	solved, err := a.solve(ctx, a.detail, ch, res)
	if err != nil {
		return res, model.ErrorKindOf(err, model.KindCaptchaSolveFailed), nil
	}
	return solved, model.KindNone, nil
}

// solve obtains a token for ch and resubmits it through fetcher. The raw
// challenge markup is dumped when no token could be obtained.
func (a *Adapter) solve(ctx context.Context, fetcher scrape.Fetcher, ch *model.CaptchaChallenge, page *scrape.Result) (*scrape.Result, error) {
	log := zap.L().With(zap.String("provider", Name), zap.String("page_url", ch.PageURL))

	var err error
	switch {
	case ch.SiteKey == "":
		ch.Status = model.ChallengeFailed
		err = model.WithKind(model.KindNoSitekeyFound, eris.Errorf("familytree: challenge without sitekey on %s", ch.PageURL))
	case a.solver == nil:
		ch.Status = model.ChallengeFailed
		err = model.WithKind(model.KindCaptchaSolveFailed, eris.New("familytree: no solver configured"))
	default:
		log.Info("familytree: challenge detected, solving")
		err = a.solver.SolveChallenge(ctx, ch)
	}
	if err != nil {
		if path, dumpErr := scrape.DumpMarkup(a.cfg.DebugDir, "captcha", page.Body); dumpErr != nil {
			log.Warn("familytree: markup dump failed", zap.Error(dumpErr))
		} else if path != "" {
			log.Info("familytree: challenge markup saved", zap.String("path", path))
		}
		return nil, err
	}

	res, err := fetcher.Fetch(ctx, challenge.SubmitRequest(ch))
	if err != nil {
		return nil, model.WithKind(model.KindProviderTransportError, eris.Wrap(err, "familytree: resubmit challenge token"))
	}
	return res, nil
}
