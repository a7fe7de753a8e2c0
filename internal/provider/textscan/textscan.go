// Package textscan is the last-resort directory adapter: it reads a
// public name/city listing and takes structured result cards when the
// page has them, or scans the visible text for contact facts when not.
package textscan

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/lead-resolver/internal/model"
	"github.com/sells-group/lead-resolver/internal/provider"
	"github.com/sells-group/lead-resolver/internal/scrape"
)

// Name is the provider identifier.
const Name = "textscan"

const (
	defaultBaseURL = "https://thatsthem.com"
	defaultTimeout = 60 * time.Second
)

// Config configures the listing source.
type Config struct {
	BaseURL      string
	DefaultState string
	Timeout      time.Duration
}

// Adapter implements provider.Provider.
type Adapter struct {
	cfg      Config
	fetchers []scrape.Fetcher
}

// New creates an Adapter. Fetchers are tried in order; the next one is
// used only when the previous failed or was served a challenge.
func New(cfg Config, fetchers ...scrape.Fetcher) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Adapter{cfg: cfg, fetchers: fetchers}
}

// Name implements provider.Provider.
func (a *Adapter) Name() string { return Name }

// Tier implements provider.Provider.
func (a *Adapter) Tier() int { return 3 }

// ListingURL builds the name/city listing address for id.
func (a *Adapter) ListingURL(id model.Identity) string {
	state := id.State
	if state == "" {
		state = a.cfg.DefaultState
	}
	slug := func(s string) string {
		return url.PathEscape(strings.Join(strings.Fields(s), "-"))
	}
	return a.cfg.BaseURL + "/name/" + slug(id.FirstName) + "-" + slug(id.LastName) +
		"/" + slug(id.City) + "-" + slug(state)
}

// Lookup implements provider.Provider.
func (a *Adapter) Lookup(ctx context.Context, id model.Identity) model.ProviderResult {
	if !id.HasFullName() || strings.TrimSpace(id.City) == "" {
		return model.Failed(Name, a.Tier(), model.KindSkipped, "first name, last name and city required")
	}
	if len(a.fetchers) == 0 {
		return model.Failed(Name, a.Tier(), model.KindProviderTransportError, "no fetchers configured")
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	target := a.ListingURL(id)
	log := zap.L().With(zap.String("provider", Name), zap.String("url", target))

	reason := model.KindProviderTransportError
	for _, f := range a.fetchers {
		if ctx.Err() != nil {
			break
		}
		res, err := f.Fetch(ctx, scrape.Request{URL: target})
		if err != nil {
			log.Warn("textscan: fetch failed", zap.String("fetcher", f.Name()), zap.Error(err))
			continue
		}

		if cards := ParseCards(res.Markup()); len(cards) > 0 {
			card := pickCard(cards, id)
			log.Info("textscan: result cards",
				zap.String("fetcher", f.Name()),
				zap.Int("cards", len(cards)),
				zap.String("picked", card.Name),
			)
			if r, ok := card.result(a.Tier()); ok {
				return r
			}
			return model.Failed(Name, a.Tier(), model.KindNoResults, target)
		}

		if blocked, kind := scrape.DetectBlock(res); blocked {
			log.Warn("textscan: blocked, trying next fetcher",
				zap.String("fetcher", f.Name()),
				zap.String("block", string(kind)),
			)
			reason = model.KindCaptchaSolveFailed
			continue
		}

		facts := provider.ScanText(res.Text())
		if len(facts.Phones) == 0 && len(facts.Emails) == 0 && facts.Address == "" {
			return model.Failed(Name, a.Tier(), model.KindNoResults, target)
		}
		out := model.ProviderResult{
			ProviderID: Name,
			Tier:       a.Tier(),
			Success:    true,
			Address:    facts.Address,
			Detail:     "text scan of " + target,
		}
		for _, p := range facts.Phones {
			out.Phones = append(out.Phones, model.Phone{Number: p, Type: model.PhoneUnknown})
		}
		if len(facts.Emails) > 0 {
			out.Email = facts.Emails[0]
		}
		return out
	}
	return model.Failed(Name, a.Tier(), reason, target)
}

// Card is one structured listing entry.
type Card struct {
	Name    string
	Address string
	Phone   string
	Email   string
}

func (c Card) result(tier int) (model.ProviderResult, bool) {
	if c.Phone == "" && c.Address == "" && c.Email == "" {
		return model.ProviderResult{}, false
	}
	r := model.ProviderResult{
		ProviderID: Name,
		Tier:       tier,
		Success:    true,
		Address:    c.Address,
		Email:      c.Email,
		Detail:     "card " + c.Name,
	}
	if c.Phone != "" {
		r.Phones = []model.Phone{{Number: c.Phone, Type: model.PhoneUnknown}}
	}
	return r, true
}

// ParseCards reads the `.result` entries of a listing page. Entries
// without a name are dropped.
func ParseCards(markup string) []Card {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}
	var cards []Card
	doc.Find(".result").Each(func(_ int, s *goquery.Selection) {
		c := Card{
			Name:    scrape.CollapseSpace(s.Find(".name").First().Text()),
			Address: scrape.CollapseSpace(s.Find(".address").First().Text()),
			Phone:   strings.TrimSpace(s.Find(".phone").First().Text()),
			Email:   strings.TrimSpace(s.Find(".email").First().Text()),
		}
		if c.Name != "" {
			cards = append(cards, c)
		}
	})
	return cards
}

// pickCard prefers the first card naming both first and last name, then
// the first naming the last name, then the first card.
func pickCard(cards []Card, id model.Identity) Card {
	first := model.NormalizeName(id.FirstName)
	last := model.NormalizeName(id.LastName)
	lastOnly := -1
	for i, c := range cards {
		n := model.NormalizeName(c.Name)
		if !strings.Contains(n, last) {
			continue
		}
		if strings.Contains(n, first) {
			return c
		}
		if lastOnly < 0 {
			lastOnly = i
		}
	}
	if lastOnly >= 0 {
		return cards[lastOnly]
	}
	return cards[0]
}
