// Package melissa is the account-based directory adapter. It signs in
// once, searches by name, city and state, narrows the results with the
// name, nearest-city and distance judges, and reads the selected record.
package melissa

import (
	"context"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-resolver/internal/browser"
	"github.com/sells-group/lead-resolver/internal/judge"
	"github.com/sells-group/lead-resolver/internal/model"
)

// Name is the provider identifier.
const Name = "melissa"

const (
	defaultSigninURL        = "https://apps.melissa.com/user/signin.aspx?src=https://lookups.melissa.com/home/"
	defaultSearchURL        = "https://lookups.melissa.com/home/personatorsearch/"
	defaultTimeout          = 90 * time.Second
	defaultResultsTimeout   = 20 * time.Second
	defaultMaxDistanceMiles = 10
	restoreTimeout          = 15 * time.Second
)

// Form controls on the sign-in and search pages.
const (
	emailInput    = "#ctl00_ContentPlaceHolder1_Signin1_txtEmail"
	passwordInput = `#ctl00_ContentPlaceHolder1_Signin1_txtPassword, input[type="password"]`
	loginButton   = "#ctl00_ContentPlaceHolder1_Signin1_btnLogin"
	nameInput     = `input[placeholder*="Full Name"], input[name="name"]`
	cityInput     = `input[name="city"], input[placeholder*="City"]`
	zipInput      = `input[name="postalCode"], input[placeholder*="ZIP"]`
	stateInput    = `input[name="state"], input[placeholder*="STATE"]`
	submitButton  = `input[type="submit"][value="Submit"], button[type="submit"]`
	resultRows    = "table tbody tr"
	recordLinkSel = `a.btnAjax[href*="/home/personator/index"], a.btnAjax[href*="/home/mikpersoninfo/index"]`
	phoneLinkSel  = `a[href*="/home/phonecheck?phone="]`
	emailLinkSel  = `a[href*="/home/emailcheck"], a[href^="mailto:"]`
	addressLabel  = "Address"
)

const noRow = -1

// Config holds the account-based directory settings.
type Config struct {
	SigninURL string
	SearchURL string
	Username  string
	Password  string
	// Timeout bounds one whole Lookup.
	Timeout time.Duration
	// ResultsTimeout bounds the wait for the results table.
	ResultsTimeout time.Duration
	// MaxDistanceMiles is the geographic fallback guardrail; a suggested
	// city farther than this is never selected.
	MaxDistanceMiles float64
}

func (c Config) withDefaults() Config {
	if c.SigninURL == "" {
		c.SigninURL = defaultSigninURL
	}
	if c.SearchURL == "" {
		c.SearchURL = defaultSearchURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.ResultsTimeout <= 0 {
		c.ResultsTimeout = defaultResultsTimeout
	}
	if c.MaxDistanceMiles <= 0 {
		c.MaxDistanceMiles = defaultMaxDistanceMiles
	}
	return c
}

// Adapter implements provider.Provider. It owns page for the duration of
// each Lookup; calls are serialized.
type Adapter struct {
	cfg    Config
	page   browser.Page
	judges judge.Judges

	mu       sync.Mutex
	signedIn bool
}

// New creates an Adapter driving page and consulting judges.
func New(cfg Config, page browser.Page, judges judge.Judges) *Adapter {
	return &Adapter{cfg: cfg.withDefaults(), page: page, judges: judges}
}

// Name implements provider.Provider.
func (a *Adapter) Name() string { return Name }

// Tier implements provider.Provider.
func (a *Adapter) Tier() int { return 2 }

// Lookup implements provider.Provider.
func (a *Adapter) Lookup(ctx context.Context, id model.Identity) model.ProviderResult {
	name := model.NormalizeName(id.FullName())
	if len(strings.Fields(name)) < 2 {
		return model.Failed(Name, a.Tier(), model.KindSkipped, "full name required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	log := zap.L().With(zap.String("provider", Name), zap.String("name", name), zap.String("city", id.City))

	if err := a.signIn(ctx); err != nil {
		log.Warn("melissa: sign in failed", zap.Error(err))
		return a.abort(ctx, model.KindProviderTransportError, err.Error())
	}

	rows, err := a.search(ctx, id)
	if err != nil {
		log.Warn("melissa: search failed", zap.Error(err))
		return a.abort(ctx, model.ErrorKindOf(err, model.KindProviderTransportError), err.Error())
	}

	sel := selectRows(rows, strings.ToUpper(strings.TrimSpace(id.City)), strings.ToUpper(strings.TrimSpace(id.State)))
	log.Debug("melissa: scanned results",
		zap.Int("rows", len(rows)),
		zap.Int("city_row", sel.cityRow),
		zap.Int("state_row", sel.stateRow),
		zap.Strings("cities", sel.cities),
	)

	if sel.cityRow == noRow && sel.stateRow == noRow {
		return a.fallthroughExtract(ctx, model.KindNoResults)
	}

	match, err := a.judges.MatchNames(ctx, name, sel.names)
	if err != nil {
		log.Warn("melissa: name judge failed", zap.Error(err))
		return a.abort(ctx, model.KindNoNameMatch, err.Error())
	}
	if len(match.Matches) == 0 {
		log.Info("melissa: no candidate name matched", zap.Strings("candidates", sel.names))
		return a.abort(ctx, model.KindNoNameMatch, match.Reason)
	}

	if sel.cityRow != noRow {
		row := rows[sel.cityRow]
		if !match.Accepts(row.NormalizedName) {
			log.Info("melissa: city row name not accepted", zap.String("row_name", row.NormalizedName))
			return a.fallthroughExtract(ctx, model.KindNoNameMatch)
		}
		return a.open(ctx, row, "city")
	}

	if len(sel.cities) == 0 {
		return a.fallthroughExtract(ctx, model.KindNoResults)
	}
	return a.geographicFallback(ctx, id, rows, sel.cities, match)
}

// geographicFallback asks for the nearest observed city and its distance,
// and opens a row in that city only when the distance passes the
// guardrail.
func (a *Adapter) geographicFallback(ctx context.Context, id model.Identity, rows []Row, cities []string, match judge.NameMatch) model.ProviderResult {
	city := strings.ToUpper(strings.TrimSpace(id.City))
	state := strings.ToUpper(strings.TrimSpace(id.State))
	log := zap.L().With(zap.String("provider", Name), zap.String("city", city), zap.String("state", state))

	suggested, err := a.judges.NearestCity(ctx, city, state, cities)
	if err != nil {
		log.Warn("melissa: nearest city judge failed", zap.Error(err))
		return a.abort(ctx, model.KindProviderTransportError, err.Error())
	}
	if suggested == "" {
		return a.abort(ctx, model.KindParseError, "no nearest city")
	}

	miles, err := a.judges.DistanceMiles(ctx, city, suggested, state)
	if err != nil {
		log.Warn("melissa: distance judge failed", zap.Error(err))
		miles = math.Inf(1)
	}
	if !WithinGuardrail(miles, a.cfg.MaxDistanceMiles) {
		log.Info("melissa: nearest city outside guardrail",
			zap.String("suggested", suggested),
			zap.Float64("miles", miles),
			zap.Float64("max_miles", a.cfg.MaxDistanceMiles),
		)
		return a.abort(ctx, model.KindDistanceGuardrailExceeded, suggested)
	}

	idx := rowInCity(rows, suggested, match)
	if idx == noRow {
		return a.fallthroughExtract(ctx, model.KindNoNameMatch)
	}
	log.Info("melissa: selected nearby city", zap.String("suggested", suggested), zap.Float64("miles", miles))
	return a.open(ctx, rows[idx], "nearby city "+suggested)
}

// WithinGuardrail reports whether miles is a finite distance no greater
// than limit.
func WithinGuardrail(miles, limit float64) bool {
	return !math.IsInf(miles, 0) && !math.IsNaN(miles) && miles <= limit
}

func (a *Adapter) signIn(ctx context.Context) error {
	if a.signedIn {
		return nil
	}
	if err := a.page.Navigate(ctx, a.cfg.SigninURL); err != nil {
		return eris.Wrap(err, "melissa: open sign in")
	}
	if a.page.Exists(emailInput) {
		if err := a.page.Fill(emailInput, a.cfg.Username); err != nil {
			return eris.Wrap(err, "melissa: fill email")
		}
		if err := a.page.Fill(passwordInput, a.cfg.Password); err != nil {
			return eris.Wrap(err, "melissa: fill password")
		}
		if err := a.page.Click(ctx, loginButton); err != nil {
			return eris.Wrap(err, "melissa: submit sign in")
		}
		zap.L().Info("melissa: signed in", zap.String("url", a.page.URL()))
	}
	a.signedIn = true
	return nil
}

func (a *Adapter) search(ctx context.Context, id model.Identity) ([]Row, error) {
	if err := a.page.Navigate(ctx, a.cfg.SearchURL); err != nil {
		return nil, eris.Wrap(err, "melissa: open search")
	}
	fields := []struct{ selector, value string }{
		{nameInput, id.FullName()},
		{cityInput, id.City},
		{zipInput, id.Zip},
		{stateInput, id.State},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := a.page.Fill(f.selector, f.value); err != nil {
			zap.L().Debug("melissa: search field missing", zap.String("selector", f.selector), zap.Error(err))
		}
	}
	if err := a.page.Click(ctx, submitButton); err != nil {
		return nil, eris.Wrap(err, "melissa: submit search")
	}
	if err := a.page.WaitFor(ctx, resultRows, a.cfg.ResultsTimeout); err != nil {
		return nil, model.WithKind(model.KindNoResults, eris.Wrap(err, "melissa: results table"))
	}
	return ParseRows(a.page.Markup())
}

// open follows the row's record link and extracts the detail view.
func (a *Adapter) open(ctx context.Context, row Row, via string) model.ProviderResult {
	if row.DetailURL == "" {
		zap.L().Warn("melissa: selected row has no record link", zap.Int("row", row.RowIndex))
		return a.fallthroughExtract(ctx, model.KindNoDetailLink)
	}
	if err := a.page.Navigate(ctx, row.DetailURL); err != nil {
		return a.abort(ctx, model.KindProviderTransportError, err.Error())
	}
	rec := ExtractDetail(a.page.Markup())
	if rec.empty() {
		return a.abort(ctx, model.KindNoResults, row.DetailURL)
	}
	zap.L().Info("melissa: resolved",
		zap.Int("row", row.RowIndex),
		zap.String("via", via),
		zap.Bool("phone", rec.Phone != ""),
		zap.Bool("address", rec.Address != ""),
	)
	return rec.result(a.Tier(), "matched "+row.NormalizedName+" by "+via)
}

// fallthroughExtract reads whatever record view is loaded. A results
// listing is not a record, so nothing is read from it.
func (a *Adapter) fallthroughExtract(ctx context.Context, reason model.ErrorKind) model.ProviderResult {
	markup := a.page.Markup()
	if !IsRecordView(markup) {
		return a.abort(ctx, reason, "")
	}
	rec := ExtractDetail(markup)
	if rec.empty() {
		return a.abort(ctx, reason, "")
	}
	return rec.result(a.Tier(), "generic extraction")
}

// abort returns the page to the search form so the next caller starts
// from a navigable state.
func (a *Adapter) abort(ctx context.Context, reason model.ErrorKind, detail string) model.ProviderResult {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()
	if err := a.page.Navigate(rctx, a.cfg.SearchURL); err != nil {
		zap.L().Warn("melissa: could not return to search page", zap.Error(err))
	}
	return model.Failed(Name, a.Tier(), reason, detail)
}

type selection struct {
	cityRow  int
	stateRow int
	cities   []string
	names    []string
}

// selectRows runs the two scanning passes. Pass 1 collects candidate
// names and cities observed in state and stops at the first row naming
// city. Pass 2 looks for any row naming state.
func selectRows(rows []Row, city, state string) selection {
	sel := selection{cityRow: noRow, stateRow: noRow}
	seenName := map[string]bool{}
	seenCity := map[string]bool{}

	var cityRe, stateRe, cityInStateRe *regexp.Regexp
	if city != "" {
		cityRe = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(city) + `\b`)
	}
	if state != "" {
		stateRe = regexp.MustCompile(`\b` + regexp.QuoteMeta(state) + `\b`)
		cityInStateRe = regexp.MustCompile(`([A-Z\s]+),?\s+` + regexp.QuoteMeta(state) + `\b`)
	}

	for i, row := range rows {
		if row.NormalizedName != "" && !seenName[row.NormalizedName] {
			seenName[row.NormalizedName] = true
			sel.names = append(sel.names, row.NormalizedName)
		}
		if cityInStateRe != nil {
			for _, cell := range row.Cells {
				m := cityInStateRe.FindStringSubmatch(cell)
				if m == nil {
					continue
				}
				c := strings.Join(strings.Fields(m[1]), " ")
				if c != "" && !seenCity[c] {
					seenCity[c] = true
					sel.cities = append(sel.cities, c)
				}
			}
		}
		if cityRe != nil && cityRe.MatchString(row.RawText) {
			sel.cityRow = i
			return sel
		}
	}

	if stateRe == nil {
		return sel
	}
	for i, row := range rows {
		if stateRe.MatchString(row.RawText) {
			sel.stateRow = i
			break
		}
	}
	return sel
}

// rowInCity returns the first row naming city whose name the judge
// accepted.
func rowInCity(rows []Row, city string, match judge.NameMatch) int {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(city) + `\b`)
	for i, row := range rows {
		if re.MatchString(row.RawText) && match.Accepts(row.NormalizedName) {
			return i
		}
	}
	return noRow
}
