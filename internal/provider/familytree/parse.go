package familytree

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/lead-resolver/internal/model"
	"github.com/sells-group/lead-resolver/internal/provider"
	"github.com/sells-group/lead-resolver/internal/scrape"
)

var (
	phoneTypeRe    = regexp.MustCompile(`(?i)\b(Wireless|Mobile|Cell|Land[ -]?line|Voip)\b`)
	lastReportedRe = regexp.MustCompile(`Last reported\s+([A-Za-z]+\s+\d{4})`)
	carrierRe      = regexp.MustCompile(`(?i)\b(AT&T|Verizon|T-Mobile|Sprint|Metro|Cricket|Frontier|Southwestern Bell|Time Warner Cable)\b`)
	primaryRe      = regexp.MustCompile(`(?i)Possible Primary Phone`)
	currentAddrRe  = regexp.MustCompile(`(?i)Current Address`)
	detailMarkerRe = regexp.MustCompile(`(?i)Possible Primary Phone|Current Address|Public Records|Phone Type`)
)

// linkMatcher returns the href of a detail link, if it finds one.
type linkMatcher func(doc *goquery.Document) (string, bool)

func hrefOf(selector string) linkMatcher {
	return func(doc *goquery.Document) (string, bool) {
		var href string
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if h := strings.TrimSpace(s.AttrOr("href", "")); h != "" {
				href = h
				return false
			}
			return true
		})
		return href, href != ""
	}
}

func attrOf(selector, attr string) linkMatcher {
	return func(doc *goquery.Document) (string, bool) {
		v := strings.TrimSpace(doc.Find(selector).First().AttrOr(attr, ""))
		return v, v != ""
	}
}

func linkText(text string) linkMatcher {
	return func(doc *goquery.Document) (string, bool) {
		var href string
		doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if strings.EqualFold(strings.TrimSpace(s.Text()), text) {
				href = strings.TrimSpace(s.AttrOr("href", ""))
				return href == ""
			}
			return true
		})
		return href, href != ""
	}
}

// detailLinkMatchers are tried in order; record permalinks beat generic
// detail buttons.
var detailLinkMatchers = []linkMatcher{
	hrefOf(`a[href*="/record/"]`),
	hrefOf(`a[href*="/search/people/results?rid="]`),
	hrefOf(`a[href*="rid="]`),
	hrefOf(`a[href*="/search/people/detail"]`),
	hrefOf(`a.btn-success.detail-link`),
	attrOf(`[data-detail-url]`, "data-detail-url"),
	linkText("View Details"),
}

// FindDetailLink picks the strongest detail link on a results page and
// resolves it against pageURL.
func FindDetailLink(markup, pageURL string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", false
	}
	for _, match := range detailLinkMatchers {
		href, ok := match(doc)
		if !ok {
			continue
		}
		return resolve(pageURL, href), true
	}
	return "", false
}

func resolve(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// IsDetailPage reports whether markup is a record page rather than an
// interstitial.
func IsDetailPage(markup string) bool {
	return detailMarkerRe.MatchString(scrape.StripHTML(markup))
}

// Record is what a detail page yields.
type Record struct {
	Phones  []model.Phone
	Address string
}

// OrderedPhones returns wireless numbers first, then the rest, each group
// in page order, deduplicated by digits.
func (r Record) OrderedPhones() []model.Phone {
	var wireless, other []model.Phone
	for _, p := range r.Phones {
		if p.Type == model.PhoneWireless {
			wireless = append(wireless, p)
		} else {
			other = append(other, p)
		}
	}
	return provider.UniquePhones(append(wireless, other...))
}

// ParseDetail extracts phone entries and the current address from a
// record page.
func ParseDetail(markup string) Record {
	var rec Record
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return rec
	}

	doc.Find(".panel-body .col-xs-12.col-md-6").Each(func(_ int, s *goquery.Selection) {
		anchor := s.Find(`a[href*="phoneno="]`).First()
		number := strings.TrimSpace(anchor.Text())
		if number == "" {
			return
		}
		rec.Phones = append(rec.Phones, classifyPhone(number, scrape.CollapseSpace(s.Text())))
	})

	// Some layouts drop the column wrappers; fall back to the bare links.
	if len(rec.Phones) == 0 {
		doc.Find(`a[href*="phoneno="]`).Each(func(_ int, s *goquery.Selection) {
			number := strings.TrimSpace(s.Text())
			if number == "" {
				return
			}
			around := scrape.CollapseSpace(s.Parent().Text())
			rec.Phones = append(rec.Phones, classifyPhone(number, around))
		})
	}

	doc.Find(".panel.panel-primary").EachWithBreak(func(_ int, panel *goquery.Selection) bool {
		if !currentAddrRe.MatchString(panel.Find(".panel-heading").Text()) {
			return true
		}
		if addr := scrape.CollapseSpace(panel.Find("a.linked-record").First().Text()); addr != "" {
			rec.Address = addr
			return false
		}
		return true
	})
	return rec
}

func classifyPhone(number, text string) model.Phone {
	p := model.Phone{Number: number, Type: model.PhoneUnknown}
	if m := phoneTypeRe.FindStringSubmatch(text); m != nil {
		switch strings.ToLower(m[1]) {
		case "wireless", "mobile", "cell":
			p.Type = model.PhoneWireless
		case "landline", "land line", "land-line":
			p.Type = model.PhoneLandline
		case "voip":
			p.Type = model.PhoneVoIP
		}
	}
	if m := lastReportedRe.FindStringSubmatch(text); m != nil {
		p.LastReportedPeriod = m[1]
	}
	if m := carrierRe.FindString(text); m != "" {
		p.Carrier = m
	}
	p.IsPrimary = primaryRe.MatchString(text)
	return p
}
