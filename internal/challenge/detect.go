// Package challenge recognizes anti-automation interstitials on provider
// pages and obtains tokens for them from an external solving service.
package challenge

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/lead-resolver/internal/model"
	"github.com/sells-group/lead-resolver/internal/scrape"
)

const (
	turnstileResponseField = "cf-turnstile-response"
	hcaptchaResponseField  = "h-captcha-response"
)

var scriptSiteKeyRe = regexp.MustCompile(`(?i)sitekey['"]?\s*[:=]\s*['"]([0-9A-Za-z_\-]{8,})['"]`)

// Detect reports whether res is a challenge page and, if so, describes it.
// The returned challenge may carry an empty SiteKey; callers treat that as
// KindNoSitekeyFound.
func Detect(res *scrape.Result) (*model.CaptchaChallenge, bool) {
	blocked, kind := scrape.DetectBlock(res)
	if !blocked || kind == scrape.BlockJSShell {
		return nil, false
	}

	pageURL := res.FinalURL
	if pageURL == "" {
		pageURL = res.URL
	}
	ch := &model.CaptchaChallenge{
		PageURL:       pageURL,
		Status:        model.ChallengeDetected,
		ResponseField: turnstileResponseField,
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return ch, true
	}

	widget := findWidget(doc)
	if widget != nil {
		ch.SiteKey = strings.TrimSpace(widget.AttrOr("data-sitekey", ""))
		if widget.HasClass("h-captcha") {
			ch.ResponseField = hcaptchaResponseField
		}
	}
	if ch.SiteKey == "" {
		ch.SiteKey = iframeSiteKey(doc)
	}
	if ch.SiteKey == "" {
		if m := scriptSiteKeyRe.FindSubmatch(res.Body); m != nil {
			ch.SiteKey = string(m[1])
		}
	}

	fillForm(ch, doc, widget)
	return ch, true
}

// findWidget returns the first element that carries a sitekey, in
// selector priority order.
func findWidget(doc *goquery.Document) *goquery.Selection {
	for _, sel := range []string{"[data-sitekey]", ".cf-turnstile", ".h-captcha"} {
		s := doc.Find(sel).First()
		if s.Length() > 0 {
			return s
		}
	}
	return nil
}

// iframeSiteKey reads the sitekey from a Turnstile iframe's k parameter.
func iframeSiteKey(doc *goquery.Document) string {
	var key string
	doc.Find(`iframe[src*="challenges.cloudflare.com"], iframe[src*="turnstile"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		u, err := url.Parse(src)
		if err != nil {
			return true
		}
		if k := u.Query().Get("k"); k != "" {
			key = k
			return false
		}
		if k := u.Query().Get("sitekey"); k != "" {
			key = k
			return false
		}
		return true
	})
	return key
}

// fillForm records the form the token should be submitted through: the
// widget's enclosing form, else the first form on the page.
func fillForm(ch *model.CaptchaChallenge, doc *goquery.Document, widget *goquery.Selection) {
	var form *goquery.Selection
	if widget != nil {
		form = widget.Closest("form")
	}
	if form == nil || form.Length() == 0 {
		form = doc.Find("form").First()
	}
	if form.Length() == 0 {
		return
	}

	action := strings.TrimSpace(form.AttrOr("action", ""))
	ch.FormAction = resolveURL(ch.PageURL, action)
	ch.FormFields = map[string]string{}
	form.Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		name := in.AttrOr("name", "")
		typ := strings.ToLower(in.AttrOr("type", "text"))
		if name == "" || name == ch.ResponseField || typ == "submit" || typ == "button" {
			return
		}
		ch.FormFields[name] = in.AttrOr("value", "")
	})
}

// resolveURL resolves ref against base; an empty ref means base itself.
func resolveURL(base, ref string) string {
	if ref == "" {
		return base
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// SubmitRequest builds the form post that carries a solved token back to
// the provider.
func SubmitRequest(ch *model.CaptchaChallenge) scrape.Request {
	form := url.Values{}
	for k, v := range ch.FormFields {
		form.Set(k, v)
	}
	field := ch.ResponseField
	if field == "" {
		field = turnstileResponseField
	}
	form.Set(field, ch.Token)
	if field == turnstileResponseField {
		// Some pages read the legacy reCAPTCHA field name as well.
		form.Set("g-recaptcha-response", ch.Token)
	}
	target := ch.FormAction
	if target == "" {
		target = ch.PageURL
	}
	return scrape.Request{URL: target, Form: form, Referer: ch.PageURL}
}
