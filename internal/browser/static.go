package browser

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-resolver/internal/scrape"
)

// StaticPage implements Page without a script engine: documents are
// fetched with a scrape.Fetcher, forms are serialized from their inputs
// and posted, links are followed. Cookies live in the fetcher's jar.
type StaticPage struct {
	fetcher scrape.Fetcher
	url     string
	markup  string
	doc     *goquery.Document
}

// NewStaticPage creates a blank page backed by fetcher.
func NewStaticPage(fetcher scrape.Fetcher) *StaticPage {
	return &StaticPage{fetcher: fetcher}
}

// Navigate loads rawURL with a GET.
func (p *StaticPage) Navigate(ctx context.Context, rawURL string) error {
	return p.load(ctx, scrape.Request{URL: p.resolve(rawURL), Referer: p.url})
}

// Fill sets the value attribute of the first matching input.
func (p *StaticPage) Fill(selector, value string) error {
	if p.doc == nil {
		return eris.Wrap(ErrNotFound, "browser: fill: no document")
	}
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return eris.Wrapf(ErrNotFound, "browser: fill %s", selector)
	}
	if goquery.NodeName(sel) == "textarea" {
		sel.SetText(value)
		return nil
	}
	sel.SetAttr("value", value)
	return nil
}

// Click follows a link or submits the enclosing form of a submit control.
func (p *StaticPage) Click(ctx context.Context, selector string) error {
	if p.doc == nil {
		return eris.Wrap(ErrNotFound, "browser: click: no document")
	}
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return eris.Wrapf(ErrNotFound, "browser: click %s", selector)
	}

	if href, ok := sel.Attr("href"); ok && !strings.HasPrefix(href, "#") && !strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return p.Navigate(ctx, href)
	}

	form := sel.Closest("form")
	if form.Length() == 0 {
		return eris.Errorf("browser: click %s: not a link or form control", selector)
	}
	return p.submit(ctx, form, sel)
}

// WaitFor checks selector against the current document. A static page
// does not change on its own, so the wait ends as soon as the answer is
// known; timeout only bounds a cancelled context.
func (p *StaticPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return eris.Wrapf(err, "browser: wait for %s", selector)
	}
	if !p.Exists(selector) {
		return eris.Wrapf(ErrNotFound, "browser: wait for %s", selector)
	}
	return nil
}

// Exists reports whether selector matches.
func (p *StaticPage) Exists(selector string) bool {
	return p.doc != nil && p.doc.Find(selector).Length() > 0
}

// Markup returns the document as last rendered, including filled values.
func (p *StaticPage) Markup() string {
	if p.doc == nil {
		return p.markup
	}
	html, err := p.doc.Html()
	if err != nil {
		return p.markup
	}
	return html
}

// URL returns the current address.
func (p *StaticPage) URL() string { return p.url }

func (p *StaticPage) submit(ctx context.Context, form, trigger *goquery.Selection) error {
	values := url.Values{}
	form.Find("input[name], select[name], textarea[name]").Each(func(_ int, in *goquery.Selection) {
		name := in.AttrOr("name", "")
		switch goquery.NodeName(in) {
		case "select":
			opt := in.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = in.Find("option").First()
			}
			values.Add(name, opt.AttrOr("value", strings.TrimSpace(opt.Text())))
		case "textarea":
			values.Add(name, in.Text())
		default:
			typ := strings.ToLower(in.AttrOr("type", "text"))
			switch typ {
			case "submit", "button", "image", "reset":
				return
			case "checkbox", "radio":
				if _, checked := in.Attr("checked"); !checked {
					return
				}
			}
			values.Add(name, in.AttrOr("value", ""))
		}
	})
	if name, ok := trigger.Attr("name"); ok && name != "" {
		values.Add(name, trigger.AttrOr("value", ""))
	}

	action := p.resolve(form.AttrOr("action", ""))
	if strings.EqualFold(form.AttrOr("method", "get"), "post") {
		return p.load(ctx, scrape.Request{URL: action, Form: values, Referer: p.url})
	}

	u, err := url.Parse(action)
	if err != nil {
		return eris.Wrapf(err, "browser: parse form action %s", action)
	}
	u.RawQuery = values.Encode()
	return p.load(ctx, scrape.Request{URL: u.String(), Referer: p.url})
}

func (p *StaticPage) load(ctx context.Context, req scrape.Request) error {
	res, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return eris.Wrapf(err, "browser: load %s", req.URL)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Markup()))
	if err != nil {
		return eris.Wrapf(err, "browser: parse %s", req.URL)
	}
	p.url = res.FinalURL
	if p.url == "" {
		p.url = req.URL
	}
	p.markup = res.Markup()
	p.doc = doc

	zap.L().Debug("browser: loaded",
		zap.String("method", req.Method()),
		zap.String("url", p.url),
		zap.Int("status", res.StatusCode),
	)
	return nil
}

func (p *StaticPage) resolve(ref string) string {
	if p.url == "" {
		return ref
	}
	base, err := url.Parse(p.url)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}
