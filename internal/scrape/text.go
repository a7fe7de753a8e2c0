package scrape

import (
	"regexp"
	"strings"
)

var (
	blockRes = func() []*regexp.Regexp {
		var out []*regexp.Regexp
		for _, tag := range []string{"script", "style", "noscript", "nav", "footer"} {
			out = append(out, regexp.MustCompile(`(?is)<`+tag+`[^>]*>.*?</`+tag+`>`))
		}
		return out
	}()
	tagRe     = regexp.MustCompile(`<[^>]+>`)
	titleRe   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	spaceRe   = regexp.MustCompile(`[ \t\r\f\v]+`)
	nlRe      = regexp.MustCompile(`\n\s*\n+`)
	anySpace  = regexp.MustCompile(`\s+`)
	entityRep = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&#x27;", "'",
		"&nbsp;", " ",
	)
)

// ExtractTitle pulls the <title> from HTML.
func ExtractTitle(html string) string {
	m := titleRe.FindStringSubmatch(html)
	if len(m) > 1 {
		return CollapseSpace(entityRep.Replace(m[1]))
	}
	return ""
}

// StripHTML removes scripts, styles, nav and footer blocks, strips tags,
// decodes common entities and collapses whitespace.
func StripHTML(html string) string {
	for _, re := range blockRes {
		html = re.ReplaceAllString(html, "")
	}
	html = tagRe.ReplaceAllString(html, " ")
	html = entityRep.Replace(html)
	html = spaceRe.ReplaceAllString(html, " ")
	html = nlRe.ReplaceAllString(html, "\n\n")
	return strings.TrimSpace(html)
}

// CollapseSpace folds every whitespace run into one space and trims.
func CollapseSpace(s string) string {
	return strings.TrimSpace(anySpace.ReplaceAllString(s, " "))
}
