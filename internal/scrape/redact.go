package scrape

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	proxyUserinfoRe = regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*://)[^/@\s]+@`)
	apiKeyKVRe      = regexp.MustCompile(`(?i)\b(api[_-]?key|key|password|token)\b\s*[:=]\s*[^\s&"']+`)
)

// RedactProxy hides proxy credentials in a URL or a log string.
func RedactProxy(s string) string {
	if s == "" {
		return ""
	}
	if u, err := url.Parse(s); err == nil && u.User != nil && u.Host != "" {
		return u.Redacted()
	}
	return proxyUserinfoRe.ReplaceAllString(s, "${1}<redacted>@")
}

// RedactSecrets removes userinfo and key=value secrets from error strings
// before they are logged or stored.
func RedactSecrets(s string) string {
	if s == "" {
		return ""
	}
	out := proxyUserinfoRe.ReplaceAllString(s, "${1}<redacted>@")
	out = apiKeyKVRe.ReplaceAllString(out, "${1}=<redacted>")
	return strings.TrimSpace(out)
}
