package scrape

import (
	"strings"
)

// BlockType describes the kind of anti-bot interstitial detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockTurnstile  BlockType = "turnstile"
	BlockCaptcha    BlockType = "captcha"
	BlockDatadome   BlockType = "datadome"
	BlockJSShell    BlockType = "js_shell"
)

// DetectBlock checks a fetched page for signs of anti-bot protection.
func DetectBlock(res *Result) (bool, BlockType) {
	if res == nil {
		return false, BlockNone
	}

	lower := strings.ToLower(string(res.Body))

	// Turnstile first: it also carries Cloudflare markers and is the one
	// kind the solver can handle.
	if strings.Contains(lower, "turnstile") {
		return true, BlockTurnstile
	}

	if strings.Contains(lower, "datadome") {
		return true, BlockDatadome
	}

	if strings.Contains(lower, "just a moment") ||
		strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return true, BlockCloudflare
	}

	if strings.Contains(lower, "captcha") {
		return true, BlockCaptcha
	}

	// Cloudflare: 403/503 with cf-* headers and no recognizable body.
	if res.StatusCode == 403 || res.StatusCode == 503 {
		if res.Header.Get("cf-ray") != "" || res.Header.Get("cf-cache-status") != "" ||
			res.Header.Get("server") == "cloudflare" {
			return true, BlockCloudflare
		}
	}

	// JS-only shell: very small body with noscript or meta refresh.
	if len(res.Body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, "meta http-equiv=\"refresh\"") {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}
