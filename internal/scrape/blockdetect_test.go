package scrape

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name    string
		res     *Result
		blocked bool
		want    BlockType
	}{
		{
			name:    "turnstile widget",
			res:     &Result{StatusCode: 403, Body: []byte(`<div class="cf-turnstile" data-sitekey="0x4AAA"></div>`)},
			blocked: true,
			want:    BlockTurnstile,
		},
		{
			name:    "cloudflare interstitial",
			res:     &Result{StatusCode: 503, Body: []byte(`<title>Just a moment...</title>`)},
			blocked: true,
			want:    BlockCloudflare,
		},
		{
			name:    "datadome",
			res:     &Result{StatusCode: 403, Body: []byte(`<script src="https://ct.datadome.co/c.js"></script>`)},
			blocked: true,
			want:    BlockDatadome,
		},
		{
			name:    "captcha text",
			res:     &Result{StatusCode: 200, Body: []byte("<html><body>Please complete the reCAPTCHA</body></html>")},
			blocked: true,
			want:    BlockCaptcha,
		},
		{
			name:    "cloudflare headers only",
			res:     &Result{StatusCode: 403, Header: http.Header{"Cf-Ray": {"abc123"}}, Body: []byte("denied")},
			blocked: true,
			want:    BlockCloudflare,
		},
		{
			name:    "js shell",
			res:     &Result{StatusCode: 200, Body: []byte("<html><noscript>Enable JavaScript to continue</noscript></html>")},
			blocked: true,
			want:    BlockJSShell,
		},
		{
			name: "clean detail page",
			res:  &Result{StatusCode: 200, Header: http.Header{}, Body: []byte("<h2>Current Address</h2><p>Possible Primary Phone</p>")},
			want: BlockNone,
		},
		{
			name: "nil",
			want: BlockNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocked, bt := DetectBlock(tt.res)
			assert.Equal(t, tt.blocked, blocked)
			assert.Equal(t, tt.want, bt)
		})
	}
}
