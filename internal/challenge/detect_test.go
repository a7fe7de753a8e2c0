package challenge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-resolver/internal/model"
	"github.com/sells-group/lead-resolver/internal/scrape"
)

const turnstilePage = `<html><head><title>Just a moment...</title></head><body>
<form id="challenge-form" action="/search/people/results?rid=abc" method="POST">
  <input type="hidden" name="md" value="xyz">
  <input type="hidden" name="r" value="123">
  <div class="cf-turnstile" data-sitekey="0x4AAAAAAADnPIDROrmt1Wwj"></div>
  <input type="submit" value="Continue">
</form></body></html>`

func TestDetect_TurnstileWidget(t *testing.T) {
	res := &scrape.Result{
		URL:        "https://www.familytreenow.com/search/people/results?rid=abc",
		StatusCode: 403,
		Body:       []byte(turnstilePage),
	}

	ch, ok := Detect(res)
	require.True(t, ok)
	assert.Equal(t, "0x4AAAAAAADnPIDROrmt1Wwj", ch.SiteKey)
	assert.Equal(t, model.ChallengeDetected, ch.Status)
	assert.Equal(t, "https://www.familytreenow.com/search/people/results?rid=abc", ch.FormAction)
	assert.Equal(t, map[string]string{"md": "xyz", "r": "123"}, ch.FormFields)
	assert.Equal(t, "cf-turnstile-response", ch.ResponseField)
}

func TestDetect_IframeSiteKey(t *testing.T) {
	body := `<html><body>Checking turnstile
<iframe src="https://challenges.cloudflare.com/cdn-cgi/challenge-platform/h/b/turnstile/if/ov2/av0/rcv0/0/abc?k=0x4BBBBBBBBBB&lang=auto"></iframe>
</body></html>`
	ch, ok := Detect(&scrape.Result{URL: "https://example.com/detail", Body: []byte(body)})
	require.True(t, ok)
	assert.Equal(t, "0x4BBBBBBBBBB", ch.SiteKey)
}

func TestDetect_ScriptSiteKey(t *testing.T) {
	body := `<html><body><div id="cf"></div>
<script>turnstile.render('#cf', { sitekey: '0x4CCCCCCCCCCC' });</script></body></html>`
	ch, ok := Detect(&scrape.Result{URL: "https://example.com", Body: []byte(body)})
	require.True(t, ok)
	assert.Equal(t, "0x4CCCCCCCCCCC", ch.SiteKey)
}

func TestDetect_HCaptchaResponseField(t *testing.T) {
	body := `<form action="/verify"><div class="h-captcha" data-sitekey="10000000-ffff-ffff-ffff-000000000001"></div></form> captcha`
	ch, ok := Detect(&scrape.Result{URL: "https://example.com/page", Body: []byte(body)})
	require.True(t, ok)
	assert.Equal(t, "h-captcha-response", ch.ResponseField)
	assert.Equal(t, "https://example.com/verify", ch.FormAction)
}

func TestDetect_SignatureWithoutSiteKey(t *testing.T) {
	body := `<html><body><script src="https://ct.datadome.co/c.js"></script></body></html>`
	ch, ok := Detect(&scrape.Result{URL: "https://example.com", Body: []byte(body)})
	require.True(t, ok)
	assert.Empty(t, ch.SiteKey)
}

func TestDetect_CleanPage(t *testing.T) {
	body := `<html><body><div class="panel">Current Address</div><p>Possible Primary Phone</p></body></html>`
	ch, ok := Detect(&scrape.Result{URL: "https://example.com", StatusCode: 200, Body: []byte(body)})
	assert.False(t, ok)
	assert.Nil(t, ch)
}

func TestSubmitRequest(t *testing.T) {
	ch := &model.CaptchaChallenge{
		PageURL:       "https://example.com/detail",
		FormAction:    "https://example.com/verify",
		FormFields:    map[string]string{"md": "xyz"},
		ResponseField: "cf-turnstile-response",
		Token:         "tok-1",
	}

	req := SubmitRequest(ch)
	assert.Equal(t, "https://example.com/verify", req.URL)
	assert.Equal(t, "POST", req.Method())
	assert.Equal(t, "xyz", req.Form.Get("md"))
	assert.Equal(t, "tok-1", req.Form.Get("cf-turnstile-response"))
	assert.Equal(t, "https://example.com/detail", req.Referer)
}

func TestSubmitRequest_NoFormPostsToPage(t *testing.T) {
	req := SubmitRequest(&model.CaptchaChallenge{PageURL: "https://example.com/p", Token: "t"})
	assert.Equal(t, "https://example.com/p", req.URL)
	assert.Equal(t, "t", req.Form.Get("cf-turnstile-response"))
}
