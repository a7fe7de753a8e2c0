package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-resolver/internal/scrape"
)

func newPage(t *testing.T) *StaticPage {
	t.Helper()
	f, err := scrape.NewHTTPFetcher("direct")
	require.NoError(t, err)
	return NewStaticPage(f)
}

func TestStaticPage_LoginFlowKeepsCookies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/signin", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "me@example.com", r.PostForm.Get("email"))
			assert.Equal(t, "pw", r.PostForm.Get("password"))
			assert.Equal(t, "state-1", r.PostForm.Get("__VIEWSTATE"))
			assert.Equal(t, "Log In", r.PostForm.Get("btnLogin"))
			http.SetCookie(w, &http.Cookie{Name: "auth", Value: "yes", Path: "/"})
			http.Redirect(w, r, "/home", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte(`<form method="post" action="/signin">
<input type="hidden" name="__VIEWSTATE" value="state-1">
<input id="email" name="email"><input id="pw" type="password" name="password">
<input id="login" type="submit" name="btnLogin" value="Log In"></form>`))
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("auth")
		if err != nil || c.Value != "yes" {
			http.Error(w, "nope", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`<div id="welcome">hi</div>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newPage(t)
	ctx := context.Background()
	require.NoError(t, p.Navigate(ctx, srv.URL+"/signin"))
	require.NoError(t, p.Fill("#email", "me@example.com"))
	require.NoError(t, p.Fill("#pw", "pw"))
	require.NoError(t, p.Click(ctx, "#login"))

	assert.Equal(t, srv.URL+"/home", p.URL())
	assert.NoError(t, p.WaitFor(ctx, "#welcome", time.Second))
}

func TestStaticPage_GetFormAndLinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "" {
			_, _ = w.Write([]byte(`<form action="/search"><input name="name"><input name="state" value="TX">
<input type="submit" value="Submit"></form>`))
			return
		}
		assert.Equal(t, "JOHN SMITH", r.URL.Query().Get("name"))
		assert.Equal(t, "TX", r.URL.Query().Get("state"))
		_, _ = w.Write([]byte(`<table><tbody><tr><td>JOHN SMITH</td><td><a class="btnAjax" href="/detail/1">View</a></td></tr></tbody></table>`))
	})
	mux.HandleFunc("/detail/1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<a href="/home/phonecheck?phone=5125551234">512-555-1234</a>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newPage(t)
	ctx := context.Background()
	require.NoError(t, p.Navigate(ctx, srv.URL+"/search"))
	require.NoError(t, p.Fill(`input[name="name"]`, "JOHN SMITH"))
	require.NoError(t, p.Click(ctx, `input[type="submit"][value="Submit"]`))
	require.True(t, p.Exists("table tbody tr"))

	require.NoError(t, p.Click(ctx, "a.btnAjax"))
	assert.Contains(t, p.Markup(), "512-555-1234")
}

func TestStaticPage_MissingElements(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<p>empty</p>`))
	}))
	defer srv.Close()

	p := newPage(t)
	ctx := context.Background()

	assert.Error(t, p.Fill("#x", "y"), "no document yet")
	require.NoError(t, p.Navigate(ctx, srv.URL))

	assert.Error(t, p.Fill("#missing", "v"))
	assert.Error(t, p.Click(ctx, "#missing"))
	assert.Error(t, p.WaitFor(ctx, "table tbody tr", 10*time.Millisecond))
	assert.False(t, p.Exists("table"))
}
