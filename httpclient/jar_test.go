package httpclient_test

import (
	"testing"

	"github.com/duskline/netasync/cookie"
	"github.com/duskline/netasync/hdr"
	"github.com/duskline/netasync/httpclient"
	"github.com/duskline/netasync/testharness"
	"github.com/duskline/netasync/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cookieHandler sets a cookie on /set (Secure among them, which a
// plain-HTTP test server can never legally echo back) and reports
// whatever Cookie header the client sent on /echo.
type cookieHandler struct {
	web.BaseHandler
}

func (*cookieHandler) Get(ctx *web.Context) {
	if ctx.Request.Path == "/set" {
		ctx.SetCookie(&cookie.Cookie{Name: "session", Value: "abc123", Path: "/"})
		ctx.SetCookie(&cookie.Cookie{Name: "secureonly", Value: "zzz", Path: "/", Secure: true})
		ctx.WriteString("set")
		return
	}
	ctx.WriteString(ctx.Request.Header.Get(hdr.CookieHeader))
}

func newCookieApp() *web.Application {
	app := web.NewApplication("", web.DefaultSettings())
	spec, err := web.NewURLSpec("/(set|echo)", func() web.Handler { return &cookieHandler{} }, "", nil)
	if err != nil {
		panic(err)
	}
	if err := app.AddHandlers(".*$", []*web.URLSpec{spec}); err != nil {
		panic(err)
	}
	return app
}

func TestClientJarReplaysCookiesOnLaterRequests(t *testing.T) {
	tc := testharness.NewAsyncHTTPTestCase(newCookieApp)

	resp, err := tc.Fetch("/set", &httpclient.RequestOptions{}, 0)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	resp, err = tc.Fetch("/echo", &httpclient.RequestOptions{}, 0)
	require.NoError(t, err)
	assert.Contains(t, string(resp.Body), "session=abc123")
	assert.NotContains(t, string(resp.Body), "secureonly",
		"a Secure cookie must never be replayed over a plain-HTTP connection")
}

func TestClientJarDoesNotOverrideExplicitCookieHeader(t *testing.T) {
	tc := testharness.NewAsyncHTTPTestCase(newCookieApp)

	_, err := tc.Fetch("/set", &httpclient.RequestOptions{}, 0)
	require.NoError(t, err)

	headers := hdr.NewStore()
	headers.Set(hdr.CookieHeader, "manual=override")
	resp, err := tc.Fetch("/echo", &httpclient.RequestOptions{Headers: headers}, 0)
	require.NoError(t, err)
	assert.Equal(t, "manual=override", string(resp.Body))
}
