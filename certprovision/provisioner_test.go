package certprovision_test

import (
	"testing"

	"github.com/duskline/netasync/certprovision"
	"github.com/duskline/netasync/httpclient"
	"github.com/duskline/netasync/testharness"
	"github.com/duskline/netasync/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponderPresentCleanUp(t *testing.T) {
	r := certprovision.NewResponder()
	require.NoError(t, r.Present("example.com", "tok123", "tok123.thumbprint"))

	v, ok := r.Lookup("/.well-known/acme-challenge/tok123")
	require.True(t, ok)
	assert.Equal(t, "tok123.thumbprint", v)

	require.NoError(t, r.CleanUp("example.com", "tok123", "tok123.thumbprint"))
	_, ok = r.Lookup("/.well-known/acme-challenge/tok123")
	assert.False(t, ok)
}

func TestHandlerServesPublishedChallenge(t *testing.T) {
	responder := certprovision.NewResponder()
	require.NoError(t, responder.Present("example.com", "abc", "abc.key-auth"))

	tc := testharness.NewAsyncHTTPTestCase(func() *web.Application {
		app := web.NewApplication("", nil)
		spec, err := web.NewURLSpec("/\\.well-known/acme-challenge/.*", func() web.Handler {
			return certprovision.NewHandler(responder)
		}, "", nil)
		require.NoError(t, err)
		require.NoError(t, app.AddHandlers(".*$", []*web.URLSpec{spec}))
		return app
	})

	resp, err := tc.Fetch("/.well-known/acme-challenge/abc", &httpclient.RequestOptions{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "abc.key-auth", string(resp.Body))
}

func TestHandlerMissingTokenIs404(t *testing.T) {
	responder := certprovision.NewResponder()

	tc := testharness.NewAsyncHTTPTestCase(func() *web.Application {
		app := web.NewApplication("", nil)
		spec, err := web.NewURLSpec("/\\.well-known/acme-challenge/.*", func() web.Handler {
			return certprovision.NewHandler(responder)
		}, "", nil)
		require.NoError(t, err)
		require.NoError(t, app.AddHandlers(".*$", []*web.URLSpec{spec}))
		return app
	})

	resp, err := tc.Fetch("/.well-known/acme-challenge/missing", &httpclient.RequestOptions{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}
