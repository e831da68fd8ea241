package web_test

// End-to-end scenarios straight out of spec.md's §8: a real
// web.Application, wired through httpserver.Server and httpclient.Client
// over a loopback testharness.AsyncHTTPTestCase, exercising the full
// request/response round trip instead of any single package in
// isolation.

import (
	"bytes"
	"compress/gzip"
	"io"
	"strconv"
	"testing"

	"github.com/duskline/netasync/hdr"
	"github.com/duskline/netasync/httpclient"
	"github.com/duskline/netasync/testharness"
	"github.com/duskline/netasync/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helloHandler serves §8 scenario 1: GET /hello -> "Hello world".
type helloHandler struct {
	web.BaseHandler
}

func (*helloHandler) Get(ctx *web.Context) {
	ctx.SetHeader(hdr.ContentType, "text/plain")
	ctx.WriteString("Hello world")
}

func TestHelloWorldGet(t *testing.T) {
	tc := testharness.NewAsyncHTTPTestCase(func() *web.Application {
		app := web.NewApplication("", web.DefaultSettings())
		spec, err := web.NewURLSpec("/hello", func() web.Handler { return &helloHandler{} }, "", nil)
		require.NoError(t, err)
		require.NoError(t, app.AddHandlers(".*$", []*web.URLSpec{spec}))
		return app
	})

	resp, err := tc.Fetch("/hello", &httpclient.RequestOptions{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get(hdr.ContentType))
	assert.Equal(t, "Hello world", string(resp.Body))
	assert.Less(t, resp.RequestTime.Seconds(), 1.0)
}

// streamingHandler serves §8 scenario 2: two flushed writes, each
// delivered as its own chunk to the client's streaming_callback.
type streamingHandler struct {
	web.BaseHandler
}

func (*streamingHandler) Get(ctx *web.Context) {
	ctx.AutoFinish = false
	ctx.WriteString("asdf")
	ctx.Flush(false, func() {
		ctx.WriteString("qwer")
		ctx.Finish()
	})
}

func TestChunkedStreamingWithStreamingCallback(t *testing.T) {
	tc := testharness.NewAsyncHTTPTestCase(func() *web.Application {
		app := web.NewApplication("", web.DefaultSettings())
		spec, err := web.NewURLSpec("/stream", func() web.Handler { return &streamingHandler{} }, "", nil)
		require.NoError(t, err)
		require.NoError(t, app.AddHandlers(".*$", []*web.URLSpec{spec}))
		return app
	})

	var chunks []string
	resp, err := tc.Fetch("/stream", &httpclient.RequestOptions{
		StreamingCallback: func(b []byte) { chunks = append(chunks, string(b)) },
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, []string{"asdf", "qwer"}, chunks)
	assert.Empty(t, resp.Body)
}

// countdownHandler serves §8 scenario 3: /countdown/(n) redirects to
// /countdown/(n-1) until it bottoms out writing "Zero" at 0.
type countdownHandler struct {
	web.BaseHandler
}

func (h *countdownHandler) Get(ctx *web.Context) {
	n, err := strconv.Atoi(ctx.PathArgs[0])
	if err != nil {
		ctx.SendError(400, err)
		return
	}
	if n == 0 {
		ctx.WriteString("Zero")
		return
	}
	ctx.Redirect("/countdown/"+strconv.Itoa(n-1), false)
}

func newCountdownApp(t *testing.T) *web.Application {
	app := web.NewApplication("", web.DefaultSettings())
	spec, err := web.NewURLSpec(`/countdown/(\d+)`, func() web.Handler { return &countdownHandler{} }, "", nil)
	require.NoError(t, err)
	require.NoError(t, app.AddHandlers(".*$", []*web.URLSpec{spec}))
	return app
}

func TestCountdownRedirectChainStopsAtBudget(t *testing.T) {
	tc := testharness.NewAsyncHTTPTestCase(func() *web.Application { return newCountdownApp(t) })

	resp, err := tc.Fetch("/countdown/5", &httpclient.RequestOptions{
		FollowRedirects: true,
		MaxRedirects:    3,
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, 302, resp.StatusCode)
	assert.Contains(t, resp.EffectiveURL, "/countdown/2")
	assert.Contains(t, resp.Header.Get(hdr.Location), "/countdown/1")
}

func TestCountdownRedirectChainReachesZero(t *testing.T) {
	tc := testharness.NewAsyncHTTPTestCase(func() *web.Application { return newCountdownApp(t) })

	resp, err := tc.Fetch("/countdown/2", &httpclient.RequestOptions{
		FollowRedirects: true,
		MaxRedirects:    5,
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Zero", string(resp.Body))
	assert.Contains(t, resp.EffectiveURL, "/countdown/0")
}

// gzipHandler serves §8 scenario 4: a compressible body gzipped onto
// the wire when the client advertises Accept-Encoding: gzip.
type gzipHandler struct {
	web.BaseHandler
}

func (*gzipHandler) Get(ctx *web.Context) {
	ctx.SetHeader(hdr.ContentType, "text/plain")
	ctx.WriteString("asdfqwer")
}

func TestGzipOverHTTP11(t *testing.T) {
	tc := testharness.NewAsyncHTTPTestCase(func() *web.Application {
		app := web.NewApplication("", web.DefaultSettings())
		spec, err := web.NewURLSpec("/text", func() web.Handler { return &gzipHandler{} }, "", nil)
		require.NoError(t, err)
		require.NoError(t, app.AddHandlers(".*$", []*web.URLSpec{spec}))
		return app
	})

	headers := hdr.NewStore()
	headers.Set(hdr.AcceptEncoding, "gzip")
	resp, err := tc.Fetch("/text", &httpclient.RequestOptions{
		Headers: headers,
		UseGzip: false,
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "gzip", resp.Header.Get(hdr.ContentEncoding))
	assert.NotEqual(t, "asdfqwer", string(resp.Body))

	zr, err := gzip.NewReader(bytes.NewReader(resp.Body))
	require.NoError(t, err)
	decoded, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "asdfqwer", string(decoded))
}

// uploadHandler serves §8 scenario 5: a single-file multipart/form-data
// body.
type uploadHandler struct {
	web.BaseHandler
	files map[string][]*web.FormFile
}

func (h *uploadHandler) Post(ctx *web.Context) {
	h.files = ctx.Request.Files
	ctx.WriteString("ok")
}

func TestMultipartUpload(t *testing.T) {
	handler := &uploadHandler{}
	tc := testharness.NewAsyncHTTPTestCase(func() *web.Application {
		app := web.NewApplication("", web.DefaultSettings())
		spec, err := web.NewURLSpec("/upload", func() web.Handler { return handler }, "", nil)
		require.NoError(t, err)
		require.NoError(t, app.AddHandlers(".*$", []*web.URLSpec{spec}))
		return app
	})

	body := "--1234\r\n" +
		`Content-Disposition: form-data; name="files"; filename="ab.txt"` + "\r\n\r\n" +
		"Foo\r\n--1234--"
	headers := hdr.NewStore()
	headers.Set(hdr.ContentType, "multipart/form-data; boundary=1234")
	resp, err := tc.Fetch("/upload", &httpclient.RequestOptions{
		Method:  "POST",
		Headers: headers,
		Body:    []byte(body),
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	files := handler.files["files"]
	require.Len(t, files, 1)
	assert.Equal(t, "ab.txt", files[0].Filename)
	assert.Equal(t, "Foo", string(files[0].Body))
}
