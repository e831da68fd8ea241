package filetransport_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/duskline/netasync/filetransport"
	"github.com/duskline/netasync/hdr"
	"github.com/duskline/netasync/httpclient"
	"github.com/duskline/netasync/testharness"
	"github.com/duskline/netasync/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStaticApp mounts filetransport.NewStaticFileHandler at
// "/static/(.*)$" over settings.StaticPath, the pairing
// ServeFile's doc comment describes — exercising the teacher's
// Dir/ServeFile/parseRange stack end to end through a real
// web.Application/httpserver.Server/httpclient.Client round trip.
func newStaticApp(t *testing.T, root string) *web.Application {
	settings := web.DefaultSettings()
	settings.StaticPath = root
	app := web.NewApplication("", settings)
	spec, err := web.NewURLSpec("/static/(.*)",
		filetransport.NewStaticFileHandler(filetransport.Dir(settings.StaticPath), "/static/"),
		"static", nil)
	require.NoError(t, err)
	require.NoError(t, app.AddHandlers(".*$", []*web.URLSpec{spec}))
	return app
}

func TestStaticFileHandlerServesFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello static world"), 0o644))

	tc := testharness.NewAsyncHTTPTestCase(func() *web.Application { return newStaticApp(t, root) })

	resp, err := tc.Fetch("/static/hello.txt", &httpclient.RequestOptions{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "hello static world", string(resp.Body))
	assert.NotEmpty(t, resp.Header.Get(hdr.Etag))
}

func TestStaticFileHandlerMissingIs404(t *testing.T) {
	root := t.TempDir()
	tc := testharness.NewAsyncHTTPTestCase(func() *web.Application { return newStaticApp(t, root) })

	resp, err := tc.Fetch("/static/missing.txt", &httpclient.RequestOptions{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestDirOpenRejectsPathTraversal(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(root), "secret.txt"), []byte("nope"), 0o644))

	_, err := filetransport.Dir(root).Open("../secret.txt")
	assert.Error(t, err)
}
