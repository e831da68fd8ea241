package mime_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/duskline/netasync/mime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultipartWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := mime.NewMultipartWriter(&buf)

	require.NoError(t, w.WriteField("name", "gopher"))

	fw, err := w.CreateFormFile("upload", "hello.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("hello from a file part"))
	require.NoError(t, err)

	require.NoError(t, w.Close())

	r := mime.NewMultipartReader(&buf, w.Boundary())
	form, err := r.ReadForm(10 << 20)
	require.NoError(t, err)
	defer form.RemoveAll()

	require.Equal(t, []string{"gopher"}, form.Value["name"])

	files := form.File["upload"]
	require.Len(t, files, 1)
	assert.Equal(t, "hello.txt", files[0].Filename)

	f, err := files[0].Open()
	require.NoError(t, err)
	defer f.Close()
	content, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello from a file part", string(content))
}

func TestMultipartWriterSetBoundaryValidation(t *testing.T) {
	var buf bytes.Buffer
	w := mime.NewMultipartWriter(&buf)
	assert.Error(t, w.SetBoundary(""))
	assert.Error(t, w.SetBoundary("has a space and !bang"))
	assert.NoError(t, w.SetBoundary("1234"))
	assert.Equal(t, "1234", w.Boundary())
}

func TestMIMETypeByExtensionAndParseMediaType(t *testing.T) {
	assert.Equal(t, "text/html; charset=utf-8", mime.MIMETypeByExtension(".html"))

	mediaType, params, err := mime.MIMEParseMediaType("multipart/form-data; boundary=1234")
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)
	assert.Equal(t, "1234", params["boundary"])
}
