package web

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"strconv"
	"strings"

	"github.com/duskline/netasync/hdr"
)

// chunkTransform rewrites a response's body chunks on the way out,
// chosen per request and run in pipeline order (gzip first, then
// chunked transfer encoding, matching tinycore's Application wiring
// GZipContentEncoding before ChunkedTransferEncoding). Grounded on
// tinycore's OutputTransform (asyncio/web.h/.cpp): transformFirstChunk
// gets to rewrite the status/headers along with the first chunk;
// transformChunk only ever rewrites the chunk.
type chunkTransform interface {
	transformFirstChunk(ctx *Context, chunk []byte, finishing bool) []byte
	transformChunk(ctx *Context, chunk []byte, finishing bool) []byte
}

// gzipTransform compresses the response body when the client
// advertised gzip support and the content type is on the compressible
// whitelist, mirroring GZipContentEncoding verbatim down to the
// minimum-length-when-finishing-in-one-shot condition.
type gzipTransform struct {
	gzipping bool
	buf      bytes.Buffer
	gz       *gzip.Writer
}

const gzipMinLength = 5

var gzipContentTypes = map[string]bool{
	"text/plain":              true,
	"text/html":                true,
	"text/css":                 true,
	"text/xml":                 true,
	"application/javascript":   true,
	"application/x-javascript": true,
	"application/xml":          true,
	"application/atom+xml":     true,
	"text/javascript":          true,
	"application/json":         true,
	"application/xhtml+xml":    true,
}

func newGzipTransform(req *Request) *gzipTransform {
	t := &gzipTransform{}
	if req.Version == "HTTP/1.1" {
		accept := req.Header.Get(hdr.AcceptEncoding)
		t.gzipping = strings.Contains(accept, "gzip")
	}
	return t
}

func (t *gzipTransform) transformFirstChunk(ctx *Context, chunk []byte, finishing bool) []byte {
	if t.gzipping {
		ctype := ctx.Header.Get(hdr.ContentType)
		if i := strings.IndexByte(ctype, ';'); i >= 0 {
			ctype = ctype[:i]
		}
		t.gzipping = gzipContentTypes[ctype] &&
			(!finishing || len(chunk) >= gzipMinLength) &&
			(finishing || ctx.Header.Get(hdr.ContentLength) == "") &&
			ctx.Header.Get(hdr.ContentEncoding) == ""
	}
	if !t.gzipping {
		return chunk
	}
	ctx.Header.Set(hdr.ContentEncoding, "gzip")
	t.gz = gzip.NewWriter(&t.buf)
	chunk = t.transformChunk(ctx, chunk, finishing)
	if ctx.Header.Get(hdr.ContentLength) != "" {
		ctx.Header.Set(hdr.ContentLength, strconv.Itoa(len(chunk)))
	}
	return chunk
}

func (t *gzipTransform) transformChunk(ctx *Context, chunk []byte, finishing bool) []byte {
	if !t.gzipping {
		return chunk
	}
	t.gz.Write(chunk)
	if finishing {
		t.gz.Close()
	} else {
		t.gz.Flush()
	}
	out := make([]byte, t.buf.Len())
	copy(out, t.buf.Bytes())
	t.buf.Reset()
	return out
}

// chunkedTransform rewrites the body into HTTP/1.1 chunked transfer
// encoding, unless the response already carries an explicit
// Content-Length or Transfer-Encoding. Grounded on
// ChunkedTransferEncoding (asyncio/web.cpp): each non-empty chunk is
// wrapped in "<hex-size>\r\n...\r\n", with a trailing "0\r\n\r\n" on
// the finishing write.
type chunkedTransform struct {
	chunking bool
}

func newChunkedTransform(req *Request) *chunkedTransform {
	return &chunkedTransform{chunking: req.Version == "HTTP/1.1"}
}

func (t *chunkedTransform) transformFirstChunk(ctx *Context, chunk []byte, finishing bool) []byte {
	if !t.chunking {
		return chunk
	}
	if ctx.Header.Get(hdr.ContentLength) != "" || ctx.Header.Get(hdr.TransferEncoding) != "" {
		t.chunking = false
		return chunk
	}
	ctx.Header.Set(hdr.TransferEncoding, "chunked")
	return t.transformChunk(ctx, chunk, finishing)
}

func (t *chunkedTransform) transformChunk(ctx *Context, chunk []byte, finishing bool) []byte {
	if !t.chunking {
		return chunk
	}
	var out []byte
	if len(chunk) > 0 {
		out = append(out, fmt.Sprintf("%x\r\n", len(chunk))...)
		out = append(out, chunk...)
		out = append(out, "\r\n"...)
	}
	if finishing {
		out = append(out, "0\r\n\r\n"...)
	}
	return out
}
