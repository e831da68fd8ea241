package httpserver

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/duskline/netasync/hdr"
	"github.com/duskline/netasync/mime"
	"github.com/duskline/netasync/url"
	"github.com/duskline/netasync/web"
)

const continueResponse = "HTTP/1.1 100 Continue\r\n\r\n"

// maxFormMemory bounds how much of a multipart body's non-file parts
// mime.ReadForm keeps in memory before spilling file parts to disk,
// matching the headroom tinycore's form decoder reserves.
const maxFormMemory = 10 << 20

// decideBody implements §4.5 step 2: a Content-Length arms a fixed-
// size read (rejecting bodies over the application's configured
// MaxBodySize), honoring Expect: 100-continue first; otherwise the
// request has no body and dispatch proceeds immediately.
func (c *Connection) decideBody() {
	cl := c.req.Header.Get(hdr.ContentLength)
	if cl == "" {
		c.dispatch()
		return
	}

	n, err := strconv.ParseInt(cl, 10, 64)
	if err != nil || n < 0 {
		c.log.Warnf("malformed Content-Length %q", cl)
		c.stream.Close()
		return
	}
	if maxBody := c.app.Settings.MaxBodySize; maxBody > 0 && n > maxBody {
		c.sendTooLarge()
		return
	}

	c.state = stateReadingBody
	if strings.EqualFold(c.req.Header.Get(hdr.Expect), "100-continue") {
		c.stream.Write([]byte(continueResponse), func() {
			c.readBody(int(n))
		})
		return
	}
	c.readBody(int(n))
}

func (c *Connection) readBody(n int) {
	if n == 0 {
		c.req.Body = nil
		c.decodeBody()
		c.dispatch()
		return
	}
	c.stream.ReadBytes(n, func(data []byte) {
		c.req.Body = data
		c.decodeBody()
		c.dispatch()
	}, nil)
}

// sendTooLarge rejects an oversized request body without ever reading
// it, the behavior a Content-Length beyond the application's
// MaxBodySize gets per §4.5.
func (c *Connection) sendTooLarge() {
	resp := "HTTP/1.1 413 Payload Too Large\r\nConnection: close\r\nContent-Length: 0\r\n\r\n"
	c.stream.Write([]byte(resp), func() {
		c.stream.Close()
	})
}

// decodeBody parses a fully-read body against its Content-Type: form-
// urlencoded bodies populate BodyArguments, multipart/form-data bodies
// populate both BodyArguments (non-file fields) and Files.
func (c *Connection) decodeBody() {
	ctype := c.req.Header.Get(hdr.ContentType)
	switch {
	case strings.HasPrefix(ctype, "application/x-www-form-urlencoded"):
		c.decodeURLEncoded()
	case strings.HasPrefix(ctype, "multipart/form-data"):
		c.decodeMultipart(ctype)
	}
}

func (c *Connection) decodeURLEncoded() {
	values, err := url.ParseQuery(string(c.req.Body))
	if err != nil {
		c.log.Warnf("invalid form body: %v", err)
		return
	}
	for k, v := range values {
		c.req.BodyArguments[k] = v
	}
}

// decodeMultipart extracts the boundary= parameter (possibly quoted)
// from ctype, then decodes every part: a part with neither a
// filename nor a Content-Type header is a plain form field, otherwise
// it's a file attachment. Invalid parts are skipped with a warning;
// a missing boundary logs a warning and attaches no arguments,
// matching §4.5 step 2's multipart/form-data handling.
func (c *Connection) decodeMultipart(ctype string) {
	_, params, err := mime.MIMEParseMediaType(ctype)
	if err != nil {
		c.log.Warnf("invalid multipart Content-Type: %v", err)
		return
	}
	boundary := params["boundary"]
	if boundary == "" {
		c.log.Warnf("multipart/form-data with no boundary")
		return
	}

	mr := mime.NewMultipartReader(bytes.NewReader(c.req.Body), boundary)
	form, err := mr.ReadForm(maxFormMemory)
	if err != nil {
		c.log.Warnf("invalid multipart body: %v", err)
		return
	}

	for name, values := range form.Value {
		c.req.BodyArguments[name] = append(c.req.BodyArguments[name], values...)
	}
	for name, headers := range form.File {
		for _, fh := range headers {
			body, rerr := readFileHeader(fh)
			if rerr != nil {
				c.log.Warnf("reading multipart file %q: %v", fh.Filename, rerr)
				continue
			}
			c.req.Files[name] = append(c.req.Files[name], &web.FormFile{
				Filename:    fh.Filename,
				ContentType: fh.Header.Get(hdr.ContentType),
				Body:        body,
			})
		}
	}
	if err := form.RemoveAll(); err != nil {
		c.log.Warnf("cleaning up multipart temp files: %v", err)
	}
}

func readFileHeader(fh *mime.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, fh.Size)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
