package web

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/duskline/netasync/cookie"
	"github.com/duskline/netasync/hdr"
)

// Context is the per-request handler-facing object: the inbound
// Request, the response being assembled (status, headers, buffered
// body chunks), and the finish/auto-finish bookkeeping tinycore's
// RequestHandler keeps as instance fields. One Context is created per
// request and discarded once the response finishes.
//
// Grounded on tinycore::RequestHandler (asyncio/web.h/.cpp): the
// statusCode/reason/headersWritten/finished/autoFinish flags,
// write/flush/finish, getArgument/getCookie/setCookie/redirect, and
// sendError's composed-HTML default body.
type Context struct {
	Request *Request
	App     *Application

	// PathArgs holds the percent-decoded capturing groups from the
	// URLSpec pattern that matched this request, in order — tinycore's
	// RequestHandler::_pathArgs, passed positionally to the dispatched
	// verb method there and exposed here since Go's Handler interface
	// has no variadic per-verb signature to carry them through.
	PathArgs []string

	StatusCode int
	reason     string
	Header     *hdr.Store

	writeBuf []byte

	headersWritten bool
	finished       bool
	AutoFinish     bool

	transforms []chunkTransform

	newCookies []*cookie.Cookie

	clearHeaders bool

	// supportsETags mirrors the dispatched Handler's SupportsETags;
	// Finish consults it before computing and checking an automatic
	// Etag.
	supportsETags bool
}

func newContext(req *Request, app *Application) *Context {
	return &Context{
		Request:       req,
		App:           app,
		StatusCode:    200,
		Header:        hdr.NewStore(),
		AutoFinish:    true,
		supportsETags: true,
	}
}

// SetStatus sets the response status line; reason defaults to the
// canonical phrase for code when empty.
func (c *Context) SetStatus(code int, reason string) {
	c.StatusCode = code
	c.reason = reason
}

func (c *Context) reasonPhrase() string {
	if c.reason != "" {
		return c.reason
	}
	if p, ok := reasonPhrases[c.StatusCode]; ok {
		return p
	}
	return "Unknown"
}

// Write appends data to the response body buffer; nothing reaches the
// wire until Flush or Finish, mirroring RequestHandler::write
// buffering a chunk for the OutputTransform pipeline to see in one
// piece before the headers are finalized.
func (c *Context) Write(data []byte) {
	if c.finished {
		panic(fmt.Errorf("web: Write called after Finish"))
	}
	c.writeBuf = append(c.writeBuf, data...)
}

// WriteString is the string convenience form of Write.
func (c *Context) WriteString(s string) { c.Write([]byte(s)) }

// SetHeader sets a response header, replacing any existing value.
func (c *Context) SetHeader(name, value string) { c.Header.Set(name, value) }

// AddHeader appends a response header value without replacing
// existing ones (e.g. repeated Set-Cookie, Vary).
func (c *Context) AddHeader(name, value string) { c.Header.Add(name, value) }

// SetCookie queues a Set-Cookie header to be emitted with the
// response headers.
func (c *Context) SetCookie(ck *cookie.Cookie) {
	c.newCookies = append(c.newCookies, ck)
}

// ClearCookie queues a Set-Cookie that expires name immediately.
func (c *Context) ClearCookie(name, path, domain string) {
	c.SetCookie(&cookie.Cookie{
		Name:    name,
		Value:   "",
		Path:    path,
		Domain:  domain,
		Expires: time.Unix(0, 0),
		MaxAge:  -1,
	})
}

// Cookie returns the named cookie from the request's Cookie header,
// if present.
func (c *Context) Cookie(name string) (*cookie.Cookie, bool) {
	raw := c.Request.Header.Get(hdr.CookieHeader)
	if raw == "" {
		return nil, false
	}
	for _, ck := range cookie.Parse(raw) {
		if ck.Name == name {
			return ck, true
		}
	}
	return nil, false
}

// Redirect sends a 3xx with a Location header. permanent selects 301
// vs the default 302, matching RequestHandler::redirect.
func (c *Context) Redirect(url string, permanent bool) {
	code := 302
	if permanent {
		code = 301
	}
	c.SetStatus(code, "")
	c.SetHeader(hdr.Location, url)
	c.Finish()
}

// SendError finalizes the response as an HTTPError: if the
// application has a custom error renderer it runs first, otherwise
// Context falls back to a minimal "<code>: <reason>" HTML body, the
// same default tinycore's writeError produces absent a
// get_error_html override.
func (c *Context) SendError(code int, err error) {
	if c.finished {
		return
	}
	c.writeBuf = nil
	c.SetStatus(code, "")
	if c.App != nil && c.App.RenderError != nil {
		c.App.RenderError(c, code, err)
	} else {
		c.SetHeader(hdr.ContentType, "text/html; charset=UTF-8")
		body := fmt.Sprintf("<html><title>%d: %s</title><body>%d: %s</body></html>",
			code, c.reasonPhrase(), code, c.reasonPhrase())
		c.writeBuf = []byte(body)
	}
	c.Finish()
}

// Flush pushes any buffered, not-yet-written body bytes through the
// transform pipeline and onto the Connection, writing the status line
// and headers first if this is the first Flush for this Context.
func (c *Context) Flush(finishing bool, cb func()) {
	chunk := c.writeBuf
	c.writeBuf = nil

	for _, ck := range c.newCookies {
		c.Header.Add(hdr.SetCookieHeader, ck.String())
	}
	c.newCookies = nil

	if !c.headersWritten {
		c.headersWritten = true
		for _, t := range c.transforms {
			chunk = t.transformFirstChunk(c, chunk, finishing)
		}
		head := c.renderHeaders()
		data := append(head, chunk...)
		if cb != nil {
			c.Request.Conn.Write(data, cb)
		} else {
			c.Request.Conn.Write(data, func() {})
		}
		return
	}

	for _, t := range c.transforms {
		chunk = t.transformChunk(c, chunk, finishing)
	}
	if len(chunk) == 0 && cb != nil {
		cb()
		return
	}
	if cb != nil {
		c.Request.Conn.Write(chunk, cb)
	} else {
		c.Request.Conn.Write(chunk, func() {})
	}
}

func (c *Context) renderHeaders() []byte {
	var buf []byte
	buf = append(buf, fmt.Sprintf("%s %d %s\r\n", c.Request.Version, c.StatusCode, c.reasonPhrase())...)
	c.Header.Each(func(name, value string) {
		buf = append(buf, name...)
		buf = append(buf, ':', ' ')
		buf = append(buf, hdr.HeaderNewlineToSpace.Replace(value)...)
		buf = append(buf, '\r', '\n')
	})
	buf = append(buf, '\r', '\n')
	return buf
}

// Finish flushes any remaining output and marks the Context done,
// releasing the Connection to serve the next request (or close, for
// non-keep-alive). Before the first flush it sets Content-Length to the
// buffered body's length and, for a 200 GET/HEAD response, an Etag
// (sha1 of the body, quoted), short-circuiting to 304 with an empty body when the request's
// If-None-Match already names that Etag.
func (c *Context) Finish() {
	if c.finished {
		return
	}
	c.applyAutoETag()
	c.finished = true
	c.Flush(true, func() {
		c.Request.Finish()
		c.Request.Conn.Finish()
	})
}

// applyAutoETag implements §4.6's finish() rule, grounded on
// tinycore::RequestHandler::_computeEtag/_shouldReturn304: an
// automatic, quoted sha1-of-body Etag for 200 GET/HEAD responses whose
// handler hasn't disabled it (SupportsETags) or set one itself, with a
// 304 short-circuit when the request's If-None-Match already names it.
func (c *Context) applyAutoETag() {
	if !c.headersWritten {
		c.Header.Set(hdr.ContentLength, strconv.Itoa(len(c.writeBuf)))
	}

	eligible := c.supportsETags && c.StatusCode == 200 &&
		(c.Request.Method == "GET" || c.Request.Method == "HEAD") &&
		c.Header.Get(hdr.Etag) == ""
	if !eligible {
		return
	}

	sum := sha1.Sum(c.writeBuf)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`
	c.Header.Set(hdr.Etag, etag)

	if inm := c.Request.Header.Get(hdr.IfNoneMatch); inm != "" && etagMatches(inm, etag) {
		c.writeBuf = nil
		c.SetStatus(304, "")
		c.Header.Set(hdr.ContentLength, "0")
	}
}

// etagMatches reports whether any entry of a comma-separated
// If-None-Match list equals etag, or the list is "*".
func etagMatches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "*" {
		return true
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		if strings.TrimSpace(candidate) == etag {
			return true
		}
	}
	return false
}

// Finished reports whether Finish has already run, letting the
// Application skip invoking a handler's verb method twice.
func (c *Context) Finished() bool { return c.finished }

func (c *Context) contentLengthHint() int {
	return len(c.writeBuf)
}

var reasonPhrases = map[int]string{
	200: "OK", 201: "Created", 202: "Accepted", 204: "No Content",
	301: "Moved Permanently", 302: "Found", 303: "See Other", 304: "Not Modified",
	307: "Temporary Redirect", 308: "Permanent Redirect",
	400: "Bad Request", 401: "Unauthorized", 403: "Forbidden", 404: "Not Found",
	405: "Method Not Allowed", 409: "Conflict", 410: "Gone", 413: "Payload Too Large",
	422: "Unprocessable Entity", 429: "Too Many Requests",
	500: "Internal Server Error", 501: "Not Implemented", 502: "Bad Gateway",
	503: "Service Unavailable", 504: "Gateway Timeout",
}

func statusLine(code int) string {
	return strconv.Itoa(code) + " " + reasonPhrases[code]
}
