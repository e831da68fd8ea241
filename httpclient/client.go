package httpclient

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/tls"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/duskline/netasync/cookie"
	"github.com/duskline/netasync/hdr"
	"github.com/duskline/netasync/netstream"
	"github.com/duskline/netasync/reactor"
	"github.com/duskline/netasync/url"
)

// DefaultMaxRedirects bounds follow_redirects when RequestOptions
// leaves MaxRedirects at its zero value but FollowRedirects is set.
const DefaultMaxRedirects = 5

var statusLineRe = regexp.MustCompile(`^HTTP/1\.[01] (\d+) .*$`)

// Client originates requests against a Reactor, matching
// tinycore::SimpleAsyncHTTPClient: one Client can drive any number of
// concurrent fetches, each an independent Stream.
type Client struct {
	r   *reactor.Reactor
	jar *cookie.Jar
}

// New returns a Client bound to r, with its own cookie Jar: Set-Cookie
// responses are remembered and replayed on later requests to a
// matching host/path, including across a redirect chain within a
// single Fetch.
func New(r *reactor.Reactor) *Client {
	return &Client{r: r, jar: cookie.NewJar()}
}

// Jar returns the Client's cookie jar, letting callers inspect or seed
// cookies ahead of a Fetch.
func (c *Client) Jar() *cookie.Jar { return c.jar }

// Fetch issues the request described by opts and invokes cb exactly
// once with the resulting Response (synthesising status 599 on
// timeout or connection failure, per §4.9's closing paragraph).
func (c *Client) Fetch(opts *RequestOptions, cb func(*Response)) {
	if err := opts.Validate(); err != nil {
		cb(timeoutResponse(opts, opts.URL, err))
		return
	}
	redirects := opts.MaxRedirects
	if opts.FollowRedirects && redirects == 0 {
		redirects = DefaultMaxRedirects
	}
	c.fetch(opts, redirects, time.Now(), func(resp *Response) {
		resp.Request = opts
		cb(resp)
	})
}

// fetchLeg guards a single connect-through-response leg of a fetch
// (one per redirect hop) with a RequestTimeout that, per §4.9, spans
// "the larger gates the response" — i.e. stays armed across the
// status/header/body reads, not just the connect phase. done ensures
// the timeout firing and the leg completing normally can race without
// cb ever being invoked twice.
type fetchLeg struct {
	r    *reactor.Reactor
	opts *RequestOptions
	cb   func(*Response)

	done        bool
	hasDeadline bool
	deadline    reactor.TimerHandle
	stream      *netstream.Stream
}

func newFetchLeg(r *reactor.Reactor, opts *RequestOptions, urlStr string, cb func(*Response)) *fetchLeg {
	leg := &fetchLeg{r: r, opts: opts, cb: cb}
	if opts.RequestTimeout > 0 {
		leg.hasDeadline = true
		leg.deadline = r.AddTimeoutAfter(opts.RequestTimeout, func() {
			leg.expire(urlStr)
		})
	}
	return leg
}

// cancelTimer disarms the deadline without completing the leg — used
// when a redirect replaces this leg with a fresh one of its own.
func (leg *fetchLeg) cancelTimer() {
	if leg.hasDeadline {
		leg.r.RemoveTimeout(leg.deadline)
		leg.hasDeadline = false
	}
}

// succeed delivers resp exactly once, disarming the deadline first.
func (leg *fetchLeg) succeed(resp *Response) {
	if leg.done {
		return
	}
	leg.done = true
	leg.cancelTimer()
	leg.cb(resp)
}

// expire fires when RequestTimeout elapses before the leg completed:
// it closes whatever stream is open (connect, if still in flight, has
// no stream to close yet and its own eventual callback becomes a
// no-op against leg.done) and synthesises a 599 Response.
func (leg *fetchLeg) expire(urlStr string) {
	if leg.done {
		return
	}
	leg.done = true
	if leg.stream != nil {
		leg.stream.Close()
	}
	leg.cb(timeoutResponse(leg.opts, urlStr, fmt.Errorf("httpclient: request_timeout exceeded")))
}

func (c *Client) fetch(opts *RequestOptions, redirectsLeft int, start time.Time, cb func(*Response)) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		cb(timeoutResponse(opts, opts.URL, err))
		return
	}

	host, port, err := splitHostPort(u)
	if err != nil {
		cb(timeoutResponse(opts, opts.URL, err))
		return
	}

	connectOpts := netstream.ConnectOptions{Timeout: opts.ConnectTimeout}
	if u.Scheme == "https" {
		connectOpts.TLSConfig = &tls.Config{InsecureSkipVerify: !opts.ValidateCert}
	}

	leg := newFetchLeg(c.r, opts, u.String(), cb)

	netstream.Connect(c.r, host, port, connectOpts, func(stream *netstream.Stream, err error) {
		if leg.done {
			return
		}
		if err != nil {
			leg.succeed(timeoutResponse(opts, u.String(), err))
			return
		}
		leg.stream = stream
		c.onConnected(opts, u, redirectsLeft, start, stream, leg)
	})
}

func (c *Client) onConnected(opts *RequestOptions, u *url.URL, redirectsLeft int, start time.Time, stream *netstream.Stream, leg *fetchLeg) {
	headers := buildRequestHeaders(opts, u)
	if jarCookies := c.jar.Cookies(u.Hostname(), u.Path, u.Scheme == "https"); len(jarCookies) > 0 && headers.Get(hdr.CookieHeader) == "" {
		var b strings.Builder
		for i, ck := range jarCookies {
			if i > 0 {
				b.WriteString("; ")
			}
			b.WriteString(ck.Name)
			b.WriteByte('=')
			b.WriteString(ck.Value)
		}
		headers.Set(hdr.CookieHeader, b.String())
	}
	reqLine := fmt.Sprintf("%s %s HTTP/1.1\r\n", opts.method(), requestTarget(u))
	if opts.HeaderCallback != nil {
		opts.HeaderCallback(reqLine)
	}

	var buf bytes.Buffer
	buf.WriteString(reqLine)
	headers.Each(func(name, value string) {
		line := name + ": " + value + "\r\n"
		buf.WriteString(line)
		if opts.HeaderCallback != nil {
			opts.HeaderCallback(line)
		}
	})
	buf.WriteString("\r\n")
	if opts.HeaderCallback != nil {
		opts.HeaderCallback("\r\n")
	}
	buf.Write(opts.Body)

	stream.Write(buf.Bytes(), func() {
		stream.ReadUntil("\r\n\r\n", func(head []byte) {
			c.onHeaders(opts, u, redirectsLeft, start, stream, head, leg)
		})
	})
}

func (c *Client) onHeaders(opts *RequestOptions, u *url.URL, redirectsLeft int, start time.Time, stream *netstream.Stream, head []byte, leg *fetchLeg) {
	lineEnd := bytes.Index(head, []byte("\r\n"))
	if lineEnd < 0 {
		stream.Close()
		leg.succeed(timeoutResponse(opts, u.String(), &ErrProtocol{Detail: "no status line"}))
		return
	}
	statusLine := strings.TrimRight(string(head[:lineEnd]), "\r")
	m := statusLineRe.FindStringSubmatch(statusLine)
	if m == nil {
		stream.Close()
		leg.succeed(timeoutResponse(opts, u.String(), &ErrProtocol{Detail: "malformed status line " + statusLine}))
		return
	}
	statusCode, _ := strconv.Atoi(m[1])

	hr := hdr.NewHeaderReader(bufio.NewReader(bytes.NewReader(head[lineEnd+2:])))
	rawHeaders, err := hr.ReadHeader()
	if err != nil {
		stream.Close()
		leg.succeed(timeoutResponse(opts, u.String(), &ErrProtocol{Detail: "reading headers: " + err.Error()}))
		return
	}
	respHeaders := hdr.FromHeader(rawHeaders)

	if setCookies := respHeaders.GetList(hdr.SetCookieHeader); len(setCookies) > 0 {
		parsed := make([]*cookie.Cookie, 0, len(setCookies))
		for _, raw := range setCookies {
			if ck := cookie.ParseSetCookie(raw); ck != nil {
				parsed = append(parsed, ck)
			}
		}
		c.jar.SetCookies(u.Hostname(), u.Path, u.Scheme == "https", parsed)
	}

	if (statusCode == 301 || statusCode == 302) && opts.FollowRedirects && redirectsLeft > 0 {
		loc := respHeaders.Get(hdr.Location)
		if loc != "" {
			c.followRedirect(opts, u, loc, redirectsLeft, start, stream, leg)
			return
		}
	}

	gzipped := opts.UseGzip && strings.EqualFold(respHeaders.Get(hdr.ContentEncoding), "gzip")

	if strings.EqualFold(respHeaders.Get(hdr.TransferEncoding), "chunked") {
		c.readChunkedBody(opts, u, start, stream, respHeaders, statusCode, gzipped, leg)
		return
	}

	clStr := respHeaders.Get(hdr.ContentLength)
	if clStr == "" {
		c.complete(opts, u, start, stream, statusCode, respHeaders, nil, gzipped, leg)
		return
	}
	n, err := strconv.Atoi(clStr)
	if err != nil || n < 0 {
		stream.Close()
		leg.succeed(timeoutResponse(opts, u.String(), &ErrProtocol{Detail: "malformed Content-Length"}))
		return
	}
	if n == 0 {
		c.complete(opts, u, start, stream, statusCode, respHeaders, nil, gzipped, leg)
		return
	}
	stream.ReadBytes(n, func(body []byte) {
		c.complete(opts, u, start, stream, statusCode, respHeaders, body, gzipped, leg)
	}, opts.StreamingCallback)
}

func (c *Client) followRedirect(opts *RequestOptions, u *url.URL, loc string, redirectsLeft int, start time.Time, stream *netstream.Stream, leg *fetchLeg) {
	stream.Close()
	leg.cancelTimer()
	ref, err := url.Parse(loc)
	if err != nil {
		leg.succeed(timeoutResponse(opts, u.String(), err))
		return
	}
	target := u.ResolveReference(ref)
	next := *opts
	next.URL = target.String()
	if next.Headers != nil {
		h := next.Headers.Clone()
		h.Del(hdr.Host)
		next.Headers = h
	}
	c.fetch(&next, redirectsLeft-1, start, leg.cb)
}

// readChunkedBody implements §4.9 step 6's chunked loop: hex length
// line, that many bytes, a trailing CRLF, repeat until a zero-length
// chunk. Without a StreamingCallback the chunks are accumulated and
// complete gunzips the whole body when it arrived gzip-encoded; with
// one, each chunk is handed to it as received, without gzip decoding.
func (c *Client) readChunkedBody(opts *RequestOptions, u *url.URL, start time.Time, stream *netstream.Stream, headers *hdr.Store, statusCode int, gzipped bool, leg *fetchLeg) {
	var acc bytes.Buffer
	var readNext func()
	readNext = func() {
		stream.ReadUntil("\r\n", func(sizeLine []byte) {
			sizeStr := strings.TrimSpace(strings.TrimSuffix(string(sizeLine), "\r\n"))
			if i := strings.IndexByte(sizeStr, ';'); i >= 0 {
				sizeStr = sizeStr[:i]
			}
			size, err := strconv.ParseInt(sizeStr, 16, 64)
			if err != nil {
				stream.Close()
				leg.succeed(timeoutResponse(opts, u.String(), &ErrProtocol{Detail: "malformed chunk size"}))
				return
			}
			if size == 0 {
				stream.ReadUntil("\r\n", func([]byte) {
					c.complete(opts, u, start, stream, statusCode, headers, acc.Bytes(), gzipped, leg)
				})
				return
			}
			stream.ReadBytes(int(size)+2, func(chunk []byte) {
				if opts.StreamingCallback != nil {
					opts.StreamingCallback(chunk[:len(chunk)-2])
				} else {
					acc.Write(chunk[:len(chunk)-2])
				}
				readNext()
			}, nil)
		})
	}
	readNext()
}

// complete builds the final Response (decompressing the body first if
// it arrived gzip-encoded) and delivers it through leg, which disarms
// the RequestTimeout that has spanned this whole leg's connect/read
// sequence.
func (c *Client) complete(opts *RequestOptions, u *url.URL, start time.Time, stream *netstream.Stream, statusCode int, headers *hdr.Store, body []byte, gzipped bool, leg *fetchLeg) {
	stream.Close()
	if gzipped && len(body) > 0 {
		if decoded, err := gunzip(body); err == nil {
			body = decoded
		}
	}
	resp := newResponse(opts, statusCode, headers, body, u.String(), time.Since(start))
	leg.succeed(resp)
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// buildRequestHeaders applies §4.9 step 3: Host, Basic auth,
// Content-Length, a default form Content-Type for bodied POSTs,
// Accept-Encoding for gzip, User-Agent, and If-Modified-Since.
func buildRequestHeaders(opts *RequestOptions, u *url.URL) *hdr.Store {
	h := hdr.NewStore()
	if opts.Headers != nil {
		opts.Headers.Each(h.Add)
	}
	if h.Get(hdr.Host) == "" {
		h.Set(hdr.Host, u.Host)
	}
	if u.User != nil {
		opts.AuthUsername = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			opts.AuthPassword = pw
		}
	}
	if opts.AuthUsername != "" && (opts.AuthMode == "" || opts.AuthMode == AuthBasic) {
		h.Set(hdr.Authorization, "Basic "+url.BasicAuth(opts.AuthUsername, opts.AuthPassword))
	}
	if len(opts.Body) > 0 {
		h.Set(hdr.ContentLength, strconv.Itoa(len(opts.Body)))
		if opts.method() == "POST" && h.Get(hdr.ContentType) == "" {
			h.Set(hdr.ContentType, "application/x-www-form-urlencoded")
		}
	}
	if opts.UseGzip {
		h.Set(hdr.AcceptEncoding, "gzip")
	}
	if opts.UserAgent != "" {
		h.Set(hdr.UserAgent, opts.UserAgent)
	}
	if !opts.IfModifiedSince.IsZero() {
		h.Set(hdr.IfModifiedSince, opts.IfModifiedSince.UTC().Format(hdr.TimeFormat))
	}
	return h
}

func requestTarget(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		return path + "?" + u.RawQuery
	}
	return path
}

// splitHostPort strips a possible :port suffix from u.Host, defaulting
// to 80/443 by scheme, and unbrackets an IPv6 literal.
func splitHostPort(u *url.URL) (host string, port int, err error) {
	h := u.Host
	defaultPort := 80
	if u.Scheme == "https" {
		defaultPort = 443
	}
	if strings.HasPrefix(h, "[") {
		if i := strings.IndexByte(h, ']'); i >= 0 {
			rest := h[i+1:]
			host = h[1:i]
			if strings.HasPrefix(rest, ":") {
				p, perr := strconv.Atoi(rest[1:])
				if perr != nil {
					return "", 0, fmt.Errorf("httpclient: invalid port in %q", h)
				}
				return host, p, nil
			}
			return host, defaultPort, nil
		}
		return "", 0, fmt.Errorf("httpclient: unterminated IPv6 literal in %q", h)
	}
	if i := strings.LastIndexByte(h, ':'); i >= 0 {
		p, perr := strconv.Atoi(h[i+1:])
		if perr != nil {
			return "", 0, fmt.Errorf("httpclient: invalid port in %q", h)
		}
		return h[:i], p, nil
	}
	return h, defaultPort, nil
}
