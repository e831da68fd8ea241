// Package web implements the Application/Router and RequestHandler
// layer: routing requests to handlers by host pattern and path regex,
// the per-request handler lifecycle (status, headers, buffered body,
// cookies, redirects, auto-finish), and the OutputTransform pipeline
// (gzip, then chunked transfer encoding) that rewrites a response's
// chunks on the way out. It is grounded on tinycore's
// asyncio/web.{h,cpp} (Application, RequestHandler, URLSpec,
// OutputTransform) — badu-http has no equivalent component of its own
// (it dispatches directly to an http.Handler), so the router and
// handler lifecycle here are new code in the teacher's file-per-
// concern style, built on top of the teacher's own hdr package for
// headers.
package web

import (
	"time"

	"github.com/duskline/netasync/hdr"
)

// FormFile is one uploaded file extracted from a multipart/form-data
// body.
type FormFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Connection is the narrow surface RequestHandler needs from whatever
// owns the underlying Stream — implemented by httpserver.Connection.
// Keeping this as an interface (rather than importing httpserver
// directly) avoids a web<->httpserver import cycle, since httpserver
// needs web's Application/Handler/Request types.
type Connection interface {
	// Write enqueues a chunk for the wire and invokes cb once written.
	Write(data []byte, cb func())
	// Finish signals that the handler is done; the Connection decides
	// keep-alive and either returns to reading the next request or
	// closes the Stream.
	Finish()
	// SetCloseCallback is forwarded to the underlying Stream.
	SetCloseCallback(func())
	RemoteAddr() string
}

// Request is the immutable-after-parsing inbound request record.
// Arguments and Files are populated from the query string and, for
// form-encoded or multipart bodies, the request body.
type Request struct {
	Method  string
	URI     string
	Path    string
	Query   string
	Version string
	Header  *hdr.Store
	Body    []byte

	RemoteIP string
	Scheme   string
	Host     string

	QueryArguments map[string][]string
	BodyArguments  map[string][]string
	Files          map[string][]*FormFile

	StartTime  time.Time
	FinishTime time.Time

	Conn Connection
}

// Argument returns the last value for name from the union of body and
// query arguments (body taking precedence, matching tinycore's
// getArgument merge order), with control characters \x00-\x08 and
// \x0e-\x1f stripped when strip is true.
func (r *Request) Argument(name string, def string, strip bool) (string, bool) {
	values := r.Arguments(name, strip)
	if len(values) == 0 {
		return def, false
	}
	return values[len(values)-1], true
}

// Arguments returns every value for name from the union of body and
// query arguments.
func (r *Request) Arguments(name string, strip bool) []string {
	var out []string
	out = append(out, r.QueryArguments[name]...)
	out = append(out, r.BodyArguments[name]...)
	if !strip {
		return out
	}
	stripped := make([]string, len(out))
	for i, v := range out {
		stripped[i] = stripControlChars(v)
	}
	return stripped
}

func stripControlChars(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c <= 0x08) || (c >= 0x0e && c <= 0x1f) {
			continue
		}
		b = append(b, c)
	}
	return string(b)
}

func (r *Request) Finish() {
	r.FinishTime = time.Now()
}
