package httpclient

import (
	"fmt"
	"time"

	"github.com/duskline/netasync/hdr"
)

// Response is the client-side result of a fetch: the request that
// produced it (the caller's original RequestOptions, even when
// redirects were followed), status, headers, body,
// final URL (after redirects), elapsed time, and an Error populated
// automatically whenever StatusCode falls outside [200,300).
//
// Grounded on tinycore::HTTPResponse (httpclient.h): effective_url,
// request_time, and rethrow()'s "error is set for any non-2xx code"
// behavior.
type Response struct {
	Request *RequestOptions

	StatusCode int
	Header     *hdr.Store
	Body       []byte

	EffectiveURL string
	RequestTime  time.Duration

	Error error
}

// HTTPError is returned by Response.Rethrow for a non-2xx status with
// no lower-level transport error.
type HTTPError struct {
	Code   int
	Reason string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("httpclient: HTTP %d: %s", e.Code, e.Reason)
}

// Rethrow returns Response.Error, the same value a caller would get
// synchronously from fetch on failure — tinycore's Response::rethrow.
func (r *Response) Rethrow() error { return r.Error }

func newResponse(opts *RequestOptions, statusCode int, header *hdr.Store, body []byte, effectiveURL string, elapsed time.Duration) *Response {
	r := &Response{
		Request:      opts,
		StatusCode:   statusCode,
		Header:       header,
		Body:         body,
		EffectiveURL: effectiveURL,
		RequestTime:  elapsed,
	}
	if statusCode < 200 || statusCode >= 300 {
		r.Error = &HTTPError{Code: statusCode, Reason: reasonOrUnknown(statusCode)}
	}
	return r
}

// timeoutResponse synthesises the spec's Response(status=599,
// error=<reason>) for a deadline or connection failure.
func timeoutResponse(opts *RequestOptions, effectiveURL string, err error) *Response {
	return &Response{
		Request:      opts,
		StatusCode:   599,
		EffectiveURL: effectiveURL,
		Error:        err,
	}
}

var reasonPhrases = map[int]string{
	200: "OK", 201: "Created", 204: "No Content",
	301: "Moved Permanently", 302: "Found", 304: "Not Modified",
	400: "Bad Request", 401: "Unauthorized", 403: "Forbidden", 404: "Not Found",
	405: "Method Not Allowed", 409: "Conflict", 410: "Gone",
	500: "Internal Server Error", 501: "Not Implemented", 502: "Bad Gateway",
	503: "Service Unavailable", 504: "Gateway Timeout", 599: "Timeout",
}

func reasonOrUnknown(code int) string {
	if p, ok := reasonPhrases[code]; ok {
		return p
	}
	return "Unknown"
}
