package web

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/duskline/netasync/applog"
)

// hostHandlers groups the URLSpecs registered under one host pattern,
// matching Application::HostHandlerType (web.h): a compiled host
// regex paired with the URLSpec list to try in registration order.
type hostHandlers struct {
	pattern  *regexp.Regexp
	handlers []*URLSpec
}

// Application routes an inbound request to a Handler by host pattern
// then path regex, and owns the OutputTransform factories applied to
// every response. Grounded on tinycore::Application (asyncio/web.h/
// .cpp): addHandlers' "insert new host groups before the trailing
// catch-all" rule, operator()'s host-then-path matching with a
// default-host fallback and 404 when nothing matches, and logRequest's
// severity-by-status-class access log line.
type Application struct {
	hostGroups    []*hostHandlers
	namedHandlers map[string]*URLSpec
	defaultHost   string
	Settings      *Settings

	useGzip    bool
	useChunked bool

	// RenderError, if set, replaces Context.SendError's default
	// "<code>: <reason>" HTML body.
	RenderError func(ctx *Context, code int, err error)

	Log *applog.Logger
}

// NewApplication builds an Application with no routes registered yet;
// call AddHandlers to add them. defaultHost is matched against the
// request Host header when no registered host pattern does, mirroring
// tinycore's fallback (skipped when the request carries X-Real-Ip,
// i.e. it arrived through a reverse proxy that already resolved the
// host).
func NewApplication(defaultHost string, settings *Settings) *Application {
	if settings == nil {
		settings = DefaultSettings()
	}
	return &Application{
		namedHandlers: make(map[string]*URLSpec),
		defaultHost:   defaultHost,
		Settings:      settings,
		useGzip:       settings.GzipResponses,
		useChunked:    true,
		Log:           applog.Default(),
	}
}

// AddHandlers registers specs under hostPattern. A new group is
// inserted before a trailing catch-all group (pattern ".*$") if one
// already exists, so later AddHandlers calls still take precedence
// over an earlier "match any host" registration — the same ordering
// tinycore's addHandlers preserves.
func (a *Application) AddHandlers(hostPattern string, specs []*URLSpec) error {
	anchored := hostPattern
	if !strings.HasSuffix(anchored, "$") {
		anchored += "$"
	}
	re, err := regexp.Compile(anchored)
	if err != nil {
		return err
	}
	group := &hostHandlers{pattern: re, handlers: specs}

	if n := len(a.hostGroups); n > 0 && a.hostGroups[n-1].pattern.String() == ".*$" {
		a.hostGroups = append(a.hostGroups, nil)
		copy(a.hostGroups[n:], a.hostGroups[n-1:])
		a.hostGroups[n-1] = group
	} else {
		a.hostGroups = append(a.hostGroups, group)
	}

	for _, spec := range specs {
		if spec.Name != "" {
			if _, exists := a.namedHandlers[spec.Name]; exists {
				a.Log.Warnf("multiple handlers named %q; replacing previous value", spec.Name)
			}
			a.namedHandlers[spec.Name] = spec
		}
	}
	return nil
}

// ReverseURL looks up the named URLSpec and substitutes args into its
// path template.
func (a *Application) ReverseURL(name string, args ...string) (string, error) {
	spec, ok := a.namedHandlers[name]
	if !ok {
		return "", &URLSpecNotFoundError{Name: name}
	}
	return spec.Reverse(args...)
}

// URLSpecNotFoundError reports a ReverseURL lookup for an unknown
// name.
type URLSpecNotFoundError struct{ Name string }

func (e *URLSpecNotFoundError) Error() string {
	return "web: no URLSpec named " + e.Name
}

// ServeRequest is the request entry point the Connection layer calls
// once a Request has been fully parsed. It resolves the host and path
// to a Handler, builds the Context and its transform pipeline, and
// dispatches the HTTP method — tinycore's Application::operator().
func (a *Application) ServeRequest(req *Request) {
	ctx := newContext(req, a)
	if a.useGzip {
		ctx.transforms = append(ctx.transforms, newGzipTransform(req))
	}
	if a.useChunked {
		ctx.transforms = append(ctx.transforms, newChunkedTransform(req))
	}

	handlers, host := a.resolveHost(req)
	if handlers == nil {
		ctx.Redirect("http://"+a.defaultHost+"/", true)
		a.logRequest(ctx, time.Since(req.StartTime))
		return
	}

	for _, spec := range handlers {
		args, ok := spec.Match(req.Path)
		if !ok {
			continue
		}
		h := spec.newHandler()
		a.runHandler(h, args, ctx, host)
		return
	}

	ctx.SendError(404, nil)
	a.logRequest(ctx, time.Since(req.StartTime))
}

func (a *Application) runHandler(h Handler, pathArgs []string, ctx *Context, host string) {
	ctx.PathArgs = pathArgs
	ctx.supportsETags = h.SupportsETags()
	if err := h.Prepare(ctx); err != nil {
		code := 500
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			code = httpErr.StatusCode
		}
		ctx.SendError(code, err)
	} else if !ctx.Finished() {
		dispatch(h, ctx.Request.Method, ctx)
	}
	if ctx.AutoFinish && !ctx.Finished() {
		ctx.Finish()
	}
	h.OnFinish(ctx)
	a.logRequest(ctx, time.Since(ctx.Request.StartTime))
}

// resolveHost finds the host group whose pattern matches the
// request's Host header (port stripped, case-folded), falling back to
// a group matching the configured default host when the request
// didn't arrive via a reverse proxy (no X-Real-Ip header).
func (a *Application) resolveHost(req *Request) ([]*URLSpec, string) {
	host := strings.ToLower(req.Host)
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	for _, g := range a.hostGroups {
		if g.pattern.MatchString(host) {
			return g.handlers, host
		}
	}
	if req.Header.Get("X-Real-Ip") == "" {
		for _, g := range a.hostGroups {
			if g.pattern.MatchString(a.defaultHost) {
				return g.handlers, host
			}
		}
	}
	return nil, host
}

func (a *Application) logRequest(ctx *Context, elapsed time.Duration) {
	summary := ctx.Request.Method + " " + ctx.Request.URI + " (" + ctx.Request.RemoteIP + ")"
	a.Log.LogRequest(ctx.StatusCode, summary, float64(elapsed.Microseconds())/1000.0)
}
