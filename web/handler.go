package web

// Handler is implemented by every request handler. Concrete handler
// types embed *BaseHandler and override only the verb methods they
// support; Go resolves the unoverridden methods through the embedded
// BaseHandler's promoted methods, which reproduces tinycore's
// RequestHandler virtual-dispatch fallback (an unimplemented on_get/
// on_post/... sends a 405) without any type switch or reflection —
// the interface's dynamic type carries whichever method the concrete
// handler actually defined.
type Handler interface {
	Prepare(ctx *Context) error

	Get(ctx *Context)
	Post(ctx *Context)
	Put(ctx *Context)
	Delete(ctx *Context)
	Head(ctx *Context)
	Options(ctx *Context)
	Patch(ctx *Context)

	// OnFinish runs once the dispatched verb method has returned (after
	// the automatic Finish when AutoFinish is on). A handler that turns
	// AutoFinish off and finishes later sees OnFinish before its
	// response is complete.
	OnFinish(ctx *Context)

	// SupportsETags reports whether this handler wants automatic
	// ETag computation and If-None-Match short-circuiting applied to
	// its buffered output, matching RequestHandler::computeEtag being
	// opt-out rather than opt-in.
	SupportsETags() bool
}

// BaseHandler gives every method Handler requires a default body, so
// embedders only need to override the verbs they actually serve.
// Prepare and OnFinish default to no-ops; the verb methods default to
// a 405.
type BaseHandler struct{}

var _ Handler = (*BaseHandler)(nil)

func (*BaseHandler) Prepare(ctx *Context) error { return nil }

func (*BaseHandler) Get(ctx *Context)     { ctx.SendError(405, nil) }
func (*BaseHandler) Post(ctx *Context)    { ctx.SendError(405, nil) }
func (*BaseHandler) Put(ctx *Context)     { ctx.SendError(405, nil) }
func (*BaseHandler) Delete(ctx *Context)  { ctx.SendError(405, nil) }
func (*BaseHandler) Head(ctx *Context)    { ctx.SendError(405, nil) }
func (*BaseHandler) Options(ctx *Context) { ctx.SendError(405, nil) }
func (*BaseHandler) Patch(ctx *Context)   { ctx.SendError(405, nil) }

func (*BaseHandler) OnFinish(ctx *Context) {}

func (*BaseHandler) SupportsETags() bool { return true }

// dispatch calls the Handler method matching method, sending a 405
// for any verb this module doesn't recognize at all (as opposed to
// one the handler chose not to support, which BaseHandler already
// turns into a 405 on its own).
func dispatch(h Handler, method string, ctx *Context) {
	switch method {
	case "GET":
		h.Get(ctx)
	case "POST":
		h.Post(ctx)
	case "PUT":
		h.Put(ctx)
	case "DELETE":
		h.Delete(ctx)
	case "HEAD":
		h.Head(ctx)
	case "OPTIONS":
		h.Options(ctx)
	case "PATCH":
		h.Patch(ctx)
	default:
		ctx.SendError(405, nil)
	}
}
