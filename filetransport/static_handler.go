package filetransport

import (
	"strings"

	"github.com/duskline/netasync/web"
)

// StaticFileHandler serves files out of Root, stripping Prefix from
// the request path first — tinycore's StaticFileHandler, which
// resolves its "path" URLSpec argument against application.settings
// ["static_path"]; this module's Handler factories take no
// constructor arguments, so the root and prefix are captured in the
// factory closure built by NewStaticFileHandler instead.
type StaticFileHandler struct {
	web.BaseHandler
	Root   FileSystem
	Prefix string
}

// NewStaticFileHandler returns a web.Handler factory suitable for
// web.NewURLSpec, serving files from root with prefix stripped off
// each request path (e.g. prefix "/static/" for a spec pattern of
// "/static/(.*)$").
func NewStaticFileHandler(root FileSystem, prefix string) func() web.Handler {
	return func() web.Handler {
		return &StaticFileHandler{Root: root, Prefix: prefix}
	}
}

func (h *StaticFileHandler) Get(ctx *web.Context) {
	name := strings.TrimPrefix(ctx.Request.Path, h.Prefix)
	if name == "" {
		name = "/"
	}
	ServeFile(ctx, h.Root, name)
}

func (h *StaticFileHandler) Head(ctx *web.Context) {
	h.Get(ctx)
}

func (h *StaticFileHandler) SupportsETags() bool { return false }
