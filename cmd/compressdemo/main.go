// Command compressdemo serves a large plain-text body through the
// gzip OutputTransform (§4.8), demonstrating the negotiation §8
// scenario 4 exercises: a client sending "Accept-Encoding: gzip"
// receives a "Content-Encoding: gzip"-tagged, gzip-compressed body
// that decodes back to the original text. tinycore's own
// example/compress/compress.cpp exercises GZipCompressor/Decompressor
// directly on a file rather than over HTTP; gzip codec wrappers are
// named in §1 as an out-of-scope external collaborator, so this demo
// targets the in-scope component instead — the response pipeline's
// gzip stage — which is what a reader asking "does the gzip transform
// work" actually wants to see end to end.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/duskline/netasync/cliopts"
	"github.com/duskline/netasync/httpserver"
	"github.com/duskline/netasync/reactor"
	"github.com/duskline/netasync/web"
)

type textHandler struct {
	web.BaseHandler
}

func (*textHandler) Get(ctx *web.Context) {
	ctx.SetHeader("Content-Type", "text/plain")
	ctx.WriteString(strings.Repeat("asdfqwer", 64))
}

func main() {
	opts := cliopts.New("compressdemo", "1.0.0")
	addr := opts.DefineString("addr", "127.0.0.1:8081", "address to listen on")
	if err := opts.Parse(os.Args[1:]); err != nil {
		switch err {
		case cliopts.ErrHelp:
			fmt.Println(opts.Usage())
			os.Exit(cliopts.HelpExitCode)
		case cliopts.ErrVersion:
			fmt.Println(opts.Version())
			os.Exit(cliopts.VersionExitCode)
		default:
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	settings := web.DefaultSettings()
	settings.GzipResponses = true
	app := web.NewApplication("", settings)
	spec, err := web.NewURLSpec("/text", func() web.Handler { return &textHandler{} }, "text", nil)
	if err != nil {
		panic(err)
	}
	if err := app.AddHandlers(".*$", []*web.URLSpec{spec}); err != nil {
		panic(err)
	}

	r := reactor.New()
	srv := httpserver.New(r, app)
	if err := srv.Listen(*addr); err != nil {
		panic(err)
	}
	fmt.Printf("compressdemo listening on %s (fetch /text with Accept-Encoding: gzip)\n", *addr)
	r.Start()
}
