// Command helloworld reimplements tinycore's
// example/helloworld/helloworld.cpp: a single route answering "Hello
// world" in plain text, driven by a Reactor's Start loop and this
// module's web.Application + httpserver.Server, matching §9's
// "example programs... seed §8" framing (end-to-end scenario 1).
package main

import (
	"fmt"
	"os"

	"github.com/duskline/netasync/cliopts"
	"github.com/duskline/netasync/httpserver"
	"github.com/duskline/netasync/reactor"
	"github.com/duskline/netasync/web"
)

type helloHandler struct {
	web.BaseHandler
}

func (*helloHandler) Get(ctx *web.Context) {
	ctx.SetHeader("Content-Type", "text/plain")
	ctx.WriteString("Hello world")
}

func main() {
	opts := cliopts.New("helloworld", "1.0.0")
	addr := opts.DefineString("addr", "127.0.0.1:8080", "address to listen on")
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

	app := web.NewApplication("", nil)
	spec, err := web.NewURLSpec("/hello", func() web.Handler { return &helloHandler{} }, "hello", nil)
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
	fmt.Printf("helloworld listening on %s\n", *addr)
	r.Start()
}
