package testharness

import (
	"fmt"
	"net"
	"time"

	"github.com/duskline/netasync/httpclient"
	"github.com/duskline/netasync/httpserver"
	"github.com/duskline/netasync/web"
)

// AppFactory builds the Application under test; tinycore's getApp().
type AppFactory func() *web.Application

// AsyncHTTPTestCase adds an ephemeral-port HttpServer and a bound
// HttpClient to AsyncTestCase, and Fetch, which issues one request
// synchronously and returns its Response.
type AsyncHTTPTestCase struct {
	*AsyncTestCase

	GetApp AppFactory

	Server *httpserver.Server
	Client *httpclient.Client

	addr    net.Addr
	started bool
}

// NewAsyncHTTPTestCase returns a test case that will lazily build and
// listen on getApp()'s Application the first time Fetch runs.
func NewAsyncHTTPTestCase(getApp AppFactory) *AsyncHTTPTestCase {
	return &AsyncHTTPTestCase{AsyncTestCase: NewAsyncTestCase(), GetApp: getApp}
}

func (tc *AsyncHTTPTestCase) ensureStarted() error {
	if tc.started {
		return nil
	}
	app := tc.GetApp()
	tc.Server = httpserver.New(tc.R, app)
	if err := tc.Server.Listen("127.0.0.1:0"); err != nil {
		return err
	}
	tc.addr = tc.Server.Addr()
	tc.Client = httpclient.New(tc.R)
	tc.started = true
	return nil
}

// URL joins path onto this test case's base URL (getURL()).
func (tc *AsyncHTTPTestCase) URL(path string) string {
	return "http://" + tc.addr.String() + path
}

// Fetch issues one request against path through the bound HttpClient
// and HttpServer, running the Reactor until the response (or timeout,
// default 5s) arrives.
func (tc *AsyncHTTPTestCase) Fetch(path string, opts *httpclient.RequestOptions, timeout time.Duration) (*httpclient.Response, error) {
	if err := tc.ensureStarted(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &httpclient.RequestOptions{}
	}
	opts.URL = tc.URL(path)

	var resp *httpclient.Response
	tc.R.AddCallback(func() {
		tc.Client.Fetch(opts, func(r *httpclient.Response) {
			resp = r
			tc.Stop(nil)
		})
	})
	if _, err := tc.Wait(timeout); err != nil {
		return nil, fmt.Errorf("testharness: fetch %s: %w", path, err)
	}
	return resp, nil
}
