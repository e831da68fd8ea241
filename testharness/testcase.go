// Package testharness gives tests a dedicated Reactor and a stop/wait
// pair for driving one asynchronous chain to completion synchronously,
// plus a pre-wired HttpServer+HttpClient pair bound to an ephemeral
// port for end-to-end HTTP (and HTTPS, with a self-signed cert) tests.
//
// Grounded on tinycore::AsyncTestCase/AsyncHTTPTestCase
// (asyncio/testing.h/.cpp): stop()/wait()'s value-stashing handshake,
// and AsyncHTTPTestCase's getApp()/getUnusedPort()/fetch() shape.
// badu-http has no async test harness of its own (its tests call
// httptest.Server directly), so this package is new code built on
// this module's reactor/httpserver/httpclient.
package testharness

import (
	"errors"
	"time"

	"github.com/duskline/netasync/reactor"
)

// ErrTimeout is returned by Wait when timeout elapses before Stop is
// called.
var ErrTimeout = errors.New("testharness: wait timed out")

const defaultWaitTimeout = 5 * time.Second

// AsyncTestCase owns a dedicated Reactor and the stop/wait handshake
// tinycore's AsyncTestCase provides: schedule work that eventually
// calls Stop, then call Wait to run the loop until it does.
type AsyncTestCase struct {
	R *reactor.Reactor

	value   any
	stopped bool
}

// NewAsyncTestCase returns an AsyncTestCase with a fresh Reactor.
func NewAsyncTestCase() *AsyncTestCase {
	return &AsyncTestCase{R: reactor.New()}
}

// IOLoop returns the Reactor this test case drives, for scheduling
// work directly (tinycore's io_loop()).
func (tc *AsyncTestCase) IOLoop() *reactor.Reactor { return tc.R }

// Stop stops the loop and remembers value for Wait to return.
func (tc *AsyncTestCase) Stop(value any) {
	tc.stopped = true
	tc.value = value
	tc.R.Stop()
}

// Wait runs the loop until Stop is called, returning the stashed
// value, or ErrTimeout if timeout (default 5s) elapses first. Any
// work that leads to Stop must already be scheduled (e.g. via
// IOLoop().AddCallback) before Wait is called.
func (tc *AsyncTestCase) Wait(timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}
	tc.stopped = false
	timedOut := false
	handle := tc.R.AddTimeoutAfter(timeout, func() {
		timedOut = true
		tc.R.Stop()
	})
	tc.R.Start()
	if timedOut {
		return nil, ErrTimeout
	}
	tc.R.RemoveTimeout(handle)
	return tc.value, nil
}
