package stackctx_test

import (
	"testing"

	"github.com/duskline/netasync/stackctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithExceptionHandlerCatchesPanic(t *testing.T) {
	s := stackctx.New()
	var caught interface{}
	s.WithExceptionHandler(func(r interface{}) {
		caught = r
	}, func() {
		wrapped := s.Wrap(func() { panic("boom") })
		wrapped()
	})
	assert.Equal(t, "boom", caught)
}

func TestHandlersRunInnermostFirstAndStopAtFirstRecovery(t *testing.T) {
	s := stackctx.New()
	var order []string
	s.WithExceptionHandler(func(r interface{}) {
		order = append(order, "outer")
	}, func() {
		s.WithExceptionHandler(func(r interface{}) {
			order = append(order, "inner")
		}, func() {
			wrapped := s.Wrap(func() { panic("boom") })
			wrapped()
		})
	})
	assert.Equal(t, []string{"inner"}, order)
}

func TestHandlerRePanicFallsThroughToOuterHandler(t *testing.T) {
	s := stackctx.New()
	var order []string
	s.WithExceptionHandler(func(r interface{}) {
		order = append(order, "outer")
	}, func() {
		s.WithExceptionHandler(func(r interface{}) {
			order = append(order, "inner")
			panic(r)
		}, func() {
			wrapped := s.Wrap(func() { panic("boom") })
			wrapped()
		})
	})
	assert.Equal(t, []string{"inner", "outer"}, order)
}

func TestExceptionEscapingEveryHandlerRePanics(t *testing.T) {
	s := stackctx.New()
	s.WithExceptionHandler(func(r interface{}) {
		panic(r)
	}, func() {
		wrapped := s.Wrap(func() { panic("boom") })
		assert.PanicsWithValue(t, "boom", wrapped)
	})
}

func TestWrapSnapshotsHandlerStackAtWrapTime(t *testing.T) {
	s := stackctx.New()
	var caught interface{}
	var wrapped func()
	s.WithExceptionHandler(func(r interface{}) {
		caught = r
	}, func() {
		wrapped = s.Wrap(func() { panic("late") })
	})
	// The handler has already been popped by the time wrapped runs, but
	// the snapshot captured at Wrap time still routes the panic to it —
	// this is the whole point of snapshotting rather than looking up the
	// live stack when the callback eventually fires.
	wrapped()
	assert.Equal(t, "late", caught)
}

func TestNullContextSuppressesOuterHandler(t *testing.T) {
	s := stackctx.New()
	called := false
	s.WithExceptionHandler(func(r interface{}) {
		called = true
	}, func() {
		s.NullContext(func() {
			wrapped := s.Wrap(func() { panic("boom") })
			assert.PanicsWithValue(t, "boom", wrapped)
		})
	})
	assert.False(t, called)
}

func TestWrapArgDeliversRecoveredPanicToHandler(t *testing.T) {
	s := stackctx.New()
	var caught interface{}
	var wrapped func(int)
	s.WithExceptionHandler(func(r interface{}) {
		caught = r
	}, func() {
		wrapped = stackctx.WrapArg(s, func(n int) {
			if n < 0 {
				panic("negative")
			}
		})
	})
	wrapped(-1)
	assert.Equal(t, "negative", caught)
}

func TestPopOfEmptyStackPanics(t *testing.T) {
	s := stackctx.New()
	assert.Panics(t, func() { s.Pop() })
}

func TestAsErrorNormalizesRecoveredValue(t *testing.T) {
	require.Nil(t, stackctx.AsError(nil))
	assert.Equal(t, "boom", stackctx.AsError("boom").Error())
	assert.Equal(t, "boom", stackctx.AsError(assertErr{"boom"}).Error())
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
