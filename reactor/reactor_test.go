package reactor_test

import (
	"testing"
	"time"

	"github.com/duskline/netasync/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddCallbackFIFO(t *testing.T) {
	r := reactor.New()
	var order []int
	r.RunSync(func() {
		for i := 0; i < 5; i++ {
			i := i
			r.AddCallback(func() { order = append(order, i) })
		}
		r.AddCallback(func() { r.Stop() })
	})
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestTimersFireInDeadlineOrder(t *testing.T) {
	r := reactor.New()
	var order []string
	r.RunSync(func() {
		now := time.Now()
		r.AddTimeout(now.Add(30*time.Millisecond), func() { order = append(order, "late") })
		r.AddTimeout(now.Add(5*time.Millisecond), func() { order = append(order, "early") })
		r.AddTimeout(now.Add(15*time.Millisecond), func() {
			order = append(order, "mid")
			r.AddTimeoutAfter(20*time.Millisecond, func() { r.Stop() })
		})
	})
	require.Equal(t, []string{"early", "mid", "late"}, order)
}

func TestTimersWithIdenticalDeadlinesFireInInsertionOrder(t *testing.T) {
	r := reactor.New()
	var order []int
	deadline := time.Now().Add(5 * time.Millisecond)
	r.RunSync(func() {
		for i := 0; i < 4; i++ {
			i := i
			r.AddTimeout(deadline, func() { order = append(order, i) })
		}
		r.AddTimeoutAfter(20*time.Millisecond, func() { r.Stop() })
	})
	assert.Equal(t, []int{0, 1, 2, 3}, order)
}

func TestRemoveTimeoutIsIdempotentAndSafeAfterFire(t *testing.T) {
	r := reactor.New()
	fired := false
	r.RunSync(func() {
		h := r.AddTimeoutAfter(5*time.Millisecond, func() { fired = true })
		r.RemoveTimeout(h)
		r.RemoveTimeout(h) // idempotent
		r.AddTimeoutAfter(15*time.Millisecond, func() { r.Stop() })
	})
	assert.False(t, fired)
}

func TestPanicInCallbackDoesNotCrashLoop(t *testing.T) {
	r := reactor.New()
	ran := false
	r.RunSync(func() {
		r.AddCallback(func() { panic("boom") })
		r.AddCallback(func() { ran = true })
		r.AddCallback(func() { r.Stop() })
	})
	assert.True(t, ran)
}

func TestSystemExitStopsLoop(t *testing.T) {
	r := reactor.New()
	after := false
	r.RunSync(func() {
		r.AddCallback(func() { panic(reactor.ErrSystemExit{Code: 1}) })
		r.AddCallback(func() { after = true })
	})
	assert.False(t, after)
}

func TestAddCallbackFromAnotherGoroutineWakesLoop(t *testing.T) {
	r := reactor.New()
	done := make(chan struct{})
	go func() {
		r.Start()
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	r.AddCallback(func() { r.Stop() })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reactor did not stop")
	}
}
