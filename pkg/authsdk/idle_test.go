package authsdk

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const waitFor = time.Second

type idleRecorder struct {
	warnings chan time.Duration
	timeouts chan struct{}
}

func newIdleRecorder() *idleRecorder {
	return &idleRecorder{
		warnings: make(chan time.Duration, 8),
		timeouts: make(chan struct{}, 8),
	}
}

func (r *idleRecorder) timer(clock clockwork.Clock) *IdleTimer {
	return NewIdleTimer(clock, 120*time.Second, 30*time.Second,
		func(d time.Duration) { r.warnings <- d },
		func() { r.timeouts <- struct{}{} },
	)
}

func (r *idleRecorder) expectWarning(t *testing.T, want time.Duration) {
	t.Helper()
	select {
	case got := <-r.warnings:
		require.Equal(t, want, got)
	case <-time.After(waitFor):
		t.Fatal("warning did not fire")
	}
}

func (r *idleRecorder) expectTimeout(t *testing.T) {
	t.Helper()
	select {
	case <-r.timeouts:
	case <-time.After(waitFor):
		t.Fatal("timeout did not fire")
	}
}

func (r *idleRecorder) expectQuiet(t *testing.T) {
	t.Helper()
	select {
	case d := <-r.warnings:
		t.Fatalf("unexpected warning with %s left", d)
	case <-r.timeouts:
		t.Fatal("unexpected timeout")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestIdleTimer_WarningThenTimeout(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	rec := newIdleRecorder()
	it := rec.timer(clock)

	it.Start()
	require.True(t, it.Armed())
	require.Equal(t, 120*time.Second, it.Remaining())

	clock.Advance(89 * time.Second)
	rec.expectQuiet(t)

	clock.Advance(time.Second)
	rec.expectWarning(t, 30*time.Second)

	clock.Advance(30 * time.Second)
	rec.expectTimeout(t)
	require.False(t, it.Armed())
	require.Zero(t, it.Remaining())

	// Fires once per window.
	clock.Advance(5 * time.Minute)
	rec.expectQuiet(t)
}

func TestIdleTimer_ResetRearms(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	rec := newIdleRecorder()
	it := rec.timer(clock)

	it.Start()
	clock.Advance(80 * time.Second)
	require.Equal(t, 40*time.Second, it.Remaining())

	it.Reset()
	require.Equal(t, 120*time.Second, it.Remaining())

	clock.Advance(80 * time.Second)
	rec.expectQuiet(t)

	clock.Advance(10 * time.Second)
	rec.expectWarning(t, 30*time.Second)

	clock.Advance(30 * time.Second)
	rec.expectTimeout(t)
}

func TestIdleTimer_CancelDropsPendingCallbacks(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	rec := newIdleRecorder()
	it := rec.timer(clock)

	it.Start()
	clock.Advance(60 * time.Second)
	it.Cancel()
	require.False(t, it.Armed())
	require.Zero(t, it.Remaining())

	clock.Advance(10 * time.Minute)
	rec.expectQuiet(t)
}

func TestIdleTimer_LeadNotShorterThanThresholdSkipsWarning(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	rec := newIdleRecorder()
	it := NewIdleTimer(clock, 10*time.Second, 10*time.Second,
		func(d time.Duration) { rec.warnings <- d },
		func() { rec.timeouts <- struct{}{} },
	)

	it.Start()
	clock.Advance(10 * time.Second)
	rec.expectTimeout(t)
	require.Empty(t, rec.warnings)
}
