package authsdk

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultIdleThreshold = 120 * time.Second
	DefaultWarningLead   = 30 * time.Second
)

// IdleTimer fires a warning shortly before the idle threshold and a timeout
// at the threshold. Start and Reset arm a new window; callbacks from a
// window that was reset or cancelled are dropped.
type IdleTimer struct {
	clock     clockwork.Clock
	threshold time.Duration
	lead      time.Duration
	onWarning func(remaining time.Duration)
	onTimeout func()

	mu       sync.Mutex
	gen      uint64
	armed    bool
	deadline time.Time
	warn     clockwork.Timer
	timeout  clockwork.Timer
}

// NewIdleTimer returns a stopped timer. A lead that is not shorter than the
// threshold disables the warning.
func NewIdleTimer(
	clock clockwork.Clock,
	threshold, lead time.Duration,
	onWarning func(remaining time.Duration),
	onTimeout func(),
) *IdleTimer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if threshold <= 0 {
		threshold = DefaultIdleThreshold
	}
	return &IdleTimer{
		clock:     clock,
		threshold: threshold,
		lead:      lead,
		onWarning: onWarning,
		onTimeout: onTimeout,
	}
}

func (t *IdleTimer) Start() { t.Reset() }

// Reset cancels the current window and arms a new one.
func (t *IdleTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.gen++
	gen := t.gen
	t.armed = true
	t.deadline = t.clock.Now().Add(t.threshold)

	if t.lead > 0 && t.lead < t.threshold {
		t.warn = t.clock.AfterFunc(t.threshold-t.lead, func() { t.fire(gen, false) })
	}
	t.timeout = t.clock.AfterFunc(t.threshold, func() { t.fire(gen, true) })
}

// Cancel disarms the timer. Pending callbacks will not run.
func (t *IdleTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.gen++
	t.armed = false
}

// Remaining is the time left in the current window, zero when disarmed.
func (t *IdleTimer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed {
		return 0
	}
	return max(t.deadline.Sub(t.clock.Now()), 0)
}

func (t *IdleTimer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

func (t *IdleTimer) stopLocked() {
	if t.warn != nil {
		t.warn.Stop()
		t.warn = nil
	}
	if t.timeout != nil {
		t.timeout.Stop()
		t.timeout = nil
	}
}

func (t *IdleTimer) fire(gen uint64, timeout bool) {
	t.mu.Lock()
	if gen != t.gen || !t.armed {
		t.mu.Unlock()
		return
	}
	remaining := max(t.deadline.Sub(t.clock.Now()), 0)
	if timeout {
		t.armed = false
	}
	onWarning, onTimeout := t.onWarning, t.onTimeout
	t.mu.Unlock()

	if timeout {
		if onTimeout != nil {
			onTimeout()
		}
		return
	}
	if onWarning != nil {
		onWarning(remaining)
	}
}
