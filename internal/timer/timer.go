// Package timer implements the exam countdown. The unit of truth is whole
// seconds: every tick of the underlying interval removes one second of exam
// time, so consumers must not assume sub-second precision.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is a countdown notification.
type Event string

const (
	// EventWarning fires once when remaining time reaches five minutes.
	EventWarning Event = "warning"
	// EventCritical fires once when remaining time reaches one minute.
	EventCritical Event = "critical"
	// EventExpired fires once when remaining time reaches zero. Ticking
	// stops afterwards.
	EventExpired Event = "expired"
)

const (
	warningThreshold  = 5 * time.Minute
	criticalThreshold = time.Minute
)

// ExamTimer counts down from a server-provided remaining time and emits
// each threshold event exactly once regardless of tick jitter.
type ExamTimer struct {
	mu        sync.Mutex
	remaining time.Duration
	warned    bool
	critical  bool
	expired   bool

	interval time.Duration
	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
	log      zerolog.Logger
}

// Option configures an ExamTimer.
type Option func(*ExamTimer)

// WithInterval changes the wall-clock tick period. Each tick still removes
// one second of exam time; tests use this to run the countdown fast.
func WithInterval(d time.Duration) Option {
	return func(t *ExamTimer) { t.interval = d }
}

// New creates a timer with the given remaining exam time, truncated to
// whole seconds.
func New(remaining time.Duration, log zerolog.Logger, opts ...Option) *ExamTimer {
	t := &ExamTimer{
		remaining: remaining.Truncate(time.Second),
		interval:  time.Second,
		events:    make(chan Event, 8),
		stop:      make(chan struct{}),
		log:       log.With().Str("component", "exam_timer").Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Events is the threshold event stream. The channel is buffered; the timer
// never blocks on a slow consumer.
func (t *ExamTimer) Events() <-chan Event { return t.events }

// Remaining returns the current remaining time in whole seconds.
func (t *ExamTimer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Resync replaces the remaining time with a fresh server snapshot. The
// once-only guarantee for threshold events still holds across resyncs.
func (t *ExamTimer) Resync(remaining time.Duration) {
	t.mu.Lock()
	t.remaining = remaining.Truncate(time.Second)
	t.mu.Unlock()
	t.checkThresholds()
}

// Start begins ticking. It returns immediately; the countdown runs until
// expiry, Stop, or ctx cancellation.
func (t *ExamTimer) Start(ctx context.Context) {
	go t.run(ctx)
}

// Stop halts the countdown without emitting further events.
func (t *ExamTimer) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *ExamTimer) run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	// A session hydrated with little time left still gets its warnings.
	if t.checkThresholds() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.remaining > 0 {
				t.remaining -= time.Second
			}
			t.mu.Unlock()

			if t.checkThresholds() {
				return
			}
		}
	}
}

// checkThresholds emits any newly crossed events and reports whether the
// timer has expired.
func (t *ExamTimer) checkThresholds() bool {
	t.mu.Lock()
	remaining := t.remaining

	var fire []Event
	if remaining <= 0 && !t.expired {
		t.expired = true
		fire = append(fire, EventExpired)
	}
	if remaining > 0 {
		if remaining <= warningThreshold && !t.warned {
			t.warned = true
			fire = append(fire, EventWarning)
		}
		if remaining <= criticalThreshold && !t.critical {
			t.critical = true
			fire = append(fire, EventCritical)
		}
	}
	expired := t.expired
	t.mu.Unlock()

	for _, ev := range fire {
		t.log.Info().Str("event", string(ev)).Dur("remaining", remaining).Msg("Timer threshold")
		select {
		case t.events <- ev:
		default:
			// Buffer full; the consumer has abandoned the stream.
		}
	}
	return expired
}
