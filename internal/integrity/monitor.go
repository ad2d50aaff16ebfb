// Package integrity watches ambient signals for behavior inconsistent with
// a proctored single-window attempt. Violation counting is monotonic and
// informational; only the fullscreen grace-period expiry forces submission.
package integrity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ViolationKind classifies a detected violation.
type ViolationKind string

const (
	ViolationFullscreenExit ViolationKind = "FULLSCREEN_EXIT"
	ViolationTabHidden      ViolationKind = "TAB_HIDDEN"
	ViolationForbiddenKey   ViolationKind = "FORBIDDEN_KEY"
	ViolationContextMenu    ViolationKind = "CONTEXT_MENU"
	ViolationNavigation     ViolationKind = "NAVIGATION"
)

// Violation is one counted incident, carrying the running total at the
// time it was recorded.
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Detail string        `json:"detail,omitempty"`
	Count  int           `json:"count"`
	At     time.Time     `json:"at"`
}

// DefaultGracePeriod is how long fullscreen may stay exited before the
// session is force-submitted.
const DefaultGracePeriod = 10 * time.Second

// forbiddenKeys are the intercepted combinations: refresh, copy/paste,
// app switching and print-screen.
var forbiddenKeys = map[string]bool{
	"f5":          true,
	"ctrl+r":      true,
	"ctrl+c":      true,
	"ctrl+v":      true,
	"ctrl+x":      true,
	"ctrl+p":      true,
	"alt+tab":     true,
	"meta":        true,
	"printscreen": true,
}

// Monitor consumes a Source while the session is Active. It is inert until
// Start and releases its subscription on Stop.
type Monitor struct {
	source      Source
	grace       time.Duration
	forceSubmit func(reason string)
	log         zerolog.Logger

	mu          sync.Mutex
	total       int
	counts      map[ViolationKind]int
	fullscreen  bool
	graceTimer  *time.Timer
	unsubscribe func()
	started     bool

	violations chan Violation
	done       chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithGracePeriod overrides the fullscreen grace period.
func WithGracePeriod(d time.Duration) Option {
	return func(m *Monitor) { m.grace = d }
}

// New creates a Monitor. forceSubmit is invoked at most once per grace
// expiry, from a dedicated goroutine.
func New(source Source, forceSubmit func(reason string), log zerolog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		source:      source,
		grace:       DefaultGracePeriod,
		forceSubmit: forceSubmit,
		log:         log.With().Str("component", "integrity_monitor").Logger(),
		counts:      make(map[ViolationKind]int),
		violations:  make(chan Violation, 32),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Violations is the stream of recorded incidents, consumed by the reporter.
// The channel is buffered and never blocks the monitor.
func (m *Monitor) Violations() <-chan Violation { return m.violations }

// Count returns the monotonic total violation count.
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Counts returns a copy of the per-kind counters.
func (m *Monitor) Counts() map[ViolationKind]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[ViolationKind]int, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}

// FullscreenActive reports the last known fullscreen state.
func (m *Monitor) FullscreenActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fullscreen
}

// Start subscribes to the source and begins processing signals.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	signals, cancel := m.source.Subscribe()
	m.unsubscribe = cancel
	m.mu.Unlock()

	go m.run(ctx, signals)
}

// Stop releases the subscription and cancels any pending grace timer.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	m.started = false
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.cancelGraceLocked()
	close(m.done)
}

func (m *Monitor) run(ctx context.Context, signals <-chan Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			m.handle(sig)
		}
	}
}

func (m *Monitor) handle(sig Signal) {
	switch sig.Kind {
	case SignalFullscreenEnter:
		m.mu.Lock()
		m.fullscreen = true
		m.cancelGraceLocked()
		m.mu.Unlock()
		m.log.Debug().Msg("Fullscreen re-entered, grace timer cancelled")

	case SignalFullscreenExit:
		m.record(ViolationFullscreenExit, "")
		m.mu.Lock()
		m.fullscreen = false
		m.cancelGraceLocked()
		m.graceTimer = time.AfterFunc(m.grace, m.graceExpired)
		m.mu.Unlock()

	case SignalTabHidden:
		// Informational only; no submission is triggered.
		m.record(ViolationTabHidden, "")

	case SignalTabVisible:
		// Not a violation.

	case SignalKeyDown:
		if forbiddenKeys[sig.Key] {
			if sig.Prevent != nil {
				sig.Prevent()
			}
			m.record(ViolationForbiddenKey, sig.Key)
		}

	case SignalContextMenu:
		if sig.Prevent != nil {
			sig.Prevent()
		}
		m.record(ViolationContextMenu, "")

	case SignalNavigationBack:
		// The host re-pushes the history entry and shows the confirmation
		// dialog; the monitor just records and suppresses the navigation.
		if sig.Prevent != nil {
			sig.Prevent()
		}
		m.record(ViolationNavigation, "back")

	case SignalBeforeUnload:
		// Handled by the host's confirm-before-unload prompt while Active.
		if sig.Prevent != nil {
			sig.Prevent()
		}
	}
}

func (m *Monitor) graceExpired() {
	m.mu.Lock()
	stillOut := m.started && !m.fullscreen
	m.mu.Unlock()

	if !stillOut {
		return
	}
	m.log.Warn().Dur("grace", m.grace).Msg("Fullscreen grace period elapsed, forcing submission")
	m.forceSubmit("fullscreen grace period elapsed")
}

func (m *Monitor) cancelGraceLocked() {
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
}

func (m *Monitor) record(kind ViolationKind, detail string) {
	m.mu.Lock()
	m.total++
	m.counts[kind]++
	v := Violation{Kind: kind, Detail: detail, Count: m.total, At: time.Now()}
	m.mu.Unlock()

	m.log.Info().
		Str("kind", string(kind)).
		Str("detail", detail).
		Int("count", v.Count).
		Msg("Integrity violation")

	select {
	case m.violations <- v:
	default:
		// Reporter backlogged; counting is still authoritative.
	}
}
