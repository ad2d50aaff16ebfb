package integrity

import "time"

// SignalKind enumerates the browser-level signals the monitor consumes.
type SignalKind string

const (
	SignalFullscreenEnter SignalKind = "fullscreen_enter"
	SignalFullscreenExit  SignalKind = "fullscreen_exit"
	SignalTabHidden       SignalKind = "tab_hidden"
	SignalTabVisible      SignalKind = "tab_visible"
	SignalKeyDown         SignalKind = "key_down"
	SignalContextMenu     SignalKind = "context_menu"
	SignalNavigationBack  SignalKind = "navigation_back"
	SignalBeforeUnload    SignalKind = "before_unload"
)

// Signal is one ambient event delivered by a Source. Prevent, when non-nil,
// suppresses the default action at the source (the host environment owns
// the actual preventDefault/history-repush mechanics).
type Signal struct {
	Kind    SignalKind
	Key     string // key combination for SignalKeyDown, e.g. "ctrl+c"
	At      time.Time
	Prevent func()
}

// Source is the injected capability that delivers ambient signals. The
// monitor subscribes on session activation and unsubscribes when the
// session leaves the Active state, so no module-level listeners exist and
// the monitor is constructible without a real host environment.
type Source interface {
	// Subscribe returns the signal stream and a cancel function that
	// releases the subscription.
	Subscribe() (<-chan Signal, func())
}
