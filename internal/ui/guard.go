package ui

import (
	"html"
	"sync"
)

// NoEscape passes messages through unchanged, for sinks that render to a
// terminal rather than a web view.
func NoEscape(s string) string { return s }

// Guard validates everything sent to the wrapped sink: percentages are
// clamped to [0,100], a repeat of the last percentage is dropped, and log
// messages are escaped for the embedding surface.
type Guard struct {
	mu     sync.Mutex
	inner  Sink
	escape func(string) string
	last   int
}

// NewGuard wraps inner. A nil escape selects HTML escaping, which is what a
// web view host needs.
func NewGuard(inner Sink, escape func(string) string) *Guard {
	if inner == nil {
		inner = Nop()
	}
	if escape == nil {
		escape = html.EscapeString
	}
	return &Guard{inner: inner, escape: escape, last: -1}
}

// Guarded returns s unchanged when it is already a Guard, and otherwise wraps
// it with HTML escaping.
func Guarded(s Sink) *Guard {
	if g, ok := s.(*Guard); ok {
		return g
	}
	return NewGuard(s, nil)
}

// Log forwards an escaped message.
func (g *Guard) Log(message string) {
	g.inner.Log(g.escape(message))
}

// SetProgress forwards a clamped percentage unless it repeats the last one.
func (g *Guard) SetProgress(percent int) {
	percent = Clamp(percent)

	g.mu.Lock()
	if percent == g.last {
		g.mu.Unlock()
		return
	}
	g.last = percent
	g.mu.Unlock()

	g.inner.SetProgress(percent)
}

// SetPlayMode forwards the play signal.
func (g *Guard) SetPlayMode() {
	g.inner.SetPlayMode()
}

// Clamp limits percent to [0,100].
func Clamp(percent int) int {
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	default:
		return percent
	}
}

// Percent converts a byte count into a clamped percentage. It returns false
// when the total is unknown.
func Percent(done, total int64) (int, bool) {
	if total <= 0 {
		return 0, false
	}
	if done >= total {
		return 100, true
	}
	return Clamp(int(done * 100 / total)), true
}
