// Package ui defines the progress and log surface the sync engine reports to.
//
// The engine never renders anything itself. A host (the CLI, or a web view
// shell) implements Sink, and the engine calls it synchronously from the
// sync goroutine.
package ui

// Sink receives user-facing updates from a sync pass. Implementations must be
// fast; slow renderers should be wrapped in an AsyncSink.
type Sink interface {
	// Log shows a human-readable line.
	Log(message string)
	// SetProgress shows the current component's download progress, 0 to 100.
	SetProgress(percent int)
	// SetPlayMode signals that an installed, runnable build is present.
	SetPlayMode()
}

type nopSink struct{}

func (nopSink) Log(string)      {}
func (nopSink) SetProgress(int) {}
func (nopSink) SetPlayMode()    {}

// Nop returns a sink that discards everything.
func Nop() Sink {
	return nopSink{}
}
