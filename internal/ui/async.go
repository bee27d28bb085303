package ui

import "sync"

type eventKind int

const (
	eventLog eventKind = iota
	eventProgress
	eventPlay
)

type event struct {
	kind    eventKind
	message string
	percent int
}

// AsyncSink decouples a sync pass from a slow renderer. The pass calls the
// Sink methods from its own goroutine; Run delivers the events to the inner
// sink on the caller's goroutine.
//
// Intermediate progress values are dropped when the buffer is full. Log
// lines, the play signal and a final 100% are always delivered.
type AsyncSink struct {
	inner  Sink
	events chan event

	mu     sync.Mutex
	closed bool
}

// NewAsyncSink creates an async sink with the given buffer size.
func NewAsyncSink(inner Sink, buffer int) *AsyncSink {
	if buffer < 1 {
		buffer = 1
	}
	return &AsyncSink{inner: inner, events: make(chan event, buffer)}
}

// Log queues a log line, blocking until there is room.
func (a *AsyncSink) Log(message string) {
	a.send(event{kind: eventLog, message: message}, true)
}

// SetProgress queues a progress value. Values below 100 are dropped when the
// renderer is behind.
func (a *AsyncSink) SetProgress(percent int) {
	a.send(event{kind: eventProgress, percent: percent}, percent >= 100)
}

// SetPlayMode queues the play signal.
func (a *AsyncSink) SetPlayMode() {
	a.send(event{kind: eventPlay}, true)
}

func (a *AsyncSink) send(e event, mustDeliver bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	if mustDeliver {
		a.events <- e
		return
	}
	select {
	case a.events <- e:
	default:
	}
}

// Close stops accepting events. Run returns once the queue is drained.
func (a *AsyncSink) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.closed {
		a.closed = true
		close(a.events)
	}
}

// Run delivers queued events to the inner sink until Close is called and
// the queue is empty.
func (a *AsyncSink) Run() {
	for e := range a.events {
		switch e.kind {
		case eventLog:
			a.inner.Log(e.message)
		case eventProgress:
			a.inner.SetProgress(e.percent)
		case eventPlay:
			a.inner.SetPlayMode()
		}
	}
}
