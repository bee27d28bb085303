package testutil

import "sync"

// RecordingSink captures everything sent to a UI sink.
type RecordingSink struct {
	mu       sync.Mutex
	Logs     []string
	Progress []int
	PlayMode int
}

// Log records a log line.
func (s *RecordingSink) Log(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Logs = append(s.Logs, message)
}

// SetProgress records a progress value.
func (s *RecordingSink) SetProgress(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Progress = append(s.Progress, percent)
}

// SetPlayMode counts play-mode signals.
func (s *RecordingSink) SetPlayMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PlayMode++
}

// Snapshot returns copies of the recorded logs and progress values.
func (s *RecordingSink) Snapshot() (logs []string, progress []int, playMode int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Logs...), append([]int(nil), s.Progress...), s.PlayMode
}
