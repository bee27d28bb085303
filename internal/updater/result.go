package updater

import (
	"errors"
	"time"

	"github.com/pflauncher/launcher/internal/payload"
)

// State is the per-component position in the sync state machine.
type State int

const (
	StateIdle State = iota
	StateChecking
	StateUpToDate
	StateDownloading
	StateVerifying
	StateInstalling
	StateRecorded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateUpToDate:
		return "up_to_date"
	case StateDownloading:
		return "downloading"
	case StateVerifying:
		return "verifying"
	case StateInstalling:
		return "installing"
	case StateRecorded:
		return "recorded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// OutcomeKind is the final result for one component in a pass.
type OutcomeKind string

const (
	Updated        OutcomeKind = "updated"
	UpToDate       OutcomeKind = "up_to_date"
	Failed         OutcomeKind = "failed"
	SkippedOffline OutcomeKind = "skipped_offline"
)

// Status summarizes a whole pass.
type Status string

const (
	// StatusNothingToDo means every component was already current.
	StatusNothingToDo Status = "nothing_to_do"
	// StatusUpdated means at least one component was updated and none failed.
	StatusUpdated Status = "updated"
	// StatusPartialFailure means at least one component failed.
	StatusPartialFailure Status = "partial_failure"
	// StatusOffline means the manifest was unreachable and the existing
	// installation was left alone.
	StatusOffline Status = "offline"
	// StatusFailed means the pass could not run at all.
	StatusFailed Status = "failed"
)

// ErrNotInManifest is the failure reason for a tracked component the
// manifest does not publish.
var ErrNotInManifest = errors.New("component not in manifest")

// Outcome reports what happened to one component.
type Outcome struct {
	Component string
	Kind      OutcomeKind
	// State is the last state reached. For failures it is the step that
	// failed.
	State           State
	Version         string
	PreviousVersion string
	// Verified is false when the payload was installed under the
	// unverified policy.
	Verified bool
	Bytes    int64
	Err      error
}

// ErrorKind classifies Err, or returns "" for successful outcomes.
func (o Outcome) ErrorKind() string {
	if errors.Is(o.Err, ErrNotInManifest) {
		return "not_in_manifest"
	}
	return payload.ErrorKind(o.Err)
}

// Result is the aggregate outcome of a pass.
type Result struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Status   Status
	Outcomes []Outcome
	// Playable is true when the game component is installed and an
	// executable was found in it.
	Playable   bool
	Executable string
	// Err is the pass-level failure for StatusFailed.
	Err error
}

// Outcome returns the outcome for component.
func (r *Result) Outcome(component string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Component == component {
			return o, true
		}
	}
	return Outcome{}, false
}

// Count returns how many components ended with kind.
func (r *Result) Count(kind OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

func aggregate(outcomes []Outcome) Status {
	var updated, failed int
	for _, o := range outcomes {
		switch o.Kind {
		case Updated:
			updated++
		case Failed:
			failed++
		case SkippedOffline:
			return StatusOffline
		}
	}
	switch {
	case failed > 0:
		return StatusPartialFailure
	case updated > 0:
		return StatusUpdated
	default:
		return StatusNothingToDo
	}
}
