package workmeta

// JobState represents the lifecycle state of a metadata job.
type JobState string

// Job state values persisted in the job store. The "nOTP" value predates this
// service and is kept verbatim for its downstream consumers.
const (
	StatePending    JobState = "pending"
	StateProcessing JobState = "processing"
	StateDone       JobState = "done"
	StateSeriesDone JobState = "series-done"
	StateError      JobState = "error"
	StateRejected   JobState = "nOTP"
)

// StuckMarker is embedded in the failure reason of reclaimed jobs so the
// direct notice can explain what happened. Stuck detection itself uses the
// job's Stuck flag, not this text.
const StuckMarker = "timed out waiting for processing"

// Terminal reports whether a job in this state is eligible for the
// notification passes. Pending and processing are the only non-terminal
// states.
func (s JobState) Terminal() bool {
	switch s {
	case StateDone, StateSeriesDone, StateError, StateRejected:
		return true
	default:
		return false
	}
}

// transitions is the closed transition table. The pending/processing to error
// edge covers stuck-job reclamation as well as ordinary failures.
var transitions = map[JobState][]JobState{
	StatePending:    {StateProcessing, StateError},
	StateProcessing: {StateDone, StateSeriesDone, StateError, StateRejected},
}

// CanTransition reports whether moving from one state to another is legal.
// No transition exists out of a terminal state: terminal jobs are deleted
// after notification, never reset.
func (s JobState) CanTransition(to JobState) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether the value is a known state. Values read back from
// storage pass through here so an unknown column value fails loudly instead
// of being inferred from string content.
func (s JobState) Valid() bool {
	switch s {
	case StatePending, StateProcessing, StateDone, StateSeriesDone, StateError, StateRejected:
		return true
	default:
		return false
	}
}
