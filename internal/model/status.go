package model

import "fmt"

const (
	StatePending = "pending"
	StateBlocked = "blocked"
	StateReady   = "ready"
	StateRunning = "running"
	StateSuccess = "success"
	StateFailed  = "failed"
	StateSkipped = "skipped"
)

// Running -> ready is the fallback requeue; failed is reachable from every
// non-terminal state so an interrupted run can close its books.
var allowedTransitions = map[string]map[string]bool{
	"": {
		StatePending: true,
	},
	StatePending: {
		StateBlocked: true,
		StateReady:   true,
		StateSkipped: true,
		StateFailed:  true,
	},
	StateBlocked: {
		StateReady:  true,
		StateFailed: true,
	},
	StateReady: {
		StateRunning: true,
		StateFailed:  true,
	},
	StateRunning: {
		StateSuccess: true,
		StateFailed:  true,
		StateReady:   true,
	},
	StateSuccess: {},
	StateFailed:  {},
	StateSkipped: {},
}

func IsKnownState(state string) bool {
	_, ok := allowedTransitions[state]
	return ok
}

func IsTerminalState(state string) bool {
	switch state {
	case StateSuccess, StateFailed, StateSkipped:
		return true
	}
	return false
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// TransitionJob moves a job to toState or reports why it cannot. Reason is
// recorded verbatim; callers use it for skip causes and failure summaries.
func TransitionJob(job *Job, toState string, reason string) error {
	from := job.State
	if !CanTransition(from, toState) {
		return fmt.Errorf("invalid job state transition: %q -> %q (job=%d title=%q rendition=%s)", from, toState, job.ID, job.TitleName, job.Rendition)
	}
	job.State = toState
	job.Reason = reason
	return nil
}
