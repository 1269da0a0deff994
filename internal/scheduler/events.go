package scheduler

import (
	"time"

	"github.com/victordavi-mos/OptimizePlex/internal/ffmpeg"
	"github.com/victordavi-mos/OptimizePlex/internal/model"
)

// EventType enumerates the scheduler's lifecycle notifications.
type EventType string

const (
	// EventClaimed fires when a worker takes a ready job; the strategy is
	// stamped by then.
	EventClaimed EventType = "claimed"
	// EventStarted fires once the source is probed and ffmpeg is about to
	// run; it carries the full invocation.
	EventStarted EventType = "started"
	// EventProgress relays one parsed ffmpeg progress record.
	EventProgress EventType = "progress"
	// EventStderr relays one ffmpeg diagnostic line.
	EventStderr EventType = "stderr"
	// EventRequeued fires when a failed GPU attempt goes back to the queue
	// pinned to CPU.
	EventRequeued EventType = "requeued"
	// EventTerminal fires when a job reaches success or failed during the
	// run. Jobs skipped at plan time never produce events; they are visible
	// only in the initial manifest.
	EventTerminal EventType = "terminal"
)

// Event is one scheduler notification. Job is a snapshot taken at emit time,
// safe for sinks to retain.
type Event struct {
	Type   EventType
	Time   time.Time
	Worker string
	Job    model.Job

	// Command and Duration are set on EventStarted: the rendered ffmpeg
	// invocation and the probed source duration in seconds (0 when the
	// container does not report one).
	Command  string
	Duration float64

	// Progress is set on EventProgress.
	Progress ffmpeg.ProgressEvent

	// Line is set on EventStderr.
	Line string
}

// EventSink receives scheduler events. It is called from the scheduler and
// from worker goroutines; implementations must be cheap, must not block, and
// must not call back into the scheduler.
type EventSink func(Event)
