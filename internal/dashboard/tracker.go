// Package dashboard presents a live run: a tracker fed by scheduler events,
// a lipgloss renderer, a bubbletea program for interactive terminals and a
// plain line printer for everything else.
package dashboard

import (
	"fmt"
	"sync"
	"time"

	"github.com/victordavi-mos/OptimizePlex/internal/model"
	"github.com/victordavi-mos/OptimizePlex/internal/scheduler"
)

const maxEventLines = 8

// WorkerView is one worker panel's state. Idle panels keep only the name.
type WorkerView struct {
	Name       string
	Idle       bool
	JobID      int
	Title      string
	Target     string
	Strategy   string
	SourceHint string
	StartedAt  time.Time
	Duration   float64
	OutTime    time.Duration
	FPS        float64
	Speed      float64
	OutBytes   int64
	LastLine   string
}

// Counts aggregates job states for the header. Pending is derived, never
// tracked.
type Counts struct {
	Total     int
	Running   int
	Succeeded int
	Failed    int
	Skipped   int
	Pending   int
}

// Snapshot is an immutable copy of the tracker for one render frame. Events
// are newest first.
type Snapshot struct {
	Workers           []WorkerView
	Counts            Counts
	Fallbacks         int
	TotalKnownSeconds float64
	DoneKnownSeconds  float64
	StartedAt         time.Time
	Events            []string
}

// Tracker folds scheduler events into renderable state. Safe for concurrent
// use; Handle is the scheduler-facing sink, Snapshot the renderer-facing
// read.
type Tracker struct {
	mu         sync.Mutex
	order      []string
	workers    map[string]*WorkerView
	counts     Counts
	fallbacks  int
	totalKnown float64
	doneKnown  float64
	durations  map[int]float64
	started    time.Time
	events     []string
}

// NewTracker seeds the panel order and the plan-time counters (total and
// already-skipped jobs).
func NewTracker(workerNames []string, initial Counts) *Tracker {
	t := &Tracker{
		order:     append([]string(nil), workerNames...),
		workers:   make(map[string]*WorkerView, len(workerNames)),
		counts:    initial,
		durations: make(map[int]float64),
		started:   time.Now(),
	}
	for _, name := range workerNames {
		t.workers[name] = &WorkerView{Name: name, Idle: true}
	}
	return t
}

// Handle consumes one scheduler event.
func (t *Tracker) Handle(ev scheduler.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Type {
	case scheduler.EventClaimed:
		w := t.workers[ev.Worker]
		if w == nil {
			return
		}
		*w = WorkerView{
			Name:       w.Name,
			JobID:      ev.Job.ID,
			Title:      ev.Job.TitleName,
			Target:     ev.Job.Label,
			Strategy:   ev.Job.Strategy,
			SourceHint: sourceHint(ev.Job),
			StartedAt:  ev.Time,
		}
		t.counts.Running++
		t.pushEvent(fmt.Sprintf("%s start %s -> %s [%s src=%s]",
			ev.Worker, ev.Job.TitleName, ev.Job.Label, ev.Job.Strategy, w.SourceHint))

	case scheduler.EventStarted:
		if _, seen := t.durations[ev.Job.ID]; !seen && ev.Duration > 0 {
			t.durations[ev.Job.ID] = ev.Duration
			t.totalKnown += ev.Duration
		}
		if w := t.workerForJobLocked(ev.Job.ID); w != nil {
			w.Duration = t.durations[ev.Job.ID]
		}

	case scheduler.EventProgress:
		if w := t.workerForJobLocked(ev.Job.ID); w != nil {
			w.OutTime = ev.Progress.OutTime
			w.FPS = ev.Progress.FPS
			w.Speed = ev.Progress.Speed
			w.OutBytes = ev.Progress.TotalSize
		}

	case scheduler.EventStderr:
		if w := t.workerForJobLocked(ev.Job.ID); w != nil {
			w.LastLine = ev.Line
		}

	case scheduler.EventRequeued:
		t.fallbacks++
		t.releaseJobLocked(ev.Job.ID)
		t.pushEvent(fmt.Sprintf("%s %s gpu attempt failed, queued for CPU retry", ev.Job.TitleName, ev.Job.Label))

	case scheduler.EventTerminal:
		t.releaseJobLocked(ev.Job.ID)
		switch ev.Job.State {
		case model.StateSuccess:
			t.counts.Succeeded++
			if d, ok := t.durations[ev.Job.ID]; ok {
				t.doneKnown += d
			}
			t.pushEvent(fmt.Sprintf("done %s -> %s (%s)", ev.Job.TitleName, ev.Job.Label, formatBytesIEC(ev.Job.OutputBytes)))
		case model.StateFailed:
			t.counts.Failed++
			if d, ok := t.durations[ev.Job.ID]; ok {
				t.totalKnown -= d
				delete(t.durations, ev.Job.ID)
			}
			t.pushEvent(fmt.Sprintf("FAIL %s -> %s: %s", ev.Job.TitleName, ev.Job.Label, ev.Job.Reason))
		case model.StateSkipped:
			t.counts.Skipped++
		}
	}
}

// Snapshot copies the tracker state for one frame.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Counts:            t.counts,
		Fallbacks:         t.fallbacks,
		TotalKnownSeconds: t.totalKnown,
		DoneKnownSeconds:  t.doneKnown,
		StartedAt:         t.started,
		Workers:           make([]WorkerView, 0, len(t.order)),
		Events:            append([]string(nil), t.events...),
	}
	for _, name := range t.order {
		if w := t.workers[name]; w != nil {
			s.Workers = append(s.Workers, *w)
		}
	}
	s.Counts.Pending = s.Counts.Total - s.Counts.Running - s.Counts.Succeeded - s.Counts.Failed - s.Counts.Skipped
	if s.Counts.Pending < 0 {
		s.Counts.Pending = 0
	}
	return s
}

// workerForJobLocked finds the busy panel running a job, by job ID. Events
// can outlive a panel assignment, so name matching is not enough.
func (t *Tracker) workerForJobLocked(jobID int) *WorkerView {
	for _, name := range t.order {
		w := t.workers[name]
		if w != nil && !w.Idle && w.JobID == jobID {
			return w
		}
	}
	return nil
}

func (t *Tracker) releaseJobLocked(jobID int) {
	if w := t.workerForJobLocked(jobID); w != nil {
		*w = WorkerView{Name: w.Name, Idle: true}
		t.counts.Running--
	}
}

func (t *Tracker) pushEvent(line string) {
	t.events = append([]string{line}, t.events...)
	if len(t.events) > maxEventLines {
		t.events = t.events[:maxEventLines]
	}
}

func sourceHint(job model.Job) string {
	if job.Source != "" && job.Source != job.TitlePath {
		return "1080p"
	}
	return "original"
}
