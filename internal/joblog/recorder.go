// Package joblog turns scheduler events into per-job log artifacts: one file
// per job under the log directory, holding the exact ffmpeg invocations,
// throttled progress samples, diagnostic output and the final status.
package joblog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/victordavi-mos/OptimizePlex/internal/model"
	"github.com/victordavi-mos/OptimizePlex/internal/scheduler"
)

const (
	// sampleEvery throttles progress records so long encodes do not bloat
	// their artifact.
	sampleEvery = 5 * time.Second

	maxArtifactStem = 180
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_. -]+`)

// ArtifactPath returns the log file for one job: <dir>/<stem>__<label>.log
// with unsafe characters flattened and the name capped.
func ArtifactPath(dir, titleName, label string) string {
	stem := strings.TrimSuffix(titleName, filepath.Ext(titleName))
	name := unsafeChars.ReplaceAllString(stem+"__"+label, "_")
	if len(name) > maxArtifactStem {
		name = name[:maxArtifactStem]
	}
	return filepath.Join(dir, name+".log")
}

// Recorder is a scheduler event sink that maintains one artifact per job. It
// is safe for concurrent use; a job's file opens on the first started event
// and closes on the terminal one.
type Recorder struct {
	dir string

	mu         sync.Mutex
	open       map[int]*os.File
	lastSample map[int]time.Time
}

func NewRecorder(dir string) *Recorder {
	return &Recorder{
		dir:        dir,
		open:       make(map[int]*os.File),
		lastSample: make(map[int]time.Time),
	}
}

// Handle consumes one scheduler event. Write failures are logged and the
// job's artifact is abandoned; they never disturb the run.
func (r *Recorder) Handle(ev scheduler.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case scheduler.EventStarted:
		f, ok := r.open[ev.Job.ID]
		if !ok {
			path := ArtifactPath(r.dir, ev.Job.TitleName, ev.Job.Label)
			var err error
			f, err = os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
			if err != nil {
				log.WithError(err).WithField("path", path).Warn("cannot open job log")
				return
			}
			r.open[ev.Job.ID] = f
		}
		r.write(ev.Job.ID, f, "# FFmpeg command:\n%s\n\n", ev.Command)
		delete(r.lastSample, ev.Job.ID)

	case scheduler.EventProgress:
		f, ok := r.open[ev.Job.ID]
		if !ok {
			return
		}
		now := ev.Time
		if !ev.Progress.Done {
			if last, seen := r.lastSample[ev.Job.ID]; seen && now.Sub(last) < sampleEvery {
				return
			}
		}
		r.lastSample[ev.Job.ID] = now
		r.write(ev.Job.ID, f, "[PROGRESS] time=%s fps=%.0f speed=%.2fx size=%dB\n",
			formatClock(ev.Progress.OutTime), ev.Progress.FPS, ev.Progress.Speed, ev.Progress.TotalSize)

	case scheduler.EventStderr:
		if f, ok := r.open[ev.Job.ID]; ok {
			r.write(ev.Job.ID, f, "[STDERR] %s\n", ev.Line)
		}

	case scheduler.EventRequeued:
		if f, ok := r.open[ev.Job.ID]; ok {
			r.write(ev.Job.ID, f, "# FALLBACK: gpu attempt failed; retrying with CPU strategy\n\n")
		}

	case scheduler.EventTerminal:
		f, ok := r.open[ev.Job.ID]
		if !ok {
			return
		}
		switch ev.Job.State {
		case model.StateSuccess:
			r.write(ev.Job.ID, f, "# STATUS: SUCCESS (%d bytes)\n", ev.Job.OutputBytes)
		default:
			detail := ev.Job.Reason
			if ev.Job.LastError != "" {
				detail += "; " + ev.Job.LastError
			}
			r.write(ev.Job.ID, f, "# STATUS: FAILED (%s)\n", detail)
		}
		r.closeLocked(ev.Job.ID)
	}
}

// Close releases any artifacts still open, e.g. after an interrupted run.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.open {
		r.closeLocked(id)
	}
}

func (r *Recorder) write(jobID int, f *os.File, format string, args ...any) {
	if _, err := fmt.Fprintf(f, format, args...); err != nil {
		log.WithError(err).WithField("path", f.Name()).Warn("cannot write job log")
		r.closeLocked(jobID)
	}
}

func (r *Recorder) closeLocked(jobID int) {
	if f, ok := r.open[jobID]; ok {
		_ = f.Close()
		delete(r.open, jobID)
		delete(r.lastSample, jobID)
	}
}

func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total/60%60, total%60)
}
