package dashboard

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/victordavi-mos/OptimizePlex/internal/model"
	"github.com/victordavi-mos/OptimizePlex/internal/scheduler"
)

// Printer is the no-TTY presentation: one line per lifecycle event plus a
// throttled status line per running job. Stderr noise stays in the job logs.
type Printer struct {
	w     io.Writer
	every time.Duration

	mu   sync.Mutex
	last map[int]time.Time
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, every: 10 * time.Second, last: make(map[int]time.Time)}
}

// Handle consumes one scheduler event.
func (p *Printer) Handle(ev scheduler.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case scheduler.EventClaimed:
		fmt.Fprintf(p.w, "[%s] start %s -> %s (%s, src=%s)\n",
			ev.Worker, ev.Job.TitleName, ev.Job.Label, ev.Job.Strategy, sourceHint(ev.Job))

	case scheduler.EventProgress:
		if last, seen := p.last[ev.Job.ID]; seen && ev.Time.Sub(last) < p.every {
			return
		}
		p.last[ev.Job.ID] = ev.Time
		fmt.Fprintf(p.w, "[%s] %s %s (%.0f fps, %.2fx, %s)\n",
			ev.Worker, ev.Job.TitleName, formatClock(ev.Progress.OutTime),
			ev.Progress.FPS, ev.Progress.Speed, formatBytesIEC(ev.Progress.TotalSize))

	case scheduler.EventRequeued:
		fmt.Fprintf(p.w, "[%s] %s -> %s: gpu attempt failed, queued for CPU retry\n",
			ev.Worker, ev.Job.TitleName, ev.Job.Label)
		delete(p.last, ev.Job.ID)

	case scheduler.EventTerminal:
		prefix := ""
		if ev.Worker != "" {
			prefix = "[" + ev.Worker + "] "
		}
		switch ev.Job.State {
		case model.StateSuccess:
			fmt.Fprintf(p.w, "%sdone %s -> %s (%s)\n",
				prefix, ev.Job.TitleName, ev.Job.Label, formatBytesIEC(ev.Job.OutputBytes))
		case model.StateFailed:
			detail := ev.Job.Reason
			if ev.Job.LastError != "" {
				detail += "; " + ev.Job.LastError
			}
			fmt.Fprintf(p.w, "%sFAILED %s -> %s: %s\n", prefix, ev.Job.TitleName, ev.Job.Label, detail)
		}
		delete(p.last, ev.Job.ID)
	}
}
