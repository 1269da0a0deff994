package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	cpuStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).MarginTop(1)
)

var panelBar = progress.New(progress.WithDefaultGradient(), progress.WithWidth(24))

const panelsPerRow = 3

// RenderContext carries the frame inputs that live outside the tracker.
type RenderContext struct {
	Root     string
	Width    int
	Refresh  time.Duration
	Host     HostSample
	Stopping bool
}

// Render draws one full dashboard frame: header, worker panel grid, recent
// events, footer.
func Render(s Snapshot, rc RenderContext) string {
	width := rc.Width
	if width <= 0 {
		width = 120
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("OptimizePlex"))
	if rc.Root != "" {
		b.WriteString(mutedStyle.Render("  " + rc.Root))
	}
	b.WriteString("\n")

	counts := fmt.Sprintf("done %d/%d | running %d | pending %d | failed %d | skipped %d",
		s.Counts.Succeeded, s.Counts.Total, s.Counts.Running, s.Counts.Pending, s.Counts.Failed, s.Counts.Skipped)
	if s.Fallbacks > 0 {
		counts += fmt.Sprintf(" | cpu fallbacks %d", s.Fallbacks)
	}
	b.WriteString(counts + "\n")

	eta := EstimateETA(s)
	if eta == "" {
		eta = "calculating"
	}
	b.WriteString(mutedStyle.Render(fmt.Sprintf("host cpu %.0f%% | mem %.0f%% | load %.1f | elapsed %s | eta ~ %s",
		rc.Host.CPUPercent, rc.Host.MemPercent, rc.Host.Load1,
		time.Since(s.StartedAt).Round(time.Second), eta)) + "\n")

	if rc.Stopping {
		b.WriteString(errorStyle.Render("stopping: waiting for running encodes to wind down") + "\n")
	}

	colWidth := (width - panelsPerRow*2) / panelsPerRow
	if colWidth < 30 {
		colWidth = 30
	}
	if colWidth > 48 {
		colWidth = 48
	}
	for row := 0; row < len(s.Workers); row += panelsPerRow {
		end := row + panelsPerRow
		if end > len(s.Workers) {
			end = len(s.Workers)
		}
		panels := make([]string, 0, panelsPerRow)
		for _, w := range s.Workers[row:end] {
			panels = append(panels, renderWorker(w, colWidth))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panels...) + "\n")
	}

	if len(s.Events) > 0 {
		b.WriteString(mutedStyle.Render("recent") + "\n")
		for _, line := range s.Events {
			if strings.HasPrefix(line, "FAIL") {
				b.WriteString("  " + errorStyle.Render(line) + "\n")
			} else {
				b.WriteString("  " + mutedStyle.Render(line) + "\n")
			}
		}
	}

	b.WriteString(footerStyle.Render(fmt.Sprintf("q quit | refresh %.1fs", rc.Refresh.Seconds())))
	return b.String()
}

func renderWorker(w WorkerView, width int) string {
	inner := width - 4
	if inner < 20 {
		inner = 20
	}

	var lines []string
	if w.Idle {
		lines = append(lines, titleStyle.Render(w.Name)+mutedStyle.Render("  idle"))
		lines = append(lines, mutedStyle.Render("waiting for work"))
	} else {
		strat := okStyle.Render(w.Strategy)
		if w.Strategy == "CPU" {
			strat = cpuStyle.Render(w.Strategy)
		}
		lines = append(lines, titleStyle.Render(w.Name)+"  "+strat)
		lines = append(lines, truncate(w.Title, inner))
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("%s  src=%s", w.Target, w.SourceHint)))
		if w.Duration > 0 {
			pct := w.OutTime.Seconds() / w.Duration
			if pct < 0 {
				pct = 0
			}
			if pct > 1 {
				pct = 1
			}
			lines = append(lines, panelBar.ViewAs(pct))
			lines = append(lines, fmt.Sprintf("%s / %s", formatClock(w.OutTime), formatClock(time.Duration(w.Duration*float64(time.Second)))))
		} else {
			lines = append(lines, mutedStyle.Render("preparing"))
		}
		stats := fmt.Sprintf("%.0f fps  %.2fx  %s", w.FPS, w.Speed, formatBytesIEC(w.OutBytes))
		lines = append(lines, stats)
		if w.LastLine != "" {
			lines = append(lines, mutedStyle.Render(truncate(w.LastLine, inner)))
		}
	}
	return panelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total/60%60, total%60)
}
