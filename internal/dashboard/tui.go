package dashboard

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type tickMsg time.Time

type runDoneMsg struct{}

// TUIOptions wires the live dashboard to a running scheduler. Cancel stops
// the run on q/ctrl+c; Done must close once the scheduler returns, which is
// what quits the program.
type TUIOptions struct {
	Tracker *Tracker
	Root    string
	Refresh time.Duration
	Cancel  context.CancelFunc
	Done    <-chan struct{}
}

// Model is the bubbletea model for the live run view.
type Model struct {
	tracker  *Tracker
	root     string
	refresh  time.Duration
	cancel   context.CancelFunc
	done     <-chan struct{}
	width    int
	host     HostSample
	stopping bool
}

func NewModel(opts TUIOptions) Model {
	refresh := opts.Refresh
	if refresh <= 0 {
		refresh = time.Second
	}
	return Model{
		tracker: opts.Tracker,
		root:    opts.Root,
		refresh: refresh,
		cancel:  opts.Cancel,
		done:    opts.Done,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(m.refresh), waitDoneCmd(m.done))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tickMsg:
		m.host = SampleHost(context.Background())
		return m, tickCmd(m.refresh)
	case runDoneMsg:
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.stopping {
				m.stopping = true
				if m.cancel != nil {
					m.cancel()
				}
			}
			return m, nil
		}
	}
	return m, nil
}

func (m Model) View() string {
	return Render(m.tracker.Snapshot(), RenderContext{
		Root:     m.root,
		Width:    m.width,
		Refresh:  m.refresh,
		Host:     m.host,
		Stopping: m.stopping,
	})
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitDoneCmd(done <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-done
		return runDoneMsg{}
	}
}

// RunTUI blocks until the scheduler finishes or the user quits and the run
// winds down.
func RunTUI(opts TUIOptions) error {
	p := tea.NewProgram(NewModel(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
