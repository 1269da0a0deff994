package model

// Title is one source media file above the resolution threshold. Titles are
// created at discovery time and never mutated.
type Title struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Exceeds1080p reports whether the title needs optimized renditions at all.
func (t Title) Exceeds1080p() bool {
	return t.Width > 1920 || t.Height > 1080
}

// Job is one requested rendition of a Title. Jobs live in an arena indexed by
// ID (first ID is 1); DependsOn holds the predecessor job ID or 0.
type Job struct {
	ID          int    `json:"id"`
	TitlePath   string `json:"title_path"`
	TitleName   string `json:"title_name"`
	Rendition   string `json:"rendition"`
	Label       string `json:"label"`
	DependsOn   int    `json:"depends_on,omitempty"`
	Source      string `json:"source,omitempty"`
	Output      string `json:"output"`
	Strategy    string `json:"strategy,omitempty"`
	State       string `json:"state"`
	Reason      string `json:"reason,omitempty"`
	Worker      string `json:"worker,omitempty"`
	Attempts    int    `json:"attempts,omitempty"`
	Fallback    bool   `json:"fallback,omitempty"`
	OutputBytes int64  `json:"output_bytes,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	StartedAt   string `json:"started_at,omitempty"`
	EndedAt     string `json:"ended_at,omitempty"`
}

// Execution strategies. A job has no strategy until a worker claims it; a
// fallback job is pinned to CPU.
const (
	StrategyGPU = "GPU"
	StrategyCPU = "CPU"
)

// RunManifest is the plan.json artifact: the full job table plus counters,
// rewritten on every terminal transition. It is never read back to resume a
// run; existing outputs on disk are the only resumption signal.
type RunManifest struct {
	SchemaVersion int    `json:"schema_version"`
	GeneratedAt   string `json:"generated_at"`
	Root          string `json:"root"`
	LogDir        string `json:"log_dir"`
	Cascade720    bool   `json:"cascade_720"`
	Force         bool   `json:"force"`
	Total         int    `json:"total"`
	Blocked       int    `json:"blocked"`
	Ready         int    `json:"ready"`
	Running       int    `json:"running"`
	Succeeded     int    `json:"succeeded"`
	Failed        int    `json:"failed"`
	Skipped       int    `json:"skipped"`
	Jobs          []Job  `json:"jobs"`
}

// ManifestSchemaVersion is bumped when the plan.json layout changes shape.
const ManifestSchemaVersion = 1

// RecomputeCounts refreshes the counters from the job table.
func (m *RunManifest) RecomputeCounts() {
	m.Total = len(m.Jobs)
	m.Blocked, m.Ready, m.Running = 0, 0, 0
	m.Succeeded, m.Failed, m.Skipped = 0, 0, 0
	for i := range m.Jobs {
		switch m.Jobs[i].State {
		case StateBlocked:
			m.Blocked++
		case StateReady, StatePending:
			m.Ready++
		case StateRunning:
			m.Running++
		case StateSuccess:
			m.Succeeded++
		case StateFailed:
			m.Failed++
		case StateSkipped:
			m.Skipped++
		}
	}
}
