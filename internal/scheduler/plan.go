package scheduler

import (
	"os"

	"github.com/victordavi-mos/OptimizePlex/internal/model"
)

// PlanOptions selects how the job arena is built from discovered titles.
type PlanOptions struct {
	Titles  []model.Title
	Cascade bool
	Force   bool
}

// BuildPlan turns titles into the job arena: one job per rendition per title,
// in table order, IDs starting at 1. Jobs whose output already exists are
// skipped up front unless Force is set; a zero-byte output counts as absent so
// an interrupted run's partials get re-encoded. With cascade enabled the 720p
// job depends on its 1080p sibling and starts blocked, except when the sibling
// is already terminal at plan time, in which case the source resolves
// immediately and the job starts ready.
func BuildPlan(opts PlanOptions) ([]model.Job, error) {
	specs := model.Renditions()
	jobs := make([]model.Job, 0, len(opts.Titles)*len(specs))
	for _, title := range opts.Titles {
		var predID int
		var pred *model.Job
		for _, spec := range specs {
			job := model.Job{
				ID:        len(jobs) + 1,
				TitlePath: title.Path,
				TitleName: title.Name,
				Rendition: spec.Name,
				Label:     spec.Label,
				Output:    spec.OutputPath(title.Path),
				State:     model.StatePending,
			}
			if err := planTransition(&job, &title, opts, pred, predID); err != nil {
				return nil, err
			}
			jobs = append(jobs, job)
			if spec.Name == model.Rendition1080p {
				predID = job.ID
				pred = &jobs[len(jobs)-1]
			}
		}
	}
	return jobs, nil
}

func planTransition(job *model.Job, title *model.Title, opts PlanOptions, pred *model.Job, predID int) error {
	if !opts.Force && usableOutput(job.Output) {
		return model.TransitionJob(job, model.StateSkipped, "output already exists")
	}
	if job.Rendition != model.Rendition720p || !opts.Cascade || pred == nil {
		job.Source = title.Path
		return model.TransitionJob(job, model.StateReady, "")
	}
	job.DependsOn = predID
	if model.IsTerminalState(pred.State) {
		job.Source = CascadeSource(*pred, title.Path)
		return model.TransitionJob(job, model.StateReady, "")
	}
	return model.TransitionJob(job, model.StateBlocked, "")
}

// CascadeSource picks the 720p encode source once its predecessor is
// terminal: the 1080p output when that output is usable, the original file
// otherwise. A successful predecessor's output is usable by definition; a
// skipped one is trusted only if the file on disk is non-empty.
func CascadeSource(pred model.Job, titlePath string) string {
	switch pred.State {
	case model.StateSuccess:
		return pred.Output
	case model.StateSkipped:
		if usableOutput(pred.Output) {
			return pred.Output
		}
	}
	return titlePath
}

func usableOutput(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
