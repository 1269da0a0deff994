package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/victordavi-mos/OptimizePlex/internal/discovery"
	"github.com/victordavi-mos/OptimizePlex/internal/ffmpeg"
	"github.com/victordavi-mos/OptimizePlex/internal/model"
	"github.com/victordavi-mos/OptimizePlex/internal/scheduler"
)

type scanReport struct {
	Root           string        `json:"root"`
	Titles         []model.Title `json:"titles"`
	BelowThreshold int           `json:"below_threshold_count"`
	ProbeFailures  []string      `json:"probe_failures,omitempty"`
	Jobs           []model.Job   `json:"jobs"`
	ToEncode       int           `json:"to_encode"`
	Skipped        int           `json:"skipped"`
}

// runScan is the dry half of run: discovery and planning with the same flags
// and config layering, but nothing is encoded and no lock is taken.
func runScan(args []string) error {
	f := newRunFlags("scan")
	jsonOut := f.fs.Bool("json", false, "print JSON output")
	cfg, err := f.parse(args)
	if err != nil {
		return err
	}
	if err := cfg.ValidateRoot(); err != nil {
		return asUsage(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	caps := ffmpeg.DetectCapabilities(ctx)
	if caps.FFprobePath == "" {
		return usageErrf("ffprobe is required on PATH (try: optimizeplex doctor)")
	}

	scan, err := discovery.ListTitles(ctx, cfg.Root, nil)
	if err != nil {
		return fmt.Errorf("scan library: %w", err)
	}

	jobs, err := scheduler.BuildPlan(scheduler.PlanOptions{
		Titles:  scan.Titles,
		Cascade: cfg.Cascade720,
		Force:   cfg.Force,
	})
	if err != nil {
		return fmt.Errorf("build plan: %w", err)
	}

	report := scanReport{
		Root:           cfg.Root,
		Titles:         scan.Titles,
		BelowThreshold: scan.BelowThreshold,
		ProbeFailures:  scan.ProbeFailures,
		Jobs:           jobs,
	}
	for _, j := range jobs {
		if j.State == model.StateSkipped {
			report.Skipped++
		} else {
			report.ToEncode++
		}
	}

	if *jsonOut {
		return printJSON(report)
	}

	byTitle := make(map[string][]model.Job, len(scan.Titles))
	for _, j := range jobs {
		byTitle[j.TitlePath] = append(byTitle[j.TitlePath], j)
	}
	for _, t := range scan.Titles {
		fmt.Printf("%dx%d  %s\n", t.Width, t.Height, t.Path)
		for _, j := range byTitle[t.Path] {
			switch j.State {
			case model.StateSkipped:
				fmt.Printf("  skip    %s (%s)\n", j.Label, j.Reason)
			case model.StateBlocked:
				fmt.Printf("  encode  %s -> %s (after job %d)\n", j.Label, j.Output, j.DependsOn)
			default:
				fmt.Printf("  encode  %s -> %s\n", j.Label, j.Output)
			}
		}
	}
	for _, path := range scan.ProbeFailures {
		fmt.Printf("probe failed: %s\n", path)
	}
	fmt.Printf("%d title(s) above 1080p, %d below; %d job(s) to encode, %d already optimized\n",
		len(scan.Titles), scan.BelowThreshold, report.ToEncode, report.Skipped)
	return nil
}
