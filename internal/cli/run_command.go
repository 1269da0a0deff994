package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/victordavi-mos/OptimizePlex/internal/config"
	"github.com/victordavi-mos/OptimizePlex/internal/dashboard"
	"github.com/victordavi-mos/OptimizePlex/internal/discovery"
	"github.com/victordavi-mos/OptimizePlex/internal/ffmpeg"
	"github.com/victordavi-mos/OptimizePlex/internal/joblog"
	"github.com/victordavi-mos/OptimizePlex/internal/model"
	"github.com/victordavi-mos/OptimizePlex/internal/runstore"
	"github.com/victordavi-mos/OptimizePlex/internal/scheduler"
)

// runFlags registers the knobs shared by run and scan. Flag values override
// the layered config only when the flag was actually set on the command
// line, so config-file and environment settings survive untouched defaults.
type runFlags struct {
	fs               *flag.FlagSet
	configPath       *string
	force            *bool
	gpuWorkers       *int
	cpuWorkers       *int
	cpuThreads       *int
	gpuFilterThreads *int
	cpuBudgetForGPU  *int
	gpuDecode        *bool
	refresh          *float64
	logDir           *string
	noCascade        *bool
	noDashboard      *bool
	verbose          *bool
}

func newRunFlags(name string) *runFlags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	f := &runFlags{
		fs:               fs,
		configPath:       fs.String("config", "", "explicit config file (default: optimizeplex.yaml in the working directory)"),
		force:            fs.Bool("force", false, "re-encode renditions whose outputs already exist"),
		gpuWorkers:       fs.Int("gpu-workers", 2, "parallel GPU encode slots (0-2)"),
		cpuWorkers:       fs.Int("cpu-workers", 0, "parallel CPU encode slots (0-1)"),
		cpuThreads:       fs.Int("cpu-threads", 5, "x264 threads for the primary CPU worker"),
		gpuFilterThreads: fs.Int("gpu-filter-threads", 1, "minimum filter threads per GPU worker"),
		cpuBudgetForGPU:  fs.Int("cpu-budget-for-gpu", 10, "CPU threads split across GPU workers for decode and scaling"),
		gpuDecode:        fs.Bool("gpu-decode", false, "decode and scale on the GPU (NVDEC + scale_cuda)"),
		refresh:          fs.Float64("refresh", 1.0, "dashboard refresh interval in seconds (0.2-2.0)"),
		logDir:           fs.String("log-dir", "encode-logs", "directory for job logs, run.log, and plan.json"),
		noCascade:        fs.Bool("no-cascade-720", false, "encode 720p from the original instead of the 1080p output"),
		noDashboard:      fs.Bool("no-dashboard", false, "plain line output even on a TTY"),
		verbose:          fs.Bool("verbose", false, "debug logging"),
	}
	fs.SetOutput(flag.CommandLine.Output())
	return f
}

// parse merges flags over config.Load and validates everything except the
// root, which only run and scan check (doctor has no root).
func (f *runFlags) parse(args []string) (*config.Config, error) {
	if err := f.fs.Parse(args); err != nil {
		return nil, asUsage(err)
	}
	if f.fs.NArg() > 1 {
		return nil, usageErrf("unexpected argument %q", f.fs.Arg(1))
	}

	cfg, err := config.Load(strings.TrimSpace(*f.configPath))
	if err != nil {
		return nil, asUsage(err)
	}

	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "force":
			cfg.Force = *f.force
		case "gpu-workers":
			cfg.GPUWorkers = *f.gpuWorkers
		case "cpu-workers":
			cfg.CPUWorkers = *f.cpuWorkers
		case "cpu-threads":
			cfg.CPUThreads = *f.cpuThreads
		case "gpu-filter-threads":
			cfg.GPUFilterThreads = *f.gpuFilterThreads
		case "cpu-budget-for-gpu":
			cfg.CPUBudgetForGPU = *f.cpuBudgetForGPU
		case "gpu-decode":
			cfg.GPUDecode = *f.gpuDecode
		case "refresh":
			cfg.Refresh = *f.refresh
		case "log-dir":
			cfg.LogDir = *f.logDir
		case "no-cascade-720":
			cfg.Cascade720 = !*f.noCascade
		case "no-dashboard":
			cfg.Dashboard = !*f.noDashboard
		case "verbose":
			if *f.verbose {
				cfg.LogLevel = "debug"
			}
		}
	})

	cfg.Root = strings.TrimSpace(f.fs.Arg(0))
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, asUsage(err)
	}
	return cfg, nil
}

func runRun(args []string) error {
	cfg, err := newRunFlags("run").parse(args)
	if err != nil {
		return err
	}
	if err := cfg.ValidateRoot(); err != nil {
		return asUsage(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runstore.EnsureWritableDir(cfg.LogDir); err != nil {
		return asUsage(err)
	}

	useDashboard := cfg.Dashboard && stdinIsTTY() && stdoutIsTTY()
	closeLog, err := setupLogging(cfg, useDashboard)
	if err != nil {
		return err
	}
	defer closeLog()

	caps := ffmpeg.DetectCapabilities(ctx)
	if !caps.HasBinaries() {
		return usageErrf("ffmpeg and ffprobe are required on PATH (try: optimizeplex doctor)")
	}
	hwDecode := cfg.GPUDecode && caps.NVENC && caps.ScaleCUDA
	if cfg.GPUDecode && !hwDecode {
		log.Warn("gpu decode requested but NVENC or scale_cuda is unavailable, scaling on CPU")
	}
	if !caps.NVENC && cfg.GPUWorkers > 0 {
		log.Warn("h264_nvenc not available, GPU slots will encode with libx264")
	}

	lock, err := runstore.AcquireRunLock(cfg.LogDir)
	if err != nil {
		return asUsage(err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.WithError(err).Warn("release run lock")
		}
	}()

	log.WithField("root", cfg.Root).Info("scanning library")
	scan, err := discovery.ListTitles(ctx, cfg.Root, nil)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println("scan interrupted")
			return nil
		}
		return fmt.Errorf("scan library: %w", err)
	}
	for _, path := range scan.ProbeFailures {
		log.WithField("path", path).Warn("probe failed, file ignored")
	}
	fmt.Printf("found %d title(s) above 1080p (%d at or below threshold)\n",
		len(scan.Titles), scan.BelowThreshold)
	if len(scan.Titles) == 0 {
		fmt.Println("nothing to optimize")
		return nil
	}

	jobs, err := scheduler.BuildPlan(scheduler.PlanOptions{
		Titles:  scan.Titles,
		Cascade: cfg.Cascade720,
		Force:   cfg.Force,
	})
	if err != nil {
		return fmt.Errorf("build plan: %w", err)
	}
	skipped, runnable := 0, 0
	for _, j := range jobs {
		switch {
		case j.State == model.StateSkipped:
			skipped++
		case !model.IsTerminalState(j.State):
			runnable++
		}
	}
	fmt.Printf("planned %d job(s): %d to encode, %d already optimized\n",
		len(jobs), runnable, skipped)

	opts := scheduler.Options{
		Jobs:             jobs,
		GPUWorkers:       cfg.GPUWorkers,
		CPUWorkers:       cfg.CPUWorkers,
		GPUWorkerThreads: scheduler.Allocate(cfg.CPUBudgetForGPU, cfg.GPUWorkers, cfg.GPUFilterThreads),
		CPUThreads:       cfg.CPUThreads,
		FallbackThreads:  config.FallbackCPUThreads,
		NVENC:            caps.NVENC,
		HWDecode:         hwDecode,
		Manifest: model.RunManifest{
			Root:       cfg.Root,
			LogDir:     cfg.LogDir,
			Cascade720: cfg.Cascade720,
			Force:      cfg.Force,
		},
		ManifestPath: filepath.Join(cfg.LogDir, "plan.json"),
	}

	recorder := joblog.NewRecorder(cfg.LogDir)
	var res scheduler.Result
	var runErr error
	if useDashboard && runnable > 0 {
		tracker := dashboard.NewTracker(
			scheduler.WorkerNames(cfg.GPUWorkers, cfg.CPUWorkers),
			dashboard.Counts{Total: len(jobs), Skipped: skipped},
		)
		opts.Sink = func(ev scheduler.Event) {
			recorder.Handle(ev)
			tracker.Handle(ev)
		}
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			res, runErr = scheduler.Run(runCtx, opts)
		}()
		if tuiErr := dashboard.RunTUI(dashboard.TUIOptions{
			Tracker: tracker,
			Root:    cfg.Root,
			Refresh: time.Duration(cfg.Refresh * float64(time.Second)),
			Cancel:  cancel,
			Done:    done,
		}); tuiErr != nil {
			// The run keeps going headless; progress still lands in the
			// job logs and run.log.
			fmt.Fprintln(os.Stderr, "dashboard unavailable:", tuiErr)
		}
		<-done
		cancel()
	} else {
		printer := dashboard.NewPrinter(os.Stdout)
		opts.Sink = func(ev scheduler.Event) {
			recorder.Handle(ev)
			printer.Handle(ev)
		}
		res, runErr = scheduler.Run(ctx, opts)
	}
	recorder.Close()
	if runErr != nil {
		return fmt.Errorf("scheduler: %w", runErr)
	}

	printRunSummary(res)
	return nil
}

// setupLogging configures logrus. While the dashboard owns the terminal the
// app log goes to <log-dir>/run.log; plain mode logs to stderr as usual.
func setupLogging(cfg *config.Config, dashboardActive bool) (func(), error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if !dashboardActive {
		return func() {}, nil
	}
	path := filepath.Join(cfg.LogDir, "run.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open app log %s: %w", path, err)
	}
	log.SetOutput(f)
	return func() {
		log.SetOutput(os.Stderr)
		_ = f.Close()
	}, nil
}

func printRunSummary(res scheduler.Result) {
	m := res.Manifest
	line := fmt.Sprintf("run finished in %s: %d succeeded, %d failed, %d skipped",
		res.Elapsed.Round(time.Second), m.Succeeded, m.Failed, m.Skipped)
	if res.Fallbacks > 0 {
		line += fmt.Sprintf(", %d cpu fallback(s)", res.Fallbacks)
	}
	fmt.Println(line)

	var optimized int64
	for _, j := range m.Jobs {
		if j.State == model.StateSuccess {
			optimized += j.OutputBytes
		}
	}
	if optimized > 0 {
		fmt.Printf("wrote %s of optimized renditions\n", formatBytesIEC(optimized))
	}
	for _, j := range m.Jobs {
		if j.State != model.StateFailed {
			continue
		}
		failLine := fmt.Sprintf("  FAILED %s -> %s: %s", j.TitleName, j.Label, j.Reason)
		if j.LastError != "" {
			failLine += " (" + j.LastError + ")"
		}
		fmt.Println(failLine)
	}
	if res.Interrupted {
		fmt.Println("interrupted: unfinished renditions were removed and will be planned again")
	}
	fmt.Printf("job logs and plan.json in %s\n", m.LogDir)
}
