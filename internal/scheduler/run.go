package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/victordavi-mos/OptimizePlex/internal/ffmpeg"
	"github.com/victordavi-mos/OptimizePlex/internal/model"
	"github.com/victordavi-mos/OptimizePlex/internal/runstore"
)

// Worker kinds. A GPU worker claims any primary job; the CPU lane also takes
// fallback retries, which are pinned to it.
const (
	workerGPU = "gpu"
	workerCPU = "cpu"
)

const fallbackThreadsDefault = 5

// Options configures one run. All values arrive resolved; the scheduler does
// not read configuration itself.
type Options struct {
	// Jobs is the arena from BuildPlan. Run works on its own copy.
	Jobs []model.Job

	GPUWorkers int
	CPUWorkers int
	// GPUWorkerThreads is the per-GPU-worker decode/filter allotment from
	// Allocate, index-aligned with the GPU workers.
	GPUWorkerThreads []int
	// CPUThreads is the primary CPU worker's encode thread budget.
	CPUThreads int
	// FallbackThreads is the budget for CPU fallback attempts and for GPU
	// slots demoted because no hardware encoder exists.
	FallbackThreads int

	// NVENC and HWDecode mirror the detected capabilities: whether
	// h264_nvenc is available at all, and whether decode+scale should stay
	// on the GPU.
	NVENC    bool
	HWDecode bool

	// Manifest seeds the run manifest metadata (root, log dir, flag echo);
	// its job table is replaced by Jobs. ManifestPath is where the manifest
	// is persisted after every mutation; empty disables persistence.
	Manifest     model.RunManifest
	ManifestPath string

	// Sink receives lifecycle events; nil disables them.
	Sink EventSink
}

// Result summarizes a finished run. Manifest holds the final job table;
// Interrupted is set when the context was cancelled before all jobs finished.
type Result struct {
	Manifest    model.RunManifest
	Fallbacks   int
	Interrupted bool
	Elapsed     time.Duration
}

type worker struct {
	name         string
	kind         string
	threads      int
	fallbackOnly bool
	busy         bool
}

// completion travels from a worker goroutine back to the dispatch loop.
type completion struct {
	workerIdx int
	jobIdx    int
	probeErr  error
	runErr    error
	res       ffmpeg.EncodeResult
}

type runState struct {
	opts         Options
	manifestPath string

	mu        sync.Mutex
	mf        model.RunManifest
	workers   []*worker
	inFlight  int
	fallbacks int

	stopping      atomic.Bool
	persistWarned bool
}

// Run drives the job arena to completion: it assigns ready jobs to free
// workers, supervises the encodes, requeues failed GPU attempts once onto the
// CPU lane, and resolves cascade sources as predecessors reach terminal
// states. It returns once every job is terminal or, after cancellation, once
// the in-flight encodes have been reaped.
func Run(ctx context.Context, opts Options) (Result, error) {
	start := time.Now()
	if opts.FallbackThreads <= 0 {
		opts.FallbackThreads = fallbackThreadsDefault
	}

	s := &runState{opts: opts, manifestPath: opts.ManifestPath}
	s.mf = opts.Manifest
	s.mf.SchemaVersion = model.ManifestSchemaVersion
	if s.mf.GeneratedAt == "" {
		s.mf.GeneratedAt = start.UTC().Format(time.RFC3339)
	}
	s.mf.Jobs = make([]model.Job, len(opts.Jobs))
	copy(s.mf.Jobs, opts.Jobs)
	s.mf.RecomputeCounts()
	s.workers = buildWorkers(opts)

	done := make(chan completion)

	s.mu.Lock()
	s.persistLocked()
	s.dispatchLocked(ctx, done)
	s.mu.Unlock()

	cancelC := ctx.Done()
	for {
		s.mu.Lock()
		inFlight := s.inFlight
		s.mu.Unlock()
		if inFlight == 0 {
			break
		}
		select {
		case c := <-done:
			s.complete(ctx, c, done)
		case <-cancelC:
			s.stopping.Store(true)
			cancelC = nil
		}
	}

	interrupted := ctx.Err() != nil || s.stopping.Load()

	s.mu.Lock()
	stalled := 0
	for i := range s.mf.Jobs {
		job := &s.mf.Jobs[i]
		if model.IsTerminalState(job.State) {
			continue
		}
		reason := "interrupted"
		if !interrupted {
			stalled++
			reason = "stalled"
		}
		s.failLocked(job, reason, "")
	}
	s.mf.RecomputeCounts()
	s.persistLocked()
	res := Result{
		Manifest:    s.mf,
		Fallbacks:   s.fallbacks,
		Interrupted: interrupted,
		Elapsed:     time.Since(start),
	}
	s.mu.Unlock()

	if stalled > 0 {
		return res, fmt.Errorf("scheduler stalled: %d jobs never reached a terminal state", stalled)
	}
	return res, nil
}

func buildWorkers(opts Options) []*worker {
	var ws []*worker
	for i := 0; i < opts.GPUWorkers; i++ {
		threads := 0
		if i < len(opts.GPUWorkerThreads) {
			threads = opts.GPUWorkerThreads[i]
		}
		ws = append(ws, &worker{name: fmt.Sprintf("GPU#%d", i+1), kind: workerGPU, threads: threads})
	}
	for i := 0; i < opts.CPUWorkers; i++ {
		ws = append(ws, &worker{name: fmt.Sprintf("CPU#%d", i+1), kind: workerCPU, threads: opts.CPUThreads})
	}
	if opts.CPUWorkers == 0 && opts.GPUWorkers > 0 {
		// The fallback lane exists even without a primary CPU worker, so a
		// failed GPU attempt always has somewhere to retry.
		ws = append(ws, &worker{name: "CPU#1", kind: workerCPU, fallbackOnly: true})
	}
	return ws
}

// WorkerNames returns the panel names a run with these pool sizes will use,
// in dispatch order, including the implicit fallback lane.
func WorkerNames(gpuWorkers, cpuWorkers int) []string {
	var names []string
	for i := 0; i < gpuWorkers; i++ {
		names = append(names, fmt.Sprintf("GPU#%d", i+1))
	}
	for i := 0; i < cpuWorkers; i++ {
		names = append(names, fmt.Sprintf("CPU#%d", i+1))
	}
	if cpuWorkers == 0 && gpuWorkers > 0 {
		names = append(names, "CPU#1")
	}
	return names
}

// dispatchLocked hands every free worker its next job. Claims happen in one
// pass under the lock, so two ready jobs land on two distinct free workers.
func (s *runState) dispatchLocked(ctx context.Context, done chan<- completion) {
	if s.stopping.Load() || ctx.Err() != nil {
		return
	}
	for wi, w := range s.workers {
		for !w.busy {
			ji := s.pickJobLocked(w)
			if ji < 0 {
				break
			}
			if !s.claimLocked(ctx, wi, ji, done) {
				// The pick failed terminally without occupying the worker;
				// let it try the next candidate.
				continue
			}
		}
	}
}

// pickJobLocked returns the lowest-ID ready job this worker may take, or -1.
// Fallback retries only ever run on the CPU lane.
func (s *runState) pickJobLocked(w *worker) int {
	for i := range s.mf.Jobs {
		job := &s.mf.Jobs[i]
		if job.State != model.StateReady {
			continue
		}
		if job.Fallback && w.kind != workerCPU {
			continue
		}
		if w.fallbackOnly && !job.Fallback {
			continue
		}
		return i
	}
	return -1
}

func (s *runState) claimLocked(ctx context.Context, wi, ji int, done chan<- completion) bool {
	w := s.workers[wi]
	job := &s.mf.Jobs[ji]

	spec, ok := model.RenditionByName(job.Rendition)
	if !ok {
		s.failLocked(job, "unknown rendition", fmt.Sprintf("no rendition named %q", job.Rendition))
		s.resolveDependentsLocked(job)
		return false
	}
	if err := model.TransitionJob(job, model.StateRunning, ""); err != nil {
		// A job that cannot enter running is wedged; close it out so the
		// pick loop never sees it again.
		s.failLocked(job, "claim rejected", err.Error())
		s.resolveDependentsLocked(job)
		return false
	}

	strategy, threads := s.strategyFor(w, job)
	job.Worker = w.name
	job.Strategy = strategy
	job.Attempts++
	job.StartedAt = time.Now().UTC().Format(time.RFC3339)

	w.busy = true
	s.inFlight++

	encSpec := ffmpeg.EncodeSpec{
		Source:        job.Source,
		Output:        job.Output,
		Rendition:     spec,
		Strategy:      strategy,
		DecodeThreads: threads,
		FilterThreads: threads,
		HWDecode:      strategy == model.StrategyGPU && s.opts.HWDecode,
	}

	log.WithFields(log.Fields{
		"worker":   w.name,
		"job":      job.ID,
		"title":    job.TitleName,
		"target":   job.Label,
		"strategy": strategy,
		"attempt":  job.Attempts,
	}).Debug("job claimed")
	s.emit(Event{Type: EventClaimed, Worker: w.name, Job: *job})
	s.mf.RecomputeCounts()
	s.persistLocked()

	go s.execute(ctx, wi, ji, encSpec, done)
	return true
}

// strategyFor stamps the execution strategy at claim time. A GPU slot without
// a hardware encoder is demoted to CPU with the fallback budget; fallback
// retries on the CPU lane always use the fallback budget.
func (s *runState) strategyFor(w *worker, job *model.Job) (string, int) {
	if w.kind == workerCPU {
		if job.Fallback {
			return model.StrategyCPU, s.opts.FallbackThreads
		}
		return model.StrategyCPU, s.opts.CPUThreads
	}
	if !s.opts.NVENC {
		return model.StrategyCPU, s.opts.FallbackThreads
	}
	return model.StrategyGPU, w.threads
}

// execute runs on a worker goroutine: probe, build the argv, supervise
// ffmpeg, and report back on the done channel. It never touches shared state
// except through emit and the final completion send.
func (s *runState) execute(ctx context.Context, wi, ji int, encSpec ffmpeg.EncodeSpec, done chan<- completion) {
	c := completion{workerIdx: wi, jobIdx: ji}

	probe, err := ffmpeg.Probe(ctx, encSpec.Source)
	if err != nil {
		c.probeErr = err
		done <- c
		return
	}
	encSpec.Probe = probe

	if err := runstore.Mkdir(filepath.Dir(encSpec.Output)); err != nil {
		c.runErr = err
		done <- c
		return
	}

	s.mu.Lock()
	jobCopy := s.mf.Jobs[ji]
	workerName := s.workers[wi].name
	s.mu.Unlock()

	args := ffmpeg.BuildEncodeArgs(encSpec)
	s.emit(Event{
		Type:     EventStarted,
		Worker:   workerName,
		Job:      jobCopy,
		Command:  ffmpeg.CommandLine(args),
		Duration: probe.Duration,
	})

	res, runErr := ffmpeg.Run(ctx, ffmpeg.RunOptions{
		Args:       args,
		OutputPath: encSpec.Output,
		Progress: func(ev ffmpeg.ProgressEvent) {
			s.emit(Event{Type: EventProgress, Worker: workerName, Job: jobCopy, Progress: ev})
		},
		StderrLine: func(line string) {
			s.emit(Event{Type: EventStderr, Worker: workerName, Job: jobCopy, Line: line})
		},
	})
	c.res = res
	c.runErr = runErr
	done <- c
}

// complete folds one finished attempt back into the arena, resolves any
// dependents, and dispatches freed capacity.
func (s *runState) complete(ctx context.Context, c completion, done chan<- completion) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.workers[c.workerIdx]
	w.busy = false
	s.inFlight--
	job := &s.mf.Jobs[c.jobIdx]

	switch {
	case c.probeErr != nil:
		s.failLocked(job, "probe failed", c.probeErr.Error())
	case c.runErr != nil && ctx.Err() != nil:
		removeOutput(job.Output)
		s.failLocked(job, "interrupted", c.runErr.Error())
	case c.runErr != nil:
		s.failLocked(job, "ffmpeg invocation failed", c.runErr.Error())
	case c.res.ExitCode == 0 && c.res.OutputBytes > 0:
		job.OutputBytes = c.res.OutputBytes
		job.LastError = ""
		job.EndedAt = time.Now().UTC().Format(time.RFC3339)
		if err := model.TransitionJob(job, model.StateSuccess, ""); err != nil {
			log.WithError(err).Error("success transition rejected")
		}
		log.WithFields(log.Fields{
			"worker": w.name,
			"job":    job.ID,
			"title":  job.TitleName,
			"target": job.Label,
			"bytes":  job.OutputBytes,
		}).Debug("job succeeded")
		s.emit(Event{Type: EventTerminal, Worker: w.name, Job: *job})
	default:
		removeIfEmpty(job.Output)
		detail := failureDetail(c.res)
		if job.Strategy == model.StrategyGPU && !job.Fallback {
			job.Fallback = true
			job.Strategy = model.StrategyCPU
			job.LastError = detail
			if err := model.TransitionJob(job, model.StateReady, "gpu attempt failed"); err != nil {
				log.WithError(err).Error("requeue transition rejected")
			} else {
				s.fallbacks++
				log.WithFields(log.Fields{
					"worker": w.name,
					"job":    job.ID,
					"title":  job.TitleName,
					"target": job.Label,
					"detail": detail,
				}).Warn("gpu attempt failed, requeued for cpu")
				s.emit(Event{Type: EventRequeued, Worker: w.name, Job: *job})
			}
		} else {
			s.failLocked(job, "encode failed", detail)
		}
	}

	if model.IsTerminalState(job.State) {
		s.resolveDependentsLocked(job)
	}
	s.mf.RecomputeCounts()
	s.persistLocked()
	s.dispatchLocked(ctx, done)
}

// failLocked moves a job to failed from any non-terminal state and emits the
// terminal event.
func (s *runState) failLocked(job *model.Job, reason, detail string) {
	if detail != "" {
		job.LastError = detail
	}
	job.EndedAt = time.Now().UTC().Format(time.RFC3339)
	if err := model.TransitionJob(job, model.StateFailed, reason); err != nil {
		log.WithError(err).Error("fail transition rejected")
		return
	}
	log.WithFields(log.Fields{
		"job":    job.ID,
		"title":  job.TitleName,
		"target": job.Label,
		"reason": reason,
		"detail": detail,
	}).Warn("job failed")
	s.emit(Event{Type: EventTerminal, Worker: job.Worker, Job: *job})
}

// resolveDependentsLocked unblocks every job waiting on pred, picking its
// encode source from the predecessor's outcome.
func (s *runState) resolveDependentsLocked(pred *model.Job) {
	for i := range s.mf.Jobs {
		job := &s.mf.Jobs[i]
		if job.DependsOn != pred.ID || job.State != model.StateBlocked {
			continue
		}
		job.Source = CascadeSource(*pred, job.TitlePath)
		if err := model.TransitionJob(job, model.StateReady, ""); err != nil {
			log.WithError(err).Error("unblock transition rejected")
		}
	}
}

func (s *runState) persistLocked() {
	if s.manifestPath == "" {
		return
	}
	if err := runstore.WriteJSON(s.manifestPath, &s.mf); err != nil {
		if !s.persistWarned {
			s.persistWarned = true
			log.WithError(err).Warn("cannot persist run manifest, continuing without it")
		}
		s.manifestPath = ""
	}
}

func (s *runState) emit(ev Event) {
	if s.opts.Sink == nil {
		return
	}
	ev.Time = time.Now()
	s.opts.Sink(ev)
}

// failureDetail compresses an attempt's outcome into one line for LastError
// and the job log.
func failureDetail(res ffmpeg.EncodeResult) string {
	var b strings.Builder
	if res.ExitCode != 0 {
		fmt.Fprintf(&b, "exit status %d", res.ExitCode)
	} else {
		b.WriteString("zero-byte output")
	}
	if len(res.StderrTail) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(res.StderrTail, " | "))
	}
	return b.String()
}

// removeIfEmpty deletes a zero-byte output so a retry or a later run starts
// clean. Non-empty partials stay; the next attempt overwrites them.
func removeIfEmpty(path string) {
	info, err := os.Stat(path)
	if err != nil || info.Size() != 0 {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WithError(err).WithField("path", path).Warn("cannot remove zero-byte output")
	}
}

// removeOutput deletes an interrupted encode's output regardless of size. A
// killed ffmpeg leaves a truncated file that the next run's planner would
// otherwise mistake for a finished rendition.
func removeOutput(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WithError(err).WithField("path", path).Warn("cannot remove partial output")
	}
}
