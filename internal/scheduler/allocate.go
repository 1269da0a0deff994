// Package scheduler owns the run: it turns discovered titles into a job
// arena with cascade edges, assigns ready jobs to a fixed pool of GPU/CPU
// workers under their thread budgets, and drives the GPU-to-CPU fallback
// state machine to completion.
package scheduler

// Allocate splits the total CPU thread budget for decode/scale work evenly
// across the GPU workers, honoring the per-worker floor. Pure and
// deterministic; the same inputs always produce the same allotment.
func Allocate(budget, workers, minPerWorker int) []int {
	if workers <= 0 {
		return nil
	}
	if budget < 1 {
		budget = 1
	}
	per := budget / workers
	if per < minPerWorker {
		per = minPerWorker
	}
	if per < 1 {
		per = 1
	}
	out := make([]int, workers)
	for i := range out {
		out[i] = per
	}
	return out
}
