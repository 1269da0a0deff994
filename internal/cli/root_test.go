package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/victordavi-mos/OptimizePlex/internal/config"
)

func TestExitCode(t *testing.T) {
	if got := ExitCode(nil); got != 0 {
		t.Fatalf("ExitCode(nil) = %d", got)
	}
	if got := ExitCode(usageErrf("bad flag")); got != 2 {
		t.Fatalf("ExitCode(usage) = %d", got)
	}
	wrapped := fmt.Errorf("outer: %w", usageErrf("inner"))
	if got := ExitCode(wrapped); got != 2 {
		t.Fatalf("ExitCode(wrapped usage) = %d", got)
	}
	if got := ExitCode(errors.New("boom")); got != 1 {
		t.Fatalf("ExitCode(internal) = %d", got)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	err := Run([]string{"frobnicate"})
	if err == nil {
		t.Fatal("expected an error for an unknown command")
	}
	if ExitCode(err) != 2 {
		t.Fatalf("exit code = %d, want 2", ExitCode(err))
	}
}

func TestRunNoArgsPrintsUsage(t *testing.T) {
	out, err := captureStdout(t, func() error { return Run(nil) })
	if err != nil {
		t.Fatalf("Run(nil): %v", err)
	}
	if !strings.Contains(out, "optimizeplex run") {
		t.Fatalf("usage output missing run line:\n%s", out)
	}
}

func TestRunFlagsOverrideConfigFile(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "op.yaml")
	body := "gpu_workers: 1\ncascade_720: false\nlog_dir: " + filepath.Join(tmp, "logs") + "\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := newRunFlags("run").parse([]string{
		"--config", cfgPath,
		"--cpu-workers", "1",
		tmp,
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.GPUWorkers != 1 {
		t.Fatalf("GPUWorkers = %d, want 1 from config file", cfg.GPUWorkers)
	}
	if cfg.CPUWorkers != 1 {
		t.Fatalf("CPUWorkers = %d, want 1 from flag", cfg.CPUWorkers)
	}
	if cfg.Cascade720 {
		t.Fatal("Cascade720 should be false from config file")
	}
	if cfg.LogDir != filepath.Join(tmp, "logs") {
		t.Fatalf("LogDir = %q", cfg.LogDir)
	}
	if cfg.Root != tmp {
		t.Fatalf("Root = %q, want %q", cfg.Root, tmp)
	}
}

func TestRunFlagsBeatEnvironment(t *testing.T) {
	t.Setenv("OPTIMIZEPLEX_GPU_WORKERS", "1")

	cfg, err := newRunFlags("run").parse([]string{"/lib"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.GPUWorkers != 1 {
		t.Fatalf("GPUWorkers = %d, want 1 from env", cfg.GPUWorkers)
	}

	cfg, err = newRunFlags("run").parse([]string{"--gpu-workers", "2", "/lib"})
	if err != nil {
		t.Fatalf("parse with flag: %v", err)
	}
	if cfg.GPUWorkers != 2 {
		t.Fatalf("GPUWorkers = %d, want 2 from flag", cfg.GPUWorkers)
	}
}

func TestRunFlagsClampAndValidate(t *testing.T) {
	cfg, err := newRunFlags("run").parse([]string{
		"--gpu-workers", "9",
		"--refresh", "9",
		"/lib",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.GPUWorkers != config.MaxGPUWorkers {
		t.Fatalf("GPUWorkers = %d, want clamp to %d", cfg.GPUWorkers, config.MaxGPUWorkers)
	}
	if cfg.Refresh != config.MaxRefresh {
		t.Fatalf("Refresh = %v, want clamp to %v", cfg.Refresh, config.MaxRefresh)
	}

	_, err = newRunFlags("run").parse([]string{"--gpu-workers", "0", "--cpu-workers", "0", "/lib"})
	if !errors.Is(err, config.ErrNoWorkers) {
		t.Fatalf("err = %v, want ErrNoWorkers", err)
	}
	if ExitCode(err) != 2 {
		t.Fatalf("exit code = %d, want 2", ExitCode(err))
	}

	_, err = newRunFlags("run").parse([]string{"/lib", "stray"})
	if err == nil || ExitCode(err) != 2 {
		t.Fatalf("extra positional should be a usage error, got %v", err)
	}
}

func TestRunMissingRootIsUsageFailure(t *testing.T) {
	err := Run([]string{"run"})
	if !errors.Is(err, config.ErrRootRequired) {
		t.Fatalf("err = %v, want ErrRootRequired", err)
	}
	if ExitCode(err) != 2 {
		t.Fatalf("exit code = %d, want 2", ExitCode(err))
	}
}

// captureStdout swaps os.Stdout for a pipe around fn, for commands that
// print reports rather than returning them.
func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	runErr := fn()
	_ = w.Close()
	os.Stdout = old
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(data), runErr
}
