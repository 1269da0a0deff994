package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func TestDoctorHarnessAllChecksPass(t *testing.T) {
	installFakeTools(t)
	logDir := filepath.Join(t.TempDir(), "logs")

	out, err := captureStdout(t, func() error {
		return Run([]string{"doctor", "--log-dir", logDir, "--json"})
	})
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}

	var report doctorReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("parse doctor JSON: %v\n%s", err, out)
	}
	if !report.OK {
		t.Fatalf("report not OK: %+v", report)
	}
	if len(report.Checks) != 5 {
		t.Fatalf("checks = %d, want 5", len(report.Checks))
	}
	byName := map[string]doctorCheck{}
	for _, c := range report.Checks {
		byName[c.Name] = c
	}
	if !byName["encoder:h264_nvenc"].OK {
		t.Fatal("nvenc check should pass with the fake encoder table")
	}
	if msg := byName["binary:ffmpeg"].Message; !strings.Contains(msg, "(6.1.1)") {
		t.Fatalf("ffmpeg check should carry the version banner, got %q", msg)
	}
	if !byName["directory:log"].OK {
		t.Fatal("log dir check should pass")
	}
}

func TestDoctorHarnessMissingBinariesFails(t *testing.T) {
	emptyBin := t.TempDir()
	t.Setenv("PATH", emptyBin)
	logDir := filepath.Join(t.TempDir(), "logs")

	out, err := captureStdout(t, func() error {
		return Run([]string{"doctor", "--log-dir", logDir})
	})
	if err == nil {
		t.Fatal("doctor should fail without ffmpeg")
	}
	if ExitCode(err) != 2 {
		t.Fatalf("exit code = %d, want 2", ExitCode(err))
	}
	if !strings.Contains(out, "binary:ffmpeg: fail") {
		t.Fatalf("missing failed binary line:\n%s", out)
	}
	// GPU capability is advisory, not fatal.
	if !strings.Contains(out, "encoder:h264_nvenc: warn") {
		t.Fatalf("nvenc should warn, not fail:\n%s", out)
	}
}
