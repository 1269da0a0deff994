package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/victordavi-mos/OptimizePlex/internal/joblog"
	"github.com/victordavi-mos/OptimizePlex/internal/model"
	"github.com/victordavi-mos/OptimizePlex/internal/runstore"
)

// harnessProbeScript answers both ffprobe shapes: the discovery size probe
// (-show_entries, WxH output) and the full JSON probe before an encode.
const harnessProbeScript = `#!/usr/bin/env bash
src="${@: -1}"
for a in "$@"; do
  if [ "$a" = "-version" ]; then
    echo "ffprobe version 6.1.1 Copyright (c) 2007-2023"
    exit 0
  fi
  if [ "$a" = "-show_entries" ]; then
    case "$src" in
      *smallclip*) echo "1280x720";;
      *) echo "3840x2160";;
    esac
    exit 0
  fi
done
cat <<'JSON'
{"format":{"duration":"120.0"},"streams":[{"codec_type":"video","width":3840,"height":2160},{"codec_type":"audio","codec_name":"aac"}]}
JSON
`

// harnessEncodeScript answers the capability probes and fakes encodes; the
// output records which encoder the command line selected.
const harnessEncodeScript = `#!/usr/bin/env bash
for a in "$@"; do
  if [ "$a" = "-version" ]; then
    echo "ffmpeg version 6.1.1 Copyright (c) 2000-2023"
    exit 0
  fi
  if [ "$a" = "-encoders" ]; then
    echo " V....D h264_nvenc           NVIDIA NVENC H.264 encoder"
    exit 0
  fi
  if [ "$a" = "-filters" ]; then
    echo " ... scale_cuda        V->V  GPU accelerated video resizer"
    exit 0
  fi
done
enc=cpu
for a in "$@"; do
  if [ "$a" = "h264_nvenc" ]; then enc=gpu; fi
done
out="${@: -1}"
echo "out_time=00:02:00.000000"
echo "progress=end"
printf 'encoded-%s' "$enc" > "$out"
exit 0
`

func installFakeTools(t *testing.T) {
	t.Helper()
	bin := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(bin, name), []byte(body), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	write("ffprobe", harnessProbeScript)
	write("ffmpeg", harnessEncodeScript)
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func writeLibraryTitle(t *testing.T, root, name string) string {
	t.Helper()
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(root, name)
	if err := os.WriteFile(path, []byte("source-bits"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunHarnessEndToEnd(t *testing.T) {
	installFakeTools(t)
	tmp := t.TempDir()
	root := filepath.Join(tmp, "library")
	src := writeLibraryTitle(t, root, "movie.mkv")
	writeLibraryTitle(t, root, "smallclip.mp4")
	logDir := filepath.Join(tmp, "logs")

	out, err := captureStdout(t, func() error {
		return Run([]string{"run", "--no-dashboard", "--log-dir", logDir, root})
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "found 1 title(s) above 1080p (1 at or below threshold)") {
		t.Fatalf("scan summary missing from run output:\n%s", out)
	}

	var mf model.RunManifest
	if err := runstore.ReadJSON(filepath.Join(logDir, "plan.json"), &mf); err != nil {
		t.Fatalf("read plan.json: %v", err)
	}
	if len(mf.Jobs) != 2 {
		t.Fatalf("only the 4K title should be planned, got %d jobs", len(mf.Jobs))
	}
	if mf.Succeeded != 2 || mf.Failed != 0 {
		t.Fatalf("manifest counts = %d ok / %d failed, want 2/0", mf.Succeeded, mf.Failed)
	}
	if mf.Root != root {
		t.Fatalf("manifest root = %q", mf.Root)
	}

	for _, j := range mf.Jobs {
		data, err := os.ReadFile(j.Output)
		if err != nil {
			t.Fatalf("output for job %d: %v", j.ID, err)
		}
		if string(data) != "encoded-gpu" {
			t.Fatalf("job %d output = %q, want gpu encode", j.ID, data)
		}
		logPath := joblog.ArtifactPath(logDir, j.TitleName, j.Label)
		if _, err := os.Stat(logPath); err != nil {
			t.Fatalf("job log for %s missing: %v", j.Label, err)
		}
	}

	// Cascade: the 720p source is the finished 1080p rendition.
	if got := mf.Jobs[1].Source; got != mf.Jobs[0].Output {
		t.Fatalf("720p source = %q, want %q", got, mf.Jobs[0].Output)
	}
	if mf.Jobs[0].TitlePath != src {
		t.Fatalf("job title path = %q", mf.Jobs[0].TitlePath)
	}

	// Plain mode never opens the dashboard app log.
	if _, err := os.Stat(filepath.Join(logDir, "run.log")); !os.IsNotExist(err) {
		t.Fatal("run.log should not exist in plain mode")
	}
}

func TestRunHarnessSecondInvocationSkips(t *testing.T) {
	installFakeTools(t)
	tmp := t.TempDir()
	root := filepath.Join(tmp, "library")
	writeLibraryTitle(t, root, "movie.mkv")
	logDir := filepath.Join(tmp, "logs")

	if err := Run([]string{"run", "--no-dashboard", "--log-dir", logDir, root}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	out, err := captureStdout(t, func() error {
		return Run([]string{"run", "--no-dashboard", "--log-dir", logDir, root})
	})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !strings.Contains(out, "0 to encode, 2 already optimized") {
		t.Fatalf("second run did not skip existing outputs:\n%s", out)
	}

	var mf model.RunManifest
	if err := runstore.ReadJSON(filepath.Join(logDir, "plan.json"), &mf); err != nil {
		t.Fatal(err)
	}
	if mf.Skipped != 2 {
		t.Fatalf("skipped = %d, want 2", mf.Skipped)
	}
}

func TestRunHarnessEmptyLibrary(t *testing.T) {
	installFakeTools(t)
	tmp := t.TempDir()
	root := filepath.Join(tmp, "library")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	logDir := filepath.Join(tmp, "logs")

	out, err := captureStdout(t, func() error {
		return Run([]string{"run", "--no-dashboard", "--log-dir", logDir, root})
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "nothing to optimize") {
		t.Fatalf("expected nothing-to-optimize notice:\n%s", out)
	}
}

func TestRunHarnessMissingBinariesIsUsageFailure(t *testing.T) {
	emptyBin := t.TempDir()
	t.Setenv("PATH", emptyBin)
	tmp := t.TempDir()
	root := filepath.Join(tmp, "library")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}

	err := Run([]string{"run", "--no-dashboard", "--log-dir", filepath.Join(tmp, "logs"), root})
	if err == nil {
		t.Fatal("expected an error without ffmpeg on PATH")
	}
	if ExitCode(err) != 2 {
		t.Fatalf("exit code = %d, want 2", ExitCode(err))
	}
}

func TestRunHarnessHeldLockIsUsageFailure(t *testing.T) {
	installFakeTools(t)
	tmp := t.TempDir()
	root := filepath.Join(tmp, "library")
	writeLibraryTitle(t, root, "movie.mkv")
	logDir := filepath.Join(tmp, "logs")
	if err := runstore.EnsureWritableDir(logDir); err != nil {
		t.Fatal(err)
	}

	lock, err := runstore.AcquireRunLock(logDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			t.Fatal(err)
		}
	}()

	runErr := Run([]string{"run", "--no-dashboard", "--log-dir", logDir, root})
	if runErr == nil {
		t.Fatal("expected the held lock to abort the run")
	}
	if ExitCode(runErr) != 2 {
		t.Fatalf("exit code = %d, want 2", ExitCode(runErr))
	}
}
