package ffmpeg

import (
	"context"
	"os/exec"
	"strings"
)

// Capabilities reports what the local ffmpeg install can do. Empty binary
// paths mean the tool was not found on PATH.
type Capabilities struct {
	FFmpegPath     string
	FFmpegVersion  string
	FFprobePath    string
	FFprobeVersion string
	NVENC          bool
	ScaleCUDA      bool
}

// HasBinaries reports whether both ffmpeg and ffprobe were found.
func (c Capabilities) HasBinaries() bool {
	return c.FFmpegPath != "" && c.FFprobePath != ""
}

// DetectCapabilities probes PATH and the encoder/filter tables. Best effort:
// a missing binary yields empty fields rather than an error so callers can
// report every gap at once.
func DetectCapabilities(ctx context.Context) Capabilities {
	caps := Capabilities{}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		caps.FFmpegPath = path
		caps.FFmpegVersion = toolVersion(ctx, "ffmpeg")
	}
	if path, err := exec.LookPath("ffprobe"); err == nil {
		caps.FFprobePath = path
		caps.FFprobeVersion = toolVersion(ctx, "ffprobe")
	}
	if caps.FFmpegPath == "" {
		return caps
	}
	caps.NVENC = hasEncoder(ctx, "h264_nvenc")
	caps.ScaleCUDA = hasFilter(ctx, "scale_cuda")
	return caps
}

// toolVersion extracts the release from the "<tool> version X" banner line.
func toolVersion(ctx context.Context, bin string) string {
	out, err := exec.CommandContext(ctx, bin, "-version").Output()
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(string(out), "\n")
	fields := strings.Fields(line)
	if len(fields) >= 3 && fields[1] == "version" {
		return fields[2]
	}
	return strings.TrimSpace(line)
}

func hasEncoder(ctx context.Context, name string) bool {
	out, err := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-encoders").Output()
	if err != nil {
		return false
	}
	return scanTable(string(out), name)
}

func hasFilter(ctx context.Context, name string) bool {
	out, err := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-filters").Output()
	if err != nil {
		return false
	}
	return scanTable(string(out), name)
}

// scanTable matches a whole word in ffmpeg's encoder/filter listings, so
// "scale" never matches "scale_cuda" and vice versa.
func scanTable(out, name string) bool {
	for _, line := range strings.Split(out, "\n") {
		for _, field := range strings.Fields(line) {
			if field == name {
				return true
			}
		}
	}
	return false
}
