// Package ffmpeg wraps the ffmpeg/ffprobe binaries: probing, capability
// detection, encode argv construction and supervised execution with live
// progress parsing. The scheduler treats it as an opaque encode capability.
package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Subtitle codecs that survive an mp4 remux as mov_text. Bitmap subs are
// dropped rather than burned in.
var textSubCodecs = map[string]bool{
	"subrip":   true,
	"srt":      true,
	"ass":      true,
	"ssa":      true,
	"webvtt":   true,
	"mov_text": true,
	"text":     true,
}

// ProbeResult carries the stream facts the arg builder and the dashboard
// need: resolution, duration, whether an audio track exists, and which
// subtitle streams (by subtitle-relative index) are text-based.
type ProbeResult struct {
	Width          int
	Height         int
	Duration       float64
	HasAudio       bool
	TextSubIndexes []int
}

// Probe runs one ffprobe JSON call against path and parses the result.
func Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	return ParseProbeJSON(out)
}

// ParseProbeJSON converts raw ffprobe JSON output into a ProbeResult.
// Exported so tests run without a real ffprobe binary.
func ParseProbeJSON(data []byte) (*ProbeResult, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	res := &ProbeResult{}
	if raw.Format.Duration != "" {
		if d, err := strconv.ParseFloat(raw.Format.Duration, 64); err == nil {
			res.Duration = d
		}
	}

	subIdx := 0
	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			if res.Width == 0 && res.Height == 0 {
				res.Width = s.Width
				res.Height = s.Height
			}
		case "audio":
			res.HasAudio = true
		case "subtitle":
			if textSubCodecs[strings.ToLower(s.CodecName)] {
				res.TextSubIndexes = append(res.TextSubIndexes, subIdx)
			}
			subIdx++
		}
	}
	return res, nil
}

// ProbeSize is the cheap discovery-time probe: primary video stream
// dimensions only, one short ffprobe invocation per file.
func ProbeSize(ctx context.Context, path string) (int, int, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe size %q: %w", path, err)
	}
	fields := strings.SplitN(strings.TrimSpace(string(out)), "x", 2)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("ffprobe size %q: unexpected output %q", path, strings.TrimSpace(string(out)))
	}
	w, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe size %q: parse width: %w", path, err)
	}
	h, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe size %q: parse height: %w", path, err)
	}
	return w, h, nil
}

// ffprobe JSON wire types.

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}
