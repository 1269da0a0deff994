package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/victordavi-mos/OptimizePlex/internal/model"
)

// Plex-friendly codec fixtures shared by both strategies.
const (
	videoCodecGPU = "h264_nvenc"
	videoCodecCPU = "libx264"
	videoProfile  = "high"
	videoLevel    = "4.1"
	audioCodec    = "aac"
	audioBitrate  = "192k"
	audioChannels = 2
)

// EncodeSpec describes one encode invocation: where to read and write, which
// rendition to hit, which strategy runs it, and the thread/filter budget the
// scheduler allotted.
type EncodeSpec struct {
	Source        string
	Output        string
	Rendition     model.RenditionSpec
	Strategy      string
	DecodeThreads int
	FilterThreads int
	HWDecode      bool
	Probe         *ProbeResult
}

// BuildEncodeArgs assembles the deterministic ffmpeg argv (without the
// binary name) for one encode. GPU strategy targets constant quality on
// h264_nvenc; CPU strategy targets rate-capped libx264. Thread flags are
// emitted only when a budget is set, and never alongside hardware
// decode+scale, which keeps the frames on the GPU end to end.
func BuildEncodeArgs(spec EncodeSpec) []string {
	gpu := spec.Strategy == model.StrategyGPU
	hw := gpu && spec.HWDecode

	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-nostats", "-progress", "pipe:1"}

	if gpu {
		if spec.FilterThreads > 0 && !hw {
			ft := strconv.Itoa(spec.FilterThreads)
			args = append(args, "-filter_threads", ft, "-filter_complex_threads", ft)
		}
		if hw {
			args = append(args, "-hwaccel", "cuda", "-hwaccel_output_format", "cuda")
		} else if spec.DecodeThreads > 0 {
			args = append(args, "-threads", strconv.Itoa(spec.DecodeThreads))
		}
	} else if spec.DecodeThreads > 0 {
		args = append(args, "-threads", strconv.Itoa(spec.DecodeThreads))
	}

	args = append(args, "-i", spec.Source)

	var vf string
	if hw {
		vf = fmt.Sprintf("scale_cuda=%d:%d:force_original_aspect_ratio=decrease",
			spec.Rendition.MaxWidth, spec.Rendition.MaxHeight)
	} else {
		vf = fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease:force_divisible_by=2,setsar=1",
			spec.Rendition.MaxWidth, spec.Rendition.MaxHeight)
	}
	args = append(args, "-map", "0:v:0", "-vf", vf)

	if gpu {
		args = append(args,
			"-c:v", videoCodecGPU,
			"-preset", "p5",
			"-rc:v", "vbr_hq",
			"-cq:v", strconv.Itoa(spec.Rendition.Quality),
			"-b:v", "0",
			"-profile:v", videoProfile,
			"-level:v", videoLevel,
			"-pix_fmt", "yuv420p",
		)
	} else {
		args = append(args,
			"-c:v", videoCodecCPU,
			"-preset", "slow",
			"-profile:v", videoProfile,
			"-level:v", videoLevel,
			"-maxrate", spec.Rendition.MaxRate,
			"-bufsize", spec.Rendition.BufSize,
			"-crf", strconv.Itoa(clampCRF(spec.Rendition.Quality)),
			"-pix_fmt", "yuv420p",
		)
	}

	if spec.Probe != nil && spec.Probe.HasAudio {
		args = append(args,
			"-map", "0:a:0",
			"-c:a:0", audioCodec,
			"-b:a:0", audioBitrate,
			"-ac:a:0", strconv.Itoa(audioChannels),
		)
	}
	if spec.Probe != nil {
		for outIdx, subIdx := range spec.Probe.TextSubIndexes {
			args = append(args,
				"-map", fmt.Sprintf("0:s:%d?", subIdx),
				fmt.Sprintf("-c:s:%d", outIdx), "mov_text",
			)
		}
	}

	args = append(args, "-f", model.TargetContainer, "-movflags", "+faststart", spec.Output)
	return args
}

// libx264 wants CRF in a sane band even when the nvenc CQ target sits
// outside it.
func clampCRF(q int) int {
	if q < 16 {
		return 16
	}
	if q > 24 {
		return 24
	}
	return q
}

// CommandLine renders an argv as a copy-pasteable shell line for job logs.
func CommandLine(args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, "ffmpeg")
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$&|;<>()*?[]#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
