package ffmpeg

import (
	"strings"
	"testing"

	"github.com/victordavi-mos/OptimizePlex/internal/model"
)

func rendition(t *testing.T, name string) model.RenditionSpec {
	t.Helper()
	r, ok := model.RenditionByName(name)
	if !ok {
		t.Fatalf("unknown rendition %q", name)
	}
	return r
}

func TestBuildEncodeArgsGPU(t *testing.T) {
	args := BuildEncodeArgs(EncodeSpec{
		Source:        "/in/movie.mkv",
		Output:        "/in/Plex Versions/movie (Optimized-1080p).mp4",
		Rendition:     rendition(t, model.Rendition1080p),
		Strategy:      model.StrategyGPU,
		DecodeThreads: 5,
		FilterThreads: 5,
		Probe:         &ProbeResult{HasAudio: true, TextSubIndexes: []int{0, 2}},
	})
	line := strings.Join(args, " ")

	for _, want := range []string{
		"-y -hide_banner -loglevel error -nostats -progress pipe:1",
		"-filter_threads 5 -filter_complex_threads 5",
		"-threads 5 -i /in/movie.mkv",
		"-vf scale=1920:1080:force_original_aspect_ratio=decrease:force_divisible_by=2,setsar=1",
		"-c:v h264_nvenc -preset p5 -rc:v vbr_hq -cq:v 19 -b:v 0",
		"-profile:v high -level:v 4.1 -pix_fmt yuv420p",
		"-map 0:a:0 -c:a:0 aac -b:a:0 192k -ac:a:0 2",
		"-map 0:s:0? -c:s:0 mov_text",
		"-map 0:s:2? -c:s:1 mov_text",
		"-f mp4 -movflags +faststart",
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("argv missing %q:\n%s", want, line)
		}
	}
	if strings.Contains(line, "-hwaccel") {
		t.Fatalf("unexpected hwaccel flags without HWDecode:\n%s", line)
	}
	if args[len(args)-1] != "/in/Plex Versions/movie (Optimized-1080p).mp4" {
		t.Fatalf("output path must be the final argument, got %q", args[len(args)-1])
	}
}

func TestBuildEncodeArgsGPUHardwareDecode(t *testing.T) {
	args := BuildEncodeArgs(EncodeSpec{
		Source:        "/in/movie.mkv",
		Output:        "/out.mp4",
		Rendition:     rendition(t, model.Rendition720p),
		Strategy:      model.StrategyGPU,
		DecodeThreads: 5,
		FilterThreads: 5,
		HWDecode:      true,
		Probe:         &ProbeResult{},
	})
	line := strings.Join(args, " ")

	if !strings.Contains(line, "-hwaccel cuda -hwaccel_output_format cuda") {
		t.Fatalf("missing cuda decode flags:\n%s", line)
	}
	if !strings.Contains(line, "-vf scale_cuda=1280:720:force_original_aspect_ratio=decrease") {
		t.Fatalf("missing scale_cuda chain:\n%s", line)
	}
	// with frames on the GPU, CPU thread budgets must not be emitted
	if strings.Contains(line, "-threads") || strings.Contains(line, "-filter_threads") {
		t.Fatalf("thread flags leaked into hardware decode path:\n%s", line)
	}
	if strings.Contains(line, "setsar") {
		t.Fatalf("setsar does not apply to the cuda chain:\n%s", line)
	}
}

func TestBuildEncodeArgsCPU(t *testing.T) {
	args := BuildEncodeArgs(EncodeSpec{
		Source:        "/in/movie.mkv",
		Output:        "/out.mp4",
		Rendition:     rendition(t, model.Rendition720p),
		Strategy:      model.StrategyCPU,
		DecodeThreads: 5,
		Probe:         &ProbeResult{HasAudio: true},
	})
	line := strings.Join(args, " ")

	for _, want := range []string{
		"-threads 5 -i /in/movie.mkv",
		"-c:v libx264 -preset slow",
		"-maxrate 4M -bufsize 8M",
		"-crf 21",
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("argv missing %q:\n%s", want, line)
		}
	}
	if strings.Contains(line, "h264_nvenc") || strings.Contains(line, "-cq:v") {
		t.Fatalf("nvenc options leaked into CPU argv:\n%s", line)
	}
}

func TestBuildEncodeArgsNoAudioNoSubs(t *testing.T) {
	args := BuildEncodeArgs(EncodeSpec{
		Source:    "/in/clip.mkv",
		Output:    "/out.mp4",
		Rendition: rendition(t, model.Rendition1080p),
		Strategy:  model.StrategyCPU,
		Probe:     &ProbeResult{},
	})
	line := strings.Join(args, " ")
	if strings.Contains(line, "0:a:0") || strings.Contains(line, "mov_text") {
		t.Fatalf("stream mappings emitted for absent streams:\n%s", line)
	}
	if strings.Contains(line, "-threads") {
		t.Fatalf("thread flag emitted with zero budget:\n%s", line)
	}
}

func TestClampCRF(t *testing.T) {
	cases := []struct{ q, want int }{
		{19, 19},
		{10, 16},
		{30, 24},
		{16, 16},
		{24, 24},
	}
	for _, tc := range cases {
		if got := clampCRF(tc.q); got != tc.want {
			t.Fatalf("clampCRF(%d) = %d, want %d", tc.q, got, tc.want)
		}
	}
}

func TestCommandLineQuoting(t *testing.T) {
	got := CommandLine([]string{"-i", "/library/My Movie.mkv", "-vf", "scale=1920:1080"})
	want := `ffmpeg -i '/library/My Movie.mkv' -vf scale=1920:1080`
	if got != want {
		t.Fatalf("CommandLine = %q, want %q", got, want)
	}
}
