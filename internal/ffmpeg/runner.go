package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProgressEvent is one parsed `-progress pipe:1` record. Values are the
// latest ffmpeg reported; missing keys stay at their zero value.
type ProgressEvent struct {
	OutTime   time.Duration
	FPS       float64
	Speed     float64
	TotalSize int64
	Done      bool
}

// EncodeResult reports what happened to one invocation. OutputBytes is the
// on-disk size of the output after exit (0 when the file is missing).
type EncodeResult struct {
	ExitCode    int
	OutputBytes int64
	StderrTail  []string
}

// RunOptions wires one invocation to its observers. Callbacks run on the
// runner's reader goroutines and must return quickly; they are never called
// after Run returns.
type RunOptions struct {
	Args       []string
	OutputPath string
	Progress   func(ProgressEvent)
	StderrLine func(line string)
}

const stderrTailLines = 3

// Run executes ffmpeg and supervises it until exit. A non-zero exit status
// is a normal result, not an error; errors mean the process could not be
// run at all or the context was cancelled (in which case ffmpeg has been
// killed).
func Run(ctx context.Context, opts RunOptions) (EncodeResult, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", opts.Args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return EncodeResult{}, fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return EncodeResult{}, fmt.Errorf("setup stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return EncodeResult{}, fmt.Errorf("start ffmpeg: %w", err)
	}

	var (
		mu   sync.Mutex
		tail []string
		wg   sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		readProgress(stdoutPipe, opts.Progress)
	}()
	go func() {
		defer wg.Done()
		scanner := newLineScanner(stderrPipe)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			mu.Lock()
			tail = append(tail, line)
			if len(tail) > stderrTailLines {
				tail = tail[1:]
			}
			mu.Unlock()
			if opts.StderrLine != nil {
				opts.StderrLine(line)
			}
		}
	}()
	wg.Wait()

	waitErr := cmd.Wait()

	res := EncodeResult{StderrTail: tail}
	if opts.OutputPath != "" {
		if info, statErr := os.Stat(opts.OutputPath); statErr == nil {
			res.OutputBytes = info.Size()
		}
	}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("ffmpeg: %w", waitErr)
	}
	return res, nil
}

// readProgress consumes the key=value records ffmpeg writes to stdout under
// `-progress pipe:1` and emits one event per record boundary (the progress=
// line).
func readProgress(r io.Reader, emit func(ProgressEvent)) {
	scanner := newLineScanner(r)
	var ev ProgressEvent
	var outTimeUS int64
	haveOutTime := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		switch k {
		case "out_time":
			if d, err := parseFFmpegClock(v); err == nil {
				ev.OutTime = d
				haveOutTime = true
			}
		case "out_time_ms":
			// despite the name this key carries microseconds
			if us, err := strconv.ParseInt(v, 10, 64); err == nil {
				outTimeUS = us
			}
		case "fps":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				ev.FPS = f
			}
		case "speed":
			if f, err := strconv.ParseFloat(strings.TrimSuffix(v, "x"), 64); err == nil {
				ev.Speed = f
			}
		case "total_size":
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				ev.TotalSize = n
			}
		case "progress":
			if !haveOutTime && outTimeUS > 0 {
				ev.OutTime = time.Duration(outTimeUS) * time.Microsecond
			}
			ev.Done = v == "end"
			if emit != nil {
				emit(ev)
			}
			haveOutTime = false
		}
	}
}

// parseFFmpegClock parses ffmpeg's HH:MM:SS.micro out_time stamps.
func parseFFmpegClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	main, frac, _ := strings.Cut(s, ".")
	parts := strings.Split(main, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("unexpected clock %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	sec, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, err
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
	if frac != "" {
		// pad/truncate to microseconds
		for len(frac) < 6 {
			frac += "0"
		}
		if us, err := strconv.Atoi(frac[:6]); err == nil {
			d += time.Duration(us) * time.Microsecond
		}
	}
	if neg {
		d = -d
	}
	return d, nil
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	scanner.Split(splitByNewlineOrCR)
	return scanner
}

// ffmpeg rewrites its status line with bare carriage returns, so both CR and
// LF terminate a token.
func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
