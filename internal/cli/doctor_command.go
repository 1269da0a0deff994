package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/victordavi-mos/OptimizePlex/internal/config"
	"github.com/victordavi-mos/OptimizePlex/internal/ffmpeg"
	"github.com/victordavi-mos/OptimizePlex/internal/runstore"
)

type doctorCheck struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Optional bool   `json:"optional,omitempty"`
	Message  string `json:"message"`
}

type doctorHost struct {
	CPUCores    int     `json:"cpu_cores"`
	CPUModel    string  `json:"cpu_model,omitempty"`
	MemoryTotal uint64  `json:"memory_total_bytes"`
	MemoryUsed  float64 `json:"memory_used_percent"`
}

type doctorReport struct {
	OK     bool          `json:"ok"`
	Checks []doctorCheck `json:"checks"`
	Host   doctorHost    `json:"host"`
}

// runDoctor reports whether this machine can run encodes. Missing binaries
// and an unwritable log dir fail the report; missing GPU capability only
// downgrades it, because every encode can run on the CPU.
func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configPath := fs.String("config", "", "explicit config file")
	logDir := fs.String("log-dir", "", "log directory to check (default from config)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return asUsage(err)
	}

	cfg, err := config.Load(strings.TrimSpace(*configPath))
	if err != nil {
		return asUsage(err)
	}
	dir := strings.TrimSpace(*logDir)
	if dir == "" {
		dir = cfg.LogDir
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	caps := ffmpeg.DetectCapabilities(ctx)
	checks := []doctorCheck{
		{
			Name:    "binary:ffmpeg",
			OK:      caps.FFmpegPath != "",
			Message: binaryMessage(caps.FFmpegPath, caps.FFmpegVersion, "ffmpeg"),
		},
		{
			Name:    "binary:ffprobe",
			OK:      caps.FFprobePath != "",
			Message: binaryMessage(caps.FFprobePath, caps.FFprobeVersion, "ffprobe"),
		},
		{
			Name:     "encoder:h264_nvenc",
			OK:       caps.NVENC,
			Optional: true,
			Message:  capabilityMessage(caps.NVENC, "hardware encode available", "not available, encodes fall back to libx264"),
		},
		{
			Name:     "filter:scale_cuda",
			OK:       caps.ScaleCUDA,
			Optional: true,
			Message:  capabilityMessage(caps.ScaleCUDA, "gpu scaling available", "not available, --gpu-decode will be ignored"),
		},
	}

	logCheck := doctorCheck{Name: "directory:log", OK: true, Message: dir + " is writable"}
	if err := runstore.EnsureWritableDir(dir); err != nil {
		logCheck.OK = false
		logCheck.Message = err.Error()
	}
	checks = append(checks, logCheck)

	report := doctorReport{OK: true, Checks: checks, Host: sampleDoctorHost(ctx)}
	for _, c := range checks {
		if !c.OK && !c.Optional {
			report.OK = false
		}
	}

	if *jsonOut {
		if err := printJSON(report); err != nil {
			return err
		}
		if !report.OK {
			return asUsage(errors.New("doctor checks failed"))
		}
		return nil
	}

	for _, c := range report.Checks {
		status := "ok"
		switch {
		case !c.OK && c.Optional:
			status = "warn"
		case !c.OK:
			status = "fail"
		}
		fmt.Printf("%s: %s (%s)\n", c.Name, status, c.Message)
	}
	if report.Host.CPUCores > 0 {
		fmt.Printf("host: %d cores", report.Host.CPUCores)
		if report.Host.CPUModel != "" {
			fmt.Printf(", %s", report.Host.CPUModel)
		}
		if report.Host.MemoryTotal > 0 {
			fmt.Printf(", %s memory (%.0f%% used)",
				formatBytesIEC(int64(report.Host.MemoryTotal)), report.Host.MemoryUsed)
		}
		fmt.Println()
	}
	if !report.OK {
		return asUsage(errors.New("doctor checks failed"))
	}
	fmt.Println("doctor: ready to encode")
	return nil
}

func binaryMessage(path, version, name string) string {
	if path == "" {
		return name + " not found on PATH"
	}
	if version != "" {
		return fmt.Sprintf("%s (%s)", path, version)
	}
	return path
}

func capabilityMessage(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

// sampleDoctorHost is best effort; a psutil failure leaves zero fields
// rather than failing the report.
func sampleDoctorHost(ctx context.Context) doctorHost {
	var h doctorHost
	if counts, err := cpu.CountsWithContext(ctx, true); err == nil {
		h.CPUCores = counts
	}
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		h.CPUModel = strings.TrimSpace(infos[0].ModelName)
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		h.MemoryTotal = vm.Total
		h.MemoryUsed = vm.UsedPercent
	}
	return h
}
