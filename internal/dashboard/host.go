package dashboard

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostSample is one best-effort reading of machine pressure for the header.
// Zero fields mean the probe failed; rendering omits nothing, it just shows
// zeros until the gauges warm up.
type HostSample struct {
	CPUPercent float64
	MemPercent float64
	Load1      float64
}

// SampleHost polls CPU, memory and load. The CPU gauge compares against the
// previous call, so the first sample reads 0.
func SampleHost(ctx context.Context) HostSample {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	var s HostSample
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if v, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemPercent = v.UsedPercent
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		s.Load1 = avg.Load1
	}
	return s
}
