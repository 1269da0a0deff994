package dashboard

import (
	"fmt"
	"math"
	"strconv"
)

// EstimateETA projects the remaining wall time from known source durations
// and the aggregate encode speed across busy workers. Empty when there is
// nothing to go on yet; jobs that never started contribute no known work, so
// early estimates skew low and firm up as the run progresses.
func EstimateETA(s Snapshot) string {
	var liveSeconds float64
	var speedSum float64
	for _, w := range s.Workers {
		if w.Idle {
			continue
		}
		liveSeconds += w.OutTime.Seconds()
		if w.Speed > 0 {
			speedSum += w.Speed
		}
	}
	remaining := s.TotalKnownSeconds - s.DoneKnownSeconds - liveSeconds
	if remaining <= 0 || speedSum <= 0 {
		return ""
	}
	return formatETASeconds(remaining / speedSum)
}

func formatETASeconds(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	secs := int64(math.Round(seconds))
	if secs < 60 {
		return "<1m"
	}
	minutes := secs / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	remMinutes := minutes % 60
	if hours < 24 {
		if remMinutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh %dm", hours, remMinutes)
	}
	days := hours / 24
	remHours := hours % 24
	if remHours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd %dh", days, remHours)
}

func formatBytesIEC(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for q := n / unit; q >= unit; q /= unit {
		div *= unit
		exp++
	}
	value := float64(n) / float64(div)
	suffix := "KMGTPE"[exp]
	return strconv.FormatFloat(value, 'f', 1, 64) + " " + string(suffix) + "iB"
}
