package metrics

import (
	"math"
	"time"

	"echoping/internal/models"
)

// Summary aggregates reachability and latency over a set of results.
type Summary struct {
	Target           string  `json:"target,omitempty"`
	TotalProbes      int     `json:"total_probes"`
	Reachable        int     `json:"reachable"`
	Unreachable      int     `json:"unreachable"`
	ReachablePercent float64 `json:"reachable_percent"`
	MinMs            float64 `json:"min_ms,omitempty"`
	AvgMs            float64 `json:"avg_ms,omitempty"`
	MaxMs            float64 `json:"max_ms,omitempty"`
	LastOutcome      string  `json:"last_outcome,omitempty"`
	LastUpdated      string  `json:"last_updated,omitempty"`
}

// Summarize computes a Summary over results. Only results for the target
// of the most recent result are counted, so a change of address starts a
// new summary.
func Summarize(results []models.Result) Summary {
	if len(results) == 0 {
		return Summary{}
	}
	last := results[len(results)-1]

	var (
		sum      time.Duration
		min, max time.Duration
		out      = Summary{Target: last.Target.String()}
	)
	for _, r := range results {
		if r.Target != last.Target {
			continue
		}
		out.TotalProbes++
		if !r.Outcome.Reachable() {
			out.Unreachable++
			continue
		}
		rtt := r.Outcome.RoundTrip()
		if out.Reachable == 0 || rtt < min {
			min = rtt
		}
		if rtt > max {
			max = rtt
		}
		sum += rtt
		out.Reachable++
	}

	out.ReachablePercent = round2(float64(out.Reachable) / float64(out.TotalProbes) * 100)
	if out.Reachable > 0 {
		out.MinMs = millis(min)
		out.MaxMs = millis(max)
		out.AvgMs = millis(sum / time.Duration(out.Reachable))
	}
	out.LastOutcome = last.Outcome.String()
	out.LastUpdated = last.StartedAt.UTC().Format(time.RFC3339)
	return out
}

func millis(d time.Duration) float64 {
	return round2(float64(d) / float64(time.Millisecond))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
