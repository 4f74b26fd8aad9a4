package history

import (
	"sort"
	"time"

	"echoping/internal/models"
)

const (
	// DefaultTimelinePoints controls how many buckets a timeline has.
	DefaultTimelinePoints = 60
	maxDetailsPerPoint    = 4
)

const (
	classSuccess = "state-success"
	classError   = "state-error"
	classMissing = "state-missing"
)

// BuildTimeline reduces probe results into points evenly spread between
// start and end. A bucket without probes inherits the previous outcome
// while it is within the usual probe spacing, otherwise it shows no data.
func BuildTimeline(results []models.Result, start, end time.Time, points int) []models.TimelinePoint {
	if points <= 0 {
		points = DefaultTimelinePoints
	}
	if !end.After(start) {
		end = start.Add(time.Minute)
	}

	samples := make([]models.Result, 0, len(results))
	for _, r := range results {
		if r.StartedAt.IsZero() {
			continue
		}
		samples = append(samples, r)
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].StartedAt.Before(samples[j].StartedAt)
	})

	bucketDuration := end.Sub(start) / time.Duration(points)
	if bucketDuration <= 0 {
		bucketDuration = time.Second
	}
	gapThreshold := deriveGap(samples)

	out := make([]models.TimelinePoint, 0, points)
	idx := 0
	var last models.Result
	var haveLast bool
	for idx < len(samples) && samples[idx].StartedAt.Before(start) {
		last, haveLast = samples[idx], true
		idx++
	}

	for i := 0; i < points; i++ {
		bucketStart := start.Add(time.Duration(i) * bucketDuration)
		bucketEnd := bucketStart.Add(bucketDuration)
		if i == points-1 {
			bucketEnd = end
		}
		point := models.TimelinePoint{
			ClassName: classMissing,
			Label:     "No data",
			Start:     bucketStart,
			End:       bucketEnd,
		}

		var bucket []models.Result
		for idx < len(samples) && samples[idx].StartedAt.Before(bucketEnd) {
			bucket = append(bucket, samples[idx])
			last, haveLast = samples[idx], true
			idx++
		}

		switch {
		case len(bucket) > 0:
			point.ClassName, point.Label = bucketClass(bucket)
			tally(&point, bucket)
			for _, r := range bucket {
				if len(point.Details) >= maxDetailsPerPoint {
					break
				}
				point.Details = append(point.Details, detail(r, r.StartedAt))
			}
		case haveLast && bucketStart.Sub(last.StartedAt) <= gapThreshold:
			point.ClassName, point.Label = bucketClass([]models.Result{last})
			point.Details = []models.TimelineDetail{detail(last, bucketStart)}
		}
		out = append(out, point)
	}
	return out
}

// bucketClass marks a bucket unavailable when any probe in it failed.
func bucketClass(bucket []models.Result) (className, label string) {
	for _, r := range bucket {
		if !r.Outcome.Reachable() {
			return classError, "Unreachable"
		}
	}
	return classSuccess, "Reachable"
}

func tally(point *models.TimelinePoint, bucket []models.Result) {
	var total time.Duration
	for _, r := range bucket {
		point.Probes++
		if r.Outcome.Reachable() {
			point.Reachable++
			total += r.Outcome.RoundTrip()
		}
	}
	if point.Reachable > 0 {
		mean := total / time.Duration(point.Reachable)
		point.MeanRoundTripMs = float64(mean) / float64(time.Millisecond)
	}
}

func detail(r models.Result, at time.Time) models.TimelineDetail {
	return models.TimelineDetail{Timestamp: at, Target: r.Target, Outcome: r.Outcome}
}

// deriveGap is twice the median probe spacing, clamped to sane bounds.
func deriveGap(samples []models.Result) time.Duration {
	const defaultGap = 15 * time.Second
	if len(samples) < 2 {
		return defaultGap
	}
	diffs := make([]time.Duration, 0, len(samples)-1)
	prev := samples[0].StartedAt
	for i := 1; i < len(samples); i++ {
		curr := samples[i].StartedAt
		if curr.After(prev) {
			diffs = append(diffs, curr.Sub(prev))
		}
		prev = curr
	}
	if len(diffs) == 0 {
		return defaultGap
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i] < diffs[j] })
	gap := diffs[len(diffs)/2] * 2
	if gap < time.Second {
		return time.Second
	}
	if gap > time.Hour {
		return time.Hour
	}
	return gap
}
