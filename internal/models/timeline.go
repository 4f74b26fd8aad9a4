package models

import (
	"time"

	"echoping/internal/address"
)

// TimelinePoint is one bucket of a reachability timeline. Probes and
// Reachable count only results started inside the bucket.
type TimelinePoint struct {
	ClassName       string           `json:"className"`
	Label           string           `json:"label"`
	Start           time.Time        `json:"start"`
	End             time.Time        `json:"end"`
	Probes          int              `json:"probes"`
	Reachable       int              `json:"reachable"`
	MeanRoundTripMs float64          `json:"mean_round_trip_ms,omitempty"`
	Details         []TimelineDetail `json:"details,omitempty"`
}

// TimelineDetail is a probe listed under a bucket.
type TimelineDetail struct {
	Timestamp time.Time       `json:"timestamp"`
	Target    address.Address `json:"target"`
	Outcome   ProbeResult     `json:"outcome"`
}
