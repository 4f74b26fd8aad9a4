package models

import (
	"encoding/json"
	"fmt"
	"time"

	"echoping/internal/address"
)

// ProbeResult is the outcome of one probe: either a measured round trip
// or Unreachable. Every failure cause collapses into Unreachable.
type ProbeResult struct {
	reachable bool
	roundTrip time.Duration
}

// Unreachable is the single failure outcome.
var Unreachable = ProbeResult{}

// Success wraps a measured round trip. Negative durations are clamped to zero.
func Success(roundTrip time.Duration) ProbeResult {
	if roundTrip < 0 {
		roundTrip = 0
	}
	return ProbeResult{reachable: true, roundTrip: roundTrip}
}

// Reachable reports whether the probe got a reply.
func (r ProbeResult) Reachable() bool { return r.reachable }

// RoundTrip returns the measured duration, zero when unreachable.
func (r ProbeResult) RoundTrip() time.Duration { return r.roundTrip }

// String renders the result the way it is shown to users.
func (r ProbeResult) String() string {
	if !r.reachable {
		return "Unreachable"
	}
	return fmt.Sprintf("%.2f ms", float64(r.roundTrip)*0.000001)
}

type probeResultJSON struct {
	Status      string   `json:"status"`
	RoundTripNs *int64   `json:"round_trip_ns,omitempty"`
	RoundTripMs *float64 `json:"round_trip_ms,omitempty"`
}

const (
	statusSuccess     = "success"
	statusUnreachable = "unreachable"
)

// MarshalJSON implements json.Marshaler.
func (r ProbeResult) MarshalJSON() ([]byte, error) {
	out := probeResultJSON{Status: statusUnreachable}
	if r.reachable {
		ns := int64(r.roundTrip)
		ms := float64(r.roundTrip) / float64(time.Millisecond)
		out = probeResultJSON{Status: statusSuccess, RoundTripNs: &ns, RoundTripMs: &ms}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ProbeResult) UnmarshalJSON(data []byte) error {
	var in probeResultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Status {
	case statusSuccess:
		if in.RoundTripNs == nil {
			return fmt.Errorf("success result without round_trip_ns")
		}
		*r = Success(time.Duration(*in.RoundTripNs))
	case statusUnreachable:
		*r = Unreachable
	default:
		return fmt.Errorf("unknown probe status %q", in.Status)
	}
	return nil
}

// Result is a probe outcome delivered by the scheduler.
type Result struct {
	Target     address.Address `json:"target"`
	Outcome    ProbeResult     `json:"outcome"`
	StartedAt  time.Time       `json:"started_at"`
	Generation uint64          `json:"generation"`
	Seq        uint64          `json:"seq"`
}
