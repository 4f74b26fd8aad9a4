package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"echoping/internal/address"
)

func TestProbeResultString(t *testing.T) {
	tests := []struct {
		in   ProbeResult
		want string
	}{
		{Unreachable, "Unreachable"},
		{Success(1234567 * time.Nanosecond), "1.23 ms"},
		{Success(0), "0.00 ms"},
		{Success(-time.Second), "0.00 ms"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestResultJSON(t *testing.T) {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	in := []Result{
		{Target: address.Address{10, 0, 0, 1}, Outcome: Success(2 * time.Millisecond), StartedAt: started, Generation: 3, Seq: 1},
		{Target: address.Address{10, 0, 0, 1}, Outcome: Unreachable, StartedAt: started, Generation: 3, Seq: 2},
	}

	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}

	var out []Result
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, out, cmp.AllowUnexported(ProbeResult{})); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestProbeResultUnmarshalRejects(t *testing.T) {
	for _, raw := range []string{`{"status":"lost"}`, `{"status":"success"}`} {
		var r ProbeResult
		if err := json.Unmarshal([]byte(raw), &r); err == nil {
			t.Errorf("Unmarshal(%s) accepted", raw)
		}
	}
}
