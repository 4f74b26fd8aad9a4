package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"echoping/internal/address"
	"echoping/internal/models"
)

var (
	targetA = address.Address{10, 0, 0, 1}
	targetB = address.Address{10, 0, 0, 2}
)

// fakeProber records calls and the number of probes running at once.
type fakeProber struct {
	measure func(ctx context.Context, target address.Address) models.ProbeResult

	mu          sync.Mutex
	calls       []address.Address
	inFlight    int
	maxInFlight int
	started     chan address.Address
}

func newFakeProber(measure func(ctx context.Context, target address.Address) models.ProbeResult) *fakeProber {
	return &fakeProber{measure: measure, started: make(chan address.Address, 100)}
}

func (p *fakeProber) Measure(ctx context.Context, target address.Address, _ time.Duration) models.ProbeResult {
	p.mu.Lock()
	p.calls = append(p.calls, target)
	p.inFlight++
	if p.inFlight > p.maxInFlight {
		p.maxInFlight = p.inFlight
	}
	p.mu.Unlock()

	select {
	case p.started <- target:
	default:
	}

	defer func() {
		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}()
	return p.measure(ctx, target)
}

func (p *fakeProber) max() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxInFlight
}

func sleeping(d time.Duration) func(context.Context, address.Address) models.ProbeResult {
	return func(ctx context.Context, _ address.Address) models.ProbeResult {
		select {
		case <-time.After(d):
			return models.Success(d)
		case <-ctx.Done():
			return models.Unreachable
		}
	}
}

// blocking never completes until its context is cancelled.
func blocking(ctx context.Context, _ address.Address) models.ProbeResult {
	<-ctx.Done()
	return models.Unreachable
}

func receive(t *testing.T, s *Scheduler, within time.Duration) models.Result {
	t.Helper()
	select {
	case r := <-s.Results():
		return r
	case <-time.After(within):
		t.Fatalf("no result within %v", within)
		return models.Result{}
	}
}

func expectSilence(t *testing.T, s *Scheduler, d time.Duration) {
	t.Helper()
	select {
	case r := <-s.Results():
		t.Fatalf("unexpected result %+v", r)
	case <-time.After(d):
	}
}

func TestSchedulerIdleWithoutTarget(t *testing.T) {
	p := newFakeProber(sleeping(0))
	s := NewScheduler(p, 20*time.Millisecond, time.Second)
	defer s.Close()

	s.Start()
	expectSilence(t, s, 100*time.Millisecond)
	if s.Active() {
		t.Errorf("Active without target")
	}

	s.SetTarget(targetA)
	r := receive(t, s, time.Second)
	if r.Target != targetA || r.Seq != 1 {
		t.Errorf("first result = %+v", r)
	}
}

func TestSchedulerIdleWithoutObserver(t *testing.T) {
	p := newFakeProber(sleeping(0))
	s := NewScheduler(p, 20*time.Millisecond, time.Second)
	defer s.Close()

	s.SetTarget(targetA)
	expectSilence(t, s, 100*time.Millisecond)

	s.Start()
	if !s.Observing() {
		t.Errorf("Observing false after Start")
	}
	receive(t, s, time.Second)
}

func TestSchedulerIntervalFromProbeStart(t *testing.T) {
	interval := 150 * time.Millisecond
	p := newFakeProber(sleeping(60 * time.Millisecond))
	s := NewScheduler(p, interval, time.Second)
	defer s.Close()

	s.SetTarget(targetA)
	begin := time.Now()
	s.Start()

	first := receive(t, s, time.Second)
	if lag := first.StartedAt.Sub(begin.UTC()); lag > 50*time.Millisecond {
		t.Errorf("first probe started %v after Start, want immediately", lag)
	}

	prev := first
	for i := 0; i < 3; i++ {
		r := receive(t, s, time.Second)
		gap := r.StartedAt.Sub(prev.StartedAt)
		// Fixed delay after completion would give interval+60ms.
		if gap < interval-10*time.Millisecond || gap > interval+50*time.Millisecond {
			t.Errorf("gap between probe starts = %v, want about %v", gap, interval)
		}
		if r.Seq != prev.Seq+1 || r.Generation != prev.Generation {
			t.Errorf("result %+v does not follow %+v", r, prev)
		}
		prev = r
	}
}

func TestSchedulerOverrunningProbe(t *testing.T) {
	probeTime := 80 * time.Millisecond
	p := newFakeProber(sleeping(probeTime))
	s := NewScheduler(p, 20*time.Millisecond, time.Second)
	defer s.Close()

	s.SetTarget(targetA)
	s.Start()

	prev := receive(t, s, time.Second)
	for i := 0; i < 3; i++ {
		r := receive(t, s, time.Second)
		gap := r.StartedAt.Sub(prev.StartedAt)
		if gap < probeTime || gap > probeTime+60*time.Millisecond {
			t.Errorf("gap = %v, want next probe right after %v", gap, probeTime)
		}
		prev = r
	}
	if got := p.max(); got != 1 {
		t.Errorf("max probes in flight = %d, want 1", got)
	}
}

func TestSchedulerRetargetDeliversOnlyLast(t *testing.T) {
	last := address.Address{10, 0, 0, 99}
	p := newFakeProber(func(ctx context.Context, target address.Address) models.ProbeResult {
		if target != last {
			return blocking(ctx, target)
		}
		return models.Success(time.Millisecond)
	})
	s := NewScheduler(p, time.Hour, time.Second)
	defer s.Close()

	s.Start()
	for i := 1; i <= 10; i++ {
		s.SetTarget(address.Address{10, 0, 0, byte(i)})
	}
	s.SetTarget(last)

	r := receive(t, s, time.Second)
	if r.Target != last {
		t.Fatalf("delivered result for %v, want %v", r.Target, last)
	}
	if r.Seq != 1 {
		t.Errorf("Seq = %d, want 1", r.Seq)
	}
	expectSilence(t, s, 100*time.Millisecond)
	if got := p.max(); got != 1 {
		t.Errorf("max probes in flight = %d, want 1", got)
	}
}

func TestSchedulerRetargetRestartsImmediately(t *testing.T) {
	p := newFakeProber(sleeping(0))
	s := NewScheduler(p, time.Hour, time.Second)
	defer s.Close()

	s.SetTarget(targetA)
	s.Start()
	a := receive(t, s, time.Second)

	s.SetTarget(targetB)
	b := receive(t, s, time.Second)
	if b.Target != targetB {
		t.Errorf("target = %v, want %v", b.Target, targetB)
	}
	if b.Generation <= a.Generation || b.Seq != 1 {
		t.Errorf("retarget did not start a fresh period: %+v after %+v", b, a)
	}
}

func TestSchedulerStopDiscardsInFlight(t *testing.T) {
	release := make(chan struct{})
	p := newFakeProber(func(ctx context.Context, _ address.Address) models.ProbeResult {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return models.Success(time.Millisecond)
	})
	s := NewScheduler(p, time.Hour, time.Second)
	defer s.Close()

	s.SetTarget(targetA)
	s.Start()
	<-p.started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on the in-flight probe")
	}
	close(release)

	expectSilence(t, s, 100*time.Millisecond)
	if s.Active() || s.Observing() {
		t.Errorf("scheduler still active after Stop")
	}
}

func TestSchedulerResumeProbesFresh(t *testing.T) {
	p := newFakeProber(sleeping(0))
	s := NewScheduler(p, time.Hour, time.Second)
	defer s.Close()

	s.SetTarget(targetA)
	s.Start()
	first := receive(t, s, time.Second)
	s.Stop()

	s.Start()
	second := receive(t, s, time.Second)
	if second.Generation == first.Generation || second.Seq != 1 {
		t.Errorf("resume continued the old period: %+v after %+v", second, first)
	}
}

func TestSchedulerStartTwice(t *testing.T) {
	p := newFakeProber(sleeping(0))
	s := NewScheduler(p, time.Hour, time.Second)
	defer s.Close()

	s.SetTarget(targetA)
	s.Start()
	s.Start()
	r := receive(t, s, time.Second)
	if r.Generation != 1 {
		t.Errorf("second Start restarted the period: %+v", r)
	}
	expectSilence(t, s, 50*time.Millisecond)
}

func TestSchedulerClearTarget(t *testing.T) {
	p := newFakeProber(sleeping(0))
	s := NewScheduler(p, 10*time.Millisecond, time.Second)
	defer s.Close()

	s.SetTarget(targetA)
	s.Start()
	receive(t, s, time.Second)

	s.ClearTarget()
	if _, ok := s.Target(); ok {
		t.Errorf("Target still set")
	}
	expectSilence(t, s, 100*time.Millisecond)
}

func TestSchedulerClose(t *testing.T) {
	p := newFakeProber(sleeping(0))
	s := NewScheduler(p, 10*time.Millisecond, time.Second)

	s.Close()
	s.SetTarget(targetA)
	s.Start()
	expectSilence(t, s, 100*time.Millisecond)
	if got, ok := s.Target(); !ok || got != targetA {
		t.Errorf("Target() = %v %v", got, ok)
	}
}

func TestNewSchedulerDefaults(t *testing.T) {
	s := NewScheduler(newFakeProber(sleeping(0)), 0, -1)
	if s.interval != DefaultInterval || s.timeout != DefaultTimeout {
		t.Errorf("defaults = %v %v", s.interval, s.timeout)
	}
}
