package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"echoping/internal/address"
	"echoping/internal/models"
)

const (
	// DefaultInterval separates the starts of consecutive probes.
	DefaultInterval = 5 * time.Second
	// DefaultTimeout bounds the wait for a single reply.
	DefaultTimeout = 5 * time.Second
)

// Prober performs one round-trip measurement.
type Prober interface {
	Measure(ctx context.Context, target address.Address, timeout time.Duration) models.ProbeResult
}

// Scheduler repeats probes against the current target while someone is
// observing. Probes run one at a time on a background goroutine and their
// results are delivered on Results in issue order.
//
// Every change of target and every Stop ends the active period: the
// pending wait and the in-flight probe are cancelled and nothing measured
// in that period is delivered once the call returns.
type Scheduler struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	results  chan models.Result

	mu         sync.Mutex
	target     address.Address
	hasTarget  bool
	observing  bool
	generation uint64
	cancel     context.CancelFunc
	doneCh     chan struct{}
	closed     bool
}

// NewScheduler configures a scheduler. Non-positive interval or timeout
// fall back to the defaults.
func NewScheduler(prober Prober, interval, timeout time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Scheduler{
		prober:   prober,
		interval: interval,
		timeout:  timeout,
		results:  make(chan models.Result),
	}
}

// Results delivers one value per completed probe. It is never closed;
// a single consumer is expected to read it.
func (s *Scheduler) Results() <-chan models.Result {
	return s.results
}

// SetTarget points the scheduler at a new address. While observing, the
// current period is abandoned and a fresh probe starts immediately.
func (s *Scheduler) SetTarget(target address.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.target, s.hasTarget = target, true
	s.stopLocked()
	s.startLocked()
}

// ClearTarget removes the target and stops probing.
func (s *Scheduler) ClearTarget() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hasTarget = false
	s.stopLocked()
}

// Target returns the current target, if any.
func (s *Scheduler) Target() (address.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target, s.hasTarget
}

// Start marks the scheduler as observed. Probing begins at once when a
// target is set. Calling Start while already observing is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.observing {
		return
	}
	s.observing = true
	s.startLocked()
}

// Stop ends observation. Any pending probe is cancelled and its result
// discarded. Calling Start later begins with a fresh probe.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observing = false
	s.stopLocked()
}

// Observing reports whether Start is in effect.
func (s *Scheduler) Observing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observing
}

// Active reports whether probes are currently being issued.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Close stops the scheduler for good. Later Start and SetTarget calls
// only record state.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.stopLocked()
}

func (s *Scheduler) startLocked() {
	if s.closed || !s.observing || !s.hasTarget || s.cancel != nil {
		return
	}
	s.generation++
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.doneCh = make(chan struct{})

	log.Printf("probing %s every %s (period %d)", s.target, s.interval, s.generation)
	go s.run(ctx, s.target, s.generation, s.doneCh)
}

// stopLocked cancels the active period and waits for its goroutine. The
// goroutine never takes s.mu, so waiting here cannot deadlock.
func (s *Scheduler) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.doneCh
	s.cancel = nil
	s.doneCh = nil
	log.Printf("probing stopped (period %d)", s.generation)
}

func (s *Scheduler) run(ctx context.Context, target address.Address, generation uint64, doneCh chan struct{}) {
	defer close(doneCh)

	timer := time.NewTimer(0)
	defer timer.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		started := time.Now()
		outcome := s.prober.Measure(ctx, target, s.timeout)
		if ctx.Err() != nil {
			return
		}

		seq++
		result := models.Result{
			Target:     target,
			Outcome:    outcome,
			StartedAt:  started.UTC(),
			Generation: generation,
			Seq:        seq,
		}
		select {
		case s.results <- result:
		case <-ctx.Done():
			return
		}

		// Fixed delay measured from the start of the probe; a probe that
		// overran the interval is followed immediately.
		wait := s.interval - time.Since(started)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}
