// Package scheduler drives sampling rounds on a fixed start-to-start cadence
// and dispatches each batch to the registered sinks.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/fridge-sensor/internal/gpio"
	"github.com/sweeney/fridge-sensor/internal/logic"
)

// DefaultInterval is the sampling period.
const DefaultInterval = 10 * time.Second

// Sampler produces one batch per call.
// *sampler.Sampler satisfies this interface.
type Sampler interface {
	SampleBoth(ref, frz gpio.Line) logic.Batch
}

// Sink consumes a completed batch. Errors are logged by the scheduler and
// never stop the loop.
type Sink interface {
	Name() string
	Dispatch(b logic.Batch) error
}

// Observer is notified about round timing and sink failures.
type Observer interface {
	ObserveRound(elapsed time.Duration, overran bool)
	ObserveSinkError(sink string)
}

// Observers notifies each observer in order.
type Observers []Observer

// ObserveRound forwards round timing to every observer.
func (o Observers) ObserveRound(elapsed time.Duration, overran bool) {
	for _, obs := range o {
		obs.ObserveRound(elapsed, overran)
	}
}

// ObserveSinkError forwards a sink failure to every observer.
func (o Observers) ObserveSinkError(sink string) {
	for _, obs := range o {
		obs.ObserveSinkError(sink)
	}
}

// Config holds everything the scheduler needs.
type Config struct {
	Interval     time.Duration
	Sampler      Sampler
	Refrigerator gpio.Line
	Freezer      gpio.Line
	Sinks        []Sink
	Observer     Observer // optional

	// Now and Sleep are injectable for tests. Sleep must return early with
	// ctx.Err() when ctx is cancelled.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Scheduler owns the two sensor lines and the sink list for its lifetime.
type Scheduler struct {
	cfg Config
}

// New creates a Scheduler, filling in defaults.
func New(cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	return &Scheduler{cfg: cfg}
}

// Run loops Sampling → Dispatching → Sleeping until ctx is cancelled.
// Cancellation is only observed between rounds. Returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		start := s.cfg.Now()
		s.RunOnce()
		elapsed := s.cfg.Now().Sub(start)

		wait, overran := Remaining(s.cfg.Interval, elapsed)
		if s.cfg.Observer != nil {
			s.cfg.Observer.ObserveRound(elapsed, overran)
		}
		if overran {
			log.Printf("scheduler: round overran: elapsed=%v interval=%v", elapsed, s.cfg.Interval)
			continue
		}
		if err := s.cfg.Sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

// RunOnce samples both channels and dispatches the batch to every sink.
func (s *Scheduler) RunOnce() logic.Batch {
	b := s.cfg.Sampler.SampleBoth(s.cfg.Refrigerator, s.cfg.Freezer)
	for _, r := range b.Results() {
		if r.Err != nil {
			log.Printf("%s: read failed: %v", r.Channel, r.Err)
		}
	}
	l1, l2 := logic.DisplayLines(b)
	log.Printf("sample: %s | %s", l1, l2)
	s.dispatch(b)
	return b
}

func (s *Scheduler) dispatch(b logic.Batch) {
	for _, sink := range s.cfg.Sinks {
		if err := safeDispatch(sink, b); err != nil {
			log.Printf("sink %s: %v", sink.Name(), err)
			if s.cfg.Observer != nil {
				s.cfg.Observer.ObserveSinkError(sink.Name())
			}
		}
	}
}

func safeDispatch(sink Sink, b logic.Batch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sink.Dispatch(b)
}

// Remaining returns how long to sleep so the next round starts one interval
// after this one started. If elapsed has reached the interval it returns
// (0, true): no sleep and no catch-up.
func Remaining(interval, elapsed time.Duration) (time.Duration, bool) {
	if elapsed >= interval {
		return 0, true
	}
	return interval - elapsed, false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
