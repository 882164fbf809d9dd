// Package schedule drives periodic runs in daemon mode. Only the
// "@every <duration>" form is supported; overlap is prevented twice, once
// here and once by the exclusion lock itself.
package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Scheduler invokes one function on a fixed period.
type Scheduler struct {
	every time.Duration
	run   func(context.Context)

	running atomic.Bool
	quit    chan struct{}
	done    chan struct{}
}

func New(every time.Duration, run func(context.Context)) (*Scheduler, error) {
	if every <= 0 {
		return nil, errors.New("schedule period must be > 0")
	}
	if run == nil {
		return nil, errors.New("schedule requires a run function")
	}
	return &Scheduler{every: every, run: run}, nil
}

// Start launches the ticker loop. Call Stop to cancel.
func (s *Scheduler) Start() error {
	if s.quit != nil {
		return errors.New("scheduler already started")
	}
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop()
	return nil
}

func (s *Scheduler) loop() {
	defer close(s.done)
	t := time.NewTicker(s.every)
	defer t.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-t.C:
			// Skip the tick when the previous run is still active.
			if !s.running.CompareAndSwap(false, true) {
				continue
			}
			go func() {
				defer s.running.Store(false)
				s.run(context.Background())
			}()
		}
	}
}

// Stop cancels the ticker loop. Safe to call multiple times; a run already
// in flight is not interrupted.
func (s *Scheduler) Stop() {
	if s.quit == nil {
		return
	}
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
	<-s.done
}
