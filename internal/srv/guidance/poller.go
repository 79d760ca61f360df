package guidance

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

type PollerOptions struct {
	Interval         time.Duration
	Timeout          time.Duration
	BackoffMax       time.Duration
	FailureThreshold int64
}

// Poller runs the guidance source on its own goroutine and publishes the
// latest State for the render tick.
type Poller struct {
	source  Source
	options PollerOptions
	backoff *Backoff

	// last solved slew, only touched by PollOnce
	lastSlew *State

	current atomic.Pointer[State]
}

func NewPoller(source Source, options PollerOptions) *Poller {
	if options.FailureThreshold < 1 {
		options.FailureThreshold = 1
	}
	poller := &Poller{
		source:  source,
		options: options,
		backoff: NewBackoff(options.Interval, options.BackoffMax),
	}
	initial := Disconnected()
	poller.current.Store(&initial)
	return poller
}

// State returns the latest published guidance without blocking
func (p *Poller) State() State {
	return *p.current.Load()
}

// Run polls until ctx is cancelled
func (p *Poller) Run(ctx context.Context) error {
	logrus.Infof("Start guidance poller")
	defer logrus.Infof("Stop guidance poller")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			timer.Reset(p.PollOnce(ctx))
		}
	}
}

// PollOnce performs one bounded poll, publishes the outcome and returns the
// delay before the next poll.
func (p *Poller) PollOnce(ctx context.Context) time.Duration {
	pollCtx, cancel := context.WithTimeout(ctx, p.options.Timeout)
	state, err := p.source.Poll(pollCtx)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			// shutting down, not a link failure
			return p.backoff.Interval()
		}
		p.recordFailure(err)
	} else {
		p.recordSuccess(state)
	}
	return p.backoff.Interval()
}

func (p *Poller) recordSuccess(state State) {
	previous := p.current.Load()
	if !previous.Connected {
		logrus.Infof("Guidance link up (%s)", state.Status)
	}
	p.backoff.Success()

	switch {
	case state.Status == Solved:
		slew := state
		p.lastSlew = &slew
	case state.SlewLost && p.lastSlew != nil:
		retained := *p.lastSlew
		retained.Mode = state.Mode
		retained.UpdatedAt = state.UpdatedAt
		retained.Retained = true
		state = retained
	default:
		p.lastSlew = nil
	}

	state.Connected = true
	state.Stale = false
	state.Failures = 0
	p.current.Store(&state)
}

func (p *Poller) recordFailure(err error) {
	p.backoff.Failure()

	next := *p.current.Load()
	next.Stale = true
	next.Failures = p.backoff.Failures()

	var pollErr *PollError
	if errors.As(err, &pollErr) && pollErr.Kind == DecodeError {
		logrus.Warnf("Guidance poll %d failed: %v", next.Failures, err)
	} else {
		logrus.Debugf("Guidance poll %d failed: %v", next.Failures, err)
	}

	if next.Failures >= p.options.FailureThreshold {
		if next.Connected {
			logrus.Warnf("Guidance link down after %d failed polls, last guidance %v ago: %v", next.Failures, next.Age(time.Now()).Round(time.Millisecond), err)
		}
		p.lastSlew = nil
		next.Connected = false
		next.Retained = false
		next.Status = NoSolve
		next.Mode = UnknownMode
		next.Offset = Vector{}
		next.Confidence = 0
	}
	p.current.Store(&next)
}
