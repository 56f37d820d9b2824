// Package pacer makes pacing and retrying API calls easy
//
// Calls are spaced by a minimum interval and retried a bounded number
// of times with a fixed backoff. There is no connection limiting.
package pacer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Paced is a function which is called by Call.  It should return a
// boolean, true if it would like to be retried, and an error.
type Paced func() (bool, error)

// Pacer state
type Pacer struct {
	mu         sync.Mutex
	retries    int           // max number of tries for Call
	retrySleep time.Duration // fixed backoff between tries
	limiter    *rate.Limiter // spaces out calls, nil for no spacing
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option can be used in New to configure the Pacer.
type Option func(*Pacer)

// RetriesOption sets the number of tries, including the first.
func RetriesOption(retries int) Option {
	return func(p *Pacer) {
		if retries < 1 {
			retries = 1
		}
		p.retries = retries
	}
}

// RetrySleepOption sets the fixed backoff between tries.
func RetrySleepOption(d time.Duration) Option {
	return func(p *Pacer) {
		p.retrySleep = d
	}
}

// MinSleepOption sets the minimum spacing between the start of two
// calls.
func MinSleepOption(d time.Duration) Option {
	return func(p *Pacer) {
		if d <= 0 {
			p.limiter = nil
			return
		}
		p.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// SleepOption replaces the function used to wait between retries.
// Used by tests to record backoffs without waiting.
func SleepOption(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pacer) {
		p.sleep = sleep
	}
}

// New returns a Pacer with sensible defaults
func New(options ...Option) *Pacer {
	p := &Pacer{
		retries:    3,
		retrySleep: 2 * time.Second,
		sleep:      Sleep,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Retries returns the number of tries Call makes
func (p *Pacer) Retries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retries
}

// beginCall waits for the pacing token
func (p *Pacer) beginCall(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// Call paces the remote operations and retries them while fn asks
// for it, up to the retry budget.
//
// The error from the last try is returned.
func (p *Pacer) Call(ctx context.Context, fn Paced) (err error) {
	var again bool
	retries := p.Retries()
	for try := 1; try <= retries; try++ {
		if waitErr := p.beginCall(ctx); waitErr != nil {
			if err == nil {
				err = waitErr
			}
			return err
		}
		again, err = fn()
		if !again || try == retries {
			break
		}
		if sleepErr := p.sleep(ctx, p.retrySleep); sleepErr != nil {
			return err
		}
	}
	return err
}

// Sleep waits for d, returning early with the context error if ctx is
// done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
