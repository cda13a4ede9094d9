// Package reconnect defines the reconnection policy shared by the agent desk
// and the widget.
package reconnect

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is returned by Retry once the policy gives up.
var ErrExhausted = errors.New("reconnect: attempts exhausted")

// Policy describes how a dropped connection is re-established.
// The zero value never reconnects.
type Policy struct {
	Enabled         bool
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// Jitter is the randomization factor in [0,1] applied to every interval.
	Jitter float64
	// MaxAttempts bounds consecutive attempts; 0 means unlimited.
	MaxAttempts int
	// Fixed replaces the exponential schedule with a constant interval.
	Fixed time.Duration
}

// Default is exponential backoff from 1s to 30s with 50% jitter, 10 attempts.
func Default() Policy {
	return Policy{
		Enabled:         true,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
		Jitter:          0.5,
		MaxAttempts:     10,
	}
}

// Disabled never reconnects.
func Disabled() Policy {
	return Policy{}
}

// FixedInterval retries forever at a constant interval.
func FixedInterval(d time.Duration) Policy {
	return Policy{Enabled: true, Fixed: d}
}

// NewBackOff returns a fresh schedule. Each connection loss starts a new one.
func (p Policy) NewBackOff() backoff.BackOff {
	if !p.Enabled {
		return &backoff.StopBackOff{}
	}

	var b backoff.BackOff
	if p.Fixed > 0 {
		b = backoff.NewConstantBackOff(p.Fixed)
	} else {
		eb := backoff.NewExponentialBackOff()
		if p.InitialInterval > 0 {
			eb.InitialInterval = p.InitialInterval
		}
		if p.MaxInterval > 0 {
			eb.MaxInterval = p.MaxInterval
		}
		if p.Multiplier >= 1 {
			eb.Multiplier = p.Multiplier
		}
		eb.RandomizationFactor = p.Jitter
		eb.MaxElapsedTime = 0
		eb.Reset()
		b = eb
	}

	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts))
	}
	return b
}

// Retry runs attempt until it succeeds, the schedule stops, or ctx is done.
// onRetry, when set, is called before each wait with the attempt number and delay.
func (p Policy) Retry(ctx context.Context, attempt func(ctx context.Context) error, onRetry func(n int, delay time.Duration)) error {
	b := p.NewBackOff()
	n := 0
	for {
		n++
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return ErrExhausted
		}
		if onRetry != nil {
			onRetry(n, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
