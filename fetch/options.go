package fetch

import (
	"context"
	"time"
)

const (
	DefaultTTL         = 5 * time.Minute
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures a Fetcher.
type Options struct {
	TTL         time.Duration
	MaxAttempts int
	// BaseDelay is the unit of the linear backoff: the wait before attempt
	// n+1 is BaseDelay*n.
	BaseDelay time.Duration
	// Coalesce shares one upstream request between concurrent misses for the
	// same URL. Off by default.
	Coalesce bool
	Observer Observer
	Sleep    SleepFunc
}

type Option func(*Options)

func defaultOptions() Options {
	return Options{
		TTL:         DefaultTTL,
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Observer:    NoopObserver{},
		Sleep:       sleepContext,
	}
}

func WithTTL(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.TTL = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxAttempts = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(o *Options) {
		if d >= 0 {
			o.BaseDelay = d
		}
	}
}

func WithCoalescing(enabled bool) Option {
	return func(o *Options) {
		o.Coalesce = enabled
	}
}

func WithObserver(obs Observer) Option {
	return func(o *Options) {
		if obs != nil {
			o.Observer = obs
		}
	}
}

// WithSleep replaces the backoff wait, mainly so tests can record delays
// instead of sleeping through them.
func WithSleep(fn SleepFunc) Option {
	return func(o *Options) {
		if fn != nil {
			o.Sleep = fn
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
