package semaphore

import (
	"time"

	"github.com/joeycumines/logiface"
)

// Infinite is the default acquire timeout. Any negative timeout waits
// indefinitely.
const Infinite time.Duration = -1

// semaphoreOptions holds configuration options for Semaphore creation.
type semaphoreOptions struct {
	logger *logiface.Logger[logiface.Event]
	name   string
}

// --- Semaphore Options ---

// Option configures a Semaphore instance.
type Option interface {
	applySemaphore(*semaphoreOptions) error
}

// semaphoreOptionImpl implements Option.
type semaphoreOptionImpl struct {
	applySemaphoreFunc func(*semaphoreOptions) error
}

func (o *semaphoreOptionImpl) applySemaphore(opts *semaphoreOptions) error {
	return o.applySemaphoreFunc(opts)
}

// WithLogger attaches a structured logger. Queueing, timeouts, cancellations
// and interruptions are logged at debug level; an overflowing Release is
// logged at error level before it panics. A nil logger disables logging,
// which is also the default.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &semaphoreOptionImpl{func(opts *semaphoreOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithName labels the semaphore. The name is attached to every log line, and
// shown by String.
func WithName(name string) Option {
	return &semaphoreOptionImpl{func(opts *semaphoreOptions) error {
		opts.name = name
		return nil
	}}
}

// resolveSemaphoreOptions applies Option instances to semaphoreOptions.
func resolveSemaphoreOptions(opts []Option) (*semaphoreOptions, error) {
	cfg := &semaphoreOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applySemaphore(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// acquireOptions holds the parameters of a single acquisition.
type acquireOptions struct {
	interrupter *Interrupter
	permits     int
	timeout     time.Duration
}

// --- Acquire Options ---

// AcquireOption configures a single call to Acquire or AcquireAsync.
type AcquireOption interface {
	applyAcquire(*acquireOptions)
}

// acquireOptionImpl implements AcquireOption.
type acquireOptionImpl struct {
	applyAcquireFunc func(*acquireOptions)
}

func (o *acquireOptionImpl) applyAcquire(opts *acquireOptions) {
	o.applyAcquireFunc(opts)
}

// Permits sets the number of permits to acquire. Defaults to 1. The count must
// be between 1 and the maximum of the semaphore, inclusive.
func Permits(n int) AcquireOption {
	return &acquireOptionImpl{func(opts *acquireOptions) {
		opts.permits = n
	}}
}

// Timeout bounds how long the request may stay queued. Defaults to Infinite.
// A zero timeout never queues: the acquire either succeeds immediately or
// times out immediately.
func Timeout(d time.Duration) AcquireOption {
	return &acquireOptionImpl{func(opts *acquireOptions) {
		opts.timeout = d
	}}
}

// Interruptible makes a blocking acquire abortable through x, independently
// of the context passed to it. It has no effect on AcquireAsync, whose
// callers control their own waiting.
func Interruptible(x *Interrupter) AcquireOption {
	return &acquireOptionImpl{func(opts *acquireOptions) {
		opts.interrupter = x
	}}
}

// resolveAcquireOptions applies AcquireOption instances to acquireOptions.
func resolveAcquireOptions(opts []AcquireOption) acquireOptions {
	cfg := acquireOptions{
		permits: 1,
		timeout: Infinite,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyAcquire(&cfg)
	}
	return cfg
}
