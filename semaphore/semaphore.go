package semaphore

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
)

// Semaphore is a counting semaphore with a fixed maximum, shared between
// blocking (Acquire) and asynchronous (AcquireAsync) callers.
//
// Waiters are served in strict arrival order: a request is granted only once
// every request queued before it has been granted, timed out or canceled.
// Releases never let a later, smaller request barge ahead of a blocked one.
//
// Semaphores must be created with New, and are safe for concurrent use.
type Semaphore struct {
	logger *logiface.Logger[logiface.Event]
	name   string
	max    int

	mu      sync.Mutex
	permits int
	// waiters holds *Request values in arrival order. It never contains a
	// request that is done.
	waiters list.List
	stats   Stats
}

// Stats is an advisory snapshot of a Semaphore. The counters are cumulative
// over the life of the semaphore.
type Stats struct {
	// Permits is the number of currently available permits.
	Permits int
	// MaxPermits is the fixed maximum.
	MaxPermits int
	// Waiters is the number of queued requests.
	Waiters int

	// Granted counts acquisitions that succeeded, immediately or after
	// queueing.
	Granted uint64
	// Queued counts acquisitions that had to wait in the queue.
	Queued uint64
	// TimedOut counts acquisitions that timed out, including zero timeout
	// attempts that failed immediately.
	TimedOut uint64
	// Canceled counts acquisitions withdrawn by context cancellation or by an
	// Interrupter.
	Canceled uint64
}

// New creates a semaphore with initial available permits, out of max. It
// fails with ErrInvalidArgument if max is not positive, or initial is not
// within [0, max].
func New(initial, max int, opts ...Option) (*Semaphore, error) {
	if max <= 0 || initial < 0 || initial > max {
		return nil, fmt.Errorf("%w: new semaphore with %d of %d permits", ErrInvalidArgument, initial, max)
	}
	cfg, err := resolveSemaphoreOptions(opts)
	if err != nil {
		return nil, err
	}
	s := &Semaphore{
		logger:  cfg.logger,
		name:    cfg.name,
		max:     max,
		permits: initial,
	}
	s.stats.MaxPermits = max
	return s, nil
}

// String returns a human-readable representation of the semaphore's state,
// in the form "Semaphore(available/max, waiters=n)", prefixed by the name if
// one was configured.
func (s *Semaphore) String() string {
	s.mu.Lock()
	permits, waiters := s.permits, s.waiters.Len()
	s.mu.Unlock()
	if s.name != "" {
		return fmt.Sprintf("%s: Semaphore(%v/%v, waiters=%v)", s.name, permits, s.max, waiters)
	}
	return fmt.Sprintf("Semaphore(%v/%v, waiters=%v)", permits, s.max, waiters)
}

// CurrentCount returns the number of available permits. The value may be
// stale by the time it is observed.
func (s *Semaphore) CurrentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permits
}

// MaxPermits returns the maximum the semaphore was created with.
func (s *Semaphore) MaxPermits() int {
	return s.max
}

// Waiters returns the number of queued requests. Like CurrentCount, it is
// advisory.
func (s *Semaphore) Waiters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters.Len()
}

// Stats returns a snapshot of the semaphore's state and counters.
func (s *Semaphore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.Permits = s.permits
	stats.Waiters = s.waiters.Len()
	return stats
}

// AcquireAsync requests permits without blocking the calling goroutine.
//
// If the request can be satisfied immediately (nobody is queued and enough
// permits are available), the returned Request is already Granted. Otherwise
// a zero Timeout yields an already TimedOut Request, and an already canceled
// ctx yields an already Canceled one. In every other case the request is
// queued, and the returned Request resolves later.
//
// ctx is the cancellation handle of the request: canceling it withdraws the
// request if it has not been granted yet. A context that can never be
// canceled, such as context.Background, costs nothing.
//
// The only error is ErrInvalidArgument, for a permit count outside
// [1, MaxPermits]. Interruptible has no effect here.
func (s *Semaphore) AcquireAsync(ctx context.Context, opts ...AcquireOption) (*Request, error) {
	cfg := resolveAcquireOptions(opts)
	return s.acquire(ctx, cfg.permits, cfg.timeout)
}

// TryAcquire acquires n permits if that is possible without waiting. Like any
// other acquire, it fails while earlier requests are queued, even if n permits
// are available. It returns false for an invalid n.
func (s *Semaphore) TryAcquire(n int) bool {
	r, err := s.acquire(context.Background(), n, 0)
	return err == nil && r.outcome == Granted
}

func (s *Semaphore) acquire(ctx context.Context, n int, timeout time.Duration) (*Request, error) {
	if n < 1 || n > s.max {
		return nil, fmt.Errorf("%w: acquire of %d permits from a semaphore of %d", ErrInvalidArgument, n, s.max)
	}

	s.mu.Lock()

	if s.waiters.Len() == 0 && s.permits >= n {
		s.permits -= n
		s.stats.Granted++
		s.mu.Unlock()
		return grantedRequest, nil
	}

	if timeout == 0 {
		s.stats.TimedOut++
		s.mu.Unlock()
		return timedOutRequest, nil
	}

	if ctx.Err() != nil {
		s.stats.Canceled++
		s.mu.Unlock()
		return resolvedRequest(Canceled, context.Cause(ctx)), nil
	}

	r := &Request{
		sem:     s,
		permits: n,
		ready:   make(chan struct{}),
	}
	r.elem = s.waiters.PushBack(r)
	s.stats.Queued++
	// Both are armed under the lock, so that neither a grant scan nor the
	// handlers themselves can observe the request half-armed.
	s.armLocked(ctx, r, timeout)
	waiters := s.waiters.Len()

	s.mu.Unlock()

	s.logger.Debug().
		Str(`sem`, s.name).
		Int(`permits`, n).
		Int(`waiters`, waiters).
		Dur(`timeout`, timeout).
		Log(`acquire queued`)

	return r, nil
}

// Release returns n permits to the semaphore, then grants as many queued
// requests as the available permits allow, in arrival order, stopping at the
// first request that cannot be satisfied.
//
// Release panics if n is not positive, or if it would raise the available
// permits above the maximum (ErrOverflow). Both indicate a bug in the caller.
func (s *Semaphore) Release(n int) {
	if n < 1 {
		panic(fmt.Errorf("%w: release of %d permits", ErrInvalidArgument, n))
	}

	s.mu.Lock()
	if n > s.max-s.permits {
		permits := s.permits
		s.mu.Unlock()
		err := fmt.Errorf("%w: release of %d permits with %d of %d available", ErrOverflow, n, permits, s.max)
		s.logger.Err().
			Str(`sem`, s.name).
			Err(err).
			Log(`release overflow`)
		panic(err)
	}
	s.permits += n
	batch := s.grantLocked(nil)
	s.mu.Unlock()

	completeAll(batch)
}

// grantLocked is the grant scan: it pops requests off the front of the queue
// for as long as the head can be satisfied, appending them to batch. The
// caller must hold s.mu, and must completeAll the batch after unlocking.
func (s *Semaphore) grantLocked(batch []*Request) []*Request {
	for e := s.waiters.Front(); e != nil; e = s.waiters.Front() {
		r := e.Value.(*Request)
		if r.permits > s.permits {
			break
		}
		s.permits -= r.permits
		s.waiters.Remove(e)
		r.settleLocked(Granted, nil)
		s.stats.Granted++
		batch = append(batch, r)
	}
	return batch
}
