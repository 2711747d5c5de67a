package semaphore

import (
	"context"
	"sync"
)

// An Interrupter is an interruption flag for goroutines blocked in Acquire.
//
// Interruption is unrelated to the context of the acquire: the context is the
// request's own cancellation handle, whereas an Interrupter models something
// that happens to the waiting goroutine, such as a shutdown signal aimed at a
// worker. A worker typically owns one Interrupter and passes it to every
// blocking acquire via Interruptible.
//
// When an interrupted Acquire manages to withdraw its request, it consumes
// the flag and returns ErrInterrupted. When it does not, because the request
// was granted or timed out concurrently, it returns that outcome and leaves
// the flag set, so the interruption is still visible to the caller.
//
// The zero value is ready to use. A nil *Interrupter is never interrupted.
type Interrupter struct {
	mu  sync.Mutex
	set bool
	// ch is closed while set is true. It is created lazily, and replaced when
	// the flag is cleared.
	ch chan struct{}
}

// Interrupt sets the flag, waking any Acquire blocked on it.
func (x *Interrupter) Interrupt() {
	if x == nil {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.set {
		return
	}
	x.set = true
	if x.ch != nil {
		close(x.ch)
	}
}

// Interrupted reports whether the flag is set, without clearing it.
func (x *Interrupter) Interrupted() bool {
	if x == nil {
		return false
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.set
}

// Reset clears the flag, reporting whether it was set.
func (x *Interrupter) Reset() bool {
	if x == nil {
		return false
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.set {
		return false
	}
	x.set = false
	x.ch = nil
	return true
}

// Done returns a channel that is closed while the flag is set. The channel
// returned after a Reset is a new one.
func (x *Interrupter) Done() <-chan struct{} {
	if x == nil {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.ch == nil {
		x.ch = make(chan struct{})
		if x.set {
			close(x.ch)
		}
	}
	return x.ch
}

// Acquire requests permits, blocking until the request is resolved.
//
// It reports true once the permits are acquired, and false with a nil error
// if the Timeout elapsed first. If ctx is canceled first, it returns false
// and context.Cause(ctx). If the Interrupter configured with Interruptible
// fires first, the request is withdrawn and ErrInterrupted is returned; see
// Interrupter for the case where the request was resolved concurrently.
//
// A permit count outside [1, MaxPermits] fails with ErrInvalidArgument.
func (s *Semaphore) Acquire(ctx context.Context, opts ...AcquireOption) (bool, error) {
	cfg := resolveAcquireOptions(opts)
	r, err := s.acquire(ctx, cfg.permits, cfg.timeout)
	if err != nil {
		return false, err
	}
	return s.wait(r, cfg.interrupter)
}

func (s *Semaphore) wait(r *Request, x *Interrupter) (bool, error) {
	select {
	case <-r.ready:
		return r.result()
	default:
	}
	select {
	case <-r.ready:
		return r.result()
	case <-x.Done():
		return s.interrupted(r, x)
	}
}

// interrupted handles an Interrupter firing while r was pending. The flag is
// consumed, and r is withdrawn by identity if it is still queued. If the
// withdrawal loses the race, the outcome that won is waited for and returned,
// and the flag is set again.
func (s *Semaphore) interrupted(r *Request, x *Interrupter) (bool, error) {
	x.Reset()
	if s.abort(r, Canceled, ErrInterrupted) {
		return false, ErrInterrupted
	}
	<-r.ready
	x.Interrupt()
	s.logger.Debug().
		Str(`sem`, s.name).
		Str(`outcome`, r.outcome.String()).
		Log(`interrupt raced resolution`)
	return r.result()
}
