package semaphore

import (
	"context"
	"time"
)

// armLocked attaches the timeout timer and the cancellation listener of a
// freshly queued request. The caller must hold s.mu.
//
// Both handlers run on their own goroutines (time.AfterFunc and
// context.AfterFunc never call back synchronously), so they simply block on
// s.mu until the caller is done arming.
func (s *Semaphore) armLocked(ctx context.Context, r *Request, timeout time.Duration) {
	if timeout > 0 {
		r.timer = time.AfterFunc(timeout, func() {
			s.abort(r, TimedOut, ErrTimeout)
		})
	}
	if ctx.Done() != nil {
		r.stop = context.AfterFunc(ctx, func() {
			s.abort(r, Canceled, context.Cause(ctx))
		})
	}
}

// abort withdraws a queued request, resolving it with outcome. It reports
// false if the request was already done, in which case it has no effect.
//
// Withdrawing the head of the queue may unblock the requests behind it, so the
// grant scan is re-run before the lock is released.
func (s *Semaphore) abort(r *Request, outcome Outcome, cause error) bool {
	s.mu.Lock()
	if r.done {
		s.mu.Unlock()
		return false
	}
	s.waiters.Remove(r.elem)
	r.settleLocked(outcome, cause)
	switch outcome {
	case TimedOut:
		s.stats.TimedOut++
	default:
		s.stats.Canceled++
	}
	batch := s.grantLocked(nil)
	s.mu.Unlock()

	r.complete()
	completeAll(batch)

	s.logger.Debug().
		Str(`sem`, s.name).
		Int(`permits`, r.permits).
		Str(`outcome`, outcome.String()).
		Err(cause).
		Int(`granted`, len(batch)).
		Log(`acquire withdrawn`)

	return true
}
