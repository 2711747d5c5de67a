package semaphore

import (
	"container/list"
	"fmt"
	"time"
)

// Outcome is the resolution of a Request.
type Outcome uint8

const (
	// Pending means the request is still queued.
	Pending Outcome = iota
	// Granted means the requested permits were acquired. The caller owns them
	// and must eventually Release them.
	Granted
	// TimedOut means the timeout elapsed before the permits became available.
	TimedOut
	// Canceled means the request was withdrawn, by its context or by an
	// Interrupter, before the permits became available.
	Canceled
)

// String returns the lower-case name of the outcome.
func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Granted:
		return "granted"
	case TimedOut:
		return "timed out"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("Outcome(%d)", o)
	}
}

// A Request is the completion handle of an asynchronous acquire. It resolves
// exactly once, to Granted, TimedOut or Canceled.
//
// Waiting on a Request is done by receiving from Done, typically in a select
// alongside other channels, or by calling Await.
type Request struct {
	sem     *Semaphore
	permits int

	// The fields below are guarded by sem.mu until ready is closed. The
	// outcome and cause are written exactly once, when done is set, and are
	// read-only once ready is closed.
	done    bool
	elem    *list.Element
	timer   *time.Timer
	stop    func() bool
	outcome Outcome
	cause   error

	ready chan struct{}
}

var (
	// grantedRequest is handed out by the uncontended path, which must not
	// allocate.
	grantedRequest = resolvedRequest(Granted, nil)

	// timedOutRequest is handed out when a zero timeout request cannot be
	// satisfied immediately.
	timedOutRequest = resolvedRequest(TimedOut, ErrTimeout)
)

func resolvedRequest(outcome Outcome, cause error) *Request {
	r := &Request{
		done:    true,
		outcome: outcome,
		cause:   cause,
		ready:   make(chan struct{}),
	}
	close(r.ready)
	return r
}

// Done returns a channel that is closed once the request is resolved.
func (r *Request) Done() <-chan struct{} {
	return r.ready
}

// Outcome reports the resolution of the request, or Pending if it has not
// resolved yet.
func (r *Request) Outcome() Outcome {
	select {
	case <-r.ready:
		return r.outcome
	default:
		return Pending
	}
}

// Err returns nil while the request is pending or once it is granted. For a
// timed out request it returns ErrTimeout; for a canceled request it returns
// the cause of the cancellation, i.e. context.Cause of the context passed to
// the acquire, or ErrInterrupted.
func (r *Request) Err() error {
	select {
	case <-r.ready:
		return r.cause
	default:
		return nil
	}
}

// Await blocks until the request is resolved. It reports true if the permits
// were granted, false with a nil error if the request timed out, and false
// with the cancellation cause if it was canceled.
func (r *Request) Await() (bool, error) {
	<-r.ready
	return r.result()
}

func (r *Request) result() (bool, error) {
	switch r.outcome {
	case Granted:
		return true, nil
	case TimedOut:
		return false, nil
	default:
		return false, r.cause
	}
}

// settleLocked marks the request done. The caller must hold sem.mu, must have
// unlinked the request from the wait queue, and must call complete after
// releasing the lock.
func (r *Request) settleLocked(outcome Outcome, cause error) {
	r.done = true
	r.elem = nil
	r.outcome = outcome
	r.cause = cause
}

// complete publishes the outcome to waiters, then disarms the timer and the
// cancellation listener. It runs once per request, after the request has been
// settled, and never while sem.mu is held.
func (r *Request) complete() {
	close(r.ready)
	if r.timer != nil {
		r.timer.Stop()
	}
	if r.stop != nil {
		r.stop()
	}
}

func completeAll(batch []*Request) {
	for _, r := range batch {
		r.complete()
	}
}
