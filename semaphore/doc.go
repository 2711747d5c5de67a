// Package semaphore provides a weighted counting semaphore with a fixed
// maximum, offering blocking and asynchronous acquisition over the same pool
// of permits, with per-request timeouts and cancellation.
//
// # Why This Package Exists
//
// Raw buffered channels make fine semaphores as long as every caller wants
// exactly one token and is willing to block a goroutine for it. This package
// covers the cases they do not:
//
//   - Acquiring several permits at once, atomically.
//   - Waiting without tying up the caller: AcquireAsync hands back a Request
//     that can be selected on, stored, or awaited later.
//   - A per-request Timeout in addition to context cancellation.
//   - Strict FIFO service. A channel lets any ready sender barge in; here a
//     request is only ever granted after every earlier request was resolved.
//   - Interrupting a blocked goroutine separately from the request's own
//     context, through an Interrupter.
//
// # Ordering
//
// Requests that cannot be satisfied on arrival are queued in arrival order.
// Release grants permits to the head of the queue for as long as the head can
// be satisfied, and stops at the first request that cannot. A smaller request
// further back is never served ahead of a blocked head, even when enough
// permits are available for it. This bounds starvation: a request waits only
// for the requests in front of it.
//
// Likewise, a new request is never satisfied immediately while others are
// queued, TryAcquire included.
//
// # Resolution
//
// Every queued request is resolved exactly once, by whichever of these happens
// first:
//
//   - a Release (or the withdrawal of a request in front of it) grants it;
//   - its Timeout elapses;
//   - its context is canceled;
//   - the Interrupter of a blocking Acquire fires.
//
// The losers of that race have no effect. In particular a request that was
// granted stays granted even if its context is canceled an instant later, and
// the caller owns the permits.
//
// Completion handles are resolved, and timers and context listeners are
// released, only after the semaphore's internal lock has been dropped, so a
// goroutine woken by a Request never contends with the goroutine that woke it.
//
// # Errors
//
// Invalid permit counts fail with ErrInvalidArgument, and never queue
// anything. Releasing more permits than the maximum allows panics with
// ErrOverflow: it always means that permits were released that were never
// acquired. Timeouts and cancellations are ordinary outcomes, reported through
// Request and through the results of Acquire.
//
// # Non-goals
//
// There are no priority classes, the maximum is fixed at construction, and the
// semaphore only coordinates goroutines of a single process.
package semaphore
