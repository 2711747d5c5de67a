package blockingqueue

import (
	"context"
	"fmt"

	"github.com/joeycumines/logiface"

	"github.com/notorious-go/sync/semaphore"
)

type (
	// Queue is a bounded FIFO buffer of items of type T. Instances must be
	// created with New, and are safe for concurrent use.
	Queue[T any] struct {
		// buffer holds the items. Its capacity equals the queue's, and the
		// slot semaphores guarantee sends and receives never block.
		buffer chan T
		// free counts the slots a producer may fill.
		free *semaphore.Semaphore
		// filled counts the items a consumer may take.
		filled *semaphore.Semaphore
	}

	// Option configures a Queue, see New.
	Option func(*config)

	config struct {
		logger *logiface.Logger[logiface.Event]
		name   string
	}

	// Future is the completion handle of PutAsync and TakeAsync.
	Future[V any] struct {
		done  chan struct{}
		value V
		ok    bool
		err   error
	}
)

// oneSlot is appended to the caller's acquire options: each operation moves a
// single item.
var oneSlot = semaphore.Permits(1)

// WithLogger attaches a logger to both slot semaphores.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return func(c *config) { c.logger = logger }
}

// WithName names the queue. The slot semaphores are named "<name>.free" and
// "<name>.filled".
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// New creates a queue holding at most capacity items. It fails with
// semaphore.ErrInvalidArgument if capacity is not positive.
func New[T any](capacity int, opts ...Option) (*Queue[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: queue capacity %d", semaphore.ErrInvalidArgument, capacity)
	}
	cfg := config{name: "queue"}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	free, err := semaphore.New(capacity, capacity,
		semaphore.WithLogger(cfg.logger),
		semaphore.WithName(cfg.name+".free"),
	)
	if err != nil {
		return nil, err
	}
	filled, err := semaphore.New(0, capacity,
		semaphore.WithLogger(cfg.logger),
		semaphore.WithName(cfg.name+".filled"),
	)
	if err != nil {
		return nil, err
	}
	return &Queue[T]{
		buffer: make(chan T, capacity),
		free:   free,
		filled: filled,
	}, nil
}

// Count returns the number of items in the queue. It is advisory, and may be
// stale by the time it is observed.
func (q *Queue[T]) Count() int {
	return len(q.buffer)
}

// Cap returns the capacity of the queue.
func (q *Queue[T]) Cap() int {
	return cap(q.buffer)
}

// FreeStats returns the statistics of the free slot semaphore, whose
// waiters are blocked producers.
func (q *Queue[T]) FreeStats() semaphore.Stats {
	return q.free.Stats()
}

// FilledStats returns the statistics of the filled slot semaphore, whose
// waiters are blocked consumers.
func (q *Queue[T]) FilledStats() semaphore.Stats {
	return q.filled.Stats()
}

// Put adds item to the queue, waiting for a free slot if the queue is full.
//
// The options are those of semaphore.Acquire, except that Permits is ignored.
// Put reports true once the item is in the queue, and false if it was not
// added: with a nil error on timeout, otherwise with the cancellation cause or
// semaphore.ErrInterrupted.
func (q *Queue[T]) Put(ctx context.Context, item T, opts ...semaphore.AcquireOption) (bool, error) {
	ok, err := q.free.Acquire(ctx, withOneSlot(opts)...)
	if !ok {
		return false, err
	}
	q.push(item)
	return true, nil
}

// Take removes the oldest item from the queue, waiting for one if the queue
// is empty. The options and results follow Put; when no item is taken, the
// zero value of T is returned.
func (q *Queue[T]) Take(ctx context.Context, opts ...semaphore.AcquireOption) (T, bool, error) {
	ok, err := q.filled.Acquire(ctx, withOneSlot(opts)...)
	if !ok {
		var zero T
		return zero, false, err
	}
	return q.pop(), true, nil
}

// PutAsync is the non-blocking variant of Put. The returned Future resolves
// once the item was added, or once the attempt timed out or was canceled.
func (q *Queue[T]) PutAsync(ctx context.Context, item T, opts ...semaphore.AcquireOption) *Future[struct{}] {
	f := newFuture[struct{}]()
	r, err := q.free.AcquireAsync(ctx, withOneSlot(opts)...)
	if err != nil {
		f.resolve(struct{}{}, false, err)
		return f
	}
	settle := func() {
		ok, err := r.Await()
		if ok {
			q.push(item)
		}
		f.resolve(struct{}{}, ok, err)
	}
	if r.Outcome() != semaphore.Pending {
		settle()
	} else {
		go settle()
	}
	return f
}

// TakeAsync is the non-blocking variant of Take.
func (q *Queue[T]) TakeAsync(ctx context.Context, opts ...semaphore.AcquireOption) *Future[T] {
	f := newFuture[T]()
	r, err := q.filled.AcquireAsync(ctx, withOneSlot(opts)...)
	if err != nil {
		var zero T
		f.resolve(zero, false, err)
		return f
	}
	settle := func() {
		var item T
		ok, err := r.Await()
		if ok {
			item = q.pop()
		}
		f.resolve(item, ok, err)
	}
	if r.Outcome() != semaphore.Pending {
		settle()
	} else {
		go settle()
	}
	return f
}

// push must only be called while holding a free slot, which it converts into
// a filled one.
func (q *Queue[T]) push(item T) {
	q.buffer <- item
	q.filled.Release(1)
}

// pop must only be called while holding a filled slot, which it converts into
// a free one.
func (q *Queue[T]) pop() T {
	item := <-q.buffer
	q.free.Release(1)
	return item
}

func withOneSlot(opts []semaphore.AcquireOption) []semaphore.AcquireOption {
	return append(opts[:len(opts):len(opts)], oneSlot)
}

func newFuture[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

func (f *Future[V]) resolve(value V, ok bool, err error) {
	f.value, f.ok, f.err = value, ok, err
	close(f.done)
}

// Done returns a channel that is closed once the operation has completed.
func (f *Future[V]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the operation has completed, and returns its results in
// the same form as the blocking variant.
func (f *Future[V]) Await() (V, bool, error) {
	<-f.done
	return f.value, f.ok, f.err
}
