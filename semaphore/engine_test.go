package semaphore_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/notorious-go/sync/semaphore"
)

func newSemaphore(t *testing.T, initial, max int, opts ...semaphore.Option) *semaphore.Semaphore {
	t.Helper()
	sem, err := semaphore.New(initial, max, opts...)
	require.NoError(t, err)
	return sem
}

// recoverError runs f and returns the error it panicked with, if any.
func recoverError(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(error)
		}
	}()
	f()
	return nil
}

func TestNew(t *testing.T) {
	for _, tc := range []struct {
		name         string
		initial, max int
		valid        bool
	}{
		{"empty", 0, 1, true},
		{"full", 3, 3, true},
		{"partial", 1, 5, true},
		{"negative initial", -1, 1, false},
		{"initial above max", 2, 1, false},
		{"zero max", 0, 0, false},
		{"negative max", 0, -1, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sem, err := semaphore.New(tc.initial, tc.max)
			if !tc.valid {
				require.ErrorIs(t, err, semaphore.ErrInvalidArgument)
				require.Nil(t, sem)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.initial, sem.CurrentCount())
			assert.Equal(t, tc.max, sem.MaxPermits())
			assert.Zero(t, sem.Waiters())
		})
	}
}

func TestAcquire_invalidPermits(t *testing.T) {
	sem := newSemaphore(t, 0, 3)
	ctx := context.Background()

	for _, n := range []int{0, -1, 4} {
		req, err := sem.AcquireAsync(ctx, semaphore.Permits(n))
		require.ErrorIs(t, err, semaphore.ErrInvalidArgument)
		require.Nil(t, req)

		ok, err := sem.Acquire(ctx, semaphore.Permits(n))
		require.ErrorIs(t, err, semaphore.ErrInvalidArgument)
		require.False(t, ok)

		require.False(t, sem.TryAcquire(n))
	}

	assert.Zero(t, sem.Waiters())
	assert.Equal(t, semaphore.Stats{MaxPermits: 3}, sem.Stats())
}

func TestRelease_misuse(t *testing.T) {
	sem := newSemaphore(t, 1, 2)

	err := recoverError(func() { sem.Release(2) })
	require.ErrorIs(t, err, semaphore.ErrOverflow)
	assert.Equal(t, 1, sem.CurrentCount())

	err = recoverError(func() { sem.Release(math.MaxInt) })
	require.ErrorIs(t, err, semaphore.ErrOverflow)
	assert.Equal(t, 1, sem.CurrentCount())

	err = recoverError(func() { sem.Release(0) })
	require.ErrorIs(t, err, semaphore.ErrInvalidArgument)

	require.NoError(t, recoverError(func() { sem.Release(1) }))
	assert.Equal(t, 2, sem.CurrentCount())
}

func TestAcquire_immediate(t *testing.T) {
	sem := newSemaphore(t, 3, 3)
	ctx := context.Background()

	req, err := sem.AcquireAsync(ctx, semaphore.Permits(2))
	require.NoError(t, err)
	assert.Equal(t, semaphore.Granted, req.Outcome())
	ok, err := req.Await()
	require.True(t, ok)
	require.NoError(t, err)

	ok, err = sem.Acquire(ctx)
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, 0, sem.CurrentCount())

	sem.Release(3)
	assert.Equal(t, 3, sem.CurrentCount())
	assert.EqualValues(t, 2, sem.Stats().Granted)
	assert.Zero(t, sem.Stats().Queued)
}

func TestAcquire_zeroTimeout(t *testing.T) {
	sem := newSemaphore(t, 0, 1)

	req, err := sem.AcquireAsync(context.Background(), semaphore.Timeout(0))
	require.NoError(t, err)
	assert.Equal(t, semaphore.TimedOut, req.Outcome())
	assert.ErrorIs(t, req.Err(), semaphore.ErrTimeout)

	// A zero timeout takes precedence over a canceled context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := sem.Acquire(ctx, semaphore.Timeout(0))
	require.False(t, ok)
	require.NoError(t, err)

	assert.Zero(t, sem.Waiters())
	assert.EqualValues(t, 2, sem.Stats().TimedOut)
}

func TestAcquire_alreadyCanceled(t *testing.T) {
	sem := newSemaphore(t, 0, 1)
	errBoom := errors.New("boom")
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(errBoom)

	ok, err := sem.Acquire(ctx)
	require.False(t, ok)
	require.ErrorIs(t, err, errBoom)

	req, err := sem.AcquireAsync(ctx)
	require.NoError(t, err)
	assert.Equal(t, semaphore.Canceled, req.Outcome())
	assert.ErrorIs(t, req.Err(), errBoom)

	// Available permits still win over a canceled context.
	sem.Release(1)
	ok, err = sem.Acquire(ctx)
	require.True(t, ok)
	require.NoError(t, err)

	assert.Zero(t, sem.Waiters())
}

func TestAcquire_releaseWakesWaiter(t *testing.T) {
	sem := newSemaphore(t, 1, 1)
	ctx := context.Background()

	ok, err := sem.Acquire(ctx)
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, 0, sem.CurrentCount())

	req, err := sem.AcquireAsync(ctx, semaphore.Timeout(50*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, semaphore.Pending, req.Outcome())

	time.AfterFunc(10*time.Millisecond, func() { sem.Release(1) })

	ok, err = req.Await()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, 0, sem.CurrentCount())
	assert.Zero(t, sem.Waiters())
}

func TestAcquire_timeout(t *testing.T) {
	sem := newSemaphore(t, 0, 5)

	start := time.Now()
	ok, err := sem.Acquire(context.Background(), semaphore.Permits(3), semaphore.Timeout(10*time.Millisecond))
	elapsed := time.Since(start)

	require.False(t, ok)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
	assert.Zero(t, sem.Waiters())

	stats := sem.Stats()
	assert.EqualValues(t, 1, stats.Queued)
	assert.EqualValues(t, 1, stats.TimedOut)

	// The timed out request must not swallow a later release.
	sem.Release(3)
	assert.Equal(t, 3, sem.CurrentCount())
}

func TestAcquire_contextCanceledWhileQueued(t *testing.T) {
	sem := newSemaphore(t, 0, 1)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	ok, err := sem.Acquire(ctx)
	require.False(t, ok)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sem.Waiters())

	sem.Release(1)
	assert.Equal(t, 1, sem.CurrentCount())
	assert.EqualValues(t, 1, sem.Stats().Canceled)
}

func TestAcquire_contextCanceledAfterGrant(t *testing.T) {
	sem := newSemaphore(t, 0, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := sem.AcquireAsync(ctx)
	require.NoError(t, err)
	require.Equal(t, semaphore.Pending, req.Outcome())

	sem.Release(1)
	cancel()

	// Give a stray cancellation listener the chance to run.
	time.Sleep(10 * time.Millisecond)

	ok, err := req.Await()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, semaphore.Granted, req.Outcome())
	assert.Equal(t, 0, sem.CurrentCount())
	assert.Zero(t, sem.Stats().Canceled)
}

func TestRelease_fifoPrefix(t *testing.T) {
	sem := newSemaphore(t, 0, 5)
	ctx := context.Background()

	a, err := sem.AcquireAsync(ctx, semaphore.Permits(3))
	require.NoError(t, err)
	b, err := sem.AcquireAsync(ctx, semaphore.Permits(1))
	require.NoError(t, err)
	c, err := sem.AcquireAsync(ctx, semaphore.Permits(1))
	require.NoError(t, err)

	// Two permits would satisfy b and c, but a is in front of them.
	sem.Release(2)
	assert.Equal(t, semaphore.Pending, a.Outcome())
	assert.Equal(t, semaphore.Pending, b.Outcome())
	assert.Equal(t, semaphore.Pending, c.Outcome())
	assert.Equal(t, 2, sem.CurrentCount())

	// Nor may a newcomer barge in.
	require.False(t, sem.TryAcquire(1))

	sem.Release(2)
	assert.Equal(t, semaphore.Granted, a.Outcome())
	assert.Equal(t, semaphore.Granted, b.Outcome())
	assert.Equal(t, semaphore.Pending, c.Outcome())
	assert.Equal(t, 0, sem.CurrentCount())

	sem.Release(1)
	assert.Equal(t, semaphore.Granted, c.Outcome())
	assert.Zero(t, sem.Waiters())
}

func TestAbort_unblocksFollowers(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		sem := newSemaphore(t, 2, 3)
		ctx := context.Background()

		head, err := sem.AcquireAsync(ctx, semaphore.Permits(3), semaphore.Timeout(20*time.Millisecond))
		require.NoError(t, err)
		next, err := sem.AcquireAsync(ctx, semaphore.Permits(2))
		require.NoError(t, err)

		ok, err := next.Await()
		require.True(t, ok)
		require.NoError(t, err)
		assert.Equal(t, semaphore.TimedOut, head.Outcome())
		assert.Equal(t, 0, sem.CurrentCount())
	})

	t.Run("cancel", func(t *testing.T) {
		sem := newSemaphore(t, 1, 3)
		ctx, cancel := context.WithCancel(context.Background())

		head, err := sem.AcquireAsync(ctx, semaphore.Permits(3))
		require.NoError(t, err)
		next, err := sem.AcquireAsync(context.Background())
		require.NoError(t, err)
		last, err := sem.AcquireAsync(context.Background())
		require.NoError(t, err)

		cancel()
		ok, err := next.Await()
		require.True(t, ok)
		require.NoError(t, err)
		assert.Equal(t, semaphore.Canceled, head.Outcome())
		assert.Equal(t, semaphore.Pending, last.Outcome())
		assert.Equal(t, 1, sem.Waiters())

		sem.Release(1)
		assert.Equal(t, semaphore.Granted, last.Outcome())
	})
}

func TestCancel_racesRelease(t *testing.T) {
	for i := 0; i < 200; i++ {
		sem := newSemaphore(t, 0, 1)
		ctx, cancel := context.WithCancel(context.Background())
		req, err := sem.AcquireAsync(ctx)
		require.NoError(t, err)

		var wg sync.WaitGroup
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			cancel()
		}()
		go func() {
			defer wg.Done()
			<-start
			sem.Release(1)
		}()
		close(start)
		wg.Wait()
		<-req.Done()

		stats := sem.Stats()
		switch req.Outcome() {
		case semaphore.Granted:
			require.Equal(t, 0, sem.CurrentCount())
			require.NoError(t, req.Err())
			require.EqualValues(t, 0, stats.Canceled)
		case semaphore.Canceled:
			require.Equal(t, 1, sem.CurrentCount())
			require.ErrorIs(t, req.Err(), context.Canceled)
			require.EqualValues(t, 0, stats.Granted)
		default:
			t.Fatalf("unexpected outcome %v", req.Outcome())
		}
		require.EqualValues(t, 1, stats.Granted+stats.Canceled)
		require.Zero(t, stats.Waiters)
	}
}

func TestAcquire_interrupted(t *testing.T) {
	sem := newSemaphore(t, 0, 1)
	var x semaphore.Interrupter
	time.AfterFunc(10*time.Millisecond, x.Interrupt)

	ok, err := sem.Acquire(context.Background(), semaphore.Interruptible(&x))
	require.False(t, ok)
	require.ErrorIs(t, err, semaphore.ErrInterrupted)
	// The interruption was delivered as the error, so the flag is consumed.
	assert.False(t, x.Interrupted())
	assert.Zero(t, sem.Waiters())
	assert.EqualValues(t, 1, sem.Stats().Canceled)

	sem.Release(1)
	assert.Equal(t, 1, sem.CurrentCount())
}

func TestAcquire_interruptedBeforeWaiting(t *testing.T) {
	var x semaphore.Interrupter
	x.Interrupt()

	t.Run("granted immediately", func(t *testing.T) {
		sem := newSemaphore(t, 1, 1)
		ok, err := sem.Acquire(context.Background(), semaphore.Interruptible(&x))
		require.True(t, ok)
		require.NoError(t, err)
		// Nothing blocked, so the flag was never consumed.
		assert.True(t, x.Interrupted())
	})

	t.Run("queued", func(t *testing.T) {
		sem := newSemaphore(t, 0, 1)
		ok, err := sem.Acquire(context.Background(), semaphore.Interruptible(&x))
		require.False(t, ok)
		require.ErrorIs(t, err, semaphore.ErrInterrupted)
		assert.False(t, x.Interrupted())
		assert.Zero(t, sem.Waiters())
	})
}

func TestInterrupter(t *testing.T) {
	var x semaphore.Interrupter
	assert.False(t, x.Interrupted())
	assert.False(t, x.Reset())

	done := x.Done()
	select {
	case <-done:
		t.Fatal("done before interrupt")
	default:
	}

	x.Interrupt()
	x.Interrupt()
	<-done
	assert.True(t, x.Interrupted())
	<-x.Done()

	assert.True(t, x.Reset())
	assert.False(t, x.Interrupted())
	select {
	case <-x.Done():
		t.Fatal("done after reset")
	default:
	}

	var nilInterrupter *semaphore.Interrupter
	nilInterrupter.Interrupt()
	assert.False(t, nilInterrupter.Interrupted())
	assert.False(t, nilInterrupter.Reset())
	assert.Nil(t, nilInterrupter.Done())
}

func TestSemaphore_permitsStayInRange(t *testing.T) {
	const limit = 5
	sem := newSemaphore(t, limit, limit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher := make(chan error, 1)
	go func() {
		for ctx.Err() == nil {
			if n := sem.CurrentCount(); n < 0 || n > limit {
				watcher <- errors.New("permits out of range")
				return
			}
		}
		watcher <- nil
	}()

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			for j := 0; j < 100; j++ {
				n := 1 + rand.Intn(limit)
				opts := []semaphore.AcquireOption{semaphore.Permits(n)}
				if j%3 == 0 {
					opts = append(opts, semaphore.Timeout(time.Duration(rand.Intn(500))*time.Microsecond))
				}
				ok, err := sem.Acquire(context.Background(), opts...)
				if err != nil {
					return err
				}
				if ok {
					sem.Release(n)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	cancel()
	require.NoError(t, <-watcher)

	assert.Equal(t, limit, sem.CurrentCount())
	assert.Zero(t, sem.Waiters())
	stats := sem.Stats()
	assert.EqualValues(t, 16*100, stats.Granted+stats.TimedOut)
}

func TestSemaphore_String(t *testing.T) {
	sem := newSemaphore(t, 1, 4, semaphore.WithName("db"))
	_, err := sem.AcquireAsync(context.Background(), semaphore.Permits(2))
	require.NoError(t, err)
	assert.Equal(t, "db: Semaphore(1/4, waiters=1)", sem.String())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "pending", semaphore.Pending.String())
	assert.Equal(t, "granted", semaphore.Granted.String())
	assert.Equal(t, "timed out", semaphore.TimedOut.String())
	assert.Equal(t, "canceled", semaphore.Canceled.String())
	assert.Equal(t, "Outcome(9)", semaphore.Outcome(9).String())
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (x *syncBuffer) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.b.Write(p)
}

func (x *syncBuffer) String() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.b.String()
}

func TestSemaphore_logging(t *testing.T) {
	var buf syncBuffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&buf), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()

	sem := newSemaphore(t, 0, 1, semaphore.WithLogger(logger), semaphore.WithName("pool"))
	ok, err := sem.Acquire(context.Background(), semaphore.Timeout(time.Millisecond))
	require.False(t, ok)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s := buf.String()
		return strings.Contains(s, `"msg":"acquire queued"`) &&
			strings.Contains(s, `"msg":"acquire withdrawn"`)
	}, time.Second, time.Millisecond)
	assert.Contains(t, buf.String(), `"sem":"pool"`)
	assert.Contains(t, buf.String(), `"outcome":"timed out"`)

	err = recoverError(func() { sem.Release(2) })
	require.ErrorIs(t, err, semaphore.ErrOverflow)
	assert.Contains(t, buf.String(), `"msg":"release overflow"`)
}
