package semaphore

import (
	"errors"
)

var (
	// ErrInvalidArgument is returned (wrapped) when a permit count is out of
	// range: non-positive, or larger than the maximum of the semaphore.
	// Requests failing with this error are never queued.
	ErrInvalidArgument = errors.New("semaphore: invalid argument")

	// ErrOverflow is the panic value (wrapped) of a Release that would raise
	// the available permits above the maximum. It always indicates a bug in
	// the caller, typically releasing permits that were never acquired.
	ErrOverflow = errors.New("semaphore: permit overflow")

	// ErrTimeout is the cause recorded on a request that timed out. Blocking
	// and Await callers observe a timeout as a false result with a nil error;
	// ErrTimeout is exposed through Request.Err for callers that prefer
	// error values.
	ErrTimeout = errors.New("semaphore: acquire timed out")

	// ErrInterrupted is returned by a blocking acquire whose Interrupter fired
	// while the request was still queued. The request was withdrawn and no
	// permits are held.
	ErrInterrupted = errors.New("semaphore: wait interrupted")
)
