// Package blockingqueue implements a bounded, multi-producer multi-consumer
// FIFO buffer on top of two semaphores: one counting free slots, the other
// counting filled slots.
//
// Put waits for a free slot and Take waits for a filled one, with the same
// timeout, cancellation and interruption controls as semaphore.Acquire. The
// semaphores only decide how many items may exist; the buffer itself is a
// channel, which is safe for concurrent pushes and pops on its own. Because a
// slot permit is always obtained before touching the buffer, pushes never
// find the buffer full and pops never find it empty.
//
// Free slots are handed to waiting producers in arrival order, and filled
// slots to waiting consumers likewise.
package blockingqueue
