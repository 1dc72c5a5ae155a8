package event_listener

import (
	"sync"
)

// UnboundedQueue[T] is a thread-safe FIFO queue with no capacity limit,
// exposed through channels so producers never block on slow consumers.
type UnboundedQueue[T any] struct {
	In  chan<- T // Send-only channel for producers
	Out <-chan T // Receive-only channel for consumers

	input  chan T
	output chan T
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewUnboundedQueue[T any]() *UnboundedQueue[T] {
	input := make(chan T, 100)  // Buffer size is just for performance
	output := make(chan T, 100) // Buffer size is just for performance
	done := make(chan struct{})

	q := &UnboundedQueue[T]{
		In:     input,
		Out:    output,
		input:  input,
		output: output,
		done:   done,
	}

	q.wg.Add(1)
	go q.manage()

	return q
}

// manage shuttles items between the channels, buffering the overflow in a
// slice so the In channel never fills up.
func (q *UnboundedQueue[T]) manage() {
	defer q.wg.Done()
	defer close(q.output)

	items := make([]T, 0)

	for {
		// Only offer the output case when there is something to send,
		// otherwise wait for input or shutdown.
		var out chan T
		var first T

		if len(items) > 0 {
			out = q.output
			first = items[0]
		}

		select {
		case item := <-q.input:
			items = append(items, item)

		case out <- first:
			items = items[1:]

		case <-q.done:
			return
		}
	}
}

// Size returns the approximate number of buffered elements. Approximate since
// the queue state can change immediately after the count is taken.
func (q *UnboundedQueue[T]) Size() int {
	return len(q.input) + len(q.output)
}

// Close shuts down the queue and waits for the manager to exit.
func (q *UnboundedQueue[T]) Close() {
	close(q.done)
	close(q.input)
	q.wg.Wait()
}
