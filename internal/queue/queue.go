// Package queue provides the per-table serial task runner. Every mutation of
// a table's state goes through its queue, so there is exactly one writer and
// operations complete in submission order.
package queue

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned for tasks submitted after Close
var ErrClosed = errors.New("queue closed")

const defaultBuffer = 256

type task struct {
	fn  func() error
	err chan error
}

// Queue runs tasks strictly FIFO on a single goroutine. A failed or
// panicking task delivers its error to the submitter; subsequent tasks keep
// running.
type Queue struct {
	tasks chan task
	done  chan struct{}
	size  atomic.Int64

	mu     sync.Mutex
	closed bool
}

// New creates a running queue
func New() *Queue {
	q := &Queue{
		tasks: make(chan task, defaultBuffer),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for t := range q.tasks {
		err := runTask(t.fn)
		q.size.Add(-1)
		t.err <- err
	}
}

func runTask(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn()
}

// Submit enqueues a task and returns a channel that receives its result.
// Callers that do not care about the outcome may discard the channel.
func (q *Queue) Submit(fn func() error) <-chan error {
	errc := make(chan error, 1)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		errc <- ErrClosed
		return errc
	}
	q.size.Add(1)
	q.tasks <- task{fn: fn, err: errc}
	q.mu.Unlock()

	return errc
}

// Do submits a task and waits for it. Must not be called from inside a task
// on the same queue.
func (q *Queue) Do(fn func() error) error {
	return <-q.Submit(fn)
}

// Len reports waiting plus running tasks
func (q *Queue) Len() int {
	return int(q.size.Load())
}

// Close drains the pending tasks and stops the runner. Must not be called
// from inside a task on the same queue.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	<-q.done
}
