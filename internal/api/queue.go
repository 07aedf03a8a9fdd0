package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var errQueueClosed = errors.New("task queue closed")

// taskResult is the outcome of one queued task. done closes once err is set.
type taskResult struct {
	done chan struct{}
	err  error
}

func (r *taskResult) wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type queuedTask struct {
	run    func() error
	result *taskResult
	final  bool
}

// taskQueue runs tasks one at a time in FIFO order on a single goroutine.
// The goroutine exits after the final task enqueued with close.
type taskQueue struct {
	mu      sync.Mutex
	pending []queuedTask
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.loop()
	return q
}

// enqueue schedules fn after every task already queued.
func (q *taskQueue) enqueue(fn func() error) *taskResult {
	return q.push(fn, false)
}

// close schedules fn as the last task. Later enqueues fail with errQueueClosed.
func (q *taskQueue) close(fn func() error) *taskResult {
	return q.push(fn, true)
}

func (q *taskQueue) push(fn func() error, final bool) *taskResult {
	res := &taskResult{done: make(chan struct{})}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		res.err = errQueueClosed
		close(res.done)
		return res
	}
	q.closed = final
	q.pending = append(q.pending, queuedTask{run: fn, result: res, final: final})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return res
}

func (q *taskQueue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			<-q.wake
			continue
		}
		t := q.pending[0]
		q.pending[0] = queuedTask{}
		q.pending = q.pending[1:]
		q.mu.Unlock()

		t.result.err = runTask(t.run)
		close(t.result.done)
		if t.final {
			return
		}
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

// Done closes when the worker goroutine has exited.
func (q *taskQueue) Done() <-chan struct{} {
	return q.done
}
