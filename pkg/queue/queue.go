// Package queue provides the bounded in-process FIFOs that back queue-kind
// connections, plus the process-wide registry that hands out one shared
// queue per connection name.
package queue

import (
    "errors"
    "fmt"
    "time"

    "go.uber.org/zap"
)

// ErrTimeout is returned when a push or pop deadline elapses.
var ErrTimeout = errors.New("queue: timeout expired")

// Queue is a bounded FIFO shared between one or more producers and consumers.
// All operations are safe for concurrent use.
type Queue[T any] struct {
    name string
    ch   chan T
}

// New creates a queue with the given capacity. Capacity must be positive.
func New[T any](name string, capacity int) *Queue[T] {
    if capacity <= 0 {
        capacity = 1
    }
    return &Queue[T]{name: name, ch: make(chan T, capacity)}
}

func (q *Queue[T]) Name() string { return q.name }
func (q *Queue[T]) Cap() int     { return cap(q.ch) }
func (q *Queue[T]) Len() int     { return len(q.ch) }

// Push appends value, waiting up to timeout for space. A timeout <= 0 means
// a single non-blocking attempt.
func (q *Queue[T]) Push(value T, timeout time.Duration) error {
    select {
    case q.ch <- value:
        return nil
    default:
    }
    if timeout <= 0 {
        return fmt.Errorf("%w: push on full queue %q", ErrTimeout, q.name)
    }
    t := time.NewTimer(timeout)
    defer t.Stop()
    select {
    case q.ch <- value:
        return nil
    case <-t.C:
        return fmt.Errorf("%w: push on queue %q after %v", ErrTimeout, q.name, timeout)
    }
}

// TryPush is Push with the timeout folded into a boolean. Failures are
// logged rather than returned.
func (q *Queue[T]) TryPush(value T, timeout time.Duration) bool {
    if err := q.Push(value, timeout); err != nil {
        zap.L().Debug("try_push failed", zap.String("queue", q.name), zap.Error(err))
        return false
    }
    return true
}

// Pop removes and returns the oldest value, waiting up to timeout for one to
// arrive. A timeout <= 0 means a single non-blocking attempt.
func (q *Queue[T]) Pop(timeout time.Duration) (T, error) {
    select {
    case v := <-q.ch:
        return v, nil
    default:
    }
    var zero T
    if timeout <= 0 {
        return zero, fmt.Errorf("%w: pop on empty queue %q", ErrTimeout, q.name)
    }
    t := time.NewTimer(timeout)
    defer t.Stop()
    select {
    case v := <-q.ch:
        return v, nil
    case <-t.C:
        return zero, fmt.Errorf("%w: pop on queue %q after %v", ErrTimeout, q.name, timeout)
    }
}
