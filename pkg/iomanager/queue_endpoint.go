package iomanager

import (
    "errors"
    "fmt"
    "time"

    "go.uber.org/zap"

    "daqio/pkg/queue"
)

// queueEndpoint sends and receives over a bounded in-process queue shared by
// everyone bound to the connection name. A nil queue (binding absent) is
// tolerated at construction; operations then fail with ErrInstanceNotFound.
type queueEndpoint[T any] struct {
    id   ConnectionID
    q    *queue.Queue[T]
    loop callbackLoop[T]
}

func newQueueEndpoint[T any](id ConnectionID) *queueEndpoint[T] {
    q, err := queue.GetQueue[T](queue.GetRegistry(), id.Name)
    if err != nil {
        zap.L().Warn("queue binding unavailable", zap.String("connection", id.Name), zap.Error(err))
    }
    return &queueEndpoint[T]{id: id, q: q}
}

func (e *queueEndpoint[T]) Name() string { return e.id.Name }

func (e *queueEndpoint[T]) Send(value T, timeout time.Duration, topic string) error {
    if topic != "" {
        zap.L().Warn("topics are invalid for queues, check config",
            zap.String("connection", e.id.Name), zap.String("topic", topic))
    }
    if e.q == nil {
        return fmt.Errorf("%w: %q", ErrInstanceNotFound, e.id.Name)
    }
    if err := e.q.Push(value, timeout); err != nil {
        return fmt.Errorf("%w: push on %q after %v: %v", ErrTimeout, e.id.Name, timeout, err)
    }
    return nil
}

func (e *queueEndpoint[T]) TrySend(value T, timeout time.Duration, topic string) bool {
    if topic != "" {
        zap.L().Warn("topics are invalid for queues, check config",
            zap.String("connection", e.id.Name), zap.String("topic", topic))
    }
    if e.q == nil {
        zap.L().Error("try_send on unbound queue connection", zap.String("connection", e.id.Name))
        return false
    }
    return e.q.TryPush(value, timeout)
}

func (e *queueEndpoint[T]) Receive(timeout time.Duration) (T, error) {
    var zero T
    if e.loop.registered() {
        zap.L().Warn("endpoint is equipped with callback, ignoring receive call",
            zap.String("connection", e.id.Name))
        return zero, fmt.Errorf("%w: %q", ErrCallbackConflict, e.id.Name)
    }
    if e.q == nil {
        return zero, fmt.Errorf("%w: %q", ErrInstanceNotFound, e.id.Name)
    }
    v, err := e.q.Pop(timeout)
    if err != nil {
        return zero, fmt.Errorf("%w: pop on %q after %v: %v", ErrTimeout, e.id.Name, timeout, err)
    }
    return v, nil
}

func (e *queueEndpoint[T]) AddCallback(fn func(T)) {
    zap.L().Debug("registering callback", zap.String("connection", e.id.Name))
    e.loop.start(fn, func() (T, bool) {
        var zero T
        if e.q == nil {
            // no binding; idle until the callback is removed
            time.Sleep(queueCallbackTick)
            return zero, false
        }
        v, err := e.q.Pop(queueCallbackTick)
        if err != nil {
            if !errors.Is(err, queue.ErrTimeout) {
                zap.L().Warn("delivery loop pop failed", zap.String("connection", e.id.Name), zap.Error(err))
            }
            return zero, false
        }
        return v, true
    })
}

func (e *queueEndpoint[T]) RemoveCallback() { e.loop.stop() }
