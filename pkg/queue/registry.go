package queue

import (
    "errors"
    "fmt"
    "reflect"
    "sync"

    "go.uber.org/zap"
)

// Config describes one named queue. Impl is a label for the backing
// implementation (such as "fifo" or "spsc"); the label is not checked and
// every queue is a buffered channel. Capacity is the bound.
type Config struct {
    Impl     string
    Capacity int
}

var (
    // ErrNotConfigured is returned when a queue name has no configuration.
    ErrNotConfigured = errors.New("queue: no configuration for name")
    // ErrTypeMismatch is returned when a queue is requested under a
    // different element type than the one it was created with.
    ErrTypeMismatch = errors.New("queue: element type mismatch")
)

type entry struct {
    typeName string
    q        any
}

// Registry creates queues lazily from configuration and hands out the shared
// instance on every subsequent request for the same name. The element type is
// fixed on first access.
type Registry struct {
    mu      sync.Mutex
    configs map[string]Config
    queues  map[string]*entry
}

var (
    regOnce sync.Once
    reg     *Registry
)

// GetRegistry returns the process-wide queue registry.
func GetRegistry() *Registry {
    regOnce.Do(func() {
        reg = &Registry{configs: make(map[string]Config), queues: make(map[string]*entry)}
    })
    return reg
}

// Configure replaces the set of known queue configurations. Existing queue
// instances are dropped, so Configure must not race with live endpoints.
func (r *Registry) Configure(configs map[string]Config) {
    r.mu.Lock(); defer r.mu.Unlock()
    r.configs = make(map[string]Config, len(configs))
    for name, c := range configs {
        r.configs[name] = c
    }
    r.queues = make(map[string]*entry)
    zap.L().Debug("queue registry configured", zap.Int("queues", len(configs)))
}

// Reset drops all configurations and queue instances.
func (r *Registry) Reset() {
    r.mu.Lock(); defer r.mu.Unlock()
    r.configs = make(map[string]Config)
    r.queues = make(map[string]*entry)
}

// GetQueue returns the shared queue for name, creating it on first access.
// The element type T is recorded then; a later request under a different T
// fails with ErrTypeMismatch.
func GetQueue[T any](r *Registry, name string) (*Queue[T], error) {
    tn := typeNameOf[T]()
    r.mu.Lock(); defer r.mu.Unlock()
    if e, ok := r.queues[name]; ok {
        if e.typeName != tn {
            return nil, fmt.Errorf("%w: queue %q holds %s, requested %s", ErrTypeMismatch, name, e.typeName, tn)
        }
        return e.q.(*Queue[T]), nil
    }
    c, ok := r.configs[name]
    if !ok {
        return nil, fmt.Errorf("%w: %q", ErrNotConfigured, name)
    }
    q := New[T](name, c.Capacity)
    r.queues[name] = &entry{typeName: tn, q: q}
    zap.L().Debug("queue created", zap.String("name", name), zap.String("type", tn), zap.Int("capacity", c.Capacity))
    return q, nil
}

// typeNameOf returns the bare type name of T, without package qualifier.
// Descriptors reference message types by this name.
func typeNameOf[T any]() string {
    t := reflect.TypeOf((*T)(nil)).Elem()
    for t.Kind() == reflect.Pointer {
        t = t.Elem()
    }
    if t.Name() != "" {
        return t.Name()
    }
    return t.String()
}
