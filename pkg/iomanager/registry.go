package iomanager

import (
    "fmt"
    "sync"

    "go.uber.org/zap"
)

type endpointKey struct {
    name     string
    typeName string
}

// liveEndpoint is the type-erased view the registry keeps for lifecycle
// checks and forced teardown.
type liveEndpoint interface {
    RemoveCallback()
    callbackActive() bool
}

func (e *queueEndpoint[T]) callbackActive() bool   { return e.loop.registered() }
func (e *networkEndpoint[T]) callbackActive() bool { return e.loop.registered() }

// registry caches one endpoint per (connection name, payload type). Sharing
// prevents competing callback loops and lets two components on the same
// connection converge on the same queue or transport binding.
type registry struct {
    mu        sync.Mutex
    endpoints map[endpointKey]any
    live      map[endpointKey]liveEndpoint
}

func newRegistry() *registry {
    return &registry{
        endpoints: make(map[endpointKey]any),
        live:      make(map[endpointKey]liveEndpoint),
    }
}

// resolve returns the cached endpoint for (name, T), constructing the
// correct variant from the catalog descriptor on first request.
func resolve[T any](r *registry, cat *Catalog, name string) (Endpoint[T], error) {
    id, err := cat.Lookup(name)
    if err != nil {
        return nil, err
    }
    tn := typeNameOf[T]()
    if id.DataType != tn {
        return nil, fmt.Errorf("%w: connection %q carries %q, requested %q",
            ErrTypeMismatch, name, id.DataType, tn)
    }
    key := endpointKey{name: name, typeName: tn}
    r.mu.Lock(); defer r.mu.Unlock()
    if ep, ok := r.endpoints[key]; ok {
        return ep.(Endpoint[T]), nil
    }
    var ep Endpoint[T]
    var le liveEndpoint
    if id.Kind == KindQueue {
        qe := newQueueEndpoint[T](id)
        ep, le = qe, qe
    } else {
        ne := newNetworkEndpoint[T](id)
        ep, le = ne, ne
    }
    r.endpoints[key] = ep
    r.live[key] = le
    zap.L().Debug("endpoint created",
        zap.String("connection", name), zap.String("type", tn), zap.Stringer("kind", id.Kind))
    return ep, nil
}

// reset tears the cache down. In strict mode any endpoint with a live
// delivery goroutine fails the reset; forced mode removes callbacks first.
func (r *registry) reset(force bool) error {
    r.mu.Lock(); defer r.mu.Unlock()
    for key, le := range r.live {
        if le.callbackActive() {
            if !force {
                return fmt.Errorf("%w: %s (%s)", ErrInUse, key.name, key.typeName)
            }
            le.RemoveCallback()
        }
    }
    r.endpoints = make(map[endpointKey]any)
    r.live = make(map[endpointKey]liveEndpoint)
    return nil
}
