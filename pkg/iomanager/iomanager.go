package iomanager

import (
    "fmt"
    "sync"
    "time"

    "go.uber.org/zap"

    "daqio/pkg/network"
    "daqio/pkg/queue"
)

// noCopy triggers `go vet` when an IOManager is copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// IOManager is the process-wide messaging facade. It owns the connection
// catalog and the endpoint registry and mediates configuration and teardown
// of the queue and network collaborators. All handles flow through the
// singleton; the type is neither copyable nor movable.
type IOManager struct {
    noCopy noCopy //nolint:unused

    mu         sync.Mutex
    catalog    Catalog
    registry   *registry
    configured []ConnectionID
}

var (
    iomOnce sync.Once
    iom     *IOManager
)

// Get returns the process-wide IOManager.
func Get() *IOManager {
    iomOnce.Do(func() {
        iom = &IOManager{registry: newRegistry()}
    })
    return iom
}

// sameDescriptors reports whether two configurations are identical,
// including order.
func sameDescriptors(a, b []ConnectionID) bool {
    if len(a) != len(b) {
        return false
    }
    for i := range a {
        if a[i] != b[i] {
            return false
        }
    }
    return true
}

// Configure registers the connection descriptors, routes queue descriptors
// to the queue registry and network descriptors to the network manager.
// Configuring twice with identical descriptors is a no-op; anything else
// requires a Reset first.
func (m *IOManager) Configure(descs []ConnectionID) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if m.configured != nil {
        if sameDescriptors(m.configured, descs) {
            return nil
        }
        return fmt.Errorf("%w: already configured with different descriptors", ErrInUse)
    }
    if err := m.catalog.Configure(descs); err != nil {
        return err
    }
    queueConfigs := make(map[string]queue.Config)
    var netConns []network.Connection
    for _, id := range descs {
        switch id.Kind {
        case KindQueue:
            impl, capacity, err := parseQueueAddress(id.Address)
            if err != nil {
                return err
            }
            queueConfigs[id.Name] = queue.Config{Impl: impl, Capacity: capacity}
        default:
            netConns = append(netConns, network.Connection{Name: id.Name, Address: id.Address})
        }
    }
    queue.GetRegistry().Configure(queueConfigs)
    if err := network.GetManager().Configure(netConns); err != nil {
        m.catalog.Reset()
        queue.GetRegistry().Reset()
        return err
    }
    m.configured = append([]ConnectionID(nil), descs...)
    zap.L().Info("iomanager configured",
        zap.Int("queues", len(queueConfigs)), zap.Int("network_connections", len(netConns)))
    return nil
}

// Reset tears down the registry, the collaborators and the catalog, in that
// order. It fails with ErrInUse while any endpoint still has a live delivery
// goroutine; remove all callbacks first, or use ForceReset.
func (m *IOManager) Reset() error { return m.resetInternal(false) }

// ForceReset removes outstanding callbacks and then resets. This matches
// the permissive teardown of older deployments; prefer Reset.
func (m *IOManager) ForceReset() {
    if err := m.resetInternal(true); err != nil {
        zap.L().Error("forced reset failed", zap.Error(err))
    }
}

func (m *IOManager) resetInternal(force bool) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if err := m.registry.reset(force); err != nil {
        return err
    }
    queue.GetRegistry().Reset()
    network.GetManager().Reset()
    m.catalog.Reset()
    m.configured = nil
    return nil
}

// SenderHandle is the sending view of a shared endpoint.
type SenderHandle[T any] struct {
    ep Endpoint[T]
}

// Send pushes one value, blocking up to timeout. Topic is an opaque routing
// header for pub/sub connections; pass "" for point-to-point and queues.
func (h *SenderHandle[T]) Send(value T, timeout time.Duration, topic string) error {
    return h.ep.Send(value, timeout, topic)
}

// TrySend is Send with the timeout folded into a boolean; non-fatal errors
// are logged instead of returned.
func (h *SenderHandle[T]) TrySend(value T, timeout time.Duration, topic string) bool {
    return h.ep.TrySend(value, timeout, topic)
}

// ReceiverHandle is the receiving view of a shared endpoint.
type ReceiverHandle[T any] struct {
    ep Endpoint[T]
}

// Receive pops one value, blocking up to timeout. It refuses with
// ErrCallbackConflict while a callback is registered on the endpoint.
func (h *ReceiverHandle[T]) Receive(timeout time.Duration) (T, error) {
    return h.ep.Receive(timeout)
}

// GetSender resolves the shared endpoint for (name, T) and returns its
// sending view. Repeated calls see the same underlying endpoint.
func GetSender[T any](m *IOManager, name string) (*SenderHandle[T], error) {
    ep, err := resolve[T](m.registry, &m.catalog, name)
    if err != nil {
        return nil, err
    }
    return &SenderHandle[T]{ep: ep}, nil
}

// GetReceiver resolves the shared endpoint for (name, T) and returns its
// receiving view.
func GetReceiver[T any](m *IOManager, name string) (*ReceiverHandle[T], error) {
    ep, err := resolve[T](m.registry, &m.catalog, name)
    if err != nil {
        return nil, err
    }
    return &ReceiverHandle[T]{ep: ep}, nil
}

// AddCallback registers fn on the endpoint for (name, T), replacing any
// prior callback, and starts the delivery goroutine. fn must not call
// RemoveCallback for its own endpoint.
func AddCallback[T any](m *IOManager, name string, fn func(T)) error {
    ep, err := resolve[T](m.registry, &m.catalog, name)
    if err != nil {
        return err
    }
    ep.AddCallback(fn)
    return nil
}

// RemoveCallback clears the callback on the endpoint for (name, T) and
// joins its delivery goroutine. Idempotent.
func RemoveCallback[T any](m *IOManager, name string) error {
    ep, err := resolve[T](m.registry, &m.catalog, name)
    if err != nil {
        return err
    }
    ep.RemoveCallback()
    return nil
}
