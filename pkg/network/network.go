// Package network provides the point-to-point and publish/subscribe
// transport bindings consumed by network-kind connections. Two address
// schemes are supported: inproc (an in-process exchange, useful for tests
// and single-process deployments) and tcp (length-prefixed frames over a
// stream socket).
package network

import (
    "errors"
    "fmt"
    "strings"
    "sync"
    "time"

    "go.uber.org/zap"
)

var (
    // ErrConnectionNotFound is returned when no binding exists for a name.
    ErrConnectionNotFound = errors.New("network: connection not found")
    // ErrReceiveTimeout is returned when no message arrives in time.
    ErrReceiveTimeout = errors.New("network: receive timeout expired")
    // ErrSendTimeout is returned when the transport cannot accept a buffer in time.
    ErrSendTimeout = errors.New("network: send timeout expired")
    // ErrInvalidAddress is returned for addresses no transport understands.
    ErrInvalidAddress = errors.New("network: invalid address")
)

// Response is one received message. Topic is empty for point-to-point
// traffic.
type Response struct {
    Data  []byte
    Topic string
}

// Sender hands byte buffers to the transport. Topic is an opaque routing
// header; empty means point-to-point.
type Sender interface {
    Send(data []byte, timeout time.Duration, topic string) error
    TrySend(data []byte, timeout time.Duration, topic string) bool
}

// Receiver reads one message per call.
type Receiver interface {
    Receive(timeout time.Duration) (Response, error)
}

// Subscriber is a Receiver restricted to subscribed topics.
type Subscriber interface {
    Receiver
    Subscribe(topic string) error
}

// Connection names one network binding and its locator.
type Connection struct {
    Name    string
    Address string
}

// ParseAddress splits an address into scheme and rest, validating the scheme.
func ParseAddress(address string) (scheme, rest string, err error) {
    i := strings.Index(address, "://")
    if i <= 0 {
        return "", "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
    }
    scheme, rest = address[:i], address[i+3:]
    switch scheme {
    case "inproc", "tcp":
        if rest == "" {
            return "", "", fmt.Errorf("%w: empty locator in %q", ErrInvalidAddress, address)
        }
        return scheme, rest, nil
    default:
        return "", "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAddress, scheme)
    }
}

// Manager owns the transport bindings for all configured connections.
// Senders and receivers are created lazily and shared per name.
type Manager struct {
    mu        sync.Mutex
    conns     map[string]Connection
    hub       *inprocHub
    senders   map[string]Sender
    receivers map[string]Receiver
    tcpRecv   map[string]*tcpReceiver // keyed by address so two names can share a listener
}

var (
    mgrOnce sync.Once
    mgr     *Manager
)

// GetManager returns the process-wide network manager.
func GetManager() *Manager {
    mgrOnce.Do(func() { mgr = NewManager() })
    return mgr
}

// NewManager creates an unconfigured manager. Most callers want GetManager.
func NewManager() *Manager {
    return &Manager{
        conns:     make(map[string]Connection),
        hub:       newInprocHub(),
        senders:   make(map[string]Sender),
        receivers: make(map[string]Receiver),
        tcpRecv:   make(map[string]*tcpReceiver),
    }
}

// Configure replaces the set of known connections. Addresses are validated
// here; bindings are created on first use.
func (m *Manager) Configure(conns []Connection) error {
    m.mu.Lock(); defer m.mu.Unlock()
    next := make(map[string]Connection, len(conns))
    for _, c := range conns {
        if _, _, err := ParseAddress(c.Address); err != nil {
            return fmt.Errorf("connection %q: %w", c.Name, err)
        }
        next[c.Name] = c
    }
    m.conns = next
    zap.L().Debug("network manager configured", zap.Int("connections", len(conns)))
    return nil
}

// Reset tears down all bindings and drops the configuration. Close failures
// are logged, not returned.
func (m *Manager) Reset() {
    m.mu.Lock(); defer m.mu.Unlock()
    for addr, r := range m.tcpRecv {
        if err := r.close(); err != nil {
            zap.L().Warn("tcp receiver close failed", zap.String("address", addr), zap.Error(err))
        }
    }
    for name, s := range m.senders {
        if ts, ok := s.(*tcpSender); ok {
            if err := ts.close(); err != nil {
                zap.L().Warn("tcp sender close failed", zap.String("connection", name), zap.Error(err))
            }
        }
    }
    m.conns = make(map[string]Connection)
    m.hub = newInprocHub()
    m.senders = make(map[string]Sender)
    m.receivers = make(map[string]Receiver)
    m.tcpRecv = make(map[string]*tcpReceiver)
}

// GetSender returns the shared sending binding for a connection name.
func (m *Manager) GetSender(name string) (Sender, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if s, ok := m.senders[name]; ok {
        return s, nil
    }
    c, ok := m.conns[name]
    if !ok {
        return nil, fmt.Errorf("%w: %q", ErrConnectionNotFound, name)
    }
    scheme, rest, err := ParseAddress(c.Address)
    if err != nil {
        return nil, err
    }
    var s Sender
    switch scheme {
    case "inproc":
        s = &inprocSender{hub: m.hub, address: rest}
    case "tcp":
        s = newTCPSender(rest)
    }
    m.senders[name] = s
    return s, nil
}

// GetReceiver returns the shared receiving binding for a connection name.
// The returned value also implements Subscriber for both schemes, so callers
// needing topic semantics can type-assert it down.
func (m *Manager) GetReceiver(name string) (Receiver, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if r, ok := m.receivers[name]; ok {
        return r, nil
    }
    c, ok := m.conns[name]
    if !ok {
        return nil, fmt.Errorf("%w: %q", ErrConnectionNotFound, name)
    }
    scheme, rest, err := ParseAddress(c.Address)
    if err != nil {
        return nil, err
    }
    var r Receiver
    switch scheme {
    case "inproc":
        r = m.hub.receiver(rest)
    case "tcp":
        tr, ok := m.tcpRecv[rest]
        if !ok {
            tr, err = newTCPReceiver(rest)
            if err != nil {
                return nil, err
            }
            m.tcpRecv[rest] = tr
        }
        r = tr
    }
    m.receivers[name] = r
    return r, nil
}

// GetSubscriber returns a subscription bound to one topic on the in-process
// exchange. Each call returns the shared subscriber for that topic.
func (m *Manager) GetSubscriber(topic string) (Subscriber, error) {
    if topic == "" {
        return nil, fmt.Errorf("%w: empty topic", ErrConnectionNotFound)
    }
    m.mu.Lock(); defer m.mu.Unlock()
    key := "topic://" + topic
    if r, ok := m.receivers[key]; ok {
        return r.(Subscriber), nil
    }
    sub := m.hub.receiver(key)
    if err := sub.Subscribe(topic); err != nil {
        return nil, err
    }
    m.receivers[key] = sub
    return sub, nil
}
