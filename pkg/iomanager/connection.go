// Package iomanager is the unified messaging facade of the application
// framework. Components exchange typed messages over named connections
// without caring whether the peer sits behind an in-process bounded queue or
// a network transport. A connection name plus a message type resolves to one
// shared endpoint; callers push/pop with a timeout or register a callback
// that runs on a dedicated delivery goroutine.
package iomanager

import (
    "fmt"
    "math"
    "strconv"
    "strings"
    "sync/atomic"
    "time"

    "daqio/pkg/network"
)

// Timeout sentinels. Zero never blocks; Block waits indefinitely.
const (
    NoBlock time.Duration = 0
    Block   time.Duration = math.MaxInt64
)

// Kind identifies how a connection is realized.
type Kind int

const (
    KindUnknown Kind = iota
    KindQueue
    KindNetSender
    KindNetReceiver
    KindNetPublisher
    KindNetSubscriber
)

func (k Kind) String() string {
    switch k {
    case KindQueue:
        return "queue"
    case KindNetSender:
        return "net-sender"
    case KindNetReceiver:
        return "net-receiver"
    case KindNetPublisher:
        return "net-publisher"
    case KindNetSubscriber:
        return "net-subscriber"
    default:
        return "unknown"
    }
}

// ParseKind maps a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "queue":
        return KindQueue, nil
    case "net-sender", "netsender":
        return KindNetSender, nil
    case "net-receiver", "netreceiver":
        return KindNetReceiver, nil
    case "net-publisher", "netpublisher":
        return KindNetPublisher, nil
    case "net-subscriber", "netsubscriber":
        return KindNetSubscriber, nil
    default:
        return KindUnknown, fmt.Errorf("unknown connection kind %q", s)
    }
}

// ConnectionID describes one named connection: its realization, the message
// type it carries (by bare type name) and a transport locator. Queue
// addresses use `queue://<impl>:<capacity>`, network addresses use
// `inproc://name` or `tcp://host:port`. Descriptors are immutable once
// registered.
type ConnectionID struct {
    Name     string
    Kind     Kind
    DataType string
    Address  string
}

// parseQueueAddress extracts the implementation label and capacity from a
// queue:// locator.
func parseQueueAddress(address string) (impl string, capacity int, err error) {
    rest, ok := strings.CutPrefix(address, "queue://")
    if !ok || rest == "" {
        return "", 0, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
    }
    i := strings.LastIndex(rest, ":")
    if i <= 0 || i == len(rest)-1 {
        return "", 0, fmt.Errorf("%w: missing capacity in %q", ErrInvalidAddress, address)
    }
    capacity, err = strconv.Atoi(rest[i+1:])
    if err != nil || capacity <= 0 {
        return "", 0, fmt.Errorf("%w: bad capacity in %q", ErrInvalidAddress, address)
    }
    return rest[:i], capacity, nil
}

// validateDescriptor checks the address against the descriptor kind.
func validateDescriptor(id ConnectionID) error {
    if id.Name == "" {
        return fmt.Errorf("%w: empty connection name", ErrInvalidAddress)
    }
    switch id.Kind {
    case KindQueue:
        _, _, err := parseQueueAddress(id.Address)
        return err
    case KindNetSender, KindNetReceiver, KindNetPublisher, KindNetSubscriber:
        if _, _, err := network.ParseAddress(id.Address); err != nil {
            return fmt.Errorf("%w: %q for connection %q", ErrInvalidAddress, id.Address, id.Name)
        }
        return nil
    default:
        return fmt.Errorf("%w: connection %q has unknown kind", ErrInvalidAddress, id.Name)
    }
}

// Catalog holds the registered connection descriptors. It is pure metadata:
// after Configure the map is immutable and lookups are lock-free.
type Catalog struct {
    descs atomic.Pointer[map[string]ConnectionID]
}

// Configure replaces the catalog contents after validating every descriptor.
func (c *Catalog) Configure(descs []ConnectionID) error {
    next := make(map[string]ConnectionID, len(descs))
    for _, id := range descs {
        if _, dup := next[id.Name]; dup {
            return fmt.Errorf("%w: %q", ErrDuplicateName, id.Name)
        }
        if err := validateDescriptor(id); err != nil {
            return err
        }
        next[id.Name] = id
    }
    c.descs.Store(&next)
    return nil
}

// Lookup returns the descriptor for a name.
func (c *Catalog) Lookup(name string) (ConnectionID, error) {
    m := c.descs.Load()
    if m == nil {
        return ConnectionID{}, fmt.Errorf("%w: %q (catalog not configured)", ErrUnknownConnection, name)
    }
    id, ok := (*m)[name]
    if !ok {
        return ConnectionID{}, fmt.Errorf("%w: %q", ErrUnknownConnection, name)
    }
    return id, nil
}

// Reset clears the catalog. Liveness of endpoints is the registry's concern;
// the facade orders teardown so this is only called once handles are drained.
func (c *Catalog) Reset() {
    c.descs.Store(nil)
}
