package iomanager

import (
    "errors"
    "fmt"
    "sync"
    "time"

    "go.uber.org/zap"

    "daqio/pkg/codec"
    "daqio/pkg/network"
)

// networkEndpoint sends and receives over a point-to-point or pub/sub
// transport binding, serializing payloads with the wire codec. Whether T is
// serializable is fixed at construction: non-serializable sends fail with
// ErrNotSerializable, non-serializable receives return the zero value
// without error (such traffic never reaches the wire, so there is nothing
// to read). The asymmetry is contractual.
type networkEndpoint[T any] struct {
    id           ConnectionID
    serializable bool
    refToTopic   bool

    // sendMu serializes writes into the transport and guards the lazily
    // acquired sender binding. recvMu does the same for reads.
    sendMu sync.Mutex
    sender network.Sender

    recvMu     sync.Mutex
    receiver   network.Receiver
    subscriber network.Subscriber
    bound      bool

    loop callbackLoop[T]
}

func newNetworkEndpoint[T any](id ConnectionID) *networkEndpoint[T] {
    return &networkEndpoint[T]{
        id:           id,
        serializable: codec.IsSerializable[T](),
        refToTopic:   id.Kind == KindNetPublisher || id.Kind == KindNetSubscriber,
    }
}

func (e *networkEndpoint[T]) Name() string { return e.id.Name }

func (e *networkEndpoint[T]) bindSenderLocked() (network.Sender, error) {
    if e.sender != nil {
        return e.sender, nil
    }
    s, err := network.GetManager().GetSender(e.id.Name)
    if err != nil {
        return nil, fmt.Errorf("%w: %q: %v", ErrInstanceNotFound, e.id.Name, err)
    }
    e.sender = s
    return s, nil
}

// bindReceiverLocked acquires the read-side binding. A net-receiver kind
// binds the point-to-point receiver; publisher/subscriber kinds bind a
// subscription keyed by the connection name; anything else falls back to
// asserting the point-to-point receiver down to a subscriber.
func (e *networkEndpoint[T]) bindReceiverLocked() error {
    if e.bound {
        return nil
    }
    mgr := network.GetManager()
    switch {
    case e.id.Kind == KindNetReceiver && !e.refToTopic:
        r, err := mgr.GetReceiver(e.id.Name)
        if err != nil {
            return fmt.Errorf("%w: %q: %v", ErrInstanceNotFound, e.id.Name, err)
        }
        e.receiver = r
    case e.refToTopic:
        s, err := mgr.GetSubscriber(e.id.Name)
        if err != nil {
            return fmt.Errorf("%w: %q: %v", ErrInstanceNotFound, e.id.Name, err)
        }
        e.subscriber = s
    default:
        r, err := mgr.GetReceiver(e.id.Name)
        if err != nil {
            return fmt.Errorf("%w: %q: %v", ErrInstanceNotFound, e.id.Name, err)
        }
        s, ok := r.(network.Subscriber)
        if !ok {
            return fmt.Errorf("%w: %q has no topic support", ErrInstanceNotFound, e.id.Name)
        }
        if err := s.Subscribe(e.id.Name); err != nil {
            return fmt.Errorf("%w: %q: %v", ErrInstanceNotFound, e.id.Name, err)
        }
        e.subscriber = s
    }
    e.bound = true
    return nil
}

func (e *networkEndpoint[T]) Send(value T, timeout time.Duration, topic string) error {
    if !e.serializable {
        return fmt.Errorf("%w: %s on connection %q", ErrNotSerializable, typeNameOf[T](), e.id.Name)
    }
    data, err := codec.Serialize(value, codec.MsgPack)
    if err != nil {
        return fmt.Errorf("serialize for %q: %w", e.id.Name, err)
    }
    e.sendMu.Lock(); defer e.sendMu.Unlock()
    s, err := e.bindSenderLocked()
    if err != nil {
        return err
    }
    if err := s.Send(data, timeout, topic); err != nil {
        if errors.Is(err, network.ErrSendTimeout) {
            return fmt.Errorf("%w: send on %q after %v", ErrTimeout, e.id.Name, timeout)
        }
        return fmt.Errorf("send on %q: %w", e.id.Name, err)
    }
    return nil
}

func (e *networkEndpoint[T]) TrySend(value T, timeout time.Duration, topic string) bool {
    if !e.serializable {
        zap.L().Error("try_send of non-serializable type over network connection",
            zap.String("connection", e.id.Name), zap.String("type", typeNameOf[T]()))
        return false
    }
    data, err := codec.Serialize(value, codec.MsgPack)
    if err != nil {
        zap.L().Error("try_send serialization failed", zap.String("connection", e.id.Name), zap.Error(err))
        return false
    }
    e.sendMu.Lock(); defer e.sendMu.Unlock()
    s, err := e.bindSenderLocked()
    if err != nil {
        zap.L().Error("try_send on unbound network connection", zap.String("connection", e.id.Name), zap.Error(err))
        return false
    }
    return s.TrySend(data, timeout, topic)
}

func (e *networkEndpoint[T]) Receive(timeout time.Duration) (T, error) {
    var zero T
    if e.loop.registered() {
        zap.L().Warn("endpoint is equipped with callback, ignoring receive call",
            zap.String("connection", e.id.Name))
        return zero, fmt.Errorf("%w: %q", ErrCallbackConflict, e.id.Name)
    }
    return e.readNetwork(timeout)
}

// readNetwork performs one transport read. For a non-serializable T it
// returns the zero value immediately: nothing of that type can be on the
// wire, and the documented contract is a silent drop.
func (e *networkEndpoint[T]) readNetwork(timeout time.Duration) (T, error) {
    var zero T
    if !e.serializable {
        return zero, nil
    }
    e.recvMu.Lock(); defer e.recvMu.Unlock()
    if err := e.bindReceiverLocked(); err != nil {
        return zero, err
    }
    var resp network.Response
    var err error
    if e.subscriber != nil {
        resp, err = e.subscriber.Receive(timeout)
    } else {
        resp, err = e.receiver.Receive(timeout)
    }
    if err != nil {
        if errors.Is(err, network.ErrReceiveTimeout) {
            return zero, fmt.Errorf("%w: receive on %q after %v", ErrTimeout, e.id.Name, timeout)
        }
        return zero, fmt.Errorf("receive on %q: %w", e.id.Name, err)
    }
    if len(resp.Data) == 0 {
        return zero, fmt.Errorf("%w: empty payload on %q", ErrTimeout, e.id.Name)
    }
    v, err := codec.Deserialize[T](resp.Data)
    if err != nil {
        return zero, fmt.Errorf("deserialize on %q: %w", e.id.Name, err)
    }
    return v, nil
}

func (e *networkEndpoint[T]) AddCallback(fn func(T)) {
    zap.L().Debug("registering callback", zap.String("connection", e.id.Name))
    e.loop.start(fn, func() (T, bool) {
        var zero T
        if !e.serializable {
            // the loop stays alive so lifecycle invariants hold, but a
            // callback for a non-serializable type never fires
            time.Sleep(networkCallbackTick)
            return zero, false
        }
        v, err := e.readNetwork(networkCallbackTick)
        if err != nil {
            // timeouts are a normal tick; other transport errors are
            // swallowed and the loop continues
            if !errors.Is(err, ErrTimeout) {
                zap.L().Debug("delivery loop read failed", zap.String("connection", e.id.Name), zap.Error(err))
            }
            return zero, false
        }
        return v, true
    })
}

func (e *networkEndpoint[T]) RemoveCallback() { e.loop.stop() }
