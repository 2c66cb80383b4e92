package iomanager

import (
    "errors"
    "strconv"
    "sync"
    "sync/atomic"
    "testing"
    "time"
)

// Data is the serializable test message; NonSer is its unmarked twin.
type Data struct {
    D1 int
    D2 float64
    D3 string
}

func (Data) SerializableMessage() {}

type NonSer struct {
    D1 int
    D2 float64
    D3 string
}

func configure(t *testing.T, descs ...ConnectionID) *IOManager {
    t.Helper()
    m := Get()
    if err := m.Configure(descs); err != nil {
        t.Fatalf("configure: %v", err)
    }
    t.Cleanup(func() { m.ForceReset() })
    return m
}

func netConn(name, dataType string) ConnectionID {
    return ConnectionID{Name: name, Kind: KindNetReceiver, DataType: dataType, Address: "inproc://" + name}
}

func queueConn(name, dataType string, capacity int) ConnectionID {
    addr := "queue://fifo:" + strconv.Itoa(capacity)
    return ConnectionID{Name: name, Kind: KindQueue, DataType: dataType, Address: addr}
}

func TestFacadeSingleton(t *testing.T) {
    if Get() != Get() {
        t.Fatalf("Get must return the same facade instance")
    }
}

func TestRepeatedResolveSharesEndpoint(t *testing.T) {
    m := configure(t, netConn("conn", "Data"), queueConn("q", "Data", 10))

    s1, err := GetSender[Data](m, "conn")
    if err != nil { t.Fatalf("get sender: %v", err) }
    s2, err := GetSender[Data](m, "conn")
    if err != nil { t.Fatalf("get sender again: %v", err) }
    r1, err := GetReceiver[Data](m, "conn")
    if err != nil { t.Fatalf("get receiver: %v", err) }
    if s1.ep != s2.ep {
        t.Fatalf("repeated GetSender must share the endpoint")
    }
    if s1.ep != r1.ep {
        t.Fatalf("sender and receiver views must share the endpoint")
    }

    qs, err := GetSender[Data](m, "q")
    if err != nil { t.Fatalf("get queue sender: %v", err) }
    if qs.ep == s1.ep {
        t.Fatalf("different connections must not share endpoints")
    }
}

func TestSimpleSendReceive(t *testing.T) {
    m := configure(t, netConn("conn", "Data"), queueConn("q", "Data", 10))

    netSender, err := GetSender[Data](m, "conn")
    if err != nil { t.Fatalf("get net sender: %v", err) }
    netReceiver, err := GetReceiver[Data](m, "conn")
    if err != nil { t.Fatalf("get net receiver: %v", err) }
    qSender, err := GetSender[Data](m, "q")
    if err != nil { t.Fatalf("get queue sender: %v", err) }
    qReceiver, err := GetReceiver[Data](m, "q")
    if err != nil { t.Fatalf("get queue receiver: %v", err) }

    if err := netSender.Send(Data{56, 26.5, "test1"}, NoBlock, ""); err != nil {
        t.Fatalf("network send: %v", err)
    }
    got, err := netReceiver.Receive(10 * time.Millisecond)
    if err != nil { t.Fatalf("network receive: %v", err) }
    if got != (Data{56, 26.5, "test1"}) {
        t.Fatalf("network roundtrip mismatch: %#v", got)
    }

    if err := qSender.Send(Data{57, 27.5, "test2"}, 10*time.Millisecond, ""); err != nil {
        t.Fatalf("queue send: %v", err)
    }
    got, err = qReceiver.Receive(10 * time.Millisecond)
    if err != nil { t.Fatalf("queue receive: %v", err) }
    if got != (Data{57, 27.5, "test2"}) {
        t.Fatalf("queue roundtrip mismatch: %#v", got)
    }
}

func TestNonSerializableSendReceive(t *testing.T) {
    m := configure(t,
        ConnectionID{Name: "conn", Kind: KindNetReceiver, DataType: "NonSer", Address: "inproc://conn"},
        queueConn("q", "NonSer", 10),
    )

    netSender, err := GetSender[NonSer](m, "conn")
    if err != nil { t.Fatalf("get net sender: %v", err) }
    netReceiver, err := GetReceiver[NonSer](m, "conn")
    if err != nil { t.Fatalf("get net receiver: %v", err) }

    if err := netSender.Send(NonSer{56, 26.5, "test1"}, NoBlock, ""); !errors.Is(err, ErrNotSerializable) {
        t.Fatalf("expected ErrNotSerializable, got %v", err)
    }
    if netSender.TrySend(NonSer{56, 26.5, "test1"}, NoBlock, "") {
        t.Fatalf("try_send of non-serializable type must return false")
    }
    got, err := netReceiver.Receive(10 * time.Millisecond)
    if err != nil {
        t.Fatalf("non-serializable network receive must not error: %v", err)
    }
    if got != (NonSer{}) {
        t.Fatalf("expected default-constructed value, got %#v", got)
    }

    // queues carry the value directly, so the marker is irrelevant there
    qSender, err := GetSender[NonSer](m, "q")
    if err != nil { t.Fatalf("get queue sender: %v", err) }
    qReceiver, err := GetReceiver[NonSer](m, "q")
    if err != nil { t.Fatalf("get queue receiver: %v", err) }
    if err := qSender.Send(NonSer{57, 27.5, "test2"}, 10*time.Millisecond, ""); err != nil {
        t.Fatalf("queue send: %v", err)
    }
    qGot, err := qReceiver.Receive(10 * time.Millisecond)
    if err != nil { t.Fatalf("queue receive: %v", err) }
    if qGot != (NonSer{57, 27.5, "test2"}) {
        t.Fatalf("queue roundtrip mismatch: %#v", qGot)
    }
}

func TestCallbackDeliveryInOrder(t *testing.T) {
    m := configure(t, queueConn("q", "Data", 10))

    var mu sync.Mutex
    var seen []Data
    if err := AddCallback[Data](m, "q", func(d Data) {
        mu.Lock(); seen = append(seen, d); mu.Unlock()
    }); err != nil {
        t.Fatalf("add callback: %v", err)
    }

    sender, err := GetSender[Data](m, "q")
    if err != nil { t.Fatalf("get sender: %v", err) }
    want := []Data{{1, 1.5, "a"}, {2, 2.5, "b"}, {3, 3.5, "c"}}
    for _, d := range want {
        if err := sender.Send(d, 10*time.Millisecond, ""); err != nil {
            t.Fatalf("send: %v", err)
        }
    }

    deadline := time.Now().Add(time.Second)
    for {
        mu.Lock(); n := len(seen); mu.Unlock()
        if n >= len(want) {
            break
        }
        if time.Now().After(deadline) {
            t.Fatalf("callback observed %d/%d values within 1s", n, len(want))
        }
        time.Sleep(time.Millisecond)
    }
    mu.Lock()
    for i := range want {
        if seen[i] != want[i] {
            t.Fatalf("delivery order broken at %d: got %#v want %#v", i, seen[i], want[i])
        }
    }
    mu.Unlock()

    if err := RemoveCallback[Data](m, "q"); err != nil {
        t.Fatalf("remove callback: %v", err)
    }
    receiver, err := GetReceiver[Data](m, "q")
    if err != nil { t.Fatalf("get receiver: %v", err) }
    _, err = receiver.Receive(NoBlock)
    if errors.Is(err, ErrCallbackConflict) {
        t.Fatalf("receive after remove_callback must not report a conflict")
    }
    if !errors.Is(err, ErrTimeout) {
        t.Fatalf("expected ErrTimeout on drained queue, got %v", err)
    }
}

func TestCallbackConflict(t *testing.T) {
    m := configure(t, queueConn("q", "Data", 10))

    if err := AddCallback[Data](m, "q", func(Data) {}); err != nil {
        t.Fatalf("add callback: %v", err)
    }
    receiver, err := GetReceiver[Data](m, "q")
    if err != nil { t.Fatalf("get receiver: %v", err) }
    if _, err := receiver.Receive(10 * time.Millisecond); !errors.Is(err, ErrCallbackConflict) {
        t.Fatalf("expected ErrCallbackConflict, got %v", err)
    }
    if err := RemoveCallback[Data](m, "q"); err != nil {
        t.Fatalf("remove callback: %v", err)
    }
}

func TestNetworkCallbackDelivery(t *testing.T) {
    m := configure(t, netConn("conn", "Data"))

    got := make(chan Data, 1)
    if err := AddCallback[Data](m, "conn", func(d Data) { got <- d }); err != nil {
        t.Fatalf("add callback: %v", err)
    }
    sender, err := GetSender[Data](m, "conn")
    if err != nil { t.Fatalf("get sender: %v", err) }
    if err := sender.Send(Data{56, 26.5, "test1"}, NoBlock, ""); err != nil {
        t.Fatalf("send: %v", err)
    }
    select {
    case d := <-got:
        if d != (Data{56, 26.5, "test1"}) {
            t.Fatalf("callback value mismatch: %#v", d)
        }
    case <-time.After(time.Second):
        t.Fatalf("callback not invoked within 1s")
    }
    if err := RemoveCallback[Data](m, "conn"); err != nil {
        t.Fatalf("remove callback: %v", err)
    }
}

func TestNonSerializableNetworkCallbackNeverFires(t *testing.T) {
    m := configure(t, ConnectionID{Name: "conn", Kind: KindNetReceiver, DataType: "NonSer", Address: "inproc://conn"})

    var calls atomic.Int64
    if err := AddCallback[NonSer](m, "conn", func(NonSer) { calls.Add(1) }); err != nil {
        t.Fatalf("add callback: %v", err)
    }
    time.Sleep(50 * time.Millisecond)
    if err := RemoveCallback[NonSer](m, "conn"); err != nil {
        t.Fatalf("remove callback: %v", err)
    }
    if n := calls.Load(); n != 0 {
        t.Fatalf("callback fired %d times for a non-serializable type", n)
    }
}

func TestAddRemoveCallbackIdempotence(t *testing.T) {
    m := configure(t, queueConn("q", "Data", 10))

    for i := 0; i < 3; i++ {
        if err := AddCallback[Data](m, "q", func(Data) {}); err != nil {
            t.Fatalf("add callback %d: %v", i, err)
        }
        if err := RemoveCallback[Data](m, "q"); err != nil {
            t.Fatalf("remove callback %d: %v", i, err)
        }
    }
    // double remove is a no-op
    if err := RemoveCallback[Data](m, "q"); err != nil {
        t.Fatalf("idempotent remove: %v", err)
    }

    // endpoint is back to its initial state
    sender, err := GetSender[Data](m, "q")
    if err != nil { t.Fatalf("get sender: %v", err) }
    receiver, err := GetReceiver[Data](m, "q")
    if err != nil { t.Fatalf("get receiver: %v", err) }
    if err := sender.Send(Data{1, 0, ""}, NoBlock, ""); err != nil {
        t.Fatalf("send: %v", err)
    }
    if _, err := receiver.Receive(10 * time.Millisecond); err != nil {
        t.Fatalf("receive: %v", err)
    }
}

func TestAddCallbackReplacesPrior(t *testing.T) {
    m := configure(t, queueConn("q", "Data", 10))

    var first, second atomic.Int64
    if err := AddCallback[Data](m, "q", func(Data) { first.Add(1) }); err != nil {
        t.Fatalf("add first: %v", err)
    }
    if err := AddCallback[Data](m, "q", func(Data) { second.Add(1) }); err != nil {
        t.Fatalf("add second: %v", err)
    }
    sender, err := GetSender[Data](m, "q")
    if err != nil { t.Fatalf("get sender: %v", err) }
    if err := sender.Send(Data{1, 0, ""}, 10*time.Millisecond, ""); err != nil {
        t.Fatalf("send: %v", err)
    }
    deadline := time.Now().Add(time.Second)
    for second.Load() == 0 {
        if time.Now().After(deadline) {
            t.Fatalf("replacement callback never fired")
        }
        time.Sleep(time.Millisecond)
    }
    if first.Load() != 0 {
        t.Fatalf("replaced callback fired %d times", first.Load())
    }
    if err := RemoveCallback[Data](m, "q"); err != nil {
        t.Fatalf("remove callback: %v", err)
    }
}

func TestQueueBoundaries(t *testing.T) {
    m := configure(t, queueConn("q", "Data", 1))

    sender, err := GetSender[Data](m, "q")
    if err != nil { t.Fatalf("get sender: %v", err) }
    receiver, err := GetReceiver[Data](m, "q")
    if err != nil { t.Fatalf("get receiver: %v", err) }

    // receive on empty with timeout zero fails immediately
    if _, err := receiver.Receive(NoBlock); !errors.Is(err, ErrTimeout) {
        t.Fatalf("expected ErrTimeout on empty queue, got %v", err)
    }

    if err := sender.Send(Data{1, 0, ""}, NoBlock, ""); err != nil {
        t.Fatalf("send: %v", err)
    }
    // send on full with timeout zero fails immediately
    start := time.Now()
    if err := sender.Send(Data{2, 0, ""}, NoBlock, ""); !errors.Is(err, ErrTimeout) {
        t.Fatalf("expected ErrTimeout on full queue, got %v", err)
    }
    if time.Since(start) > 100*time.Millisecond {
        t.Fatalf("non-blocking send took %v", time.Since(start))
    }

    // send with indefinite timeout blocks until space frees
    done := make(chan error, 1)
    go func() { done <- sender.Send(Data{3, 0, ""}, Block, "") }()
    time.Sleep(20 * time.Millisecond)
    select {
    case err := <-done:
        t.Fatalf("blocking send returned early: %v", err)
    default:
    }
    if _, err := receiver.Receive(10 * time.Millisecond); err != nil {
        t.Fatalf("receive: %v", err)
    }
    select {
    case err := <-done:
        if err != nil {
            t.Fatalf("blocking send: %v", err)
        }
    case <-time.After(time.Second):
        t.Fatalf("blocking send did not complete after space freed")
    }
}

func TestTrySendQueueFull(t *testing.T) {
    m := configure(t, queueConn("q", "Data", 1))
    sender, err := GetSender[Data](m, "q")
    if err != nil { t.Fatalf("get sender: %v", err) }
    if !sender.TrySend(Data{1, 0, ""}, NoBlock, "") {
        t.Fatalf("try_send on empty queue failed")
    }
    if sender.TrySend(Data{2, 0, ""}, NoBlock, "") {
        t.Fatalf("try_send on full queue must return false")
    }
}

func TestTopicWarningOnQueueSend(t *testing.T) {
    // topics are meaningless for queues: the send must still go through
    m := configure(t, queueConn("q", "Data", 10))
    sender, err := GetSender[Data](m, "q")
    if err != nil { t.Fatalf("get sender: %v", err) }
    receiver, err := GetReceiver[Data](m, "q")
    if err != nil { t.Fatalf("get receiver: %v", err) }
    if err := sender.Send(Data{9, 0, "topical"}, NoBlock, "ignored"); err != nil {
        t.Fatalf("send with topic: %v", err)
    }
    if _, err := receiver.Receive(10 * time.Millisecond); err != nil {
        t.Fatalf("receive: %v", err)
    }
}

func TestPubSubDelivery(t *testing.T) {
    // publisher routes by topic; the subscriber connection's name is the topic
    m := configure(t,
        ConnectionID{Name: "status", Kind: KindNetSubscriber, DataType: "Data", Address: "inproc://bus"},
        ConnectionID{Name: "pub", Kind: KindNetPublisher, DataType: "Data", Address: "inproc://bus"},
    )
    receiver, err := GetReceiver[Data](m, "status")
    if err != nil { t.Fatalf("get subscriber: %v", err) }
    // prime the subscription before publishing
    if _, err := receiver.Receive(NoBlock); !errors.Is(err, ErrTimeout) {
        t.Fatalf("expected ErrTimeout on idle subscription, got %v", err)
    }

    sender, err := GetSender[Data](m, "pub")
    if err != nil { t.Fatalf("get publisher: %v", err) }
    if err := sender.Send(Data{5, 0.5, "s"}, NoBlock, "status"); err != nil {
        t.Fatalf("publish: %v", err)
    }
    got, err := receiver.Receive(100 * time.Millisecond)
    if err != nil { t.Fatalf("subscribe receive: %v", err) }
    if got != (Data{5, 0.5, "s"}) {
        t.Fatalf("pub/sub mismatch: %#v", got)
    }
}

func TestUnknownConnectionAndTypeMismatch(t *testing.T) {
    m := configure(t, netConn("conn", "Data"))

    if _, err := GetSender[Data](m, "ghost"); !errors.Is(err, ErrUnknownConnection) {
        t.Fatalf("expected ErrUnknownConnection, got %v", err)
    }
    if _, err := GetSender[NonSer](m, "conn"); !errors.Is(err, ErrTypeMismatch) {
        t.Fatalf("expected ErrTypeMismatch, got %v", err)
    }
}

func TestConfigureValidation(t *testing.T) {
    m := Get()
    t.Cleanup(func() { m.ForceReset() })

    err := m.Configure([]ConnectionID{netConn("dup", "Data"), netConn("dup", "Data")})
    if !errors.Is(err, ErrDuplicateName) {
        t.Fatalf("expected ErrDuplicateName, got %v", err)
    }
    err = m.Configure([]ConnectionID{{Name: "bad", Kind: KindNetReceiver, DataType: "Data", Address: "zmq://x"}})
    if !errors.Is(err, ErrInvalidAddress) {
        t.Fatalf("expected ErrInvalidAddress, got %v", err)
    }
    err = m.Configure([]ConnectionID{{Name: "badq", Kind: KindQueue, DataType: "Data", Address: "queue://fifo"}})
    if !errors.Is(err, ErrInvalidAddress) {
        t.Fatalf("expected ErrInvalidAddress for capacity-less queue, got %v", err)
    }
}

func TestConfigureResetConfigure(t *testing.T) {
    descs := []ConnectionID{netConn("conn", "Data"), queueConn("q", "Data", 10)}
    m := Get()
    t.Cleanup(func() { m.ForceReset() })

    if err := m.Configure(descs); err != nil { t.Fatalf("configure: %v", err) }
    // identical configure is a no-op
    if err := m.Configure(descs); err != nil { t.Fatalf("idempotent configure: %v", err) }
    // different configure without reset is refused
    if err := m.Configure([]ConnectionID{netConn("other", "Data")}); !errors.Is(err, ErrInUse) {
        t.Fatalf("expected ErrInUse for reconfigure, got %v", err)
    }
    if err := m.Reset(); err != nil { t.Fatalf("reset: %v", err) }
    if err := m.Configure(descs); err != nil { t.Fatalf("configure after reset: %v", err) }

    // endpoints work after the reconfigure cycle
    sender, err := GetSender[Data](m, "q")
    if err != nil { t.Fatalf("get sender: %v", err) }
    receiver, err := GetReceiver[Data](m, "q")
    if err != nil { t.Fatalf("get receiver: %v", err) }
    if err := sender.Send(Data{1, 0, ""}, NoBlock, ""); err != nil { t.Fatalf("send: %v", err) }
    if _, err := receiver.Receive(10 * time.Millisecond); err != nil { t.Fatalf("receive: %v", err) }
}

func TestResetRefusedWhileCallbackLive(t *testing.T) {
    m := configure(t, queueConn("q", "Data", 10))

    if err := AddCallback[Data](m, "q", func(Data) {}); err != nil {
        t.Fatalf("add callback: %v", err)
    }
    if err := m.Reset(); !errors.Is(err, ErrInUse) {
        t.Fatalf("expected ErrInUse while callback live, got %v", err)
    }
    if err := RemoveCallback[Data](m, "q"); err != nil {
        t.Fatalf("remove callback: %v", err)
    }
    if err := m.Reset(); err != nil {
        t.Fatalf("reset after drain: %v", err)
    }
}

func TestForceResetTearsDownCallbacks(t *testing.T) {
    m := configure(t, queueConn("q", "Data", 10))
    if err := AddCallback[Data](m, "q", func(Data) {}); err != nil {
        t.Fatalf("add callback: %v", err)
    }
    m.ForceReset()
    // fully reconfigurable afterwards
    if err := m.Configure([]ConnectionID{queueConn("q", "Data", 10)}); err != nil {
        t.Fatalf("configure after force reset: %v", err)
    }
}
