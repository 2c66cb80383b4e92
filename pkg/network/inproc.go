package network

import (
    "fmt"
    "sync"
    "time"

    "go.uber.org/zap"
)

// inprocBufferDepth bounds each in-process mailbox. Deep enough that a
// burst of non-blocking sends does not spuriously time out while a reader
// is draining.
const inprocBufferDepth = 65536

type frame struct {
    data  []byte
    topic string
}

// inprocHub is a process-local exchange: one bounded mailbox per address for
// point-to-point traffic, plus topic fan-out for publish/subscribe.
type inprocHub struct {
    mu        sync.Mutex
    mailboxes map[string]chan frame
    receivers map[string]*inprocReceiver
    topics    map[string][]*inprocReceiver
}

func newInprocHub() *inprocHub {
    return &inprocHub{
        mailboxes: make(map[string]chan frame),
        receivers: make(map[string]*inprocReceiver),
        topics:    make(map[string][]*inprocReceiver),
    }
}

func (h *inprocHub) mailbox(address string) chan frame {
    h.mu.Lock(); defer h.mu.Unlock()
    mb, ok := h.mailboxes[address]
    if !ok {
        mb = make(chan frame, inprocBufferDepth)
        h.mailboxes[address] = mb
    }
    return mb
}

// receiver returns the shared receiver for an address, creating it on first
// use. Two connection names bound to the same address converge here.
func (h *inprocHub) receiver(address string) *inprocReceiver {
    h.mu.Lock()
    if r, ok := h.receivers[address]; ok {
        h.mu.Unlock()
        return r
    }
    h.mu.Unlock()
    mb := h.mailbox(address)
    h.mu.Lock(); defer h.mu.Unlock()
    if r, ok := h.receivers[address]; ok {
        return r
    }
    r := &inprocReceiver{hub: h, mailbox: mb, subCh: make(chan frame, inprocBufferDepth)}
    h.receivers[address] = r
    return r
}

// publish fans a frame out to every subscriber of topic. Slow subscribers
// lose frames rather than stalling the publisher.
func (h *inprocHub) publish(topic string, f frame) {
    h.mu.Lock()
    subs := append([]*inprocReceiver(nil), h.topics[topic]...)
    h.mu.Unlock()
    for _, s := range subs {
        select {
        case s.subCh <- f:
        default:
            zap.L().Warn("inproc subscriber overrun, dropping frame", zap.String("topic", topic))
        }
    }
}

func (h *inprocHub) subscribe(topic string, r *inprocReceiver) {
    h.mu.Lock(); defer h.mu.Unlock()
    for _, s := range h.topics[topic] {
        if s == r {
            return
        }
    }
    h.topics[topic] = append(h.topics[topic], r)
}

type inprocSender struct {
    hub     *inprocHub
    address string
}

func (s *inprocSender) Send(data []byte, timeout time.Duration, topic string) error {
    f := frame{data: data, topic: topic}
    if topic != "" {
        s.hub.publish(topic, f)
        return nil
    }
    mb := s.hub.mailbox(s.address)
    select {
    case mb <- f:
        return nil
    default:
    }
    if timeout <= 0 {
        return fmt.Errorf("%w: inproc mailbox %q full", ErrSendTimeout, s.address)
    }
    t := time.NewTimer(timeout)
    defer t.Stop()
    select {
    case mb <- f:
        return nil
    case <-t.C:
        return fmt.Errorf("%w: inproc mailbox %q after %v", ErrSendTimeout, s.address, timeout)
    }
}

func (s *inprocSender) TrySend(data []byte, timeout time.Duration, topic string) bool {
    if err := s.Send(data, timeout, topic); err != nil {
        zap.L().Debug("inproc try_send failed", zap.String("address", s.address), zap.Error(err))
        return false
    }
    return true
}

// inprocReceiver drains both the point-to-point mailbox of its address and
// any topic subscriptions. Subscribed traffic is checked first, matching the
// subscriber-before-receiver read order of the endpoint layer.
type inprocReceiver struct {
    hub     *inprocHub
    mailbox chan frame
    subCh   chan frame
}

func (r *inprocReceiver) Subscribe(topic string) error {
    if topic == "" {
        return fmt.Errorf("%w: empty topic", ErrInvalidAddress)
    }
    r.hub.subscribe(topic, r)
    return nil
}

func (r *inprocReceiver) Receive(timeout time.Duration) (Response, error) {
    select {
    case f := <-r.subCh:
        return Response{Data: f.data, Topic: f.topic}, nil
    default:
    }
    select {
    case f := <-r.mailbox:
        return Response{Data: f.data, Topic: f.topic}, nil
    default:
    }
    if timeout <= 0 {
        return Response{}, fmt.Errorf("%w: inproc non-blocking receive", ErrReceiveTimeout)
    }
    t := time.NewTimer(timeout)
    defer t.Stop()
    select {
    case f := <-r.subCh:
        return Response{Data: f.data, Topic: f.topic}, nil
    case f := <-r.mailbox:
        return Response{Data: f.data, Topic: f.topic}, nil
    case <-t.C:
        return Response{}, fmt.Errorf("%w: inproc receive after %v", ErrReceiveTimeout, timeout)
    }
}
