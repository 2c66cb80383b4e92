package network

import (
    "bufio"
    "encoding/binary"
    "errors"
    "fmt"
    "io"
    "net"
    "sync"
    "time"

    "go.uber.org/zap"
)

// Frames on the wire: u32 LE total length, u16 LE topic length, topic bytes,
// payload bytes. The topic rides as a transport-level header so the payload
// stays opaque to routing.
const maxFrameSize = 1 << 26

func writeFrame(bw *bufio.Writer, data []byte, topic string) error {
    total := 2 + len(topic) + len(data)
    if total > maxFrameSize {
        return fmt.Errorf("tcp: frame too large: %d", total)
    }
    var lenbuf [4]byte
    binary.LittleEndian.PutUint32(lenbuf[:], uint32(total))
    if _, err := bw.Write(lenbuf[:]); err != nil { return err }
    var tlen [2]byte
    binary.LittleEndian.PutUint16(tlen[:], uint16(len(topic)))
    if _, err := bw.Write(tlen[:]); err != nil { return err }
    if _, err := bw.WriteString(topic); err != nil { return err }
    if _, err := bw.Write(data); err != nil { return err }
    return bw.Flush()
}

func readFrame(br *bufio.Reader) (frame, error) {
    var lenbuf [4]byte
    if _, err := io.ReadFull(br, lenbuf[:]); err != nil { return frame{}, err }
    total := int(binary.LittleEndian.Uint32(lenbuf[:]))
    if total < 2 || total > maxFrameSize {
        return frame{}, fmt.Errorf("tcp: invalid frame size %d", total)
    }
    buf := make([]byte, total)
    if _, err := io.ReadFull(br, buf); err != nil { return frame{}, err }
    tl := int(binary.LittleEndian.Uint16(buf[:2]))
    if 2+tl > total {
        return frame{}, fmt.Errorf("tcp: invalid topic length %d", tl)
    }
    return frame{topic: string(buf[2 : 2+tl]), data: buf[2+tl:]}, nil
}

// tcpSender dials lazily and serializes writes on one connection. A write
// error drops the connection so the next send redials.
type tcpSender struct {
    mu      sync.Mutex
    address string
    c       net.Conn
    bw      *bufio.Writer
}

func newTCPSender(address string) *tcpSender { return &tcpSender{address: address} }

func (s *tcpSender) connectLocked(timeout time.Duration) error {
    if s.c != nil {
        return nil
    }
    d := net.Dialer{}
    if timeout > 0 {
        d.Timeout = timeout
    }
    c, err := d.Dial("tcp", s.address)
    if err != nil {
        return fmt.Errorf("tcp: dial %s: %w", s.address, err)
    }
    s.c = c
    s.bw = bufio.NewWriter(c)
    return nil
}

func (s *tcpSender) Send(data []byte, timeout time.Duration, topic string) error {
    s.mu.Lock(); defer s.mu.Unlock()
    if err := s.connectLocked(timeout); err != nil {
        return err
    }
    if timeout > 0 {
        _ = s.c.SetWriteDeadline(time.Now().Add(timeout))
    } else {
        _ = s.c.SetWriteDeadline(time.Time{})
    }
    if err := writeFrame(s.bw, data, topic); err != nil {
        _ = s.c.Close()
        s.c, s.bw = nil, nil
        var ne net.Error
        if errors.As(err, &ne) && ne.Timeout() {
            return fmt.Errorf("%w: tcp send to %s", ErrSendTimeout, s.address)
        }
        return fmt.Errorf("tcp: send to %s: %w", s.address, err)
    }
    return nil
}

func (s *tcpSender) TrySend(data []byte, timeout time.Duration, topic string) bool {
    if err := s.Send(data, timeout, topic); err != nil {
        zap.L().Debug("tcp try_send failed", zap.String("address", s.address), zap.Error(err))
        return false
    }
    return true
}

func (s *tcpSender) close() error {
    s.mu.Lock(); defer s.mu.Unlock()
    if s.c == nil {
        return nil
    }
    err := s.c.Close()
    s.c, s.bw = nil, nil
    return err
}

// tcpReceiver listens on an address and fans frames from all inbound
// connections into one mailbox. It also implements Subscriber: once any
// topic is subscribed, topic frames outside the subscription set are dropped.
type tcpReceiver struct {
    l       net.Listener
    inbound chan frame
    closeCh chan struct{}

    mu     sync.Mutex
    conns  map[net.Conn]struct{}
    topics map[string]struct{}
}

func newTCPReceiver(address string) (*tcpReceiver, error) {
    l, err := net.Listen("tcp", address)
    if err != nil {
        return nil, fmt.Errorf("tcp: listen %s: %w", address, err)
    }
    r := &tcpReceiver{
        l:       l,
        inbound: make(chan frame, 4096),
        closeCh: make(chan struct{}),
        conns:   make(map[net.Conn]struct{}),
        topics:  make(map[string]struct{}),
    }
    go r.acceptLoop()
    return r, nil
}

func (r *tcpReceiver) acceptLoop() {
    for {
        c, err := r.l.Accept()
        if err != nil {
            return
        }
        r.mu.Lock(); r.conns[c] = struct{}{}; r.mu.Unlock()
        go r.readLoop(c)
    }
}

func (r *tcpReceiver) readLoop(c net.Conn) {
    defer func() {
        r.mu.Lock(); delete(r.conns, c); r.mu.Unlock()
        _ = c.Close()
    }()
    br := bufio.NewReader(c)
    for {
        f, err := readFrame(br)
        if err != nil {
            if !errors.Is(err, io.EOF) {
                zap.L().Debug("tcp read loop ended", zap.Error(err))
            }
            return
        }
        select {
        case r.inbound <- f:
        case <-r.closeCh:
            return
        }
    }
}

func (r *tcpReceiver) Subscribe(topic string) error {
    if topic == "" {
        return fmt.Errorf("%w: empty topic", ErrInvalidAddress)
    }
    r.mu.Lock(); defer r.mu.Unlock()
    r.topics[topic] = struct{}{}
    return nil
}

// wanted reports whether a frame passes the subscription filter.
func (r *tcpReceiver) wanted(f frame) bool {
    if f.topic == "" {
        return true
    }
    r.mu.Lock(); defer r.mu.Unlock()
    if len(r.topics) == 0 {
        return true
    }
    _, ok := r.topics[f.topic]
    return ok
}

func (r *tcpReceiver) Receive(timeout time.Duration) (Response, error) {
    deadline := time.Now().Add(timeout)
    for {
        var remaining time.Duration
        if timeout > 0 {
            remaining = time.Until(deadline)
            if remaining <= 0 {
                return Response{}, fmt.Errorf("%w: tcp receive after %v", ErrReceiveTimeout, timeout)
            }
        }
        var f frame
        if timeout <= 0 {
            select {
            case f = <-r.inbound:
            default:
                return Response{}, fmt.Errorf("%w: tcp non-blocking receive", ErrReceiveTimeout)
            }
        } else {
            t := time.NewTimer(remaining)
            select {
            case f = <-r.inbound:
                t.Stop()
            case <-t.C:
                return Response{}, fmt.Errorf("%w: tcp receive after %v", ErrReceiveTimeout, timeout)
            }
        }
        if r.wanted(f) {
            return Response{Data: f.data, Topic: f.topic}, nil
        }
        // filtered out; keep draining until the deadline
    }
}

func (r *tcpReceiver) close() error {
    select {
    case <-r.closeCh:
        return nil
    default:
        close(r.closeCh)
    }
    err := r.l.Close()
    r.mu.Lock()
    for c := range r.conns {
        _ = c.Close()
    }
    r.mu.Unlock()
    return err
}
