// Package codec provides the binary encoders/decoders used on the wire by
// the messaging layer. The wire default is MessagePack; CBOR, JSON and
// Protobuf are available for tooling and diagnostics.
package codec

import (
    "errors"
    "fmt"
)

// Codec defines a simple interface for marshaling typed messages.
// Implementations should be deterministic and safe for cross-node exchange.
type Codec interface {
    ContentType() string
    Marshal(v any) ([]byte, error)
    Unmarshal(data []byte, v any) error
}

// Format selects a serialization format. Serialized buffers carry the format
// as a one-byte tag ahead of the payload so the receiving side can decode
// without out-of-band agreement.
type Format byte

const (
    MsgPack Format = 'M'
    CBOR    Format = 'C'
    JSON    Format = 'J'
    Proto   Format = 'P'
)

func (f Format) String() string {
    switch f {
    case MsgPack:
        return "msgpack"
    case CBOR:
        return "cbor"
    case JSON:
        return "json"
    case Proto:
        return "protobuf"
    default:
        return "unknown"
    }
}

// Registry maps format tags to codecs.
type Registry struct { byFormat map[Format]Codec }

// NewRegistry constructs a registry preloaded with the codecs that
// construct without error paths: MessagePack, JSON and Protobuf. CBOR must
// be added explicitly with Register(CBOR, c), c being the codec from NewCBOR.
func NewRegistry() *Registry {
    r := &Registry{byFormat: make(map[Format]Codec)}
    r.Register(MsgPack, NewMsgPack())
    r.Register(JSON, NewJSON())
    r.Register(Proto, NewProto())
    return r
}

// Register adds a codec under a format tag.
func (r *Registry) Register(f Format, c Codec) { r.byFormat[f] = c }

// Get returns a codec by format tag, or nil.
func (r *Registry) Get(f Format) Codec { return r.byFormat[f] }

var defaultRegistry = newDefaultRegistry()

func newDefaultRegistry() *Registry {
    r := NewRegistry()
    c, err := NewCBOR()
    if err != nil {
        // the canonical encoding options are static; failing here is a
        // programming error, not a runtime condition
        panic(fmt.Sprintf("codec: cbor init: %v", err))
    }
    r.Register(CBOR, c)
    return r
}

var errEmptyBuffer = errors.New("codec: empty buffer")

// Serialize encodes value with the given format and prepends the format tag.
func Serialize(value any, f Format) ([]byte, error) {
    c := defaultRegistry.Get(f)
    if c == nil {
        return nil, fmt.Errorf("codec: unknown format %q", f.String())
    }
    body, err := c.Marshal(value)
    if err != nil {
        return nil, fmt.Errorf("codec: marshal %s: %w", f.String(), err)
    }
    buf := make([]byte, 0, len(body)+1)
    buf = append(buf, byte(f))
    return append(buf, body...), nil
}

// Deserialize decodes a format-tagged buffer produced by Serialize.
func Deserialize[T any](data []byte) (T, error) {
    var out T
    if len(data) == 0 {
        return out, errEmptyBuffer
    }
    f := Format(data[0])
    c := defaultRegistry.Get(f)
    if c == nil {
        return out, fmt.Errorf("codec: unknown format tag 0x%02x", data[0])
    }
    if err := c.Unmarshal(data[1:], &out); err != nil {
        return out, fmt.Errorf("codec: unmarshal %s: %w", f.String(), err)
    }
    return out, nil
}
