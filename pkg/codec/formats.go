package codec

// Thin wrappers over the encoder libraries backing the non-default
// formats. The wire default, MessagePack, lives in msgpack.go.

import (
    "encoding/json"
    "fmt"

    cbor "github.com/fxamacker/cbor/v2"
    "google.golang.org/protobuf/proto"
)

type jsonCodec struct{}

// NewJSON returns a JSON codec (RFC 8259), used for diagnostics and
// tooling where human-readable payloads matter more than size.
func NewJSON() Codec { return jsonCodec{} }

func (jsonCodec) ContentType() string { return "application/json" }
func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type cborCodec struct{ enc cbor.EncMode; dec cbor.DecMode }

// NewCBOR returns a deterministic CBOR codec using the RFC 7049 canonical
// encoding options. Mode construction can reject inconsistent options, so the error
// is propagated rather than swallowed.
func NewCBOR() (Codec, error) {
    em, err := cbor.CanonicalEncOptions().EncMode()
    if err != nil { return nil, err }
    dm, err := cbor.DecOptions{}.DecMode()
    if err != nil { return nil, err }
    return cborCodec{enc: em, dec: dm}, nil
}

func (c cborCodec) ContentType() string { return "application/cbor" }
func (c cborCodec) Marshal(v any) ([]byte, error) { return c.enc.Marshal(v) }
func (c cborCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }

type protoCodec struct {
    mo proto.MarshalOptions
    uo proto.UnmarshalOptions
}

// NewProto returns a Protocol Buffers codec with deterministic marshaling.
// Only values implementing proto.Message can pass through it.
func NewProto() Codec {
    return protoCodec{
        mo: proto.MarshalOptions{Deterministic: true},
        uo: proto.UnmarshalOptions{},
    }
}

func (p protoCodec) ContentType() string { return "application/x-protobuf" }

func (p protoCodec) Marshal(v any) ([]byte, error) {
    msg, ok := v.(proto.Message)
    if !ok {
        return nil, fmt.Errorf("protobuf: value does not implement proto.Message: %T", v)
    }
    return p.mo.Marshal(msg)
}

func (p protoCodec) Unmarshal(data []byte, v any) error {
    msg, ok := v.(proto.Message)
    if !ok {
        return fmt.Errorf("protobuf: target does not implement proto.Message: %T", v)
    }
    return p.uo.Unmarshal(data, msg)
}
