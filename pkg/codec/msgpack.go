package codec

import (
    "bytes"

    "github.com/vmihailenco/msgpack/v5"
)

type msgpackCodec struct{}

// NewMsgPack returns the MessagePack codec. This is the wire default for all
// network traffic. Struct fields are encoded as an array in declaration
// order, so peers must agree on field layout.
func NewMsgPack() Codec { return msgpackCodec{} }

func (msgpackCodec) ContentType() string { return "application/msgpack" }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
    var buf bytes.Buffer
    enc := msgpack.NewEncoder(&buf)
    enc.UseArrayEncodedStructs(true)
    if err := enc.Encode(v); err != nil {
        return nil, err
    }
    return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
    return msgpack.NewDecoder(bytes.NewReader(data)).Decode(v)
}
