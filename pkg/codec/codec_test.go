package codec

import (
    "testing"

    "google.golang.org/protobuf/types/known/structpb"
)

type fragment struct {
    Seq  int
    Gain float64
    Tag  string
}

func (fragment) SerializableMessage() {}

type opaque struct {
    Seq int
}

func TestMsgPackRoundTrip(t *testing.T) {
    in := fragment{Seq: 56, Gain: 26.5, Tag: "test1"}
    b, err := Serialize(in, MsgPack)
    if err != nil { t.Fatalf("serialize: %v", err) }
    if Format(b[0]) != MsgPack { t.Fatalf("missing format tag: 0x%02x", b[0]) }
    out, err := Deserialize[fragment](b)
    if err != nil { t.Fatalf("deserialize: %v", err) }
    if out != in { t.Fatalf("roundtrip mismatch: %#v", out) }
}

func TestFormatTagDispatch(t *testing.T) {
    in := fragment{Seq: 7, Gain: 1.5, Tag: "x"}
    for _, f := range []Format{MsgPack, CBOR, JSON} {
        b, err := Serialize(in, f)
        if err != nil { t.Fatalf("serialize %s: %v", f, err) }
        out, err := Deserialize[fragment](b)
        if err != nil { t.Fatalf("deserialize %s: %v", f, err) }
        if out != in { t.Fatalf("%s roundtrip mismatch: %#v", f, out) }
    }
}

func TestDeserializeRejectsGarbage(t *testing.T) {
    if _, err := Deserialize[fragment](nil); err == nil {
        t.Fatalf("expected error for empty buffer")
    }
    if _, err := Deserialize[fragment]([]byte{0xFF, 0x01}); err == nil {
        t.Fatalf("expected error for unknown format tag")
    }
}

func TestCBORCodec(t *testing.T) {
    c, err := NewCBOR()
    if err != nil { t.Fatalf("new cbor: %v", err) }
    in := fragment{Seq: 42, Gain: 0.25, Tag: "y"}
    b, err := c.Marshal(in)
    if err != nil { t.Fatalf("marshal: %v", err) }
    var out fragment
    if err := c.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
    if out != in { t.Fatalf("roundtrip mismatch: %#v", out) }
}

func TestProtoCodec(t *testing.T) {
    c := NewProto()
    s, err := structpb.NewStruct(map[string]any{"k": "v"})
    if err != nil { t.Fatalf("struct: %v", err) }
    b, err := c.Marshal(s)
    if err != nil { t.Fatalf("marshal: %v", err) }
    var out structpb.Struct
    if err := c.Unmarshal(b, &out); err != nil { t.Fatalf("unmarshal: %v", err) }
    if out.Fields["k"].GetStringValue() != "v" { t.Fatalf("roundtrip mismatch") }
}

func TestProtoCodecRejectsPlainStruct(t *testing.T) {
    c := NewProto()
    if _, err := c.Marshal(fragment{}); err == nil {
        t.Fatalf("expected error for non-proto value")
    }
}

func TestIsSerializable(t *testing.T) {
    if !IsSerializable[fragment]() {
        t.Fatalf("fragment should be serializable")
    }
    if IsSerializable[opaque]() {
        t.Fatalf("opaque should not be serializable")
    }
}
