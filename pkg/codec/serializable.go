package codec

// Serializable marks a message type as eligible for the wire. Types that do
// not carry the marker never reach a codec: the messaging layer rejects them
// on send and drops them on receive.
//
// The marker method is never called; it only has to exist:
//
//	type Fragment struct{ ... }
//	func (Fragment) SerializableMessage() {}
type Serializable interface {
    SerializableMessage()
}

// IsSerializable reports whether T (or *T) carries the Serializable marker.
func IsSerializable[T any]() bool {
    var v T
    if _, ok := any(v).(Serializable); ok {
        return true
    }
    _, ok := any(&v).(Serializable)
    return ok
}
