package iomanager

import "errors"

// Error kinds surfaced by the messaging layer. Callers classify failures
// with errors.Is; the wrapped text carries the connection and operation.
var (
    // ErrUnknownConnection: the name is absent from the catalog.
    ErrUnknownConnection = errors.New("iomanager: unknown connection")
    // ErrTypeMismatch: the requested payload type disagrees with the
    // descriptor's type tag.
    ErrTypeMismatch = errors.New("iomanager: payload type mismatch")
    // ErrInstanceNotFound: a collaborator returned no binding for the name.
    ErrInstanceNotFound = errors.New("iomanager: connection instance not found")
    // ErrTimeout: the deadline elapsed on send or receive.
    ErrTimeout = errors.New("iomanager: timeout expired")
    // ErrCallbackConflict: direct receive on an endpoint with an active callback.
    ErrCallbackConflict = errors.New("iomanager: receive conflicts with registered callback")
    // ErrNotSerializable: send of a non-serializable type over a network endpoint.
    ErrNotSerializable = errors.New("iomanager: message type is not serializable")
    // ErrDuplicateName: two descriptors share a name.
    ErrDuplicateName = errors.New("iomanager: duplicate connection name")
    // ErrInvalidAddress: the address is malformed for its kind.
    ErrInvalidAddress = errors.New("iomanager: invalid address")
    // ErrInUse: reset attempted while live endpoints remain.
    ErrInUse = errors.New("iomanager: live endpoints still registered")
)
