package net

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	// ErrProtocolNotSupported is returned when the remote end of a stream
	// does not speak the requested protocol, or when a listener is offered
	// a protocol it does not speak.
	ErrProtocolNotSupported = errors.New("protocol not supported")

	// ErrNotConnected is returned by Send when there is no session to the
	// target peer.
	ErrNotConnected = errors.New("peer not connected")

	errNotAdvertisable = errors.New("local bind address is not advertisable")
	errNotTCP          = errors.New("local address is not a TCP address")
)

// TransportError wraps dial, listen, identify and stream failures. They are
// always recoverable: the node logs them and relies on redialing.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ReadError is returned when a frame cannot be read from a stream, either
// because the stream failed or because the advertised length exceeds the
// limit. It is fatal to the stream only.
type ReadError struct {
	Reason string
	Err    error
}

func (e *ReadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("read frame: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("read frame: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *ReadError) Unwrap() error {
	return e.Err
}
