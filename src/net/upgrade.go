package net

import (
	"io"

	"github.com/mosaicnetworks/hive/src/wire"
)

// Inbound is the result of upgrading an inbound stream. Message is set for
// protocols that carry a wire.Message, Payload holds the raw frame otherwise.
type Inbound struct {
	Protocol Protocol
	Message  wire.Message
	Payload  []byte
}

// UpgradeInbound negotiates one of protocols on a freshly accepted stream and
// reads a single frame from it. Frames of message protocols are decoded; a
// malformed payload yields a *wire.DecodeError.
func UpgradeInbound(stream io.ReadWriter, protocols []Protocol) (*Inbound, error) {
	p, err := HandleProtocol(stream, protocols)
	if err != nil {
		return nil, err
	}

	payload, err := ReadFrame(stream, wire.MaxMessageSize)
	if err != nil {
		return nil, err
	}

	in := &Inbound{Protocol: p}

	if k := p.Kind(); k != 0 {
		m, err := wire.Decode(k, payload)
		if err != nil {
			return nil, err
		}
		in.Message = m
	} else {
		in.Payload = payload
	}

	return in, nil
}

// UpgradeOutbound negotiates p on a freshly opened stream, writes payload as
// a single frame and closes the stream. Closing a multiplexed stream only
// closes our write side, the remote can still read the frame.
func UpgradeOutbound(stream io.ReadWriteCloser, p Protocol, payload []byte) error {
	if err := SelectProtocol(stream, p); err != nil {
		stream.Close()
		return err
	}

	if err := WriteFrame(stream, payload); err != nil {
		stream.Close()
		return err
	}

	return stream.Close()
}
