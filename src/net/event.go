package net

import (
	"github.com/mosaicnetworks/hive/src/peers"
	"github.com/mosaicnetworks/hive/src/wire"
)

// Event is emitted by the Transport on its Events channel. The set of events
// is closed: ConnectionEstablished, ConnectionClosed, DialFailed and
// MessageReceived.
type Event interface {
	isEvent()
}

// ConnectionEstablished is emitted once a session is identified.
// OtherEstablished counts the sessions to the same peer that were already
// open.
type ConnectionEstablished struct {
	Peer             *peers.Peer
	ConnID           uint64
	OtherEstablished int
	Outbound         bool
}

// ConnectionClosed is emitted when an identified session terminates.
// RemainingEstablished counts the sessions to the same peer that are still
// open.
type ConnectionClosed struct {
	Peer                 *peers.Peer
	ConnID               uint64
	RemainingEstablished int
}

// DialFailed is emitted when an outbound connection could not be
// established. Peer is nil for dials by address.
type DialFailed struct {
	Peer *peers.Peer
	Addr string
	Err  error
}

// MessageReceived is emitted for every successfully upgraded inbound stream.
// Message is set for message protocols, Payload for the others.
type MessageReceived struct {
	Peer     *peers.Peer
	ConnID   uint64
	Protocol Protocol
	Message  wire.Message
	Payload  []byte
}

func (ConnectionEstablished) isEvent() {}
func (ConnectionClosed) isEvent()      {}
func (DialFailed) isEvent()            {}
func (MessageReceived) isEvent()       {}
