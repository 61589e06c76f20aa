package session

import (
	"github.com/mosaicnetworks/hive/src/peers"
	"github.com/mosaicnetworks/hive/src/wire"
)

// Action is an intent queued by the Manager for the driver to carry out. The
// set of actions is closed: Dial, Send and Deliver.
type Action interface {
	isAction()
}

// Dial asks the driver to connect to Peer.
type Dial struct {
	Peer *peers.Peer
}

// Send asks the driver to transmit Message to peer To.
type Send struct {
	To      uint32
	Message wire.Message
}

// Deliver hands an inbound Message, received from peer From, to the consensus
// engine.
type Deliver struct {
	From    uint32
	Message wire.Message
}

func (Dial) isAction()    {}
func (Send) isAction()    {}
func (Deliver) isAction() {}
