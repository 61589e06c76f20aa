// Package discovery tells a node which peers exist. A Source emits Discovered
// when a peer becomes reachable and Expired when it goes away. The node admits
// discovered peers to gossip and keeps dialing them until they expire.
package discovery

import "github.com/mosaicnetworks/hive/src/peers"

// EventType is Discovered or Expired.
type EventType uint8

const (
	// Discovered announces a peer and the address where it listens.
	Discovered EventType = iota
	// Expired announces that a peer left.
	Expired
)

// String ...
func (t EventType) String() string {
	switch t {
	case Discovered:
		return "Discovered"
	case Expired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// Event is emitted by a Source.
type Event struct {
	Type EventType
	Peer *peers.Peer
}

// Source is a stream of discovery events. The Events channel is never closed;
// consumers stop reading after Close.
type Source interface {
	Events() <-chan Event
	Close() error
}

const eventBuffer = 256
