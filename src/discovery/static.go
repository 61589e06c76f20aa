package discovery

import (
	"os"

	"github.com/mosaicnetworks/hive/src/peers"
)

// StaticSource discovers a fixed list of peers once, typically read from a
// peers.json file. Peers never expire.
type StaticSource struct {
	events chan Event
}

// NewStaticSource emits a Discovered event for every peer except self.
func NewStaticSource(peerSet *peers.PeerSet, self uint32) *StaticSource {
	_, list := peers.ExcludePeer(peerSet.Peers, self)

	size := eventBuffer
	if len(list) > size {
		size = len(list)
	}

	s := &StaticSource{
		events: make(chan Event, size),
	}
	for _, p := range list {
		s.events <- Event{Type: Discovered, Peer: p}
	}
	return s
}

// NewJSONSource reads peers.json from datadir. A missing file is an empty
// peer set.
func NewJSONSource(datadir string, self uint32) (*StaticSource, error) {
	ps, err := peers.NewJSONPeerSet(datadir).PeerSet()
	if os.IsNotExist(err) {
		ps, err = peers.NewPeerSet(nil), nil
	}
	if err != nil {
		return nil, err
	}
	return NewStaticSource(ps, self), nil
}

// Events implements the Source interface
func (s *StaticSource) Events() <-chan Event {
	return s.events
}

// Close implements the Source interface
func (s *StaticSource) Close() error {
	return nil
}
