package peers

import (
	"bytes"
	"encoding/json"
	"sort"
)

// PeerSet is a set of Peers forming a cluster
type PeerSet struct {
	Peers    []*Peer          `json:"peers"`
	ByPubKey map[string]*Peer `json:"-"`
	ByID     map[uint32]*Peer `json:"-"`
}

// NewPeerSet creates a new PeerSet from a list of Peers. Duplicates of the
// same public key are collapsed, the first occurrence wins.
func NewPeerSet(peers []*Peer) *PeerSet {
	peerSet := &PeerSet{
		ByPubKey: make(map[string]*Peer),
		ByID:     make(map[uint32]*Peer),
	}

	unique := make([]*Peer, 0, len(peers))
	for _, peer := range peers {
		if _, ok := peerSet.ByPubKey[peer.PubKeyString()]; ok {
			continue
		}
		peerSet.ByPubKey[peer.PubKeyString()] = peer
		peerSet.ByID[peer.ID()] = peer
		unique = append(unique, peer)
	}

	peerSet.Peers = unique

	return peerSet
}

// WithNewPeer returns a new PeerSet with a list of peers including the new one.
func (peerSet *PeerSet) WithNewPeer(peer *Peer) *PeerSet {
	peers := append([]*Peer{}, peerSet.Peers...)

	if _, ok := peerSet.ByID[peer.ID()]; !ok {
		peers = append(peers, peer)
	}

	return NewPeerSet(peers)
}

// WithRemovedPeer returns a new PeerSet with a list of peers excluding the
// provided one
func (peerSet *PeerSet) WithRemovedPeer(id uint32) *PeerSet {
	_, peers := ExcludePeer(peerSet.Peers, id)
	return NewPeerSet(peers)
}

// IDs returns the PeerSet's slice of IDs, in ascending order
func (peerSet *PeerSet) IDs() []uint32 {
	res := make([]uint32, 0, len(peerSet.Peers))

	for _, peer := range peerSet.Peers {
		res = append(res, peer.ID())
	}

	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })

	return res
}

// Len returns the number of Peers in the PeerSet
func (peerSet *PeerSet) Len() int {
	return len(peerSet.ByPubKey)
}

// Majority returns the smallest number of peers that forms a strict majority
// of the PeerSet.
func (peerSet *PeerSet) Majority() int {
	return Majority(peerSet.Len())
}

// Majority returns the strict majority of a cluster of size n.
func Majority(n int) int {
	return n/2 + 1
}

// Marshal marshals the peerset
func (peerSet *PeerSet) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(peerSet.Peers); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
