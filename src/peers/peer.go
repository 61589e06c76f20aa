package peers

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/mosaicnetworks/hive/src/common"
	"github.com/mosaicnetworks/hive/src/crypto/keys"
)

// Peer is a struct that holds Peer data
type Peer struct {
	NetAddr   string
	PubKeyHex string
	Moniker   string

	id uint32
}

// NewPeer is a factory method for creating a new Peer instance
func NewPeer(pubKeyHex, netAddr, moniker string) *Peer {
	peer := &Peer{
		PubKeyHex: pubKeyHex,
		NetAddr:   netAddr,
		Moniker:   moniker,
	}
	return peer
}

// FromKey creates the Peer record of the node that owns key.
func FromKey(key *ecdsa.PrivateKey, netAddr, moniker string) *Peer {
	return NewPeer(keys.PublicKeyHex(&key.PublicKey), netAddr, moniker)
}

// ID returns an ID for the peer, calculating a hash is one is not available
func (p *Peer) ID() uint32 {
	if p.id == 0 {
		p.id = common.Hash32(p.PubKeyBytes())
	}
	return p.id
}

// PubKeyString returns the upper-case version of PubKeyHex. It is used for
// indexing in maps with string keys.
func (p *Peer) PubKeyString() string {
	return common.EncodeToString(p.PubKeyBytes())
}

// PubKeyBytes converts hex string representation of the public key and returns
// a byte array. It returns nil if PubKeyHex is malformed.
func (p *Peer) PubKeyBytes() []byte {
	pubKeyBytes, err := common.DecodeFromString(p.PubKeyHex)
	if err != nil {
		return nil
	}
	return pubKeyBytes
}

// PublicKey parses the peer's public key.
func (p *Peer) PublicKey() (*ecdsa.PublicKey, error) {
	pub := keys.ToPublicKey(p.PubKeyBytes())
	if pub == nil {
		return nil, fmt.Errorf("invalid public key %q", p.PubKeyHex)
	}
	return pub, nil
}

func (p *Peer) String() string {
	if p.Moniker != "" {
		return fmt.Sprintf("%s(%d)", p.Moniker, p.ID())
	}
	return fmt.Sprintf("%d", p.ID())
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, peer uint32) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.ID() != peer {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
