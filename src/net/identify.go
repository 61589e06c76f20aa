package net

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"

	"github.com/mosaicnetworks/hive/src/crypto"
	"github.com/mosaicnetworks/hive/src/crypto/keys"
	"github.com/mosaicnetworks/hive/src/peers"
	"github.com/ugorji/go/codec"
)

// Identify is exchanged on the first stream of every session. The signature
// covers keying material exported from the TLS session, so a recorded
// Identify cannot be replayed on another connection.
type Identify struct {
	PubKeyHex string
	NetAddr   string
	Moniker   string
	Signature string
}

// NewIdentify creates and signs the Identify of the node that owns key.
func NewIdentify(key *ecdsa.PrivateKey, netAddr, moniker string, binding []byte) (*Identify, error) {
	id := &Identify{
		PubKeyHex: keys.PublicKeyHex(&key.PublicKey),
		NetAddr:   netAddr,
		Moniker:   moniker,
	}

	sig, err := keys.SignEncoded(key, id.hash(binding))
	if err != nil {
		return nil, err
	}
	id.Signature = sig

	return id, nil
}

func (id *Identify) hash(binding []byte) []byte {
	return crypto.SHA256Parts(
		binding,
		[]byte(id.PubKeyHex),
		[]byte(id.NetAddr),
		[]byte(id.Moniker),
	)
}

// Verify checks the signature against binding and returns the corresponding
// peer.
func (id *Identify) Verify(binding []byte) (*peers.Peer, error) {
	peer := peers.NewPeer(id.PubKeyHex, id.NetAddr, id.Moniker)

	pub, err := peer.PublicKey()
	if err != nil {
		return nil, err
	}

	if !keys.VerifyEncoded(pub, id.hash(binding), id.Signature) {
		return nil, fmt.Errorf("invalid identify signature from %s", id.NetAddr)
	}

	return peer, nil
}

// Marshal - msgpack encoding of Identify
func (id *Identify) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	mh := new(codec.MsgpackHandle)
	enc := codec.NewEncoder(b, mh)

	if err := enc.Encode(id); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (id *Identify) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	mh := new(codec.MsgpackHandle)
	dec := codec.NewDecoder(b, mh)

	return dec.Decode(id)
}
