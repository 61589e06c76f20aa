package gossip

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/mosaicnetworks/hive/src/crypto"
	"github.com/spaolacci/murmur3"
	"github.com/ugorji/go/codec"
)

// SubOpt announces that the sender joined or left Topic.
type SubOpt struct {
	Subscribe bool
	Topic     string
}

// Message is a gossip message. From is the id of the originating node, which
// relaying nodes leave untouched.
type Message struct {
	From      uint32
	Seqno     uint64
	Topic     string
	Data      []byte
	Key       string
	Signature string
}

// ID returns the content-derived identifier of m.
func (m *Message) ID() string {
	return MessageID(m.Data)
}

func (m *Message) signingHash() []byte {
	var seqno [8]byte
	binary.BigEndian.PutUint64(seqno[:], m.Seqno)
	return crypto.SHA256Parts([]byte(m.Topic), seqno[:], m.Data)
}

// MessageID returns the hexadecimal murmur3 128-bit hash of data.
func MessageID(data []byte) string {
	h1, h2 := murmur3.Sum128(data)
	return fmt.Sprintf("%016x%016x", h1, h2)
}

// RPC is the envelope exchanged between routers.
type RPC struct {
	Subscriptions []SubOpt
	Messages      []*Message
}

// Marshal - msgpack encoding of RPC
func (r *RPC) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	mh := new(codec.MsgpackHandle)
	mh.WriteExt = true
	enc := codec.NewEncoder(b, mh)

	if err := enc.Encode(r); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (r *RPC) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	mh := new(codec.MsgpackHandle)
	mh.WriteExt = true
	dec := codec.NewDecoder(b, mh)

	return dec.Decode(r)
}
