// Package store persists the consensus hard state of a node: its current
// term and the candidate it voted for in that term. Both must reach the store
// before a vote leaves the node, otherwise a restarted node could vote twice
// in the same term.
package store

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

// HardState is the part of the consensus state that survives restarts.
// VotedFor is 0 when no vote was cast in CurrentTerm.
type HardState struct {
	CurrentTerm uint32
	VotedFor    uint32
}

// Marshal - json encoding of HardState
func (h *HardState) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(h); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (h *HardState) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(h)
}

// Store provides an interface for persistent storage of the hard state. A
// Store that never saw SetHardState returns the zero HardState.
type Store interface {
	HardState() (HardState, error)
	SetHardState(HardState) error
	Close() error
}
