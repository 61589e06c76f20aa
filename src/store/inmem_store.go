package store

import (
	"sync"

	"github.com/mosaicnetworks/hive/src/common"
)

// InmemStore keeps the hard state in memory. It is used in tests and by nodes
// that do not need to survive restarts.
type InmemStore struct {
	l      sync.Mutex
	state  HardState
	closed bool
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{}
}

// HardState implements the Store interface
func (s *InmemStore) HardState() (HardState, error) {
	s.l.Lock()
	defer s.l.Unlock()

	if s.closed {
		return HardState{}, common.NewStoreErr("HardState", common.Closed, hardStateKey)
	}
	return s.state, nil
}

// SetHardState implements the Store interface
func (s *InmemStore) SetHardState(h HardState) error {
	s.l.Lock()
	defer s.l.Unlock()

	if s.closed {
		return common.NewStoreErr("HardState", common.Closed, hardStateKey)
	}
	s.state = h
	return nil
}

// Close implements the Store interface
func (s *InmemStore) Close() error {
	s.l.Lock()
	defer s.l.Unlock()

	s.closed = true
	return nil
}
