package store

import (
	"sync"

	"github.com/dgraph-io/badger"
	"github.com/mosaicnetworks/hive/src/common"
	"github.com/sirupsen/logrus"
)

const hardStateKey = "hardstate"

// BadgerStore persists the hard state in a badger database. Writes are
// synchronous so that a vote is on disk before it is sent.
type BadgerStore struct {
	db   *badger.DB
	path string

	l      sync.RWMutex
	closed bool
}

// NewBadgerStore opens an existing database or creates a new one if nothing is
// found in path.
func NewBadgerStore(path string, logger *logrus.Entry) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(true).
		WithTruncate(true)

	if logger != nil {
		sub := logger.WithFields(logrus.Fields{"ns": "badger"})
		opts = opts.WithLogger(sub)
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{
		db:   handle,
		path: path,
	}, nil
}

// HardState implements the Store interface
func (s *BadgerStore) HardState() (HardState, error) {
	var res HardState
	var val []byte

	s.l.RLock()
	defer s.l.RUnlock()

	if s.closed {
		return res, common.NewStoreErr("HardState", common.Closed, hardStateKey)
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(hardStateKey))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})

	if isDBKeyNotFound(err) {
		return res, nil
	}
	if err != nil {
		return res, mapError(err, "HardState", hardStateKey)
	}

	if err := res.Unmarshal(val); err != nil {
		return res, common.NewStoreErr("HardState", common.Corrupted, hardStateKey)
	}

	return res, nil
}

// SetHardState implements the Store interface
func (s *BadgerStore) SetHardState(h HardState) error {
	val, err := h.Marshal()
	if err != nil {
		return err
	}

	s.l.RLock()
	defer s.l.RUnlock()

	if s.closed {
		return common.NewStoreErr("HardState", common.Closed, hardStateKey)
	}

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	//insert [hardstate] => [HardState json]
	if err := tx.Set([]byte(hardStateKey), val); err != nil {
		return mapError(err, "HardState", hardStateKey)
	}

	return mapError(tx.Commit(), "HardState", hardStateKey)
}

// Close implements the Store interface
func (s *BadgerStore) Close() error {
	s.l.Lock()
	defer s.l.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}

// StorePath returns the path of the database
func (s *BadgerStore) StorePath() string {
	return s.path
}

func isDBKeyNotFound(err error) bool {
	return err != nil && err.Error() == badger.ErrKeyNotFound.Error()
}

func mapError(err error, name, key string) error {
	if err == nil {
		return nil
	}
	if isDBKeyNotFound(err) {
		return common.NewStoreErr(name, common.KeyNotFound, key)
	}
	return err
}
