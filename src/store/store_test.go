package store

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/mosaicnetworks/hive/src/common"
)

func testStoreBasics(t *testing.T, s Store) {
	h, err := s.HardState()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if h != (HardState{}) {
		t.Fatalf("fresh store should return the zero HardState, got %+v", h)
	}

	want := HardState{CurrentTerm: 7, VotedFor: 0xdeadbeef}
	if err := s.SetHardState(want); err != nil {
		t.Fatalf("err: %v", err)
	}

	h, err = s.HardState()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if h != want {
		t.Fatalf("HardState should be %+v, not %+v", want, h)
	}
}

func TestInmemStore(t *testing.T) {
	s := NewInmemStore()
	testStoreBasics(t, s)

	s.Close()
	if _, err := s.HardState(); !common.IsStore(err, common.Closed) {
		t.Fatalf("expected Closed error, got %v", err)
	}
}

func TestBadgerStoreReopen(t *testing.T) {
	dir, err := ioutil.TempDir("", "hive_badger")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	s, err := NewBadgerStore(dir, common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	testStoreBasics(t, s)

	if err := s.Close(); err != nil {
		t.Fatalf("err: %v", err)
	}

	s, err = NewBadgerStore(dir, common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer s.Close()

	h, err := s.HardState()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if h.CurrentTerm != 7 || h.VotedFor != 0xdeadbeef {
		t.Fatalf("HardState did not survive reopen: %+v", h)
	}
}

func TestBadgerStoreClosed(t *testing.T) {
	dir, err := ioutil.TempDir("", "hive_badger_closed")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	s, err := NewBadgerStore(dir, common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close should be a no-op: %v", err)
	}

	if _, err := s.HardState(); !common.IsStore(err, common.Closed) {
		t.Fatalf("expected Closed error, got %v", err)
	}
	if err := s.SetHardState(HardState{CurrentTerm: 1}); !common.IsStore(err, common.Closed) {
		t.Fatalf("expected Closed error, got %v", err)
	}
}
