package hive

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/mosaicnetworks/hive/src/common"
	"github.com/mosaicnetworks/hive/src/config"
	"github.com/mosaicnetworks/hive/src/peers"
)

func TestKeygen(t *testing.T) {
	dir, err := ioutil.TempDir("", "hive_keygen")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	if _, err := Keygen(dir); err != nil {
		t.Fatalf("err: %v", err)
	}
	if _, err := Keygen(dir); err == nil {
		t.Fatalf("a second Keygen in the same directory should fail")
	}
}

func TestInitRunShutdown(t *testing.T) {
	dir, err := ioutil.TempDir("", "hive_init")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	key, err := Keygen(dir)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	// peers.json holding only this node
	self := peers.FromKey(key, "127.0.0.1:0", "solo")
	if err := peers.NewJSONPeerSet(dir).Write([]*peers.Peer{self}); err != nil {
		t.Fatalf("err: %v", err)
	}

	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.SetDataDir(dir)
	conf.BindAddr = "127.0.0.1:0"
	conf.Store = true

	h := NewHive(conf)
	if err := h.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}

	go h.Run()

	deadline := time.Now().Add(10 * time.Second)
	for h.Node.GetStats()["role"] != "Leader" {
		if time.Now().After(deadline) {
			t.Fatalf("lone node should elect itself")
		}
		time.Sleep(50 * time.Millisecond)
	}

	h.Shutdown()

	// the term survives in badger
	conf2 := config.NewTestConfig(t, common.TestLogLevel)
	conf2.SetDataDir(dir)
	conf2.BindAddr = "127.0.0.1:0"
	conf2.Store = true

	h2 := NewHive(conf2)
	if err := h2.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}
	defer h2.Shutdown()

	if term := h2.Node.GetStats()["term"]; term == "0" {
		t.Fatalf("term should be restored from the store, got %s", term)
	}
}
