package peers

import (
	"crypto/ecdsa"
	"fmt"
	"io/ioutil"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/mosaicnetworks/hive/src/crypto/keys"
)

func TestJSONPeerSet(t *testing.T) {
	dir, err := ioutil.TempDir("", "hive")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	store := NewJSONPeerSet(dir)

	// Try a read, should get nothing
	peerSet, err := store.PeerSet()
	if err == nil {
		t.Fatalf("store.PeerSet() should generate an error")
	}
	if peerSet != nil {
		t.Fatalf("peerSet: %v", peerSet)
	}

	keyMap := map[string]*ecdsa.PrivateKey{}
	peers := []*Peer{}
	for i := 0; i < 3; i++ {
		key, _ := keys.GenerateECDSAKey()
		peer := FromKey(key, fmt.Sprintf("addr%d", i), fmt.Sprintf("peer%d", i))
		peers = append(peers, peer)
		keyMap[peer.NetAddr] = key
	}

	newPeerSlice := NewPeerSet(peers).Peers

	if err := store.Write(newPeerSlice); err != nil {
		t.Fatalf("err: %v", err)
	}

	peerSet, err = store.PeerSet()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if peerSet.Len() != 3 {
		t.Fatalf("peers: %v", peerSet.Peers)
	}

	for i, p := range peerSet.Peers {
		if p.NetAddr != newPeerSlice[i].NetAddr {
			t.Fatalf("peers[%d] NetAddr should be %s, not %s", i, newPeerSlice[i].NetAddr, p.NetAddr)
		}
		if p.Moniker != newPeerSlice[i].Moniker {
			t.Fatalf("peers[%d] Moniker should be %s, not %s", i, newPeerSlice[i].Moniker, p.Moniker)
		}
		if p.ID() != newPeerSlice[i].ID() {
			t.Fatalf("peers[%d] ID should be %d, not %d", i, newPeerSlice[i].ID(), p.ID())
		}
		pubKey, err := p.PublicKey()
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(keys.FromPublicKey(pubKey), keys.FromPublicKey(&keyMap[p.NetAddr].PublicKey)) {
			t.Fatalf("peers[%d] PublicKey not parsed correctly", i)
		}
	}
}

func TestJSONPeerSetLowerCase(t *testing.T) {
	dir, err := ioutil.TempDir("", "hive")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	key, _ := keys.GenerateECDSAKey()
	canonical := keys.PublicKeyHex(&key.PublicKey)
	lower := "0x" + strings.ToLower(canonical[2:])

	content := fmt.Sprintf(`[{"NetAddr":"127.0.0.1:1337","PubKeyHex":"%s","Moniker":"alice"}]`, lower)
	if err := ioutil.WriteFile(dir+"/peers.json", []byte(content), 0644); err != nil {
		t.Fatalf("err: %v", err)
	}

	peerSet, err := NewJSONPeerSet(dir).PeerSet()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if peerSet.Peers[0].PubKeyHex != canonical {
		t.Fatalf("PubKeyHex should be %s, not %s", canonical, peerSet.Peers[0].PubKeyHex)
	}
	if peerSet.Peers[0].ID() != keys.PublicKeyID(&key.PublicKey) {
		t.Fatalf("peer id does not match key id")
	}
}
