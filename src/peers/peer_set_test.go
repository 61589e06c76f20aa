package peers

import (
	"fmt"
	"testing"

	"github.com/mosaicnetworks/hive/src/crypto/keys"
)

func testPeers(t *testing.T, n int) []*Peer {
	res := make([]*Peer, n)
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		res[i] = FromKey(key, fmt.Sprintf("127.0.0.1:%d", 1000+i), fmt.Sprintf("node%d", i))
	}
	return res
}

func TestPeerSetMembership(t *testing.T) {
	ps := testPeers(t, 3)

	peerSet := NewPeerSet(append(ps, ps[0]))
	if peerSet.Len() != 3 {
		t.Fatalf("duplicate peer should be collapsed, got %d peers", peerSet.Len())
	}

	extra := testPeers(t, 1)[0]
	grown := peerSet.WithNewPeer(extra)
	if grown.Len() != 4 || peerSet.Len() != 3 {
		t.Fatalf("WithNewPeer should not modify the original set")
	}
	if grown.WithNewPeer(extra).Len() != 4 {
		t.Fatalf("adding an existing peer should be a no-op")
	}

	shrunk := grown.WithRemovedPeer(ps[1].ID())
	if shrunk.Len() != 3 {
		t.Fatalf("expected 3 peers, got %d", shrunk.Len())
	}
	if _, ok := shrunk.ByID[ps[1].ID()]; ok {
		t.Fatalf("removed peer still indexed")
	}
}

func TestMajority(t *testing.T) {
	cases := []struct {
		n, want int
	}{
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{5, 3},
	}
	for _, c := range cases {
		if got := Majority(c.n); got != c.want {
			t.Errorf("Majority(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}
