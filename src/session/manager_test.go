package session

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/mosaicnetworks/hive/src/common"
	"github.com/mosaicnetworks/hive/src/crypto/keys"
	"github.com/mosaicnetworks/hive/src/peers"
	"github.com/mosaicnetworks/hive/src/wire"
)

func testPeer(t *testing.T, i int) *peers.Peer {
	key, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return peers.FromKey(key, fmt.Sprintf("127.0.0.1:%d", 2000+i), fmt.Sprintf("node%d", i))
}

func newTestManager(t *testing.T) *Manager {
	return NewManager(1024, common.NewTestEntry(t, common.TestLogLevel))
}

func drain(m *Manager) []Action {
	res := []Action{}
	for {
		a, ok := m.Poll()
		if !ok {
			return res
		}
		res = append(res, a)
	}
}

func TestAddPeerDialsOnce(t *testing.T) {
	m := newTestManager(t)
	p := testPeer(t, 0)

	m.AddPeer(p)
	m.AddPeer(p)

	actions := drain(m)
	if len(actions) != 1 {
		t.Fatalf("expected a single dial, got %v", actions)
	}
	if d, ok := actions[0].(Dial); !ok || d.Peer.ID() != p.ID() {
		t.Fatalf("expected Dial to %d, got %#v", p.ID(), actions[0])
	}

	if _, ok := m.Poll(); ok {
		t.Fatalf("queue should be empty")
	}
}

func TestConnectionRace(t *testing.T) {
	m := newTestManager(t)
	p := testPeer(t, 0)

	// two concurrent inbound connections from the same peer
	m.OnConnectionEstablished(p, 0)
	m.OnConnectionEstablished(p, 1)

	if got := m.Connected(); !reflect.DeepEqual(got, []uint32{p.ID()}) {
		t.Fatalf("peer should be counted once, got %v", got)
	}

	m.Publish(&wire.VoteRequest{Term: 1})
	if actions := drain(m); len(actions) != 1 {
		t.Fatalf("publish should send once, got %d actions", len(actions))
	}

	m.OnConnectionClosed(p.ID(), 1)
	if !m.IsConnected(p.ID()) {
		t.Fatalf("peer should stay connected while a connection remains")
	}
	if m.Pending() != 0 {
		t.Fatalf("no dial expected while a connection remains")
	}

	m.OnConnectionClosed(p.ID(), 0)
	if m.IsConnected(p.ID()) {
		t.Fatalf("peer should be disconnected")
	}

	actions := drain(m)
	if len(actions) != 1 {
		t.Fatalf("expected a redial, got %v", actions)
	}
	if d, ok := actions[0].(Dial); !ok || d.Peer.ID() != p.ID() {
		t.Fatalf("expected Dial to %d, got %#v", p.ID(), actions[0])
	}
}

func TestRemovedPeerIsNotRedialed(t *testing.T) {
	m := newTestManager(t)
	p := testPeer(t, 0)

	m.AddPeer(p)
	m.OnConnectionEstablished(p, 0)
	drain(m)

	m.RemovePeer(p.ID())
	m.OnConnectionClosed(p.ID(), 0)

	if actions := drain(m); len(actions) != 0 {
		t.Fatalf("removed peer should not be redialed, got %v", actions)
	}
	if _, ok := m.Peer(p.ID()); ok {
		t.Fatalf("removed peer should be forgotten once disconnected")
	}
}

func TestDialFailed(t *testing.T) {
	m := newTestManager(t)
	p := testPeer(t, 0)
	stranger := testPeer(t, 1)

	m.AddPeer(p)
	drain(m)

	m.OnDialFailed(p.ID(), fmt.Errorf("connection refused"))
	m.OnDialFailed(stranger.ID(), fmt.Errorf("connection refused"))

	actions := drain(m)
	if len(actions) != 1 {
		t.Fatalf("expected a single redial, got %v", actions)
	}
	if d := actions[0].(Dial); d.Peer.ID() != p.ID() {
		t.Fatalf("redial should target the tracked peer")
	}
}

func TestFIFO(t *testing.T) {
	m := newTestManager(t)
	a, b := testPeer(t, 0), testPeer(t, 1)

	m.OnConnectionEstablished(a, 0)
	vr := &wire.VoteRequest{Term: 2, CandidateID: 7}
	m.OnInboundMessage(a.ID(), vr)
	m.AddPeer(b)
	if err := m.SendTo(a.ID(), &wire.VoteResponse{Term: 2, Granted: true}); err != nil {
		t.Fatalf("err: %v", err)
	}

	actions := drain(m)
	if len(actions) != 3 {
		t.Fatalf("expected 3 actions, got %v", actions)
	}
	if _, ok := actions[0].(Deliver); !ok {
		t.Fatalf("first action should be Deliver, got %#v", actions[0])
	}
	if _, ok := actions[1].(Dial); !ok {
		t.Fatalf("second action should be Dial, got %#v", actions[1])
	}
	if _, ok := actions[2].(Send); !ok {
		t.Fatalf("third action should be Send, got %#v", actions[2])
	}
}

func TestSendToNotConnected(t *testing.T) {
	m := newTestManager(t)
	if err := m.SendTo(42, &wire.VoteRequest{}); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestInboundDedup(t *testing.T) {
	m := newTestManager(t)
	a, b := testPeer(t, 0), testPeer(t, 1)

	vr := &wire.VoteRequest{Term: 3, CandidateID: 9, LastLogTerm: 1, LastLogIndex: 4}

	if delivered, _ := m.OnInboundMessage(a.ID(), vr); !delivered {
		t.Fatalf("first copy should be delivered")
	}
	// the same request relayed by another peer is still a duplicate
	copied := *vr
	if delivered, _ := m.OnInboundMessage(b.ID(), &copied); delivered {
		t.Fatalf("duplicate should be dropped")
	}

	// heartbeats are identical from one beat to the next and must all pass
	hb := &wire.AppendEntries{Term: 3, LeaderID: 9}
	for i := 0; i < 3; i++ {
		if delivered, _ := m.OnInboundMessage(a.ID(), hb); !delivered {
			t.Fatalf("heartbeat %d should be delivered", i)
		}
	}

	actions := drain(m)
	if len(actions) != 4 {
		t.Fatalf("expected 4 deliveries, got %d", len(actions))
	}
	d := actions[0].(Deliver)
	if d.From != a.ID() || !reflect.DeepEqual(d.Message, vr) {
		t.Fatalf("unexpected delivery %#v", d)
	}
}
