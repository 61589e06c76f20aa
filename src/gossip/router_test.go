package gossip

import (
	"crypto/ecdsa"
	"fmt"
	"testing"

	"github.com/mosaicnetworks/hive/src/common"
	"github.com/mosaicnetworks/hive/src/crypto/keys"
	"github.com/mosaicnetworks/hive/src/peers"
)

const testTopic = "hive/request_vote"

type testNode struct {
	key       *ecdsa.PrivateKey
	peer      *peers.Peer
	router    *Router
	delivered []*Message
}

// network routes Send actions between routers until every queue is empty.
type network struct {
	t     *testing.T
	nodes map[uint32]*testNode
}

func newNetwork(t *testing.T, n int, signed bool) (*network, []*testNode) {
	net := &network{t: t, nodes: make(map[uint32]*testNode)}
	res := make([]*testNode, n)

	for i := 0; i < n; i++ {
		key, _ := keys.GenerateECDSAKey()
		p := peers.FromKey(key, fmt.Sprintf("127.0.0.1:%d", 3000+i), fmt.Sprintf("node%d", i))
		r := NewRouter(key, p, Config{Signed: signed, SeenCapacity: 1024}, common.NewTestEntry(t, common.TestLogLevel))
		res[i] = &testNode{key: key, peer: p, router: r}
		net.nodes[p.ID()] = res[i]
	}

	return net, res
}

// connect admits every node to every other node, in both directions.
func (n *network) connectAll() {
	for _, a := range n.nodes {
		for _, b := range n.nodes {
			if a != b {
				a.router.AddExplicitPeer(b.peer)
			}
		}
	}
	for _, a := range n.nodes {
		for _, b := range n.nodes {
			if a != b {
				a.router.PeerConnected(b.peer.ID())
			}
		}
	}
}

func (n *network) run() {
	for progress := true; progress; {
		progress = false
		for from, node := range n.nodes {
			for {
				a, ok := node.router.Poll()
				if !ok {
					break
				}
				progress = true
				switch act := a.(type) {
				case Send:
					to, ok := n.nodes[act.To]
					if !ok {
						continue
					}
					if _, err := to.router.HandlePayload(from, act.Payload); err != nil {
						n.t.Fatalf("err: %v", err)
					}
				case Deliver:
					node.delivered = append(node.delivered, act.Message)
				}
			}
		}
	}
}

func TestPublishSubscribe(t *testing.T) {
	net, nodes := newNetwork(t, 3, true)
	for _, n := range nodes {
		n.router.Subscribe(testTopic)
	}
	net.connectAll()
	net.run()

	for _, n := range nodes {
		if got := len(n.router.PeerTopics(nodes[0].peer.ID())); n != nodes[0] && got != 1 {
			t.Fatalf("%s should know node0's subscription", n.peer)
		}
	}

	if _, err := nodes[0].router.Publish(testTopic, []byte("vote for me")); err != nil {
		t.Fatalf("err: %v", err)
	}
	net.run()

	if len(nodes[0].delivered) != 0 {
		t.Fatalf("publisher should not deliver its own message")
	}
	for _, n := range nodes[1:] {
		if len(n.delivered) != 1 {
			t.Fatalf("%s delivered %d messages, want 1", n.peer, len(n.delivered))
		}
		m := n.delivered[0]
		if string(m.Data) != "vote for me" || m.From != nodes[0].peer.ID() {
			t.Fatalf("unexpected message %#v", m)
		}
	}
}

func TestContentIDDedup(t *testing.T) {
	net, nodes := newNetwork(t, 3, false)
	for _, n := range nodes {
		n.router.Subscribe(testTopic)
	}
	net.connectAll()
	net.run()

	data := []byte("same bytes")

	if _, err := nodes[0].router.Publish(testTopic, data); err != nil {
		t.Fatalf("err: %v", err)
	}
	if _, err := nodes[0].router.Publish(testTopic, data); err != ErrDuplicate {
		t.Fatalf("republishing should fail with ErrDuplicate, got %v", err)
	}
	net.run()

	// node1 already saw the payload, whoever publishes it
	if _, err := nodes[1].router.Publish(testTopic, data); err != ErrDuplicate {
		t.Fatalf("identical payload from another node should be a duplicate, got %v", err)
	}

	for _, n := range nodes[1:] {
		if len(n.delivered) != 1 {
			t.Fatalf("%s delivered %d messages, want exactly 1", n.peer, len(n.delivered))
		}
	}
}

func TestRejectUnsigned(t *testing.T) {
	net, nodes := newNetwork(t, 2, true)
	nodes[1].router.Subscribe(testTopic)
	net.connectAll()
	net.run()

	from := nodes[0].peer.ID()

	unsigned := &Message{From: from, Seqno: 1, Topic: testTopic, Data: []byte("a")}

	forged := &Message{From: from, Seqno: 2, Topic: testTopic, Data: []byte("b"), Key: nodes[0].peer.PubKeyHex}
	sig, _ := keys.SignEncoded(nodes[0].key, forged.signingHash())
	forged.Signature = sig
	forged.Data = []byte("tampered")

	// signed by node1 but claiming to come from node0
	other := &Message{From: from, Seqno: 3, Topic: testTopic, Data: []byte("c"), Key: nodes[1].peer.PubKeyHex}
	sig, _ = keys.SignEncoded(nodes[1].key, other.signingHash())
	other.Signature = sig

	n := nodes[1].router.HandleRPC(from, &RPC{Messages: []*Message{unsigned, forged, other}})
	if n != 0 {
		t.Fatalf("no message should be accepted, got %d", n)
	}

	valid := &Message{From: from, Seqno: 4, Topic: testTopic, Data: []byte("d"), Key: nodes[0].peer.PubKeyHex}
	sig, _ = keys.SignEncoded(nodes[0].key, valid.signingHash())
	valid.Signature = sig

	if n := nodes[1].router.HandleRPC(from, &RPC{Messages: []*Message{valid}}); n != 1 {
		t.Fatalf("valid message should be accepted")
	}
	net.run()

	if len(nodes[1].delivered) != 1 || string(nodes[1].delivered[0].Data) != "d" {
		t.Fatalf("only the valid message should be delivered")
	}

	if st := nodes[1].router.Stats(); st.Rejected != 3 || st.Accepted != 1 {
		t.Fatalf("expected 3 rejected and 1 accepted, got %+v", st)
	}
}

func TestRejectResplitSignature(t *testing.T) {
	net, nodes := newNetwork(t, 2, true)
	nodes[1].router.Subscribe(testTopic)
	nodes[1].router.Subscribe(testTopic[:len(testTopic)-1])
	net.connectAll()
	net.run()

	from := nodes[0].peer.ID()

	orig := &Message{From: from, Seqno: 1, Topic: testTopic, Data: []byte("vote"), Key: nodes[0].peer.PubKeyHex}
	sig, _ := keys.SignEncoded(nodes[0].key, orig.signingHash())
	orig.Signature = sig

	// same bytes once concatenated: the last topic byte moves into the
	// seqno and the last seqno byte into the data
	resplit := &Message{
		From:      from,
		Seqno:     uint64(testTopic[len(testTopic)-1]) << 56,
		Topic:     testTopic[:len(testTopic)-1],
		Data:      append([]byte{1}, orig.Data...),
		Key:       orig.Key,
		Signature: orig.Signature,
	}

	if n := nodes[1].router.HandleRPC(from, &RPC{Messages: []*Message{resplit}}); n != 0 {
		t.Fatalf("resplit message should be rejected")
	}
	if n := nodes[1].router.HandleRPC(from, &RPC{Messages: []*Message{orig}}); n != 1 {
		t.Fatalf("original message should be accepted")
	}
	net.run()

	if len(nodes[1].delivered) != 1 || nodes[1].delivered[0].Topic != testTopic {
		t.Fatalf("only the original message should be delivered")
	}
	if st := nodes[1].router.Stats(); st.Rejected != 1 || st.Accepted != 1 {
		t.Fatalf("expected 1 rejected and 1 accepted, got %+v", st)
	}
}

func TestNonAdmittedPeers(t *testing.T) {
	net, nodes := newNetwork(t, 3, false)
	for _, n := range nodes {
		n.router.Subscribe(testTopic)
	}

	// node2 is never admitted by anyone
	nodes[0].router.AddExplicitPeer(nodes[1].peer)
	nodes[1].router.AddExplicitPeer(nodes[0].peer)
	nodes[0].router.PeerConnected(nodes[1].peer.ID())
	nodes[1].router.PeerConnected(nodes[0].peer.ID())
	nodes[2].router.AddExplicitPeer(nodes[0].peer)
	nodes[2].router.PeerConnected(nodes[0].peer.ID())
	net.run()

	if _, err := nodes[0].router.Publish(testTopic, []byte("x")); err != nil {
		t.Fatalf("err: %v", err)
	}
	net.run()

	if len(nodes[2].delivered) != 0 {
		t.Fatalf("non-admitted peer should not receive traffic")
	}
	if nodes[0].router.IsAdmitted(nodes[2].peer.ID()) {
		t.Fatalf("node2 should not be admitted by node0")
	}

	nodes[0].router.RemoveExplicitPeer(nodes[1].peer.ID())
	if _, err := nodes[0].router.Publish(testTopic, []byte("y")); err != ErrInsufficientPeers {
		t.Fatalf("expected ErrInsufficientPeers, got %v", err)
	}
	// the message was recorded as seen anyway
	if _, err := nodes[0].router.Publish(testTopic, []byte("y")); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	net, nodes := newNetwork(t, 2, false)
	nodes[1].router.Subscribe(testTopic)
	net.connectAll()
	net.run()

	nodes[1].router.Unsubscribe(testTopic)
	net.run()

	if topics := nodes[0].router.PeerTopics(nodes[1].peer.ID()); len(topics) != 0 {
		t.Fatalf("node0 should have forgotten node1's subscription, got %v", topics)
	}
	if _, err := nodes[0].router.Publish(testTopic, []byte("z")); err != ErrInsufficientPeers {
		t.Fatalf("expected ErrInsufficientPeers, got %v", err)
	}
}

func TestRPCRoundTrip(t *testing.T) {
	rpc := &RPC{
		Subscriptions: []SubOpt{{Subscribe: true, Topic: testTopic}},
		Messages:      []*Message{{From: 1, Seqno: 2, Topic: testTopic, Data: []byte{0, 1, 2}}},
	}

	b, err := rpc.Marshal()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	var out RPC
	if err := out.Unmarshal(b); err != nil {
		t.Fatalf("err: %v", err)
	}

	if len(out.Messages) != 1 || out.Messages[0].ID() != rpc.Messages[0].ID() {
		t.Fatalf("messages differ after round trip")
	}
	if len(out.Subscriptions) != 1 || out.Subscriptions[0] != rpc.Subscriptions[0] {
		t.Fatalf("subscriptions differ after round trip")
	}
}
