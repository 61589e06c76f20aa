package node

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/hive/src/common"
	"github.com/mosaicnetworks/hive/src/config"
	"github.com/mosaicnetworks/hive/src/crypto/keys"
	"github.com/mosaicnetworks/hive/src/discovery"
	"github.com/mosaicnetworks/hive/src/net"
	"github.com/mosaicnetworks/hive/src/peers"
	"github.com/mosaicnetworks/hive/src/store"
	"github.com/mosaicnetworks/hive/src/wire"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type testNode struct {
	conf  *config.Config
	trans *net.Transport
}

func newTestTransports(t *testing.T, n int) []testNode {
	var res []testNode
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			t.Fatalf("err: %v", err)
		}

		conf := config.NewTestConfig(t, common.TestLogLevel)
		conf.Key = key
		conf.Moniker = fmt.Sprintf("node%d", i)

		tcp, err := net.NewTCPStreamLayer("127.0.0.1:0", "")
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		tls, err := net.NewTLSStreamLayer(tcp)
		if err != nil {
			t.Fatalf("err: %v", err)
		}

		trans := net.NewTransport(tls, key, conf.Moniker, conf.TCPTimeout, conf.Logger())
		res = append(res, testNode{conf, trans})
	}
	return res
}

func initNodes(t *testing.T, n int) []*Node {
	tns := newTestTransports(t, n)

	var list []*peers.Peer
	for _, tn := range tns {
		list = append(list, tn.trans.Self())
	}
	ps := peers.NewPeerSet(list)

	var nodes []*Node
	for _, tn := range tns {
		src := discovery.NewStaticSource(ps, tn.trans.Self().ID())
		node, err := NewNode(tn.conf, tn.trans, src, store.NewInmemStore(), nil)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func shutdownNodes(nodes []*Node) {
	for _, n := range nodes {
		n.Shutdown()
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

// leader returns the node that every node agrees on as leader, if any.
func leader(nodes []*Node) *Node {
	var res *Node
	var agreed string

	for i, n := range nodes {
		stats := n.GetStats()
		if i == 0 {
			agreed = stats["leader"]
		}
		if stats["leader"] != agreed || agreed == "0" {
			return nil
		}
		if stats["role"] == "Leader" {
			if res != nil {
				return nil
			}
			res = n
		}
	}
	return res
}

func TestElectionAndReplication(t *testing.T) {
	nodes := initNodes(t, 3)
	defer shutdownNodes(nodes)

	for _, n := range nodes {
		n.RunAsync()
	}

	var l *Node
	waitFor(t, 15*time.Second, "a leader", func() bool {
		l = leader(nodes)
		return l != nil
	})

	out := l.Exec("submit hello")
	if out != "submitted at index 1" {
		t.Fatalf("unexpected submit output %q", out)
	}

	waitFor(t, 10*time.Second, "commit on every node", func() bool {
		for _, n := range nodes {
			if n.GetStats()["commit_index"] != "1" {
				return false
			}
		}
		return true
	})

	for _, n := range nodes {
		if got := len(n.GetPeers()); got != 2 {
			t.Fatalf("%s should be connected to 2 peers, got %d", n.Self(), got)
		}
	}
}

func TestSingleNodeCommands(t *testing.T) {
	nodes := initNodes(t, 1)
	defer shutdownNodes(nodes)
	n := nodes[0]

	n.RunAsync()

	cases := map[string]string{
		"":         "",
		"vote abc": `vote: invalid term "abc"`,
		"vote":     "usage: vote <term>",
		"submit":   "usage: submit <text>",
		"peers":    "no connected peers",
		"vote 3":   "vote: insufficient peers",
		"bogus":    `unknown command "bogus"`,
	}
	for in, want := range cases {
		if out := n.Exec(in); out != want {
			t.Fatalf("Exec(%q) should return %q, not %q", in, want, out)
		}
	}

	waitFor(t, 10*time.Second, "self election", func() bool {
		return n.GetStats()["role"] == "Leader"
	})

	if out := n.Exec("submit x"); out != "submitted at index 1" {
		t.Fatalf("unexpected submit output %q", out)
	}

	if out := n.Exec("stats"); !strings.Contains(out, "commit_index=1") {
		t.Fatalf("stats should report commit_index=1, got %q", out)
	}
}

func TestInboundDuplicatesCounted(t *testing.T) {
	nodes := initNodes(t, 1)
	defer shutdownNodes(nodes)
	n := nodes[0]

	vr := &wire.VoteRequest{Term: 1, CandidateID: 42}
	n.inbound(42, vr)
	n.inbound(42, vr)

	if v := testutil.ToFloat64(n.Metrics().DedupDropped); v != 1 {
		t.Fatalf("one duplicate should be dropped, got %v", v)
	}
}

func TestShutdownBeforeRun(t *testing.T) {
	nodes := initNodes(t, 1)
	nodes[0].Shutdown()

	if nodes[0].GetState() != Shutdown {
		t.Fatalf("state should be Shutdown")
	}
	if out := nodes[0].Exec("stats"); out != "node is shut down" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestBootstrapExpectDelaysElection(t *testing.T) {
	tns := newTestTransports(t, 1)
	tns[0].conf.BootstrapExpect = 2

	n, err := NewNode(tns[0].conf, tns[0].trans, nil, store.NewInmemStore(), nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer n.Shutdown()

	n.RunAsync()

	// several election timeouts with the test config
	time.Sleep(time.Second)

	stats := n.GetStats()
	if stats["role"] != "Follower" || stats["term"] != "0" {
		t.Fatalf("a lone node expecting 2 should not elect itself, got %v", stats)
	}
}
