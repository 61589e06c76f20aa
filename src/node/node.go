package node

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mosaicnetworks/hive/src/config"
	"github.com/mosaicnetworks/hive/src/consensus"
	"github.com/mosaicnetworks/hive/src/discovery"
	"github.com/mosaicnetworks/hive/src/gossip"
	"github.com/mosaicnetworks/hive/src/metrics"
	"github.com/mosaicnetworks/hive/src/net"
	"github.com/mosaicnetworks/hive/src/peers"
	"github.com/mosaicnetworks/hive/src/session"
	"github.com/mosaicnetworks/hive/src/store"
	"github.com/mosaicnetworks/hive/src/wire"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// VoteTopic is the gossip topic carrying VoteRequests.
const VoteTopic = "hive/request_vote"

// Node runs the event loop of a hive node. The loop goroutine owns the
// consensus engine, the session manager and the gossip router.
type Node struct {
	state

	conf   *config.Config
	logger *logrus.Entry

	self *peers.Peer

	trans     *net.Transport
	discovery discovery.Source
	store     store.Store
	metrics   *metrics.Metrics

	engine  *consensus.Engine
	session *session.Manager
	router  *gossip.Router

	electionTimer *ControlTimer

	limiters    map[uint32]*rate.Limiter
	redialing   map[uint32]bool
	redialCh    chan *peers.Peer
	commandCh   chan *command
	shutdownCh  chan struct{}
	loopDone    chan struct{}
	gossipStats gossip.Stats
	lastRole    consensus.Role

	statsLock sync.RWMutex
	stats     map[string]string
	peerList  []*peers.Peer

	shutdownOnce sync.Once
	start        time.Time
}

// NewNode creates a Node. It loads the hard state from s and takes ownership
// of trans, disc and s, which are closed by Shutdown.
func NewNode(
	conf *config.Config,
	trans *net.Transport,
	disc discovery.Source,
	s store.Store,
	m *metrics.Metrics,
) (*Node, error) {
	self := trans.Self()
	logger := conf.Logger().WithField("this_id", self.ID())

	engine, err := consensus.NewEngine(self.ID(), s, logger)
	if err != nil {
		return nil, err
	}
	engine.SetBootstrapExpect(conf.BootstrapExpect)

	if m == nil {
		m = metrics.NewMetrics()
	}

	router := gossip.NewRouter(conf.Key, self, gossip.Config{
		Signed:       conf.SignedGossip,
		SeenCapacity: conf.DedupCapacity,
	}, logger.WithField("prefix", "gossip"))
	router.Subscribe(VoteTopic)

	n := &Node{
		conf:          conf,
		logger:        logger,
		self:          self,
		trans:         trans,
		discovery:     disc,
		store:         s,
		metrics:       m,
		engine:        engine,
		session:       session.NewManager(conf.DedupCapacity, logger.WithField("prefix", "session")),
		router:        router,
		electionTimer: NewRandomControlTimer(),
		limiters:      make(map[uint32]*rate.Limiter),
		redialing:     make(map[uint32]bool),
		redialCh:      make(chan *peers.Peer, 64),
		commandCh:     make(chan *command),
		shutdownCh:    make(chan struct{}),
		loopDone:      make(chan struct{}),
	}

	n.updateStats()

	return n, nil
}

// ID returns the id of the node.
func (n *Node) ID() uint32 {
	return n.self.ID()
}

// Self returns the peer record of the node.
func (n *Node) Self() *peers.Peer {
	return n.self
}

// Metrics returns the instruments of the node.
func (n *Node) Metrics() *metrics.Metrics {
	return n.metrics
}

// RunAsync calls Run in a separate goroutine.
func (n *Node) RunAsync() {
	n.logger.Debug("runasync")
	go n.Run()
}

// Run starts listening, dials the startup addresses and processes events
// until Shutdown.
func (n *Node) Run() {
	defer close(n.loopDone)

	if n.getState() == Shutdown {
		return
	}
	n.setState(Running)
	n.start = time.Now()

	n.goFunc(n.trans.Listen)
	n.goFunc(func() { n.electionTimer.Run(n.conf.ElectionTimeout) })

	heartbeat := time.NewTicker(n.conf.HeartbeatTimeout)
	defer heartbeat.Stop()

	for _, addr := range n.conf.Dial {
		n.logger.WithField("addr", addr).Debug("Dialing startup address")
		n.trans.DialAddr(addr)
	}

	n.logger.WithFields(logrus.Fields{
		"addr":    n.trans.AdvertiseAddr(),
		"moniker": n.self.Moniker,
	}).Info("Node running")

	var discoveryCh <-chan discovery.Event
	if n.discovery != nil {
		discoveryCh = n.discovery.Events()
	}

	for {
		select {
		case ev := <-n.trans.Events():
			n.processTransportEvent(ev)
		case ev := <-discoveryCh:
			n.processDiscoveryEvent(ev)
		case <-n.electionTimer.tickCh:
			n.electionTimeout()
			n.electionTimer.Reset(n.conf.ElectionTimeout)
		case <-heartbeat.C:
			n.dispatch(n.engine.HeartbeatTimeout())
		case p := <-n.redialCh:
			delete(n.redialing, p.ID())
			n.dial(p)
		case cmd := <-n.commandCh:
			cmd.reply <- n.execute(cmd.line)
		case <-n.shutdownCh:
			return
		}

		n.drain()
		n.updateStats()
	}
}

func (n *Node) electionTimeout() {
	before := n.engine.State()

	n.dispatch(n.engine.ElectionTimeout())

	after := n.engine.State()
	if after.Term > before.Term && after.VotedFor == n.ID() {
		n.metrics.ElectionsStarted.Inc()
	}
}

func (n *Node) processTransportEvent(ev net.Event) {
	switch e := ev.(type) {
	case net.ConnectionEstablished:
		id := e.Peer.ID()

		n.engine.AddPeer(id)
		n.session.OnConnectionEstablished(e.Peer, e.OtherEstablished)

		if e.OtherEstablished == 0 {
			n.router.AddExplicitPeer(e.Peer)
			n.router.PeerConnected(id)
		}

	case net.ConnectionClosed:
		n.session.OnConnectionClosed(e.Peer.ID(), e.RemainingEstablished)

	case net.DialFailed:
		n.metrics.DialFailures.Inc()
		if e.Peer != nil {
			n.session.OnDialFailed(e.Peer.ID(), e.Err)
		} else {
			n.logger.WithFields(logrus.Fields{
				"addr":  e.Addr,
				"error": e.Err,
			}).Warn("Dial failed")
		}

	case net.MessageReceived:
		n.processMessage(e)
	}
}

func (n *Node) processMessage(e net.MessageReceived) {
	from := e.Peer.ID()

	if e.Protocol == net.ProtocolGossip {
		if _, err := n.router.HandlePayload(from, e.Payload); err != nil {
			n.logger.WithFields(logrus.Fields{
				"peer":  e.Peer,
				"error": err,
			}).Debug("Malformed gossip payload")
		}
		n.updateGossipMetrics()
		return
	}

	if e.Message == nil {
		return
	}

	n.metrics.MessagesReceived.WithLabelValues(e.Message.Kind().String()).Inc()
	n.inbound(from, e.Message)
}

// inbound passes a decoded consensus message through the dedup filter of the
// session manager.
func (n *Node) inbound(from uint32, m wire.Message) {
	delivered, evicted := n.session.OnInboundMessage(from, m)
	if !delivered {
		n.metrics.DedupDropped.Inc()
	}
	if evicted {
		n.metrics.DedupEvictions.Inc()
	}
}

func (n *Node) processDiscoveryEvent(ev discovery.Event) {
	n.logger.WithFields(logrus.Fields{
		"event": ev.Type,
		"peer":  ev.Peer,
		"addr":  ev.Peer.NetAddr,
	}).Debug("Discovery")

	switch ev.Type {
	case discovery.Discovered:
		n.engine.AddPeer(ev.Peer.ID())
		n.router.AddExplicitPeer(ev.Peer)
		n.session.AddPeer(ev.Peer)
	case discovery.Expired:
		id := ev.Peer.ID()
		n.router.RemoveExplicitPeer(id)
		n.session.RemovePeer(id)
		n.trans.Disconnect(id)
	}
}

// drain carries out the actions queued by the session manager and the gossip
// router until both queues are empty. Handling an action may queue more.
func (n *Node) drain() {
	for {
		progress := false

		for {
			a, ok := n.session.Poll()
			if !ok {
				break
			}
			progress = true
			n.doSessionAction(a)
		}

		for {
			a, ok := n.router.Poll()
			if !ok {
				break
			}
			progress = true
			n.doGossipAction(a)
		}

		if !progress {
			return
		}
	}
}

func (n *Node) doSessionAction(a session.Action) {
	switch act := a.(type) {
	case session.Dial:
		n.dial(act.Peer)
	case session.Send:
		if err := n.trans.SendMessage(act.To, act.Message); err != nil {
			n.logger.WithFields(logrus.Fields{
				"to":    act.To,
				"error": err,
			}).Debug("Send failed")
		}
	case session.Deliver:
		n.dispatch(n.engine.Step(act.From, act.Message))
	}
}

func (n *Node) doGossipAction(a gossip.Action) {
	switch act := a.(type) {
	case gossip.Send:
		if err := n.trans.Send(act.To, net.ProtocolGossip, act.Payload); err != nil {
			n.logger.WithFields(logrus.Fields{
				"to":    act.To,
				"error": err,
			}).Debug("Gossip send failed")
		}
	case gossip.Deliver:
		n.metrics.GossipMessages.WithLabelValues(metrics.GossipDelivered).Inc()

		if act.Message.Topic != VoteTopic {
			return
		}
		m, err := wire.DecodeTagged(act.Message.Data)
		if err != nil {
			n.logger.WithError(err).Debug("Malformed gossip vote")
			return
		}
		n.inbound(act.Message.From, m)
	}
}

// dispatch sends the output of the consensus engine. Broadcasts travel over
// gossip, the rest over direct streams.
func (n *Node) dispatch(outs []consensus.Outbound) {
	for _, out := range outs {
		if !out.Broadcast {
			if err := n.session.SendTo(out.To, out.Msg); err != nil {
				n.logger.WithFields(logrus.Fields{
					"to":      out.To,
					"message": out.Msg,
					"error":   err,
				}).Debug("Cannot send")
			}
			continue
		}

		if _, err := n.publish(out.Msg); err != nil {
			n.logger.WithFields(logrus.Fields{
				"message": out.Msg,
				"error":   err,
			}).Debug("Cannot publish")
		}
	}

	if st := n.engine.State(); st.Role != n.lastRole {
		if st.Role == consensus.Leader {
			n.metrics.ElectionsWon.Inc()
		}
		n.lastRole = st.Role
	}
}

func (n *Node) publish(m wire.Message) (string, error) {
	id, err := n.router.Publish(VoteTopic, wire.EncodeTagged(m))
	if err == nil {
		n.metrics.GossipMessages.WithLabelValues(metrics.GossipPublished).Inc()
	}
	return id, err
}

// dial connects to p unless it is connected, no longer tracked, or was dialed
// less than DialInterval ago. In the latter case the dial is postponed.
func (n *Node) dial(p *peers.Peer) {
	id := p.ID()

	if !n.session.IsTracked(id) || n.session.IsConnected(id) || n.redialing[id] {
		return
	}

	lim, ok := n.limiters[id]
	if !ok {
		lim = rate.NewLimiter(rate.Every(n.conf.DialInterval), 1)
		n.limiters[id] = lim
	}

	r := lim.Reserve()
	delay := r.Delay()
	if delay == 0 {
		n.logger.WithField("peer", p).Debug("Dialing")
		n.trans.Dial(p)
		return
	}

	n.redialing[id] = true
	time.AfterFunc(delay, func() {
		select {
		case n.redialCh <- p:
		case <-n.shutdownCh:
		}
	})
}

func (n *Node) updateGossipMetrics() {
	st := n.router.Stats()
	prev := n.gossipStats

	n.metrics.GossipMessages.WithLabelValues(metrics.GossipDuplicate).Add(float64(st.Duplicates - prev.Duplicates))
	n.metrics.GossipMessages.WithLabelValues(metrics.GossipRejected).Add(float64(st.Rejected - prev.Rejected))

	n.gossipStats = st
}

func (n *Node) updateStats() {
	st := n.engine.State()
	connected := n.session.Connected()

	n.metrics.Term.Set(float64(st.Term))
	n.metrics.Role.Set(float64(st.Role))
	n.metrics.CommitIndex.Set(float64(st.CommitIndex))
	n.metrics.ConnectedPeers.Set(float64(len(connected)))

	stats := map[string]string{
		"id":             fmt.Sprint(n.ID()),
		"moniker":        n.self.Moniker,
		"state":          n.getState().String(),
		"role":           st.Role.String(),
		"term":           strconv.FormatUint(uint64(st.Term), 10),
		"voted_for":      strconv.FormatUint(uint64(st.VotedFor), 10),
		"leader":         strconv.FormatUint(uint64(st.Leader), 10),
		"commit_index":   strconv.FormatUint(uint64(st.CommitIndex), 10),
		"last_log_index": strconv.FormatUint(uint64(st.LastLogIndex), 10),
		"cluster_size":   strconv.Itoa(st.ClusterSize),
		"num_peers":      strconv.Itoa(len(connected)),
		"dedup_load":     strconv.FormatFloat(n.session.FilterLoad(), 'f', 4, 64),
	}

	if !n.start.IsZero() {
		stats["uptime"] = time.Since(n.start).Round(time.Second).String()
	}

	var list []*peers.Peer
	for _, id := range connected {
		if p, ok := n.session.Peer(id); ok {
			list = append(list, p)
		}
	}

	n.statsLock.Lock()
	n.stats = stats
	n.peerList = list
	n.statsLock.Unlock()
}

// GetStats returns the stats published by the loop after its last event.
func (n *Node) GetStats() map[string]string {
	n.statsLock.RLock()
	defer n.statsLock.RUnlock()

	res := make(map[string]string, len(n.stats))
	for k, v := range n.stats {
		res[k] = v
	}
	return res
}

// GetPeers returns the connected peers.
func (n *Node) GetPeers() []*peers.Peer {
	n.statsLock.RLock()
	defer n.statsLock.RUnlock()

	res := make([]*peers.Peer, len(n.peerList))
	copy(res, n.peerList)
	return res
}

// GetState returns the lifecycle state of the node.
func (n *Node) GetState() State {
	return n.getState()
}

// Shutdown stops the loop and closes the transport, the discovery source and
// the store.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")

		running := n.getState() == Running
		n.setState(Shutdown)
		close(n.shutdownCh)
		n.electionTimer.Shutdown()

		if n.discovery != nil {
			if err := n.discovery.Close(); err != nil {
				n.logger.WithError(err).Warn("Closing discovery")
			}
		}

		if err := n.trans.Close(); err != nil {
			n.logger.WithError(err).Warn("Closing transport")
		}

		if running {
			<-n.loopDone
		}
		n.waitRoutines()

		if err := n.store.Close(); err != nil {
			n.logger.WithError(err).Warn("Closing store")
		}
	})
}
