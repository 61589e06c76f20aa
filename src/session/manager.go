// Package session tracks the peers a node wants to be connected to, and turns
// connection events and inbound messages into a FIFO of actions.
//
// The Manager performs no I/O. The driver feeds it transport events, then
// drains Poll until it returns false, carrying out every Dial and Send and
// passing every Deliver to the consensus engine.
package session

import (
	"errors"
	"sort"

	"github.com/mosaicnetworks/hive/src/dedup"
	"github.com/mosaicnetworks/hive/src/peers"
	"github.com/mosaicnetworks/hive/src/wire"
	"github.com/sirupsen/logrus"
)

// ErrNotConnected is returned by SendTo when the target peer has no open
// connection.
var ErrNotConnected = errors.New("peer not connected")

// peerEntry is the bookkeeping of one peer. A tracked peer is redialed
// whenever it is not connected.
type peerEntry struct {
	peer      *peers.Peer
	tracked   bool
	connected bool
}

// Manager is the peer session manager. It is not safe for concurrent use.
type Manager struct {
	entries map[uint32]*peerEntry
	queue   []Action

	seen *dedup.Filter

	logger *logrus.Entry
}

// NewManager creates a Manager whose dedup filter holds at least
// filterCapacity messages.
func NewManager(filterCapacity int, logger *logrus.Entry) *Manager {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Manager{
		entries: make(map[uint32]*peerEntry),
		seen:    dedup.NewFilter(filterCapacity),
		logger:  logger,
	}
}

func (m *Manager) push(a Action) {
	m.queue = append(m.queue, a)
}

// Poll returns the next pending action in enqueue order. It never blocks.
func (m *Manager) Poll() (Action, bool) {
	if len(m.queue) == 0 {
		return nil, false
	}

	a := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]

	if len(m.queue) == 0 {
		m.queue = nil
	}

	return a, true
}

// Pending returns the number of queued actions.
func (m *Manager) Pending() int {
	return len(m.queue)
}

// AddPeer begins tracking p. A peer that was not tracked yet is dialed.
func (m *Manager) AddPeer(p *peers.Peer) {
	e, ok := m.entries[p.ID()]
	if !ok {
		e = &peerEntry{peer: p}
		m.entries[p.ID()] = e
	}

	if e.tracked {
		return
	}
	e.tracked = true

	if !e.connected {
		m.logger.WithField("peer", p).Debug("tracking peer")
		m.push(Dial{Peer: p})
	}
}

// RemovePeer stops tracking peer id. An open connection is left alone but
// will not be redialed once closed.
func (m *Manager) RemovePeer(id uint32) {
	e, ok := m.entries[id]
	if !ok {
		return
	}

	e.tracked = false
	if !e.connected {
		delete(m.entries, id)
	}
}

// OnConnectionEstablished records a new connection to p. Only the first of
// several concurrent connections changes the bookkeeping. A peer that
// connected to us is tracked from then on.
func (m *Manager) OnConnectionEstablished(p *peers.Peer, otherEstablished int) {
	if otherEstablished > 0 {
		return
	}

	e, ok := m.entries[p.ID()]
	if !ok {
		e = &peerEntry{peer: p}
		m.entries[p.ID()] = e
	}

	// the identified record carries the address the peer advertises
	e.peer = p
	e.tracked = true
	e.connected = true

	m.logger.WithField("peer", p).Info("connection established")
}

// OnConnectionClosed records the end of a connection to peer id. The peer is
// only considered disconnected once no connection remains, at which point it
// is redialed if still tracked.
func (m *Manager) OnConnectionClosed(id uint32, remainingEstablished int) {
	if remainingEstablished > 0 {
		return
	}

	e, ok := m.entries[id]
	if !ok {
		return
	}

	if e.connected {
		m.logger.WithField("peer", e.peer).Info("connection closed")
	}
	e.connected = false

	if !e.tracked {
		delete(m.entries, id)
		return
	}

	m.push(Dial{Peer: e.peer})
}

// OnDialFailed re-enqueues a dial to peer id while it is tracked and not
// connected. Pacing the retries is left to the driver.
func (m *Manager) OnDialFailed(id uint32, err error) {
	m.logger.WithFields(logrus.Fields{
		"peer":  id,
		"error": err,
	}).Debug("dial failed")

	e, ok := m.entries[id]
	if !ok || !e.tracked || e.connected {
		return
	}

	m.push(Dial{Peer: e.peer})
}

// Publish enqueues a Send of msg to every connected peer.
func (m *Manager) Publish(msg wire.Message) {
	for _, id := range m.Connected() {
		m.push(Send{To: id, Message: msg})
	}
}

// SendTo enqueues a Send of msg to peer id.
func (m *Manager) SendTo(id uint32, msg wire.Message) error {
	if !m.IsConnected(id) {
		return ErrNotConnected
	}

	m.push(Send{To: id, Message: msg})

	return nil
}

// OnInboundMessage enqueues a Deliver of msg unless it was seen before.
// VoteRequests and VoteResponses are deduplicated; replication traffic is
// not, since identical heartbeats and retransmissions are legitimate.
//
// delivered reports whether msg was queued, evicted whether recording it
// displaced an unrelated entry of the filter.
func (m *Manager) OnInboundMessage(from uint32, msg wire.Message) (delivered, evicted bool) {
	if deduplicated(msg) {
		key := wire.EncodeTagged(msg)

		if m.seen.Contains(key) {
			m.logger.WithFields(logrus.Fields{
				"peer":    from,
				"message": msg,
			}).Debug("dropping duplicate")
			return false, false
		}

		if evicted = m.seen.Add(key); evicted {
			m.logger.Debug("message included but another random message was removed")
		}
	}

	m.push(Deliver{From: from, Message: msg})

	return true, evicted
}

func deduplicated(msg wire.Message) bool {
	switch msg.Kind() {
	case wire.KindVoteRequest, wire.KindVoteResponse:
		return true
	}
	return false
}

// Connected returns the ids of connected peers in ascending order.
func (m *Manager) Connected() []uint32 {
	res := []uint32{}
	for id, e := range m.entries {
		if e.connected {
			res = append(res, id)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// IsConnected reports whether peer id has at least one open connection.
func (m *Manager) IsConnected(id uint32) bool {
	e, ok := m.entries[id]
	return ok && e.connected
}

// IsTracked reports whether peer id is tracked.
func (m *Manager) IsTracked(id uint32) bool {
	e, ok := m.entries[id]
	return ok && e.tracked
}

// Peer returns the record of peer id, if known.
func (m *Manager) Peer(id uint32) (*peers.Peer, bool) {
	e, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	return e.peer, true
}

// Peers returns the records of every known peer, connected or not.
func (m *Manager) Peers() []*peers.Peer {
	res := make([]*peers.Peer, 0, len(m.entries))
	for _, e := range m.entries {
		res = append(res, e.peer)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID() < res[j].ID() })
	return res
}

// FilterLoad returns the load factor of the dedup filter.
func (m *Manager) FilterLoad() float64 {
	return m.seen.LoadFactor()
}
