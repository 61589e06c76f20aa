package gossip

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sort"

	"github.com/mosaicnetworks/hive/src/crypto/keys"
	"github.com/mosaicnetworks/hive/src/dedup"
	"github.com/mosaicnetworks/hive/src/peers"
	"github.com/mosaicnetworks/hive/src/wire"
	"github.com/sirupsen/logrus"
)

var (
	// ErrDuplicate is returned by Publish when a message with the same
	// payload was already seen.
	ErrDuplicate = errors.New("duplicate message")

	// ErrInsufficientPeers is returned by Publish when no admitted peer is
	// subscribed to the topic.
	ErrInsufficientPeers = errors.New("insufficient peers")

	// ErrMessageTooLarge is returned by Publish when the encoded envelope
	// would not fit in a frame.
	ErrMessageTooLarge = errors.New("message too large")
)

// Config configures a Router.
type Config struct {
	// Signed enables signing of published messages, and rejection of
	// inbound messages without a valid signature.
	Signed bool

	// SeenCapacity is the capacity of the filter of seen message ids.
	SeenCapacity int
}

// Action is an intent queued by the Router: Send or Deliver.
type Action interface {
	isAction()
}

// Send asks the driver to transmit the encoded RPC Payload to peer To.
type Send struct {
	To      uint32
	Payload []byte
}

// Deliver hands a message of a locally subscribed topic to the application.
type Deliver struct {
	Message *Message
}

func (Send) isAction()    {}
func (Deliver) isAction() {}

// Stats counts messages by outcome since the Router was created.
type Stats struct {
	Published  int
	Accepted   int
	Duplicates int
	Rejected   int
}

type peerState struct {
	peer   *peers.Peer
	topics map[string]bool
}

// Router is a flooding publish/subscribe router. It is not safe for
// concurrent use.
type Router struct {
	self *peers.Peer
	key  *ecdsa.PrivateKey
	conf Config

	seqno  uint64
	topics map[string]bool
	peers  map[uint32]*peerState
	seen   *dedup.Filter

	queue []Action
	stats Stats

	logger *logrus.Entry
}

// NewRouter creates a Router for the node that owns key.
func NewRouter(key *ecdsa.PrivateKey, self *peers.Peer, conf Config, logger *logrus.Entry) *Router {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Router{
		self:   self,
		key:    key,
		conf:   conf,
		topics: make(map[string]bool),
		peers:  make(map[uint32]*peerState),
		seen:   dedup.NewFilter(conf.SeenCapacity),
		logger: logger,
	}
}

// Poll returns the next pending action in enqueue order. It never blocks.
func (r *Router) Poll() (Action, bool) {
	if len(r.queue) == 0 {
		return nil, false
	}

	a := r.queue[0]
	r.queue[0] = nil
	r.queue = r.queue[1:]

	if len(r.queue) == 0 {
		r.queue = nil
	}

	return a, true
}

// Subscribe joins topic and announces it to every admitted peer.
func (r *Router) Subscribe(topic string) {
	if r.topics[topic] {
		return
	}
	r.topics[topic] = true
	r.announce(SubOpt{Subscribe: true, Topic: topic})
}

// Unsubscribe leaves topic and announces it to every admitted peer.
func (r *Router) Unsubscribe(topic string) {
	if !r.topics[topic] {
		return
	}
	delete(r.topics, topic)
	r.announce(SubOpt{Subscribe: false, Topic: topic})
}

func (r *Router) announce(sub SubOpt) {
	for _, id := range r.admitted() {
		r.send(id, &RPC{Subscriptions: []SubOpt{sub}})
	}
}

// AddExplicitPeer admits p to the overlay.
func (r *Router) AddExplicitPeer(p *peers.Peer) {
	if _, ok := r.peers[p.ID()]; ok {
		return
	}

	r.logger.WithField("peer", p).Debug("peer admitted")

	r.peers[p.ID()] = &peerState{
		peer:   p,
		topics: make(map[string]bool),
	}
}

// RemoveExplicitPeer removes peer id from the overlay, forgetting its
// subscriptions.
func (r *Router) RemoveExplicitPeer(id uint32) {
	if _, ok := r.peers[id]; !ok {
		return
	}

	r.logger.WithField("peer", id).Debug("peer removed")

	delete(r.peers, id)
}

// IsAdmitted reports whether peer id is part of the overlay.
func (r *Router) IsAdmitted(id uint32) bool {
	_, ok := r.peers[id]
	return ok
}

// PeerConnected sends our subscriptions to peer id, which just connected.
func (r *Router) PeerConnected(id uint32) {
	if !r.IsAdmitted(id) || len(r.topics) == 0 {
		return
	}

	subs := make([]SubOpt, 0, len(r.topics))
	for _, t := range r.Topics() {
		subs = append(subs, SubOpt{Subscribe: true, Topic: t})
	}

	r.send(id, &RPC{Subscriptions: subs})
}

// Publish sends data to every admitted peer subscribed to topic. The message
// is recorded as seen even when there is no peer to send it to.
func (r *Router) Publish(topic string, data []byte) (string, error) {
	id := MessageID(data)

	if r.seen.Contains([]byte(id)) {
		return id, ErrDuplicate
	}

	r.seqno++
	msg := &Message{
		From:  r.self.ID(),
		Seqno: r.seqno,
		Topic: topic,
		Data:  data,
	}

	if r.conf.Signed {
		sig, err := keys.SignEncoded(r.key, msg.signingHash())
		if err != nil {
			return id, err
		}
		msg.Key = r.self.PubKeyHex
		msg.Signature = sig
	}

	payload, err := (&RPC{Messages: []*Message{msg}}).Marshal()
	if err != nil {
		return id, err
	}
	if len(payload) > wire.MaxMessageSize {
		return id, ErrMessageTooLarge
	}

	r.seen.Add([]byte(id))

	recipients := r.subscribers(topic)
	if len(recipients) == 0 {
		return id, ErrInsufficientPeers
	}

	for _, to := range recipients {
		r.push(Send{To: to, Payload: payload})
	}
	r.stats.Published++

	return id, nil
}

// HandleRPC processes an envelope received from peer from. It returns the
// number of messages that were new and valid.
func (r *Router) HandleRPC(from uint32, rpc *RPC) int {
	ps, ok := r.peers[from]
	if !ok {
		r.logger.WithField("peer", from).Debug("ignoring rpc from non-admitted peer")
		return 0
	}

	for _, sub := range rpc.Subscriptions {
		if sub.Subscribe {
			ps.topics[sub.Topic] = true
		} else {
			delete(ps.topics, sub.Topic)
		}
	}

	accepted := 0
	for _, msg := range rpc.Messages {
		if msg == nil {
			continue
		}

		if err := r.validate(msg); err != nil {
			r.logger.WithFields(logrus.Fields{
				"peer":  from,
				"error": err,
			}).Debug("rejecting message")
			r.stats.Rejected++
			continue
		}

		id := msg.ID()
		if r.seen.Contains([]byte(id)) {
			r.stats.Duplicates++
			continue
		}
		r.seen.Add([]byte(id))
		accepted++

		if r.topics[msg.Topic] {
			r.push(Deliver{Message: msg})
		}

		r.forward(msg, from)
	}

	r.stats.Accepted += accepted
	return accepted
}

// Stats returns the message counters.
func (r *Router) Stats() Stats {
	return r.stats
}

// HandlePayload decodes an envelope and processes it with HandleRPC.
func (r *Router) HandlePayload(from uint32, payload []byte) (int, error) {
	var rpc RPC
	if err := rpc.Unmarshal(payload); err != nil {
		return 0, err
	}
	return r.HandleRPC(from, &rpc), nil
}

func (r *Router) validate(msg *Message) error {
	if msg.Topic == "" {
		return fmt.Errorf("message without topic")
	}

	if !r.conf.Signed {
		return nil
	}

	if msg.Key == "" || msg.Signature == "" {
		return fmt.Errorf("unsigned message")
	}

	origin := peers.NewPeer(msg.Key, "", "")
	if origin.ID() != msg.From {
		return fmt.Errorf("key does not match originator %d", msg.From)
	}

	pub, err := origin.PublicKey()
	if err != nil {
		return err
	}

	if !keys.VerifyEncoded(pub, msg.signingHash(), msg.Signature) {
		return fmt.Errorf("invalid signature")
	}

	return nil
}

func (r *Router) forward(msg *Message, from uint32) {
	recipients := r.subscribers(msg.Topic, from, msg.From)
	if len(recipients) == 0 {
		return
	}

	payload, err := (&RPC{Messages: []*Message{msg}}).Marshal()
	if err != nil {
		r.logger.WithField("error", err).Error("encoding forwarded message")
		return
	}

	for _, to := range recipients {
		r.push(Send{To: to, Payload: payload})
	}
}

// subscribers returns the admitted peers subscribed to topic, skipping the
// given ids.
func (r *Router) subscribers(topic string, skip ...uint32) []uint32 {
	res := []uint32{}
	for _, id := range r.admitted() {
		if contains(skip, id) {
			continue
		}
		if r.peers[id].topics[topic] {
			res = append(res, id)
		}
	}
	return res
}

func (r *Router) admitted() []uint32 {
	res := make([]uint32, 0, len(r.peers))
	for id := range r.peers {
		res = append(res, id)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

func (r *Router) send(to uint32, rpc *RPC) {
	payload, err := rpc.Marshal()
	if err != nil {
		r.logger.WithField("error", err).Error("encoding rpc")
		return
	}
	r.push(Send{To: to, Payload: payload})
}

func (r *Router) push(a Action) {
	r.queue = append(r.queue, a)
}

// Topics returns the topics this router is subscribed to, sorted.
func (r *Router) Topics() []string {
	res := make([]string, 0, len(r.topics))
	for t := range r.topics {
		res = append(res, t)
	}
	sort.Strings(res)
	return res
}

// PeerTopics returns the topics peer id announced, sorted.
func (r *Router) PeerTopics(id uint32) []string {
	ps, ok := r.peers[id]
	if !ok {
		return nil
	}
	res := make([]string, 0, len(ps.topics))
	for t := range ps.topics {
		res = append(res, t)
	}
	sort.Strings(res)
	return res
}

func contains(ids []uint32, id uint32) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}
