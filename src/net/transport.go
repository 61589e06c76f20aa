package net

import (
	"crypto/ecdsa"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/yamux"
	"github.com/mosaicnetworks/hive/src/peers"
	"github.com/mosaicnetworks/hive/src/wire"
	"github.com/sirupsen/logrus"
)

const eventBufferSize = 1024

/*
Transport connects Hive nodes over a StreamLayer.

Every connection, inbound or outbound, is multiplexed with yamux. The first
stream of a session runs the identify protocol, where both ends exchange their
signed Identify; the session is then keyed by the remote peer's id. Every later
stream carries exactly one frame of one of the supported protocols.

Dial and Send return immediately. Their outcome, as well as inbound messages,
is reported on the Events channel.
*/
type Transport struct {
	logger *logrus.Entry

	stream  StreamLayer
	key     *ecdsa.PrivateKey
	self    *peers.Peer
	timeout time.Duration

	yamuxLog *io.PipeWriter

	eventCh chan Event

	// lifecycleLock orders ConnectionEstablished and ConnectionClosed events
	// the way their counts were taken. The node loop never holds it.
	lifecycleLock sync.Mutex

	connLock   sync.Mutex
	conns      map[uint32]map[uint64]*conn
	sessions   map[*yamux.Session]struct{}
	nextConnID uint64

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex
}

type conn struct {
	id       uint64
	peer     *peers.Peer
	session  *yamux.Session
	outbound bool
}

// NewTransport creates a Transport for the node that owns key. timeout bounds
// dials, handshakes and every stream exchange.
func NewTransport(
	stream StreamLayer,
	key *ecdsa.PrivateKey,
	moniker string,
	timeout time.Duration,
	logger *logrus.Entry,
) *Transport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Transport{
		logger:     logger,
		stream:     stream,
		key:        key,
		self:       peers.FromKey(key, stream.AdvertiseAddr(), moniker),
		timeout:    timeout,
		yamuxLog:   logger.WithField("prefix", "yamux").WriterLevel(logrus.DebugLevel),
		eventCh:    make(chan Event, eventBufferSize),
		conns:      make(map[uint32]map[uint64]*conn),
		sessions:   make(map[*yamux.Session]struct{}),
		shutdownCh: make(chan struct{}),
	}
}

// Self returns the peer record this transport identifies as.
func (t *Transport) Self() *peers.Peer {
	return t.self
}

// Events returns the channel on which the transport reports connections and
// inbound messages.
func (t *Transport) Events() <-chan Event {
	return t.eventCh
}

// LocalAddr returns the address the stream layer is bound to.
func (t *Transport) LocalAddr() string {
	addr := t.stream.Addr()

	if addr != nil {
		return addr.String()
	}

	return ""
}

// AdvertiseAddr returns the address where other peers can reach us.
func (t *Transport) AdvertiseAddr() string {
	return t.stream.AdvertiseAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (t *Transport) IsShutdown() bool {
	select {
	case <-t.shutdownCh:
		return true
	default:
		return false
	}
}

// Close stops the listener and tears down every session. Upgrades in flight
// fail and are dropped.
func (t *Transport) Close() error {
	t.shutdownLock.Lock()
	defer t.shutdownLock.Unlock()

	if t.shutdown {
		return nil
	}

	close(t.shutdownCh)
	t.stream.Close()

	t.connLock.Lock()
	for s := range t.sessions {
		s.Close()
	}
	t.connLock.Unlock()

	t.yamuxLog.Close()
	t.shutdown = true

	return nil
}

// Listen accepts incoming connections until the transport is closed.
func (t *Transport) Listen() {
	for {
		c, err := t.stream.Accept()
		if err != nil {
			if t.IsShutdown() {
				return
			}
			t.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}

		t.logger.WithFields(logrus.Fields{
			"node": c.LocalAddr(),
			"from": c.RemoteAddr(),
		}).Debug("accepted connection")

		go t.handleConn(c, false, c.RemoteAddr().String(), nil)
	}
}

// Dial connects to peer in the background. A session that identifies as
// another peer is rejected.
func (t *Transport) Dial(peer *peers.Peer) {
	go t.dial(peer.NetAddr, peer)
}

// DialAddr connects to addr in the background, accepting whichever peer
// answers.
func (t *Transport) DialAddr(addr string) {
	go t.dial(addr, nil)
}

func (t *Transport) dial(addr string, expected *peers.Peer) {
	if t.IsShutdown() {
		return
	}

	c, err := t.stream.Dial(addr, t.timeout)
	if err != nil {
		t.emit(DialFailed{
			Peer: expected,
			Addr: addr,
			Err:  &TransportError{Op: "dial", Addr: addr, Err: err},
		})
		return
	}

	t.handleConn(c, true, addr, expected)
}

// handleConn runs a connection from identify to termination.
func (t *Transport) handleConn(c net.Conn, outbound bool, addr string, expected *peers.Peer) {
	fail := func(op string, err error) {
		terr := &TransportError{Op: op, Addr: addr, Err: err}
		t.logger.WithField("error", terr).Debug("connection failed")
		if outbound {
			t.emit(DialFailed{Peer: expected, Addr: addr, Err: terr})
		}
	}

	binding, err := channelBinding(c, t.timeout)
	if err != nil {
		c.Close()
		fail("handshake", err)
		return
	}

	session, err := t.newSession(c, outbound)
	if err != nil {
		c.Close()
		fail("session", err)
		return
	}

	if !t.track(session) {
		session.Close()
		return
	}
	defer t.untrack(session)

	peer, err := t.identify(session, outbound, binding)
	if err == nil && peer.ID() == t.self.ID() {
		err = fmt.Errorf("connected to self")
	}
	if err == nil && expected != nil && peer.ID() != expected.ID() {
		err = fmt.Errorf("expected peer %d, got %d", expected.ID(), peer.ID())
	}
	if err != nil {
		session.Close()
		fail("identify", err)
		return
	}

	cn := t.register(peer, session, outbound)

	t.acceptStreams(cn)

	t.deregister(cn)
}

func (t *Transport) newSession(c net.Conn, outbound bool) (*yamux.Session, error) {
	cfg := yamux.DefaultConfig()
	cfg.LogOutput = t.yamuxLog
	if t.timeout > 0 {
		cfg.ConnectionWriteTimeout = t.timeout
		cfg.StreamOpenTimeout = t.timeout
	}

	if outbound {
		return yamux.Client(c, cfg)
	}
	return yamux.Server(c, cfg)
}

// identify exchanges signed identities on the first stream of session. The
// dialer opens the stream and speaks first.
func (t *Transport) identify(session *yamux.Session, outbound bool, binding []byte) (*peers.Peer, error) {
	ours, err := NewIdentify(t.key, t.self.NetAddr, t.self.Moniker, binding)
	if err != nil {
		return nil, err
	}
	ourBytes, err := ours.Marshal()
	if err != nil {
		return nil, err
	}

	var s *yamux.Stream
	if outbound {
		s, err = session.OpenStream()
	} else {
		s, err = session.AcceptStream()
	}
	if err != nil {
		return nil, err
	}
	defer s.Close()

	t.setDeadline(s)

	var theirBytes []byte
	if outbound {
		if err := SelectProtocol(s, ProtocolIdentify); err != nil {
			return nil, err
		}
		if err := WriteFrame(s, ourBytes); err != nil {
			return nil, err
		}
		if theirBytes, err = ReadFrame(s, wire.MaxMessageSize); err != nil {
			return nil, err
		}
	} else {
		if _, err := HandleProtocol(s, []Protocol{ProtocolIdentify}); err != nil {
			return nil, err
		}
		if theirBytes, err = ReadFrame(s, wire.MaxMessageSize); err != nil {
			return nil, err
		}
		if err := WriteFrame(s, ourBytes); err != nil {
			return nil, err
		}
	}

	var theirs Identify
	if err := theirs.Unmarshal(theirBytes); err != nil {
		return nil, err
	}

	return theirs.Verify(binding)
}

func (t *Transport) setDeadline(s *yamux.Stream) {
	if t.timeout > 0 {
		s.SetDeadline(time.Now().Add(t.timeout))
	}
}

func (t *Transport) track(s *yamux.Session) bool {
	t.connLock.Lock()
	defer t.connLock.Unlock()

	if t.IsShutdown() {
		return false
	}
	t.sessions[s] = struct{}{}
	return true
}

func (t *Transport) untrack(s *yamux.Session) {
	t.connLock.Lock()
	defer t.connLock.Unlock()

	delete(t.sessions, s)
}

func (t *Transport) register(peer *peers.Peer, session *yamux.Session, outbound bool) *conn {
	t.lifecycleLock.Lock()
	defer t.lifecycleLock.Unlock()

	t.connLock.Lock()

	t.nextConnID++
	cn := &conn{
		id:       t.nextConnID,
		peer:     peer,
		session:  session,
		outbound: outbound,
	}

	byID, ok := t.conns[peer.ID()]
	if !ok {
		byID = make(map[uint64]*conn)
		t.conns[peer.ID()] = byID
	}
	other := len(byID)
	byID[cn.id] = cn

	t.connLock.Unlock()

	t.logger.WithFields(logrus.Fields{
		"peer":     peer,
		"conn":     cn.id,
		"outbound": outbound,
		"other":    other,
	}).Debug("connection established")

	t.emit(ConnectionEstablished{
		Peer:             peer,
		ConnID:           cn.id,
		OtherEstablished: other,
		Outbound:         outbound,
	})

	return cn
}

func (t *Transport) deregister(cn *conn) {
	t.lifecycleLock.Lock()
	defer t.lifecycleLock.Unlock()

	t.connLock.Lock()

	byID := t.conns[cn.peer.ID()]
	delete(byID, cn.id)
	remaining := len(byID)
	if remaining == 0 {
		delete(t.conns, cn.peer.ID())
	}

	t.connLock.Unlock()

	t.logger.WithFields(logrus.Fields{
		"peer":      cn.peer,
		"conn":      cn.id,
		"remaining": remaining,
	}).Debug("connection closed")

	t.emit(ConnectionClosed{
		Peer:                 cn.peer,
		ConnID:               cn.id,
		RemainingEstablished: remaining,
	})
}

// acceptStreams upgrades every inbound stream of cn in its own goroutine
// until the session terminates.
func (t *Transport) acceptStreams(cn *conn) {
	protocols := append([]Protocol{ProtocolGossip}, MessageProtocols...)

	for {
		s, err := cn.session.AcceptStream()
		if err != nil {
			return
		}
		go t.handleStream(cn, s, protocols)
	}
}

func (t *Transport) handleStream(cn *conn, s *yamux.Stream, protocols []Protocol) {
	defer s.Close()

	t.setDeadline(s)

	in, err := UpgradeInbound(s, protocols)
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"peer":  cn.peer,
			"error": err,
		}).Debug("inbound stream failed")
		return
	}

	t.emit(MessageReceived{
		Peer:     cn.peer,
		ConnID:   cn.id,
		Protocol: in.Protocol,
		Message:  in.Message,
		Payload:  in.Payload,
	})
}

// Send opens a new stream to peer id in the background and writes payload on
// it under protocol p. It fails synchronously only when there is no session
// to the peer.
func (t *Transport) Send(id uint32, p Protocol, payload []byte) error {
	if t.IsShutdown() {
		return ErrTransportShutdown
	}

	cn := t.pick(id)
	if cn == nil {
		return &TransportError{Op: "send", Addr: fmt.Sprint(id), Err: ErrNotConnected}
	}

	go func() {
		s, err := cn.session.OpenStream()
		if err != nil {
			t.logger.WithFields(logrus.Fields{
				"peer":  cn.peer,
				"error": err,
			}).Debug("open stream failed")
			return
		}

		t.setDeadline(s)

		if err := UpgradeOutbound(s, p, payload); err != nil {
			t.logger.WithFields(logrus.Fields{
				"peer":     cn.peer,
				"protocol": p,
				"error":    err,
			}).Debug("outbound stream failed")
		}
	}()

	return nil
}

// SendMessage sends m to peer id over the protocol of its kind.
func (t *Transport) SendMessage(id uint32, m wire.Message) error {
	return t.Send(id, ProtocolFor(m.Kind()), wire.Encode(m))
}

// pick returns the oldest session to peer id.
func (t *Transport) pick(id uint32) *conn {
	t.connLock.Lock()
	defer t.connLock.Unlock()

	var res *conn
	for _, cn := range t.conns[id] {
		if res == nil || cn.id < res.id {
			res = cn
		}
	}
	return res
}

// Disconnect closes every session to peer id.
func (t *Transport) Disconnect(id uint32) {
	t.connLock.Lock()
	defer t.connLock.Unlock()

	for _, cn := range t.conns[id] {
		cn.session.Close()
	}
}

// Connections returns the number of open sessions per peer.
func (t *Transport) Connections() map[uint32]int {
	t.connLock.Lock()
	defer t.connLock.Unlock()

	res := make(map[uint32]int, len(t.conns))
	for id, byID := range t.conns {
		res[id] = len(byID)
	}
	return res
}

func (t *Transport) emit(ev Event) {
	select {
	case t.eventCh <- ev:
	case <-t.shutdownCh:
	}
}
