package discovery

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/mosaicnetworks/hive/src/peers"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

// MemberlistConfig configures a MemberlistSource.
type MemberlistConfig struct {
	// Self is the peer record published to the other members.
	Self *peers.Peer
	// BindAddr and BindPort are where memberlist listens. Port 0 picks a
	// free port.
	BindAddr string
	BindPort int
	// Seeds are memberlist addresses of existing members.
	Seeds []string
	// LeaveTimeout bounds the graceful leave broadcast on Close.
	LeaveTimeout time.Duration
}

// MemberlistSource discovers peers with the hashicorp memberlist gossip
// protocol. Every member carries its peer record as node metadata.
type MemberlistSource struct {
	list   *memberlist.Memberlist
	self   *peers.Peer
	events chan Event
	conf   MemberlistConfig

	logWriter *io.PipeWriter

	shutdownLock sync.Mutex
	shutdown     bool
	shutdownCh   chan struct{}

	logger *logrus.Entry
}

// NewMemberlistSource starts memberlist and joins the seeds, if any.
func NewMemberlistSource(conf MemberlistConfig, logger *logrus.Entry) (*MemberlistSource, error) {
	meta, err := encodeMeta(conf.Self)
	if err != nil {
		return nil, err
	}
	if len(meta) > memberlist.MetaMaxSize {
		return nil, fmt.Errorf("peer record exceeds %d bytes", memberlist.MetaMaxSize)
	}

	s := &MemberlistSource{
		self:       conf.Self,
		events:     make(chan Event, eventBuffer),
		conf:       conf,
		shutdownCh: make(chan struct{}),
		logger:     logger.WithField("prefix", "discovery"),
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = fmt.Sprintf("%s-%08x", conf.Self.Moniker, conf.Self.ID())
	mlConfig.BindAddr = conf.BindAddr
	mlConfig.BindPort = conf.BindPort
	mlConfig.AdvertisePort = conf.BindPort
	mlConfig.Delegate = &metaDelegate{meta: meta}
	mlConfig.Events = &eventDelegate{source: s}

	s.logWriter = logger.WithField("prefix", "memberlist").WriterLevel(logrus.DebugLevel)
	mlConfig.LogOutput = s.logWriter

	list, err := memberlist.Create(mlConfig)
	if err != nil {
		s.logWriter.Close()
		return nil, err
	}
	s.list = list

	if len(conf.Seeds) > 0 {
		n, err := list.Join(conf.Seeds)
		if err != nil {
			list.Shutdown()
			s.logWriter.Close()
			return nil, err
		}
		s.logger.WithFields(logrus.Fields{
			"seeds":  conf.Seeds,
			"joined": n,
		}).Info("Joined cluster")
	} else {
		s.logger.Info("Started discovery without seeds")
	}

	return s, nil
}

// Events implements the Source interface
func (s *MemberlistSource) Events() <-chan Event {
	return s.events
}

// Addr returns the address memberlist listens on, usable as a seed.
func (s *MemberlistSource) Addr() string {
	n := s.list.LocalNode()
	return fmt.Sprintf("%s:%d", n.Addr, n.Port)
}

// Members returns the peer records of every live member except self.
func (s *MemberlistSource) Members() []*peers.Peer {
	var res []*peers.Peer
	for _, n := range s.list.Members() {
		p, err := decodeMeta(n.Meta)
		if err != nil || p.ID() == s.self.ID() {
			continue
		}
		res = append(res, p)
	}
	return res
}

// Close leaves the cluster and stops memberlist.
func (s *MemberlistSource) Close() error {
	s.shutdownLock.Lock()
	defer s.shutdownLock.Unlock()

	if s.shutdown {
		return nil
	}
	s.shutdown = true
	close(s.shutdownCh)

	timeout := s.conf.LeaveTimeout
	if timeout == 0 {
		timeout = time.Second
	}
	if err := s.list.Leave(timeout); err != nil {
		s.logger.WithError(err).Warn("Leave")
	}

	err := s.list.Shutdown()
	s.logWriter.Close()
	return err
}

func (s *MemberlistSource) emit(t EventType, n *memberlist.Node) {
	p, err := decodeMeta(n.Meta)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"node":  n.Name,
			"error": err,
		}).Warn("Ignoring member without a valid peer record")
		return
	}

	if p.ID() == s.self.ID() {
		return
	}

	s.logger.WithFields(logrus.Fields{
		"event": t,
		"peer":  p,
		"addr":  p.NetAddr,
	}).Debug("Member event")

	select {
	case s.events <- Event{Type: t, Peer: p}:
	case <-s.shutdownCh:
	}
}

type eventDelegate struct {
	source *MemberlistSource
}

// NotifyJoin implements memberlist.EventDelegate
func (d *eventDelegate) NotifyJoin(n *memberlist.Node) {
	d.source.emit(Discovered, n)
}

// NotifyLeave implements memberlist.EventDelegate
func (d *eventDelegate) NotifyLeave(n *memberlist.Node) {
	d.source.emit(Expired, n)
}

// NotifyUpdate implements memberlist.EventDelegate. Peer records do not
// change while a member is alive.
func (d *eventDelegate) NotifyUpdate(n *memberlist.Node) {}

// metaDelegate publishes the local peer record.
type metaDelegate struct {
	meta []byte
}

func (m *metaDelegate) NodeMeta(limit int) []byte {
	if len(m.meta) > limit {
		return nil
	}
	return m.meta
}

func (m *metaDelegate) NotifyMsg([]byte)                           {}
func (m *metaDelegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (m *metaDelegate) LocalState(join bool) []byte                { return nil }
func (m *metaDelegate) MergeRemoteState(buf []byte, join bool)     {}

func encodeMeta(p *peers.Peer) ([]byte, error) {
	b := new(bytes.Buffer)
	mh := new(codec.MsgpackHandle)
	enc := codec.NewEncoder(b, mh)

	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decodeMeta(data []byte) (*peers.Peer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty metadata")
	}

	var rec peers.Peer
	mh := new(codec.MsgpackHandle)
	dec := codec.NewDecoder(bytes.NewReader(data), mh)
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}

	if rec.PubKeyBytes() == nil {
		return nil, fmt.Errorf("malformed public key")
	}
	return peers.NewPeer(rec.PubKeyHex, rec.NetAddr, rec.Moniker), nil
}
