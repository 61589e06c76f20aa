package consensus

import (
	"errors"
	"sort"

	"github.com/mosaicnetworks/hive/src/peers"
	"github.com/mosaicnetworks/hive/src/store"
	"github.com/mosaicnetworks/hive/src/wire"
	"github.com/sirupsen/logrus"
)

const (
	// fixed part of an encoded AppendEntries: five u32 fields plus the length
	// prefix of the entries blob.
	appendEntriesOverhead = 24
	// term and length prefix of one entry inside the blob.
	entryOverhead = 8
	// entries budget of one AppendEntries message.
	entriesBudget = wire.MaxMessageSize - appendEntriesOverhead
)

var (
	// ErrNotLeader is returned by Submit when the node is not the leader of
	// the current term.
	ErrNotLeader = errors.New("not leader")
	// ErrEntryTooLarge is returned by Submit when the entry cannot fit in a
	// single AppendEntries message.
	ErrEntryTooLarge = errors.New("entry too large")
)

// Outbound is a message the Engine asks the caller to deliver. Broadcast
// messages go to every peer and To is ignored.
type Outbound struct {
	To        uint32
	Msg       wire.Message
	Broadcast bool
}

// Engine is the Follower/Candidate/Leader state machine of one node.
type Engine struct {
	id    uint32
	store store.Store

	role        Role
	currentTerm uint32
	votedFor    uint32
	leader      uint32
	votes       map[uint32]bool

	// set when a heartbeat from the current leader, or a granted vote, was
	// observed since the previous election timeout.
	heartbeatSeen bool

	peers map[uint32]bool

	// minimum cluster size before elections start, 0 when unset
	bootstrapExpect int

	log         raftLog
	commitIndex uint32
	nextIndex   map[uint32]uint32
	matchIndex  map[uint32]uint32

	logger *logrus.Entry
}

// NewEngine creates a Follower with the hard state found in s. A node with
// no previous hard state starts at term 0 without a vote.
func NewEngine(id uint32, s store.Store, logger *logrus.Entry) (*Engine, error) {
	hs, err := s.HardState()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	e := &Engine{
		id:          id,
		store:       s,
		role:        Follower,
		currentTerm: hs.CurrentTerm,
		votedFor:    hs.VotedFor,
		votes:       make(map[uint32]bool),
		peers:       make(map[uint32]bool),
		nextIndex:   make(map[uint32]uint32),
		matchIndex:  make(map[uint32]uint32),
		logger:      logger.WithField("prefix", "consensus"),
	}

	return e, nil
}

// ID returns the id of the local node.
func (e *Engine) ID() uint32 {
	return e.id
}

// AddPeer adds a node to the known cluster. The cluster never shrinks, so a
// majority computed by a Candidate never drops below what the other nodes
// assume.
func (e *Engine) AddPeer(id uint32) {
	if id == e.id || e.peers[id] {
		return
	}
	e.peers[id] = true

	if e.role == Leader {
		e.nextIndex[id] = e.log.lastIndex() + 1
		e.matchIndex[id] = 0
	}

	e.logger.WithField("peer", id).Debug("Peer added to cluster")
}

// ClusterSize counts the local node and every known peer.
func (e *Engine) ClusterSize() int {
	return len(e.peers) + 1
}

// SetBootstrapExpect makes the Engine wait until it knows at least n nodes,
// itself included, before it starts an election. Majorities are then counted
// over at least n nodes, so nodes that have not yet discovered each other
// cannot elect separate leaders.
func (e *Engine) SetBootstrapExpect(n int) {
	e.bootstrapExpect = n
}

// quorumSize is the cluster size majorities are computed against.
func (e *Engine) quorumSize() int {
	if size := e.ClusterSize(); size > e.bootstrapExpect {
		return size
	}
	return e.bootstrapExpect
}

// State returns a snapshot of the Engine state.
func (e *Engine) State() Snapshot {
	return Snapshot{
		ID:           e.id,
		Role:         e.role,
		Term:         e.currentTerm,
		VotedFor:     e.votedFor,
		Leader:       e.leader,
		Votes:        len(e.votes),
		ClusterSize:  e.ClusterSize(),
		CommitIndex:  e.commitIndex,
		LastLogIndex: e.log.lastIndex(),
		LastLogTerm:  e.log.lastTerm(),
	}
}

// Entry returns the log entry at index.
func (e *Engine) Entry(index uint32) (wire.Entry, bool) {
	return e.log.get(index)
}

// persist writes the hard state before it becomes visible in memory. On error
// nothing changes.
func (e *Engine) persist(term, votedFor uint32) error {
	if term == e.currentTerm && votedFor == e.votedFor {
		return nil
	}

	err := e.store.SetHardState(store.HardState{
		CurrentTerm: term,
		VotedFor:    votedFor,
	})
	if err != nil {
		e.logger.WithError(err).Error("Failed to persist hard state")
		return err
	}

	e.currentTerm = term
	e.votedFor = votedFor
	return nil
}

// ElectionTimeout is called by the election timer. A Follower that did not
// hear from a leader since the previous timeout, or a Candidate whose
// election was split, starts a new election.
func (e *Engine) ElectionTimeout() []Outbound {
	if e.role == Leader {
		return nil
	}

	if e.heartbeatSeen {
		e.heartbeatSeen = false
		return nil
	}

	if e.ClusterSize() < e.bootstrapExpect {
		e.logger.WithFields(logrus.Fields{
			"cluster": e.ClusterSize(),
			"expect":  e.bootstrapExpect,
		}).Debug("Waiting for peers before the first election")
		return nil
	}

	if err := e.persist(e.currentTerm+1, e.id); err != nil {
		return nil
	}

	e.role = Candidate
	e.leader = 0
	e.votes = map[uint32]bool{e.id: true}

	e.logger.WithFields(logrus.Fields{
		"term":    e.currentTerm,
		"cluster": e.ClusterSize(),
	}).Info("Election timeout, becoming Candidate")

	if e.hasMajority() {
		return e.becomeLeader()
	}

	return []Outbound{{
		Broadcast: true,
		Msg: &wire.VoteRequest{
			Term:         e.currentTerm,
			CandidateID:  e.id,
			LastLogTerm:  e.log.lastTerm(),
			LastLogIndex: e.log.lastIndex(),
		},
	}}
}

// HeartbeatTimeout is called by the heartbeat ticker. A Leader sends each
// follower an AppendEntries carrying the entries from its nextIndex.
func (e *Engine) HeartbeatTimeout() []Outbound {
	if e.role != Leader {
		return nil
	}

	res := make([]Outbound, 0, len(e.peers))
	for _, id := range e.peerIDs() {
		res = append(res, Outbound{To: id, Msg: e.appendEntriesFor(id)})
	}
	return res
}

func (e *Engine) appendEntriesFor(id uint32) *wire.AppendEntries {
	next := e.nextIndex[id]
	if next == 0 {
		next = 1
	}
	prev := next - 1

	return &wire.AppendEntries{
		Term:             e.currentTerm,
		LeaderID:         e.id,
		LeaderCommit:     e.commitIndex,
		Entries:          wire.EncodeEntries(e.log.slice(next, entriesBudget)),
		PreviousLogTerm:  e.log.term(prev),
		PreviousLogIndex: prev,
	}
}

// Submit appends data to the log of a Leader. The entry is replicated with the
// next heartbeats.
func (e *Engine) Submit(data []byte) error {
	if e.role != Leader {
		return ErrNotLeader
	}

	if 4+entryOverhead+len(data) > entriesBudget {
		return ErrEntryTooLarge
	}

	e.log.append(wire.Entry{Term: e.currentTerm, Data: data})
	e.advanceCommit()

	e.logger.WithFields(logrus.Fields{
		"index": e.log.lastIndex(),
		"term":  e.currentTerm,
	}).Debug("Entry submitted")

	return nil
}

// Step processes an inbound message received from a peer.
func (e *Engine) Step(from uint32, m wire.Message) []Outbound {
	t, ok := m.(wire.Termed)
	if !ok {
		return nil
	}

	if t.GetTerm() < e.currentTerm {
		e.logger.WithFields(logrus.Fields{
			"from":    from,
			"message": m,
			"term":    e.currentTerm,
		}).Debug("Ignoring stale message")

		// a stale leader learns about the new term from the failure
		if ae, ok := m.(*wire.AppendEntries); ok {
			return []Outbound{{To: ae.LeaderID, Msg: e.appendFailure(0)}}
		}
		return nil
	}

	if t.GetTerm() > e.currentTerm {
		if err := e.persist(t.GetTerm(), 0); err != nil {
			return nil
		}
		if e.role != Follower {
			e.logger.WithField("term", e.currentTerm).Info("Higher term observed, stepping down")
		}
		e.becomeFollower(0)
	}

	switch msg := m.(type) {
	case *wire.VoteRequest:
		return e.handleVoteRequest(msg)
	case *wire.VoteResponse:
		return e.handleVoteResponse(msg)
	case *wire.AppendEntries:
		return e.handleAppendEntries(msg)
	case *wire.AppendEntriesResponse:
		e.handleAppendEntriesResponse(msg)
	}
	return nil
}

func (e *Engine) handleVoteRequest(req *wire.VoteRequest) []Outbound {
	if req.CandidateID == e.id {
		return nil
	}

	granted := (e.votedFor == 0 || e.votedFor == req.CandidateID) &&
		e.log.upToDate(req.LastLogTerm, req.LastLogIndex)

	if granted {
		if err := e.persist(e.currentTerm, req.CandidateID); err != nil {
			return nil
		}
		e.heartbeatSeen = true
	}

	e.logger.WithFields(logrus.Fields{
		"candidate": req.CandidateID,
		"term":      e.currentTerm,
		"granted":   granted,
	}).Debug("VoteRequest")

	return []Outbound{{
		To: req.CandidateID,
		Msg: &wire.VoteResponse{
			Term:        e.currentTerm,
			VoterID:     e.id,
			CandidateID: req.CandidateID,
			Granted:     granted,
		},
	}}
}

func (e *Engine) handleVoteResponse(resp *wire.VoteResponse) []Outbound {
	if e.role != Candidate || resp.CandidateID != e.id || !resp.Granted {
		return nil
	}

	e.votes[resp.VoterID] = true

	if e.hasMajority() {
		return e.becomeLeader()
	}
	return nil
}

func (e *Engine) handleAppendEntries(ae *wire.AppendEntries) []Outbound {
	if e.role == Leader {
		e.logger.WithFields(logrus.Fields{
			"leader": ae.LeaderID,
			"term":   ae.Term,
		}).Error("AppendEntries from another leader of the same term")
		return nil
	}

	e.becomeFollower(ae.LeaderID)
	e.heartbeatSeen = true

	reply := func(m *wire.AppendEntriesResponse) []Outbound {
		return []Outbound{{To: ae.LeaderID, Msg: m}}
	}

	last := e.log.lastIndex()
	if ae.PreviousLogIndex > last {
		return reply(e.appendFailure(last))
	}
	if e.log.term(ae.PreviousLogIndex) != ae.PreviousLogTerm {
		return reply(e.appendFailure(ae.PreviousLogIndex - 1))
	}

	entries, err := wire.DecodeEntries(ae.Entries)
	if err != nil {
		e.logger.WithError(err).Debug("Malformed entries")
		return nil
	}

	index := ae.PreviousLogIndex
	for _, ent := range entries {
		index++
		if index <= e.log.lastIndex() {
			if e.log.term(index) == ent.Term {
				continue
			}
			e.log.truncate(index - 1)
		}
		e.log.append(ent)
	}

	if ae.LeaderCommit > e.commitIndex {
		commit := ae.LeaderCommit
		if index < commit {
			commit = index
		}
		if commit > e.commitIndex {
			e.commitIndex = commit
		}
	}

	return reply(&wire.AppendEntriesResponse{
		Term:       e.currentTerm,
		FollowerID: e.id,
		MatchIndex: index,
		Success:    true,
	})
}

func (e *Engine) appendFailure(hint uint32) *wire.AppendEntriesResponse {
	return &wire.AppendEntriesResponse{
		Term:       e.currentTerm,
		FollowerID: e.id,
		MatchIndex: hint,
		Success:    false,
	}
}

func (e *Engine) handleAppendEntriesResponse(resp *wire.AppendEntriesResponse) {
	if e.role != Leader || !e.peers[resp.FollowerID] {
		return
	}

	id := resp.FollowerID

	if resp.Success {
		if resp.MatchIndex > e.matchIndex[id] && resp.MatchIndex <= e.log.lastIndex() {
			e.matchIndex[id] = resp.MatchIndex
		}
		e.nextIndex[id] = e.matchIndex[id] + 1
		e.advanceCommit()
		return
	}

	next := e.nextIndex[id]
	if next > 1 {
		next--
	}
	if resp.MatchIndex+1 < next {
		next = resp.MatchIndex + 1
	}
	if next <= e.matchIndex[id] {
		next = e.matchIndex[id] + 1
	}
	e.nextIndex[id] = next
}

// advanceCommit moves the commit index to the highest entry of the current
// term stored by a majority.
func (e *Engine) advanceCommit() {
	majority := peers.Majority(e.quorumSize())

	for n := e.log.lastIndex(); n > e.commitIndex; n-- {
		if e.log.term(n) != e.currentTerm {
			break
		}
		count := 1
		for id := range e.peers {
			if e.matchIndex[id] >= n {
				count++
			}
		}
		if count >= majority {
			e.logger.WithField("index", n).Debug("Commit index advanced")
			e.commitIndex = n
			return
		}
	}
}

func (e *Engine) hasMajority() bool {
	count := 0
	for id := range e.votes {
		if id == e.id || e.peers[id] {
			count++
		}
	}
	return count >= peers.Majority(e.quorumSize())
}

func (e *Engine) becomeFollower(leader uint32) {
	if e.role != Follower {
		e.role = Follower
		e.votes = make(map[uint32]bool)
	}
	e.leader = leader
}

func (e *Engine) becomeLeader() []Outbound {
	e.role = Leader
	e.leader = e.id
	e.votes = make(map[uint32]bool)

	for id := range e.peers {
		e.nextIndex[id] = e.log.lastIndex() + 1
		e.matchIndex[id] = 0
	}

	e.logger.WithField("term", e.currentTerm).Info("Became Leader")

	return e.HeartbeatTimeout()
}

func (e *Engine) peerIDs() []uint32 {
	res := make([]uint32, 0, len(e.peers))
	for id := range e.peers {
		res = append(res, id)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}
