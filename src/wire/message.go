package wire

import "fmt"

// MaxMessageSize is the largest encoded message accepted from the network.
const MaxMessageSize = 2048

// Kind identifies the type of a Message.
type Kind uint8

const (
	// KindVoteRequest ...
	KindVoteRequest Kind = iota + 1
	// KindVoteResponse ...
	KindVoteResponse
	// KindAppendEntries ...
	KindAppendEntries
	// KindAppendEntriesResponse ...
	KindAppendEntriesResponse
)

func (k Kind) String() string {
	switch k {
	case KindVoteRequest:
		return "VoteRequest"
	case KindVoteResponse:
		return "VoteResponse"
	case KindAppendEntries:
		return "AppendEntries"
	case KindAppendEntriesResponse:
		return "AppendEntriesResponse"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Message is implemented by every RPC that travels between nodes.
type Message interface {
	Kind() Kind
	Marshal() []byte
}

// Termed is implemented by messages that carry a consensus term.
type Termed interface {
	Message
	GetTerm() uint32
}

// VoteRequest is sent by a candidate to solicit votes. It is fixed-size and
// comparable, and the encoded form doubles as its deduplication key.
type VoteRequest struct {
	Term         uint32
	CandidateID  uint32
	LastLogTerm  uint32
	LastLogIndex uint32
}

// VoteResponse answers a VoteRequest.
type VoteResponse struct {
	Term        uint32
	VoterID     uint32
	CandidateID uint32
	Granted     bool
}

// AppendEntries is sent by the leader to replicate log entries. An empty
// Entries blob is a heartbeat.
type AppendEntries struct {
	Term             uint32
	LeaderID         uint32
	LeaderCommit     uint32
	Entries          []byte
	PreviousLogTerm  uint32
	PreviousLogIndex uint32
}

// AppendEntriesResponse answers an AppendEntries.
type AppendEntriesResponse struct {
	Term       uint32
	FollowerID uint32
	MatchIndex uint32
	Success    bool
}

// Kind implements Message
func (m *VoteRequest) Kind() Kind { return KindVoteRequest }

// Kind implements Message
func (m *VoteResponse) Kind() Kind { return KindVoteResponse }

// Kind implements Message
func (m *AppendEntries) Kind() Kind { return KindAppendEntries }

// Kind implements Message
func (m *AppendEntriesResponse) Kind() Kind { return KindAppendEntriesResponse }

// GetTerm implements Termed
func (m *VoteRequest) GetTerm() uint32 { return m.Term }

// GetTerm implements Termed
func (m *VoteResponse) GetTerm() uint32 { return m.Term }

// GetTerm implements Termed
func (m *AppendEntries) GetTerm() uint32 { return m.Term }

// GetTerm implements Termed
func (m *AppendEntriesResponse) GetTerm() uint32 { return m.Term }

func (m *VoteRequest) String() string {
	return fmt.Sprintf("VoteRequest{term:%d candidate:%d last:(%d,%d)}",
		m.Term, m.CandidateID, m.LastLogTerm, m.LastLogIndex)
}

func (m *VoteResponse) String() string {
	return fmt.Sprintf("VoteResponse{term:%d voter:%d candidate:%d granted:%t}",
		m.Term, m.VoterID, m.CandidateID, m.Granted)
}

func (m *AppendEntries) String() string {
	return fmt.Sprintf("AppendEntries{term:%d leader:%d commit:%d prev:(%d,%d) entries:%dB}",
		m.Term, m.LeaderID, m.LeaderCommit, m.PreviousLogTerm, m.PreviousLogIndex, len(m.Entries))
}

func (m *AppendEntriesResponse) String() string {
	return fmt.Sprintf("AppendEntriesResponse{term:%d follower:%d match:%d success:%t}",
		m.Term, m.FollowerID, m.MatchIndex, m.Success)
}
