package consensus

// Role is the consensus role of a node: Follower, Candidate or Leader.
type Role uint32

const (
	// Follower is the initial role. Followers answer VoteRequests and accept
	// entries from the leader of the current term.
	Follower Role = iota
	// Candidate is the role of a node that timed out and asks for votes.
	Candidate
	// Leader is the role of the node that won a majority of votes for the
	// current term. It sends heartbeats and replicates entries.
	Leader
)

// String returns the string representation of a Role
func (r Role) String() string {
	switch r {
	case Follower:
		return "Follower"
	case Candidate:
		return "Candidate"
	case Leader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// Snapshot is a read-only copy of the Engine state.
type Snapshot struct {
	ID           uint32
	Role         Role
	Term         uint32
	VotedFor     uint32
	Leader       uint32
	Votes        int
	ClusterSize  int
	CommitIndex  uint32
	LastLogIndex uint32
	LastLogTerm  uint32
}
