// Package consensus implements the role state machine that elects a leader
// among the nodes of a hive cluster and replicates a small in-memory log.
//
// The Engine is a pure state machine: it never touches the network. Inputs
// are timer expirations (ElectionTimeout, HeartbeatTimeout), inbound wire
// messages (Step) and local submissions (Submit). Every input returns the
// Outbound messages the caller must deliver. VoteRequests are marked as
// broadcasts and travel over gossip, everything else is unicast.
//
// Safety rests on three rules that hold for any arrival order, duplication or
// replay of messages:
//
//  - CurrentTerm never decreases.
//  - A node grants at most one vote per term, and records it in the Store
//    before the VoteResponse is returned.
//  - A Candidate needs votes from a strict majority of the known cluster.
//
// The Engine is not safe for concurrent use. It is owned by the node loop.
package consensus
