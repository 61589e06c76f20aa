// Package wire implements the binary encoding of the consensus RPCs exchanged
// by Hive nodes.
//
// All integers are unsigned 32-bit values in network byte order. Variable
// length fields carry their own u32 length prefix. The layouts are:
//
//	VoteRequest            term, candidateId, lastLogTerm, lastLogIndex
//	VoteResponse           term, voterId, candidateId, granted(1)
//	AppendEntries          term, leaderId, leaderCommit, entries(len+bytes),
//	                       previousLogTerm, previousLogIndex
//	AppendEntriesResponse  term, followerId, matchIndex, success(1)
//
// Encode only produces the body. Streams negotiate the message kind through
// their protocol token, whereas gossip payloads use EncodeTagged which
// prepends a single kind byte.
package wire
