// Package node implements the reactive component of a hive node.
//
// A Node runs a single event loop which selects over transport events,
// discovery events, the randomized election timer, the heartbeat ticker,
// operator commands and shutdown. The loop goroutine owns the consensus
// engine, the session manager and the gossip router, so none of them are
// guarded by locks.
//
// Events
//
// Transport events update the session manager (connection lifecycle) and the
// gossip router (admission). Inbound consensus messages go through the
// session manager, which deduplicates votes, before they are stepped into the
// consensus engine. Discovery events add or remove peers from both the
// session manager and the gossip router.
//
// After every event the loop drains the actions queued by the session
// manager and the gossip router: dials are rate limited per peer, sends are
// handed to the transport, and deliveries are stepped into the engine.
//
// Elections
//
// VoteRequests are disseminated through the gossip topic VoteTopic. Every
// other consensus message (VoteResponse, AppendEntries and
// AppendEntriesResponse) is sent directly to its destination over a framed
// stream.
//
// Stats
//
// The loop publishes a snapshot of its counters after every event. GetStats
// and GetPeers read that snapshot and are safe to call from any goroutine,
// which is how the HTTP service exposes them.
package node
