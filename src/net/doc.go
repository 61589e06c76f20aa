// Package net implements the peer-to-peer transport between Hive nodes.
//
// Connections are established over a StreamLayer (plain TCP, or TCP wrapped
// in TLS with TLSStreamLayer), and multiplexed with yamux. Every session
// starts with the identify protocol, in which both ends sign keying material
// exported from the TLS session with their secp256k1 node key. A session is
// therefore bound to a peer identity before any consensus traffic flows.
//
// Streams
//
// Each yamux stream carries a single exchange. The dialer proposes a versioned
// protocol token, for instance /hive/request_vote/1.0.0, which the listener
// echoes if it speaks the protocol, or refuses with "na". The dialer then
// writes exactly one frame and closes its side of the stream. A frame is the
// payload prefixed with its uvarint-encoded length; frames longer than
// wire.MaxMessageSize are rejected before they are read.
//
// Errors
//
// Failures are contained to the smallest unit they affect. A ReadError or a
// wire.DecodeError closes the stream it occurred on, but not the session.
// TransportErrors are reported as DialFailed events, and the node reacts by
// redialing.
package net
