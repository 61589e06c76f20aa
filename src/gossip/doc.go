// Package gossip implements topic based publish/subscribe between Hive nodes.
//
// The Router floods messages to the admitted peers that announced a
// subscription to the message's topic. A message is identified by the hash of
// its payload, so the same bytes published by two nodes are one logical
// message, delivered and forwarded at most once per node.
//
// Only admitted peers take part in the overlay. Peers are admitted with
// AddExplicitPeer, usually in response to a discovery event, and removed with
// RemoveExplicitPeer. Traffic from other peers is ignored, and no traffic is
// ever addressed to them.
//
// With Config.Signed, every message carries the public key of its originator
// and a signature over its topic, sequence number and payload. Messages that
// are unsigned, or whose signature does not verify, are dropped before
// delivery.
package gossip
