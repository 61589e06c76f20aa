// Package peers defines the concept of a Hive peer and implements functions to
// manage collections of peers.
//
// Peers are identified by their public keys, and optionaly a moniker which is a
// non-unique user-friendly name. A peer also specifies an IP address and port
// where it can be reached by other peers. The compact uint32 form of the
// public key, returned by Peer.ID, is the candidate and leader id carried in
// consensus messages.
//
// Upon starting up, Hive looks for a peers.json file in its data directory.
// The file lists the peers that the node should attempt to connect to when no
// other discovery mechanism is configured.
package peers
