// Package keys implements the public key cryptography used throughout Hive.
//
// Every Hive node owns a secp256k1 key-pair. The public key is the node's
// identity: the compact uint32 id that travels in VoteRequests and
// AppendEntries is derived from it, and gossip messages are signed with the
// private key when signed authenticity is enabled.
package keys
