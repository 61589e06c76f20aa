package crypto

import (
	"crypto/sha256"
	"encoding/binary"
)

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(data)
	hash := hasher.Sum(nil)
	return hash
}

// SHA256Parts returns the SHA256 hash of the parts, each preceded by its
// length as a big-endian uint64, so that no two different splits of the same
// bytes hash alike.
func SHA256Parts(parts ...[]byte) []byte {
	hasher := sha256.New()
	var l [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(l[:], uint64(len(p)))
		hasher.Write(l[:])
		hasher.Write(p)
	}
	return hasher.Sum(nil)
}
