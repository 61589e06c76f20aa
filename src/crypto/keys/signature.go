package keys

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Sign signs the hash with the private key and the built-in pseudo-random
// generator rand.Reader.
func Sign(priv *ecdsa.PrivateKey, hash []byte) (r, s *big.Int, err error) {
	return ecdsa.Sign(rand.Reader, priv, hash)
}

// Verify verifies that a signature represented by r and s values, is a valid
// signature of the hash by an owner of the private key associated with the
// provided public key.
func Verify(pub *ecdsa.PublicKey, hash []byte, r, s *big.Int) bool {
	if pub == nil || r == nil || s == nil {
		return false
	}
	return ecdsa.Verify(pub, hash, r, s)
}

// EncodeSignature returns a string representation of a signature.
func EncodeSignature(r, s *big.Int) string {
	return fmt.Sprintf("%s|%s", r.Text(36), s.Text(36))
}

// DecodeSignature parses a string representation of a signature as produced
// by EncodeSignature.
func DecodeSignature(sig string) (r, s *big.Int, err error) {
	values := strings.Split(sig, "|")
	if len(values) != 2 {
		return r, s, fmt.Errorf("wrong number of values in signature: got %d, want 2", len(values))
	}
	var ok bool
	if r, ok = new(big.Int).SetString(values[0], 36); !ok {
		return nil, nil, fmt.Errorf("malformed signature r value")
	}
	if s, ok = new(big.Int).SetString(values[1], 36); !ok {
		return nil, nil, fmt.Errorf("malformed signature s value")
	}
	return r, s, nil
}

// SignEncoded signs the hash and returns the encoded signature.
func SignEncoded(priv *ecdsa.PrivateKey, hash []byte) (string, error) {
	r, s, err := Sign(priv, hash)
	if err != nil {
		return "", err
	}
	return EncodeSignature(r, s), nil
}

// VerifyEncoded checks an encoded signature of hash against pub. Malformed
// signatures do not verify.
func VerifyEncoded(pub *ecdsa.PublicKey, hash []byte, sig string) bool {
	r, s, err := DecodeSignature(sig)
	if err != nil {
		return false
	}
	return Verify(pub, hash, r, s)
}
