package crypto

import (
	"bytes"
	"testing"
)

func TestSHA256Parts(t *testing.T) {
	whole := SHA256([]byte{
		0, 0, 0, 0, 0, 0, 0, 3, 'a', 'b', 'c',
		0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 1, 'd',
	})
	parts := SHA256Parts([]byte("abc"), nil, []byte("d"))

	if !bytes.Equal(whole, parts) {
		t.Fatalf("hash of parts %x differs from hash of whole %x", parts, whole)
	}
}

func TestSHA256PartsSplit(t *testing.T) {
	a := SHA256Parts([]byte("request_topic"), []byte("42"), []byte("payload"))
	b := SHA256Parts([]byte("request_topi"), []byte("c42"), []byte("payload"))
	c := SHA256Parts([]byte("request_topic"), []byte("4"), []byte("2payload"))

	if bytes.Equal(a, b) || bytes.Equal(a, c) || bytes.Equal(b, c) {
		t.Fatalf("different splits of the same bytes should not hash alike")
	}
}
