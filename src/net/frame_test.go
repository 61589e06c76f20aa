package net

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

// countingReader records how many bytes were read from it.
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	payloads := [][]byte{
		{},
		[]byte("a"),
		bytes.Repeat([]byte("x"), 300),
		bytes.Repeat([]byte("y"), 2048),
	}

	for _, p := range payloads {
		if err := WriteFrame(&buf, p); err != nil {
			t.Fatalf("err: %v", err)
		}
	}

	for i, p := range payloads {
		out, err := ReadFrame(&buf, 2048)
		if err != nil {
			t.Fatalf("frame %d: err: %v", i, err)
		}
		if !bytes.Equal(out, p) {
			t.Fatalf("frame %d: got %d bytes, want %d", i, len(out), len(p))
		}
	}
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var hdr [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(hdr[:], 5000)

	data := append(append([]byte{}, hdr[:n]...), make([]byte, 5000)...)
	r := &countingReader{r: bytes.NewReader(data)}

	_, err := ReadFrame(r, 2048)
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, ok := err.(*ReadError); !ok {
		t.Fatalf("expected *ReadError, got %T", err)
	}
	if r.n != n {
		t.Fatalf("read %d bytes, only the %d byte prefix should be consumed", r.n, n)
	}
}

func TestReadFrameShort(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, []byte("hello"))
	truncated := buf.Bytes()[:buf.Len()-1]

	_, err := ReadFrame(bytes.NewReader(truncated), 2048)
	if _, ok := err.(*ReadError); !ok {
		t.Fatalf("expected *ReadError, got %v", err)
	}

	_, err = ReadFrame(bytes.NewReader(nil), 2048)
	if _, ok := err.(*ReadError); !ok {
		t.Fatalf("expected *ReadError on empty stream, got %v", err)
	}
}
