package net

import (
	"encoding/binary"
	"io"
)

// WriteFrame writes payload prefixed with its uvarint-encoded length.
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(hdr[:], uint64(len(payload)))

	buf := make([]byte, 0, n+len(payload))
	buf = append(buf, hdr[:n]...)
	buf = append(buf, payload...)

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame written by WriteFrame. A length above max is
// rejected before any payload byte is read or any buffer allocated.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	length, err := binary.ReadUvarint(byteReader{r})
	if err != nil {
		return nil, &ReadError{Reason: "length prefix", Err: err}
	}

	if length > uint64(max) {
		return nil, &ReadError{Reason: "frame exceeds limit"}
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, &ReadError{Reason: "short frame", Err: err}
	}

	return buf, nil
}

// byteReader reads the length prefix one byte at a time so that nothing past
// it is consumed from r.
type byteReader struct {
	r io.Reader
}

func (b byteReader) ReadByte() (byte, error) {
	var one [1]byte
	if _, err := io.ReadFull(b.r, one[:]); err != nil {
		return 0, err
	}
	return one[0], nil
}
