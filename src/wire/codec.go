package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	voteRequestSize  = 16
	voteResponseSize = 13
	appendRespSize   = 13
	appendFixedSize  = 4*5 + 4
)

// DecodeError is returned when a payload cannot be parsed into the expected
// message.
type DecodeError struct {
	Kind   Kind
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Kind, e.Reason)
}

func decodeErr(k Kind, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Kind: k, Reason: fmt.Sprintf(format, args...)}
}

// Encode returns the body of m, without any kind tag.
func Encode(m Message) []byte {
	return m.Marshal()
}

// Decode parses data as a message of the given kind. It never panics;
// truncated, oversized or trailing input yields a *DecodeError.
func Decode(kind Kind, data []byte) (Message, error) {
	if len(data) > MaxMessageSize {
		return nil, decodeErr(kind, "%d bytes exceeds maximum of %d", len(data), MaxMessageSize)
	}

	var m interface {
		Message
		Unmarshal([]byte) error
	}
	switch kind {
	case KindVoteRequest:
		m = new(VoteRequest)
	case KindVoteResponse:
		m = new(VoteResponse)
	case KindAppendEntries:
		m = new(AppendEntries)
	case KindAppendEntriesResponse:
		m = new(AppendEntriesResponse)
	default:
		return nil, decodeErr(kind, "unknown message kind")
	}

	if err := m.Unmarshal(data); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeTagged prepends the kind of m to its body.
func EncodeTagged(m Message) []byte {
	body := m.Marshal()
	out := make([]byte, 0, 1+len(body))
	out = append(out, byte(m.Kind()))
	return append(out, body...)
}

// DecodeTagged parses the output of EncodeTagged.
func DecodeTagged(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, decodeErr(0, "empty payload")
	}
	return Decode(Kind(data[0]), data[1:])
}

// Marshal implements Message
func (m *VoteRequest) Marshal() []byte {
	buf := make([]byte, voteRequestSize)
	binary.BigEndian.PutUint32(buf[0:], m.Term)
	binary.BigEndian.PutUint32(buf[4:], m.CandidateID)
	binary.BigEndian.PutUint32(buf[8:], m.LastLogTerm)
	binary.BigEndian.PutUint32(buf[12:], m.LastLogIndex)
	return buf
}

// Unmarshal parses a VoteRequest body.
func (m *VoteRequest) Unmarshal(data []byte) error {
	if len(data) != voteRequestSize {
		return decodeErr(KindVoteRequest, "want %d bytes, got %d", voteRequestSize, len(data))
	}
	m.Term = binary.BigEndian.Uint32(data[0:])
	m.CandidateID = binary.BigEndian.Uint32(data[4:])
	m.LastLogTerm = binary.BigEndian.Uint32(data[8:])
	m.LastLogIndex = binary.BigEndian.Uint32(data[12:])
	return nil
}

// Marshal implements Message
func (m *VoteResponse) Marshal() []byte {
	buf := make([]byte, voteResponseSize)
	binary.BigEndian.PutUint32(buf[0:], m.Term)
	binary.BigEndian.PutUint32(buf[4:], m.VoterID)
	binary.BigEndian.PutUint32(buf[8:], m.CandidateID)
	buf[12] = boolByte(m.Granted)
	return buf
}

// Unmarshal parses a VoteResponse body.
func (m *VoteResponse) Unmarshal(data []byte) error {
	if len(data) != voteResponseSize {
		return decodeErr(KindVoteResponse, "want %d bytes, got %d", voteResponseSize, len(data))
	}
	granted, ok := byteBool(data[12])
	if !ok {
		return decodeErr(KindVoteResponse, "invalid granted flag %d", data[12])
	}
	m.Term = binary.BigEndian.Uint32(data[0:])
	m.VoterID = binary.BigEndian.Uint32(data[4:])
	m.CandidateID = binary.BigEndian.Uint32(data[8:])
	m.Granted = granted
	return nil
}

// Marshal implements Message
func (m *AppendEntries) Marshal() []byte {
	buf := make([]byte, 0, appendFixedSize+len(m.Entries))
	buf = appendUint32(buf, m.Term)
	buf = appendUint32(buf, m.LeaderID)
	buf = appendUint32(buf, m.LeaderCommit)
	buf = appendUint32(buf, uint32(len(m.Entries)))
	buf = append(buf, m.Entries...)
	buf = appendUint32(buf, m.PreviousLogTerm)
	buf = appendUint32(buf, m.PreviousLogIndex)
	return buf
}

// Unmarshal parses an AppendEntries body.
func (m *AppendEntries) Unmarshal(data []byte) error {
	r := reader{kind: KindAppendEntries, data: data}

	m.Term = r.uint32()
	m.LeaderID = r.uint32()
	m.LeaderCommit = r.uint32()
	m.Entries = r.bytes()
	m.PreviousLogTerm = r.uint32()
	m.PreviousLogIndex = r.uint32()

	return r.finish()
}

// Marshal implements Message
func (m *AppendEntriesResponse) Marshal() []byte {
	buf := make([]byte, appendRespSize)
	binary.BigEndian.PutUint32(buf[0:], m.Term)
	binary.BigEndian.PutUint32(buf[4:], m.FollowerID)
	binary.BigEndian.PutUint32(buf[8:], m.MatchIndex)
	buf[12] = boolByte(m.Success)
	return buf
}

// Unmarshal parses an AppendEntriesResponse body.
func (m *AppendEntriesResponse) Unmarshal(data []byte) error {
	if len(data) != appendRespSize {
		return decodeErr(KindAppendEntriesResponse, "want %d bytes, got %d", appendRespSize, len(data))
	}
	success, ok := byteBool(data[12])
	if !ok {
		return decodeErr(KindAppendEntriesResponse, "invalid success flag %d", data[12])
	}
	m.Term = binary.BigEndian.Uint32(data[0:])
	m.FollowerID = binary.BigEndian.Uint32(data[4:])
	m.MatchIndex = binary.BigEndian.Uint32(data[8:])
	m.Success = success
	return nil
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func byteBool(b byte) (bool, bool) {
	switch b {
	case 0:
		return false, true
	case 1:
		return true, true
	default:
		return false, false
	}
}

// reader consumes a byte slice field by field. The first failure sticks and
// every later read returns a zero value.
type reader struct {
	kind Kind
	data []byte
	off  int
	err  *DecodeError
}

func (r *reader) uint32() uint32 {
	if r.err != nil {
		return 0
	}
	if len(r.data)-r.off < 4 {
		r.err = decodeErr(r.kind, "truncated at offset %d", r.off)
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *reader) bytes() []byte {
	n := r.uint32()
	if r.err != nil {
		return nil
	}
	if uint64(n) > uint64(len(r.data)-r.off) {
		r.err = decodeErr(r.kind, "field length %d overruns payload at offset %d", n, r.off)
		return nil
	}
	out := make([]byte, n)
	copy(out, r.data[r.off:r.off+int(n)])
	r.off += int(n)
	return out
}

func (r *reader) finish() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.data) {
		return decodeErr(r.kind, "%d trailing bytes", len(r.data)-r.off)
	}
	return nil
}
