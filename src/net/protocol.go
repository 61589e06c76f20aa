package net

import (
	"io"

	"github.com/mosaicnetworks/hive/src/wire"
)

// Protocol is a versioned token negotiated at the start of every stream.
type Protocol string

const (
	// ProtocolRequestVote carries a wire.VoteRequest
	ProtocolRequestVote Protocol = "/hive/request_vote/1.0.0"
	// ProtocolVoteResponse carries a wire.VoteResponse
	ProtocolVoteResponse Protocol = "/hive/vote_response/1.0.0"
	// ProtocolAppendEntries carries a wire.AppendEntries
	ProtocolAppendEntries Protocol = "/hive/append_entries/1.0.0"
	// ProtocolAppendResponse carries a wire.AppendEntriesResponse
	ProtocolAppendResponse Protocol = "/hive/append_response/1.0.0"
	// ProtocolGossip carries a gossip RPC envelope
	ProtocolGossip Protocol = "/hive/gossip/1.0.0"
	// ProtocolIdentify carries the signed identity of a peer
	ProtocolIdentify Protocol = "/hive/identify/1.0.0"

	protocolNA = "na"

	// longest token a listener accepts
	maxTokenSize = 256
)

// MessageProtocols lists the protocols that carry a wire.Message.
var MessageProtocols = []Protocol{
	ProtocolRequestVote,
	ProtocolVoteResponse,
	ProtocolAppendEntries,
	ProtocolAppendResponse,
}

// ProtocolFor returns the protocol used to send messages of kind k.
func ProtocolFor(k wire.Kind) Protocol {
	switch k {
	case wire.KindVoteRequest:
		return ProtocolRequestVote
	case wire.KindVoteResponse:
		return ProtocolVoteResponse
	case wire.KindAppendEntries:
		return ProtocolAppendEntries
	case wire.KindAppendEntriesResponse:
		return ProtocolAppendResponse
	}
	return ""
}

// Kind returns the message kind carried by p, or 0 when p does not carry a
// wire.Message.
func (p Protocol) Kind() wire.Kind {
	switch p {
	case ProtocolRequestVote:
		return wire.KindVoteRequest
	case ProtocolVoteResponse:
		return wire.KindVoteResponse
	case ProtocolAppendEntries:
		return wire.KindAppendEntries
	case ProtocolAppendResponse:
		return wire.KindAppendEntriesResponse
	}
	return 0
}

func writeToken(w io.Writer, token string) error {
	return WriteFrame(w, []byte(token+"\n"))
}

func readToken(r io.Reader) (string, error) {
	buf, err := ReadFrame(r, maxTokenSize)
	if err != nil {
		return "", err
	}
	if len(buf) == 0 || buf[len(buf)-1] != '\n' {
		return "", &ReadError{Reason: "malformed protocol token"}
	}
	return string(buf[:len(buf)-1]), nil
}

// SelectProtocol proposes p on a fresh stream and waits for the listener to
// accept it. Nothing else is written to the stream when p is refused.
func SelectProtocol(rw io.ReadWriter, p Protocol) error {
	if err := writeToken(rw, string(p)); err != nil {
		return err
	}

	answer, err := readToken(rw)
	if err != nil {
		return err
	}

	if answer != string(p) {
		return ErrProtocolNotSupported
	}

	return nil
}

// HandleProtocol reads the token proposed by the dialer and accepts it if it
// is one of supported. A refused token is answered with "na" and no payload
// byte is consumed.
func HandleProtocol(rw io.ReadWriter, supported []Protocol) (Protocol, error) {
	token, err := readToken(rw)
	if err != nil {
		return "", err
	}

	for _, p := range supported {
		if string(p) == token {
			return p, writeToken(rw, token)
		}
	}

	if err := writeToken(rw, protocolNA); err != nil {
		return "", err
	}

	return "", ErrProtocolNotSupported
}
