package net

import (
	"net"
	"reflect"
	"testing"

	"github.com/mosaicnetworks/hive/src/wire"
)

func TestProtocolKinds(t *testing.T) {
	for _, p := range MessageProtocols {
		if ProtocolFor(p.Kind()) != p {
			t.Fatalf("%s does not map back to itself", p)
		}
	}
	if ProtocolGossip.Kind() != 0 || ProtocolIdentify.Kind() != 0 {
		t.Fatalf("gossip and identify do not carry wire messages")
	}
}

func TestUpgrade(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	vr := &wire.VoteRequest{Term: 5, CandidateID: 42, LastLogTerm: 4, LastLogIndex: 10}

	errCh := make(chan error, 1)
	go func() {
		errCh <- UpgradeOutbound(client, ProtocolRequestVote, wire.Encode(vr))
	}()

	in, err := UpgradeInbound(server, MessageProtocols)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("outbound err: %v", err)
	}

	if in.Protocol != ProtocolRequestVote {
		t.Fatalf("protocol should be %s, not %s", ProtocolRequestVote, in.Protocol)
	}
	if !reflect.DeepEqual(in.Message, vr) {
		t.Fatalf("message should be %v, not %v", vr, in.Message)
	}
}

func TestUpgradeUnsupportedProtocol(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- UpgradeOutbound(client, Protocol("/hive/unknown/9.9.9"), []byte("payload"))
	}()

	_, err := UpgradeInbound(server, MessageProtocols)
	if err != ErrProtocolNotSupported {
		t.Fatalf("inbound err should be ErrProtocolNotSupported, not %v", err)
	}

	if err := <-errCh; err != ErrProtocolNotSupported {
		t.Fatalf("outbound err should be ErrProtocolNotSupported, not %v", err)
	}
}

func TestUpgradeDecodeError(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	go UpgradeOutbound(client, ProtocolRequestVote, []byte{1, 2, 3})

	_, err := UpgradeInbound(server, MessageProtocols)
	if _, ok := err.(*wire.DecodeError); !ok {
		t.Fatalf("expected *wire.DecodeError, got %v", err)
	}
}
