package common

import (
	"errors"
	"testing"
)

func TestHexRoundTrip(t *testing.T) {
	data := []byte{0x04, 0xab, 0x01, 0xff}

	s := EncodeToString(data)
	if s != "0X04AB01FF" {
		t.Fatalf("bad encoding: %s", s)
	}

	out, err := DecodeFromString(s)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if string(out) != string(data) {
		t.Fatalf("decoded %x, want %x", out, data)
	}

	if _, err := DecodeFromString("04AB"); err == nil {
		t.Fatalf("expected error for missing prefix")
	}
}

func TestIsStore(t *testing.T) {
	err := NewStoreErr("HardState", KeyNotFound, "hardstate")

	if !IsStore(err, KeyNotFound) {
		t.Fatalf("expected KeyNotFound")
	}
	if IsStore(err, Closed) {
		t.Fatalf("did not expect Closed")
	}
	if IsStore(errors.New("other"), KeyNotFound) {
		t.Fatalf("plain errors are not store errors")
	}
}
