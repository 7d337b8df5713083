package wire

import (
	"testing"

	"github.com/breeze-rmm/streamgate/internal/channel"
)

func TestInputStreamHeaderRoundTrip(t *testing.T) {
	id := channel.ControllerID(4)
	b := EncodeInputStreamHeader(id)
	if DecodeInputStreamHeader(b) != id {
		t.Fatalf("header round trip mismatch for %v", id)
	}
}

func TestInputPacketRoundTrip(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	framed, err := EncodeInputPacket(payload)
	if err != nil {
		t.Fatalf("EncodeInputPacket: %v", err)
	}
	got, consumed, err := DecodeInputPacket(framed)
	if err != nil {
		t.Fatalf("DecodeInputPacket: %v", err)
	}
	if consumed != len(framed) {
		t.Fatalf("consumed = %d, want %d", consumed, len(framed))
	}
	if string(got) != string(payload) {
		t.Fatal("payload mismatch")
	}
}

func TestDecodeInputPacketRejectsOversizedLength(t *testing.T) {
	buf := []byte{0xFF, 0xFF} // claims 65535 bytes but provides none
	if _, _, err := DecodeInputPacket(buf); err == nil {
		t.Fatal("expected error for oversized/incomplete frame")
	}
}
