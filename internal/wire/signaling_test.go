package wire

import "testing"

func TestClientMessageInitRoundTrip(t *testing.T) {
	msg := InitMessage{
		HostID:                "host-1",
		AppID:                 "1",
		FPS:                   60,
		Width:                 1920,
		Height:                1080,
		VideoSupportedFormats: VideoFormatH264,
		VideoColorspace:       ColorspaceRec709,
		PreferredTransport:    TransportWebRTC,
	}
	raw, err := EncodeClientMessage(msg)
	if err != nil {
		t.Fatalf("EncodeClientMessage: %v", err)
	}

	decoded, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage: %v", err)
	}

	got, ok := decoded.(InitMessage)
	if !ok {
		t.Fatalf("decoded type = %T, want InitMessage", decoded)
	}
	if got != msg {
		t.Fatalf("got %+v, want %+v", got, msg)
	}
}

func TestClientMessageFallbackRoundTrip(t *testing.T) {
	msg := FallbackToWebRtcMessage{Reason: "connection_failed"}
	raw, err := EncodeClientMessage(msg)
	if err != nil {
		t.Fatalf("EncodeClientMessage: %v", err)
	}
	decoded, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage: %v", err)
	}
	got, ok := decoded.(FallbackToWebRtcMessage)
	if !ok || got.Reason != "connection_failed" {
		t.Fatalf("got %+v (%T)", decoded, decoded)
	}
}

func TestDecodeClientMessageUnknownType(t *testing.T) {
	if _, err := DecodeClientMessage([]byte(`{"type":"bogus","body":{}}`)); err == nil {
		t.Fatal("expected error for unknown client message type")
	}
}

func TestServerMessageSetupRoundTrip(t *testing.T) {
	msg := SetupMessage{
		ICEServers:      []ICEServer{{URLs: []string{"stun:example.com:3478"}}},
		SessionToken:    "tok-abc",
		WebTransportURL: "https://host:8444/main",
		CertHash:        "deadbeef",
	}
	raw, err := EncodeServerMessage(msg)
	if err != nil {
		t.Fatalf("EncodeServerMessage: %v", err)
	}
	decoded, err := DecodeServerMessage(raw)
	if err != nil {
		t.Fatalf("DecodeServerMessage: %v", err)
	}
	got, ok := decoded.(SetupMessage)
	if !ok {
		t.Fatalf("decoded type = %T, want SetupMessage", decoded)
	}
	if got.SessionToken != msg.SessionToken || got.CertHash != msg.CertHash {
		t.Fatalf("got %+v, want %+v", got, msg)
	}
}

func TestServerMessageStageFailedRoundTrip(t *testing.T) {
	msg := StageFailedMessage{Stage: "Connect to Host", ErrorCode: 42}
	raw, err := EncodeServerMessage(msg)
	if err != nil {
		t.Fatalf("EncodeServerMessage: %v", err)
	}
	decoded, err := DecodeServerMessage(raw)
	if err != nil {
		t.Fatalf("DecodeServerMessage: %v", err)
	}
	got, ok := decoded.(StageFailedMessage)
	if !ok || got.ErrorCode != 42 {
		t.Fatalf("got %+v (%T)", decoded, decoded)
	}
}

func TestDecodeServerMessageUnknownType(t *testing.T) {
	if _, err := DecodeServerMessage([]byte(`{"type":"bogus","body":{}}`)); err == nil {
		t.Fatal("expected error for unknown server message type")
	}
}
