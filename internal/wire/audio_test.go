package wire

import (
	"bytes"
	"testing"
)

func TestAudioSampleRoundTrip(t *testing.T) {
	sample := []byte("opus-frame-bytes")
	framed, err := EncodeAudioSample(sample)
	if err != nil {
		t.Fatalf("EncodeAudioSample: %v", err)
	}

	payload, consumed, err := DecodeAudioSample(framed)
	if err != nil {
		t.Fatalf("DecodeAudioSample: %v", err)
	}
	if consumed != len(framed) {
		t.Fatalf("consumed = %d, want %d", consumed, len(framed))
	}
	if !bytes.Equal(payload, sample) {
		t.Fatal("payload mismatch")
	}
}

func TestAudioStreamMultipleFrames(t *testing.T) {
	a, _ := EncodeAudioSample([]byte("first"))
	b, _ := EncodeAudioSample([]byte("second"))
	stream := append(a, b...)

	p1, c1, err := DecodeAudioSample(stream)
	if err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if string(p1) != "first" {
		t.Fatalf("p1 = %q", p1)
	}

	p2, _, err := DecodeAudioSample(stream[c1:])
	if err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if string(p2) != "second" {
		t.Fatalf("p2 = %q", p2)
	}
}

func TestEncodeAudioSampleRejectsOversized(t *testing.T) {
	_, err := EncodeAudioSample(make([]byte, MaxAudioSampleSize+1))
	if err == nil {
		t.Fatal("expected error for oversized sample")
	}
}

func TestDecodeAudioSampleIncomplete(t *testing.T) {
	framed, _ := EncodeAudioSample([]byte("hello"))
	_, _, err := DecodeAudioSample(framed[:len(framed)-2])
	if err == nil {
		t.Fatal("expected error for truncated frame")
	}
}
