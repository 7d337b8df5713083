package wire

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestVideoHeaderRoundTrip(t *testing.T) {
	h := VideoHeader{Timestamp: 123456, Sequence: 7, IsLast: true}
	buf := make([]byte, VideoHeaderSize)
	EncodeVideoHeader(h, buf)

	got, err := DecodeVideoHeader(buf)
	if err != nil {
		t.Fatalf("DecodeVideoHeader: %v", err)
	}
	if got != h {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}

func TestDecodeVideoHeaderTooShort(t *testing.T) {
	if _, err := DecodeVideoHeader([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short datagram")
	}
}

func TestFragmentVideoUnitSingleFragment(t *testing.T) {
	unit := []byte("small-keyframe")
	frags, err := FragmentVideoUnit(unit, 42, 1500)
	if err != nil {
		t.Fatalf("FragmentVideoUnit: %v", err)
	}
	if len(frags) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(frags))
	}
	h, err := DecodeVideoHeader(frags[0])
	if err != nil {
		t.Fatalf("DecodeVideoHeader: %v", err)
	}
	if !h.IsLast || h.Sequence != 0 || h.Timestamp != 42 {
		t.Fatalf("unexpected header %+v", h)
	}
	if !bytes.Equal(frags[0][VideoHeaderSize:], unit) {
		t.Fatal("payload mismatch")
	}
}

func TestFragmentVideoUnitMultipleFragments(t *testing.T) {
	unit := make([]byte, 3500)
	rand.New(rand.NewSource(1)).Read(unit)

	frags, err := FragmentVideoUnit(unit, 99, 1000)
	if err != nil {
		t.Fatalf("FragmentVideoUnit: %v", err)
	}
	if len(frags) != 4 {
		t.Fatalf("expected 4 fragments, got %d", len(frags))
	}
	for i, f := range frags {
		h, err := DecodeVideoHeader(f)
		if err != nil {
			t.Fatalf("fragment %d: DecodeVideoHeader: %v", i, err)
		}
		if int(h.Sequence) != i {
			t.Fatalf("fragment %d: sequence = %d", i, h.Sequence)
		}
		wantLast := i == len(frags)-1
		if h.IsLast != wantLast {
			t.Fatalf("fragment %d: IsLast = %v, want %v", i, h.IsLast, wantLast)
		}
	}
}

// Fragments arriving in any permutation must still reassemble to the
// original unit.
func TestReassemblerArbitraryOrder(t *testing.T) {
	unit := make([]byte, 5000)
	rand.New(rand.NewSource(2)).Read(unit)
	frags, err := FragmentVideoUnit(unit, 7, 777)
	if err != nil {
		t.Fatalf("FragmentVideoUnit: %v", err)
	}

	order := rand.New(rand.NewSource(3)).Perm(len(frags))

	r := NewReassembler()
	var got []byte
	var ok bool
	for _, idx := range order {
		h, err := DecodeVideoHeader(frags[idx])
		if err != nil {
			t.Fatalf("DecodeVideoHeader: %v", err)
		}
		got, ok = r.Feed(h, frags[idx][VideoHeaderSize:])
	}
	if !ok {
		t.Fatal("expected reassembly to complete")
	}
	if !bytes.Equal(got, unit) {
		t.Fatal("reassembled unit does not match original")
	}
}

// A missing fragment must cause the whole unit to be dropped, never
// partially delivered.
func TestReassemblerDropsOnMissingFragment(t *testing.T) {
	unit := make([]byte, 3000)
	rand.New(rand.NewSource(4)).Read(unit)
	frags, err := FragmentVideoUnit(unit, 11, 1000)
	if err != nil {
		t.Fatalf("FragmentVideoUnit: %v", err)
	}
	if len(frags) < 3 {
		t.Fatal("test requires at least 3 fragments")
	}

	r := NewReassembler()
	for i, f := range frags {
		if i == 1 {
			continue // drop the middle fragment
		}
		h, _ := DecodeVideoHeader(f)
		_, ok := r.Feed(h, f[VideoHeaderSize:])
		if ok {
			t.Fatal("reassembly should not complete with a missing fragment")
		}
	}
}

func TestReassemblerNewTimestampDropsInFlightFrame(t *testing.T) {
	r := NewReassembler()

	first := VideoHeader{Timestamp: 1, Sequence: 0, IsLast: false}
	if _, ok := r.Feed(first, []byte("a")); ok {
		t.Fatal("first partial fragment should not complete")
	}

	// A fragment from a newer frame arrives before frame 1 completed.
	second := VideoHeader{Timestamp: 2, Sequence: 0, IsLast: true}
	got, ok := r.Feed(second, []byte("b"))
	if !ok {
		t.Fatal("single-fragment newer frame should complete")
	}
	if string(got) != "b" {
		t.Fatalf("got %q, want %q", got, "b")
	}

	// The abandoned frame 1's remaining fragment must not complete it.
	late := VideoHeader{Timestamp: 1, Sequence: 1, IsLast: true}
	if _, ok := r.Feed(late, []byte("c")); ok {
		t.Fatal("stale frame 1 should not complete after being superseded")
	}
}
