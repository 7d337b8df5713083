package channel

import "testing"

func TestReliabilityMatchesSpec(t *testing.T) {
	cases := []struct {
		id   ID
		want Reliability
	}{
		{HostVideo, unreliable},
		{HostAudio, reliable},
		{MouseRelative, unreliable},
		{Controllers, unreliable},
		{MouseReliable, reliable},
		{Keyboard, reliable},
		{Touch, reliable},
		{Stats, reliable},
		{General, reliable},
		{ControllerID(0), unreliable},
		{ControllerID(15), unreliable},
	}
	for _, c := range cases {
		if got := ReliabilityOf(c.id); got != c.want {
			t.Errorf("ReliabilityOf(%s) = %+v, want %+v", Name(c.id), got, c.want)
		}
	}
}

func TestControllerChannelRoundTrip(t *testing.T) {
	for n := 0; n < NumControllers; n++ {
		id := ControllerID(n)
		got, ok := IsControllerChannel(id)
		if !ok {
			t.Fatalf("IsControllerChannel(%d) not recognized as controller", id)
		}
		if got != n {
			t.Fatalf("IsControllerChannel(%d) = %d, want %d", id, got, n)
		}
	}
}

func TestNonControllerIsNotControllerChannel(t *testing.T) {
	if _, ok := IsControllerChannel(HostVideo); ok {
		t.Fatal("HostVideo should not be a controller channel")
	}
}

func TestChannelIDsAreStableAcrossCalls(t *testing.T) {
	// P2: the numeric id of each named channel must be identical across
	// repeated lookups on the same build.
	for i := 0; i < 3; i++ {
		if HostVideo != 0 {
			t.Fatal("HostVideo id drifted")
		}
		if ControllerID(5) != ControllerID(5) {
			t.Fatal("ControllerID(5) is not stable")
		}
	}
}

func TestTableGetSetNonController(t *testing.T) {
	var tbl Table[int]
	tbl.Set(HostAudio, 42)
	if got := tbl.Get(HostAudio); got != 42 {
		t.Fatalf("Get(HostAudio) = %d, want 42", got)
	}
}

func TestTableGetSetController(t *testing.T) {
	var tbl Table[string]
	tbl.Set(ControllerID(3), "c3")
	if got := tbl.Controller(3); got != "c3" {
		t.Fatalf("Controller(3) = %q, want c3", got)
	}
	if got := tbl.Get(ControllerID(3)); got != "c3" {
		t.Fatalf("Get(ControllerID(3)) = %q, want c3", got)
	}
}

func TestNameForUnknownIsUnknown(t *testing.T) {
	if Name(ID(250)) != "UNKNOWN" {
		t.Fatal("expected UNKNOWN name for out-of-range id")
	}
}
