package ipc

import (
	"encoding/binary"
	"encoding/json"
	"net"
	"testing"
)

func pipeConns(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	return NewConn(a), NewConn(b)
}

// writeRawEnvelope writes env to c's peer as-is, bypassing Send's sequence
// numbering and HMAC signing.
func writeRawEnvelope(c *Conn, env *Envelope) {
	data, _ := json.Marshal(env)
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(data)))
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.Write(header)
	c.conn.Write(data)
}

func TestSendRecvRoundTrip(t *testing.T) {
	client, server := pipeConns(t)
	defer client.Close()
	defer server.Close()

	payload := InitPayload{HostID: "host-1", AppID: "1", FPS: 60, Width: 1920, Height: 1080}

	errc := make(chan error, 1)
	go func() {
		errc <- client.SendTyped("m1", TypeInit, payload)
	}()

	env, err := server.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Send: %v", err)
	}
	if env.Type != TypeInit {
		t.Fatalf("Type = %q, want %q", env.Type, TypeInit)
	}
	if env.Seq != 1 {
		t.Fatalf("Seq = %d, want 1", env.Seq)
	}

	var got InitPayload
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.HostID != payload.HostID || got.FPS != payload.FPS {
		t.Fatalf("payload = %+v, want %+v", got, payload)
	}
}

func TestRecvRejectsTamperedHMAC(t *testing.T) {
	client, server := pipeConns(t)
	defer client.Close()
	defer server.Close()

	go client.SendTyped("m1", TypeShutdown, ShutdownPayload{Reason: "bye"})

	env, err := server.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}

	env.HMAC = "deadbeef"
	if got := server.computeHMAC(env); got == env.HMAC {
		t.Fatal("test setup produced a matching HMAC by accident")
	}

	go writeRawEnvelope(client, env)
	if _, err := server.Recv(); err == nil {
		t.Fatal("Recv accepted an envelope with a tampered HMAC")
	}
}

func TestRecvRejectsReplayedSequence(t *testing.T) {
	client, server := pipeConns(t)
	defer client.Close()
	defer server.Close()

	go func() {
		client.SendTyped("m1", TypeShutdown, ShutdownPayload{})
		client.SendTyped("m2", TypeShutdown, ShutdownPayload{})
	}()

	first, err := server.Recv()
	if err != nil {
		t.Fatalf("Recv first: %v", err)
	}
	if first.Seq != 1 {
		t.Fatalf("first.Seq = %d, want 1", first.Seq)
	}

	second, err := server.Recv()
	if err != nil {
		t.Fatalf("Recv second: %v", err)
	}
	if second.Seq <= first.Seq {
		t.Fatalf("second.Seq = %d, want > %d", second.Seq, first.Seq)
	}

	// Replay the first envelope verbatim on the same connection: its HMAC
	// still verifies, but its sequence number is no longer increasing.
	go writeRawEnvelope(client, first)
	if _, err := server.Recv(); err == nil {
		t.Fatal("Recv accepted a replayed envelope")
	}
}

func TestSendRejectsOversizedMessage(t *testing.T) {
	client, server := pipeConns(t)
	defer client.Close()
	defer server.Close()

	huge := make([]byte, MaxMessageSize+1)
	env := &Envelope{ID: "m1", Type: TypeInit, Payload: huge}
	if err := client.Send(env); err == nil {
		t.Fatal("expected error for oversized message")
	}
}

func TestSessionKeyChangesHMAC(t *testing.T) {
	conn := NewConn(nil)
	env := &Envelope{ID: "x", Seq: 1, Type: TypeInit, Payload: []byte(`{}`)}

	preAuth := conn.computeHMAC(env)

	key, err := GenerateSessionKey()
	if err != nil {
		t.Fatalf("GenerateSessionKey: %v", err)
	}
	conn.SetSessionKey(key)

	postAuth := conn.computeHMAC(env)
	if preAuth == postAuth {
		t.Fatal("HMAC unchanged after setting session key")
	}
}
