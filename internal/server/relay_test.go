package server

import (
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"

	"chat/internal/protocol"
)

func TestRelayRejectsUnknownUUID(t *testing.T) {
	srv := startTestServer(t)
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })

	done := make(chan struct{})
	go func() {
		srv.handleRelayConn(server)
		close(done)
	}()

	if _, err := client.Write([]byte(uuid.New().String() + "s")); err != nil {
		t.Fatalf("write header: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay should close a connection with an unknown UUID")
	}

	buf := make([]byte, 1)
	client.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := client.Read(buf); err == nil {
		t.Fatal("expected the relay to have closed the socket")
	}
}

func TestRelayRejectsBadRole(t *testing.T) {
	srv := startTestServer(t)
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })

	done := make(chan struct{})
	go func() {
		srv.handleRelayConn(server)
		close(done)
	}()

	if _, err := client.Write([]byte(uuid.New().String() + "x")); err != nil {
		t.Fatalf("write header: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay should close a connection with an invalid role byte")
	}
}

// TestRelayRendezvousDeliversBytes drives the full brokered path: request,
// accept, FILE_TRANSFER_READY to both peers, then two auxiliary
// connections rendezvous by the minted UUID and the payload crosses intact.
// The receiver connects first to exercise the parked-half wait.
func TestRelayRendezvousDeliversBytes(t *testing.T) {
	srv := startTestServer(t)
	a := newTestSession(t, "a", srv)
	b := newTestSession(t, "b", srv)
	srv.hub.Register("alice", a)
	srv.hub.Register("bob", b)

	if r := srv.transfers.Request("alice", "bob", "a.txt", "feedface"); !r.ok {
		t.Fatalf("Request: %+v", r)
	}
	<-b.send // forwarded FILE_TRANSFER_REQ
	srv.transfers.Respond("bob", true)

	ready := func(sess *Session) protocol.FileTransferReadyPayload {
		frame := readFrame(t, sess)
		if frame.Command != protocol.FileTransferReady {
			t.Fatalf("got %s, want FILE_TRANSFER_READY", frame.Command)
		}
		var p protocol.FileTransferReadyPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return p
	}
	senderReady := ready(a)
	receiverReady := ready(b)

	recvClient, recvServer := net.Pipe()
	go srv.handleRelayConn(recvServer)
	if _, err := recvClient.Write([]byte(receiverReady.UUID + "r")); err != nil {
		t.Fatalf("receiver header: %v", err)
	}

	payload := []byte("ten megabytes in spirit, forty-nine bytes in fact")
	sendClient, sendServer := net.Pipe()
	go srv.handleRelayConn(sendServer)
	go func() {
		sendClient.Write([]byte(senderReady.UUID + "s"))
		sendClient.Write(payload)
		sendClient.Close()
	}()

	got, err := io.ReadAll(recvClient)
	if err != nil && err != io.EOF {
		t.Fatalf("receiver read: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("relayed %q, want %q", got, payload)
	}

	if _, ok := srv.transfers.LookupContext(senderReady.UUID); ok {
		t.Fatal("context should be removed once both halves rendezvous")
	}
}

func TestRelayRendezvousTimesOut(t *testing.T) {
	srv := startTestServer(t) // RelayTTL is one second in tests
	a := newTestSession(t, "a", srv)
	b := newTestSession(t, "b", srv)
	srv.hub.Register("alice", a)
	srv.hub.Register("bob", b)

	srv.transfers.Request("alice", "bob", "a.txt", "feedface")
	<-b.send
	srv.transfers.Respond("bob", true)
	senderReady := readFrame(t, a)
	readFrame(t, b)

	var p protocol.FileTransferReadyPayload
	if err := json.Unmarshal(senderReady.Payload, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}

	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })
	done := make(chan struct{})
	go func() {
		srv.handleRelayConn(server)
		close(done)
	}()
	if _, err := client.Write([]byte(p.UUID + "s")); err != nil {
		t.Fatalf("write header: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("lone half should be evicted after the rendezvous deadline")
	}
	if _, ok := srv.transfers.LookupContext(p.UUID); ok {
		t.Fatal("context should be dropped after the deadline")
	}
}
