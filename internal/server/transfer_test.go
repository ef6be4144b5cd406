package server

import (
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"chat/internal/protocol"
)

func newTestTransferBroker(t *testing.T) (*Server, *transferBroker) {
	srv := New(Config{RelayTTL: time.Second})
	go srv.hub.Run()
	go srv.transfers.Run()
	t.Cleanup(func() {
		srv.hub.Stop()
		srv.transfers.Stop()
	})
	return srv, srv.transfers
}

func TestTransferRequestRejectsSelf(t *testing.T) {
	srv, tb := newTestTransferBroker(t)
	srv.hub.Register("alice", newTestSession(t, "a", srv))

	r := tb.Request("alice", "alice", "a.txt", "deadbeef")
	if r.ok || r.code != protocol.CodeTransferSelf {
		t.Fatalf("Request(self) = %+v, want code %d", r, protocol.CodeTransferSelf)
	}
}

func TestTransferRequestRejectsUnknownReceiver(t *testing.T) {
	srv, tb := newTestTransferBroker(t)
	srv.hub.Register("alice", newTestSession(t, "a", srv))

	r := tb.Request("alice", "ghost", "a.txt", "deadbeef")
	if r.ok || r.code != protocol.CodeTransferNoTarget {
		t.Fatalf("Request(ghost) = %+v, want code %d", r, protocol.CodeTransferNoTarget)
	}
}

func TestTransferAcceptMintsContext(t *testing.T) {
	srv, tb := newTestTransferBroker(t)
	a := newTestSession(t, "a", srv)
	b := newTestSession(t, "b", srv)
	srv.hub.Register("alice", a)
	srv.hub.Register("bob", b)

	if r := tb.Request("alice", "bob", "a.txt", "deadbeef"); !r.ok {
		t.Fatalf("Request: %+v", r)
	}
	<-b.send // FILE_TRANSFER_REQ forwarded to bob

	tb.Respond("bob", true)

	readyFor := func(sess *Session) protocol.FileTransferReadyPayload {
		data := <-sess.send
		frame, err := protocol.ParseLine(data[:len(data)-1])
		if err != nil || frame.Command != protocol.FileTransferReady {
			t.Fatalf("expected FILE_TRANSFER_READY, got %q (err=%v)", data, err)
		}
		var p protocol.FileTransferReadyPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		return p
	}

	senderReady := readyFor(a)
	receiverReady := readyFor(b)
	if senderReady.UUID != receiverReady.UUID {
		t.Fatalf("sender/receiver UUIDs differ: %s vs %s", senderReady.UUID, receiverReady.UUID)
	}
	if senderReady.Type != "s" || receiverReady.Type != "r" {
		t.Fatalf("types = %s/%s, want s/r", senderReady.Type, receiverReady.Type)
	}

	if _, ok := tb.LookupContext(senderReady.UUID); !ok {
		t.Fatal("expected context to be registered under the transfer UUID")
	}
}

func TestTransferRelayCopiesBytesExactly(t *testing.T) {
	ctx := newTransferContext(time.Second)
	senderConn, senderPeer := net.Pipe()
	receiverConn, receiverPeer := net.Pipe()

	if _, err := ctx.bind('s', senderPeer); err != nil {
		t.Fatalf("bind sender: %v", err)
	}
	bothBound, err := ctx.bind('r', receiverPeer)
	if err != nil {
		t.Fatalf("bind receiver: %v", err)
	}
	if !bothBound {
		t.Fatal("expected bothBound once both roles are bound")
	}

	relayDone := make(chan error, 1)
	go func() { relayDone <- ctx.relay() }()

	payload := []byte("the quick brown fox jumps over the lazy dog")
	writeDone := make(chan error, 1)
	go func() {
		_, err := senderConn.Write(payload)
		senderConn.Close()
		writeDone <- err
	}()

	got := make([]byte, len(payload))
	if _, err := io.ReadFull(receiverConn, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("relayed bytes = %q, want %q", got, payload)
	}

	if err := <-writeDone; err != nil {
		t.Fatalf("write: %v", err)
	}
	<-relayDone
}

func TestTransferBindRejectsDuplicateRole(t *testing.T) {
	ctx := newTransferContext(time.Second)
	_, peer1 := net.Pipe()
	_, peer2 := net.Pipe()

	if _, err := ctx.bind('s', peer1); err != nil {
		t.Fatalf("first bind: %v", err)
	}
	if _, err := ctx.bind('s', peer2); err != errDuplicateRole {
		t.Fatalf("second bind same role = %v, want errDuplicateRole", err)
	}
}
