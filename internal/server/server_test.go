package server

import (
	"encoding/json"
	"testing"
	"time"

	"chat/internal/protocol"
)

// startTestServer runs all three actors so handleLine can be exercised
// end-to-end without a real listener.
func startTestServer(t *testing.T) *Server {
	t.Helper()
	srv := newTestServer()
	go srv.hub.Run()
	go srv.rps.Run()
	go srv.transfers.Run()
	t.Cleanup(func() {
		srv.hub.Stop()
		srv.rps.Stop()
		srv.transfers.Stop()
	})
	return srv
}

// readFrame pops the next outbound frame off a session's send channel.
func readFrame(t *testing.T, sess *Session) protocol.Frame {
	t.Helper()
	select {
	case data := <-sess.send:
		frame, err := protocol.ParseLine(data[:len(data)-1])
		if err != nil {
			t.Fatalf("unparseable outbound frame %q: %v", data, err)
		}
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outbound frame")
	}
	return protocol.Frame{}
}

func decodeStatus(t *testing.T, frame protocol.Frame) protocol.StatusPayload {
	t.Helper()
	var p protocol.StatusPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil {
		t.Fatalf("decode %s payload: %v", frame.Command, err)
	}
	return p
}

func TestEnterCollision(t *testing.T) {
	srv := startTestServer(t)
	c1 := newTestSession(t, "c1", srv)
	c2 := newTestSession(t, "c2", srv)

	srv.handleLine(c1, []byte(`ENTER {"username":"alice"}`))
	frame := readFrame(t, c1)
	if frame.Command != protocol.EnterResp || decodeStatus(t, frame).Status != "OK" {
		t.Fatalf("first ENTER: got %s %s", frame.Command, frame.Payload)
	}

	srv.handleLine(c2, []byte(`ENTER {"username":"alice"}`))
	frame = readFrame(t, c2)
	status := decodeStatus(t, frame)
	if frame.Command != protocol.EnterResp || status.Status != "ERROR" || status.Code != protocol.CodeEnterCollision {
		t.Fatalf("second ENTER: got %s %s", frame.Command, frame.Payload)
	}
}

func TestEnterValidation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantCode int // 0 means OK
	}{
		{name: "too short", username: "ab", wantCode: protocol.CodeEnterBadFormat},
		{name: "min length", username: "abc"},
		{name: "max length", username: "abcdefghijklmn"},
		{name: "too long", username: "abcdefghijklmno", wantCode: protocol.CodeEnterBadFormat},
		{name: "bad char", username: "al ice", wantCode: protocol.CodeEnterBadFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := startTestServer(t)
			sess := newTestSession(t, "c", srv)
			srv.handleLine(sess, []byte(`ENTER {"username":"`+tt.username+`"}`))
			status := decodeStatus(t, readFrame(t, sess))
			if tt.wantCode == 0 {
				if status.Status != "OK" {
					t.Fatalf("ENTER %q = %+v, want OK", tt.username, status)
				}
				return
			}
			if status.Status != "ERROR" || status.Code != tt.wantCode {
				t.Fatalf("ENTER %q = %+v, want code %d", tt.username, status, tt.wantCode)
			}
		})
	}
}

func TestEnterTwiceRejected(t *testing.T) {
	srv := startTestServer(t)
	sess := newTestSession(t, "c", srv)

	srv.handleLine(sess, []byte(`ENTER {"username":"alice"}`))
	readFrame(t, sess) // ENTER_RESP OK

	srv.handleLine(sess, []byte(`ENTER {"username":"other"}`))
	status := decodeStatus(t, readFrame(t, sess))
	if status.Code != protocol.CodeEnterAlready {
		t.Fatalf("second ENTER = %+v, want code %d", status, protocol.CodeEnterAlready)
	}
}

func TestBroadcastRequiresLogin(t *testing.T) {
	srv := startTestServer(t)
	sess := newTestSession(t, "c", srv)

	srv.handleLine(sess, []byte(`BROADCAST_REQ {"message":"hi"}`))
	frame := readFrame(t, sess)
	status := decodeStatus(t, frame)
	if frame.Command != protocol.BroadcastResp || status.Code != protocol.CodeBroadcastUnauth {
		t.Fatalf("got %s %s, want BROADCAST_RESP code %d", frame.Command, frame.Payload, protocol.CodeBroadcastUnauth)
	}
}

func TestUnknownVerbKeepsSessionOpen(t *testing.T) {
	srv := startTestServer(t)
	sess := newTestSession(t, "c", srv)

	srv.handleLine(sess, []byte(`MSG hello`))
	if frame := readFrame(t, sess); frame.Command != protocol.UnknownCommand {
		t.Fatalf("got %s, want UNKNOWN_COMMAND", frame.Command)
	}

	// Session must still accept a valid login afterwards.
	srv.handleLine(sess, []byte(`ENTER {"username":"alice"}`))
	if status := decodeStatus(t, readFrame(t, sess)); status.Status != "OK" {
		t.Fatalf("ENTER after UNKNOWN_COMMAND = %+v, want OK", status)
	}
}

func TestMalformedJSONYieldsParseError(t *testing.T) {
	srv := startTestServer(t)
	sess := newTestSession(t, "c", srv)

	srv.handleLine(sess, []byte(`ENTER {not json`))
	if frame := readFrame(t, sess); frame.Command != protocol.ParseError {
		t.Fatalf("got %s, want PARSE_ERROR", frame.Command)
	}
}

func TestByeRestoresRegistry(t *testing.T) {
	srv := startTestServer(t)
	sess := newTestSession(t, "c", srv)

	srv.handleLine(sess, []byte(`ENTER {"username":"alice"}`))
	readFrame(t, sess) // ENTER_RESP OK

	srv.handleLine(sess, []byte(`BYE {}`))
	frame := readFrame(t, sess)
	if frame.Command != protocol.ByeResp || decodeStatus(t, frame).Status != "OK" {
		t.Fatalf("got %s %s, want BYE_RESP OK", frame.Command, frame.Payload)
	}
	if srv.hub.Exists("alice") {
		t.Fatal("alice should be unregistered after BYE")
	}
}

func TestPrivateMsgValidation(t *testing.T) {
	srv := startTestServer(t)
	a := newTestSession(t, "a", srv)
	b := newTestSession(t, "b", srv)
	srv.handleLine(a, []byte(`ENTER {"username":"alice"}`))
	readFrame(t, a)
	srv.handleLine(b, []byte(`ENTER {"username":"bob"}`))
	readFrame(t, b)
	readFrame(t, a) // JOINED bob

	srv.handleLine(a, []byte(`PRIVATE_MSG_REQ {"receiver":"alice","message":"m"}`))
	if status := decodeStatus(t, readFrame(t, a)); status.Code != protocol.CodePrivateSelf {
		t.Fatalf("self-message = %+v, want code %d", status, protocol.CodePrivateSelf)
	}

	srv.handleLine(a, []byte(`PRIVATE_MSG_REQ {"receiver":"ghost","message":"m"}`))
	if status := decodeStatus(t, readFrame(t, a)); status.Code != protocol.CodePrivateNoTarget {
		t.Fatalf("unknown target = %+v, want code %d", status, protocol.CodePrivateNoTarget)
	}

	srv.handleLine(a, []byte(`PRIVATE_MSG_REQ {"receiver":"bob","message":"psst"}`))
	frame := readFrame(t, b)
	if frame.Command != protocol.PrivateMsg {
		t.Fatalf("bob got %s, want PRIVATE_MSG", frame.Command)
	}
	var p protocol.PrivateMsgPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil || p.Sender != "alice" || p.Message != "psst" {
		t.Fatalf("bob's payload = %s (err=%v)", frame.Payload, err)
	}
	if status := decodeStatus(t, readFrame(t, a)); status.Status != "OK" {
		t.Fatalf("sender ack = %+v, want OK", status)
	}
}

func TestPongWithoutPingYieldsPongError(t *testing.T) {
	srv := startTestServer(t)
	sess := newTestSession(t, "c", srv)
	srv.handleLine(sess, []byte(`ENTER {"username":"alice"}`))
	readFrame(t, sess) // ENTER_RESP OK

	srv.handleLine(sess, []byte(`PONG {}`))
	frame := readFrame(t, sess)
	if frame.Command != protocol.PongError {
		t.Fatalf("got %s, want PONG_ERROR", frame.Command)
	}
	var p protocol.PongErrorPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil || p.Code != protocol.CodePongUnexpected {
		t.Fatalf("payload = %s (err=%v), want code %d", frame.Payload, err, protocol.CodePongUnexpected)
	}
	// The session stays alive.
	if !srv.hub.Exists("alice") {
		t.Fatal("alice should survive an unexpected PONG")
	}
}
