// Package server implements the session multiplexer: the control-port TCP
// server that owns login, heartbeat, chat, RPS, and file-transfer
// brokering, plus the auxiliary-port bytes relay.
//
// Concurrency overview
// --------------------
//
//	┌─────────────────────────────────────────────────────────┐
//	│  Control listener goroutine                              │
//	│  Accepts TCP connections; spawns readPump + writePump    │
//	│  goroutines for each Session.                            │
//	└───────────────────┬───────────────────────────────────────┘
//	                    │  register / broadcast / actor channels
//	                    ▼
//	┌─────────────────────────────────────────────────────────┐
//	│  Hub goroutine        — registry + broadcast fan-out     │
//	│  rpsCoordinator       — pairing + move resolution         │
//	│  transferBroker       — pending requests + transfer IDs   │
//	└─────────────────────────────────────────────────────────┘
//	┌─────────────────────────────────────────────────────────┐
//	│  Auxiliary listener goroutine                            │
//	│  Rendezvous two half-sessions per transfer UUID and      │
//	│  streams bytes sender → receiver.                        │
//	└─────────────────────────────────────────────────────────┘
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"regexp"
	"sync/atomic"
	"time"

	"chat/internal/protocol"
)

// ProtocolVersion is reported in the READY greeting.
const ProtocolVersion = "1.0.0"

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,14}$`)

// Config holds the server's tunables: ports, heartbeat timings, relay
// deadline, inbound rate limit.
type Config struct {
	ControlAddr string
	RelayAddr   string

	PingInterval time.Duration
	PongTimeout  time.Duration
	RelayTTL     time.Duration

	// RateLimit/RateBurst bound inbound frames/sec per session. RateLimit
	// <= 0 disables the limiter.
	RateLimit float64
	RateBurst int
}

// DefaultConfig returns the stock ports and timings.
func DefaultConfig() Config {
	return Config{
		ControlAddr:  ":1337",
		RelayAddr:    ":1338",
		PingInterval: 10 * time.Second,
		PongTimeout:  2 * time.Second,
		RelayTTL:     30 * time.Second,
		RateLimit:    20,
		RateBurst:    40,
	}
}

// Server ties together the Hub, RPS coordinator, and transfer broker, and
// runs both the control-port and auxiliary-port listeners.
type Server struct {
	cfg Config

	hub       *Hub
	rps       *rpsCoordinator
	transfers *transferBroker

	controlLn net.Listener
	relayLn   net.Listener

	connID atomic.Uint64
}

// New creates a Server with cfg. Zero-value fields are not defaulted —
// callers should start from DefaultConfig().
func New(cfg Config) *Server {
	hub := newHub()
	return &Server{
		cfg:       cfg,
		hub:       hub,
		rps:       newRPSCoordinator(hub),
		transfers: newTransferBroker(hub, cfg.RelayTTL),
	}
}

// ListenAndServe starts the actors and both listeners. It blocks until
// the control listener is closed (Shutdown closes both).
func (s *Server) ListenAndServe() error {
	controlLn, err := net.Listen("tcp", s.cfg.ControlAddr)
	if err != nil {
		return fmt.Errorf("server: listen control: %w", err)
	}
	relayLn, err := net.Listen("tcp", s.cfg.RelayAddr)
	if err != nil {
		controlLn.Close()
		return fmt.Errorf("server: listen relay: %w", err)
	}
	s.controlLn = controlLn
	s.relayLn = relayLn

	log.Printf("[server] control on %s, relay on %s", s.cfg.ControlAddr, s.cfg.RelayAddr)

	go s.hub.Run()
	go s.rps.Run()
	go s.transfers.Run()
	go s.serveRelay(relayLn)

	for {
		conn, err := controlLn.Accept()
		if err != nil {
			return nil
		}
		go s.serveConn(conn)
	}
}

// Shutdown stops both listeners and every actor.
func (s *Server) Shutdown() {
	if s.controlLn != nil {
		s.controlLn.Close()
	}
	if s.relayLn != nil {
		s.relayLn.Close()
	}
	s.hub.Stop()
	s.rps.Stop()
	s.transfers.Stop()
}

// serveConn creates a Session for conn, sends the READY greeting, and runs
// its read/write pumps.
func (s *Server) serveConn(conn net.Conn) {
	id := fmt.Sprintf("conn-%d", s.connID.Add(1))
	sess := newSession(id, conn, s)

	go sess.writePump()
	sess.sendFrame(protocol.Ready, protocol.ReadyPayload{Version: ProtocolVersion})
	sess.readPump()
}

// teardown runs the disconnect cleanup: stop heartbeat timers, and — only
// for a session that was ever named — remove it from the
// registry, broadcast LEFT, dissolve any RPS pairing, and drop any pending
// transfer where it is the receiver. It is idempotent: BYE and read-EOF may
// race to call it, only the first does any work.
func (s *Server) teardown(sess *Session) {
	sess.hb.stop()

	// Closing the send channel last lets writePump flush anything queued
	// before teardown (a BYE_RESP, a final broadcast) and then close the
	// socket itself.
	defer sess.closeSend()

	wasNamed, username := sess.clearIdentity()
	if !wasNamed {
		return
	}
	s.hub.Unregister(username)
	s.hub.BroadcastExcept(nil, protocol.Left, protocol.PresencePayload{Username: username})
	s.rps.Disconnected(username)
	s.transfers.Disconnected(username)
}

// ---------------------------------------------------------------------------
// Frame dispatch
// ---------------------------------------------------------------------------

// knownCommands is the set of verbs a client may legitimately send.
var knownCommands = map[protocol.Command]bool{
	protocol.Enter:            true,
	protocol.Bye:              true,
	protocol.Pong:             true,
	protocol.BroadcastReq:     true,
	protocol.ListReq:          true,
	protocol.PrivateMsgReq:    true,
	protocol.RPSStartReq:      true,
	protocol.RPSInviteResp:    true,
	protocol.RPSMoveReq:       true,
	protocol.FileTransferReq:  true,
	protocol.FileTransferResp: true,
}

// handleLine parses and dispatches one raw control-channel line. Malformed
// framing (no space, empty line) and unknown verbs both yield
// UNKNOWN_COMMAND per the framing codec's rules; a known verb with
// unparseable JSON yields PARSE_ERROR. Both leave the session open.
func (s *Server) handleLine(sess *Session, line []byte) {
	frame, err := protocol.ParseLine(line)
	if err != nil || !knownCommands[frame.Command] {
		sess.sendFrame(protocol.UnknownCommand, struct{}{})
		return
	}
	if !json.Valid(frame.Payload) {
		sess.sendFrame(protocol.ParseError, struct{}{})
		return
	}
	s.dispatch(sess, frame)
}

func (s *Server) dispatch(sess *Session, frame protocol.Frame) {
	switch frame.Command {
	case protocol.Enter:
		s.handleEnter(sess, frame.Payload)
	case protocol.Bye:
		s.handleBye(sess)
	case protocol.Pong:
		s.handlePong(sess)
	case protocol.BroadcastReq:
		s.handleBroadcastReq(sess, frame.Payload)
	case protocol.ListReq:
		s.handleListReq(sess)
	case protocol.PrivateMsgReq:
		s.handlePrivateMsgReq(sess, frame.Payload)
	case protocol.RPSStartReq:
		s.handleRPSStartReq(sess, frame.Payload)
	case protocol.RPSInviteResp:
		s.handleRPSInviteResp(sess, frame.Payload)
	case protocol.RPSMoveReq:
		s.handleRPSMoveReq(sess, frame.Payload)
	case protocol.FileTransferReq:
		s.handleFileTransferReq(sess, frame.Payload)
	case protocol.FileTransferResp:
		s.handleFileTransferResp(sess, frame.Payload)
	}
}

// decode unmarshals raw into v, sending PARSE_ERROR and reporting failure
// if it is not valid JSON for the target shape.
func decode[T any](sess *Session, raw []byte, v *T) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		sess.sendFrame(protocol.ParseError, struct{}{})
		return false
	}
	return true
}
