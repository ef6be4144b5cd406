package server

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"chat/internal/protocol"
)

const (
	sendBufSize  = 256 // buffered send channel capacity
	writeTimeout = 10 * time.Second

	// maxLineSize bounds one control-channel frame; large enough for any
	// realistic JSON payload this protocol exchanges (the file itself never
	// crosses the control channel — only the auxiliary relay carries bytes).
	maxLineSize = 1 << 20
)

// Session represents one accepted control-channel TCP connection.
//
// Two goroutines are spawned per session:
//
//	readPump  – reads newline-delimited frames from the TCP connection and
//	            dispatches them to the Server for processing.
//	writePump – drains the send channel and writes frames to the TCP
//	            connection.
//
// This decouples reading from writing so a slow writer never blocks the
// reader, and gives every session a single serialization point for
// outbound frames (required so PING/HANGUP never interleaves mid-frame
// with ordinary traffic).
type Session struct {
	id      string // unique connection identifier
	server  *Server
	conn    net.Conn
	send    chan []byte // outbound newline-terminated frames
	limiter *rate.Limiter

	hb *heartbeat

	// Login state. Protected by mu because readPump sets username once
	// after a successful ENTER, and other goroutines (hub broadcast,
	// actors delivering frames by username) read it concurrently.
	mu         sync.RWMutex
	username   string // "" until named
	closed     bool   // true once teardown has run, guards idempotency
	sendClosed bool   // true once the send channel is closed
}

func newSession(id string, conn net.Conn, srv *Server) *Session {
	s := &Session{
		id:     id,
		conn:   conn,
		server: srv,
		send:   make(chan []byte, sendBufSize),
	}
	if srv.cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(srv.cfg.RateLimit), srv.cfg.RateBurst)
	}
	s.hb = newHeartbeat(s, srv.cfg.PingInterval, srv.cfg.PongTimeout)
	return s
}

// Username returns the session's username, or "" if still anonymous.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// IsNamed reports whether ENTER has succeeded for this session.
func (s *Session) IsNamed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username != ""
}

func (s *Session) setUsername(u string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = u
}

// clearIdentity marks the session closed exactly once. The first call
// returns whether the session was named and the username it held; every
// later call, and the first call on an anonymous session, returns
// (false, ""). Callers use wasNamed to make teardown idempotent across BYE
// and read-EOF racing each other.
func (s *Session) clearIdentity() (wasNamed bool, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ""
	}
	s.closed = true
	return s.username != "", s.username
}

// readPump reads frames from the TCP connection line by line and dispatches
// them to the Server. When the connection drops it tears the session down.
func (s *Session) readPump() {
	defer func() {
		s.server.teardown(s)
		s.closeConn()
	}()

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 4096), maxLineSize)
	for scanner.Scan() {
		if s.limiter != nil {
			_ = s.limiter.Wait(context.Background())
		}
		s.server.handleLine(s, scanner.Bytes())
	}
}

// writePump drains the send channel and writes each frame to the TCP
// connection. A write deadline is set for every write to prevent blocking
// indefinitely on a stuck peer.
func (s *Session) writePump() {
	defer s.closeConn()
	for data := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := s.conn.Write(data); err != nil {
			return
		}
	}
}

// enqueue queues a pre-encoded frame on the send channel. Non-blocking: a
// stuck peer whose buffer is full is dropped by closing it, never by
// silently skipping frames. A no-op after closeSend.
func (s *Session) enqueue(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendClosed {
		return
	}
	select {
	case s.send <- data:
	default:
		s.conn.Close()
	}
}

// sendFrame encodes cmd/payload and enqueues it.
func (s *Session) sendFrame(cmd protocol.Command, payload any) {
	data, err := protocol.EncodeFrame(cmd, payload)
	if err != nil {
		return
	}
	s.enqueue(data)
}

// closeSend closes the send channel exactly once, letting writePump drain
// whatever is already queued (BYE_RESP, HANGUP) before it closes the
// socket. Safe to call concurrently with enqueue.
func (s *Session) closeSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendClosed {
		return
	}
	s.sendClosed = true
	close(s.send)
}

// closeConn closes the underlying socket immediately, without draining
// queued frames.
func (s *Session) closeConn() {
	s.conn.Close()
}
