package server

import (
	"sync"
	"time"

	"chat/internal/protocol"
)

// heartbeat is the per-session PING/PONG liveness engine: after login,
// every pingInterval either a PING is sent (if none is outstanding) or the
// session is evicted (if one already is).
//
// The inner PONG deadline evicts independently of the outer tick, so a
// single missed PONG costs the session pongTimeout, not a full
// pingInterval.
type heartbeat struct {
	session      *Session
	pingInterval time.Duration
	pongTimeout  time.Duration

	mu           sync.Mutex
	awaitingPong bool
	stopped      bool
	tickTimer    *time.Timer
	pongTimer    *time.Timer
}

func newHeartbeat(s *Session, pingInterval, pongTimeout time.Duration) *heartbeat {
	return &heartbeat{
		session:      s,
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
	}
}

// start schedules the first PING one interval after login.
func (h *heartbeat) start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.tickTimer = time.AfterFunc(h.pingInterval, h.tick)
}

func (h *heartbeat) tick() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	if h.awaitingPong {
		h.mu.Unlock()
		h.evict()
		return
	}
	h.awaitingPong = true
	h.pongTimer = time.AfterFunc(h.pongTimeout, h.pongDeadline)
	if !h.stopped {
		h.tickTimer = time.AfterFunc(h.pingInterval, h.tick)
	}
	h.mu.Unlock()

	h.session.sendFrame(protocol.Ping, struct{}{})
}

func (h *heartbeat) pongDeadline() {
	h.mu.Lock()
	if h.stopped || !h.awaitingPong {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	h.evict()
}

// evict sends HANGUP with the liveness-timeout reason and closes the
// session's send channel; writePump flushes the HANGUP and then closes the
// socket, which unblocks readPump and runs teardown.
func (h *heartbeat) evict() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	h.session.sendFrame(protocol.Hangup, protocol.HangupPayload{Reason: protocol.CodeHangupTimeout})
	h.session.closeSend()
}

// onPong clears the awaiting flag and reports whether a PONG was actually
// expected. The caller sends PONG_ERROR when it returns false.
func (h *heartbeat) onPong() (wasAwaiting bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.awaitingPong {
		return false
	}
	h.awaitingPong = false
	if h.pongTimer != nil {
		h.pongTimer.Stop()
	}
	return true
}

// stop cancels all outstanding timers. Idempotent.
func (h *heartbeat) stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	tick, pong := h.tickTimer, h.pongTimer
	h.mu.Unlock()
	if tick != nil {
		tick.Stop()
	}
	if pong != nil {
		pong.Stop()
	}
}
