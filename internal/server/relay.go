package server

import (
	"io"
	"log"
	"net"
	"time"

	"github.com/google/uuid"
)

// headerSize is the auxiliary-port handshake: 36 ASCII UUID bytes plus one
// role byte ('s' or 'r').
const headerSize = 37

// headerReadTimeout bounds how long a half-session may take to send its
// 37-byte header before the relay gives up on it.
const headerReadTimeout = 10 * time.Second

// serveRelay accepts connections on the auxiliary port and rendezvous them
// by transfer UUID. Each connection runs in its own goroutine; the relay
// never buffers a whole file, only the sender→receiver io.Copy stream.
func (s *Server) serveRelay(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go s.handleRelayConn(conn)
	}
}

func (s *Server) handleRelayConn(conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(headerReadTimeout))
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	id := string(header[:36])
	role := header[36]

	if _, err := uuid.Parse(id); err != nil {
		conn.Close()
		return
	}
	if role != 's' && role != 'r' {
		conn.Close()
		return
	}

	ctx, ok := s.transfers.LookupContext(id)
	if !ok {
		conn.Close()
		return
	}

	bothBound, err := ctx.bind(role, conn)
	if err != nil {
		conn.Close()
		return
	}

	if bothBound {
		s.transfers.RemoveContext(id)
		if err := ctx.relay(); err != nil {
			log.Printf("[relay] %s: %v", id, err)
		}
		return
	}

	// First arriver: park until the peer binds. The second arriver's
	// goroutine runs the copy, so there is nothing left to do here once
	// matched; on timeout the context is a leak candidate and is dropped.
	if !ctx.awaitMatch() {
		conn.Close()
		s.transfers.RemoveContext(id)
	}
}
