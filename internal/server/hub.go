package server

import (
	"log"

	"chat/internal/protocol"
)

// Hub is the central session registry and broadcast router. It owns the set
// of named sessions and fans out broadcasts to them.
//
// Concurrency model
// -----------------
//   - The Hub runs in a single dedicated goroutine (Hub.Run).
//   - All mutations to the sessions map happen inside that goroutine, so no
//     mutex is needed for the map itself — this is what makes registry
//     insertion/removal atomic with respect to concurrent lookups.
//   - Other goroutines communicate with the Hub exclusively through
//     channels: register, unregister, broadcast, listReq, lookupReq.
//   - Each Session has a buffered send channel. If the buffer fills up
//     (slow/stuck peer) the session is closed rather than blocking the
//     whole broadcast.
type Hub struct {
	sessions map[string]*Session

	register   chan registerMsg
	unregister chan string
	broadcast  chan broadcastMsg
	listReq    chan chan []string
	lookupReq  chan lookupMsg
	done       chan struct{}
}

type registerMsg struct {
	username string
	session  *Session
	reply    chan bool
}

type broadcastMsg struct {
	except *Session
	data   []byte
}

type lookupMsg struct {
	username string
	reply    chan *Session
}

func newHub() *Hub {
	return &Hub{
		sessions:   make(map[string]*Session),
		register:   make(chan registerMsg),
		unregister: make(chan string),
		broadcast:  make(chan broadcastMsg, 256),
		listReq:    make(chan chan []string),
		lookupReq:  make(chan lookupMsg),
		done:       make(chan struct{}),
	}
}

// Run processes hub events. It must be launched as a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case m := <-h.register:
			if _, exists := h.sessions[m.username]; exists {
				m.reply <- false
				continue
			}
			h.sessions[m.username] = m.session
			m.reply <- true
			log.Printf("[hub] +session %s  total=%d", m.username, len(h.sessions))

		case username := <-h.unregister:
			if _, ok := h.sessions[username]; ok {
				delete(h.sessions, username)
				log.Printf("[hub] -session %s  total=%d", username, len(h.sessions))
			}

		case m := <-h.broadcast:
			for _, sess := range h.sessions {
				if sess == m.except {
					continue
				}
				sess.enqueue(m.data)
			}

		case reply := <-h.listReq:
			out := make([]string, 0, len(h.sessions))
			for u := range h.sessions {
				out = append(out, u)
			}
			reply <- out

		case m := <-h.lookupReq:
			m.reply <- h.sessions[m.username]

		case <-h.done:
			return
		}
	}
}

// Stop signals the hub to shut down.
func (h *Hub) Stop() { close(h.done) }

// Register atomically inserts session under username. It returns false if
// the username is already taken.
func (h *Hub) Register(username string, session *Session) bool {
	reply := make(chan bool, 1)
	h.register <- registerMsg{username: username, session: session, reply: reply}
	return <-reply
}

// Unregister removes username from the registry. A no-op if absent.
func (h *Hub) Unregister(username string) {
	h.unregister <- username
}

// Lookup returns the named session for username, if any.
func (h *Hub) Lookup(username string) (*Session, bool) {
	reply := make(chan *Session, 1)
	h.lookupReq <- lookupMsg{username: username, reply: reply}
	s := <-reply
	return s, s != nil
}

// Exists reports whether username currently has a named session.
func (h *Hub) Exists(username string) bool {
	_, ok := h.Lookup(username)
	return ok
}

// List returns a snapshot of every currently named username.
func (h *Hub) List() []string {
	reply := make(chan []string, 1)
	h.listReq <- reply
	return <-reply
}

// BroadcastExcept encodes cmd/payload once and fans it out to every named
// session other than except (which may be nil to include everyone).
func (h *Hub) BroadcastExcept(except *Session, cmd protocol.Command, payload any) {
	data, err := protocol.EncodeFrame(cmd, payload)
	if err != nil {
		return
	}
	h.broadcast <- broadcastMsg{except: except, data: data}
}

// SendTo looks up username and, if present, delivers cmd/payload to it.
// Returns false if username has no named session.
func (h *Hub) SendTo(username string, cmd protocol.Command, payload any) bool {
	sess, ok := h.Lookup(username)
	if !ok {
		return false
	}
	sess.sendFrame(cmd, payload)
	return true
}
