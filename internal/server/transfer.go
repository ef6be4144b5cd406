package server

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat/internal/protocol"
)

// errDuplicateRole is returned by transferContext.bind when a role is
// already occupied; extra arrivals with the same UUID are rejected.
var errDuplicateRole = errors.New("transfer: role already bound")

// pendingTransfer is one FILE_TRANSFER_REQ awaiting the receiver's
// FILE_TRANSFER_RESP.
type pendingTransfer struct {
	sender, receiver, filename, checksum string
}

// transferContext is the shared rendezvous record for one relay UUID. Both
// halves are bound by the auxiliary-port accept loop; io.Copy streams bytes
// from sender to receiver without ever buffering the whole file.
type transferContext struct {
	mu       sync.Mutex
	sender   net.Conn
	receiver net.Conn

	// matched is closed once both halves are bound. The first-arriving
	// half parks on it; the second half's bind closes it — the single-use
	// channel standing in for a condition variable.
	matched  chan struct{}
	deadline time.Time
}

func newTransferContext(ttl time.Duration) *transferContext {
	return &transferContext{
		matched:  make(chan struct{}),
		deadline: time.Now().Add(ttl),
	}
}

// bind attaches conn under role ('s' or 'r'). It reports whether both sides
// are now bound, meaning the caller is responsible for invoking relay().
func (t *transferContext) bind(role byte, conn net.Conn) (bothBound bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch role {
	case 's':
		if t.sender != nil {
			return false, errDuplicateRole
		}
		t.sender = conn
	case 'r':
		if t.receiver != nil {
			return false, errDuplicateRole
		}
		t.receiver = conn
	default:
		return false, errors.New("transfer: invalid role byte")
	}
	if t.sender != nil && t.receiver != nil {
		close(t.matched)
		return true, nil
	}
	return false, nil
}

// relay copies bytes from the sender to the receiver until the sender
// half-closes, then closes both sockets.
func (t *transferContext) relay() error {
	defer t.sender.Close()
	defer t.receiver.Close()
	_, err := io.Copy(t.receiver, t.sender)
	return err
}

// awaitMatch blocks until the peer half binds or the rendezvous deadline
// elapses. The deadline bounds only the wait for the peer — once matched,
// the copy itself runs to completion regardless of how long it takes.
func (t *transferContext) awaitMatch() bool {
	timer := time.NewTimer(time.Until(t.deadline))
	defer timer.Stop()
	select {
	case <-t.matched:
		return true
	case <-timer.C:
		select {
		case <-t.matched:
			return true
		default:
			return false
		}
	}
}

// transferBroker validates transfer requests, mints transfer IDs, and owns
// the pending-request list and the ongoing-transfer map. It is a
// single-owner actor like Hub and rpsCoordinator, so neither map needs an
// external lock.
type transferBroker struct {
	hub      *Hub
	relayTTL time.Duration

	pending  []pendingTransfer
	contexts map[string]*transferContext

	ops  chan any
	done chan struct{}
}

func newTransferBroker(hub *Hub, relayTTL time.Duration) *transferBroker {
	return &transferBroker{
		hub:      hub,
		relayTTL: relayTTL,
		contexts: make(map[string]*transferContext),
		ops:      make(chan any, 64),
		done:     make(chan struct{}),
	}
}

func (b *transferBroker) Run() {
	for {
		select {
		case msg := <-b.ops:
			switch m := msg.(type) {
			case transferReqMsg:
				b.handleReq(m)
			case transferRespMsg:
				b.handleResp(m)
			case transferDisconnectMsg:
				b.handleDisconnect(m)
			case transferLookupCtxMsg:
				ctx := b.contexts[m.id]
				m.reply <- ctx
			case transferRemoveCtxMsg:
				delete(b.contexts, m.id)
			}
		case <-b.done:
			return
		}
	}
}

func (b *transferBroker) Stop() { close(b.done) }

type transferReqMsg struct {
	sender, receiver, filename, checksum string
	reply                                chan transferReqResult
}

type transferReqResult struct {
	ok   bool
	code int
}

type transferRespMsg struct {
	receiver string
	accept   bool
}

type transferDisconnectMsg struct {
	user string
}

type transferLookupCtxMsg struct {
	id    string
	reply chan *transferContext
}

type transferRemoveCtxMsg struct {
	id string
}

// Request registers a new pending transfer, blocking for the broker's
// validation result.
func (b *transferBroker) Request(sender, receiver, filename, checksum string) transferReqResult {
	reply := make(chan transferReqResult, 1)
	b.ops <- transferReqMsg{sender: sender, receiver: receiver, filename: filename, checksum: checksum, reply: reply}
	return <-reply
}

// Respond records the receiver's ACCEPT/DECLINE for their oldest pending
// transfer.
func (b *transferBroker) Respond(receiver string, accept bool) {
	b.ops <- transferRespMsg{receiver: receiver, accept: accept}
}

// Disconnected drops pending entries naming user as the receiver.
func (b *transferBroker) Disconnected(user string) {
	b.ops <- transferDisconnectMsg{user: user}
}

// LookupContext returns the transferContext registered under id, if any.
func (b *transferBroker) LookupContext(id string) (*transferContext, bool) {
	reply := make(chan *transferContext, 1)
	b.ops <- transferLookupCtxMsg{id: id, reply: reply}
	ctx := <-reply
	return ctx, ctx != nil
}

// RemoveContext deletes id from the ongoing-transfer map.
func (b *transferBroker) RemoveContext(id string) {
	b.ops <- transferRemoveCtxMsg{id: id}
}

func (b *transferBroker) handleReq(m transferReqMsg) {
	if m.receiver == m.sender {
		m.reply <- transferReqResult{ok: false, code: protocol.CodeTransferSelf}
		return
	}
	if !b.hub.Exists(m.receiver) {
		m.reply <- transferReqResult{ok: false, code: protocol.CodeTransferNoTarget}
		return
	}
	b.pending = append(b.pending, pendingTransfer{
		sender: m.sender, receiver: m.receiver, filename: m.filename, checksum: m.checksum,
	})
	m.reply <- transferReqResult{ok: true}
	b.hub.SendTo(m.receiver, protocol.FileTransferReq, protocol.FileTransferReqPayload{
		Sender: m.sender, Receiver: m.receiver, Filename: m.filename, Checksum: m.checksum,
	})
}

// findPending returns the index of the first pending entry addressed to
// receiver, or -1.
func (b *transferBroker) findPending(receiver string) int {
	for i, p := range b.pending {
		if p.receiver == receiver {
			return i
		}
	}
	return -1
}

func (b *transferBroker) removePendingAt(i int) pendingTransfer {
	entry := b.pending[i]
	b.pending = append(b.pending[:i], b.pending[i+1:]...)
	return entry
}

func (b *transferBroker) handleResp(m transferRespMsg) {
	idx := b.findPending(m.receiver)
	if idx < 0 {
		return
	}
	entry := b.removePendingAt(idx)

	if !m.accept {
		b.hub.SendTo(entry.sender, protocol.FileTransferResp, protocol.FileTransferRespPayload{Status: "DECLINE"})
		return
	}

	id := uuid.New().String()
	b.contexts[id] = newTransferContext(b.relayTTL)
	b.hub.SendTo(entry.sender, protocol.FileTransferReady, protocol.FileTransferReadyPayload{
		UUID: id, Type: "s", Checksum: entry.checksum, Filename: entry.filename,
	})
	b.hub.SendTo(entry.receiver, protocol.FileTransferReady, protocol.FileTransferReadyPayload{
		UUID: id, Type: "r", Checksum: entry.checksum, Filename: entry.filename,
	})
}

func (b *transferBroker) handleDisconnect(m transferDisconnectMsg) {
	kept := b.pending[:0]
	for _, p := range b.pending {
		if p.receiver == m.user {
			continue
		}
		kept = append(kept, p)
	}
	b.pending = kept
	// Ongoing relays already rendezvoused are left alone; an in-progress
	// copy on the auxiliary port outlives the control session.
}
