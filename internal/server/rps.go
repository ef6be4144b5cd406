package server

import "chat/internal/protocol"

// rpsGame is one pairing's state, shared by both usernames in the games
// map. A game starts in the invited phase and moves to playing only when
// the invited side accepts; until then no moves are taken.
type rpsGame struct {
	inviter string
	invited string
	playing bool
	moves   map[string]string
}

// opponent returns the other username of the pairing.
func (g *rpsGame) opponent(u string) string {
	if u == g.inviter {
		return g.invited
	}
	return g.inviter
}

// rpsCoordinator pairs two named sessions for a Rock-Paper-Scissors game and
// resolves their moves. It runs as a single-owner actor goroutine — the
// same pattern as Hub — so the symmetric pairing invariant (both usernames
// of a game key the same record) never needs an external lock: only the
// Run goroutine ever touches games.
//
// games is indexed by username, not by session reference; opponents are
// looked up in the Hub at send time so a stale session pointer can never
// be addressed.
type rpsCoordinator struct {
	hub   *Hub
	games map[string]*rpsGame

	ops  chan any
	done chan struct{}
}

func newRPSCoordinator(hub *Hub) *rpsCoordinator {
	return &rpsCoordinator{
		hub:   hub,
		games: make(map[string]*rpsGame),
		ops:   make(chan any, 64),
		done:  make(chan struct{}),
	}
}

func (c *rpsCoordinator) Run() {
	for {
		select {
		case msg := <-c.ops:
			switch m := msg.(type) {
			case rpsStartMsg:
				c.handleStart(m)
			case rpsInviteRespMsg:
				c.handleInviteResp(m)
			case rpsMoveMsg:
				c.handleMove(m)
			case rpsDisconnectMsg:
				c.handleDisconnect(m)
			}
		case <-c.done:
			return
		}
	}
}

func (c *rpsCoordinator) Stop() { close(c.done) }

type rpsStartMsg struct {
	user, target string
	reply        chan rpsStartResult
}

type rpsStartResult struct {
	ok   bool
	code int
	pair [2]string
}

type rpsInviteRespMsg struct {
	user   string
	accept bool
}

type rpsMoveMsg struct {
	user, choice string
	reply        chan rpsMoveResult
}

type rpsMoveResult struct {
	ok   bool
	code int
}

type rpsDisconnectMsg struct {
	user string
}

// StartGame attempts to pair user with target, blocking until the
// coordinator actor replies.
func (c *rpsCoordinator) StartGame(user, target string) rpsStartResult {
	reply := make(chan rpsStartResult, 1)
	c.ops <- rpsStartMsg{user: user, target: target, reply: reply}
	return <-reply
}

// RespondInvite records user's accept/decline of their pending invite.
func (c *rpsCoordinator) RespondInvite(user string, accept bool) {
	c.ops <- rpsInviteRespMsg{user: user, accept: accept}
}

// SubmitMove records user's move, blocking until the coordinator replies.
func (c *rpsCoordinator) SubmitMove(user, choice string) rpsMoveResult {
	reply := make(chan rpsMoveResult, 1)
	c.ops <- rpsMoveMsg{user: user, choice: choice, reply: reply}
	return <-reply
}

// Disconnected notifies the coordinator that user's session has closed.
func (c *rpsCoordinator) Disconnected(user string) {
	c.ops <- rpsDisconnectMsg{user: user}
}

func (c *rpsCoordinator) handleStart(m rpsStartMsg) {
	if m.target == m.user {
		m.reply <- rpsStartResult{ok: false, code: protocol.CodeRPSSelf}
		return
	}
	if !c.hub.Exists(m.target) {
		m.reply <- rpsStartResult{ok: false, code: protocol.CodeRPSNoTarget}
		return
	}
	// A pending invite already counts as an ongoing game for conflict
	// purposes: the pairing is installed at invite time.
	if g, ok := c.games[m.user]; ok {
		m.reply <- rpsStartResult{ok: false, code: protocol.CodeRPSConflict, pair: [2]string{m.user, g.opponent(m.user)}}
		return
	}
	if g, ok := c.games[m.target]; ok {
		m.reply <- rpsStartResult{ok: false, code: protocol.CodeRPSConflict, pair: [2]string{m.target, g.opponent(m.target)}}
		return
	}

	g := &rpsGame{inviter: m.user, invited: m.target, moves: make(map[string]string)}
	c.games[m.user] = g
	c.games[m.target] = g
	m.reply <- rpsStartResult{ok: true}
	c.hub.SendTo(m.target, protocol.RPSInvite, protocol.RPSInvitePayload{Sender: m.user})
}

func (c *rpsCoordinator) handleInviteResp(m rpsInviteRespMsg) {
	g, ok := c.games[m.user]
	if !ok {
		return
	}
	// Only the invited side may answer, and only while the invite is still
	// open; the inviter cannot accept its own invite, and a second answer
	// after the game started is ignored.
	if m.user != g.invited || g.playing {
		return
	}
	if m.accept {
		g.playing = true
		c.hub.SendTo(g.inviter, protocol.RPSReady, struct{}{})
		c.hub.SendTo(g.invited, protocol.RPSReady, struct{}{})
		return
	}
	c.dissolve(g)
	c.hub.SendTo(g.inviter, protocol.RPSInviteDeclined, struct{}{})
	c.hub.SendTo(g.invited, protocol.RPSInviteDeclined, struct{}{})
}

func (c *rpsCoordinator) handleMove(m rpsMoveMsg) {
	g, ok := c.games[m.user]
	if !ok || !g.playing {
		// Moves before the invite is accepted are rejected: both players
		// must observe RPS_READY before any move is taken.
		m.reply <- rpsMoveResult{ok: false, code: protocol.CodeRPSUnpaired}
		return
	}
	g.moves[m.user] = m.choice
	m.reply <- rpsMoveResult{ok: true}

	opp := g.opponent(m.user)
	oppMove, ready := g.moves[opp]
	if !ready {
		return
	}
	c.resolve(g, m.user, opp, m.choice, oppMove)
}

// beats reports whether move a defeats move b under standard RPS rules.
func beats(a, b string) bool {
	switch a {
	case "/r":
		return b == "/s"
	case "/s":
		return b == "/p"
	case "/p":
		return b == "/r"
	}
	return false
}

func (c *rpsCoordinator) resolve(g *rpsGame, a, b, moveA, moveB string) {
	var winner *string
	switch {
	case moveA == moveB:
		winner = nil
	case beats(moveA, moveB):
		w := a
		winner = &w
	default:
		w := b
		winner = &w
	}

	result := protocol.RPSResultPayload{
		Winner:  winner,
		Choices: map[string]string{a: moveA, b: moveB},
	}
	c.hub.SendTo(a, protocol.RPSResult, result)
	c.hub.SendTo(b, protocol.RPSResult, result)
	c.dissolve(g)
}

func (c *rpsCoordinator) handleDisconnect(m rpsDisconnectMsg) {
	g, ok := c.games[m.user]
	if !ok {
		return
	}
	c.dissolve(g)
	c.hub.SendTo(g.opponent(m.user), protocol.RPSInviteDeclined, struct{}{})
}

// dissolve removes the game for both sides; pending moves go with it.
func (c *rpsCoordinator) dissolve(g *rpsGame) {
	delete(c.games, g.inviter)
	delete(c.games, g.invited)
}
