package server

import "chat/internal/protocol"

// ---------------------------------------------------------------------------
// Login state machine (ENTER / BYE)
// ---------------------------------------------------------------------------

func (s *Server) handleEnter(sess *Session, raw []byte) {
	if sess.IsNamed() {
		sess.sendFrame(protocol.EnterResp, protocol.Err(protocol.CodeEnterAlready))
		return
	}
	var p protocol.EnterPayload
	if !decode(sess, raw, &p) {
		return
	}
	if !usernamePattern.MatchString(p.Username) {
		sess.sendFrame(protocol.EnterResp, protocol.Err(protocol.CodeEnterBadFormat))
		return
	}
	if !s.hub.Register(p.Username, sess) {
		sess.sendFrame(protocol.EnterResp, protocol.Err(protocol.CodeEnterCollision))
		return
	}
	sess.setUsername(p.Username)
	sess.sendFrame(protocol.EnterResp, protocol.OK())
	s.hub.BroadcastExcept(sess, protocol.Joined, protocol.PresencePayload{Username: p.Username})
	sess.hb.start()
}

func (s *Server) handleBye(sess *Session) {
	// BYE_RESP is queued before teardown closes the send channel, so the
	// write pump flushes it before closing the socket.
	sess.sendFrame(protocol.ByeResp, protocol.OK())
	s.teardown(sess)
}

func (s *Server) handlePong(sess *Session) {
	if !sess.hb.onPong() {
		sess.sendFrame(protocol.PongError, protocol.PongErrorPayload{Code: protocol.CodePongUnexpected})
	}
}

// ---------------------------------------------------------------------------
// Chat router (BROADCAST / LIST / PRIVATE_MSG)
// ---------------------------------------------------------------------------

func (s *Server) handleBroadcastReq(sess *Session, raw []byte) {
	if !sess.IsNamed() {
		sess.sendFrame(protocol.BroadcastResp, protocol.Err(protocol.CodeBroadcastUnauth))
		return
	}
	var p protocol.BroadcastReqPayload
	if !decode(sess, raw, &p) {
		return
	}
	s.hub.BroadcastExcept(sess, protocol.Broadcast, protocol.BroadcastPayload{
		Username: sess.Username(),
		Message:  p.Message,
	})
	sess.sendFrame(protocol.BroadcastResp, protocol.OK())
}

func (s *Server) handleListReq(sess *Session) {
	if !sess.IsNamed() {
		sess.sendFrame(protocol.ListResp, protocol.StatusPayload{Status: "ERROR", Code: protocol.CodeListUnauth})
		return
	}
	sess.sendFrame(protocol.ListResp, protocol.ListRespPayload{Status: "OK", Clients: s.hub.List()})
}

func (s *Server) handlePrivateMsgReq(sess *Session, raw []byte) {
	if !sess.IsNamed() {
		sess.sendFrame(protocol.PrivateMsgResp, protocol.Err(protocol.CodePrivateUnauth))
		return
	}
	var p protocol.PrivateMsgReqPayload
	if !decode(sess, raw, &p) {
		return
	}
	me := sess.Username()
	if p.Receiver == me {
		sess.sendFrame(protocol.PrivateMsgResp, protocol.Err(protocol.CodePrivateSelf))
		return
	}
	if !s.hub.SendTo(p.Receiver, protocol.PrivateMsg, protocol.PrivateMsgPayload{Sender: me, Message: p.Message}) {
		sess.sendFrame(protocol.PrivateMsgResp, protocol.Err(protocol.CodePrivateNoTarget))
		return
	}
	sess.sendFrame(protocol.PrivateMsgResp, protocol.OK())
}

// ---------------------------------------------------------------------------
// RPS coordinator front door
// ---------------------------------------------------------------------------

func (s *Server) handleRPSStartReq(sess *Session, raw []byte) {
	if !sess.IsNamed() {
		sess.sendFrame(protocol.RPSStartResp, protocol.RPSStartRespPayload{Status: "ERROR", Code: protocol.CodeRPSUnauth})
		return
	}
	var p protocol.RPSStartReqPayload
	if !decode(sess, raw, &p) {
		return
	}
	result := s.rps.StartGame(sess.Username(), p.Receiver)
	if result.ok {
		sess.sendFrame(protocol.RPSStartResp, protocol.RPSStartRespPayload{Status: "OK"})
		return
	}
	resp := protocol.RPSStartRespPayload{Status: "ERROR", Code: result.code}
	if result.code == protocol.CodeRPSConflict {
		resp.Pair = &result.pair
	}
	sess.sendFrame(protocol.RPSStartResp, resp)
}

func (s *Server) handleRPSInviteResp(sess *Session, raw []byte) {
	if !sess.IsNamed() {
		return
	}
	var p protocol.RPSInviteRespPayload
	if !decode(sess, raw, &p) {
		return
	}
	s.rps.RespondInvite(sess.Username(), p.Status == "ACCEPT")
}

func (s *Server) handleRPSMoveReq(sess *Session, raw []byte) {
	if !sess.IsNamed() {
		sess.sendFrame(protocol.RPSMoveResp, protocol.Err(protocol.CodeRPSUnpaired))
		return
	}
	var p protocol.RPSMoveReqPayload
	if !decode(sess, raw, &p) {
		return
	}
	result := s.rps.SubmitMove(sess.Username(), p.Choice)
	if result.ok {
		sess.sendFrame(protocol.RPSMoveResp, protocol.OK())
		return
	}
	sess.sendFrame(protocol.RPSMoveResp, protocol.Err(result.code))
}

// ---------------------------------------------------------------------------
// Transfer broker front door
// ---------------------------------------------------------------------------

func (s *Server) handleFileTransferReq(sess *Session, raw []byte) {
	if !sess.IsNamed() {
		sess.sendFrame(protocol.FileTransferResp, protocol.FileTransferRespPayload{Status: "ERROR", Code: protocol.CodeTransferUnauth})
		return
	}
	var p protocol.FileTransferReqPayload
	if !decode(sess, raw, &p) {
		return
	}
	me := sess.Username()
	result := s.transfers.Request(me, p.Receiver, p.Filename, p.Checksum)
	if !result.ok {
		sess.sendFrame(protocol.FileTransferResp, protocol.FileTransferRespPayload{Status: "ERROR", Code: result.code})
		return
	}
	sess.sendFrame(protocol.FileTransferResp, protocol.FileTransferRespPayload{Status: "OK"})
}

func (s *Server) handleFileTransferResp(sess *Session, raw []byte) {
	if !sess.IsNamed() {
		return
	}
	var p protocol.FileTransferRespPayload
	if !decode(sess, raw, &p) {
		return
	}
	s.transfers.Respond(sess.Username(), p.Status == "ACCEPT")
}
