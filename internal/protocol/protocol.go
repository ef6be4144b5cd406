// Package protocol defines the wire format for the control channel: one
// command per line, "<COMMAND> <JSON-payload>\n".
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Command identifies the verb leading a control-channel frame.
type Command string

const (
	Ready     Command = "READY"
	Enter     Command = "ENTER"
	EnterResp Command = "ENTER_RESP"

	BroadcastReq  Command = "BROADCAST_REQ"
	BroadcastResp Command = "BROADCAST_RESP"
	Broadcast     Command = "BROADCAST"

	Joined Command = "JOINED"
	Left   Command = "LEFT"

	Bye     Command = "BYE"
	ByeResp Command = "BYE_RESP"

	UnknownCommand Command = "UNKNOWN_COMMAND"
	Ping           Command = "PING"
	Pong           Command = "PONG"
	PongError      Command = "PONG_ERROR"
	ParseError     Command = "PARSE_ERROR"
	Hangup         Command = "HANGUP"

	ListReq  Command = "LIST_REQ"
	ListResp Command = "LIST_RESP"

	PrivateMsgReq  Command = "PRIVATE_MSG_REQ"
	PrivateMsgResp Command = "PRIVATE_MSG_RESP"
	PrivateMsg     Command = "PRIVATE_MSG"

	RPSStartReq       Command = "RPS_START_REQ"
	RPSStartResp      Command = "RPS_START_RESP"
	RPSInvite         Command = "RPS_INVITE"
	RPSInviteResp     Command = "RPS_INVITE_RESP"
	RPSInviteDeclined Command = "RPS_INVITE_DECLINED"
	RPSReady          Command = "RPS_READY"
	RPSMoveReq        Command = "RPS_MOVE_REQ"
	RPSMoveResp       Command = "RPS_MOVE_RESP"
	RPSResult         Command = "RPS_RESULT"

	FileTransferReq   Command = "FILE_TRANSFER_REQ"
	FileTransferResp  Command = "FILE_TRANSFER_RESP"
	FileTransferReady Command = "FILE_TRANSFER_READY"
)

// Error codes carried on ERROR acknowledgements, HANGUP, and PONG_ERROR.
const (
	CodeEnterCollision   = 5000
	CodeEnterBadFormat   = 5001
	CodeEnterAlready     = 5002
	CodeBroadcastUnauth  = 6000
	CodeHangupTimeout    = 7000
	CodePongUnexpected   = 8000
	CodeListUnauth       = 9000
	CodePrivateUnauth    = 10001
	CodePrivateNoTarget  = 10002
	CodePrivateSelf      = 10003
	CodeRPSUnauth        = 11001
	CodeRPSNoTarget      = 11002
	CodeRPSSelf          = 11003
	CodeRPSConflict      = 11004
	CodeRPSUnpaired      = 11005
	CodeTransferUnauth   = 13000
	CodeTransferNoTarget = 13001
	CodeTransferSelf     = 13002
)

// ErrEmptyLine and ErrNoSpace are returned by ParseLine for malformed frames;
// callers map these (and a downstream json.Unmarshal failure) to either
// UNKNOWN_COMMAND or PARSE_ERROR per the framing codec's rules.
var (
	ErrEmptyLine = errors.New("protocol: empty line")
	ErrNoSpace   = errors.New("protocol: missing command/payload separator")
)

// Frame is one parsed "<COMMAND> <JSON>" line.
type Frame struct {
	Command Command
	Payload json.RawMessage
}

// ParseLine splits a raw line on its first space into a command token and a
// JSON payload. It does not validate that Command is known, nor that
// Payload is well-formed JSON — callers do both, since the two failures map
// to different wire responses (UNKNOWN_COMMAND vs PARSE_ERROR).
func ParseLine(line []byte) (Frame, error) {
	if len(line) == 0 {
		return Frame{}, ErrEmptyLine
	}
	idx := bytes.IndexByte(line, ' ')
	if idx < 0 {
		return Frame{}, ErrNoSpace
	}
	return Frame{
		Command: Command(line[:idx]),
		Payload: json.RawMessage(line[idx+1:]),
	}, nil
}

// EncodeFrame renders cmd and payload as a newline-terminated wire line.
func EncodeFrame(cmd Command, payload any) ([]byte, error) {
	var raw []byte
	var err error
	if payload == nil {
		raw = []byte("{}")
	} else {
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	out := make([]byte, 0, len(cmd)+1+len(raw)+1)
	out = append(out, cmd...)
	out = append(out, ' ')
	out = append(out, raw...)
	out = append(out, '\n')
	return out, nil
}

// ---------------------------------------------------------------------------
// Payload types
// ---------------------------------------------------------------------------

// EnterPayload is the ENTER request body.
type EnterPayload struct {
	Username string `json:"username"`
}

// StatusPayload is the generic OK/ERROR acknowledgement shared by every
// *_RESP command that carries no other data (ENTER_RESP, BYE_RESP,
// BROADCAST_RESP, PRIVATE_MSG_RESP, RPS_MOVE_RESP, and the ERROR case of
// LIST_RESP). RPS_START_RESP and FILE_TRANSFER_RESP have their own types.
type StatusPayload struct {
	Status string `json:"status"`
	Code   int    `json:"code,omitempty"`
}

// OK returns the shared "{status: OK}" acknowledgement.
func OK() StatusPayload { return StatusPayload{Status: "OK"} }

// Err returns the shared "{status: ERROR, code: ...}" acknowledgement.
func Err(code int) StatusPayload { return StatusPayload{Status: "ERROR", Code: code} }

// ReadyPayload is the server greeting sent on accept.
type ReadyPayload struct {
	Version string `json:"version"`
}

// BroadcastReqPayload is the client's BROADCAST_REQ body.
type BroadcastReqPayload struct {
	Message string `json:"message"`
}

// BroadcastPayload is fanned out to every other named session.
type BroadcastPayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// PresencePayload backs JOINED and LEFT.
type PresencePayload struct {
	Username string `json:"username"`
}

// HangupPayload backs HANGUP.
type HangupPayload struct {
	Reason int `json:"reason"`
}

// PongErrorPayload backs PONG_ERROR.
type PongErrorPayload struct {
	Code int `json:"code"`
}

// ListRespPayload backs a successful LIST_RESP.
type ListRespPayload struct {
	Status  string   `json:"status"`
	Clients []string `json:"clients"`
}

// PrivateMsgReqPayload is the client's PRIVATE_MSG_REQ body.
type PrivateMsgReqPayload struct {
	Receiver string `json:"receiver"`
	Message  string `json:"message"`
}

// PrivateMsgPayload is delivered to the receiver.
type PrivateMsgPayload struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// RPSStartReqPayload is the client's RPS_START_REQ body.
type RPSStartReqPayload struct {
	Receiver string `json:"receiver"`
}

// RPSStartRespPayload backs RPS_START_RESP; Pair is only set for a 11004
// conflict, naming the two usernames already bound together.
type RPSStartRespPayload struct {
	Status string     `json:"status"`
	Code   int        `json:"code,omitempty"`
	Pair   *[2]string `json:"pair,omitempty"`
}

// RPSInvitePayload backs RPS_INVITE.
type RPSInvitePayload struct {
	Sender string `json:"sender"`
}

// RPSInviteRespPayload is the client's RPS_INVITE_RESP body.
type RPSInviteRespPayload struct {
	Status string `json:"status"` // "ACCEPT" | "DECLINE"
}

// RPSMoveReqPayload is the client's RPS_MOVE_REQ body. Choice is one of
// "/r", "/p", "/s".
type RPSMoveReqPayload struct {
	Choice string `json:"choice"`
}

// RPSResultPayload backs RPS_RESULT. Winner is nil on a tie.
type RPSResultPayload struct {
	Winner  *string           `json:"winner"`
	Choices map[string]string `json:"choices"`
}

// FileTransferReqPayload is used both for the client's initial request and
// the server's forwarded copy to the receiver.
type FileTransferReqPayload struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Filename string `json:"filename"`
	Checksum string `json:"checksum"`
}

// FileTransferRespPayload is used both as the broker's ack of the request
// phase (Status "OK"/"ERROR") and as the receiver's / forwarded
// accept-or-decline (Status "ACCEPT"/"DECLINE").
type FileTransferRespPayload struct {
	Status string `json:"status"`
	Code   int    `json:"code,omitempty"`
}

// FileTransferReadyPayload backs FILE_TRANSFER_READY. Type is "s" for the
// sender's copy, "r" for the receiver's.
type FileTransferReadyPayload struct {
	UUID     string `json:"uuid"`
	Type     string `json:"type"`
	Checksum string `json:"checksum"`
	Filename string `json:"filename"`
}
