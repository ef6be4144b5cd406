// Chat TUI client.
//
// Screens
// -------
//   stateLogin – centered username prompt (ENTER has no password: the
//                server enforces only uniqueness).
//   stateChat  – full-screen chat with scrollable message viewport and a
//                slash-command input line.
//
// Concurrency
// -----------
//   A single goroutine scans newline-delimited frames off the control
//   connection and forwards parsed protocol.Frame values to the frames
//   channel. The Bubbletea event loop drains one frame at a time via
//   waitForFrame (a tea.Cmd), immediately queuing the next read after each
//   frame is processed. File transfers run in their own short-lived
//   goroutines against the auxiliary relay port and report back to the
//   program with program.Send, since they do not fit the request/response
//   shape of the control channel.
package main

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"chat/internal/protocol"
)

// ---------------------------------------------------------------------------
// Styles
// ---------------------------------------------------------------------------

var (
	purple = lipgloss.Color("99")
	cyan   = lipgloss.Color("86")
	green  = lipgloss.Color("82")
	red    = lipgloss.Color("196")
	yellow = lipgloss.Color("220")
	gray   = lipgloss.Color("241")
	white  = lipgloss.Color("255")
	orange = lipgloss.Color("214")
	blue   = lipgloss.Color("75")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(purple).
			Foreground(white).
			Padding(0, 1)

	footerBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), true, false, false, false).
				BorderForeground(gray).
				Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(purple).
			Padding(0, 2)

	hintStyle = lipgloss.NewStyle().
			Foreground(gray).
			Italic(true)

	successStyle = lipgloss.NewStyle().Foreground(green)
	errorStyle   = lipgloss.NewStyle().Foreground(red)
	sysStyle     = lipgloss.NewStyle().Foreground(yellow).Italic(true)
	myNameStyle  = lipgloss.NewStyle().Bold(true).Foreground(orange)
	peerStyle    = lipgloss.NewStyle().Bold(true).Foreground(blue)
)

// ---------------------------------------------------------------------------
// Bubbletea message types
// ---------------------------------------------------------------------------

type serverFrameMsg protocol.Frame
type disconnectedMsg struct{}
type transferStatusMsg string

// ---------------------------------------------------------------------------
// Client-side mirror state
// ---------------------------------------------------------------------------

// fileOffer is an incoming FILE_TRANSFER_REQ awaiting /a or /d.
type fileOffer struct {
	sender, filename, checksum string
}

// ---------------------------------------------------------------------------
// Application state
// ---------------------------------------------------------------------------

type appState int

const (
	stateLogin appState = iota
	stateChat
)

type model struct {
	conn        net.Conn
	relayAddr   string
	downloadDir string
	program     *tea.Program

	frames chan protocol.Frame

	state appState
	me    string

	usernameInput textinput.Model
	loginStatus   string

	ready     bool
	viewport  viewport.Model
	chatInput textinput.Model
	lines     []string

	// filePathMap remembers the local path for each filename this client
	// has offered to send, so that the FILE_TRANSFER_READY "s" event knows
	// what to stream.
	filePathMap map[string]string

	// pendingFileOffers holds incoming requests awaiting /a or /d, in
	// arrival order — mirroring the broker's own pending list.
	pendingFileOffers []fileOffer

	// RPS mirror: at most one invite outstanding in either direction.
	rpsInviteFrom string // opponent who invited us ("" if none)
	rpsInvitedTo  string // opponent we invited via /rps ("" if none)
	rpsOpponent   string // opponent once RPS_READY has arrived

	width, height int
}

func newModel(conn net.Conn, relayAddr, downloadDir string, frames chan protocol.Frame) *model {
	uf := textinput.New()
	uf.Placeholder = "username (3-14 chars, letters/digits/_)"
	uf.Focus()
	uf.CharLimit = 14
	uf.Width = 32

	ci := textinput.New()
	ci.Placeholder = "Type a message, or /help…"
	ci.CharLimit = 500

	return &model{
		conn:          conn,
		relayAddr:     relayAddr,
		downloadDir:   downloadDir,
		frames:        frames,
		state:         stateLogin,
		usernameInput: uf,
		chatInput:     ci,
		filePathMap:   make(map[string]string),
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForFrame(m.frames))
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, m.vpHeight())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = m.vpHeight()
		}
		m.chatInput.Width = msg.Width - 4
		return m, nil

	case serverFrameMsg:
		if cmd := m.handleFrame(protocol.Frame(msg)); cmd != nil {
			return m, cmd
		}
		return m, waitForFrame(m.frames)

	case transferStatusMsg:
		m.appendLine(sysStyle.Render("⚡ " + string(msg)))
		return m, nil

	case disconnectedMsg:
		m.loginStatus = "disconnected from server"
		return m, tea.Quit

	case tea.KeyMsg:
		switch m.state {
		case stateLogin:
			return m.handleLoginKey(msg)
		case stateChat:
			return m.handleChatKey(msg)
		}
	}
	return m, nil
}

func (m *model) vpHeight() int {
	h := m.height - 3
	if h < 1 {
		h = 1
	}
	return h
}

func (m *model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEnter:
		user := strings.TrimSpace(m.usernameInput.Value())
		if user == "" {
			m.loginStatus = "enter a username"
			return m, nil
		}
		m.sendFrame(protocol.Enter, protocol.EnterPayload{Username: user})
		m.loginStatus = "joining…"
		return m, nil
	}
	var cmd tea.Cmd
	m.usernameInput, cmd = m.usernameInput.Update(msg)
	return m, cmd
}

func (m *model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.sendFrame(protocol.Bye, struct{}{})
		return m, tea.Quit

	case tea.KeyEnter:
		line := strings.TrimSpace(m.chatInput.Value())
		if line != "" {
			m.runCommand(line)
			m.chatInput.Reset()
		}
		return m, nil

	case tea.KeyPgUp:
		m.viewport.HalfViewUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	return m, cmd
}

// ---------------------------------------------------------------------------
// Slash-command surface
// ---------------------------------------------------------------------------

func (m *model) runCommand(line string) {
	if !strings.HasPrefix(line, "/") && !strings.HasPrefix(line, "@") {
		m.sendFrame(protocol.BroadcastReq, protocol.BroadcastReqPayload{Message: line})
		return
	}

	if strings.HasPrefix(line, "@") {
		rest := line[1:]
		parts := strings.SplitN(rest, " ", 2)
		if len(parts) != 2 || parts[1] == "" {
			m.appendLine(errorStyle.Render("usage: @<user> <message>"))
			return
		}
		m.sendFrame(protocol.PrivateMsgReq, protocol.PrivateMsgReqPayload{Receiver: parts[0], Message: parts[1]})
		return
	}

	fields := strings.SplitN(line, " ", 2)
	cmd := fields[0]
	var arg string
	if len(fields) == 2 {
		arg = fields[1]
	}

	switch cmd {
	case "/help":
		m.appendLine(hintStyle.Render(helpText))

	case "/exit":
		m.sendFrame(protocol.Bye, struct{}{})

	case "/all":
		m.sendFrame(protocol.ListReq, struct{}{})

	case "/rps":
		target := strings.TrimSpace(arg)
		if target == "" {
			m.appendLine(errorStyle.Render("usage: /rps <user>"))
			return
		}
		m.rpsInvitedTo = target
		m.sendFrame(protocol.RPSStartReq, protocol.RPSStartReqPayload{Receiver: target})

	case "/y":
		if m.rpsInviteFrom == "" {
			m.appendLine(errorStyle.Render("no pending RPS invite"))
			return
		}
		m.sendFrame(protocol.RPSInviteResp, protocol.RPSInviteRespPayload{Status: "ACCEPT"})

	case "/n":
		if m.rpsInviteFrom == "" {
			m.appendLine(errorStyle.Render("no pending RPS invite"))
			return
		}
		m.sendFrame(protocol.RPSInviteResp, protocol.RPSInviteRespPayload{Status: "DECLINE"})
		m.rpsInviteFrom = ""

	case "/r", "/p", "/s":
		if m.rpsOpponent == "" {
			m.appendLine(errorStyle.Render("no game in progress"))
			return
		}
		m.sendFrame(protocol.RPSMoveReq, protocol.RPSMoveReqPayload{Choice: cmd})

	case "/send":
		m.cmdSend(arg)

	case "/files":
		m.cmdFiles()

	case "/a":
		m.cmdRespondTransfer(arg, true)

	case "/d":
		m.cmdRespondTransfer(arg, false)

	default:
		m.appendLine(errorStyle.Render("unknown command: " + cmd))
	}
}

const helpText = `/help                       show this text
/exit                       leave the chat
/all                        list online users
@<user> <msg>               private message
/rps <user>                 challenge <user> to rock-paper-scissors
/y /n                       accept / decline a pending RPS invite
/r /p /s                    play rock / paper / scissors
/send <user> <path>         offer a local file to <user>
/files                      list incoming file offers
/a <user> <filename>        accept an incoming file offer
/d <user> <filename>        decline an incoming file offer
bare text                   broadcast to everyone`

func (m *model) cmdSend(arg string) {
	fields := strings.SplitN(arg, " ", 2)
	if len(fields) != 2 {
		m.appendLine(errorStyle.Render("usage: /send <user> <path>"))
		return
	}
	receiver, path := fields[0], fields[1]

	sum, err := sha256File(path)
	if err != nil {
		m.appendLine(errorStyle.Render("cannot read " + path + ": " + err.Error()))
		return
	}
	filename := filepath.Base(path)
	m.filePathMap[filename] = path
	m.sendFrame(protocol.FileTransferReq, protocol.FileTransferReqPayload{
		Sender: m.me, Receiver: receiver, Filename: filename, Checksum: sum,
	})
}

func (m *model) cmdFiles() {
	if len(m.pendingFileOffers) == 0 {
		m.appendLine(hintStyle.Render("no pending file offers"))
		return
	}
	for _, o := range m.pendingFileOffers {
		m.appendLine(fmt.Sprintf("  %s offers %s", peerStyle.Render(o.sender), o.filename))
	}
}

func (m *model) cmdRespondTransfer(arg string, accept bool) {
	fields := strings.SplitN(arg, " ", 2)
	if len(fields) != 2 {
		m.appendLine(errorStyle.Render("usage: /a <user> <filename> (or /d)"))
		return
	}
	sender, filename := fields[0], fields[1]

	idx := -1
	for i, o := range m.pendingFileOffers {
		if o.sender == sender && o.filename == filename {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.appendLine(errorStyle.Render("no offer from " + sender + " for " + filename))
		return
	}
	m.pendingFileOffers = append(m.pendingFileOffers[:idx], m.pendingFileOffers[idx+1:]...)

	status := "DECLINE"
	if accept {
		status = "ACCEPT"
	}
	m.sendFrame(protocol.FileTransferResp, protocol.FileTransferRespPayload{Status: status})
}

// ---------------------------------------------------------------------------
// Server frame handler
// ---------------------------------------------------------------------------

// handleFrame processes one server frame. It returns a non-nil tea.Cmd only
// when the frame ends the session (BYE_RESP, HANGUP).
func (m *model) handleFrame(frame protocol.Frame) tea.Cmd {
	switch frame.Command {
	case protocol.Ready:
		// Greeting; nothing to render.

	case protocol.EnterResp:
		var p protocol.StatusPayload
		if jsonUnmarshal(frame.Payload, &p) && p.Status == "OK" {
			user := strings.TrimSpace(m.usernameInput.Value())
			m.me = user
			m.state = stateChat
			m.chatInput.Focus()
			m.appendLine(sysStyle.Render("joined as " + user))
		} else {
			m.loginStatus = enterErrorText(p.Code)
		}

	case protocol.Joined:
		var p protocol.PresencePayload
		if jsonUnmarshal(frame.Payload, &p) {
			m.appendLine(sysStyle.Render(p.Username + " joined"))
		}

	case protocol.Left:
		var p protocol.PresencePayload
		if jsonUnmarshal(frame.Payload, &p) {
			m.appendLine(sysStyle.Render(p.Username + " left"))
		}

	case protocol.Broadcast:
		var p protocol.BroadcastPayload
		if jsonUnmarshal(frame.Payload, &p) {
			m.appendLine(renderName(p.Username, m.me) + ": " + p.Message)
		}

	case protocol.PrivateMsg:
		var p protocol.PrivateMsgPayload
		if jsonUnmarshal(frame.Payload, &p) {
			m.appendLine(renderName(p.Sender, m.me) + " (private): " + p.Message)
		}

	case protocol.ListResp:
		var p protocol.ListRespPayload
		if jsonUnmarshal(frame.Payload, &p) {
			m.appendLine(hintStyle.Render("online: " + strings.Join(p.Clients, ", ")))
		}

	case protocol.RPSInvite:
		var p protocol.RPSInvitePayload
		if jsonUnmarshal(frame.Payload, &p) {
			m.rpsInviteFrom = p.Sender
			m.appendLine(sysStyle.Render(p.Sender + " challenges you to RPS — /y or /n"))
		}

	case protocol.RPSInviteDeclined:
		m.appendLine(sysStyle.Render("RPS game ended"))
		m.rpsInviteFrom = ""
		m.rpsInvitedTo = ""
		m.rpsOpponent = ""

	case protocol.RPSReady:
		// RPS_READY carries no payload; the opponent is whichever
		// direction the invite travelled.
		if m.rpsInviteFrom != "" {
			m.rpsOpponent = m.rpsInviteFrom
		} else {
			m.rpsOpponent = m.rpsInvitedTo
		}
		m.rpsInviteFrom = ""
		m.rpsInvitedTo = ""
		m.appendLine(sysStyle.Render("RPS ready — /r /p /s to play"))

	case protocol.RPSResult:
		var p protocol.RPSResultPayload
		if jsonUnmarshal(frame.Payload, &p) {
			m.rpsOpponent = ""
			if p.Winner == nil {
				m.appendLine(sysStyle.Render("RPS: tie"))
			} else {
				m.appendLine(sysStyle.Render("RPS winner: " + *p.Winner))
			}
		}

	case protocol.FileTransferReq:
		var p protocol.FileTransferReqPayload
		if jsonUnmarshal(frame.Payload, &p) {
			m.pendingFileOffers = append(m.pendingFileOffers, fileOffer{sender: p.Sender, filename: p.Filename, checksum: p.Checksum})
			m.appendLine(sysStyle.Render(p.Sender + " offers file " + p.Filename + " — /a or /d"))
		}

	case protocol.FileTransferResp:
		var p protocol.FileTransferRespPayload
		if jsonUnmarshal(frame.Payload, &p) {
			if p.Status == "DECLINE" {
				m.appendLine(errorStyle.Render("file offer declined"))
			} else if p.Status == "ERROR" {
				m.appendLine(errorStyle.Render("file offer rejected: code " + strconv.Itoa(p.Code)))
			}
		}

	case protocol.FileTransferReady:
		var p protocol.FileTransferReadyPayload
		if jsonUnmarshal(frame.Payload, &p) {
			m.beginTransfer(p)
		}

	case protocol.Ping:
		m.sendFrame(protocol.Pong, struct{}{})

	case protocol.PongError:
		m.appendLine(errorStyle.Render("unexpected PONG_ERROR from server"))

	case protocol.Hangup:
		m.appendLine(errorStyle.Render("server closed the connection (liveness timeout)"))
		return tea.Quit

	case protocol.ByeResp:
		return tea.Quit

	case protocol.UnknownCommand:
		m.appendLine(errorStyle.Render("server rejected our last frame as unknown"))

	case protocol.ParseError:
		m.appendLine(errorStyle.Render("server rejected our last frame as malformed"))

	case protocol.BroadcastResp, protocol.PrivateMsgResp, protocol.RPSStartResp, protocol.RPSMoveResp:
		m.handleAckFrame(frame)
	}
	return nil
}

// handleAckFrame surfaces the ERROR case of the plain OK/ERROR acks; the OK
// case needs no user-visible feedback beyond the action the user already
// took.
func (m *model) handleAckFrame(frame protocol.Frame) {
	switch frame.Command {
	case protocol.RPSStartResp:
		var p protocol.RPSStartRespPayload
		if jsonUnmarshal(frame.Payload, &p) && p.Status == "ERROR" {
			m.rpsInvitedTo = ""
			m.appendLine(errorStyle.Render("RPS_START rejected: code " + strconv.Itoa(p.Code)))
		}
	default:
		var p protocol.StatusPayload
		if jsonUnmarshal(frame.Payload, &p) && p.Status == "ERROR" {
			m.appendLine(errorStyle.Render(string(frame.Command) + " rejected: code " + strconv.Itoa(p.Code)))
		}
	}
}

func enterErrorText(code int) string {
	switch code {
	case protocol.CodeEnterCollision:
		return "username already taken"
	case protocol.CodeEnterBadFormat:
		return "username must be 3-14 chars of letters, digits, or _"
	default:
		return "join failed"
	}
}

func renderName(username, me string) string {
	if username == me {
		return myNameStyle.Render(username)
	}
	return peerStyle.Render(username)
}

// ---------------------------------------------------------------------------
// File transfer (auxiliary port)
// ---------------------------------------------------------------------------

// beginTransfer dials the relay port and streams the file in its own
// goroutine, reporting back to the Bubbletea program when done.
func (m *model) beginTransfer(p protocol.FileTransferReadyPayload) {
	switch p.Type {
	case "s":
		path, ok := m.filePathMap[p.Filename]
		if !ok {
			m.appendLine(errorStyle.Render("no local path remembered for " + p.Filename))
			return
		}
		go m.runSend(p.UUID, path, p.Filename)
	case "r":
		go m.runReceive(p.UUID, p.Filename, p.Checksum)
	}
}

func (m *model) runSend(transferID, path, filename string) {
	conn, err := net.Dial("tcp", m.relayAddr)
	if err != nil {
		m.report("send " + filename + " failed: " + err.Error())
		return
	}
	defer conn.Close()

	if _, err := conn.Write(relayHeader(transferID, 's')); err != nil {
		m.report("send " + filename + " failed: " + err.Error())
		return
	}

	f, err := os.Open(path)
	if err != nil {
		m.report("send " + filename + " failed: " + err.Error())
		return
	}
	defer f.Close()

	if _, err := io.Copy(conn, f); err != nil {
		m.report("send " + filename + " failed: " + err.Error())
		return
	}
	m.report("sent " + filename)
}

func (m *model) runReceive(transferID, filename, expectedChecksum string) {
	conn, err := net.Dial("tcp", m.relayAddr)
	if err != nil {
		m.report("receive " + filename + " failed: " + err.Error())
		return
	}
	defer conn.Close()

	if _, err := conn.Write(relayHeader(transferID, 'r')); err != nil {
		m.report("receive " + filename + " failed: " + err.Error())
		return
	}

	destPath := uniquePath(m.downloadDir, filename)
	out, err := os.Create(destPath)
	if err != nil {
		m.report("receive " + filename + " failed: " + err.Error())
		return
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, h), conn); err != nil {
		out.Close()
		m.report("receive " + filename + " failed: " + err.Error())
		return
	}
	out.Close()

	sum := hex.EncodeToString(h.Sum(nil))
	if sum != expectedChecksum {
		m.report("checksum MISMATCH for " + filename + " (saved to " + destPath + " anyway)")
		return
	}
	m.report("received " + filename + " -> " + destPath)
}

// relayHeader builds the 37-byte auxiliary-port handshake: 36 ASCII UUID
// bytes plus one role byte.
func relayHeader(transferID string, role byte) []byte {
	out := make([]byte, 0, 37)
	out = append(out, transferID...)
	out = append(out, role)
	return out
}

// report delivers a transfer status line to the running program from a
// background goroutine.
func (m *model) report(text string) {
	if m.program != nil {
		m.program.Send(transferStatusMsg(text))
	}
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// uniquePath returns dir/name, or, if that already exists, the first free
// of dir/<stem> (1)<ext>, dir/<stem> (2)<ext>, … (e.g. "a (1).txt").
func uniquePath(dir, name string) string {
	base := filepath.Join(dir, name)
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return base
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

func (m *model) appendLine(line string) {
	m.lines = append(m.lines, line)
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m *model) View() string {
	switch m.state {
	case stateLogin:
		return m.viewLogin()
	case stateChat:
		return m.viewChat()
	}
	return ""
}

func (m *model) viewLogin() string {
	if m.width == 0 {
		return "\n  Connecting to server…"
	}
	title := titleStyle.Render("  Chat Terminal  ")
	form := lipgloss.JoinVertical(lipgloss.Left,
		title,
		"",
		m.usernameInput.View(),
		"",
		hintStyle.Render("Enter: join   Ctrl+C: quit"),
		"",
		errorStyle.Render(m.loginStatus),
	)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, form)
}

func (m *model) viewChat() string {
	if !m.ready {
		return "\n  Connecting…"
	}
	hdr := headerStyle.
		Width(m.width).
		Render(fmt.Sprintf(" %s  ·  PgUp/Dn: Scroll  /help: commands  Ctrl+C: Quit", m.me))

	footer := footerBorderStyle.
		Width(m.width - 2).
		Render(m.chatInput.View())

	return lipgloss.JoinVertical(lipgloss.Left, hdr, m.viewport.View(), footer)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func waitForFrame(ch <-chan protocol.Frame) tea.Cmd {
	return func() tea.Msg {
		frame, ok := <-ch
		if !ok {
			return disconnectedMsg{}
		}
		return serverFrameMsg(frame)
	}
}

func (m *model) sendFrame(cmd protocol.Command, payload any) {
	data, err := protocol.EncodeFrame(cmd, payload)
	if err != nil {
		return
	}
	m.conn.Write(data)
}

func jsonUnmarshal(raw []byte, v any) bool {
	return json.Unmarshal(raw, v) == nil
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	var (
		addr        string
		relayAddr   string
		downloadDir string
	)

	cmd := &cobra.Command{
		Use:   "chat-client",
		Short: "Connect to a chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer conn.Close()

			if downloadDir != "" {
				if err := os.MkdirAll(downloadDir, 0o755); err != nil {
					return fmt.Errorf("download dir: %w", err)
				}
			}

			frames := make(chan protocol.Frame, 64)
			go func() {
				defer close(frames)
				scanner := bufio.NewScanner(conn)
				scanner.Buffer(make([]byte, 4096), 1<<20)
				for scanner.Scan() {
					line := make([]byte, len(scanner.Bytes()))
					copy(line, scanner.Bytes())
					frame, err := protocol.ParseLine(line)
					if err != nil {
						continue
					}
					frames <- frame
				}
			}()

			m := newModel(conn, relayAddr, downloadDir, frames)
			p := tea.NewProgram(m, tea.WithAltScreen())
			m.program = p

			_, err = p.Run()
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:1337", "control-channel server address")
	cmd.Flags().StringVar(&relayAddr, "relay-addr", "localhost:1338", "file-transfer relay server address")
	cmd.Flags().StringVar(&downloadDir, "download-dir", ".", "directory to save received files in")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
