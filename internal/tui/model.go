// Package tui renders the session's observable surface in the terminal and
// turns key presses into lifecycle requests. It holds no behavior of its
// own: every decision is made by the session manager.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/hiplay/internal/session"
	"github.com/MrWong99/hiplay/internal/transcript"
)

// Controller is the part of *session.Manager the UI drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	SetVoice(ctx context.Context, id string) error
	ClearTranscript(ctx context.Context) error

	Status() session.Status
	Transcript() []transcript.Entry
	Voices() []session.Voice
	Changes() <-chan struct{}
}

// errorTTL is how long an operation error stays on screen.
const errorTTL = 5 * time.Second

// Model is the root bubbletea model.
type Model struct {
	ctx context.Context
	ctl Controller

	status  session.Status
	entries []transcript.Entry
	voices  []session.Voice

	// opErr is the last failed key action. The session's own failure is on
	// status.Err.
	opErr string
	opSeq int

	width  int
	height int
	now    func() time.Time
}

// New returns a model bound to ctl. ctx bounds the lifecycle requests the
// model issues.
func New(ctx context.Context, ctl Controller) Model {
	return Model{
		ctx:     ctx,
		ctl:     ctl,
		status:  ctl.Status(),
		entries: ctl.Transcript(),
		voices:  ctl.Voices(),
		now:     time.Now,
	}
}

// Init starts listening for state changes.
func (m Model) Init() tea.Cmd {
	return waitForChange(m.ctl.Changes())
}

// ─── Commands ─────────────────────────────────────────────────────────────────

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}

func startCmd(ctx context.Context, ctl Controller) tea.Cmd {
	return func() tea.Msg {
		return resultMsg{op: "start", err: ctl.Start(ctx)}
	}
}

func stopCmd(ctl Controller) tea.Cmd {
	return func() tea.Msg {
		return resultMsg{op: "stop", err: ctl.Stop()}
	}
}

func setVoiceCmd(ctx context.Context, ctl Controller, id string) tea.Cmd {
	return func() tea.Msg {
		return resultMsg{op: "voice", err: ctl.SetVoice(ctx, id)}
	}
}

func clearCmd(ctx context.Context, ctl Controller) tea.Cmd {
	return func() tea.Msg {
		return resultMsg{op: "clear", err: ctl.ClearTranscript(ctx)}
	}
}

func clearErrorCmd(seq int) tea.Cmd {
	return tea.Tick(errorTTL, func(time.Time) tea.Msg {
		return clearErrorMsg{seq: seq}
	})
}

// ─── Update ───────────────────────────────────────────────────────────────────

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case changedMsg:
		m.refresh()
		return m, waitForChange(m.ctl.Changes())

	case resultMsg:
		m.refresh()
		if msg.err != nil {
			m.opSeq++
			m.opErr = fmt.Sprintf("%s: %v", msg.op, msg.err)
			return m, clearErrorCmd(m.opSeq)
		}
		return m, nil

	case clearErrorMsg:
		if msg.seq == m.opSeq {
			m.opErr = ""
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) refresh() {
	m.status = m.ctl.Status()
	m.entries = m.ctl.Transcript()
	m.voices = m.ctl.Voices()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		return m, tea.Quit

	case " ", "enter":
		if m.active() {
			return m, stopCmd(m.ctl)
		}
		return m, startCmd(m.ctx, m.ctl)

	case "v", "V":
		if id, ok := m.nextVoice(); ok {
			return m, setVoiceCmd(m.ctx, m.ctl, id)
		}
		return m, nil

	case "c", "C":
		return m, clearCmd(m.ctx, m.ctl)
	}
	return m, nil
}

// active reports whether the toggle key should stop rather than start.
func (m Model) active() bool {
	switch m.status.State {
	case session.StateConnecting, session.StateConnected:
		return true
	}
	return m.status.Reconnecting
}

// nextVoice returns the persona after the current one, wrapping around.
func (m Model) nextVoice() (string, bool) {
	if len(m.voices) == 0 {
		return "", false
	}
	for i, v := range m.voices {
		if v.ID == m.status.Voice.ID {
			return m.voices[(i+1)%len(m.voices)].ID, true
		}
	}
	return m.voices[0].ID, true
}

// ─── View ─────────────────────────────────────────────────────────────────────

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	sections := []string{
		m.renderHeader(),
		m.renderStatusBar(),
		dividerStyle.Render(strings.Repeat("─", m.width)),
		m.renderTranscript(),
		dividerStyle.Render(strings.Repeat("─", m.width)),
	}
	if banner := m.renderErrorBar(); banner != "" {
		sections = append(sections, banner)
	}
	sections = append(sections, m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("HIPLAY")
	name := m.status.Voice.Name
	if name == "" {
		name = m.status.Voice.ID
	}
	if name == "" {
		return title
	}
	return title + voiceStyle.Render("  "+name)
}

func (m Model) renderStatusBar() string {
	var dot string
	switch m.status.State {
	case session.StateConnected:
		dot = connectedDotStyle.Render("● LIVE")
	case session.StateConnecting:
		dot = connectingDotStyle.Render("◌ CONNECTING")
	case session.StateError:
		dot = errorStyle.Render("✕ ERROR")
	default:
		dot = idleDotStyle.Render("○ IDLE")
	}

	var parts []string
	parts = append(parts, dot)
	if m.status.State == session.StateConnected {
		parts = append(parts, renderLevelMeter(m.status.Level))
		if m.status.Speaking {
			parts = append(parts, speakingStyle.Render("♪ speaking"))
		}
	}
	if m.status.Reconnecting {
		wait := max(0, m.status.RetryAt.Sub(m.now()).Round(100*time.Millisecond))
		parts = append(parts, connectingDotStyle.Render(
			fmt.Sprintf("reconnecting (attempt %d, %s)", m.status.Attempt, wait)))
	}
	if n := len(m.status.Highlights); n > 0 {
		h := m.status.Highlights[n-1]
		parts = append(parts, dimStyle.Render(fmt.Sprintf("seen: %s", h.Label)))
	}
	return strings.Join(parts, "  ")
}

// renderLevelMeter draws the 0–100 microphone level as a bar.
func renderLevelMeter(level int) string {
	const barLen = 10
	filled := min(barLen, max(0, level*barLen/100))

	var b strings.Builder
	b.WriteString(dimStyle.Render("MIC "))
	for i := range barLen {
		switch {
		case i >= filled:
			b.WriteString(levelGrayStyle.Render("░"))
		case i >= barLen*6/10:
			b.WriteString(levelYellowStyle.Render("█"))
		default:
			b.WriteString(levelGreenStyle.Render("█"))
		}
	}
	return b.String()
}

func (m Model) transcriptHeight() int {
	if m.height == 0 {
		return 20
	}
	// header, status, two dividers, error bar, footer
	return max(3, m.height-6)
}

func (m Model) renderTranscript() string {
	height := m.transcriptHeight()
	const prefixWidth = 17 // "[15:04:05] you  " plus indent
	textWidth := max(10, m.width-prefixWidth-2)
	indent := strings.Repeat(" ", prefixWidth)

	var lines []string
	if len(m.entries) == 0 && m.status.StreamingText == "" {
		lines = append(lines, "", dimStyle.Render("  Press Space to start talking"))
	}
	for _, e := range m.entries {
		ts := timestampStyle.Render(e.Timestamp.Local().Format("[15:04:05]"))
		label := userLabelStyle.Render("you ")
		if e.Sender == transcript.SenderAI {
			label = aiLabelStyle.Render("ai  ")
		}
		wrapped := wrap(e.Text, textWidth)
		lines = append(lines, "  "+ts+" "+label+" "+wrapped[0])
		for _, wl := range wrapped[1:] {
			lines = append(lines, indent+wl)
		}
		for _, l := range e.Links {
			title := l.Title
			if title == "" {
				title = l.URI
			}
			lines = append(lines, indent+linkStyle.Render(truncate(title+" <"+l.URI+">", textWidth)))
		}
	}
	if text := m.status.StreamingText; text != "" {
		wrapped := wrap(text+"▌", textWidth)
		lines = append(lines, "  "+timestampStyle.Render(strings.Repeat(" ", 10))+" "+aiLabelStyle.Render("ai  ")+" "+streamingStyle.Render(wrapped[0]))
		for _, wl := range wrapped[1:] {
			lines = append(lines, indent+streamingStyle.Render(wl))
		}
	}

	// Follow the tail.
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderErrorBar() string {
	switch {
	case m.status.AuthRequired:
		return errorStyle.Render("Authorization required: ") +
			errorTextStyle.Render("check the API key (GEMINI_API_KEY) and press Space to retry")
	case m.status.State == session.StateError && m.status.Err != nil:
		return errorStyle.Render("Error: ") + errorTextStyle.Render(m.status.Err.Error())
	case m.opErr != "":
		return errorTextStyle.Render(m.opErr)
	}
	return ""
}

func (m Model) renderFooter() string {
	keys := []struct{ key, desc string }{
		{"space", "start/stop"},
		{"v", "voice"},
		{"c", "clear"},
		{"q", "quit"},
	}
	var parts []string
	for _, k := range keys {
		parts = append(parts, footerKeyStyle.Render(k.key)+" "+footerDescStyle.Render(k.desc))
	}
	return strings.Join(parts, "  ")
}

// wrap breaks text into lines of at most width cells.
func wrap(text string, width int) []string {
	out := lipgloss.NewStyle().Width(width).Render(text)
	lines := strings.Split(out, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return lines
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+1 > width {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}
