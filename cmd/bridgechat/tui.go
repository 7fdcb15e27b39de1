package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bazelment/agentbridge/chunkstream"
	"github.com/bazelment/agentbridge/protocol"
	"github.com/bazelment/agentbridge/status"
	"github.com/bazelment/agentbridge/transport"
)

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	agentStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	reasoningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	toolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	approvalStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)

	dotStyles = map[status.DotColor]lipgloss.Style{
		status.ColorGray:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		status.ColorGreen: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		status.ColorAmber: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		status.ColorRed:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

// chunkMsg carries one stream chunk into the update loop.
type chunkMsg struct {
	chunk chunkstream.Chunk
	ch    <-chan chunkstream.Chunk
}

// streamDoneMsg signals that the current turn's stream closed.
type streamDoneMsg struct{}

// dotMsg carries a presence-indicator change.
type dotMsg struct {
	dot status.Dot
}

// modeMsg carries a side-channel mode change.
type modeMsg struct {
	mode string
}

// usageMsg carries side-channel token usage.
type usageMsg struct {
	usage protocol.Usage
}

// model is the chat TUI. It consumes the transport's chunk stream and keeps
// the transcript in a viewport.
type model struct {
	tr   *transport.DeferredTransport
	conv *conversation

	viewport  viewport.Model
	input     textinput.Model
	spinner   spinner.Model
	dot       status.Dot
	mode      string
	usage     *protocol.Usage
	streaming bool
	approval  string // pending tool call ID, "" when none
	turnStop  context.CancelFunc
	width     int
	height    int
	ready     bool
	quitting  bool
}

func newModel(tr *transport.DeferredTransport) model {
	ti := textinput.New()
	ti.Placeholder = "Send a message..."
	ti.Focus()
	ti.CharLimit = 4096

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	return model{
		tr:      tr,
		conv:    newConversation(),
		input:   ti,
		spinner: sp,
		dot:     status.Dot{Color: status.ColorGray, Style: status.StyleSolid},
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// waitForChunk reads the next chunk off the turn's stream.
func waitForChunk(ch <-chan chunkstream.Chunk) tea.Cmd {
	return func() tea.Msg {
		c, ok := <-ch
		if !ok {
			return streamDoneMsg{}
		}
		return chunkMsg{chunk: c, ch: ch}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		chromeHeight := 4 // input, status bar, borders
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chromeHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chromeHeight
		}
		m.input.Width = msg.Width - 4
		m.refreshTranscript()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case chunkMsg:
		m.conv.apply(msg.chunk)
		if ac, ok := msg.chunk.(chunkstream.ToolApprovalChunk); ok {
			m.approval = ac.ToolCallID
		}
		m.refreshTranscript()
		return m, waitForChunk(msg.ch)

	case streamDoneMsg:
		m.streaming = false
		m.turnStop = nil
		m.refreshTranscript()
		return m, nil

	case dotMsg:
		m.dot = msg.dot
		return m, nil

	case modeMsg:
		m.mode = msg.mode
		return m, nil

	case usageMsg:
		u := msg.usage
		m.usage = &u
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.quitting = true
		if m.turnStop != nil {
			m.turnStop()
		}
		m.tr.Destroy()
		return m, tea.Quit

	case tea.KeyEsc:
		if m.turnStop != nil {
			m.turnStop()
		}
		return m, nil

	case tea.KeyEnter:
		return m.submit()
	}

	// A pending approval captures y/n before the input does.
	if m.approval != "" {
		switch msg.String() {
		case "y", "Y":
			m.tr.Approve(m.approval, true)
			m.conv.resolveApproval(m.approval, true)
			m.approval = ""
			m.refreshTranscript()
			return m, nil
		case "n", "N":
			m.tr.Approve(m.approval, false)
			m.conv.resolveApproval(m.approval, false)
			m.approval = ""
			m.refreshTranscript()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.streaming {
		return m, nil
	}
	m.input.Reset()

	m.conv.addUserMessage(text)
	m.streaming = true
	m.approval = ""

	ctx, cancel := context.WithCancel(context.Background())
	m.turnStop = cancel

	ch := m.tr.SendMessages(ctx, m.conv.messages())
	m.refreshTranscript()
	return m, waitForChunk(ch)
}

func (m *model) refreshTranscript() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.conv.render(m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "starting..."
	}

	var b strings.Builder
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.approval != "" {
		b.WriteString(approvalStyle.Render(fmt.Sprintf("Allow tool call %s? [y/n]", m.approval)))
	} else {
		b.WriteString("> " + m.input.View())
	}
	b.WriteString("\n")
	b.WriteString(m.statusBar())
	return b.String()
}

func (m model) statusBar() string {
	var parts []string

	dotGlyph := "●"
	style := dotStyles[m.dot.Color]
	if m.dot.Style == status.StylePulsing {
		style = style.Blink(true)
	}
	parts = append(parts, style.Render(dotGlyph))

	if m.streaming {
		parts = append(parts, m.spinner.View()+" streaming")
	}
	if m.mode != "" {
		parts = append(parts, "mode:"+m.mode)
	}
	if m.usage != nil {
		parts = append(parts, fmt.Sprintf("tokens %d/%d", m.usage.InputTokens, m.usage.OutputTokens))
	}
	parts = append(parts, "esc: cancel  ctrl+c: quit")
	return statusBarStyle.Render(strings.Join(parts, "  "))
}

// conversation accumulates the transcript from stream chunks.
type conversation struct {
	blocks []block
	msgs   []transport.Message
	nextID int
}

// block is one rendered transcript section.
type block struct {
	kind       string // "user", "text", "reasoning", "tool", "error", "notice"
	text       string
	toolCallID string
	toolName   string
	toolInput  string
	toolOutput string
	toolErr    bool
	approval   string // "", "pending", "approved", "rejected"
}

func newConversation() *conversation {
	return &conversation{}
}

// messages returns the role-tagged message list for the next turn.
func (c *conversation) messages() []transport.Message {
	return append([]transport.Message(nil), c.msgs...)
}

// seedUser preloads prior user messages from persisted history so the
// transcript shows where the conversation left off.
func (c *conversation) seedUser(texts []string) {
	for _, text := range texts {
		c.addUserMessage(text)
	}
}

func (c *conversation) addUserMessage(text string) {
	c.nextID++
	c.msgs = append(c.msgs, transport.Message{
		ID:   fmt.Sprintf("msg-%d", c.nextID),
		Role: transport.RoleUser,
		Text: text,
	})
	c.blocks = append(c.blocks, block{kind: "user", text: text})
}

// apply folds one chunk into the transcript.
func (c *conversation) apply(ch chunkstream.Chunk) {
	switch ch := ch.(type) {
	case chunkstream.TextStartChunk:
		c.blocks = append(c.blocks, block{kind: "text"})
	case chunkstream.TextDeltaChunk:
		c.appendDelta("text", ch.Delta)
	case chunkstream.ReasoningStartChunk:
		c.blocks = append(c.blocks, block{kind: "reasoning"})
	case chunkstream.ReasoningDeltaChunk:
		c.appendDelta("reasoning", ch.Delta)
	case chunkstream.ToolInputChunk:
		c.blocks = append(c.blocks, block{
			kind:       "tool",
			toolCallID: ch.ToolCallID,
			toolName:   ch.ToolName,
			toolInput:  compactJSON(ch.Input),
		})
	case chunkstream.ToolOutputChunk:
		for i := len(c.blocks) - 1; i >= 0; i-- {
			if c.blocks[i].kind == "tool" && c.blocks[i].toolCallID == ch.ToolCallID {
				c.blocks[i].toolOutput = ch.Output
				c.blocks[i].toolErr = ch.IsError
				return
			}
		}
		c.blocks = append(c.blocks, block{
			kind:       "tool",
			toolCallID: ch.ToolCallID,
			toolOutput: ch.Output,
			toolErr:    ch.IsError,
		})
	case chunkstream.ToolApprovalChunk:
		for i := len(c.blocks) - 1; i >= 0; i-- {
			if c.blocks[i].kind == "tool" && c.blocks[i].toolCallID == ch.ToolCallID {
				c.blocks[i].approval = "pending"
				return
			}
		}
	case chunkstream.ErrorChunk:
		c.blocks = append(c.blocks, block{kind: "error", text: ch.Message})
	case chunkstream.FinishChunk:
		if ch.Reason == chunkstream.FinishReasonCancelled {
			c.blocks = append(c.blocks, block{kind: "notice", text: "(cancelled)"})
		}
		c.recordAssistantText()
	}
}

func (c *conversation) appendDelta(kind, delta string) {
	if n := len(c.blocks); n > 0 && c.blocks[n-1].kind == kind {
		c.blocks[n-1].text += delta
		return
	}
	c.blocks = append(c.blocks, block{kind: kind, text: delta})
}

// recordAssistantText appends the finished turn's visible text to the
// message list so the next send carries the full transcript.
func (c *conversation) recordAssistantText() {
	var parts []string
	for i := len(c.blocks) - 1; i >= 0; i-- {
		if c.blocks[i].kind == "user" {
			break
		}
		if c.blocks[i].kind == "text" && c.blocks[i].text != "" {
			parts = append([]string{c.blocks[i].text}, parts...)
		}
	}
	if len(parts) == 0 {
		return
	}
	c.nextID++
	c.msgs = append(c.msgs, transport.Message{
		ID:   fmt.Sprintf("msg-%d", c.nextID),
		Role: transport.RoleAssistant,
		Text: strings.Join(parts, "\n"),
	})
}

func (c *conversation) resolveApproval(toolCallID string, approved bool) {
	for i := len(c.blocks) - 1; i >= 0; i-- {
		if c.blocks[i].kind == "tool" && c.blocks[i].toolCallID == toolCallID {
			if approved {
				c.blocks[i].approval = "approved"
			} else {
				c.blocks[i].approval = "rejected"
			}
			return
		}
	}
}

func (c *conversation) render(width int) string {
	if width <= 0 {
		width = 80
	}
	var b strings.Builder
	for _, blk := range c.blocks {
		switch blk.kind {
		case "user":
			b.WriteString(userStyle.Render("You: ") + blk.text + "\n\n")
		case "text":
			b.WriteString(agentStyle.Render(blk.text) + "\n\n")
		case "reasoning":
			b.WriteString(reasoningStyle.Render(blk.text) + "\n\n")
		case "tool":
			b.WriteString(toolStyle.Render(renderTool(blk)) + "\n\n")
		case "error":
			b.WriteString(errorStyle.Render("error: "+blk.text) + "\n\n")
		case "notice":
			b.WriteString(statusBarStyle.Render(blk.text) + "\n\n")
		}
	}
	return lipgloss.NewStyle().Width(width).Render(strings.TrimRight(b.String(), "\n"))
}

func renderTool(blk block) string {
	var b strings.Builder
	b.WriteString("⚙ " + blk.toolName)
	if blk.toolInput != "" {
		b.WriteString(" " + blk.toolInput)
	}
	switch blk.approval {
	case "pending":
		b.WriteString("  [awaiting approval]")
	case "approved":
		b.WriteString("  [approved]")
	case "rejected":
		b.WriteString("  [rejected]")
	}
	if blk.toolOutput != "" {
		marker := "→"
		if blk.toolErr {
			marker = "✗"
		}
		b.WriteString("\n  " + marker + " " + truncate(blk.toolOutput, 500))
	}
	return b.String()
}

func compactJSON(v map[string]any) string {
	if len(v) == 0 {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return truncate(string(data), 200)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
