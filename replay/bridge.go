// Package replay provides a protocol.Bridge that replays a recorded script
// of update events, for demos and integration-style tests that need a
// deterministic agent without spawning one.
//
// Scripts are JSONL: one event per line, optionally paced.
//
//	{"event":"session_update","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"Hi"}},"delayMs":40}
//	{"event":"permission_request","request":{"toolCallId":"write_file-1"}}
//	{"event":"prompt_complete","stopReason":"end_turn"}
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bazelment/agentbridge/protocol"
)

// ScriptLine is one recorded event.
type ScriptLine struct {
	Event      string                      `json:"event"` // "session_update", "permission_request", "prompt_complete", "prompt_error", "session_error"
	Update     json.RawMessage             `json:"update,omitempty"`
	Request    *protocol.PermissionRequest `json:"request,omitempty"`
	StopReason string                      `json:"stopReason,omitempty"`
	Message    string                      `json:"message,omitempty"`
	DelayMs    int                         `json:"delayMs,omitempty"`
}

// Approval records one Approve call for inspection.
type Approval struct {
	ToolCallID string
	Approved   bool
}

// Bridge replays a script to the session's subscriber on each prompt.
// It implements protocol.Bridge for a single session key.
type Bridge struct {
	lines []ScriptLine
	pace  bool

	mu        sync.Mutex
	handler   protocol.UpdateHandler
	handlerID int
	prompts   []string
	approvals []Approval
	cancelled bool
	detached  bool
}

// New creates a bridge that replays the given lines. With pace enabled,
// per-line delays are honored; otherwise delivery is immediate.
func New(lines []ScriptLine, pace bool) *Bridge {
	return &Bridge{lines: lines, pace: pace}
}

// Load reads a JSONL script file.
func Load(path string, pace bool) (*Bridge, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer f.Close()

	var lines []ScriptLine
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var line ScriptLine
		if err := json.Unmarshal([]byte(text), &line); err != nil {
			return nil, fmt.Errorf("failed to parse script line %d: %w", lineNo, err)
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return New(lines, pace), nil
}

// SendPrompt accepts the prompt and starts replaying the script to the
// current subscriber in a background goroutine.
func (b *Bridge) SendPrompt(ctx context.Context, _ string, text string, _ []protocol.FileAttachment) protocol.PromptResult {
	b.mu.Lock()
	b.prompts = append(b.prompts, text)
	b.cancelled = false
	b.mu.Unlock()

	go b.run(ctx)
	return protocol.PromptResult{Success: true}
}

// Approve records the approval decision.
func (b *Bridge) Approve(_ string, toolCallID string, approved bool) {
	b.mu.Lock()
	b.approvals = append(b.approvals, Approval{ToolCallID: toolCallID, Approved: approved})
	b.mu.Unlock()
}

// Cancel stops the replay.
func (b *Bridge) Cancel(_ string) {
	b.mu.Lock()
	b.cancelled = true
	b.mu.Unlock()
}

// Detach records detachment. The script is not an agent process; there is
// nothing to keep alive.
func (b *Bridge) Detach(_ string) {
	b.mu.Lock()
	b.detached = true
	b.mu.Unlock()
}

// SubscribeUpdates attaches the handler. Only one subscriber is active at a
// time, matching the transport's listener discipline.
func (b *Bridge) SubscribeUpdates(_ string, handler protocol.UpdateHandler) func() {
	b.mu.Lock()
	b.handler = handler
	b.handlerID++
	id := b.handlerID
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.handlerID == id {
				b.handler = nil
			}
			b.mu.Unlock()
		})
	}
}

// Prompts returns the prompts sent so far.
func (b *Bridge) Prompts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.prompts...)
}

// Approvals returns the approval decisions recorded so far.
func (b *Bridge) Approvals() []Approval {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Approval(nil), b.approvals...)
}

// run delivers script lines in order to the current subscriber. The
// transport subscribes immediately after SendPrompt returns; run waits
// briefly for that listener to appear.
func (b *Bridge) run(ctx context.Context) {
	for _, line := range b.lines {
		if b.pace && line.DelayMs > 0 {
			select {
			case <-time.After(time.Duration(line.DelayMs) * time.Millisecond):
			case <-ctx.Done():
				return
			}
		}

		handler := b.waitForHandler(ctx)
		if handler == nil {
			return
		}

		b.mu.Lock()
		cancelled := b.cancelled
		b.mu.Unlock()
		if cancelled {
			return
		}

		ev, ok := decodeLine(line)
		if !ok {
			continue
		}
		handler(ev)
	}
}

func (b *Bridge) waitForHandler(ctx context.Context) protocol.UpdateHandler {
	for {
		b.mu.Lock()
		handler := b.handler
		b.mu.Unlock()
		if handler != nil {
			return handler
		}
		select {
		case <-time.After(time.Millisecond):
		case <-ctx.Done():
			return nil
		}
	}
}

func decodeLine(line ScriptLine) (protocol.Event, bool) {
	switch line.Event {
	case "session_update":
		update, ok := protocol.DecodeUpdate(line.Update)
		if !ok {
			return nil, false
		}
		return protocol.SessionUpdateEvent{Update: update}, true
	case "permission_request":
		if line.Request == nil {
			return nil, false
		}
		return protocol.PermissionRequestEvent{Request: *line.Request}, true
	case "prompt_complete":
		return protocol.PromptCompleteEvent{StopReason: line.StopReason}, true
	case "prompt_error":
		return protocol.PromptErrorEvent{Message: line.Message}, true
	case "session_error":
		return protocol.SessionErrorEvent{Message: line.Message}, true
	}
	return nil, false
}
