package transport

import (
	"fmt"
	"strings"

	"github.com/bazelment/agentbridge/chunkstream"
	"github.com/bazelment/agentbridge/protocol"
)

// toolFailureOutput is shown when a failed tool call carried no content.
const toolFailureOutput = "Tool execution failed"

// partPhase is the mapper's current open-part state.
type partPhase int

const (
	phaseIdle partPhase = iota
	phaseTextOpen
	phaseReasoningOpen
)

// ChunkMapper converts session updates into ordered output chunks for one
// turn. At most one text part and one reasoning part are open at any time,
// and they are mutually exclusive: starting one implicitly closes the other.
//
// Not safe for concurrent use; updates for a session arrive one at a time.
type ChunkMapper struct {
	tails        map[string]*strings.Builder
	emittedInput map[string]bool
	partID       string
	phase        partPhase
	partSeq      int
}

// NewChunkMapper creates a mapper with no open parts.
func NewChunkMapper() *ChunkMapper {
	return &ChunkMapper{
		tails:        make(map[string]*strings.Builder),
		emittedInput: make(map[string]bool),
	}
}

// Map converts one update into zero or more chunks. Side-channel and
// unrecognized updates produce no chunks; malformed updates are dropped in
// favor of stream continuity.
func (m *ChunkMapper) Map(u protocol.SessionUpdate) []chunkstream.Chunk {
	switch u.Type {
	case protocol.UpdateTypeAgentMessage, protocol.UpdateTypeLegacyText:
		return m.mapText(u.Text())
	case protocol.UpdateTypeAgentThought, protocol.UpdateTypeLegacyThought:
		return m.mapReasoning(u.Text())
	case protocol.UpdateTypeToolCall:
		return m.mapToolCall(u)
	case protocol.UpdateTypeToolCallUpd:
		return m.mapToolCallUpdate(u)
	default:
		return nil
	}
}

// EndAll closes any open text or reasoning part. Its output, if non-empty,
// always precedes the turn's terminal chunk.
func (m *ChunkMapper) EndAll() []chunkstream.Chunk {
	return m.closeOpenPart()
}

// InputEmitted reports whether a tool-input chunk was already produced for
// the call ID this turn.
func (m *ChunkMapper) InputEmitted(toolCallID string) bool {
	return m.emittedInput[toolCallID]
}

// MarkInputEmitted records that a tool-input chunk for the call ID was
// emitted outside Map (permission-request synthesis). It reports false if
// one was already emitted.
func (m *ChunkMapper) MarkInputEmitted(toolCallID string) bool {
	if m.emittedInput[toolCallID] {
		return false
	}
	m.emittedInput[toolCallID] = true
	return true
}

func (m *ChunkMapper) mapText(text string) []chunkstream.Chunk {
	if text == "" {
		return nil
	}
	var out []chunkstream.Chunk
	if m.phase == phaseReasoningOpen {
		out = append(out, chunkstream.ReasoningEndChunk{ID: m.partID})
		m.phase = phaseIdle
	}
	if m.phase != phaseTextOpen {
		m.partID = m.nextPartID("text")
		m.phase = phaseTextOpen
		out = append(out, chunkstream.TextStartChunk{ID: m.partID})
	}
	return append(out, chunkstream.TextDeltaChunk{ID: m.partID, Delta: text})
}

func (m *ChunkMapper) mapReasoning(text string) []chunkstream.Chunk {
	if text == "" {
		return nil
	}
	var out []chunkstream.Chunk
	if m.phase == phaseTextOpen {
		out = append(out, chunkstream.TextEndChunk{ID: m.partID})
		m.phase = phaseIdle
	}
	if m.phase != phaseReasoningOpen {
		m.partID = m.nextPartID("reasoning")
		m.phase = phaseReasoningOpen
		out = append(out, chunkstream.ReasoningStartChunk{ID: m.partID})
	}
	return append(out, chunkstream.ReasoningDeltaChunk{ID: m.partID, Delta: text})
}

func (m *ChunkMapper) mapToolCall(u protocol.SessionUpdate) []chunkstream.Chunk {
	out := m.closeOpenPart()

	if m.emittedInput[u.ToolCallID] {
		return out
	}
	m.emittedInput[u.ToolCallID] = true

	input := u.Input
	if input == nil {
		// No structured input; show at least the call's title.
		input = map[string]any{"title": toolDisplayName(u.Title, u.Kind, u.ToolCallID)}
	}
	return append(out, chunkstream.ToolInputChunk{
		ToolCallID: u.ToolCallID,
		ToolName:   toolDisplayName(u.Title, u.Kind, u.ToolCallID),
		Input:      input,
	})
}

func (m *ChunkMapper) mapToolCallUpdate(u protocol.SessionUpdate) []chunkstream.Chunk {
	switch u.Status {
	case protocol.ToolStatusInProgress:
		// Live-tail incremental output without emitting a chunk.
		if text := contentText(u.Output); text != "" {
			tail := m.tails[u.ToolCallID]
			if tail == nil {
				tail = &strings.Builder{}
				m.tails[u.ToolCallID] = tail
			}
			tail.WriteString(text)
		}
		return nil

	case protocol.ToolStatusCompleted, protocol.ToolStatusFailed:
		output := contentText(u.Output)
		if output == "" {
			if tail := m.tails[u.ToolCallID]; tail != nil {
				output = tail.String()
			}
		}
		delete(m.tails, u.ToolCallID)

		isError := u.Status == protocol.ToolStatusFailed
		if output == "" && isError {
			output = toolFailureOutput
		}
		return []chunkstream.Chunk{chunkstream.ToolOutputChunk{
			ToolCallID: u.ToolCallID,
			Output:     output,
			IsError:    isError,
		}}
	}
	return nil
}

// ToolTail returns the accumulated in-progress output for a call ID, for
// live-tailing. Empty once the call resolves.
func (m *ChunkMapper) ToolTail(toolCallID string) string {
	if tail := m.tails[toolCallID]; tail != nil {
		return tail.String()
	}
	return ""
}

// closeOpenPart emits the end chunk for whichever part is open.
func (m *ChunkMapper) closeOpenPart() []chunkstream.Chunk {
	switch m.phase {
	case phaseTextOpen:
		m.phase = phaseIdle
		return []chunkstream.Chunk{chunkstream.TextEndChunk{ID: m.partID}}
	case phaseReasoningOpen:
		m.phase = phaseIdle
		return []chunkstream.Chunk{chunkstream.ReasoningEndChunk{ID: m.partID}}
	}
	return nil
}

func (m *ChunkMapper) nextPartID(kind string) string {
	m.partSeq++
	return fmt.Sprintf("%s-%d", kind, m.partSeq)
}

// toolDisplayName derives a display name from the call's title, kind, or
// the call ID prefix (agents commonly use "tool_name-timestamp" IDs).
func toolDisplayName(title, kind, toolCallID string) string {
	if title != "" {
		return title
	}
	if kind != "" {
		return kind
	}
	if idx := strings.LastIndex(toolCallID, "-"); idx > 0 {
		return toolCallID[:idx]
	}
	return toolCallID
}

// contentText concatenates the text blocks of a tool result.
func contentText(blocks []protocol.ContentBlock) string {
	var b strings.Builder
	for _, block := range blocks {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}
