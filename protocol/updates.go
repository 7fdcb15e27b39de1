package protocol

import (
	"encoding/json"
	"strings"
)

// UpdateType discriminates session update kinds.
type UpdateType string

const (
	// Visible message stream.
	UpdateTypeAgentMessage UpdateType = "agent_message_chunk"
	UpdateTypeAgentThought UpdateType = "agent_thought_chunk"
	UpdateTypeToolCall     UpdateType = "tool_call"
	UpdateTypeToolCallUpd  UpdateType = "tool_call_update"

	// Side channels.
	UpdateTypeUsage             UpdateType = "usage_update"
	UpdateTypePlan              UpdateType = "plan"
	UpdateTypeAvailableCommands UpdateType = "available_commands_update"
	UpdateTypeCurrentMode       UpdateType = "current_mode_update"
	UpdateTypeConfigOption      UpdateType = "config_option_update"
	UpdateTypeSessionInfo       UpdateType = "session_info_update"

	// Legacy flat shapes, normalized by DecodeUpdate.
	UpdateTypeLegacyText    UpdateType = "legacy_text"
	UpdateTypeLegacyThought UpdateType = "legacy_thought"
)

// Tool call status values.
const (
	ToolStatusInProgress = "in_progress"
	ToolStatusCompleted  = "completed"
	ToolStatusFailed     = "failed"
)

// ContentBlock represents typed content inside updates.
// Discriminated by the Type field.
type ContentBlock struct {
	Type string `json:"type"` // "text", "image", "resource_link"
	Text string `json:"text,omitempty"`

	// image / resource fields
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"` // base64-encoded
	URI      string `json:"uri,omitempty"`
	Name     string `json:"name,omitempty"`
}

// NewTextContent creates a text content block.
func NewTextContent(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// SessionUpdate is a discriminated union of update kinds. The Type field
// determines which other fields are populated.
type SessionUpdate struct {
	Type UpdateType `json:"sessionUpdate"`

	// agent_message_chunk / agent_thought_chunk / legacy_* fields
	Content *ContentBlock `json:"content,omitempty"`

	// tool_call / tool_call_update fields
	ToolCallID string         `json:"toolCallId,omitempty"`
	Title      string         `json:"title,omitempty"`
	Kind       string         `json:"kind,omitempty"` // "edit", "shell", "fetch", ...
	Status     string         `json:"status,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	Output     []ContentBlock `json:"output,omitempty"`

	// plan fields
	Plan *Plan `json:"plan,omitempty"`

	// available_commands_update fields
	AvailableCommands []AvailableCommand `json:"availableCommands,omitempty"`

	// current_mode_update fields
	CurrentModeID string `json:"currentModeId,omitempty"`

	// config_option_update fields
	ConfigOption *ConfigOption `json:"configOption,omitempty"`

	// usage_update fields
	Usage *Usage `json:"usage,omitempty"`

	// session_info_update fields
	SessionInfo *SessionInfo `json:"sessionInfo,omitempty"`
}

// IsSideChannel reports whether the update carries metadata outside the
// visible message stream.
func (u *SessionUpdate) IsSideChannel() bool {
	switch u.Type {
	case UpdateTypeUsage, UpdateTypePlan, UpdateTypeAvailableCommands,
		UpdateTypeCurrentMode, UpdateTypeConfigOption, UpdateTypeSessionInfo:
		return true
	}
	return false
}

// Text returns the textual content of a message, thought, or legacy update.
func (u *SessionUpdate) Text() string {
	if u.Content != nil && u.Content.Type == "text" {
		return u.Content.Text
	}
	return ""
}

// Plan represents an agent's execution plan.
type Plan struct {
	Entries []PlanEntry `json:"entries"`
}

// PlanEntry is a single step in a plan.
type PlanEntry struct {
	Title    string `json:"title"`
	Status   string `json:"status,omitempty"`   // "pending", "in_progress", "completed"
	Priority string `json:"priority,omitempty"` // "high", "medium", "low"
}

// AvailableCommand describes a command the agent can execute.
type AvailableCommand struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
}

// ConfigOption describes a configurable session option reported by the agent.
type ConfigOption struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Value       string `json:"value,omitempty"`
}

// Usage tracks token consumption for a turn.
type Usage struct {
	InputTokens     int     `json:"inputTokens"`
	OutputTokens    int     `json:"outputTokens"`
	CacheReadTokens int     `json:"cacheReadTokens,omitempty"`
	CostUSD         float64 `json:"costUSD,omitempty"`
}

// SessionInfo carries session metadata pushed by the agent.
type SessionInfo struct {
	Title   string `json:"title,omitempty"`
	Model   string `json:"model,omitempty"`
	Version string `json:"version,omitempty"`
}

// PermissionRequest asks the consumer to approve or reject a tool call.
// It carries enough information to synthesize a tool-input display when no
// tool_call update was emitted for the call.
type PermissionRequest struct {
	ToolCallID string         `json:"toolCallId"`
	Title      string         `json:"title,omitempty"`
	Kind       string         `json:"kind,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
}

// legacyUpdate matches the flat shapes sent by agents predating the
// structured envelope.
type legacyUpdate struct {
	Text     string `json:"text"`
	Thinking string `json:"thinking"`
}

// DecodeUpdate parses a raw update payload. Structured envelopes decode
// directly; flat shapes (plain {"text": ...}, {"thinking": ...} objects, or
// a bare JSON string) are normalized into the explicit legacy variants.
// Payloads that match none of these return ok=false and are dropped by the
// caller in favor of stream continuity.
func DecodeUpdate(raw json.RawMessage) (SessionUpdate, bool) {
	var u SessionUpdate
	if err := json.Unmarshal(raw, &u); err == nil && u.Type != "" {
		return u, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return SessionUpdate{}, false
		}
		content := NewTextContent(s)
		return SessionUpdate{Type: UpdateTypeLegacyText, Content: &content}, true
	}

	var legacy legacyUpdate
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return SessionUpdate{}, false
	}
	switch {
	case legacy.Thinking != "":
		content := NewTextContent(legacy.Thinking)
		return SessionUpdate{Type: UpdateTypeLegacyThought, Content: &content}, true
	case legacy.Text != "":
		content := NewTextContent(legacy.Text)
		return SessionUpdate{Type: UpdateTypeLegacyText, Content: &content}, true
	}
	return SessionUpdate{}, false
}
