package protocol

import "context"

// FileAttachment is an outbound file included with a prompt.
type FileAttachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"` // base64-encoded
	URI      string `json:"uri,omitempty"`
}

// PromptResult reports the outcome of a prompt dispatch. Dispatch is
// fire-and-forget: a successful result means the agent accepted the prompt,
// not that the turn completed.
type PromptResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// UpdateHandler receives one event at a time, in protocol order.
type UpdateHandler func(Event)

// Bridge is the host boundary that owns the agent processes. All calls are
// addressed by the bridge-scoped session key.
//
// Implementations must deliver update events for a session in the order the
// agent produced them, to the active subscriber. Detach must not terminate
// the remote agent process; killing a session is a separate host concern.
type Bridge interface {
	// SendPrompt dispatches one outbound message. Failure short-circuits
	// the turn before any listener attaches.
	SendPrompt(ctx context.Context, sessionKey, text string, files []FileAttachment) PromptResult

	// Approve resolves a pending permission request. One-way signal.
	Approve(sessionKey, toolCallID string, approved bool)

	// Cancel requests cooperative cancellation of the in-flight prompt.
	Cancel(sessionKey string)

	// Detach releases bridge-side listener resources for the session
	// without terminating the agent.
	Detach(sessionKey string)

	// SubscribeUpdates attaches the session's update handler and returns
	// an idempotent unsubscribe.
	SubscribeUpdates(sessionKey string, handler UpdateHandler) (unsubscribe func())
}
