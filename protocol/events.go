package protocol

// EventType discriminates between update-channel event kinds.
type EventType int

const (
	// EventTypeSessionUpdate carries visible or side-channel content.
	EventTypeSessionUpdate EventType = iota

	// EventTypePermissionRequest asks for tool-call approval.
	EventTypePermissionRequest

	// EventTypePromptComplete terminates a turn normally.
	EventTypePromptComplete

	// EventTypePromptError terminates a turn with a recoverable error.
	EventTypePromptError

	// EventTypeSessionError terminates a turn fatally.
	EventTypeSessionError
)

// Event is the interface for all update-channel events.
type Event interface {
	EventType() EventType
}

// SessionUpdateEvent wraps one session update.
type SessionUpdateEvent struct {
	Update SessionUpdate
}

// EventType returns the event type.
func (e SessionUpdateEvent) EventType() EventType { return EventTypeSessionUpdate }

// PermissionRequestEvent wraps one permission request.
type PermissionRequestEvent struct {
	Request PermissionRequest
}

// EventType returns the event type.
func (e PermissionRequestEvent) EventType() EventType { return EventTypePermissionRequest }

// PromptCompleteEvent signals normal turn completion.
type PromptCompleteEvent struct {
	StopReason string // "end_turn", "cancelled", "max_tokens"
}

// EventType returns the event type.
func (e PromptCompleteEvent) EventType() EventType { return EventTypePromptComplete }

// PromptErrorEvent signals a recoverable turn error. The turn still ends,
// and the message is surfaced as visible transcript text.
type PromptErrorEvent struct {
	Message string
}

// EventType returns the event type.
func (e PromptErrorEvent) EventType() EventType { return EventTypePromptError }

// SessionErrorEvent signals a fatal session error for the current turn.
type SessionErrorEvent struct {
	Message string
}

// EventType returns the event type.
func (e SessionErrorEvent) EventType() EventType { return EventTypeSessionError }
