package chunkstream

// Kind identifies the chunk category.
type Kind int

const (
	KindStart Kind = iota
	KindStartStep
	KindFinishStep
	KindTextStart
	KindTextDelta
	KindTextEnd
	KindReasoningStart
	KindReasoningDelta
	KindReasoningEnd
	KindToolInput
	KindToolOutput
	KindToolApproval
	KindError
	KindFinish
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindStartStep:
		return "start-step"
	case KindFinishStep:
		return "finish-step"
	case KindTextStart:
		return "text-start"
	case KindTextDelta:
		return "text-delta"
	case KindTextEnd:
		return "text-end"
	case KindReasoningStart:
		return "reasoning-start"
	case KindReasoningDelta:
		return "reasoning-delta"
	case KindReasoningEnd:
		return "reasoning-end"
	case KindToolInput:
		return "tool-input-available"
	case KindToolOutput:
		return "tool-output-available"
	case KindToolApproval:
		return "tool-approval-request"
	case KindError:
		return "error"
	case KindFinish:
		return "finish"
	default:
		return "unknown"
	}
}

// FinishReason explains why a turn's stream ended.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonError     FinishReason = "error"
	FinishReasonCancelled FinishReason = "cancelled"
)

// Chunk is the interface for all stream chunks.
type Chunk interface {
	ChunkKind() Kind
}

// StartChunk opens a turn's stream.
type StartChunk struct{}

// ChunkKind returns the chunk kind.
func (c StartChunk) ChunkKind() Kind { return KindStart }

// StartStepChunk opens a step within a turn.
type StartStepChunk struct{}

// ChunkKind returns the chunk kind.
func (c StartStepChunk) ChunkKind() Kind { return KindStartStep }

// FinishStepChunk closes the current step.
type FinishStepChunk struct{}

// ChunkKind returns the chunk kind.
func (c FinishStepChunk) ChunkKind() Kind { return KindFinishStep }

// TextStartChunk opens a text part.
type TextStartChunk struct {
	ID string
}

// ChunkKind returns the chunk kind.
func (c TextStartChunk) ChunkKind() Kind { return KindTextStart }

// TextDeltaChunk extends an open text part.
type TextDeltaChunk struct {
	ID    string
	Delta string
}

// ChunkKind returns the chunk kind.
func (c TextDeltaChunk) ChunkKind() Kind { return KindTextDelta }

// TextEndChunk closes a text part.
type TextEndChunk struct {
	ID string
}

// ChunkKind returns the chunk kind.
func (c TextEndChunk) ChunkKind() Kind { return KindTextEnd }

// ReasoningStartChunk opens a reasoning part.
type ReasoningStartChunk struct {
	ID string
}

// ChunkKind returns the chunk kind.
func (c ReasoningStartChunk) ChunkKind() Kind { return KindReasoningStart }

// ReasoningDeltaChunk extends an open reasoning part.
type ReasoningDeltaChunk struct {
	ID    string
	Delta string
}

// ChunkKind returns the chunk kind.
func (c ReasoningDeltaChunk) ChunkKind() Kind { return KindReasoningDelta }

// ReasoningEndChunk closes a reasoning part.
type ReasoningEndChunk struct {
	ID string
}

// ChunkKind returns the chunk kind.
func (c ReasoningEndChunk) ChunkKind() Kind { return KindReasoningEnd }

// ToolInputChunk announces a tool invocation with its input. Emitted at most
// once per tool call ID within a turn.
type ToolInputChunk struct {
	ToolCallID string
	ToolName   string
	Input      map[string]any
}

// ChunkKind returns the chunk kind.
func (c ToolInputChunk) ChunkKind() Kind { return KindToolInput }

// ToolOutputChunk carries a resolved tool call's output. Emitted exactly
// once per tool call, on completion or failure.
type ToolOutputChunk struct {
	ToolCallID string
	Output     string
	IsError    bool
}

// ChunkKind returns the chunk kind.
func (c ToolOutputChunk) ChunkKind() Kind { return KindToolOutput }

// ToolApprovalChunk asks the consumer to approve or reject a tool call.
type ToolApprovalChunk struct {
	ToolCallID string
}

// ChunkKind returns the chunk kind.
func (c ToolApprovalChunk) ChunkKind() Kind { return KindToolApproval }

// ErrorChunk is a terminal error. No further chunks follow it.
type ErrorChunk struct {
	Message string
}

// ChunkKind returns the chunk kind.
func (c ErrorChunk) ChunkKind() Kind { return KindError }

// FinishChunk is the normal terminal chunk of a turn.
type FinishChunk struct {
	Reason FinishReason
}

// ChunkKind returns the chunk kind.
func (c FinishChunk) ChunkKind() Kind { return KindFinish }
