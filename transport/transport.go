package transport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bazelment/agentbridge/chunkstream"
	"github.com/bazelment/agentbridge/protocol"
	"github.com/bazelment/agentbridge/status"
)

// nopHandler is a slog.Handler that discards all output.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }

// nopLogger is a shared no-op logger instance.
var nopLogger = slog.New(nopHandler{})

// Transport drives conversational turns against one bridge session and
// emits the resulting chunk stream. At most one turn is active at a time.
//
// Between turns a persistent listener stays subscribed to the session's
// update channel so side-channel metadata pushed outside a turn (for
// example right after session creation) is not lost. When a turn starts the
// persistent listener is torn down and the turn-scoped listener absorbs its
// responsibilities; it is restarted on turn completion or error.
type Transport struct {
	bridge protocol.Bridge
	stat   *status.Store
	hist   HistoryStore
	logger *slog.Logger
	side   *sideChannel

	sessionKey     string
	conversationID string
	chunkBuffer    int

	mu              sync.Mutex
	autoApprove     bool
	lastStatus      status.SessionStatus
	pendingApproval bool
	persistentUnsub func()
	activeTurn      *turn
	dispatching     bool
	destroyed       bool
}

// NewTransport creates a transport for an existing bridge session and
// starts the persistent side-channel listener.
func NewTransport(bridge protocol.Bridge, sessionKey string, opts ...Option) *Transport {
	cfg := Config{Bridge: bridge, SessionKey: sessionKey}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Status == nil {
		cfg.Status = status.NewStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger
	}
	if cfg.ChunkBuffer <= 0 {
		cfg.ChunkBuffer = defaultChunkBuffer
	}

	t := &Transport{
		bridge:         cfg.Bridge,
		stat:           cfg.Status,
		hist:           cfg.History,
		logger:         cfg.Logger.With("sessionKey", sessionKey),
		side:           &sideChannel{},
		sessionKey:     sessionKey,
		conversationID: cfg.ConversationID,
		chunkBuffer:    cfg.ChunkBuffer,
		autoApprove:    cfg.AutoApprove,
	}
	t.setStatus(status.StatusReady, false)
	t.startPersistentListener()
	return t
}

// Status returns the shared status store.
func (t *Transport) Status() *status.Store {
	return t.stat
}

// SessionKey returns the bridge-scoped session key.
func (t *Transport) SessionKey() string {
	return t.sessionKey
}

// SetObservers attaches or replaces the side-channel observer set. Buffered
// side-channel updates are flushed through a non-nil set in arrival order.
func (t *Transport) SetObservers(obs *Observers) {
	t.side.SetObservers(obs)
}

// SetAutoApprove toggles automatic approval of permission requests.
func (t *Transport) SetAutoApprove(enabled bool) {
	t.mu.Lock()
	t.autoApprove = enabled
	t.mu.Unlock()
}

// AutoApprove reports whether automatic approval is enabled.
func (t *Transport) AutoApprove() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.autoApprove
}

// SendMessages runs one turn. It extracts the newest user message from the
// role-tagged list, persists it best-effort, dispatches it to the bridge,
// and returns the turn's output stream. The stream always terminates with
// exactly one finish or error chunk; cancelling ctx ends it cooperatively.
func (t *Transport) SendMessages(ctx context.Context, messages []Message) <-chan chunkstream.Chunk {
	// Check-and-claim in one critical section: the dispatching flag holds
	// the slot until beginTurn installs the turn, so two overlapping sends
	// cannot both pass the guard.
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return errorStream(t.logger, ErrTransportClosed.Error())
	}
	if t.activeTurn != nil || t.dispatching {
		t.mu.Unlock()
		return errorStream(t.logger, ErrTurnInFlight.Error())
	}
	t.dispatching = true
	t.mu.Unlock()

	msg, ok := newestUserMessage(messages)
	if !ok {
		t.clearDispatching()
		return errorStream(t.logger, ErrNoUserMessage.Error())
	}

	if t.hist != nil {
		if err := t.hist.SaveUserMessage(ctx, t.conversationID, msg); err != nil {
			t.logger.Warn("failed to persist user message", "messageID", msg.ID, "error", err)
		}
	}

	res := t.bridge.SendPrompt(ctx, t.sessionKey, msg.Text, msg.Files)
	if !res.Success {
		// Dispatch failed before any listener attached.
		t.logger.Warn("prompt dispatch failed", "error", res.Error)
		t.clearDispatching()
		return errorStream(t.logger, res.Error)
	}

	t.setStatus(status.StatusSubmitted, false)
	return t.beginTurn(ctx)
}

// Approve resolves a pending tool call. The pending-approval flag is
// cleared before the decision is forwarded to the bridge.
func (t *Transport) Approve(toolCallID string, approved bool) {
	t.mu.Lock()
	t.pendingApproval = false
	st := t.lastStatus
	t.mu.Unlock()
	t.stat.SetStatus(t.sessionKey, st, false)

	t.bridge.Approve(t.sessionKey, toolCallID, approved)
}

// Destroy detaches any active listener and stops the persistent one without
// terminating the underlying agent session, then releases the session's
// status entry. Safe to call more than once.
func (t *Transport) Destroy() {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	t.destroyed = true
	active := t.activeTurn
	t.mu.Unlock()

	if active != nil {
		active.abort(chunkstream.FinishReasonCancelled, false)
	}
	t.stopPersistentListener()
	t.bridge.Detach(t.sessionKey)
	t.stat.Remove(t.sessionKey)
}

// beginTurn swaps the persistent listener for a turn-scoped one, opens the
// output stream, and wires cancellation.
func (t *Transport) beginTurn(ctx context.Context) <-chan chunkstream.Chunk {
	tn := &turn{
		t:      t,
		out:    newChunkWriter(t.chunkBuffer, t.logger),
		mapper: NewChunkMapper(),
		done:   make(chan struct{}),
	}

	t.stopPersistentListener()

	t.mu.Lock()
	t.activeTurn = tn
	t.dispatching = false
	t.mu.Unlock()

	tn.unsub = t.bridge.SubscribeUpdates(t.sessionKey, tn.handle)
	tn.out.Emit(chunkstream.StartChunk{})
	tn.out.Emit(chunkstream.StartStepChunk{})

	go func() {
		select {
		case <-ctx.Done():
			tn.abort(chunkstream.FinishReasonCancelled, true)
		case <-tn.done:
		}
	}()

	return tn.out.Chunks()
}

func (t *Transport) startPersistentListener() {
	t.mu.Lock()
	if t.destroyed || t.persistentUnsub != nil {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	unsub := t.bridge.SubscribeUpdates(t.sessionKey, func(ev protocol.Event) {
		if su, ok := ev.(protocol.SessionUpdateEvent); ok {
			t.side.Dispatch(su.Update)
		}
	})

	t.mu.Lock()
	t.persistentUnsub = unsub
	t.mu.Unlock()
}

func (t *Transport) stopPersistentListener() {
	t.mu.Lock()
	unsub := t.persistentUnsub
	t.persistentUnsub = nil
	t.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (t *Transport) clearDispatching() {
	t.mu.Lock()
	t.dispatching = false
	t.mu.Unlock()
}

func (t *Transport) setStatus(st status.SessionStatus, pendingApprovals bool) {
	t.mu.Lock()
	t.lastStatus = st
	t.pendingApproval = pendingApprovals
	t.mu.Unlock()
	t.stat.SetStatus(t.sessionKey, st, pendingApprovals)
}

// markStreaming moves the status to streaming while preserving the
// pending-approvals flag.
func (t *Transport) markStreaming() {
	t.mu.Lock()
	pending := t.pendingApproval
	changed := t.lastStatus != status.StatusStreaming
	t.lastStatus = status.StatusStreaming
	t.mu.Unlock()
	if changed {
		t.stat.SetStatus(t.sessionKey, status.StatusStreaming, pending)
	}
}

// markPendingApproval raises the pending-approvals flag on the current status.
func (t *Transport) markPendingApproval() {
	t.mu.Lock()
	t.pendingApproval = true
	st := t.lastStatus
	t.mu.Unlock()
	t.stat.SetStatus(t.sessionKey, st, true)
}

// turnFinished clears the active turn and restarts the persistent listener.
func (t *Transport) turnFinished(tn *turn, st status.SessionStatus) {
	t.mu.Lock()
	if t.activeTurn == tn {
		t.activeTurn = nil
	}
	destroyed := t.destroyed
	t.mu.Unlock()

	t.setStatus(st, false)
	if !destroyed {
		t.startPersistentListener()
	}
}

// newestUserMessage returns the last user-role message of a turn's list.
func newestUserMessage(messages []Message) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i], true
		}
	}
	return Message{}, false
}

// promptErrorFallback is shown when a prompt error carried no message.
const promptErrorFallback = "Prompt failed"

// turn is the state of one in-flight turn: its stream, mapper, and
// listener. Event handling and abort share tn.mu, so cancellation from the
// watcher goroutine cannot interleave with the mapper mid-update. All
// terminal paths additionally funnel through once so completion, error, and
// cancellation cannot double-close the stream.
type turn struct {
	t      *Transport
	out    *chunkWriter
	mapper *ChunkMapper
	unsub  func()
	done   chan struct{}
	mu     sync.Mutex
	once   sync.Once
}

// handle is the turn-scoped update listener.
func (tn *turn) handle(ev protocol.Event) {
	tn.mu.Lock()
	defer tn.mu.Unlock()

	switch e := ev.(type) {
	case protocol.SessionUpdateEvent:
		tn.handleUpdate(e.Update)
	case protocol.PermissionRequestEvent:
		tn.handlePermission(e.Request)
	case protocol.PromptCompleteEvent:
		tn.finish(chunkstream.FinishReasonStop, status.StatusReady)
	case protocol.PromptErrorEvent:
		tn.finishWithErrorText(e.Message)
	case protocol.SessionErrorEvent:
		tn.fatal(e.Message)
	}
}

func (tn *turn) handleUpdate(u protocol.SessionUpdate) {
	// Side channels first; they produce no chunks.
	if tn.t.side.Dispatch(u) {
		return
	}
	chunks := tn.mapper.Map(u)
	if len(chunks) == 0 {
		return
	}
	tn.t.markStreaming()
	tn.out.EmitAll(chunks)
}

func (tn *turn) handlePermission(req protocol.PermissionRequest) {
	if tn.t.AutoApprove() {
		tn.t.bridge.Approve(tn.t.sessionKey, req.ToolCallID, true)
		return
	}

	tn.t.markPendingApproval()

	if tn.mapper.MarkInputEmitted(req.ToolCallID) {
		// No tool_call update preceded this request; synthesize the
		// input display from the request itself.
		input := req.Input
		if input == nil {
			input = map[string]any{"title": toolDisplayName(req.Title, req.Kind, req.ToolCallID)}
		}
		tn.out.EmitAll(tn.mapper.closeOpenPart())
		tn.out.Emit(chunkstream.ToolInputChunk{
			ToolCallID: req.ToolCallID,
			ToolName:   toolDisplayName(req.Title, req.Kind, req.ToolCallID),
			Input:      input,
		})
	}
	tn.out.Emit(chunkstream.ToolApprovalChunk{ToolCallID: req.ToolCallID})
}

// finish flushes open parts and emits the terminal finish chunk.
// Caller holds tn.mu.
func (tn *turn) finish(reason chunkstream.FinishReason, st status.SessionStatus) {
	tn.once.Do(func() {
		tn.out.EmitAll(tn.mapper.EndAll())
		tn.out.Emit(chunkstream.FinishStepChunk{})
		tn.out.EmitTerminal(chunkstream.FinishChunk{Reason: reason})
		tn.teardown(st)
	})
}

// finishWithErrorText appends the recoverable error as a visible text part,
// then finishes with an error reason. Caller holds tn.mu.
func (tn *turn) finishWithErrorText(message string) {
	tn.once.Do(func() {
		if message == "" {
			message = promptErrorFallback
		}
		tn.out.EmitAll(tn.mapper.EndAll())
		tn.out.EmitAll(tn.mapper.mapText(message))
		tn.out.EmitAll(tn.mapper.EndAll())
		tn.out.Emit(chunkstream.FinishStepChunk{})
		tn.out.EmitTerminal(chunkstream.FinishChunk{Reason: chunkstream.FinishReasonError})
		tn.teardown(status.StatusError)
	})
}

// fatal flushes open parts and terminates the stream with an error chunk.
// Caller holds tn.mu.
func (tn *turn) fatal(message string) {
	tn.once.Do(func() {
		tn.out.EmitAll(tn.mapper.EndAll())
		tn.out.EmitTerminal(chunkstream.ErrorChunk{Message: message})
		tn.teardown(status.StatusError)
	})
}

// abort ends the turn cooperatively. Called from outside the listener (the
// ctx watcher, Destroy), so it takes tn.mu itself. Safe to call after the
// stream already closed; the once guard makes it a no-op then.
func (tn *turn) abort(reason chunkstream.FinishReason, cancelBridge bool) {
	tn.mu.Lock()
	defer tn.mu.Unlock()
	tn.once.Do(func() {
		if cancelBridge {
			tn.t.bridge.Cancel(tn.t.sessionKey)
		}
		tn.out.EmitAll(tn.mapper.EndAll())
		tn.out.Emit(chunkstream.FinishStepChunk{})
		tn.out.EmitTerminal(chunkstream.FinishChunk{Reason: reason})
		tn.teardown(status.StatusReady)
	})
}

func (tn *turn) teardown(st status.SessionStatus) {
	tn.out.Close()
	if tn.unsub != nil {
		tn.unsub()
	}
	close(tn.done)
	tn.t.turnFinished(tn, st)
}
