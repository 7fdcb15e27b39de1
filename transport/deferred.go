package transport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bazelment/agentbridge/chunkstream"
)

// DeferredTransport mirrors the Transport contract but can be constructed
// before the underlying agent session exists, so the UI can render a
// conversation and accept typed input while the (possibly slow) session
// handshake completes.
//
// While no transport is attached it queues at most one send: a newer send
// supersedes (rejects) the queued one, and cancelling the caller's context
// removes it. SetTransport forwards buffered observer settings and the
// auto-approve flag to the real transport, then replays the queued send
// against it; SetError rejects the queued send and poisons future ones.
type DeferredTransport struct {
	logger *slog.Logger

	mu             sync.Mutex
	inner          *Transport
	failure        error
	pending        *pendingSend
	observers      *Observers
	autoApprove    bool
	autoApproveSet bool
}

// pendingSend is the single queued turn: its input plus the stream already
// handed to the caller.
type pendingSend struct {
	ctx      context.Context
	messages []Message
	out      *chunkWriter
	stop     chan struct{} // releases the abort watcher
}

// NewDeferredTransport creates a wrapper with no transport attached.
func NewDeferredTransport(opts ...Option) *DeferredTransport {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger
	}
	return &DeferredTransport{logger: cfg.Logger}
}

// SendMessages forwards to the attached transport, or queues the turn until
// one attaches. A previously queued turn is rejected with ErrSuperseded.
func (d *DeferredTransport) SendMessages(ctx context.Context, messages []Message) <-chan chunkstream.Chunk {
	d.mu.Lock()
	if inner := d.inner; inner != nil {
		d.mu.Unlock()
		return inner.SendMessages(ctx, messages)
	}
	if d.failure != nil {
		failure := d.failure
		d.mu.Unlock()
		return errorStream(d.logger, failure.Error())
	}

	superseded := d.pending
	p := &pendingSend{
		ctx:      ctx,
		messages: messages,
		out:      newChunkWriter(defaultChunkBuffer, d.logger),
		stop:     make(chan struct{}),
	}
	d.pending = p
	d.mu.Unlock()

	if superseded != nil {
		d.reject(superseded, ErrSuperseded.Error())
	}

	go func() {
		select {
		case <-ctx.Done():
			d.abortPending(p)
		case <-p.stop:
		}
	}()

	return p.out.Chunks()
}

// SetTransport attaches the real transport, forwards buffered settings, and
// replays the queued send if any.
func (d *DeferredTransport) SetTransport(t *Transport) {
	d.mu.Lock()
	d.inner = t
	obs := d.observers
	autoApprove, autoApproveSet := d.autoApprove, d.autoApproveSet
	p := d.pending
	d.pending = nil
	d.mu.Unlock()

	if obs != nil {
		t.SetObservers(obs)
	}
	if autoApproveSet {
		t.SetAutoApprove(autoApprove)
	}

	if p == nil {
		return
	}
	close(p.stop)
	go func() {
		for c := range t.SendMessages(p.ctx, p.messages) {
			switch c.ChunkKind() {
			case chunkstream.KindFinish, chunkstream.KindError:
				p.out.EmitTerminal(c)
			default:
				p.out.Emit(c)
			}
		}
		p.out.Close()
	}()
}

// SetError marks session initialization as failed, rejecting the queued
// send and every later one.
func (d *DeferredTransport) SetError(err error) {
	if err == nil {
		err = ErrSessionUnavailable
	}
	d.mu.Lock()
	d.failure = err
	p := d.pending
	d.pending = nil
	d.mu.Unlock()

	if p != nil {
		d.reject(p, err.Error())
	}
}

// SetObservers buffers the observer set, forwarding it if a transport is
// attached.
func (d *DeferredTransport) SetObservers(obs *Observers) {
	d.mu.Lock()
	d.observers = obs
	inner := d.inner
	d.mu.Unlock()
	if inner != nil {
		inner.SetObservers(obs)
	}
}

// SetAutoApprove buffers the auto-approve flag, forwarding it if a
// transport is attached.
func (d *DeferredTransport) SetAutoApprove(enabled bool) {
	d.mu.Lock()
	d.autoApprove = enabled
	d.autoApproveSet = true
	inner := d.inner
	d.mu.Unlock()
	if inner != nil {
		inner.SetAutoApprove(enabled)
	}
}

// Approve forwards to the attached transport. Approvals cannot exist before
// a turn has run, so a detached wrapper only logs.
func (d *DeferredTransport) Approve(toolCallID string, approved bool) {
	d.mu.Lock()
	inner := d.inner
	d.mu.Unlock()
	if inner == nil {
		d.logger.Warn("approve before transport attached", "toolCallID", toolCallID)
		return
	}
	inner.Approve(toolCallID, approved)
}

// Destroy tears down the attached transport and rejects any queued send.
func (d *DeferredTransport) Destroy() {
	d.mu.Lock()
	inner := d.inner
	p := d.pending
	d.pending = nil
	d.mu.Unlock()

	if p != nil {
		close(p.stop)
		d.abortNow(p)
	}
	if inner != nil {
		inner.Destroy()
	}
}

// abortPending removes the queued send if it is still the current one.
// Abort is cooperative closure, not a chat error: the stream finishes.
func (d *DeferredTransport) abortPending(p *pendingSend) {
	d.mu.Lock()
	if d.pending != p {
		d.mu.Unlock()
		return
	}
	d.pending = nil
	d.mu.Unlock()
	d.abortNow(p)
}

func (d *DeferredTransport) abortNow(p *pendingSend) {
	p.out.EmitTerminal(chunkstream.FinishChunk{Reason: chunkstream.FinishReasonCancelled})
	p.out.Close()
}

// reject terminates a queued send's stream with an error chunk.
func (d *DeferredTransport) reject(p *pendingSend, message string) {
	close(p.stop)
	p.out.EmitTerminal(chunkstream.ErrorChunk{Message: message})
	p.out.Close()
}
