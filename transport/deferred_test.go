package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazelment/agentbridge/chunkstream"
	"github.com/bazelment/agentbridge/protocol"
)

func TestDeferredForwardsWhenAttached(t *testing.T) {
	fb := newFakeBridge()
	d := NewDeferredTransport()
	d.SetTransport(NewTransport(fb, "s1"))

	stream := d.SendMessages(context.Background(), userMessages("hello"))
	fb.push(t, protocol.PromptCompleteEvent{})

	chunks := collect(t, stream)
	assert.Equal(t, chunkstream.KindFinish, chunks[len(chunks)-1].ChunkKind())
}

func TestDeferredQueuedSendReplaysOnAttach(t *testing.T) {
	fb := newFakeBridge()
	d := NewDeferredTransport()

	stream := d.SendMessages(context.Background(), userMessages("queued"))

	// Nothing dispatched while detached.
	fb.mu.Lock()
	require.Empty(t, fb.prompts)
	fb.mu.Unlock()

	d.SetTransport(NewTransport(fb, "s1"))

	// The replayed turn subscribes asynchronously; wait for its listener.
	require.Eventually(t, func() bool { return fb.subscribeCount() >= 2 }, time.Second, time.Millisecond)
	fb.push(t, protocol.PromptCompleteEvent{})

	chunks := collect(t, stream)
	assert.Equal(t, chunkstream.KindStart, chunks[0].ChunkKind())
	assert.Equal(t, chunkstream.KindFinish, chunks[len(chunks)-1].ChunkKind())

	fb.mu.Lock()
	defer fb.mu.Unlock()
	require.Equal(t, []string{"queued"}, fb.prompts)
}

func TestDeferredNewerSendSupersedesQueued(t *testing.T) {
	fb := newFakeBridge()
	d := NewDeferredTransport()

	first := d.SendMessages(context.Background(), userMessages("first"))
	second := d.SendMessages(context.Background(), userMessages("second"))

	// The first send is rejected immediately, before any attach.
	rejected := collect(t, first)
	require.Len(t, rejected, 1)
	assert.Equal(t, chunkstream.ErrorChunk{Message: ErrSuperseded.Error()}, rejected[0])

	d.SetTransport(NewTransport(fb, "s1"))
	require.Eventually(t, func() bool { return fb.subscribeCount() >= 2 }, time.Second, time.Millisecond)
	fb.push(t, protocol.PromptCompleteEvent{})
	collect(t, second)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	require.Equal(t, []string{"second"}, fb.prompts, "only the superseding send is dispatched")
}

func TestDeferredSetErrorRejectsQueuedAndFutureSends(t *testing.T) {
	d := NewDeferredTransport()

	queued := d.SendMessages(context.Background(), userMessages("queued"))
	d.SetError(errors.New("agent failed to start"))

	rejected := collect(t, queued)
	require.Len(t, rejected, 1)
	assert.Equal(t, chunkstream.ErrorChunk{Message: "agent failed to start"}, rejected[0])

	later := collect(t, d.SendMessages(context.Background(), userMessages("later")))
	require.Len(t, later, 1)
	assert.Equal(t, chunkstream.ErrorChunk{Message: "agent failed to start"}, later[0])
}

func TestDeferredSetErrorNilDefaultsToSessionUnavailable(t *testing.T) {
	d := NewDeferredTransport()
	d.SetError(nil)

	chunks := collect(t, d.SendMessages(context.Background(), userMessages("x")))
	require.Len(t, chunks, 1)
	assert.Equal(t, chunkstream.ErrorChunk{Message: ErrSessionUnavailable.Error()}, chunks[0])
}

func TestDeferredAbortWhileQueuedFinishesCooperatively(t *testing.T) {
	fb := newFakeBridge()
	d := NewDeferredTransport()

	ctx, cancel := context.WithCancel(context.Background())
	stream := d.SendMessages(ctx, userMessages("queued"))
	cancel()

	chunks := collect(t, stream)
	require.Len(t, chunks, 1)
	// Abort is cooperative closure, not a chat error.
	assert.Equal(t, chunkstream.FinishChunk{Reason: chunkstream.FinishReasonCancelled}, chunks[0])

	// The aborted send is gone; attaching replays nothing.
	d.SetTransport(NewTransport(fb, "s1"))
	time.Sleep(10 * time.Millisecond)
	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.Empty(t, fb.prompts)
}

func TestDeferredForwardsSettingsOnAttach(t *testing.T) {
	fb := newFakeBridge()
	d := NewDeferredTransport()

	var modes []string
	d.SetObservers(&Observers{OnCurrentMode: func(id string) { modes = append(modes, id) }})
	d.SetAutoApprove(true)

	tr := NewTransport(fb, "s1")
	// Side-channel metadata arrives before the UI attaches observers.
	fb.pushUpdate(t, protocol.SessionUpdate{Type: protocol.UpdateTypeCurrentMode, CurrentModeID: "plan"})

	d.SetTransport(tr)

	assert.True(t, tr.AutoApprove())
	assert.Equal(t, []string{"plan"}, modes, "buffered side-channel flushed through forwarded observers")
}

func TestDeferredSettingsForwardedWhileAttached(t *testing.T) {
	fb := newFakeBridge()
	d := NewDeferredTransport()
	tr := NewTransport(fb, "s1")
	d.SetTransport(tr)

	d.SetAutoApprove(true)
	assert.True(t, tr.AutoApprove())
	d.SetAutoApprove(false)
	assert.False(t, tr.AutoApprove())
}

func TestDeferredApproveForwards(t *testing.T) {
	fb := newFakeBridge()
	d := NewDeferredTransport()

	// Before attach: logged and dropped, never panics.
	d.Approve("t1", true)

	d.SetTransport(NewTransport(fb, "s1"))
	d.Approve("t2", false)

	require.Equal(t, []fakeApproval{{toolCallID: "t2", approved: false}}, fb.approvalList())
}

func TestDeferredDestroyRejectsQueuedAndTearsDownInner(t *testing.T) {
	fb := newFakeBridge()
	d := NewDeferredTransport()

	stream := d.SendMessages(context.Background(), userMessages("queued"))
	d.Destroy()

	chunks := collect(t, stream)
	require.Len(t, chunks, 1)
	assert.Equal(t, chunkstream.FinishChunk{Reason: chunkstream.FinishReasonCancelled}, chunks[0])

	d2 := NewDeferredTransport()
	d2.SetTransport(NewTransport(fb, "s2"))
	d2.Destroy()
	assert.Equal(t, 1, fb.detachCount())
}
