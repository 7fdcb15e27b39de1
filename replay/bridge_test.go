package replay

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazelment/agentbridge/protocol"
)

// eventSink collects delivered events and signals when the terminal one
// arrives.
type eventSink struct {
	mu     sync.Mutex
	events []protocol.Event
	done   chan struct{}
}

func newEventSink() *eventSink {
	return &eventSink{done: make(chan struct{})}
}

func (s *eventSink) handle(ev protocol.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	switch ev.EventType() {
	case protocol.EventTypePromptComplete, protocol.EventTypePromptError, protocol.EventTypeSessionError:
		close(s.done)
	}
}

func (s *eventSink) wait(t *testing.T) []protocol.Event {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		t.Fatal("script did not reach a terminal event")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Event(nil), s.events...)
}

const sampleScript = `
# greeting demo
{"event":"session_update","update":{"sessionUpdate":"agent_thought_chunk","content":{"type":"text","text":"thinking"}}}
{"event":"session_update","update":{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"Hello"}}}

{"event":"permission_request","request":{"toolCallId":"write_file-1","title":"Write out.txt"}}
{"event":"prompt_complete","stopReason":"end_turn"}
`

func TestLoadParsesScriptSkippingBlanksAndComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(sampleScript), 0644))

	b, err := Load(path, false)
	require.NoError(t, err)
	require.Len(t, b.lines, 4)
	assert.Equal(t, "session_update", b.lines[0].Event)
	assert.Equal(t, "prompt_complete", b.lines[3].Event)
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"event\":\"prompt_complete\"}\nnot json\n"), 0644))

	_, err := Load(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.jsonl"), false)
	require.Error(t, err)
}

func TestReplayDeliversEventsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(sampleScript), 0644))
	b, err := Load(path, false)
	require.NoError(t, err)

	sink := newEventSink()
	unsub := b.SubscribeUpdates("s1", sink.handle)
	defer unsub()

	res := b.SendPrompt(context.Background(), "s1", "hi", nil)
	require.True(t, res.Success)

	events := sink.wait(t)
	require.Len(t, events, 4)

	first := events[0].(protocol.SessionUpdateEvent)
	assert.Equal(t, protocol.UpdateTypeAgentThought, first.Update.Type)
	second := events[1].(protocol.SessionUpdateEvent)
	assert.Equal(t, "Hello", second.Update.Text())
	perm := events[2].(protocol.PermissionRequestEvent)
	assert.Equal(t, "write_file-1", perm.Request.ToolCallID)
	complete := events[3].(protocol.PromptCompleteEvent)
	assert.Equal(t, "end_turn", complete.StopReason)

	assert.Equal(t, []string{"hi"}, b.Prompts())
}

func TestReplayWaitsForLateSubscriber(t *testing.T) {
	b := New([]ScriptLine{{Event: "prompt_complete"}}, false)

	res := b.SendPrompt(context.Background(), "s1", "hi", nil)
	require.True(t, res.Success)

	// Subscribe after dispatch, as the transport does.
	sink := newEventSink()
	defer b.SubscribeUpdates("s1", sink.handle)()

	events := sink.wait(t)
	require.Len(t, events, 1)
}

func TestReplayCancelStopsDelivery(t *testing.T) {
	b := New([]ScriptLine{
		{Event: "session_update", Update: []byte(`{"sessionUpdate":"agent_message_chunk","content":{"type":"text","text":"a"}}`), DelayMs: 20},
		{Event: "prompt_complete", DelayMs: 20},
	}, true)

	var mu sync.Mutex
	var got []protocol.Event
	defer b.SubscribeUpdates("s1", func(ev protocol.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})()

	b.SendPrompt(context.Background(), "s1", "hi", nil)
	b.Cancel("s1")

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, got, "no events after cancel")
}

func TestReplayContextCancellationStopsDelivery(t *testing.T) {
	b := New([]ScriptLine{{Event: "prompt_complete", DelayMs: 50}}, true)

	var mu sync.Mutex
	var got []protocol.Event
	defer b.SubscribeUpdates("s1", func(ev protocol.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})()

	ctx, cancel := context.WithCancel(context.Background())
	b.SendPrompt(ctx, "s1", "hi", nil)
	cancel()

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, got)
}

func TestReplaySkipsUndecodableLines(t *testing.T) {
	b := New([]ScriptLine{
		{Event: "session_update", Update: []byte(`{}`)}, // no discriminator
		{Event: "permission_request"},                   // no request payload
		{Event: "unknown_event"},
		{Event: "prompt_complete"},
	}, false)

	sink := newEventSink()
	defer b.SubscribeUpdates("s1", sink.handle)()

	b.SendPrompt(context.Background(), "s1", "hi", nil)
	events := sink.wait(t)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.EventTypePromptComplete, events[0].EventType())
}

func TestReplayRecordsApprovalsAndDetach(t *testing.T) {
	b := New(nil, false)

	b.Approve("s1", "t1", true)
	b.Approve("s1", "t2", false)
	b.Detach("s1")

	require.Equal(t, []Approval{
		{ToolCallID: "t1", Approved: true},
		{ToolCallID: "t2", Approved: false},
	}, b.Approvals())

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.True(t, b.detached)
}

func TestReplayStaleUnsubscribeKeepsNewerHandler(t *testing.T) {
	b := New(nil, false)

	unsubOld := b.SubscribeUpdates("s1", func(protocol.Event) {})
	b.SubscribeUpdates("s1", func(protocol.Event) {})

	unsubOld()

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.NotNil(t, b.handler, "stale unsubscribe must not clear the active handler")
}
