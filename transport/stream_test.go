package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazelment/agentbridge/chunkstream"
)

func TestChunkWriterEmitAfterCloseIsDropped(t *testing.T) {
	w := newChunkWriter(4, nopLogger)
	w.Emit(chunkstream.StartChunk{})
	w.Close()
	w.Emit(chunkstream.FinishChunk{Reason: chunkstream.FinishReasonStop}) // must not panic

	chunks := collect(t, w.Chunks())
	require.Len(t, chunks, 1)
	assert.Equal(t, chunkstream.KindStart, chunks[0].ChunkKind())
}

func TestChunkWriterCloseIsIdempotent(t *testing.T) {
	w := newChunkWriter(1, nopLogger)
	w.Close()
	w.Close()
}

func TestChunkWriterDropsWhenBufferFull(t *testing.T) {
	w := newChunkWriter(2, nopLogger)
	w.Emit(chunkstream.TextDeltaChunk{ID: "text-1", Delta: "a"})
	w.Emit(chunkstream.TextDeltaChunk{ID: "text-1", Delta: "b"})
	w.Emit(chunkstream.TextDeltaChunk{ID: "text-1", Delta: "c"}) // dropped, never blocks
	w.Close()

	chunks := collect(t, w.Chunks())
	require.Len(t, chunks, 2)
}

func TestChunkWriterTerminalSurvivesFullBuffer(t *testing.T) {
	w := newChunkWriter(2, nopLogger)
	for i := 0; i < 5; i++ {
		w.Emit(chunkstream.TextDeltaChunk{ID: "text-1", Delta: "x"})
	}
	w.EmitTerminal(chunkstream.FinishChunk{Reason: chunkstream.FinishReasonStop})
	w.Close()

	chunks := collect(t, w.Chunks())
	require.Len(t, chunks, 3)
	last := chunks[len(chunks)-1]
	require.Equal(t, chunkstream.KindFinish, last.ChunkKind())
	assert.Equal(t, chunkstream.FinishReasonStop, last.(chunkstream.FinishChunk).Reason)
}

func TestChunkWriterAcceptsOneTerminalChunk(t *testing.T) {
	w := newChunkWriter(4, nopLogger)
	w.EmitTerminal(chunkstream.FinishChunk{Reason: chunkstream.FinishReasonStop})
	w.EmitTerminal(chunkstream.ErrorChunk{Message: "late"})
	w.Close()

	chunks := collect(t, w.Chunks())
	require.Len(t, chunks, 1)
	assert.Equal(t, chunkstream.KindFinish, chunks[0].ChunkKind())
}

func TestErrorStream(t *testing.T) {
	chunks := collect(t, errorStream(nopLogger, "no session"))
	require.Len(t, chunks, 1)
	assert.Equal(t, chunkstream.ErrorChunk{Message: "no session"}, chunks[0])
}
