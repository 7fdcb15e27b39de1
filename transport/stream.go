package transport

import (
	"log/slog"
	"sync"

	"github.com/bazelment/agentbridge/chunkstream"
)

// chunkWriter is the producer side of a turn's output stream. Emit,
// EmitTerminal, and Close are safe for concurrent use; Close is idempotent,
// and emits after Close are silently dropped so late bridge callbacks
// cannot panic the stream.
//
// The channel carries one slot more than the advertised buffer. That slot
// is reserved for the terminal chunk: a consumer that has fallen a full
// buffer behind loses mid-stream deltas, never the finish or error chunk.
type chunkWriter struct {
	logger   *slog.Logger
	ch       chan chunkstream.Chunk
	buffer   int
	mu       sync.Mutex
	closed   bool
	terminal bool
}

func newChunkWriter(buffer int, logger *slog.Logger) *chunkWriter {
	if buffer <= 0 {
		buffer = defaultChunkBuffer
	}
	return &chunkWriter{
		ch:     make(chan chunkstream.Chunk, buffer+1),
		buffer: buffer,
		logger: logger,
	}
}

// Emit queues one non-terminal chunk. If the consumer has fallen more than
// a full buffer behind, the chunk is dropped with a warning rather than
// blocking the bridge's delivery goroutine.
func (w *chunkWriter) Emit(c chunkstream.Chunk) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	// All sends happen under w.mu, so this length check keeps the last
	// slot free for EmitTerminal.
	if len(w.ch) >= w.buffer {
		w.logger.Warn("dropping chunk, stream buffer full", "kind", c.ChunkKind().String())
		return
	}
	w.ch <- c
}

// EmitAll queues chunks in order.
func (w *chunkWriter) EmitAll(chunks []chunkstream.Chunk) {
	for _, c := range chunks {
		w.Emit(c)
	}
}

// EmitTerminal queues the stream's terminal chunk into the reserved slot,
// which is guaranteed free, so the send never blocks and never drops. At
// most one terminal chunk is accepted per stream.
func (w *chunkWriter) EmitTerminal(c chunkstream.Chunk) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.terminal {
		return
	}
	w.terminal = true
	w.ch <- c
}

// Close terminates the stream. Safe to call more than once.
func (w *chunkWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.ch)
}

// Chunks returns the consumer side of the stream.
func (w *chunkWriter) Chunks() <-chan chunkstream.Chunk {
	return w.ch
}

// errorStream builds an already-terminated stream holding a single error
// chunk. Used for dispatch failures, where no listener is ever attached.
func errorStream(logger *slog.Logger, message string) <-chan chunkstream.Chunk {
	w := newChunkWriter(1, logger)
	w.EmitTerminal(chunkstream.ErrorChunk{Message: message})
	w.Close()
	return w.Chunks()
}
