// Package chunkstream defines the ordered output vocabulary consumed by the
// chat rendering layer.
//
// A turn's stream is a sequence of chunks. Each text or reasoning part is
// introduced by a *Start chunk carrying an opaque part ID, extended by Delta
// chunks referencing that ID, and closed by exactly one *End chunk before a
// part of a different kind begins or the turn finishes. The final chunk of
// any stream is exactly one of Finish or Error.
package chunkstream
