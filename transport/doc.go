// Package transport orchestrates one conversational turn against a host
// bridge session and emits a strictly-ordered chunk stream for the chat
// rendering layer.
//
// The pieces, leaves first:
//
//   - ChunkMapper: a per-turn state machine converting one session update
//     into zero or more ordered chunks, enforcing mutual exclusion between
//     open text and reasoning parts and tracking open tool calls.
//   - side channel: classifies updates that are not part of the visible
//     message stream (usage, plan, commands, mode, config, session info) and
//     dispatches them to registered observers, buffering until observers
//     exist.
//   - Transport: sends the outbound message, swaps the persistent
//     side-channel listener for a turn-scoped one, feeds updates through the
//     mapper and side channel, and tears down on completion, error, or
//     cancellation.
//   - DeferredTransport: same contract as Transport, constructible before
//     the agent session exists; queues at most one send and replays it when
//     the real transport attaches.
//
// Exactly one listener is active per session at a time. Cancellation is
// cooperative and idempotent: a stream always ends with exactly one finish
// or error chunk, and closing twice is a no-op.
package transport
