// Package protocol defines the boundary contract between the streaming
// transport and the host bridge that owns the agent processes.
//
// The bridge delivers update events for a session in the order the agent
// produced them, to exactly one active subscriber per logical turn. Events
// are a closed tagged union: a SessionUpdate carrying visible or
// side-channel content, a permission request, or one of three turn
// terminators (prompt_complete, prompt_error, session_error).
//
// Agents predating the structured update envelope send flat shapes (plain
// text, a {"thinking": ...} object, or a bare JSON string). DecodeUpdate
// folds those into explicit legacy variants so downstream code can
// pattern-match exhaustively instead of probing object shape.
package protocol
