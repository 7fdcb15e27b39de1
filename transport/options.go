package transport

import (
	"context"
	"log/slog"

	"github.com/bazelment/agentbridge/protocol"
	"github.com/bazelment/agentbridge/status"
)

// defaultChunkBuffer is the output stream's channel buffer.
const defaultChunkBuffer = 256

// Role tags an outbound or transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a turn's role-tagged message list.
type Message struct {
	ID    string
	Role  Role
	Text  string
	Files []protocol.FileAttachment
}

// HistoryStore persists outbound user messages, keyed by message ID and
// conversation ID. Persistence is best-effort: failures are logged by the
// transport and never affect the stream.
type HistoryStore interface {
	SaveUserMessage(ctx context.Context, conversationID string, msg Message) error
}

// Config holds transport configuration.
type Config struct {
	Bridge         protocol.Bridge
	Status         *status.Store
	History        HistoryStore
	Logger         *slog.Logger
	SessionKey     string
	ConversationID string
	AutoApprove    bool
	ChunkBuffer    int
}

// Option configures a Transport.
type Option func(*Config)

// WithStatusStore shares a status store between transports. A fresh store
// is created when unset.
func WithStatusStore(s *status.Store) Option {
	return func(c *Config) { c.Status = s }
}

// WithHistory sets the persistence collaborator for outbound messages.
func WithHistory(h HistoryStore) Option {
	return func(c *Config) { c.History = h }
}

// WithLogger sets the logger. Logging is disabled when unset.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithConversationID sets the application-scoped conversation ID used for
// persistence.
func WithConversationID(id string) Option {
	return func(c *Config) { c.ConversationID = id }
}

// WithAutoApprove enables automatic approval of permission requests.
func WithAutoApprove(enabled bool) Option {
	return func(c *Config) { c.AutoApprove = enabled }
}

// WithChunkBuffer sets the output stream's channel buffer size.
func WithChunkBuffer(n int) Option {
	return func(c *Config) { c.ChunkBuffer = n }
}
