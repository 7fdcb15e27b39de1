// Package history persists outbound user messages as append-only JSONL
// files, one per conversation. The transport saves best-effort as a side
// effect of each turn; the CLI loads the file to show prior turns.
package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bazelment/agentbridge/transport"
)

// StoredMessage is the serializable representation of one saved message.
type StoredMessage struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Text           string    `json:"text"`
	FileNames      []string  `json:"file_names,omitempty"`
	SavedAt        time.Time `json:"saved_at"`
}

// FileStore is a file-backed message store. Conversations are stored as
// <baseDir>/<conversation-id>.jsonl, one message per line.
type FileStore struct {
	baseDir string
	mu      sync.Mutex
}

var _ transport.HistoryStore = (*FileStore)(nil)

// DefaultStoreDir returns the default store directory
// (~/.agentbridge/history).
func DefaultStoreDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".agentbridge", "history"), nil
}

// NewFileStore creates a store rooted at baseDir, or the default directory
// when baseDir is empty.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		var err error
		baseDir, err = DefaultStoreDir()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// SaveUserMessage appends one outbound message to the conversation's file.
func (s *FileStore) SaveUserMessage(_ context.Context, conversationID string, msg transport.Message) error {
	if conversationID == "" {
		return fmt.Errorf("conversation ID is empty")
	}
	if msg.ID == "" {
		return fmt.Errorf("message ID is empty")
	}

	rec := StoredMessage{
		MessageID:      msg.ID,
		ConversationID: conversationID,
		Role:           string(msg.Role),
		Text:           msg.Text,
		SavedAt:        time.Now().UTC(),
	}
	for _, f := range msg.Files {
		rec.FileNames = append(rec.FileNames, f.Name)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.conversationPath(conversationID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// Load returns a conversation's saved messages in save order. A missing
// file is an empty conversation, not an error.
func (s *FileStore) Load(conversationID string) ([]StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.conversationPath(conversationID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	var out []StoredMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec StoredMessage
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			// Skip corrupt lines rather than failing the whole load.
			continue
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	return out, nil
}

func (s *FileStore) conversationPath(conversationID string) string {
	return filepath.Join(s.baseDir, sanitizeName(conversationID)+".jsonl")
}

// sanitizeName sanitizes an ID for use as a file name.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, ":", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}
