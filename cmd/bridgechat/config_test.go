package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "bridgechat", cfg.SessionKey)
	assert.Equal(t, "default", cfg.ConversationID)
	assert.True(t, cfg.Pace)
	assert.False(t, cfg.AutoApprove)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
session_key: work
conversation_id: conv-7
script: demo.jsonl
auto_approve: true
pace: false
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "work", cfg.SessionKey)
	assert.Equal(t, "conv-7", cfg.ConversationID)
	assert.Equal(t, "demo.jsonl", cfg.Script)
	assert.True(t, cfg.AutoApprove)
	assert.False(t, cfg.Pace)
}

func TestLoadConfigFillsEmptyKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("script: demo.jsonl\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "bridgechat", cfg.SessionKey)
	assert.Equal(t, "default", cfg.ConversationID)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("script: [unclosed"), 0644))
	_, err = LoadConfig(path)
	require.Error(t, err)
}
