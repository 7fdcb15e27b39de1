package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the bridgechat configuration file, YAML-encoded.
type Config struct {
	// SessionKey addresses the bridge session. Generated when empty.
	SessionKey string `yaml:"session_key"`

	// ConversationID keys the persisted message history.
	ConversationID string `yaml:"conversation_id"`

	// Script is the path of the replay script driving the demo agent.
	Script string `yaml:"script"`

	// AutoApprove resolves tool permission requests without asking.
	AutoApprove bool `yaml:"auto_approve"`

	// HistoryDir overrides the message history location
	// (default ~/.agentbridge/history).
	HistoryDir string `yaml:"history_dir"`

	// Pace honors per-line delays in the replay script, so streaming looks
	// like a live agent.
	Pace bool `yaml:"pace"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		SessionKey:     "bridgechat",
		ConversationID: "default",
		Pace:           true,
	}
}

// LoadConfig reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.SessionKey == "" {
		cfg.SessionKey = "bridgechat"
	}
	if cfg.ConversationID == "" {
		cfg.ConversationID = "default"
	}
	return cfg, nil
}
