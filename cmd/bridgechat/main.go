// Command bridgechat is a terminal chat client for agent bridge sessions.
// It drives a scripted replay agent through the full transport pipeline:
// deferred startup, chunk streaming, tool approvals, side channels, and the
// per-session presence indicator.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/bazelment/agentbridge/history"
	"github.com/bazelment/agentbridge/protocol"
	"github.com/bazelment/agentbridge/replay"
	"github.com/bazelment/agentbridge/status"
	"github.com/bazelment/agentbridge/transport"
)

var (
	configPath  string
	scriptPath  string
	autoApprove bool
	noPace      bool
	historyDir  string
	logFile     string
)

var rootCmd = &cobra.Command{
	Use:   "bridgechat",
	Short: "Terminal chat client for agent bridge sessions",
	Long: `A chat TUI that streams an agent session as ordered chunks: text and
reasoning parts, tool calls with approval prompts, and a presence
indicator derived from the session's status.

The agent side is a replay script (JSONL), so the full pipeline can be
exercised without a live agent process.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (YAML)")
	rootCmd.Flags().StringVarP(&scriptPath, "script", "s", "", "Replay script (JSONL), overrides config")
	rootCmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Approve tool calls without asking")
	rootCmd.Flags().BoolVar(&noPace, "no-pace", false, "Ignore script delays")
	rootCmd.Flags().StringVar(&historyDir, "history-dir", "", "Message history directory")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "Write debug logs to this file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if scriptPath != "" {
		cfg.Script = scriptPath
	}
	if autoApprove {
		cfg.AutoApprove = true
	}
	if noPace {
		cfg.Pace = false
	}
	if historyDir != "" {
		cfg.HistoryDir = historyDir
	}
	if cfg.Script == "" {
		return fmt.Errorf("no replay script: pass --script or set script in the config")
	}

	logger, closeLog, err := buildLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	bridge, err := replay.Load(cfg.Script, cfg.Pace)
	if err != nil {
		return err
	}

	store, err := history.NewFileStore(cfg.HistoryDir)
	if err != nil {
		return err
	}

	stat := status.NewStore()
	deferred := transport.NewDeferredTransport(transport.WithLogger(logger))
	deferred.SetAutoApprove(cfg.AutoApprove)

	m := newModel(deferred)
	if prior, err := store.Load(cfg.ConversationID); err == nil {
		var texts []string
		for _, rec := range prior {
			if rec.Role == string(transport.RoleUser) {
				texts = append(texts, rec.Text)
			}
		}
		m.conv.seedUser(texts)
	} else {
		logger.Warn("failed to load history", "conversationID", cfg.ConversationID, "error", err)
	}
	p := tea.NewProgram(m, tea.WithAltScreen())

	unsubDot := stat.Subscribe(cfg.SessionKey, func(d status.Dot) {
		p.Send(dotMsg{dot: d})
	})
	defer unsubDot()

	deferred.SetObservers(&transport.Observers{
		OnCurrentMode: func(mode string) { p.Send(modeMsg{mode: mode}) },
		OnUsage:       func(u protocol.Usage) { p.Send(usageMsg{usage: u}) },
	})

	// Attach the real transport off the UI goroutine, the way a live bridge
	// would after its session handshake. Sends typed before this lands are
	// queued by the deferred wrapper and replayed.
	go func() {
		tr := transport.NewTransport(bridge, cfg.SessionKey,
			transport.WithStatusStore(stat),
			transport.WithHistory(store),
			transport.WithConversationID(cfg.ConversationID),
			transport.WithLogger(logger),
		)
		deferred.SetTransport(tr)
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run UI: %w", err)
	}
	return nil
}

func buildLogger() (*slog.Logger, func(), error) {
	if logFile == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() { f.Close() }, nil
}
