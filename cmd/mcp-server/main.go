// MCP opencode-teams server.
// Stdio transport for the team coordination tool-call protocol.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/opencode-teams/internal/inbox"
	"github.com/jaakkos/opencode-teams/internal/journal"
	"github.com/jaakkos/opencode-teams/internal/policy"
	"github.com/jaakkos/opencode-teams/internal/spawn"
	"github.com/jaakkos/opencode-teams/internal/store"
	"github.com/jaakkos/opencode-teams/internal/task"
	"github.com/jaakkos/opencode-teams/internal/team"
	"github.com/jaakkos/opencode-teams/internal/tmux"
	"github.com/jaakkos/opencode-teams/internal/tools/teams"
)

// Version is set by -ldflags at build time.
var Version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "status":
			runStatusCommand()
			return
		case "--version", "-v", "version":
			fmt.Println("opencode-teams " + Version)
			return
		}
	}

	cfg := policy.Load(func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, "[opencode-teams] "+format+"\n", args...)
	})
	logger := newLogger(cfg)
	logger.Println("Starting opencode-teams server...")

	st := store.New(cfg.RootDir)
	logger.Printf("State root: %s", st.Root())

	var jr *journal.Journal
	if cfg.JournalEnabled {
		var err error
		jr, err = journal.Open(cfg.JournalPath())
		if err != nil {
			logger.Printf("Warning: journal disabled: %v", err)
			jr = nil
		}
	}

	registry := team.NewRegistry(st)
	engine := task.NewEngine(st)
	inboxes := inbox.New(st, registry)
	spawner := spawn.New(st, registry, inboxes, engine, tmux.Real{}, cfg, logger)
	coord := teams.NewCoordinator(st, registry, engine, inboxes, spawner, jr, cfg, logger)

	hooks := &server.Hooks{}
	hooks.AddAfterCallTool(func(ctx context.Context, id any, message *mcp.CallToolRequest, result *mcp.CallToolResult) {
		if message != nil {
			logger.Printf("Tool call: %s", message.Params.Name)
		}
	})

	mcpServer := server.NewMCPServer(
		"opencode-teams",
		Version,
		server.WithInstructions("Team coordination server: team membership, shared tasks with dependency ordering, per-agent inboxes, and teammate process lifecycle. Create a team with team_create, then spawn teammates and coordinate through tasks and messages."),
		server.WithHooks(hooks),
	)
	teams.Register(mcpServer, coord, Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Keep running when daemonized (nohup, launchd, etc.)
	signal.Ignore(syscall.SIGHUP)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	logger.Println("Stdio ready")
	stdioSrv := server.NewStdioServer(mcpServer)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Printf("Stdio server stopped: %v", err)
	}

	if err := jr.Close(); err != nil {
		logger.Printf("Warning: close journal: %v", err)
	}
	logger.Println("Server stopped")
}

// newLogger builds the server logger from the policy config. The configured
// log file is the primary sink; stderr is added for interactive runs, and
// becomes the fallback when no file can be opened. A supervisor that
// redirects stderr into the same file therefore never sees doubled lines.
func newLogger(cfg *policy.Config) *log.Logger {
	sinks := make([]io.Writer, 0, 2)
	if f := openLogFile(cfg.LogFile); f != nil {
		sinks = append(sinks, f)
	}
	if stderrInteractive() || len(sinks) == 0 {
		sinks = append(sinks, os.Stderr)
	}
	return log.New(io.MultiWriter(sinks...), "[opencode-teams] ", log.LstdFlags|log.Lshortfile)
}

// openLogFile opens the append-mode log sink, creating its directory.
// Returns nil when logging to a file is disabled or the path is unusable.
func openLogFile(path string) io.Writer {
	switch strings.ToLower(path) {
	case "", "none", "off":
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "[opencode-teams] Warning: log dir %s: %v\n", filepath.Dir(path), err)
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[opencode-teams] Warning: log file %s: %v\n", path, err)
		return nil
	}
	return f
}

// stderrInteractive reports whether stderr is a character device.
func stderrInteractive() bool {
	info, err := os.Stderr.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// runStatusCommand implements "opencode-teams status [team]": member, unread
// message, and pending task counts, plus recent journal events.
func runStatusCommand() {
	cfg := policy.Load(nil)
	st := store.New(cfg.RootDir)
	registry := team.NewRegistry(st)
	engine := task.NewEngine(st)
	inboxes := inbox.New(st, registry)

	teamName := ""
	if len(os.Args) > 2 {
		teamName = os.Args[2]
	}
	names := []string{teamName}
	if teamName == "" {
		entries, err := os.ReadDir(filepath.Join(st.Root(), "teams"))
		if err != nil {
			fmt.Println("no teams")
			return
		}
		names = names[:0]
		for _, ent := range entries {
			if ent.IsDir() {
				names = append(names, ent.Name())
			}
		}
	}

	for _, name := range names {
		t, err := registry.Read(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		tasks, _ := engine.List(name)
		pending := 0
		for _, tk := range tasks {
			if tk.Status == "pending" {
				pending++
			}
		}
		unread := 0
		for _, m := range t.Members {
			msgs, err := inboxes.Read(name, m.MemberName(), false)
			if err != nil {
				continue
			}
			for _, msg := range msgs {
				if msg.ReadAt == 0 {
					unread++
				}
			}
		}
		fmt.Printf("%s: members=%d unread=%d pending=%d\n", name, len(t.Members), unread, pending)
	}

	if cfg.JournalEnabled {
		jr, err := journal.Open(cfg.JournalPath())
		if err == nil {
			defer jr.Close()
			events, err := jr.Recent(teamName, 10)
			if err == nil && len(events) > 0 {
				fmt.Println("recent events:")
				for _, e := range events {
					fmt.Printf("  %d %s %s %s %s\n", e.TS, e.Team, e.Agent, e.Event, e.Detail)
				}
			}
		}
	}
}
