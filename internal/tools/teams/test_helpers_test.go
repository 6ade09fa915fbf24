package teams

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/opencode-teams/internal/domain"
	"github.com/jaakkos/opencode-teams/internal/inbox"
	"github.com/jaakkos/opencode-teams/internal/policy"
	"github.com/jaakkos/opencode-teams/internal/spawn"
	"github.com/jaakkos/opencode-teams/internal/store"
	"github.com/jaakkos/opencode-teams/internal/task"
	"github.com/jaakkos/opencode-teams/internal/team"
)

// fakeMux is an in-memory stand-in for the terminal multiplexer.
type fakeMux struct {
	nextPane int
	killed   []string
	dead     map[string]bool
	content  map[string]string
}

func newFakeMux() *fakeMux {
	return &fakeMux{dead: map[string]bool{}, content: map[string]string{}}
}

func (f *fakeMux) SplitWindow(cwd, shellCommand string) (string, error) {
	f.nextPane++
	return fmt.Sprintf("%%%d", f.nextPane), nil
}

func (f *fakeMux) NewWindow(name, cwd, shellCommand string) (string, error) {
	return f.SplitWindow(cwd, shellCommand)
}

func (f *fakeMux) KillPane(paneID string) error {
	f.killed = append(f.killed, paneID)
	f.dead[paneID] = true
	return nil
}

func (f *fakeMux) PaneDead(paneID string) (bool, error) { return f.dead[paneID], nil }

func (f *fakeMux) CapturePane(paneID string) (string, error) { return f.content[paneID], nil }

// testHarness is the full stack over a temp directory.
type testHarness struct {
	srv   *server.MCPServer
	coord *Coordinator
	mux   *fakeMux
	cwd   string
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	st := store.New(t.TempDir())
	cfg := policy.DefaultConfig()
	cfg.RootDir = st.Root()
	cfg.JournalEnabled = false
	logger := log.New(io.Discard, "", 0)

	reg := team.NewRegistry(st)
	eng := task.NewEngine(st)
	ib := inbox.New(st, reg)
	mux := newFakeMux()
	sp := spawn.New(st, reg, ib, eng, mux, cfg, logger)
	coord := NewCoordinator(st, reg, eng, ib, sp, nil, cfg, logger)

	srv := server.NewMCPServer("test", "0.0.0")
	Register(srv, coord, "0.0.0")
	return &testHarness{srv: srv, coord: coord, mux: mux, cwd: t.TempDir()}
}

// callTool invokes a registered tool through the MCP server's message path.
func callTool(t *testing.T, h *testHarness, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()

	reqJSON, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      name,
			"arguments": args,
		},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	respJSON := h.srv.HandleMessage(context.Background(), reqJSON)
	respBytes, err := json.Marshal(respJSON)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("RPC error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	var result mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	return &result
}

// resultText extracts the first text content from a CallToolResult.
func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("result is nil")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in result")
	return ""
}

// resultJSON decodes the result text into v.
func resultJSON(t *testing.T, result *mcp.CallToolResult, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(resultText(t, result)), v); err != nil {
		t.Fatalf("decode result %q: %v", resultText(t, result), err)
	}
}

// wantErrorKind asserts the result is an error envelope with the given kind.
func wantErrorKind(t *testing.T, result *mcp.CallToolResult, kind string) {
	t.Helper()
	if !result.IsError {
		t.Fatalf("expected error result, got %s", resultText(t, result))
	}
	var env errorEnvelope
	resultJSON(t, result, &env)
	if env.Error.Kind != kind {
		t.Errorf("error kind = %q, want %q (message: %s)", env.Error.Kind, kind, env.Error.Message)
	}
}

// mustCreateTeam creates the demo team through the tool surface.
func mustCreateTeam(t *testing.T, h *testHarness) {
	t.Helper()
	result := callTool(t, h, "team_create", map[string]any{"teamName": "demo", "leadName": "lead"})
	if result.IsError {
		t.Fatalf("team_create failed: %s", resultText(t, result))
	}
}

// mustSpawn spawns a terminal teammate through the tool surface.
func mustSpawn(t *testing.T, h *testHarness, name string) domain.TeammateMember {
	t.Helper()
	result := callTool(t, h, "spawn_teammate", map[string]any{
		"teamName": "demo",
		"name":     name,
		"prompt":   "survey the tree",
		"model":    "kimi/k2.5",
		"backend":  "terminal",
		"template": "researcher",
		"cwd":      h.cwd,
	})
	if result.IsError {
		t.Fatalf("spawn_teammate failed: %s", resultText(t, result))
	}
	var tm domain.TeammateMember
	resultJSON(t, result, &tm)
	return tm
}
