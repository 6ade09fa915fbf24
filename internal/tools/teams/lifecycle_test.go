package teams

import (
	"errors"
	"os"
	"testing"

	"github.com/jaakkos/opencode-teams/internal/domain"
	"github.com/jaakkos/opencode-teams/internal/spawn"
)

func TestSpawnTeammateReturnsPane(t *testing.T) {
	h := newTestHarness(t)
	mustCreateTeam(t, h)

	tm := mustSpawn(t, h, "r1")
	if tm.PaneID == "" {
		t.Error("paneId missing from spawn result")
	}
	if tm.AgentID != "r1@demo" {
		t.Errorf("agentId = %q", tm.AgentID)
	}
	if _, err := os.Stat(spawn.IdentityPath(h.cwd, "r1")); err != nil {
		t.Errorf("identity file: %v", err)
	}

	// The initial prompt is already queued.
	read := callTool(t, h, "read_inbox", map[string]any{"teamName": "demo", "agentName": "r1", "markAsRead": false})
	var msgs messagesResult
	resultJSON(t, read, &msgs)
	if len(msgs.Messages) != 1 || msgs.Messages[0].Content != "survey the tree" {
		t.Errorf("initial inbox = %+v", msgs.Messages)
	}
}

func TestSpawnTeammateUnknownTemplate(t *testing.T) {
	h := newTestHarness(t)
	mustCreateTeam(t, h)

	result := callTool(t, h, "spawn_teammate", map[string]any{
		"teamName": "demo",
		"name":     "r1",
		"prompt":   "x",
		"backend":  "terminal",
		"template": "wizard",
		"cwd":      h.cwd,
	})
	wantErrorKind(t, result, "ErrUnknownTemplate")
}

func TestForceKillTeammateIdempotent(t *testing.T) {
	h := newTestHarness(t)
	mustCreateTeam(t, h)
	tm := mustSpawn(t, h, "r1")

	result := callTool(t, h, "force_kill_teammate", map[string]any{"teamName": "demo", "name": "r1"})
	if result.IsError {
		t.Fatalf("force_kill_teammate: %s", resultText(t, result))
	}
	if len(h.mux.killed) != 1 || h.mux.killed[0] != tm.PaneID {
		t.Errorf("killed = %v", h.mux.killed)
	}
	if _, err := os.Stat(spawn.IdentityPath(h.cwd, "r1")); !errors.Is(err, os.ErrNotExist) {
		t.Error("identity file survives the kill")
	}

	// Second kill of the same name is a no-op success.
	result = callTool(t, h, "force_kill_teammate", map[string]any{"teamName": "demo", "name": "r1"})
	if result.IsError {
		t.Errorf("second kill: %s", resultText(t, result))
	}

	var cfgResult domain.Team
	read := callTool(t, h, "read_config", map[string]any{"teamName": "demo"})
	resultJSON(t, read, &cfgResult)
	if len(cfgResult.Members) != 1 {
		t.Errorf("members = %d, want only the lead", len(cfgResult.Members))
	}
}

func TestKillReleasesTaskOwnership(t *testing.T) {
	h := newTestHarness(t)
	mustCreateTeam(t, h)
	mustSpawn(t, h, "r1")

	callTool(t, h, "task_create", map[string]any{"teamName": "demo", "subject": "held"})
	callTool(t, h, "task_update", map[string]any{"teamName": "demo", "id": 1, "owner": "r1", "status": "in_progress"})

	result := callTool(t, h, "force_kill_teammate", map[string]any{"teamName": "demo", "name": "r1"})
	if result.IsError {
		t.Fatalf("kill: %s", resultText(t, result))
	}

	get := callTool(t, h, "task_get", map[string]any{"teamName": "demo", "id": 1})
	var tk domain.Task
	resultJSON(t, get, &tk)
	if tk.Owner != "" {
		t.Errorf("owner = %q, want released", tk.Owner)
	}
	if tk.Status != domain.TaskInProgress {
		t.Errorf("status = %s, want unchanged", tk.Status)
	}
}

func TestProcessShutdownApproved(t *testing.T) {
	h := newTestHarness(t)
	mustCreateTeam(t, h)
	mustSpawn(t, h, "r1")

	result := callTool(t, h, "process_shutdown_approved", map[string]any{"teamName": "demo", "name": "r1"})
	if result.IsError {
		t.Fatalf("process_shutdown_approved: %s", resultText(t, result))
	}
	if len(h.mux.killed) != 0 {
		t.Errorf("consented shutdown sent kill signals: %v", h.mux.killed)
	}
}

func TestListAgentTemplates(t *testing.T) {
	h := newTestHarness(t)

	result := callTool(t, h, "list_agent_templates", map[string]any{})
	var listed struct {
		Templates []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"templates"`
	}
	resultJSON(t, result, &listed)
	if len(listed.Templates) != 4 {
		t.Fatalf("templates = %d, want 4", len(listed.Templates))
	}
	for _, tpl := range listed.Templates {
		if tpl.Name == "" || tpl.Description == "" {
			t.Errorf("template = %+v", tpl)
		}
	}
}

func TestCheckAllAgentsHealth(t *testing.T) {
	h := newTestHarness(t)
	mustCreateTeam(t, h)
	tm := mustSpawn(t, h, "r1")
	h.mux.content[tm.PaneID] = "working"

	result := callTool(t, h, "check_all_agents_health", map[string]any{"teamName": "demo"})
	var health struct {
		Agents []domain.AgentHealth `json:"agents"`
	}
	resultJSON(t, result, &health)
	if len(health.Agents) != 1 {
		t.Fatalf("agents = %d, want 1", len(health.Agents))
	}
	if health.Agents[0].Status != domain.HealthAlive {
		t.Errorf("status = %s, want alive (inside grace period)", health.Agents[0].Status)
	}

	single := callTool(t, h, "check_agent_health", map[string]any{"teamName": "demo", "name": "r1"})
	var one domain.AgentHealth
	resultJSON(t, single, &one)
	if one.AgentName != "r1" {
		t.Errorf("agentName = %q", one.AgentName)
	}

	missing := callTool(t, h, "check_agent_health", map[string]any{"teamName": "demo", "name": "ghost"})
	wantErrorKind(t, missing, "ErrNotFound")
}
