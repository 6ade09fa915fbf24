package spawn

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jaakkos/opencode-teams/internal/domain"
)

// identityFrontmatter is the structured header of an agent identity file.
// Field order here is the on-disk key order.
type identityFrontmatter struct {
	Description string          `yaml:"description"`
	Model       string          `yaml:"model"`
	Mode        string          `yaml:"mode"`
	Permission  string          `yaml:"permission"`
	Tools       map[string]bool `yaml:"tools"`
}

// builtinTools are enabled for every spawned teammate, alongside the
// wildcard that enables all coordination tools.
var builtinTools = []string{
	"read", "write", "edit", "bash", "glob", "grep", "list",
	"webfetch", "websearch", "todoread", "todowrite",
}

// GenerateIdentity renders the identity file for a teammate: YAML
// frontmatter plus a markdown body stating identity, tool workflow, and the
// shutdown protocol. roleInstructions comes from a template; custom is
// injected verbatim after the role block.
func GenerateIdentity(tm domain.TeammateMember, teamName, roleInstructions, custom string) (string, error) {
	fm := identityFrontmatter{
		Description: fmt.Sprintf("Team agent %s on team %s", tm.Name, teamName),
		Model:       tm.Model,
		Mode:        "primary",
		Permission:  "allow",
		Tools:       map[string]bool{"opencode-teams_*": true},
	}
	for _, t := range builtinTools {
		fm.Tools[t] = true
	}
	fmYAML, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("%w: marshal identity frontmatter: %v", domain.ErrSpawn, err)
	}

	var sections []string

	sections = append(sections, fmt.Sprintf(`# Agent Identity

You are **%s**, a member of team **%s**.

- Agent ID: `+"`%s`"+`
- Color: %s`, tm.Name, teamName, tm.AgentID, tm.Color))

	sections = append(sections, `# Available MCP Tools

You MUST use these `+"`opencode-teams_*`"+` MCP tools for all team coordination.
Do NOT invent custom workflows, scripts, or coordination frameworks.

**Team Coordination:**
- `+"`opencode-teams_read_config`"+` — read team configuration
- `+"`opencode-teams_server_status`"+` — check MCP server status

**Messaging:**
- `+"`opencode-teams_read_inbox`"+` — check your inbox for messages
- `+"`opencode-teams_send_message`"+` — send a message to a teammate or team-lead
- `+"`opencode-teams_poll_inbox`"+` — long-poll for new messages

**Task Management:**
- `+"`opencode-teams_task_list`"+` — list all tasks for the team
- `+"`opencode-teams_task_get`"+` — get details of a specific task
- `+"`opencode-teams_task_create`"+` — create a new task
- `+"`opencode-teams_task_update`"+` — update task status or claim a task

**Lifecycle:**
- `+"`opencode-teams_check_agent_health`"+` — check health of a single agent
- `+"`opencode-teams_check_all_agents_health`"+` — check health of all agents
- `+"`opencode-teams_process_shutdown_approved`"+` — acknowledge shutdown`)

	if roleInstructions != "" {
		sections = append(sections, strings.TrimSpace(roleInstructions))
	}
	if custom != "" {
		sections = append(sections, "# Additional Instructions\n\n"+strings.TrimSpace(custom))
	}

	sections = append(sections, fmt.Sprintf(`# Workflow

Follow this loop while working:

1. **Check inbox** — call `+"`opencode-teams_read_inbox(teamName=%[1]q, agentName=%[2]q)`"+` every 3-5 tool calls. Always check before starting new work.
2. **Check tasks** — call `+"`opencode-teams_task_list(teamName=%[1]q)`"+` to find available tasks. Claim one with `+"`opencode-teams_task_update(teamName=%[1]q, id=<id>, status=\"in_progress\", owner=%[2]q)`"+`.
3. **Do the work** — use your tools to complete the task.
4. **Report progress** — send updates to the team lead via `+"`opencode-teams_send_message(teamName=%[1]q, type=\"message\", recipient=\"<lead>\", content=\"<update>\", summary=\"<short>\", sender=%[2]q)`"+`.
5. **Mark done** — call `+"`opencode-teams_task_update(teamName=%[1]q, id=<id>, status=\"completed\", owner=%[2]q)`"+` when finished.`, teamName, tm.Name))

	sections = append(sections, `# Important Rules

- Use `+"`opencode-teams_*`"+` MCP tools for ALL team communication and task management
- Do NOT create your own coordination systems, parallel agent frameworks, or orchestration patterns
- Do NOT use slash commands or skills from other projects for team coordination
- Focus on your assigned task — report to the team lead when done or blocked
- When uncertain, ask the team lead via `+"`opencode-teams_send_message`"+` rather than improvising`)

	sections = append(sections, `# Shutdown Protocol

When you receive a `+"`shutdown_request`"+` message, finish or hand off your
current work, reply to the sender, and acknowledge with
`+"`opencode-teams_process_shutdown_approved`"+` so the team can remove you cleanly.`)

	return fmt.Sprintf("---\n%s---\n\n%s\n", string(fmYAML), strings.Join(sections, "\n\n")), nil
}

// agentsDir is the project-scoped identity directory.
func agentsDir(projectDir string) string {
	return filepath.Join(projectDir, ".opencode", "agents")
}

// IdentityPath returns <project>/.opencode/agents/<name>.md.
func IdentityPath(projectDir, name string) string {
	return filepath.Join(agentsDir(projectDir), name+".md")
}

// WriteIdentity writes the identity file, creating the directory and
// overwriting any previous file (re-spawn scenario).
func WriteIdentity(projectDir, name, content string) (string, error) {
	dir := agentsDir(projectDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create agents dir: %v", domain.ErrSpawn, err)
	}
	path := IdentityPath(projectDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("%w: write identity file: %v", domain.ErrSpawn, err)
	}
	return path, nil
}

// CleanupIdentity removes the identity file; missing files are fine.
func CleanupIdentity(projectDir, name string) {
	os.Remove(IdentityPath(projectDir, name))
}

// opencodeJSONSchema tags freshly created project config files.
const opencodeJSONSchema = "https://opencode-files.s3.amazonaws.com/schemas/opencode.json"

// EnsureProjectConfig creates or updates <project>/opencode.json, preserving
// existing keys and merging the opencode-teams MCP server entry so spawned
// agents can reach this server.
func EnsureProjectConfig(projectDir string, serverCommand []string) error {
	path := filepath.Join(projectDir, "opencode.json")
	content := map[string]any{"$schema": opencodeJSONSchema}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &content); err != nil {
			return fmt.Errorf("%w: parse %s: %v", domain.ErrSpawn, path, err)
		}
	}
	mcp, _ := content["mcp"].(map[string]any)
	if mcp == nil {
		mcp = map[string]any{}
	}
	mcp["opencode-teams"] = map[string]any{
		"type":    "local",
		"command": serverCommand,
		"enabled": true,
	}
	content["mcp"] = mcp
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", domain.ErrSpawn, path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", domain.ErrSpawn, path, err)
	}
	return nil
}
