package teams

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/opencode-teams/internal/domain"
	"github.com/jaakkos/opencode-teams/internal/spawn"
)

// registerSpawnTeammate registers the spawn_teammate tool.
func registerSpawnTeammate(s *server.MCPServer, c *Coordinator) {
	s.AddTool(
		mcp.NewTool("spawn_teammate",
			mcp.WithDescription("Spawn a new teammate process. Terminal backend opens a multiplexer pane; desktop backend launches the desktop app."),
			mcp.WithString("teamName", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Teammate name")),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("Initial prompt, delivered as the first inbox message")),
			mcp.WithString("model", mcp.Description("Model identifier, or \"auto\" for the configured default")),
			mcp.WithString("backend", mcp.Description("Spawn backend"), mcp.Enum("terminal", "desktop")),
			mcp.WithString("template", mcp.Description("Role template"), mcp.Enum("researcher", "implementer", "reviewer", "tester")),
			mcp.WithString("customInstructions", mcp.Description("Extra instructions appended after the role block")),
			mcp.WithString("cwd", mcp.Description("Working directory for the teammate (default: server cwd)")),
			mcp.WithBoolean("autoClose", mcp.Description("Close the pane when the agent exits (accepted for compatibility)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			teamName, err := argString(args, "teamName", true)
			if err != nil {
				return errResult(err), nil
			}
			name, err := argString(args, "name", true)
			if err != nil {
				return errResult(err), nil
			}
			prompt, err := argString(args, "prompt", true)
			if err != nil {
				return errResult(err), nil
			}
			model, _ := argString(args, "model", false)
			backend, _ := argString(args, "backend", false)
			template, _ := argString(args, "template", false)
			custom, _ := argString(args, "customInstructions", false)
			cwd, _ := argString(args, "cwd", false)
			if cwd == "" {
				if wd, err := os.Getwd(); err == nil {
					cwd = wd
				}
			}

			tm, err := c.Spawner.Spawn(spawn.Request{
				TeamName:           teamName,
				Name:               name,
				Prompt:             prompt,
				Model:              model,
				Backend:            domain.Backend(backend),
				Template:           template,
				CustomInstructions: custom,
				Cwd:                cwd,
			})
			if err != nil {
				return errResult(err), nil
			}
			c.record(teamName, name, "spawn_teammate", string(tm.Backend))
			return jsonResult(tm), nil
		},
	)
}

// registerForceKillTeammate registers the force_kill_teammate tool.
func registerForceKillTeammate(s *server.MCPServer, c *Coordinator) {
	s.AddTool(
		mcp.NewTool("force_kill_teammate",
			mcp.WithDescription("Kill a teammate's process and remove it from the team. Idempotent: an already-removed teammate is a no-op success."),
			mcp.WithString("teamName", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Teammate name")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			teamName, err := argString(args, "teamName", true)
			if err != nil {
				return errResult(err), nil
			}
			name, err := argString(args, "name", true)
			if err != nil {
				return errResult(err), nil
			}
			if err := c.Spawner.Kill(teamName, name); err != nil {
				return errResult(err), nil
			}
			c.record(teamName, name, "force_kill_teammate", "")
			return jsonResult(map[string]any{"killed": name}), nil
		},
	)
}

// registerProcessShutdownApproved registers the process_shutdown_approved tool.
func registerProcessShutdownApproved(s *server.MCPServer, c *Coordinator) {
	s.AddTool(
		mcp.NewTool("process_shutdown_approved",
			mcp.WithDescription("Remove a teammate that consented to shutdown. Sends no signals; the agent exits on its own."),
			mcp.WithString("teamName", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Teammate name")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			teamName, err := argString(args, "teamName", true)
			if err != nil {
				return errResult(err), nil
			}
			name, err := argString(args, "name", true)
			if err != nil {
				return errResult(err), nil
			}
			if err := c.Spawner.Remove(teamName, name); err != nil {
				return errResult(err), nil
			}
			c.record(teamName, name, "process_shutdown_approved", "")
			return jsonResult(map[string]any{"removed": name}), nil
		},
	)
}

// registerListAgentTemplates registers the list_agent_templates tool.
func registerListAgentTemplates(s *server.MCPServer, c *Coordinator) {
	s.AddTool(
		mcp.NewTool("list_agent_templates",
			mcp.WithDescription("List the built-in role templates for spawn_teammate."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			tpls := spawn.ListTemplates()
			out := make([]map[string]string, 0, len(tpls))
			for _, t := range tpls {
				out = append(out, map[string]string{"name": t.Name, "description": t.Description})
			}
			return jsonResult(map[string]any{"templates": out}), nil
		},
	)
}

// registerCheckAgentHealth registers the check_agent_health tool.
func registerCheckAgentHealth(s *server.MCPServer, c *Coordinator) {
	s.AddTool(
		mcp.NewTool("check_agent_health",
			mcp.WithDescription("Probe one teammate: alive, dead, hung (terminal only), or unknown."),
			mcp.WithString("teamName", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Teammate name")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			teamName, err := argString(args, "teamName", true)
			if err != nil {
				return errResult(err), nil
			}
			name, err := argString(args, "name", true)
			if err != nil {
				return errResult(err), nil
			}
			h, err := c.Spawner.CheckAgent(teamName, name)
			if err != nil {
				return errResult(err), nil
			}
			return jsonResult(h), nil
		},
	)
}

// registerCheckAllAgentsHealth registers the check_all_agents_health tool.
func registerCheckAllAgentsHealth(s *server.MCPServer, c *Coordinator) {
	s.AddTool(
		mcp.NewTool("check_all_agents_health",
			mcp.WithDescription("Probe every teammate and return a list of statuses."),
			mcp.WithString("teamName", mcp.Required(), mcp.Description("Team name")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			teamName, err := argString(req.GetArguments(), "teamName", true)
			if err != nil {
				return errResult(err), nil
			}
			hs, err := c.Spawner.CheckAll(teamName)
			if err != nil {
				return errResult(err), nil
			}
			if hs == nil {
				hs = []domain.AgentHealth{}
			}
			return jsonResult(map[string]any{"agents": hs}), nil
		},
	)
}
