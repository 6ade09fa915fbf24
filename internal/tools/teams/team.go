package teams

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerTeamCreate registers the team_create tool.
func registerTeamCreate(s *server.MCPServer, c *Coordinator) {
	s.AddTool(
		mcp.NewTool("team_create",
			mcp.WithDescription("Create this session's team with you as the lead. A session holds at most one team."),
			mcp.WithString("teamName", mcp.Required(), mcp.Description("Team name (letters, digits, underscore, dash)")),
			mcp.WithString("leadName", mcp.Required(), mcp.Description("Name of the lead agent")),
			mcp.WithString("leadModel", mcp.Description("Model identifier recorded for the lead")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			teamName, err := argString(args, "teamName", true)
			if err != nil {
				return errResult(err), nil
			}
			leadName, err := argString(args, "leadName", true)
			if err != nil {
				return errResult(err), nil
			}
			leadModel, _ := argString(args, "leadModel", false)

			if err := c.bindTeam(teamName); err != nil {
				return errResult(err), nil
			}
			t, err := c.Teams.Create(teamName, leadName, leadModel, c.SessionID())
			if err != nil {
				c.unbindTeam(teamName)
				return errResult(err), nil
			}
			c.record(teamName, leadName, "team_create", "")
			c.Logger.Printf("Created team %s (lead %s)", teamName, leadName)
			return jsonResult(t), nil
		},
	)
}

// registerTeamDelete registers the team_delete tool.
func registerTeamDelete(s *server.MCPServer, c *Coordinator) {
	s.AddTool(
		mcp.NewTool("team_delete",
			mcp.WithDescription("Delete the team. Fails while any teammate remains; kill or shut them down first."),
			mcp.WithString("teamName", mcp.Required(), mcp.Description("Team name")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			teamName, err := argString(req.GetArguments(), "teamName", true)
			if err != nil {
				return errResult(err), nil
			}
			if err := c.Teams.Delete(teamName); err != nil {
				return errResult(err), nil
			}
			c.unbindTeam(teamName)
			c.record(teamName, "", "team_delete", "")
			c.Logger.Printf("Deleted team %s", teamName)
			return jsonResult(map[string]any{"deleted": teamName}), nil
		},
	)
}

// registerReadConfig registers the read_config tool.
func registerReadConfig(s *server.MCPServer, c *Coordinator) {
	s.AddTool(
		mcp.NewTool("read_config",
			mcp.WithDescription("Return the current team configuration."),
			mcp.WithString("teamName", mcp.Required(), mcp.Description("Team name")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			teamName, err := argString(req.GetArguments(), "teamName", true)
			if err != nil {
				return errResult(err), nil
			}
			t, err := c.Teams.Read(teamName)
			if err != nil {
				return errResult(err), nil
			}
			return jsonResult(t), nil
		},
	)
}

// registerServerStatus registers the server_status tool.
func registerServerStatus(s *server.MCPServer, c *Coordinator, version string, started time.Time) {
	s.AddTool(
		mcp.NewTool("server_status",
			mcp.WithDescription("Return server version, state root, the session's bound team, and uptime."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return jsonResult(map[string]any{
				"version":       version,
				"rootDir":       c.Store.Root(),
				"sessionId":     c.SessionID(),
				"boundTeam":     c.BoundTeam(),
				"uptimeSeconds": int(time.Since(started).Seconds()),
			}), nil
		},
	)
}
