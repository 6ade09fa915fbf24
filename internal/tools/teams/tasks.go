package teams

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/opencode-teams/internal/domain"
	"github.com/jaakkos/opencode-teams/internal/task"
)

// registerTaskCreate registers the task_create tool.
func registerTaskCreate(s *server.MCPServer, c *Coordinator) {
	s.AddTool(
		mcp.NewTool("task_create",
			mcp.WithDescription("Create a shared task. Optionally list blockedBy task ids that must complete first."),
			mcp.WithString("teamName", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("subject", mcp.Required(), mcp.Description("Short task subject")),
			mcp.WithString("description", mcp.Description("Detailed task description")),
			mcp.WithArray("blockedBy", mcp.Description("Task ids this task is blocked by")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			teamName, err := argString(args, "teamName", true)
			if err != nil {
				return errResult(err), nil
			}
			subject, err := argString(args, "subject", true)
			if err != nil {
				return errResult(err), nil
			}
			description, _ := argString(args, "description", false)
			blockedBy, err := argIntSlice(args, "blockedBy")
			if err != nil {
				return errResult(err), nil
			}
			var preds []int
			if blockedBy != nil {
				preds = *blockedBy
			}
			t, err := c.Tasks.Create(teamName, subject, description, preds)
			if err != nil {
				return errResult(err), nil
			}
			c.record(teamName, "", "task_create", fmt.Sprintf("#%d %s", t.ID, t.Subject))
			return jsonResult(t), nil
		},
	)
}

// registerTaskUpdate registers the task_update tool. Assignment and
// completion notifications are appended to the affected inboxes after the
// task transaction commits, under the inbox lock only.
func registerTaskUpdate(s *server.MCPServer, c *Coordinator) {
	s.AddTool(
		mcp.NewTool("task_update",
			mcp.WithDescription("Update a task: status, owner, subject, description, or dependency edges. Status moves forward only (pending, in_progress, completed) or to cancelled."),
			mcp.WithString("teamName", mcp.Required(), mcp.Description("Team name")),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("status", mcp.Description("New status"), mcp.Enum("pending", "in_progress", "completed", "cancelled")),
			mcp.WithString("owner", mcp.Description("New owner agent name (empty string releases ownership)")),
			mcp.WithString("subject", mcp.Description("New subject")),
			mcp.WithString("description", mcp.Description("New description")),
			mcp.WithArray("blocks", mcp.Description("Replacement blocks edge set")),
			mcp.WithArray("blockedBy", mcp.Description("Replacement blockedBy edge set")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			teamName, err := argString(args, "teamName", true)
			if err != nil {
				return errResult(err), nil
			}
			id, ok := argInt(args, "id")
			if !ok {
				return errResult(fmt.Errorf("%w: id is required", domain.ErrInvalidArg)), nil
			}
			var u task.Update
			if v, ok := args["status"].(string); ok && v != "" {
				st := domain.TaskStatus(v)
				u.Status = &st
			}
			if v, ok := args["owner"].(string); ok {
				u.Owner = &v
			}
			if v, ok := args["subject"].(string); ok && v != "" {
				u.Subject = &v
			}
			if v, ok := args["description"].(string); ok {
				u.Description = &v
			}
			if u.Blocks, err = argIntSlice(args, "blocks"); err != nil {
				return errResult(err), nil
			}
			if u.BlockedBy, err = argIntSlice(args, "blockedBy"); err != nil {
				return errResult(err), nil
			}

			out, err := c.Tasks.ApplyUpdate(teamName, id, u)
			if err != nil {
				return errResult(err), nil
			}
			c.notifyTaskChanges(teamName, out)
			c.record(teamName, out.Task.Owner, "task_update", fmt.Sprintf("#%d -> %s", out.Task.ID, out.Task.Status))
			return jsonResult(out.Task), nil
		},
	)
}

// notifyTaskChanges relays assignment and completion through the inbox.
// Inbox failures are logged, not surfaced: the task update itself committed.
func (c *Coordinator) notifyTaskChanges(teamName string, out task.Outcome) {
	t, err := c.Teams.Read(teamName)
	if err != nil {
		c.Logger.Printf("Warning: task notification: %v", err)
		return
	}
	lead, hasLead := t.Lead()
	if out.OwnerSet != "" && t.HasMember(out.OwnerSet) {
		_, err := c.Inboxes.Append(teamName, out.OwnerSet, domain.Message{
			From:    lead.Name,
			Type:    domain.MessageChat,
			Content: fmt.Sprintf("You have been assigned task #%d: %s", out.Task.ID, out.Task.Subject),
			Summary: fmt.Sprintf("assigned task #%d", out.Task.ID),
			Color:   lead.Color,
		})
		if err != nil {
			c.Logger.Printf("Warning: assignment notification: %v", err)
		}
	}
	if out.Completed && hasLead {
		from := out.Task.Owner
		if from == "" {
			from = lead.Name
		}
		_, err := c.Inboxes.Append(teamName, lead.Name, domain.Message{
			From:    from,
			Type:    domain.MessageChat,
			Content: fmt.Sprintf("Task #%d completed: %s", out.Task.ID, out.Task.Subject),
			Summary: fmt.Sprintf("task #%d completed", out.Task.ID),
			Color:   memberColor(t, from),
		})
		if err != nil {
			c.Logger.Printf("Warning: completion notification: %v", err)
		}
	}
}

// memberColor resolves a member's palette color, defaulting to the first entry.
func memberColor(t *domain.Team, name string) string {
	for _, m := range t.Members {
		if m.MemberName() == name {
			return m.MemberColor()
		}
	}
	return domain.ColorPalette[0]
}

// registerTaskList registers the task_list tool.
func registerTaskList(s *server.MCPServer, c *Coordinator) {
	s.AddTool(
		mcp.NewTool("task_list",
			mcp.WithDescription("List all tasks for the team, ordered by id."),
			mcp.WithString("teamName", mcp.Required(), mcp.Description("Team name")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			teamName, err := argString(req.GetArguments(), "teamName", true)
			if err != nil {
				return errResult(err), nil
			}
			tasks, err := c.Tasks.List(teamName)
			if err != nil {
				return errResult(err), nil
			}
			return jsonResult(map[string]any{"tasks": tasks}), nil
		},
	)
}

// registerTaskGet registers the task_get tool.
func registerTaskGet(s *server.MCPServer, c *Coordinator) {
	s.AddTool(
		mcp.NewTool("task_get",
			mcp.WithDescription("Get one task by id."),
			mcp.WithString("teamName", mcp.Required(), mcp.Description("Team name")),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Task id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			teamName, err := argString(args, "teamName", true)
			if err != nil {
				return errResult(err), nil
			}
			id, ok := argInt(args, "id")
			if !ok {
				return errResult(fmt.Errorf("%w: id is required", domain.ErrInvalidArg)), nil
			}
			t, err := c.Tasks.Get(teamName, id)
			if err != nil {
				return errResult(err), nil
			}
			return jsonResult(t), nil
		},
	)
}
