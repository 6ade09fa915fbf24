package teams

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/opencode-teams/internal/domain"
	"github.com/jaakkos/opencode-teams/internal/inbox"
)

// registerSendMessage registers the send_message tool.
func registerSendMessage(s *server.MCPServer, c *Coordinator) {
	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send a message to a teammate, or broadcast to the whole team with recipient \"*\"."),
			mcp.WithString("teamName", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("type", mcp.Required(), mcp.Description("Message type"),
				mcp.Enum("message", "broadcast", "shutdown_request", "shutdown_approved", "plan_approved", "plan_rejected")),
			mcp.WithString("recipient", mcp.Required(), mcp.Description("Recipient agent name, or \"*\" for broadcast")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Message content")),
			mcp.WithString("summary", mcp.Description("Short one-line summary")),
			mcp.WithString("sender", mcp.Required(), mcp.Description("Sending agent name")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			teamName, err := argString(args, "teamName", true)
			if err != nil {
				return errResult(err), nil
			}
			msgType, err := argString(args, "type", true)
			if err != nil {
				return errResult(err), nil
			}
			recipient, err := argString(args, "recipient", true)
			if err != nil {
				return errResult(err), nil
			}
			content, err := argString(args, "content", true)
			if err != nil {
				return errResult(err), nil
			}
			summary, _ := argString(args, "summary", false)
			sender, err := argString(args, "sender", true)
			if err != nil {
				return errResult(err), nil
			}
			if !domain.ValidMessageType(domain.MessageType(msgType)) {
				return errResult(fmt.Errorf("%w: message type %q", domain.ErrInvalidArg, msgType)), nil
			}

			t, err := c.Teams.Read(teamName)
			if err != nil {
				return errResult(err), nil
			}
			// Plain chat messages are attributed to the lead regardless of
			// the claimed sender; teammates cannot impersonate each other.
			if domain.MessageType(msgType) == domain.MessageChat {
				if lead, ok := t.Lead(); ok {
					sender = lead.Name
				}
			}

			msg := domain.Message{
				From:    sender,
				Type:    domain.MessageType(msgType),
				Content: content,
				Summary: summary,
				Color:   memberColor(t, sender),
			}

			recipients := []string{recipient}
			if recipient == "*" || domain.MessageType(msgType) == domain.MessageBroadcast {
				recipients = nil
				for _, m := range t.Members {
					if m.MemberName() != sender {
						recipients = append(recipients, m.MemberName())
					}
				}
				msg.Type = domain.MessageBroadcast
			}

			var delivered []domain.Message
			for _, r := range recipients {
				sent, err := c.Inboxes.Append(teamName, r, msg)
				if err != nil {
					return errResult(err), nil
				}
				delivered = append(delivered, sent)
			}
			c.record(teamName, sender, "send_message", fmt.Sprintf("%s -> %s", msgType, recipient))
			return jsonResult(map[string]any{"delivered": len(delivered), "messages": delivered}), nil
		},
	)
}

// registerReadInbox registers the read_inbox tool.
func registerReadInbox(s *server.MCPServer, c *Coordinator) {
	s.AddTool(
		mcp.NewTool("read_inbox",
			mcp.WithDescription("Read your inbox. By default returned messages are marked read."),
			mcp.WithString("teamName", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("agentName", mcp.Required(), mcp.Description("Inbox owner")),
			mcp.WithBoolean("markAsRead", mcp.Description("Mark returned messages as read (default true)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			teamName, err := argString(args, "teamName", true)
			if err != nil {
				return errResult(err), nil
			}
			agentName, err := argString(args, "agentName", true)
			if err != nil {
				return errResult(err), nil
			}
			markAsRead := argBool(args, "markAsRead", true)
			msgs, err := c.Inboxes.Read(teamName, agentName, markAsRead)
			if err != nil {
				return errResult(err), nil
			}
			return jsonResult(map[string]any{"messages": msgs}), nil
		},
	)
}

// registerPollInbox registers the poll_inbox tool.
func registerPollInbox(s *server.MCPServer, c *Coordinator) {
	s.AddTool(
		mcp.NewTool("poll_inbox",
			mcp.WithDescription("Long-poll for unread messages, waiting up to timeoutMs (max 30000). Returns an empty list on timeout."),
			mcp.WithString("teamName", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("agentName", mcp.Required(), mcp.Description("Inbox owner")),
			mcp.WithNumber("timeoutMs", mcp.Description("Maximum wait in milliseconds (default 30000)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			teamName, err := argString(args, "teamName", true)
			if err != nil {
				return errResult(err), nil
			}
			agentName, err := argString(args, "agentName", true)
			if err != nil {
				return errResult(err), nil
			}
			timeout := inbox.MaxPollTimeout
			if ms, ok := argInt(args, "timeoutMs"); ok {
				timeout = time.Duration(ms) * time.Millisecond
			}
			msgs, err := c.Inboxes.Poll(ctx, teamName, agentName, timeout)
			if err != nil {
				return errResult(err), nil
			}
			return jsonResult(map[string]any{"messages": msgs}), nil
		},
	)
}
