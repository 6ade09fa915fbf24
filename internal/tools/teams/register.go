package teams

import (
	"time"

	"github.com/mark3labs/mcp-go/server"
)

// Register registers every coordination tool with the mcp-go server.
func Register(s *server.MCPServer, c *Coordinator, version string) {
	started := time.Now()

	// Team tools (4)
	registerTeamCreate(s, c)
	registerTeamDelete(s, c)
	registerReadConfig(s, c)
	registerServerStatus(s, c, version, started)

	// Messaging tools (3)
	registerSendMessage(s, c)
	registerReadInbox(s, c)
	registerPollInbox(s, c)

	// Task tools (4)
	registerTaskCreate(s, c)
	registerTaskUpdate(s, c)
	registerTaskList(s, c)
	registerTaskGet(s, c)

	// Lifecycle tools (6)
	registerSpawnTeammate(s, c)
	registerForceKillTeammate(s, c)
	registerProcessShutdownApproved(s, c)
	registerListAgentTemplates(s, c)
	registerCheckAgentHealth(s, c)
	registerCheckAllAgentsHealth(s, c)
}
