// Package teams binds the coordination components to the MCP tool surface.
// Each tool corresponds 1:1 to a callable on the transport; the handlers
// validate arguments, dispatch, and map domain errors to the error envelope.
package teams

import (
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/jaakkos/opencode-teams/internal/domain"
	"github.com/jaakkos/opencode-teams/internal/inbox"
	"github.com/jaakkos/opencode-teams/internal/journal"
	"github.com/jaakkos/opencode-teams/internal/policy"
	"github.com/jaakkos/opencode-teams/internal/spawn"
	"github.com/jaakkos/opencode-teams/internal/store"
	"github.com/jaakkos/opencode-teams/internal/task"
	"github.com/jaakkos/opencode-teams/internal/team"
)

// Coordinator owns the per-session state (the one-team binding) and routes
// tool calls to the underlying components.
type Coordinator struct {
	Store   *store.Store
	Teams   *team.Registry
	Tasks   *task.Engine
	Inboxes *inbox.Inbox
	Spawner *spawn.Spawner
	Journal *journal.Journal
	Config  *policy.Config
	Logger  *log.Logger

	mu        sync.Mutex
	sessionID string
	boundTeam string
}

// NewCoordinator wires a Coordinator with a fresh session id.
func NewCoordinator(st *store.Store, reg *team.Registry, eng *task.Engine, ib *inbox.Inbox, sp *spawn.Spawner, jr *journal.Journal, cfg *policy.Config, logger *log.Logger) *Coordinator {
	return &Coordinator{
		Store:     st,
		Teams:     reg,
		Tasks:     eng,
		Inboxes:   ib,
		Spawner:   sp,
		Journal:   jr,
		Config:    cfg,
		Logger:    logger,
		sessionID: uuid.NewString(),
	}
}

// SessionID returns this server session's id.
func (c *Coordinator) SessionID() string { return c.sessionID }

// BoundTeam returns the team bound to this session, or empty.
func (c *Coordinator) BoundTeam() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boundTeam
}

// bindTeam claims the session's one-team slot. Fails with ErrBusy when a
// team is already bound.
func (c *Coordinator) bindTeam(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.boundTeam != "" {
		return fmt.Errorf("%w: session already holds team %q", domain.ErrBusy, c.boundTeam)
	}
	c.boundTeam = name
	return nil
}

// unbindTeam clears the binding if it names the given team.
func (c *Coordinator) unbindTeam(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.boundTeam == name {
		c.boundTeam = ""
	}
}

// record appends a journal event, logging (not surfacing) failures.
func (c *Coordinator) record(teamName, agent, event, detail string) {
	if err := c.Journal.Record(teamName, agent, event, detail); err != nil {
		c.Logger.Printf("Warning: journal %s: %v", event, err)
	}
}
