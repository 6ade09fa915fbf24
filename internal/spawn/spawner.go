// Package spawn manages external teammate processes: identity-file
// generation, command assembly for the terminal and desktop backends,
// launch, kill, and health probing.
package spawn

import (
	"fmt"
	"log"
	"strings"

	"github.com/jaakkos/opencode-teams/internal/domain"
	"github.com/jaakkos/opencode-teams/internal/inbox"
	"github.com/jaakkos/opencode-teams/internal/policy"
	"github.com/jaakkos/opencode-teams/internal/store"
	"github.com/jaakkos/opencode-teams/internal/task"
	"github.com/jaakkos/opencode-teams/internal/team"
	"github.com/jaakkos/opencode-teams/internal/tmux"
)

// spawnWallClock bounds the agent process inside its pane so upstream
// API hangs cannot pin a pane forever.
const spawnWallClock = "300s"

// Spawner launches and tears down teammate processes.
type Spawner struct {
	store   *store.Store
	teams   *team.Registry
	inboxes *inbox.Inbox
	tasks   *task.Engine
	mux     tmux.Ops
	cfg     *policy.Config
	logger  *log.Logger
}

// New returns a Spawner wired to the given components.
func New(st *store.Store, reg *team.Registry, ib *inbox.Inbox, eng *task.Engine, mux tmux.Ops, cfg *policy.Config, logger *log.Logger) *Spawner {
	return &Spawner{store: st, teams: reg, inboxes: ib, tasks: eng, mux: mux, cfg: cfg, logger: logger}
}

// Request carries the arguments of one spawn_teammate call.
type Request struct {
	TeamName           string
	Name               string
	Prompt             string
	Model              string
	Backend            domain.Backend
	Template           string
	CustomInstructions string
	Cwd                string
}

// Spawn runs the full spawn sequence. Any failure after the teammate was
// added to the config rolls the team back to its pre-spawn state.
func (s *Spawner) Spawn(req Request) (domain.TeammateMember, error) {
	roleInstructions := ""
	subagentType := "general-purpose"
	if req.Template != "" {
		tpl, ok := GetTemplate(req.Template)
		if !ok {
			return domain.TeammateMember{}, fmt.Errorf("%w: %q", domain.ErrUnknownTemplate, req.Template)
		}
		roleInstructions = tpl.Instructions
		subagentType = tpl.Name
	}
	model := req.Model
	if model == "" || model == "auto" {
		model = s.cfg.DefaultModel
	}
	backend := req.Backend
	if backend == "" {
		backend = domain.Backend(s.cfg.DefaultBackend)
	}
	if backend != domain.BackendTerminal && backend != domain.BackendDesktop {
		return domain.TeammateMember{}, fmt.Errorf("%w: backend %q", domain.ErrInvalidArg, backend)
	}

	current, err := s.teams.Read(req.TeamName)
	if err != nil {
		return domain.TeammateMember{}, err
	}
	leadName := "team-lead"
	leadColor := domain.ColorPalette[0]
	if lead, ok := current.Lead(); ok {
		leadName = lead.Name
		leadColor = lead.Color
	}

	tm, err := s.teams.AddTeammate(req.TeamName, domain.TeammateMember{
		Name:             req.Name,
		Model:            model,
		Prompt:           req.Prompt,
		Backend:          backend,
		Cwd:              req.Cwd,
		SubagentType:     subagentType,
		PlanModeRequired: false,
	})
	if err != nil {
		return domain.TeammateMember{}, err
	}
	rollback := func() {
		if rerr := s.teams.RemoveMember(req.TeamName, req.Name); rerr != nil {
			s.logger.Printf("Warning: rollback remove member %s: %v", req.Name, rerr)
		}
		if rerr := s.inboxes.Remove(req.TeamName, req.Name); rerr != nil {
			s.logger.Printf("Warning: rollback remove inbox %s: %v", req.Name, rerr)
		}
		CleanupIdentity(req.Cwd, req.Name)
	}

	if err := s.inboxes.Create(req.TeamName, req.Name); err != nil {
		rollback()
		return domain.TeammateMember{}, err
	}
	if _, err := s.inboxes.Append(req.TeamName, req.Name, domain.Message{
		From:    leadName,
		Type:    domain.MessageChat,
		Content: req.Prompt,
		Color:   leadColor,
	}); err != nil {
		rollback()
		return domain.TeammateMember{}, err
	}

	identity, err := GenerateIdentity(tm, req.TeamName, roleInstructions, req.CustomInstructions)
	if err != nil {
		rollback()
		return domain.TeammateMember{}, err
	}
	if _, err := WriteIdentity(req.Cwd, req.Name, identity); err != nil {
		rollback()
		return domain.TeammateMember{}, err
	}
	if err := EnsureProjectConfig(req.Cwd, []string{"opencode-teams", "serve"}); err != nil {
		s.logger.Printf("Warning: project config merge: %v", err)
	}

	switch backend {
	case domain.BackendTerminal:
		paneID, err := s.launchTerminal(tm)
		if err != nil {
			rollback()
			return domain.TeammateMember{}, err
		}
		tm.PaneID = paneID
	case domain.BackendDesktop:
		pid, err := s.launchDesktop(IdentityPath(req.Cwd, req.Name))
		if err != nil {
			rollback()
			return domain.TeammateMember{}, err
		}
		tm.ProcessID = pid
	}

	if err := s.teams.UpdateTeammate(req.TeamName, tm); err != nil {
		s.killProcess(tm)
		rollback()
		return domain.TeammateMember{}, err
	}
	s.logger.Printf("Spawned %s (%s backend) on team %s", tm.AgentID, backend, req.TeamName)
	return tm, nil
}

// launchTerminal splits a pane (or window) running the agent CLI under a
// wall-clock bound, and returns the new pane id from the splitter's stdout.
func (s *Spawner) launchTerminal(tm domain.TeammateMember) (string, error) {
	cmd := s.BuildRunCommand(tm)
	if s.cfg.UseTmuxWindows {
		return s.mux.NewWindow(tm.Name, tm.Cwd, cmd)
	}
	return s.mux.SplitWindow(tm.Cwd, cmd)
}

// BuildRunCommand assembles the shell command executed inside the pane.
// Every substituted argument is shell-quoted.
func (s *Spawner) BuildRunCommand(tm domain.TeammateMember) string {
	parts := []string{
		"timeout", spawnWallClock,
		shQuote(s.cfg.AgentBinary),
		"run",
		"--agent", shQuote(tm.Name),
		"--model", shQuote(tm.Model),
		"--format", "json",
		"--", shQuote(tm.Prompt),
	}
	return strings.Join(parts, " ")
}

// Kill force-removes a teammate: best-effort process teardown, then member
// removal, task ownership release, inbox deletion, and identity cleanup.
// Idempotent: a teammate that is already gone is a no-op success.
func (s *Spawner) Kill(teamName, name string) error {
	t, err := s.teams.Read(teamName)
	if err != nil {
		return err
	}
	tm, ok := t.Teammate(name)
	if !ok {
		return nil
	}
	s.killProcess(tm)
	if err := s.teams.RemoveMember(teamName, name); err != nil {
		return err
	}
	if err := s.tasks.ReleaseOwner(teamName, name); err != nil {
		return err
	}
	if err := s.inboxes.Remove(teamName, name); err != nil {
		return err
	}
	CleanupIdentity(tm.Cwd, name)
	s.dropProbeState(teamName, name)
	s.logger.Printf("Killed %s on team %s", tm.AgentID, teamName)
	return nil
}

// Remove tears down a teammate that consented to shutdown: same cleanup as
// Kill but no signals are sent.
func (s *Spawner) Remove(teamName, name string) error {
	t, err := s.teams.Read(teamName)
	if err != nil {
		return err
	}
	tm, ok := t.Teammate(name)
	if !ok {
		return nil
	}
	if err := s.teams.RemoveMember(teamName, name); err != nil {
		return err
	}
	if err := s.tasks.ReleaseOwner(teamName, name); err != nil {
		return err
	}
	if err := s.inboxes.Remove(teamName, name); err != nil {
		return err
	}
	CleanupIdentity(tm.Cwd, name)
	s.dropProbeState(teamName, name)
	return nil
}

// killProcess signals the teammate's process. "already gone" is swallowed.
func (s *Spawner) killProcess(tm domain.TeammateMember) {
	switch tm.Backend {
	case domain.BackendTerminal:
		if tm.PaneID != "" {
			if err := s.mux.KillPane(tm.PaneID); err != nil {
				s.logger.Printf("Warning: kill pane %s: %v", tm.PaneID, err)
			}
		}
	case domain.BackendDesktop:
		if tm.ProcessID != 0 {
			if err := terminateProcess(tm.ProcessID); err != nil {
				s.logger.Printf("Warning: terminate pid %d: %v", tm.ProcessID, err)
			}
		}
	}
}

// shQuote wraps s in single quotes with embedded quotes escaped, the same
// scheme as POSIX shell quoting.
func shQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
