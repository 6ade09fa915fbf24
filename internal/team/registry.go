// Package team implements team create/read/delete and membership mutation
// over the store. All config rewrites happen under the team-config lock.
package team

import (
	"fmt"
	"os"

	"github.com/jaakkos/opencode-teams/internal/domain"
	"github.com/jaakkos/opencode-teams/internal/store"
)

// Registry mediates access to team config files.
type Registry struct {
	store *store.Store
}

// NewRegistry returns a Registry over st.
func NewRegistry(st *store.Store) *Registry {
	return &Registry{store: st}
}

// configLockPath is the lock guarding one team's config.json rewrites.
func (r *Registry) configLockPath(team string) string {
	return r.store.TeamConfigPath(team) + ".lock"
}

// Create validates names, creates the directory tree, and writes the initial
// config with one lead member plus an empty inbox for the lead.
func (r *Registry) Create(teamName, leadName, leadModel, sessionID string) (*domain.Team, error) {
	t, err := domain.NewTeam(teamName, leadName, leadModel, sessionID)
	if err != nil {
		return nil, err
	}
	dir := r.store.TeamDir(teamName)
	if r.store.Exists(dir) {
		return nil, fmt.Errorf("%w: team %q", domain.ErrExists, teamName)
	}
	if err := os.MkdirAll(r.store.InboxDir(teamName), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create team dirs: %v", domain.ErrStorage, err)
	}
	if err := os.MkdirAll(r.store.TaskDir(teamName), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create task dir: %v", domain.ErrStorage, err)
	}
	if err := r.store.WriteJSON(r.store.TeamConfigPath(teamName), t); err != nil {
		return nil, err
	}
	if err := r.store.WriteJSON(r.store.InboxPath(teamName, leadName), []domain.Message{}); err != nil {
		return nil, err
	}
	return t, nil
}

// Read loads a team config. Fails with ErrNotFound when the team does not exist.
func (r *Registry) Read(teamName string) (*domain.Team, error) {
	var t domain.Team
	if err := r.store.ReadJSON(r.store.TeamConfigPath(teamName), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Delete removes the team directory and the task directory. Fails with
// ErrBusy while any teammate member remains.
func (r *Registry) Delete(teamName string) error {
	t, err := r.Read(teamName)
	if err != nil {
		return err
	}
	if len(t.Teammates()) > 0 {
		return fmt.Errorf("%w: team %q still has %d teammate(s)", domain.ErrBusy, teamName, len(t.Teammates()))
	}
	if err := os.RemoveAll(r.store.TeamDir(teamName)); err != nil {
		return fmt.Errorf("%w: remove team dir: %v", domain.ErrStorage, err)
	}
	if err := os.RemoveAll(r.store.TaskDir(teamName)); err != nil {
		return fmt.Errorf("%w: remove task dir: %v", domain.ErrStorage, err)
	}
	return nil
}

// AddTeammate appends a teammate under the config lock, assigning the next
// palette color and the canonical agent id. Returns the stored member.
func (r *Registry) AddTeammate(teamName string, tm domain.TeammateMember) (domain.TeammateMember, error) {
	if !domain.ValidName(tm.Name) {
		return domain.TeammateMember{}, fmt.Errorf("%w: member name %q", domain.ErrInvalidName, tm.Name)
	}
	var stored domain.TeammateMember
	err := r.store.WithLock(r.configLockPath(teamName), func() error {
		t, err := r.Read(teamName)
		if err != nil {
			return err
		}
		if t.HasMember(tm.Name) {
			return fmt.Errorf("%w: member %q", domain.ErrExists, tm.Name)
		}
		tm.AgentID = domain.AgentID(tm.Name, teamName)
		tm.Role = domain.RoleTeammate
		tm.Color = t.NextColor()
		if tm.JoinedAt == 0 {
			tm.JoinedAt = domain.NowMillis()
		}
		t.Members = append(t.Members, tm)
		if err := r.store.WriteJSON(r.store.TeamConfigPath(teamName), t); err != nil {
			return err
		}
		stored = tm
		return nil
	})
	return stored, err
}

// UpdateTeammate rewrites a teammate record in place under the config lock.
// Used to attach the pane id or PID after a successful launch.
func (r *Registry) UpdateTeammate(teamName string, tm domain.TeammateMember) error {
	return r.store.WithLock(r.configLockPath(teamName), func() error {
		t, err := r.Read(teamName)
		if err != nil {
			return err
		}
		for i, m := range t.Members {
			if existing, ok := m.(domain.TeammateMember); ok && existing.Name == tm.Name {
				t.Members[i] = tm
				return r.store.WriteJSON(r.store.TeamConfigPath(teamName), t)
			}
		}
		return fmt.Errorf("%w: teammate %q", domain.ErrNotFound, tm.Name)
	})
}

// RemoveMember removes the named teammate under the config lock. Removing a
// name that is already gone is a no-op success so that kill and shutdown
// cleanup stay idempotent. The lead cannot be removed.
func (r *Registry) RemoveMember(teamName, name string) error {
	return r.store.WithLock(r.configLockPath(teamName), func() error {
		t, err := r.Read(teamName)
		if err != nil {
			return err
		}
		if lead, ok := t.Lead(); ok && lead.Name == name {
			return fmt.Errorf("%w: cannot remove the lead", domain.ErrInvalidArg)
		}
		kept := t.Members[:0]
		for _, m := range t.Members {
			if tm, ok := m.(domain.TeammateMember); ok && tm.Name == name {
				continue
			}
			kept = append(kept, m)
		}
		if len(kept) == len(t.Members) {
			return nil
		}
		t.Members = kept
		return r.store.WriteJSON(r.store.TeamConfigPath(teamName), t)
	})
}
