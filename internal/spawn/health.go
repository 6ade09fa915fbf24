package spawn

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jaakkos/opencode-teams/internal/domain"
)

const (
	// gracePeriodMillis after spawn during which an unchanged pane still
	// reports alive (the agent may not have produced output yet).
	gracePeriodMillis = 60_000
	// hungTimeoutMillis of unchanged pane content classifies a teammate as hung.
	hungTimeoutMillis = 120_000
)

// CheckAgent probes one teammate and persists the updated probe state.
func (s *Spawner) CheckAgent(teamName, name string) (domain.AgentHealth, error) {
	t, err := s.teams.Read(teamName)
	if err != nil {
		return domain.AgentHealth{}, err
	}
	tm, ok := t.Teammate(name)
	if !ok {
		return domain.AgentHealth{}, fmt.Errorf("%w: teammate %q", domain.ErrNotFound, name)
	}
	hs := s.loadProbeState(teamName)
	h := s.probe(tm, hs)
	s.saveProbeState(teamName, hs)
	return h, nil
}

// CheckAll probes every teammate and persists the probe state once at the end.
func (s *Spawner) CheckAll(teamName string) ([]domain.AgentHealth, error) {
	t, err := s.teams.Read(teamName)
	if err != nil {
		return nil, err
	}
	hs := s.loadProbeState(teamName)
	results := make([]domain.AgentHealth, 0, len(t.Members))
	for _, tm := range t.Teammates() {
		results = append(results, s.probe(tm, hs))
	}
	s.saveProbeState(teamName, hs)
	return results, nil
}

// probe runs the backend-specific liveness check, updating hs in place.
func (s *Spawner) probe(tm domain.TeammateMember, hs domain.HealthState) domain.AgentHealth {
	switch tm.Backend {
	case domain.BackendDesktop:
		// Liveness only: a desktop app has no content surface, so "hung"
		// is never reported.
		if tm.ProcessID != 0 && processAlive(tm.ProcessID) {
			return domain.AgentHealth{AgentName: tm.Name, Status: domain.HealthAlive}
		}
		return domain.AgentHealth{AgentName: tm.Name, Status: domain.HealthDead}
	default:
		return s.probeTerminal(tm, hs)
	}
}

// probeTerminal checks the pane_dead flag, then fingerprints the visible
// pane buffer to distinguish a working agent from a hung one.
func (s *Spawner) probeTerminal(tm domain.TeammateMember, hs domain.HealthState) domain.AgentHealth {
	dead, err := s.mux.PaneDead(tm.PaneID)
	if err != nil {
		if errors.Is(err, domain.ErrTimeout) {
			return domain.AgentHealth{AgentName: tm.Name, Status: domain.HealthUnknown, Detail: "multiplexer query timed out"}
		}
		return domain.AgentHealth{AgentName: tm.Name, Status: domain.HealthUnknown, Detail: err.Error()}
	}
	if dead {
		return domain.AgentHealth{AgentName: tm.Name, Status: domain.HealthDead}
	}
	content, err := s.mux.CapturePane(tm.PaneID)
	if err != nil {
		return domain.AgentHealth{AgentName: tm.Name, Status: domain.HealthUnknown, Detail: err.Error()}
	}
	sum := sha256.Sum256([]byte(content))
	hash := hex.EncodeToString(sum[:])

	now := domain.NowMillis()
	prev := hs[tm.Name]
	changed := prev.ContentHash != hash
	if changed {
		hs[tm.Name] = domain.ProbeState{ContentHash: hash, LastChange: now}
	}
	if now-tm.JoinedAt < gracePeriodMillis {
		return domain.AgentHealth{AgentName: tm.Name, Status: domain.HealthAlive}
	}
	if changed {
		return domain.AgentHealth{AgentName: tm.Name, Status: domain.HealthAlive}
	}
	if prev.LastChange != 0 && now-prev.LastChange >= hungTimeoutMillis {
		return domain.AgentHealth{AgentName: tm.Name, Status: domain.HealthHung, Detail: "pane content unchanged"}
	}
	return domain.AgentHealth{AgentName: tm.Name, Status: domain.HealthAlive}
}

// loadProbeState reads teams/<team>/health.json, tolerating absence.
// The file is single-writer within one server session, so no lock is taken.
func (s *Spawner) loadProbeState(teamName string) domain.HealthState {
	hs := domain.HealthState{}
	if err := s.store.ReadJSON(s.store.HealthPath(teamName), &hs); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Printf("Warning: load health state for %s: %v", teamName, err)
	}
	return hs
}

// saveProbeState rewrites the health file atomically.
func (s *Spawner) saveProbeState(teamName string, hs domain.HealthState) {
	if err := s.store.WriteJSON(s.store.HealthPath(teamName), hs); err != nil {
		s.logger.Printf("Warning: save health state for %s: %v", teamName, err)
	}
}

// dropProbeState forgets a removed teammate's fingerprint.
func (s *Spawner) dropProbeState(teamName, name string) {
	hs := s.loadProbeState(teamName)
	if _, ok := hs[name]; !ok {
		return
	}
	delete(hs, name)
	s.saveProbeState(teamName, hs)
}
