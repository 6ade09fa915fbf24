// Package domain holds the team coordination entities and field-level invariants.
// It has no dependencies on other packages.
package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// Role discriminates the two member variants in a team config.
type Role string

const (
	RoleLead     Role = "lead"
	RoleTeammate Role = "teammate"
)

// Backend is the spawn mechanism for a teammate.
type Backend string

const (
	BackendTerminal Backend = "terminal"
	BackendDesktop  Backend = "desktop"
)

// ColorPalette is the fixed palette assigned round-robin by member index.
// Index 1 ("blue") is the first teammate on a fresh team (index 0 is the lead).
var ColorPalette = [8]string{"red", "blue", "green", "yellow", "magenta", "cyan", "orange", "purple"}

// nameRE validates team and member names.
var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidName reports whether s is a legal team or member name.
func ValidName(s string) bool {
	return nameRE.MatchString(s)
}

// AgentID builds the canonical "<member>@<team>" identifier.
func AgentID(member, team string) string {
	return member + "@" + team
}

// NowMillis returns the current time as integer milliseconds since epoch,
// the timestamp representation used in every persisted file.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Member is one entry in Team.Members. The concrete type is LeadMember or
// TeammateMember; readers discriminate on the role tag.
type Member interface {
	MemberRole() Role
	MemberName() string
	MemberColor() string
}

// LeadMember is the team lead. Created at team birth, never spawned as a process.
type LeadMember struct {
	AgentID   string `json:"agentId"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	Color     string `json:"color"`
	JoinedAt  int64  `json:"joinedAt"`
	SessionID string `json:"sessionId,omitempty"`
}

func (m LeadMember) MemberRole() Role    { return RoleLead }
func (m LeadMember) MemberName() string  { return m.Name }
func (m LeadMember) MemberColor() string { return m.Color }

// TeammateMember is a spawned agent process managed by this server.
type TeammateMember struct {
	AgentID          string  `json:"agentId"`
	Name             string  `json:"name"`
	Role             Role    `json:"role"`
	Model            string  `json:"model"`
	Prompt           string  `json:"prompt"`
	Color            string  `json:"color"`
	PlanModeRequired bool    `json:"planModeRequired"`
	JoinedAt         int64   `json:"joinedAt"`
	Backend          Backend `json:"backend"`
	PaneID           string  `json:"paneId,omitempty"`
	ProcessID        int     `json:"processId,omitempty"`
	Cwd              string  `json:"cwd"`
	SubagentType     string  `json:"subagentType"`
}

func (m TeammateMember) MemberRole() Role    { return RoleTeammate }
func (m TeammateMember) MemberName() string  { return m.Name }
func (m TeammateMember) MemberColor() string { return m.Color }

// Team is one coordination scope: exactly one lead plus zero or more teammates.
// A team exists iff its config file exists on disk.
type Team struct {
	Name      string   `json:"name"`
	CreatedAt int64    `json:"createdAt"`
	SessionID string   `json:"sessionId"`
	LeadModel string   `json:"leadModel,omitempty"`
	Members   []Member `json:"members"`
}

// NewTeam builds a team with its lead member. Fails with ErrInvalidName when
// either name does not match the allowed pattern.
func NewTeam(name, leadName, leadModel, sessionID string) (*Team, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: team name %q", ErrInvalidName, name)
	}
	if !ValidName(leadName) {
		return nil, fmt.Errorf("%w: lead name %q", ErrInvalidName, leadName)
	}
	now := NowMillis()
	return &Team{
		Name:      name,
		CreatedAt: now,
		SessionID: sessionID,
		LeadModel: leadModel,
		Members: []Member{LeadMember{
			AgentID:   AgentID(leadName, name),
			Name:      leadName,
			Role:      RoleLead,
			Color:     ColorPalette[0],
			JoinedAt:  now,
			SessionID: sessionID,
		}},
	}, nil
}

// Lead returns the lead member. Every well-formed team has exactly one.
func (t *Team) Lead() (LeadMember, bool) {
	for _, m := range t.Members {
		if lead, ok := m.(LeadMember); ok {
			return lead, true
		}
	}
	return LeadMember{}, false
}

// Teammate returns the teammate with the given name.
func (t *Team) Teammate(name string) (TeammateMember, bool) {
	for _, m := range t.Members {
		if tm, ok := m.(TeammateMember); ok && tm.Name == name {
			return tm, true
		}
	}
	return TeammateMember{}, false
}

// Teammates returns all teammate members in join order.
func (t *Team) Teammates() []TeammateMember {
	var out []TeammateMember
	for _, m := range t.Members {
		if tm, ok := m.(TeammateMember); ok {
			out = append(out, tm)
		}
	}
	return out
}

// HasMember reports whether any member (lead or teammate) has the given name.
func (t *Team) HasMember(name string) bool {
	for _, m := range t.Members {
		if m.MemberName() == name {
			return true
		}
	}
	return false
}

// NextColor is the palette color for the next member to be added.
func (t *Team) NextColor() string {
	return ColorPalette[len(t.Members)%len(ColorPalette)]
}

// teamJSON mirrors Team with raw members for two-pass decoding.
type teamJSON struct {
	Name      string            `json:"name"`
	CreatedAt int64             `json:"createdAt"`
	SessionID string            `json:"sessionId"`
	LeadModel string            `json:"leadModel,omitempty"`
	Members   []json.RawMessage `json:"members"`
}

// UnmarshalJSON decodes members by their role tag into the concrete variant.
func (t *Team) UnmarshalJSON(data []byte) error {
	var raw teamJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Name = raw.Name
	t.CreatedAt = raw.CreatedAt
	t.SessionID = raw.SessionID
	t.LeadModel = raw.LeadModel
	t.Members = nil
	for _, rm := range raw.Members {
		var tag struct {
			Role Role `json:"role"`
		}
		if err := json.Unmarshal(rm, &tag); err != nil {
			return err
		}
		switch tag.Role {
		case RoleLead:
			var lead LeadMember
			if err := json.Unmarshal(rm, &lead); err != nil {
				return err
			}
			t.Members = append(t.Members, lead)
		case RoleTeammate:
			var tm TeammateMember
			if err := json.Unmarshal(rm, &tm); err != nil {
				return err
			}
			t.Members = append(t.Members, tm)
		default:
			return fmt.Errorf("member with unknown role %q", tag.Role)
		}
	}
	return nil
}

// TaskStatus is a task's lifecycle state.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// statusRank orders the forward progression pending < in_progress < completed.
var statusRank = map[TaskStatus]int{TaskPending: 0, TaskInProgress: 1, TaskCompleted: 2}

// ValidStatus reports whether s is one of the four task states.
func ValidStatus(s TaskStatus) bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskCancelled:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskCancelled
}

// CanTransition reports whether from -> to is a legal status move:
// forward on the pending < in_progress < completed order, or to cancelled
// from any non-terminal state. Same-state is allowed (no-op update).
func CanTransition(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	if to == TaskCancelled {
		return !from.Terminal()
	}
	fr, fok := statusRank[from]
	tr, tok := statusRank[to]
	return fok && tok && tr > fr
}

// Task is one node of a team's dependency graph, persisted as its own file.
// Blocks and BlockedBy are bidirectional mirrors maintained by the task engine.
type Task struct {
	ID          int        `json:"id"`
	Subject     string     `json:"subject"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Owner       string     `json:"owner,omitempty"`
	Blocks      []int      `json:"blocks"`
	BlockedBy   []int      `json:"blockedBy"`
	CreatedAt   int64      `json:"createdAt"`
	UpdatedAt   int64      `json:"updatedAt"`
}

// MessageType classifies inbox messages.
type MessageType string

const (
	MessageChat             MessageType = "message"
	MessageBroadcast        MessageType = "broadcast"
	MessageShutdownRequest  MessageType = "shutdown_request"
	MessageShutdownApproved MessageType = "shutdown_approved"
	MessagePlanApproved     MessageType = "plan_approved"
	MessagePlanRejected     MessageType = "plan_rejected"
)

// ValidMessageType reports whether t is a known inbox message type.
func ValidMessageType(t MessageType) bool {
	switch t {
	case MessageChat, MessageBroadcast, MessageShutdownRequest,
		MessageShutdownApproved, MessagePlanApproved, MessagePlanRejected:
		return true
	}
	return false
}

// Message is one inbox entry. ID is a UUID so clients can deduplicate across retries.
type Message struct {
	ID        string      `json:"id"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	Summary   string      `json:"summary,omitempty"`
	Color     string      `json:"color"`
	Timestamp int64       `json:"timestamp"`
	ReadAt    int64       `json:"readAt,omitempty"`
}

// HealthStatus is a probe verdict for one teammate.
type HealthStatus string

const (
	HealthAlive   HealthStatus = "alive"
	HealthDead    HealthStatus = "dead"
	HealthHung    HealthStatus = "hung"
	HealthUnknown HealthStatus = "unknown"
)

// AgentHealth is the outward result of one health probe.
type AgentHealth struct {
	AgentName string       `json:"agentName"`
	Status    HealthStatus `json:"status"`
	Detail    string       `json:"detail,omitempty"`
}

// ProbeState is the persisted per-teammate pane-content fingerprint used for
// hung detection across non-sticky probe calls.
type ProbeState struct {
	ContentHash string `json:"contentHash,omitempty"`
	LastChange  int64  `json:"lastChange,omitempty"`
}

// HealthState maps agent name to probe state; one file per team.
type HealthState map[string]ProbeState
