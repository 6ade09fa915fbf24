// Package task implements the shared task graph: CRUD, the status machine,
// bidirectional dependency edges, cycle prevention, and the completion
// cascade. Every mutation for one team is serialized by that team's tasks
// lock; each task is persisted as its own file so individual updates stay
// atomic without a global rewrite.
package task

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/jaakkos/opencode-teams/internal/domain"
	"github.com/jaakkos/opencode-teams/internal/store"
)

// Engine mediates all task mutations for all teams.
type Engine struct {
	store *store.Store
}

// NewEngine returns an Engine over st.
func NewEngine(st *store.Store) *Engine {
	return &Engine{store: st}
}

// Update is a partial task mutation. Nil fields are left unchanged; Blocks
// and BlockedBy replace the full edge set when present.
type Update struct {
	Subject     *string
	Description *string
	Status      *domain.TaskStatus
	Owner       *string
	Blocks      *[]int
	BlockedBy   *[]int
}

// Outcome describes side effects of an update that the caller must relay
// through the inbox (outside the tasks lock).
type Outcome struct {
	Task       domain.Task
	OwnerSet   string // non-empty when ownership was assigned this update
	PrevOwner  string
	Completed  bool
	Unblocked  []int // tasks whose blockedBy became empty by the completion cascade
}

// loadAll reads every task file for a team into a map keyed by id.
func (e *Engine) loadAll(team string) (map[int]*domain.Task, error) {
	dir := e.store.TaskDir(team)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[int]*domain.Task{}, nil
		}
		return nil, fmt.Errorf("%w: read task dir: %v", domain.ErrStorage, err)
	}
	tasks := make(map[int]*domain.Task)
	for _, ent := range entries {
		name := ent.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		var t domain.Task
		if err := e.store.ReadJSON(e.store.TaskPath(team, id), &t); err != nil {
			return nil, err
		}
		tasks[id] = &t
	}
	return tasks, nil
}

// Create allocates the next id and writes the new task, adding it to every
// referenced predecessor's blocks set. Runs under the tasks lock.
func (e *Engine) Create(team, subject, description string, blockedBy []int) (domain.Task, error) {
	if strings.TrimSpace(subject) == "" {
		return domain.Task{}, fmt.Errorf("%w: subject is required", domain.ErrInvalidArg)
	}
	var created domain.Task
	err := e.store.WithLock(e.store.TaskLockPath(team), func() error {
		tasks, err := e.loadAll(team)
		if err != nil {
			return err
		}
		nextID := 1
		for id := range tasks {
			if id >= nextID {
				nextID = id + 1
			}
		}
		preds := dedupe(blockedBy)
		for _, p := range preds {
			pt, ok := tasks[p]
			if !ok {
				return fmt.Errorf("%w: blockedBy task #%d not found", domain.ErrInvalidArg, p)
			}
			if pt.Status.Terminal() {
				return fmt.Errorf("%w: blockedBy task #%d is %s", domain.ErrInvalidArg, p, pt.Status)
			}
		}
		// A fresh node has no outgoing blocks edges, so no predecessor chain
		// can lead back to it; the reachability check guards the invariant anyway.
		if reaches(tasks, preds, nextID) {
			return fmt.Errorf("%w: blockedBy %v", domain.ErrCycle, preds)
		}
		now := domain.NowMillis()
		t := domain.Task{
			ID:          nextID,
			Subject:     subject,
			Description: description,
			Status:      domain.TaskPending,
			Blocks:      []int{},
			BlockedBy:   preds,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		dirty := map[int]*domain.Task{nextID: &t}
		for _, p := range preds {
			pt := tasks[p]
			pt.Blocks = addID(pt.Blocks, nextID)
			pt.UpdatedAt = now
			dirty[p] = pt
		}
		if err := e.writeAll(team, dirty); err != nil {
			return err
		}
		created = t
		return nil
	})
	return created, err
}

// Get returns one task by id.
func (e *Engine) Get(team string, id int) (domain.Task, error) {
	var t domain.Task
	if err := e.store.ReadJSON(e.store.TaskPath(team, id), &t); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// List returns every task for a team ordered by id. Reads without the lock;
// atomic writes guarantee each file is internally consistent.
func (e *Engine) List(team string) ([]domain.Task, error) {
	tasks, err := e.loadAll(team)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ApplyUpdate runs the four-phase update transaction under the tasks lock:
// read, validate, mutate, write. All validation happens before any write;
// a write failure after that point surfaces ErrStorage with possibly-partial
// state (the lock has serialized the caller, so no other writer interleaves).
func (e *Engine) ApplyUpdate(team string, id int, u Update) (Outcome, error) {
	var out Outcome
	err := e.store.WithLock(e.store.TaskLockPath(team), func() error {
		// Phase 1: read.
		tasks, err := e.loadAll(team)
		if err != nil {
			return err
		}
		t, ok := tasks[id]
		if !ok {
			return fmt.Errorf("%w: task #%d", domain.ErrNotFound, id)
		}

		// Phase 2: validate.
		newBlocks := t.Blocks
		if u.Blocks != nil {
			newBlocks = dedupe(*u.Blocks)
		}
		newBlockedBy := t.BlockedBy
		if u.BlockedBy != nil {
			newBlockedBy = dedupe(*u.BlockedBy)
		}
		for _, other := range append(append([]int{}, newBlocks...), newBlockedBy...) {
			if other == id {
				return fmt.Errorf("%w: task #%d cannot reference itself", domain.ErrInvalidArg, id)
			}
			if _, ok := tasks[other]; !ok {
				return fmt.Errorf("%w: referenced task #%d not found", domain.ErrInvalidArg, other)
			}
		}
		addedBlocks, removedBlocks := diffIDs(t.Blocks, newBlocks)
		addedPreds, removedPreds := diffIDs(t.BlockedBy, newBlockedBy)
		if (len(addedBlocks) > 0 || len(addedPreds) > 0) && t.Status.Terminal() {
			return fmt.Errorf("%w: task #%d is %s", domain.ErrInvalidArg, id, t.Status)
		}
		for _, a := range append(append([]int{}, addedBlocks...), addedPreds...) {
			if tasks[a].Status.Terminal() {
				return fmt.Errorf("%w: task #%d is %s", domain.ErrInvalidArg, a, tasks[a].Status)
			}
		}
		for _, r := range removedBlocks {
			if !containsID(t.Blocks, r) {
				return fmt.Errorf("%w: blocks edge #%d does not exist", domain.ErrInvalidArg, r)
			}
		}
		for _, r := range removedPreds {
			if !containsID(t.BlockedBy, r) {
				return fmt.Errorf("%w: blockedBy edge #%d does not exist", domain.ErrInvalidArg, r)
			}
		}
		for _, b := range newBlocks {
			if containsID(newBlockedBy, b) {
				return fmt.Errorf("%w: #%d appears in both blocks and blockedBy", domain.ErrCycle, b)
			}
		}
		// New predecessors must not already be able to reach this task, and
		// this task must not already reach any new successor: either way the
		// added edge would close a loop over blocks edges.
		if reaches(tasks, addedPreds, id) {
			return fmt.Errorf("%w: blockedBy %v would close a loop", domain.ErrCycle, addedPreds)
		}
		for _, b := range addedBlocks {
			if reachesOne(tasks, id, b) {
				return fmt.Errorf("%w: blocks #%d would close a loop", domain.ErrCycle, b)
			}
		}
		if u.Status != nil {
			if !domain.ValidStatus(*u.Status) {
				return fmt.Errorf("%w: status %q", domain.ErrInvalidArg, *u.Status)
			}
			if !domain.CanTransition(t.Status, *u.Status) {
				return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, t.Status, *u.Status)
			}
			if *u.Status == domain.TaskInProgress && len(newBlockedBy) > 0 {
				return fmt.Errorf("%w: task #%d is blocked by %v", domain.ErrIllegalTransition, id, newBlockedBy)
			}
		}
		if u.Subject != nil && strings.TrimSpace(*u.Subject) == "" {
			return fmt.Errorf("%w: subject cannot be empty", domain.ErrInvalidArg)
		}

		// Phase 3: mutate.
		now := domain.NowMillis()
		dirty := map[int]*domain.Task{id: t}
		if u.Subject != nil {
			t.Subject = *u.Subject
		}
		if u.Description != nil {
			t.Description = *u.Description
		}
		if u.Owner != nil {
			out.PrevOwner = t.Owner
			t.Owner = *u.Owner
			if *u.Owner != "" && *u.Owner != out.PrevOwner {
				out.OwnerSet = *u.Owner
			}
		}
		t.Blocks = newBlocks
		t.BlockedBy = newBlockedBy
		for _, a := range addedBlocks {
			o := tasks[a]
			o.BlockedBy = addID(o.BlockedBy, id)
			o.UpdatedAt = now
			dirty[a] = o
		}
		for _, r := range removedBlocks {
			o := tasks[r]
			o.BlockedBy = removeID(o.BlockedBy, id)
			o.UpdatedAt = now
			dirty[r] = o
		}
		for _, a := range addedPreds {
			o := tasks[a]
			o.Blocks = addID(o.Blocks, id)
			o.UpdatedAt = now
			dirty[a] = o
		}
		for _, r := range removedPreds {
			o := tasks[r]
			o.Blocks = removeID(o.Blocks, id)
			o.UpdatedAt = now
			dirty[r] = o
		}
		if u.Status != nil {
			t.Status = *u.Status
			if *u.Status == domain.TaskCompleted {
				out.Completed = true
				for _, b := range t.Blocks {
					o := tasks[b]
					o.BlockedBy = removeID(o.BlockedBy, id)
					o.UpdatedAt = now
					if len(o.BlockedBy) == 0 {
						out.Unblocked = append(out.Unblocked, o.ID)
					}
					dirty[b] = o
				}
				t.Blocks = []int{}
			}
		}
		t.UpdatedAt = now

		// Phase 4: write.
		if err := e.writeAll(team, dirty); err != nil {
			return err
		}
		out.Task = *t
		return nil
	})
	return out, err
}

// ReleaseOwner resets owner to empty on every task owned by agent, keeping
// task state intact. Used when a teammate is removed.
func (e *Engine) ReleaseOwner(team, agent string) error {
	return e.store.WithLock(e.store.TaskLockPath(team), func() error {
		tasks, err := e.loadAll(team)
		if err != nil {
			return err
		}
		now := domain.NowMillis()
		for _, t := range tasks {
			if t.Owner == agent {
				t.Owner = ""
				t.UpdatedAt = now
				if err := e.store.WriteJSON(e.store.TaskPath(team, t.ID), t); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// writeAll persists every dirty task in ascending id order.
func (e *Engine) writeAll(team string, dirty map[int]*domain.Task) error {
	ids := make([]int, 0, len(dirty))
	for id := range dirty {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if err := e.store.WriteJSON(e.store.TaskPath(team, id), dirty[id]); err != nil {
			return err
		}
	}
	return nil
}

// reaches reports whether id is reachable from any of starts by walking
// blockedBy edges upward. Used to reject a predecessor set that would close
// a loop over blocks edges.
func reaches(tasks map[int]*domain.Task, starts []int, id int) bool {
	for _, s := range starts {
		if reachesOne(tasks, s, id) {
			return true
		}
	}
	return false
}

// reachesOne is a BFS from `from` over blockedBy edges looking for `to`.
func reachesOne(tasks map[int]*domain.Task, from, to int) bool {
	if from == to {
		return true
	}
	seen := map[int]bool{from: true}
	queue := []int{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		t, ok := tasks[cur]
		if !ok {
			continue
		}
		for _, p := range t.BlockedBy {
			if p == to {
				return true
			}
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	return false
}

func containsID(ids []int, id int) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func addID(ids []int, id int) []int {
	if containsID(ids, id) {
		return ids
	}
	out := append(ids, id)
	sort.Ints(out)
	return out
}

func removeID(ids []int, id int) []int {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

func dedupe(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, x := range ids {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	sort.Ints(out)
	return out
}

func diffIDs(old, new []int) (added, removed []int) {
	for _, n := range new {
		if !containsID(old, n) {
			added = append(added, n)
		}
	}
	for _, o := range old {
		if !containsID(new, o) {
			removed = append(removed, o)
		}
	}
	return added, removed
}
