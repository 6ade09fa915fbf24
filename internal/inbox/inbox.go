// Package inbox implements per-agent message queues: append, read with
// optional read-marking, and bounded long-poll. All appends and read-marks
// for one team are serialized by that team's inbox lock.
package inbox

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/jaakkos/opencode-teams/internal/domain"
	"github.com/jaakkos/opencode-teams/internal/store"
	"github.com/jaakkos/opencode-teams/internal/team"
)

// pollStep bounds how long one recheck sleep lasts while long-polling.
const pollStep = 500 * time.Millisecond

// MaxPollTimeout caps a single poll call.
const MaxPollTimeout = 30 * time.Second

// Inbox mediates access to inbox files.
type Inbox struct {
	store *store.Store
	teams *team.Registry
}

// New returns an Inbox over st, using reg for membership checks.
func New(st *store.Store, reg *team.Registry) *Inbox {
	return &Inbox{store: st, teams: reg}
}

// Create writes an empty inbox file for a new member.
func (i *Inbox) Create(teamName, agent string) error {
	return i.store.WithLock(i.store.InboxLockPath(teamName), func() error {
		return i.store.WriteJSON(i.store.InboxPath(teamName, agent), []domain.Message{})
	})
}

// Remove deletes an agent's inbox file. Missing files are ignored so that
// kill cleanup stays idempotent.
func (i *Inbox) Remove(teamName, agent string) error {
	return i.store.WithLock(i.store.InboxLockPath(teamName), func() error {
		path := i.store.InboxPath(teamName, agent)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: remove inbox %s: %v", domain.ErrStorage, path, err)
		}
		return nil
	})
}

// Append adds msg to the recipient's inbox under the team inbox lock,
// assigning a UUID and timestamp when absent. Fails with ErrNotFound when
// the recipient is not a team member.
func (i *Inbox) Append(teamName, recipient string, msg domain.Message) (domain.Message, error) {
	t, err := i.teams.Read(teamName)
	if err != nil {
		return domain.Message{}, err
	}
	if !t.HasMember(recipient) {
		return domain.Message{}, fmt.Errorf("%w: recipient %q is not a member of %q", domain.ErrNotFound, recipient, teamName)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = domain.NowMillis()
	}
	msg.To = recipient
	err = i.store.WithLock(i.store.InboxLockPath(teamName), func() error {
		path := i.store.InboxPath(teamName, recipient)
		var msgs []domain.Message
		if i.store.Exists(path) {
			if err := i.store.ReadJSON(path, &msgs); err != nil {
				return err
			}
		}
		msgs = append(msgs, msg)
		return i.store.WriteJSON(path, msgs)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// Read returns all messages for agent in insertion order. When markAsRead is
// true the file is rewritten under the lock with readAt stamped on every
// returned message; otherwise the read is a lock-free best-effort snapshot
// (atomic writes mean the snapshot is never torn, only possibly stale).
func (i *Inbox) Read(teamName, agent string, markAsRead bool) ([]domain.Message, error) {
	path := i.store.InboxPath(teamName, agent)
	if !markAsRead {
		var msgs []domain.Message
		if err := i.store.ReadJSON(path, &msgs); err != nil {
			return nil, err
		}
		return msgs, nil
	}
	var out []domain.Message
	err := i.store.WithLock(i.store.InboxLockPath(teamName), func() error {
		var msgs []domain.Message
		if err := i.store.ReadJSON(path, &msgs); err != nil {
			return err
		}
		now := domain.NowMillis()
		changed := false
		for idx := range msgs {
			if msgs[idx].ReadAt == 0 {
				msgs[idx].ReadAt = now
				changed = true
			}
		}
		if changed {
			if err := i.store.WriteJSON(path, msgs); err != nil {
				return err
			}
		}
		out = msgs
		return nil
	})
	return out, err
}

// takeUnread removes the unread flag from every unread message and returns
// them, all under the inbox lock. Returns an empty slice when nothing is unread.
func (i *Inbox) takeUnread(teamName, agent string) ([]domain.Message, error) {
	path := i.store.InboxPath(teamName, agent)
	var out []domain.Message
	err := i.store.WithLock(i.store.InboxLockPath(teamName), func() error {
		var msgs []domain.Message
		if err := i.store.ReadJSON(path, &msgs); err != nil {
			return err
		}
		now := domain.NowMillis()
		for idx := range msgs {
			if msgs[idx].ReadAt == 0 {
				msgs[idx].ReadAt = now
				out = append(out, msgs[idx])
			}
		}
		if len(out) > 0 {
			return i.store.WriteJSON(path, msgs)
		}
		return nil
	})
	return out, err
}

// Poll returns unread messages, waiting up to timeout for one to arrive.
// Returned messages are marked read. The wait is a bounded recheck loop with
// a 500 ms step; an fsnotify watch on the inbox directory wakes it early when
// the recipient's file is rewritten. Cancellation via ctx returns whatever is
// currently readable, possibly the empty list. Timeout yields the empty list.
func (i *Inbox) Poll(ctx context.Context, teamName, agent string, timeout time.Duration) ([]domain.Message, error) {
	if timeout < 0 {
		return nil, fmt.Errorf("%w: negative timeout", domain.ErrInvalidArg)
	}
	if timeout > MaxPollTimeout {
		timeout = MaxPollTimeout
	}
	deadline := time.Now().Add(timeout)

	// Watch the directory, not the file: atomic writes rename a temp file
	// over the inbox, which replaces the watched inode.
	var events chan fsnotify.Event
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		if err := watcher.Add(i.store.InboxDir(teamName)); err == nil {
			events = make(chan fsnotify.Event, 16)
			go func() {
				defer close(events)
				for {
					select {
					case ev, ok := <-watcher.Events:
						if !ok {
							return
						}
						select {
						case events <- ev:
						default:
						}
					case <-ctx.Done():
						return
					}
				}
			}()
			defer watcher.Close()
		} else {
			watcher.Close()
		}
	}

	for {
		msgs, err := i.takeUnread(teamName, agent)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			return msgs, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return []domain.Message{}, nil
		}
		step := pollStep
		if remaining < step {
			step = remaining
		}
		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			msgs, err := i.takeUnread(teamName, agent)
			if err != nil {
				return nil, err
			}
			if msgs == nil {
				msgs = []domain.Message{}
			}
			return msgs, nil
		case <-events:
			timer.Stop()
		case <-timer.C:
		}
	}
}
