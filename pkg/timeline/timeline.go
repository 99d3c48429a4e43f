// Package timeline keeps a client's view of one conversation while its own
// sends are in flight. A locally authored message is shown at once under a
// temporary id, then swapped in place for the canonical record or removed
// when the send fails.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"directmsg/internal/entity"
)

type State int

// Failed is terminal: the entry leaves the timeline as it enters this state.
const (
	Pending State = iota
	Confirmed
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrUnknownTempId = errors.New("unknown temp id")
	ErrNotPending    = errors.New("entry is not pending")
)

// Entry is one rendered message. Pending entries have an empty Message.Id.
type Entry struct {
	Message entity.Message
	TempId  string
	State   State
}

// SendFunc performs the actual send and returns the canonical record.
type SendFunc func(ctx context.Context, draft entity.MessageDraft) (entity.Message, error)

// SendError carries the draft back to the caller so the input can be restored.
type SendError struct {
	Draft entity.MessageDraft
	Err   error
}

func (e *SendError) Error() string { return "send failed: " + e.Err.Error() }

func (e *SendError) Unwrap() error { return e.Err }

type Timeline struct {
	selfId string

	mu      sync.Mutex
	entries []Entry
	drafts  map[string]entity.MessageDraft
}

// New builds a timeline for selfId seeded with server history in ascending order.
func New(selfId string, history []entity.Message) *Timeline {
	t := &Timeline{
		selfId: selfId,
		drafts: make(map[string]entity.MessageDraft),
	}
	t.entries = confirmedEntries(history)
	return t
}

func confirmedEntries(history []entity.Message) []Entry {
	entries := make([]Entry, 0, len(history))
	for _, m := range history {
		entries = append(entries, Entry{Message: m, State: Confirmed})
	}
	return entries
}

// Begin renders draft as a pending entry at the end of the timeline and
// returns its temp id. A temp id already set on the draft is kept.
func (t *Timeline) Begin(draft entity.MessageDraft, now time.Time) string {
	if draft.TempId == "" {
		draft.TempId = uuid.NewString()
	}
	draft.SenderId = t.selfId

	t.mu.Lock()
	defer t.mu.Unlock()

	t.drafts[draft.TempId] = draft
	t.entries = append(t.entries, Entry{
		TempId: draft.TempId,
		State:  Pending,
		Message: entity.Message{
			SenderId:            t.selfId,
			RecipientId:         draft.RecipientId,
			Content:             draft.Content,
			SharedReviewRef:     draft.SharedReviewRef,
			SharedDiscussionRef: draft.SharedDiscussionRef,
			CreatedAt:           now,
			TempId:              draft.TempId,
		},
	})
	return draft.TempId
}

// Confirm replaces the pending entry for tempId with canonical, keeping its
// position. A copy of canonical that already arrived another way is dropped.
func (t *Timeline) Confirm(tempId string, canonical entity.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOfTemp(tempId)
	if i < 0 {
		return ErrUnknownTempId
	}
	if t.entries[i].State != Pending {
		return ErrNotPending
	}

	canonical.TempId = ""
	t.entries[i] = Entry{Message: canonical, TempId: tempId, State: Confirmed}
	delete(t.drafts, tempId)

	kept := t.entries[:0]
	for j, e := range t.entries {
		if j != i && e.Message.Id == canonical.Id {
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
	return nil
}

// Fail removes the pending entry for tempId and returns the draft it was
// built from.
func (t *Timeline) Fail(tempId string) (entity.MessageDraft, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOfTemp(tempId)
	if i < 0 {
		return entity.MessageDraft{}, ErrUnknownTempId
	}
	if t.entries[i].State != Pending {
		return entity.MessageDraft{}, ErrNotPending
	}

	draft := t.drafts[tempId]
	delete(t.drafts, tempId)
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	return draft, nil
}

// Send drives one send through Begin and then Confirm or Fail. On failure the
// returned error is a *SendError holding the original draft.
func (t *Timeline) Send(ctx context.Context, draft entity.MessageDraft, now time.Time, send SendFunc) (entity.Message, error) {
	tempId := t.Begin(draft, now)
	draft.TempId = tempId
	draft.SenderId = t.selfId

	m, err := send(ctx, draft)
	if err != nil {
		restored, ferr := t.Fail(tempId)
		if ferr != nil {
			restored = draft
		}
		return entity.Message{}, &SendError{Draft: restored, Err: err}
	}
	if err := t.Confirm(tempId, m); err != nil {
		return entity.Message{}, err
	}
	m.TempId = ""
	return m, nil
}

// Receive appends a pushed message. It reports false for a message the
// timeline already holds.
func (t *Timeline) Receive(m entity.Message) bool {
	if m.Id == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.indexOf(m.Id) >= 0 {
		return false
	}
	m.TempId = ""
	t.entries = append(t.entries, Entry{Message: m, State: Confirmed})
	return true
}

// Remove drops a deleted message. It reports whether anything was removed.
func (t *Timeline) Remove(messageId string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOf(messageId)
	if i < 0 {
		return false
	}
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	return true
}

// MarkReadBy stamps readAt on our own confirmed messages to reader that are
// still unread, mirroring a messages-read push.
func (t *Timeline) MarkReadBy(reader string, readAt time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for i := range t.entries {
		m := &t.entries[i].Message
		if t.entries[i].State != Confirmed || m.SenderId != t.selfId || m.RecipientId != reader || m.ReadAt != nil {
			continue
		}
		at := readAt
		m.ReadAt = &at
		n++
	}
	return n
}

// Reset replaces confirmed history after a reconnect. Pending entries stay
// at the end in their original order.
func (t *Timeline) Reset(history []entity.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := confirmedEntries(history)
	for _, e := range t.entries {
		if e.State == Pending {
			entries = append(entries, e)
		}
	}
	t.entries = entries
}

func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Timeline) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.drafts)
}

func (t *Timeline) indexOfTemp(tempId string) int {
	for i, e := range t.entries {
		if e.TempId == tempId && e.State == Pending {
			return i
		}
	}
	for i, e := range t.entries {
		if e.TempId == tempId {
			return i
		}
	}
	return -1
}

func (t *Timeline) indexOf(messageId string) int {
	if messageId == "" {
		return -1
	}
	for i, e := range t.entries {
		if e.Message.Id == messageId {
			return i
		}
	}
	return -1
}
