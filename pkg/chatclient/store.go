package chatclient

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	chatevents "scope-chat/pkg/events"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusEdited  Status = "edited"
	StatusDeleted Status = "deleted"
	// StatusPending and StatusFailed only apply to optimistic entries.
	StatusPending Status = "pending"
	StatusFailed  Status = "failed"
)

// Entry is one row of the rendered list. Confirmed entries have ID > 0;
// optimistic ones carry a TempID until the server echo arrives.
type Entry struct {
	Message
	TempID    string
	Status    Status
	Reactions map[string][]int64
	Err       error
}

// Key identifies the entry in the store.
func (e Entry) Key() string {
	if e.ID > 0 {
		return confirmedKey(e.ID)
	}
	return e.TempID
}

func confirmedKey(id int64) string {
	return "id:" + strconv.FormatInt(id, 10)
}

// Store merges history pages, live events and optimistic sends for one chat
// into a single list ordered by message id. Merging is idempotent by id.
type Store struct {
	chatID int64

	mu        sync.RWMutex
	byID      map[int64]*Entry
	pending   map[string]*Entry
	pendOrder []string
	typing    map[int64]time.Time
	listeners []func()
}

func NewStore(chatID int64) *Store {
	return &Store{
		chatID:  chatID,
		byID:    make(map[int64]*Entry),
		pending: make(map[string]*Entry),
		typing:  make(map[int64]time.Time),
	}
}

func (s *Store) ChatID() int64 {
	return s.chatID
}

// OnChange registers a callback run after every mutation.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.RLock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

// Messages returns confirmed entries in id order followed by optimistic
// entries in send order.
func (s *Store) Messages() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Entry, 0, len(ids)+len(s.pendOrder))
	for _, id := range ids {
		out = append(out, copyEntry(s.byID[id]))
	}
	for _, key := range s.pendOrder {
		out = append(out, copyEntry(s.pending[key]))
	}
	return out
}

// Get returns the confirmed entry with id.
func (s *Store) Get(id int64) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(e), true
}

// Len counts confirmed and optimistic entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID) + len(s.pendOrder)
}

// OldestID is the smallest confirmed id, used as the next history cursor.
func (s *Store) OldestID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var oldest int64
	for id := range s.byID {
		if oldest == 0 || id < oldest {
			oldest = id
		}
	}
	return oldest
}

// AddOptimistic inserts a local entry for a send in flight and returns its
// temporary key.
func (s *Store) AddOptimistic(senderID int64, content string) string {
	key := "tmp:" + uuid.NewString()
	now := time.Now().UTC()
	s.mu.Lock()
	s.pending[key] = &Entry{
		Message: Message{
			ChatID:      s.chatID,
			SenderID:    senderID,
			Content:     content,
			MessageType: "text",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		TempID: key,
		Status: StatusPending,
	}
	s.pendOrder = append(s.pendOrder, key)
	s.mu.Unlock()
	s.notify()
	return key
}

// Confirm replaces the optimistic entry with the server copy. If the echo
// already arrived the optimistic entry is simply dropped.
func (s *Store) Confirm(tempKey string, msg Message) {
	s.mu.Lock()
	s.removePendingLocked(tempKey)
	s.insertLocked(msg)
	s.mu.Unlock()
	s.notify()
}

// Fail marks an optimistic entry as failed. It stays visible until retried
// or discarded.
func (s *Store) Fail(tempKey string, err error) {
	s.mu.Lock()
	e, ok := s.pending[tempKey]
	if ok {
		e.Status = StatusFailed
		e.Err = err
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
}

// Retry puts a failed entry back in flight and returns its content. Each
// retry is a new attempt under the same key.
func (s *Store) Retry(tempKey string) (string, bool) {
	s.mu.Lock()
	e, ok := s.pending[tempKey]
	if !ok || e.Status != StatusFailed {
		s.mu.Unlock()
		return "", false
	}
	e.Status = StatusPending
	e.Err = nil
	content := e.Content
	s.mu.Unlock()
	s.notify()
	return content, true
}

// Discard drops an optimistic entry.
func (s *Store) Discard(tempKey string) {
	s.mu.Lock()
	_, ok := s.pending[tempKey]
	s.removePendingLocked(tempKey)
	s.mu.Unlock()
	if ok {
		s.notify()
	}
}

func (s *Store) removePendingLocked(key string) {
	if _, ok := s.pending[key]; !ok {
		return
	}
	delete(s.pending, key)
	for i, k := range s.pendOrder {
		if k == key {
			s.pendOrder = append(s.pendOrder[:i], s.pendOrder[i+1:]...)
			break
		}
	}
}

// Insert merges a confirmed message. A message whose id is present is a
// duplicate and is ignored. It reports whether the message was new.
func (s *Store) Insert(msg Message) bool {
	s.mu.Lock()
	added := s.insertLocked(msg)
	s.mu.Unlock()
	if added {
		s.notify()
	}
	return added
}

// MergePage merges a history page and reports how many entries it added or
// refreshed. A page is authoritative for its id range: an entry with a newer
// server copy is replaced (its reactions kept), and a known entry inside
// the range that the page no longer lists was deleted while the client was
// not listening.
func (s *Store) MergePage(messages []Message) int {
	changed := 0
	s.mu.Lock()
	var lo, hi int64
	listed := make(map[int64]struct{}, len(messages))
	for _, m := range messages {
		if m.ID <= 0 || m.ChatID != s.chatID {
			continue
		}
		listed[m.ID] = struct{}{}
		if lo == 0 || m.ID < lo {
			lo = m.ID
		}
		if m.ID > hi {
			hi = m.ID
		}
		if s.insertLocked(m) || s.refreshLocked(m) {
			changed++
		}
	}
	if len(listed) > 0 {
		now := time.Now().UTC()
		for id, entry := range s.byID {
			if id < lo || id > hi || entry.Status == StatusDeleted {
				continue
			}
			if _, ok := listed[id]; ok {
				continue
			}
			at := now
			entry.DeletedAt = &at
			entry.Status = StatusDeleted
			changed++
		}
	}
	s.mu.Unlock()
	if changed > 0 {
		s.notify()
	}
	return changed
}

func (s *Store) insertLocked(msg Message) bool {
	if msg.ID <= 0 || msg.ChatID != s.chatID {
		return false
	}
	if _, ok := s.byID[msg.ID]; ok {
		return false
	}
	s.byID[msg.ID] = &Entry{Message: msg, Status: statusOf(msg), Reactions: map[string][]int64{}}
	return true
}

// refreshLocked replaces a stored message with a newer server copy.
func (s *Store) refreshLocked(msg Message) bool {
	entry, ok := s.byID[msg.ID]
	if !ok || !newerCopy(entry.Message, msg) {
		return false
	}
	entry.Message = msg
	entry.Status = statusOf(msg)
	return true
}

func newerCopy(have, got Message) bool {
	if got.UpdatedAt.After(have.UpdatedAt) {
		return true
	}
	if got.EditedAt != nil && (have.EditedAt == nil || got.EditedAt.After(*have.EditedAt)) {
		return true
	}
	return got.DeletedAt != nil && have.DeletedAt == nil
}

func statusOf(m Message) Status {
	switch {
	case m.DeletedAt != nil:
		return StatusDeleted
	case m.EditedAt != nil:
		return StatusEdited
	default:
		return StatusActive
	}
}

// Apply folds a live event into the store. Events for other chats and
// patches for unknown ids are dropped. It reports whether anything changed.
func (s *Store) Apply(e Event) bool {
	if e.ChatID != s.chatID {
		return false
	}
	var changed bool
	switch e.Kind {
	case chatevents.KindNewMessage:
		var m Message
		if e.Decode(&m) != nil {
			return false
		}
		return s.Insert(m)
	case chatevents.KindMessageUpdated:
		var m Message
		if e.Decode(&m) != nil {
			return false
		}
		changed = s.patch(m.ID, func(entry *Entry) {
			entry.Content = m.Content
			entry.EditedAt = m.EditedAt
			entry.UpdatedAt = m.UpdatedAt
			entry.TaskID = m.TaskID
			if entry.Status != StatusDeleted {
				entry.Status = statusOf(entry.Message)
			}
		})
	case chatevents.KindMessageDeleted:
		var p chatevents.MessageDeletedPayload
		if e.Decode(&p) != nil {
			return false
		}
		changed = s.patch(p.MessageID, func(entry *Entry) {
			at := e.Timestamp
			entry.DeletedAt = &at
			entry.Status = StatusDeleted
		})
	case chatevents.KindReactionAdded, chatevents.KindReactionRemoved:
		var p chatevents.ReactionPayload
		if e.Decode(&p) != nil {
			return false
		}
		added := e.Kind == chatevents.KindReactionAdded
		changed = s.patch(p.MessageID, func(entry *Entry) {
			entry.Reactions[p.Emoji] = toggleUser(entry.Reactions[p.Emoji], p.UserID, added)
			if len(entry.Reactions[p.Emoji]) == 0 {
				delete(entry.Reactions, p.Emoji)
			}
		})
	case chatevents.KindMessageRead:
		var p chatevents.MessageReadPayload
		if e.Decode(&p) != nil {
			return false
		}
		changed = s.patch(p.MessageID, func(entry *Entry) {
			entry.ReadBy = toggleUser(entry.ReadBy, p.UserID, true)
		})
	case chatevents.KindTyping:
		var p chatevents.TypingPayload
		if e.Decode(&p) != nil {
			return false
		}
		s.mu.Lock()
		s.typing[p.UserID] = time.Now()
		s.mu.Unlock()
		changed = true
	}
	if changed {
		s.notify()
	}
	return changed
}

func (s *Store) patch(id int64, fn func(*Entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.byID[id]
	if !ok {
		return false
	}
	fn(entry)
	return true
}

// TypingUsers lists users seen typing within ttl.
func (s *Store) TypingUsers(ttl time.Duration) []int64 {
	cutoff := time.Now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.typing))
	for id, at := range s.typing {
		if at.Before(cutoff) {
			delete(s.typing, id)
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetReactions replaces the reaction set of a confirmed message, typically
// after fetching it over REST.
func (s *Store) SetReactions(id int64, reactions []Reaction) bool {
	changed := s.patch(id, func(entry *Entry) {
		entry.Reactions = map[string][]int64{}
		for _, r := range reactions {
			entry.Reactions[r.Emoji] = toggleUser(entry.Reactions[r.Emoji], r.UserID, true)
		}
	})
	if changed {
		s.notify()
	}
	return changed
}

func toggleUser(ids []int64, userID int64, present bool) []int64 {
	for i, id := range ids {
		if id == userID {
			if present {
				return ids
			}
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	if present {
		return append(ids, userID)
	}
	return ids
}

func copyEntry(e *Entry) Entry {
	out := *e
	if e.Reactions != nil {
		out.Reactions = make(map[string][]int64, len(e.Reactions))
		for k, v := range e.Reactions {
			out.Reactions[k] = append([]int64(nil), v...)
		}
	}
	out.ReadBy = append([]int64(nil), e.ReadBy...)
	out.Mentions = append([]int64(nil), e.Mentions...)
	return out
}
