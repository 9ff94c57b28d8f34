package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"scope-chat/internal/domain/chat"
	scope_errors "scope-chat/pkg/errors"
)

type memberKey struct {
	chatID int64
	userID int64
}

type reactionKey struct {
	messageID int64
	userID    int64
	emoji     string
}

type memoryData struct {
	mu        sync.RWMutex
	txMu      sync.Mutex
	nextChat  int64
	nextMsg   int64
	chats     map[int64]chat.Chat
	members   map[memberKey]chat.Member
	messages  map[int64]chat.Message
	reactions map[reactionKey]chat.Reaction
}

// MemoryStore is an in-process Store. Transactions are serialized with every
// other write but not isolated from reads; a transaction whose fn fails is
// rolled back to the state it started from.
type MemoryStore struct {
	data *memoryData
	inTx bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &memoryData{
		chats:     make(map[int64]chat.Chat),
		members:   make(map[memberKey]chat.Member),
		messages:  make(map[int64]chat.Message),
		reactions: make(map[reactionKey]chat.Reaction),
	}}
}

func (s *MemoryStore) Chats() ChatRepository       { return memoryChats{s.data, s.inTx} }
func (s *MemoryStore) Messages() MessageRepository { return memoryMessages{s.data, s.inTx} }

func (s *MemoryStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.data.txMu.Lock()
	defer s.data.txMu.Unlock()
	saved := s.data.snapshot()
	if err := fn(&MemoryStore{data: s.data, inTx: true}); err != nil {
		s.data.restore(saved)
		return err
	}
	return nil
}

// write locks the data for a mutation. Writes outside a transaction wait for
// the running one, so a rollback only ever discards the transaction's own
// changes.
func (d *memoryData) write(inTx bool) func() {
	if !inTx {
		d.txMu.Lock()
	}
	d.mu.Lock()
	return func() {
		d.mu.Unlock()
		if !inTx {
			d.txMu.Unlock()
		}
	}
}

type memorySnapshot struct {
	nextChat  int64
	nextMsg   int64
	chats     map[int64]chat.Chat
	members   map[memberKey]chat.Member
	messages  map[int64]chat.Message
	reactions map[reactionKey]chat.Reaction
}

func (d *memoryData) snapshot() memorySnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	snap := memorySnapshot{
		nextChat:  d.nextChat,
		nextMsg:   d.nextMsg,
		chats:     make(map[int64]chat.Chat, len(d.chats)),
		members:   make(map[memberKey]chat.Member, len(d.members)),
		messages:  make(map[int64]chat.Message, len(d.messages)),
		reactions: make(map[reactionKey]chat.Reaction, len(d.reactions)),
	}
	for k, v := range d.chats {
		snap.chats[k] = v
	}
	for k, v := range d.members {
		snap.members[k] = v
	}
	for k, v := range d.messages {
		snap.messages[k] = cloneMessage(v)
	}
	for k, v := range d.reactions {
		snap.reactions[k] = v
	}
	return snap
}

func (d *memoryData) restore(snap memorySnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextChat, d.nextMsg = snap.nextChat, snap.nextMsg
	d.chats, d.members = snap.chats, snap.members
	d.messages, d.reactions = snap.messages, snap.reactions
}

func copyIDs(ids []int64) []int64 {
	out := make([]int64, len(ids))
	copy(out, ids)
	return out
}

func cloneMessage(m chat.Message) chat.Message {
	m.Mentions = copyIDs(m.Mentions)
	m.ReadBy = copyIDs(m.ReadBy)
	return m
}

type memoryChats struct {
	d  *memoryData
	tx bool
}

func (r memoryChats) Create(ctx context.Context, c *chat.Chat) error {
	defer r.d.write(r.tx)()
	r.d.nextChat++
	now := time.Now().UTC()
	c.ID = r.d.nextChat
	c.CreatedAt, c.UpdatedAt = now, now
	r.d.chats[c.ID] = *c
	return nil
}

func (r memoryChats) GetByID(ctx context.Context, id int64) (chat.Chat, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	c, ok := r.d.chats[id]
	if !ok {
		return chat.Chat{}, scope_errors.ErrNotFound
	}
	return c, nil
}

func (r memoryChats) Update(ctx context.Context, c chat.Chat) error {
	defer r.d.write(r.tx)()
	if _, ok := r.d.chats[c.ID]; !ok {
		return scope_errors.ErrNotFound
	}
	r.d.chats[c.ID] = c
	return nil
}

func (r memoryChats) Delete(ctx context.Context, id int64) error {
	defer r.d.write(r.tx)()
	if _, ok := r.d.chats[id]; !ok {
		return scope_errors.ErrNotFound
	}
	delete(r.d.chats, id)
	for k := range r.d.members {
		if k.chatID == id {
			delete(r.d.members, k)
		}
	}
	for mid, m := range r.d.messages {
		if m.ChatID != id {
			continue
		}
		delete(r.d.messages, mid)
		for k := range r.d.reactions {
			if k.messageID == mid {
				delete(r.d.reactions, k)
			}
		}
	}
	return nil
}

func (r memoryChats) GetUserChats(ctx context.Context, userID int64) ([]chat.Chat, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	chats := []chat.Chat{}
	for k := range r.d.members {
		if k.userID == userID {
			chats = append(chats, r.d.chats[k.chatID])
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		if !chats[i].UpdatedAt.Equal(chats[j].UpdatedAt) {
			return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
		}
		return chats[i].ID > chats[j].ID
	})
	return chats, nil
}

func (r memoryChats) GetProjectChats(ctx context.Context, projectID, userID int64) ([]chat.Chat, error) {
	return r.scoped(userID, func(c chat.Chat) bool { return c.ProjectID != nil && *c.ProjectID == projectID }), nil
}

func (r memoryChats) GetTeamChats(ctx context.Context, teamID, userID int64) ([]chat.Chat, error) {
	return r.scoped(userID, func(c chat.Chat) bool { return c.TeamID != nil && *c.TeamID == teamID }), nil
}

func (r memoryChats) scoped(userID int64, match func(chat.Chat) bool) []chat.Chat {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	chats := []chat.Chat{}
	for k := range r.d.members {
		if k.userID != userID {
			continue
		}
		if c := r.d.chats[k.chatID]; match(c) {
			chats = append(chats, c)
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		if !chats[i].CreatedAt.Equal(chats[j].CreatedAt) {
			return chats[i].CreatedAt.After(chats[j].CreatedAt)
		}
		return chats[i].ID > chats[j].ID
	})
	return chats
}

func (r memoryChats) Touch(ctx context.Context, id int64, at time.Time) error {
	defer r.d.write(r.tx)()
	c, ok := r.d.chats[id]
	if !ok {
		return scope_errors.ErrNotFound
	}
	if at.After(c.UpdatedAt) {
		c.UpdatedAt = at
		r.d.chats[id] = c
	}
	return nil
}

func (r memoryChats) FindDirect(ctx context.Context, userID1, userID2 int64) (chat.Chat, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	var (
		found chat.Chat
		ok    bool
	)
	for k := range r.d.members {
		if k.userID != userID1 {
			continue
		}
		c := r.d.chats[k.chatID]
		if c.Type != chat.TypeDirect {
			continue
		}
		if _, both := r.d.members[memberKey{chatID: c.ID, userID: userID2}]; !both {
			continue
		}
		if !ok || c.ID < found.ID {
			found, ok = c, true
		}
	}
	if !ok {
		return chat.Chat{}, scope_errors.ErrNotFound
	}
	return found, nil
}

// LockDirectPair is covered by WithTx serialization.
func (r memoryChats) LockDirectPair(ctx context.Context, userID1, userID2 int64) error {
	return nil
}

func (r memoryChats) AddMember(ctx context.Context, m *chat.Member) error {
	defer r.d.write(r.tx)()
	if _, ok := r.d.chats[m.ChatID]; !ok {
		return scope_errors.ErrNotFound
	}
	k := memberKey{chatID: m.ChatID, userID: m.UserID}
	if _, ok := r.d.members[k]; ok {
		return scope_errors.ErrAlreadyExists
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	r.d.members[k] = *m
	return nil
}

func (r memoryChats) RemoveMember(ctx context.Context, chatID, userID int64) error {
	defer r.d.write(r.tx)()
	k := memberKey{chatID: chatID, userID: userID}
	if _, ok := r.d.members[k]; !ok {
		return scope_errors.ErrNotFound
	}
	delete(r.d.members, k)
	return nil
}

func (r memoryChats) GetMember(ctx context.Context, chatID, userID int64) (chat.Member, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	m, ok := r.d.members[memberKey{chatID: chatID, userID: userID}]
	if !ok {
		return chat.Member{}, scope_errors.ErrNotFound
	}
	return m, nil
}

func (r memoryChats) GetMembers(ctx context.Context, chatID int64) ([]chat.Member, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	members := []chat.Member{}
	for k, m := range r.d.members {
		if k.chatID == chatID {
			members = append(members, m)
		}
	}
	sort.Slice(members, func(i, j int) bool {
		if !members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].JoinedAt.Before(members[j].JoinedAt)
		}
		return members[i].UserID < members[j].UserID
	})
	return members, nil
}

func (r memoryChats) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	_, ok := r.d.members[memberKey{chatID: chatID, userID: userID}]
	return ok, nil
}

func (r memoryChats) UpdateLastReadAt(ctx context.Context, chatID, userID int64, at time.Time) error {
	defer r.d.write(r.tx)()
	k := memberKey{chatID: chatID, userID: userID}
	m, ok := r.d.members[k]
	if !ok {
		return scope_errors.ErrNotFound
	}
	m.LastReadAt = &at
	r.d.members[k] = m
	return nil
}

type memoryMessages struct {
	d  *memoryData
	tx bool
}

func (r memoryMessages) Create(ctx context.Context, m *chat.Message) error {
	defer r.d.write(r.tx)()
	if _, ok := r.d.chats[m.ChatID]; !ok {
		return scope_errors.ErrNotFound
	}
	r.d.nextMsg++
	now := time.Now().UTC()
	m.ID = r.d.nextMsg
	m.CreatedAt, m.UpdatedAt = now, now
	if m.Mentions == nil {
		m.Mentions = []int64{}
	}
	if m.ReadBy == nil {
		m.ReadBy = []int64{}
	}
	r.d.messages[m.ID] = cloneMessage(*m)
	return nil
}

func (r memoryMessages) GetByID(ctx context.Context, id int64) (chat.Message, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	m, ok := r.d.messages[id]
	if !ok {
		return chat.Message{}, scope_errors.ErrNotFound
	}
	return cloneMessage(m), nil
}

func (r memoryMessages) GetChatMessages(ctx context.Context, chatID, before int64, limit int) ([]chat.Message, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	page := []chat.Message{}
	for _, m := range r.d.messages {
		if m.ChatID != chatID || m.DeletedAt != nil {
			continue
		}
		if before > 0 && m.ID >= before {
			continue
		}
		page = append(page, cloneMessage(m))
	}
	sort.Slice(page, func(i, j int) bool { return page[i].ID < page[j].ID })
	if limit > 0 && len(page) > limit {
		page = page[len(page)-limit:]
	}
	return page, nil
}

func (r memoryMessages) UpdateContent(ctx context.Context, id int64, content string, editedAt time.Time) error {
	defer r.d.write(r.tx)()
	m, ok := r.d.messages[id]
	if !ok || m.DeletedAt != nil {
		return scope_errors.ErrNotFound
	}
	m.Content = content
	m.EditedAt = &editedAt
	m.UpdatedAt = editedAt
	r.d.messages[id] = m
	return nil
}

func (r memoryMessages) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	defer r.d.write(r.tx)()
	m, ok := r.d.messages[id]
	if !ok || m.DeletedAt != nil {
		return scope_errors.ErrNotFound
	}
	m.DeletedAt = &at
	m.UpdatedAt = at
	r.d.messages[id] = m
	return nil
}

func (r memoryMessages) LinkTask(ctx context.Context, id, taskID int64) error {
	defer r.d.write(r.tx)()
	m, ok := r.d.messages[id]
	if !ok {
		return scope_errors.ErrNotFound
	}
	if m.TaskID != nil {
		return scope_errors.ErrAlreadyLinked
	}
	m.TaskID = &taskID
	m.UpdatedAt = time.Now().UTC()
	r.d.messages[id] = m
	return nil
}

func (r memoryMessages) AddReader(ctx context.Context, id, userID int64) error {
	defer r.d.write(r.tx)()
	m, ok := r.d.messages[id]
	if !ok {
		return scope_errors.ErrNotFound
	}
	if m.IsReadBy(userID) {
		return nil
	}
	m.ReadBy = append(copyIDs(m.ReadBy), userID)
	r.d.messages[id] = m
	return nil
}

func (r memoryMessages) GetUserMentions(ctx context.Context, userID int64, limit int) ([]chat.Message, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	out := []chat.Message{}
	for _, m := range r.d.messages {
		if m.DeletedAt != nil || !m.MentionsUser(userID) {
			continue
		}
		if _, member := r.d.members[memberKey{chatID: m.ChatID, userID: userID}]; !member {
			continue
		}
		out = append(out, cloneMessage(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memoryMessages) CountUnread(ctx context.Context, chatID, userID int64, since time.Time) (int64, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	var n int64
	for _, m := range r.d.messages {
		if m.ChatID == chatID && m.SenderID != userID && m.DeletedAt == nil && m.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (r memoryMessages) AddReaction(ctx context.Context, rc *chat.Reaction) (bool, error) {
	defer r.d.write(r.tx)()
	if _, ok := r.d.messages[rc.MessageID]; !ok {
		return false, scope_errors.ErrNotFound
	}
	k := reactionKey{messageID: rc.MessageID, userID: rc.UserID, emoji: rc.Emoji}
	if _, ok := r.d.reactions[k]; ok {
		return false, nil
	}
	if rc.CreatedAt.IsZero() {
		rc.CreatedAt = time.Now().UTC()
	}
	r.d.reactions[k] = *rc
	return true, nil
}

func (r memoryMessages) RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) (bool, error) {
	defer r.d.write(r.tx)()
	k := reactionKey{messageID: messageID, userID: userID, emoji: emoji}
	if _, ok := r.d.reactions[k]; !ok {
		return false, nil
	}
	delete(r.d.reactions, k)
	return true, nil
}

func (r memoryMessages) GetMessageReactions(ctx context.Context, messageID int64) ([]chat.Reaction, error) {
	r.d.mu.RLock()
	defer r.d.mu.RUnlock()
	out := []chat.Reaction{}
	for k, rc := range r.d.reactions {
		if k.messageID == messageID {
			out = append(out, rc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Emoji < out[j].Emoji
	})
	return out, nil
}
