package adapter

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	chat "chatgate/internal/pkg/chat/application/domain"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
)

// MemChatRepository is an in-memory ChatRepository with the same semantics as
// the Postgres adapter. It backs unit tests and local runs without a database.
// All state is guarded by one mutex; message ids are allocated from a single
// counter so they are globally comparable and strictly increasing.
type MemChatRepository struct {
	mu sync.Mutex

	nextConvID    int64
	nextMessageID int64
	nextReportID  int64
	nextAttachID  int64

	conversations map[int64]*chat.Conversation
	members       map[int64]map[int64]*chat.Member // conversation -> user -> member
	messages      []*chat.Message
	reports       []*chat.Report
	attachments   map[int64]*chat.Attachment
	lastOperator  *int64
}

func NewMemChatRepository() *MemChatRepository {
	return &MemChatRepository{
		conversations: make(map[int64]*chat.Conversation),
		members:       make(map[int64]map[int64]*chat.Member),
		attachments:   make(map[int64]*chat.Attachment),
	}
}

var _ repository.ChatRepository = (*MemChatRepository)(nil)
var _ repository.AssignmentStateStore = (*MemChatRepository)(nil)

// ===================== Conversations =====================

func (r *MemChatRepository) CreateConversation(_ context.Context, c chat.Conversation, members []chat.Member) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextConvID++
	c.ID = r.nextConvID
	if c.Status == "" {
		c.Status = chat.StatusOpen
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	r.conversations[c.ID] = &c
	r.members[c.ID] = make(map[int64]*chat.Member)
	for _, m := range members {
		m.ConversationID = c.ID
		r.addMemberLocked(m)
	}
	return c.ID, nil
}

func (r *MemChatRepository) GetConversation(_ context.Context, id int64) (*chat.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conversations[id]; ok {
		cc := *c
		return &cc, nil
	}
	return nil, nil
}

func (r *MemChatRepository) FindDirectBetween(_ context.Context, userA, userB int64) (*chat.Conversation, error) {
	return r.findPair(chat.KindDirect, userA, userB)
}

func (r *MemChatRepository) FindSupportFor(_ context.Context, userID int64) (*chat.Conversation, error) {
	return r.findPair(chat.KindSupport, userID, 0)
}

func (r *MemChatRepository) findPair(kind chat.ConversationKind, userA, userB int64) (*chat.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.conversations {
		if c.Kind != kind || len(r.members[id]) != 2 {
			continue
		}
		if _, ok := r.members[id][userA]; !ok {
			continue
		}
		if userB != 0 {
			if _, ok := r.members[id][userB]; !ok {
				continue
			}
		}
		cc := *c
		return &cc, nil
	}
	return nil, nil
}

func (r *MemChatRepository) ListConversationsFor(_ context.Context, userID int64, query string) ([]chat.ConversationSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []chat.ConversationSummary
	for id, c := range r.conversations {
		me, ok := r.members[id][userID]
		if !ok {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(c.Title), strings.ToLower(query)) {
			continue
		}
		s := chat.ConversationSummary{Conversation: *c}
		for _, m := range r.messages {
			if m.ConversationID != id {
				continue
			}
			mc := *m
			s.LastMessage = &mc
			if m.SenderID != userID && (me.LastReadMsg == nil || m.ID > *me.LastReadMsg) {
				s.UnreadCount++
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := int64(0), int64(0)
		if out[i].LastMessage != nil {
			li = out[i].LastMessage.ID
		}
		if out[j].LastMessage != nil {
			lj = out[j].LastMessage.ID
		}
		if li != lj {
			return li > lj
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *MemChatRepository) ListSupportQueue(_ context.Context, f repository.SupportQueueFilter) ([]chat.ConversationSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []chat.ConversationSummary
	for _, c := range r.conversations {
		if c.Kind != chat.KindSupport {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.Assigned == "me" && (c.AssignedTo == nil || *c.AssignedTo != f.ViewerID) {
			continue
		}
		if f.Assigned == "unassigned" && c.AssignedTo != nil {
			continue
		}
		s := chat.ConversationSummary{Conversation: *c}
		for _, m := range r.messages {
			if m.ConversationID == c.ID {
				mc := *m
				s.LastMessage = &mc
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Status != out[j].Status {
			return out[i].Status < out[j].Status
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemChatRepository) ListOpenUnassignedSupport(_ context.Context, limit int) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var convs []*chat.Conversation
	for _, c := range r.conversations {
		if c.Kind == chat.KindSupport && c.Status == chat.StatusOpen && c.AssignedTo == nil {
			convs = append(convs, c)
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].CreatedAt.Equal(convs[j].CreatedAt) {
			return convs[i].ID < convs[j].ID
		}
		return convs[i].CreatedAt.Before(convs[j].CreatedAt)
	})
	var ids []int64
	for _, c := range convs {
		if len(ids) == limit {
			break
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (r *MemChatRepository) AssignConversation(_ context.Context, conversationID, operatorID int64, onlyIfUnassigned bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[conversationID]
	if !ok || c.Kind != chat.KindSupport || c.Status != chat.StatusOpen {
		return false, nil
	}
	if onlyIfUnassigned && c.AssignedTo != nil {
		return false, nil
	}
	op := operatorID
	c.AssignedTo = &op
	return true, nil
}

func (r *MemChatRepository) CloseConversation(_ context.Context, conversationID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conversations[conversationID]
	if !ok || c.Kind != chat.KindSupport {
		return chat.ErrNotFound
	}
	c.Status = chat.StatusClosed
	return nil
}

// ===================== Members =====================

func (r *MemChatRepository) addMemberLocked(m chat.Member) {
	byUser := r.members[m.ConversationID]
	if byUser == nil {
		byUser = make(map[int64]*chat.Member)
		r.members[m.ConversationID] = byUser
	}
	if _, exists := byUser[m.UserID]; exists {
		return
	}
	if m.Role == "" {
		m.Role = chat.RoleUser
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	byUser[m.UserID] = &m
}

func (r *MemChatRepository) AddMember(_ context.Context, m chat.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addMemberLocked(m)
	return nil
}

func (r *MemChatRepository) IsMember(_ context.Context, conversationID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[conversationID][userID]
	return ok, nil
}

func (r *MemChatRepository) GetMember(_ context.Context, conversationID, userID int64) (*chat.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[conversationID][userID]; ok {
		mc := *m
		return &mc, nil
	}
	return nil, nil
}

func (r *MemChatRepository) ListMembers(_ context.Context, conversationID int64) ([]chat.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []chat.Member
	for _, m := range r.members[conversationID] {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *MemChatRepository) MemberUserIDs(_ context.Context, conversationID int64) ([]int64, error) {
	members, _ := r.ListMembers(context.Background(), conversationID)
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

// ===================== Messages =====================

func (r *MemChatRepository) AppendMessage(_ context.Context, m chat.Message) (chat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextMessageID++
	m.ID = r.nextMessageID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	mc := m
	r.messages = append(r.messages, &mc)

	if me, ok := r.members[m.ConversationID][m.SenderID]; ok {
		if me.LastReadMsg == nil || *me.LastReadMsg < m.ID {
			id := m.ID
			me.LastReadMsg = &id
		}
	}
	return m, nil
}

func (r *MemChatRepository) GetMessage(_ context.Context, id int64) (*chat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			mc := *m
			return &mc, nil
		}
	}
	return nil, nil
}

func (r *MemChatRepository) ListMessagesBefore(_ context.Context, conversationID int64, beforeID *int64, limit int) ([]chat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var page []chat.Message
	for i := len(r.messages) - 1; i >= 0 && len(page) < limit; i-- {
		m := r.messages[i]
		if m.ConversationID != conversationID {
			continue
		}
		if beforeID != nil && m.ID >= *beforeID {
			continue
		}
		page = append(page, *m)
	}
	// collected newest-first; callers get ascending order
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}

func (r *MemChatRepository) SearchMessages(_ context.Context, userID int64, conversationID *int64, query string, limit int) ([]chat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q := strings.ToLower(query)
	var out []chat.Message
	for i := len(r.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := r.messages[i]
		if m.IsDeleted {
			continue
		}
		if conversationID != nil && m.ConversationID != *conversationID {
			continue
		}
		if _, ok := r.members[m.ConversationID][userID]; !ok {
			continue
		}
		if !strings.Contains(strings.ToLower(m.Text), q) {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

func (r *MemChatRepository) SoftDeleteMessage(_ context.Context, messageID, actorID int64, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.messages {
		if m.ID != messageID {
			continue
		}
		if m.IsDeleted {
			return false, nil
		}
		now := time.Now().UTC()
		actor := actorID
		m.IsDeleted = true
		m.DeletedAt = &now
		m.DeletedBy = &actor
		m.DeleteReason = reason
		return true, nil
	}
	return false, chat.ErrNotFound
}

// ===================== Watermarks =====================

func (r *MemChatRepository) AdvanceRead(_ context.Context, conversationID, userID, upToID int64) (int64, error) {
	return r.advance(conversationID, userID, upToID, true)
}

func (r *MemChatRepository) AdvanceDelivered(_ context.Context, conversationID, userID, upToID int64) (int64, error) {
	return r.advance(conversationID, userID, upToID, false)
}

func (r *MemChatRepository) advance(conversationID, userID, upToID int64, read bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[conversationID][userID]
	if !ok {
		return 0, chat.ErrNotMember
	}
	mark := m.LastDeliveredMsg
	if read {
		mark = m.LastReadMsg
	}
	if mark != nil && *mark >= upToID {
		return *mark, nil
	}
	id := upToID
	if read {
		m.LastReadMsg = &id
	} else {
		m.LastDeliveredMsg = &id
	}
	return id, nil
}

func (r *MemChatRepository) HasUnread(_ context.Context, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.messages {
		me, ok := r.members[m.ConversationID][userID]
		if !ok || m.SenderID == userID {
			continue
		}
		if me.LastReadMsg == nil || m.ID > *me.LastReadMsg {
			return true, nil
		}
	}
	return false, nil
}

// ===================== Moderation & attachments =====================

func (r *MemChatRepository) CreateReport(_ context.Context, rep chat.Report) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextReportID++
	rep.ID = r.nextReportID
	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now().UTC()
	}
	r.reports = append(r.reports, &rep)
	return rep.ID, nil
}

// Reports returns a snapshot of all moderation reports (test helper).
func (r *MemChatRepository) Reports() []chat.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]chat.Report, 0, len(r.reports))
	for _, rep := range r.reports {
		out = append(out, *rep)
	}
	return out
}

func (r *MemChatRepository) CreateAttachment(_ context.Context, a chat.Attachment) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextAttachID++
	a.ID = r.nextAttachID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	r.attachments[a.ID] = &a
	return a.ID, nil
}

func (r *MemChatRepository) GetAttachment(_ context.Context, id int64) (*chat.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.attachments[id]; ok {
		ac := *a
		return &ac, nil
	}
	return nil, nil
}

func (r *MemChatRepository) SetAttachmentThumbnail(_ context.Context, id int64, thumbnailKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attachments[id]
	if !ok {
		return chat.ErrNotFound
	}
	key := thumbnailKey
	a.ThumbnailKey = &key
	return nil
}

// ===================== Assignment pointer =====================

func (r *MemChatRepository) LastOperator(_ context.Context) (*int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastOperator == nil {
		return nil, nil
	}
	id := *r.lastOperator
	return &id, nil
}

func (r *MemChatRepository) SetLastOperator(_ context.Context, operatorID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := operatorID
	r.lastOperator = &id
	return nil
}
