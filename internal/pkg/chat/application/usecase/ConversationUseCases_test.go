package usecase

import (
	"context"
	"errors"
	"testing"

	"chatgate/internal/pkg/chat/application/assign"
	chat "chatgate/internal/pkg/chat/application/domain"
	chatAdapter "chatgate/internal/pkg/chat/persistence/repository/adapter"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
	userAdapter "chatgate/internal/repository/adapter"
	users "chatgate/internal/repository/port"
)

func conversationFixture(operatorIDs ...int64) (*chatAdapter.MemChatRepository, *userAdapter.MemUserRepository, *CreateConversationUseCase) {
	repo := chatAdapter.NewMemChatRepository()
	dir := userAdapter.NewMemUserRepository()
	dir.Put(users.User{ID: 1, Role: "customer", IsActive: true})
	dir.Put(users.User{ID: 2, Role: "customer", IsActive: true})
	dir.Put(users.User{ID: 3, Role: "customer", IsActive: true})
	for _, id := range operatorIDs {
		dir.Put(users.User{ID: id, Role: "operator", IsActive: true})
	}
	coord := assign.NewCoordinator(dir, repo)
	return repo, dir, NewCreateConversationUseCase(repo, dir, coord)
}

func TestCreateDirectConversationDedupes(t *testing.T) {
	repo, _, uc := conversationFixture()
	ctx := context.Background()

	first, err := uc.Execute(ctx, CreateConversationInput{CreatorID: 1, OtherUserID: 2})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !first.Created {
		t.Fatal("first request did not create a conversation")
	}

	// the other participant asking for the same pair reuses the thread
	second, err := uc.Execute(ctx, CreateConversationInput{CreatorID: 2, OtherUserID: 1})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if second.Created || second.ID != first.ID {
		t.Fatalf("duplicate pair got %+v, want reuse of %d", second, first.ID)
	}

	members, err := repo.MemberUserIDs(ctx, first.ID)
	if err != nil {
		t.Fatalf("MemberUserIDs: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("direct conversation has %d members", len(members))
	}
}

func TestCreateDirectConversationRejectsSelfAndUnknown(t *testing.T) {
	_, _, uc := conversationFixture()
	ctx := context.Background()

	if _, err := uc.Execute(ctx, CreateConversationInput{CreatorID: 1, OtherUserID: 1}); !errors.Is(err, chat.ErrSelfConversation) {
		t.Fatalf("self: err = %v, want ErrSelfConversation", err)
	}
	if _, err := uc.Execute(ctx, CreateConversationInput{CreatorID: 1, OtherUserID: 99}); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("unknown user: err = %v, want ErrNotFound", err)
	}
}

func TestCreateGroupConversation(t *testing.T) {
	repo, _, uc := conversationFixture()
	ctx := context.Background()

	res, err := uc.Execute(ctx, CreateConversationInput{
		CreatorID:      1,
		ParticipantIDs: []int64{2, 3, 99}, // 99 does not exist and is dropped
		Title:          "  weekend plans  ",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	conv, err := repo.GetConversation(ctx, res.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv.Kind != chat.KindGroup || conv.Title != "weekend plans" {
		t.Fatalf("conversation = %+v", conv)
	}

	members, err := repo.MemberUserIDs(ctx, res.ID)
	if err != nil {
		t.Fatalf("MemberUserIDs: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("group has %d members, want 3", len(members))
	}
}

func TestCreateGroupConversationNeedsTwoMembers(t *testing.T) {
	_, _, uc := conversationFixture()
	if _, err := uc.Execute(context.Background(), CreateConversationInput{CreatorID: 1}); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("lonely group: err = %v, want ErrNotFound", err)
	}
}

func TestCreateSupportConversationRotatesOperators(t *testing.T) {
	repo, _, uc := conversationFixture(10, 20)
	ctx := context.Background()

	resA, err := uc.Execute(ctx, CreateConversationInput{CreatorID: 1, Support: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	resB, err := uc.Execute(ctx, CreateConversationInput{CreatorID: 2, Support: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	convA, _ := repo.GetConversation(ctx, resA.ID)
	convB, _ := repo.GetConversation(ctx, resB.ID)
	if convA.AssignedTo == nil || convB.AssignedTo == nil {
		t.Fatal("support conversation missing assigned operator")
	}
	if *convA.AssignedTo == *convB.AssignedTo {
		t.Fatalf("both requests landed on operator %d", *convA.AssignedTo)
	}
}

func TestCreateSupportConversationReusesExisting(t *testing.T) {
	_, _, uc := conversationFixture(10)
	ctx := context.Background()

	first, err := uc.Execute(ctx, CreateConversationInput{CreatorID: 1, Support: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	second, err := uc.Execute(ctx, CreateConversationInput{CreatorID: 1, Support: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if second.Created || second.ID != first.ID {
		t.Fatalf("second request got %+v, want reuse of %d", second, first.ID)
	}
}

func TestCreateSupportConversationWithoutOperators(t *testing.T) {
	_, _, uc := conversationFixture()
	if _, err := uc.Execute(context.Background(), CreateConversationInput{CreatorID: 1, Support: true}); !errors.Is(err, chat.ErrNoOperators) {
		t.Fatalf("err = %v, want ErrNoOperators", err)
	}
}

func newSupportConversation(t *testing.T, repo *chatAdapter.MemChatRepository, creatorID int64) int64 {
	t.Helper()
	id, err := repo.CreateConversation(context.Background(),
		chat.Conversation{Kind: chat.KindSupport, CreatedBy: creatorID, Status: chat.StatusOpen},
		[]chat.Member{{UserID: creatorID, Role: chat.RoleUser}})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	return id
}

func TestSupportQueueAssign(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	convID := newSupportConversation(t, repo, 1)
	uc := NewSupportQueueUseCase(repo)
	ctx := context.Background()

	if err := uc.Assign(ctx, convID, 10); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	conv, _ := repo.GetConversation(ctx, convID)
	if conv.AssignedTo == nil || *conv.AssignedTo != 10 {
		t.Fatalf("assigned_to = %v, want 10", conv.AssignedTo)
	}

	member, err := repo.GetMember(ctx, convID, 10)
	if err != nil {
		t.Fatalf("GetMember: %v", err)
	}
	if member == nil || member.Role != chat.RoleSupport {
		t.Fatalf("operator membership = %+v", member)
	}

	// an explicit claim may take over an already assigned conversation
	if err := uc.Assign(ctx, convID, 20); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	conv, _ = repo.GetConversation(ctx, convID)
	if *conv.AssignedTo != 20 {
		t.Fatalf("assigned_to = %d after reassign, want 20", *conv.AssignedTo)
	}
}

func TestSupportQueueAssignRejectsClosed(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	convID := newSupportConversation(t, repo, 1)
	uc := NewSupportQueueUseCase(repo)
	ctx := context.Background()

	if err := uc.Close(ctx, convID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := uc.Assign(ctx, convID, 10); !errors.Is(err, chat.ErrConversationClosed) {
		t.Fatalf("err = %v, want ErrConversationClosed", err)
	}
}

func TestSupportQueueListFilters(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	openID := newSupportConversation(t, repo, 1)
	closedID := newSupportConversation(t, repo, 2)
	mineID := newSupportConversation(t, repo, 3)
	uc := NewSupportQueueUseCase(repo)
	ctx := context.Background()

	if err := uc.Close(ctx, closedID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := uc.Assign(ctx, mineID, 10); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	open, err := uc.List(ctx, repository.SupportQueueFilter{Status: chat.StatusOpen})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("open queue has %d entries, want 2", len(open))
	}

	unassigned, err := uc.List(ctx, repository.SupportQueueFilter{Assigned: "unassigned"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(unassigned) != 2 || !containsConv(unassigned, openID) || !containsConv(unassigned, closedID) {
		t.Fatalf("unassigned queue = %v", summaryIDs(unassigned))
	}

	mine, err := uc.List(ctx, repository.SupportQueueFilter{Assigned: "me", ViewerID: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(mine) != 1 || mine[0].Conversation.ID != mineID {
		t.Fatalf("my queue = %v, want [%d]", summaryIDs(mine), mineID)
	}
}

func containsConv(items []chat.ConversationSummary, id int64) bool {
	for _, s := range items {
		if s.Conversation.ID == id {
			return true
		}
	}
	return false
}

func summaryIDs(items []chat.ConversationSummary) []int64 {
	out := make([]int64, 0, len(items))
	for _, s := range items {
		out = append(out, s.Conversation.ID)
	}
	return out
}

func TestAutoAssignSweep(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	dir := userAdapter.NewMemUserRepository()
	dir.Put(users.User{ID: 10, Role: "operator", IsActive: true})
	dir.Put(users.User{ID: 20, Role: "operator", IsActive: true})
	uc := NewAutoAssignUseCase(repo, assign.NewCoordinator(dir, repo))
	ctx := context.Background()

	a := newSupportConversation(t, repo, 1)
	b := newSupportConversation(t, repo, 2)
	c := newSupportConversation(t, repo, 3)

	assigned, err := uc.Execute(ctx, 0)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if assigned != 3 {
		t.Fatalf("assigned = %d, want 3", assigned)
	}

	ops := make(map[int64]int)
	for _, id := range []int64{a, b, c} {
		conv, _ := repo.GetConversation(ctx, id)
		if conv.AssignedTo == nil {
			t.Fatalf("conversation %d left unassigned", id)
		}
		member, _ := repo.GetMember(ctx, id, *conv.AssignedTo)
		if member == nil || member.Role != chat.RoleSupport {
			t.Fatalf("conversation %d operator not a support member", id)
		}
		ops[*conv.AssignedTo]++
	}
	if ops[10] != 2 || ops[20] != 1 {
		t.Fatalf("rotation spread = %v, want 10:2 20:1", ops)
	}

	// the sweep is idempotent: nothing left to assign
	assigned, err = uc.Execute(ctx, 0)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if assigned != 0 {
		t.Fatalf("second sweep assigned %d, want 0", assigned)
	}
}

func TestAutoAssignRespectsLimit(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	dir := userAdapter.NewMemUserRepository()
	dir.Put(users.User{ID: 10, Role: "operator", IsActive: true})
	uc := NewAutoAssignUseCase(repo, assign.NewCoordinator(dir, repo))
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		newSupportConversation(t, repo, i)
	}

	assigned, err := uc.Execute(ctx, 2)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if assigned != 2 {
		t.Fatalf("assigned = %d, want 2", assigned)
	}
}

func TestAutoAssignStopsWithoutOperators(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	uc := NewAutoAssignUseCase(repo, assign.NewCoordinator(userAdapter.NewMemUserRepository(), repo))

	newSupportConversation(t, repo, 1)

	assigned, err := uc.Execute(context.Background(), 0)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if assigned != 0 {
		t.Fatalf("assigned = %d with no operators", assigned)
	}
}

func TestListConversationsShowsUnread(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	ctx := context.Background()

	convID, err := repo.CreateConversation(ctx,
		chat.Conversation{Kind: chat.KindDirect, CreatedBy: 1},
		[]chat.Member{{UserID: 1, Role: chat.RoleUser}, {UserID: 2, Role: chat.RoleUser}})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	msg := sendText(t, repo, convID, 1, "ping")

	uc := NewListConversationsUseCase(repo)

	items, err := uc.Execute(ctx, 2, "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(items) != 1 || items[0].UnreadCount != 1 {
		t.Fatalf("recipient inbox = %+v", items)
	}
	if items[0].LastMessage == nil || items[0].LastMessage.ID != msg.ID {
		t.Fatalf("last message preview = %+v", items[0].LastMessage)
	}

	// the sender's own message is already read
	items, err = uc.Execute(ctx, 1, "")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if items[0].UnreadCount != 0 {
		t.Fatalf("sender unread = %d, want 0", items[0].UnreadCount)
	}

	if _, err := NewMarkReadUseCase(repo).Execute(ctx, MarkReadInput{ConversationID: convID, UserID: 2, UpToID: msg.ID}); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	hasUnread, err := uc.HasUnread(ctx, 2)
	if err != nil {
		t.Fatalf("HasUnread: %v", err)
	}
	if hasUnread {
		t.Fatal("badge still set after reading everything")
	}
}
