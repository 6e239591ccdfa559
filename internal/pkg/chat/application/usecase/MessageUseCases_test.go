package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	chat "chatgate/internal/pkg/chat/application/domain"
	chatAdapter "chatgate/internal/pkg/chat/persistence/repository/adapter"
	userAdapter "chatgate/internal/repository/adapter"
	users "chatgate/internal/repository/port"
)

func directConversation(t *testing.T, repo *chatAdapter.MemChatRepository, userA, userB int64) int64 {
	t.Helper()
	id, err := repo.CreateConversation(context.Background(),
		chat.Conversation{Kind: chat.KindDirect, CreatedBy: userA},
		[]chat.Member{
			{UserID: userA, Role: chat.RoleUser},
			{UserID: userB, Role: chat.RoleUser},
		})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	return id
}

func sendText(t *testing.T, repo *chatAdapter.MemChatRepository, convID, senderID int64, text string) chat.Message {
	t.Helper()
	msg, _, err := NewSendMessageUseCase(repo).Execute(context.Background(), SendMessageInput{
		ConversationID: convID,
		SenderID:       senderID,
		Text:           text,
	})
	if err != nil {
		t.Fatalf("send %q: %v", text, err)
	}
	return *msg
}

func TestSendMessageAdvancesSenderReadWatermark(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	convID := directConversation(t, repo, 1, 2)

	msg := sendText(t, repo, convID, 1, "hello")

	sender, err := repo.GetMember(context.Background(), convID, 1)
	if err != nil {
		t.Fatalf("GetMember: %v", err)
	}
	if sender.LastReadMsg == nil || *sender.LastReadMsg != msg.ID {
		t.Fatalf("sender read watermark = %v, want %d", sender.LastReadMsg, msg.ID)
	}

	other, err := repo.GetMember(context.Background(), convID, 2)
	if err != nil {
		t.Fatalf("GetMember: %v", err)
	}
	if other.LastReadMsg != nil {
		t.Fatalf("recipient read watermark moved to %d without reading", *other.LastReadMsg)
	}
}

func TestSendMessageRejectsNonMember(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	convID := directConversation(t, repo, 1, 2)

	_, _, err := NewSendMessageUseCase(repo).Execute(context.Background(), SendMessageInput{
		ConversationID: convID,
		SenderID:       3,
		Text:           "hi",
	})
	if !errors.Is(err, chat.ErrNotMember) {
		t.Fatalf("err = %v, want ErrNotMember", err)
	}
}

func TestSendMessageValidation(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	convID := directConversation(t, repo, 1, 2)
	uc := NewSendMessageUseCase(repo)
	ctx := context.Background()

	if _, _, err := uc.Execute(ctx, SendMessageInput{ConversationID: convID, SenderID: 1, Text: "   "}); !errors.Is(err, chat.ErrEmptyMessage) {
		t.Fatalf("blank text: err = %v, want ErrEmptyMessage", err)
	}

	long := strings.Repeat("a", chat.MaxMessageLen+1)
	if _, _, err := uc.Execute(ctx, SendMessageInput{ConversationID: convID, SenderID: 1, Text: long}); !errors.Is(err, chat.ErrMessageTooLong) {
		t.Fatalf("long text: err = %v, want ErrMessageTooLong", err)
	}

	exact := strings.Repeat("б", chat.MaxMessageLen) // runes, not bytes
	if _, _, err := uc.Execute(ctx, SendMessageInput{ConversationID: convID, SenderID: 1, Text: exact}); err != nil {
		t.Fatalf("limit-length text rejected: %v", err)
	}

	missing := int64(404)
	if _, _, err := uc.Execute(ctx, SendMessageInput{ConversationID: convID, SenderID: 1, AttachmentID: &missing}); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("unknown attachment: err = %v, want ErrNotFound", err)
	}
}

func TestSendMessageResolvesAttachment(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	convID := directConversation(t, repo, 1, 2)
	ctx := context.Background()

	attID, err := repo.CreateAttachment(ctx, chat.Attachment{
		UploaderID: 1, StorageKey: "k.png", OriginalName: "k.png", MimeType: "image/png", Size: 10,
	})
	if err != nil {
		t.Fatalf("CreateAttachment: %v", err)
	}

	msg, att, err := NewSendMessageUseCase(repo).Execute(ctx, SendMessageInput{
		ConversationID: convID, SenderID: 1, AttachmentID: &attID,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if msg.AttachmentID == nil || *msg.AttachmentID != attID {
		t.Fatalf("message attachment id = %v, want %d", msg.AttachmentID, attID)
	}
	if att == nil || att.ID != attID {
		t.Fatalf("resolved attachment = %+v, want id %d", att, attID)
	}
}

func TestMarkReadIsMonotonic(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	convID := directConversation(t, repo, 1, 2)
	ctx := context.Background()

	first := sendText(t, repo, convID, 1, "one")
	sendText(t, repo, convID, 1, "two")
	third := sendText(t, repo, convID, 1, "three")

	uc := NewMarkReadUseCase(repo)
	effective, err := uc.Execute(ctx, MarkReadInput{ConversationID: convID, UserID: 2, UpToID: third.ID})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if effective != third.ID {
		t.Fatalf("effective = %d, want %d", effective, third.ID)
	}

	// a stale update is a no-op that still reports the standing watermark
	effective, err = uc.Execute(ctx, MarkReadInput{ConversationID: convID, UserID: 2, UpToID: first.ID})
	if err != nil {
		t.Fatalf("stale Execute: %v", err)
	}
	if effective != third.ID {
		t.Fatalf("stale update moved watermark to %d, want %d", effective, third.ID)
	}
}

func TestMarkReadValidatesTargetMessage(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	convA := directConversation(t, repo, 1, 2)
	convB := directConversation(t, repo, 1, 3)
	other := sendText(t, repo, convB, 1, "elsewhere")

	uc := NewMarkReadUseCase(repo)
	ctx := context.Background()

	if _, err := uc.Execute(ctx, MarkReadInput{ConversationID: convA, UserID: 2, UpToID: 9999}); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("unknown message: err = %v, want ErrNotFound", err)
	}
	if _, err := uc.Execute(ctx, MarkReadInput{ConversationID: convA, UserID: 2, UpToID: other.ID}); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("foreign message: err = %v, want ErrNotFound", err)
	}
	if _, err := uc.Execute(ctx, MarkReadInput{ConversationID: convB, UserID: 2, UpToID: other.ID}); !errors.Is(err, chat.ErrNotMember) {
		t.Fatalf("non-member: err = %v, want ErrNotMember", err)
	}
}

func TestMarkDeliveredIsMonotonic(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	convID := directConversation(t, repo, 1, 2)
	ctx := context.Background()

	first := sendText(t, repo, convID, 1, "one")
	second := sendText(t, repo, convID, 1, "two")

	uc := NewMarkDeliveredUseCase(repo)
	if _, err := uc.Execute(ctx, MarkDeliveredInput{ConversationID: convID, UserID: 2, UpToID: second.ID}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	effective, err := uc.Execute(ctx, MarkDeliveredInput{ConversationID: convID, UserID: 2, UpToID: first.ID})
	if err != nil {
		t.Fatalf("stale Execute: %v", err)
	}
	if effective != second.ID {
		t.Fatalf("stale delivery moved watermark to %d, want %d", effective, second.ID)
	}
}

func TestFetchMessagesPagination(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	convID := directConversation(t, repo, 1, 2)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, sendText(t, repo, convID, 1, "m").ID)
	}

	uc := NewFetchMessagesUseCase(repo)

	newest, err := uc.Execute(ctx, FetchMessagesInput{ConversationID: convID, UserID: 2, Limit: 2})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(newest) != 2 || newest[0].ID != ids[3] || newest[1].ID != ids[4] {
		t.Fatalf("newest page = %v, want ascending [%d %d]", pageIDs(newest), ids[3], ids[4])
	}

	older, err := uc.Execute(ctx, FetchMessagesInput{ConversationID: convID, UserID: 2, BeforeID: &newest[0].ID, Limit: 2})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(older) != 2 || older[0].ID != ids[1] || older[1].ID != ids[2] {
		t.Fatalf("older page = %v, want [%d %d]", pageIDs(older), ids[1], ids[2])
	}
}

func pageIDs(msgs []chat.Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestFetchMessagesClampsLimit(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	convID := directConversation(t, repo, 1, 2)
	ctx := context.Background()

	for i := 0; i < MaxFetchLimit+20; i++ {
		sendText(t, repo, convID, 1, "m")
	}

	uc := NewFetchMessagesUseCase(repo)
	page, err := uc.Execute(ctx, FetchMessagesInput{ConversationID: convID, UserID: 2, Limit: 500})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(page) != MaxFetchLimit {
		t.Fatalf("oversized limit returned %d messages, want %d", len(page), MaxFetchLimit)
	}

	page, err = uc.Execute(ctx, FetchMessagesInput{ConversationID: convID, UserID: 2})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(page) != DefaultFetchLimit {
		t.Fatalf("default limit returned %d messages, want %d", len(page), DefaultFetchLimit)
	}
}

func TestFetchMessagesBlanksDeletedText(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	convID := directConversation(t, repo, 1, 2)
	ctx := context.Background()

	msg := sendText(t, repo, convID, 1, "secret")
	if _, err := repo.SoftDeleteMessage(ctx, msg.ID, 1, ""); err != nil {
		t.Fatalf("SoftDeleteMessage: %v", err)
	}

	page, err := NewFetchMessagesUseCase(repo).Execute(ctx, FetchMessagesInput{ConversationID: convID, UserID: 2})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("deleted message dropped from history, got %d rows", len(page))
	}
	if !page[0].IsDeleted || page[0].Text != "" {
		t.Fatalf("deleted message leaked text %q", page[0].Text)
	}
}

func moderationFixture(t *testing.T) (*chatAdapter.MemChatRepository, *userAdapter.MemUserRepository, int64, chat.Message) {
	t.Helper()
	repo := chatAdapter.NewMemChatRepository()
	dir := userAdapter.NewMemUserRepository()
	dir.Put(users.User{ID: 1, Role: "customer", IsActive: true})
	dir.Put(users.User{ID: 2, Role: "customer", IsActive: true})
	dir.Put(users.User{ID: 3, Role: "operator", IsActive: true})

	convID := directConversation(t, repo, 1, 2)
	msg := sendText(t, repo, convID, 1, "offending")
	return repo, dir, convID, msg
}

func TestDeleteMessagePermissions(t *testing.T) {
	repo, dir, convID, msg := moderationFixture(t)
	uc := NewDeleteMessageUseCase(repo, dir)
	ctx := context.Background()

	// another plain member may not delete someone else's message
	if _, err := uc.Execute(ctx, DeleteMessageInput{MessageID: msg.ID, ActorID: 2}); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("non-sender member: err = %v, want ErrForbidden", err)
	}

	// an operator outside the conversation may not either
	if _, err := uc.Execute(ctx, DeleteMessageInput{MessageID: msg.ID, ActorID: 3}); !errors.Is(err, chat.ErrNotMember) {
		t.Fatalf("outside operator: err = %v, want ErrNotMember", err)
	}

	res, err := uc.Execute(ctx, DeleteMessageInput{MessageID: msg.ID, ActorID: 1, Reason: "typo"})
	if err != nil {
		t.Fatalf("sender delete: %v", err)
	}
	if res.AlreadyDeleted || res.ConversationID != convID {
		t.Fatalf("result = %+v", res)
	}

	got, err := repo.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if !got.IsDeleted || got.VisibleText() != "" {
		t.Fatalf("message not blanked after delete: %+v", got)
	}
}

func TestDeleteMessageTwiceIsNoOp(t *testing.T) {
	repo, dir, _, msg := moderationFixture(t)
	uc := NewDeleteMessageUseCase(repo, dir)
	ctx := context.Background()

	if _, err := uc.Execute(ctx, DeleteMessageInput{MessageID: msg.ID, ActorID: 1}); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	res, err := uc.Execute(ctx, DeleteMessageInput{MessageID: msg.ID, ActorID: 1})
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if !res.AlreadyDeleted {
		t.Fatal("second delete not reported as already deleted")
	}
}

func TestOperatorMemberMayDelete(t *testing.T) {
	repo, dir, convID, msg := moderationFixture(t)
	ctx := context.Background()

	if err := repo.AddMember(ctx, chat.Member{ConversationID: convID, UserID: 3, Role: chat.RoleSupport}); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	res, err := NewDeleteMessageUseCase(repo, dir).Execute(ctx, DeleteMessageInput{MessageID: msg.ID, ActorID: 3, Reason: "abuse"})
	if err != nil {
		t.Fatalf("operator delete: %v", err)
	}
	if res.AlreadyDeleted {
		t.Fatal("fresh delete reported as already deleted")
	}
}

func TestReportMessage(t *testing.T) {
	repo, _, _, msg := moderationFixture(t)
	uc := NewReportMessageUseCase(repo)
	ctx := context.Background()

	if _, err := uc.Execute(ctx, ReportMessageInput{MessageID: msg.ID, ReporterID: 9}); !errors.Is(err, chat.ErrNotMember) {
		t.Fatalf("outsider report: err = %v, want ErrNotMember", err)
	}

	id, err := uc.Execute(ctx, ReportMessageInput{MessageID: msg.ID, ReporterID: 2, Reason: "  spam  "})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if id == 0 {
		t.Fatal("report id not assigned")
	}

	reports := repo.Reports()
	if len(reports) != 1 || reports[0].Reason != "spam" || reports[0].MessageID != msg.ID {
		t.Fatalf("stored reports = %+v", reports)
	}

	// reporting never mutates the message
	got, err := repo.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.IsDeleted || got.Text != "offending" {
		t.Fatalf("report mutated the message: %+v", got)
	}
}
