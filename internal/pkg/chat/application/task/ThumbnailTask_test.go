package task

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	qport "chatgate/internal/infrastructure/queue/port"
	chat "chatgate/internal/pkg/chat/application/domain"
	chatAdapter "chatgate/internal/pkg/chat/persistence/repository/adapter"
)

// stubServer collects handlers so tests can invoke them directly.
type stubServer struct {
	handlers map[string]qport.Handler
}

func newStubServer() *stubServer { return &stubServer{handlers: make(map[string]qport.Handler)} }

func (s *stubServer) Register(taskType string, h qport.Handler) { s.handlers[taskType] = h }

func (s *stubServer) Run(context.Context) error  { return nil }
func (s *stubServer) Stop(context.Context) error { return nil }

func (s *stubServer) invoke(t *testing.T, taskType string, payload any) error {
	t.Helper()
	h, ok := s.handlers[taskType]
	if !ok {
		t.Fatalf("no handler registered for %s", taskType)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return h(context.Background(), qport.Task{Type: taskType, Payload: b})
}

// stubStore fakes the blob layer; Thumbnail records the keys it was asked for.
type stubStore struct {
	thumbed []string
	fail    error
}

func (s *stubStore) Save(_ context.Context, key string, _ io.Reader) (string, error) {
	return "/media/" + key, nil
}

func (s *stubStore) Thumbnail(_ context.Context, key string) (string, error) {
	if s.fail != nil {
		return "", s.fail
	}
	s.thumbed = append(s.thumbed, key)
	return "thumb_" + key, nil
}

func (s *stubStore) URL(key string) string { return "/media/" + key }

func TestThumbnailTaskStoresKey(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	store := &stubStore{}
	srv := newStubServer()
	RegisterThumbnailTask(srv, repo, store, nil)

	ctx := context.Background()
	id, err := repo.CreateAttachment(ctx, chat.Attachment{
		UploaderID: 1, StorageKey: "pic.png", OriginalName: "pic.png", MimeType: "image/png", Size: 10,
	})
	if err != nil {
		t.Fatalf("CreateAttachment: %v", err)
	}

	if err := srv.invoke(t, TypeThumbnail, ThumbnailPayload{AttachmentID: id}); err != nil {
		t.Fatalf("handler: %v", err)
	}

	att, err := repo.GetAttachment(ctx, id)
	if err != nil {
		t.Fatalf("GetAttachment: %v", err)
	}
	if att.ThumbnailKey == nil || *att.ThumbnailKey != "thumb_pic.png" {
		t.Fatalf("thumbnail key = %v", att.ThumbnailKey)
	}
	if len(store.thumbed) != 1 || store.thumbed[0] != "pic.png" {
		t.Fatalf("store asked for %v", store.thumbed)
	}
}

func TestThumbnailTaskSkipsNonImages(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	store := &stubStore{}
	srv := newStubServer()
	RegisterThumbnailTask(srv, repo, store, nil)

	ctx := context.Background()
	id, err := repo.CreateAttachment(ctx, chat.Attachment{
		UploaderID: 1, StorageKey: "doc.pdf", OriginalName: "doc.pdf", MimeType: "application/pdf", Size: 10,
	})
	if err != nil {
		t.Fatalf("CreateAttachment: %v", err)
	}

	if err := srv.invoke(t, TypeThumbnail, ThumbnailPayload{AttachmentID: id}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(store.thumbed) != 0 {
		t.Fatalf("non-image thumbnailed: %v", store.thumbed)
	}

	// a vanished attachment also completes without retry
	if err := srv.invoke(t, TypeThumbnail, ThumbnailPayload{AttachmentID: 9999}); err != nil {
		t.Fatalf("missing attachment handler: %v", err)
	}
}

func TestThumbnailTaskPropagatesFailuresForRetry(t *testing.T) {
	repo := chatAdapter.NewMemChatRepository()
	store := &stubStore{fail: errors.New("disk full")}
	srv := newStubServer()
	RegisterThumbnailTask(srv, repo, store, nil)

	ctx := context.Background()
	id, err := repo.CreateAttachment(ctx, chat.Attachment{
		UploaderID: 1, StorageKey: "pic.png", OriginalName: "pic.png", MimeType: "image/png", Size: 10,
	})
	if err != nil {
		t.Fatalf("CreateAttachment: %v", err)
	}

	if err := srv.invoke(t, TypeThumbnail, ThumbnailPayload{AttachmentID: id}); err == nil {
		t.Fatal("failed thumbnail reported success")
	}
}
