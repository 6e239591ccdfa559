package controller

import (
	"encoding/json"
	"time"

	blob "chatgate/internal/infrastructure/blob/port"
	"chatgate/internal/infrastructure/realtime"
	chat "chatgate/internal/pkg/chat/application/domain"
)

// Wire shapes shared by the socket gateway and the HTTP controllers.

type errorFrame struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

// Stable protocol error codes. Protocol and validation errors keep the
// connection open; only a failed connect closes it.
const (
	codeBadJSON           = "bad_json"
	codeConversationIDReq = "conversation_id_required"
	codeBadConversationID = "bad_conversation_id"
	codeForbidden         = "forbidden"
	codeRateLimited       = "rate_limited"
	codeMessageTooLong    = "message_too_long"
	codeEmptyMessage      = "empty_message"
	codeUpToIDRequired    = "up_to_id_required"
	codeNotFound          = "not_found"
	codeUnsupportedType   = "unsupported_type"
	codeInternal          = "internal_error"
)

// closeUnauthenticated is the fixed close code for a failed connect.
const closeUnauthenticated = 4401

type attachmentPayload struct {
	ID           int64   `json:"id"`
	URL          string  `json:"url"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
	OriginalName string  `json:"original_name"`
	MimeType     string  `json:"mime_type"`
	Size         int64   `json:"size"`
}

type messagePayload struct {
	Type           string             `json:"type"`
	ID             int64              `json:"id"`
	ConversationID int64              `json:"conversation_id"`
	SenderID       int64              `json:"sender_id"`
	Text           string             `json:"text"`
	IsDeleted      bool               `json:"is_deleted"`
	Attachment     *attachmentPayload `json:"attachment"`
	CreatedAt      string             `json:"created_at"`
}

func newAttachmentPayload(a *chat.Attachment, store blob.Store) *attachmentPayload {
	if a == nil {
		return nil
	}
	p := &attachmentPayload{
		ID:           a.ID,
		URL:          store.URL(a.StorageKey),
		OriginalName: a.OriginalName,
		MimeType:     a.MimeType,
		Size:         a.Size,
	}
	if a.ThumbnailKey != nil {
		u := store.URL(*a.ThumbnailKey)
		p.ThumbnailURL = &u
	}
	return p
}

func newMessagePayload(m chat.Message, a *chat.Attachment, store blob.Store) messagePayload {
	return messagePayload{
		Type:           "message",
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.VisibleText(),
		IsDeleted:      m.IsDeleted,
		Attachment:     newAttachmentPayload(a, store),
		CreatedAt:      m.CreatedAt.Format(time.RFC3339),
	}
}

// messageEvent wraps a stored message into a bus event ready for fanout.
func messageEvent(m chat.Message, a *chat.Attachment, store blob.Store) realtime.Event {
	payload, _ := json.Marshal(newMessagePayload(m, a, store))
	return realtime.Event{
		Frame:          "message",
		ConversationID: m.ConversationID,
		MessageID:      m.ID,
		SenderID:       m.SenderID,
		Payload:        payload,
	}
}

// watermarkEvent covers the "read" and "delivered" frames.
func watermarkEvent(frame string, conversationID, userID, upToID int64) realtime.Event {
	payload, _ := json.Marshal(map[string]any{
		"type":            frame,
		"conversation_id": conversationID,
		"user_id":         userID,
		"up_to_id":        upToID,
	})
	return realtime.Event{Frame: frame, ConversationID: conversationID, SenderID: userID, Payload: payload}
}

func typingEvent(conversationID, userID int64, isTyping bool) realtime.Event {
	payload, _ := json.Marshal(map[string]any{
		"type":            "typing",
		"conversation_id": conversationID,
		"user_id":         userID,
		"is_typing":       isTyping,
	})
	return realtime.Event{Frame: "typing", ConversationID: conversationID, SenderID: userID, Payload: payload}
}

func messageDeletedEvent(conversationID, messageID, deletedBy int64) realtime.Event {
	payload, _ := json.Marshal(map[string]any{
		"type":            "message_deleted",
		"conversation_id": conversationID,
		"message_id":      messageID,
		"deleted_by":      deletedBy,
	})
	return realtime.Event{Frame: "message_deleted", ConversationID: conversationID, MessageID: messageID, Payload: payload}
}
