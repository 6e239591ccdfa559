package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	blob "chatgate/internal/infrastructure/blob/port"
	identity "chatgate/internal/infrastructure/identity/port"
	"chatgate/internal/infrastructure/realtime"
	chat "chatgate/internal/pkg/chat/application/domain"
	"chatgate/internal/pkg/chat/application/throttle"
	"chatgate/internal/pkg/chat/application/usecase"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
)

const (
	defaultReadTimeout = 60 * time.Second
	eventQueueSize     = 256
	dedupeWindow       = 500
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ChatSocketController is the realtime gateway: one session per live
// websocket, driven by inbound protocol frames and by bus events.
type ChatSocketController struct {
	bus      *realtime.Bus
	repo     repository.ChatRepository
	gate     *throttle.Gate
	store    blob.Store
	verifier identity.Verifier
	log      *zap.Logger

	sendMessageUC   *usecase.SendMessageUseCase
	fetchUC         *usecase.FetchMessagesUseCase
	markReadUC      *usecase.MarkReadUseCase
	markDeliveredUC *usecase.MarkDeliveredUseCase
	joinUC          *usecase.JoinConversationUseCase
}

func NewChatSocketController(
	bus *realtime.Bus,
	repo repository.ChatRepository,
	gate *throttle.Gate,
	store blob.Store,
	verifier identity.Verifier,
	log *zap.Logger,
) *ChatSocketController {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatSocketController{
		bus:             bus,
		repo:            repo,
		gate:            gate,
		store:           store,
		verifier:        verifier,
		log:             log,
		sendMessageUC:   usecase.NewSendMessageUseCase(repo),
		fetchUC:         usecase.NewFetchMessagesUseCase(repo),
		markReadUC:      usecase.NewMarkReadUseCase(repo),
		markDeliveredUC: usecase.NewMarkDeliveredUseCase(repo),
		joinUC:          usecase.NewJoinConversationUseCase(repo),
	}
}

// Handle upgrades the HTTP connection and runs the session until the client
// disconnects. The verified identity comes from a bearer token (header or
// ?token=); a connection that cannot be verified is closed with the fixed
// unauthenticated code before any frame exchange.
func (ctl *ChatSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		userID, authErr := int64(0), error(nil)
		if token == "" {
			authErr = identity.ErrInvalidToken
		} else {
			userID, authErr = ctl.verifier.Verify(c.Request.Context(), token)
		}

		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		if authErr != nil {
			msg := websocket.FormatCloseMessage(closeUnauthenticated, "unauthenticated")
			_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			_ = ws.Close()
			return
		}

		conn := realtime.NewConnection(userID, ws)
		conn.Start()
		defer conn.Close(websocket.CloseNormalClosure, "")

		s := newSession(ctl, conn.ID, userID, conn)
		s.open(c.Request.Context(), c.Query("conversation_id"))
		defer s.close()

		ws.SetReadLimit(1 << 20)
		_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		})

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
					!errors.Is(err, websocket.ErrCloseSent) {
					ctl.log.Debug("socket read ended", zap.Int64("user_id", userID), zap.Error(err))
				}
				return
			}
			_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
			s.handleFrame(c.Request.Context(), data)
		}
	}
}

func bearerToken(c *gin.Context) string {
	const prefix = "Bearer "
	if h := c.GetHeader("Authorization"); len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return c.Query("token")
}

// Sink is where a session writes outbound frames. *realtime.Connection is
// the production implementation; tests substitute a recorder.
type Sink interface {
	Send(payload []byte) error
}

// session is the per-connection protocol state machine. All of its mutable
// state (joined set, dedupe window) is owned by the connection's own
// goroutines; cross-connection traffic only flows through the bus.
type session struct {
	ctl    *ChatSocketController
	id     string
	userID int64
	sink   Sink

	joined map[int64]struct{}
	recent *realtime.Dedupe
	events chan realtime.Event
	done   chan struct{}
}

func newSession(ctl *ChatSocketController, id string, userID int64, sink Sink) *session {
	return &session{
		ctl:    ctl,
		id:     id,
		userID: userID,
		sink:   sink,
		joined: make(map[int64]struct{}),
		recent: realtime.NewDedupe(dedupeWindow),
		events: make(chan realtime.Event, eventQueueSize),
		done:   make(chan struct{}),
	}
}

// open subscribes the session to the user's inbox group, optionally joins the
// conversation supplied at connect time (silently skipped for non-members),
// sends hello and starts the event loop.
func (s *session) open(ctx context.Context, connectConvID string) {
	s.ctl.bus.Subscribe(realtime.UserGroup(s.userID), s.id, s.events)

	if connectConvID != "" {
		if cid, err := strconv.ParseInt(connectConvID, 10, 64); err == nil && cid > 0 {
			if err := s.ctl.joinUC.Execute(ctx, usecase.JoinConversationInput{ConversationID: cid, UserID: s.userID}); err == nil {
				s.ctl.bus.Subscribe(realtime.ConvGroup(cid), s.id, s.events)
				s.joined[cid] = struct{}{}
			}
		}
	}

	s.send(map[string]any{"type": "hello", "user_id": s.userID})
	go s.eventLoop(ctx)
}

// close detaches the session from every group. Mutations already committed
// to the stores are not rolled back; only delivery to this socket stops.
func (s *session) close() {
	close(s.done)
	s.ctl.bus.UnsubscribeAll(s.id)
}

func (s *session) eventLoop(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			s.handleEvent(ctx, ev)
		}
	}
}

// frameKind is the closed set of inbound frame types. Parsing rejects
// anything outside it, so the dispatch switch below is exhaustive.
type frameKind string

const (
	frameJoin    frameKind = "join"
	frameLeave   frameKind = "leave"
	frameMessage frameKind = "message"
	frameTyping  frameKind = "typing"
	frameRead    frameKind = "read"
	frameFetch   frameKind = "fetch"
)

func parseFrameKind(s string) (frameKind, bool) {
	switch k := frameKind(s); k {
	case frameJoin, frameLeave, frameMessage, frameTyping, frameRead, frameFetch:
		return k, true
	}
	return "", false
}

// inboundFrame is the union of all client frame fields; Type selects which
// ones are meaningful.
type inboundFrame struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversation_id"`
	Text           string `json:"text"`
	AttachmentID   *int64 `json:"attachment_id"`
	IsTyping       bool   `json:"is_typing"`
	UpToID         int64  `json:"up_to_id"`
	BeforeID       *int64 `json:"before_id"`
	Limit          int    `json:"limit"`
}

func (s *session) handleFrame(ctx context.Context, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.sendError(codeBadJSON)
		return
	}
	kind, ok := parseFrameKind(frame.Type)
	if !ok {
		s.sendError(codeUnsupportedType)
		return
	}

	// every operation is scoped to a conversation the caller belongs to
	if frame.ConversationID == 0 {
		s.sendError(codeConversationIDReq)
		return
	}
	if frame.ConversationID < 0 {
		s.sendError(codeBadConversationID)
		return
	}
	if err := s.ctl.joinUC.Execute(ctx, usecase.JoinConversationInput{ConversationID: frame.ConversationID, UserID: s.userID}); err != nil {
		if errors.Is(err, chat.ErrNotMember) {
			s.sendError(codeForbidden)
		} else {
			s.sendError(codeInternal)
		}
		return
	}

	switch kind {
	case frameJoin:
		s.handleJoin(frame.ConversationID)
	case frameLeave:
		s.handleLeave(frame.ConversationID)
	case frameMessage:
		s.handleMessage(ctx, frame)
	case frameTyping:
		s.handleTyping(ctx, frame)
	case frameRead:
		s.handleRead(ctx, frame)
	case frameFetch:
		s.handleFetch(ctx, frame)
	}
}

func (s *session) handleJoin(conversationID int64) {
	s.ctl.bus.Subscribe(realtime.ConvGroup(conversationID), s.id, s.events)
	s.joined[conversationID] = struct{}{}
	s.send(map[string]any{"type": "joined", "conversation_id": conversationID})
}

func (s *session) handleLeave(conversationID int64) {
	s.ctl.bus.Unsubscribe(realtime.ConvGroup(conversationID), s.id)
	delete(s.joined, conversationID)
	s.send(map[string]any{"type": "left", "conversation_id": conversationID})
}

func (s *session) handleMessage(ctx context.Context, frame inboundFrame) {
	if s.ctl.gate.Exceeded(ctx, s.userID, throttle.KindMessage, throttle.MessageLimit) {
		s.sendError(codeRateLimited)
		return
	}

	msg, att, err := s.ctl.sendMessageUC.Execute(ctx, usecase.SendMessageInput{
		ConversationID: frame.ConversationID,
		SenderID:       s.userID,
		Text:           frame.Text,
		AttachmentID:   frame.AttachmentID,
	})
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		s.sendError(codeEmptyMessage)
		return
	case errors.Is(err, chat.ErrMessageTooLong):
		s.sendError(codeMessageTooLong)
		return
	case errors.Is(err, chat.ErrNotFound):
		s.sendError(codeNotFound)
		return
	case err != nil:
		s.ctl.log.Error("send message", zap.Int64("user_id", s.userID), zap.Error(err))
		s.sendError(codeInternal)
		return
	}

	s.ctl.publishMessage(ctx, *msg, att)
}

func (s *session) handleTyping(ctx context.Context, frame inboundFrame) {
	if s.ctl.gate.Exceeded(ctx, s.userID, throttle.KindTyping, throttle.TypingLimit) {
		// typing is best-effort; over-limit events are dropped silently
		return
	}
	ev := typingEvent(frame.ConversationID, s.userID, frame.IsTyping)
	s.ctl.bus.Publish(realtime.ConvGroup(frame.ConversationID), ev)
}

func (s *session) handleRead(ctx context.Context, frame inboundFrame) {
	if frame.UpToID == 0 {
		s.sendError(codeUpToIDRequired)
		return
	}
	effective, err := s.ctl.markReadUC.Execute(ctx, usecase.MarkReadInput{
		ConversationID: frame.ConversationID,
		UserID:         s.userID,
		UpToID:         frame.UpToID,
	})
	if errors.Is(err, chat.ErrNotFound) {
		s.sendError(codeNotFound)
		return
	}
	if err != nil {
		s.ctl.log.Error("mark read", zap.Int64("user_id", s.userID), zap.Error(err))
		s.sendError(codeInternal)
		return
	}
	ev := watermarkEvent("read", frame.ConversationID, s.userID, effective)
	s.ctl.bus.Publish(realtime.ConvGroup(frame.ConversationID), ev)
}

func (s *session) handleFetch(ctx context.Context, frame inboundFrame) {
	msgs, err := s.ctl.fetchUC.Execute(ctx, usecase.FetchMessagesInput{
		ConversationID: frame.ConversationID,
		UserID:         s.userID,
		BeforeID:       frame.BeforeID,
		Limit:          frame.Limit,
	})
	if err != nil {
		s.ctl.log.Error("fetch messages", zap.Int64("user_id", s.userID), zap.Error(err))
		s.sendError(codeInternal)
		return
	}

	items := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, map[string]any{
			"id":              m.ID,
			"conversation_id": m.ConversationID,
			"sender_id":       m.SenderID,
			"text":            m.VisibleText(),
			"is_deleted":      m.IsDeleted,
			"created_at":      m.CreatedAt.Format(time.RFC3339),
		})
	}
	s.send(map[string]any{"type": "messages", "conversation_id": frame.ConversationID, "items": items})
}

// handleEvent forwards a bus event to the socket. Message events are
// de-duplicated (they arrive via both the conversation group and the inbox
// group) and, once delivered to someone other than their sender, advance that
// recipient's delivery watermark.
func (s *session) handleEvent(ctx context.Context, ev realtime.Event) {
	if ev.Frame == "message" {
		if s.recent.Seen(ev.MessageID) {
			return
		}
	}
	if err := s.sink.Send(ev.Payload); err != nil {
		return
	}
	if ev.Frame != "message" || ev.SenderID == s.userID {
		return
	}

	effective, err := s.ctl.markDeliveredUC.Execute(ctx, usecase.MarkDeliveredInput{
		ConversationID: ev.ConversationID,
		UserID:         s.userID,
		UpToID:         ev.MessageID,
	})
	if err != nil {
		s.ctl.log.Debug("mark delivered", zap.Int64("user_id", s.userID), zap.Error(err))
		return
	}
	delivered := watermarkEvent("delivered", ev.ConversationID, s.userID, effective)
	s.ctl.bus.Publish(realtime.ConvGroup(ev.ConversationID), delivered)
}

func (s *session) send(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = s.sink.Send(payload)
}

func (s *session) sendError(code string) {
	s.send(errorFrame{Type: "error", Code: code})
}

// publishMessage fans a stored message out to the conversation group and to
// every member's inbox group, so members who never joined the conversation
// view still receive it. Broadcast failures are best-effort and never roll
// back the persisted message.
func (ctl *ChatSocketController) publishMessage(ctx context.Context, msg chat.Message, att *chat.Attachment) {
	ev := messageEvent(msg, att, ctl.store)
	ctl.bus.Publish(realtime.ConvGroup(msg.ConversationID), ev)

	memberIDs, err := ctl.repo.MemberUserIDs(ctx, msg.ConversationID)
	if err != nil {
		ctl.log.Warn("member fanout lookup", zap.Int64("conversation_id", msg.ConversationID), zap.Error(err))
		return
	}
	for _, uid := range memberIDs {
		ctl.bus.Publish(realtime.UserGroup(uid), ev)
	}
}

// publishMessageDeleted mirrors the delete event to the conversation group.
func (ctl *ChatSocketController) publishMessageDeleted(conversationID, messageID, deletedBy int64) {
	ctl.bus.Publish(realtime.ConvGroup(conversationID), messageDeletedEvent(conversationID, messageID, deletedBy))
}
