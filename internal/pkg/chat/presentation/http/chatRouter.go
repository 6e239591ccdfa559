package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	blob "chatgate/internal/infrastructure/blob/port"
	identity "chatgate/internal/infrastructure/identity/port"
	qport "chatgate/internal/infrastructure/queue/port"
	"chatgate/internal/infrastructure/realtime"
	"chatgate/internal/pkg/chat/application/assign"
	"chatgate/internal/pkg/chat/application/throttle"
	"chatgate/internal/pkg/chat/presentation/controller"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
	users "chatgate/internal/repository/port"
)

// Deps bundles the shared infrastructure the chat routes need. Everything in
// it is constructed once at startup and shared across requests.
type Deps struct {
	Repo        repository.ChatRepository
	Users       users.UserDirectory
	Coordinator *assign.Coordinator
	Bus         *realtime.Bus
	Gate        *throttle.Gate
	Store       blob.Store
	Queue       qport.Client
	Verifier    identity.Verifier
	Log         *zap.Logger
}

// RegisterRoutes mounts the chat endpoints under the given router group.
// It constructs the controllers and binds them directly to routes.
func RegisterRoutes(g *gin.RouterGroup, d Deps) {
	convCtl := controller.NewConversationController(d.Repo, d.Users, d.Coordinator)
	msgCtl := controller.NewMessageController(d.Repo, d.Bus, d.Store)
	modCtl := controller.NewModerationController(d.Repo, d.Users, d.Bus)
	attCtl := controller.NewAttachmentController(d.Repo, d.Store, d.Queue)
	searchCtl := controller.NewSearchController(d.Repo)
	supportCtl := controller.NewSupportController(d.Repo, d.Queue)
	socketCtl := controller.NewChatSocketController(d.Bus, d.Repo, d.Gate, d.Store, d.Verifier, d.Log)

	// The socket does its own token handshake so it can close with the
	// dedicated unauthenticated code instead of an HTTP 401.
	g.GET("/chat/ws", socketCtl.Handle())

	authed := g.Group("", RequireAuth(d.Verifier))

	authed.GET("/conversations", convCtl.HandleList())
	authed.POST("/conversations", convCtl.HandleCreate())
	authed.GET("/conversations/unread-summary", convCtl.HandleUnreadSummary())

	authed.GET("/conversations/:conversationId/messages", msgCtl.HandleList())
	authed.POST("/conversations/:conversationId/messages", msgCtl.HandleSend())
	authed.POST("/conversations/:conversationId/read", msgCtl.HandleMarkRead())

	authed.DELETE("/messages/:messageId", modCtl.HandleDelete())
	authed.POST("/messages/:messageId/report", modCtl.HandleReport())

	authed.POST("/attachments", attCtl.HandleUpload())
	authed.GET("/search/messages", searchCtl.HandleMessages())

	operator := authed.Group("/support", RequireOperator(d.Users))
	operator.GET("/queue", supportCtl.HandleQueue())
	operator.POST("/queue/:conversationId/assign", supportCtl.HandleAssign())
	operator.POST("/queue/:conversationId/close", supportCtl.HandleClose())
	operator.POST("/auto-assign", supportCtl.HandleAutoAssign())
}
