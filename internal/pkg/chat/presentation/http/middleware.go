package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	identity "chatgate/internal/infrastructure/identity/port"
	users "chatgate/internal/repository/port"
)

// RequireAuth verifies the bearer token and stores the user id on the gin
// context under "userID". The websocket endpoint also accepts ?token= since
// browser websocket clients cannot set headers.
func RequireAuth(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		} else {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		userID, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

// RequireOperator gates support-queue routes. Must run after RequireAuth.
func RequireOperator(dir users.UserDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := dir.FindByID(c.Request.Context(), c.GetInt64("userID"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if user == nil || !user.IsActive || !user.IsOperator() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "operator access required"})
			return
		}
		c.Next()
	}
}
