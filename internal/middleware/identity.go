package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exprep-backend/internal/response"
)

const (
	// HeaderUserID carries the caller identity set by the upstream gateway.
	HeaderUserID = "X-User-ID"
	// ContextKeyUserID is the Gin context key for the caller's user id.
	ContextKeyUserID = "user_id"
)

// RequireUser reads the caller identity from the X-User-ID header, or the
// user_id query parameter for WebSocket upgrades where browsers cannot set
// headers.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderUserID)
		if raw == "" {
			raw = c.Query("user_id")
		}
		if raw == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrUserRequired)
			return
		}

		userID, err := uuid.Parse(raw)
		if err != nil || userID == uuid.Nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrUserRequired)
			return
		}

		c.Set(ContextKeyUserID, userID)
		c.Next()
	}
}

// UserID returns the identity stored by RequireUser.
func UserID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(ContextKeyUserID)
	id, _ := v.(uuid.UUID)
	return id
}
