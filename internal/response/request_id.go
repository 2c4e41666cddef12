package response

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Gin context keys set by RequestIDMiddleware.
const (
	ContextKeyRequestID    = "request_id"
	ContextKeyRequestStart = "request_start"
)

const (
	HeaderRequestID = "X-Request-ID"
	maxRequestIDLen = 64
)

// RequestIDMiddleware tags every request with an id and its start time. An
// upstream X-Request-ID is reused when it is short and printable.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(HeaderRequestID)
		if !validRequestID(reqID) {
			reqID = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, reqID)
		c.Set(ContextKeyRequestStart, time.Now().UTC())
		c.Header(HeaderRequestID, reqID)
		c.Next()
	}
}

// RequestID returns the id of the current request, minting one when the
// middleware did not run.
func RequestID(c *gin.Context) string {
	if id := c.GetString(ContextKeyRequestID); id != "" {
		return id
	}
	return uuid.NewString()
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}
	return true
}
