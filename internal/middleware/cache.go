package middleware

import "github.com/gin-gonic/gin"

// NoStore marks responses as uncacheable. Session state changes on every
// write.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
