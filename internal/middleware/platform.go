package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/motorsales/vsms/pkg/response"
)

// PlatformTokenHeader carries the operator token for the platform API.
const PlatformTokenHeader = "X-Platform-Token"

// PlatformToken guards the tenant administration API with a shared X-Platform-Token.
// With no token configured the API is switched off.
func PlatformToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			response.NotFound(c, "not found")
			c.Abort()
			return
		}
		got := c.GetHeader(PlatformTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			response.Unauthorized(c, "invalid platform token")
			c.Abort()
			return
		}
		c.Next()
	}
}
