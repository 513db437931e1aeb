package middleware

import (
	"crypto/subtle"
	"net/http"

	"stockledger/internal/apierror"

	"github.com/gin-gonic/gin"
)

// APIKey guards the API with a static key carried in the X-API-Key header.
// When no key is configured the middleware is a no-op (local development).
func APIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("invalid or missing API key"))
			return
		}
		c.Next()
	}
}
