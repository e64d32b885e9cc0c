package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/damoang/angple-store/internal/common"
	"github.com/gin-gonic/gin"
)

// APIKeyHeader carries the admin API key
const APIKeyHeader = "X-API-Key"

// APIKeyAuth authenticates requests against a static key.
// Checks X-API-Key header or api_key query parameter.
// An empty key disables every route behind the middleware.
func APIKeyAuth(key string) gin.HandlerFunc {
	want := []byte(key)
	return func(c *gin.Context) {
		if len(want) == 0 {
			common.ErrorResponse(c, http.StatusForbidden, "admin API disabled: no API key configured", nil)
			c.Abort()
			return
		}

		got := c.GetHeader(APIKeyHeader)
		if got == "" {
			got = c.Query("api_key")
		}
		if got == "" {
			common.ErrorResponse(c, http.StatusUnauthorized, "API key required", nil)
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			common.ErrorResponse(c, http.StatusUnauthorized, "invalid API key", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
