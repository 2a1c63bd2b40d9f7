// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file guards the admin API with a static token. The admin surface
// exposes conversation logs and ticket transcripts, so it is never left
// open: requests must present the configured token, and when no token is
// configured the group is locked rather than exposed.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderAPIKey is the alternative credential header for clients that cannot
// set Authorization (dashboards behind proxies that consume it).
const HeaderAPIKey = "X-API-Key"

// APIKeyAuth returns a middleware that admits only requests carrying the
// configured token, either as "Authorization: Bearer <token>" or in the
// X-API-Key header. Comparison is constant time. An empty configured token
// rejects everything.
func APIKeyAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token != "" && subtle.ConstantTimeCompare([]byte(presentedKey(c)), []byte(token)) == 1 {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code":    "unauthorized",
			"message": "missing or invalid API key",
		})
	}
}

func presentedKey(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return tok
		}
	}
	return c.GetHeader(HeaderAPIKey)
}
