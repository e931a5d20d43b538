// Package auth guards the /v1 API with a shared X-API-Key secret.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderAPIKey carries the shared secret.
const HeaderAPIKey = "X-API-Key"

// ContextKeyAuthenticated is set to true once a request presents the key.
const ContextKeyAuthenticated = "authenticated"

// Middleware rejects requests whose X-API-Key does not match key.
// An empty key disables the check; config refuses that in production.
func Middleware(key string) gin.HandlerFunc {
	if key == "" {
		return func(c *gin.Context) { c.Next() }
	}
	want := sha256.Sum256([]byte(key))

	return func(c *gin.Context) {
		got := sha256.Sum256([]byte(c.GetHeader(HeaderAPIKey)))
		if subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid or missing API key. Include the 'X-API-Key' header.",
			})
			return
		}
		c.Set(ContextKeyAuthenticated, true)
		c.Next()
	}
}

// IsAuthenticated reports whether the request passed Middleware with a key.
func IsAuthenticated(c *gin.Context) bool {
	return c.GetBool(ContextKeyAuthenticated)
}
