package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"roombook/internal/calendar"
)

// GraphTokenHeader carries the user's delegated calendar token.
const GraphTokenHeader = "X-Graph-Token"

const (
	keyUser = "userEmail"
	keyName = "userName"
)

// AuthRequired validates the bearer token and stores the caller's identity.
// A delegated calendar token, when sent, is attached to the request context.
func AuthRequired(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}

		scheme, tokenStr, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tokenStr) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header format"})
			return
		}

		claims, err := jwtManager.ParseAndValidate(strings.TrimSpace(tokenStr))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(keyUser, claims.Identity())
		c.Set(keyName, strings.TrimSpace(claims.Name))

		if graphToken := strings.TrimSpace(c.GetHeader(GraphTokenHeader)); graphToken != "" {
			c.Request = c.Request.WithContext(calendar.WithDelegatedToken(c.Request.Context(), graphToken))
		}

		c.Next()
	}
}

// GetUserEmail returns the authenticated user's address or empty string.
func GetUserEmail(c *gin.Context) string {
	return c.GetString(keyUser)
}

// GetUserName returns the authenticated user's display name or empty string.
func GetUserName(c *gin.Context) string {
	return c.GetString(keyName)
}
