package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chadmichel/chadchat/internal/repositories"
)

// APIKeyMiddleware checks the code query parameter carried by every backend
// call. An empty configured code disables the check (local development).
func APIKeyMiddleware(code string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if code != "" && c.Query("code") != code {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

// AuthMiddleware validates the Token header against the session table and
// stores the authenticated user id for handlers. The userId header must
// match the session owner; clients echoing stale headers get rejected.
func AuthMiddleware(sessions repositories.SessionRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Token")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		session, err := sessions.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if header := c.GetHeader("userId"); header != "" && header != session.UserID {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token does not match user"})
			return
		}

		c.Set("userID", session.UserID)
		c.Next()
	}
}
