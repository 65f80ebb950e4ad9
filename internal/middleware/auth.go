package middleware

import (
	"net/http"
	"strings"

	jwtsvc "authservice/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequireAuth validates the bearer access token and puts the caller's user
// id into the context. All failure modes answer with the same 401 body.
func RequireAuth(codec *jwtsvc.Codec) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			abortUnauthorized(c, "Missing or invalid Authorization header")
			return
		}

		tokenStr := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if tokenStr == "" {
			abortUnauthorized(c, "Empty token")
			return
		}

		info := codec.VerifyAccessToken(tokenStr)
		if info == nil {
			abortUnauthorized(c, "Invalid token")
			return
		}

		userID, err := uuid.Parse(info.Subject)
		if err != nil {
			abortUnauthorized(c, "Invalid token")
			return
		}

		c.Set("user_id", userID)
		c.Set("token_expires_at", info.ExpiresAt)

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
}
