package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"imageforge-backend/internal/identity"
	"imageforge-backend/internal/models"
)

const (
	UserIDKey    = "user_id"
	UserEmailKey = "user_email"
)

// AuthMiddleware resolves the bearer token to a user and stores the user id
// and email on the context. Requests without a valid token stop here.
func AuthMiddleware(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := identity.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error: "missing or malformed authorization header",
				Code:  "unauthorized",
			})
			return
		}

		user, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error: "invalid token",
				Code:  "unauthorized",
			})
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Set(UserEmailKey, user.Email)
		c.Next()
	}
}
