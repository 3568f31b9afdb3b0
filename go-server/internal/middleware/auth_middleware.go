package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shortly/shortly/go-server/internal/token"
)

const userIDKey = "user_id"

var (
	ErrMissingToken  = errors.New("missing authorization header")
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrMissingUserID = errors.New("user_id not found in context")
)

// TokenValidator is satisfied by *token.Manager.
type TokenValidator interface {
	ValidateToken(tokenStr string) (*token.CustomClaims, error)
}

// AuthMiddleware rejects requests without a valid bearer token.
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return authenticate(validator, false)
}

// OptionalAuthMiddleware lets requests without an Authorization header
// through anonymously. A header that is present must still be valid.
func OptionalAuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return authenticate(validator, true)
}

func authenticate(validator TokenValidator, optional bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" && optional {
			c.Next()
			return
		}

		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": ErrMissingToken.Error(),
				"code":  "MISSING_TOKEN",
			})
			return
		}

		tokenStr := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

		claims, err := validator.ValidateToken(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": ErrInvalidToken.Error(),
				"code":  "INVALID_TOKEN",
			})
			return
		}

		c.Set(userIDKey, *claims.UserID)

		c.Next()
	}
}

// GetUserIDFromContext returns the authenticated user, or ErrMissingUserID
// for anonymous requests.
func GetUserIDFromContext(c *gin.Context) (uuid.UUID, error) {
	value, exists := c.Get(userIDKey)
	if !exists {
		return uuid.Nil, ErrMissingUserID
	}

	id, ok := value.(uuid.UUID)
	if !ok {
		return uuid.Nil, ErrMissingUserID
	}
	return id, nil
}
