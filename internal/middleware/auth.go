package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-settings/pkg/auth"
	"github.com/jwalitptl/clinic-settings/pkg/clinicapi"
	apperrors "github.com/jwalitptl/clinic-settings/pkg/errors"
)

const (
	ContextClinicID = "clinic_id"
	ContextUserID   = "user_id"
)

type TokenParser interface {
	ParseToken(raw string) (*auth.Claims, error)
}

type AuthMiddleware struct {
	parser TokenParser
}

func NewAuthMiddleware(parser TokenParser) *AuthMiddleware {
	return &AuthMiddleware{parser: parser}
}

// Authenticate verifies the bearer token and sets the caller's clinic in
// context. The raw token is forwarded to the clinic API on the request ctx.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, apperrors.NewUnauthorized("missing authorization header", nil))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			abortWithError(c, apperrors.NewUnauthorized("invalid authorization format", nil))
			return
		}

		claims, err := m.parser.ParseToken(parts[1])
		if err != nil {
			abortWithError(c, apperrors.NewUnauthorized("invalid token", err))
			return
		}

		c.Set(ContextClinicID, claims.ClinicID)
		c.Set(ContextUserID, claims.UserID)
		c.Request = c.Request.WithContext(clinicapi.WithToken(c.Request.Context(), parts[1]))
		c.Next()
	}
}

// ClinicID returns the clinic set by Authenticate, or 0.
func ClinicID(c *gin.Context) int64 {
	v, ok := c.Get(ContextClinicID)
	if !ok {
		return 0
	}
	id, _ := v.(int64)
	return id
}
