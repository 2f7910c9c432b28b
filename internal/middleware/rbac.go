package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kindrid-api/internal/models"
	appErrors "github.com/noah-isme/kindrid-api/pkg/errors"
	"github.com/noah-isme/kindrid-api/pkg/response"
)

// RequireRoles lets the request through only when the JWT claims carry one of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := CurrentUser(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
		c.Next()
	}
}

// Guard bundles authentication and role checks so routes can be declared once
// whether or not auth is enabled.
type Guard struct {
	enabled   bool
	validator TokenValidator
}

// NewGuard builds a Guard. A disabled guard lets every request through and only
// attaches claims when a valid token happens to be sent.
func NewGuard(enabled bool, validator TokenValidator) *Guard {
	return &Guard{enabled: enabled && validator != nil, validator: validator}
}

// Enabled reports whether requests are checked.
func (g *Guard) Enabled() bool { return g.enabled }

// Allow returns the handlers enforcing roles.
func (g *Guard) Allow(roles ...models.UserRole) []gin.HandlerFunc {
	if !g.enabled {
		if g.validator == nil {
			return nil
		}
		return []gin.HandlerFunc{OptionalJWT(g.validator)}
	}
	return []gin.HandlerFunc{JWT(g.validator), RequireRoles(roles...)}
}
