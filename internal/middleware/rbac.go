package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/campushq/registrar-api/internal/models"
	appErrors "github.com/campushq/registrar-api/pkg/errors"
	"github.com/campushq/registrar-api/pkg/response"
)

// SelfParam grants access when the route's student ID parameter matches the
// caller's own user ID.
const SelfParam = "SELF"

// RBAC enforces role-based access control for routes. Passing SelfParam in
// the allowed list additionally grants students access to their own records.
func RBAC(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		allowSelf := false
		allowedRoles := make(map[models.Role]struct{})

		for _, a := range allowed {
			if a == SelfParam {
				allowSelf = true
				continue
			}
			allowedRoles[models.Role(a)] = struct{}{}
		}

		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}

		if allowSelf {
			if targetID := c.Param("studentId"); targetID != "" && targetID == claims.UserID {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}
