package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[string]struct{})
	for _, r := range roles {
		allowed[string(r)] = struct{}{}
	}
	return func(c *gin.Context) {
		roleVal, ok := c.Get(ContextUserRole)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		role, _ := roleVal.(string)
		if _, ok := allowed[role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

// AccessChecker looks up a role's access to a module in the current tenant.
type AccessChecker interface {
	Access(ctx context.Context, role models.Role, module models.Module) (models.AccessLevel, error)
}

// RequirePermission allows the request when the user's role has at least level on module.
// It must run inside the tenant scope, because the matrix lives in the tenant schema.
func RequirePermission(checker AccessChecker, module models.Module, level models.AccessLevel, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleVal, ok := c.Get(ContextUserRole)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		role, _ := roleVal.(string)
		got, err := checker.Access(c.Request.Context(), models.Role(role), module)
		if err != nil {
			logger.Error("permission lookup", zap.String("module", string(module)), zap.Error(err))
			response.Internal(c, "permission check failed")
			c.Abort()
			return
		}
		if !got.Allows(level) {
			response.Forbidden(c, "no "+string(level)+" access to "+string(module))
			c.Abort()
			return
		}
		c.Next()
	}
}
