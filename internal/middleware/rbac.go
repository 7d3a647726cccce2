package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-api/internal/models"
	appErrors "github.com/noah-isme/clinic-api/pkg/errors"
	"github.com/noah-isme/clinic-api/pkg/response"
)

type permissionChecker interface {
	HasPermission(ctx context.Context, role models.UserKind, permission string) (bool, error)
}

// RequirePermission allows the request when the caller's role holds permission.
func RequirePermission(checker permissionChecker, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		allowed, err := checker.HasPermission(c.Request.Context(), claims.Role, permission)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if !allowed {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "missing permission "+permission))
			c.Abort()
			return
		}
		c.Next()
	}
}
