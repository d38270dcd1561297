package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wellnesscms/api/internal/models"
	"wellnesscms/api/internal/service"
)

func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	roleSet := make(map[models.Role]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}

	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorBody("Authentication required", string(service.CodeNoToken)))
			return
		}

		if _, ok := roleSet[p.Account.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorBody("Insufficient privileges", string(service.CodeInsufficientPrivileges)))
			return
		}

		c.Next()
	}
}
