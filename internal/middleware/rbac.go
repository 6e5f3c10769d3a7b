package middleware

import (
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/apperrors"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/service"

	"github.com/gin-gonic/gin"
)

// RequireAnyPermission gates a route on the actor holding at least one of
// the listed capabilities. Refusals become 403 and the boundary recorder
// turns them into ACCESS_DENIED events.
func RequireAnyPermission(perms service.PermissionChecker, codes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := CurrentActor(c)
		if !perms.HasAnyPermission(c.Request.Context(), actor.ID, codes...) {
			appErr := apperrors.NewPermissionDenied("actor lacks the required permission")
			c.JSON(appErr.HTTPStatus, appErr)
			c.Abort()
			return
		}
		c.Next()
	}
}
