package middleware

import (
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/apperrors"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	HeaderAPIKey    = "X-API-Key"
	ContextActorKey = "actor"
)

// AuthMiddleware resolves the API key to an actor and stores it in the
// request context. Unauthenticated requests proceed as the anonymous actor;
// each endpoint decides via the permission resolver whether anonymous access
// means anything, and anonymous never holds any grant.
func AuthMiddleware(actors *service.ActorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(HeaderAPIKey)
		if apiKey == "" {
			c.Set(ContextActorKey, &model.AnonymousActor)
			c.Next()
			return
		}

		actor, err := actors.Authenticate(c.Request.Context(), apiKey)
		if err != nil {
			appErr := apperrors.Wrap(err)
			c.JSON(appErr.HTTPStatus, appErr)
			c.Abort()
			return
		}

		c.Set(ContextActorKey, actor)
		c.Next()
	}
}

// CurrentActor returns the authenticated actor, or the anonymous actor when
// authentication did not run.
func CurrentActor(c *gin.Context) *model.Actor {
	if val, exists := c.Get(ContextActorKey); exists {
		if actor, ok := val.(*model.Actor); ok {
			return actor
		}
	}
	return &model.AnonymousActor
}
