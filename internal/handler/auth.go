package handler

import (
	"net/http"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/middleware"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/apperrors"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/service"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	actors *service.ActorService
	perms  *service.PermissionResolver
}

func NewAuthHandler(actors *service.ActorService, perms *service.PermissionResolver) *AuthHandler {
	return &AuthHandler{actors: actors, perms: perms}
}

type loginRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

type actorProfile struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Superuser   bool     `json:"superuser"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Login verifies a credential and returns the actor profile. Both outcomes
// land in the audit trail.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_key is required"})
		return
	}

	actor, err := h.actors.Authenticate(c.Request.Context(), req.APIKey)
	if err != nil {
		middleware.StageAuditEvent(c, &model.AuditEvent{
			Action:      model.ActionLogin,
			Outcome:     model.OutcomeFailure,
			Severity:    model.SeverityWarning,
			Description: "login failed",
		})
		appErr := apperrors.Wrap(err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	middleware.StageAuditEvent(c, &model.AuditEvent{
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		Action:      model.ActionLogin,
		Outcome:     model.OutcomeSuccess,
		Description: "login succeeded",
	})
	c.JSON(http.StatusOK, actorProfile{
		ID:          actor.ID,
		Name:        actor.Name,
		Superuser:   actor.Superuser,
		Roles:       actor.Roles,
		Permissions: h.perms.EffectivePermissions(c.Request.Context(), actor.ID),
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	actor := middleware.CurrentActor(c)
	middleware.StageAuditEvent(c, &model.AuditEvent{
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		Action:      model.ActionLogout,
		Outcome:     model.OutcomeSuccess,
		Description: "logout",
	})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me returns the authenticated actor's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	actor := middleware.CurrentActor(c)
	if actor.ID == model.AnonymousActor.ID {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	c.JSON(http.StatusOK, actorProfile{
		ID:          actor.ID,
		Name:        actor.Name,
		Superuser:   actor.Superuser,
		Roles:       actor.Roles,
		Permissions: h.perms.EffectivePermissions(c.Request.Context(), actor.ID),
	})
}
