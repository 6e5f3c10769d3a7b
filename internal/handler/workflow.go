package handler

import (
	"net/http"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/middleware"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/apperrors"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/service"

	"github.com/gin-gonic/gin"
)

// workflowActions is the transition surface shared by every record category.
// Embedding it gives a resource handler submit/approve/reject/edit/delete
// for free; only creation and read shaping stay per-type.
type workflowActions struct {
	engine     *service.WorkflowEngine
	targetType string
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type transitionResponse struct {
	service.TransitionResult
	Suggestion string `json:"suggestion,omitempty"`
}

func (a *workflowActions) Submit(c *gin.Context) {
	actor := middleware.CurrentActor(c)
	res, err := a.engine.Submit(c.Request.Context(), actor.ID, a.targetType, c.Param("id"))
	a.respond(c, res, err)
}

func (a *workflowActions) Approve(c *gin.Context) {
	actor := middleware.CurrentActor(c)
	res, err := a.engine.Approve(c.Request.Context(), actor.ID, a.targetType, c.Param("id"))
	a.respond(c, res, err)
}

func (a *workflowActions) Reject(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
		return
	}
	actor := middleware.CurrentActor(c)
	res, err := a.engine.Reject(c.Request.Context(), actor.ID, a.targetType, c.Param("id"), req.Reason)
	a.respond(c, res, err)
}

func (a *workflowActions) Edit(c *gin.Context) {
	var changes map[string]any
	if err := c.ShouldBindJSON(&changes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object of field changes"})
		return
	}
	actor := middleware.CurrentActor(c)
	res, err := a.engine.Edit(c.Request.Context(), actor.ID, a.targetType, c.Param("id"), changes)
	a.respond(c, res, err)
}

func (a *workflowActions) Delete(c *gin.Context) {
	actor := middleware.CurrentActor(c)
	res, err := a.engine.Delete(c.Request.Context(), actor.ID, a.targetType, c.Param("id"))
	a.respond(c, res, err)
}

func (a *workflowActions) Get(c *gin.Context) {
	rec, err := a.engine.Get(c.Request.Context(), a.targetType, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (a *workflowActions) List(c *gin.Context) {
	records, err := a.engine.List(c.Request.Context(), a.targetType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": records, "count": len(records)})
}

// respond translates a transition outcome. The engine records the audit
// event for every attempt, so the boundary recorder is told to stand down.
func (a *workflowActions) respond(c *gin.Context, res service.TransitionResult, err error) {
	middleware.MarkAuditHandled(c)
	if err != nil {
		appErr := apperrors.Wrap(err)
		c.JSON(appErr.HTTPStatus, transitionResponse{
			TransitionResult: res,
			Suggestion:       appErr.Suggestion,
		})
		return
	}
	c.JSON(http.StatusOK, transitionResponse{TransitionResult: res})
}

func respondError(c *gin.Context, err error) {
	appErr := apperrors.Wrap(err)
	c.JSON(appErr.HTTPStatus, appErr)
}
