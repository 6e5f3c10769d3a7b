package handler

import (
	"net/http"
	"strings"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/middleware"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type PortfolioHandler struct {
	workflowActions
}

func NewPortfolioHandler(engine *service.WorkflowEngine) *PortfolioHandler {
	return &PortfolioHandler{workflowActions{engine: engine, targetType: "portfolio"}}
}

type createPortfolioRequest struct {
	Code         string `json:"code" binding:"required"`
	Name         string `json:"name" binding:"required"`
	BaseCurrency string `json:"base_currency" binding:"required"`
	Description  string `json:"description"`
}

func (h *PortfolioHandler) Create(c *gin.Context) {
	var req createPortfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	currency := strings.ToUpper(strings.TrimSpace(req.BaseCurrency))
	if len(currency) != 3 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "base_currency must be a 3-letter code"})
		return
	}

	portfolio := &model.Portfolio{
		ID:           uuid.NewString(),
		Code:         strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:         strings.TrimSpace(req.Name),
		BaseCurrency: currency,
		Description:  req.Description,
	}

	actor := middleware.CurrentActor(c)
	res, err := h.engine.Create(c.Request.Context(), actor.ID, portfolio)
	middleware.MarkAuditHandled(c)
	if err != nil {
		h.respond(c, res, err)
		return
	}
	c.JSON(http.StatusCreated, portfolio)
}
