package handler

import (
	"net/http"
	"strings"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/middleware"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderHandler struct {
	workflowActions
}

func NewOrderHandler(engine *service.WorkflowEngine) *OrderHandler {
	return &OrderHandler{workflowActions{engine: engine, targetType: "order"}}
}

type createOrderRequest struct {
	PortfolioID string `json:"portfolio_id" binding:"required"`
	Symbol      string `json:"symbol" binding:"required"`
	Side        string `json:"side" binding:"required"`
	Quantity    string `json:"quantity" binding:"required"`
	LimitPrice  string `json:"limit_price" binding:"required"`
	Notes       string `json:"notes"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	side := model.OrderSide(strings.ToUpper(strings.TrimSpace(req.Side)))
	if side != model.SideBuy && side != model.SideSell {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be BUY or SELL"})
		return
	}
	quantity, err := decimal.NewFromString(strings.TrimSpace(req.Quantity))
	if err != nil || quantity.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be a positive decimal"})
		return
	}
	limitPrice, err := decimal.NewFromString(strings.TrimSpace(req.LimitPrice))
	if err != nil || limitPrice.Sign() < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit_price must be a non-negative decimal"})
		return
	}

	order := &model.Order{
		ID:          uuid.NewString(),
		PortfolioID: req.PortfolioID,
		Symbol:      strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Side:        side,
		Quantity:    quantity,
		LimitPrice:  limitPrice,
		Notes:       req.Notes,
	}

	actor := middleware.CurrentActor(c)
	res, err := h.engine.Create(c.Request.Context(), actor.ID, order)
	middleware.MarkAuditHandled(c)
	if err != nil {
		h.respond(c, res, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}
