package handler

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/middleware"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/service"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	audit *service.AuditService
}

func NewAuditHandler(audit *service.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// Query lists audit events, newest first, narrowed by the query string.
func (h *AuditHandler) Query(c *gin.Context) {
	filter, page, err := parseAuditQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := h.audit.Query(c.Request.Context(), filter, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": events, "count": len(events)})
}

// History returns the full recorded trail of one record.
func (h *AuditHandler) History(c *gin.Context) {
	events, err := h.audit.GetHistory(c.Request.Context(), c.Param("type"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": events, "count": len(events)})
}

// ExportCSV streams the filtered trail as CSV. The export itself is an
// audited action.
func (h *AuditHandler) ExportCSV(c *gin.Context) {
	filter, page, err := parseAuditQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if page.Limit <= 0 {
		page.Limit = 1000
	}

	events, err := h.audit.Query(c.Request.Context(), filter, page)
	if err != nil {
		respondError(c, err)
		return
	}

	actor := middleware.CurrentActor(c)
	middleware.StageAuditEvent(c, &model.AuditEvent{
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		Action:      model.ActionExport,
		Outcome:     model.OutcomeSuccess,
		Description: "exported audit trail",
		ExtraContext: map[string]any{
			"rows": len(events),
		},
	})

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="audit-export.csv"`)
	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{
		"id", "timestamp", "actor_id", "actor_name", "action", "severity",
		"target_type", "target_id", "target_display", "outcome", "description",
		"origin_address", "field_diff",
	})
	for _, event := range events {
		diff := ""
		if len(event.FieldDiff) > 0 {
			if raw, err := json.Marshal(event.FieldDiff); err == nil {
				diff = string(raw)
			}
		}
		_ = w.Write([]string{
			event.ID,
			event.Timestamp.UTC().Format(time.RFC3339),
			event.ActorID,
			event.ActorName,
			string(event.Action),
			string(event.Severity),
			event.TargetType,
			event.TargetID,
			event.TargetDisplay,
			string(event.Outcome),
			event.Description,
			event.OriginAddress,
			diff,
		})
	}
	w.Flush()
}

func parseAuditQuery(c *gin.Context) (model.AuditFilter, model.AuditPage, error) {
	filter := model.AuditFilter{
		ActorID:    c.Query("actor_id"),
		Action:     model.ActionKind(strings.ToUpper(c.Query("action"))),
		TargetType: c.Query("target_type"),
		TargetID:   c.Query("target_id"),
		Outcome:    model.Outcome(strings.ToUpper(c.Query("outcome"))),
		Search:     c.Query("search"),
	}
	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, model.AuditPage{}, fmt.Errorf("%s must be an RFC3339 timestamp", name)
		}
		*dst = &ts
	}

	page := model.AuditPage{}
	if raw := c.Query("limit"); raw != "" {
		page.Limit, _ = strconv.Atoi(raw)
	}
	if raw := c.Query("offset"); raw != "" {
		page.Offset, _ = strconv.Atoi(raw)
	}
	return filter, page, nil
}
