package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	contextAuditHandled = "audit_handled"
	contextAuditStaged  = "audit_staged"
)

// MarkAuditHandled tells the request-boundary recorder that a service
// already emitted the audit event for this request, so it must not emit a
// second one.
func MarkAuditHandled(c *gin.Context) {
	c.Set(contextAuditHandled, true)
}

// StageAuditEvent hands an event to the request-boundary recorder, which
// completes it with actor and request context before recording. Used for
// actions only the handler can describe, like LOGIN and EXPORT.
func StageAuditEvent(c *gin.Context, event *model.AuditEvent) {
	c.Set(contextAuditStaged, event)
	MarkAuditHandled(c)
}

// AuditMiddleware records the request-boundary audit trail: staged handler
// events, denied access, and any state-changing request no service claimed.
// Read-only requests that pass are not recorded.
func AuditMiddleware(rec service.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := uuid.NewString()
		c.Header("X-Request-ID", reqID)

		var reqBody []byte
		if c.Request.Body != nil && isStateChanging(c.Request.Method) {
			reqBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(reqBody))
		}

		meta := service.RequestMeta{
			Origin: c.ClientIP(),
			Agent:  c.Request.UserAgent(),
			Path:   c.Request.URL.Path,
			Method: c.Request.Method,
		}
		c.Request = c.Request.WithContext(service.WithRequestMeta(c.Request.Context(), meta))

		c.Next()

		actor := CurrentActor(c)
		status := c.Writer.Status()

		if staged, exists := c.Get(contextAuditStaged); exists {
			if event, ok := staged.(*model.AuditEvent); ok {
				completeEvent(event, actor, meta)
				rec.Record(event)
			}
			return
		}

		if c.GetBool(contextAuditHandled) {
			return
		}

		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			event := &model.AuditEvent{
				Action:      model.ActionAccessDenied,
				Outcome:     model.OutcomeFailure,
				Severity:    model.SeverityWarning,
				Description: "access denied: " + c.Request.Method + " " + c.Request.URL.Path,
			}
			completeEvent(event, actor, meta)
			rec.Record(event)
			return
		}

		if !isStateChanging(c.Request.Method) {
			return
		}

		// Fallback for state-changing endpoints without a domain-level event.
		event := &model.AuditEvent{
			Action:      methodAction(c.Request.Method),
			Outcome:     outcomeFor(status),
			Description: c.Request.Method + " " + c.Request.URL.Path,
		}
		if body := redactBody(reqBody); body != "" {
			event.ExtraContext = map[string]any{"request_body": body}
		}
		completeEvent(event, actor, meta)
		rec.Record(event)
	}
}

func completeEvent(event *model.AuditEvent, actor *model.Actor, meta service.RequestMeta) {
	if event.ActorID == "" {
		event.ActorID = actor.ID
		event.ActorName = actor.Name
	}
	if event.OriginAddress == "" {
		event.OriginAddress = meta.Origin
	}
	if event.ClientAgent == "" {
		event.ClientAgent = meta.Agent
	}
	if event.RequestPath == "" {
		event.RequestPath = meta.Path
	}
	if event.RequestMethod == "" {
		event.RequestMethod = meta.Method
	}
}

func isStateChanging(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func methodAction(method string) model.ActionKind {
	switch method {
	case http.MethodPost:
		return model.ActionCreate
	case http.MethodDelete:
		return model.ActionDelete
	default:
		return model.ActionUpdate
	}
}

func outcomeFor(status int) model.Outcome {
	if status >= 200 && status < 400 {
		return model.OutcomeSuccess
	}
	return model.OutcomeFailure
}

// redactBody masks credential-bearing fields before the body enters the
// audit trail.
func redactBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return "[unparseable]"
	}
	redactValue(&data)
	out, err := json.Marshal(data)
	if err != nil {
		return "[unparseable]"
	}
	return string(out)
}

func redactValue(v *any) {
	switch raw := (*v).(type) {
	case map[string]any:
		for key, val := range raw {
			if isSensitiveKey(key) {
				raw[key] = "***"
				continue
			}
			vv := val
			redactValue(&vv)
			raw[key] = vv
		}
	case []any:
		for i, val := range raw {
			vv := val
			redactValue(&vv)
			raw[i] = vv
		}
	}
}

func isSensitiveKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "api_key", "apikey", "password", "secret", "token", "credential", "private_key":
		return true
	default:
		return false
	}
}
