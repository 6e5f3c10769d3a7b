package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"

	"github.com/gin-gonic/gin"
)

type captureRecorder struct {
	mu     sync.Mutex
	events []*model.AuditEvent
}

func (r *captureRecorder) Record(event *model.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *captureRecorder) all() []*model.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.AuditEvent(nil), r.events...)
}

func newAuditRouter(rec *captureRecorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuditMiddleware(rec))
	return r
}

func TestAuditMiddlewareRecordsAccessDenied(t *testing.T) {
	rec := &captureRecorder{}
	r := newAuditRouter(rec)
	r.GET("/v1/orders", func(c *gin.Context) {
		c.JSON(http.StatusForbidden, gin.H{"error": "no"})
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Action != model.ActionAccessDenied {
		t.Fatalf("expected ACCESS_DENIED, got %s", events[0].Action)
	}
	if events[0].Outcome != model.OutcomeFailure {
		t.Fatalf("expected FAILURE outcome")
	}
	if events[0].RequestPath != "/v1/orders" {
		t.Fatalf("request path not captured: %q", events[0].RequestPath)
	}
}

func TestAuditMiddlewareSkipsHandledRequests(t *testing.T) {
	rec := &captureRecorder{}
	r := newAuditRouter(rec)
	r.POST("/v1/orders", func(c *gin.Context) {
		MarkAuditHandled(c)
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if len(rec.all()) != 0 {
		t.Fatalf("handled request must not produce a boundary event")
	}
}

func TestAuditMiddlewareStagedEvent(t *testing.T) {
	rec := &captureRecorder{}
	r := newAuditRouter(rec)
	r.POST("/v1/auth/login", func(c *gin.Context) {
		StageAuditEvent(c, &model.AuditEvent{
			Action:  model.ActionLogin,
			Outcome: model.OutcomeSuccess,
		})
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(`{"api_key":"k"}`))
	req.Header.Set("User-Agent", "test-agent")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 staged event, got %d", len(events))
	}
	if events[0].Action != model.ActionLogin {
		t.Fatalf("expected LOGIN, got %s", events[0].Action)
	}
	if events[0].ClientAgent != "test-agent" {
		t.Fatalf("client agent not filled: %q", events[0].ClientAgent)
	}
}

func TestAuditMiddlewareFallbackRedactsBody(t *testing.T) {
	rec := &captureRecorder{}
	r := newAuditRouter(rec)
	r.POST("/v1/things", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	body := `{"name":"x","api_key":"supersecret","nested":{"password":"hunter2"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/things", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("expected fallback event, got %d", len(events))
	}
	raw, _ := events[0].ExtraContext["request_body"].(string)
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		t.Fatalf("request body not valid json: %v", err)
	}
	if data["api_key"] != "***" {
		t.Fatalf("api_key not redacted: %v", data["api_key"])
	}
	if nested, ok := data["nested"].(map[string]any); !ok || nested["password"] != "***" {
		t.Fatalf("nested password not redacted: %v", data["nested"])
	}
	if data["name"] != "x" {
		t.Fatalf("non-sensitive field mangled: %v", data["name"])
	}
}

func TestRedactBodyInvalidJSON(t *testing.T) {
	if out := redactBody([]byte("not-json")); out != "[unparseable]" {
		t.Fatalf("expected placeholder for invalid json, got %q", out)
	}
	if out := redactBody(nil); out != "" {
		t.Fatalf("expected empty string for empty body, got %q", out)
	}
}
