package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/middleware"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/repository"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/service"

	"github.com/gin-gonic/gin"
)

type testStack struct {
	router *gin.Engine
	audit  *service.AuditService
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	store := repository.NewMemoryRBACStore()
	if err := service.Seed(ctx, store, "Admin", "admin-key"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	for id, role := range map[string]string{"alice": model.RoleMaker, "bob": model.RoleChecker} {
		if err := store.CreateActor(ctx, &model.Actor{ID: id, Name: id, APIKey: "key-" + id, Active: true}); err != nil {
			t.Fatalf("create actor: %v", err)
		}
		if err := store.AssignRole(ctx, id, role); err != nil {
			t.Fatalf("assign role: %v", err)
		}
	}

	auditSvc, err := service.NewAuditService(service.AuditOptions{QueueSize: 64, Workers: 1}, nil, nil)
	if err != nil {
		t.Fatalf("audit service: %v", err)
	}
	t.Cleanup(auditSvc.Close)

	resolver := service.NewPermissionResolver(store, repository.NewMemoryGrantsCache(0))
	actorSvc := service.NewActorService(store)
	engine := service.NewWorkflowEngine(resolver, store, auditSvc)
	engine.RegisterStore("order", repository.NewMemoryRecordStore())

	orderHandler := NewOrderHandler(engine)
	auditHandler := NewAuditHandler(auditSvc)

	r := gin.New()
	v1 := r.Group("/v1")
	v1.Use(middleware.AuditMiddleware(auditSvc))
	v1.Use(middleware.AuthMiddleware(actorSvc))
	{
		v1.GET("/orders/:id", middleware.RequireAnyPermission(resolver, service.ViewCodes("order")...), orderHandler.Get)
		v1.POST("/orders", orderHandler.Create)
		v1.POST("/orders/:id/submit", orderHandler.Submit)
		v1.POST("/orders/:id/approve", orderHandler.Approve)
		v1.POST("/orders/:id/reject", orderHandler.Reject)
		v1.GET("/audit", middleware.RequireAnyPermission(resolver, "view_audit"), auditHandler.Query)
	}

	return &testStack{router: r, audit: auditSvc}
}

func (s *testStack) do(t *testing.T, method, path, apiKey string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(middleware.HeaderAPIKey, apiKey)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestOrderApprovalOverHTTP(t *testing.T) {
	s := newTestStack(t)

	w := s.do(t, http.MethodPost, "/v1/orders", "key-alice", map[string]any{
		"portfolio_id": "pf-1",
		"symbol":       "msft",
		"side":         "buy",
		"quantity":     "50",
		"limit_price":  "410.25",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var order model.Order
	if err := json.Unmarshal(w.Body.Bytes(), &order); err != nil {
		t.Fatalf("invalid create response: %v", err)
	}
	if order.Symbol != "MSFT" || order.Side != model.SideBuy {
		t.Fatalf("order not normalized: %+v", order)
	}
	if order.Status != model.StatusDraft {
		t.Fatalf("new order must be a draft, got %s", order.Status)
	}

	w = s.do(t, http.MethodPost, "/v1/orders/"+order.ID+"/submit", "key-alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Self-approval refused with the specific taxonomy code.
	w = s.do(t, http.MethodPost, "/v1/orders/"+order.ID+"/approve", "key-alice", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("self-approve: expected 403, got %d", w.Code)
	}
	var refusal map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &refusal)
	if refusal["error_kind"] != "SELF_APPROVAL_FORBIDDEN" {
		t.Fatalf("expected SELF_APPROVAL_FORBIDDEN, got %v", refusal["error_kind"])
	}

	w = s.do(t, http.MethodPost, "/v1/orders/"+order.ID+"/approve", "key-bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/v1/orders/"+order.ID, "key-bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	var fetched model.Order
	_ = json.Unmarshal(w.Body.Bytes(), &fetched)
	if fetched.Status != model.StatusApproved || fetched.ApprovedBy != "bob" {
		t.Fatalf("unexpected final state: %+v", fetched.WorkflowMeta)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	s := newTestStack(t)

	w := s.do(t, http.MethodPost, "/v1/orders", "key-alice", map[string]any{
		"portfolio_id": "pf-1",
		"symbol":       "AAPL",
		"side":         "SELL",
		"quantity":     "10",
		"limit_price":  "190",
	})
	var order model.Order
	_ = json.Unmarshal(w.Body.Bytes(), &order)
	s.do(t, http.MethodPost, "/v1/orders/"+order.ID+"/submit", "key-alice", nil)

	w = s.do(t, http.MethodPost, "/v1/orders/"+order.ID+"/reject", "key-bob", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing reason: expected 400, got %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/v1/orders/"+order.ID+"/reject", "key-bob", map[string]any{
		"reason": "price is stale against the current book",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("reject: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAuditEndpointPermissions(t *testing.T) {
	s := newTestStack(t)

	// Makers hold no view_audit; checkers do.
	w := s.do(t, http.MethodGet, "/v1/audit", "key-alice", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("maker audit query: expected 403, got %d", w.Code)
	}
	var denied map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &denied)
	if denied["code"] != "PERMISSION_DENIED" {
		t.Fatalf("expected PERMISSION_DENIED refusal body, got %s", w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/v1/audit?actor_id=alice", "key-bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("checker audit query: expected 200, got %d", w.Code)
	}

	// Unauthenticated requests resolve to anonymous and are denied.
	w = s.do(t, http.MethodGet, "/v1/audit", "", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("anonymous audit query: expected 403, got %d", w.Code)
	}

	// Bad credentials are rejected outright.
	w = s.do(t, http.MethodGet, "/v1/audit", "key-nobody", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad key: expected 401, got %d", w.Code)
	}
}
