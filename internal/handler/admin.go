package handler

import (
	"net/http"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/middleware"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/service"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes the RBAC catalog and the secondary-review queue.
// Routes mounting it are gated on manage_rbac.
type AdminHandler struct {
	admin *service.AdminService
	audit *service.AuditService
}

func NewAdminHandler(admin *service.AdminService, audit *service.AuditService) *AdminHandler {
	return &AdminHandler{admin: admin, audit: audit}
}

type createActorRequest struct {
	Name      string   `json:"name" binding:"required"`
	APIKey    string   `json:"api_key"`
	Superuser bool     `json:"superuser"`
	Roles     []string `json:"roles"`
}

func (h *AdminHandler) CreateActor(c *gin.Context) {
	var req createActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	adminID := middleware.CurrentActor(c).ID
	actor := &model.Actor{Name: req.Name, APIKey: req.APIKey, Superuser: req.Superuser}
	if err := h.admin.CreateActor(c.Request.Context(), adminID, actor); err != nil {
		respondError(c, err)
		return
	}
	for _, role := range req.Roles {
		if err := h.admin.AssignRole(c.Request.Context(), adminID, actor.ID, role); err != nil {
			respondError(c, err)
			return
		}
	}
	middleware.MarkAuditHandled(c)
	c.JSON(http.StatusCreated, actor)
}

type activeRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *AdminHandler) SetActorActive(c *gin.Context) {
	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "active is required"})
		return
	}
	adminID := middleware.CurrentActor(c).ID
	if err := h.admin.SetActorActive(c.Request.Context(), adminID, c.Param("id"), *req.Active); err != nil {
		respondError(c, err)
		return
	}
	middleware.MarkAuditHandled(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type roleRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name"`
}

func (h *AdminHandler) CreateRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	adminID := middleware.CurrentActor(c).ID
	role := &model.Role{Code: req.Code, Name: req.Name}
	if err := h.admin.CreateRole(c.Request.Context(), adminID, role); err != nil {
		respondError(c, err)
		return
	}
	middleware.MarkAuditHandled(c)
	c.JSON(http.StatusCreated, role)
}

func (h *AdminHandler) SetRoleActive(c *gin.Context) {
	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "active is required"})
		return
	}
	adminID := middleware.CurrentActor(c).ID
	if err := h.admin.SetRoleActive(c.Request.Context(), adminID, c.Param("code"), *req.Active); err != nil {
		respondError(c, err)
		return
	}
	middleware.MarkAuditHandled(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type rolePermissionsRequest struct {
	Permissions []string `json:"permissions" binding:"required"`
}

func (h *AdminHandler) SetRolePermissions(c *gin.Context) {
	var req rolePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "permissions is required"})
		return
	}
	adminID := middleware.CurrentActor(c).ID
	if err := h.admin.SetRolePermissions(c.Request.Context(), adminID, c.Param("code"), req.Permissions); err != nil {
		respondError(c, err)
		return
	}
	middleware.MarkAuditHandled(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type permissionRequest struct {
	Code        string `json:"code" binding:"required"`
	Description string `json:"description"`
}

func (h *AdminHandler) UpsertPermission(c *gin.Context) {
	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	adminID := middleware.CurrentActor(c).ID
	perm := &model.Permission{Code: req.Code, Description: req.Description}
	if err := h.admin.UpsertPermission(c.Request.Context(), adminID, perm); err != nil {
		respondError(c, err)
		return
	}
	middleware.MarkAuditHandled(c)
	c.JSON(http.StatusOK, perm)
}

func (h *AdminHandler) SetPermissionActive(c *gin.Context) {
	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "active is required"})
		return
	}
	adminID := middleware.CurrentActor(c).ID
	if err := h.admin.SetPermissionActive(c.Request.Context(), adminID, c.Param("code"), *req.Active); err != nil {
		respondError(c, err)
		return
	}
	middleware.MarkAuditHandled(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type roleAssignmentRequest struct {
	Role string `json:"role" binding:"required"`
}

func (h *AdminHandler) AssignRole(c *gin.Context) {
	var req roleAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role is required"})
		return
	}
	adminID := middleware.CurrentActor(c).ID
	if err := h.admin.AssignRole(c.Request.Context(), adminID, c.Param("id"), req.Role); err != nil {
		respondError(c, err)
		return
	}
	middleware.MarkAuditHandled(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *AdminHandler) RevokeRole(c *gin.Context) {
	adminID := middleware.CurrentActor(c).ID
	if err := h.admin.RevokeRole(c.Request.Context(), adminID, c.Param("id"), c.Param("role")); err != nil {
		respondError(c, err)
		return
	}
	middleware.MarkAuditHandled(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *AdminHandler) ListRoles(c *gin.Context) {
	roles, err := h.admin.ListRoles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": roles})
}

func (h *AdminHandler) ListPermissions(c *gin.Context) {
	perms, err := h.admin.ListPermissions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": perms})
}

func (h *AdminHandler) InvalidateCache(c *gin.Context) {
	h.admin.InvalidateGrantsCache(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type approvalRequest struct {
	Approve *bool `json:"approve" binding:"required"`
}

// ResolveApproval settles the pending secondary review on an audited RBAC
// change. The reviewer must differ from the administrator who made it.
func (h *AdminHandler) ResolveApproval(c *gin.Context) {
	var req approvalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "approve is required"})
		return
	}
	reviewer := middleware.CurrentActor(c)
	if err := h.audit.ResolveApproval(c.Request.Context(), c.Param("id"), reviewer.ID, *req.Approve); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
