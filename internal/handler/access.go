// Package handler HTTP 处理器
package handler

import (
	"strconv"

	"github.com/clinichub/access-backend/internal/middleware"
	"github.com/clinichub/access-backend/internal/model"
	"github.com/clinichub/access-backend/internal/service"
	"github.com/clinichub/access-backend/pkg/response"
	"github.com/gin-gonic/gin"
)

// AccessHandler 权限管理处理器
type AccessHandler struct {
	adminService service.AccessAdminService
	registry     service.Registry
	resolver     service.TemplateResolver
}

// NewAccessHandler 创建权限管理处理器
func NewAccessHandler(adminSvc service.AccessAdminService, registry service.Registry, resolver service.TemplateResolver) *AccessHandler {
	return &AccessHandler{
		adminService: adminSvc,
		registry:     registry,
		resolver:     resolver,
	}
}

// CreateModuleRequest 创建模块请求
type CreateModuleRequest struct {
	Key          string `json:"key" binding:"required"`
	DisplayName  string `json:"display_name" binding:"required"`
	Description  string `json:"description"`
	IconHint     string `json:"icon_hint"`
	SidebarOrder int    `json:"sidebar_order"`
}

// UpdateModuleRequest 更新模块请求
type UpdateModuleRequest struct {
	DisplayName  string `json:"display_name"`
	Description  string `json:"description"`
	IconHint     string `json:"icon_hint"`
	SidebarOrder int    `json:"sidebar_order"`
	Active       *bool  `json:"active"`
}

// CreateRoleRequest 创建角色请求
type CreateRoleRequest struct {
	Key            string `json:"key" binding:"required"`
	DisplayName    string `json:"display_name" binding:"required"`
	Description    string `json:"description"`
	TemplateFolder string `json:"template_folder" binding:"required"`
}

// UpdateRoleRequest 更新角色请求
type UpdateRoleRequest struct {
	DisplayName    string `json:"display_name"`
	Description    string `json:"description"`
	TemplateFolder string `json:"template_folder"`
}

// UpdateMatrixRequest 批量编辑权限矩阵请求
type UpdateMatrixRequest struct {
	Entries map[string]model.Caps `json:"entries" binding:"required"`
}

// ListModules 列出模块
// GET /api/v1/modules?active=true
func (h *AccessHandler) ListModules(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active", "false"))
	response.Success(c, h.registry.ListModules(activeOnly))
}

// CreateModule 创建模块
// POST /api/v1/modules
func (h *AccessHandler) CreateModule(c *gin.Context) {
	var req CreateModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidRequest, "参数错误: "+err.Error())
		return
	}

	module := &model.Module{
		Key:          req.Key,
		DisplayName:  req.DisplayName,
		Description:  req.Description,
		IconHint:     req.IconHint,
		SidebarOrder: req.SidebarOrder,
		Active:       true,
	}

	if err := h.adminService.CreateModule(c.Request.Context(), actorID(c), module); err != nil {
		switch err {
		case service.ErrInvalidModuleKey:
			response.Error(c, response.CodeInvalidKey)
		case service.ErrModuleKeyExists:
			response.Error(c, response.CodeModuleExists)
		default:
			response.Error(c, response.CodeServerError)
		}
		return
	}

	response.Success(c, module)
}

// UpdateModule 更新模块
// PUT /api/v1/modules/:key
func (h *AccessHandler) UpdateModule(c *gin.Context) {
	key := c.Param("key")
	var req UpdateModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidRequest, "参数错误: "+err.Error())
		return
	}

	existing, err := h.registry.GetModule(key)
	if err != nil {
		response.Error(c, response.CodeModuleNotFound)
		return
	}

	module := *existing
	if req.DisplayName != "" {
		module.DisplayName = req.DisplayName
	}
	if req.Description != "" {
		module.Description = req.Description
	}
	if req.IconHint != "" {
		module.IconHint = req.IconHint
	}
	if req.SidebarOrder != 0 {
		module.SidebarOrder = req.SidebarOrder
	}
	if req.Active != nil {
		module.Active = *req.Active
	}

	if err := h.adminService.UpdateModule(c.Request.Context(), actorID(c), &module); err != nil {
		switch err {
		case service.ErrModuleNotFound:
			response.Error(c, response.CodeModuleNotFound)
		default:
			response.Error(c, response.CodeServerError)
		}
		return
	}

	response.Success(c, module)
}

// DeleteModule 删除模块
// DELETE /api/v1/modules/:key?force=true
func (h *AccessHandler) DeleteModule(c *gin.Context) {
	key := c.Param("key")
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))

	if err := h.adminService.DeleteModule(c.Request.Context(), actorID(c), key, force); err != nil {
		switch err {
		case service.ErrModuleNotFound:
			response.Error(c, response.CodeModuleNotFound)
		case service.ErrModuleInUse:
			response.Error(c, response.CodeModuleInUse)
		default:
			response.Error(c, response.CodeServerError)
		}
		return
	}

	response.Success(c, nil)
}

// ListRoles 列出角色
// GET /api/v1/roles
func (h *AccessHandler) ListRoles(c *gin.Context) {
	response.Success(c, h.registry.ListRoles())
}

// CreateRole 创建角色
// POST /api/v1/roles
func (h *AccessHandler) CreateRole(c *gin.Context) {
	var req CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidRequest, "参数错误: "+err.Error())
		return
	}

	role := &model.Role{
		Key:            req.Key,
		DisplayName:    req.DisplayName,
		Description:    req.Description,
		TemplateFolder: req.TemplateFolder,
	}

	if err := h.adminService.CreateRole(c.Request.Context(), actorID(c), role); err != nil {
		switch err {
		case service.ErrInvalidRoleKey:
			response.Error(c, response.CodeInvalidKey)
		case service.ErrRoleKeyExists:
			response.Error(c, response.CodeRoleExists)
		default:
			response.Error(c, response.CodeServerError)
		}
		return
	}

	response.Success(c, role)
}

// UpdateRole 更新角色
// PUT /api/v1/roles/:key
func (h *AccessHandler) UpdateRole(c *gin.Context) {
	key := c.Param("key")
	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidRequest, "参数错误: "+err.Error())
		return
	}

	role := &model.Role{
		Key:            key,
		DisplayName:    req.DisplayName,
		Description:    req.Description,
		TemplateFolder: req.TemplateFolder,
	}

	if err := h.adminService.UpdateRole(c.Request.Context(), actorID(c), role); err != nil {
		switch err {
		case service.ErrRoleNotFound:
			response.Error(c, response.CodeRoleNotFound)
		default:
			response.Error(c, response.CodeServerError)
		}
		return
	}

	response.Success(c, role)
}

// DeleteRole 删除角色
// DELETE /api/v1/roles/:key
func (h *AccessHandler) DeleteRole(c *gin.Context) {
	key := c.Param("key")

	if err := h.adminService.DeleteRole(c.Request.Context(), actorID(c), key); err != nil {
		switch err {
		case service.ErrRoleNotFound:
			response.Error(c, response.CodeRoleNotFound)
		case service.ErrSystemRole:
			response.Error(c, response.CodeSystemRoleProtected)
		default:
			response.Error(c, response.CodeServerError)
		}
		return
	}

	response.Success(c, nil)
}

// GetMatrix 读取角色的权限矩阵
// GET /api/v1/roles/:key/matrix
func (h *AccessHandler) GetMatrix(c *gin.Context) {
	key := c.Param("key")

	rows, err := h.adminService.GetMatrix(c.Request.Context(), key)
	if err != nil {
		switch err {
		case service.ErrRoleNotFound:
			response.Error(c, response.CodeRoleNotFound)
		default:
			response.Error(c, response.CodeServerError)
		}
		return
	}

	response.Success(c, rows)
}

// UpdateMatrix 批量编辑角色的权限矩阵
// PUT /api/v1/roles/:key/matrix
func (h *AccessHandler) UpdateMatrix(c *gin.Context) {
	key := c.Param("key")
	var req UpdateMatrixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidRequest, "参数错误: "+err.Error())
		return
	}

	count, err := h.adminService.UpdateMatrix(c.Request.Context(), actorID(c), key, req.Entries)
	if err != nil {
		switch err {
		case service.ErrRoleNotFound:
			response.Error(c, response.CodeRoleNotFound)
		case service.ErrModuleNotFound:
			response.Error(c, response.CodeModuleNotFound)
		default:
			response.Error(c, response.CodeServerError)
		}
		return
	}

	response.Success(c, gin.H{"updated": count})
}

// SeedDefaults 初始化默认目录
// POST /api/v1/seed
func (h *AccessHandler) SeedDefaults(c *gin.Context) {
	if err := h.adminService.SeedDefaults(c.Request.Context(), actorID(c)); err != nil {
		response.Error(c, response.CodeServerError)
		return
	}
	response.Success(c, nil)
}

// ResolveTemplate 按当前主体的角色解析模板路径
// GET /api/v1/templates/resolve?base=dashboard.html&module=appointment_management
func (h *AccessHandler) ResolveTemplate(c *gin.Context) {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		response.Error(c, response.CodeInvalidToken)
		return
	}

	base := c.Query("base")
	moduleKey := c.Query("module")

	path, err := h.resolver.ResolveByKey(base, principal.RoleKey, moduleKey)
	if err != nil {
		switch err {
		case service.ErrRoleNotFound:
			response.Error(c, response.CodeRoleNotFound)
		case service.ErrBadTemplateName:
			response.ErrorWithMsg(c, response.CodeInvalidRequest, "非法的模板名称")
		default:
			response.Error(c, response.CodeServerError)
		}
		return
	}

	response.Success(c, gin.H{"path": path})
}

// actorID 取当前主体 ID 用于审计
func actorID(c *gin.Context) string {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		return ""
	}
	return principal.ID
}
