// Package handler HTTP 处理器
package handler

import (
	"strconv"

	"github.com/clinichub/access-backend/internal/repository"
	"github.com/clinichub/access-backend/internal/service"
	"github.com/clinichub/access-backend/pkg/response"
	"github.com/gin-gonic/gin"
)

// AuditHandler 审计查询处理器
type AuditHandler struct {
	auditService service.AuditService
}

// NewAuditHandler 创建审计查询处理器
func NewAuditHandler(auditSvc service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditSvc}
}

// List 查询审计事件
// GET /api/v1/audit?principal_id=&subject=&operation=&decision=&page=1&page_size=20
func (h *AuditHandler) List(c *gin.Context) {
	filter := &repository.AuditFilter{
		PrincipalID: c.Query("principal_id"),
		Subject:     c.Query("subject"),
		Operation:   c.Query("operation"),
		Decision:    c.Query("decision"),
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	events, total, err := h.auditService.Query(c.Request.Context(), filter, &repository.Pagination{
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		response.Error(c, response.CodeServerError)
		return
	}

	response.Success(c, gin.H{
		"items":     events,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
