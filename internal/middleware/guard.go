package middleware

import (
	"github.com/clinichub/access-backend/internal/model"
	"github.com/clinichub/access-backend/internal/service"
	"github.com/clinichub/access-backend/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequireModule 模块权限守卫
// 每个业务处理器入口的统一检查：放行则交还控制权，
// 拒绝则返回标准 403 响应并由引擎记录审计事件。
// 原因代码只进日志，不返回给调用方
func RequireModule(engine service.PermissionEngine, moduleKey string, cap model.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Require(c, engine, moduleKey, cap) {
			return
		}
		c.Next()
	}
}

// Require 命令式权限检查，供处理器内部按需调用
// 返回 false 时已写入拒绝响应并中止请求
func Require(c *gin.Context, engine service.PermissionEngine, moduleKey string, cap model.Capability) bool {
	principal := GetPrincipal(c)

	requestID, _ := c.Get("request_id")
	reqCtx := map[string]string{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
	}
	if id, ok := requestID.(string); ok {
		reqCtx["request_id"] = id
	}

	decision := engine.DecideWithContext(c.Request.Context(), principal, moduleKey, cap, reqCtx)
	if decision.Allowed {
		return true
	}

	logger.Info("模块访问被拒绝",
		zap.String("module", moduleKey),
		zap.String("capability", string(cap)),
		zap.String("reason", string(decision.Reason)),
		zap.String("path", c.Request.URL.Path),
	)

	response.Error(c, response.CodeForbidden)
	c.Abort()
	return false
}
