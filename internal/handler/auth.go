// Package handler HTTP 处理器
package handler

import (
	"github.com/clinichub/access-backend/internal/middleware"
	"github.com/clinichub/access-backend/internal/service"
	"github.com/clinichub/access-backend/pkg/response"
	"github.com/gin-gonic/gin"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	authService  service.AuthService
	tokenService service.TokenService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authSvc service.AuthService, tokenSvc service.TokenService) *AuthHandler {
	return &AuthHandler{
		authService:  authSvc,
		tokenService: tokenSvc,
	}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 登录
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidRequest, "参数错误: "+err.Error())
		return
	}

	user, err := h.authService.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.Error(c, response.CodeInvalidCredentials)
		return
	}

	token, err := h.tokenService.GenerateAccessToken(c.Request.Context(), user.ID, user.RoleKey)
	if err != nil {
		response.Error(c, response.CodeServerError)
		return
	}

	response.Success(c, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"user":         user,
	})
}

// GetCurrentUser 获取当前用户
// GET /api/v1/auth/me
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		response.Error(c, response.CodeInvalidToken)
		return
	}

	user, err := h.authService.GetUser(c.Request.Context(), principal.ID)
	if err != nil {
		response.Error(c, response.CodeUserNotFound)
		return
	}

	response.Success(c, user)
}
