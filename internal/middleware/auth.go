package middleware

import (
	"strings"

	"github.com/clinichub/access-backend/internal/model"
	"github.com/clinichub/access-backend/internal/service"
	"github.com/clinichub/access-backend/pkg/response"
	"github.com/gin-gonic/gin"
)

// 上下文键
const (
	ContextPrincipal = "principal"
)

// JWTAuth JWT 认证中间件
// 验证令牌并把主体放入上下文
func JWTAuth(tokenService service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := parseToken(c, tokenService)
		if !ok {
			c.Abort()
			return
		}

		c.Set(ContextPrincipal, &model.Principal{
			ID:      claims.UserID,
			RoleKey: claims.RoleKey,
		})
		c.Set("user_id", claims.UserID)
		c.Set("role_key", claims.RoleKey)

		c.Next()
	}
}

// OptionalJWTAuth 可选的 JWT 认证中间件
// 没有令牌时不拦截，由后续守卫按未认证拒绝
func OptionalJWTAuth(tokenService service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		claims, ok := parseToken(c, tokenService)
		if !ok {
			c.Abort()
			return
		}

		c.Set(ContextPrincipal, &model.Principal{
			ID:      claims.UserID,
			RoleKey: claims.RoleKey,
		})
		c.Set("user_id", claims.UserID)
		c.Set("role_key", claims.RoleKey)

		c.Next()
	}
}

// parseToken 从 Authorization 头解析并验证令牌
func parseToken(c *gin.Context, tokenService service.TokenService) (*service.TokenClaims, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		response.ErrorWithMsg(c, response.CodeInvalidToken, "未提供认证令牌")
		return nil, false
	}

	// 检查 Bearer 前缀
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		response.ErrorWithMsg(c, response.CodeInvalidToken, "认证令牌格式错误")
		return nil, false
	}

	claims, err := tokenService.ValidateToken(c.Request.Context(), parts[1])
	if err != nil {
		switch err {
		case service.ErrTokenExpired:
			response.ErrorWithMsg(c, response.CodeInvalidToken, "令牌已过期")
		default:
			response.Error(c, response.CodeInvalidToken)
		}
		return nil, false
	}

	return claims, true
}

// GetPrincipal 从上下文取出主体，未认证时返回 nil
func GetPrincipal(c *gin.Context) *model.Principal {
	value, exists := c.Get(ContextPrincipal)
	if !exists {
		return nil
	}
	principal, ok := value.(*model.Principal)
	if !ok {
		return nil
	}
	return principal
}
