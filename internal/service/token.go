// Package service 令牌服务
package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 令牌相关错误
var (
	ErrInvalidToken = errors.New("无效的令牌")
	ErrTokenExpired = errors.New("令牌已过期")
)

// TokenClaims JWT 声明
// role_key 随令牌下发，权限引擎直接消费
type TokenClaims struct {
	jwt.RegisteredClaims
	UserID  string `json:"uid,omitempty"`
	RoleKey string `json:"role_key,omitempty"`
}

// TokenService 令牌服务接口
type TokenService interface {
	// GenerateAccessToken 生成访问令牌
	GenerateAccessToken(ctx context.Context, userID, roleKey string) (string, error)
	// ValidateToken 验证令牌
	ValidateToken(ctx context.Context, tokenString string) (*TokenClaims, error)
}

// TokenServiceConfig 令牌服务配置
type TokenServiceConfig struct {
	Secret       string        // HS256 签名密钥
	Issuer       string        // 签发者
	AccessExpiry time.Duration // 访问令牌有效期
}

type tokenService struct {
	config *TokenServiceConfig
}

// NewTokenService 创建令牌服务
func NewTokenService(config *TokenServiceConfig) TokenService {
	if config.AccessExpiry == 0 {
		config.AccessExpiry = 2 * time.Hour
	}
	return &tokenService{config: config}
}

// GenerateAccessToken 生成访问令牌
func (s *tokenService) GenerateAccessToken(ctx context.Context, userID, roleKey string) (string, error) {
	now := time.Now()
	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessExpiry)),
		},
		UserID:  userID,
		RoleKey: roleKey,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}

// ValidateToken 验证令牌
func (s *tokenService) ValidateToken(ctx context.Context, tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if s.config.Issuer != "" && claims.Issuer != s.config.Issuer {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
