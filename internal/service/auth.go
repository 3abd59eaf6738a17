// Package service 认证服务
package service

import (
	"context"
	"errors"

	"github.com/clinichub/access-backend/internal/model"
	"github.com/clinichub/access-backend/internal/repository"
)

// 认证相关错误
var (
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrAccountDisabled    = errors.New("账户已禁用")
	ErrUserNotFound       = errors.New("用户不存在")
	ErrUsernameExists     = errors.New("用户名已存在")
)

// AuthService 认证服务接口
type AuthService interface {
	// Authenticate 验证用户凭据
	Authenticate(ctx context.Context, username, password string) (*model.User, error)
	// Register 创建员工账户
	Register(ctx context.Context, username, password, displayName, roleKey string) (*model.User, error)
	// GetUser 按 ID 查询账户
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// authService 认证服务实现
type authService struct {
	userRepo repository.UserRepository
}

// NewAuthService 创建认证服务
func NewAuthService(userRepo repository.UserRepository) AuthService {
	return &authService{userRepo: userRepo}
}

// Authenticate 验证用户凭据
func (s *authService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive() {
		return nil, ErrAccountDisabled
	}

	if !user.VerifyPassword(password) {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// Register 创建员工账户
func (s *authService) Register(ctx context.Context, username, password, displayName, roleKey string) (*model.User, error) {
	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err == nil && existing != nil {
		return nil, ErrUsernameExists
	}

	user := &model.User{
		Username:    username,
		DisplayName: displayName,
		RoleKey:     roleKey,
		Status:      model.StatusActive,
	}
	if err := user.SetPassword(password); err != nil {
		return nil, err
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser 按 ID 查询账户
func (s *authService) GetUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
