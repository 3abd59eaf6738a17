// Package service 业务逻辑层
package service

import (
	"context"
	"errors"

	"github.com/clinichub/access-backend/internal/model"
	"github.com/clinichub/access-backend/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrModuleKeyExists  = errors.New("模块标识已存在")
	ErrRoleKeyExists    = errors.New("角色标识已存在")
	ErrInvalidModuleKey = errors.New("模块标识只能包含小写字母、数字和下划线")
	ErrInvalidRoleKey   = errors.New("角色标识只能包含大写字母、数字和下划线")
	ErrSystemRole       = errors.New("系统内置角色不能删除")
	ErrModuleInUse      = errors.New("模块仍被权限行引用")
)

// CacheInvalidator 决策缓存失效接口，由权限引擎实现
type CacheInvalidator interface {
	Invalidate(ctx context.Context, roleKey string, moduleKeys ...string)
}

// MatrixRow 权限矩阵行
// 没有权限行的启用模块合成为全 false 的行
type MatrixRow struct {
	ModuleKey   string     `json:"module_key"`
	DisplayName string     `json:"display_name"`
	Caps        model.Caps `json:"caps"`
}

// AccessAdminService 权限管理服务接口
type AccessAdminService interface {
	// 模块管理
	CreateModule(ctx context.Context, actorID string, module *model.Module) error
	UpdateModule(ctx context.Context, actorID string, module *model.Module) error
	DeleteModule(ctx context.Context, actorID, key string, force bool) error

	// 角色管理
	CreateRole(ctx context.Context, actorID string, role *model.Role) error
	UpdateRole(ctx context.Context, actorID string, role *model.Role) error
	DeleteRole(ctx context.Context, actorID, key string) error

	// 权限矩阵
	GetMatrix(ctx context.Context, roleKey string) ([]MatrixRow, error)
	UpdateMatrix(ctx context.Context, actorID, roleKey string, entries map[string]model.Caps) (int, error)
	Grant(ctx context.Context, actorID, roleKey, moduleKey string, caps model.Caps) error

	// 初始化默认目录，可重复执行
	SeedDefaults(ctx context.Context, actorID string) error
}

// accessAdminService 权限管理服务实现
type accessAdminService struct {
	moduleRepo  repository.ModuleRepository
	roleRepo    repository.RoleRepository
	permRepo    repository.PermissionRepository
	registry    Registry
	invalidator CacheInvalidator
	recorder    AuditRecorder
	logger      *zap.Logger
}

// NewAccessAdminService 创建权限管理服务
func NewAccessAdminService(
	moduleRepo repository.ModuleRepository,
	roleRepo repository.RoleRepository,
	permRepo repository.PermissionRepository,
	registry Registry,
	invalidator CacheInvalidator,
	recorder AuditRecorder,
	logger *zap.Logger,
) AccessAdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &accessAdminService{
		moduleRepo:  moduleRepo,
		roleRepo:    roleRepo,
		permRepo:    permRepo,
		registry:    registry,
		invalidator: invalidator,
		recorder:    recorder,
		logger:      logger,
	}
}

// 模块管理

func (s *accessAdminService) CreateModule(ctx context.Context, actorID string, module *model.Module) error {
	if !model.ValidModuleKey(module.Key) {
		return ErrInvalidModuleKey
	}

	existing, err := s.moduleRepo.GetByKey(ctx, module.Key)
	if err == nil && existing != nil {
		return ErrModuleKeyExists
	}

	if err := s.moduleRepo.Create(ctx, module); err != nil {
		return err
	}

	s.afterCatalogChange(ctx)
	s.auditMutate(actorID, module.Key, map[string]string{
		"action": "create_module",
		"module": module.Key,
	})
	return nil
}

func (s *accessAdminService) UpdateModule(ctx context.Context, actorID string, module *model.Module) error {
	existing, err := s.moduleRepo.GetByKey(ctx, module.Key)
	if err != nil {
		return ErrModuleNotFound
	}

	existing.DisplayName = module.DisplayName
	existing.Description = module.Description
	existing.IconHint = module.IconHint
	existing.SidebarOrder = module.SidebarOrder
	existing.Active = module.Active

	if err := s.moduleRepo.Update(ctx, existing); err != nil {
		return err
	}

	s.afterCatalogChange(ctx)
	s.auditMutate(actorID, module.Key, map[string]string{
		"action": "update_module",
		"module": module.Key,
	})
	return nil
}

func (s *accessAdminService) DeleteModule(ctx context.Context, actorID, key string, force bool) error {
	if _, err := s.moduleRepo.GetByKey(ctx, key); err != nil {
		return ErrModuleNotFound
	}

	count, err := s.permRepo.CountByModule(ctx, key)
	if err != nil {
		return err
	}
	if count > 0 && !force {
		return ErrModuleInUse
	}

	if err := s.moduleRepo.DeleteCascade(ctx, key); err != nil {
		return err
	}

	// 先失效缓存再返回，保证调用方后续读不到已删模块的旧授权
	for _, role := range s.registry.ListRoles() {
		s.invalidate(ctx, role.Key, key)
	}
	s.afterCatalogChange(ctx)
	s.auditMutate(actorID, key, map[string]string{
		"action": "delete_module",
		"module": key,
	})
	return nil
}

// 角色管理

func (s *accessAdminService) CreateRole(ctx context.Context, actorID string, role *model.Role) error {
	if !model.ValidRoleKey(role.Key) {
		return ErrInvalidRoleKey
	}

	existing, err := s.roleRepo.GetByKey(ctx, role.Key)
	if err == nil && existing != nil {
		return ErrRoleKeyExists
	}

	if role.TemplateFolder == "" {
		role.TemplateFolder = "default"
	}

	if err := s.roleRepo.Create(ctx, role); err != nil {
		return err
	}

	s.afterCatalogChange(ctx)
	s.auditMutate(actorID, role.Key, map[string]string{
		"action": "create_role",
		"role":   role.Key,
	})
	return nil
}

func (s *accessAdminService) UpdateRole(ctx context.Context, actorID string, role *model.Role) error {
	existing, err := s.roleRepo.GetByKey(ctx, role.Key)
	if err != nil {
		return ErrRoleNotFound
	}

	existing.DisplayName = role.DisplayName
	existing.Description = role.Description
	if role.TemplateFolder != "" {
		existing.TemplateFolder = role.TemplateFolder
	}

	if err := s.roleRepo.Update(ctx, existing); err != nil {
		return err
	}

	s.afterCatalogChange(ctx)
	s.auditMutate(actorID, role.Key, map[string]string{
		"action": "update_role",
		"role":   role.Key,
	})
	return nil
}

func (s *accessAdminService) DeleteRole(ctx context.Context, actorID, key string) error {
	role, err := s.roleRepo.GetByKey(ctx, key)
	if err != nil {
		return ErrRoleNotFound
	}

	if role.IsSystem {
		return ErrSystemRole
	}

	// 权限行随角色在同一事务内级联删除
	if err := s.roleRepo.DeleteCascade(ctx, key); err != nil {
		return err
	}

	s.invalidate(ctx, key)
	s.afterCatalogChange(ctx)
	s.auditMutate(actorID, key, map[string]string{
		"action": "delete_role",
		"role":   key,
	})
	return nil
}

// 权限矩阵

func (s *accessAdminService) GetMatrix(ctx context.Context, roleKey string) ([]MatrixRow, error) {
	if _, err := s.roleRepo.GetByKey(ctx, roleKey); err != nil {
		return nil, ErrRoleNotFound
	}

	perms, err := s.permRepo.ListByRole(ctx, roleKey)
	if err != nil {
		return nil, err
	}
	granted := make(map[string]model.Caps, len(perms))
	for _, p := range perms {
		granted[p.ModuleKey] = p.Caps()
	}

	modules := s.registry.ListModules(true)
	rows := make([]MatrixRow, 0, len(modules))
	for _, m := range modules {
		rows = append(rows, MatrixRow{
			ModuleKey:   m.Key,
			DisplayName: m.DisplayName,
			Caps:        granted[m.Key],
		})
	}
	return rows, nil
}

func (s *accessAdminService) UpdateMatrix(ctx context.Context, actorID, roleKey string, entries map[string]model.Caps) (int, error) {
	if _, err := s.roleRepo.GetByKey(ctx, roleKey); err != nil {
		return 0, ErrRoleNotFound
	}

	for moduleKey := range entries {
		if _, err := s.moduleRepo.GetByKey(ctx, moduleKey); err != nil {
			return 0, ErrModuleNotFound
		}
	}

	// 记录变更前的能力位用于审计
	before := make(map[string]model.Caps, len(entries))
	for moduleKey := range entries {
		if perm, err := s.permRepo.Get(ctx, roleKey, moduleKey); err == nil {
			before[moduleKey] = perm.Caps()
		}
	}

	count, err := s.permRepo.BulkUpsert(ctx, roleKey, entries)
	if err != nil {
		return 0, err
	}

	moduleKeys := make([]string, 0, len(entries))
	for moduleKey := range entries {
		moduleKeys = append(moduleKeys, moduleKey)
	}
	s.invalidate(ctx, roleKey, moduleKeys...)

	for moduleKey, after := range entries {
		s.auditMutate(actorID, roleKey+"/"+moduleKey, map[string]string{
			"action": "update_matrix",
			"role":   roleKey,
			"module": moduleKey,
			"before": capsBits(before[moduleKey]),
			"after":  capsBits(after),
		})
	}
	return count, nil
}

func (s *accessAdminService) Grant(ctx context.Context, actorID, roleKey, moduleKey string, caps model.Caps) error {
	if _, err := s.roleRepo.GetByKey(ctx, roleKey); err != nil {
		return ErrRoleNotFound
	}
	if _, err := s.moduleRepo.GetByKey(ctx, moduleKey); err != nil {
		return ErrModuleNotFound
	}

	var before model.Caps
	if perm, err := s.permRepo.Get(ctx, roleKey, moduleKey); err == nil {
		before = perm.Caps()
	}

	if _, err := s.permRepo.Upsert(ctx, roleKey, moduleKey, caps); err != nil {
		return err
	}

	s.invalidate(ctx, roleKey, moduleKey)
	s.auditMutate(actorID, roleKey+"/"+moduleKey, map[string]string{
		"action": "grant",
		"role":   roleKey,
		"module": moduleKey,
		"before": capsBits(before),
		"after":  capsBits(caps),
	})
	return nil
}

// 初始化

// SeedDefaults 初始化默认模块与角色目录
// 只创建缺失的条目，重复执行不改变状态
func (s *accessAdminService) SeedDefaults(ctx context.Context, actorID string) error {
	for _, module := range model.DefaultModules() {
		if _, err := s.moduleRepo.GetByKey(ctx, module.Key); err == nil {
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		m := module
		if err := s.moduleRepo.Create(ctx, &m); err != nil {
			return err
		}
	}

	for _, role := range model.DefaultRoles() {
		if _, err := s.roleRepo.GetByKey(ctx, role.Key); err == nil {
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		r := role
		if err := s.roleRepo.Create(ctx, &r); err != nil {
			return err
		}
	}

	// 管理类角色对全部模块持有全量权限行，只补缺失的
	allCaps := model.Caps{Access: true, Modify: true, Delete: true}
	for _, roleKey := range model.AdminClassRoleKeys() {
		for _, module := range model.DefaultModules() {
			if _, err := s.permRepo.Get(ctx, roleKey, module.Key); err == nil {
				continue
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if _, err := s.permRepo.Upsert(ctx, roleKey, module.Key, allCaps); err != nil {
				return err
			}
		}
		s.invalidate(ctx, roleKey)
	}

	s.afterCatalogChange(ctx)
	s.auditMutate(actorID, "seed_defaults", map[string]string{
		"action": "seed_defaults",
	})
	return nil
}

// afterCatalogChange 目录变更后重建快照
func (s *accessAdminService) afterCatalogChange(ctx context.Context) {
	if err := s.registry.Reload(ctx); err != nil {
		s.logger.Error("重建目录快照失败", zap.Error(err))
	}
}

func (s *accessAdminService) invalidate(ctx context.Context, roleKey string, moduleKeys ...string) {
	if s.invalidator == nil {
		return
	}
	s.invalidator.Invalidate(ctx, roleKey, moduleKeys...)
}

func (s *accessAdminService) auditMutate(actorID, subject string, reqCtx map[string]string) {
	if s.recorder == nil {
		return
	}
	event := model.AuditEvent{
		PrincipalID: actorID,
		Subject:     subject,
		Operation:   model.OpAdminMutate,
		Decision:    model.DecisionMutated,
	}
	event.SetContext(reqCtx)
	s.recorder.Record(event)
}

// capsBits 把能力位编码为 access/modify/delete 三位字符串
func capsBits(caps model.Caps) string {
	bits := []byte{'0', '0', '0'}
	if caps.Access {
		bits[0] = '1'
	}
	if caps.Modify {
		bits[1] = '1'
	}
	if caps.Delete {
		bits[2] = '1'
	}
	return string(bits)
}
