// Package repository 数据访问层
package repository

import (
	"context"
	"errors"

	"github.com/clinichub/access-backend/internal/model"
	"gorm.io/gorm"
)

// Pagination 分页参数
type Pagination struct {
	Page     int // 页码，从 1 开始
	PageSize int // 每页数量
}

// ModuleRepository 模块仓库接口
type ModuleRepository interface {
	Create(ctx context.Context, module *model.Module) error
	GetByKey(ctx context.Context, key string) (*model.Module, error)
	Update(ctx context.Context, module *model.Module) error
	Delete(ctx context.Context, key string) error
	// DeleteCascade 在单个事务内删除模块及引用它的全部权限行
	DeleteCascade(ctx context.Context, key string) error
	List(ctx context.Context, activeOnly bool) ([]*model.Module, error)
}

// RoleRepository 角色仓库接口
type RoleRepository interface {
	Create(ctx context.Context, role *model.Role) error
	GetByKey(ctx context.Context, key string) (*model.Role, error)
	Update(ctx context.Context, role *model.Role) error
	Delete(ctx context.Context, key string) error
	// DeleteCascade 在单个事务内删除角色及其全部权限行
	DeleteCascade(ctx context.Context, key string) error
	List(ctx context.Context) ([]*model.Role, error)
}

// PermissionRepository 权限仓库接口
type PermissionRepository interface {
	Get(ctx context.Context, roleKey, moduleKey string) (*model.Permission, error)
	Upsert(ctx context.Context, roleKey, moduleKey string, caps model.Caps) (*model.Permission, error)
	BulkUpsert(ctx context.Context, roleKey string, entries map[string]model.Caps) (int, error)
	DeleteByRole(ctx context.Context, roleKey string) error
	DeleteByModule(ctx context.Context, moduleKey string) error
	ListByRole(ctx context.Context, roleKey string) ([]*model.Permission, error)
	CountByModule(ctx context.Context, moduleKey string) (int64, error)
}

// moduleRepository 模块仓库实现
type moduleRepository struct {
	db *gorm.DB
}

// NewModuleRepository 创建模块仓库
func NewModuleRepository(db *gorm.DB) ModuleRepository {
	return &moduleRepository{db: db}
}

func (r *moduleRepository) Create(ctx context.Context, module *model.Module) error {
	return r.db.WithContext(ctx).Create(module).Error
}

func (r *moduleRepository) GetByKey(ctx context.Context, key string) (*model.Module, error) {
	var module model.Module
	if err := r.db.WithContext(ctx).First(&module, "key = ?", key).Error; err != nil {
		return nil, err
	}
	return &module, nil
}

func (r *moduleRepository) Update(ctx context.Context, module *model.Module) error {
	return r.db.WithContext(ctx).Save(module).Error
}

func (r *moduleRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Delete(&model.Module{}, "key = ?", key).Error
}

func (r *moduleRepository) DeleteCascade(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("module_key = ?", key).Delete(&model.Permission{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Module{}, "key = ?", key).Error
	})
}

func (r *moduleRepository) List(ctx context.Context, activeOnly bool) ([]*model.Module, error) {
	var modules []*model.Module
	query := r.db.WithContext(ctx).Model(&model.Module{})
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	if err := query.Order("sidebar_order, display_name").Find(&modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}

// roleRepository 角色仓库实现
type roleRepository struct {
	db *gorm.DB
}

// NewRoleRepository 创建角色仓库
func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) Create(ctx context.Context, role *model.Role) error {
	return r.db.WithContext(ctx).Create(role).Error
}

func (r *roleRepository) GetByKey(ctx context.Context, key string) (*model.Role, error) {
	var role model.Role
	if err := r.db.WithContext(ctx).First(&role, "key = ?", key).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) Update(ctx context.Context, role *model.Role) error {
	return r.db.WithContext(ctx).Save(role).Error
}

func (r *roleRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Delete(&model.Role{}, "key = ?", key).Error
}

func (r *roleRepository) DeleteCascade(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_key = ?", key).Delete(&model.Permission{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Role{}, "key = ?", key).Error
	})
}

func (r *roleRepository) List(ctx context.Context) ([]*model.Role, error) {
	var roles []*model.Role
	if err := r.db.WithContext(ctx).Order("key").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

// permissionRepository 权限仓库实现
type permissionRepository struct {
	db *gorm.DB
}

// NewPermissionRepository 创建权限仓库
func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

func (r *permissionRepository) Get(ctx context.Context, roleKey, moduleKey string) (*model.Permission, error) {
	var perm model.Permission
	if err := r.db.WithContext(ctx).First(&perm, "role_key = ? AND module_key = ?", roleKey, moduleKey).Error; err != nil {
		return nil, err
	}
	return &perm, nil
}

func (r *permissionRepository) Upsert(ctx context.Context, roleKey, moduleKey string, caps model.Caps) (*model.Permission, error) {
	var perm model.Permission
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&perm, "role_key = ? AND module_key = ?", roleKey, moduleKey).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			perm = model.Permission{
				RoleKey:   roleKey,
				ModuleKey: moduleKey,
				CanAccess: caps.Access,
				CanModify: caps.Modify,
				CanDelete: caps.Delete,
			}
			return tx.Create(&perm).Error
		}
		if err != nil {
			return err
		}
		perm.CanAccess = caps.Access
		perm.CanModify = caps.Modify
		perm.CanDelete = caps.Delete
		return tx.Save(&perm).Error
	})
	if err != nil {
		return nil, err
	}
	return &perm, nil
}

func (r *permissionRepository) BulkUpsert(ctx context.Context, roleKey string, entries map[string]model.Caps) (int, error) {
	count := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for moduleKey, caps := range entries {
			var perm model.Permission
			err := tx.First(&perm, "role_key = ? AND module_key = ?", roleKey, moduleKey).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				perm = model.Permission{
					RoleKey:   roleKey,
					ModuleKey: moduleKey,
					CanAccess: caps.Access,
					CanModify: caps.Modify,
					CanDelete: caps.Delete,
				}
				if err := tx.Create(&perm).Error; err != nil {
					return err
				}
				count++
				continue
			}
			if err != nil {
				return err
			}
			perm.CanAccess = caps.Access
			perm.CanModify = caps.Modify
			perm.CanDelete = caps.Delete
			if err := tx.Save(&perm).Error; err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *permissionRepository) DeleteByRole(ctx context.Context, roleKey string) error {
	return r.db.WithContext(ctx).Where("role_key = ?", roleKey).Delete(&model.Permission{}).Error
}

func (r *permissionRepository) DeleteByModule(ctx context.Context, moduleKey string) error {
	return r.db.WithContext(ctx).Where("module_key = ?", moduleKey).Delete(&model.Permission{}).Error
}

func (r *permissionRepository) ListByRole(ctx context.Context, roleKey string) ([]*model.Permission, error) {
	var perms []*model.Permission
	if err := r.db.WithContext(ctx).Where("role_key = ?", roleKey).Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

func (r *permissionRepository) CountByModule(ctx context.Context, moduleKey string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Permission{}).Where("module_key = ?", moduleKey).Count(&count).Error
	return count, err
}
