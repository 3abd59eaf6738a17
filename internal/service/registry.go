// Package service 业务逻辑层
package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/clinichub/access-backend/internal/model"
	"github.com/clinichub/access-backend/internal/repository"
)

var (
	ErrModuleNotFound = errors.New("模块不存在")
	ErrRoleNotFound   = errors.New("角色不存在")
)

// Registry 模块与角色目录
// 读多写少：读走原子快照，快照只在管理变更后重建
type Registry interface {
	ListModules(activeOnly bool) []*model.Module
	ListRoles() []*model.Role
	GetModule(key string) (*model.Module, error)
	GetRole(key string) (*model.Role, error)
	Reload(ctx context.Context) error
}

// catalogSnapshot 目录快照，构建后不可变
type catalogSnapshot struct {
	modules    map[string]*model.Module
	roles      map[string]*model.Role
	moduleList []*model.Module // 按 sidebar_order, display_name 排序
	roleList   []*model.Role
}

var emptySnapshot = &catalogSnapshot{
	modules: map[string]*model.Module{},
	roles:   map[string]*model.Role{},
}

type registry struct {
	moduleRepo repository.ModuleRepository
	roleRepo   repository.RoleRepository

	snapshot atomic.Pointer[catalogSnapshot]
	reloadMu sync.Mutex // 串行化重建，读者不受影响
}

// NewRegistry 创建目录服务
// 返回的目录为空，调用方需先 Reload 一次
func NewRegistry(moduleRepo repository.ModuleRepository, roleRepo repository.RoleRepository) Registry {
	r := &registry{
		moduleRepo: moduleRepo,
		roleRepo:   roleRepo,
	}
	r.snapshot.Store(emptySnapshot)
	return r
}

// Reload 从存储重建目录快照
func (r *registry) Reload(ctx context.Context) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	modules, err := r.moduleRepo.List(ctx, false)
	if err != nil {
		return err
	}
	roles, err := r.roleRepo.List(ctx)
	if err != nil {
		return err
	}

	snap := &catalogSnapshot{
		modules:    make(map[string]*model.Module, len(modules)),
		roles:      make(map[string]*model.Role, len(roles)),
		moduleList: modules,
		roleList:   roles,
	}
	for _, m := range modules {
		snap.modules[m.Key] = m
	}
	for _, role := range roles {
		snap.roles[role.Key] = role
	}

	r.snapshot.Store(snap)
	return nil
}

// ListModules 列出模块，按侧边栏顺序
func (r *registry) ListModules(activeOnly bool) []*model.Module {
	snap := r.snapshot.Load()
	if !activeOnly {
		return snap.moduleList
	}
	modules := make([]*model.Module, 0, len(snap.moduleList))
	for _, m := range snap.moduleList {
		if m.Active {
			modules = append(modules, m)
		}
	}
	return modules
}

// ListRoles 列出全部角色
func (r *registry) ListRoles() []*model.Role {
	return r.snapshot.Load().roleList
}

// GetModule 按标识查询模块
func (r *registry) GetModule(key string) (*model.Module, error) {
	m, ok := r.snapshot.Load().modules[key]
	if !ok {
		return nil, ErrModuleNotFound
	}
	return m, nil
}

// GetRole 按标识查询角色
func (r *registry) GetRole(key string) (*model.Role, error) {
	role, ok := r.snapshot.Load().roles[key]
	if !ok {
		return nil, ErrRoleNotFound
	}
	return role, nil
}
