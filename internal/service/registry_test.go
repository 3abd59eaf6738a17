package service

import (
	"context"
	"errors"
	"testing"

	"github.com/clinichub/access-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestRegistry_Lookup(t *testing.T) {
	registry := newTestRegistry(t, testModules(), testRoles())

	module, err := registry.GetModule("patient_management")
	assert.NoError(t, err)
	assert.Equal(t, "患者管理", module.DisplayName)

	// 停用模块仍可查到，可用性由引擎判断
	inactive, err := registry.GetModule("research_management")
	assert.NoError(t, err)
	assert.False(t, inactive.Active)

	_, err = registry.GetModule("ghost")
	assert.ErrorIs(t, err, ErrModuleNotFound)

	role, err := registry.GetRole("DOCTOR")
	assert.NoError(t, err)
	assert.Equal(t, "doctor", role.TemplateFolder)

	_, err = registry.GetRole("GHOST")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestRegistry_ListModules_ActiveFilter(t *testing.T) {
	registry := newTestRegistry(t, testModules(), testRoles())

	assert.Len(t, registry.ListModules(false), 4)

	active := registry.ListModules(true)
	assert.Len(t, active, 3)
	for _, m := range active {
		assert.True(t, m.Active, "模块 %s 应是启用状态", m.Key)
	}
}

func TestRegistry_EmptyBeforeReload(t *testing.T) {
	registry := NewRegistry(new(MockModuleRepository), new(MockRoleRepository))

	assert.Empty(t, registry.ListModules(false))
	_, err := registry.GetModule("patient_management")
	assert.ErrorIs(t, err, ErrModuleNotFound)
}

func TestRegistry_ReloadFailureKeepsSnapshot(t *testing.T) {
	moduleRepo := new(MockModuleRepository)
	roleRepo := new(MockRoleRepository)
	moduleRepo.On("List", mock.Anything, false).Return(testModules(), nil).Once()
	roleRepo.On("List", mock.Anything).Return(testRoles(), nil).Once()

	registry := NewRegistry(moduleRepo, roleRepo)
	assert.NoError(t, registry.Reload(context.Background()))

	// 重建失败时旧快照继续服务
	moduleRepo.On("List", mock.Anything, false).Return([]*model.Module(nil), errors.New("连接中断")).Once()
	assert.Error(t, registry.Reload(context.Background()))

	module, err := registry.GetModule("patient_management")
	assert.NoError(t, err)
	assert.Equal(t, "患者管理", module.DisplayName)
}

func TestRegistry_ReloadSwapsSnapshot(t *testing.T) {
	moduleRepo := new(MockModuleRepository)
	roleRepo := new(MockRoleRepository)
	moduleRepo.On("List", mock.Anything, false).Return(testModules(), nil).Once()
	roleRepo.On("List", mock.Anything).Return(testRoles(), nil)

	registry := NewRegistry(moduleRepo, roleRepo)
	assert.NoError(t, registry.Reload(context.Background()))

	updated := []*model.Module{
		{Key: "patient_management", DisplayName: "患者管理", Active: false},
	}
	moduleRepo.On("List", mock.Anything, false).Return(updated, nil).Once()
	assert.NoError(t, registry.Reload(context.Background()))

	module, err := registry.GetModule("patient_management")
	assert.NoError(t, err)
	assert.False(t, module.Active)
	assert.Len(t, registry.ListModules(false), 1)
}
