package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidModuleKey(t *testing.T) {
	valid := []string{"patient_management", "dashboard", "lab_2", "a"}
	for _, key := range valid {
		assert.True(t, ValidModuleKey(key), "标识 %q 应合法", key)
	}

	invalid := []string{"", "Patient", "patient-management", "患者管理", "a b", "UPPER"}
	for _, key := range invalid {
		assert.False(t, ValidModuleKey(key), "标识 %q 应非法", key)
	}
}

func TestValidRoleKey(t *testing.T) {
	valid := []string{"DOCTOR", "SUPER_ADMIN", "LAB_TECH", "R2"}
	for _, key := range valid {
		assert.True(t, ValidRoleKey(key), "标识 %q 应合法", key)
	}

	invalid := []string{"", "doctor", "Doctor", "DOCTOR-1", "医生"}
	for _, key := range invalid {
		assert.False(t, ValidRoleKey(key), "标识 %q 应非法", key)
	}
}

func TestPermission_Allows(t *testing.T) {
	perm := &Permission{CanAccess: true, CanModify: false, CanDelete: true}

	assert.True(t, perm.Allows(CapAccess))
	assert.False(t, perm.Allows(CapModify))
	assert.True(t, perm.Allows(CapDelete))
	assert.False(t, perm.Allows(Capability("unknown")))
}

func TestCapability_Valid(t *testing.T) {
	assert.True(t, CapAccess.Valid())
	assert.True(t, CapModify.Valid())
	assert.True(t, CapDelete.Valid())
	assert.False(t, Capability("read").Valid())
	assert.False(t, Capability("").Valid())
}

func TestDefaultCatalog(t *testing.T) {
	modules := DefaultModules()
	moduleKeys := make(map[string]bool, len(modules))
	for _, m := range modules {
		assert.True(t, ValidModuleKey(m.Key), "默认模块 %q 标识应合法", m.Key)
		assert.True(t, m.Active, "默认模块 %q 应是启用状态", m.Key)
		assert.NotEmpty(t, m.DisplayName)
		assert.False(t, moduleKeys[m.Key], "默认模块 %q 重复", m.Key)
		moduleKeys[m.Key] = true
	}
	assert.True(t, moduleKeys[ModuleDashboard])
	assert.True(t, moduleKeys[ModuleAccessControl])

	roles := DefaultRoles()
	roleKeys := make(map[string]bool, len(roles))
	for _, r := range roles {
		assert.True(t, ValidRoleKey(r.Key), "默认角色 %q 标识应合法", r.Key)
		assert.True(t, r.IsSystem, "默认角色 %q 应是系统内置", r.Key)
		assert.NotEmpty(t, r.TemplateFolder)
		assert.False(t, roleKeys[r.Key], "默认角色 %q 重复", r.Key)
		roleKeys[r.Key] = true
	}

	// 管理类角色必须在默认角色目录内
	for _, key := range AdminClassRoleKeys() {
		assert.True(t, roleKeys[key], "管理类角色 %q 应在默认目录中", key)
	}
}

func TestUser_Password(t *testing.T) {
	user := &User{Username: "zhangsan"}
	assert.NoError(t, user.SetPassword("s3cret-pass"))

	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)
	assert.True(t, user.VerifyPassword("s3cret-pass"))
	assert.False(t, user.VerifyPassword("wrong"))
}

func TestAuditEvent_Context(t *testing.T) {
	event := AuditEvent{}
	event.SetContext(map[string]string{"path": "/api/v1/patients", "method": "GET"})

	ctx := event.Context()
	assert.Equal(t, "/api/v1/patients", ctx["path"])
	assert.Equal(t, "GET", ctx["method"])

	// 空上下文不报错
	empty := AuditEvent{}
	assert.Empty(t, empty.Context())
}
