package service

import (
	"context"
	"testing"

	"github.com/clinichub/access-backend/internal/model"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

func propertyEngine(t *testing.T, perms map[string]*model.Permission) PermissionEngine {
	t.Helper()
	permRepo := new(MockPermissionRepository)
	permRepo.On("Get", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, gorm.ErrRecordNotFound).
		Maybe()
	for _, perm := range perms {
		permRepo.On("Get", mock.Anything, perm.RoleKey, perm.ModuleKey).Return(perm, nil)
	}
	return newTestEngine(t, permRepo, nil, nil)
}

func genModuleKey() gopter.Gen {
	keys := testModules()
	items := make([]string, 0, len(keys))
	for _, m := range keys {
		items = append(items, m.Key)
	}
	items = append(items, "unknown_module")
	return gen.OneConstOf(toAnySlice(items)...)
}

func genCapability() gopter.Gen {
	return gen.OneConstOf(model.CapAccess, model.CapModify, model.CapDelete)
}

func toAnySlice(items []string) []interface{} {
	out := make([]interface{}, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

// 放行角色对任意存在且启用的模块、任意能力位都放行
func TestEngineProperty_BypassAlwaysAllows(t *testing.T) {
	engine := propertyEngine(t, nil)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("管理类角色对启用模块全放行", prop.ForAll(
		func(moduleKey string, cap model.Capability) bool {
			decision := engine.Decide(ctx, &model.Principal{ID: "1", RoleKey: "SUPER_ADMIN"}, moduleKey, cap)
			if moduleKey == "unknown_module" || moduleKey == "research_management" {
				return !decision.Allowed && decision.Reason == ReasonModuleUnavailable
			}
			return decision.Allowed && decision.Reason == ReasonAdminBypass
		},
		genModuleKey(),
		genCapability(),
	))

	properties.TestingRun(t)
}

// 无角色主体的任何请求都拒绝，且原因固定
func TestEngineProperty_NoRoleAlwaysDenies(t *testing.T) {
	engine := propertyEngine(t, nil)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("无角色一律 NO_ROLE", prop.ForAll(
		func(principalID string, moduleKey string, cap model.Capability) bool {
			decision := engine.Decide(ctx, &model.Principal{ID: principalID}, moduleKey, cap)
			return !decision.Allowed && decision.Reason == ReasonNoRole
		},
		gen.Identifier(),
		genModuleKey(),
		genCapability(),
	))

	properties.TestingRun(t)
}

// 存储不变时重复决策结果一致
func TestEngineProperty_Deterministic(t *testing.T) {
	perms := map[string]*model.Permission{
		"doctor": {RoleKey: "DOCTOR", ModuleKey: "consultation_management", CanAccess: true, CanModify: true},
		"recept": {RoleKey: "RECEPTIONIST", ModuleKey: "patient_management", CanAccess: true},
	}
	engine := propertyEngine(t, perms)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("相同输入产生相同决策", prop.ForAll(
		func(roleKey string, moduleKey string, cap model.Capability) bool {
			principal := &model.Principal{ID: "p", RoleKey: roleKey}
			first := engine.Decide(ctx, principal, moduleKey, cap)
			second := engine.Decide(ctx, principal, moduleKey, cap)
			return first == second
		},
		gen.OneConstOf("DOCTOR", "RECEPTIONIST", "SUPER_ADMIN"),
		genModuleKey(),
		genCapability(),
	))

	properties.TestingRun(t)
}

// 能力位相互独立，modify 不蕴含 access
func TestEngineProperty_CapabilityIndependence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("决策只看被请求的能力位", prop.ForAll(
		func(access, modify, del bool, capIdx int) bool {
			perm := &model.Permission{
				RoleKey:   "DOCTOR",
				ModuleKey: "patient_management",
				CanAccess: access,
				CanModify: modify,
				CanDelete: del,
			}
			engine := propertyEngine(t, map[string]*model.Permission{"p": perm})
			caps := []model.Capability{model.CapAccess, model.CapModify, model.CapDelete}
			bits := []bool{access, modify, del}
			idx := capIdx % len(caps)

			decision := engine.Decide(context.Background(), &model.Principal{ID: "p", RoleKey: "DOCTOR"}, "patient_management", caps[idx])
			return decision.Allowed == bits[idx]
		},
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
		gen.IntRange(0, 2),
	))

	properties.TestingRun(t)
}
