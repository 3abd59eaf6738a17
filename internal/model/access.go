// Package model 定义数据模型
package model

import "regexp"

// Module 功能模块模型
// 模块是宿主系统的权限粒度单位，如 patient_management
type Module struct {
	BaseModel
	Key          string `gorm:"type:varchar(100);uniqueIndex;not null" json:"key"` // 模块标识，小写下划线
	DisplayName  string `gorm:"type:varchar(100);not null" json:"display_name"`    // 显示名称
	Description  string `gorm:"type:varchar(500)" json:"description"`              // 模块描述
	IconHint     string `gorm:"type:varchar(100)" json:"icon_hint"`                // 侧边栏图标提示
	SidebarOrder int    `gorm:"default:0" json:"sidebar_order"`                    // 侧边栏排序
	Active       bool   `gorm:"default:true" json:"active"`                        // 停用的模块对权限引擎不可见
}

// TableName 指定表名
func (Module) TableName() string {
	return "modules"
}

// Role 角色模型
type Role struct {
	BaseModel
	Key            string `gorm:"type:varchar(50);uniqueIndex;not null" json:"key"`       // 角色标识，大写下划线
	DisplayName    string `gorm:"type:varchar(100);not null" json:"display_name"`         // 显示名称
	Description    string `gorm:"type:varchar(500)" json:"description"`                   // 角色描述
	TemplateFolder string `gorm:"type:varchar(100);not null" json:"template_folder"`      // 模板目录，用于视图解析
	IsSystem       bool   `gorm:"default:false" json:"is_system"`                         // 系统内置角色不能删除
}

// TableName 指定表名
func (Role) TableName() string {
	return "roles"
}

// Permission 权限模型
// 角色对模块的三个独立能力位，(role_key, module_key) 唯一
type Permission struct {
	BaseModel
	RoleKey   string `gorm:"type:varchar(50);uniqueIndex:idx_role_module;index;not null" json:"role_key"`
	ModuleKey string `gorm:"type:varchar(100);uniqueIndex:idx_role_module;not null" json:"module_key"`
	CanAccess bool   `gorm:"default:false" json:"can_access"` // 访问
	CanModify bool   `gorm:"default:false" json:"can_modify"` // 修改
	CanDelete bool   `gorm:"default:false" json:"can_delete"` // 删除
}

// TableName 指定表名
func (Permission) TableName() string {
	return "permissions"
}

// Capability 能力位
type Capability string

// 能力位常量
const (
	CapAccess Capability = "access" // 访问
	CapModify Capability = "modify" // 修改
	CapDelete Capability = "delete" // 删除
)

// Valid 检查能力位是否合法
func (c Capability) Valid() bool {
	switch c {
	case CapAccess, CapModify, CapDelete:
		return true
	}
	return false
}

// Allows 检查权限行是否包含指定能力位
// 三个能力位相互独立：can_modify 不隐含 can_access
func (p *Permission) Allows(cap Capability) bool {
	switch cap {
	case CapAccess:
		return p.CanAccess
	case CapModify:
		return p.CanModify
	case CapDelete:
		return p.CanDelete
	}
	return false
}

// Caps 能力位集合，用于批量编辑和展示
type Caps struct {
	Access bool `json:"access"`
	Modify bool `json:"modify"`
	Delete bool `json:"delete"`
}

// Caps 返回权限行的能力位集合
func (p *Permission) Caps() Caps {
	return Caps{Access: p.CanAccess, Modify: p.CanModify, Delete: p.CanDelete}
}

// Principal 已认证的调用方
// 引擎只消费两个属性：稳定标识和角色标识（空角色按未授权处理）
type Principal struct {
	ID      string `json:"id"`
	RoleKey string `json:"role_key"`
}

// 标识字符集校验
var (
	moduleKeyPattern = regexp.MustCompile(`^[a-z0-9_]+$`)
	roleKeyPattern   = regexp.MustCompile(`^[A-Z0-9_]+$`)
)

// ValidModuleKey 校验模块标识字符集
func ValidModuleKey(key string) bool {
	return moduleKeyPattern.MatchString(key)
}

// ValidRoleKey 校验角色标识字符集
func ValidRoleKey(key string) bool {
	return roleKeyPattern.MatchString(key)
}

// 系统内置模块标识
const (
	ModuleDashboard     = "dashboard"      // 工作台
	ModuleAccessControl = "access_control" // 权限管理，管理接口自身依赖的模块
)

// 系统内置角色标识
const (
	RoleSuperAdmin = "SUPER_ADMIN" // 超级管理员
	RoleAdmin      = "ADMIN"       // 管理员
	RoleManager    = "MANAGER"     // 经理
)

// DefaultModules 系统默认模块目录
func DefaultModules() []Module {
	defs := []struct {
		key  string
		name string
		icon string
	}{
		{ModuleDashboard, "工作台", "home"},
		{"patient_management", "患者管理", "users"},
		{"appointment_management", "预约管理", "calendar"},
		{"consultation_management", "诊疗管理", "stethoscope"},
		{"procedure_management", "治疗项目管理", "activity"},
		{"phototherapy_management", "光疗管理", "sun"},
		{"imaging_management", "影像管理", "image"},
		{"lab_management", "检验管理", "flask"},
		{"pharmacy_management", "药房管理", "pill"},
		{"stock_management", "库存管理", "package"},
		{"financial_management", "财务管理", "credit-card"},
		{"hr_management", "人事管理", "briefcase"},
		{"report_management", "报表管理", "bar-chart"},
		{ModuleAccessControl, "权限管理", "shield"},
		{"clinic_management", "诊所管理", "building"},
		{"support_management", "客服管理", "headphones"},
		{"settings_management", "系统设置", "settings"},
		{"telemedicine_management", "远程医疗", "video"},
		{"research_management", "科研管理", "book"},
		{"query_management", "咨询管理", "message-circle"},
		{"user_management", "用户管理", "user"},
		{"notification_management", "通知管理", "bell"},
	}

	modules := make([]Module, 0, len(defs))
	for i, d := range defs {
		modules = append(modules, Module{
			Key:          d.key,
			DisplayName:  d.name,
			IconHint:     d.icon,
			SidebarOrder: i + 1,
			Active:       true,
		})
	}
	return modules
}

// DefaultRoles 系统默认角色目录
func DefaultRoles() []Role {
	return []Role{
		{Key: RoleSuperAdmin, DisplayName: "超级管理员", TemplateFolder: "super_admin", IsSystem: true},
		{Key: RoleAdmin, DisplayName: "管理员", TemplateFolder: "admin", IsSystem: true},
		{Key: RoleManager, DisplayName: "经理", TemplateFolder: "manager", IsSystem: true},
		{Key: "DOCTOR", DisplayName: "医生", TemplateFolder: "doctor", IsSystem: true},
		{Key: "NURSE", DisplayName: "护士", TemplateFolder: "nurse", IsSystem: true},
		{Key: "MEDICAL_ASSISTANT", DisplayName: "医助", TemplateFolder: "medical_assistant", IsSystem: true},
		{Key: "RECEPTIONIST", DisplayName: "前台", TemplateFolder: "receptionist", IsSystem: true},
		{Key: "PHARMACIST", DisplayName: "药师", TemplateFolder: "pharmacist", IsSystem: true},
		{Key: "LAB_TECH", DisplayName: "检验技师", TemplateFolder: "lab_tech", IsSystem: true},
		{Key: "BILLING", DisplayName: "收费员", TemplateFolder: "billing", IsSystem: true},
		{Key: "INVENTORY", DisplayName: "库管员", TemplateFolder: "inventory", IsSystem: true},
		{Key: "HR", DisplayName: "人事专员", TemplateFolder: "hr", IsSystem: true},
		{Key: "SUPPORT_MANAGER", DisplayName: "客服主管", TemplateFolder: "support_manager", IsSystem: true},
		{Key: "SUPPORT_STAFF", DisplayName: "客服专员", TemplateFolder: "support_staff", IsSystem: true},
		{Key: "PATIENT", DisplayName: "患者", TemplateFolder: "patient", IsSystem: true},
	}
}

// AdminClassRoleKeys 管理类角色
// 初始化时为这些角色生成对全部模块的全量权限行
func AdminClassRoleKeys() []string {
	return []string{RoleSuperAdmin, RoleAdmin, RoleManager}
}
