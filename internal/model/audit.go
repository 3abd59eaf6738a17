// Package model 定义数据模型
package model

import "encoding/json"

// AuditEvent 审计事件，只追加不修改
type AuditEvent struct {
	BaseModel
	PrincipalID    string `gorm:"type:char(36);index" json:"principal_id"`            // 空表示未认证调用
	Subject        string `gorm:"type:varchar(200);index;not null" json:"subject"`    // 模块标识或 role/module 组合
	Operation      string `gorm:"type:varchar(50);index;not null" json:"operation"`   // 操作类型
	Decision       string `gorm:"type:varchar(20);index;not null" json:"decision"`    // 决策结果
	ReasonCode     string `gorm:"type:varchar(50)" json:"reason_code"`                // 原因代码
	RequestContext string `gorm:"type:text" json:"request_context"`                   // JSON 编码的请求上下文
}

// TableName 指定表名
func (AuditEvent) TableName() string {
	return "audit_events"
}

// 审计操作类型
const (
	OpCheckAccess = "CHECK_ACCESS" // 访问检查
	OpCheckModify = "CHECK_MODIFY" // 修改检查
	OpCheckDelete = "CHECK_DELETE" // 删除检查
	OpAdminMutate = "ADMIN_MUTATE" // 管理变更
)

// 审计决策结果
const (
	DecisionAllow   = "ALLOW"   // 允许
	DecisionDeny    = "DENY"    // 拒绝
	DecisionMutated = "MUTATED" // 已变更
)

// CheckOperation 根据能力位返回对应的审计操作类型
func CheckOperation(cap Capability) string {
	switch cap {
	case CapModify:
		return OpCheckModify
	case CapDelete:
		return OpCheckDelete
	default:
		return OpCheckAccess
	}
}

// SetContext 设置请求上下文
func (e *AuditEvent) SetContext(ctx map[string]string) {
	if len(ctx) == 0 {
		return
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		return
	}
	e.RequestContext = string(data)
}

// Context 解析请求上下文
func (e *AuditEvent) Context() map[string]string {
	if e.RequestContext == "" {
		return nil
	}
	var ctx map[string]string
	if err := json.Unmarshal([]byte(e.RequestContext), &ctx); err != nil {
		return nil
	}
	return ctx
}
