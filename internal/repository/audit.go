// Package repository 数据访问层
package repository

import (
	"context"

	"github.com/clinichub/access-backend/internal/model"
	"gorm.io/gorm"
)

// AuditFilter 审计查询过滤器
type AuditFilter struct {
	PrincipalID string // 主体 ID
	Subject     string // 模块或 role/module 组合
	Operation   string // 操作类型
	Decision    string // 决策结果
}

// AuditRepository 审计事件仓库接口
type AuditRepository interface {
	Create(ctx context.Context, event *model.AuditEvent) error
	BatchCreate(ctx context.Context, events []model.AuditEvent) error
	List(ctx context.Context, filter *AuditFilter, page *Pagination) ([]*model.AuditEvent, int64, error)
}

// auditRepository 审计事件仓库实现
type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository 创建审计事件仓库
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, event *model.AuditEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *auditRepository) BatchCreate(ctx context.Context, events []model.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(events, 100).Error
}

func (r *auditRepository) List(ctx context.Context, filter *AuditFilter, page *Pagination) ([]*model.AuditEvent, int64, error) {
	var events []*model.AuditEvent
	var total int64

	query := r.db.WithContext(ctx).Model(&model.AuditEvent{})
	if filter != nil {
		if filter.PrincipalID != "" {
			query = query.Where("principal_id = ?", filter.PrincipalID)
		}
		if filter.Subject != "" {
			query = query.Where("subject = ?", filter.Subject)
		}
		if filter.Operation != "" {
			query = query.Where("operation = ?", filter.Operation)
		}
		if filter.Decision != "" {
			query = query.Where("decision = ?", filter.Decision)
		}
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page != nil {
		query = query.Offset((page.Page - 1) * page.PageSize).Limit(page.PageSize)
	}

	if err := query.Order("created_at DESC").Find(&events).Error; err != nil {
		return nil, 0, err
	}

	return events, total, nil
}
