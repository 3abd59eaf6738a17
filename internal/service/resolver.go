// Package service 业务逻辑层
package service

import (
	"errors"
	"strings"

	"github.com/clinichub/access-backend/internal/model"
)

var (
	ErrBadTemplateName = errors.New("非法的模板名称")
)

// TemplateResolver 视图模板解析器
// 把逻辑模板名加角色映射为磁盘相对路径，本身不做任何文件 I/O
type TemplateResolver interface {
	// Resolve 解析模板路径，moduleKey 可为空
	Resolve(baseTemplate string, role *model.Role, moduleKey string) (string, error)
	// ResolveByKey 按角色标识解析，角色经目录查询
	ResolveByKey(baseTemplate, roleKey, moduleKey string) (string, error)
}

// templateResolver 视图模板解析器实现
type templateResolver struct {
	registry Registry
	root     string // 可选的根目录前缀
}

// NewTemplateResolver 创建模板解析器
func NewTemplateResolver(registry Registry, root string) TemplateResolver {
	return &templateResolver{
		registry: registry,
		root:     strings.Trim(root, "/"),
	}
}

// Resolve 解析模板路径
func (r *templateResolver) Resolve(baseTemplate string, role *model.Role, moduleKey string) (string, error) {
	if role == nil {
		return "", ErrRoleNotFound
	}
	if err := checkSegment(baseTemplate); err != nil {
		return "", err
	}
	if moduleKey != "" {
		if err := checkSegment(moduleKey); err != nil {
			return "", err
		}
	}

	parts := make([]string, 0, 4)
	if r.root != "" {
		parts = append(parts, r.root)
	}
	parts = append(parts, role.TemplateFolder)
	if moduleKey != "" {
		parts = append(parts, moduleKey)
	}
	parts = append(parts, baseTemplate)

	return strings.Join(parts, "/"), nil
}

// ResolveByKey 按角色标识解析模板路径
func (r *templateResolver) ResolveByKey(baseTemplate, roleKey, moduleKey string) (string, error) {
	role, err := r.registry.GetRole(roleKey)
	if err != nil {
		return "", err
	}
	return r.Resolve(baseTemplate, role, moduleKey)
}

// checkSegment 校验路径段，拒绝路径穿越
func checkSegment(segment string) error {
	if segment == "" {
		return ErrBadTemplateName
	}
	if strings.HasPrefix(segment, "/") || strings.Contains(segment, "\\") {
		return ErrBadTemplateName
	}
	for _, part := range strings.Split(segment, "/") {
		if part == "" || part == "." || part == ".." {
			return ErrBadTemplateName
		}
	}
	return nil
}
