// Package service 业务逻辑层
package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/clinichub/access-backend/internal/model"
	"github.com/clinichub/access-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reason 决策原因代码
// 原因代码只记录日志和审计，不直接展示给调用方
type Reason string

// 决策原因代码
const (
	ReasonUnauthenticated   Reason = "UNAUTHENTICATED"    // 未认证
	ReasonNoRole            Reason = "NO_ROLE"            // 主体没有角色
	ReasonModuleUnavailable Reason = "MODULE_UNAVAILABLE" // 模块不存在或已停用
	ReasonAdminBypass       Reason = "ADMIN_BYPASS"       // 管理类角色放行
	ReasonNoGrant           Reason = "NO_GRANT"           // 没有权限行
	ReasonCapDenied         Reason = "CAP_DENIED"         // 能力位未开启
	ReasonEngineError       Reason = "ENGINE_ERROR"       // 引擎内部错误，一律拒绝
	ReasonEngineTimeout     Reason = "ENGINE_TIMEOUT"     // 超过决策截止时间
)

// Decision 决策结果
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

func allow(reason Reason) Decision {
	return Decision{Allowed: true, Reason: reason}
}

func deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// PermissionEngine 权限决策引擎
// 决策是 (主体, 模块, 能力位, 存储快照) 的纯函数，除审计外不产生副作用
type PermissionEngine interface {
	Decide(ctx context.Context, principal *model.Principal, moduleKey string, cap model.Capability) Decision
	DecideWithContext(ctx context.Context, principal *model.Principal, moduleKey string, cap model.Capability, reqCtx map[string]string) Decision

	CanAccess(ctx context.Context, principal *model.Principal, moduleKey string) bool
	CanModify(ctx context.Context, principal *model.Principal, moduleKey string) bool
	CanDelete(ctx context.Context, principal *model.Principal, moduleKey string) bool

	// Invalidate 使缓存失效
	// 不传模块时，使该角色对全部模块的缓存失效
	Invalidate(ctx context.Context, roleKey string, moduleKeys ...string)
}

// EngineConfig 引擎配置
type EngineConfig struct {
	BypassRoles       []string      // 无条件放行的角色集合
	Deadline          time.Duration // 单次决策的截止时间
	CacheTTL          time.Duration // 决策缓存有效期
	AllowSamplingRate float64       // 放行事件审计采样率，0 表示不记录
}

// permissionEngine 权限决策引擎实现
type permissionEngine struct {
	registry Registry
	permRepo repository.PermissionRepository
	cache    *redis.Client // 可为 nil，此时每次决策直读存储
	recorder AuditRecorder // 可为 nil
	logger   *zap.Logger
	config   EngineConfig
	bypass   map[string]struct{}
}

// NewPermissionEngine 创建权限决策引擎
func NewPermissionEngine(registry Registry, permRepo repository.PermissionRepository, cache *redis.Client, recorder AuditRecorder, logger *zap.Logger, config EngineConfig) PermissionEngine {
	if config.Deadline == 0 {
		config.Deadline = 50 * time.Millisecond
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bypass := make(map[string]struct{}, len(config.BypassRoles))
	for _, role := range config.BypassRoles {
		bypass[role] = struct{}{}
	}

	return &permissionEngine{
		registry: registry,
		permRepo: permRepo,
		cache:    cache,
		recorder: recorder,
		logger:   logger,
		config:   config,
		bypass:   bypass,
	}
}

// Decide 执行权限决策
func (e *permissionEngine) Decide(ctx context.Context, principal *model.Principal, moduleKey string, cap model.Capability) Decision {
	return e.DecideWithContext(ctx, principal, moduleKey, cap, nil)
}

// DecideWithContext 执行权限决策并携带请求上下文用于审计
// 任何内部异常都转为 DENY，绝不向调用方抛出
func (e *permissionEngine) DecideWithContext(ctx context.Context, principal *model.Principal, moduleKey string, cap model.Capability, reqCtx map[string]string) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("权限决策发生异常，按拒绝处理",
				zap.Any("error", r),
				zap.String("module", moduleKey),
				zap.String("capability", string(cap)),
			)
			decision = deny(ReasonEngineError)
			e.audit(principal, moduleKey, cap, decision, reqCtx)
		}
	}()

	decision = e.decide(ctx, principal, moduleKey, cap)
	e.audit(principal, moduleKey, cap, decision, reqCtx)
	return decision
}

// decide 决策主流程，按顺序短路
func (e *permissionEngine) decide(ctx context.Context, principal *model.Principal, moduleKey string, cap model.Capability) Decision {
	ctx, cancel := context.WithTimeout(ctx, e.config.Deadline)
	defer cancel()

	// 1. 未认证
	if principal == nil || principal.ID == "" {
		return deny(ReasonUnauthenticated)
	}

	// 2. 没有角色
	if principal.RoleKey == "" {
		return deny(ReasonNoRole)
	}

	// 3. 模块不存在或已停用
	module, err := e.registry.GetModule(moduleKey)
	if err != nil || !module.Active {
		return deny(ReasonModuleUnavailable)
	}

	// 4. 管理类角色放行
	if _, ok := e.bypass[principal.RoleKey]; ok {
		return allow(ReasonAdminBypass)
	}

	// 5. 查权限行
	grant, err := e.lookup(ctx, principal.RoleKey, moduleKey)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return deny(ReasonEngineTimeout)
		}
		e.logger.Error("读取权限行失败，按拒绝处理",
			zap.Error(err),
			zap.String("role", principal.RoleKey),
			zap.String("module", moduleKey),
		)
		return deny(ReasonEngineError)
	}
	if grant == nil {
		return deny(ReasonNoGrant)
	}

	// 6. 检查能力位，各位相互独立
	if grant.Allows(cap) {
		return allow("")
	}
	return deny(ReasonCapDenied)
}

// cachedGrant 缓存的权限行
// Found 为 false 表示缓存的是"无权限行"这一事实，命中后直接 NO_GRANT
type cachedGrant struct {
	Found bool       `json:"found"`
	Caps  model.Caps `json:"caps"`
}

func cacheKey(roleKey, moduleKey string) string {
	return "perm:" + roleKey + ":" + moduleKey
}

// lookup 查权限行，缓存未命中时回源存储
func (e *permissionEngine) lookup(ctx context.Context, roleKey, moduleKey string) (*model.Permission, error) {
	key := cacheKey(roleKey, moduleKey)

	if e.cache != nil {
		val, err := e.cache.Get(ctx, key).Result()
		if err == nil {
			var cached cachedGrant
			if jsonErr := json.Unmarshal([]byte(val), &cached); jsonErr == nil {
				if !cached.Found {
					return nil, nil
				}
				return &model.Permission{
					RoleKey:   roleKey,
					ModuleKey: moduleKey,
					CanAccess: cached.Caps.Access,
					CanModify: cached.Caps.Modify,
					CanDelete: cached.Caps.Delete,
				}, nil
			}
		} else if errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		// 缓存故障时回源存储
	}

	perm, err := e.permRepo.Get(ctx, roleKey, moduleKey)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cached := cachedGrant{}
	if perm != nil {
		cached.Found = true
		cached.Caps = perm.Caps()
	}
	if e.cache != nil {
		if data, jsonErr := json.Marshal(cached); jsonErr == nil {
			_ = e.cache.Set(ctx, key, data, e.config.CacheTTL).Err()
		}
	}

	if perm == nil {
		return nil, nil
	}
	return perm, nil
}

// Invalidate 使缓存失效
func (e *permissionEngine) Invalidate(ctx context.Context, roleKey string, moduleKeys ...string) {
	if e.cache == nil {
		return
	}
	if len(moduleKeys) == 0 {
		modules := e.registry.ListModules(false)
		moduleKeys = make([]string, 0, len(modules))
		for _, m := range modules {
			moduleKeys = append(moduleKeys, m.Key)
		}
	}
	keys := make([]string, 0, len(moduleKeys))
	for _, moduleKey := range moduleKeys {
		keys = append(keys, cacheKey(roleKey, moduleKey))
	}
	if len(keys) == 0 {
		return
	}
	if err := e.cache.Del(ctx, keys...).Err(); err != nil {
		e.logger.Warn("权限缓存失效失败", zap.Error(err), zap.String("role", roleKey))
	}
}

// audit 记录决策审计事件
// 拒绝事件总是记录，放行事件按采样率记录
func (e *permissionEngine) audit(principal *model.Principal, moduleKey string, cap model.Capability, decision Decision, reqCtx map[string]string) {
	if e.recorder == nil {
		return
	}
	if decision.Allowed {
		if e.config.AllowSamplingRate <= 0 || rand.Float64() >= e.config.AllowSamplingRate {
			return
		}
	}

	event := model.AuditEvent{
		Subject:    moduleKey,
		Operation:  model.CheckOperation(cap),
		Decision:   model.DecisionDeny,
		ReasonCode: string(decision.Reason),
	}
	if decision.Allowed {
		event.Decision = model.DecisionAllow
	}
	if principal != nil {
		event.PrincipalID = principal.ID
	}
	event.SetContext(reqCtx)

	e.recorder.Record(event)
}

// CanAccess 检查主体是否可访问模块
func (e *permissionEngine) CanAccess(ctx context.Context, principal *model.Principal, moduleKey string) bool {
	return e.Decide(ctx, principal, moduleKey, model.CapAccess).Allowed
}

// CanModify 检查主体是否可在模块内修改
func (e *permissionEngine) CanModify(ctx context.Context, principal *model.Principal, moduleKey string) bool {
	return e.Decide(ctx, principal, moduleKey, model.CapModify).Allowed
}

// CanDelete 检查主体是否可在模块内删除
func (e *permissionEngine) CanDelete(ctx context.Context, principal *model.Principal, moduleKey string) bool {
	return e.Decide(ctx, principal, moduleKey, model.CapDelete).Allowed
}
