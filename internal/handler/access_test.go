package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clinichub/access-backend/internal/middleware"
	"github.com/clinichub/access-backend/internal/model"
	"github.com/clinichub/access-backend/internal/service"
	"github.com/clinichub/access-backend/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockAccessAdminService 权限管理服务 Mock
type MockAccessAdminService struct {
	mock.Mock
}

func (m *MockAccessAdminService) CreateModule(ctx context.Context, actorID string, module *model.Module) error {
	args := m.Called(ctx, actorID, module)
	return args.Error(0)
}

func (m *MockAccessAdminService) UpdateModule(ctx context.Context, actorID string, module *model.Module) error {
	args := m.Called(ctx, actorID, module)
	return args.Error(0)
}

func (m *MockAccessAdminService) DeleteModule(ctx context.Context, actorID, key string, force bool) error {
	args := m.Called(ctx, actorID, key, force)
	return args.Error(0)
}

func (m *MockAccessAdminService) CreateRole(ctx context.Context, actorID string, role *model.Role) error {
	args := m.Called(ctx, actorID, role)
	return args.Error(0)
}

func (m *MockAccessAdminService) UpdateRole(ctx context.Context, actorID string, role *model.Role) error {
	args := m.Called(ctx, actorID, role)
	return args.Error(0)
}

func (m *MockAccessAdminService) DeleteRole(ctx context.Context, actorID, key string) error {
	args := m.Called(ctx, actorID, key)
	return args.Error(0)
}

func (m *MockAccessAdminService) GetMatrix(ctx context.Context, roleKey string) ([]service.MatrixRow, error) {
	args := m.Called(ctx, roleKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.MatrixRow), args.Error(1)
}

func (m *MockAccessAdminService) UpdateMatrix(ctx context.Context, actorID, roleKey string, entries map[string]model.Caps) (int, error) {
	args := m.Called(ctx, actorID, roleKey, entries)
	return args.Int(0), args.Error(1)
}

func (m *MockAccessAdminService) Grant(ctx context.Context, actorID, roleKey, moduleKey string, caps model.Caps) error {
	args := m.Called(ctx, actorID, roleKey, moduleKey, caps)
	return args.Error(0)
}

func (m *MockAccessAdminService) SeedDefaults(ctx context.Context, actorID string) error {
	args := m.Called(ctx, actorID)
	return args.Error(0)
}

// stubRegistry 固定内容的目录
type stubRegistry struct {
	modules []*model.Module
	roles   []*model.Role
}

func (s *stubRegistry) ListModules(activeOnly bool) []*model.Module {
	if !activeOnly {
		return s.modules
	}
	out := make([]*model.Module, 0, len(s.modules))
	for _, m := range s.modules {
		if m.Active {
			out = append(out, m)
		}
	}
	return out
}

func (s *stubRegistry) ListRoles() []*model.Role {
	return s.roles
}

func (s *stubRegistry) GetModule(key string) (*model.Module, error) {
	for _, m := range s.modules {
		if m.Key == key {
			return m, nil
		}
	}
	return nil, service.ErrModuleNotFound
}

func (s *stubRegistry) GetRole(key string) (*model.Role, error) {
	for _, r := range s.roles {
		if r.Key == key {
			return r, nil
		}
	}
	return nil, service.ErrRoleNotFound
}

func (s *stubRegistry) Reload(ctx context.Context) error {
	return nil
}

func testRegistry() *stubRegistry {
	return &stubRegistry{
		modules: []*model.Module{
			{Key: "patient_management", DisplayName: "患者管理", Active: true},
			{Key: "research_management", DisplayName: "科研管理", Active: false},
		},
		roles: []*model.Role{
			{Key: "DOCTOR", DisplayName: "医生", TemplateFolder: "doctor"},
		},
	}
}

// withPrincipal 在守卫前注入主体，模拟已认证请求
func withPrincipal(principal *model.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		if principal != nil {
			c.Set(middleware.ContextPrincipal, principal)
		}
		c.Next()
	}
}

func setupRouter(h *AccessHandler, principal *model.Principal) *gin.Engine {
	router := gin.New()
	router.Use(withPrincipal(principal))
	router.GET("/modules", h.ListModules)
	router.POST("/modules", h.CreateModule)
	router.DELETE("/modules/:key", h.DeleteModule)
	router.GET("/roles", h.ListRoles)
	router.POST("/roles", h.CreateRole)
	router.DELETE("/roles/:key", h.DeleteRole)
	router.GET("/roles/:key/matrix", h.GetMatrix)
	router.PUT("/roles/:key/matrix", h.UpdateMatrix)
	router.GET("/templates/resolve", h.ResolveTemplate)
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAccessHandler_ListModules(t *testing.T) {
	h := NewAccessHandler(new(MockAccessAdminService), testRegistry(), nil)
	router := setupRouter(h, &model.Principal{ID: "admin-1", RoleKey: "ADMIN"})

	w := doJSON(router, http.MethodGet, "/modules", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/modules?active=true", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []model.Module `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, "patient_management", resp.Data[0].Key)
}

func TestAccessHandler_CreateModule(t *testing.T) {
	admin := new(MockAccessAdminService)
	admin.On("CreateModule", mock.Anything, "admin-1", mock.AnythingOfType("*model.Module")).Return(nil)

	h := NewAccessHandler(admin, testRegistry(), nil)
	router := setupRouter(h, &model.Principal{ID: "admin-1", RoleKey: "ADMIN"})

	w := doJSON(router, http.MethodPost, "/modules", gin.H{
		"key":          "lab_management",
		"display_name": "检验管理",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	admin.AssertExpectations(t)
}

func TestAccessHandler_CreateModule_Conflict(t *testing.T) {
	admin := new(MockAccessAdminService)
	admin.On("CreateModule", mock.Anything, mock.Anything, mock.Anything).Return(service.ErrModuleKeyExists)

	h := NewAccessHandler(admin, testRegistry(), nil)
	router := setupRouter(h, &model.Principal{ID: "admin-1", RoleKey: "ADMIN"})

	w := doJSON(router, http.MethodPost, "/modules", gin.H{
		"key":          "patient_management",
		"display_name": "患者管理",
	})
	resp := decodeEnvelope(t, w)
	assert.Equal(t, response.CodeModuleExists, resp.Code)
}

func TestAccessHandler_CreateModule_BadRequest(t *testing.T) {
	h := NewAccessHandler(new(MockAccessAdminService), testRegistry(), nil)
	router := setupRouter(h, &model.Principal{ID: "admin-1", RoleKey: "ADMIN"})

	// 缺少必填字段
	w := doJSON(router, http.MethodPost, "/modules", gin.H{"key": "lab_management"})
	resp := decodeEnvelope(t, w)
	assert.Equal(t, response.CodeInvalidRequest, resp.Code)
}

func TestAccessHandler_DeleteRole_SystemProtected(t *testing.T) {
	admin := new(MockAccessAdminService)
	admin.On("DeleteRole", mock.Anything, "admin-1", "SUPER_ADMIN").Return(service.ErrSystemRole)

	h := NewAccessHandler(admin, testRegistry(), nil)
	router := setupRouter(h, &model.Principal{ID: "admin-1", RoleKey: "ADMIN"})

	w := doJSON(router, http.MethodDelete, "/roles/SUPER_ADMIN", nil)
	resp := decodeEnvelope(t, w)
	assert.Equal(t, response.CodeSystemRoleProtected, resp.Code)
}

func TestAccessHandler_DeleteModule_Force(t *testing.T) {
	admin := new(MockAccessAdminService)
	admin.On("DeleteModule", mock.Anything, "admin-1", "patient_management", true).Return(nil)

	h := NewAccessHandler(admin, testRegistry(), nil)
	router := setupRouter(h, &model.Principal{ID: "admin-1", RoleKey: "ADMIN"})

	w := doJSON(router, http.MethodDelete, "/modules/patient_management?force=true", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	admin.AssertExpectations(t)
}

func TestAccessHandler_UpdateMatrix(t *testing.T) {
	admin := new(MockAccessAdminService)
	admin.On("UpdateMatrix", mock.Anything, "admin-1", "DOCTOR", map[string]model.Caps{
		"patient_management": {Access: true, Modify: true},
	}).Return(1, nil)

	h := NewAccessHandler(admin, testRegistry(), nil)
	router := setupRouter(h, &model.Principal{ID: "admin-1", RoleKey: "ADMIN"})

	w := doJSON(router, http.MethodPut, "/roles/DOCTOR/matrix", gin.H{
		"entries": gin.H{
			"patient_management": gin.H{"access": true, "modify": true},
		},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	admin.AssertExpectations(t)
}

func TestAccessHandler_GetMatrix_RoleNotFound(t *testing.T) {
	admin := new(MockAccessAdminService)
	admin.On("GetMatrix", mock.Anything, "GHOST").Return(nil, service.ErrRoleNotFound)

	h := NewAccessHandler(admin, testRegistry(), nil)
	router := setupRouter(h, &model.Principal{ID: "admin-1", RoleKey: "ADMIN"})

	w := doJSON(router, http.MethodGet, "/roles/GHOST/matrix", nil)
	resp := decodeEnvelope(t, w)
	assert.Equal(t, response.CodeRoleNotFound, resp.Code)
}

func TestAccessHandler_ResolveTemplate(t *testing.T) {
	registry := testRegistry()
	resolver := service.NewTemplateResolver(registry, "")
	h := NewAccessHandler(new(MockAccessAdminService), registry, resolver)
	router := setupRouter(h, &model.Principal{ID: "user-1", RoleKey: "DOCTOR"})

	w := doJSON(router, http.MethodGet, "/templates/resolve?base=dashboard.html&module=patient_management", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Path string `json:"path"`
		} `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "doctor/patient_management/dashboard.html", resp.Data.Path)
}

func TestAccessHandler_ResolveTemplate_Traversal(t *testing.T) {
	registry := testRegistry()
	resolver := service.NewTemplateResolver(registry, "")
	h := NewAccessHandler(new(MockAccessAdminService), registry, resolver)
	router := setupRouter(h, &model.Principal{ID: "user-1", RoleKey: "DOCTOR"})

	w := doJSON(router, http.MethodGet, "/templates/resolve?base=..%2F..%2Fetc%2Fpasswd", nil)
	resp := decodeEnvelope(t, w)
	assert.Equal(t, response.CodeInvalidRequest, resp.Code)
}

func TestAccessHandler_ResolveTemplate_Unauthenticated(t *testing.T) {
	h := NewAccessHandler(new(MockAccessAdminService), testRegistry(), nil)
	router := setupRouter(h, nil)

	w := doJSON(router, http.MethodGet, "/templates/resolve?base=dashboard.html", nil)
	resp := decodeEnvelope(t, w)
	assert.Equal(t, response.CodeInvalidToken, resp.Code)
}
