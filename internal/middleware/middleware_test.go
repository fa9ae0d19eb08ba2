package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/internal/auth"
	"github.com/motorsales/vsms/internal/models"
	"github.com/motorsales/vsms/internal/tenancy"
)

func withTenant(schema string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(tenancy.ContextTenant, &models.Tenant{SchemaName: schema, IsActive: true})
		c.Next()
	}
}

func serve(engine *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestJWTRejectsTokenFromAnotherTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := auth.NewJWTService("secret", 1)
	engine := gin.New()
	engine.Use(withTenant("acme"), JWT(svc))
	engine.GET("/me", func(c *gin.Context) {
		assert.Equal(t, "sales", c.GetString(ContextUserRole))
		c.Status(http.StatusOK)
	})

	acmeToken, err := svc.Generate(uuid.New(), "a@acme.test", "sales", "acme")
	require.NoError(t, err)
	betaToken, err := svc.Generate(uuid.New(), "b@beta.test", "admin", "beta")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/me", acmeToken).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(engine, http.MethodGet, "/me", betaToken).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(engine, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(engine, http.MethodGet, "/me", "garbage").Code)
}

type staticChecker map[models.Role]models.AccessLevel

func (s staticChecker) Access(_ context.Context, role models.Role, _ models.Module) (models.AccessLevel, error) {
	if role == models.RoleAdmin {
		return models.AccessFull, nil
	}
	return s[role], nil
}

func TestRequirePermission(t *testing.T) {
	gin.SetMode(gin.TestMode)
	checker := staticChecker{models.RoleSales: models.AccessEdit, models.RoleStaff: models.AccessView}

	for _, tt := range []struct {
		role models.Role
		want int
	}{
		{models.RoleAdmin, http.StatusOK},
		{models.RoleSales, http.StatusOK},
		{models.RoleStaff, http.StatusForbidden},
		{models.RoleAuctioneer, http.StatusForbidden},
	} {
		engine := gin.New()
		role := tt.role
		engine.Use(func(c *gin.Context) { c.Set(ContextUserRole, string(role)); c.Next() })
		engine.POST("/vehicles", RequirePermission(checker, models.ModuleVehicles, models.AccessEdit, zap.NewNop()),
			func(c *gin.Context) { c.Status(http.StatusOK) })
		assert.Equal(t, tt.want, serve(engine, http.MethodPost, "/vehicles", "").Code, tt.role)
	}
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(func(c *gin.Context) { c.Set(ContextUserRole, "sales"); c.Next() })
	engine.GET("/users", RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/vehicles", RequireRole(models.RoleAdmin, models.RoleSales), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusForbidden, serve(engine, http.MethodGet, "/users", "").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/vehicles", "").Code)
}
