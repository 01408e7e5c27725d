package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"outreach-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

func roleRouter(role, workspace string, allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u", workspace, role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireWorkspace(), RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(200)
	})
	return r
}

func get(r *gin.Engine) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	if code := get(roleRouter(RoleSuperAdmin, "w", RoleOwner)); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_OperatorAllowed(t *testing.T) {
	if code := get(roleRouter(RoleOperator, "w", RoleOwner, RoleOperator)); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_AnalystDeniedWrite(t *testing.T) {
	if code := get(roleRouter(RoleAnalyst, "w", RoleOwner, RoleOperator)); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_HiddenRoleDeniedUnlessAllowed(t *testing.T) {
	if code := get(roleRouter(RoleService, "w", RoleOwner)); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
	if code := get(roleRouter(RoleService, "w", RoleService)); code != 200 {
		t.Fatalf("expected 200 when explicitly allowed, got %d", code)
	}
}

func TestRequireAnyRole_WorkspaceRequired(t *testing.T) {
	if code := get(roleRouter(RoleOwner, "", RoleOwner)); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}
