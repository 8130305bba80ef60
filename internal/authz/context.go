package authz

import (
	"context"
	"net/http"

	"github.com/Bhavyapatel3096/Urban-Issue-Reporting-Platform/internal/models"
)

type contextKey string

const (
	userIDKey     contextKey = "user_id"
	userRolesKey  contextKey = "user_roles"
	departmentKey contextKey = "department"
)

// WithIdentity stores user, role, and department information on the context.
func WithIdentity(ctx context.Context, userID string, roles []models.UserRole, department string) context.Context {
	if userID != "" {
		ctx = context.WithValue(ctx, userIDKey, userID)
	}
	normalized := models.EnsureDefaultRole(models.NormalizeRoles(roles))
	ctx = context.WithValue(ctx, userRolesKey, normalized)
	if department != "" {
		ctx = context.WithValue(ctx, departmentKey, department)
	}
	return ctx
}

func UserIDFromRequest(r *http.Request) (string, bool) {
	uid, ok := r.Context().Value(userIDKey).(string)
	if !ok || uid == "" {
		return "", false
	}
	return uid, true
}

func RolesFromRequest(r *http.Request) ([]models.UserRole, bool) {
	roles, ok := r.Context().Value(userRolesKey).([]models.UserRole)
	if !ok || !models.IsValidRoleList(roles) {
		return nil, false
	}
	return roles, true
}

func DepartmentFromRequest(r *http.Request) (string, bool) {
	dept, ok := r.Context().Value(departmentKey).(string)
	if !ok || dept == "" {
		return "", false
	}
	return dept, true
}
