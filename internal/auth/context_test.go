package auth

import (
	"context"
	"testing"

	"github.com/campuspulse/campuspulse/internal/model"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{UserID: 1, Role: model.RoleStaff}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.UserID != 1 {
		t.Errorf("UserID = %d, want 1", got.UserID)
	}
	if got.Role != model.RoleStaff {
		t.Errorf("Role = %q, want %q", got.Role, model.RoleStaff)
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
}

func TestUserID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: 7})
	if UserID(ctx) != 7 {
		t.Errorf("UserID = %d, want 7", UserID(ctx))
	}
}

func TestUserIDMissing(t *testing.T) {
	if UserID(context.Background()) != 0 {
		t.Error("expected 0 for missing context")
	}
}

func TestRoleChecks(t *testing.T) {
	tests := []struct {
		role       model.Role
		admin      bool
		privileged bool
	}{
		{model.RoleAdmin, true, true},
		{model.RoleStaff, false, true},
		{model.RoleStudent, false, false},
		{model.RoleUser, false, false},
	}
	for _, tt := range tests {
		ctx := WithAuth(context.Background(), AuthContext{UserID: 1, Role: tt.role})
		if IsAdmin(ctx) != tt.admin {
			t.Errorf("IsAdmin(%s) = %v, want %v", tt.role, !tt.admin, tt.admin)
		}
		if IsPrivileged(ctx) != tt.privileged {
			t.Errorf("IsPrivileged(%s) = %v, want %v", tt.role, !tt.privileged, tt.privileged)
		}
	}
}

func TestIsAdminMissing(t *testing.T) {
	if IsAdmin(context.Background()) {
		t.Error("expected IsAdmin = false for missing context")
	}
}
