package auth

import (
	"testing"

	"github.com/trackwise/assistant/internal/models"
)

func TestUserFromClaims(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		claims   models.TokenClaims
		wantRole models.Role
	}{
		{"manager role", models.TokenClaims{Sub: "u-1", Role: "manager"}, models.RoleManager},
		{"missing role degrades to viewer", models.TokenClaims{Sub: "u-1"}, models.RoleViewer},
		{"unknown role degrades to viewer", models.TokenClaims{Sub: "u-1", Role: "superuser"}, models.RoleViewer},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			user := UserFromClaims(&tt.claims)
			if user.ID != tt.claims.Sub {
				t.Errorf("id = %q, want %q", user.ID, tt.claims.Sub)
			}
			if user.Role != tt.wantRole {
				t.Errorf("role = %q, want %q", user.Role, tt.wantRole)
			}
		})
	}
}
