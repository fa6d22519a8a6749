package auth

import (
	"regexp"
	"testing"

	"github.com/sakif/student-data-vault/internal/model"
)

func TestNewQRToken(t *testing.T) {
	a, err := NewQRToken()
	if err != nil {
		t.Fatalf("NewQRToken() error = %v", err)
	}
	b, _ := NewQRToken()

	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(a) {
		t.Errorf("NewQRToken() = %q, want 64 hex chars", a)
	}
	if a == b {
		t.Error("NewQRToken() returned the same token twice")
	}
}

func TestNewUserID(t *testing.T) {
	pattern := map[model.Role]*regexp.Regexp{
		model.RoleAdmin:   regexp.MustCompile(`^admin-[0-9a-f]{8}$`),
		model.RoleTeacher: regexp.MustCompile(`^teacher-[0-9a-f]{8}$`),
		model.RoleStudent: regexp.MustCompile(`^student-[0-9a-f]{8}$`),
		model.RoleParent:  regexp.MustCompile(`^parent-[0-9a-f]{8}$`),
	}
	for role, re := range pattern {
		id, err := NewUserID(role)
		if err != nil {
			t.Fatalf("NewUserID(%s) error = %v", role, err)
		}
		if !re.MatchString(id) {
			t.Errorf("NewUserID(%s) = %q", role, id)
		}
	}
}
