package domain

import (
	"errors"
	"testing"
)

func TestParseRole(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]Role{
		"admin":    RoleAdmin,
		"Operator": RoleOperator,
		" VIEWER ": RoleViewer,
	} {
		got, err := ParseRole(raw)
		if err != nil || got != want {
			t.Fatalf("ParseRole(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}

	_, err := ParseRole("root")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "role" {
		t.Fatalf("expected role field, got %v", err)
	}
}

func TestRoleCanWrite(t *testing.T) {
	t.Parallel()

	if !RoleAdmin.CanWrite() || !RoleOperator.CanWrite() {
		t.Fatal("expected admin and operator to write")
	}
	if RoleViewer.CanWrite() || Role("").CanWrite() {
		t.Fatal("expected viewer to be read-only")
	}
}
