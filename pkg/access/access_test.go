package access

import (
	"testing"

	"github.com/badradine/Smart-Scan-Storage/pkg/domain"
)

func TestValidateMatrix(t *testing.T) {
	if err := ValidateMatrix(); err != nil {
		t.Fatalf("ValidateMatrix() = %v", err)
	}
}

func TestRoleSatisfies(t *testing.T) {
	cases := []struct {
		actual, required domain.Role
		want             bool
	}{
		{domain.RoleAdmin, domain.RoleGuest, true},
		{domain.RoleAdmin, domain.RoleAdmin, true},
		{domain.RoleManager, domain.RoleUser, true},
		{domain.RoleUser, domain.RoleManager, false},
		{domain.RoleGuest, domain.RoleUser, false},
		{domain.Role("intruder"), domain.RoleGuest, false},
		{domain.RoleAdmin, domain.Role("intruder"), false},
	}
	for _, tc := range cases {
		if got := RoleSatisfies(tc.actual, tc.required); got != tc.want {
			t.Errorf("RoleSatisfies(%s, %s) = %v, want %v", tc.actual, tc.required, got, tc.want)
		}
	}
}

func TestHasPermissionIsNotThresholdBased(t *testing.T) {
	// manager outranks user in the hierarchy but delete_all stays admin-only.
	if HasPermission(domain.RoleManager, DocumentsDeleteAll) {
		t.Fatal("manager must not hold documents:delete_all")
	}
	if !HasPermission(domain.RoleAdmin, DocumentsDeleteAll) {
		t.Fatal("admin must hold documents:delete_all")
	}
	if HasPermission(domain.RoleGuest, DocumentsCreate) {
		t.Fatal("guest must not hold documents:create")
	}
}

func TestOwnershipPredicate(t *testing.T) {
	doc := domain.Document{ID: "d1", OwnerID: "alice"}
	owner := domain.Actor{ID: "alice", Role: domain.RoleUser}
	stranger := domain.Actor{ID: "bob", Role: domain.RoleUser}
	manager := domain.Actor{ID: "carol", Role: domain.RoleManager}
	admin := domain.Actor{ID: "dave", Role: domain.RoleAdmin}

	if !CanAccessDocument(owner, doc) {
		t.Error("owner should read own document")
	}
	if CanAccessDocument(stranger, doc) {
		t.Error("non-owner user should not read foreign document")
	}
	if !CanAccessDocument(manager, doc) {
		t.Error("manager bypasses ownership via read_all")
	}
	if !CanEditDocument(manager, doc) {
		t.Error("manager bypasses ownership via edit_all")
	}
	if CanDeleteDocument(manager, doc) {
		t.Error("manager holds neither delete_all nor ownership")
	}
	if !CanDeleteDocument(admin, doc) {
		t.Error("admin deletes via delete_all")
	}
	if !CanDeleteDocument(owner, doc) {
		t.Error("owner deletes via delete_own")
	}
	if !CanEditPage(owner, doc) || CanEditPage(stranger, doc) {
		t.Error("page edit must follow the ownership predicate")
	}
}

func TestScopeFor(t *testing.T) {
	if s := ScopeFor(domain.Actor{ID: "a", Role: domain.RoleAdmin}); !s.All {
		t.Error("admin scope must be unrestricted")
	}
	if s := ScopeFor(domain.Actor{ID: "m", Role: domain.RoleManager}); !s.All {
		t.Error("manager scope must be unrestricted")
	}
	s := ScopeFor(domain.Actor{ID: "u", Role: domain.RoleUser})
	if s.All || s.OwnerID != "u" {
		t.Errorf("user scope = %+v, want owner-bound", s)
	}
	s = ScopeFor(domain.Actor{ID: "g", Role: domain.RoleGuest})
	if s.All || s.OwnerID != "g" {
		t.Errorf("guest scope = %+v, want owner-bound", s)
	}
}
