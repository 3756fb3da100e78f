// Package access holds the role hierarchy and the static permission matrix
// shared by ingestion and search. The matrix is an explicit enumeration per
// permission, not a threshold over the hierarchy: delete_all stays admin-only
// even though manager outranks user.
package access

import (
	"fmt"

	"github.com/badradine/Smart-Scan-Storage/pkg/domain"
)

// Permission is a closed identifier for a named capability. New permissions
// must be added here and to the matrix; ValidateMatrix rejects anything else.
type Permission string

const (
	DocumentsCreate    Permission = "documents:create"
	DocumentsReadOwn   Permission = "documents:read_own"
	DocumentsReadAll   Permission = "documents:read_all"
	DocumentsEditOwn   Permission = "documents:edit_own"
	DocumentsEditAll   Permission = "documents:edit_all"
	DocumentsDeleteOwn Permission = "documents:delete_own"
	DocumentsDeleteAll Permission = "documents:delete_all"
	PagesEditOwn       Permission = "pages:edit_own"
	PagesEditAll       Permission = "pages:edit_all"
	UsersManage        Permission = "users:manage"
)

var allPermissions = []Permission{
	DocumentsCreate,
	DocumentsReadOwn,
	DocumentsReadAll,
	DocumentsEditOwn,
	DocumentsEditAll,
	DocumentsDeleteOwn,
	DocumentsDeleteAll,
	PagesEditOwn,
	PagesEditAll,
	UsersManage,
}

var roleRank = map[domain.Role]int{
	domain.RoleGuest:   0,
	domain.RoleUser:    1,
	domain.RoleManager: 2,
	domain.RoleAdmin:   3,
}

var matrix = map[Permission][]domain.Role{
	DocumentsCreate:    {domain.RoleAdmin, domain.RoleManager, domain.RoleUser},
	DocumentsReadOwn:   {domain.RoleAdmin, domain.RoleManager, domain.RoleUser},
	DocumentsReadAll:   {domain.RoleAdmin, domain.RoleManager},
	DocumentsEditOwn:   {domain.RoleAdmin, domain.RoleManager, domain.RoleUser},
	DocumentsEditAll:   {domain.RoleAdmin, domain.RoleManager},
	DocumentsDeleteOwn: {domain.RoleAdmin, domain.RoleManager, domain.RoleUser},
	DocumentsDeleteAll: {domain.RoleAdmin},
	PagesEditOwn:       {domain.RoleAdmin, domain.RoleManager, domain.RoleUser},
	PagesEditAll:       {domain.RoleAdmin, domain.RoleManager},
	UsersManage:        {domain.RoleAdmin},
}

// ValidateMatrix checks the matrix once at startup: every permission of the
// closed set must be present and every granted role must be a known role.
// A typo here would otherwise silently become "nobody holds this permission".
func ValidateMatrix() error {
	for _, perm := range allPermissions {
		roles, ok := matrix[perm]
		if !ok {
			return fmt.Errorf("permission %q missing from matrix", perm)
		}
		for _, role := range roles {
			if _, known := roleRank[role]; !known {
				return fmt.Errorf("permission %q grants unknown role %q", perm, role)
			}
		}
	}
	if len(matrix) != len(allPermissions) {
		return fmt.Errorf("matrix lists %d permissions, want %d", len(matrix), len(allPermissions))
	}
	return nil
}

// RoleSatisfies reports whether actual sits at or above required in the
// admin > manager > user > guest ordering.
func RoleSatisfies(actual, required domain.Role) bool {
	a, ok := roleRank[actual]
	if !ok {
		return false
	}
	r, ok := roleRank[required]
	if !ok {
		return false
	}
	return a >= r
}

// HasPermission reports whether the role appears in the matrix entry.
func HasPermission(role domain.Role, perm Permission) bool {
	for _, granted := range matrix[perm] {
		if granted == role {
			return true
		}
	}
	return false
}

// allowedOn evaluates an _own/_all permission pair against a resource owner.
// The _all grant bypasses the ownership predicate.
func allowedOn(actor domain.Actor, ownerID string, own, all Permission) bool {
	if HasPermission(actor.Role, all) {
		return true
	}
	return HasPermission(actor.Role, own) && ownerID == actor.ID
}

// CanAccessDocument reports whether the actor may read the document.
func CanAccessDocument(actor domain.Actor, doc domain.Document) bool {
	return allowedOn(actor, doc.OwnerID, DocumentsReadOwn, DocumentsReadAll)
}

// CanEditDocument reports whether the actor may change document metadata.
func CanEditDocument(actor domain.Actor, doc domain.Document) bool {
	return allowedOn(actor, doc.OwnerID, DocumentsEditOwn, DocumentsEditAll)
}

// CanDeleteDocument reports whether the actor may destroy the document.
func CanDeleteDocument(actor domain.Actor, doc domain.Document) bool {
	return allowedOn(actor, doc.OwnerID, DocumentsDeleteOwn, DocumentsDeleteAll)
}

// CanEditPage reports whether the actor may correct a page's recognized text.
func CanEditPage(actor domain.Actor, doc domain.Document) bool {
	return allowedOn(actor, doc.OwnerID, PagesEditOwn, PagesEditAll)
}

// ScopeFor derives the query scope for bulk reads. Roles holding read_all see
// everything; everyone else is pinned to their own documents before any other
// filter applies.
func ScopeFor(actor domain.Actor) domain.Scope {
	if HasPermission(actor.Role, DocumentsReadAll) {
		return domain.Scope{All: true}
	}
	return domain.Scope{OwnerID: actor.ID}
}
