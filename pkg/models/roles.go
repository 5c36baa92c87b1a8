package models

// UserRole is a UI hint for gating actions. The backend remains
// authoritative for permission enforcement.
type UserRole string

const (
	RoleGuest      UserRole = "guest"
	RoleUser       UserRole = "user"
	RoleAdmin      UserRole = "admin"
	RoleSuperAdmin UserRole = "super-admin"
)

// RoleFor returns the role to use for a viewer. Unauthenticated viewers are
// guests; a signed-in viewer without an explicit role is a plain user.
func RoleFor(v Viewer) UserRole {
	if !v.Authenticated() {
		return RoleGuest
	}
	switch v.Role {
	case RoleAdmin, RoleSuperAdmin, RoleUser:
		return v.Role
	}
	return RoleUser
}

// CanEdit reports whether the viewer may revise an item by authorID
func CanEdit(viewerID, authorID string, role UserRole) bool {
	if viewerID == "" {
		return false
	}
	if viewerID == authorID {
		return true
	}
	return role == RoleAdmin || role == RoleSuperAdmin
}

// CanDelete follows the same rules as CanEdit
func CanDelete(viewerID, authorID string, role UserRole) bool {
	return CanEdit(viewerID, authorID, role)
}
