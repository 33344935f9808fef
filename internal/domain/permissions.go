package domain

// Role is the caller's effective role in a workspace.
type Role string

// Workspace roles. Viewers only ever see published documents.
const (
	RoleViewer Role = "VIEWER"
	RoleEditor Role = "EDITOR"
	RoleAdmin  Role = "ADMIN"
)

// WildcardCollection marks unrestricted collection access.
const WildcardCollection = "*"

// UserPermissions is the authorization snapshot for one caller.
type UserPermissions struct {
	Role Role
}
