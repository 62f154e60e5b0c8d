package todoist

import (
	"golang.org/x/oauth2"
)

// Endpoint defines the OAuth2 endpoints for Todoist authentication.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://todoist.com/oauth/authorize",
	TokenURL:  "https://todoist.com/oauth/access_token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// PermissionScope is a Todoist OAuth permission.
type PermissionScope string

const (
	// ScopeTaskAdd grants permission to add new tasks only.
	ScopeTaskAdd PermissionScope = "task:add"
	// ScopeDataRead grants read-only access to tasks, projects, labels and filters.
	ScopeDataRead PermissionScope = "data:read"
	// ScopeDataReadWrite grants read and write access; includes task:add and data:read.
	ScopeDataReadWrite PermissionScope = "data:read_write"
	// ScopeDataDelete grants permission to delete tasks, labels and filters.
	ScopeDataDelete PermissionScope = "data:delete"
	// ScopeProjectDelete grants permission to delete projects.
	ScopeProjectDelete PermissionScope = "project:delete"
	// ScopeBackupsRead grants permission to list backups bypassing MFA.
	ScopeBackupsRead PermissionScope = "backups:read"
)

// DefaultScopes is what a quick-capture client needs: adding tasks, nothing more.
var DefaultScopes = []PermissionScope{ScopeTaskAdd}

// ParseScope returns the PermissionScope for s, or false if Todoist has no such scope.
func ParseScope(s string) (PermissionScope, bool) {
	switch scope := PermissionScope(s); scope {
	case ScopeTaskAdd, ScopeDataRead, ScopeDataReadWrite, ScopeDataDelete, ScopeProjectDelete, ScopeBackupsRead:
		return scope, true
	default:
		return "", false
	}
}
