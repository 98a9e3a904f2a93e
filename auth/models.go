package auth

import "time"

type Role string

const (
	// RoleAgent may query only its own downline.
	RoleAgent Role = "agent"
	// RoleAdmin may query any agent and manage the hierarchy cache.
	RoleAdmin Role = "admin"
)

// Principal is the caller identity carried by a verified token.
type Principal struct {
	NPN       string
	Role      Role
	ExpiresAt time.Time
}

func isValidRole(role Role) bool {
	switch role {
	case RoleAgent, RoleAdmin:
		return true
	default:
		return false
	}
}
