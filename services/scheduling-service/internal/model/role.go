package model

import (
	"fmt"
	"strings"
)

// Role is the caller's platform role. Every switch over Role lists all
// variants so a new role fails review instead of silently falling through.
type Role int

const (
	RoleUser Role = iota + 1
	RoleProvider
	RoleAdmin
)

func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "USER":
		return RoleUser, nil
	case "PROVIDER":
		return RoleProvider, nil
	case "ADMIN":
		return RoleAdmin, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "USER"
	case RoleProvider:
		return "PROVIDER"
	case RoleAdmin:
		return "ADMIN"
	default:
		return "UNKNOWN"
	}
}

// HomePath is where the client lands after sign-in.
func (r Role) HomePath() string {
	switch r {
	case RoleUser:
		return "/appointments"
	case RoleProvider:
		return "/provider/dashboard"
	case RoleAdmin:
		return "/admin"
	default:
		return "/"
	}
}

// Principal is the verified caller handed over by the identity layer.
type Principal struct {
	UserID     string
	Role       Role
	ProviderID string
}

// OwnsProvider reports whether p acts for providerID.
func (p Principal) OwnsProvider(providerID string) bool {
	return p.Role == RoleProvider && p.ProviderID != "" && p.ProviderID == providerID
}

// CanCancel reports whether the role may cancel appointments it is party to.
func (r Role) CanCancel() bool {
	switch r {
	case RoleUser, RoleProvider:
		return true
	case RoleAdmin:
		return false
	default:
		return false
	}
}
