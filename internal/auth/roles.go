package auth

import "github.com/riskguard/platform/internal/domain"

// Role names carried in tokens. The admin role is derived from the
// principal's privileged flag.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// RolesFor returns the roles granted to p.
func RolesFor(p *domain.Principal) []string {
	if p.Privileged {
		return []string{RoleUser, RoleAdmin}
	}
	return []string{RoleUser}
}
