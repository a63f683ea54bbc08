package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// Staff roles allowed on the back-office API.
const (
	RoleAdmin     = "admin"
	RoleHR        = "hr"
	RoleRecruiter = "recruiter"
)

// StaffRoles lists every role that may manage tests and attempts.
var StaffRoles = []string{RoleAdmin, RoleHR, RoleRecruiter}

// AuthOptions configures WithAuth.
type AuthOptions struct {
	Secret string
	Roles  []string
}

// WithAuth returns the guard chain for a route group: bearer token
// validation followed by a role check. Roles default to StaffRoles.
func WithAuth(opts AuthOptions) []fiber.Handler {
	roles := opts.Roles
	if len(roles) == 0 {
		roles = StaffRoles
	}
	return []fiber.Handler{JWTProtected(opts.Secret), RequireRole(roles...)}
}
