package middleware

import (
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/skilltest-api/internal/utils"
)

type roleSet map[string]struct{}

func newRoleSet(roles ...string) roleSet {
	set := make(roleSet, len(roles))
	for _, role := range roles {
		if normalized := strings.ToLower(strings.TrimSpace(role)); normalized != "" {
			set[normalized] = struct{}{}
		}
	}
	return set
}

func (s roleSet) has(role string) bool {
	_, ok := s[strings.ToLower(strings.TrimSpace(role))]
	return ok
}

func (s roleSet) names() []string {
	names := make([]string, 0, len(s))
	for role := range s {
		names = append(names, role)
	}
	sort.Strings(names)
	return names
}

// RequireRole admits requests whose token role, as stored by JWTProtected,
// is one of roles. Denials name the accepted roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := newRoleSet(roles...)
	required := allowed.names()

	return func(c *fiber.Ctx) error {
		role, _ := c.Locals(LocalUserRole).(string)
		if allowed.has(role) {
			return c.Next()
		}
		return c.Status(fiber.StatusForbidden).JSON(utils.APIResponse{
			Success: false,
			Error:   "forbidden",
			Message: "insufficient permissions",
			Details: fiber.Map{"required_roles": required},
		})
	}
}
