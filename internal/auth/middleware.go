package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/ticket-relay/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	StaffID int64
}

// AuthMiddleware validates bearer tokens against the staff roster.
type AuthMiddleware struct {
	tokens *TokenManager
	roster Roster
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, roster Roster) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, roster: roster}
}

// Handle enforces authentication for protected routes. A token for someone
// removed from the roster stops working immediately.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	if !m.roster.Contains(claims.StaffID) {
		return apperrors.NewUnauthorized("staff not found")
	}

	c.Locals(principalKey, &Principal{StaffID: claims.StaffID})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
