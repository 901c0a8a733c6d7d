package server

import (
	"strings"

	"quill/internal/auth"
	"quill/internal/models"
	"quill/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// Locals keys set by the authentication middleware.
const (
	localUser   = "user"
	localClaims = "claims"
	localUserID = "userID"
)

var (
	modRoles   = []models.Role{models.RoleAdmin, models.RoleModerator}
	adminRoles = []models.Role{models.RoleAdmin}
)

func bearerToken(c *fiber.Ctx) string {
	scheme, token, ok := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (s *Server) setPrincipal(c *fiber.Ctx, user *models.User, claims *auth.Claims) {
	c.Locals(localUser, user)
	c.Locals(localClaims, claims)
	c.Locals(localUserID, user.ID)
	c.SetUserContext(observability.WithUserID(c.UserContext(), user.ID))
}

// AuthRequired rejects requests without a valid, unrevoked bearer token for an active user.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return models.NewUnauthorizedError("Authorization required")
		}
		user, claims, err := s.authService.Authenticate(c.UserContext(), token)
		if err != nil {
			return err
		}
		s.setPrincipal(c, user, claims)
		return c.Next()
	}
}

// OptionalAuth resolves the caller when a valid token is present and otherwise
// continues anonymously.
func (s *Server) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token := bearerToken(c); token != "" {
			if user, claims, err := s.authService.Authenticate(c.UserContext(), token); err == nil {
				s.setPrincipal(c, user, claims)
			}
		}
		return c.Next()
	}
}

// RoleRequired rejects callers holding none of roles with 403. It must follow AuthRequired.
func (s *Server) RoleRequired(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !auth.HasRole(auth.PrincipalFromUser(currentUser(c)), roles...) {
			return models.NewForbiddenError("Insufficient permissions")
		}
		return c.Next()
	}
}

// currentUser returns the authenticated user, or nil for anonymous requests.
func currentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(localUser).(*models.User)
	return user
}

func currentClaims(c *fiber.Ctx) *auth.Claims {
	claims, _ := c.Locals(localClaims).(*auth.Claims)
	return claims
}
