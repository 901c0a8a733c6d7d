package server

import "github.com/gofiber/fiber/v2"

// GetFeatureFlags returns every flag evaluated for the current user.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	return respondSuccess(c, fiber.StatusOK, fiber.Map{
		"flags": s.featureFlags.Evaluate(currentUser(c).ID),
	})
}
