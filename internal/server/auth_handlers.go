package server

import (
	"quill/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Register creates an account and returns it with a token.
func (s *Server) Register(c *fiber.Ctx) error {
	var in service.RegisterInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	res, err := s.authService.Register(c.UserContext(), in)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusCreated, res, "User registered successfully")
}

// Login exchanges credentials for a token.
func (s *Server) Login(c *fiber.Ctx) error {
	var in service.LoginInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	res, err := s.authService.Login(c.UserContext(), in)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, res, "Login successful")
}

// Me returns the authenticated user.
func (s *Server) Me(c *fiber.Ctx) error {
	return respondSuccess(c, fiber.StatusOK, fiber.Map{"user": currentUser(c)})
}

// UpdateProfile edits the caller's profile fields.
func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	var in service.ProfileInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	user, err := s.authService.UpdateProfile(c.UserContext(), currentUser(c).ID, in)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, fiber.Map{"user": user}, "Profile updated successfully")
}

// ChangePassword replaces the caller's password.
func (s *Server) ChangePassword(c *fiber.Ctx) error {
	var in service.ChangePasswordInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	if err := s.authService.ChangePassword(c.UserContext(), currentUser(c).ID, in); err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, nil, "Password changed successfully")
}

// Logout revokes the caller's token.
func (s *Server) Logout(c *fiber.Ctx) error {
	if err := s.authService.Logout(c.UserContext(), currentClaims(c)); err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, nil, "Logged out successfully")
}
