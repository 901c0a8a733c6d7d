package server

import (
	"quill/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListUsers returns a filtered page of accounts.
func (s *Server) ListUsers(c *fiber.Ctx) error {
	list, err := s.userService.List(c.UserContext(), service.ListUsersInput{
		Page:     parsePage(c),
		Role:     c.Query("role"),
		IsActive: c.Query("isActive"),
		Search:   c.Query("search"),
	})
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, list)
}

// UserStats returns account and content aggregates.
func (s *Server) UserStats(c *fiber.Ctx) error {
	stats, err := s.userService.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, stats)
}

func (s *Server) GetUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	user, err := s.userService.Get(c.UserContext(), currentUser(c), id)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, fiber.Map{"user": user})
}

func (s *Server) UpdateUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in service.ProfileInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	user, err := s.userService.UpdateProfile(c.UserContext(), currentUser(c), id, in)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, fiber.Map{"user": user}, "User updated successfully")
}

type roleRequest struct {
	Role string `json:"role"`
}

func (s *Server) ChangeUserRole(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req roleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user, err := s.userService.ChangeRole(c.UserContext(), currentUser(c), id, req.Role)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, fiber.Map{"user": user}, "User role updated successfully")
}

func (s *Server) ActivateUser(c *fiber.Ctx) error {
	return s.setUserActive(c, true, "User activated successfully")
}

func (s *Server) DeactivateUser(c *fiber.Ctx) error {
	return s.setUserActive(c, false, "User deactivated successfully")
}

func (s *Server) setUserActive(c *fiber.Ctx, active bool, message string) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	user, err := s.userService.SetActive(c.UserContext(), currentUser(c), id, active)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, fiber.Map{"user": user}, message)
}

func (s *Server) DeleteUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := s.userService.Delete(c.UserContext(), currentUser(c), id); err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, nil, "User deleted successfully")
}
