package server

import (
	"quill/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListCategories returns active categories. includeInactive=true is honoured for admins only.
func (s *Server) ListCategories(c *fiber.Ctx) error {
	includeInactive := c.QueryBool("includeInactive", false) && currentUser(c).IsAdmin()
	categories, err := s.categoryService.List(c.UserContext(), includeInactive)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, fiber.Map{"categories": categories})
}

func (s *Server) GetCategory(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	category, err := s.categoryService.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, fiber.Map{"category": category})
}

func (s *Server) CreateCategory(c *fiber.Ctx) error {
	var in service.CategoryInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	category, err := s.categoryService.Create(c.UserContext(), in)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusCreated, fiber.Map{"category": category}, "Category created successfully")
}

func (s *Server) UpdateCategory(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in service.UpdateCategoryInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	category, err := s.categoryService.Update(c.UserContext(), id, in)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, fiber.Map{"category": category}, "Category updated successfully")
}

func (s *Server) DeleteCategory(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := s.categoryService.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, nil, "Category deleted successfully")
}
