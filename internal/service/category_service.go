package service

import (
	"context"
	"strings"

	"quill/internal/models"
	"quill/internal/repository"
	"quill/internal/validation"
)

// CategoryService manages categories. Writes are admin only and enforced by the router.
type CategoryService struct {
	categories repository.CategoryRepository
}

// CategoryInput is the create payload.
type CategoryInput struct {
	Name        string `json:"name" validate:"required,min=2,max=50"`
	Description string `json:"description" validate:"omitempty,max=500"`
	ParentID    *uint  `json:"parentId"`
	IsActive    *bool  `json:"isActive"`
}

// UpdateCategoryInput is a partial update.
type UpdateCategoryInput struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=50"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	ParentID    *uint   `json:"parentId"`
	IsActive    *bool   `json:"isActive"`
}

func NewCategoryService(categories repository.CategoryRepository) *CategoryService {
	return &CategoryService{categories: categories}
}

// List returns active categories, or every category when includeInactive is set.
func (s *CategoryService) List(ctx context.Context, includeInactive bool) ([]models.Category, error) {
	return s.categories.List(ctx, includeInactive)
}

func (s *CategoryService) Get(ctx context.Context, id uint) (*models.Category, error) {
	return s.categories.GetByID(ctx, id)
}

func (s *CategoryService) Create(ctx context.Context, in CategoryInput) (*models.Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	slug, err := categorySlug(in.Name)
	if err != nil {
		return nil, err
	}
	if err := s.checkParent(ctx, 0, in.ParentID); err != nil {
		return nil, err
	}

	category := &models.Category{
		Name:        in.Name,
		Slug:        slug,
		Description: in.Description,
		ParentID:    in.ParentID,
		IsActive:    in.IsActive == nil || *in.IsActive,
	}
	if err := s.categories.Create(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *CategoryService) Update(ctx context.Context, id uint, in UpdateCategoryInput) (*models.Category, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	category, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		slug, err := categorySlug(name)
		if err != nil {
			return nil, err
		}
		category.Name, category.Slug = name, slug
	}
	if in.Description != nil {
		category.Description = strings.TrimSpace(*in.Description)
	}
	if in.ParentID != nil {
		if err := s.checkParent(ctx, id, in.ParentID); err != nil {
			return nil, err
		}
		category.ParentID = in.ParentID
		category.Parent = nil
	}
	if in.IsActive != nil {
		category.IsActive = *in.IsActive
	}
	if err := s.categories.Update(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

// Delete removes a category that no post references.
func (s *CategoryService) Delete(ctx context.Context, id uint) error {
	return s.categories.Delete(ctx, id)
}

func categorySlug(name string) (string, error) {
	slug := models.Slugify(name)
	if slug == "" {
		return "", models.NewFieldValidationError([]models.FieldError{{Field: "name", Message: "name must contain letters or numbers"}})
	}
	return slug, nil
}

func (s *CategoryService) checkParent(ctx context.Context, id uint, parentID *uint) error {
	if parentID == nil {
		return nil
	}
	if *parentID == id {
		return models.NewFieldValidationError([]models.FieldError{{Field: "parentId", Message: "A category cannot be its own parent"}})
	}
	parent, err := s.categories.GetByID(ctx, *parentID)
	if err != nil {
		return models.NewFieldValidationError([]models.FieldError{{Field: "parentId", Message: "Parent category does not exist"}})
	}
	if id == 0 {
		return nil
	}

	// Walk up from the new parent; reaching id would close a cycle.
	seen := map[uint]bool{parent.ID: true}
	for parent.ParentID != nil {
		next := *parent.ParentID
		if next == id {
			return models.NewFieldValidationError([]models.FieldError{{Field: "parentId", Message: "A category cannot be nested under its own descendant"}})
		}
		if seen[next] {
			break
		}
		seen[next] = true
		if parent, err = s.categories.GetByID(ctx, next); err != nil {
			return err
		}
	}
	return nil
}
