package seed

import (
	_ "embed"
	"errors"
	"fmt"

	"quill/internal/models"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

//go:embed categories.yaml
var categoriesYAML []byte

// CategoryFixture is one entry of the embedded category tree.
type CategoryFixture struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Children    []CategoryFixture `yaml:"children"`
}

// DefaultCategories parses the embedded category tree.
func DefaultCategories() ([]CategoryFixture, error) {
	var out []CategoryFixture
	if err := yaml.Unmarshal(categoriesYAML, &out); err != nil {
		return nil, fmt.Errorf("parse categories fixture: %w", err)
	}
	return out, nil
}

// Categories ensures every default category exists. Existing rows, matched by slug, are left untouched.
func Categories(db *gorm.DB) ([]models.Category, error) {
	fixtures, err := DefaultCategories()
	if err != nil {
		return nil, err
	}

	var out []models.Category
	err = db.Transaction(func(tx *gorm.DB) error {
		var walk func(items []CategoryFixture, parentID *uint) error
		walk = func(items []CategoryFixture, parentID *uint) error {
			for _, item := range items {
				category, err := ensureCategory(tx, item, parentID)
				if err != nil {
					return err
				}
				out = append(out, *category)
				if err := walk(item.Children, &category.ID); err != nil {
					return err
				}
			}
			return nil
		}
		return walk(fixtures, nil)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func ensureCategory(tx *gorm.DB, item CategoryFixture, parentID *uint) (*models.Category, error) {
	slug := models.Slugify(item.Name)
	var category models.Category
	err := tx.Where("slug = ?", slug).First(&category).Error
	switch {
	case err == nil:
		return &category, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	category = models.Category{
		Name:        item.Name,
		Slug:        slug,
		Description: item.Description,
		IsActive:    true,
		ParentID:    parentID,
	}
	if err := tx.Create(&category).Error; err != nil {
		return nil, fmt.Errorf("create category %s: %w", slug, err)
	}
	return &category, nil
}
