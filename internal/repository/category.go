package repository

import (
	"context"

	"quill/internal/cache"
	"quill/internal/models"

	"gorm.io/gorm"
)

// CategoryRepository defines persistence operations for categories.
type CategoryRepository interface {
	List(ctx context.Context, includeInactive bool) ([]models.Category, error)
	GetByID(ctx context.Context, id uint) (*models.Category, error)
	GetBySlug(ctx context.Context, slug string) (*models.Category, error)
	Create(ctx context.Context, category *models.Category) error
	Update(ctx context.Context, category *models.Category) error
	Delete(ctx context.Context, id uint) error
}

type categoryRepository struct {
	db    *gorm.DB
	cache *cache.Store
}

// NewCategoryRepository returns a CategoryRepository. store may be nil.
func NewCategoryRepository(db *gorm.DB, store *cache.Store) CategoryRepository {
	return &categoryRepository{db: db, cache: store}
}

func (r *categoryRepository) List(ctx context.Context, includeInactive bool) ([]models.Category, error) {
	key := cache.CategoriesActive
	if includeInactive {
		key = cache.CategoriesAll
	}

	categories := []models.Category{}
	err := r.cache.Aside(ctx, key, &categories, cache.CategoryTTL, func() error {
		q := r.db.WithContext(ctx).Order("name ASC")
		if !includeInactive {
			q = q.Where("is_active = ?", true)
		}
		if err := q.Find(&categories).Error; err != nil {
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *categoryRepository) GetByID(ctx context.Context, id uint) (*models.Category, error) {
	var category models.Category
	err := r.cache.Aside(ctx, cache.CategoryKey(id), &category, cache.CategoryTTL, func() error {
		if err := r.db.WithContext(ctx).Preload("Parent").First(&category, id).Error; err != nil {
			return lookupError(err, "Category", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *categoryRepository) GetBySlug(ctx context.Context, slug string) (*models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&category).Error; err != nil {
		return nil, lookupError(err, "Category", slug)
	}
	return &category, nil
}

func (r *categoryRepository) Create(ctx context.Context, category *models.Category) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Parent").Create(category).Error; err != nil {
			return err
		}
		// IsActive=false is a zero value and would otherwise take the column default.
		if !category.IsActive {
			return tx.Model(category).UpdateColumn("is_active", false).Error
		}
		return nil
	})
	if err != nil {
		return storeError(err)
	}
	r.cache.InvalidateCategory(ctx, category.ID)
	return nil
}

func (r *categoryRepository) Update(ctx context.Context, category *models.Category) error {
	err := r.db.WithContext(ctx).Model(category).
		Select("name", "slug", "description", "is_active", "parent_id", "updated_at").
		Omit("Parent").
		Updates(category).Error
	if err != nil {
		return storeError(err)
	}
	r.cache.InvalidateCategory(ctx, category.ID)
	return nil
}

// Delete removes a category that no post references.
func (r *categoryRepository) Delete(ctx context.Context, id uint) error {
	var children []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var category models.Category
		if err := tx.Select("id").First(&category, id).Error; err != nil {
			return lookupError(err, "Category", id)
		}

		var posts int64
		if err := tx.Model(&models.Post{}).Where("category_id = ?", id).Count(&posts).Error; err != nil {
			return err
		}
		if posts > 0 {
			return models.NewValidationError("Cannot delete category with existing posts")
		}

		if err := tx.Model(&models.Category{}).Where("parent_id = ?", id).Pluck("id", &children).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Category{}).Where("parent_id = ?", id).UpdateColumn("parent_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Category{}, id).Error
	})
	if err != nil {
		return storeError(err)
	}
	r.cache.InvalidateCategory(ctx, id)
	for _, child := range children {
		r.cache.Invalidate(ctx, cache.CategoryKey(child))
	}
	return nil
}
