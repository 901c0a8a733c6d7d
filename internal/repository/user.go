// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"quill/internal/cache"
	"quill/internal/models"

	"gorm.io/gorm"
)

// topAuthorsLimit bounds the stats ranking.
const topAuthorsLimit = 5

// UserFilter narrows the admin user listing. Zero values mean "any".
type UserFilter struct {
	Role     models.Role
	IsActive *bool
	Search   string
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetWithCredentials(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdateRole(ctx context.Context, id uint, role models.Role) error
	SetActive(ctx context.Context, id uint, active bool) error
	UpdatePassword(ctx context.Context, id uint, hash string) error
	TouchLastLogin(ctx context.Context, id uint, at time.Time) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, filter UserFilter, page models.Page) ([]models.User, int64, error)
	ListByRole(ctx context.Context, role models.Role) ([]models.User, error)
	Stats(ctx context.Context) (*models.UserStats, error)
}

type userRepository struct {
	db    *gorm.DB
	cache *cache.Store
}

// NewUserRepository returns a new UserRepository implementation. store may be nil.
func NewUserRepository(db *gorm.DB, store *cache.Store) UserRepository {
	return &userRepository{db: db, cache: store}
}

// GetByID returns the user through the cache. The cached copy never carries the password hash.
func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.cache.Aside(ctx, cache.UserKey(id), &user, cache.UserTTL, func() error {
		if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
			return lookupError(err, "User", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	user.Password = ""
	return &user, nil
}

// GetWithCredentials reads the user straight from the database, password hash included.
func (r *userRepository) GetWithCredentials(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, lookupError(err, "User", id)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return storeError(err)
	}
	// A false IsActive is a zero value, so GORM substitutes the column default on insert.
	if !user.IsActive {
		if err := r.db.WithContext(ctx).Model(user).UpdateColumn("is_active", false).Error; err != nil {
			return storeError(err)
		}
	}
	return nil
}

// UpdateProfile persists the self-service profile fields only. Role, activation
// and the password hash have their own writes.
func (r *userRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Model(user).
		Select("first_name", "last_name", "bio", "avatar", "updated_at").
		Updates(user).Error
	if err != nil {
		return storeError(err)
	}
	r.cache.InvalidateUser(ctx, user.ID)
	return nil
}

func (r *userRepository) UpdateRole(ctx context.Context, id uint, role models.Role) error {
	return r.updateColumn(ctx, id, "role", role)
}

func (r *userRepository) SetActive(ctx context.Context, id uint, active bool) error {
	return r.updateColumn(ctx, id, "is_active", active)
}

func (r *userRepository) updateColumn(ctx context.Context, id uint, column string, value interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{column: value, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return storeError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	r.cache.InvalidateUser(ctx, id)
	return nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, id uint, hash string) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{"password": hash, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return storeError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	r.cache.InvalidateUser(ctx, id)
	return nil
}

func (r *userRepository) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).UpdateColumn("last_login", at).Error; err != nil {
		return storeError(err)
	}
	r.cache.InvalidateUser(ctx, id)
	return nil
}

// Delete removes the user together with their posts and likes in one transaction.
// Likes the user gave are subtracted from the liked posts, and approvals they
// recorded on other authors' posts are cleared.
func (r *userRepository) Delete(ctx context.Context, id uint) error {
	var postIDs []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Select("id").First(&user, id).Error; err != nil {
			return lookupError(err, "User", id)
		}

		if err := tx.Model(&models.Post{}).Where("author_id = ?", id).Pluck("id", &postIDs).Error; err != nil {
			return err
		}

		likedPosts := tx.Model(&models.Like{}).Select("post_id").Where("user_id = ?", id)
		if err := tx.Model(&models.Post{}).
			Where("id IN (?) AND like_count > 0", likedPosts).
			UpdateColumn("like_count", gorm.Expr("like_count - 1")).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		if len(postIDs) > 0 {
			if err := tx.Where("post_id IN ?", postIDs).Delete(&models.Like{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", postIDs).Delete(&models.Post{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&models.Post{}).Where("approved_by_id = ?", id).
			UpdateColumn("approved_by_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, id).Error
	})
	if err != nil {
		return storeError(err)
	}

	r.cache.InvalidateUser(ctx, id)
	r.cache.InvalidatePost(ctx, postIDs...)
	return nil
}

func (r *userRepository) List(ctx context.Context, filter UserFilter, page models.Page) ([]models.User, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.User{})
	if filter.Role != "" {
		q = q.Where("role = ?", filter.Role)
	}
	if filter.IsActive != nil {
		q = q.Where("is_active = ?", *filter.IsActive)
	}
	if s := strings.ToLower(strings.TrimSpace(filter.Search)); s != "" {
		like := "%" + s + "%"
		q = q.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?",
			like, like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	var users []models.User
	if err := q.Order("created_at DESC").Order("id DESC").
		Limit(page.Limit).Offset(page.Offset()).
		Find(&users).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return users, total, nil
}

func (r *userRepository) ListByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Where("role = ?", role).Order("id ASC").Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

type groupCount struct {
	Grp   string
	Count int64
}

// Stats aggregates the admin dashboard numbers.
func (r *userRepository) Stats(ctx context.Context) (*models.UserStats, error) {
	db := r.db.WithContext(ctx)
	stats := &models.UserStats{
		UsersByRole:   make(map[models.Role]int64, len(models.AllRoles())),
		PostsByStatus: make(map[models.PostStatus]int64, len(models.AllPostStatuses())),
		TopAuthors:    []models.AuthorStat{},
	}
	for _, role := range models.AllRoles() {
		stats.UsersByRole[role] = 0
	}
	for _, status := range models.AllPostStatuses() {
		stats.PostsByStatus[status] = 0
	}

	if err := db.Model(&models.User{}).Count(&stats.TotalUsers).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := db.Model(&models.User{}).Where("is_active = ?", true).Count(&stats.ActiveUsers).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	stats.InactiveUsers = stats.TotalUsers - stats.ActiveUsers

	var roles []groupCount
	if err := db.Model(&models.User{}).Select("role AS grp, COUNT(*) AS count").Group("role").Scan(&roles).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, row := range roles {
		stats.UsersByRole[models.Role(row.Grp)] = row.Count
	}

	var statuses []groupCount
	if err := db.Model(&models.Post{}).Select("status AS grp, COUNT(*) AS count").Group("status").Scan(&statuses).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, row := range statuses {
		stats.PostsByStatus[models.PostStatus(row.Grp)] = row.Count
	}

	if err := db.Table("users").
		Select("users.id AS user_id, users.username AS username, COUNT(posts.id) AS published_posts").
		Joins("JOIN posts ON posts.author_id = users.id").
		Where("posts.status = ?", models.PostStatusPublished).
		Group("users.id, users.username").
		Order("published_posts DESC").Order("users.id ASC").
		Limit(topAuthorsLimit).
		Scan(&stats.TopAuthors).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return stats, nil
}
