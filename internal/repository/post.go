package repository

import (
	"context"
	"errors"
	"strings"

	"quill/internal/cache"
	"quill/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// likeEscaper makes user input match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Sort options accepted by PostFilter.SortBy, mapped to columns.
var postSortColumns = map[string]string{
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
	"publishedAt": "published_at",
	"title":       "title",
	"viewCount":   "view_count",
	"likeCount":   "like_count",
}

// ValidPostSort reports whether sortBy names a sortable post field.
func ValidPostSort(sortBy string) bool {
	_, ok := postSortColumns[sortBy]
	return ok
}

// PostFilter narrows post listings. Filters combine with AND; zero values are ignored.
type PostFilter struct {
	Status         models.PostStatus
	AuthorID       uint
	AuthorUsername string
	CategoryID     uint
	CategorySlug   string
	Tag            string
	Search         string
	SortBy         string
	SortOrder      string
}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, filter PostFilter, page models.Page) ([]models.Post, int64, error)
	ListPending(ctx context.Context, page models.Page) ([]models.Post, int64, error)
	Transition(ctx context.Context, id uint, apply func(*models.Post) error) (*models.Post, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	CountByCategory(ctx context.Context, categoryID uint) (int64, error)
	IncrementViewCount(ctx context.Context, id uint) error
	ToggleLike(ctx context.Context, userID, postID uint) (bool, int64, error)
	LikedPostIDs(ctx context.Context, userID uint, postIDs []uint) (map[uint]bool, error)
}

// postRepository implements PostRepository
type postRepository struct {
	db    *gorm.DB
	cache *cache.Store
}

// NewPostRepository creates a new post repository. store may be nil.
func NewPostRepository(db *gorm.DB, store *cache.Store) PostRepository {
	return &postRepository{db: db, cache: store}
}

func withRelations(db *gorm.DB) *gorm.DB {
	return db.Preload("Author").Preload("Category")
}

// Create inserts the post and loads its author and category.
func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error; err != nil {
		return storeError(err)
	}
	if err := withRelations(r.db.WithContext(ctx)).First(post, post.ID).Error; err != nil {
		return storeError(err)
	}
	return nil
}

// GetByID returns the post with author and category through the cache.
// View count increments do not invalidate the entry, so cached counts may lag by PostTTL.
func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := r.cache.Aside(ctx, cache.PostKey(id), &post, cache.PostTTL, func() error {
		if err := withRelations(r.db.WithContext(ctx)).First(&post, id).Error; err != nil {
			return lookupError(err, "Post", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// Update saves editable content fields. Lifecycle columns change only through Transition.
func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	err := r.db.WithContext(ctx).Model(post).
		Select("title", "content", "excerpt", "slug", "category_id", "tags", "reading_time", "updated_at").
		Omit(clause.Associations).
		Updates(post).Error
	if err != nil {
		return storeError(err)
	}
	r.cache.InvalidatePost(ctx, post.ID)

	if err := withRelations(r.db.WithContext(ctx)).First(post, post.ID).Error; err != nil {
		return lookupError(err, "Post", post.ID)
	}
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Post{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Post", id)
		}
		return nil
	})
	if err != nil {
		return storeError(err)
	}
	r.cache.InvalidatePost(ctx, id)
	return nil
}

func (r *postRepository) List(ctx context.Context, filter PostFilter, page models.Page) ([]models.Post, int64, error) {
	q := applyPostFilter(r.db.WithContext(ctx).Model(&models.Post{}), filter)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	posts := []models.Post{}
	if err := withRelations(applyPostSort(q, filter)).
		Limit(page.Limit).Offset(page.Offset()).
		Find(&posts).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return posts, total, nil
}

// ListPending returns the approval queue, oldest submission first.
func (r *postRepository) ListPending(ctx context.Context, page models.Page) ([]models.Post, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Post{}).Where("posts.status = ?", models.PostStatusPending)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}

	posts := []models.Post{}
	if err := withRelations(q).
		Order("posts.submitted_at ASC").Order("posts.id ASC").
		Limit(page.Limit).Offset(page.Offset()).
		Find(&posts).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return posts, total, nil
}

func applyPostFilter(q *gorm.DB, f PostFilter) *gorm.DB {
	if f.Status != "" {
		q = q.Where("posts.status = ?", f.Status)
	}
	if f.AuthorID != 0 {
		q = q.Where("posts.author_id = ?", f.AuthorID)
	}
	if f.AuthorUsername != "" {
		q = q.Where("posts.author_id IN (?)", q.Session(&gorm.Session{NewDB: true}).
			Model(&models.User{}).Select("id").Where("username = ?", f.AuthorUsername))
	}
	if f.CategoryID != 0 {
		q = q.Where("posts.category_id = ?", f.CategoryID)
	}
	if f.CategorySlug != "" {
		q = q.Where("posts.category_id IN (?)", q.Session(&gorm.Session{NewDB: true}).
			Model(&models.Category{}).Select("id").Where("slug = ?", f.CategorySlug))
	}
	if tag := strings.ToLower(strings.TrimSpace(f.Tag)); tag != "" {
		// tags is a JSON array of strings; match the quoted element.
		q = q.Where(`posts.tags LIKE ? ESCAPE '\'`, `%"`+likeEscaper.Replace(tag)+`"%`)
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		like := "%" + likeEscaper.Replace(s) + "%"
		q = q.Where(`(LOWER(posts.title) LIKE ? ESCAPE '\' OR LOWER(posts.content) LIKE ? ESCAPE '\' OR LOWER(posts.excerpt) LIKE ? ESCAPE '\')`, like, like, like)
	}
	return q
}

func applyPostSort(q *gorm.DB, f PostFilter) *gorm.DB {
	column, ok := postSortColumns[f.SortBy]
	if !ok {
		column = "created_at"
	}
	desc := !strings.EqualFold(f.SortOrder, "asc")
	return q.
		Order(clause.OrderByColumn{Column: clause.Column{Table: "posts", Name: column}, Desc: desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Table: "posts", Name: "id"}, Desc: desc})
}

// Transition applies a lifecycle change atomically. The row is re-read under a
// row lock, apply mutates it (and may refuse), and the write is a compare-and-set
// on the status that was read. Losing the race yields models.ErrStaleTransition.
func (r *postRepository) Transition(ctx context.Context, id uint, apply func(*models.Post) error) (*models.Post, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&post, id).Error; err != nil {
			return lookupError(err, "Post", id)
		}

		from := post.Status
		if err := apply(&post); err != nil {
			return err
		}

		res := tx.Model(&models.Post{}).
			Where("id = ? AND status = ?", id, from).
			Updates(post.LifecycleColumns())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrStaleTransition
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) ||
			errors.Is(err, models.ErrStaleTransition) ||
			errors.Is(err, models.ErrInvalidRejectionReason) {
			return nil, err
		}
		return nil, storeError(err)
	}

	r.cache.InvalidatePost(ctx, id)

	var updated models.Post
	if err := withRelations(r.db.WithContext(ctx)).First(&updated, id).Error; err != nil {
		return nil, lookupError(err, "Post", id)
	}
	return &updated, nil
}

func (r *postRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *postRepository) CountByCategory(ctx context.Context, categoryID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Where("category_id = ?", categoryID).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

// IncrementViewCount bumps the counter without touching updated_at.
func (r *postRepository) IncrementViewCount(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1)).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ToggleLike flips the caller's like on a published post and returns the new state and count.
func (r *postRepository) ToggleLike(ctx context.Context, userID, postID uint) (bool, int64, error) {
	var (
		liked bool
		count int64
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.Select("id", "status").First(&post, postID).Error; err != nil {
			return lookupError(err, "Post", postID)
		}
		if post.Status != models.PostStatusPublished {
			return models.NewValidationError("Only published posts can be liked")
		}

		res := tx.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.Like{})
		if res.Error != nil {
			return res.Error
		}

		delta := gorm.Expr("CASE WHEN like_count > 0 THEN like_count - 1 ELSE 0 END")
		changed := res.RowsAffected > 0
		if !changed {
			like := models.Like{UserID: userID, PostID: postID}
			created := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like)
			if created.Error != nil {
				return created.Error
			}
			liked = true
			// Zero rows means a concurrent request inserted the like and counted it.
			changed = created.RowsAffected > 0
			delta = gorm.Expr("like_count + ?", 1)
		}

		if changed {
			if err := tx.Model(&models.Post{}).Where("id = ?", postID).UpdateColumn("like_count", delta).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.Post{}).Where("id = ?", postID).Select("like_count").Scan(&count).Error
	})
	if err != nil {
		return false, 0, storeError(err)
	}
	r.cache.InvalidatePost(ctx, postID)
	return liked, count, nil
}

func (r *postRepository) LikedPostIDs(ctx context.Context, userID uint, postIDs []uint) (map[uint]bool, error) {
	liked := make(map[uint]bool, len(postIDs))
	if userID == 0 || len(postIDs) == 0 {
		return liked, nil
	}
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.Like{}).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Pluck("post_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, id := range ids {
		liked[id] = true
	}
	return liked, nil
}
