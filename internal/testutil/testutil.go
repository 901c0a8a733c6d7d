// Package testutil provides shared database, cache and fixture helpers for tests.
package testutil

import (
	"testing"

	"quill/internal/auth"
	"quill/internal/cache"
	"quill/internal/database"
	"quill/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultPassword satisfies every password strength rule.
const DefaultPassword = "Sup3r$ecret"

// Hasher is a low-cost bcrypt hasher so fixtures stay fast.
var Hasher = auth.NewHasher(bcrypt.MinCost)

// NewTestDB opens a private in-memory SQLite database with the full schema.
// A single connection keeps transactions and the shared cache consistent.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

// NewTestRedis starts a miniredis server and returns a client connected to it.
func NewTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// NewTestStore returns a cache.Store backed by miniredis.
func NewTestStore(t testing.TB) (*cache.Store, *miniredis.Miniredis) {
	t.Helper()

	mr, client := NewTestRedis(t)
	return cache.NewStore(client), mr
}

// CreateUser inserts an active user with DefaultPassword.
func CreateUser(t testing.TB, db *gorm.DB, username string, role models.Role) *models.User {
	t.Helper()

	hash, err := Hasher.Hash(DefaultPassword)
	require.NoError(t, err)

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: hash,
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateCategory inserts an active category.
func CreateCategory(t testing.TB, db *gorm.DB, name string) *models.Category {
	t.Helper()

	category := &models.Category{Name: name, Slug: models.Slugify(name), IsActive: true}
	require.NoError(t, db.Create(category).Error)
	return category
}

// CreatePost inserts a post by author in category and forces it into status.
func CreatePost(t testing.TB, db *gorm.DB, author *models.User, category *models.Category, title string, status models.PostStatus) *models.Post {
	t.Helper()

	content := "Body text for " + title + " with enough words to count."
	post := &models.Post{
		Title:       title,
		Content:     content,
		Excerpt:     models.DeriveExcerpt(content),
		Slug:        models.UniqueSlug(title),
		AuthorID:    author.ID,
		CategoryID:  category.ID,
		Tags:        []string{},
		Status:      models.PostStatusDraft,
		ReadingTime: models.ReadingTime(content),
	}
	require.NoError(t, db.Create(post).Error)

	if status == models.PostStatusDraft {
		return post
	}
	require.NoError(t, post.SubmitForApproval())
	switch status {
	case models.PostStatusPublished:
		require.NoError(t, post.Approve(author.ID))
	case models.PostStatusRejected:
		require.NoError(t, post.Reject(author.ID, "Needs more detail on X"))
	case models.PostStatusArchived:
		require.NoError(t, post.Approve(author.ID))
		require.NoError(t, post.Archive())
	}
	require.NoError(t, db.Model(post).Updates(post.LifecycleColumns()).Error)
	return post
}
