// Package seed creates demo data for development databases.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"quill/internal/models"
	"quill/internal/observability"

	"gorm.io/gorm"
)

// Options configure a seeding run.
type Options struct {
	NumUsers   int
	NumPosts   int
	Clean      bool
	MaxDays    int
	BcryptCost int
	// RandSeed makes runs reproducible when non-zero.
	RandSeed int64
}

// Result summarises what a run created.
type Result struct {
	Users      int
	Categories int
	Posts      map[models.PostStatus]int
	Likes      int
}

// statusWeights spreads seeded posts over the lifecycle; published dominates.
var statusWeights = []struct {
	status models.PostStatus
	weight int
}{
	{models.PostStatusPublished, 6},
	{models.PostStatusDraft, 1},
	{models.PostStatusPending, 1},
	{models.PostStatusRejected, 1},
	{models.PostStatusArchived, 1},
}

// Seed populates db with categories, users and posts in every status.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Result, error) {
	if opts.NumUsers < 1 {
		opts.NumUsers = 1
	}
	db = db.WithContext(ctx)
	log := observability.Logger

	if opts.Clean {
		if err := Clean(db); err != nil {
			return nil, fmt.Errorf("clean: %w", err)
		}
		log.Info("existing data cleared")
	}

	factory, err := NewFactory(db, opts)
	if err != nil {
		return nil, err
	}

	categories, err := Categories(db)
	if err != nil {
		return nil, fmt.Errorf("seed categories: %w", err)
	}

	admin, err := factory.CreateUser(models.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	moderator, err := factory.CreateUser(models.RoleModerator)
	if err != nil {
		return nil, fmt.Errorf("create moderator: %w", err)
	}

	authors := make([]*models.User, 0, opts.NumUsers)
	for i := 0; i < opts.NumUsers; i++ {
		user, err := factory.CreateUser(models.RoleUser)
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		authors = append(authors, user)
	}
	log.Info("users created", slog.Int("count", len(authors)+2))

	result := &Result{
		Users:      len(authors) + 2,
		Categories: len(categories),
		Posts:      make(map[models.PostStatus]int),
	}

	statuses := statusSequence(opts.NumPosts)
	for i, status := range statuses {
		author := authors[factory.rnd.Intn(len(authors))]
		category := &categories[factory.rnd.Intn(len(categories))]
		post, err := factory.CreatePost(author, admin, category, status)
		if err != nil {
			return nil, fmt.Errorf("create post %d: %w", i, err)
		}
		result.Posts[status]++

		if status != models.PostStatusPublished {
			continue
		}
		for _, fan := range []*models.User{admin, moderator} {
			if factory.rnd.Intn(2) == 0 {
				continue
			}
			if err := factory.CreateLike(fan, post); err != nil {
				return nil, fmt.Errorf("like post %d: %w", post.ID, err)
			}
			result.Likes++
		}
	}

	log.Info("database seeding completed",
		slog.Int("users", result.Users),
		slog.Int("categories", result.Categories),
		slog.Int("posts", len(statuses)),
		slog.Int("likes", result.Likes),
	)
	return result, nil
}

// statusSequence returns n statuses following statusWeights. Each cycle starts with one post
// per status, so any n >= len(statusWeights) covers the whole lifecycle.
func statusSequence(n int) []models.PostStatus {
	cycle := make([]models.PostStatus, 0, 10)
	for _, w := range statusWeights {
		cycle = append(cycle, w.status)
	}
	for _, w := range statusWeights {
		for i := 1; i < w.weight; i++ {
			cycle = append(cycle, w.status)
		}
	}

	out := make([]models.PostStatus, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, cycle[i%len(cycle)])
	}
	return out
}

// Clean deletes every row created by Seed, children first.
func Clean(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{&models.Like{}, &models.Post{}, &models.Category{}, &models.User{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
