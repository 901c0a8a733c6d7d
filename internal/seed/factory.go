package seed

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"quill/internal/auth"
	"quill/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// DefaultPassword is assigned to every seeded account.
const DefaultPassword = "Passw0rd!"

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db       *gorm.DB
	faker    *gofakeit.Faker
	rnd      *rand.Rand
	maxDays  int
	password string
}

// NewFactory creates a Factory bound to db. A zero seed picks a random one.
func NewFactory(db *gorm.DB, opts Options) (*Factory, error) {
	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	maxDays := opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}

	hash, err := auth.NewHasher(opts.BcryptCost).Hash(DefaultPassword)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}

	return &Factory{
		db:    db,
		faker: gofakeit.New(seed),
		// #nosec G404: acceptable for seeding
		rnd:      rand.New(rand.NewSource(seed)),
		maxDays:  maxDays,
		password: hash,
	}, nil
}

// BuildUser constructs an active user without persisting it.
func (f *Factory) BuildUser(role models.Role, overrides ...func(*models.User)) *models.User {
	first, last := f.faker.FirstName(), f.faker.LastName()
	username := strings.ToLower(first + "_" + last)
	username = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return -1
	}, username)
	if len(username) > 24 {
		username = username[:24]
	}
	username = fmt.Sprintf("%s%d", username, f.faker.Number(100, 999))

	user := &models.User{
		Username:  username,
		Email:     username + "@example.com",
		Password:  f.password,
		Role:      role,
		IsActive:  true,
		FirstName: first,
		LastName:  last,
		Bio:       f.faker.Sentence(10),
		Avatar:    fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.faker.UUID()),
	}
	for _, override := range overrides {
		override(user)
	}
	return user
}

// CreateUser persists a user built by BuildUser.
func (f *Factory) CreateUser(role models.Role, overrides ...func(*models.User)) (*models.User, error) {
	user := f.BuildUser(role, overrides...)
	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BuildPost constructs a post in status, walking the lifecycle methods so every
// workflow column is consistent with the status. reviewer is used for approval and rejection.
func (f *Factory) BuildPost(author, reviewer *models.User, category *models.Category, status models.PostStatus) (*models.Post, error) {
	title := strings.TrimSuffix(f.faker.Sentence(f.rnd.Intn(5)+3), ".")
	content := f.faker.Paragraph(f.rnd.Intn(3)+2, 4, 12, "\n\n")
	tags := make([]string, 0, 3)
	for i := f.rnd.Intn(4); i > 0; i-- {
		tags = append(tags, f.faker.BuzzWord())
	}

	post := &models.Post{
		Title:       title,
		Content:     content,
		Excerpt:     models.DeriveExcerpt(content),
		Slug:        models.UniqueSlug(title),
		AuthorID:    author.ID,
		CategoryID:  category.ID,
		Tags:        models.NormalizeTags(tags),
		Status:      models.PostStatusDraft,
		ReadingTime: models.ReadingTime(content),
		CreatedAt:   f.createdAt(),
	}

	if status == models.PostStatusDraft {
		return post, nil
	}
	if err := post.SubmitForApproval(); err != nil {
		return nil, err
	}
	switch status {
	case models.PostStatusPending:
	case models.PostStatusPublished, models.PostStatusArchived:
		if err := post.Approve(reviewer.ID); err != nil {
			return nil, err
		}
		post.ViewCount = int64(f.rnd.Intn(500))
		if status == models.PostStatusArchived {
			if err := post.Archive(); err != nil {
				return nil, err
			}
		}
	case models.PostStatusRejected:
		reason := "Needs more detail on " + strings.ToLower(f.faker.HipsterWord()) + " before it can go out."
		if err := post.Reject(reviewer.ID, reason); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown post status %q", status)
	}
	return post, nil
}

// CreatePost persists a post built by BuildPost.
func (f *Factory) CreatePost(author, reviewer *models.User, category *models.Category, status models.PostStatus) (*models.Post, error) {
	post, err := f.BuildPost(author, reviewer, category, status)
	if err != nil {
		return nil, err
	}
	if err := f.db.Create(post).Error; err != nil {
		return nil, err
	}
	return post, nil
}

// CreateLike records user liking post and bumps the counter.
func (f *Factory) CreateLike(user *models.User, post *models.Post) error {
	return f.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.Like{UserID: user.ID, PostID: post.ID}).Error; err != nil {
			return err
		}
		post.LikeCount++
		return tx.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error
	})
}

func (f *Factory) createdAt() time.Time {
	back := time.Duration(f.rnd.Intn(f.maxDays))*24*time.Hour +
		time.Duration(f.rnd.Intn(24))*time.Hour +
		time.Duration(f.rnd.Intn(60))*time.Minute
	return time.Now().UTC().Add(-back)
}
