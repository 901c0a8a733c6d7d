// Package bootstrap wires the database and cache for commands that run outside the HTTP server.
package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"quill/internal/auth"
	"quill/internal/cache"
	"quill/internal/config"
	"quill/internal/database"
	"quill/internal/models"
	"quill/internal/observability"
	"quill/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Default development admin identity.
const (
	DefaultAdminUsername = "quill_admin"
	DefaultAdminEmail    = "admin@quill.local"
)

// Options control runtime initialization behavior.
type Options struct {
	SeedCategories bool
}

// InitRuntime connects to DB and Redis, bootstraps the development admin and
// optionally seeds the default categories. The Redis client is nil when unreachable.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	rdb := cache.GetClient()

	if err := EnsureDevAdmin(cfg, db); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap development admin: %w", err)
	}

	if opts.SeedCategories {
		if _, err := seed.Categories(db); err != nil {
			return nil, nil, fmt.Errorf("failed to seed default categories: %w", err)
		}
	}

	return db, rdb, nil
}

// EnsureDevAdmin creates or promotes the configured admin account. It only acts when
// APP_ENV is development and DEV_BOOTSTRAP_ADMIN is set.
func EnsureDevAdmin(cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") || !cfg.DevBootstrapAdmin {
		return nil
	}

	username := strings.TrimSpace(cfg.DevAdminUsername)
	if username == "" {
		username = DefaultAdminUsername
	}
	email := strings.ToLower(strings.TrimSpace(cfg.DevAdminEmail))
	if email == "" {
		email = DefaultAdminEmail
	}
	if cfg.DevAdminPassword == "" {
		return errors.New("DEV_ADMIN_PASSWORD must be set when DEV_BOOTSTRAP_ADMIN is enabled")
	}

	hash, err := auth.NewHasher(cfg.BcryptCost).Hash(cfg.DevAdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	created := false
	err = db.Transaction(func(tx *gorm.DB) error {
		var admin models.User
		findErr := tx.Where("email = ?", email).First(&admin).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			created = true
			return tx.Create(&models.User{
				Username: username,
				Email:    email,
				Password: hash,
				Role:     models.RoleAdmin,
				IsActive: true,
			}).Error
		case findErr != nil:
			return findErr
		default:
			return tx.Model(&admin).Updates(map[string]interface{}{
				"role":      models.RoleAdmin,
				"is_active": true,
			}).Error
		}
	})
	if err != nil {
		return err
	}

	observability.Logger.Info("development admin ensured",
		slog.String("email", email),
		slog.Bool("created", created),
	)
	return nil
}
