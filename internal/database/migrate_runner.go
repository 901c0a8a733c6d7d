package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"quill/internal/observability"

	"gorm.io/gorm"
)

const migrationLogTableSQL = `CREATE TABLE IF NOT EXISTS migration_logs (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const insertMigrationLogSQL = `INSERT INTO migration_logs (version, name, applied_at) VALUES (?, ?, ?)`

// MigrationLog is a row of the applied-migrations ledger.
type MigrationLog struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

// TableName returns the database table name for MigrationLog.
func (MigrationLog) TableName() string {
	return "migration_logs"
}

// Migrator applies and reverts a fixed set of migrations against one database.
type Migrator struct {
	db         *gorm.DB
	migrations []Migration
}

// NewMigrator creates a Migrator over the given migrations.
func NewMigrator(db *gorm.DB, set []Migration) *Migrator {
	return &Migrator{db: db, migrations: set}
}

// AppliedVersions lists recorded versions. A missing ledger table means nothing was applied.
func (m *Migrator) AppliedVersions(ctx context.Context) ([]int, error) {
	var versions []int
	err := m.db.WithContext(ctx).Model(&MigrationLog{}).Order("version ASC").Pluck("version", &versions).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || isMissingTableError(err) {
			return []int{}, nil
		}
		return nil, fmt.Errorf("get applied migrations: %w", err)
	}
	return versions, nil
}

func isMissingTableError(err error) bool {
	msg := strings.ToLower(err.Error())
	return (strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist")) ||
		strings.Contains(msg, "no such table")
}

// Pending returns the migrations not yet recorded in the ledger.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := m.AppliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}
	var pending []Migration
	for _, mig := range m.migrations {
		if !done[mig.Version] {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// Up creates the ledger if needed and applies every pending migration, each in its own transaction.
func (m *Migrator) Up(ctx context.Context) ([]int, error) {
	if err := m.db.WithContext(ctx).Exec(migrationLogTableSQL).Error; err != nil {
		return nil, fmt.Errorf("ensure migration_logs table: %w", err)
	}

	applied, err := m.AppliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateAppliedVersions(applied, m.migrations); err != nil {
		return nil, err
	}

	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	var ran []int
	for _, mig := range m.migrations {
		if done[mig.Version] {
			continue
		}
		observability.Logger.Info("Applying migration", slog.Int("version", mig.Version), slog.String("name", mig.Name))
		if err := m.apply(ctx, mig); err != nil {
			return ran, err
		}
		ran = append(ran, mig.Version)
	}
	return ran, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(mig.UpScript).Error; err != nil {
			return fmt.Errorf("apply migration %s: %w", mig.String(), err)
		}
		if err := tx.Exec(insertMigrationLogSQL, mig.Version, mig.Name, time.Now().UTC()).Error; err != nil {
			return fmt.Errorf("record migration %s: %w", mig.String(), err)
		}
		return nil
	})
}

// Down reverts one applied migration and removes its ledger row.
func (m *Migrator) Down(ctx context.Context, version int) error {
	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == version {
			target = &m.migrations[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("migration version %d not found", version)
	}

	applied, err := m.AppliedVersions(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, v := range applied {
		if v == version {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("migration %d has not been applied", version)
	}

	observability.Logger.Info("Rolling back migration", slog.Int("version", version), slog.String("name", target.Name))
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(target.DownScript).Error; err != nil {
			return fmt.Errorf("rollback migration %s: %w", target.String(), err)
		}
		if err := tx.Exec("DELETE FROM migration_logs WHERE version = ?", version).Error; err != nil {
			return fmt.Errorf("remove migration record %d: %w", version, err)
		}
		return nil
	})
}

func validateAppliedVersions(applied []int, registered []Migration) error {
	known := make(map[int]struct{}, len(registered))
	for _, m := range registered {
		known[m.Version] = struct{}{}
	}

	var unknown []int
	for _, version := range applied {
		if _, ok := known[version]; !ok {
			unknown = append(unknown, version)
		}
	}
	if len(unknown) == 0 {
		return nil
	}

	sort.Ints(unknown)
	parts := make([]string, 0, len(unknown))
	for _, version := range unknown {
		parts = append(parts, fmt.Sprintf("%06d", version))
	}
	return fmt.Errorf("migration_logs contains versions unknown to this build: %s", strings.Join(parts, ", "))
}

// RunMigrations applies every pending embedded migration.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	ran, err := NewMigrator(db, GetMigrations()).Up(ctx)
	if err != nil {
		return err
	}
	if len(ran) > 0 {
		observability.Logger.Info("Migrations applied", slog.Any("versions", ran))
	}
	return nil
}

// RollbackMigration reverts a single embedded migration by version.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	return NewMigrator(db, GetMigrations()).Down(ctx, version)
}
