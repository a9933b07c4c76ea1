// Package migration provides a batch-tracked database migration runner.
//
// Usage (in database/migrations/*.go):
//
//	func init() {
//	    migration.Register("20240101000000_create_orders_table", &CreateOrdersTable{})
//	}
//
// Run from the CLI:
//
//	vastra migrate             // run all pending
//	vastra migrate:rollback    // rollback last batch
//	vastra migrate:status      // show status
package migration

import (
	"fmt"
	"time"

	"github.com/shashiranjanraj/vastra/pkg/logger"
	"gorm.io/gorm"
)

// Migration is the interface every migration must implement.
type Migration interface {
	Up(db *gorm.DB) error
	Down(db *gorm.DB) error
}

// migrationRecord is the GORM model stored in the tracking table.
type migrationRecord struct {
	ID    uint      `gorm:"primaryKey;autoIncrement"`
	Name  string    `gorm:"uniqueIndex;size:255;not null"`
	Batch int       `gorm:"not null"`
	RunAt time.Time `gorm:"autoCreateTime"`
}

func (migrationRecord) TableName() string { return "vastra_migrations" }

type registeredMigration struct {
	name string
	m    Migration
}

var registry []registeredMigration

// Register adds a migration to the global registry. Call from an init() in
// each migration file; names should be timestamp-prefixed so registration
// order matches chronological order.
func Register(name string, m Migration) {
	registry = append(registry, registeredMigration{name: name, m: m})
}

// Runner executes and tracks migrations.
type Runner struct {
	db *gorm.DB
}

// New creates a Runner backed by the provided gorm.DB.
func New(db *gorm.DB) *Runner {
	return &Runner{db: db}
}

func (r *Runner) ensureTable() error {
	return r.db.AutoMigrate(&migrationRecord{})
}

// Run applies every registered migration that has not run yet, as one batch.
func (r *Runner) Run() error {
	if err := r.ensureTable(); err != nil {
		return fmt.Errorf("migration: ensure table: %w", err)
	}

	applied, err := r.appliedNames()
	if err != nil {
		return err
	}

	batch, err := r.nextBatch()
	if err != nil {
		return err
	}

	ran := 0
	for _, reg := range registry {
		if applied[reg.name] {
			continue
		}

		err := r.db.Transaction(func(tx *gorm.DB) error {
			if err := reg.m.Up(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: reg.name, Batch: batch}).Error
		})
		if err != nil {
			return fmt.Errorf("migration: %s: %w", reg.name, err)
		}

		logger.Info("migrated", "name", reg.name, "batch", batch)
		ran++
	}

	if ran == 0 {
		logger.Info("nothing to migrate")
	}
	return nil
}

// Rollback reverses the most recent batch, newest migration first.
func (r *Runner) Rollback() error {
	if err := r.ensureTable(); err != nil {
		return fmt.Errorf("migration: ensure table: %w", err)
	}

	var last int
	if err := r.db.Model(&migrationRecord{}).Select("COALESCE(MAX(batch), 0)").Scan(&last).Error; err != nil {
		return fmt.Errorf("migration: last batch: %w", err)
	}
	if last == 0 {
		logger.Info("nothing to rollback")
		return nil
	}

	var records []migrationRecord
	if err := r.db.Where("batch = ?", last).Order("id DESC").Find(&records).Error; err != nil {
		return fmt.Errorf("migration: load batch: %w", err)
	}

	byName := make(map[string]Migration, len(registry))
	for _, reg := range registry {
		byName[reg.name] = reg.m
	}

	for _, rec := range records {
		m, ok := byName[rec.Name]
		if !ok {
			return fmt.Errorf("migration: %s is recorded but not registered", rec.Name)
		}

		err := r.db.Transaction(func(tx *gorm.DB) error {
			if err := m.Down(tx); err != nil {
				return err
			}
			return tx.Delete(&migrationRecord{}, rec.ID).Error
		})
		if err != nil {
			return fmt.Errorf("migration: rollback %s: %w", rec.Name, err)
		}

		logger.Info("rolled back", "name", rec.Name)
	}
	return nil
}

// Status prints one line per registered migration.
func (r *Runner) Status() error {
	if err := r.ensureTable(); err != nil {
		return fmt.Errorf("migration: ensure table: %w", err)
	}

	applied, err := r.appliedNames()
	if err != nil {
		return err
	}

	for _, reg := range registry {
		state := "pending"
		if applied[reg.name] {
			state = "applied"
		}
		fmt.Printf("%-8s  %s\n", state, reg.name)
	}
	return nil
}

func (r *Runner) appliedNames() (map[string]bool, error) {
	var records []migrationRecord
	if err := r.db.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("migration: load records: %w", err)
	}

	applied := make(map[string]bool, len(records))
	for _, rec := range records {
		applied[rec.Name] = true
	}
	return applied, nil
}

func (r *Runner) nextBatch() (int, error) {
	var last int
	if err := r.db.Model(&migrationRecord{}).Select("COALESCE(MAX(batch), 0)").Scan(&last).Error; err != nil {
		return 0, fmt.Errorf("migration: next batch: %w", err)
	}
	return last + 1, nil
}
