// Package migration is a minimal ordered-migration registry: individual
// migration files call Register from their init() function, and Run
// applies every registered migration in name order inside its own
// transaction, recording completion in a migrations table so re-running
// Run is a no-op for anything already applied.
package migration

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
)

func nowUnix() int64 { return time.Now().Unix() }

// Func is a single migration step. It receives the raw *gorm.DB (already
// inside a transaction when invoked via Run) and returns an error to
// abort and roll back that migration.
type Func func(db *gorm.DB) error

var (
	mu         sync.Mutex
	registered = map[string]Func{}
)

// Register adds a named migration. It is an error to register the same
// name twice, which catches copy-paste mistakes at init time rather than
// silently shadowing a migration.
func Register(name string, fn Func) error {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registered[name]; exists {
		return fmt.Errorf("migration: %q already registered", name)
	}
	registered[name] = fn
	return nil
}

// record is the bookkeeping row Run uses to track which migrations have
// already applied.
type record struct {
	Name      string `gorm:"primaryKey"`
	AppliedAt int64
}

func (record) TableName() string { return "schema_migrations" }

// Run applies every registered migration, in ascending name order, that
// is not yet recorded as applied. Each migration runs in its own
// transaction; a failure aborts that migration and Run returns the error
// without attempting subsequent migrations.
func Run(db *gorm.DB) error {
	if err := db.AutoMigrate(&record{}); err != nil {
		return fmt.Errorf("migration: bootstrap schema_migrations: %w", err)
	}

	mu.Lock()
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	mu.Unlock()
	sort.Strings(names)

	for _, name := range names {
		var count int64
		if err := db.Model(&record{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return fmt.Errorf("migration: check %q: %w", name, err)
		}
		if count > 0 {
			continue
		}

		fn := registered[name]
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Create(&record{Name: name, AppliedAt: nowUnix()}).Error
		})
		if err != nil {
			return fmt.Errorf("migration: apply %q: %w", name, err)
		}
		log.Printf("migration: applied %q", name)
	}
	return nil
}
