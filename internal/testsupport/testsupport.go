// Package testsupport provides the in-memory database fixture and
// randomized-data generators shared by every package's tests that need a
// real gorm.DB: a pure-Go SQLite backend via glebarez/sqlite stands in
// for Postgres so the transaction engine's SQL runs against something
// real without requiring a running database server.
package testsupport

import (
	"fmt"

	"github.com/brianvoe/gofakeit"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/socialpredict/lmsrcore/models"
)

// NewTestDB opens a fresh in-memory SQLite database migrated with every
// core table. Each call gets an isolated database: callers never need to
// clean up between tests.
func NewTestDB() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("testsupport: open: %w", err)
	}
	if err := db.AutoMigrate(
		&models.UserAccount{},
		&models.Event{},
		&models.UserPosition{},
		&models.MarketUpdate{},
		&models.AgentFollow{},
	); err != nil {
		return nil, fmt.Errorf("testsupport: migrate: %w", err)
	}
	return db, nil
}

// SeedUser inserts a randomized user account with the given balance (in
// ledger units) and returns it. Username is generated with gofakeit so
// parallel tests never collide on the unique index.
func SeedUser(db *gorm.DB, balanceLedger int64) (*models.UserAccount, error) {
	user := &models.UserAccount{
		Username:       fmt.Sprintf("%s-%d", gofakeit.Username(), gofakeit.Number(1, 1_000_000)),
		BalanceLedger:  balanceLedger,
		InitialDeposit: balanceLedger,
	}
	if err := db.Create(user).Error; err != nil {
		return nil, fmt.Errorf("testsupport: seed user: %w", err)
	}
	return user, nil
}

// SeedEvent inserts an open event with liquidity parameter b and returns
// it, with q_yes = q_no = 0 and market_prob = 0.5.
func SeedEvent(db *gorm.DB, b float64) (*models.Event, error) {
	event := models.NewEvent(gofakeit.Sentence(6), gofakeit.Paragraph(1, 3, 10, " "), b, gofakeit.Date())
	if err := db.Create(&event).Error; err != nil {
		return nil, fmt.Errorf("testsupport: seed event: %w", err)
	}
	return &event, nil
}
