package migrations

import (
	"log"

	"gorm.io/gorm"

	"github.com/socialpredict/lmsrcore/migration"
	"github.com/socialpredict/lmsrcore/models"
)

func init() {
	if err := migration.Register("20260731_core_schema", Migration20260731CoreSchema); err != nil {
		log.Fatalf("failed to register migration 20260731_core_schema: %v", err)
	}
}

// Migration20260731CoreSchema creates the five core tables: the four the
// transaction engine depends on (user accounts, events, positions, and the
// append-only trade audit log) plus the social follow graph.
func Migration20260731CoreSchema(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.UserAccount{},
		&models.Event{},
		&models.UserPosition{},
		&models.MarketUpdate{},
		&models.AgentFollow{},
	)
}
