package db

import (
	"parlay/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Purchase{},
		&models.LegOutcome{},
		&models.HedgeOrder{},
		&models.WalletEntry{},
	)
}
