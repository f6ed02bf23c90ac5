package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/sundae/internal/blocks"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationLowercaseHandles  = "2025-01-20_lowercase_profile_handles"
	migrationBackfillBlockData = "2025-02-11_backfill_empty_block_data"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationLowercaseHandles, apply: lowercaseProfileHandles},
		{name: migrationBackfillBlockData, apply: backfillEmptyBlockData},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		}); err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// lowercaseProfileHandles folds handles created before lookups were case-insensitive.
func lowercaseProfileHandles(db *gorm.DB) error {
	return db.Exec("UPDATE creator_profiles SET handle = LOWER(handle) WHERE handle <> LOWER(handle)").Error
}

// backfillEmptyBlockData gives blocks without a payload their type's default.
func backfillEmptyBlockData(db *gorm.DB) error {
	for _, blockType := range blocks.Types() {
		encoded, err := blocks.EncodeData(blocks.DefaultData(blockType))
		if err != nil {
			return err
		}
		if err := db.Model(&blocks.Block{}).
			Where("type = ? AND (data IS NULL OR CAST(data AS TEXT) = '' OR CAST(data AS TEXT) = 'null')", blockType).
			Update("data", encoded).Error; err != nil {
			return err
		}
	}
	return nil
}
