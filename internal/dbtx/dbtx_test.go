package dbtx

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type record struct {
	ID   string `gorm:"primaryKey"`
	Name string
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "dbtx.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&record{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestRunRollsBackEveryParticipant(t *testing.T) {
	db := openTestDatabase(t)
	failure := errors.New("second step failed")

	err := Run(context.Background(), db, func(ctx context.Context) error {
		if err := From(ctx, db).Create(&record{ID: "a", Name: "first"}).Error; err != nil {
			return err
		}
		return Run(ctx, db, func(inner context.Context) error {
			if err := From(inner, db).Create(&record{ID: "b", Name: "second"}).Error; err != nil {
				return err
			}
			return failure
		})
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected step failure, got %v", err)
	}

	var count int64
	if err := db.Model(&record{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected nothing committed, found %d rows", count)
	}
}

func TestFromWithoutTransactionUsesDatabase(t *testing.T) {
	db := openTestDatabase(t)
	if err := From(context.Background(), db).Create(&record{ID: "a"}).Error; err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	var count int64
	db.Model(&record{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected committed row, found %d", count)
	}
}
