package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/sundae/internal/accounts"
	"github.com/MarcoPoloResearchLab/sundae/internal/analytics"
	"github.com/MarcoPoloResearchLab/sundae/internal/blocks"
	"github.com/MarcoPoloResearchLab/sundae/internal/leads"
	"github.com/MarcoPoloResearchLab/sundae/internal/profiles"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and locates the relational store.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Models lists every table the service owns, in creation order.
func Models() []any {
	return []any{
		&accounts.User{},
		&accounts.Identity{},
		&accounts.Workspace{},
		&accounts.WorkspaceMember{},
		&profiles.Profile{},
		&blocks.Block{},
		&leads.Lead{},
		&analytics.Event{},
		&migrationRecord{},
	}
}

// Open connects to the configured database without touching the schema.
func Open(options Options) (*gorm.DB, error) {
	gormConfig := &gorm.Config{TranslateError: true}
	switch strings.ToLower(strings.TrimSpace(options.Driver)) {
	case "", DriverSQLite:
		if strings.TrimSpace(options.Path) == "" {
			return nil, fmt.Errorf("database path is required")
		}
		db, err := gorm.Open(sqlite.Open(options.Path), gormConfig)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	case DriverPostgres:
		if strings.TrimSpace(options.DSN) == "" {
			return nil, fmt.Errorf("database dsn is required")
		}
		return gorm.Open(postgres.Open(options.DSN), gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", options.Driver)
	}
}

// Migrate creates or updates the schema and applies pending data migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}

// OpenAndMigrate is Open followed by Migrate.
func OpenAndMigrate(options Options, logger *zap.Logger) (*gorm.DB, error) {
	db, err := Open(options)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, logger); err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("database initialized", zap.String("driver", driverName(options.Driver)))
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func driverName(driver string) string {
	if strings.TrimSpace(driver) == "" {
		return DriverSQLite
	}
	return strings.ToLower(strings.TrimSpace(driver))
}
