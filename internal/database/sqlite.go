package database

import (
	stdlog "log"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/codyseavey/mythicstats/internal/logging"
	"github.com/codyseavey/mythicstats/internal/models"
)

// Options controls how the SQLite database is opened.
type Options struct {
	Path    string
	LogSQL  bool
	Migrate bool
}

// Open connects to SQLite and, when requested, migrates the schema.
// The returned handle is owned by the caller.
func Open(opts Options) (*gorm.DB, error) {
	level := logger.Warn
	if opts.LogSQL {
		level = logger.Info
	}
	zl := logging.With("database")
	gormLogger := logger.New(stdlog.New(zl, "", 0), logger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(sqlite.Open(dsn(opts.Path)), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	zl.Info().Str("path", opts.Path).Msg("Database connected successfully")

	if opts.Migrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
		zl.Info().Msg("Database migration completed")
	}
	return db, nil
}

// Migrate creates or updates every table the sync core persists.
func Migrate(db *gorm.DB) error {
	if err := cleanupDuplicatePricePoints(db); err != nil {
		return err
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Game{},
		&models.GameEvent{},
		&models.Set{},
		&models.Card{},
		&models.CardVariant{},
		&models.PricePoint{},
		&models.TrackedGame{},
		&models.TrackedSet{},
		&models.InventoryItem{},
		&models.InventoryItemVariant{},
	); err != nil {
		return err
	}
	return RunMigrations(db)
}

func dsn(path string) string {
	if strings.Contains(path, "?") || path == ":memory:" {
		return path
	}
	return path + "?_busy_timeout=5000&_journal_mode=WAL"
}
