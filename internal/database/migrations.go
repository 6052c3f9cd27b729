package database

import (
	"gorm.io/gorm"

	"github.com/codyseavey/mythicstats/internal/logging"
)

// cleanupDuplicatePricePoints removes repeated (variant_id, recorded_at) rows
// before the unique index is created. Runs BEFORE AutoMigrate.
func cleanupDuplicatePricePoints(db *gorm.DB) error {
	if !db.Migrator().HasTable("price_points") {
		return nil
	}

	result := db.Exec(`
		DELETE FROM price_points
		WHERE id NOT IN (
			SELECT MIN(id)
			FROM price_points
			GROUP BY variant_id, recorded_at
		)
	`)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		logging.Info().Int64("rows", result.RowsAffected).Msg("Cleaned up duplicate price_points entries")
	}
	return nil
}

// RunMigrations runs data fixes after schema changes. Safe to repeat.
func RunMigrations(db *gorm.DB) error {
	if err := normalizeVariantDefaults(db); err != nil {
		return err
	}
	return deactivateOrphanTracking(db)
}

// normalizeVariantDefaults backfills rows written before language and
// currency had defaults.
func normalizeVariantDefaults(db *gorm.DB) error {
	if err := db.Exec(`UPDATE card_variants SET language = 'English' WHERE language IS NULL OR language = ''`).Error; err != nil {
		logging.Warn().Err(err).Msg("failed to normalize variant language values")
	}
	if err := db.Exec(`UPDATE card_variants SET currency = 'USD' WHERE currency IS NULL OR currency = ''`).Error; err != nil {
		logging.Warn().Err(err).Msg("failed to normalize variant currency values")
	}
	return nil
}

// deactivateOrphanTracking turns off tracking rows whose game or set was
// removed from the catalog, so the scheduler stops selecting them.
func deactivateOrphanTracking(db *gorm.DB) error {
	result := db.Exec(`UPDATE tracked_games SET is_active = 0 WHERE is_active = 1 AND game_id NOT IN (SELECT id FROM games)`)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		logging.Info().Int64("rows", result.RowsAffected).Msg("Deactivated tracked games without a catalog entry")
	}

	result = db.Exec(`UPDATE tracked_sets SET is_active = 0 WHERE is_active = 1 AND set_id NOT IN (SELECT id FROM sets)`)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		logging.Info().Int64("rows", result.RowsAffected).Msg("Deactivated tracked sets without a catalog entry")
	}
	return nil
}
