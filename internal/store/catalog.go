package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codyseavey/mythicstats/internal/models"
)

// newerWatermark is the conflict guard shared by games, sets and cards.
// The stored row is only replaced when one side has no watermark or the
// incoming watermark is strictly greater.
func newerWatermark(table string) clause.Expression {
	return clause.Expr{SQL: fmt.Sprintf(
		"excluded.last_updated_at IS NULL OR %[1]s.last_updated_at IS NULL OR excluded.last_updated_at > %[1]s.last_updated_at",
		table,
	)}
}

// upsertIfNewer inserts row or replaces the stored row with the same external
// id when the incoming watermark wins. The guard lives in the statement, so
// concurrent writers are serialized by SQLite. On return row holds the stored
// state, including its local id.
func upsertIfNewer[T any](ctx context.Context, db *gorm.DB, table, externalID string, row *T, incoming *int64, watermark func(*T) *int64) (UpsertOutcome, error) {
	db = db.WithContext(ctx)

	var existing T
	found := true
	if err := db.Where("external_id = ?", externalID).Take(&existing).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return Skipped, err
		}
		found = false
	}

	if found && !models.IsNewerThan(incoming, watermark(&existing)) {
		*row = existing
		return Skipped, nil
	}

	result := db.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		UpdateAll: true,
		Where:     clause.Where{Exprs: []clause.Expression{newerWatermark(table)}},
	}).Create(row)
	if result.Error != nil {
		return Skipped, result.Error
	}

	var stored T
	if err := db.Where("external_id = ?", externalID).Take(&stored).Error; err != nil {
		return Skipped, err
	}
	*row = stored

	switch {
	case result.RowsAffected == 0:
		// a concurrent writer stored a newer watermark first
		return Skipped, nil
	case found:
		return Updated, nil
	default:
		return Created, nil
	}
}

// UpsertGame stores g unless the stored game is at least as recent.
func (s *Store) UpsertGame(ctx context.Context, g *models.Game) (UpsertOutcome, error) {
	g.ID = 0
	return upsertIfNewer(ctx, s.db, "games", g.ExternalID, g, g.LastUpdatedAt,
		func(x *models.Game) *int64 { return x.LastUpdatedAt })
}

// UpsertSet stores set unless the stored set is at least as recent.
func (s *Store) UpsertSet(ctx context.Context, set *models.Set) (UpsertOutcome, error) {
	set.ID = 0
	return upsertIfNewer(ctx, s.db, "sets", set.ExternalID, set, set.LastUpdatedAt,
		func(x *models.Set) *int64 { return x.LastUpdatedAt })
}

// UpsertCard stores card unless the stored card is at least as recent.
// Variants attached to card are ignored; use UpsertVariant.
func (s *Store) UpsertCard(ctx context.Context, card *models.Card) (UpsertOutcome, error) {
	card.ID = 0
	card.Variants = nil
	return upsertIfNewer(ctx, s.db, "cards", card.ExternalID, card, card.LastUpdatedAt,
		func(x *models.Card) *int64 { return x.LastUpdatedAt })
}

// UpsertVariant replaces the variant with the same external id and appends a
// price point for recordedAt. A price point already stored for that instant
// is left alone.
func (s *Store) UpsertVariant(ctx context.Context, v *models.CardVariant, recordedAt int64) error {
	v.ID = 0
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			UpdateAll: true,
		}).Create(v).Error; err != nil {
			return err
		}

		var stored models.CardVariant
		if err := tx.Where("external_id = ?", v.ExternalID).Take(&stored).Error; err != nil {
			return err
		}
		*v = stored

		point := models.PricePoint{VariantID: v.ID, Price: v.Price, RecordedAt: recordedAt}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&point).Error
	})
}

func (s *Store) FindGameByExternalID(ctx context.Context, externalID string) (*models.Game, error) {
	var g models.Game
	if err := s.db.WithContext(ctx).Where("external_id = ?", externalID).Take(&g).Error; err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

func (s *Store) FindSetByExternalID(ctx context.Context, externalID string) (*models.Set, error) {
	var set models.Set
	if err := s.db.WithContext(ctx).Where("external_id = ?", externalID).Take(&set).Error; err != nil {
		return nil, notFound(err)
	}
	return &set, nil
}

func (s *Store) FindCardByExternalID(ctx context.Context, externalID string) (*models.Card, error) {
	var card models.Card
	if err := s.db.WithContext(ctx).Where("external_id = ?", externalID).Take(&card).Error; err != nil {
		return nil, notFound(err)
	}
	return &card, nil
}

func (s *Store) FindVariantByExternalID(ctx context.Context, externalID string) (*models.CardVariant, error) {
	var v models.CardVariant
	if err := s.db.WithContext(ctx).Where("external_id = ?", externalID).Take(&v).Error; err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

func (s *Store) FindGameByID(ctx context.Context, id uint) (*models.Game, error) {
	var g models.Game
	if err := s.db.WithContext(ctx).Take(&g, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

func (s *Store) FindSetByID(ctx context.Context, id uint) (*models.Set, error) {
	var set models.Set
	if err := s.db.WithContext(ctx).Take(&set, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &set, nil
}

// FindCardByID loads a card with its variants.
func (s *Store) FindCardByID(ctx context.Context, id uint) (*models.Card, error) {
	var card models.Card
	if err := s.db.WithContext(ctx).Preload("Variants").Take(&card, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &card, nil
}

func (s *Store) FindCardsByIDs(ctx context.Context, ids []uint) ([]models.Card, error) {
	var cards []models.Card
	if len(ids) == 0 {
		return cards, nil
	}
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&cards).Error
	return cards, err
}

func (s *Store) ListGames(ctx context.Context) ([]models.Game, error) {
	var games []models.Game
	err := s.db.WithContext(ctx).Order("name").Find(&games).Error
	return games, err
}

func (s *Store) ListSetsForGame(ctx context.Context, gameID uint) ([]models.Set, error) {
	var sets []models.Set
	err := s.db.WithContext(ctx).Where("game_id = ?", gameID).
		Order("release_date DESC").Order("name").Find(&sets).Error
	return sets, err
}

func (s *Store) ListVariantsForCard(ctx context.Context, cardID uint) ([]models.CardVariant, error) {
	var variants []models.CardVariant
	err := s.db.WithContext(ctx).Where("card_id = ?", cardID).Order("id").Find(&variants).Error
	return variants, err
}

func (s *Store) CountCardsInSet(ctx context.Context, setID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Card{}).Where("set_id = ?", setID).Count(&n).Error
	return n, err
}

// PriceRangeForSet returns the lowest and highest positive variant price
// among the set's cards. Both are zero when nothing is priced.
func (s *Store) PriceRangeForSet(ctx context.Context, setID uint) (float64, float64, error) {
	var r struct {
		Min *float64
		Max *float64
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT MIN(v.price) AS min, MAX(v.price) AS max
		FROM card_variants v
		INNER JOIN cards c ON c.id = v.card_id
		WHERE c.set_id = ? AND v.price > 0
	`, setID).Scan(&r).Error
	if err != nil {
		return 0, 0, err
	}
	var lo, hi float64
	if r.Min != nil {
		lo = *r.Min
	}
	if r.Max != nil {
		hi = *r.Max
	}
	return lo, hi, nil
}

// PriceHistory returns the stored price points of a variant, oldest first.
func (s *Store) PriceHistory(ctx context.Context, variantID uint) ([]models.PricePoint, error) {
	var points []models.PricePoint
	err := s.db.WithContext(ctx).Where("variant_id = ?", variantID).Order("recorded_at").Find(&points).Error
	return points, err
}

// ListCardsInSet returns the set's cards ordered by number. A non-empty
// search matches a substring of the name or number, case-insensitively.
func (s *Store) ListCardsInSet(ctx context.Context, setID uint, search string) ([]models.Card, error) {
	q := s.db.WithContext(ctx).Where("set_id = ?", setID)
	if search = strings.TrimSpace(search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		q = q.Where("(LOWER(name) LIKE ? OR LOWER(number) LIKE ?)", pattern, pattern)
	}
	var cards []models.Card
	err := q.Order("number").Order("id").Find(&cards).Error
	return cards, err
}

// UpdateCardFields applies a column map to a card.
func (s *Store) UpdateCardFields(ctx context.Context, id uint, fields map[string]any) error {
	result := s.db.WithContext(ctx).Model(&models.Card{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateVariantFields applies a column map to a variant.
func (s *Store) UpdateVariantFields(ctx context.Context, id uint, fields map[string]any) error {
	result := s.db.WithContext(ctx).Model(&models.CardVariant{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) FindVariantByID(ctx context.Context, id uint) (*models.CardVariant, error) {
	var v models.CardVariant
	if err := s.db.WithContext(ctx).Take(&v, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}
