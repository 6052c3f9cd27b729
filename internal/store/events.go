package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/codyseavey/mythicstats/internal/models"
)

// EventFilter narrows a game event listing. Zero values match everything.
type EventFilter struct {
	Active         bool
	Upcoming       bool
	AffectsPricing bool
	// Today is the day Active and Upcoming are judged against.
	Today time.Time
}

// activeOn keeps events running on day.
func activeOn(day time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("start_date <= ?", day).
			Where("(end_date IS NULL OR end_date >= ?)", day)
	}
}

// upcomingAfter keeps events starting after day.
func upcomingAfter(day time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("start_date > ?", day)
	}
}

func affectingPricing(db *gorm.DB) *gorm.DB {
	return db.Where("affects_pricing = ?", true)
}

// ListGameEvents returns a game's events, latest start first.
func (s *Store) ListGameEvents(ctx context.Context, gameID uint, f EventFilter) ([]models.GameEvent, error) {
	q := s.db.WithContext(ctx).Where("game_id = ?", gameID)
	day := models.Day(f.Today)
	if f.Active {
		q = q.Scopes(activeOn(day))
	}
	if f.Upcoming {
		q = q.Scopes(upcomingAfter(day))
	}
	if f.AffectsPricing {
		q = q.Scopes(affectingPricing)
	}
	var events []models.GameEvent
	err := q.Order("start_date DESC").Order("id DESC").Find(&events).Error
	return events, err
}

// ListPricingEventsForUser returns the active price-moving events of games
// the user holds cards of.
func (s *Store) ListPricingEventsForUser(ctx context.Context, userID uint, today time.Time) ([]models.GameEvent, error) {
	var events []models.GameEvent
	err := s.db.WithContext(ctx).
		Scopes(activeOn(models.Day(today)), affectingPricing).
		Where(`game_id IN (
			SELECT sets.game_id FROM inventory_items
			INNER JOIN cards ON cards.id = inventory_items.card_id
			INNER JOIN sets ON sets.id = cards.set_id
			WHERE inventory_items.user_id = ?
		)`, userID).
		Order("start_date DESC").
		Find(&events).Error
	return events, err
}

func (s *Store) FindGameEvent(ctx context.Context, gameID, eventID uint) (*models.GameEvent, error) {
	var e models.GameEvent
	if err := s.db.WithContext(ctx).Where("game_id = ?", gameID).Take(&e, eventID).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (s *Store) CreateGameEvent(ctx context.Context, e *models.GameEvent) error {
	return s.db.WithContext(ctx).Create(e).Error
}

// SaveGameEvent writes every column of an existing event.
func (s *Store) SaveGameEvent(ctx context.Context, e *models.GameEvent) error {
	return s.db.WithContext(ctx).Save(e).Error
}

func (s *Store) DeleteGameEvent(ctx context.Context, gameID, eventID uint) error {
	result := s.db.WithContext(ctx).Where("game_id = ?", gameID).Delete(&models.GameEvent{}, eventID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
