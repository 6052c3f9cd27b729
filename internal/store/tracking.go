package store

import (
	"context"
	"time"

	"github.com/codyseavey/mythicstats/internal/models"
)

func (s *Store) ListTrackedGames(ctx context.Context, userID uint) ([]models.TrackedGame, error) {
	var tracked []models.TrackedGame
	err := s.db.WithContext(ctx).Preload("Game").Where("user_id = ?", userID).Order("id").Find(&tracked).Error
	return tracked, err
}

func (s *Store) ListActiveTrackedGames(ctx context.Context, userID uint) ([]models.TrackedGame, error) {
	var tracked []models.TrackedGame
	err := s.db.WithContext(ctx).Preload("Game").
		Where("user_id = ? AND is_active = ?", userID, true).Order("id").Find(&tracked).Error
	return tracked, err
}

func (s *Store) ListTrackedSets(ctx context.Context, userID uint) ([]models.TrackedSet, error) {
	var tracked []models.TrackedSet
	err := s.db.WithContext(ctx).Preload("Set").Where("user_id = ?", userID).Order("id").Find(&tracked).Error
	return tracked, err
}

func (s *Store) ListActiveTrackedSets(ctx context.Context, userID uint) ([]models.TrackedSet, error) {
	var tracked []models.TrackedSet
	err := s.db.WithContext(ctx).Preload("Set").
		Where("user_id = ? AND is_active = ?", userID, true).Order("id").Find(&tracked).Error
	return tracked, err
}

func (s *Store) FindTrackedGame(ctx context.Context, userID, gameID uint) (*models.TrackedGame, error) {
	var t models.TrackedGame
	err := s.db.WithContext(ctx).Preload("Game").
		Where("user_id = ? AND game_id = ?", userID, gameID).Take(&t).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *Store) FindTrackedSet(ctx context.Context, userID, setID uint) (*models.TrackedSet, error) {
	var t models.TrackedSet
	err := s.db.WithContext(ctx).Preload("Set").
		Where("user_id = ? AND set_id = ?", userID, setID).Take(&t).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *Store) CreateTrackedGame(ctx context.Context, t *models.TrackedGame) error {
	return s.db.WithContext(ctx).Omit("Game").Create(t).Error
}

func (s *Store) CreateTrackedSet(ctx context.Context, t *models.TrackedSet) error {
	return s.db.WithContext(ctx).Omit("Set").Create(t).Error
}

func (s *Store) DeleteTrackedGame(ctx context.Context, userID, gameID uint) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND game_id = ?", userID, gameID).Delete(&models.TrackedGame{}).Error
}

func (s *Store) DeleteTrackedSet(ctx context.Context, userID, setID uint) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND set_id = ?", userID, setID).Delete(&models.TrackedSet{}).Error
}

func (s *Store) SetTrackedGameActive(ctx context.Context, id uint, active bool) error {
	return s.db.WithContext(ctx).Model(&models.TrackedGame{}).Where("id = ?", id).Update("is_active", active).Error
}

func (s *Store) SetTrackedSetActive(ctx context.Context, id uint, active bool) error {
	return s.db.WithContext(ctx).Model(&models.TrackedSet{}).Where("id = ?", id).Update("is_active", active).Error
}

// MarkDiscovered stamps a tracked game's last discovery time.
func (s *Store) MarkDiscovered(ctx context.Context, trackedGameID uint, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.TrackedGame{}).
		Where("id = ?", trackedGameID).Update("last_discovery_at", at).Error
}

// MarkSynced stamps a tracked set's last sync time.
func (s *Store) MarkSynced(ctx context.Context, trackedSetID uint, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.TrackedSet{}).
		Where("id = ?", trackedSetID).Update("last_sync_at", at).Error
}

// RecentSyncs returns the user's tracked sets with the latest completed syncs first.
func (s *Store) RecentSyncs(ctx context.Context, userID uint, limit int) ([]models.TrackedSet, error) {
	var tracked []models.TrackedSet
	err := s.db.WithContext(ctx).Preload("Set").
		Where("user_id = ? AND last_sync_at IS NOT NULL", userID).
		Order("last_sync_at DESC").Order("id DESC").Limit(limit).Find(&tracked).Error
	return tracked, err
}
