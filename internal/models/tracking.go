package models

import (
	"time"
)

const (
	// DiscoveryInterval is how often a tracked game's set list is refreshed.
	DiscoveryInterval = 7 * 24 * time.Hour
	// SyncInterval is how often a tracked set's cards are refreshed.
	SyncInterval = 24 * time.Hour
)

// TrackedGame opts a user into periodic set discovery for a game.
type TrackedGame struct {
	ID              uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID          uint       `json:"user_id" gorm:"not null;uniqueIndex:idx_tracked_game_user"`
	GameID          uint       `json:"game_id" gorm:"not null;uniqueIndex:idx_tracked_game_user"`
	Game            Game       `json:"game" gorm:"foreignKey:GameID"`
	IsActive        bool       `json:"is_active" gorm:"not null;default:true"`
	LastDiscoveryAt *time.Time `json:"last_discovery_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NeedsDiscovery reports whether the game's sets are due for a refresh.
func (t *TrackedGame) NeedsDiscovery(now time.Time) bool {
	if !t.IsActive {
		return false
	}
	if t.LastDiscoveryAt == nil {
		return true
	}
	return now.Sub(*t.LastDiscoveryAt) >= DiscoveryInterval
}

// TrackedSet opts a user into periodic card sync for a set.
type TrackedSet struct {
	ID         uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID     uint       `json:"user_id" gorm:"not null;uniqueIndex:idx_tracked_set_user"`
	SetID      uint       `json:"set_id" gorm:"not null;uniqueIndex:idx_tracked_set_user"`
	Set        Set        `json:"set" gorm:"foreignKey:SetID"`
	IsActive   bool       `json:"is_active" gorm:"not null;default:true"`
	LastSyncAt *time.Time `json:"last_sync_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NeedsSync reports whether the set's cards are due for a refresh.
func (t *TrackedSet) NeedsSync(now time.Time) bool {
	if !t.IsActive {
		return false
	}
	if t.LastSyncAt == nil {
		return true
	}
	return now.Sub(*t.LastSyncAt) >= SyncInterval
}
