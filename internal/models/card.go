package models

import (
	"time"
)

// Game is a trading card game known to the upstream pricing API.
type Game struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	ExternalID    string    `json:"external_id" gorm:"not null;uniqueIndex"`
	Name          string    `json:"name" gorm:"not null"`
	Slug          string    `json:"slug"`
	CardsCount    *int      `json:"cards_count"`
	SetsCount     *int      `json:"sets_count"`
	LastUpdatedAt *int64    `json:"last_updated_at"` // upstream epoch watermark
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Set belongs to a Game.
type Set struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	GameID        uint       `json:"game_id" gorm:"not null;index"`
	ExternalID    string     `json:"external_id" gorm:"not null;uniqueIndex"`
	Name          string     `json:"name" gorm:"not null"`
	Slug          string     `json:"slug"`
	ReleaseDate   *time.Time `json:"release_date"`
	CardsCount    *int       `json:"cards_count"`
	LastUpdatedAt *int64     `json:"last_updated_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Card belongs to a Set.
type Card struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	SetID         uint           `json:"set_id" gorm:"not null;index"`
	ExternalID    string         `json:"external_id" gorm:"not null;uniqueIndex"`
	Name          string         `json:"name" gorm:"not null;index"`
	Number        string         `json:"number"`
	Rarity        string         `json:"rarity"`
	Details       map[string]any `json:"details,omitempty" gorm:"serializer:json"`
	TCGPlayerID   string         `json:"tcgplayer_id"`
	MTGJSONID     string         `json:"mtgjson_id"`
	ScryfallID    string         `json:"scryfall_id"`
	LastUpdatedAt *int64         `json:"last_updated_at"`
	Variants      []CardVariant  `json:"variants,omitempty" gorm:"foreignKey:CardID"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// IsNewerThan reports whether an incoming watermark should replace the stored one.
// A stored record only wins when both watermarks are known and the stored one
// is at least as recent.
func IsNewerThan(incoming, stored *int64) bool {
	if stored == nil || incoming == nil {
		return true
	}
	return *incoming > *stored
}

// UpdateCardRequest is a manual card edit. Nil fields are left alone.
type UpdateCardRequest struct {
	Name    *string        `json:"name"`
	Number  *string        `json:"number"`
	Rarity  *string        `json:"rarity"`
	Details map[string]any `json:"details"`
}

// UpdateVariantRequest is a manual variant edit. Nil fields are left alone.
type UpdateVariantRequest struct {
	Price     *float64 `json:"price"`
	Condition *string  `json:"condition"`
	Printing  *string  `json:"printing"`
	Language  *string  `json:"language"`
}
