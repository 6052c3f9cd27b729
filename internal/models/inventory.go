package models

import (
	"time"
)

// PriceUpdateInterval is how long an inventory variant price stays fresh.
const PriceUpdateInterval = 24 * time.Hour

// InventoryItem is a card held by a user. Quantities live on its variants.
type InventoryItem struct {
	ID        uint                   `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    uint                   `json:"user_id" gorm:"not null;uniqueIndex:idx_inventory_user_card"`
	CardID    uint                   `json:"card_id" gorm:"not null;uniqueIndex:idx_inventory_user_card"`
	Card      Card                   `json:"card" gorm:"foreignKey:CardID"`
	Notes     string                 `json:"notes"`
	Variants  []InventoryItemVariant `json:"variants,omitempty" gorm:"foreignKey:InventoryItemID"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// InventoryItemVariant is the owned quantity of one priced variant.
type InventoryItemVariant struct {
	ID                uint        `json:"id" gorm:"primaryKey;autoIncrement"`
	InventoryItemID   uint        `json:"inventory_item_id" gorm:"not null;uniqueIndex:idx_inventory_item_variant"`
	VariantID         uint        `json:"variant_id" gorm:"not null;uniqueIndex:idx_inventory_item_variant"`
	Variant           CardVariant `json:"variant" gorm:"foreignKey:VariantID"`
	Quantity          int         `json:"quantity" gorm:"not null;default:0"`
	Notes             string      `json:"notes"`
	LastPriceUpdateAt *time.Time  `json:"last_price_update_at"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// NeedsPriceUpdate reports whether a held variant is owed a price refresh.
func (v *InventoryItemVariant) NeedsPriceUpdate(now time.Time) bool {
	if v.Quantity <= 0 {
		return false
	}
	if v.LastPriceUpdateAt == nil {
		return true
	}
	return now.Sub(*v.LastPriceUpdateAt) >= PriceUpdateInterval
}

// Value returns quantity times the current variant price.
func (v *InventoryItemVariant) Value() float64 {
	return float64(v.Quantity) * v.Variant.Price
}

type AddInventoryRequest struct {
	CardID uint   `json:"card_id" binding:"required"`
	Notes  string `json:"notes"`
}

type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// ResyncResult reports how many variant rows were added or removed when an
// item is realigned with its card's current variants.
type ResyncResult struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}
