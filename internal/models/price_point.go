package models

import "time"

// PricePoint is an append-only price observation for a variant.
// RecordedAt is the upstream epoch, so replaying a sync writes nothing new.
type PricePoint struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	VariantID  uint      `json:"variant_id" gorm:"not null;uniqueIndex:idx_price_point_variant_time"`
	Price      float64   `json:"price" gorm:"not null"`
	RecordedAt int64     `json:"recorded_at" gorm:"not null;uniqueIndex:idx_price_point_variant_time"`
	CreatedAt  time.Time `json:"created_at"`
}
