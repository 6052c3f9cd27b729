package models

import (
	"strings"
	"time"
)

// PriceCondition is the normalized condition code of a priced variant
type PriceCondition string

const (
	PriceConditionNM  PriceCondition = "NM"  // Near Mint
	PriceConditionLP  PriceCondition = "LP"  // Lightly Played
	PriceConditionMP  PriceCondition = "MP"  // Moderately Played
	PriceConditionHP  PriceCondition = "HP"  // Heavily Played
	PriceConditionDMG PriceCondition = "DMG" // Damaged
	PriceConditionS   PriceCondition = "S"   // Sealed
)

// AllPriceConditions returns all valid price conditions
func AllPriceConditions() []PriceCondition {
	return []PriceCondition{
		PriceConditionNM,
		PriceConditionLP,
		PriceConditionMP,
		PriceConditionHP,
		PriceConditionDMG,
		PriceConditionS,
	}
}

// NormalizeCondition maps JustTCG condition strings to a PriceCondition.
// Unknown values are kept verbatim so no upstream variant is dropped.
func NormalizeCondition(condition string) PriceCondition {
	switch strings.ToUpper(strings.TrimSpace(condition)) {
	case "NM", "NEAR MINT":
		return PriceConditionNM
	case "LP", "LIGHTLY PLAYED":
		return PriceConditionLP
	case "MP", "MODERATELY PLAYED":
		return PriceConditionMP
	case "HP", "HEAVILY PLAYED":
		return PriceConditionHP
	case "DMG", "DAMAGED":
		return PriceConditionDMG
	case "S", "SEALED":
		return PriceConditionS
	default:
		return PriceCondition(strings.TrimSpace(condition))
	}
}

// NormalizeLanguage maps various language spellings to a canonical name.
// Empty or unknown values default to English.
func NormalizeLanguage(lang string) string {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "japanese", "jp", "ja", "jpn":
		return "Japanese"
	case "german", "de", "deu", "ger":
		return "German"
	case "french", "fr", "fra", "fre":
		return "French"
	case "italian", "it", "ita":
		return "Italian"
	default:
		return "English"
	}
}

// PriceSample is a single point of an upstream price history series
type PriceSample struct {
	Price float64 `json:"p"`
	Time  int64   `json:"t"`
}

// CardVariant is a priced condition/printing/language combination of a Card.
// Variants are refreshed on every sync regardless of the parent card watermark.
type CardVariant struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	CardID         uint           `json:"card_id" gorm:"not null;index"`
	ExternalID     string         `json:"external_id" gorm:"not null;uniqueIndex"`
	TCGPlayerSkuID string         `json:"tcgplayer_sku_id"`
	Condition      PriceCondition `json:"condition" gorm:"not null"`
	Printing       string         `json:"printing"`
	Language       string         `json:"language" gorm:"default:'English'"`
	Price          float64        `json:"price"`
	Currency       string         `json:"currency" gorm:"default:'USD'"`
	LastUpdated    *int64         `json:"last_updated"` // upstream epoch of the price

	PriceChange24h    *float64   `json:"price_change_24h"`
	PriceChange7d     *float64   `json:"price_change_7d"`
	AvgPrice7d        *float64   `json:"avg_price_7d"`
	MinPrice7d        *float64   `json:"min_price_7d"`
	MaxPrice7d        *float64   `json:"max_price_7d"`
	TrendSlope7d      *float64   `json:"trend_slope_7d"`
	PriceChange30d    *float64   `json:"price_change_30d"`
	AvgPrice30d       *float64   `json:"avg_price_30d"`
	MinPrice30d       *float64   `json:"min_price_30d"`
	MaxPrice30d       *float64   `json:"max_price_30d"`
	TrendSlope30d     *float64   `json:"trend_slope_30d"`
	PriceChange90d    *float64   `json:"price_change_90d"`
	MinPrice90d       *float64   `json:"min_price_90d"`
	MaxPrice90d       *float64   `json:"max_price_90d"`
	MinPrice1y        *float64   `json:"min_price_1y"`
	MaxPrice1y        *float64   `json:"max_price_1y"`
	MinPriceAllTime   *float64   `json:"min_price_all_time"`
	MaxPriceAllTime   *float64   `json:"max_price_all_time"`
	MinPriceAllTimeAt *time.Time `json:"min_price_all_time_at"`
	MaxPriceAllTimeAt *time.Time `json:"max_price_all_time_at"`

	PriceHistory7d []PriceSample `json:"price_history_7d" gorm:"serializer:json"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PricedAt returns the time the upstream recorded the current price, falling
// back to the supplied clock when the API omitted it.
func (v *CardVariant) PricedAt(now time.Time) int64 {
	if v.LastUpdated != nil {
		return *v.LastUpdated
	}
	return now.Unix()
}
