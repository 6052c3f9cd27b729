package services

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/codyseavey/mythicstats/internal/models"
)

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return err
	}
	*f = flexString(b)
	return nil
}

// watermarkFields covers both spellings JustTCG uses for the record epoch.
type watermarkFields struct {
	LastUpdatedSnake *int64 `json:"last_updated"`
	LastUpdatedCamel *int64 `json:"lastUpdated"`
}

// Watermark returns the upstream epoch, or nil when the record has none.
func (w watermarkFields) Watermark() *int64 {
	if w.LastUpdatedSnake != nil {
		return w.LastUpdatedSnake
	}
	return w.LastUpdatedCamel
}

// GameRecord is a game as returned by GET /games.
type GameRecord struct {
	watermarkFields
	ID         string `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	CardsCount *int   `json:"cards_count"`
	SetsCount  *int   `json:"sets_count"`
}

// SetRecord is a set as returned by GET /sets.
type SetRecord struct {
	watermarkFields
	ID          string `json:"id"`
	Name        string `json:"name"`
	GameID      string `json:"game_id"`
	Slug        string `json:"slug"`
	ReleaseDate string `json:"release_date"`
	CardsCount  *int   `json:"cards_count"`
	Count       *int   `json:"count"`
}

// CardRecord is a card with its priced variants.
type CardRecord struct {
	watermarkFields
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Game        string          `json:"game"`
	Set         string          `json:"set"`
	Number      flexString      `json:"number"`
	Rarity      string          `json:"rarity"`
	Details     json.RawMessage `json:"details"`
	TCGPlayerID flexString      `json:"tcgplayerId"`
	MTGJSONID   string          `json:"mtgjsonId"`
	ScryfallID  string          `json:"scryfallId"`
	Variants    []VariantRecord `json:"variants"`
}

// VariantRecord is one condition/printing/language price of a card.
type VariantRecord struct {
	ID             string     `json:"id"`
	Condition      string     `json:"condition"`
	Printing       string     `json:"printing"`
	Language       string     `json:"language"`
	Price          float64    `json:"price"`
	LastUpdated    *int64     `json:"lastUpdated"`
	TCGPlayerSkuID flexString `json:"tcgplayerSkuId"`

	PriceChange24hr *float64             `json:"priceChange24hr"`
	PriceChange7d   *float64             `json:"priceChange7d"`
	AvgPrice        *float64             `json:"avgPrice"`
	MinPrice7d      *float64             `json:"minPrice7d"`
	MaxPrice7d      *float64             `json:"maxPrice7d"`
	TrendSlope7d    *float64             `json:"trendSlope7d"`
	PriceHistory    []models.PriceSample `json:"priceHistory"`

	PriceChange30d *float64 `json:"priceChange30d"`
	AvgPrice30d    *float64 `json:"avgPrice30d"`
	MinPrice30d    *float64 `json:"minPrice30d"`
	MaxPrice30d    *float64 `json:"maxPrice30d"`
	TrendSlope30d  *float64 `json:"trendSlope30d"`

	PriceChange90d *float64 `json:"priceChange90d"`
	MinPrice90d    *float64 `json:"minPrice90d"`
	MaxPrice90d    *float64 `json:"maxPrice90d"`
	MinPrice1y     *float64 `json:"minPrice1y"`
	MaxPrice1y     *float64 `json:"maxPrice1y"`

	MinPriceAllTime     *float64 `json:"minPriceAllTime"`
	MinPriceAllTimeDate string   `json:"minPriceAllTimeDate"`
	MaxPriceAllTime     *float64 `json:"maxPriceAllTime"`
	MaxPriceAllTimeDate string   `json:"maxPriceAllTimeDate"`
}
