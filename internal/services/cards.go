package services

import (
	"context"
	"math"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/codyseavey/mythicstats/internal/logging"
	"github.com/codyseavey/mythicstats/internal/models"
	"github.com/codyseavey/mythicstats/internal/store"
)

// CardListing is a card of a set as seen by one user.
type CardListing struct {
	models.Card
	InInventory bool `json:"in_inventory"`
}

// CardService browses local cards and applies manual corrections. Edits
// leave sync watermarks and price history untouched, so the next sync with
// newer upstream data overwrites them.
type CardService struct {
	store *store.Store
	log   zerolog.Logger
}

func NewCardService(st *store.Store) *CardService {
	return &CardService{store: st, log: logging.With("cards")}
}

// ListSetCards returns a set's cards ordered by number, each flagged with
// whether the user holds it.
func (s *CardService) ListSetCards(ctx context.Context, userID, setID uint, search string) ([]CardListing, error) {
	if _, err := s.store.FindSetByID(ctx, setID); err != nil {
		return nil, lookupErr("set", setID, err)
	}
	cards, err := s.store.ListCardsInSet(ctx, setID, search)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(cards))
	for _, c := range cards {
		ids = append(ids, c.ID)
	}
	held, err := s.store.HeldCardIDs(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	listings := make([]CardListing, 0, len(cards))
	for _, c := range cards {
		listings = append(listings, CardListing{Card: c, InInventory: held[c.ID]})
	}
	return listings, nil
}

// UpdateCard applies a manual edit and returns the card with its variants.
func (s *CardService) UpdateCard(ctx context.Context, id uint, req models.UpdateCardRequest) (*models.Card, error) {
	if _, err := s.store.FindCardByID(ctx, id); err != nil {
		return nil, lookupErr("card", id, err)
	}

	fields := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, &InputError{Field: "name", Reason: "must not be empty"}
		}
		fields["name"] = name
	}
	if req.Number != nil {
		fields["number"] = strings.TrimSpace(*req.Number)
	}
	if req.Rarity != nil {
		fields["rarity"] = strings.TrimSpace(*req.Rarity)
	}
	if req.Details != nil {
		// Map updates bypass the column serializer.
		raw, err := json.Marshal(req.Details)
		if err != nil {
			return nil, &InputError{Field: "details", Reason: "must be a JSON object"}
		}
		fields["details"] = string(raw)
	}

	if len(fields) > 0 {
		if err := s.store.UpdateCardFields(ctx, id, fields); err != nil {
			return nil, lookupErr("card", id, err)
		}
		s.log.Info().Uint("card_id", id).Int("fields", len(fields)).Msg("edited card")
	}
	return s.store.FindCardByID(ctx, id)
}

// UpdateVariant applies a manual edit to a variant. Condition and language
// are normalized the same way synced variants are.
func (s *CardService) UpdateVariant(ctx context.Context, id uint, req models.UpdateVariantRequest) (*models.CardVariant, error) {
	if _, err := s.store.FindVariantByID(ctx, id); err != nil {
		return nil, lookupErr("variant", id, err)
	}

	fields := map[string]any{}
	if req.Price != nil {
		if *req.Price < 0 || math.IsNaN(*req.Price) || math.IsInf(*req.Price, 0) {
			return nil, &InputError{Field: "price", Reason: "must be a non-negative number"}
		}
		fields["price"] = *req.Price
	}
	if req.Condition != nil {
		if strings.TrimSpace(*req.Condition) == "" {
			return nil, &InputError{Field: "condition", Reason: "must not be empty"}
		}
		fields["condition"] = models.NormalizeCondition(*req.Condition)
	}
	if req.Printing != nil {
		fields["printing"] = strings.TrimSpace(*req.Printing)
	}
	if req.Language != nil {
		fields["language"] = models.NormalizeLanguage(*req.Language)
	}

	if len(fields) > 0 {
		if err := s.store.UpdateVariantFields(ctx, id, fields); err != nil {
			return nil, lookupErr("variant", id, err)
		}
		s.log.Info().Uint("variant_id", id).Int("fields", len(fields)).Msg("edited variant")
	}
	return s.store.FindVariantByID(ctx, id)
}
