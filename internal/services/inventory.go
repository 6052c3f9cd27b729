package services

import (
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/codyseavey/mythicstats/internal/logging"
	"github.com/codyseavey/mythicstats/internal/metrics"
	"github.com/codyseavey/mythicstats/internal/models"
	"github.com/codyseavey/mythicstats/internal/store"
)

// InventoryService owns inventory items and their per-variant rows. Every
// multi-row change runs in one transaction.
type InventoryService struct {
	store *store.Store
	log   zerolog.Logger
}

func NewInventoryService(st *store.Store) *InventoryService {
	return &InventoryService{store: st, log: logging.With("inventory")}
}

// List returns the user's inventory.
func (s *InventoryService) List(ctx context.Context, userID uint) ([]models.InventoryItem, error) {
	items, err := s.store.ListInventory(ctx, userID)
	if err != nil {
		return nil, err
	}
	metrics.InventoryItemsTotal.WithLabelValues(strconv.FormatUint(uint64(userID), 10)).Set(float64(len(items)))
	return items, nil
}

// AddCard adds a card to the user's inventory with one zero-quantity row
// per existing variant. Adding a held card only updates its notes.
func (s *InventoryService) AddCard(ctx context.Context, userID, cardID uint, notes string) (*models.InventoryItem, error) {
	card, err := s.store.FindCardByID(ctx, cardID)
	if err != nil {
		return nil, lookupErr("card", cardID, err)
	}

	var itemID uint
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		existing, err := tx.FindInventoryItemByCard(ctx, userID, cardID)
		if err == nil {
			itemID = existing.ID
			return tx.UpdateInventoryItemNotes(ctx, existing.ID, notes)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		item := &models.InventoryItem{UserID: userID, CardID: cardID, Notes: notes}
		if err := tx.CreateInventoryItem(ctx, item); err != nil {
			return err
		}
		itemID = item.ID

		rows := make([]models.InventoryItemVariant, 0, len(card.Variants))
		for _, v := range card.Variants {
			rows = append(rows, models.InventoryItemVariant{InventoryItemID: item.ID, VariantID: v.ID})
		}
		return tx.CreateInventoryVariants(ctx, rows)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Uint("user_id", userID).Str("card", card.ExternalID).Int("variants", len(card.Variants)).Msg("added card to inventory")
	return s.store.FindInventoryItem(ctx, userID, itemID)
}

// RemoveItem deletes an item after its variant rows.
func (s *InventoryService) RemoveItem(ctx context.Context, userID, itemID uint) error {
	if _, err := s.store.FindInventoryItem(ctx, userID, itemID); err != nil {
		return lookupErr("inventory item", itemID, err)
	}
	return s.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.DeleteInventoryVariantsForItem(ctx, itemID); err != nil {
			return err
		}
		return tx.DeleteInventoryItem(ctx, itemID)
	})
}

// UpdateVariantQuantity sets the held quantity of one inventory variant.
func (s *InventoryService) UpdateVariantQuantity(ctx context.Context, userID, inventoryVariantID uint, quantity int) (*models.InventoryItemVariant, error) {
	if quantity < 0 {
		return nil, errors.New("quantity must not be negative")
	}
	v, err := s.store.FindInventoryVariant(ctx, userID, inventoryVariantID)
	if err != nil {
		return nil, lookupErr("inventory variant", inventoryVariantID, err)
	}
	if err := s.store.UpdateInventoryVariantQuantity(ctx, v.ID, quantity); err != nil {
		return nil, err
	}
	v.Quantity = quantity
	return v, nil
}

// ResyncVariants aligns an item's rows with its card's current variants:
// missing rows are added at zero quantity, rows for vanished variants go.
func (s *InventoryService) ResyncVariants(ctx context.Context, userID, itemID uint) (*models.ResyncResult, error) {
	item, err := s.store.FindInventoryItem(ctx, userID, itemID)
	if err != nil {
		return nil, lookupErr("inventory item", itemID, err)
	}

	result := &models.ResyncResult{}
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		variants, err := tx.ListVariantsForCard(ctx, item.CardID)
		if err != nil {
			return err
		}

		current := make(map[uint]bool, len(variants))
		for _, v := range variants {
			current[v.ID] = true
		}
		held := make(map[uint]bool, len(item.Variants))
		var stale []uint
		for _, iv := range item.Variants {
			held[iv.VariantID] = true
			if !current[iv.VariantID] {
				stale = append(stale, iv.ID)
			}
		}

		var missing []models.InventoryItemVariant
		for _, v := range variants {
			if !held[v.ID] {
				missing = append(missing, models.InventoryItemVariant{InventoryItemID: item.ID, VariantID: v.ID})
			}
		}

		if err := tx.DeleteInventoryVariants(ctx, stale); err != nil {
			return err
		}
		if err := tx.CreateInventoryVariants(ctx, missing); err != nil {
			return err
		}
		result.Added = len(missing)
		result.Removed = len(stale)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ItemValue sums quantity times current price over an item's variants.
func (s *InventoryService) ItemValue(ctx context.Context, userID, itemID uint) (float64, error) {
	item, err := s.store.FindInventoryItem(ctx, userID, itemID)
	if err != nil {
		return 0, lookupErr("inventory item", itemID, err)
	}
	var total float64
	for i := range item.Variants {
		total += item.Variants[i].Value()
	}
	return total, nil
}
