package store

import (
	"context"
	"time"

	"github.com/codyseavey/mythicstats/internal/models"
)

// ListInventory returns a user's items with their card and held variants.
func (s *Store) ListInventory(ctx context.Context, userID uint) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	err := s.db.WithContext(ctx).
		Preload("Card").
		Preload("Variants.Variant").
		Where("user_id = ?", userID).
		Order("id").
		Find(&items).Error
	return items, err
}

func (s *Store) FindInventoryItem(ctx context.Context, userID, itemID uint) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := s.db.WithContext(ctx).
		Preload("Card").
		Preload("Variants.Variant").
		Where("id = ? AND user_id = ?", itemID, userID).
		Take(&item).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (s *Store) FindInventoryItemByCard(ctx context.Context, userID, cardID uint) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := s.db.WithContext(ctx).Where("user_id = ? AND card_id = ?", userID, cardID).Take(&item).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (s *Store) CreateInventoryItem(ctx context.Context, item *models.InventoryItem) error {
	return s.db.WithContext(ctx).Omit("Card", "Variants").Create(item).Error
}

func (s *Store) UpdateInventoryItemNotes(ctx context.Context, itemID uint, notes string) error {
	return s.db.WithContext(ctx).Model(&models.InventoryItem{}).Where("id = ?", itemID).Update("notes", notes).Error
}

func (s *Store) DeleteInventoryItem(ctx context.Context, itemID uint) error {
	return s.db.WithContext(ctx).Delete(&models.InventoryItem{}, itemID).Error
}

func (s *Store) CreateInventoryVariants(ctx context.Context, rows []models.InventoryItemVariant) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Omit("Variant").Create(&rows).Error
}

func (s *Store) DeleteInventoryVariantsForItem(ctx context.Context, itemID uint) error {
	return s.db.WithContext(ctx).Where("inventory_item_id = ?", itemID).Delete(&models.InventoryItemVariant{}).Error
}

func (s *Store) DeleteInventoryVariants(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.InventoryItemVariant{}).Error
}

// FindInventoryVariant loads a held variant only if it belongs to the user.
func (s *Store) FindInventoryVariant(ctx context.Context, userID, id uint) (*models.InventoryItemVariant, error) {
	var v models.InventoryItemVariant
	err := s.db.WithContext(ctx).
		Preload("Variant").
		Joins("INNER JOIN inventory_items ON inventory_items.id = inventory_item_variants.inventory_item_id").
		Where("inventory_item_variants.id = ? AND inventory_items.user_id = ?", id, userID).
		Take(&v).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

func (s *Store) UpdateInventoryVariantQuantity(ctx context.Context, id uint, quantity int) error {
	return s.db.WithContext(ctx).Model(&models.InventoryItemVariant{}).Where("id = ?", id).Update("quantity", quantity).Error
}

// HeldVariant is an inventory variant together with the local card it prices.
type HeldVariant struct {
	models.InventoryItemVariant
	CardID uint
}

// ListHeldVariants returns every inventory variant of the user with a
// positive quantity, annotated with its card id.
func (s *Store) ListHeldVariants(ctx context.Context, userID uint) ([]HeldVariant, error) {
	var rows []HeldVariant
	err := s.db.WithContext(ctx).
		Table("inventory_item_variants").
		Select("inventory_item_variants.*, inventory_items.card_id AS card_id").
		Joins("INNER JOIN inventory_items ON inventory_items.id = inventory_item_variants.inventory_item_id").
		Where("inventory_items.user_id = ? AND inventory_item_variants.quantity > 0", userID).
		Order("inventory_item_variants.id").
		Scan(&rows).Error
	return rows, err
}

// MarkInventoryPricesUpdated stamps every inventory variant of the user
// whose card is in cardIDs, whatever its quantity.
func (s *Store) MarkInventoryPricesUpdated(ctx context.Context, userID uint, cardIDs []uint, at time.Time) (int64, error) {
	if len(cardIDs) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Exec(`
		UPDATE inventory_item_variants SET last_price_update_at = ?
		WHERE inventory_item_id IN (
			SELECT id FROM inventory_items WHERE user_id = ? AND card_id IN ?
		)
	`, at, userID, cardIDs)
	return result.RowsAffected, result.Error
}

// CountInventoryCardsInSet counts distinct cards of the set the user holds.
func (s *Store) CountInventoryCardsInSet(ctx context.Context, userID, setID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.InventoryItem{}).
		Joins("INNER JOIN cards ON cards.id = inventory_items.card_id").
		Where("inventory_items.user_id = ? AND cards.set_id = ?", userID, setID).
		Count(&n).Error
	return n, err
}

// HeldCardIDs returns which of cardIDs the user has an inventory item for.
func (s *Store) HeldCardIDs(ctx context.Context, userID uint, cardIDs []uint) (map[uint]bool, error) {
	held := make(map[uint]bool)
	if len(cardIDs) == 0 {
		return held, nil
	}
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.InventoryItem{}).
		Where("user_id = ? AND card_id IN ?", userID, cardIDs).
		Pluck("card_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		held[id] = true
	}
	return held, nil
}

// InventoryTotals summarizes a user's inventory.
type InventoryTotals struct {
	TotalCards    int64   `json:"total_cards"`
	TotalQuantity int64   `json:"total_quantity"`
	TotalValue    float64 `json:"total_value"`
}

func (s *Store) InventoryTotals(ctx context.Context, userID uint) (InventoryTotals, error) {
	var totals InventoryTotals
	err := s.db.WithContext(ctx).Raw(`
		SELECT
			(SELECT COUNT(*) FROM inventory_items WHERE user_id = ?) AS total_cards,
			COALESCE(SUM(iv.quantity), 0) AS total_quantity,
			COALESCE(SUM(iv.quantity * COALESCE(v.price, 0)), 0) AS total_value
		FROM inventory_item_variants iv
		INNER JOIN inventory_items i ON i.id = iv.inventory_item_id
		LEFT JOIN card_variants v ON v.id = iv.variant_id
		WHERE i.user_id = ?
	`, userID, userID).Scan(&totals).Error
	return totals, err
}

// RecentPriceUpdate is an inventory variant with the card it prices.
type RecentPriceUpdate struct {
	ID                uint       `json:"id"`
	InventoryItemID   uint       `json:"inventory_item_id"`
	LastPriceUpdateAt *time.Time `json:"last_price_update_at"`
	Price             float64    `json:"price"`
	Condition         string     `json:"condition"`
	CardID            uint       `json:"card_id"`
	CardName          string     `json:"card_name"`
	CardNumber        string     `json:"card_number"`
	SetID             uint       `json:"set_id"`
	SetName           string     `json:"set_name"`
}

// RecentPriceUpdates returns the user's most recently priced inventory
// variants, newest first.
func (s *Store) RecentPriceUpdates(ctx context.Context, userID uint, limit int) ([]RecentPriceUpdate, error) {
	var rows []RecentPriceUpdate
	err := s.db.WithContext(ctx).Raw(`
		SELECT iv.id, iv.inventory_item_id, iv.last_price_update_at,
			v.price, v.condition,
			c.id AS card_id, c.name AS card_name, c.number AS card_number,
			st.id AS set_id, st.name AS set_name
		FROM inventory_item_variants iv
		INNER JOIN inventory_items i ON i.id = iv.inventory_item_id
		INNER JOIN card_variants v ON v.id = iv.variant_id
		INNER JOIN cards c ON c.id = i.card_id
		INNER JOIN sets st ON st.id = c.set_id
		WHERE i.user_id = ? AND iv.last_price_update_at IS NOT NULL
		ORDER BY iv.last_price_update_at DESC, iv.id DESC
		LIMIT ?
	`, userID, limit).Scan(&rows).Error
	return rows, err
}
