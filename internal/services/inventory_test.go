package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestInventoryLifecycle(t *testing.T) {
	st := setupTestStore(t)
	user := newTestUser(t, st, 1000, 1000)
	_, set := seedSet(t, st, "pokemon", "base")
	ctx := context.Background()

	variants := []map[string]any{
		{"id": "base-4_nm", "condition": "Near Mint", "printing": "Holofoil", "price": 300.0},
		{"id": "base-4_lp", "condition": "Lightly Played", "printing": "Holofoil", "price": 200.0},
	}
	upstream := newFakeUpstream(t, func(int, *http.Request) (int, any) {
		return http.StatusOK, page([]map[string]any{{
			"id": "base-4", "name": "Charizard", "set": "base", "variants": variants,
		}}, 900, 900)
	})
	sync := NewSyncer(upstream.API(), st, nil, nil).ForUser(user)
	if _, err := sync.SyncCardsForSet(ctx, set, nil); err != nil {
		t.Fatalf("SyncCardsForSet: %v", err)
	}
	card, err := st.FindCardByExternalID(ctx, "base-4")
	if err != nil {
		t.Fatalf("FindCardByExternalID: %v", err)
	}

	svc := NewInventoryService(st)
	item, err := svc.AddCard(ctx, user.ID, card.ID, "binder")
	if err != nil {
		t.Fatalf("AddCard: %v", err)
	}
	if len(item.Variants) != 2 {
		t.Fatalf("expected a row per variant, got %d", len(item.Variants))
	}
	for _, v := range item.Variants {
		if v.Quantity != 0 {
			t.Errorf("expected zero quantity, got %d", v.Quantity)
		}
	}

	readded, err := svc.AddCard(ctx, user.ID, card.ID, "deck box")
	if err != nil {
		t.Fatalf("AddCard again: %v", err)
	}
	if readded.ID != item.ID || readded.Notes != "deck box" || len(readded.Variants) != 2 {
		t.Errorf("expected notes updated on the same item, got %+v", readded)
	}

	var nm uint
	for _, v := range item.Variants {
		if v.Variant.ExternalID == "base-4_nm" {
			nm = v.ID
		}
	}
	if _, err := svc.UpdateVariantQuantity(ctx, user.ID, nm, 2); err != nil {
		t.Fatalf("UpdateVariantQuantity: %v", err)
	}
	if _, err := svc.UpdateVariantQuantity(ctx, user.ID, nm, -1); err == nil {
		t.Error("expected negative quantity to be rejected")
	}

	value, err := svc.ItemValue(ctx, user.ID, item.ID)
	if err != nil {
		t.Fatalf("ItemValue: %v", err)
	}
	if value != 600 {
		t.Errorf("expected value 600, got %v", value)
	}

	// a new printing appears upstream
	variants = append(variants, map[string]any{"id": "base-4_nm_1st", "condition": "Near Mint", "printing": "1st Edition Holofoil", "price": 5000.0})
	if _, err := sync.SyncCardsForSet(ctx, set, nil); err != nil {
		t.Fatalf("second SyncCardsForSet: %v", err)
	}
	resync, err := svc.ResyncVariants(ctx, user.ID, item.ID)
	if err != nil {
		t.Fatalf("ResyncVariants: %v", err)
	}
	if resync.Added != 1 || resync.Removed != 0 {
		t.Errorf("expected 1 added, got %+v", resync)
	}

	other := newTestUser(t, st, 10, 10)
	if _, err := svc.UpdateVariantQuantity(ctx, other.ID, nm, 5); err == nil {
		t.Error("expected another user's variant to be unreachable")
	}

	if err := svc.RemoveItem(ctx, user.ID, item.ID); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	var nf *NotFoundError
	if _, err := svc.ItemValue(ctx, user.ID, item.ID); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError after removal, got %v", err)
	}
}
