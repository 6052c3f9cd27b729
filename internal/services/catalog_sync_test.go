package services

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/codyseavey/mythicstats/internal/models"
)

func TestSyncCardsForSetPagination(t *testing.T) {
	st := setupTestStore(t)
	user := newTestUser(t, st, 1000, 1000)
	_, set := seedSet(t, st, "pokemon", "base")

	sizes := []int{100, 100, 37}
	upstream := newFakeUpstream(t, func(n int, r *http.Request) (int, any) {
		if n > len(sizes) {
			t.Errorf("unexpected page %d", n)
			return http.StatusOK, page([]any{}, 900, 900)
		}
		start := (n-1)*100 + 1
		return http.StatusOK, page(makeCards("base", start, sizes[n-1], 100), 1000-n, 1000-n)
	})

	sync := NewSyncer(upstream.API(), st, nil, nil).ForUser(user)
	result, err := sync.SyncCardsForSet(context.Background(), set, nil)
	if err != nil {
		t.Fatalf("SyncCardsForSet: %v", err)
	}
	if upstream.Calls() != 3 {
		t.Errorf("expected exactly 3 page requests, got %d", upstream.Calls())
	}
	if result.Pages != 3 || result.Created != 237 || result.Variants != 237 {
		t.Errorf("unexpected result %+v", result)
	}
	for i := 0; i < 3; i++ {
		q := upstream.Call(i).URL.Query()
		if q.Get("limit") != "100" {
			t.Errorf("page %d: expected limit 100, got %q", i+1, q.Get("limit"))
		}
		if i > 0 && q.Get("offset") != strconv.Itoa(i*100) {
			t.Errorf("page %d: expected offset %d, got %q", i+1, i*100, q.Get("offset"))
		}
	}

	count, err := st.CountCardsInSet(context.Background(), set.ID)
	if err != nil {
		t.Fatalf("CountCardsInSet: %v", err)
	}
	if count != 237 {
		t.Errorf("expected 237 stored cards, got %d", count)
	}

	// the ledger follows the last usage block
	if got := sync.Ledger().Status().Daily.Remaining; got != 997 {
		t.Errorf("expected daily remaining 997, got %d", got)
	}
}

func TestSyncCardsForSetStopsWhenQuotaRunsOut(t *testing.T) {
	st := setupTestStore(t)
	user := newTestUser(t, st, 1000, 1000)
	_, set := seedSet(t, st, "pokemon", "base")

	tracked := &models.TrackedSet{UserID: user.ID, SetID: set.ID, IsActive: true}
	if err := st.CreateTrackedSet(context.Background(), tracked); err != nil {
		t.Fatalf("CreateTrackedSet: %v", err)
	}

	upstream := newFakeUpstream(t, func(n int, r *http.Request) (int, any) {
		// first full page spends the last daily call
		return http.StatusOK, page(makeCards("base", (n-1)*100+1, 100, 100), 900, 0)
	})

	sync := NewSyncer(upstream.API(), st, nil, nil).ForUser(user)
	result, err := sync.SyncCardsForSet(context.Background(), set, tracked)

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if upstream.Calls() != 1 {
		t.Errorf("expected 1 call before the quota check stopped paging, got %d", upstream.Calls())
	}
	if result.Pages != 1 || result.Created != 100 {
		t.Errorf("expected the first page to be kept, got %+v", result)
	}

	stored, err := st.FindTrackedSet(context.Background(), user.ID, set.ID)
	if err != nil {
		t.Fatalf("FindTrackedSet: %v", err)
	}
	if stored.LastSyncAt != nil {
		t.Error("expected an interrupted sync to leave the set unstamped")
	}

	reloaded, err := st.GetUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if reloaded.QuotaState.DailyRemaining != 0 {
		t.Errorf("expected persisted daily remaining 0, got %d", reloaded.QuotaState.DailyRemaining)
	}
}

func TestSyncRefusesWithoutQuota(t *testing.T) {
	st := setupTestStore(t)
	user := newTestUser(t, st, 0, 50)

	upstream := newFakeUpstream(t, func(int, *http.Request) (int, any) {
		t.Error("no request expected without quota")
		return http.StatusOK, page([]any{}, 0, 50)
	})

	_, err := NewSyncer(upstream.API(), st, nil, nil).ForUser(user).SyncGames(context.Background())
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rl.Message != "Monthly limit exceeded. 0 remaining, need 1" {
		t.Errorf("unexpected reason %q", rl.Message)
	}
}

func TestSyncCardsForGameDropsUnknownSets(t *testing.T) {
	st := setupTestStore(t)
	user := newTestUser(t, st, 1000, 1000)
	game, _ := seedSet(t, st, "pokemon", "base")

	upstream := newFakeUpstream(t, func(int, *http.Request) (int, any) {
		cards := append(makeCards("base", 1, 3, 100), makeCards("ghost", 1, 2, 100)...)
		return http.StatusOK, page(cards, 900, 900)
	})

	result, err := NewSyncer(upstream.API(), st, nil, nil).ForUser(user).SyncCardsForGame(context.Background(), game)
	if err != nil {
		t.Fatalf("SyncCardsForGame: %v", err)
	}
	if result.Created != 3 || result.Dropped != 2 {
		t.Errorf("expected 3 created and 2 dropped, got %+v", result)
	}
	if q := upstream.Call(0).URL.Query(); q.Get("game") != "pokemon" {
		t.Errorf("expected game query, got %s", q.Encode())
	}
	if _, err := st.FindCardByExternalID(context.Background(), "ghost-card-1"); err == nil {
		t.Error("expected card of unknown set to be dropped")
	}
}

func TestSyncCard(t *testing.T) {
	st := setupTestStore(t)
	user := newTestUser(t, st, 1000, 1000)
	seedSet(t, st, "pokemon", "base")

	upstream := newFakeUpstream(t, func(_ int, r *http.Request) (int, any) {
		switch r.URL.Query().Get("cardId") {
		case "base-card-4":
			return http.StatusOK, page(makeCards("base", 4, 1, 100), 900, 900)
		case "ghost-card-1":
			return http.StatusOK, page(makeCards("ghost", 1, 1, 100), 900, 900)
		default:
			return http.StatusOK, page([]any{}, 900, 900)
		}
	})
	sync := NewSyncer(upstream.API(), st, nil, nil).ForUser(user)
	ctx := context.Background()

	t.Run("known set", func(t *testing.T) {
		card, err := sync.SyncCard(ctx, "base-card-4")
		if err != nil {
			t.Fatalf("SyncCard: %v", err)
		}
		if card.ExternalID != "base-card-4" || card.Name != "Card 4" {
			t.Errorf("unexpected card %+v", card)
		}
	})

	t.Run("unknown set is an error", func(t *testing.T) {
		_, err := sync.SyncCard(ctx, "ghost-card-1")
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
		if nf.Entity != "set" || nf.Key != "ghost" {
			t.Errorf("unexpected not found %+v", nf)
		}
	})

	t.Run("unknown card", func(t *testing.T) {
		_, err := sync.SyncCard(ctx, "nope")
		var nf *NotFoundError
		if !errors.As(err, &nf) || nf.Entity != "card" {
			t.Fatalf("expected card NotFoundError, got %v", err)
		}
	})
}

func TestSkippedCardStillUpdatesVariants(t *testing.T) {
	st := setupTestStore(t)
	user := newTestUser(t, st, 1000, 1000)
	_, set := seedSet(t, st, "pokemon", "base")

	price := 2.0
	variantStamp := int64(1000)
	upstream := newFakeUpstream(t, func(int, *http.Request) (int, any) {
		return http.StatusOK, page([]map[string]any{{
			"id":           "base-4",
			"name":         "Charizard",
			"set":          "base",
			"last_updated": 500,
			"variants": []map[string]any{{
				"id":          "base-4_nm",
				"condition":   "Near Mint",
				"printing":    "Holofoil",
				"price":       price,
				"lastUpdated": variantStamp,
			}},
		}}, 900, 900)
	})
	sync := NewSyncer(upstream.API(), st, nil, nil).ForUser(user)
	ctx := context.Background()

	first, err := sync.SyncCardsForSet(ctx, set, nil)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if first.Created != 1 {
		t.Fatalf("expected card created, got %+v", first)
	}

	price = 5.0
	variantStamp = 2000
	second, err := sync.SyncCardsForSet(ctx, set, nil)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if second.Skipped != 1 || second.Variants != 1 {
		t.Errorf("expected card skipped with its variant merged, got %+v", second)
	}

	variant, err := st.FindVariantByExternalID(ctx, "base-4_nm")
	if err != nil {
		t.Fatalf("FindVariantByExternalID: %v", err)
	}
	if variant.Price != 5.0 {
		t.Errorf("expected variant price 5.0, got %v", variant.Price)
	}
	if variant.Condition != models.PriceConditionNM {
		t.Errorf("expected normalized condition NM, got %s", variant.Condition)
	}

	history, err := st.PriceHistory(ctx, variant.ID)
	if err != nil {
		t.Fatalf("PriceHistory: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("expected 2 price points, got %d", len(history))
	}
}

func TestSyncSetsStampsTrackedGame(t *testing.T) {
	st := setupTestStore(t)
	user := newTestUser(t, st, 1000, 1000)
	game, _ := seedSet(t, st, "pokemon", "base")
	ctx := context.Background()

	tracked := &models.TrackedGame{UserID: user.ID, GameID: game.ID, IsActive: true}
	if err := st.CreateTrackedGame(ctx, tracked); err != nil {
		t.Fatalf("CreateTrackedGame: %v", err)
	}

	upstream := newFakeUpstream(t, func(int, *http.Request) (int, any) {
		return http.StatusOK, page([]map[string]any{
			{"id": "base", "name": "Base Set", "release_date": "1999-01-09", "cards_count": 102},
			{"id": "jungle", "name": "Jungle", "count": 64},
		}, 900, 900)
	})
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	sync := NewSyncer(upstream.API(), st, nil, fixedClock(now)).ForUser(user)

	result, err := sync.SyncSets(ctx, game, tracked)
	if err != nil {
		t.Fatalf("SyncSets: %v", err)
	}
	if result.Created != 1 || result.Updated != 1 {
		t.Errorf("expected 1 created and 1 updated, got %+v", result)
	}

	stored, err := st.FindTrackedGame(ctx, user.ID, game.ID)
	if err != nil {
		t.Fatalf("FindTrackedGame: %v", err)
	}
	if stored.LastDiscoveryAt == nil || !stored.LastDiscoveryAt.Equal(now) {
		t.Errorf("expected discovery stamp %v, got %v", now, stored.LastDiscoveryAt)
	}

	jungle, err := st.FindSetByExternalID(ctx, "jungle")
	if err != nil {
		t.Fatalf("FindSetByExternalID: %v", err)
	}
	if jungle.CardsCount == nil || *jungle.CardsCount != 64 {
		t.Errorf("expected count fallback 64, got %v", jungle.CardsCount)
	}
	base, err := st.FindSetByExternalID(ctx, "base")
	if err != nil {
		t.Fatalf("FindSetByExternalID: %v", err)
	}
	if base.ReleaseDate == nil || base.ReleaseDate.Year() != 1999 {
		t.Errorf("expected release date parsed, got %v", base.ReleaseDate)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"2023-03-31", "2023-03-31T00:00:00Z"},
		{"2023-03-31T08:30:00Z", "2023-03-31T08:30:00Z"},
		{"2023-03-31T08:30:00", "2023-03-31T08:30:00Z"},
		{"", ""},
		{"March 2023", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseDate(tt.input)
			if tt.expected == "" {
				if got != nil {
					t.Errorf("expected nil, got %v", got)
				}
				return
			}
			if got == nil || got.Format(time.RFC3339) != tt.expected {
				t.Errorf("expected %s, got %v", tt.expected, got)
			}
		})
	}
}
