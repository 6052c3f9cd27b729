package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/codyseavey/mythicstats/internal/logging"
	"github.com/codyseavey/mythicstats/internal/metrics"
	"github.com/codyseavey/mythicstats/internal/models"
	"github.com/codyseavey/mythicstats/internal/store"
)

// PriceUpdateRun summarizes an inventory price refresh.
type PriceUpdateRun struct {
	Cards   int        `json:"cards"`
	Batches int        `json:"batches"`
	Marked  int64      `json:"marked"`
	Totals  SyncResult `json:"totals"`
}

// PriceUpdateService refreshes prices of held cards in plan-sized batches.
// Refreshes are per card: one batch entry covers every variant of it.
type PriceUpdateService struct {
	store  *store.Store
	syncer *Syncer
	now    func() time.Time
	log    zerolog.Logger
}

func NewPriceUpdateService(st *store.Store, syncer *Syncer, now func() time.Time) *PriceUpdateService {
	if now == nil {
		now = time.Now
	}
	return &PriceUpdateService{store: st, syncer: syncer, now: now, log: logging.With("price_update")}
}

// UpdateInventoryPrices refreshes every held card with a stale variant.
// After each batch every inventory variant of the batch's cards is marked
// updated. check runs before each batch.
func (s *PriceUpdateService) UpdateInventoryPrices(ctx context.Context, sync *CatalogSynchronizer, check UnitCheck) (*PriceUpdateRun, error) {
	userID := sync.Ledger().UserID()
	held, err := s.store.ListHeldVariants(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var cardIDs []uint
	seen := make(map[uint]bool)
	for i := range held {
		if !held[i].NeedsPriceUpdate(now) || seen[held[i].CardID] {
			continue
		}
		seen[held[i].CardID] = true
		cardIDs = append(cardIDs, held[i].CardID)
	}
	return s.refreshCards(ctx, sync, userID, cardIDs, check)
}

// UpdatePricesForItem refreshes one inventory item's card regardless of
// staleness.
func (s *PriceUpdateService) UpdatePricesForItem(ctx context.Context, user *models.User, itemID uint) (*PriceUpdateRun, error) {
	item, err := s.store.FindInventoryItem(ctx, user.ID, itemID)
	if err != nil {
		return nil, lookupErr("inventory item", itemID, err)
	}
	return s.refreshCards(ctx, s.syncer.ForUser(user), user.ID, []uint{item.CardID}, nil)
}

func (s *PriceUpdateService) refreshCards(ctx context.Context, sync *CatalogSynchronizer, userID uint, cardIDs []uint, check UnitCheck) (*PriceUpdateRun, error) {
	start := time.Now()
	run := &PriceUpdateRun{}

	cards, err := s.store.FindCardsByIDs(ctx, cardIDs)
	if err != nil {
		return nil, err
	}
	var externalIDs []string
	localID := make(map[string]uint, len(cards))
	for _, c := range cards {
		if c.ExternalID == "" {
			continue
		}
		externalIDs = append(externalIDs, c.ExternalID)
		localID[c.ExternalID] = c.ID
	}
	run.Cards = len(externalIDs)
	if len(externalIDs) == 0 {
		s.log.Debug().Uint("user_id", userID).Msg("no inventory prices need updating")
		return run, nil
	}

	size := sync.Ledger().PageSize()
	for i := 0; i < len(externalIDs); i += size {
		if check != nil {
			if err := check(); err != nil {
				return run, err
			}
		}

		batchStart := time.Now()
		batch := externalIDs[i:min(i+size, len(externalIDs))]
		res, err := sync.SyncBatch(ctx, batch)
		if res != nil {
			run.Totals.Pages += res.Pages
			run.Totals.Created += res.Created
			run.Totals.Updated += res.Updated
			run.Totals.Skipped += res.Skipped
			run.Totals.Variants += res.Variants
			run.Totals.Dropped += res.Dropped
		}
		if err != nil {
			return run, err
		}

		ids := make([]uint, 0, len(batch))
		for _, ext := range batch {
			ids = append(ids, localID[ext])
		}
		marked, err := s.store.MarkInventoryPricesUpdated(ctx, userID, ids, s.now())
		if err != nil {
			return run, err
		}
		run.Batches++
		run.Marked += marked
		metrics.PriceUpdatesTotal.Add(float64(marked))
		metrics.PriceBatchDuration.Observe(time.Since(batchStart).Seconds())
	}

	run.Totals.Duration = time.Since(start)
	s.log.Info().Uint("user_id", userID).Int("cards", run.Cards).Int("batches", run.Batches).
		Int64("marked", run.Marked).Dur("duration", run.Totals.Duration).Msg("inventory price update complete")
	return run, nil
}
