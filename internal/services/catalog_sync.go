package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/codyseavey/mythicstats/internal/logging"
	"github.com/codyseavey/mythicstats/internal/metrics"
	"github.com/codyseavey/mythicstats/internal/models"
	"github.com/codyseavey/mythicstats/internal/store"
)

const defaultSetCacheSize = 512

// SyncResult summarizes one synchronization flow.
type SyncResult struct {
	Pages    int           `json:"pages"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Variants int           `json:"variants"`
	Dropped  int           `json:"dropped"`
	Duration time.Duration `json:"duration"`
}

func (r *SyncResult) record(entity string, outcome store.UpsertOutcome) {
	switch outcome {
	case store.Created:
		r.Created++
	case store.Updated:
		r.Updated++
	case store.Skipped:
		r.Skipped++
	}
	metrics.SyncRecordsTotal.WithLabelValues(entity, outcome.String()).Inc()
}

func (r *SyncResult) drop() {
	r.Dropped++
	metrics.SyncRecordsTotal.WithLabelValues("card", "dropped").Inc()
}

// NewSetCache builds the external-set-id to local-id cache shared by
// synchronizers.
func NewSetCache(size int) *lru.Cache[string, uint] {
	if size <= 0 {
		size = defaultSetCacheSize
	}
	cache, err := lru.New[string, uint](size)
	if err != nil {
		// only fails on a non-positive size
		panic(err)
	}
	return cache
}

// CatalogSynchronizer merges upstream catalog pages into the store for one
// user's quota. Pages of one flow are merged strictly in order.
type CatalogSynchronizer struct {
	client *JustTCGClient
	ledger *QuotaLedger
	store  *store.Store
	sets   *lru.Cache[string, uint]
	now    func() time.Time
	log    zerolog.Logger
}

// NewCatalogSynchronizer creates a synchronizer. sets may be nil.
func NewCatalogSynchronizer(client *JustTCGClient, st *store.Store, sets *lru.Cache[string, uint], now func() time.Time) *CatalogSynchronizer {
	if sets == nil {
		sets = NewSetCache(defaultSetCacheSize)
	}
	if now == nil {
		now = time.Now
	}
	return &CatalogSynchronizer{
		client: client,
		ledger: client.Ledger(),
		store:  st,
		sets:   sets,
		now:    now,
		log:    logging.With("catalog_sync").With().Uint("user_id", client.Ledger().UserID()).Logger(),
	}
}

// Ledger returns the quota ledger the synchronizer spends from.
func (s *CatalogSynchronizer) Ledger() *QuotaLedger {
	return s.ledger
}

// ensureQuota fails with a RateLimitError when not even one call fits.
func (s *CatalogSynchronizer) ensureQuota() error {
	decision := s.ledger.CheckCanProceed(1)
	if decision.Allowed {
		return nil
	}
	return &RateLimitError{ResetTime: s.ledger.ResetTime(), Message: decision.Reason}
}

// SyncGames refreshes the game list.
func (s *CatalogSynchronizer) SyncGames(ctx context.Context) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{}

	if err := s.ensureQuota(); err != nil {
		return result, err
	}
	records, err := s.client.ListGames(ctx)
	if err != nil {
		return result, err
	}
	result.Pages = 1

	for _, rec := range records {
		game := toGame(rec)
		outcome, err := s.store.UpsertGame(ctx, game)
		if err != nil {
			return result, fmt.Errorf("failed to store game %s: %w", rec.ID, err)
		}
		result.record("game", outcome)
	}

	s.finish("games", "", start, result)
	return result, nil
}

// SyncSets refreshes the sets of game and, when tracked is given, stamps
// its discovery time.
func (s *CatalogSynchronizer) SyncSets(ctx context.Context, game *models.Game, tracked *models.TrackedGame) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{}

	if err := s.ensureQuota(); err != nil {
		return result, err
	}
	records, err := s.client.ListSets(ctx, game.ExternalID)
	if err != nil {
		return result, err
	}
	result.Pages = 1

	for _, rec := range records {
		set := toSet(rec, game.ID)
		outcome, err := s.store.UpsertSet(ctx, set)
		if err != nil {
			return result, fmt.Errorf("failed to store set %s: %w", rec.ID, err)
		}
		result.record("set", outcome)
		s.sets.Add(set.ExternalID, set.ID)
	}

	if tracked != nil {
		now := s.now()
		if err := s.store.MarkDiscovered(ctx, tracked.ID, now); err != nil {
			return result, fmt.Errorf("failed to mark game %s discovered: %w", game.ExternalID, err)
		}
		tracked.LastDiscoveryAt = &now
	}

	s.finish("sets", game.ExternalID, start, result)
	return result, nil
}

// SyncCardsForSet pulls every card page of set and, when tracked is given,
// stamps its sync time after the last page.
func (s *CatalogSynchronizer) SyncCardsForSet(ctx context.Context, set *models.Set, tracked *models.TrackedSet) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{}

	err := s.paginate(ctx, CardQuery{Set: set.ExternalID}, result, func(rec CardRecord) error {
		return s.mergeCard(ctx, rec, set.ID, result)
	})
	if err != nil {
		return result, err
	}

	if tracked != nil {
		now := s.now()
		if err := s.store.MarkSynced(ctx, tracked.ID, now); err != nil {
			return result, fmt.Errorf("failed to mark set %s synced: %w", set.ExternalID, err)
		}
		tracked.LastSyncAt = &now
	}

	s.finish("cards_for_set", set.ExternalID, start, result)
	return result, nil
}

// SyncCardsForGame pulls every card page of game. Cards whose set is not in
// the local catalog are dropped.
func (s *CatalogSynchronizer) SyncCardsForGame(ctx context.Context, game *models.Game) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{}

	err := s.paginate(ctx, CardQuery{Game: game.ExternalID}, result, func(rec CardRecord) error {
		return s.mergeResolved(ctx, rec, result)
	})
	if err != nil {
		return result, err
	}

	s.finish("cards_for_game", game.ExternalID, start, result)
	return result, nil
}

// SyncBatch refreshes the given cards in chunks of the plan's batch size.
// Cards whose set is not in the local catalog are dropped.
func (s *CatalogSynchronizer) SyncBatch(ctx context.Context, externalIDs []string) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{}
	size := s.ledger.PageSize()

	for i := 0; i < len(externalIDs); i += size {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.ensureQuota(); err != nil {
			return result, err
		}

		end := min(i+size, len(externalIDs))
		records, err := s.client.GetCardsBatch(ctx, externalIDs[i:end])
		if err != nil {
			return result, err
		}
		result.Pages++
		metrics.SyncPagesTotal.Inc()

		for _, rec := range records {
			if err := s.mergeResolved(ctx, rec, result); err != nil {
				return result, err
			}
		}
	}

	s.finish("batch", fmt.Sprintf("%d cards", len(externalIDs)), start, result)
	return result, nil
}

// SyncCard refreshes a single card. Unlike the bulk flows an unknown set is
// an error here.
func (s *CatalogSynchronizer) SyncCard(ctx context.Context, externalID string) (*models.Card, error) {
	if err := s.ensureQuota(); err != nil {
		return nil, err
	}
	records, err := s.client.ListCards(ctx, CardQuery{CardID: externalID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &NotFoundError{Entity: "card", Key: externalID}
	}

	rec := records[0]
	setID, ok, err := s.resolveSet(ctx, rec.Set)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotFoundError{Entity: "set", Key: rec.Set}
	}

	result := &SyncResult{Pages: 1}
	if err := s.mergeCard(ctx, rec, setID, result); err != nil {
		return nil, err
	}
	return s.store.FindCardByExternalID(ctx, rec.ID)
}

// paginate fetches pages until one comes back shorter than the page size.
// Quota is re-checked before every page.
func (s *CatalogSynchronizer) paginate(ctx context.Context, q CardQuery, result *SyncResult, merge func(CardRecord) error) error {
	pageSize := s.ledger.PageSize()
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.ensureQuota(); err != nil {
			return err
		}

		q.Limit, q.Offset = pageSize, offset
		records, err := s.client.ListCards(ctx, q)
		if err != nil {
			return err
		}
		result.Pages++
		metrics.SyncPagesTotal.Inc()

		for _, rec := range records {
			if err := merge(rec); err != nil {
				return err
			}
		}

		if len(records) != pageSize {
			return nil
		}
	}
}

// mergeResolved merges a card whose set is looked up by external id.
func (s *CatalogSynchronizer) mergeResolved(ctx context.Context, rec CardRecord, result *SyncResult) error {
	setID, ok, err := s.resolveSet(ctx, rec.Set)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug().Str("card", rec.ID).Str("set", rec.Set).Msg("dropping card with unknown set")
		result.drop()
		return nil
	}
	return s.mergeCard(ctx, rec, setID, result)
}

// mergeCard applies the card watermark guard, then upserts every variant
// regardless of the guard.
func (s *CatalogSynchronizer) mergeCard(ctx context.Context, rec CardRecord, setID uint, result *SyncResult) error {
	card := toCard(rec, setID)
	outcome, err := s.store.UpsertCard(ctx, card)
	if err != nil {
		return fmt.Errorf("failed to store card %s: %w", rec.ID, err)
	}
	result.record("card", outcome)

	now := s.now()
	for _, vr := range rec.Variants {
		if vr.ID == "" {
			continue
		}
		variant := toVariant(vr, card.ID)
		if err := s.store.UpsertVariant(ctx, variant, variant.PricedAt(now)); err != nil {
			return fmt.Errorf("failed to store variant %s: %w", vr.ID, err)
		}
		result.Variants++
	}
	return nil
}

func (s *CatalogSynchronizer) resolveSet(ctx context.Context, externalID string) (uint, bool, error) {
	if externalID == "" {
		return 0, false, nil
	}
	if id, ok := s.sets.Get(externalID); ok {
		return id, true, nil
	}
	set, err := s.store.FindSetByExternalID(ctx, externalID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	s.sets.Add(externalID, set.ID)
	return set.ID, true, nil
}

func (s *CatalogSynchronizer) finish(flow, entity string, start time.Time, result *SyncResult) {
	result.Duration = time.Since(start)
	metrics.SyncDuration.WithLabelValues(flow).Observe(result.Duration.Seconds())
	s.log.Info().
		Str("flow", flow).
		Str("entity", entity).
		Int("pages", result.Pages).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Int("variants", result.Variants).
		Int("dropped", result.Dropped).
		Dur("duration", result.Duration).
		Msg("sync complete")
}

func toGame(rec GameRecord) *models.Game {
	return &models.Game{
		ExternalID:    rec.ID,
		Name:          rec.Name,
		Slug:          rec.Slug,
		CardsCount:    rec.CardsCount,
		SetsCount:     rec.SetsCount,
		LastUpdatedAt: rec.Watermark(),
	}
}

func toSet(rec SetRecord, gameID uint) *models.Set {
	count := rec.CardsCount
	if count == nil {
		count = rec.Count
	}
	return &models.Set{
		GameID:        gameID,
		ExternalID:    rec.ID,
		Name:          rec.Name,
		Slug:          rec.Slug,
		ReleaseDate:   parseDate(rec.ReleaseDate),
		CardsCount:    count,
		LastUpdatedAt: rec.Watermark(),
	}
}

func toCard(rec CardRecord, setID uint) *models.Card {
	return &models.Card{
		SetID:         setID,
		ExternalID:    rec.ID,
		Name:          rec.Name,
		Number:        string(rec.Number),
		Rarity:        rec.Rarity,
		Details:       parseDetails(rec.Details),
		TCGPlayerID:   string(rec.TCGPlayerID),
		MTGJSONID:     rec.MTGJSONID,
		ScryfallID:    rec.ScryfallID,
		LastUpdatedAt: rec.Watermark(),
	}
}

func toVariant(rec VariantRecord, cardID uint) *models.CardVariant {
	return &models.CardVariant{
		CardID:            cardID,
		ExternalID:        rec.ID,
		TCGPlayerSkuID:    string(rec.TCGPlayerSkuID),
		Condition:         models.NormalizeCondition(rec.Condition),
		Printing:          rec.Printing,
		Language:          models.NormalizeLanguage(rec.Language),
		Price:             rec.Price,
		Currency:          "USD",
		LastUpdated:       rec.LastUpdated,
		PriceChange24h:    rec.PriceChange24hr,
		PriceChange7d:     rec.PriceChange7d,
		AvgPrice7d:        rec.AvgPrice,
		MinPrice7d:        rec.MinPrice7d,
		MaxPrice7d:        rec.MaxPrice7d,
		TrendSlope7d:      rec.TrendSlope7d,
		PriceChange30d:    rec.PriceChange30d,
		AvgPrice30d:       rec.AvgPrice30d,
		MinPrice30d:       rec.MinPrice30d,
		MaxPrice30d:       rec.MaxPrice30d,
		TrendSlope30d:     rec.TrendSlope30d,
		PriceChange90d:    rec.PriceChange90d,
		MinPrice90d:       rec.MinPrice90d,
		MaxPrice90d:       rec.MaxPrice90d,
		MinPrice1y:        rec.MinPrice1y,
		MaxPrice1y:        rec.MaxPrice1y,
		MinPriceAllTime:   rec.MinPriceAllTime,
		MaxPriceAllTime:   rec.MaxPriceAllTime,
		MinPriceAllTimeAt: parseDate(rec.MinPriceAllTimeDate),
		MaxPriceAllTimeAt: parseDate(rec.MaxPriceAllTimeDate),
		PriceHistory7d:    rec.PriceHistory,
	}
}

// parseDetails accepts an object or a JSON-encoded object string.
func parseDetails(raw json.RawMessage) map[string]any {
	raw = bytes.TrimSpace(raw)
	if !hasPayload(raw) {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		raw = []byte(s)
	}
	var details map[string]any
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil
	}
	return details
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
