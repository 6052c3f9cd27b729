package services

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codyseavey/mythicstats/internal/models"
	"github.com/codyseavey/mythicstats/internal/store"
)

// Syncer builds per-user synchronizers over one shared upstream, store and
// set cache.
type Syncer struct {
	api   *JustTCG
	store *store.Store
	sets  *lru.Cache[string, uint]
	now   func() time.Time
}

func NewSyncer(api *JustTCG, st *store.Store, sets *lru.Cache[string, uint], now func() time.Time) *Syncer {
	if sets == nil {
		sets = NewSetCache(defaultSetCacheSize)
	}
	if now == nil {
		now = time.Now
	}
	return &Syncer{api: api, store: st, sets: sets, now: now}
}

// Ledger returns a quota ledger for user persisted through the store.
func (f *Syncer) Ledger(user *models.User) *QuotaLedger {
	return NewQuotaLedger(user, f.store, f.now)
}

// ForUser returns a synchronizer spending from user's quota.
func (f *Syncer) ForUser(user *models.User) *CatalogSynchronizer {
	client := f.api.ForUser(f.Ledger(user))
	return NewCatalogSynchronizer(client, f.store, f.sets, f.now)
}
