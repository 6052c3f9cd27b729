package services

import (
	"context"

	"github.com/codyseavey/mythicstats/internal/models"
	"github.com/codyseavey/mythicstats/internal/store"
)

// dashboardRecentLimit caps both recent-activity lists.
const dashboardRecentLimit = 5

// DashboardSummary is the landing view of one user.
type DashboardSummary struct {
	Inventory          store.InventoryTotals     `json:"inventory"`
	APIStatus          QuotaStatus               `json:"api_status"`
	RecentSyncs        []models.TrackedSet       `json:"recent_syncs"`
	RecentPriceUpdates []store.RecentPriceUpdate `json:"recent_price_updates"`
	PricingEvents      []GameEventView           `json:"pricing_events"`
}

type DashboardService struct {
	store  *store.Store
	syncer *Syncer
	events *GameEventService
}

func NewDashboardService(st *store.Store, syncer *Syncer, events *GameEventService) *DashboardService {
	return &DashboardService{store: st, syncer: syncer, events: events}
}

// Summary assembles inventory totals, quota status and recent activity.
// It never calls JustTCG.
func (s *DashboardService) Summary(ctx context.Context, user *models.User) (*DashboardSummary, error) {
	totals, err := s.store.InventoryTotals(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	syncs, err := s.store.RecentSyncs(ctx, user.ID, dashboardRecentLimit)
	if err != nil {
		return nil, err
	}
	updates, err := s.store.RecentPriceUpdates(ctx, user.ID, dashboardRecentLimit)
	if err != nil {
		return nil, err
	}
	events, err := s.events.ActivePricingEvents(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if syncs == nil {
		syncs = []models.TrackedSet{}
	}
	if updates == nil {
		updates = []store.RecentPriceUpdate{}
	}
	return &DashboardSummary{
		Inventory:          totals,
		APIStatus:          s.syncer.Ledger(user).Status(),
		RecentSyncs:        syncs,
		RecentPriceUpdates: updates,
		PricingEvents:      events,
	}, nil
}
