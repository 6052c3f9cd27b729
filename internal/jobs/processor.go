package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codyseavey/mythicstats/internal/models"
	"github.com/codyseavey/mythicstats/internal/services"
	"github.com/codyseavey/mythicstats/internal/store"
)

// Outcome is the state a processed job should move to.
type Outcome struct {
	State State
	// RunAt is the fire time of a delayed job.
	RunAt time.Time
	// Summary describes completed work for logging.
	Summary any
}

// Processor runs one job.
type Processor interface {
	Process(ctx context.Context, job *Job) (Outcome, error)
}

// Deps are the services processors run against.
type Deps struct {
	Store    *store.Store
	Syncer   *services.Syncer
	Tracking *services.TrackingService
	Prices   *services.PriceUpdateService
}

// NewDeps wires the processor services over one store and syncer.
func NewDeps(st *store.Store, syncer *services.Syncer, now func() time.Time) Deps {
	return Deps{
		Store:    st,
		Syncer:   syncer,
		Tracking: services.NewTrackingService(st, syncer, now),
		Prices:   services.NewPriceUpdateService(st, syncer, now),
	}
}

// runFunc is the body of a job kind. check must run before every
// API-bound unit.
type runFunc func(ctx context.Context, sync *services.CatalogSynchronizer, check services.UnitCheck) (any, error)

// NewProcessor returns the processor for name, spending from user's quota.
func NewProcessor(name string, deps Deps, user *models.User) (Processor, error) {
	var run runFunc
	switch name {
	case DiscoverSets:
		run = func(ctx context.Context, sync *services.CatalogSynchronizer, check services.UnitCheck) (any, error) {
			return deps.Tracking.DiscoverSetsForTrackedGames(ctx, sync, check)
		}
	case SyncTrackedSets:
		run = func(ctx context.Context, sync *services.CatalogSynchronizer, check services.UnitCheck) (any, error) {
			return deps.Tracking.SyncCardsForTrackedSets(ctx, sync, check)
		}
	case UpdateInventoryPrices:
		run = func(ctx context.Context, sync *services.CatalogSynchronizer, check services.UnitCheck) (any, error) {
			return deps.Prices.UpdateInventoryPrices(ctx, sync, check)
		}
	default:
		return nil, fmt.Errorf("unknown job %q", name)
	}

	sync := deps.Syncer.ForUser(user)
	return &processor{
		sync:  sync,
		guard: rateGuard{ledger: sync.Ledger()},
		run:   run,
	}, nil
}

type processor struct {
	sync  *services.CatalogSynchronizer
	guard rateGuard
	run   runFunc
}

func (p *processor) Process(ctx context.Context, _ *Job) (Outcome, error) {
	if err := p.guard.Unit(); err != nil {
		return p.guard.settle(nil, err)
	}
	summary, err := p.run(ctx, p.sync, p.guard.Unit)
	return p.guard.settle(summary, err)
}

// rateGuard turns quota exhaustion into a delay until the ledger resets.
type rateGuard struct {
	ledger *services.QuotaLedger
}

// Unit refuses with a RateLimitError when not even one call fits.
func (g rateGuard) Unit() error {
	decision := g.ledger.CheckCanProceed(1)
	if decision.Allowed {
		return nil
	}
	return &services.RateLimitError{ResetTime: g.ledger.ResetTime(), Message: decision.Reason}
}

// settle maps a run's error to an outcome. Rate limits delay the job; any
// other error fails it.
func (g rateGuard) settle(summary any, err error) (Outcome, error) {
	if err == nil {
		return Outcome{State: StateCompleted, Summary: summary}, nil
	}
	var rl *services.RateLimitError
	if errors.As(err, &rl) {
		until := rl.ResetTime
		if until.IsZero() {
			until = g.ledger.ResetTime()
		}
		return Outcome{State: StateDelayed, RunAt: until, Summary: summary}, nil
	}
	return Outcome{State: StateFailed, Summary: summary}, err
}
