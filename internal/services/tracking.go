package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/codyseavey/mythicstats/internal/logging"
	"github.com/codyseavey/mythicstats/internal/models"
	"github.com/codyseavey/mythicstats/internal/store"
)

// UnitCheck runs before each API-bound unit of a tracking run. A non-nil
// error stops the run and is returned as is.
type UnitCheck func() error

// TrackingRun summarizes a pass over a user's tracking records.
type TrackingRun struct {
	Considered int        `json:"considered"`
	Fresh      int        `json:"fresh"`
	Processed  int        `json:"processed"`
	Totals     SyncResult `json:"totals"`
}

func (r *TrackingRun) add(res *SyncResult) {
	if res == nil {
		return
	}
	r.Totals.Pages += res.Pages
	r.Totals.Created += res.Created
	r.Totals.Updated += res.Updated
	r.Totals.Skipped += res.Skipped
	r.Totals.Variants += res.Variants
	r.Totals.Dropped += res.Dropped
	r.Totals.Duration += res.Duration
}

// TrackingService manages tracked games and sets and drives their
// discovery and sync.
type TrackingService struct {
	store  *store.Store
	syncer *Syncer
	now    func() time.Time
	log    zerolog.Logger
}

func NewTrackingService(st *store.Store, syncer *Syncer, now func() time.Time) *TrackingService {
	if now == nil {
		now = time.Now
	}
	return &TrackingService{store: st, syncer: syncer, now: now, log: logging.With("tracking")}
}

// TrackGame starts tracking a game, reactivating an existing record.
func (s *TrackingService) TrackGame(ctx context.Context, userID, gameID uint) (*models.TrackedGame, error) {
	game, err := s.store.FindGameByID(ctx, gameID)
	if err != nil {
		return nil, lookupErr("game", gameID, err)
	}

	tracked, err := s.store.FindTrackedGame(ctx, userID, gameID)
	switch {
	case err == nil:
		if !tracked.IsActive {
			if err := s.store.SetTrackedGameActive(ctx, tracked.ID, true); err != nil {
				return nil, err
			}
			tracked.IsActive = true
		}
		return tracked, nil
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, err
	}

	tracked = &models.TrackedGame{UserID: userID, GameID: gameID, IsActive: true}
	if err := s.store.CreateTrackedGame(ctx, tracked); err != nil {
		return nil, err
	}
	tracked.Game = *game
	s.log.Info().Uint("user_id", userID).Str("game", game.ExternalID).Msg("tracking game")
	return tracked, nil
}

// UntrackGame deletes the tracking record of a game.
func (s *TrackingService) UntrackGame(ctx context.Context, userID, gameID uint) error {
	return s.store.DeleteTrackedGame(ctx, userID, gameID)
}

// ToggleGame flips the active flag of a tracked game.
func (s *TrackingService) ToggleGame(ctx context.Context, userID, gameID uint) (*models.TrackedGame, error) {
	tracked, err := s.store.FindTrackedGame(ctx, userID, gameID)
	if err != nil {
		return nil, lookupErr("tracked game", gameID, err)
	}
	if err := s.store.SetTrackedGameActive(ctx, tracked.ID, !tracked.IsActive); err != nil {
		return nil, err
	}
	tracked.IsActive = !tracked.IsActive
	return tracked, nil
}

// TrackSet starts tracking a set, reactivating an existing record.
func (s *TrackingService) TrackSet(ctx context.Context, userID, setID uint) (*models.TrackedSet, error) {
	set, err := s.store.FindSetByID(ctx, setID)
	if err != nil {
		return nil, lookupErr("set", setID, err)
	}

	tracked, err := s.store.FindTrackedSet(ctx, userID, setID)
	switch {
	case err == nil:
		if !tracked.IsActive {
			if err := s.store.SetTrackedSetActive(ctx, tracked.ID, true); err != nil {
				return nil, err
			}
			tracked.IsActive = true
		}
		return tracked, nil
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, err
	}

	tracked = &models.TrackedSet{UserID: userID, SetID: setID, IsActive: true}
	if err := s.store.CreateTrackedSet(ctx, tracked); err != nil {
		return nil, err
	}
	tracked.Set = *set
	s.log.Info().Uint("user_id", userID).Str("set", set.ExternalID).Msg("tracking set")
	return tracked, nil
}

// UntrackSet deletes the tracking record of a set.
func (s *TrackingService) UntrackSet(ctx context.Context, userID, setID uint) error {
	return s.store.DeleteTrackedSet(ctx, userID, setID)
}

// ToggleSet flips the active flag of a tracked set.
func (s *TrackingService) ToggleSet(ctx context.Context, userID, setID uint) (*models.TrackedSet, error) {
	tracked, err := s.store.FindTrackedSet(ctx, userID, setID)
	if err != nil {
		return nil, lookupErr("tracked set", setID, err)
	}
	if err := s.store.SetTrackedSetActive(ctx, tracked.ID, !tracked.IsActive); err != nil {
		return nil, err
	}
	tracked.IsActive = !tracked.IsActive
	return tracked, nil
}

// DiscoverSetsForTrackedGames refreshes the sets of every active tracked
// game that is due. check runs before each game that needs a call.
func (s *TrackingService) DiscoverSetsForTrackedGames(ctx context.Context, sync *CatalogSynchronizer, check UnitCheck) (*TrackingRun, error) {
	userID := sync.Ledger().UserID()
	tracked, err := s.store.ListActiveTrackedGames(ctx, userID)
	if err != nil {
		return nil, err
	}

	run := &TrackingRun{Considered: len(tracked)}
	now := s.now()
	for i := range tracked {
		tg := &tracked[i]
		if !tg.NeedsDiscovery(now) {
			run.Fresh++
			continue
		}
		if check != nil {
			if err := check(); err != nil {
				return run, err
			}
		}
		res, err := sync.SyncSets(ctx, &tg.Game, tg)
		run.add(res)
		if err != nil {
			return run, err
		}
		run.Processed++
	}

	s.log.Info().Uint("user_id", userID).Int("games", run.Considered).Int("fresh", run.Fresh).
		Int("discovered", run.Processed).Msg("tracked game discovery complete")
	return run, nil
}

// SyncCardsForTrackedSets syncs every active tracked set that is due.
// check runs before each set that needs calls.
func (s *TrackingService) SyncCardsForTrackedSets(ctx context.Context, sync *CatalogSynchronizer, check UnitCheck) (*TrackingRun, error) {
	userID := sync.Ledger().UserID()
	tracked, err := s.store.ListActiveTrackedSets(ctx, userID)
	if err != nil {
		return nil, err
	}

	run := &TrackingRun{Considered: len(tracked)}
	now := s.now()
	for i := range tracked {
		ts := &tracked[i]
		if !ts.NeedsSync(now) {
			run.Fresh++
			continue
		}
		if check != nil {
			if err := check(); err != nil {
				return run, err
			}
		}
		res, err := sync.SyncCardsForSet(ctx, &ts.Set, ts)
		run.add(res)
		if err != nil {
			return run, err
		}
		run.Processed++
	}

	s.log.Info().Uint("user_id", userID).Int("sets", run.Considered).Int("fresh", run.Fresh).
		Int("synced", run.Processed).Msg("tracked set sync complete")
	return run, nil
}

// DiscoverGame refreshes one game's sets on request, stamping its tracking
// record when there is one.
func (s *TrackingService) DiscoverGame(ctx context.Context, user *models.User, gameID uint) (*SyncResult, error) {
	game, err := s.store.FindGameByID(ctx, gameID)
	if err != nil {
		return nil, lookupErr("game", gameID, err)
	}

	var tracked *models.TrackedGame
	if tg, err := s.store.FindTrackedGame(ctx, user.ID, gameID); err == nil {
		tracked = tg
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	return s.syncer.ForUser(user).SyncSets(ctx, game, tracked)
}

// SyncSet syncs one set on request. Untracked sets get a one-off sync
// without timestamps; tracked sets that are fresh are left alone unless
// force is set. A nil result means nothing was due.
func (s *TrackingService) SyncSet(ctx context.Context, user *models.User, setID uint, force bool) (*SyncResult, error) {
	set, err := s.store.FindSetByID(ctx, setID)
	if err != nil {
		return nil, lookupErr("set", setID, err)
	}

	sync := s.syncer.ForUser(user)
	tracked, err := s.store.FindTrackedSet(ctx, user.ID, setID)
	if errors.Is(err, store.ErrNotFound) {
		return sync.SyncCardsForSet(ctx, set, nil)
	}
	if err != nil {
		return nil, err
	}

	if !force && !tracked.NeedsSync(s.now()) {
		return nil, nil
	}
	return sync.SyncCardsForSet(ctx, set, tracked)
}

// lookupErr turns a store miss into a NotFoundError.
func lookupErr(entity string, id uint, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Entity: entity, Key: strconv.FormatUint(uint64(id), 10)}
	}
	return fmt.Errorf("failed to load %s %d: %w", entity, id, err)
}
