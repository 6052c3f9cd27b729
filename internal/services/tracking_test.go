package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/codyseavey/mythicstats/internal/models"
)

func TestTrackGameLifecycle(t *testing.T) {
	st := setupTestStore(t)
	user := newTestUser(t, st, 100, 100)
	game, _ := seedSet(t, st, "pokemon", "base")
	svc := NewTrackingService(st, nil, nil)
	ctx := context.Background()

	tracked, err := svc.TrackGame(ctx, user.ID, game.ID)
	if err != nil {
		t.Fatalf("TrackGame: %v", err)
	}
	if !tracked.IsActive || tracked.Game.ExternalID != "pokemon" {
		t.Errorf("unexpected tracked game %+v", tracked)
	}

	toggled, err := svc.ToggleGame(ctx, user.ID, game.ID)
	if err != nil {
		t.Fatalf("ToggleGame: %v", err)
	}
	if toggled.IsActive {
		t.Error("expected toggle to deactivate")
	}

	again, err := svc.TrackGame(ctx, user.ID, game.ID)
	if err != nil {
		t.Fatalf("TrackGame again: %v", err)
	}
	if again.ID != tracked.ID || !again.IsActive {
		t.Errorf("expected the same record reactivated, got %+v", again)
	}

	if err := svc.UntrackGame(ctx, user.ID, game.ID); err != nil {
		t.Fatalf("UntrackGame: %v", err)
	}
	_, err = svc.ToggleGame(ctx, user.ID, game.ID)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError after untrack, got %v", err)
	}

	_, err = svc.TrackGame(ctx, user.ID, 9999)
	if !errors.As(err, &nf) || nf.Entity != "game" {
		t.Errorf("expected game NotFoundError, got %v", err)
	}
}

func TestSyncCardsForTrackedSets(t *testing.T) {
	st := setupTestStore(t)
	user := newTestUser(t, st, 1000, 1000)
	game, base := seedSet(t, st, "pokemon", "base")
	ctx := context.Background()

	jungle := &models.Set{GameID: game.ID, ExternalID: "jungle", Name: "Jungle"}
	if _, err := st.UpsertSet(ctx, jungle); err != nil {
		t.Fatalf("UpsertSet: %v", err)
	}
	fossil := &models.Set{GameID: game.ID, ExternalID: "fossil", Name: "Fossil"}
	if _, err := st.UpsertSet(ctx, fossil); err != nil {
		t.Fatalf("UpsertSet: %v", err)
	}

	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Hour)
	for _, ts := range []*models.TrackedSet{
		{UserID: user.ID, SetID: base.ID, IsActive: true},
		{UserID: user.ID, SetID: jungle.ID, IsActive: true, LastSyncAt: &recent},
		{UserID: user.ID, SetID: fossil.ID, IsActive: false},
	} {
		if err := st.CreateTrackedSet(ctx, ts); err != nil {
			t.Fatalf("CreateTrackedSet: %v", err)
		}
	}
	// IsActive=false is a zero value the insert skips in favour of the default
	if err := st.SetTrackedSetActive(ctx, mustTrackedSet(t, st, user.ID, fossil.ID).ID, false); err != nil {
		t.Fatalf("SetTrackedSetActive: %v", err)
	}

	upstream := newFakeUpstream(t, func(_ int, r *http.Request) (int, any) {
		set := r.URL.Query().Get("set")
		if set != "base" {
			t.Errorf("unexpected sync of %s", set)
		}
		return http.StatusOK, page(makeCards(set, 1, 5, 100), 900, 900)
	})
	syncer := NewSyncer(upstream.API(), st, nil, fixedClock(now))
	svc := NewTrackingService(st, syncer, fixedClock(now))

	checks := 0
	run, err := svc.SyncCardsForTrackedSets(ctx, syncer.ForUser(user), func() error {
		checks++
		return nil
	})
	if err != nil {
		t.Fatalf("SyncCardsForTrackedSets: %v", err)
	}
	if run.Considered != 2 || run.Fresh != 1 || run.Processed != 1 {
		t.Errorf("unexpected run %+v", run)
	}
	if checks != 1 {
		t.Errorf("expected one unit check, got %d", checks)
	}
	if run.Totals.Created != 5 {
		t.Errorf("expected 5 created cards, got %d", run.Totals.Created)
	}
	if got := mustTrackedSet(t, st, user.ID, base.ID).LastSyncAt; got == nil || !got.Equal(now) {
		t.Errorf("expected base stamped at %v, got %v", now, got)
	}
}

func TestTrackingRunStopsOnUnitCheck(t *testing.T) {
	st := setupTestStore(t)
	user := newTestUser(t, st, 1000, 1000)
	game, _ := seedSet(t, st, "pokemon", "base")
	ctx := context.Background()

	if err := st.CreateTrackedGame(ctx, &models.TrackedGame{UserID: user.ID, GameID: game.ID, IsActive: true}); err != nil {
		t.Fatalf("CreateTrackedGame: %v", err)
	}

	upstream := newFakeUpstream(t, func(int, *http.Request) (int, any) {
		t.Error("no request expected once the check refuses")
		return http.StatusOK, page([]any{}, 900, 900)
	})
	syncer := NewSyncer(upstream.API(), st, nil, nil)
	svc := NewTrackingService(st, syncer, nil)

	stop := errors.New("stop")
	run, err := svc.DiscoverSetsForTrackedGames(ctx, syncer.ForUser(user), func() error { return stop })
	if !errors.Is(err, stop) {
		t.Fatalf("expected check error, got %v", err)
	}
	if run.Processed != 0 {
		t.Errorf("expected nothing processed, got %d", run.Processed)
	}
}

func TestSyncSetOnDemand(t *testing.T) {
	st := setupTestStore(t)
	user := newTestUser(t, st, 1000, 1000)
	_, set := seedSet(t, st, "pokemon", "base")
	ctx := context.Background()

	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	upstream := newFakeUpstream(t, func(int, *http.Request) (int, any) {
		return http.StatusOK, page(makeCards("base", 1, 2, 100), 900, 900)
	})
	syncer := NewSyncer(upstream.API(), st, nil, fixedClock(now))
	svc := NewTrackingService(st, syncer, fixedClock(now))

	if _, err := svc.SyncSet(ctx, user, set.ID, false); err != nil {
		t.Fatalf("untracked SyncSet: %v", err)
	}
	if upstream.Calls() != 1 {
		t.Fatalf("expected untracked set to sync, got %d calls", upstream.Calls())
	}

	recent := now.Add(-time.Hour)
	if err := st.CreateTrackedSet(ctx, &models.TrackedSet{UserID: user.ID, SetID: set.ID, IsActive: true, LastSyncAt: &recent}); err != nil {
		t.Fatalf("CreateTrackedSet: %v", err)
	}

	result, err := svc.SyncSet(ctx, user, set.ID, false)
	if err != nil {
		t.Fatalf("fresh SyncSet: %v", err)
	}
	if result != nil || upstream.Calls() != 1 {
		t.Errorf("expected fresh tracked set to be left alone, got %+v after %d calls", result, upstream.Calls())
	}

	result, err = svc.SyncSet(ctx, user, set.ID, true)
	if err != nil {
		t.Fatalf("forced SyncSet: %v", err)
	}
	if result == nil || upstream.Calls() != 2 {
		t.Errorf("expected forced sync, got %+v after %d calls", result, upstream.Calls())
	}
}

func mustTrackedSet(t *testing.T, st interface {
	FindTrackedSet(context.Context, uint, uint) (*models.TrackedSet, error)
}, userID, setID uint) *models.TrackedSet {
	t.Helper()
	ts, err := st.FindTrackedSet(context.Background(), userID, setID)
	if err != nil {
		t.Fatalf("FindTrackedSet: %v", err)
	}
	return ts
}
