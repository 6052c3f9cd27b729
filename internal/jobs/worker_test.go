package jobs

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codyseavey/mythicstats/internal/models"
)

func TestWorkerDelaysMidRunAndRedriveSkipsFreshSets(t *testing.T) {
	st := setupTestStore(t)
	user := newTestUser(t, st, "collector@example.com", 900)
	alpha := trackSet(t, st, user, "alpha")
	beta := trackSet(t, st, user, "beta")
	ctx := context.Background()

	var limited atomic.Bool
	limited.Store(true)
	fake := newFakeJustTCG(t, func(set string, offset int) (int, any) {
		switch {
		case set == "alpha":
			return http.StatusOK, cardPage("alpha", 0, 10, 899)
		case set == "beta" && offset == 0:
			return http.StatusOK, cardPage("beta", 0, 100, 898)
		case set == "beta" && offset == 100 && limited.Load():
			return http.StatusTooManyRequests, map[string]any{
				"error":     "Daily limit reached",
				"_metadata": map[string]any{"apiDailyRequestsRemaining": 0},
			}
		case set == "beta" && offset == 100:
			return http.StatusOK, cardPage("beta", 100, 100, 800)
		default:
			return http.StatusOK, cardPage(set, offset, 37, 799)
		}
	})

	clock := newTestClock(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	queue := NewMemoryQueue(DefaultRetryPolicy, clock.Now)
	worker := NewWorker(queue, fake.Deps(st, clock), time.Second)

	job, err := queue.Enqueue(ctx, SyncTrackedSets, Payload{UserID: user.ID}, EnqueueOptions{JobID: ScheduledJobID(SyncTrackedSets, user.ID)})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	handled, err := worker.RunOnce(ctx)
	if err != nil || !handled {
		t.Fatalf("RunOnce: handled=%v err=%v", handled, err)
	}

	stored, _ := queue.Get(ctx, job.ID)
	reset := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	if stored == nil || stored.State != StateDelayed || !stored.RunAt.Equal(reset) {
		t.Fatalf("expected job delayed until %v, got %+v", reset, stored)
	}
	if stored.Attempts != 0 {
		t.Errorf("expected a delay not to count as a failed attempt, got %d", stored.Attempts)
	}
	if n := fake.Requests("beta", 200); n != 0 {
		t.Errorf("expected page 3 never fetched, got %d requests", n)
	}
	if got := trackedSyncAt(t, st, user.ID, alpha.ID); got == nil {
		t.Error("expected alpha stamped before the limit hit")
	}
	if got := trackedSyncAt(t, st, user.ID, beta.ID); got != nil {
		t.Errorf("expected beta unstamped, got %v", got)
	}

	// nothing runs before the reset
	if handled, _ := worker.RunOnce(ctx); handled {
		t.Fatal("expected the delayed job to wait for the reset")
	}

	// quota restored after the reset
	clock.Advance(13 * time.Hour)
	setQuota(t, st, user, 900)
	limited.Store(false)

	handled, err = worker.RunOnce(ctx)
	if err != nil || !handled {
		t.Fatalf("redrive RunOnce: handled=%v err=%v", handled, err)
	}
	if stored, _ := queue.Get(ctx, job.ID); stored != nil {
		t.Errorf("expected completed job removed, got %+v", stored)
	}

	if n := fake.Requests("alpha", 0); n != 1 {
		t.Errorf("expected fresh alpha skipped on redrive, got %d requests", n)
	}
	if n := fake.Requests("beta", 0); n != 2 {
		t.Errorf("expected beta restarted from page 1, got %d requests", n)
	}
	if n := fake.Requests("beta", 200); n != 1 {
		t.Errorf("expected beta page 3 fetched once, got %d", n)
	}
	if got := trackedSyncAt(t, st, user.ID, beta.ID); got == nil || !got.Equal(clock.Now()) {
		t.Errorf("expected beta stamped at %v, got %v", clock.Now(), got)
	}

	count, err := st.CountCardsInSet(ctx, beta.ID)
	if err != nil {
		t.Fatalf("CountCardsInSet: %v", err)
	}
	if count != 237 {
		t.Errorf("expected 237 beta cards without duplicates, got %d", count)
	}
}

func TestWorkerFailsJobForMissingUser(t *testing.T) {
	st := setupTestStore(t)
	fake := newFakeJustTCG(t, func(string, int) (int, any) { return http.StatusOK, cardPage("x", 0, 0, 100) })
	clock := newTestClock(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	queue := NewMemoryQueue(DefaultRetryPolicy, clock.Now)
	worker := NewWorker(queue, fake.Deps(st, clock), time.Second)
	ctx := context.Background()

	job, _ := queue.Enqueue(ctx, DiscoverSets, Payload{UserID: 4242}, EnqueueOptions{})
	if _, err := worker.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	stored, _ := queue.Get(ctx, job.ID)
	if stored.State != StatePending || stored.Attempts != 1 || stored.LastError == "" {
		t.Errorf("expected a retry scheduled, got %+v", stored)
	}
	if !stored.RunAt.Equal(clock.Now().Add(2 * time.Second)) {
		t.Errorf("expected retry after 2s, got %v", stored.RunAt)
	}
}

func TestWorkerServeStopsOnCancel(t *testing.T) {
	st := setupTestStore(t)
	fake := newFakeJustTCG(t, func(string, int) (int, any) { return http.StatusOK, cardPage("x", 0, 0, 100) })
	queue := NewMemoryQueue(DefaultRetryPolicy, nil)
	worker := NewWorker(queue, fake.Deps(st, newTestClock(time.Now())), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Serve(ctx) }()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func trackedSyncAt(t *testing.T, st interface {
	FindTrackedSet(context.Context, uint, uint) (*models.TrackedSet, error)
}, userID, setID uint) *time.Time {
	t.Helper()
	ts, err := st.FindTrackedSet(context.Background(), userID, setID)
	if err != nil {
		t.Fatalf("FindTrackedSet: %v", err)
	}
	return ts.LastSyncAt
}
