package jobs

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/codyseavey/mythicstats/internal/services"
)

func TestNewProcessorRejectsUnknownJob(t *testing.T) {
	st := setupTestStore(t)
	user := newTestUser(t, st, "a@example.com", 100)
	fake := newFakeJustTCG(t, func(string, int) (int, any) { return http.StatusOK, cardPage("x", 0, 0, 100) })
	deps := fake.Deps(st, newTestClock(time.Now()))

	if _, err := NewProcessor("reindex-everything", deps, user); err == nil {
		t.Error("expected an error for an unknown job")
	}
	for _, name := range Names() {
		if _, err := NewProcessor(name, deps, user); err != nil {
			t.Errorf("NewProcessor(%s): %v", name, err)
		}
	}
}

func TestProcessorEntryCheckDelays(t *testing.T) {
	st := setupTestStore(t)
	user := newTestUser(t, st, "a@example.com", 0)
	trackSet(t, st, user, "base")

	fake := newFakeJustTCG(t, func(string, int) (int, any) {
		t.Error("no request expected with an empty daily budget")
		return http.StatusOK, cardPage("base", 0, 0, 0)
	})
	clock := newTestClock(time.Date(2024, 1, 15, 23, 0, 0, 0, time.UTC))

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			proc, err := NewProcessor(name, fake.Deps(st, clock), user)
			if err != nil {
				t.Fatalf("NewProcessor: %v", err)
			}
			outcome, err := proc.Process(context.Background(), &Job{Name: name, UserID: user.ID})
			if err != nil {
				t.Fatalf("expected no error for a delay, got %v", err)
			}
			if outcome.State != StateDelayed {
				t.Fatalf("expected delayed, got %s", outcome.State)
			}
			if want := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC); !outcome.RunAt.Equal(want) {
				t.Errorf("expected run at %v, got %v", want, outcome.RunAt)
			}
		})
	}
}

func TestProcessorFailsOnAPIError(t *testing.T) {
	st := setupTestStore(t)
	user := newTestUser(t, st, "a@example.com", 100)
	trackSet(t, st, user, "base")

	fake := newFakeJustTCG(t, func(string, int) (int, any) {
		return http.StatusBadRequest, map[string]any{"error": "Invalid set", "code": "INVALID_SET"}
	})
	proc, err := NewProcessor(SyncTrackedSets, fake.Deps(st, newTestClock(time.Now())), user)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}

	outcome, err := proc.Process(context.Background(), &Job{Name: SyncTrackedSets, UserID: user.ID})
	var apiErr *services.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if outcome.State != StateFailed {
		t.Errorf("expected failed, got %s", outcome.State)
	}
}

func TestRateGuardSettle(t *testing.T) {
	st := setupTestStore(t)
	user := newTestUser(t, st, "a@example.com", 100)
	clock := newTestClock(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	guard := rateGuard{ledger: services.NewQuotaLedger(user, nil, clock.Now)}

	explicit := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		err   error
		state State
		runAt time.Time
	}{
		{"success", nil, StateCompleted, time.Time{}},
		{"rate limit with reset", &services.RateLimitError{ResetTime: explicit}, StateDelayed, explicit},
		{"rate limit without reset", &services.RateLimitError{}, StateDelayed, time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)},
		{"other error", &services.NetworkError{Cause: errors.New("reset")}, StateFailed, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, _ := guard.settle(nil, tt.err)
			if outcome.State != tt.state || !outcome.RunAt.Equal(tt.runAt) {
				t.Errorf("expected %s at %v, got %s at %v", tt.state, tt.runAt, outcome.State, outcome.RunAt)
			}
		})
	}
}
