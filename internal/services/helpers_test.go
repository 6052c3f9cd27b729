package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/codyseavey/mythicstats/internal/database"
	"github.com/codyseavey/mythicstats/internal/models"
	"github.com/codyseavey/mythicstats/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := database.Open(database.Options{
		Path:    filepath.Join(t.TempDir(), "test.db"),
		Migrate: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return store.New(db)
}

// newTestUser creates a paid-plan user with the given remaining budget and
// no per-minute pacing.
func newTestUser(t *testing.T, st *store.Store, monthly, daily int) *models.User {
	t.Helper()
	u, err := st.EnsureUser(context.Background(), fmt.Sprintf("user-%d@example.com", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	u.QuotaState = models.QuotaState{
		Plan:             "Pro",
		MonthlyLimit:     10000,
		DailyLimit:       1000,
		MonthlyRemaining: monthly,
		DailyRemaining:   daily,
	}
	if err := st.SaveQuota(context.Background(), u); err != nil {
		t.Fatalf("SaveQuota: %v", err)
	}
	return u
}

// fakeUpstream is an httptest JustTCG that records every request.
type fakeUpstream struct {
	t      *testing.T
	server *httptest.Server

	mu      sync.Mutex
	calls   []*http.Request
	handler func(n int, r *http.Request) (int, any)
}

func newFakeUpstream(t *testing.T, handler func(n int, r *http.Request) (int, any)) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{t: t, handler: handler}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, r)
		n := len(f.calls)
		f.mu.Unlock()

		status, body := f.handler(n, r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body != nil {
			json.NewEncoder(w).Encode(body)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeUpstream) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeUpstream) Call(i int) *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

// API returns a JustTCG pointed at the fake with retries that never sleep.
func (f *fakeUpstream) API() *JustTCG {
	return NewJustTCG(JustTCGOptions{
		BaseURL: f.server.URL,
		Sleep:   func(context.Context, time.Duration) error { return nil },
	})
}

func usageBlock(monthlyRemaining, dailyRemaining int) map[string]any {
	return map[string]any{
		"apiPlan":                   "Pro",
		"apiRequestLimit":           10000,
		"apiDailyLimit":             1000,
		"apiRequestsRemaining":      monthlyRemaining,
		"apiDailyRequestsRemaining": dailyRemaining,
	}
}

func page(data any, monthlyRemaining, dailyRemaining int) map[string]any {
	return map[string]any{
		"data":      data,
		"_metadata": usageBlock(monthlyRemaining, dailyRemaining),
	}
}

// makeCards returns n card records of set, numbered from start.
func makeCards(set string, start, n int, watermark int64) []map[string]any {
	cards := make([]map[string]any, 0, n)
	for i := start; i < start+n; i++ {
		id := fmt.Sprintf("%s-card-%d", set, i)
		cards = append(cards, map[string]any{
			"id":           id,
			"name":         fmt.Sprintf("Card %d", i),
			"set":          set,
			"number":       fmt.Sprintf("%d", i),
			"last_updated": watermark,
			"variants": []map[string]any{
				{"id": id + "_nm", "condition": "Near Mint", "printing": "Normal", "price": 1.0 + float64(i), "lastUpdated": watermark},
			},
		})
	}
	return cards
}

func seedSet(t *testing.T, st *store.Store, gameExt, setExt string) (*models.Game, *models.Set) {
	t.Helper()
	ctx := context.Background()
	game := &models.Game{ExternalID: gameExt, Name: gameExt}
	if _, err := st.UpsertGame(ctx, game); err != nil {
		t.Fatalf("UpsertGame: %v", err)
	}
	set := &models.Set{GameID: game.ID, ExternalID: setExt, Name: setExt}
	if _, err := st.UpsertSet(ctx, set); err != nil {
		t.Fatalf("UpsertSet: %v", err)
	}
	return game, set
}
