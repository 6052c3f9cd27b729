package jobs

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
	"github.com/codyseavey/mythicstats/internal/services"
	"github.com/codyseavey/mythicstats/internal/store"
)

// testClock is a settable clock shared by queue and services.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := database.Open(database.Options{
		Path:    filepath.Join(t.TempDir(), "jobs.db"),
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

func newTestUser(t *testing.T, st *store.Store, email string, daily int) *models.User {
	t.Helper()
	u, err := st.EnsureUser(context.Background(), email)
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	setQuota(t, st, u, daily)
	return u
}

func setQuota(t *testing.T, st *store.Store, u *models.User, daily int) {
	t.Helper()
	u.QuotaState = models.QuotaState{
		Plan:             "Pro",
		MonthlyLimit:     10000,
		DailyLimit:       1000,
		MonthlyRemaining: 5000,
		DailyRemaining:   daily,
	}
	if err := st.SaveQuota(context.Background(), u); err != nil {
		t.Fatalf("SaveQuota: %v", err)
	}
}

// trackSet stores a set under game pokemon and tracks it for user.
func trackSet(t *testing.T, st *store.Store, user *models.User, setExt string) *models.Set {
	t.Helper()
	ctx := context.Background()
	game := &models.Game{ExternalID: "pokemon", Name: "Pokemon"}
	if _, err := st.UpsertGame(ctx, game); err != nil {
		t.Fatalf("UpsertGame: %v", err)
	}
	set := &models.Set{GameID: game.ID, ExternalID: setExt, Name: setExt}
	if _, err := st.UpsertSet(ctx, set); err != nil {
		t.Fatalf("UpsertSet: %v", err)
	}
	if err := st.CreateTrackedSet(ctx, &models.TrackedSet{UserID: user.ID, SetID: set.ID, IsActive: true}); err != nil {
		t.Fatalf("CreateTrackedSet: %v", err)
	}
	return set
}

// fakeJustTCG answers card listings through handler and counts requests per
// set and offset.
type fakeJustTCG struct {
	mu       sync.Mutex
	requests map[string]int
	handler  func(set string, offset int) (int, any)
	server   *httptest.Server
}

func newFakeJustTCG(t *testing.T, handler func(set string, offset int) (int, any)) *fakeJustTCG {
	t.Helper()
	f := &fakeJustTCG{requests: make(map[string]int), handler: handler}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		set := r.URL.Query().Get("set")
		offset := 0
		fmt.Sscanf(r.URL.Query().Get("offset"), "%d", &offset)

		f.mu.Lock()
		f.requests[fmt.Sprintf("%s@%d", set, offset)]++
		f.mu.Unlock()

		status, body := f.handler(set, offset)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeJustTCG) Requests(set string, offset int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[fmt.Sprintf("%s@%d", set, offset)]
}

func (f *fakeJustTCG) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.requests {
		n += c
	}
	return n
}

func (f *fakeJustTCG) Deps(st *store.Store, clock *testClock) Deps {
	api := services.NewJustTCG(services.JustTCGOptions{
		BaseURL: f.server.URL,
		Sleep:   func(context.Context, time.Duration) error { return nil },
	})
	return NewDeps(st, services.NewSyncer(api, st, nil, clock.Now), clock.Now)
}

func cardPage(set string, offset, n int, dailyRemaining int) map[string]any {
	cards := make([]map[string]any, 0, n)
	for i := offset; i < offset+n; i++ {
		id := fmt.Sprintf("%s-%d", set, i)
		cards = append(cards, map[string]any{
			"id":           id,
			"name":         id,
			"set":          set,
			"last_updated": 100,
			"variants": []map[string]any{
				{"id": id + "_nm", "condition": "Near Mint", "printing": "Normal", "price": 1.5},
			},
		})
	}
	return map[string]any{
		"data": cards,
		"_metadata": map[string]any{
			"apiPlan":                   "Pro",
			"apiRequestsRemaining":      4000,
			"apiDailyRequestsRemaining": dailyRemaining,
		},
	}
}
