package models

import (
	"testing"
	"time"
)

func TestNormalizeCondition(t *testing.T) {
	tests := []struct {
		name      string
		condition string
		expected  PriceCondition
	}{
		{"Near Mint long form", "Near Mint", PriceConditionNM},
		{"Near Mint code", "nm", PriceConditionNM},
		{"Lightly Played", "Lightly Played", PriceConditionLP},
		{"Moderately Played", "Moderately Played", PriceConditionMP},
		{"Heavily Played", "Heavily Played", PriceConditionHP},
		{"Damaged", "Damaged", PriceConditionDMG},
		{"Sealed", "Sealed", PriceConditionS},
		{"Unknown kept verbatim", " Graded ", PriceCondition("Graded")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeCondition(tt.condition)
			if result != tt.expected {
				t.Errorf("NormalizeCondition(%q) = %s, want %s", tt.condition, result, tt.expected)
			}
		})
	}
}

func TestAllPriceConditions(t *testing.T) {
	conditions := AllPriceConditions()

	if len(conditions) != 6 {
		t.Errorf("AllPriceConditions() returned %d conditions, want 6", len(conditions))
	}

	seen := make(map[PriceCondition]bool)
	for _, cond := range conditions {
		if seen[cond] {
			t.Errorf("Duplicate condition: %s", cond)
		}
		seen[cond] = true
	}
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "English"},
		{"English", "English"},
		{"JP", "Japanese"},
		{"deu", "German"},
		{"French", "French"},
		{"ita", "Italian"},
		{"Klingon", "English"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeLanguage(tt.input); got != tt.expected {
				t.Errorf("NormalizeLanguage(%q) = %s, want %s", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCardVariantPricedAt(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	v := &CardVariant{}
	if got := v.PricedAt(now); got != now.Unix() {
		t.Errorf("expected fallback to clock %d, got %d", now.Unix(), got)
	}

	stamp := int64(1700000000)
	v.LastUpdated = &stamp
	if got := v.PricedAt(now); got != stamp {
		t.Errorf("expected upstream stamp %d, got %d", stamp, got)
	}
}

func TestIsNewerThan(t *testing.T) {
	ptr := func(v int64) *int64 { return &v }

	tests := []struct {
		name     string
		incoming *int64
		stored   *int64
		expected bool
	}{
		{"nothing stored", ptr(100), nil, true},
		{"incoming unknown", nil, ptr(100), true},
		{"both unknown", nil, nil, true},
		{"incoming newer", ptr(101), ptr(100), true},
		{"equal watermark", ptr(100), ptr(100), false},
		{"incoming older", ptr(99), ptr(100), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNewerThan(tt.incoming, tt.stored); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestStalenessGates(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	t.Run("tracked game", func(t *testing.T) {
		cases := []struct {
			name     string
			game     TrackedGame
			expected bool
		}{
			{"never discovered", TrackedGame{IsActive: true}, true},
			{"discovered yesterday", TrackedGame{IsActive: true, LastDiscoveryAt: ago(24 * time.Hour)}, false},
			{"discovered a week ago", TrackedGame{IsActive: true, LastDiscoveryAt: ago(7 * 24 * time.Hour)}, true},
			{"inactive", TrackedGame{IsActive: false}, false},
		}
		for _, c := range cases {
			if got := c.game.NeedsDiscovery(now); got != c.expected {
				t.Errorf("%s: expected %v, got %v", c.name, c.expected, got)
			}
		}
	})

	t.Run("tracked set", func(t *testing.T) {
		cases := []struct {
			name     string
			set      TrackedSet
			expected bool
		}{
			{"never synced", TrackedSet{IsActive: true}, true},
			{"synced an hour ago", TrackedSet{IsActive: true, LastSyncAt: ago(time.Hour)}, false},
			{"synced a day ago", TrackedSet{IsActive: true, LastSyncAt: ago(24 * time.Hour)}, true},
			{"inactive", TrackedSet{IsActive: false}, false},
		}
		for _, c := range cases {
			if got := c.set.NeedsSync(now); got != c.expected {
				t.Errorf("%s: expected %v, got %v", c.name, c.expected, got)
			}
		}
	})

	t.Run("inventory variant", func(t *testing.T) {
		cases := []struct {
			name     string
			variant  InventoryItemVariant
			expected bool
		}{
			{"zero quantity never priced", InventoryItemVariant{Quantity: 0}, false},
			{"held never priced", InventoryItemVariant{Quantity: 2}, true},
			{"held priced recently", InventoryItemVariant{Quantity: 2, LastPriceUpdateAt: ago(2 * time.Hour)}, false},
			{"held priced a day ago", InventoryItemVariant{Quantity: 1, LastPriceUpdateAt: ago(24 * time.Hour)}, true},
		}
		for _, c := range cases {
			if got := c.variant.NeedsPriceUpdate(now); got != c.expected {
				t.Errorf("%s: expected %v, got %v", c.name, c.expected, got)
			}
		}
	})
}

func TestQuotaStateHelpers(t *testing.T) {
	q := QuotaState{
		Plan:             FreeTierPlan,
		MonthlyLimit:     1000,
		DailyLimit:       100,
		MonthlyUsed:      250,
		DailyUsed:        95,
		MonthlyRemaining: 750,
		DailyRemaining:   5,
	}

	if !q.IsFreeTier() {
		t.Error("expected free tier")
	}
	if !q.IsNearLimit() {
		t.Error("expected near limit with 5 daily calls left")
	}
	if got := q.MonthlyUsedPercent(); got != 25 {
		t.Errorf("expected monthly 25%%, got %v", got)
	}
	if got := q.DailyUsedPercent(); got != 95 {
		t.Errorf("expected daily 95%%, got %v", got)
	}

	empty := QuotaState{}
	if got := empty.DailyUsedPercent(); got != 0 {
		t.Errorf("expected 0%% with no limit, got %v", got)
	}
}

func TestGameEventWindow(t *testing.T) {
	now := time.Date(2024, 1, 15, 18, 30, 0, 0, time.UTC)
	day := func(m time.Month, d int) *time.Time {
		ts := time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
		return &ts
	}

	tests := []struct {
		name     string
		event    GameEvent
		active   bool
		upcoming bool
		triggers bool
	}{
		{"no start date", GameEvent{AffectsPricing: true}, false, false, false},
		{"starts today", GameEvent{StartDate: day(1, 15), AffectsPricing: true}, true, false, true},
		{"open ended", GameEvent{StartDate: day(1, 1)}, true, false, false},
		{"ends today", GameEvent{StartDate: day(1, 10), EndDate: day(1, 15), AffectsPricing: true}, true, false, true},
		{"ended yesterday", GameEvent{StartDate: day(1, 10), EndDate: day(1, 14), AffectsPricing: true}, false, false, false},
		{"starts tomorrow", GameEvent{StartDate: day(1, 16), AffectsPricing: true}, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.IsActive(now); got != tt.active {
				t.Errorf("IsActive: expected %v, got %v", tt.active, got)
			}
			if got := tt.event.IsUpcoming(now); got != tt.upcoming {
				t.Errorf("IsUpcoming: expected %v, got %v", tt.upcoming, got)
			}
			if got := tt.event.ShouldTriggerPriceUpdate(now); got != tt.triggers {
				t.Errorf("ShouldTriggerPriceUpdate: expected %v, got %v", tt.triggers, got)
			}
		})
	}

	if !IsEventType(EventTypeBanlist) || IsEventType("championship") {
		t.Error("unexpected event type check")
	}
}
