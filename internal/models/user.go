package models

import (
	"time"
)

// FreeTierPlan is the plan name JustTCG reports for unpaid keys.
const FreeTierPlan = "Free Tier"

// NearLimitThreshold is the remaining-call count below which a quota is
// shown as nearly exhausted.
const NearLimitThreshold = 10

// QuotaState mirrors the upstream usage report. Remaining counters are only
// ever written from that report.
type QuotaState struct {
	Plan                   string     `json:"plan" gorm:"default:'Free Tier'"`
	MonthlyLimit           int        `json:"monthly_limit" gorm:"default:1000"`
	DailyLimit             int        `json:"daily_limit" gorm:"default:100"`
	RequestsPerMinuteLimit int        `json:"requests_per_minute_limit" gorm:"default:10"`
	MonthlyUsed            int        `json:"monthly_used"`
	DailyUsed              int        `json:"daily_used"`
	MonthlyRemaining       int        `json:"monthly_remaining" gorm:"default:1000"`
	DailyRemaining         int        `json:"daily_remaining" gorm:"default:100"`
	LastUpdatedAt          *time.Time `json:"last_updated_at"`
}

// IsFreeTier reports whether the user is on the smallest page size.
func (q *QuotaState) IsFreeTier() bool {
	return q.Plan == FreeTierPlan
}

// IsNearLimit reports whether either remaining counter is almost spent.
func (q *QuotaState) IsNearLimit() bool {
	return q.MonthlyRemaining < NearLimitThreshold || q.DailyRemaining < NearLimitThreshold
}

func (q *QuotaState) MonthlyUsedPercent() float64 {
	return usedPercent(q.MonthlyUsed, q.MonthlyLimit)
}

func (q *QuotaState) DailyUsedPercent() float64 {
	return usedPercent(q.DailyUsed, q.DailyLimit)
}

func usedPercent(used, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(used) / float64(limit) * 100
}

// User owns tracking records, inventory and a JustTCG quota.
type User struct {
	ID         uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	Email      string     `json:"email" gorm:"not null;uniqueIndex"`
	Name       string     `json:"name"`
	QuotaState QuotaState `json:"quota" gorm:"embedded;embeddedPrefix:quota_"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
