package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/codyseavey/mythicstats/internal/metrics"
	"github.com/codyseavey/mythicstats/internal/models"
)

const (
	freeTierPageSize = 20
	paidPageSize     = 100
)

// Usage is the usage block JustTCG attaches to responses. Absent fields are
// nil and leave the stored value untouched.
type Usage struct {
	Plan             *string `json:"apiPlan,omitempty"`
	MonthlyLimit     *int    `json:"apiRequestLimit,omitempty"`
	DailyLimit       *int    `json:"apiDailyLimit,omitempty"`
	RateLimit        *int    `json:"apiRateLimit,omitempty"`
	MonthlyUsed      *int    `json:"apiRequestsUsed,omitempty"`
	DailyUsed        *int    `json:"apiDailyRequestsUsed,omitempty"`
	MonthlyRemaining *int    `json:"apiRequestsRemaining,omitempty"`
	DailyRemaining   *int    `json:"apiDailyRequestsRemaining,omitempty"`
}

// QuotaRepo persists a user's quota columns.
type QuotaRepo interface {
	SaveQuota(ctx context.Context, user *models.User) error
}

// QuotaDecision is the answer to CheckCanProceed.
type QuotaDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// QuotaWindow is one limit/used/remaining triple for display.
type QuotaWindow struct {
	Limit      int     `json:"limit"`
	Used       int     `json:"used"`
	Remaining  int     `json:"remaining"`
	Percentage float64 `json:"percentage"`
}

// QuotaStatus is the display snapshot of a ledger.
type QuotaStatus struct {
	Plan              string      `json:"plan"`
	Monthly           QuotaWindow `json:"monthly"`
	Daily             QuotaWindow `json:"daily"`
	RequestsPerMinute int         `json:"requests_per_minute"`
	CanMakeRequest    bool        `json:"can_make_request"`
	NearLimit         bool        `json:"near_limit"`
	ResetTime         time.Time   `json:"reset_time"`
	LastUpdatedAt     *time.Time  `json:"last_updated_at,omitempty"`
}

// QuotaLedger tracks one user's remaining JustTCG budget. Counters only
// change through ApplyUsageReport; the upstream numbers are authoritative.
type QuotaLedger struct {
	mu   sync.Mutex
	user *models.User
	repo QuotaRepo
	now  func() time.Time
}

// NewQuotaLedger binds a ledger to user. A nil clock uses time.Now.
func NewQuotaLedger(user *models.User, repo QuotaRepo, now func() time.Time) *QuotaLedger {
	if now == nil {
		now = time.Now
	}
	return &QuotaLedger{user: user, repo: repo, now: now}
}

// UserID returns the id of the ledger's user.
func (l *QuotaLedger) UserID() uint {
	return l.user.ID
}

// CheckCanProceed reports whether required more calls fit in both the
// monthly and the daily budget. Monthly is checked first.
func (l *QuotaLedger) CheckCanProceed(required int) QuotaDecision {
	l.mu.Lock()
	defer l.mu.Unlock()

	q := l.user.QuotaState
	if q.MonthlyRemaining < required {
		return QuotaDecision{
			Reason: fmt.Sprintf("Monthly limit exceeded. %d remaining, need %d", q.MonthlyRemaining, required),
		}
	}
	if q.DailyRemaining < required {
		return QuotaDecision{
			Reason: fmt.Sprintf("Daily limit exceeded. %d remaining, need %d", q.DailyRemaining, required),
		}
	}
	return QuotaDecision{Allowed: true}
}

// ApplyUsageReport overwrites the fields present in u, stamps the ledger
// and persists it.
func (l *QuotaLedger) ApplyUsageReport(ctx context.Context, u *Usage) error {
	if u == nil {
		return nil
	}

	l.mu.Lock()
	q := &l.user.QuotaState
	if u.Plan != nil {
		q.Plan = *u.Plan
	}
	if u.MonthlyLimit != nil {
		q.MonthlyLimit = *u.MonthlyLimit
	}
	if u.DailyLimit != nil {
		q.DailyLimit = *u.DailyLimit
	}
	if u.RateLimit != nil {
		q.RequestsPerMinuteLimit = *u.RateLimit
	}
	if u.MonthlyUsed != nil {
		q.MonthlyUsed = *u.MonthlyUsed
	}
	if u.DailyUsed != nil {
		q.DailyUsed = *u.DailyUsed
	}
	if u.MonthlyRemaining != nil {
		q.MonthlyRemaining = *u.MonthlyRemaining
	}
	if u.DailyRemaining != nil {
		q.DailyRemaining = *u.DailyRemaining
	}
	now := l.now()
	q.LastUpdatedAt = &now
	snapshot := *l.user
	l.mu.Unlock()

	l.publish(&snapshot)

	if l.repo == nil {
		return nil
	}
	if err := l.repo.SaveQuota(ctx, &snapshot); err != nil {
		return fmt.Errorf("failed to persist quota: %w", err)
	}
	return nil
}

// ResetTime is the earlier of the next UTC midnight and the first of the
// next UTC month.
func (l *QuotaLedger) ResetTime() time.Time {
	return nextReset(l.now())
}

func nextReset(now time.Time) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	month := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	if month.Before(day) {
		return month
	}
	return day
}

// PageSize is the page and batch size the user's plan allows.
func (l *QuotaLedger) PageSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.user.QuotaState.IsFreeTier() {
		return freeTierPageSize
	}
	return paidPageSize
}

// RequestsPerMinute returns the plan's per-minute limit, 0 when unknown.
func (l *QuotaLedger) RequestsPerMinute() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.user.QuotaState.RequestsPerMinuteLimit
}

// Status returns a display snapshot of the ledger.
func (l *QuotaLedger) Status() QuotaStatus {
	decision := l.CheckCanProceed(1)

	l.mu.Lock()
	q := l.user.QuotaState
	l.mu.Unlock()

	return QuotaStatus{
		Plan: q.Plan,
		Monthly: QuotaWindow{
			Limit:      q.MonthlyLimit,
			Used:       q.MonthlyUsed,
			Remaining:  q.MonthlyRemaining,
			Percentage: q.MonthlyUsedPercent(),
		},
		Daily: QuotaWindow{
			Limit:      q.DailyLimit,
			Used:       q.DailyUsed,
			Remaining:  q.DailyRemaining,
			Percentage: q.DailyUsedPercent(),
		},
		RequestsPerMinute: q.RequestsPerMinuteLimit,
		CanMakeRequest:    decision.Allowed,
		NearLimit:         q.IsNearLimit(),
		ResetTime:         l.ResetTime(),
		LastUpdatedAt:     q.LastUpdatedAt,
	}
}

func (l *QuotaLedger) publish(u *models.User) {
	id := strconv.FormatUint(uint64(u.ID), 10)
	q := u.QuotaState
	metrics.JustTCGQuotaRemaining.WithLabelValues(id).Set(float64(q.DailyRemaining))
	metrics.JustTCGQuotaLimit.WithLabelValues(id).Set(float64(q.DailyLimit))
	metrics.JustTCGMonthlyQuotaRemaining.WithLabelValues(id).Set(float64(q.MonthlyRemaining))
	metrics.JustTCGMonthlyQuotaLimit.WithLabelValues(id).Set(float64(q.MonthlyLimit))
}
