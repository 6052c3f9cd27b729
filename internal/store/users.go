package store

import (
	"context"

	"github.com/codyseavey/mythicstats/internal/models"
)

func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Take(&u, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// EnsureUser returns the user with the given email, creating it with the
// default free tier quota when missing.
func (s *Store) EnsureUser(ctx context.Context, email string) (*models.User, error) {
	u := models.User{Email: email}
	err := s.db.WithContext(ctx).
		Where(models.User{Email: email}).
		Attrs(models.User{Name: email, QuotaState: defaultQuota()}).
		FirstOrCreate(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).Order("id").Find(&users).Error
	return users, err
}

// SaveQuota writes the user's quota columns, including zero values.
func (s *Store) SaveQuota(ctx context.Context, user *models.User) error {
	q := user.QuotaState
	return s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"quota_plan":                      q.Plan,
		"quota_monthly_limit":             q.MonthlyLimit,
		"quota_daily_limit":               q.DailyLimit,
		"quota_requests_per_minute_limit": q.RequestsPerMinuteLimit,
		"quota_monthly_used":              q.MonthlyUsed,
		"quota_daily_used":                q.DailyUsed,
		"quota_monthly_remaining":         q.MonthlyRemaining,
		"quota_daily_remaining":           q.DailyRemaining,
		"quota_last_updated_at":           q.LastUpdatedAt,
	}).Error
}

func defaultQuota() models.QuotaState {
	return models.QuotaState{
		Plan:                   models.FreeTierPlan,
		MonthlyLimit:           1000,
		DailyLimit:             100,
		RequestsPerMinuteLimit: 10,
		MonthlyRemaining:       1000,
		DailyRemaining:         100,
	}
}
