package models

import (
	"time"
)

// Event types a game event may carry.
const (
	EventTypeRelease    = "release"
	EventTypeTournament = "tournament"
	EventTypeBanlist    = "banlist"
	EventTypeSpoiler    = "spoiler"
	EventTypeOther      = "other"
)

// EventTypes returns every accepted event type.
func EventTypes() []string {
	return []string{EventTypeRelease, EventTypeTournament, EventTypeBanlist, EventTypeSpoiler, EventTypeOther}
}

// IsEventType reports whether t is an accepted event type.
func IsEventType(t string) bool {
	for _, et := range EventTypes() {
		if et == t {
			return true
		}
	}
	return false
}

// GameEvent is a dated happening for a game, such as a release or a ban list
// update. Dates are whole UTC days.
type GameEvent struct {
	ID             uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	GameID         uint       `json:"game_id" gorm:"not null;index"`
	EventType      string     `json:"event_type" gorm:"not null;index"`
	Title          string     `json:"title" gorm:"not null"`
	Description    *string    `json:"description"`
	StartDate      *time.Time `json:"start_date" gorm:"index"`
	EndDate        *time.Time `json:"end_date" gorm:"index"`
	AffectsPricing bool       `json:"affects_pricing" gorm:"not null;default:false"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsActive reports whether the event has started and not yet ended on the
// day of now. An event without a start date is never active.
func (e *GameEvent) IsActive(now time.Time) bool {
	if e.StartDate == nil {
		return false
	}
	today := Day(now)
	if Day(*e.StartDate).After(today) {
		return false
	}
	return e.EndDate == nil || !Day(*e.EndDate).Before(today)
}

// IsUpcoming reports whether the event starts after the day of now.
func (e *GameEvent) IsUpcoming(now time.Time) bool {
	return e.StartDate != nil && Day(*e.StartDate).After(Day(now))
}

// ShouldTriggerPriceUpdate reports whether prices of the game's cards are
// expected to move right now.
func (e *GameEvent) ShouldTriggerPriceUpdate(now time.Time) bool {
	return e.AffectsPricing && e.IsActive(now)
}

// GameEventRequest creates or edits an event. Nil fields are left alone on
// edit. Dates use the 2006-01-02 layout.
type GameEventRequest struct {
	EventType      *string `json:"event_type"`
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	StartDate      *string `json:"start_date"`
	EndDate        *string `json:"end_date"`
	AffectsPricing *bool   `json:"affects_pricing"`
}
