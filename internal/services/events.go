package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/codyseavey/mythicstats/internal/logging"
	"github.com/codyseavey/mythicstats/internal/models"
	"github.com/codyseavey/mythicstats/internal/store"
)

const eventDateLayout = "2006-01-02"

// GameEventView is an event with its standing on the current day.
type GameEventView struct {
	models.GameEvent
	IsActive            bool `json:"is_active"`
	IsUpcoming          bool `json:"is_upcoming"`
	TriggersPriceUpdate bool `json:"triggers_price_update"`
}

// GameEventService manages the dated events of a game.
type GameEventService struct {
	store *store.Store
	now   func() time.Time
	log   zerolog.Logger
}

func NewGameEventService(st *store.Store, now func() time.Time) *GameEventService {
	if now == nil {
		now = time.Now
	}
	return &GameEventService{store: st, now: now, log: logging.With("events")}
}

func (s *GameEventService) view(e models.GameEvent) GameEventView {
	now := s.now()
	return GameEventView{
		GameEvent:           e,
		IsActive:            e.IsActive(now),
		IsUpcoming:          e.IsUpcoming(now),
		TriggersPriceUpdate: e.ShouldTriggerPriceUpdate(now),
	}
}

func (s *GameEventService) views(events []models.GameEvent) []GameEventView {
	out := make([]GameEventView, 0, len(events))
	for _, e := range events {
		out = append(out, s.view(e))
	}
	return out
}

// List returns a game's events, newest start first.
func (s *GameEventService) List(ctx context.Context, gameID uint, f store.EventFilter) ([]GameEventView, error) {
	if _, err := s.store.FindGameByID(ctx, gameID); err != nil {
		return nil, lookupErr("game", gameID, err)
	}
	f.Today = models.Day(s.now())
	events, err := s.store.ListGameEvents(ctx, gameID, f)
	if err != nil {
		return nil, err
	}
	return s.views(events), nil
}

// ActivePricingEvents returns the events currently moving prices of games
// the user holds cards of.
func (s *GameEventService) ActivePricingEvents(ctx context.Context, userID uint) ([]GameEventView, error) {
	events, err := s.store.ListPricingEventsForUser(ctx, userID, models.Day(s.now()))
	if err != nil {
		return nil, err
	}
	return s.views(events), nil
}

// Create adds an event. Type and title are required.
func (s *GameEventService) Create(ctx context.Context, gameID uint, req models.GameEventRequest) (*GameEventView, error) {
	if _, err := s.store.FindGameByID(ctx, gameID); err != nil {
		return nil, lookupErr("game", gameID, err)
	}
	if req.EventType == nil {
		return nil, &InputError{Field: "event_type", Reason: "is required"}
	}
	if req.Title == nil {
		return nil, &InputError{Field: "title", Reason: "is required"}
	}

	event := models.GameEvent{GameID: gameID}
	if err := applyEventRequest(&event, req); err != nil {
		return nil, err
	}
	if err := s.store.CreateGameEvent(ctx, &event); err != nil {
		return nil, err
	}

	s.log.Info().Uint("game_id", gameID).Uint("event_id", event.ID).Str("type", event.EventType).Msg("created game event")
	v := s.view(event)
	return &v, nil
}

// Update merges the non-nil request fields into an event.
func (s *GameEventService) Update(ctx context.Context, gameID, eventID uint, req models.GameEventRequest) (*GameEventView, error) {
	event, err := s.store.FindGameEvent(ctx, gameID, eventID)
	if err != nil {
		return nil, lookupErr("game event", eventID, err)
	}
	if err := applyEventRequest(event, req); err != nil {
		return nil, err
	}
	if err := s.store.SaveGameEvent(ctx, event); err != nil {
		return nil, err
	}
	v := s.view(*event)
	return &v, nil
}

func (s *GameEventService) Delete(ctx context.Context, gameID, eventID uint) error {
	if err := s.store.DeleteGameEvent(ctx, gameID, eventID); err != nil {
		return lookupErr("game event", eventID, err)
	}
	s.log.Info().Uint("game_id", gameID).Uint("event_id", eventID).Msg("deleted game event")
	return nil
}

// applyEventRequest validates and copies request fields onto e. An empty
// date string clears the date.
func applyEventRequest(e *models.GameEvent, req models.GameEventRequest) error {
	if req.EventType != nil {
		t := strings.ToLower(strings.TrimSpace(*req.EventType))
		if !models.IsEventType(t) {
			return &InputError{Field: "event_type", Reason: "must be one of " + strings.Join(models.EventTypes(), ", ")}
		}
		e.EventType = t
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return &InputError{Field: "title", Reason: "must not be empty"}
		}
		e.Title = title
	}
	if req.Description != nil {
		if d := strings.TrimSpace(*req.Description); d != "" {
			e.Description = &d
		} else {
			e.Description = nil
		}
	}
	if req.StartDate != nil {
		d, err := parseEventDate("start_date", *req.StartDate)
		if err != nil {
			return err
		}
		e.StartDate = d
	}
	if req.EndDate != nil {
		d, err := parseEventDate("end_date", *req.EndDate)
		if err != nil {
			return err
		}
		e.EndDate = d
	}
	if req.AffectsPricing != nil {
		e.AffectsPricing = *req.AffectsPricing
	}
	if e.StartDate != nil && e.EndDate != nil && e.EndDate.Before(*e.StartDate) {
		return &InputError{Field: "end_date", Reason: "must not be before start_date"}
	}
	return nil
}

func parseEventDate(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(eventDateLayout, value)
	if err != nil {
		return nil, &InputError{Field: field, Reason: "must be a date like 2024-01-31"}
	}
	return &t, nil
}
