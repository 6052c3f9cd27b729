package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/mythicstats/internal/models"
	"github.com/codyseavey/mythicstats/internal/services"
	"github.com/codyseavey/mythicstats/internal/store"
)

type EventHandler struct {
	events *services.GameEventService
}

func NewEventHandler(events *services.GameEventService) *EventHandler {
	return &EventHandler{events: events}
}

// List answers a game's events, optionally narrowed by ?scope=active|upcoming
// and ?affects_pricing=true.
func (h *EventHandler) List(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var filter store.EventFilter
	switch c.Query("scope") {
	case "":
	case "active":
		filter.Active = true
	case "upcoming":
		filter.Upcoming = true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope must be active or upcoming"})
		return
	}
	filter.AffectsPricing = c.Query("affects_pricing") == "true"

	events, err := h.events.List(c.Request.Context(), id, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (h *EventHandler) Create(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req models.GameEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	event, err := h.events.Create(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (h *EventHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	eventID, ok := paramID(c, "eventId")
	if !ok {
		return
	}
	var req models.GameEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	event, err := h.events.Update(c.Request.Context(), id, eventID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *EventHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	eventID, ok := paramID(c, "eventId")
	if !ok {
		return
	}
	if err := h.events.Delete(c.Request.Context(), id, eventID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
