package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/mythicstats/internal/services"
	"github.com/codyseavey/mythicstats/internal/store"
)

type CatalogHandler struct {
	store    *store.Store
	syncer   *services.Syncer
	tracking *services.TrackingService
}

func NewCatalogHandler(st *store.Store, syncer *services.Syncer, tracking *services.TrackingService) *CatalogHandler {
	return &CatalogHandler{store: st, syncer: syncer, tracking: tracking}
}

// SyncGames refreshes the game list from JustTCG
func (h *CatalogHandler) SyncGames(c *gin.Context) {
	result, err := h.syncer.ForUser(currentUser(c)).SyncGames(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *CatalogHandler) ListGames(c *gin.Context) {
	games, err := h.store.ListGames(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, games)
}

func (h *CatalogHandler) ListSets(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, err := h.store.FindGameByID(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	sets, err := h.store.ListSetsForGame(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sets)
}

// GetSet returns a set with its local card count, the user's held card
// count and the price range of its variants.
func (h *CatalogHandler) GetSet(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	user := currentUser(c)

	set, err := h.store.FindSetByID(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	cards, err := h.store.CountCardsInSet(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	held, err := h.store.CountInventoryCardsInSet(ctx, user.ID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	lo, hi, err := h.store.PriceRangeForSet(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	summary := gin.H{
		"set":             set,
		"card_count":      cards,
		"inventory_count": held,
		"min_price":       lo,
		"max_price":       hi,
	}
	tracked, err := h.store.FindTrackedSet(ctx, user.ID, id)
	switch {
	case err == nil:
		summary["tracking"] = tracked
	case !errors.Is(err, store.ErrNotFound):
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *CatalogHandler) ListTrackedGames(c *gin.Context) {
	tracked, err := h.store.ListTrackedGames(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tracked)
}

func (h *CatalogHandler) ListTrackedSets(c *gin.Context) {
	tracked, err := h.store.ListTrackedSets(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tracked)
}

func (h *CatalogHandler) TrackGame(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	tracked, err := h.tracking.TrackGame(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tracked)
}

func (h *CatalogHandler) UntrackGame(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.tracking.UntrackGame(c.Request.Context(), currentUser(c).ID, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CatalogHandler) ToggleGame(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	tracked, err := h.tracking.ToggleGame(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tracked)
}

// DiscoverSets refreshes a game's sets now
func (h *CatalogHandler) DiscoverSets(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	result, err := h.tracking.DiscoverGame(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *CatalogHandler) TrackSet(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	tracked, err := h.tracking.TrackSet(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tracked)
}

func (h *CatalogHandler) UntrackSet(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.tracking.UntrackSet(c.Request.Context(), currentUser(c).ID, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CatalogHandler) ToggleSet(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	tracked, err := h.tracking.ToggleSet(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tracked)
}

// SyncSet syncs a set's cards now. Fresh tracked sets are left alone unless
// ?force=true.
func (h *CatalogHandler) SyncSet(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	force := c.Query("force") == "true"
	result, err := h.tracking.SyncSet(c.Request.Context(), currentUser(c), id, force)
	if err != nil {
		respondError(c, err)
		return
	}
	if result == nil {
		c.JSON(http.StatusOK, gin.H{"status": "fresh", "message": "set was synced recently"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// SyncCard refreshes one card. The id param is the JustTCG card id.
func (h *CatalogHandler) SyncCard(c *gin.Context) {
	card, err := h.syncer.ForUser(currentUser(c)).SyncCard(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (h *CatalogHandler) GetCard(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	card, err := h.store.FindCardByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}
