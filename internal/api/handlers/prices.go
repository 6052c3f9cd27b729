package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/mythicstats/internal/services"
	"github.com/codyseavey/mythicstats/internal/store"
)

type PriceHandler struct {
	store  *store.Store
	syncer *services.Syncer
	prices *services.PriceUpdateService
}

func NewPriceHandler(st *store.Store, syncer *services.Syncer, prices *services.PriceUpdateService) *PriceHandler {
	return &PriceHandler{store: st, syncer: syncer, prices: prices}
}

// GetQuota returns the user's JustTCG quota status
func (h *PriceHandler) GetQuota(c *gin.Context) {
	c.JSON(http.StatusOK, h.syncer.Ledger(currentUser(c)).Status())
}

// UpdateInventoryPrices refreshes every stale held card now
func (h *PriceHandler) UpdateInventoryPrices(c *gin.Context) {
	user := currentUser(c)
	run, err := h.prices.UpdateInventoryPrices(c.Request.Context(), h.syncer.ForUser(user), nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// UpdateItemPrices refreshes one inventory item regardless of staleness
func (h *PriceHandler) UpdateItemPrices(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	run, err := h.prices.UpdatePricesForItem(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetVariantHistory returns the stored price points of a variant
func (h *PriceHandler) GetVariantHistory(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	history, err := h.store.PriceHistory(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"variant_id": id, "history": history})
}
