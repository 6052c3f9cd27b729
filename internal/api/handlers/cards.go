package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/mythicstats/internal/models"
	"github.com/codyseavey/mythicstats/internal/services"
)

type CardHandler struct {
	cards *services.CardService
}

func NewCardHandler(cards *services.CardService) *CardHandler {
	return &CardHandler{cards: cards}
}

// ListSetCards answers a set's cards, filtered by ?search= on name or number.
func (h *CardHandler) ListSetCards(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	cards, err := h.cards.ListSetCards(c.Request.Context(), currentUser(c).ID, id, c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cards)
}

func (h *CardHandler) UpdateCard(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req models.UpdateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	card, err := h.cards.UpdateCard(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (h *CardHandler) UpdateVariant(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req models.UpdateVariantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	variant, err := h.cards.UpdateVariant(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, variant)
}
