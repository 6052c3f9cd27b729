package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/mythicstats/internal/logging"
	"github.com/codyseavey/mythicstats/internal/models"
	"github.com/codyseavey/mythicstats/internal/services"
	"github.com/codyseavey/mythicstats/internal/store"
)

// UserKey is the gin context key of the resolved *models.User.
const UserKey = "user"

func currentUser(c *gin.Context) *models.User {
	return c.MustGet(UserKey).(*models.User)
}

// paramID parses a positive numeric path parameter, answering 400 when it
// is not one.
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// respondError maps service errors to transient HTTP answers.
func respondError(c *gin.Context, err error) {
	var (
		rl  *services.RateLimitError
		nf  *services.NotFoundError
		api *services.APIError
		inv *services.ValidationError
		net *services.NetworkError
		in  *services.InputError
	)
	switch {
	case errors.As(err, &rl):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":    "JustTCG quota exhausted, try again later",
			"message":  rl.Error(),
			"retry_at": rl.ResetTime,
		})
	case errors.As(err, &in):
		c.JSON(http.StatusBadRequest, gin.H{"error": in.Error()})
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"error": nf.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &api), errors.As(err, &inv):
		c.JSON(http.StatusBadGateway, gin.H{"error": "JustTCG request failed", "message": err.Error()})
	case errors.As(err, &net):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "JustTCG is unreachable, try again later"})
	default:
		logging.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
