package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/mythicstats/internal/api/handlers"
	"github.com/codyseavey/mythicstats/internal/metrics"
	"github.com/codyseavey/mythicstats/internal/store"
)

// requestMetrics records request counts and latency by route.
func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// resolveUser loads the user named by X-User-ID, falling back to the
// default user when the header is absent.
func resolveUser(st *store.Store, defaultEmail string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		header := c.GetHeader("X-User-ID")
		if header == "" {
			user, err := st.EnsureUser(ctx, defaultEmail)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.Set(handlers.UserKey, user)
			c.Next()
			return
		}

		id, err := strconv.ParseUint(header, 10, 64)
		if err != nil || id == 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid X-User-ID"})
			return
		}
		user, err := st.GetUser(ctx, uint(id))
		if errors.Is(err, store.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Set(handlers.UserKey, user)
		c.Next()
	}
}
