package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/mythicstats/internal/jobs"
)

type JobHandler struct {
	queue jobs.Queue
}

func NewJobHandler(queue jobs.Queue) *JobHandler {
	return &JobHandler{queue: queue}
}

// Enqueue queues a job for the user. The user's scheduled job is reused
// when it is still waiting.
func (h *JobHandler) Enqueue(c *gin.Context) {
	name := c.Param("name")
	if !jobs.IsKnown(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job " + name, "jobs": jobs.Names()})
		return
	}
	user := currentUser(c)
	job, err := h.queue.Enqueue(c.Request.Context(), name, jobs.Payload{UserID: user.ID},
		jobs.EnqueueOptions{JobID: jobs.ScheduledJobID(name, user.ID)})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// Get looks a job up by id.
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.queue.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if job == nil || job.UserID != currentUser(c).ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}
