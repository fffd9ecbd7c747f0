package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/metricboard/notifier/internal/engine"
)

// Runner executes the automatic-notifications job.
type Runner interface {
	Run(ctx context.Context) (*engine.Result, error)
	RunAt(ctx context.Context, at time.Time) (*engine.Result, error)
}

// NotificationHandler exposes the job trigger.
type NotificationHandler struct {
	Engine Runner
}

type triggerRequest struct {
	// ReferenceTime replaces "now" for a manual backfill run.
	ReferenceTime *time.Time `json:"reference_time"`
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Trigger runs the job once. Only a JSON body is read; any other payload is
// ignored and the run uses the current time.
func (h *NotificationHandler) Trigger(c *gin.Context) {
	var req triggerRequest
	if c.ContentType() == binding.MIMEJSON {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid body: " + err.Error(), "timestamp": timestamp()})
			return
		}
	}
	var (
		res *engine.Result
		err error
	)
	if req.ReferenceTime != nil {
		res, err = h.Engine.RunAt(c.Request.Context(), *req.ReferenceTime)
	} else {
		res, err = h.Engine.Run(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error(), "timestamp": timestamp()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res, "timestamp": timestamp()})
}
