package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/retailgrid/pos-sync/internal/syncer"
	"github.com/retailgrid/pos-sync/internal/validation"
)

// RegisterSyncRoutes registers the device reconciliation protocol.
func RegisterSyncRoutes(r *gin.Engine, app *App) {
	v := validation.New()

	r.POST("/api/sync/pull", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.PullRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		since := parseSince(req.LastSync, time.Now())
		updates, err := app.Engine.PullUpdates(ctx, req.DeviceID, since)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "pull_failed", "detail": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"updates":   updates,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	r.POST("/api/sync/push", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req struct {
			DeviceID string               `json:"device_id"`
			Updates  syncer.PushedUpdates `json:"updates"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
			return
		}
		if req.DeviceID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_device_id"})
			return
		}

		result, err := app.Engine.PushUpdates(ctx, req.DeviceID, req.Updates)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "push_failed", "detail": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":         true,
			"queued_orders":   result.QueuedOrders,
			"queued_products": result.QueuedProducts,
			"drain":           result.Drain,
		})
	})

	r.POST("/api/sync/process", func(c *gin.Context) {
		res, err := app.Engine.Drain(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "drain_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
	})

	r.POST("/api/sync/status", func(c *gin.Context) {
		var req validation.HeartbeatRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		count, err := app.Engine.PendingForDevice(c.Request.Context(), req.DeviceID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "status_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"pending_items": count,
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
		})
	})
}
