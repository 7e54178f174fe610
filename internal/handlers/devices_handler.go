package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/retailgrid/pos-sync/internal/validation"
)

// RegisterDeviceRoutes registers registration and heartbeat endpoints.
func RegisterDeviceRoutes(r *gin.Engine, app *App) {
	v := validation.New()

	r.POST("/api/devices/register", func(c *gin.Context) {
		var req validation.RegisterDeviceRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		device, err := app.Devices.Register(c.Request.Context(), req.DeviceID, req.Name, req.Location, c.ClientIP())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "register_failed", "detail": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"device_id":  device.DeviceID,
			"registered": true,
		})
	})

	r.POST("/api/devices/heartbeat", func(c *gin.Context) {
		var req validation.HeartbeatRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		known, err := app.Devices.Heartbeat(c.Request.Context(), req.DeviceID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "heartbeat_failed", "detail": err.Error()})
			return
		}
		if !known {
			c.JSON(http.StatusBadRequest, gin.H{"success": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
}
