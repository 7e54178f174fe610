package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/retailgrid/pos-sync/internal/orders"
	"github.com/retailgrid/pos-sync/internal/validation"
)

// RegisterOrderRoutes registers the order pipeline endpoints.
func RegisterOrderRoutes(r *gin.Engine, app *App) {
	v := validation.New()

	r.POST("/api/orders", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		items := make([]orders.LineItemInput, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, orders.LineItemInput{
				ProductID:   it.ProductID,
				ProductName: it.ProductName,
				Quantity:    it.Quantity,
				UnitPrice:   it.UnitPrice,
			})
		}

		result, err := app.Pipeline.CreateOrder(ctx, orders.CreateOrderInput{
			Items:          items,
			PaymentMethod:  req.PaymentMethod,
			CustomerID:     req.CustomerID,
			CustomerName:   req.CustomerName,
			CustomerEmail:  req.CustomerEmail,
			CustomerPhone:  req.CustomerPhone,
			DeviceID:       req.DeviceID,
			IsOffline:      req.IsOffline,
			DiscountAmount: req.DiscountAmount,
			Notes:          req.Notes,
		})
		if err != nil {
			if errors.Is(err, orders.ErrInvalidInput) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_order", "detail": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed", "detail": err.Error()})
			return
		}

		resp := gin.H{
			"success":       true,
			"order_id":      result.OrderID,
			"order_number":  result.OrderNumber,
			"total_amount":  result.TotalAmount,
			"sync_required": result.SyncRequired,
		}
		if result.Receipt != nil {
			resp["receipt"] = gin.H{
				"data":  result.Receipt.Payload,
				"image": result.Receipt.Image,
			}
		}
		c.JSON(http.StatusCreated, resp)
	})

	r.POST("/api/orders/:id/complete", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CompleteOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		result, err := app.Pipeline.CompleteOrder(ctx, c.Param("id"), req.PaymentStatus, req.PaymentMethod)
		if err != nil {
			switch {
			case errors.Is(err, orders.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			case errors.Is(err, orders.ErrInvalidInput):
				c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition", "detail": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "complete_failed", "detail": err.Error()})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"order_id": result.OrderID,
			"status":   result.Status,
			"receipt": gin.H{
				"data":  result.ReceiptData,
				"image": result.ReceiptImage,
			},
		})
	})

	r.POST("/api/orders/:id/scan", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.ScanRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		o, err := app.Orders.Get(ctx, c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed", "detail": err.Error()})
			return
		}
		if o == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			return
		}

		// Equality check against the stored payload; the digest inside the
		// payload is not re-verified here.
		valid := o.ReceiptData != "" && o.ReceiptData == req.ScanData

		c.JSON(http.StatusOK, gin.H{
			"valid": valid,
			"order": gin.H{
				"id":           o.ID,
				"order_number": o.OrderNumber,
				"status":       o.Status,
				"total_amount": o.TotalAmount,
				"items":        o.Items,
				"created_at":   o.CreatedAt,
			},
		})
	})
}
