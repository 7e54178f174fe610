package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/retailgrid/pos-sync/internal/catalog"
	"github.com/retailgrid/pos-sync/internal/syncqueue"
	"github.com/retailgrid/pos-sync/internal/validation"
)

// RegisterProductRoutes registers catalog and inventory endpoints.
func RegisterProductRoutes(r *gin.Engine, app *App) {
	v := validation.New()

	r.GET("/api/products", func(c *gin.Context) {
		products, err := app.Products.List(c.Request.Context(),
			c.Query("category"), c.Query("available_only") == "true")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, products)
	})

	// Direct inventory set. Bypasses the order-linked decrement; the change is
	// queued for device sync only when the value actually moved.
	r.PUT("/api/products/:id/inventory", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.InventoryRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		productID := c.Param("id")
		product, err := app.Products.Get(ctx, productID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed", "detail": err.Error()})
			return
		}
		if product == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "product_not_found"})
			return
		}

		newCount := *req.InventoryCount
		if newCount != product.InventoryCount {
			if _, err := app.Products.SetInventory(ctx, productID, newCount); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed", "detail": err.Error()})
				return
			}
			_, err := app.Queue.Enqueue(ctx, syncqueue.EntityInventory, productID, syncqueue.OpUpdate, catalog.InventoryUpdate{
				ProductID: productID,
				OldCount:  product.InventoryCount,
				NewCount:  &newCount,
			}, "")
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed", "detail": err.Error()})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "inventory_count": newCount})
	})
}
