package catalog

import "time"

// Product is the item stored in the products table.
type Product struct {
	ID             string    `dynamodbav:"id" json:"id"`
	Name           string    `dynamodbav:"name" json:"name"`
	Price          float64   `dynamodbav:"price" json:"price"`
	Category       string    `dynamodbav:"category,omitempty" json:"category,omitempty"`
	SKU            string    `dynamodbav:"sku,omitempty" json:"sku,omitempty"`
	Description    string    `dynamodbav:"description,omitempty" json:"description,omitempty"`
	InventoryCount int       `dynamodbav:"inventory_count" json:"inventory_count"`
	IsAvailable    bool      `dynamodbav:"is_available" json:"is_available"`
	ImageURL       string    `dynamodbav:"image_url,omitempty" json:"image_url,omitempty"`
	OnlineSync     bool      `dynamodbav:"online_sync" json:"online_sync"`
	CreatedAt      time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// ProductPatch enumerates the fields a remote product update may change.
// Nil fields are left untouched. The identity field is deliberately absent;
// patches never move a product to a different id.
type ProductPatch struct {
	Name           *string  `json:"name,omitempty"`
	Price          *float64 `json:"price,omitempty"`
	Category       *string  `json:"category,omitempty"`
	SKU            *string  `json:"sku,omitempty"`
	Description    *string  `json:"description,omitempty"`
	InventoryCount *int     `json:"inventory_count,omitempty"`
	IsAvailable    *bool    `json:"is_available,omitempty"`
	ImageURL       *string  `json:"image_url,omitempty"`
	OnlineSync     *bool    `json:"online_sync,omitempty"`
}

// IsEmpty reports whether the patch carries no changes.
func (p ProductPatch) IsEmpty() bool {
	return p.Name == nil && p.Price == nil && p.Category == nil && p.SKU == nil &&
		p.Description == nil && p.InventoryCount == nil && p.IsAvailable == nil &&
		p.ImageURL == nil && p.OnlineSync == nil
}

// InventoryUpdate is the sync payload for an inventory mutation. Replay sets
// the absolute new count; old_count and timestamp travel along for auditing.
// A nil NewCount (payload without the field) leaves the count unchanged.
type InventoryUpdate struct {
	ProductID string `json:"product_id"`
	OldCount  int    `json:"old_count,omitempty"`
	NewCount  *int   `json:"new_count,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// DeviceProduct is the projection returned to devices on pull.
type DeviceProduct struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	Category       string  `json:"category,omitempty"`
	SKU            string  `json:"sku,omitempty"`
	InventoryCount int     `json:"inventory_count"`
	IsAvailable    bool    `json:"is_available"`
	Operation      string  `json:"operation"`
}

// DeviceView projects a product to its device-facing shape. The operation is
// always "update": the pull protocol does not track per-device state, so a
// consuming device must treat every entry as an upsert.
func (p Product) DeviceView() DeviceProduct {
	return DeviceProduct{
		ID:             p.ID,
		Name:           p.Name,
		Price:          p.Price,
		Category:       p.Category,
		SKU:            p.SKU,
		InventoryCount: p.InventoryCount,
		IsAvailable:    p.IsAvailable,
		Operation:      "update",
	}
}
