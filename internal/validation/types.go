package validation

// LineItem represents a single requested order line.
type LineItem struct {
	ProductID   string  `json:"product_id" validate:"required"`
	ProductName string  `json:"product_name,omitempty"`
	Quantity    int     `json:"quantity" validate:"required,min=1"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
}

// CreateOrderRequest is the payload for POST /api/orders.
type CreateOrderRequest struct {
	Items          []LineItem `json:"items" validate:"required,min=1,dive"`
	PaymentMethod  string     `json:"payment_method,omitempty" validate:"omitempty,oneof=cash card e-wallet"`
	CustomerID     string     `json:"customer_id,omitempty"`
	CustomerName   string     `json:"customer_name,omitempty"`
	CustomerEmail  string     `json:"customer_email,omitempty" validate:"omitempty,email"`
	CustomerPhone  string     `json:"customer_phone,omitempty"`
	DeviceID       string     `json:"device_id,omitempty"`
	IsOffline      bool       `json:"is_offline,omitempty"`
	DiscountAmount float64    `json:"discount_amount" validate:"gte=0"`
	Notes          string     `json:"notes,omitempty"`
}

// CompleteOrderRequest is the payload for POST /api/orders/:id/complete.
type CompleteOrderRequest struct {
	PaymentStatus string `json:"payment_status,omitempty" validate:"omitempty,oneof=pending completed failed"`
	PaymentMethod string `json:"payment_method,omitempty" validate:"omitempty,oneof=cash card e-wallet"`
}

// ScanRequest is the payload for receipt verification.
type ScanRequest struct {
	ScanData string `json:"scan_data" validate:"required"`
}

// InventoryRequest is the payload for the direct inventory set.
type InventoryRequest struct {
	InventoryCount *int `json:"inventory_count" validate:"required"`
}

// RegisterDeviceRequest is the payload for device registration.
type RegisterDeviceRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
	Name     string `json:"name,omitempty"`
	Location string `json:"location,omitempty"`
}

// HeartbeatRequest is the payload for a device heartbeat.
type HeartbeatRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
}

// PullRequest is the payload for POST /api/sync/pull.
type PullRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
	LastSync string `json:"last_sync,omitempty"`
}
