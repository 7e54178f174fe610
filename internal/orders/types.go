package orders

import "time"

// Order statuses. Cancellation and refund are status transitions; orders are
// never deleted.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusRefunded  = "refunded"
)

// Payment statuses.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

// Sync statuses for an order's journey to the central store.
const (
	SyncPending = "pending"
	SyncQueued  = "queued"
	SyncSynced  = "synced"
	SyncFailed  = "failed"
)

// Item is a line item, captured at order time. Unit and total price are
// immutable snapshots, independent of later product price changes. Items are
// embedded in the order record, so they share its lifecycle exactly.
type Item struct {
	ProductID   string  `dynamodbav:"product_id" json:"product_id"`
	ProductName string  `dynamodbav:"product_name,omitempty" json:"product_name,omitempty"`
	Quantity    int     `dynamodbav:"quantity" json:"quantity"`
	UnitPrice   float64 `dynamodbav:"unit_price" json:"unit_price"`
	TotalPrice  float64 `dynamodbav:"total_price" json:"total_price"`
}

// Order is the item stored in the orders table. The JSON tags double as the
// sync-payload snapshot shape for offline replay.
type Order struct {
	ID             string                 `dynamodbav:"id" json:"id"`
	OrderNumber    string                 `dynamodbav:"order_number" json:"order_number"`
	TotalAmount    float64                `dynamodbav:"total_amount" json:"total_amount"`
	TaxAmount      float64                `dynamodbav:"tax_amount" json:"tax_amount"`
	DiscountAmount float64                `dynamodbav:"discount_amount" json:"discount_amount"`
	Status         string                 `dynamodbav:"status" json:"status"`
	PaymentMethod  string                 `dynamodbav:"payment_method,omitempty" json:"payment_method,omitempty"`
	PaymentStatus  string                 `dynamodbav:"payment_status" json:"payment_status"`
	CustomerName   string                 `dynamodbav:"customer_name,omitempty" json:"customer_name,omitempty"`
	CustomerEmail  string                 `dynamodbav:"customer_email,omitempty" json:"customer_email,omitempty"`
	CustomerPhone  string                 `dynamodbav:"customer_phone,omitempty" json:"customer_phone,omitempty"`
	IsOnline       bool                   `dynamodbav:"is_online" json:"is_online"`
	DeviceID       string                 `dynamodbav:"device_id,omitempty" json:"device_id,omitempty"`
	SyncStatus     string                 `dynamodbav:"sync_status" json:"sync_status"`
	ReceiptData    string                 `dynamodbav:"receipt_data,omitempty" json:"receipt_data,omitempty"`
	ReceiptImage   string                 `dynamodbav:"receipt_image,omitempty" json:"receipt_image,omitempty"`
	Items          []Item                 `dynamodbav:"items" json:"items"`
	Metadata       map[string]interface{} `dynamodbav:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt      time.Time              `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt      time.Time              `dynamodbav:"updated_at" json:"updated_at"`
}

// StatusPatch is the sync payload for an order update replay: status, payment
// and receipt fields only, never a full snapshot. Unknown fields in older or
// newer payloads are ignored on decode.
type StatusPatch struct {
	ID            string `json:"id"`
	Status        string `json:"status,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
	ReceiptData   string `json:"receipt_data,omitempty"`
	ReceiptImage  string `json:"receipt_image,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// Ref is the lightweight identity+status record returned to devices on pull.
// It lets a device invalidate cached inventory assumptions without shipping
// full order payloads.
type Ref struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
}
