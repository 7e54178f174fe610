// Package receipts builds the tamper-evident artifact attached to an order:
// a canonical JSON payload carrying a truncated verification digest, plus a
// QR rendering of that payload for display and printing.
package receipts

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

const digestLength = 16

// LineItem is the item snapshot embedded in the receipt payload.
type LineItem struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// OrderSnapshot carries the order fields a receipt encodes.
type OrderSnapshot struct {
	OrderID     string
	OrderNumber string
	TotalAmount float64
	CreatedAt   time.Time
	Items       []LineItem
	CustomerID  string
}

// Receipt is the generated artifact.
type Receipt struct {
	Payload string // canonical JSON, what a scanner reads back
	Image   string // base64 PNG QR encoding of Payload
}

type payload struct {
	OrderID          string     `json:"order_id"`
	OrderNumber      string     `json:"order_number"`
	Total            float64    `json:"total"`
	Timestamp        string     `json:"timestamp"`
	Items            []LineItem `json:"items"`
	CustomerID       string     `json:"customer_id,omitempty"`
	VerificationHash string     `json:"verification_hash"`
}

// Generator produces receipts signed with a server-side secret.
type Generator struct {
	secret string
}

// NewGenerator returns a Generator. The secret never leaves the server; a
// scanner compares digests without a database round-trip.
func NewGenerator(secret string) *Generator {
	return &Generator{secret: secret}
}

// Generate builds the receipt for an order snapshot. It is best-effort: any
// encoding failure is logged and yields a nil receipt, never an error, so
// receipt trouble cannot block order persistence.
func (g *Generator) Generate(snap OrderSnapshot) *Receipt {
	p := payload{
		OrderID:          snap.OrderID,
		OrderNumber:      snap.OrderNumber,
		Total:            snap.TotalAmount,
		Timestamp:        snap.CreatedAt.UTC().Format(time.RFC3339),
		Items:            snap.Items,
		CustomerID:       snap.CustomerID,
		VerificationHash: g.Digest(snap.OrderID, snap.CreatedAt),
	}

	data, err := json.Marshal(p)
	if err != nil {
		log.Printf("[receipts] marshal payload for order=%s: %v", snap.OrderID, err)
		return nil
	}

	png, err := qrcode.Encode(string(data), qrcode.Low, 256)
	if err != nil {
		log.Printf("[receipts] encode qr for order=%s: %v", snap.OrderID, err)
		return nil
	}

	return &Receipt{
		Payload: string(data),
		Image:   base64.StdEncoding.EncodeToString(png),
	}
}

// Digest computes the truncated verification hash. It depends only on the
// order id, its creation time, and the secret, so regenerating a receipt for
// an unchanged order yields the same digest.
func (g *Generator) Digest(orderID string, createdAt time.Time) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s%s%s", orderID, createdAt.UTC().Format(time.RFC3339), g.secret))
	return hex.EncodeToString(sum[:])[:digestLength]
}
