package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/retailgrid/pos-sync/internal/aws"
	"github.com/retailgrid/pos-sync/internal/catalog"
	"github.com/retailgrid/pos-sync/internal/receipts"
	"github.com/retailgrid/pos-sync/internal/syncqueue"
)

// TaxRate is the flat tax applied to every order subtotal.
const TaxRate = 0.10

// ErrInvalidInput rejects bad order input before any write.
var ErrInvalidInput = errors.New("invalid order input")

// LineItemInput is a requested line item.
type LineItemInput struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   float64
}

// CreateOrderInput is the pipeline's intake for a new order.
type CreateOrderInput struct {
	Items          []LineItemInput
	PaymentMethod  string
	CustomerID     string
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	DeviceID       string
	IsOffline      bool
	DiscountAmount float64
	Notes          string
}

// OrderResult is returned from CreateOrder.
type OrderResult struct {
	OrderID      string
	OrderNumber  string
	TotalAmount  float64
	Receipt      *receipts.Receipt
	SyncRequired bool
}

// CompletionResult is returned from CompleteOrder.
type CompletionResult struct {
	OrderID          string
	Status           string
	ReceiptData      string
	ReceiptImage     string
	AlreadyCompleted bool
}

// Pipeline validates, prices and persists orders, wires in receipt generation,
// and enqueues offline mutations for the sync engine.
type Pipeline struct {
	orders    *Store
	products  *catalog.Store
	queue     *syncqueue.Store
	receipts  *receipts.Generator
	publisher *aws.Publisher // nil disables notifications
	nowFunc   func() time.Time
}

// NewPipeline wires the pipeline's collaborators.
func NewPipeline(orders *Store, products *catalog.Store, queue *syncqueue.Store, gen *receipts.Generator, publisher *aws.Publisher) *Pipeline {
	return &Pipeline{
		orders:    orders,
		products:  products,
		queue:     queue,
		receipts:  gen,
		publisher: publisher,
		nowFunc:   time.Now,
	}
}

// CreateOrder validates and prices the order, persists it (and, when offline,
// its sync-queue entry) atomically, and attaches a best-effort receipt.
func (p *Pipeline) CreateOrder(ctx context.Context, in CreateOrderInput) (*OrderResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	now := p.nowFunc().UTC()
	orderID := uuid.NewString()

	items := make([]Item, 0, len(in.Items))
	subtotal := 0.0
	for _, li := range in.Items {
		total := roundCents(float64(li.Quantity) * li.UnitPrice)
		subtotal += total
		items = append(items, Item{
			ProductID:   li.ProductID,
			ProductName: li.ProductName,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			TotalPrice:  total,
		})
	}
	subtotal = roundCents(subtotal)
	tax := roundCents(subtotal * TaxRate)
	total := roundCents(subtotal + tax - in.DiscountAmount)

	syncStatus := SyncSynced
	if in.IsOffline {
		syncStatus = SyncPending
	}

	order := Order{
		ID:             orderID,
		OrderNumber:    newOrderNumber(now),
		TotalAmount:    total,
		TaxAmount:      tax,
		DiscountAmount: in.DiscountAmount,
		Status:         StatusPending,
		PaymentMethod:  in.PaymentMethod,
		PaymentStatus:  PaymentPending,
		CustomerName:   in.CustomerName,
		CustomerEmail:  in.CustomerEmail,
		CustomerPhone:  in.CustomerPhone,
		IsOnline:       !in.IsOffline,
		DeviceID:       in.DeviceID,
		SyncStatus:     syncStatus,
		Items:          items,
		Metadata:       orderMetadata(in),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	receipt := p.receipts.Generate(receiptSnapshot(order, in.CustomerID))
	if receipt != nil {
		order.ReceiptData = receipt.Payload
		order.ReceiptImage = receipt.Image
	}

	var extras []types.TransactWriteItem
	if in.IsOffline {
		queueItem, err := p.queue.NewItem(syncqueue.EntityOrder, orderID, syncqueue.OpCreate, order, in.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("build queue item: %w", err)
		}
		put, err := p.queue.BuildPut(queueItem)
		if err != nil {
			return nil, err
		}
		extras = append(extras, put)
	}

	if err := p.orders.CreateTransaction(ctx, order, extras); err != nil {
		return nil, err
	}

	p.notifyOrderCreated(ctx, order, in.IsOffline)

	return &OrderResult{
		OrderID:      orderID,
		OrderNumber:  order.OrderNumber,
		TotalAmount:  total,
		Receipt:      receipt,
		SyncRequired: in.IsOffline,
	}, nil
}

// CompleteOrder marks an order completed, applies the inventory decrement for
// each line item exactly once, and enqueues the offline-order follow-ups.
// Completing an already-completed order is a no-op.
func (p *Pipeline) CompleteOrder(ctx context.Context, orderID, paymentStatus, paymentMethod string) (*CompletionResult, error) {
	o, err := p.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrNotFound
	}
	if o.Status == StatusCompleted {
		return &CompletionResult{
			OrderID:          o.ID,
			Status:           o.Status,
			ReceiptData:      o.ReceiptData,
			ReceiptImage:     o.ReceiptImage,
			AlreadyCompleted: true,
		}, nil
	}
	if o.Status != StatusPending {
		return nil, fmt.Errorf("%w: cannot complete %s order", ErrInvalidInput, o.Status)
	}

	if paymentStatus == "" {
		paymentStatus = PaymentCompleted
	}
	fields := CompletionFields{
		PaymentStatus: paymentStatus,
		PaymentMethod: paymentMethod,
	}

	// Fallback receipt for orders completed without one (legacy or a lost
	// race at creation). An existing receipt is never regenerated.
	receiptData, receiptImage := o.ReceiptData, o.ReceiptImage
	if receiptData == "" {
		if r := p.receipts.Generate(receiptSnapshot(*o, "")); r != nil {
			fields.ReceiptData = r.Payload
			fields.ReceiptImage = r.Image
			receiptData, receiptImage = r.Payload, r.Image
		}
	}

	extras, err := p.completionExtras(ctx, o, fields)
	if err != nil {
		return nil, err
	}

	if !o.IsOnline && o.SyncStatus == SyncPending {
		fields.SyncStatus = SyncQueued
	}

	if err := p.orders.CompleteTransaction(ctx, orderID, fields, extras); err != nil {
		if errors.Is(err, ErrStatusMismatch) {
			// Lost a race with another completion; treat as already done.
			current, gerr := p.orders.Get(ctx, orderID)
			if gerr == nil && current != nil && current.Status == StatusCompleted {
				return &CompletionResult{
					OrderID:          current.ID,
					Status:           current.Status,
					ReceiptData:      current.ReceiptData,
					ReceiptImage:     current.ReceiptImage,
					AlreadyCompleted: true,
				}, nil
			}
		}
		return nil, err
	}

	return &CompletionResult{
		OrderID:      orderID,
		Status:       StatusCompleted,
		ReceiptData:  receiptData,
		ReceiptImage: receiptImage,
	}, nil
}

// completionExtras builds the inventory decrements and sync-queue entries that
// ride along in the completion transaction. The queued status patch carries
// the fields the transaction applies, so a later replay writes the same state.
func (p *Pipeline) completionExtras(ctx context.Context, o *Order, fields CompletionFields) ([]types.TransactWriteItem, error) {
	var extras []types.TransactWriteItem

	for _, item := range o.Items {
		product, err := p.products.Get(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if product == nil {
			log.Printf("[orders] skipping inventory for missing product=%s order=%s", item.ProductID, o.ID)
			continue
		}
		newCount := product.InventoryCount - item.Quantity
		if newCount < 0 {
			log.Printf("[orders] product=%s oversold, inventory now %d", product.ID, newCount)
		}
		extras = append(extras, p.products.InventoryAdjustment(product.ID, -item.Quantity))

		queueItem, err := p.queue.NewItem(syncqueue.EntityInventory, product.ID, syncqueue.OpUpdate, catalog.InventoryUpdate{
			ProductID: product.ID,
			OldCount:  product.InventoryCount,
			NewCount:  &newCount,
			Timestamp: p.nowFunc().UTC().Format(time.RFC3339),
		}, o.DeviceID)
		if err != nil {
			return nil, err
		}
		put, err := p.queue.BuildPut(queueItem)
		if err != nil {
			return nil, err
		}
		extras = append(extras, put)
	}

	if !o.IsOnline && o.SyncStatus == SyncPending {
		patch := StatusPatch{
			ID:            o.ID,
			Status:        StatusCompleted,
			PaymentStatus: fields.PaymentStatus,
			PaymentMethod: firstNonEmpty(fields.PaymentMethod, o.PaymentMethod),
			ReceiptData:   firstNonEmpty(fields.ReceiptData, o.ReceiptData),
			ReceiptImage:  firstNonEmpty(fields.ReceiptImage, o.ReceiptImage),
			UpdatedAt:     p.nowFunc().UTC().Format(time.RFC3339),
		}
		queueItem, err := p.queue.NewItem(syncqueue.EntityOrder, o.ID, syncqueue.OpUpdate, patch, o.DeviceID)
		if err != nil {
			return nil, err
		}
		put, err := p.queue.BuildPut(queueItem)
		if err != nil {
			return nil, err
		}
		extras = append(extras, put)
	}

	return extras, nil
}

func (p *Pipeline) notifyOrderCreated(ctx context.Context, o Order, offline bool) {
	if p.publisher == nil {
		return
	}
	err := p.publisher.PublishOrderCreated(ctx, aws.OrderCreatedEvent{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		IsOffline:   offline,
	})
	if err != nil {
		log.Printf("[orders] order_created notify failed for order=%s: %v", o.ID, err)
	}
}

func validateInput(in CreateOrderInput) error {
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: order has no line items", ErrInvalidInput)
	}
	for i, li := range in.Items {
		if li.ProductID == "" {
			return fmt.Errorf("%w: item %d missing product id", ErrInvalidInput, i)
		}
		if li.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrInvalidInput, i)
		}
		if li.UnitPrice < 0 {
			return fmt.Errorf("%w: item %d unit price must not be negative", ErrInvalidInput, i)
		}
	}
	if in.DiscountAmount < 0 {
		return fmt.Errorf("%w: discount must not be negative", ErrInvalidInput)
	}
	return nil
}

func receiptSnapshot(o Order, customerID string) receipts.OrderSnapshot {
	items := make([]receipts.LineItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, receipts.LineItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return receipts.OrderSnapshot{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		TotalAmount: o.TotalAmount,
		CreatedAt:   o.CreatedAt,
		Items:       items,
		CustomerID:  customerID,
	}
}

func orderMetadata(in CreateOrderInput) map[string]interface{} {
	source := "online"
	if in.IsOffline {
		source = "offline"
	}
	md := map[string]interface{}{"source": source}
	if in.Notes != "" {
		md["notes"] = in.Notes
	}
	return md
}

// newOrderNumber formats ORD-<date>-<token>, unique via the uuid prefix.
func newOrderNumber(now time.Time) string {
	token := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), token)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
