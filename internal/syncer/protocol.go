package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/retailgrid/pos-sync/internal/catalog"
	"github.com/retailgrid/pos-sync/internal/orders"
	"github.com/retailgrid/pos-sync/internal/syncqueue"
)

// pullOrderLimit caps the completed-order refs returned per pull.
const pullOrderLimit = 100

// PullResult is the delta download for a device.
type PullResult struct {
	Products []catalog.DeviceProduct `json:"products"`
	Orders   []orders.Ref            `json:"orders"`
}

// PullUpdates returns sync-eligible products updated after since, plus
// lightweight refs of completed orders from other devices. Every product entry
// is tagged as an update; the protocol does not track what a device already
// holds, so the device must upsert.
func (e *Engine) PullUpdates(ctx context.Context, deviceID string, since time.Time) (*PullResult, error) {
	products, err := e.products.ListUpdatedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("pull products: %w", err)
	}
	views := make([]catalog.DeviceProduct, 0, len(products))
	for _, p := range products {
		views = append(views, p.DeviceView())
	}

	refs, err := e.orders.ListCompletedSince(ctx, since, deviceID, pullOrderLimit)
	if err != nil {
		return nil, fmt.Errorf("pull orders: %w", err)
	}

	return &PullResult{Products: views, Orders: refs}, nil
}

// PushedUpdates is the delta upload from a device. Entries are raw documents;
// unknown fields ride along into the queue payload untouched.
type PushedUpdates struct {
	Orders   []json.RawMessage `json:"orders"`
	Products []json.RawMessage `json:"products"`
}

// PushResult reports what a push enqueued and how the immediate drain went.
type PushResult struct {
	QueuedOrders   int         `json:"queued_orders"`
	QueuedProducts int         `json:"queued_products"`
	Drain          DrainResult `json:"drain"`
}

// PushUpdates enqueues every pushed entity and then drains synchronously so
// the pushing device observes outcomes without waiting for the periodic cycle.
func (e *Engine) PushUpdates(ctx context.Context, deviceID string, updates PushedUpdates) (*PushResult, error) {
	res := &PushResult{}

	for _, raw := range updates.Orders {
		id, _, err := entityTags(raw)
		if err != nil {
			return res, fmt.Errorf("pushed order: %w", err)
		}
		if _, err := e.queue.Enqueue(ctx, syncqueue.EntityOrder, id, syncqueue.OpCreate, raw, deviceID); err != nil {
			return res, fmt.Errorf("enqueue pushed order: %w", err)
		}
		res.QueuedOrders++
	}

	for _, raw := range updates.Products {
		id, op, err := entityTags(raw)
		if err != nil {
			return res, fmt.Errorf("pushed product: %w", err)
		}
		if op == "" {
			op = syncqueue.OpUpdate
		}
		if _, err := e.queue.Enqueue(ctx, syncqueue.EntityProduct, id, op, raw, deviceID); err != nil {
			return res, fmt.Errorf("enqueue pushed product: %w", err)
		}
		res.QueuedProducts++
	}

	drain, err := e.Drain(ctx)
	if err != nil {
		log.Printf("[syncer] drain after push from device=%s: %v", deviceID, err)
	}
	res.Drain = drain
	return res, nil
}

// PendingForDevice reports a device's backlog, for the sync-status endpoint.
func (e *Engine) PendingForDevice(ctx context.Context, deviceID string) (int, error) {
	return e.queue.PendingCountForDevice(ctx, deviceID)
}

func entityTags(raw json.RawMessage) (id, operation string, err error) {
	var tags struct {
		ID        string `json:"id"`
		Operation string `json:"operation"`
	}
	if err := json.Unmarshal(raw, &tags); err != nil {
		return "", "", fmt.Errorf("decode entity tags: %w", err)
	}
	return tags.ID, tags.Operation, nil
}
