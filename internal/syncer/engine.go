// Package syncer replays queued mutations against the entity store and serves
// the device reconciliation protocol. The engine is the single writer of
// queue-item status after creation.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/retailgrid/pos-sync/internal/aws"
	"github.com/retailgrid/pos-sync/internal/catalog"
	"github.com/retailgrid/pos-sync/internal/orders"
	"github.com/retailgrid/pos-sync/internal/syncqueue"
)

const (
	// BatchSize bounds one drain pass.
	BatchSize = 50
	// RetentionWindow is how long terminal queue items are kept before the
	// post-drain purge removes them.
	RetentionWindow = 7 * 24 * time.Hour
)

// Engine coordinates queue draining and the pull/push protocol.
type Engine struct {
	mu       sync.Mutex // held for the duration of a drain pass
	queue    *syncqueue.Store
	orders   *orders.Store
	products *catalog.Store
	metrics  *aws.MetricsRecorder // nil disables metrics
	nowFunc  func() time.Time
}

// NewEngine wires the engine's collaborators.
func NewEngine(queue *syncqueue.Store, orderStore *orders.Store, productStore *catalog.Store, metrics *aws.MetricsRecorder) *Engine {
	return &Engine{
		queue:    queue,
		orders:   orderStore,
		products: productStore,
		metrics:  metrics,
		nowFunc:  time.Now,
	}
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Skipped   bool `json:"skipped"`
	Processed int  `json:"processed"`
	Failed    int  `json:"failed"`
	Purged    int  `json:"purged"`
}

// Drain claims up to BatchSize queue items and replays them. A second caller
// while a pass is running returns immediately with Skipped set; the next
// periodic trigger picks up remaining work. One item's failure never aborts
// the batch. After the batch, terminal items past the retention window are
// purged.
func (e *Engine) Drain(ctx context.Context) (DrainResult, error) {
	if !e.mu.TryLock() {
		return DrainResult{Skipped: true}, nil
	}
	defer e.mu.Unlock()

	var res DrainResult

	items, err := e.queue.ClaimPending(ctx, BatchSize)
	if err != nil {
		return res, fmt.Errorf("claim pending: %w", err)
	}

	for _, item := range items {
		if err := e.dispatch(ctx, item); err != nil {
			log.Printf("[syncer] item=%s %s/%s entity=%s failed: %v",
				item.ID, item.EntityType, item.Operation, item.EntityID, err)
			if merr := e.queue.MarkFailed(ctx, item.ID); merr != nil {
				log.Printf("[syncer] mark failed item=%s: %v", item.ID, merr)
			}
			res.Failed++
			continue
		}
		if merr := e.queue.MarkCompleted(ctx, item.ID); merr != nil {
			log.Printf("[syncer] mark completed item=%s: %v", item.ID, merr)
		}
		res.Processed++
	}

	purged, err := e.queue.PurgeTerminalOlderThan(ctx, e.nowFunc().Add(-RetentionWindow))
	if err != nil {
		log.Printf("[syncer] purge: %v", err)
	}
	res.Purged = purged

	if err := e.metrics.RecordDrain(ctx, res.Processed, res.Failed, res.Purged); err != nil {
		log.Printf("[syncer] metrics: %v", err)
	}

	return res, nil
}

func (e *Engine) dispatch(ctx context.Context, item syncqueue.Item) error {
	switch item.EntityType {
	case syncqueue.EntityOrder:
		return e.dispatchOrder(ctx, item)
	case syncqueue.EntityProduct:
		return e.dispatchProduct(ctx, item)
	case syncqueue.EntityInventory:
		return e.dispatchInventory(ctx, item)
	default:
		log.Printf("[syncer] ignoring unknown entity type %q item=%s", item.EntityType, item.ID)
		return nil
	}
}

func (e *Engine) dispatchOrder(ctx context.Context, item syncqueue.Item) error {
	switch item.Operation {
	case syncqueue.OpCreate:
		var o orders.Order
		if err := item.UnmarshalPayload(&o); err != nil {
			return fmt.Errorf("decode order payload: %w", err)
		}
		if o.ID == "" {
			o.ID = item.EntityID
		}
		// The order arrived over the queue, so it was created offline.
		o.IsOnline = false
		if o.DeviceID == "" {
			o.DeviceID = item.DeviceID
		}
		o.SyncStatus = orders.SyncSynced

		created, err := e.orders.CreateIfAbsent(ctx, o)
		if err != nil {
			return err
		}
		if !created {
			log.Printf("[syncer] order=%s already exists, create is a no-op", o.ID)
			return nil
		}
		// An order created-and-completed entirely offline carries its
		// completion in the snapshot; apply the inventory effect here, the
		// only time this order's decrement runs on the central store.
		if o.Status == orders.StatusCompleted {
			e.applyOrderInventory(ctx, o)
		}
		return nil

	case syncqueue.OpUpdate:
		var patch orders.StatusPatch
		if err := item.UnmarshalPayload(&patch); err != nil {
			return fmt.Errorf("decode order patch: %w", err)
		}
		if patch.ID == "" {
			patch.ID = item.EntityID
		}
		applied, err := e.orders.ApplyStatusPatch(ctx, patch)
		if err != nil {
			return err
		}
		if !applied {
			log.Printf("[syncer] order=%s absent, update is a no-op", patch.ID)
		}
		return nil

	default:
		log.Printf("[syncer] ignoring unsupported order operation %q item=%s", item.Operation, item.ID)
		return nil
	}
}

func (e *Engine) dispatchProduct(ctx context.Context, item syncqueue.Item) error {
	switch item.Operation {
	case syncqueue.OpCreate:
		var p catalog.Product
		if err := item.UnmarshalPayload(&p); err != nil {
			return fmt.Errorf("decode product payload: %w", err)
		}
		if p.ID == "" {
			p.ID = item.EntityID
		}
		created, err := e.products.CreateIfAbsent(ctx, p)
		if err != nil {
			return err
		}
		if !created {
			log.Printf("[syncer] product=%s already exists, create is a no-op", p.ID)
		}
		return nil

	case syncqueue.OpUpdate:
		payload, err := decodeProductPatch(item.Payload)
		if err != nil {
			return err
		}
		id := payload.ID
		if id == "" {
			id = item.EntityID
		}
		applied, err := e.products.ApplyPatch(ctx, id, payload.ProductPatch)
		if err != nil {
			return err
		}
		if !applied {
			return fmt.Errorf("product %s: %w", id, catalog.ErrNotFound)
		}
		return nil

	default:
		log.Printf("[syncer] ignoring unsupported product operation %q item=%s", item.Operation, item.ID)
		return nil
	}
}

func (e *Engine) dispatchInventory(ctx context.Context, item syncqueue.Item) error {
	if item.Operation != syncqueue.OpUpdate {
		log.Printf("[syncer] ignoring unsupported inventory operation %q item=%s", item.Operation, item.ID)
		return nil
	}
	var upd catalog.InventoryUpdate
	if err := item.UnmarshalPayload(&upd); err != nil {
		return fmt.Errorf("decode inventory payload: %w", err)
	}
	id := upd.ProductID
	if id == "" {
		id = item.EntityID
	}
	if upd.NewCount == nil {
		log.Printf("[syncer] inventory update for product=%s has no new_count, skipping", id)
		return nil
	}
	applied, err := e.products.SetInventory(ctx, id, *upd.NewCount)
	if err != nil {
		return err
	}
	if !applied {
		log.Printf("[syncer] product=%s absent, inventory update is a no-op", id)
	} else if *upd.NewCount < 0 {
		log.Printf("[syncer] product=%s oversold, inventory now %d", id, *upd.NewCount)
	}
	return nil
}

// applyOrderInventory decrements stock for a replayed completed order.
// Missing products are skipped; oversell is allowed and logged.
func (e *Engine) applyOrderInventory(ctx context.Context, o orders.Order) {
	for _, it := range o.Items {
		applied, err := e.products.AdjustInventory(ctx, it.ProductID, -it.Quantity)
		if err != nil {
			log.Printf("[syncer] inventory for product=%s order=%s: %v", it.ProductID, o.ID, err)
			continue
		}
		if !applied {
			log.Printf("[syncer] skipping inventory for missing product=%s order=%s", it.ProductID, o.ID)
		}
	}
}

// productPatchPayload is the wire shape of a product update: the identity and
// operation tags plus the patchable fields. Unknown fields are rejected so a
// malformed payload cannot silently mutate arbitrary attributes.
type productPatchPayload struct {
	ID        string `json:"id"`
	Operation string `json:"operation,omitempty"`
	catalog.ProductPatch
}

func decodeProductPatch(payload string) (productPatchPayload, error) {
	var out productPatchPayload
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("decode product patch: %w", err)
	}
	return out, nil
}
