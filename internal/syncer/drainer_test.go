package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailgrid/pos-sync/internal/orders"
	"github.com/retailgrid/pos-sync/internal/syncqueue"
)

func TestDrainerTickRunsOnePass(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	patch := orders.StatusPatch{ID: "ghost", Status: orders.StatusCompleted}
	_, err := f.queue.Enqueue(ctx, syncqueue.EntityOrder, "ghost", syncqueue.OpUpdate, patch, "dev-1")
	require.NoError(t, err)

	// interval long enough that the ticker never fires during the test
	d := NewDrainer(f.engine, time.Hour)
	res := d.Tick(ctx)
	assert.Equal(t, 1, res.Processed)

	res = d.Tick(ctx)
	assert.Equal(t, 0, res.Processed)
}

func TestDrainerStartStop(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	patch := orders.StatusPatch{ID: "ghost", Status: orders.StatusCompleted}
	id, err := f.queue.Enqueue(ctx, syncqueue.EntityOrder, "ghost", syncqueue.OpUpdate, patch, "dev-1")
	require.NoError(t, err)

	d := NewDrainer(f.engine, 5*time.Millisecond)
	d.Start()

	deadline := time.After(2 * time.Second)
	for {
		if status, _ := f.queueItemStatus(t, id); status == syncqueue.StatusCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatal("drainer never processed the queued item")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Stop returns only after the loop exits
	d.Stop()
}

func TestDrainerDefaultsInterval(t *testing.T) {
	f := newEngineFixture(t)

	d := NewDrainer(f.engine, 0)
	assert.Equal(t, DefaultInterval, d.interval)

	d = NewDrainer(f.engine, time.Second)
	assert.Equal(t, time.Second, d.interval)
}
