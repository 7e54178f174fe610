package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/retailgrid/pos-sync/internal/aws"
	"github.com/retailgrid/pos-sync/internal/dynamock"
)

const ordersTable = "orders"

func newTestStore(t *testing.T) (*Store, *dynamock.DB) {
	t.Helper()
	db := dynamock.NewDB()
	db.CreateTable(ordersTable, "id")
	return NewStore(db, ordersTable), db
}

func seedOrder(t *testing.T, db *dynamock.DB, o Order) {
	t.Helper()
	m, err := aws.MarshalItem(o)
	if err != nil {
		t.Fatalf("marshal order: %v", err)
	}
	db.Seed(ordersTable, m)
}

func TestCreateIfAbsentAndGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	o := Order{ID: "o-1", OrderNumber: "ORD-20260301-AAAA1111", Status: StatusPending, TotalAmount: 22.0}

	created, err := s.CreateIfAbsent(ctx, o)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Fatal("expected created=true")
	}

	created, err = s.CreateIfAbsent(ctx, o)
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if created {
		t.Fatal("expected created=false on duplicate")
	}

	got, err := s.Get(ctx, "o-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.OrderNumber != "ORD-20260301-AAAA1111" {
		t.Fatalf("unexpected order: %+v", got)
	}

	missing, err := s.Get(ctx, "nope")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for missing order")
	}
}

func TestCompleteTransactionGuardsStatus(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	seedOrder(t, db, Order{ID: "o-1", Status: StatusPending})

	fields := CompletionFields{PaymentStatus: PaymentCompleted, PaymentMethod: "cash", SyncStatus: SyncQueued}
	if err := s.CompleteTransaction(ctx, "o-1", fields, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, _ := s.Get(ctx, "o-1")
	if got.Status != StatusCompleted || got.PaymentStatus != PaymentCompleted || got.PaymentMethod != "cash" || got.SyncStatus != SyncQueued {
		t.Fatalf("completion not applied: %+v", got)
	}

	// second completion hits the status condition
	err := s.CompleteTransaction(ctx, "o-1", fields, nil)
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}
}

func TestCompleteTransactionFailureLeavesExtrasUnapplied(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	db.CreateTable("products", "id")
	db.Seed("products", map[string]types.AttributeValue{
		"id":              &types.AttributeValueMemberS{Value: "p-1"},
		"inventory_count": &types.AttributeValueMemberN{Value: "10"},
	})
	seedOrder(t, db, Order{ID: "o-1", Status: StatusCompleted})

	productsTable := "products"
	extra := types.TransactWriteItem{
		Update: &types.Update{
			TableName: &productsTable,
			Key: map[string]types.AttributeValue{
				"id": &types.AttributeValueMemberS{Value: "p-1"},
			},
			UpdateExpression: strPtr("ADD inventory_count :delta"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":delta": &types.AttributeValueMemberN{Value: "-2"},
			},
		},
	}

	err := s.CompleteTransaction(ctx, "o-1", CompletionFields{PaymentStatus: PaymentCompleted}, []types.TransactWriteItem{extra})
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}

	// the companion write must not have landed
	count := db.Item("products", "p-1")["inventory_count"].(*types.AttributeValueMemberN)
	if count.Value != "10" {
		t.Fatalf("extra applied despite canceled transaction: %s", count.Value)
	}
}

func TestApplyStatusPatch(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	seedOrder(t, db, Order{ID: "o-1", Status: StatusPending, PaymentStatus: PaymentPending})

	applied, err := s.ApplyStatusPatch(ctx, StatusPatch{
		ID:            "o-1",
		Status:        StatusCompleted,
		PaymentStatus: PaymentCompleted,
		ReceiptData:   `{"order_id":"o-1"}`,
	})
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	if !applied {
		t.Fatal("expected applied=true")
	}

	got, _ := s.Get(ctx, "o-1")
	if got.Status != StatusCompleted || got.PaymentStatus != PaymentCompleted || got.ReceiptData == "" {
		t.Fatalf("patch not applied: %+v", got)
	}
}

func TestApplyStatusPatchAbsentOrder(t *testing.T) {
	s, _ := newTestStore(t)
	applied, err := s.ApplyStatusPatch(context.Background(), StatusPatch{ID: "missing", Status: StatusCompleted})
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	if applied {
		t.Fatal("expected applied=false for absent order")
	}
}

func TestListCompletedSince(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	since := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	early := since.Add(-time.Hour)
	late := since.Add(time.Hour)
	later := since.Add(2 * time.Hour)

	seedOrder(t, db, Order{ID: "own", Status: StatusCompleted, DeviceID: "dev-1", CreatedAt: late})
	seedOrder(t, db, Order{ID: "other-old", Status: StatusCompleted, DeviceID: "dev-2", CreatedAt: early})
	seedOrder(t, db, Order{ID: "other-pending", Status: StatusPending, DeviceID: "dev-2", CreatedAt: late})
	seedOrder(t, db, Order{ID: "other-b", Status: StatusCompleted, DeviceID: "dev-2", OrderNumber: "B", CreatedAt: later})
	seedOrder(t, db, Order{ID: "other-a", Status: StatusCompleted, DeviceID: "dev-3", OrderNumber: "A", CreatedAt: late})

	refs, err := s.ListCompletedSince(ctx, since, "dev-1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 refs, got %d: %+v", len(refs), refs)
	}
	if refs[0].ID != "other-a" || refs[1].ID != "other-b" {
		t.Fatalf("refs not oldest-first: %+v", refs)
	}

	capped, err := s.ListCompletedSince(ctx, since, "dev-1", 1)
	if err != nil {
		t.Fatalf("list capped: %v", err)
	}
	if len(capped) != 1 || capped[0].ID != "other-a" {
		t.Fatalf("cap not applied: %+v", capped)
	}
}
