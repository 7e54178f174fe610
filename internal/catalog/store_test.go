package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/retailgrid/pos-sync/internal/aws"
	"github.com/retailgrid/pos-sync/internal/dynamock"
)

const productsTable = "products"

func newTestStore(t *testing.T) (*Store, *dynamock.DB) {
	t.Helper()
	db := dynamock.NewDB()
	db.CreateTable(productsTable, "id")
	return NewStore(db, productsTable), db
}

func seedProduct(t *testing.T, db *dynamock.DB, p Product) {
	t.Helper()
	m, err := aws.MarshalItem(p)
	if err != nil {
		t.Fatalf("marshal product: %v", err)
	}
	db.Seed(productsTable, m)
}

func TestCreateIfAbsent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	p := Product{ID: "p-1", Name: "Coffee", Price: 3.50, InventoryCount: 10, IsAvailable: true, OnlineSync: true}

	created, err := s.CreateIfAbsent(ctx, p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Fatal("expected created=true")
	}

	// duplicate create is a no-op, not an overwrite
	p.Name = "Espresso"
	created, err = s.CreateIfAbsent(ctx, p)
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if created {
		t.Fatal("expected created=false on duplicate")
	}
	got, err := s.Get(ctx, "p-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Coffee" {
		t.Fatalf("duplicate create overwrote name: %s", got.Name)
	}
}

func TestGetMissingProduct(t *testing.T) {
	s, _ := newTestStore(t)
	got, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing product, got %+v", got)
	}
}

func TestApplyPatch(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	seedProduct(t, db, Product{ID: "p-1", Name: "Coffee", Price: 3.50, InventoryCount: 10, IsAvailable: true})

	name := "Flat White"
	price := 4.25
	avail := false
	applied, err := s.ApplyPatch(ctx, "p-1", ProductPatch{Name: &name, Price: &price, IsAvailable: &avail})
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	if !applied {
		t.Fatal("expected applied=true")
	}

	got, err := s.Get(ctx, "p-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Flat White" || got.Price != 4.25 || got.IsAvailable {
		t.Fatalf("patch not applied: %+v", got)
	}
	// untouched field survives
	if got.InventoryCount != 10 {
		t.Fatalf("patch clobbered inventory: %d", got.InventoryCount)
	}
}

func TestApplyPatchAbsentProduct(t *testing.T) {
	s, _ := newTestStore(t)
	name := "Ghost"
	applied, err := s.ApplyPatch(context.Background(), "missing", ProductPatch{Name: &name})
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	if applied {
		t.Fatal("expected applied=false for absent product")
	}
}

func TestApplyEmptyPatch(t *testing.T) {
	s, _ := newTestStore(t)
	applied, err := s.ApplyPatch(context.Background(), "whatever", ProductPatch{})
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	if !applied {
		t.Fatal("empty patch should be a trivial success")
	}
}

func TestSetInventory(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	seedProduct(t, db, Product{ID: "p-1", Name: "Coffee", InventoryCount: 10})

	applied, err := s.SetInventory(ctx, "p-1", 3)
	if err != nil {
		t.Fatalf("set inventory: %v", err)
	}
	if !applied {
		t.Fatal("expected applied=true")
	}
	got, _ := s.Get(ctx, "p-1")
	if got.InventoryCount != 3 {
		t.Fatalf("expected count 3, got %d", got.InventoryCount)
	}

	applied, err = s.SetInventory(ctx, "missing", 5)
	if err != nil {
		t.Fatalf("set inventory absent: %v", err)
	}
	if applied {
		t.Fatal("expected applied=false for absent product")
	}
}

func TestAdjustInventoryAllowsOversell(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	seedProduct(t, db, Product{ID: "p-1", Name: "Coffee", InventoryCount: 2})

	applied, err := s.AdjustInventory(ctx, "p-1", -5)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if !applied {
		t.Fatal("expected applied=true")
	}
	got, _ := s.Get(ctx, "p-1")
	if got.InventoryCount != -3 {
		t.Fatalf("expected oversold count -3, got %d", got.InventoryCount)
	}
}

func TestListFiltersAndSorts(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	seedProduct(t, db, Product{ID: "1", Name: "Tea", Category: "drinks", IsAvailable: true})
	seedProduct(t, db, Product{ID: "2", Name: "Coffee", Category: "drinks", IsAvailable: true})
	seedProduct(t, db, Product{ID: "3", Name: "Mocha", Category: "drinks", IsAvailable: false})
	seedProduct(t, db, Product{ID: "4", Name: "Bagel", Category: "food", IsAvailable: true})

	got, err := s.List(ctx, "drinks", true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 products, got %d", len(got))
	}
	if got[0].Name != "Coffee" || got[1].Name != "Tea" {
		t.Fatalf("not sorted by name: %s, %s", got[0].Name, got[1].Name)
	}

	all, err := s.List(ctx, "", false)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 products, got %d", len(all))
	}
}

func TestListUpdatedSince(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	before := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	after := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	since := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	seedProduct(t, db, Product{ID: "fresh", Name: "Fresh", OnlineSync: true, UpdatedAt: after})
	seedProduct(t, db, Product{ID: "stale", Name: "Stale", OnlineSync: true, UpdatedAt: before})
	seedProduct(t, db, Product{ID: "nosync", Name: "NoSync", OnlineSync: false, UpdatedAt: after})

	got, err := s.ListUpdatedSince(ctx, since)
	if err != nil {
		t.Fatalf("list updated since: %v", err)
	}
	if len(got) != 1 || got[0].ID != "fresh" {
		t.Fatalf("expected only the fresh synced product, got %+v", got)
	}
}

func TestListUpdatedSinceSubSecond(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// an update landing half a second after the watermark must not be dropped
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return since.Add(500 * time.Millisecond) }

	created, err := s.CreateIfAbsent(ctx, Product{ID: "p-1", Name: "Coffee", OnlineSync: true})
	if err != nil || !created {
		t.Fatalf("create: created=%v err=%v", created, err)
	}

	got, err := s.ListUpdatedSince(ctx, since)
	if err != nil {
		t.Fatalf("list updated since: %v", err)
	}
	if len(got) != 1 || got[0].ID != "p-1" {
		t.Fatalf("expected the sub-second update, got %+v", got)
	}
}

func TestInventoryAdjustmentTransactEntry(t *testing.T) {
	s, _ := newTestStore(t)
	tw := s.InventoryAdjustment("p-1", -2)
	if tw.Update == nil {
		t.Fatal("expected an Update entry")
	}
	if *tw.Update.TableName != productsTable {
		t.Fatalf("wrong table: %s", *tw.Update.TableName)
	}
	delta, ok := tw.Update.ExpressionAttributeValues[":delta"].(*types.AttributeValueMemberN)
	if !ok || delta.Value != "-2" {
		t.Fatalf("wrong delta: %+v", tw.Update.ExpressionAttributeValues[":delta"])
	}
}
