package devices

import (
	"context"
	"testing"
	"time"

	"github.com/retailgrid/pos-sync/internal/dynamock"
)

const devicesTable = "devices"

func newTestStore(t *testing.T) (*Store, *dynamock.DB) {
	t.Helper()
	db := dynamock.NewDB()
	db.CreateTable(devicesTable, "device_id")
	return NewStore(db, devicesTable), db
}

func TestRegisterNewDevice(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	d, err := s.Register(ctx, "dev-1", "Till 1", "Front counter", "10.0.0.5")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !d.IsOnline || d.Name != "Till 1" || d.IPAddress != "10.0.0.5" {
		t.Fatalf("unexpected device: %+v", d)
	}

	got, err := s.Get(ctx, "dev-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Location != "Front counter" {
		t.Fatalf("device not persisted: %+v", got)
	}
}

func TestRegisterExistingPreservesIdentity(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return created }
	if _, err := s.Register(ctx, "dev-1", "Till 1", "Front counter", "10.0.0.5"); err != nil {
		t.Fatalf("first register: %v", err)
	}

	later := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return later }
	d, err := s.Register(ctx, "dev-1", "", "", "10.0.0.9")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}

	if !d.CreatedAt.Equal(created) {
		t.Fatalf("created_at not preserved: %v", d.CreatedAt)
	}
	if d.Name != "Till 1" || d.Location != "Front counter" {
		t.Fatalf("blank fields clobbered existing values: %+v", d)
	}
	if d.IPAddress != "10.0.0.9" {
		t.Fatalf("ip not refreshed: %s", d.IPAddress)
	}
	if !d.LastSeen.Equal(later) {
		t.Fatalf("last_seen not refreshed: %v", d.LastSeen)
	}
}

func TestHeartbeat(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	known, err := s.Heartbeat(ctx, "never-registered")
	if err != nil {
		t.Fatalf("heartbeat unknown: %v", err)
	}
	if known {
		t.Fatal("expected known=false for unregistered device")
	}

	if _, err := s.Register(ctx, "dev-1", "Till 1", "", "10.0.0.5"); err != nil {
		t.Fatalf("register: %v", err)
	}
	later := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return later }

	known, err = s.Heartbeat(ctx, "dev-1")
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if !known {
		t.Fatal("expected known=true")
	}

	got, _ := s.Get(ctx, "dev-1")
	if !got.LastSeen.Equal(later) {
		t.Fatalf("last_seen not updated: %v", got.LastSeen)
	}
	if !got.IsOnline {
		t.Fatal("device not marked online")
	}
}
