package undo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), ttl)
	if err != nil {
		t.Fatalf("failed to create undo store: %v", err)
	}
	return store, s
}

func TestSaveAndTake(t *testing.T) {
	store, s := setupTestRedis(t, 8*time.Second)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	pending := Pending{
		DocumentID:          "doc-1",
		FilePath:            "doc-1/contrato.pdf",
		FileSize:            2048,
		CurrentVersion:      3,
		RevertVersionNumber: 4,
		Actor:               "user-1",
	}

	if err := store.Save(ctx, "tok-1", pending); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Take(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if got.DocumentID != "doc-1" || got.CurrentVersion != 3 || got.RevertVersionNumber != 4 {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be stamped on save")
	}
}

func TestRestoreAfterTake(t *testing.T) {
	store, s := setupTestRedis(t, 8*time.Second)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "tok-1", Pending{DocumentID: "doc-1", RevertVersionNumber: 4}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	taken, err := store.Take(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}

	if err := store.Restore(ctx, "tok-1", taken); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	got, err := store.Take(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Take after Restore failed: %v", err)
	}
	if got.RevertVersionNumber != 4 {
		t.Errorf("unexpected record after restore: %+v", got)
	}
}

func TestRestoreRefusesExpiredWindow(t *testing.T) {
	store, s := setupTestRedis(t, 8*time.Second)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	stale := Pending{DocumentID: "doc-1", CreatedAt: time.Now().Add(-9 * time.Second)}
	if err := store.Restore(ctx, "tok-1", stale); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an expired window, got %v", err)
	}
	if _, err := store.Take(ctx, "tok-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected nothing stored, got %v", err)
	}
}

func TestTakeIsSingleUse(t *testing.T) {
	store, s := setupTestRedis(t, 8*time.Second)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "tok-1", Pending{DocumentID: "doc-1"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Take(ctx, "tok-1"); err != nil {
		t.Fatalf("first Take failed: %v", err)
	}
	if _, err := store.Take(ctx, "tok-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Take: expected ErrNotFound, got %v", err)
	}
}

func TestTakeAfterWindowExpires(t *testing.T) {
	store, s := setupTestRedis(t, 8*time.Second)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "tok-1", Pending{DocumentID: "doc-1"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	s.FastForward(9 * time.Second)

	if _, err := store.Take(ctx, "tok-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestTakeUnknownToken(t *testing.T) {
	store, s := setupTestRedis(t, 8*time.Second)
	defer store.Close()
	defer s.Close()

	if _, err := store.Take(context.Background(), "never-issued"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDefaultTTL(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()
	store, err := NewRedisStore("redis://"+s.Addr(), 0)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()
	if store.TTL() != 8*time.Second {
		t.Errorf("expected default 8s window, got %v", store.TTL())
	}
}
