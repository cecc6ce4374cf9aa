package authflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) (*TrustedDeviceRegistry, KeyValueStore, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	store := NewMemoryStore()
	registry := NewTrustedDeviceRegistry(TrustedDeviceConfig{
		TTL:       30 * 24 * time.Hour,
		KeyPrefix: "af",
	}, store, clock)
	return registry, store, clock
}

func TestGrantRequiresConfirmedIntent(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	if _, err := registry.Grant(context.Background(), "u1", "linux", false); !errors.Is(err, ErrTrustUnconfirmed) {
		t.Fatalf("expected ErrTrustUnconfirmed, got %v", err)
	}

	trusted, err := registry.IsTrusted(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if trusted {
		t.Fatal("expected no grant after refused intent")
	}
}

func TestGrantThenTrusted(t *testing.T) {
	registry, _, clock := newTestRegistry(t)

	grant, err := registry.Grant(context.Background(), "u1", "linux / firefox", true)
	if err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if want := clock.Now().Add(30 * 24 * time.Hour); !grant.ExpiresAt.Equal(want) {
		t.Fatalf("expected ExpiresAt %v, got %v", want, grant.ExpiresAt)
	}

	trusted, err := registry.IsTrusted(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if !trusted {
		t.Fatal("expected device to be trusted after grant")
	}

	// Another user on the same installation stays untrusted.
	trusted, err = registry.IsTrusted(context.Background(), "u2")
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if trusted {
		t.Fatal("expected other user untrusted")
	}
}

func TestTrustTTLBoundaries(t *testing.T) {
	registry, store, clock := newTestRegistry(t)

	if _, err := registry.Grant(context.Background(), "u1", "", true); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	clock.Advance(29 * 24 * time.Hour)
	trusted, err := registry.IsTrusted(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if !trusted {
		t.Fatal("expected grant valid at T+29d")
	}

	clock.Advance(2 * 24 * time.Hour)
	trusted, err = registry.IsTrusted(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if trusted {
		t.Fatal("expected grant invalid at T+31d")
	}

	// Expired trust is purged, not just ignored.
	if _, err := store.Get(context.Background(), "af:device:u1"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected fast-lookup record purged, got %v", err)
	}
	grants, err := registry.List(context.Background(), "u1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(grants) != 0 {
		t.Fatalf("expected no listed grants after expiry, got %d", len(grants))
	}
}

func TestListPrunesExpiredEntries(t *testing.T) {
	registry, _, clock := newTestRegistry(t)

	if _, err := registry.Grant(context.Background(), "u1", "old", true); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	clock.Advance(31 * 24 * time.Hour)

	grant, err := registry.Grant(context.Background(), "u1", "new", true)
	if err != nil {
		t.Fatalf("second Grant failed: %v", err)
	}

	grants, err := registry.List(context.Background(), "u1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("expected a single live grant, got %d", len(grants))
	}
	if grants[0].Label != "new" || grants[0].DeviceID != grant.DeviceID {
		t.Fatalf("unexpected surviving grant %+v", grants[0])
	}
}

func TestRevokeClearsBothKeys(t *testing.T) {
	registry, store, _ := newTestRegistry(t)

	grant, err := registry.Grant(context.Background(), "u1", "", true)
	if err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	if err := registry.Revoke(context.Background(), "u1", grant.DeviceID); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	trusted, err := registry.IsTrusted(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if trusted {
		t.Fatal("expected untrusted after revoke")
	}
	if _, err := store.Get(context.Background(), "af:device:u1"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected fast-lookup record cleared, got %v", err)
	}
	if _, err := store.Get(context.Background(), "af:devices:u1"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected grant list cleared, got %v", err)
	}
}

func TestRevokeAll(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	if _, err := registry.Grant(context.Background(), "u1", "", true); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	if err := registry.RevokeAll(context.Background(), "u1"); err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}

	trusted, err := registry.IsTrusted(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if trusted {
		t.Fatal("expected untrusted after RevokeAll")
	}
	grants, err := registry.List(context.Background(), "u1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(grants) != 0 {
		t.Fatalf("expected empty list after RevokeAll, got %d", len(grants))
	}
}

func TestDeviceIdentityStableAcrossRestarts(t *testing.T) {
	store := NewMemoryStore()
	clock := newFakeClock()
	cfg := TrustedDeviceConfig{TTL: 30 * 24 * time.Hour, KeyPrefix: "af"}

	first := NewTrustedDeviceRegistry(cfg, store, clock)
	id1, err := first.DeviceID(context.Background())
	if err != nil {
		t.Fatalf("DeviceID failed: %v", err)
	}
	if id1 == "" {
		t.Fatal("expected non-empty device id")
	}

	// A fresh registry over the same store models an application restart.
	second := NewTrustedDeviceRegistry(cfg, store, clock)
	id2, err := second.DeviceID(context.Background())
	if err != nil {
		t.Fatalf("DeviceID after restart failed: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected stable device id, got %q then %q", id1, id2)
	}
}

func TestTrustGrantSurvivesRestartViaRedis(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	clock := newFakeClock()
	cfg := TrustedDeviceConfig{TTL: 30 * 24 * time.Hour, KeyPrefix: "af"}
	store := NewRedisStore(rdb)

	first := NewTrustedDeviceRegistry(cfg, store, clock)
	if _, err := first.Grant(context.Background(), "u1", "", true); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	second := NewTrustedDeviceRegistry(cfg, store, clock)
	trusted, err := second.IsTrusted(context.Background(), "u1")
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if !trusted {
		t.Fatal("expected persisted grant to survive restart")
	}
}
