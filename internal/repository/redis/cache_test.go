package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/limiquantix/addrpool/internal/domain"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheWithClient(client, time.Minute, zap.NewNop()), mr
}

func TestCache_ProfileRoundTrip(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	profile := &domain.NetworkProfile{
		ID:          "p1",
		Label:       "lan",
		BaseAddress: "192.168.1.0",
		Mask:        "255.255.255.252/30",
		AddressList: domain.AddressList{
			{Role: domain.RoleNetwork, Value: "192.168.1.0"},
			{Role: domain.RoleGateway, Value: "192.168.1.1"},
			{Role: domain.RoleUnassigned, Value: "192.168.1.2"},
			{Role: domain.RoleBroadcast, Value: "192.168.1.3"},
		},
		Version: 3,
	}

	if err := cache.SetProfile(ctx, profile); err != nil {
		t.Fatalf("SetProfile failed: %v", err)
	}
	if ttl := mr.TTL(profileKey("p1")); ttl != time.Minute {
		t.Errorf("Expected TTL 1m, got %s", ttl)
	}

	got, err := cache.GetProfile(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.Label != "lan" || got.Version != 3 {
		t.Errorf("Expected lan at version 3, got %s at version %d", got.Label, got.Version)
	}
	if len(got.AddressList) != 4 || got.AddressList[1].Role != domain.RoleGateway {
		t.Errorf("Expected address list to survive the round trip, got %+v", got.AddressList)
	}

	if err := cache.InvalidateProfile(ctx, "p1"); err != nil {
		t.Fatalf("InvalidateProfile failed: %v", err)
	}
	if _, err := cache.GetProfile(ctx, "p1"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after invalidation, got %v", err)
	}
}

func TestCache_GetProfile_Expired(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	if err := cache.SetProfile(ctx, &domain.NetworkProfile{ID: "p1", Label: "lan"}); err != nil {
		t.Fatalf("SetProfile failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := cache.GetProfile(ctx, "p1"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after TTL, got %v", err)
	}
}

func TestCache_GetProfile_Unavailable(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.Close()

	_, err := cache.GetProfile(context.Background(), "p1")
	if err == nil || errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected connection error, got %v", err)
	}
}

func TestCache_PublishSubscribe(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := cache.Subscribe(ctx)

	// The subscription is registered asynchronously; publish until it lands.
	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := cache.PublishEvent(ctx, domain.Event{Type: domain.EventProfileCreated, ResourceID: "p1"}); err != nil {
			t.Fatalf("PublishEvent failed: %v", err)
		}
		select {
		case event := <-events:
			if event.Type != domain.EventProfileCreated || event.ResourceID != "p1" {
				t.Errorf("Unexpected event: %+v", event)
			}
			if event.Timestamp.IsZero() {
				t.Error("Expected timestamp to be set")
			}
			return
		case <-ticker.C:
		case <-deadline:
			t.Fatal("Timed out waiting for event")
		}
	}
}
