package cache

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis on DB 15 and skips the test when
// none is running. The integration build tag covers the containerised path.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

type page struct {
	Items []string `json:"items"`
	Next  *string  `json:"next"`
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil, "US")
}

func TestManager_RedisKey(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	tests := []struct {
		namespace string
		want      string
	}{
		{"US", "collabgraph:US:albums:ids=a,b"},
		{" de ", "collabgraph:DE:albums:ids=a,b"},
		{"", "collabgraph:any:albums:ids=a,b"},
	}

	key := NewKey("/albums", url.Values{"ids": []string{"a,b"}, "market": []string{"US"}})
	for _, tt := range tests {
		m := NewManager(client, tt.namespace)
		if got := m.RedisKey(key); got != tt.want {
			t.Errorf("RedisKey() with namespace %q = %q, want %q", tt.namespace, got, tt.want)
		}
	}
}

func TestGetJSON_RoundTrip(t *testing.T) {
	manager := NewManager(setupTestRedis(t), "US")
	ctx := context.Background()
	key := NewKey("/albums/r1/tracks", url.Values{"offset": []string{"0"}, "limit": []string{"50"}})

	body := []byte(`{"items":["t1","t2"],"next":null}`)
	if err := manager.StoreResponse(ctx, key, http.Header{}, body, time.Minute); err != nil {
		t.Fatalf("StoreResponse failed: %v", err)
	}

	got, err := GetJSON[page](ctx, manager, key)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if len(got.Items) != 2 || got.Items[0] != "t1" || got.Next != nil {
		t.Errorf("GetJSON() = %+v", got)
	}

	raw, err := manager.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if string(raw) != string(body) {
		t.Errorf("stored body = %s, want %s", raw, body)
	}
}

func TestGetJSON_Miss(t *testing.T) {
	manager := NewManager(setupTestRedis(t), "US")

	_, err := GetJSON[page](context.Background(), manager, NewKey("/albums/missing/tracks", nil))
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("GetJSON() error = %v, want ErrCacheMiss", err)
	}
}

func TestGetJSON_InvalidBodyIsDeleted(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, "US")
	ctx := context.Background()
	key := NewKey("/albums/corrupt/tracks", nil)

	if err := client.Set(ctx, manager.RedisKey(key), "not json", time.Minute).Err(); err != nil {
		t.Fatalf("raw set failed: %v", err)
	}

	if _, err := GetJSON[page](ctx, manager, key); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("GetJSON() error = %v, want ErrInvalidEntry", err)
	}
	if _, err := manager.Lookup(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Lookup() after invalid body error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_NamespacesAreSeparate(t *testing.T) {
	client := setupTestRedis(t)
	us := NewManager(client, "US")
	de := NewManager(client, "DE")
	ctx := context.Background()
	key := NewKey("/artists/a1/albums", url.Values{"offset": []string{"0"}})

	if err := us.Store(ctx, key, []byte(`{"items":["us"]}`), time.Minute); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	if _, err := GetJSON[page](ctx, de, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("DE GetJSON() error = %v, want ErrCacheMiss", err)
	}
	if got, err := GetJSON[page](ctx, us, key); err != nil || len(got.Items) != 1 {
		t.Errorf("US GetJSON() = %+v, %v", got, err)
	}
}

func TestManager_NoStoreIsNotCached(t *testing.T) {
	manager := NewManager(setupTestRedis(t), "US")
	ctx := context.Background()
	key := NewKey("/albums/private/tracks", nil)

	header := http.Header{"Cache-Control": []string{"no-store"}}
	if err := manager.StoreResponse(ctx, key, header, []byte(`{}`), time.Minute); err != nil {
		t.Fatalf("StoreResponse failed: %v", err)
	}
	if _, err := manager.Lookup(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Lookup() error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_TTLFromHeaders(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client, "US")
	ctx := context.Background()
	key := NewKey("/albums", url.Values{"ids": []string{"r1"}})

	header := http.Header{"Cache-Control": []string{"max-age=60"}}
	if err := manager.StoreResponse(ctx, key, header, []byte(`{}`), time.Hour); err != nil {
		t.Fatalf("StoreResponse failed: %v", err)
	}

	ttl, err := client.TTL(ctx, manager.RedisKey(key)).Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 55*time.Second || ttl > 60*time.Second {
		t.Errorf("TTL = %v, want about 60s", ttl)
	}
}

func TestManager_Delete(t *testing.T) {
	manager := NewManager(setupTestRedis(t), "US")
	ctx := context.Background()
	key := NewKey("/albums/x/tracks", nil)

	if err := manager.Store(ctx, key, []byte(`{}`), time.Minute); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := manager.Lookup(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Lookup() after Delete error = %v, want ErrCacheMiss", err)
	}
}
