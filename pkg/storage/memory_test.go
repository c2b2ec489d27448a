package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock lets a test move time forward without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, ttl time.Duration, maxEntries int) (*MemoryCache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 1, 15, 19, 0, 0, 0, time.UTC)}
	c := NewMemoryCache(ttl, maxEntries, time.Hour)
	c.now = clock.now
	t.Cleanup(func() { c.Close() })
	return c, clock
}

func TestMemoryCache_PutGet(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, time.Minute, 0)

	if _, found, err := c.Get(ctx, "missing"); found || err != nil {
		t.Fatalf("Get(missing) = %v, %v", found, err)
	}

	value := []byte(`{"playerId":"2544"}`)
	if err := c.Put(ctx, "k1", value); err != nil {
		t.Fatal(err)
	}
	value[0] = 'X'

	got, found, err := c.Get(ctx, "k1")
	if err != nil || !found {
		t.Fatalf("Get(k1) = %v, %v", found, err)
	}
	if string(got) != `{"playerId":"2544"}` {
		t.Errorf("Get(k1) = %s; the cache must keep its own copy", got)
	}
}

func TestMemoryCache_EmptyKey(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, time.Minute, 0)

	if err := c.Put(ctx, "", []byte("x")); err != ErrEmptyKey {
		t.Errorf("Put error = %v, want ErrEmptyKey", err)
	}
	if _, _, err := c.Get(ctx, ""); err != ErrEmptyKey {
		t.Errorf("Get error = %v, want ErrEmptyKey", err)
	}
}

func TestMemoryCache_CanceledContext(t *testing.T) {
	c, _ := newTestCache(t, time.Minute, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Put(ctx, "k", []byte("v")); err == nil {
		t.Error("Put with a canceled context should fail")
	}
	if _, _, err := c.Get(ctx, "k"); err == nil {
		t.Error("Get with a canceled context should fail")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t, time.Minute, 0)

	if err := c.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	clock.advance(30 * time.Second)
	if _, found, _ := c.Get(ctx, "k"); !found {
		t.Fatal("entry expired early")
	}

	// A rewrite resets the TTL.
	if err := c.Put(ctx, "k", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	clock.advance(45 * time.Second)
	if _, found, _ := c.Get(ctx, "k"); !found {
		t.Fatal("rewritten entry expired early")
	}

	clock.advance(time.Minute)
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Error("entry should have expired")
	}

	c.cleanup()
	if c.Len() != 0 {
		t.Errorf("Len() after cleanup = %d, want 0", c.Len())
	}
}

func TestMemoryCache_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t, time.Hour, 2)

	for _, k := range []string{"a", "b"} {
		if err := c.Put(ctx, k, []byte(k)); err != nil {
			t.Fatal(err)
		}
		clock.advance(time.Second)
	}
	// Updating an existing key never evicts.
	if err := c.Put(ctx, "b", []byte("b2")); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}

	if err := c.Put(ctx, "c", []byte("c")); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := c.Get(ctx, "a"); found {
		t.Error("oldest entry should have been evicted")
	}
	for _, k := range []string{"b", "c"} {
		if _, found, _ := c.Get(ctx, k); !found {
			t.Errorf("entry %q missing", k)
		}
	}
}

func TestMemoryCache_BackgroundCleanup(t *testing.T) {
	c := NewMemoryCache(20*time.Millisecond, 0, 10*time.Millisecond)
	defer c.Close()

	if err := c.Put(context.Background(), "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for c.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Len() != 0 {
		t.Error("background cleanup did not remove the expired entry")
	}
}

func TestMemoryCache_CloseIdempotent(t *testing.T) {
	c := NewMemoryCache(time.Minute, 0, time.Minute)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestMemoryCache_PanicOnInvalidTTL(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for zero TTL")
		}
	}()
	NewMemoryCache(0, 0, time.Minute)
}

func TestMemoryCache_Concurrent(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, time.Minute, 50)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("player-%d-%d", g, i%20)
				if err := c.Put(ctx, key, []byte(key)); err != nil {
					t.Error(err)
					return
				}
				if _, _, err := c.Get(ctx, key); err != nil {
					t.Error(err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("Len() = %d, exceeds max entries", c.Len())
	}
}

func TestKey(t *testing.T) {
	body := []byte(`{"playerId":"2544"}`)
	if Key("set-a", body) != Key("set-a", body) {
		t.Error("Key is not deterministic")
	}
	if Key("set-a", body) == Key("set-b", body) {
		t.Error("different artifact sets must not share keys")
	}
	if Key("set-a", body) == Key("set-a", []byte(`{"playerId":"201939"}`)) {
		t.Error("different requests must not share keys")
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantNil bool
		wantErr bool
	}{
		{"empty backend", Config{}, true, false},
		{"none", Config{Backend: BackendNone}, true, false},
		{"memory", Config{Backend: BackendMemory, TTL: time.Minute, MaxEntries: 10}, false, false},
		{"memory without ttl", Config{Backend: BackendMemory}, true, true},
		{"redis without addr", Config{Backend: BackendRedis, TTL: time.Minute}, true, true},
		{"unknown", Config{Backend: "memcached"}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Open(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if (c == nil) != tt.wantNil {
				t.Fatalf("Open() = %v, wantNil %v", c, tt.wantNil)
			}
			if c != nil {
				c.Close()
			}
		})
	}
}
