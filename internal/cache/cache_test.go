package cache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewMemory(t *testing.T) {
	c := NewMemory(time.Minute)
	defer c.Stop()

	if c.items == nil {
		t.Fatal("NewMemory() returned cache with nil items map")
	}
	if c.ttl != time.Minute {
		t.Errorf("NewMemory() ttl = %v, want %v", c.ttl, time.Minute)
	}
}

func TestMemoryCache_SetAndGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)
	defer c.Stop()

	if err := c.Set(ctx, "session:office-1:darby", []byte("cookies"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := c.Get(ctx, "session:office-1:darby")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "cookies" {
		t.Errorf("Get() = %q, want %q", got, "cookies")
	}
}

func TestMemoryCache_Get_NotFound(t *testing.T) {
	c := NewMemory(time.Minute)
	defer c.Stop()

	if _, err := c.Get(context.Background(), "nonexistent"); !errors.Is(err, ErrMiss) {
		t.Errorf("Get() error = %v, want ErrMiss", err)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)
	defer c.Stop()

	_ = c.Set(ctx, "short", []byte("v"), 50*time.Millisecond)
	_ = c.Set(ctx, "default", []byte("v"), 0)

	time.Sleep(60 * time.Millisecond)

	if _, err := c.Get(ctx, "short"); !errors.Is(err, ErrMiss) {
		t.Error("Get() should miss after custom TTL expired")
	}
	if _, err := c.Get(ctx, "default"); err != nil {
		t.Error("Get() should hit when default TTL hasn't expired")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)
	defer c.Stop()

	_ = c.Set(ctx, "key1", []byte("value1"), 0)
	_ = c.Delete(ctx, "key1")
	_ = c.Delete(ctx, "never-set")

	if _, err := c.Get(ctx, "key1"); !errors.Is(err, ErrMiss) {
		t.Error("Get() should miss after Delete()")
	}
}

func TestMemoryCache_CopiesValues(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)
	defer c.Stop()

	value := []byte("abc")
	_ = c.Set(ctx, "k", value, 0)
	value[0] = 'z'

	got, _ := c.Get(ctx, "k")
	got[1] = 'z'

	again, _ := c.Get(ctx, "k")
	if !bytes.Equal(again, []byte("abc")) {
		t.Errorf("stored value mutated through caller slice: %q", again)
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)
	defer c.Stop()

	type snapshot struct {
		Token string
		Pages []int
	}

	if err := SetJSON(ctx, c, "snap", snapshot{Token: "csrf", Pages: []int{1, 2}}, 0); err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}

	var got snapshot
	ok, err := GetJSON(ctx, c, "snap", &got)
	if err != nil || !ok {
		t.Fatalf("GetJSON() = %v, %v", ok, err)
	}
	if got.Token != "csrf" || len(got.Pages) != 2 {
		t.Errorf("GetJSON() decoded %+v", got)
	}

	ok, err = GetJSON(ctx, c, "missing", &got)
	if ok || err != nil {
		t.Errorf("GetJSON() on miss = %v, %v, want false, nil", ok, err)
	}

	_ = c.Set(ctx, "garbage", []byte("{"), 0)
	if _, err := GetJSON(ctx, c, "garbage", &got); err == nil {
		t.Error("GetJSON() should fail on invalid JSON")
	}
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)
	defer c.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, "shared-key", []byte{byte(idx), byte(j)}, 0)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = c.Get(ctx, "shared-key")
				_ = c.Delete(ctx, "shared-key")
			}
		}()
	}
	wg.Wait()
}

func TestMemoryCache_StopIsIdempotent(t *testing.T) {
	c := NewMemory(time.Minute)
	c.Stop()
	c.Stop()
}
