package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	limiter := New(time.Second)
	if limiter == nil {
		t.Fatal("New() returned nil")
	}
	if limiter.hosts == nil {
		t.Fatal("New() returned limiter with nil hosts map")
	}
	if limiter.minInterval != time.Second {
		t.Errorf("New() minInterval = %v, want %v", limiter.minInterval, time.Second)
	}
}

func TestAllow_FirstRequest(t *testing.T) {
	limiter := New(100 * time.Millisecond)

	if !limiter.Allow("www.henryschein.com") {
		t.Error("Allow() should return true for first request to a host")
	}
}

func TestAllow_SecondRequestTooSoon(t *testing.T) {
	limiter := New(100 * time.Millisecond)

	limiter.Allow("www.henryschein.com")
	if limiter.Allow("www.henryschein.com") {
		t.Error("Allow() should return false for second request before minInterval")
	}
}

func TestAllow_SecondRequestAfterInterval(t *testing.T) {
	limiter := New(50 * time.Millisecond)

	limiter.Allow("www.henryschein.com")
	time.Sleep(60 * time.Millisecond)

	if !limiter.Allow("www.henryschein.com") {
		t.Error("Allow() should return true after minInterval has passed")
	}
}

func TestAllow_DifferentHosts(t *testing.T) {
	limiter := New(100 * time.Millisecond)

	limiter.Allow("www.henryschein.com")
	if !limiter.Allow("shop.benco.com") {
		t.Error("Allow() should return true for different host")
	}
}

func TestWait_FirstRequest(t *testing.T) {
	limiter := New(50 * time.Millisecond)

	start := time.Now()
	limiter.Wait("www.henryschein.com")
	elapsed := time.Since(start)

	if elapsed >= 50*time.Millisecond {
		t.Error("Wait() should not wait for first request")
	}
}

func TestWait_SecondRequestWaits(t *testing.T) {
	limiter := New(50 * time.Millisecond)

	limiter.Wait("www.henryschein.com")
	start := time.Now()
	limiter.Wait("www.henryschein.com")
	elapsed := time.Since(start)

	// Should wait close to 50ms (allow some tolerance)
	if elapsed < 40*time.Millisecond {
		t.Errorf("Wait() should wait for minInterval, elapsed: %v", elapsed)
	}
}

func TestWait_DifferentHostsNoWait(t *testing.T) {
	limiter := New(100 * time.Millisecond)

	limiter.Wait("www.henryschein.com")
	start := time.Now()
	limiter.Wait("shop.benco.com")
	elapsed := time.Since(start)

	if elapsed >= 50*time.Millisecond {
		t.Error("Wait() should not wait for different host")
	}
}

func TestReset(t *testing.T) {
	limiter := New(100 * time.Millisecond)

	limiter.Allow("www.henryschein.com")
	if limiter.Allow("www.henryschein.com") {
		t.Fatal("Second Allow() should return false before reset")
	}

	limiter.Reset("www.henryschein.com")

	if !limiter.Allow("www.henryschein.com") {
		t.Error("Allow() should return true after Reset()")
	}
}

func TestResetAll(t *testing.T) {
	limiter := New(100 * time.Millisecond)

	limiter.Allow("www.henryschein.com")
	limiter.Allow("shop.benco.com")

	limiter.ResetAll()

	if !limiter.Allow("www.henryschein.com") {
		t.Error("Allow() should return true after ResetAll()")
	}
	if !limiter.Allow("shop.benco.com") {
		t.Error("Allow() should return true after ResetAll()")
	}
}

func TestConcurrentAccess(t *testing.T) {
	limiter := New(10 * time.Millisecond)
	var wg sync.WaitGroup

	// Spawn multiple goroutines accessing the same host
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				limiter.Allow("www.henryschein.com")
				limiter.Reset("www.henryschein.com")
			}
		}()
	}

	// Spawn multiple goroutines accessing different hosts
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			host := "host" + string(rune('a'+idx)) + ".com"
			limiter.Wait(host)
		}(i)
	}

	wg.Wait()
	// If we get here without race conditions, test passes
}

func TestWait_PartialIntervalElapsed(t *testing.T) {
	limiter := New(100 * time.Millisecond)

	limiter.Wait("www.henryschein.com")
	time.Sleep(30 * time.Millisecond) // Wait part of the interval

	start := time.Now()
	limiter.Wait("www.henryschein.com")
	elapsed := time.Since(start)

	// Should wait approximately 70ms (100ms - 30ms already elapsed)
	if elapsed < 60*time.Millisecond || elapsed > 90*time.Millisecond {
		t.Errorf("Wait() should wait for remaining interval, elapsed: %v", elapsed)
	}
}

func TestAllow_UpdatesTimestamp(t *testing.T) {
	limiter := New(50 * time.Millisecond)

	limiter.Allow("www.henryschein.com")
	time.Sleep(30 * time.Millisecond)
	limiter.Allow("www.henryschein.com") // Should fail but not update timestamp

	time.Sleep(30 * time.Millisecond) // 60ms total from first Allow

	if !limiter.Allow("www.henryschein.com") {
		t.Error("Allow() should return true after original minInterval has passed")
	}
}

func TestReset_NonExistentHost(t *testing.T) {
	limiter := New(time.Second)

	// Should not panic
	limiter.Reset("www.darbydental.com")

	// And Allow should work normally
	if !limiter.Allow("www.darbydental.com") {
		t.Error("Allow() should return true for host after Reset()")
	}
}

func TestLimiter_ZeroInterval(t *testing.T) {
	limiter := New(0)

	// All requests should be allowed immediately
	for i := 0; i < 10; i++ {
		if !limiter.Allow("www.henryschein.com") {
			t.Errorf("Allow() should always return true with zero interval, iteration %d", i)
		}
	}
}

func TestWaitContext_Cancelled(t *testing.T) {
	limiter := New(time.Second)
	limiter.Allow("www.net32.com")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.WaitContext(ctx, "www.net32.com"); err != context.DeadlineExceeded {
		t.Errorf("WaitContext() = %v, want deadline exceeded", err)
	}
}

func TestWaitContext_SpacesConcurrentCallers(t *testing.T) {
	limiter := New(30 * time.Millisecond)
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = limiter.WaitContext(context.Background(), "api.dentalcity.com")
		}()
	}
	wg.Wait()

	// three callers need two full intervals between them
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Errorf("three WaitContext() calls finished in %v, want >= 60ms", elapsed)
	}
}

func TestHostKey(t *testing.T) {
	tests := map[string]string{
		"https://www.henryschein.com/us-en/Search.aspx?q=gloves": "www.henryschein.com",
		"http://127.0.0.1:8080/api":                             "127.0.0.1:8080",
		"dental_city":                                           "dental_city",
	}
	for in, want := range tests {
		if got := HostKey(in); got != want {
			t.Errorf("HostKey(%q) = %q, want %q", in, got, want)
		}
	}
}
