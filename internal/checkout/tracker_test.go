package checkout

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/johnrirwin/ordo/internal/models"
)

// trackerContract runs the behavior every ProgressTracker must have
func trackerContract(t *testing.T, tracker ProgressTracker, office string) {
	t.Helper()
	ctx := context.Background()
	pairAB := []models.VendorSlug{models.VendorBenco, models.VendorDarby}
	pairBC := []models.VendorSlug{models.VendorDarby, models.VendorNet32}

	status, err := tracker.Status(ctx, office, pairAB)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	for _, p := range status {
		if p.Status != models.CheckoutNotStarted {
			t.Errorf("initial status[%s] = %s", p.Vendor, p.Status)
		}
	}

	if err := tracker.Begin(ctx, office, pairAB); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	// Overlapping request is rejected as a whole
	err = tracker.Begin(ctx, office, pairBC)
	if !errors.Is(err, models.ErrOrderInProgress) {
		t.Fatalf("overlapping Begin() error = %v, want ErrOrderInProgress", err)
	}
	status, _ = tracker.Status(ctx, office, []models.VendorSlug{models.VendorNet32})
	if status[0].Status != models.CheckoutNotStarted {
		t.Errorf("net32 status = %s, rejected Begin must not claim it", status[0].Status)
	}

	// Other offices are independent
	if err := tracker.Begin(ctx, office+"-other", pairBC); err != nil {
		t.Errorf("other office Begin() error = %v", err)
	}

	if err := tracker.Complete(ctx, office, pairAB); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	status, _ = tracker.Status(ctx, office, pairAB)
	for _, p := range status {
		if p.Status != models.CheckoutComplete || p.UpdatedAt.IsZero() {
			t.Errorf("status after complete = %+v", p)
		}
	}

	if err := tracker.Begin(ctx, office, pairBC); err != nil {
		t.Errorf("Begin() after complete error = %v", err)
	}
}

func TestMemoryTracker(t *testing.T) {
	trackerContract(t, NewMemoryTracker(), "office-1")
}

func TestMemoryTracker_ConcurrentBegin(t *testing.T) {
	tracker := NewMemoryTracker()
	vendors := []models.VendorSlug{models.VendorBenco}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tracker.Begin(context.Background(), "office-1", vendors); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 1 {
		t.Errorf("granted = %d, want exactly 1", granted)
	}
}

func TestRedisTracker(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping test: redis not available: %v", err)
	}
	defer client.Close()

	prefix := "test-checkout-" + uuid.New().String() + ":"
	tracker := NewRedisTracker(client, prefix, time.Minute)
	trackerContract(t, tracker, "office-1")
}
