package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/johnrirwin/ordo/internal/models"
)

// ProgressTracker records the checkout status of (office, vendor) pairs
type ProgressTracker interface {
	// Begin moves every pair to IN_PROGRESS, or none of them. It fails with
	// models.ErrOrderInProgress if any pair is already in progress.
	Begin(ctx context.Context, officeID string, vendors []models.VendorSlug) error

	// Complete moves every pair to COMPLETE
	Complete(ctx context.Context, officeID string, vendors []models.VendorSlug) error

	// Status returns one entry per vendor, NOT_STARTED if never seen
	Status(ctx context.Context, officeID string, vendors []models.VendorSlug) ([]models.CheckoutProgress, error)
}

type pair struct {
	office string
	vendor models.VendorSlug
}

// MemoryTracker is a ProgressTracker for a single process
type MemoryTracker struct {
	mu       sync.Mutex
	progress map[pair]models.CheckoutProgress
	now      func() time.Time
}

// NewMemoryTracker creates an in-process tracker
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		progress: make(map[pair]models.CheckoutProgress),
		now:      time.Now,
	}
}

func (t *MemoryTracker) Begin(_ context.Context, officeID string, vendors []models.VendorSlug) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, v := range vendors {
		if t.progress[pair{officeID, v}].Status == models.CheckoutInProgress {
			return inProgress(officeID, v)
		}
	}
	t.set(officeID, vendors, models.CheckoutInProgress)
	return nil
}

func (t *MemoryTracker) Complete(_ context.Context, officeID string, vendors []models.VendorSlug) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.set(officeID, vendors, models.CheckoutComplete)
	return nil
}

func (t *MemoryTracker) set(officeID string, vendors []models.VendorSlug, status models.CheckoutStatus) {
	now := t.now()
	for _, v := range vendors {
		t.progress[pair{officeID, v}] = models.CheckoutProgress{
			OfficeID:  officeID,
			Vendor:    v,
			Status:    status,
			UpdatedAt: now,
		}
	}
}

func (t *MemoryTracker) Status(_ context.Context, officeID string, vendors []models.VendorSlug) ([]models.CheckoutProgress, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.CheckoutProgress, 0, len(vendors))
	for _, v := range vendors {
		p, ok := t.progress[pair{officeID, v}]
		if !ok {
			p = models.CheckoutProgress{OfficeID: officeID, Vendor: v, Status: models.CheckoutNotStarted}
		}
		out = append(out, p)
	}
	return out, nil
}

func inProgress(officeID string, vendor models.VendorSlug) error {
	return models.NewVendorError(vendor, models.KindOrderInProgress, "checkout", "checkout already running for office "+officeID, nil)
}
