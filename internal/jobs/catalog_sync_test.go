package jobs

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/vendors"
)

func TestCatalogSync_DisableEnableCreate(t *testing.T) {
	vendor := newFakeVendor(models.VendorNet32)
	vendor.pages = [][]string{{"B"}, {"C"}}
	products := newMemProducts(
		models.LocalProduct{ProductID: "A", Available: true},
		models.LocalProduct{ProductID: "B", Available: false},
	)
	job := NewCatalogSync(testDeps(vendor, products, nil, nil), Config{})

	result, err := job.Run(context.Background(), models.VendorNet32)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := &CatalogResult{Vendor: models.VendorNet32, Fetched: 2, Disabled: 1, Enabled: 1, Created: 1}
	if !reflect.DeepEqual(result, want) {
		t.Errorf("result = %+v, want %+v", result, want)
	}
	if products.get("A").Available {
		t.Error("A should be disabled")
	}
	if !products.get("B").Available {
		t.Error("B should be enabled")
	}
	if !products.get("C").Available {
		t.Error("C should be created available")
	}

	// A second immediate run writes nothing
	products.writes = nil
	result, err = job.Run(context.Background(), models.VendorNet32)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if len(products.writes) != 0 {
		t.Errorf("second run writes = %v, want none", products.writes)
	}
	if result.Disabled+result.Enabled+result.Created != 0 {
		t.Errorf("second run result = %+v", result)
	}
}

func TestCatalogSync_CreatedProductsArePriced(t *testing.T) {
	vendor := newFakeVendor(models.VendorHenrySchein)
	vendor.pages = [][]string{{"new-1", "new-2"}}
	products := newMemProducts()
	creds := newMemCredentials(models.VendorHenrySchein, map[string]string{"office-1": "secret"})
	deps := testDeps(vendor, products, nil, creds)
	cfg := Config{OfficeID: "office-1"}

	if _, err := NewCatalogSync(deps, cfg).Run(context.Background(), models.VendorHenrySchein); err != nil {
		t.Fatalf("CatalogSync.Run() error = %v", err)
	}
	for _, id := range []string{"new-1", "new-2"} {
		p := products.get(id)
		if p.LastPriceUpdated == nil || !p.LastPriceUpdated.Equal(testNow) {
			t.Errorf("%s LastPriceUpdated = %v, want %v", id, p.LastPriceUpdated, testNow)
		}
	}

	// A refresh inside MaxAge has nothing to look up
	result, err := NewPriceRefresh(deps, cfg).Run(context.Background(), models.VendorHenrySchein)
	if err != nil {
		t.Fatalf("PriceRefresh.Run() error = %v", err)
	}
	if result.Stale != 0 || len(vendor.priceCalls) != 0 {
		t.Errorf("refresh after sync: stale = %d, lookups = %v", result.Stale, vendor.priceCalls)
	}

	// Once they age out they are refreshed like any other product
	deps.Now = func() time.Time { return testNow.Add(25 * time.Hour) }
	result, err = NewPriceRefresh(deps, cfg).Run(context.Background(), models.VendorHenrySchein)
	if err != nil {
		t.Fatalf("PriceRefresh.Run() error = %v", err)
	}
	if result.Stale != 2 {
		t.Errorf("Stale = %d after MaxAge, want 2", result.Stale)
	}
}

func TestCatalogSync_PageFailureWritesNothing(t *testing.T) {
	vendor := newFakeVendor(models.VendorNet32)
	vendor.pages = [][]string{{"B"}, {"C"}, {"D"}}
	vendor.failPage = 2
	products := newMemProducts(models.LocalProduct{ProductID: "A", Available: true})
	job := NewCatalogSync(testDeps(vendor, products, nil, nil), Config{Concurrency: 1})

	_, err := job.Run(context.Background(), models.VendorNet32)
	if models.KindOf(err) != models.KindNetwork {
		t.Fatalf("Run() error = %v, want network kind", err)
	}
	if len(products.writes) != 0 {
		t.Errorf("writes = %v, want none", products.writes)
	}
	if !products.get("A").Available {
		t.Error("A must stay available after a failed fetch")
	}
}

func TestCatalogSync_Batches(t *testing.T) {
	vendor := newFakeVendor(models.VendorDentalCity)
	vendor.pages = [][]string{{"1", "2", "3"}, {"4", "5"}}
	products := newMemProducts()
	job := NewCatalogSync(testDeps(vendor, products, nil, nil), Config{BatchSize: 2})

	result, err := job.Run(context.Background(), models.VendorDentalCity)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Created != 5 {
		t.Errorf("Created = %d, want 5", result.Created)
	}
	if want := []string{"create", "create", "create"}; !reflect.DeepEqual(products.writes, want) {
		t.Errorf("writes = %v, want %v", products.writes, want)
	}
}

func TestCatalogSync_WriteFailure(t *testing.T) {
	vendor := newFakeVendor(models.VendorNet32)
	vendor.pages = [][]string{{"B"}}
	products := newMemProducts(models.LocalProduct{ProductID: "A", Available: true})
	products.failOn = "create"
	job := NewCatalogSync(testDeps(vendor, products, nil, nil), Config{})

	result, err := job.Run(context.Background(), models.VendorNet32)
	if err == nil {
		t.Fatal("expected error")
	}
	if result.Disabled != 1 || result.Created != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestCatalogSync_VendorWithoutCatalog(t *testing.T) {
	products := newMemProducts()
	deps := testDeps(newFakeVendor(models.VendorNet32), products, nil, nil)
	job := NewCatalogSync(deps, Config{})

	// Darby is not registered at all
	if _, err := job.Run(context.Background(), models.VendorDarby); models.KindOf(err) != models.KindNotSupported {
		t.Errorf("unregistered vendor error = %v", err)
	}

	// Registered, but without a catalog listing
	deps.Vendors.Register(pricesOnly{newFakeVendor(models.VendorBenco)})
	if _, err := job.Run(context.Background(), models.VendorBenco); models.KindOf(err) != models.KindNotSupported {
		t.Errorf("no-catalog vendor error = %v", err)
	}
}

// pricesOnly hides the catalog methods of a fakeVendor
type pricesOnly struct {
	vendors.Adapter
}
