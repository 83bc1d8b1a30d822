package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/johnrirwin/ordo/internal/models"
)

func TestRegistry_NilIsNoop(t *testing.T) {
	var r *Registry
	r.JobFinished("catalog_sync", models.VendorNet32, nil)
	r.CatalogWritten(models.VendorNet32, "create", 3)
	r.PricesUpdated(models.VendorNet32, 1)
	r.OrdersImported(models.VendorNet32, 1)
	r.CheckoutFinished(models.VendorNet32, nil, time.Second)
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.JobFinished("price_refresh", models.VendorDentalCity, nil)
	r.CatalogWritten(models.VendorNet32, "disable", 2)
	r.CheckoutFinished(models.VendorDarby, models.NewVendorError(models.VendorDarby, models.KindAuthentication, "login", "", nil), 2*time.Second)
	r.JobFinished("order_sync", models.VendorBenco, errors.New("boom"))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`ordo_job_runs_total{job="price_refresh",outcome="success",vendor="dental_city"} 1`,
		`ordo_job_runs_total{job="order_sync",outcome="unknown",vendor="benco"} 1`,
		`ordo_catalog_writes_total{action="disable",vendor="net_32"} 2`,
		`ordo_checkout_vendor_results_total{kind="authentication_failed",vendor="darby"} 1`,
		`ordo_checkout_vendor_seconds_count{vendor="darby"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
