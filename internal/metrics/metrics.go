// Package metrics exposes job and checkout counters in Prometheus format.
// A nil *Registry is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johnrirwin/ordo/internal/models"
)

type Registry struct {
	reg              *prometheus.Registry
	JobRuns          *prometheus.CounterVec
	CatalogWrites    *prometheus.CounterVec
	PriceUpdates     *prometheus.CounterVec
	OrdersSynced     *prometheus.CounterVec
	CheckoutResults  *prometheus.CounterVec
	CheckoutDuration *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordo_job_runs_total",
		Help: "Reconciliation job runs by job, vendor and outcome.",
	}, []string{"job", "vendor", "outcome"})
	catalogWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordo_catalog_writes_total",
		Help: "Products disabled, enabled or created by catalog sync.",
	}, []string{"vendor", "action"})
	priceUpdates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordo_price_updates_total",
		Help: "Product prices written by price refresh.",
	}, []string{"vendor"})
	ordersSynced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordo_orders_synced_total",
		Help: "Vendor orders imported from order history.",
	}, []string{"vendor"})
	checkoutResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ordo_checkout_vendor_results_total",
		Help: "Per-vendor checkout outcomes by error kind.",
	}, []string{"vendor", "kind"})
	checkoutDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ordo_checkout_vendor_seconds",
		Help:    "Time spent checking out one vendor cart.",
		Buckets: prometheus.DefBuckets,
	}, []string{"vendor"})

	r.MustRegister(jobRuns, catalogWrites, priceUpdates, ordersSynced, checkoutResults, checkoutDuration)
	return &Registry{
		reg:              r,
		JobRuns:          jobRuns,
		CatalogWrites:    catalogWrites,
		PriceUpdates:     priceUpdates,
		OrdersSynced:     ordersSynced,
		CheckoutResults:  checkoutResults,
		CheckoutDuration: checkoutDuration,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// JobFinished counts one job run
func (r *Registry) JobFinished(job string, vendor models.VendorSlug, err error) {
	if r == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(models.KindOf(err))
	}
	r.JobRuns.WithLabelValues(job, string(vendor), outcome).Inc()
}

// CatalogWritten counts products written by one catalog sync action
func (r *Registry) CatalogWritten(vendor models.VendorSlug, action string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.CatalogWrites.WithLabelValues(string(vendor), action).Add(float64(n))
}

func (r *Registry) PricesUpdated(vendor models.VendorSlug, n int) {
	if r == nil || n == 0 {
		return
	}
	r.PriceUpdates.WithLabelValues(string(vendor)).Add(float64(n))
}

func (r *Registry) OrdersImported(vendor models.VendorSlug, n int) {
	if r == nil || n == 0 {
		return
	}
	r.OrdersSynced.WithLabelValues(string(vendor)).Add(float64(n))
}

// CheckoutFinished records one vendor's checkout outcome and duration
func (r *Registry) CheckoutFinished(vendor models.VendorSlug, err error, elapsed time.Duration) {
	if r == nil {
		return
	}
	kind := "success"
	if err != nil {
		kind = string(models.KindOf(err))
	}
	r.CheckoutResults.WithLabelValues(string(vendor), kind).Inc()
	r.CheckoutDuration.WithLabelValues(string(vendor)).Observe(elapsed.Seconds())
}
