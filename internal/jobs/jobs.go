// Package jobs runs the bulk reconciliation work against vendors: catalog
// availability sync, stale price refresh and order-history import. Every job
// reads everything it needs from the vendor first and writes afterwards, so a
// failed fetch leaves the local mirror untouched.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/johnrirwin/ordo/internal/logging"
	"github.com/johnrirwin/ordo/internal/metrics"
	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/session"
	"github.com/johnrirwin/ordo/internal/vendors"
)

// ProductStore is the local product mirror. Each write call runs in its own
// transaction.
type ProductStore interface {
	LocalProducts(ctx context.Context, vendor models.VendorSlug) ([]models.LocalProduct, error)
	SetAvailability(ctx context.Context, vendor models.VendorSlug, ids []string, available bool) error
	CreateProducts(ctx context.Context, vendor models.VendorSlug, products []models.Product) error
	UpdatePrices(ctx context.Context, vendor models.VendorSlug, updates []models.PriceUpdate, at time.Time) error
}

// OrderStore persists imported vendor orders
type OrderStore interface {
	KnownVendorOrderIDs(ctx context.Context, officeID string, vendor models.VendorSlug, ids []string) (map[string]bool, error)
	CreateVendorOrders(ctx context.Context, orders []models.VendorOrder) error
}

// OfficeLister finds the offices linked to a vendor
type OfficeLister interface {
	OfficesForVendor(ctx context.Context, vendor models.VendorSlug) ([]string, error)
}

// Config tunes the jobs
type Config struct {
	BatchSize     int           // rows per write transaction
	MaxAge        time.Duration // prices older than this are refreshed
	Concurrency   int           // catalog pages fetched at once
	OfficeID      string        // office whose login is used for catalog and price lookups
	OrderLookback time.Duration // how far back order sync looks
	OrderMaxPages int
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		MaxAge:        24 * time.Hour,
		Concurrency:   4,
		OrderLookback: 90 * 24 * time.Hour,
		OrderMaxPages: 10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxAge <= 0 {
		c.MaxAge = d.MaxAge
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.OrderLookback <= 0 {
		c.OrderLookback = d.OrderLookback
	}
	if c.OrderMaxPages <= 0 {
		c.OrderMaxPages = d.OrderMaxPages
	}
	return c
}

// Deps are the collaborators shared by every job
type Deps struct {
	Vendors   *vendors.Registry
	Connector *vendors.Connector
	Products  ProductStore
	Orders    OrderStore
	Offices   OfficeLister
	Metrics   *metrics.Registry
	Logger    *logging.Logger
	Now       func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// connect resolves the vendor's adapter and leases a handle for officeID
func (d Deps) connect(ctx context.Context, vendor models.VendorSlug, officeID string) (vendors.Adapter, *session.Handle, error) {
	adapter, err := d.Vendors.Get(vendor)
	if err != nil {
		return nil, nil, err
	}
	h, err := d.Connector.Connect(ctx, adapter, officeID)
	if err != nil {
		return nil, nil, err
	}
	return adapter, h, nil
}

// finish logs and counts a job outcome
func (d Deps) finish(job string, vendor models.VendorSlug, started time.Time, err error, fields map[string]interface{}) {
	d.Metrics.JobFinished(job, vendor, err)

	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["job"] = job
	fields["vendor"] = vendor
	fields["duration_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
		fields["kind"] = models.KindOf(err)
		d.Logger.Error("Job failed", logging.WithFields(fields))
		return
	}
	d.Logger.Info("Job complete", logging.WithFields(fields))
}

func writeErr(job string, vendor models.VendorSlug, action string, err error) error {
	return fmt.Errorf("%s %s: %s: %w", job, vendor, action, err)
}
