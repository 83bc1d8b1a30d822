package jobs

import (
	"context"
	"time"

	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/reconcile"
)

const jobPriceRefresh = "price_refresh"

// PriceResult summarizes one price refresh
type PriceResult struct {
	Vendor    models.VendorSlug `json:"vendor"`
	Stale     int               `json:"stale"`
	Updated   int               `json:"updated"`
	Unmatched int               `json:"unmatched"`
}

// PriceRefresh re-prices local products whose price has gone stale
type PriceRefresh struct {
	deps Deps
	cfg  Config
}

// NewPriceRefresh creates a price refresh job
func NewPriceRefresh(deps Deps, cfg Config) *PriceRefresh {
	return &PriceRefresh{deps: deps, cfg: cfg.withDefaults()}
}

// Run looks up current prices for products last priced more than MaxAge ago
// (or never) and writes price and timestamp for the ones the vendor priced.
// Products the vendor did not return are left untouched.
func (j *PriceRefresh) Run(ctx context.Context, vendor models.VendorSlug) (result *PriceResult, err error) {
	started := time.Now()
	result = &PriceResult{Vendor: vendor}
	defer func() {
		j.deps.finish(jobPriceRefresh, vendor, started, err, map[string]interface{}{
			"stale":     result.Stale,
			"updated":   result.Updated,
			"unmatched": result.Unmatched,
		})
	}()

	now := j.deps.now()
	local, err := j.deps.Products.LocalProducts(ctx, vendor)
	if err != nil {
		return result, writeErr(jobPriceRefresh, vendor, "load local products", err)
	}
	stale := reconcile.StaleProducts(local, now, j.cfg.MaxAge)
	result.Stale = len(stale)
	if len(stale) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(stale))
	for _, p := range stale {
		ids = append(ids, p.ProductID)
	}

	adapter, h, err := j.deps.connect(ctx, vendor, j.cfg.OfficeID)
	if err != nil {
		return result, err
	}
	prices, err := adapter.GetProductPrices(ctx, h, ids)
	if err != nil {
		j.deps.Connector.Fail(ctx, h, err)
	}
	j.deps.Connector.Release(h)
	if err != nil {
		return result, err
	}

	updates := reconcile.DiffPrices(stale, prices)
	result.Unmatched = len(stale) - len(updates)
	for _, b := range reconcile.Batches(len(updates), j.cfg.BatchSize) {
		if err := j.deps.Products.UpdatePrices(ctx, vendor, updates[b[0]:b[1]], now); err != nil {
			return result, writeErr(jobPriceRefresh, vendor, "update prices", err)
		}
		result.Updated += b[1] - b[0]
	}
	j.deps.Metrics.PricesUpdated(vendor, result.Updated)
	return result, nil
}
