package jobs

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/johnrirwin/ordo/internal/logging"
	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/reconcile"
	"github.com/johnrirwin/ordo/internal/session"
	"github.com/johnrirwin/ordo/internal/vendors"
)

const jobCatalogSync = "catalog_sync"

// CatalogResult summarizes one catalog sync
type CatalogResult struct {
	Vendor   models.VendorSlug `json:"vendor"`
	Fetched  int               `json:"fetched"`
	Disabled int               `json:"disabled"`
	Enabled  int               `json:"enabled"`
	Created  int               `json:"created"`
}

// CatalogSync mirrors a vendor's full catalog listing into the product store
type CatalogSync struct {
	deps Deps
	cfg  Config
}

// NewCatalogSync creates a catalog sync job
func NewCatalogSync(deps Deps, cfg Config) *CatalogSync {
	return &CatalogSync{deps: deps, cfg: cfg.withDefaults()}
}

// Run fetches every catalog page, diffs it against the local mirror and
// applies the result in batches. Nothing is written unless every page was
// fetched.
func (j *CatalogSync) Run(ctx context.Context, vendor models.VendorSlug) (result *CatalogResult, err error) {
	started := time.Now()
	result = &CatalogResult{Vendor: vendor}
	defer func() {
		j.deps.finish(jobCatalogSync, vendor, started, err, map[string]interface{}{
			"fetched":  result.Fetched,
			"disabled": result.Disabled,
			"enabled":  result.Enabled,
			"created":  result.Created,
		})
	}()

	adapter, err := j.deps.Vendors.Get(vendor)
	if err != nil {
		return result, err
	}
	fetcher, ok := adapter.(vendors.CatalogFetcher)
	if !ok {
		return result, models.NewVendorError(vendor, models.KindNotSupported, "catalog", "vendor does not publish a catalog listing", nil)
	}

	h, err := j.deps.Connector.Connect(ctx, adapter, j.cfg.OfficeID)
	if err != nil {
		return result, err
	}
	remote, err := j.fetchCatalog(ctx, fetcher, h)
	if err != nil {
		j.deps.Connector.Fail(ctx, h, err)
	}
	j.deps.Connector.Release(h)
	if err != nil {
		return result, err
	}
	result.Fetched = len(remote)

	local, err := j.deps.Products.LocalProducts(ctx, vendor)
	if err != nil {
		return result, writeErr(jobCatalogSync, vendor, "load local products", err)
	}
	state := reconcile.CatalogState{Remote: remote}
	for _, p := range local {
		if p.Available {
			state.LocalAvailable = append(state.LocalAvailable, p.ProductID)
		} else {
			state.LocalUnavailable = append(state.LocalUnavailable, p.ProductID)
		}
	}

	actions := reconcile.DiffCatalog(state)
	if actions.IsEmpty() {
		return result, nil
	}
	return result, j.apply(ctx, vendor, actions, result)
}

// fetchCatalog reads every page with bounded concurrency. The first page
// failure cancels the rest.
func (j *CatalogSync) fetchCatalog(ctx context.Context, fetcher vendors.CatalogFetcher, h *session.Handle) ([]models.Product, error) {
	pages, err := fetcher.CatalogPageCount(ctx, h)
	if err != nil {
		return nil, err
	}

	results := make([][]models.Product, pages)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.Concurrency)
	for page := 1; page <= pages; page++ {
		g.Go(func() error {
			products, err := fetcher.CatalogPage(gctx, h, page)
			if err != nil {
				return err
			}
			results[page-1] = products
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []models.Product
	for _, products := range results {
		all = append(all, products...)
	}
	j.deps.Logger.Debug("Fetched vendor catalog", logging.WithFields(map[string]interface{}{
		"vendor":   h.Vendor,
		"pages":    pages,
		"products": len(all),
	}))
	return all, nil
}

func (j *CatalogSync) apply(ctx context.Context, vendor models.VendorSlug, actions *reconcile.CatalogActions, result *CatalogResult) error {
	for _, b := range reconcile.Batches(len(actions.Disable), j.cfg.BatchSize) {
		if err := j.deps.Products.SetAvailability(ctx, vendor, actions.Disable[b[0]:b[1]], false); err != nil {
			return writeErr(jobCatalogSync, vendor, "disable products", err)
		}
		result.Disabled += b[1] - b[0]
	}
	j.deps.Metrics.CatalogWritten(vendor, "disable", result.Disabled)

	for _, b := range reconcile.Batches(len(actions.Enable), j.cfg.BatchSize) {
		if err := j.deps.Products.SetAvailability(ctx, vendor, actions.Enable[b[0]:b[1]], true); err != nil {
			return writeErr(jobCatalogSync, vendor, "enable products", err)
		}
		result.Enabled += b[1] - b[0]
	}
	j.deps.Metrics.CatalogWritten(vendor, "enable", result.Enabled)

	// The feed just priced new products, so they are fresh until MaxAge
	pricedAt := j.deps.now()
	for i := range actions.Create {
		p := &actions.Create[i]
		p.Vendor = vendor
		p.Available = true
		if p.LastPriceUpdated == nil && p.Price.IsPositive() {
			p.LastPriceUpdated = &pricedAt
		}
	}
	for _, b := range reconcile.Batches(len(actions.Create), j.cfg.BatchSize) {
		if err := j.deps.Products.CreateProducts(ctx, vendor, actions.Create[b[0]:b[1]]); err != nil {
			return writeErr(jobCatalogSync, vendor, "create products", err)
		}
		result.Created += b[1] - b[0]
	}
	j.deps.Metrics.CatalogWritten(vendor, "create", result.Created)
	return nil
}
