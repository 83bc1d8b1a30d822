package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/johnrirwin/ordo/internal/logging"
	"github.com/johnrirwin/ordo/internal/models"
)

const jobOrderSync = "order_sync"

// OrderResult summarizes one order-history sync
type OrderResult struct {
	Vendor   models.VendorSlug `json:"vendor"`
	Offices  int               `json:"offices"`
	Fetched  int               `json:"fetched"`
	Imported int               `json:"imported"`
	Failed   []string          `json:"failed,omitempty"`
}

// OrderSync imports vendor order history for every linked office
type OrderSync struct {
	deps Deps
	cfg  Config
}

// NewOrderSync creates an order sync job
func NewOrderSync(deps Deps, cfg Config) *OrderSync {
	return &OrderSync{deps: deps, cfg: cfg.withDefaults()}
}

// Run syncs the offices linked to vendor, or only cfg.OfficeID when set. One
// office failing does not stop the others; their errors are joined.
func (j *OrderSync) Run(ctx context.Context, vendor models.VendorSlug) (result *OrderResult, err error) {
	started := time.Now()
	result = &OrderResult{Vendor: vendor}
	defer func() {
		j.deps.finish(jobOrderSync, vendor, started, err, map[string]interface{}{
			"offices":  result.Offices,
			"fetched":  result.Fetched,
			"imported": result.Imported,
			"failed":   len(result.Failed),
		})
	}()

	if _, err := j.deps.Vendors.Get(vendor); err != nil {
		return result, err
	}

	offices := []string{j.cfg.OfficeID}
	if j.cfg.OfficeID == "" {
		offices, err = j.deps.Offices.OfficesForVendor(ctx, vendor)
		if err != nil {
			return result, writeErr(jobOrderSync, vendor, "list offices", err)
		}
	}
	result.Offices = len(offices)

	query := models.OrderQuery{
		Since:    j.deps.now().Add(-j.cfg.OrderLookback),
		MaxPages: j.cfg.OrderMaxPages,
	}

	var errs []error
	for _, officeID := range offices {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		fetched, imported, err := j.syncOffice(ctx, vendor, officeID, query)
		result.Fetched += fetched
		result.Imported += imported
		if err != nil {
			result.Failed = append(result.Failed, officeID)
			errs = append(errs, fmt.Errorf("office %s: %w", officeID, err))
			j.deps.Logger.Warn("Order sync failed for office", logging.WithFields(map[string]interface{}{
				"vendor": vendor,
				"office": officeID,
				"kind":   models.KindOf(err),
				"error":  err.Error(),
			}))
		}
	}
	j.deps.Metrics.OrdersImported(vendor, result.Imported)
	return result, errors.Join(errs...)
}

func (j *OrderSync) syncOffice(ctx context.Context, vendor models.VendorSlug, officeID string, query models.OrderQuery) (int, int, error) {
	adapter, h, err := j.deps.connect(ctx, vendor, officeID)
	if err != nil {
		return 0, 0, err
	}
	history, err := adapter.GetOrders(ctx, h, query)
	if err != nil {
		j.deps.Connector.Fail(ctx, h, err)
	}
	j.deps.Connector.Release(h)
	if err != nil {
		return 0, 0, err
	}

	ids := make([]string, 0, len(history))
	for _, info := range history {
		ids = append(ids, info.VendorOrderID)
	}
	known, err := j.deps.Orders.KnownVendorOrderIDs(ctx, officeID, vendor, ids)
	if err != nil {
		return len(history), 0, writeErr(jobOrderSync, vendor, "load known orders", err)
	}
	if known == nil {
		known = make(map[string]bool)
	}

	now := j.deps.now()
	var fresh []models.VendorOrder
	for _, info := range history {
		if known[info.VendorOrderID] {
			continue
		}
		known[info.VendorOrderID] = true

		order := models.VendorOrderFromInfo(officeID, info)
		order.ID = uuid.New().String()
		order.CreatedAt = now
		order.UpdatedAt = now
		if !info.ReportedTotal.IsZero() && !info.ReportedTotal.Equal(order.TotalAmount) {
			j.deps.Logger.Debug("Vendor order total differs from line items", logging.WithFields(map[string]interface{}{
				"vendor":   vendor,
				"order":    info.VendorOrderID,
				"reported": info.ReportedTotal.String(),
				"computed": order.TotalAmount.String(),
			}))
		}
		fresh = append(fresh, order)
	}
	if len(fresh) == 0 {
		return len(history), 0, nil
	}

	if err := j.deps.Orders.CreateVendorOrders(ctx, fresh); err != nil {
		return len(history), 0, writeErr(jobOrderSync, vendor, "save orders", err)
	}
	return len(history), len(fresh), nil
}
