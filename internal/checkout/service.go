// Package checkout places one office's cart with every vendor involved,
// concurrently, under a single user action.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johnrirwin/ordo/internal/events"
	"github.com/johnrirwin/ordo/internal/logging"
	"github.com/johnrirwin/ordo/internal/metrics"
	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/vendors"
)

// ErrEmptyCart is reported for a requested vendor with no cart lines
var ErrEmptyCart = errors.New("no cart items for vendor")

// CartStore is the office's shared cart
type CartStore interface {
	ListCart(ctx context.Context, officeID string) ([]models.CartProduct, error)
}

// OrderStore persists placed orders. CreateOrder deletes the ordered cart
// lines in the same transaction, so either both happen or neither does.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order, cartItemIDs []string) error
}

// Request is one checkout action. An empty Vendors list means every vendor
// with items in the cart.
type Request struct {
	OfficeID string              `json:"officeId"`
	Vendors  []models.VendorSlug `json:"vendors"`
	DryRun   bool                `json:"dryRun"`
	PONumber string              `json:"poNumber,omitempty"`
}

// VendorResult is the outcome for one vendor
type VendorResult struct {
	Vendor       models.VendorSlug         `json:"vendor"`
	Success      bool                      `json:"success"`
	Kind         models.ErrorKind          `json:"kind,omitempty"`
	Message      string                    `json:"message,omitempty"`
	Confirmation *models.OrderConfirmation `json:"confirmation,omitempty"`
}

// Response lists every vendor's outcome. Order is set when at least one
// vendor placed an order outside a dry run.
type Response struct {
	OfficeID string         `json:"officeId"`
	DryRun   bool           `json:"dryRun"`
	Results  []VendorResult `json:"results"`
	Order    *models.Order  `json:"order,omitempty"`
}

// Succeeded returns the vendors that checked out successfully
func (r *Response) Succeeded() []models.VendorSlug {
	var out []models.VendorSlug
	for _, res := range r.Results {
		if res.Success {
			out = append(out, res.Vendor)
		}
	}
	return out
}

// Config tunes the orchestrator
type Config struct {
	Timeout time.Duration // per vendor, login through order placement
}

// Service coordinates checkouts
type Service struct {
	vendors   *vendors.Registry
	connector *vendors.Connector
	carts     CartStore
	orders    OrderStore
	tracker   ProgressTracker
	events    events.Publisher
	metrics   *metrics.Registry
	logger    *logging.Logger
	timeout   time.Duration
	now       func() time.Time
}

// Deps are the Service's collaborators. Events and Metrics are optional.
type Deps struct {
	Vendors   *vendors.Registry
	Connector *vendors.Connector
	Carts     CartStore
	Orders    OrderStore
	Tracker   ProgressTracker
	Events    events.Publisher
	Metrics   *metrics.Registry
	Logger    *logging.Logger
}

// NewService creates a checkout service
func NewService(deps Deps, cfg Config) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	publisher := deps.Events
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		vendors:   deps.Vendors,
		connector: deps.Connector,
		carts:     deps.Carts,
		orders:    deps.Orders,
		tracker:   deps.Tracker,
		events:    publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		timeout:   cfg.Timeout,
		now:       time.Now,
	}
}

// Checkout places the office's cart with each requested vendor. If any
// (office, vendor) pair is already checking out, it fails with
// models.ErrOrderInProgress before contacting any vendor. Otherwise every
// vendor runs concurrently and independently; one vendor failing never
// cancels another. Successful vendors are persisted as one Order and their
// cart lines removed.
func (s *Service) Checkout(ctx context.Context, req Request) (*Response, error) {
	if req.OfficeID == "" {
		return nil, fmt.Errorf("checkout: office id is required")
	}

	cart, err := s.carts.ListCart(ctx, req.OfficeID)
	if err != nil {
		return nil, fmt.Errorf("checkout: load cart for office %s: %w", req.OfficeID, err)
	}
	grouped := models.GroupCartByVendor(cart)
	targets := requestedVendors(req.Vendors, grouped)
	if len(targets) == 0 {
		return nil, fmt.Errorf("checkout: %w", ErrEmptyCart)
	}

	if err := s.tracker.Begin(ctx, req.OfficeID, targets); err != nil {
		return nil, err
	}
	defer func() {
		// Complete even when the caller has gone away
		if err := s.tracker.Complete(context.WithoutCancel(ctx), req.OfficeID, targets); err != nil {
			s.logger.Error("Failed to mark checkout complete", logging.WithFields(map[string]interface{}{
				"office": req.OfficeID,
				"error":  err.Error(),
			}))
		}
	}()

	s.logger.Info("Checkout started", logging.WithFields(map[string]interface{}{
		"office":  req.OfficeID,
		"vendors": targets,
		"dry_run": req.DryRun,
	}))

	results := s.fanOut(ctx, req, targets, grouped)
	resp := &Response{OfficeID: req.OfficeID, DryRun: req.DryRun, Results: results}

	if req.DryRun {
		return resp, nil
	}
	return resp, s.persist(ctx, resp, grouped)
}

func requestedVendors(requested []models.VendorSlug, grouped map[models.VendorSlug][]models.CartProduct) []models.VendorSlug {
	seen := make(map[models.VendorSlug]bool)
	var targets []models.VendorSlug
	if len(requested) == 0 {
		for v := range grouped {
			requested = append(requested, v)
		}
	}
	for _, v := range requested {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		targets = append(targets, v)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets
}

type vendorOutcome struct {
	vendor models.VendorSlug
	conf   *models.OrderConfirmation
	err    error
}

// fanOut runs one goroutine per vendor and collects every outcome
func (s *Service) fanOut(ctx context.Context, req Request, targets []models.VendorSlug, grouped map[models.VendorSlug][]models.CartProduct) []VendorResult {
	var wg sync.WaitGroup
	outcomes := make(chan vendorOutcome, len(targets))

	for _, vendor := range targets {
		wg.Add(1)
		go func(v models.VendorSlug) {
			defer wg.Done()

			started := time.Now()
			conf, err := s.checkoutVendor(ctx, req, v, grouped[v])
			s.metrics.CheckoutFinished(v, err, time.Since(started))
			outcomes <- vendorOutcome{vendor: v, conf: conf, err: err}
		}(vendor)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	byVendor := make(map[models.VendorSlug]VendorResult, len(targets))
	for o := range outcomes {
		if o.err != nil {
			s.logger.Warn("Vendor checkout failed", logging.WithFields(map[string]interface{}{
				"office": req.OfficeID,
				"vendor": o.vendor,
				"kind":   models.KindOf(o.err),
				"error":  o.err.Error(),
			}))
			byVendor[o.vendor] = VendorResult{
				Vendor:  o.vendor,
				Kind:    models.KindOf(o.err),
				Message: o.err.Error(),
			}
			continue
		}

		s.logger.Info("Vendor checkout succeeded", logging.WithFields(map[string]interface{}{
			"office":       req.OfficeID,
			"vendor":       o.vendor,
			"vendor_order": o.conf.VendorOrderID,
			"dry_run":      o.conf.DryRun,
		}))
		byVendor[o.vendor] = VendorResult{Vendor: o.vendor, Success: true, Confirmation: o.conf}
	}

	results := make([]VendorResult, 0, len(targets))
	for _, v := range targets {
		results = append(results, byVendor[v])
	}
	return results
}

// checkoutVendor logs in and places one vendor's part of the cart. The
// adapter's Checkout clears the vendor cart and refills it before placing.
func (s *Service) checkoutVendor(ctx context.Context, req Request, vendor models.VendorSlug, items []models.CartProduct) (*models.OrderConfirmation, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	if !vendor.IsIntegrated() {
		return nil, models.NewVendorError(vendor, models.KindNotSupported, "checkout", "vendor has no integration", nil)
	}
	adapter, err := s.vendors.Get(vendor)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	h, err := s.connector.Connect(ctx, adapter, req.OfficeID)
	if err != nil {
		return nil, timeoutAsNetwork(ctx, vendor, err)
	}
	defer s.connector.Release(h)

	conf, err := adapter.Checkout(ctx, h, items, vendors.CheckoutOptions{
		DryRun:   req.DryRun,
		PONumber: req.PONumber,
	})
	if err != nil {
		err = timeoutAsNetwork(ctx, vendor, err)
		s.connector.Fail(ctx, h, err)
		return nil, err
	}
	if conf == nil {
		return nil, models.NewVendorError(vendor, models.KindTranslation, "checkout", "vendor returned no confirmation", nil)
	}
	if conf.Vendor == "" {
		conf.Vendor = vendor
	}
	if conf.PlacedAt.IsZero() {
		conf.PlacedAt = s.now()
	}
	return conf, nil
}

// timeoutAsNetwork reports a hit deadline as a network failure
func timeoutAsNetwork(ctx context.Context, vendor models.VendorSlug, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && models.KindOf(err) == models.KindUnknown {
		return models.NewVendorError(vendor, models.KindNetwork, "checkout", "timed out", err)
	}
	return err
}

// persist saves successful vendors as one Order together with the removal of
// their cart lines, then announces the order.
func (s *Service) persist(ctx context.Context, resp *Response, grouped map[models.VendorSlug][]models.CartProduct) error {
	succeeded := resp.Succeeded()
	if len(succeeded) == 0 {
		return nil
	}

	now := s.now()
	order := &models.Order{
		ID:        uuid.New().String(),
		OfficeID:  resp.OfficeID,
		OrderDate: now,
		CreatedAt: now,
	}
	for _, res := range resp.Results {
		if !res.Success {
			continue
		}
		vo := models.VendorOrderFromConfirmation(resp.OfficeID, *res.Confirmation)
		vo.ID = uuid.New().String()
		vo.OrderID = order.ID
		vo.CreatedAt = now
		vo.UpdatedAt = now
		order.VendorOrders = append(order.VendorOrders, vo)
	}
	order.RecomputeTotal()

	var ids []string
	for _, v := range succeeded {
		for _, item := range grouped[v] {
			ids = append(ids, item.ID)
		}
	}

	// Vendor orders are already placed; finish the local bookkeeping even if
	// the caller has gone away.
	ctx = context.WithoutCancel(ctx)
	if err := s.orders.CreateOrder(ctx, order, ids); err != nil {
		s.logger.Error("Failed to save placed order", logging.WithFields(map[string]interface{}{
			"office":  resp.OfficeID,
			"vendors": succeeded,
			"error":   err.Error(),
		}))
		return fmt.Errorf("checkout: save order for office %s: %w", resp.OfficeID, err)
	}
	resp.Order = order

	if err := s.events.OrderPlaced(ctx, order); err != nil {
		s.logger.Warn("Failed to publish order placed event", logging.WithFields(map[string]interface{}{
			"order": order.ID,
			"error": err.Error(),
		}))
	}

	s.logger.Info("Checkout complete", logging.WithFields(map[string]interface{}{
		"office":    resp.OfficeID,
		"order":     order.ID,
		"vendors":   succeeded,
		"total":     order.TotalAmount.String(),
		"succeeded": len(succeeded),
		"failed":    len(resp.Results) - len(succeeded),
	}))
	return nil
}

// Status reports the checkout state of each vendor for an office. An empty
// list means every integrated vendor.
func (s *Service) Status(ctx context.Context, officeID string, vendorList []models.VendorSlug) ([]models.CheckoutProgress, error) {
	if len(vendorList) == 0 {
		for _, v := range models.AllVendorSlugs() {
			if v.IsIntegrated() {
				vendorList = append(vendorList, v)
			}
		}
	}
	return s.tracker.Status(ctx, officeID, vendorList)
}
