package vendors

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/session"
)

const dentalCityConcurrency = 4

// DentalCity is a client for the Dental City partner API. The API has no
// cart, so lines are staged on the handle and sent as one order.
type DentalCity struct {
	base
	apiKey          string
	catalogPageSize int
}

// NewDentalCity creates a new Dental City adapter
func NewDentalCity(cfg Config, deps Deps) *DentalCity {
	return &DentalCity{
		base:            newBase(models.VendorDentalCity, cfg, deps),
		apiKey:          cfg.DentalCityAPIKey,
		catalogPageSize: cfg.catalogPageSize(),
	}
}

const dentalCityAccountKey = "account"

func (a *DentalCity) header() http.Header {
	return http.Header{"X-Api-Key": {a.apiKey}}
}

type dentalCityProduct struct {
	ItemNumber             string           `json:"ItemNumber"`
	Description            string           `json:"Description"`
	LongDescription        string           `json:"LongDescription"`
	Price                  *decimal.Decimal `json:"Price"`
	ManufacturerPartNumber string           `json:"ManufacturerPartNumber"`
	Category               string           `json:"Category"`
	ImageURL               string           `json:"ImageUrl"`
	ProductURL             string           `json:"ProductUrl"`
	QtyAvailable           int              `json:"QtyAvailable"`
}

type dentalCityProductList struct {
	TotalCount int                 `json:"TotalCount"`
	Items      []dentalCityProduct `json:"Items"`
}

type dentalCityAddress struct {
	Name     string `json:"Name"`
	Address1 string `json:"Address1"`
	Address2 string `json:"Address2"`
	City     string `json:"City"`
	State    string `json:"State"`
	Zip      string `json:"ZipCode"`
}

func (d *dentalCityAddress) toModel() *models.ShippingAddress {
	if d == nil {
		return nil
	}
	addr := &models.ShippingAddress{
		Name:       d.Name,
		Address1:   d.Address1,
		Address2:   d.Address2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.Zip,
		Country:    "US",
	}
	if addr.IsZero() {
		return nil
	}
	return addr
}

func (a *DentalCity) Login(ctx context.Context, h *session.Handle, creds models.Credentials) error {
	account := creds.AccountID
	if account == "" {
		account = creds.Username
	}
	return a.apiLogin(ctx, h, creds, func(ctx context.Context) error {
		if a.apiKey == "" {
			return errAuth("no API key configured")
		}
		var customer struct {
			CustomerNumber string `json:"CustomerNumber"`
			Active         bool   `json:"Active"`
		}
		err := a.sendJSON(ctx, h, http.MethodGet, a.url("/api/customers/"+url.PathEscape(account), nil), a.header(), nil, &customer)
		if err != nil {
			return err
		}
		if customer.CustomerNumber == "" || !customer.Active {
			return errAuth("customer %s is not active", account)
		}
		h.SetValue(dentalCityAccountKey, customer.CustomerNumber)
		return nil
	})
}

func (a *DentalCity) translate(raw dentalCityProduct) (models.Product, bool) {
	if raw.Price == nil {
		a.dropped("product", raw.ItemNumber, errTranslation("no price"))
		return models.Product{}, false
	}
	p := models.Product{
		ProductID:          raw.ItemNumber,
		Name:               raw.Description,
		Description:        raw.LongDescription,
		URL:                raw.ProductURL,
		Price:              raw.Price.Round(2),
		ManufacturerNumber: raw.ManufacturerPartNumber,
		Category:           raw.Category,
		Available:          raw.QtyAvailable > 0,
	}
	if raw.ImageURL != "" {
		p.Images = []string{raw.ImageURL}
	}
	return p, a.keep(&p)
}

func (a *DentalCity) products(ctx context.Context, h *session.Handle, path string, query url.Values) (*dentalCityProductList, []models.Product, error) {
	var list dentalCityProductList
	if err := a.sendJSON(ctx, h, http.MethodGet, a.url(path, query), a.header(), nil, &list); err != nil {
		return nil, nil, err
	}
	products := make([]models.Product, 0, len(list.Items))
	for _, raw := range list.Items {
		if p, ok := a.translate(raw); ok {
			products = append(products, p)
		}
	}
	return &list, products, nil
}

func (a *DentalCity) SearchProducts(ctx context.Context, h *session.Handle, query string, page int) (*models.ProductPage, error) {
	if page < 1 {
		page = 1
	}
	list, products, err := a.products(ctx, h, "/api/products/search", url.Values{
		"Keyword":    {query},
		"PageSize":   {strconv.Itoa(a.pageSize)},
		"PageNumber": {strconv.Itoa(page)},
	})
	if err != nil {
		return nil, a.fail("search", err)
	}
	return &models.ProductPage{
		Products:   products,
		Page:       page,
		TotalCount: list.TotalCount,
		HasNext:    page*a.pageSize < list.TotalCount,
	}, nil
}

func (a *DentalCity) catalogQuery(page int) url.Values {
	return url.Values{
		"PageSize":   {strconv.Itoa(a.catalogPageSize)},
		"PageNumber": {strconv.Itoa(page)},
	}
}

func (a *DentalCity) CatalogPageCount(ctx context.Context, h *session.Handle) (int, error) {
	query := a.catalogQuery(1)
	query.Set("PageSize", "1")
	var list dentalCityProductList
	if err := a.sendJSON(ctx, h, http.MethodGet, a.url("/api/products", query), a.header(), nil, &list); err != nil {
		return 0, a.fail("catalog", err)
	}
	return (list.TotalCount + a.catalogPageSize - 1) / a.catalogPageSize, nil
}

func (a *DentalCity) CatalogPage(ctx context.Context, h *session.Handle, page int) ([]models.Product, error) {
	_, products, err := a.products(ctx, h, "/api/products", a.catalogQuery(page))
	if err != nil {
		return nil, a.fail("catalog", err)
	}
	return products, nil
}

// GetProductPrices has no per-id endpoint to call, so it walks the whole
// catalog with a few pages in flight and keeps the requested ids.
func (a *DentalCity) GetProductPrices(ctx context.Context, h *session.Handle, ids []string) (map[string]decimal.Decimal, error) {
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	pages, err := a.CatalogPageCount(ctx, h)
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		prices = make(map[string]decimal.Decimal, len(ids))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dentalCityConcurrency)
	for page := 1; page <= pages; page++ {
		g.Go(func() error {
			products, err := a.CatalogPage(gctx, h, page)
			if err != nil {
				return err
			}
			found := filterPrices(products, ids)
			mu.Lock()
			for id, price := range found {
				prices[id] = price
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, a.fail("prices", err)
	}
	return prices, nil
}

func (a *DentalCity) ClearCart(ctx context.Context, h *session.Handle) error {
	if err := a.requireLogin(h); err != nil {
		return a.fail("clear cart", err)
	}
	setPendingCart(h, nil)
	return nil
}

func (a *DentalCity) AddToCart(ctx context.Context, h *session.Handle, items []models.CartProduct) error {
	if err := a.requireLogin(h); err != nil {
		return a.fail("add to cart", err)
	}
	setPendingCart(h, mergeCart(pendingCart(h), items))
	return nil
}

type dentalCityOrderLine struct {
	ItemNumber  string           `json:"ItemNumber"`
	Description string           `json:"Description,omitempty"`
	Quantity    int              `json:"Quantity"`
	UnitPrice   *decimal.Decimal `json:"UnitPrice,omitempty"`
	Status      string           `json:"Status,omitempty"`
}

type dentalCityOrder struct {
	OrderNumber string                `json:"OrderNumber"`
	OrderDate   string                `json:"OrderDate"`
	Status      string                `json:"Status"`
	OrderTotal  decimal.Decimal       `json:"OrderTotal"`
	ShipTo      *dentalCityAddress    `json:"ShipTo"`
	Lines       []dentalCityOrderLine `json:"Lines"`
}

func (a *DentalCity) Checkout(ctx context.Context, h *session.Handle, items []models.CartProduct, opts CheckoutOptions) (*models.OrderConfirmation, error) {
	if err := a.ClearCart(ctx, h); err != nil {
		return nil, err
	}
	if err := a.AddToCart(ctx, h, items); err != nil {
		return nil, err
	}

	staged := pendingCart(h)
	lines := make([]dentalCityOrderLine, 0, len(staged))
	for _, item := range staged {
		price := item.UnitPrice
		lines = append(lines, dentalCityOrderLine{
			ItemNumber: item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  &price,
		})
	}
	request := map[string]interface{}{
		"CustomerNumber": h.Value(dentalCityAccountKey),
		"PONumber":       opts.PONumber,
		"Lines":          lines,
	}

	conf := a.confirmation(staged, "", "", opts.DryRun)
	if opts.DryRun {
		var result struct {
			Valid      bool               `json:"Valid"`
			Messages   []string           `json:"Messages"`
			OrderTotal decimal.Decimal    `json:"OrderTotal"`
			ShipTo     *dentalCityAddress `json:"ShipTo"`
		}
		err := a.sendJSON(ctx, h, http.MethodPost, a.url("/api/orders/validate", nil), a.header(), request, &result)
		if err != nil {
			return nil, a.fail("checkout", err)
		}
		if !result.Valid {
			return nil, a.fail("checkout", errTranslation("order rejected: %s", strings.Join(result.Messages, "; ")))
		}
		conf.ReportedTotal = result.OrderTotal
		conf.ShippingAddress = result.ShipTo.toModel()
		return conf, nil
	}

	var placed dentalCityOrder
	if err := a.sendJSON(ctx, h, http.MethodPost, a.url("/api/orders", nil), a.header(), request, &placed); err != nil {
		return nil, a.fail("checkout", err)
	}
	if placed.OrderNumber == "" {
		return nil, a.fail("checkout", errTranslation("no order number after placing order"))
	}
	setPendingCart(h, nil)
	conf.VendorOrderID = placed.OrderNumber
	conf.ReportedTotal = placed.OrderTotal
	conf.ShippingAddress = placed.ShipTo.toModel()
	return conf, nil
}

func (a *DentalCity) GetOrders(ctx context.Context, h *session.Handle, q models.OrderQuery) ([]models.VendorOrderInfo, error) {
	if err := a.requireLogin(h); err != nil {
		return nil, a.fail("orders", err)
	}
	orders, err := a.collectOrders(ctx, q, func(ctx context.Context, page int) ([]models.VendorOrderInfo, bool, error) {
		query := url.Values{
			"CustomerNumber": {h.Value(dentalCityAccountKey)},
			"PageSize":       {"25"},
			"PageNumber":     {strconv.Itoa(page)},
		}
		if !q.Since.IsZero() {
			query.Set("FromDate", q.Since.Format("2006-01-02"))
		}
		var resp struct {
			TotalCount int               `json:"TotalCount"`
			Items      []dentalCityOrder `json:"Items"`
		}
		if err := a.sendJSON(ctx, h, http.MethodGet, a.url("/api/orders", query), a.header(), nil, &resp); err != nil {
			return nil, false, err
		}

		batch := make([]models.VendorOrderInfo, 0, len(resp.Items))
		for _, raw := range resp.Items {
			order, err := a.translateOrder(raw)
			if err != nil {
				a.dropped("order", raw.OrderNumber, err)
				continue
			}
			batch = append(batch, order)
		}
		return batch, page*25 < resp.TotalCount, nil
	})
	return orders, a.fail("orders", err)
}

func (a *DentalCity) translateOrder(raw dentalCityOrder) (models.VendorOrderInfo, error) {
	date, err := vendorDate(raw.OrderDate)
	if err != nil {
		return models.VendorOrderInfo{}, err
	}
	order := models.VendorOrderInfo{
		VendorOrderID:   raw.OrderNumber,
		OrderDate:       date,
		Status:          models.NormalizeOrderStatus(raw.Status),
		ReportedTotal:   raw.OrderTotal,
		ShippingAddress: raw.ShipTo.toModel(),
	}
	for _, line := range raw.Lines {
		if line.UnitPrice == nil {
			return models.VendorOrderInfo{}, errTranslation("line %s has no price", line.ItemNumber)
		}
		order.Items = append(order.Items, models.VendorOrderProduct{
			ProductID: line.ItemNumber,
			Name:      line.Description,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.Round(2),
			Status:    models.NormalizeOrderStatus(line.Status),
		})
	}
	return order, nil
}

func (a *DentalCity) AccountID(ctx context.Context, h *session.Handle) (string, error) {
	if err := a.requireLogin(h); err != nil {
		return "", a.fail("account id", err)
	}
	return h.Value(dentalCityAccountKey), nil
}

var (
	_ Adapter        = (*DentalCity)(nil)
	_ CatalogFetcher = (*DentalCity)(nil)
)
