package vendors

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dghubble/oauth1"
	"github.com/shopspring/decimal"

	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/session"
)

// netSuitePriceBatch caps how many skus one RESTlet price call carries
const netSuitePriceBatch = 100

// DCDental calls the DC Dental NetSuite RESTlets with token-based auth
// (OAuth 1.0a, HMAC-SHA256). Like Dental City there is no cart endpoint.
type DCDental struct {
	base
	ns    NetSuiteConfig
	oauth oauth1.Config
	token *oauth1.Token
}

// NewDCDental creates a new DC Dental adapter
func NewDCDental(cfg Config, deps Deps) *DCDental {
	ns := cfg.NetSuite
	if ns.Deploy == "" {
		ns.Deploy = "1"
	}
	return &DCDental{
		base: newBase(models.VendorDCDental, cfg, deps),
		ns:   ns,
		oauth: oauth1.Config{
			ConsumerKey:    ns.ConsumerKey,
			ConsumerSecret: ns.ConsumerSecret,
			Realm:          ns.Realm,
			Signer:         &oauth1.HMAC256Signer{ConsumerSecret: ns.ConsumerSecret},
		},
		token: oauth1.NewToken(ns.TokenID, ns.TokenSecret),
	}
}

const dcDentalCustomerKey = "customer"

func (a *DCDental) configured() bool {
	return a.ns.RestletURL != "" && a.ns.ConsumerKey != "" && a.ns.TokenID != ""
}

// client signs every request on top of the handle's client
func (a *DCDental) client(ctx context.Context, h *session.Handle) *http.Client {
	ctx = context.WithValue(ctx, oauth1.HTTPClient, h.Client())
	return a.oauth.Client(ctx, a.token)
}

type netSuiteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type netSuiteResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Error   *netSuiteError `json:"error"`
}

func (r netSuiteResult) err() error {
	if r.Success {
		return nil
	}
	if r.Error != nil {
		if strings.Contains(r.Error.Code, "INVALID_LOGIN") || r.Error.Code == "INVALID_CUSTOMER" {
			return errAuth("%s: %s", r.Error.Code, r.Error.Message)
		}
		return errTranslation("%s: %s", r.Error.Code, r.Error.Message)
	}
	return errTranslation("restlet call failed: %s", r.Message)
}

func (a *DCDental) restletURL(script string, query url.Values) string {
	q := url.Values{}
	for k, vs := range query {
		q[k] = vs
	}
	q.Set("script", script)
	q.Set("deploy", a.ns.Deploy)
	return a.ns.RestletURL + "?" + q.Encode()
}

// get calls a RESTlet GET handler. dst must embed netSuiteResult.
func (a *DCDental) get(ctx context.Context, h *session.Handle, script string, query url.Values, dst interface{ err() error }) error {
	if err := a.sendJSONWith(ctx, a.client(ctx, h), http.MethodGet, a.restletURL(script, query), nil, nil, dst); err != nil {
		return err
	}
	return dst.err()
}

func (a *DCDental) post(ctx context.Context, h *session.Handle, script string, body interface{}, dst interface{ err() error }) error {
	if err := a.sendJSONWith(ctx, a.client(ctx, h), http.MethodPost, a.restletURL(script, nil), nil, body, dst); err != nil {
		return err
	}
	return dst.err()
}

func (a *DCDental) Login(ctx context.Context, h *session.Handle, creds models.Credentials) error {
	return a.apiLogin(ctx, h, creds, func(ctx context.Context) error {
		if !a.configured() {
			return errAuth("NetSuite token auth is not configured")
		}
		query := url.Values{"action": {"getCustomer"}}
		if creds.AccountID != "" {
			query.Set("customerId", creds.AccountID)
		} else {
			query.Set("email", creds.Username)
		}
		var resp struct {
			netSuiteResult
			Customer struct {
				ID         string `json:"id"`
				EntityID   string `json:"entityId"`
				IsInactive bool   `json:"isInactive"`
			} `json:"customer"`
		}
		if err := a.get(ctx, h, a.ns.CustomerScript, query, &resp); err != nil {
			return err
		}
		if resp.Customer.ID == "" || resp.Customer.IsInactive {
			return errAuth("customer not found or inactive")
		}
		h.SetValue(dcDentalCustomerKey, resp.Customer.ID)
		return nil
	})
}

type netSuiteItem struct {
	SKU         string           `json:"sku"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	MPN         string           `json:"mpn"`
	Category    string           `json:"category"`
	Image       string           `json:"image"`
	URL         string           `json:"url"`
	Available   bool             `json:"available"`
}

func (a *DCDental) SearchProducts(ctx context.Context, h *session.Handle, query string, page int) (*models.ProductPage, error) {
	if err := a.requireLogin(h); err != nil {
		return nil, a.fail("search", err)
	}
	if page < 1 {
		page = 1
	}
	var resp struct {
		netSuiteResult
		Total int            `json:"total"`
		Items []netSuiteItem `json:"items"`
	}
	err := a.get(ctx, h, a.ns.SearchScript, url.Values{
		"action":   {"search"},
		"q":        {query},
		"page":     {strconv.Itoa(page)},
		"pageSize": {strconv.Itoa(a.pageSize)},
	}, &resp)
	if err != nil {
		return nil, a.fail("search", err)
	}

	result := &models.ProductPage{Page: page, TotalCount: resp.Total}
	for _, raw := range resp.Items {
		if raw.Price == nil {
			a.dropped("product", raw.SKU, errTranslation("no price"))
			continue
		}
		p := models.Product{
			ProductID:          raw.SKU,
			Name:               raw.Name,
			Description:        raw.Description,
			URL:                raw.URL,
			Price:              raw.Price.Round(2),
			ManufacturerNumber: raw.MPN,
			Category:           raw.Category,
			Available:          raw.Available,
		}
		if raw.Image != "" {
			p.Images = []string{raw.Image}
		}
		if a.keep(&p) {
			result.Products = append(result.Products, p)
		}
	}
	result.HasNext = page*a.pageSize < resp.Total
	return result, nil
}

func (a *DCDental) GetProductPrices(ctx context.Context, h *session.Handle, ids []string) (map[string]decimal.Decimal, error) {
	if err := a.requireLogin(h); err != nil {
		return nil, a.fail("prices", err)
	}
	prices := make(map[string]decimal.Decimal, len(ids))
	for start := 0; start < len(ids); start += netSuitePriceBatch {
		end := min(start+netSuitePriceBatch, len(ids))
		var resp struct {
			netSuiteResult
			Prices []struct {
				SKU   string           `json:"sku"`
				Price *decimal.Decimal `json:"price"`
			} `json:"prices"`
		}
		err := a.post(ctx, h, a.ns.SearchScript, map[string]interface{}{
			"action":     "getPrices",
			"customerId": h.Value(dcDentalCustomerKey),
			"skus":       ids[start:end],
		}, &resp)
		if err != nil {
			return nil, a.fail("prices", err)
		}
		for _, p := range resp.Prices {
			if p.Price == nil {
				a.dropped("price", p.SKU, errTranslation("no price"))
				continue
			}
			prices[p.SKU] = p.Price.Round(2)
		}
	}
	return prices, nil
}

func (a *DCDental) ClearCart(ctx context.Context, h *session.Handle) error {
	if err := a.requireLogin(h); err != nil {
		return a.fail("clear cart", err)
	}
	setPendingCart(h, nil)
	return nil
}

func (a *DCDental) AddToCart(ctx context.Context, h *session.Handle, items []models.CartProduct) error {
	if err := a.requireLogin(h); err != nil {
		return a.fail("add to cart", err)
	}
	setPendingCart(h, mergeCart(pendingCart(h), items))
	return nil
}

type netSuiteAddress struct {
	Addressee string `json:"addressee"`
	Addr1     string `json:"addr1"`
	Addr2     string `json:"addr2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
}

func (n *netSuiteAddress) toModel() *models.ShippingAddress {
	if n == nil {
		return nil
	}
	addr := &models.ShippingAddress{
		Name:       n.Addressee,
		Address1:   n.Addr1,
		Address2:   n.Addr2,
		City:       n.City,
		State:      n.State,
		PostalCode: n.Zip,
		Country:    n.Country,
	}
	if addr.IsZero() {
		return nil
	}
	return addr
}

type netSuiteLine struct {
	SKU         string           `json:"sku"`
	Description string           `json:"description,omitempty"`
	Quantity    int              `json:"quantity"`
	Rate        *decimal.Decimal `json:"rate,omitempty"`
	Status      string           `json:"status,omitempty"`
}

func (a *DCDental) Checkout(ctx context.Context, h *session.Handle, items []models.CartProduct, opts CheckoutOptions) (*models.OrderConfirmation, error) {
	if err := a.ClearCart(ctx, h); err != nil {
		return nil, err
	}
	if err := a.AddToCart(ctx, h, items); err != nil {
		return nil, err
	}

	staged := pendingCart(h)
	lines := make([]netSuiteLine, 0, len(staged))
	for _, item := range staged {
		rate := item.UnitPrice
		lines = append(lines, netSuiteLine{SKU: item.ProductID, Quantity: item.Quantity, Rate: &rate})
	}

	var resp struct {
		netSuiteResult
		SalesOrderID string           `json:"salesOrderId"`
		TranID       string           `json:"tranId"`
		Total        decimal.Decimal  `json:"total"`
		ShipAddress  *netSuiteAddress `json:"shipAddress"`
	}
	err := a.post(ctx, h, a.ns.OrderScript, map[string]interface{}{
		"action":     "createSalesOrder",
		"customerId": h.Value(dcDentalCustomerKey),
		"poNumber":   opts.PONumber,
		"dryRun":     opts.DryRun,
		"lines":      lines,
	}, &resp)
	if err != nil {
		return nil, a.fail("checkout", err)
	}

	conf := a.confirmation(staged, "", "", opts.DryRun)
	conf.ReportedTotal = resp.Total
	conf.ShippingAddress = resp.ShipAddress.toModel()
	if opts.DryRun {
		return conf, nil
	}

	conf.VendorOrderID = resp.TranID
	if conf.VendorOrderID == "" {
		conf.VendorOrderID = resp.SalesOrderID
	}
	if conf.VendorOrderID == "" {
		return nil, a.fail("checkout", errTranslation("no sales order id after placing order"))
	}
	setPendingCart(h, nil)
	return conf, nil
}

func (a *DCDental) GetOrders(ctx context.Context, h *session.Handle, q models.OrderQuery) ([]models.VendorOrderInfo, error) {
	if err := a.requireLogin(h); err != nil {
		return nil, a.fail("orders", err)
	}
	orders, err := a.collectOrders(ctx, q, func(ctx context.Context, page int) ([]models.VendorOrderInfo, bool, error) {
		query := url.Values{
			"action":     {"getOrders"},
			"customerId": {h.Value(dcDentalCustomerKey)},
			"page":       {strconv.Itoa(page)},
		}
		if !q.Since.IsZero() {
			query.Set("fromDate", q.Since.Format("1/2/2006"))
		}
		var resp struct {
			netSuiteResult
			TotalPages int `json:"totalPages"`
			Orders     []struct {
				TranID      string           `json:"tranId"`
				TranDate    string           `json:"tranDate"`
				Status      string           `json:"status"`
				Total       decimal.Decimal  `json:"total"`
				ShipAddress *netSuiteAddress `json:"shipAddress"`
				Lines       []netSuiteLine   `json:"lines"`
			} `json:"orders"`
		}
		if err := a.get(ctx, h, a.ns.OrderScript, query, &resp); err != nil {
			return nil, false, err
		}

		batch := make([]models.VendorOrderInfo, 0, len(resp.Orders))
	orders:
		for _, raw := range resp.Orders {
			date, err := vendorDate(raw.TranDate)
			if err != nil {
				a.dropped("order", raw.TranID, err)
				continue
			}
			order := models.VendorOrderInfo{
				VendorOrderID:   raw.TranID,
				OrderDate:       date,
				Status:          models.NormalizeOrderStatus(raw.Status),
				ReportedTotal:   raw.Total,
				ShippingAddress: raw.ShipAddress.toModel(),
			}
			for _, line := range raw.Lines {
				if line.Rate == nil {
					a.dropped("order", raw.TranID, errTranslation("line %s has no rate", line.SKU))
					continue orders
				}
				order.Items = append(order.Items, models.VendorOrderProduct{
					ProductID: line.SKU,
					Name:      line.Description,
					Quantity:  line.Quantity,
					UnitPrice: line.Rate.Round(2),
					Status:    models.NormalizeOrderStatus(line.Status),
				})
			}
			batch = append(batch, order)
		}
		return batch, page < resp.TotalPages, nil
	})
	return orders, a.fail("orders", err)
}

func (a *DCDental) AccountID(ctx context.Context, h *session.Handle) (string, error) {
	if err := a.requireLogin(h); err != nil {
		return "", a.fail("account id", err)
	}
	return h.Value(dcDentalCustomerKey), nil
}

var _ Adapter = (*DCDental)(nil)
