package vendors

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/shopspring/decimal"

	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/session"
)

// Net32 talks to the Net32 marketplace's JSON endpoints. The full catalog
// comes from its Google Shopping XML feed.
type Net32 struct {
	base
	feedURL string
	parser  *gofeed.Parser
}

// NewNet32 creates a new Net32 adapter
func NewNet32(cfg Config, deps Deps) *Net32 {
	feedURL := cfg.Net32FeedURL
	if feedURL == "" {
		feedURL = DefaultConfig().Net32FeedURL
	}
	return &Net32{
		base:    newBase(models.VendorNet32, cfg, deps),
		feedURL: feedURL,
		parser:  gofeed.NewParser(),
	}
}

const net32CustomerKey = "customer"

type net32Address struct {
	Name    string `json:"name"`
	Street1 string `json:"street1"`
	Street2 string `json:"street2"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
}

func (n *net32Address) toModel() *models.ShippingAddress {
	if n == nil {
		return nil
	}
	addr := &models.ShippingAddress{
		Name:       n.Name,
		Address1:   n.Street1,
		Address2:   n.Street2,
		City:       n.City,
		State:      n.State,
		PostalCode: n.Zip,
		Country:    "US",
	}
	if addr.IsZero() {
		return nil
	}
	return addr
}

type net32Result struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message"`
	Errors     []string `json:"errors"`
	CustomerID string   `json:"customerId"`
	OrderID    string   `json:"orderId"`
}

func (r net32Result) err(what string) error {
	if r.Success && len(r.Errors) == 0 {
		return nil
	}
	msg := r.Message
	if len(r.Errors) > 0 {
		msg = strings.Join(r.Errors, "; ")
	}
	return errTranslation("%s: %s", what, msg)
}

func (a *Net32) Login(ctx context.Context, h *session.Handle, creds models.Credentials) error {
	return a.apiLogin(ctx, h, creds, func(ctx context.Context) error {
		var result net32Result
		err := a.sendJSON(ctx, h, http.MethodPost, a.url("/rest/user/login", nil), nil, map[string]string{
			"userName": creds.Username,
			"password": creds.Password,
		}, &result)
		if err != nil {
			return err
		}
		if !result.Success {
			return errAuth("%s", result.Message)
		}
		h.SetValue(net32CustomerKey, result.CustomerID)
		return nil
	})
}

func (a *Net32) SearchProducts(ctx context.Context, h *session.Handle, query string, page int) (*models.ProductPage, error) {
	if page < 1 {
		page = 1
	}
	var resp struct {
		TotalRecords int `json:"TotalRecords"`
		Products     []struct {
			MPID                   string           `json:"mpId"`
			Title                  string           `json:"title"`
			Description            string           `json:"description"`
			URL                    string           `json:"url"`
			ThumbnailURL           string           `json:"thumbnailUrl"`
			RetailPrice            *decimal.Decimal `json:"retailPrice"`
			ManufacturerPartNumber string           `json:"manufacturerPartNumber"`
			InStock                bool             `json:"inStock"`
		} `json:"Products"`
	}
	err := a.sendJSON(ctx, h, http.MethodGet, a.url("/rest/neo/search/get-search-results", url.Values{
		"searchText": {query},
		"pageNumber": {strconv.Itoa(page)},
		"pageSize":   {strconv.Itoa(a.pageSize)},
	}), nil, nil, &resp)
	if err != nil {
		return nil, a.fail("search", err)
	}

	result := &models.ProductPage{Page: page, TotalCount: resp.TotalRecords}
	for _, raw := range resp.Products {
		if raw.RetailPrice == nil {
			a.dropped("product", raw.MPID, errTranslation("no price"))
			continue
		}
		p := models.Product{
			ProductID:          raw.MPID,
			Name:               raw.Title,
			Description:        raw.Description,
			URL:                a.absolute(raw.URL),
			Price:              raw.RetailPrice.Round(2),
			ManufacturerNumber: raw.ManufacturerPartNumber,
			Available:          raw.InStock,
		}
		if raw.ThumbnailURL != "" {
			p.Images = []string{a.absolute(raw.ThumbnailURL)}
		}
		if a.keep(&p) {
			result.Products = append(result.Products, p)
		}
	}
	result.HasNext = page*a.pageSize < resp.TotalRecords
	return result, nil
}

func (a *Net32) absolute(path string) string {
	if path == "" || strings.HasPrefix(path, "http") {
		return path
	}
	return a.baseURL + "/" + strings.TrimLeft(path, "/")
}

// CatalogPageCount is always 1; the feed is a single document
func (a *Net32) CatalogPageCount(context.Context, *session.Handle) (int, error) {
	return 1, nil
}

// CatalogPage downloads and translates the product feed
func (a *Net32) CatalogPage(ctx context.Context, h *session.Handle, page int) ([]models.Product, error) {
	if page != 1 {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.feedURL, nil)
	if err != nil {
		return nil, a.fail("catalog", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml")
	resp, err := a.do(ctx, h, req)
	if err != nil {
		return nil, a.fail("catalog", err)
	}
	defer resp.Body.Close()

	feed, err := a.parser.Parse(resp.Body)
	if err != nil {
		return nil, a.fail("catalog", errTranslation("product feed: %v", err))
	}

	products := make([]models.Product, 0, len(feed.Items))
	for _, item := range feed.Items {
		p, err := a.feedProduct(item)
		if err != nil {
			a.dropped("product", googleField(item, "id"), err)
			continue
		}
		if a.keep(&p) {
			products = append(products, p)
		}
	}
	return products, nil
}

// googleField reads a g: namespaced element of a Google Shopping feed item
func googleField(item *gofeed.Item, name string) string {
	if item.Extensions == nil {
		return ""
	}
	values := item.Extensions["g"][name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}

func (a *Net32) feedProduct(item *gofeed.Item) (models.Product, error) {
	price, err := models.ParsePrice(googleField(item, "price"))
	if err != nil {
		return models.Product{}, err
	}
	if sale := googleField(item, "sale_price"); sale != "" {
		if salePrice, err := models.ParsePrice(sale); err == nil {
			price = salePrice
		}
	}
	p := models.Product{
		ProductID:          googleField(item, "id"),
		Name:               item.Title,
		Description:        item.Description,
		URL:                item.Link,
		Price:              price,
		ManufacturerNumber: googleField(item, "mpn"),
		Category:           googleField(item, "product_type"),
		Available:          googleField(item, "availability") == "in stock",
	}
	if img := googleField(item, "image_link"); img != "" {
		p.Images = []string{img}
	}
	return p, nil
}

// GetProductPrices reads the whole feed and keeps the requested ids
func (a *Net32) GetProductPrices(ctx context.Context, h *session.Handle, ids []string) (map[string]decimal.Decimal, error) {
	products, err := a.CatalogPage(ctx, h, 1)
	if err != nil {
		return nil, err
	}
	return filterPrices(products, ids), nil
}

type net32Cart struct {
	Items []struct {
		MPID      string          `json:"mpId"`
		Quantity  int             `json:"quantity"`
		UnitPrice decimal.Decimal `json:"unitPrice"`
	} `json:"items"`
	Total  decimal.Decimal `json:"total"`
	ShipTo *net32Address   `json:"shipTo"`
}

func (a *Net32) cart(ctx context.Context, h *session.Handle) (*net32Cart, error) {
	var cart net32Cart
	if err := a.sendJSON(ctx, h, http.MethodGet, a.url("/rest/shoppingCart/get", nil), nil, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

type net32Modify struct {
	MPID     string `json:"mpId"`
	Quantity int    `json:"quantity"`
}

func (a *Net32) modifyCart(ctx context.Context, h *session.Handle, requests []net32Modify) error {
	if len(requests) == 0 {
		return nil
	}
	var result net32Result
	err := a.sendJSON(ctx, h, http.MethodPost, a.url("/rest/shoppingCart/modify/rev2", nil), nil, map[string]interface{}{
		"requests": requests,
	}, &result)
	if err != nil {
		return err
	}
	return result.err("cart update rejected")
}

func (a *Net32) ClearCart(ctx context.Context, h *session.Handle) error {
	if err := a.requireLogin(h); err != nil {
		return a.fail("clear cart", err)
	}
	cart, err := a.cart(ctx, h)
	if err != nil {
		return a.fail("clear cart", err)
	}
	requests := make([]net32Modify, 0, len(cart.Items))
	for _, item := range cart.Items {
		requests = append(requests, net32Modify{MPID: item.MPID, Quantity: 0})
	}
	return a.fail("clear cart", a.modifyCart(ctx, h, requests))
}

func (a *Net32) AddToCart(ctx context.Context, h *session.Handle, items []models.CartProduct) error {
	if err := a.requireLogin(h); err != nil {
		return a.fail("add to cart", err)
	}
	requests := make([]net32Modify, 0, len(items))
	for _, item := range items {
		requests = append(requests, net32Modify{MPID: item.ProductID, Quantity: item.Quantity})
	}
	return a.fail("add to cart", a.modifyCart(ctx, h, requests))
}

func (a *Net32) Checkout(ctx context.Context, h *session.Handle, items []models.CartProduct, opts CheckoutOptions) (*models.OrderConfirmation, error) {
	if err := a.ClearCart(ctx, h); err != nil {
		return nil, err
	}
	if err := a.AddToCart(ctx, h, items); err != nil {
		return nil, err
	}

	cart, err := a.cart(ctx, h)
	if err != nil {
		return nil, a.fail("checkout", err)
	}
	inCart := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		inCart = append(inCart, item.MPID)
	}
	if err := checkCart(inCart, items); err != nil {
		return nil, a.fail("checkout", err)
	}

	conf := a.confirmation(items, "", "", opts.DryRun)
	conf.ReportedTotal = cart.Total
	conf.ShippingAddress = cart.ShipTo.toModel()
	if opts.DryRun {
		return conf, nil
	}

	var result net32Result
	err = a.sendJSON(ctx, h, http.MethodPost, a.url("/rest/checkout/submit", nil), nil, map[string]string{
		"poNumber": opts.PONumber,
	}, &result)
	if err != nil {
		return nil, a.fail("checkout", err)
	}
	if err := result.err("order not placed"); err != nil {
		return nil, a.fail("checkout", err)
	}
	if result.OrderID == "" {
		return nil, a.fail("checkout", errTranslation("no order id after placing order"))
	}
	conf.VendorOrderID = result.OrderID
	return conf, nil
}

func (a *Net32) GetOrders(ctx context.Context, h *session.Handle, q models.OrderQuery) ([]models.VendorOrderInfo, error) {
	if err := a.requireLogin(h); err != nil {
		return nil, a.fail("orders", err)
	}
	orders, err := a.collectOrders(ctx, q, func(ctx context.Context, page int) ([]models.VendorOrderInfo, bool, error) {
		var resp struct {
			TotalPages int `json:"TotalPages"`
			Orders     []struct {
				ID         string          `json:"id"`
				OrderDate  string          `json:"orderDate"`
				Status     string          `json:"status"`
				OrderTotal decimal.Decimal `json:"orderTotal"`
				ShipTo     *net32Address   `json:"shipTo"`
				LineItems  []struct {
					MPID      string           `json:"mpId"`
					Title     string           `json:"title"`
					Quantity  int              `json:"quantity"`
					UnitPrice *decimal.Decimal `json:"unitPrice"`
					Status    string           `json:"status"`
				} `json:"lineItems"`
			} `json:"Orders"`
		}
		err := a.sendJSON(ctx, h, http.MethodGet, a.url("/rest/order/orderHistory", url.Values{
			"pageNumber": {strconv.Itoa(page)},
			"pageSize":   {"25"},
		}), nil, nil, &resp)
		if err != nil {
			return nil, false, err
		}

		batch := make([]models.VendorOrderInfo, 0, len(resp.Orders))
	orders:
		for _, raw := range resp.Orders {
			date, err := vendorDate(raw.OrderDate)
			if err != nil {
				a.dropped("order", raw.ID, err)
				continue
			}
			order := models.VendorOrderInfo{
				VendorOrderID:   raw.ID,
				OrderDate:       date,
				Status:          models.NormalizeOrderStatus(raw.Status),
				ReportedTotal:   raw.OrderTotal,
				ShippingAddress: raw.ShipTo.toModel(),
			}
			for _, line := range raw.LineItems {
				if line.UnitPrice == nil {
					a.dropped("order", raw.ID, errTranslation("line %s has no price", line.MPID))
					continue orders
				}
				order.Items = append(order.Items, models.VendorOrderProduct{
					ProductID: line.MPID,
					Name:      line.Title,
					Quantity:  line.Quantity,
					UnitPrice: line.UnitPrice.Round(2),
					Status:    models.NormalizeOrderStatus(line.Status),
				})
			}
			batch = append(batch, order)
		}
		return batch, page < resp.TotalPages, nil
	})
	return orders, a.fail("orders", err)
}

func (a *Net32) AccountID(ctx context.Context, h *session.Handle) (string, error) {
	if err := a.requireLogin(h); err != nil {
		return "", a.fail("account id", err)
	}
	if id := h.Value(net32CustomerKey); id != "" {
		return id, nil
	}
	var account struct {
		CustomerID string `json:"customerId"`
	}
	if err := a.sendJSON(ctx, h, http.MethodGet, a.url("/rest/user/account", nil), nil, nil, &account); err != nil {
		return "", a.fail("account id", err)
	}
	if account.CustomerID == "" {
		return "", a.fail("account id", errTranslation("account has no customer id"))
	}
	h.SetValue(net32CustomerKey, account.CustomerID)
	return account.CustomerID, nil
}

var (
	_ Adapter        = (*Net32)(nil)
	_ CatalogFetcher = (*Net32)(nil)
)
