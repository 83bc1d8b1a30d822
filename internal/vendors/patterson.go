package vendors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/session"
)

// Patterson drives pattersondental.com. Login goes through Patterson's Azure
// AD B2C tenant; the storefront itself is a JSON API behind the resulting
// session.
type Patterson struct {
	base
	authURL string
}

// NewPatterson creates a new Patterson adapter
func NewPatterson(cfg Config, deps Deps) *Patterson {
	authURL := cfg.PattersonAuthURL
	if authURL == "" {
		authURL = DefaultConfig().PattersonAuthURL
	}
	return &Patterson{
		base:    newBase(models.VendorPatterson, cfg, deps),
		authURL: strings.TrimRight(authURL, "/"),
	}
}

const pattersonAccountKey = "account"

var b2cSettingsRe = regexp.MustCompile(`var SETTINGS = (\{.*?\});`)

type pattersonAddress struct {
	Name     string `json:"Name"`
	Address1 string `json:"Address1"`
	Address2 string `json:"Address2"`
	City     string `json:"City"`
	State    string `json:"State"`
	Zip      string `json:"Zip"`
}

func (p *pattersonAddress) toModel() *models.ShippingAddress {
	if p == nil {
		return nil
	}
	addr := &models.ShippingAddress{
		Name:       p.Name,
		Address1:   p.Address1,
		Address2:   p.Address2,
		City:       p.City,
		State:      p.State,
		PostalCode: p.Zip,
		Country:    "US",
	}
	if addr.IsZero() {
		return nil
	}
	return addr
}

func (a *Patterson) authHeader(h *session.Handle) http.Header {
	header := http.Header{}
	if token := h.Token(session.TokenBearer); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return header
}

func (a *Patterson) Login(ctx context.Context, h *session.Handle, creds models.Credentials) error {
	return a.runLogin(ctx, h, creds, loginFlow{
		prepare: func(ctx context.Context) (url.Values, error) {
			// The storefront redirects to the B2C authorize page, which embeds
			// the transaction id and CSRF token in a SETTINGS script
			doc, err := a.getDocument(ctx, h, a.url("/Supplies/Login", nil))
			if err != nil {
				return nil, err
			}
			html, _ := doc.Html()
			match := b2cSettingsRe.FindStringSubmatch(html)
			if match == nil {
				return nil, errTranslation("B2C sign-in page has no SETTINGS")
			}
			var settings struct {
				CSRF    string `json:"csrf"`
				TransID string `json:"transId"`
				Hosts   struct {
					Policy string `json:"policy"`
				} `json:"hosts"`
			}
			if err := json.Unmarshal([]byte(match[1]), &settings); err != nil {
				return nil, errTranslation("B2C SETTINGS: %v", err)
			}
			if settings.CSRF == "" || settings.TransID == "" {
				return nil, errTranslation("B2C SETTINGS missing csrf or transId")
			}
			h.SetToken(session.TokenCSRF, settings.CSRF)
			return url.Values{
				"tx": {settings.TransID},
				"p":  {settings.Hosts.Policy},
			}, nil
		},
		submit: func(ctx context.Context, fields url.Values) error {
			csrf := h.Token(session.TokenCSRF)
			header := http.Header{}
			header.Set("X-CSRF-TOKEN", csrf)
			header.Set("X-Requested-With", "XMLHttpRequest")

			var result struct {
				Status  string `json:"status"`
				Message string `json:"message"`
			}
			err := a.postFormJSON(ctx, h, a.authURL+"/SelfAsserted?"+fields.Encode(), url.Values{
				"request_type": {"RESPONSE"},
				"signInName":   {creds.Username},
				"password":     {creds.Password},
			}, header, &result)
			if err != nil {
				return err
			}
			if result.Status != "200" {
				return errAuth("%s", result.Message)
			}

			// B2C answers the confirmation with an auto-submitting form that
			// carries the id_token back to the storefront
			confirmed := url.Values{
				"rememberMe": {"false"},
				"csrf_token": {csrf},
				"tx":         {fields.Get("tx")},
				"p":          {fields.Get("p")},
			}
			doc, err := a.getDocument(ctx, h, a.authURL+"/api/CombinedSigninAndSignup/confirmed?"+confirmed.Encode())
			if err != nil {
				return err
			}
			form := doc.Find("form").First()
			values := formFields(form)
			idToken := values.Get("id_token")
			if idToken == "" {
				return errAuth("B2C did not issue an id_token")
			}
			if _, err := a.postForm(ctx, h, formAction(doc, form), values); err != nil {
				return err
			}
			h.SetBearer(idToken)
			return nil
		},
		verify: func(ctx context.Context) error {
			id, err := a.fetchAccountID(ctx, h)
			if err != nil {
				return err
			}
			h.SetValue(pattersonAccountKey, id)
			return nil
		},
	})
}

type pattersonProduct struct {
	PublicItemNumber       string           `json:"PublicItemNumber"`
	ItemDescription        string           `json:"ItemDescription"`
	ExtendedDescription    string           `json:"ExtendedDescription"`
	ManufacturerName       string           `json:"ManufacturerName"`
	ManufacturerItemNumber string           `json:"ManufacturerItemNumber"`
	UnitPrice              *decimal.Decimal `json:"UnitPrice"`
	ImageURL               string           `json:"ImageUrl"`
	ProductURL             string           `json:"ProductUrl"`
	IsAvailable            bool             `json:"IsAvailable"`
}

func (a *Patterson) toProduct(raw pattersonProduct) (models.Product, error) {
	if raw.UnitPrice == nil {
		return models.Product{}, errTranslation("item %s has no price", raw.PublicItemNumber)
	}
	p := models.Product{
		ProductID:          raw.PublicItemNumber,
		Name:               raw.ItemDescription,
		Description:        raw.ExtendedDescription,
		URL:                a.absolute(raw.ProductURL),
		Price:              raw.UnitPrice.Round(2),
		ManufacturerNumber: raw.ManufacturerItemNumber,
		Category:           raw.ManufacturerName,
		Available:          raw.IsAvailable,
	}
	if raw.ImageURL != "" {
		p.Images = []string{a.absolute(raw.ImageURL)}
	}
	return p, nil
}

func (a *Patterson) absolute(path string) string {
	if path == "" || strings.HasPrefix(path, "http") {
		return path
	}
	return a.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (a *Patterson) SearchProducts(ctx context.Context, h *session.Handle, query string, page int) (*models.ProductPage, error) {
	if page < 1 {
		page = 1
	}
	var resp struct {
		TotalRecords int                `json:"TotalRecords"`
		Products     []pattersonProduct `json:"Products"`
	}
	err := a.sendJSON(ctx, h, http.MethodGet, a.url("/Supplies/api/search/products", url.Values{
		"q":        {query},
		"page":     {strconv.Itoa(page)},
		"pageSize": {strconv.Itoa(a.pageSize)},
	}), a.authHeader(h), nil, &resp)
	if err != nil {
		return nil, a.fail("search", err)
	}

	result := &models.ProductPage{Page: page, TotalCount: resp.TotalRecords}
	for _, raw := range resp.Products {
		p, err := a.toProduct(raw)
		if err != nil {
			a.dropped("product", raw.PublicItemNumber, err)
			continue
		}
		if a.keep(&p) {
			result.Products = append(result.Products, p)
		}
	}
	result.HasNext = page*a.pageSize < resp.TotalRecords
	return result, nil
}

func (a *Patterson) GetProductPrices(ctx context.Context, h *session.Handle, ids []string) (map[string]decimal.Decimal, error) {
	if err := a.requireLogin(h); err != nil {
		return nil, a.fail("prices", err)
	}
	var resp struct {
		Prices []struct {
			ItemNumber string           `json:"ItemNumber"`
			UnitPrice  *decimal.Decimal `json:"UnitPrice"`
		} `json:"Prices"`
	}
	err := a.sendJSON(ctx, h, http.MethodPost, a.url("/Supplies/api/pricing", nil), a.authHeader(h), map[string]interface{}{
		"ItemNumbers": ids,
	}, &resp)
	if err != nil {
		return nil, a.fail("prices", err)
	}

	prices := make(map[string]decimal.Decimal, len(resp.Prices))
	for _, row := range resp.Prices {
		if row.UnitPrice == nil {
			a.dropped("price", row.ItemNumber, errTranslation("no price"))
			continue
		}
		prices[row.ItemNumber] = row.UnitPrice.Round(2)
	}
	return prices, nil
}

func (a *Patterson) ClearCart(ctx context.Context, h *session.Handle) error {
	if err := a.requireLogin(h); err != nil {
		return a.fail("clear cart", err)
	}
	err := a.sendJSON(ctx, h, http.MethodDelete, a.url("/Supplies/api/cart", nil), a.authHeader(h), nil, nil)
	return a.fail("clear cart", err)
}

func (a *Patterson) AddToCart(ctx context.Context, h *session.Handle, items []models.CartProduct) error {
	if err := a.requireLogin(h); err != nil {
		return a.fail("add to cart", err)
	}
	type line struct {
		ItemNumber string `json:"ItemNumber"`
		Quantity   int    `json:"Quantity"`
	}
	lines := make([]line, 0, len(items))
	for _, item := range items {
		lines = append(lines, line{ItemNumber: item.ProductID, Quantity: item.Quantity})
	}

	var resp struct {
		Added  int `json:"Added"`
		Errors []struct {
			ItemNumber string `json:"ItemNumber"`
			Message    string `json:"Message"`
		} `json:"Errors"`
	}
	err := a.sendJSON(ctx, h, http.MethodPost, a.url("/Supplies/api/cart/items", nil), a.authHeader(h), map[string]interface{}{
		"Items": lines,
	}, &resp)
	if err != nil {
		return a.fail("add to cart", err)
	}
	if len(resp.Errors) > 0 {
		return a.fail("add to cart", errTranslation("cart rejected %s: %s", resp.Errors[0].ItemNumber, resp.Errors[0].Message))
	}
	return nil
}

func (a *Patterson) Checkout(ctx context.Context, h *session.Handle, items []models.CartProduct, opts CheckoutOptions) (*models.OrderConfirmation, error) {
	if err := a.ClearCart(ctx, h); err != nil {
		return nil, err
	}
	if err := a.AddToCart(ctx, h, items); err != nil {
		return nil, err
	}

	var cart struct {
		Lines []struct {
			ItemNumber string `json:"ItemNumber"`
		} `json:"Lines"`
		OrderTotal decimal.Decimal   `json:"OrderTotal"`
		ShipTo     *pattersonAddress `json:"ShipTo"`
	}
	if err := a.sendJSON(ctx, h, http.MethodGet, a.url("/Supplies/api/cart", nil), a.authHeader(h), nil, &cart); err != nil {
		return nil, a.fail("checkout", err)
	}
	inCart := make([]string, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		inCart = append(inCart, line.ItemNumber)
	}
	if err := checkCart(inCart, items); err != nil {
		return nil, a.fail("checkout", err)
	}

	conf := a.confirmation(items, "", "", opts.DryRun)
	conf.ReportedTotal = cart.OrderTotal
	conf.ShippingAddress = cart.ShipTo.toModel()
	if opts.DryRun {
		return conf, nil
	}

	var placed struct {
		OrderNumber string `json:"OrderNumber"`
		Message     string `json:"Message"`
	}
	err := a.sendJSON(ctx, h, http.MethodPost, a.url("/Supplies/api/checkout/submit", nil), a.authHeader(h), map[string]string{
		"PurchaseOrderNumber": opts.PONumber,
	}, &placed)
	if err != nil {
		return nil, a.fail("checkout", err)
	}
	if placed.OrderNumber == "" {
		return nil, a.fail("checkout", errTranslation("order not placed: %s", placed.Message))
	}
	conf.VendorOrderID = placed.OrderNumber
	return conf, nil
}

func (a *Patterson) GetOrders(ctx context.Context, h *session.Handle, q models.OrderQuery) ([]models.VendorOrderInfo, error) {
	if err := a.requireLogin(h); err != nil {
		return nil, a.fail("orders", err)
	}
	orders, err := a.collectOrders(ctx, q, func(ctx context.Context, page int) ([]models.VendorOrderInfo, bool, error) {
		query := url.Values{
			"page":     {strconv.Itoa(page)},
			"pageSize": {"25"},
		}
		if !q.Since.IsZero() {
			query.Set("fromDate", q.Since.Format("2006-01-02"))
		}
		var resp struct {
			TotalPages int `json:"TotalPages"`
			Orders     []struct {
				OrderNumber string            `json:"OrderNumber"`
				OrderDate   string            `json:"OrderDate"`
				Status      string            `json:"Status"`
				OrderTotal  decimal.Decimal   `json:"OrderTotal"`
				ShipTo      *pattersonAddress `json:"ShipTo"`
				Lines       []struct {
					ItemNumber      string           `json:"ItemNumber"`
					ItemDescription string           `json:"ItemDescription"`
					Quantity        int              `json:"Quantity"`
					UnitPrice       *decimal.Decimal `json:"UnitPrice"`
					Status          string           `json:"Status"`
				} `json:"Lines"`
			} `json:"Orders"`
		}
		if err := a.sendJSON(ctx, h, http.MethodGet, a.url("/Supplies/api/orders", query), a.authHeader(h), nil, &resp); err != nil {
			return nil, false, err
		}

		batch := make([]models.VendorOrderInfo, 0, len(resp.Orders))
	orders:
		for _, raw := range resp.Orders {
			date, err := vendorDate(raw.OrderDate)
			if err != nil {
				a.dropped("order", raw.OrderNumber, err)
				continue
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
					a.dropped("order", raw.OrderNumber, errTranslation("line %s has no price", line.ItemNumber))
					continue orders
				}
				order.Items = append(order.Items, models.VendorOrderProduct{
					ProductID: line.ItemNumber,
					Name:      line.ItemDescription,
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

func (a *Patterson) fetchAccountID(ctx context.Context, h *session.Handle) (string, error) {
	var account struct {
		AccountNumber string `json:"AccountNumber"`
	}
	if err := a.sendJSON(ctx, h, http.MethodGet, a.url("/Supplies/api/account", nil), a.authHeader(h), nil, &account); err != nil {
		return "", err
	}
	if account.AccountNumber == "" {
		return "", errTranslation("account response has no account number")
	}
	return account.AccountNumber, nil
}

func (a *Patterson) AccountID(ctx context.Context, h *session.Handle) (string, error) {
	if err := a.requireLogin(h); err != nil {
		return "", a.fail("account id", err)
	}
	if id := h.Value(pattersonAccountKey); id != "" {
		return id, nil
	}
	id, err := a.fetchAccountID(ctx, h)
	if err != nil {
		return "", a.fail("account id", err)
	}
	h.SetValue(pattersonAccountKey, id)
	return id, nil
}

var _ Adapter = (*Patterson)(nil)
