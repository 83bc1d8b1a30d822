package vendors

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/session"
)

// Ultradent speaks to the storefront GraphQL API with a bearer token
type Ultradent struct {
	base
}

// NewUltradent creates a new Ultradent adapter
func NewUltradent(cfg Config, deps Deps) *Ultradent {
	return &Ultradent{base: newBase(models.VendorUltradent, cfg, deps)}
}

const ultradentAccountKey = "account"

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// query runs one GraphQL operation and decodes its data into dst
func (a *Ultradent) query(ctx context.Context, h *session.Handle, query string, vars map[string]interface{}, dst interface{}) error {
	header := http.Header{}
	if token := h.Token(session.TokenBearer); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	var resp graphQLResponse
	err := a.sendJSON(ctx, h, http.MethodPost, a.url("/graphql", nil), header, map[string]interface{}{
		"query":     query,
		"variables": vars,
	}, &resp)
	if err != nil {
		return err
	}

	if len(resp.Errors) > 0 {
		messages := make([]string, 0, len(resp.Errors))
		auth := false
		for _, e := range resp.Errors {
			messages = append(messages, e.Message)
			if e.Extensions.Code == "UNAUTHENTICATED" || e.Extensions.Code == "FORBIDDEN" {
				auth = true
			}
		}
		if auth {
			return errAuth("%s", strings.Join(messages, "; "))
		}
		return errTranslation("%s", strings.Join(messages, "; "))
	}
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, dst); err != nil {
		return errTranslation("failed to decode graphql data: %v", err)
	}
	return nil
}

const ultradentLoginMutation = `mutation Login($email: String!, $password: String!) {
  login(email: $email, password: $password) {
    token
    customer { accountNumber }
  }
}`

func (a *Ultradent) Login(ctx context.Context, h *session.Handle, creds models.Credentials) error {
	return a.apiLogin(ctx, h, creds, func(ctx context.Context) error {
		var data struct {
			Login *struct {
				Token    string `json:"token"`
				Customer struct {
					AccountNumber string `json:"accountNumber"`
				} `json:"customer"`
			} `json:"login"`
		}
		err := a.query(ctx, h, ultradentLoginMutation, map[string]interface{}{
			"email":    creds.Username,
			"password": creds.Password,
		}, &data)
		if err != nil {
			return err
		}
		if data.Login == nil || data.Login.Token == "" {
			return errAuth("login returned no token")
		}
		h.SetBearer(data.Login.Token)
		h.SetValue(ultradentAccountKey, data.Login.Customer.AccountNumber)
		return nil
	})
}

type ultradentProduct struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Image       string `json:"image"`
	Category    string `json:"category"`
	Price       *struct {
		Amount decimal.Decimal `json:"amount"`
	} `json:"price"`
	InStock bool `json:"inStock"`
}

const ultradentSearchQuery = `query Search($term: String!, $page: Int!, $pageSize: Int!) {
  productSearch(term: $term, page: $page, pageSize: $pageSize) {
    totalCount
    items { sku name description url image category inStock price { amount } }
  }
}`

func (a *Ultradent) SearchProducts(ctx context.Context, h *session.Handle, query string, page int) (*models.ProductPage, error) {
	if page < 1 {
		page = 1
	}
	var data struct {
		ProductSearch struct {
			TotalCount int                `json:"totalCount"`
			Items      []ultradentProduct `json:"items"`
		} `json:"productSearch"`
	}
	err := a.query(ctx, h, ultradentSearchQuery, map[string]interface{}{
		"term":     query,
		"page":     page,
		"pageSize": a.pageSize,
	}, &data)
	if err != nil {
		return nil, a.fail("search", err)
	}

	result := &models.ProductPage{Page: page, TotalCount: data.ProductSearch.TotalCount}
	for _, raw := range data.ProductSearch.Items {
		if raw.Price == nil {
			a.dropped("product", raw.SKU, errTranslation("no price"))
			continue
		}
		p := models.Product{
			ProductID:          raw.SKU,
			Name:               raw.Name,
			Description:        raw.Description,
			URL:                raw.URL,
			Price:              raw.Price.Amount.Round(2),
			ManufacturerNumber: raw.SKU,
			Category:           raw.Category,
			Available:          raw.InStock,
		}
		if raw.Image != "" {
			p.Images = []string{raw.Image}
		}
		if a.keep(&p) {
			result.Products = append(result.Products, p)
		}
	}
	result.HasNext = page*a.pageSize < data.ProductSearch.TotalCount
	return result, nil
}

const ultradentPricesQuery = `query Prices($skus: [String!]!) {
  products(skus: $skus) { sku price { amount } }
}`

func (a *Ultradent) GetProductPrices(ctx context.Context, h *session.Handle, ids []string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(ids))
	if len(ids) == 0 {
		return prices, nil
	}
	var data struct {
		Products []ultradentProduct `json:"products"`
	}
	if err := a.query(ctx, h, ultradentPricesQuery, map[string]interface{}{"skus": ids}, &data); err != nil {
		return nil, a.fail("prices", err)
	}
	for _, p := range data.Products {
		if p.Price == nil {
			a.dropped("price", p.SKU, errTranslation("no price"))
			continue
		}
		prices[p.SKU] = p.Price.Amount.Round(2)
	}
	return prices, nil
}

const (
	ultradentClearCartMutation = `mutation { clearCart { itemCount } }`
	ultradentAddToCartMutation = `mutation AddToCart($items: [CartItemInput!]!) {
  addToCart(items: $items) { itemCount userErrors { sku message } }
}`
	ultradentCartQuery = `query {
  cart {
    items { sku quantity }
    total { amount }
    shippingAddress { name line1 line2 city state postalCode }
  }
}`
	ultradentPlaceOrderMutation = `mutation PlaceOrder($poNumber: String) {
  placeOrder(poNumber: $poNumber) { orderNumber }
}`
)

func (a *Ultradent) ClearCart(ctx context.Context, h *session.Handle) error {
	if err := a.requireLogin(h); err != nil {
		return a.fail("clear cart", err)
	}
	return a.fail("clear cart", a.query(ctx, h, ultradentClearCartMutation, nil, nil))
}

func (a *Ultradent) AddToCart(ctx context.Context, h *session.Handle, items []models.CartProduct) error {
	if err := a.requireLogin(h); err != nil {
		return a.fail("add to cart", err)
	}
	if len(items) == 0 {
		return nil
	}
	input := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		input = append(input, map[string]interface{}{"sku": item.ProductID, "quantity": item.Quantity})
	}
	var data struct {
		AddToCart struct {
			UserErrors []struct {
				SKU     string `json:"sku"`
				Message string `json:"message"`
			} `json:"userErrors"`
		} `json:"addToCart"`
	}
	if err := a.query(ctx, h, ultradentAddToCartMutation, map[string]interface{}{"items": input}, &data); err != nil {
		return a.fail("add to cart", err)
	}
	if errs := data.AddToCart.UserErrors; len(errs) > 0 {
		return a.fail("add to cart", errTranslation("%s: %s", errs[0].SKU, errs[0].Message))
	}
	return nil
}

type ultradentAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
}

func (u *ultradentAddress) toModel() *models.ShippingAddress {
	if u == nil {
		return nil
	}
	addr := &models.ShippingAddress{
		Name:       u.Name,
		Address1:   u.Line1,
		Address2:   u.Line2,
		City:       u.City,
		State:      u.State,
		PostalCode: u.PostalCode,
		Country:    "US",
	}
	if addr.IsZero() {
		return nil
	}
	return addr
}

func (a *Ultradent) Checkout(ctx context.Context, h *session.Handle, items []models.CartProduct, opts CheckoutOptions) (*models.OrderConfirmation, error) {
	if err := a.ClearCart(ctx, h); err != nil {
		return nil, err
	}
	if err := a.AddToCart(ctx, h, items); err != nil {
		return nil, err
	}

	var cart struct {
		Cart struct {
			Items []struct {
				SKU string `json:"sku"`
			} `json:"items"`
			Total struct {
				Amount decimal.Decimal `json:"amount"`
			} `json:"total"`
			ShippingAddress *ultradentAddress `json:"shippingAddress"`
		} `json:"cart"`
	}
	if err := a.query(ctx, h, ultradentCartQuery, nil, &cart); err != nil {
		return nil, a.fail("checkout", err)
	}
	inCart := make([]string, 0, len(cart.Cart.Items))
	for _, item := range cart.Cart.Items {
		inCart = append(inCart, item.SKU)
	}
	if err := checkCart(inCart, items); err != nil {
		return nil, a.fail("checkout", err)
	}

	conf := a.confirmation(items, "", "", opts.DryRun)
	conf.ReportedTotal = cart.Cart.Total.Amount
	conf.ShippingAddress = cart.Cart.ShippingAddress.toModel()
	if opts.DryRun {
		return conf, nil
	}

	var placed struct {
		PlaceOrder *struct {
			OrderNumber string `json:"orderNumber"`
		} `json:"placeOrder"`
	}
	vars := map[string]interface{}{"poNumber": opts.PONumber}
	if err := a.query(ctx, h, ultradentPlaceOrderMutation, vars, &placed); err != nil {
		return nil, a.fail("checkout", err)
	}
	if placed.PlaceOrder == nil || placed.PlaceOrder.OrderNumber == "" {
		return nil, a.fail("checkout", errTranslation("no order number after placing order"))
	}
	conf.VendorOrderID = placed.PlaceOrder.OrderNumber
	return conf, nil
}

const ultradentOrdersQuery = `query Orders($page: Int!, $since: String) {
  orderHistory(page: $page, pageSize: 20, since: $since) {
    hasNextPage
    orders {
      orderNumber placedAt status
      total { amount }
      shippingAddress { name line1 line2 city state postalCode }
      lines { sku name quantity status unitPrice { amount } }
    }
  }
}`

func (a *Ultradent) GetOrders(ctx context.Context, h *session.Handle, q models.OrderQuery) ([]models.VendorOrderInfo, error) {
	if err := a.requireLogin(h); err != nil {
		return nil, a.fail("orders", err)
	}
	orders, err := a.collectOrders(ctx, q, func(ctx context.Context, page int) ([]models.VendorOrderInfo, bool, error) {
		vars := map[string]interface{}{"page": page}
		if !q.Since.IsZero() {
			vars["since"] = q.Since.Format("2006-01-02")
		}
		var data struct {
			OrderHistory struct {
				HasNextPage bool `json:"hasNextPage"`
				Orders      []struct {
					OrderNumber string `json:"orderNumber"`
					PlacedAt    string `json:"placedAt"`
					Status      string `json:"status"`
					Total       struct {
						Amount decimal.Decimal `json:"amount"`
					} `json:"total"`
					ShippingAddress *ultradentAddress `json:"shippingAddress"`
					Lines           []struct {
						SKU       string `json:"sku"`
						Name      string `json:"name"`
						Quantity  int    `json:"quantity"`
						Status    string `json:"status"`
						UnitPrice *struct {
							Amount decimal.Decimal `json:"amount"`
						} `json:"unitPrice"`
					} `json:"lines"`
				} `json:"orders"`
			} `json:"orderHistory"`
		}
		if err := a.query(ctx, h, ultradentOrdersQuery, vars, &data); err != nil {
			return nil, false, err
		}

		batch := make([]models.VendorOrderInfo, 0, len(data.OrderHistory.Orders))
	orders:
		for _, raw := range data.OrderHistory.Orders {
			date, err := vendorDate(raw.PlacedAt)
			if err != nil {
				a.dropped("order", raw.OrderNumber, err)
				continue
			}
			order := models.VendorOrderInfo{
				VendorOrderID:   raw.OrderNumber,
				OrderDate:       date,
				Status:          models.NormalizeOrderStatus(raw.Status),
				ReportedTotal:   raw.Total.Amount,
				ShippingAddress: raw.ShippingAddress.toModel(),
			}
			for _, line := range raw.Lines {
				if line.UnitPrice == nil {
					a.dropped("order", raw.OrderNumber, errTranslation("line %s has no price", line.SKU))
					continue orders
				}
				order.Items = append(order.Items, models.VendorOrderProduct{
					ProductID: line.SKU,
					Name:      line.Name,
					Quantity:  line.Quantity,
					UnitPrice: line.UnitPrice.Amount.Round(2),
					Status:    models.NormalizeOrderStatus(line.Status),
				})
			}
			batch = append(batch, order)
		}
		return batch, data.OrderHistory.HasNextPage, nil
	})
	return orders, a.fail("orders", err)
}

func (a *Ultradent) AccountID(ctx context.Context, h *session.Handle) (string, error) {
	if err := a.requireLogin(h); err != nil {
		return "", a.fail("account id", err)
	}
	if id := h.Value(ultradentAccountKey); id != "" {
		return id, nil
	}
	var data struct {
		Customer struct {
			AccountNumber string `json:"accountNumber"`
		} `json:"customer"`
	}
	if err := a.query(ctx, h, `query { customer { accountNumber } }`, nil, &data); err != nil {
		return "", a.fail("account id", err)
	}
	h.SetValue(ultradentAccountKey, data.Customer.AccountNumber)
	return data.Customer.AccountNumber, nil
}

var _ Adapter = (*Ultradent)(nil)
