package vendors

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/session"
)

// Darby scrapes darbydental.com. Login, pricing and the cart go through the
// site's JSON endpoints; search and order history are HTML.
type Darby struct {
	base
}

// NewDarby creates a new Darby adapter
func NewDarby(cfg Config, deps Deps) *Darby {
	return &Darby{base: newBase(models.VendorDarby, cfg, deps)}
}

const darbyAccountKey = "account"

var darbyAddress = addressSelectors{
	Name:       ".addr-name",
	Address1:   ".addr-line1",
	Address2:   ".addr-line2",
	City:       ".addr-city",
	State:      ".addr-state",
	PostalCode: ".addr-zip",
}

// darbyResult is the envelope every Darby JSON endpoint answers with
type darbyResult struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	OrderNumber string   `json:"orderNumber"`
	FailedSkus  []string `json:"failedSkus"`
}

func (a *Darby) tokenHeader(h *session.Handle) http.Header {
	header := http.Header{}
	if token := h.Token(session.TokenCSRF); token != "" {
		header.Set("RequestVerificationToken", token)
	}
	return header
}

func (a *Darby) Login(ctx context.Context, h *session.Handle, creds models.Credentials) error {
	return a.runLogin(ctx, h, creds, loginFlow{
		prepare: func(ctx context.Context) (url.Values, error) {
			doc, err := a.getDocument(ctx, h, a.url("/", nil))
			if err != nil {
				return nil, err
			}
			// Older deployments render no token; the cookie alone is enough there
			if token := attr(doc.Find("input[name=__RequestVerificationToken]"), "value"); token != "" {
				h.SetToken(session.TokenCSRF, token)
			}
			return url.Values{}, nil
		},
		submit: func(ctx context.Context, _ url.Values) error {
			var result darbyResult
			err := a.sendJSON(ctx, h, http.MethodPost, a.url("/api/Login/Login", nil), a.tokenHeader(h), map[string]interface{}{
				"username":   creds.Username,
				"password":   creds.Password,
				"rememberMe": true,
			}, &result)
			if err != nil {
				return err
			}
			if !result.Success {
				return errAuth("%s", result.Message)
			}
			return nil
		},
		verify: func(ctx context.Context) error {
			id, err := a.fetchAccountID(ctx, h)
			if err != nil {
				return err
			}
			h.SetValue(darbyAccountKey, id)
			return nil
		},
	})
}

func (a *Darby) SearchProducts(ctx context.Context, h *session.Handle, query string, page int) (*models.ProductPage, error) {
	if page < 1 {
		page = 1
	}
	doc, err := a.getDocument(ctx, h, a.url("/Scripts/productlistview.aspx", url.Values{
		"term": {query},
		"page": {strconv.Itoa(page)},
	}))
	if err != nil {
		return nil, a.fail("search", err)
	}

	result := &models.ProductPage{Page: page}
	doc.Find("div.prod-list-item").Each(func(_ int, s *goquery.Selection) {
		link := s.Find(".prod-title a")
		p := models.Product{
			ProductID:          attr(s, "data-sku"),
			Name:               text(link),
			URL:                resolve(doc, attr(link, "href")),
			ManufacturerNumber: text(s.Find(".prod-mfr")),
			Available:          strings.EqualFold(text(s.Find(".prod-stock")), "In Stock"),
		}
		if img := attr(s.Find(".prod-img img"), "src"); img != "" {
			p.Images = []string{resolve(doc, img)}
		}
		price, err := models.ParsePrice(text(s.Find(".prod-price")))
		if err != nil {
			a.dropped("product", p.ProductID, err)
			return
		}
		p.Price = price
		if a.keep(&p) {
			result.Products = append(result.Products, p)
		}
	})

	if total, err := models.ParseQuantity(text(doc.Find("#resultCount"))); err == nil {
		result.TotalCount = total
	}
	result.HasNext = doc.Find("li.pager-next a").Length() > 0
	return result, nil
}

func (a *Darby) GetProductPrices(ctx context.Context, h *session.Handle, ids []string) (map[string]decimal.Decimal, error) {
	if err := a.requireLogin(h); err != nil {
		return nil, a.fail("prices", err)
	}
	var rows []struct {
		Sku   string `json:"Sku"`
		Price string `json:"Price"`
	}
	err := a.sendJSON(ctx, h, http.MethodPost, a.url("/api/Product/GetPrices", nil), a.tokenHeader(h), map[string]interface{}{
		"SkuList": ids,
	}, &rows)
	if err != nil {
		return nil, a.fail("prices", err)
	}

	prices := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		price, err := models.ParsePrice(row.Price)
		if err != nil {
			a.dropped("price", row.Sku, err)
			continue
		}
		prices[row.Sku] = price
	}
	return prices, nil
}

func (a *Darby) ClearCart(ctx context.Context, h *session.Handle) error {
	if err := a.requireLogin(h); err != nil {
		return a.fail("clear cart", err)
	}
	var result darbyResult
	if err := a.sendJSON(ctx, h, http.MethodPost, a.url("/api/ShoppingCart/Clear", nil), a.tokenHeader(h), struct{}{}, &result); err != nil {
		return a.fail("clear cart", err)
	}
	if !result.Success {
		return a.fail("clear cart", errTranslation("clear rejected: %s", result.Message))
	}
	return nil
}

func (a *Darby) AddToCart(ctx context.Context, h *session.Handle, items []models.CartProduct) error {
	if err := a.requireLogin(h); err != nil {
		return a.fail("add to cart", err)
	}
	type line struct {
		Sku string `json:"Sku"`
		Qty int    `json:"Qty"`
	}
	lines := make([]line, 0, len(items))
	for _, item := range items {
		lines = append(lines, line{Sku: item.ProductID, Qty: item.Quantity})
	}

	var result darbyResult
	if err := a.sendJSON(ctx, h, http.MethodPost, a.url("/api/ShoppingCart/AddItems", nil), a.tokenHeader(h), lines, &result); err != nil {
		return a.fail("add to cart", err)
	}
	if !result.Success || len(result.FailedSkus) > 0 {
		return a.fail("add to cart", errTranslation("cart rejected %s: %s", strings.Join(result.FailedSkus, ","), result.Message))
	}
	return nil
}

func (a *Darby) Checkout(ctx context.Context, h *session.Handle, items []models.CartProduct, opts CheckoutOptions) (*models.OrderConfirmation, error) {
	if err := a.ClearCart(ctx, h); err != nil {
		return nil, err
	}
	if err := a.AddToCart(ctx, h, items); err != nil {
		return nil, err
	}

	review, err := a.getDocument(ctx, h, a.url("/Checkout/Review", nil))
	if err != nil {
		return nil, a.fail("checkout", err)
	}
	var inCart []string
	review.Find("table.review-lines tr[data-sku]").Each(func(_ int, s *goquery.Selection) {
		inCart = append(inCart, attr(s, "data-sku"))
	})
	if err := checkCart(inCart, items); err != nil {
		return nil, a.fail("checkout", err)
	}
	address := parseAddress(review.Find(".ship-to"), darbyAddress)
	total := text(review.Find("#reviewTotal"))

	if opts.DryRun {
		conf := a.confirmation(items, "", total, true)
		conf.ShippingAddress = address
		return conf, nil
	}

	var result darbyResult
	err = a.sendJSON(ctx, h, http.MethodPost, a.url("/api/Checkout/PlaceOrder", nil), a.tokenHeader(h), map[string]string{
		"PONumber": opts.PONumber,
	}, &result)
	if err != nil {
		return nil, a.fail("checkout", err)
	}
	if !result.Success || result.OrderNumber == "" {
		return nil, a.fail("checkout", errTranslation("order not placed: %s", result.Message))
	}

	conf := a.confirmation(items, result.OrderNumber, total, false)
	conf.ShippingAddress = address
	return conf, nil
}

func (a *Darby) GetOrders(ctx context.Context, h *session.Handle, q models.OrderQuery) ([]models.VendorOrderInfo, error) {
	if err := a.requireLogin(h); err != nil {
		return nil, a.fail("orders", err)
	}
	orders, err := a.collectOrders(ctx, q, func(ctx context.Context, page int) ([]models.VendorOrderInfo, bool, error) {
		doc, err := a.getDocument(ctx, h, a.url("/Account/OrderHistory", url.Values{"page": {strconv.Itoa(page)}}))
		if err != nil {
			return nil, false, err
		}

		var batch []models.VendorOrderInfo
		var rowErr error
		doc.Find("table#orderHistory tbody tr").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			cells := s.Find("td")
			id := text(cells.Eq(0))
			date, err := vendorDate(text(cells.Eq(1)))
			if err != nil {
				a.dropped("order", id, err)
				return true
			}
			order := models.VendorOrderInfo{
				VendorOrderID: id,
				OrderDate:     date,
				Status:        models.NormalizeOrderStatus(text(cells.Eq(2))),
			}
			if total, err := models.ParsePrice(text(cells.Eq(3))); err == nil {
				order.ReportedTotal = total
			}
			if q.Includes(date) {
				if err := a.orderLines(ctx, h, &order); err != nil {
					if !a.skippable("order", id, err) {
						rowErr = err
						return false
					}
					return true
				}
			}
			batch = append(batch, order)
			return true
		})
		if rowErr != nil {
			return nil, false, rowErr
		}
		return batch, doc.Find("li.pager-next a").Length() > 0, nil
	})
	return orders, a.fail("orders", err)
}

func (a *Darby) orderLines(ctx context.Context, h *session.Handle, order *models.VendorOrderInfo) error {
	doc, err := a.getDocument(ctx, h, a.url("/Account/OrderDetail", url.Values{"orderNumber": {order.VendorOrderID}}))
	if err != nil {
		return err
	}
	var lineErr error
	doc.Find("table#orderLines tbody tr").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		cells := s.Find("td")
		qty, err := models.ParseQuantity(text(cells.Eq(2)))
		if err != nil {
			lineErr = err
			return false
		}
		price, err := models.ParsePrice(text(cells.Eq(3)))
		if err != nil {
			lineErr = err
			return false
		}
		order.Items = append(order.Items, models.VendorOrderProduct{
			ProductID: text(cells.Eq(0)),
			Name:      text(cells.Eq(1)),
			Quantity:  qty,
			UnitPrice: price,
			Status:    models.NormalizeOrderStatus(text(cells.Eq(4))),
		})
		return true
	})
	if lineErr != nil {
		return lineErr
	}
	order.ShippingAddress = parseAddress(doc.Find(".ship-to"), darbyAddress)
	return nil
}

func (a *Darby) fetchAccountID(ctx context.Context, h *session.Handle) (string, error) {
	doc, err := a.getDocument(ctx, h, a.url("/Account/Profile", nil))
	if err != nil {
		return "", err
	}
	id := text(doc.Find("span.account-number"))
	if id == "" {
		// The profile page renders for anonymous visitors too, just without
		// an account number
		return "", errAuth("profile has no account number")
	}
	return id, nil
}

func (a *Darby) AccountID(ctx context.Context, h *session.Handle) (string, error) {
	if err := a.requireLogin(h); err != nil {
		return "", a.fail("account id", err)
	}
	if id := h.Value(darbyAccountKey); id != "" {
		return id, nil
	}
	id, err := a.fetchAccountID(ctx, h)
	if err != nil {
		return "", a.fail("account id", err)
	}
	h.SetValue(darbyAccountKey, id)
	return id, nil
}

var _ Adapter = (*Darby)(nil)
