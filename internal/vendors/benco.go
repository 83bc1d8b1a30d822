package vendors

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/session"
)

// Benco scrapes shop.benco.com. Login is an OpenID Connect redirect chain
// through Benco's identity server that ends in a form_post back to the shop.
type Benco struct {
	base
}

// NewBenco creates a new Benco adapter
func NewBenco(cfg Config, deps Deps) *Benco {
	return &Benco{base: newBase(models.VendorBenco, cfg, deps)}
}

const (
	bencoAccountKey = "account"
	bencoActionKey  = "_action"
)

var bencoAddress = addressSelectors{
	Name:       ".name",
	Address1:   ".line1",
	Address2:   ".line2",
	City:       ".city",
	State:      ".state",
	PostalCode: ".zip",
}

func (a *Benco) Login(ctx context.Context, h *session.Handle, creds models.Credentials) error {
	return a.runLogin(ctx, h, creds, loginFlow{
		prepare: func(ctx context.Context) (url.Values, error) {
			// Follows the redirect to the identity server's login form
			doc, err := a.getDocument(ctx, h, a.url("/Account/Login", nil))
			if err != nil {
				return nil, err
			}
			form := doc.Find("form#loginForm")
			if form.Length() == 0 {
				return nil, errTranslation("identity server page has no login form")
			}
			fields := formFields(form)
			if fields.Get("__RequestVerificationToken") == "" {
				return nil, errTranslation("login form has no anti-forgery token")
			}
			h.SetToken(session.TokenCSRF, fields.Get("__RequestVerificationToken"))
			fields.Set(bencoActionKey, formAction(doc, form))
			return fields, nil
		},
		submit: func(ctx context.Context, fields url.Values) error {
			action := fields.Get(bencoActionKey)
			fields.Del(bencoActionKey)
			fields.Set("Username", creds.Username)
			fields.Set("Password", creds.Password)

			doc, err := a.postForm(ctx, h, action, fields)
			if err != nil {
				return err
			}
			if msg := text(doc.Find(".validation-summary-errors")); msg != "" {
				return errAuth("%s", msg)
			}
			if doc.Find("form#loginForm").Length() > 0 {
				return errAuth("login form shown again")
			}

			// form_post response mode: replay the hidden code/id_token form
			callback := doc.Find("form").FilterFunction(func(_ int, s *goquery.Selection) bool {
				return strings.HasSuffix(attr(s, "action"), "signin-oidc")
			}).First()
			if callback.Length() == 0 {
				return errTranslation("identity server did not return a signin-oidc form")
			}
			values := formFields(callback)
			if _, err := a.postForm(ctx, h, formAction(doc, callback), values); err != nil {
				return err
			}
			if idToken := values.Get("id_token"); idToken != "" {
				h.SetBearer(idToken)
			}
			return nil
		},
		verify: func(ctx context.Context) error {
			id, err := a.fetchAccountID(ctx, h)
			if err != nil {
				return err
			}
			h.SetValue(bencoAccountKey, id)
			return nil
		},
	})
}

func (a *Benco) SearchProducts(ctx context.Context, h *session.Handle, query string, page int) (*models.ProductPage, error) {
	if page < 1 {
		page = 1
	}
	doc, err := a.getDocument(ctx, h, a.url("/Product/Search", url.Values{
		"q":    {query},
		"page": {strconv.Itoa(page)},
	}))
	if err != nil {
		return nil, a.fail("search", err)
	}

	result := &models.ProductPage{Page: page}
	doc.Find("div.product-tile").Each(func(_ int, s *goquery.Selection) {
		link := s.Find(".product-tile-name a")
		p := models.Product{
			ProductID:          attr(s, "data-product-number"),
			Name:               text(link),
			URL:                resolve(doc, attr(link, "href")),
			ManufacturerNumber: text(s.Find(".product-tile-mfr")),
			Available:          s.Find(".product-tile-stock.in-stock").Length() > 0,
		}
		if img := attr(s.Find(".product-tile-image img"), "src"); img != "" {
			p.Images = []string{resolve(doc, img)}
		}
		price, err := models.ParsePrice(text(s.Find(".product-tile-price")))
		if err != nil {
			a.dropped("product", p.ProductID, err)
			return
		}
		p.Price = price
		if a.keep(&p) {
			result.Products = append(result.Products, p)
		}
	})

	if total, err := models.ParseQuantity(text(doc.Find(".search-count"))); err == nil {
		result.TotalCount = total
	}
	result.HasNext = doc.Find("a[rel=next]").Length() > 0
	return result, nil
}

func (a *Benco) GetProductPrices(ctx context.Context, h *session.Handle, ids []string) (map[string]decimal.Decimal, error) {
	if err := a.requireLogin(h); err != nil {
		return nil, a.fail("prices", err)
	}
	prices, err := pricesOneByOne(ctx, a.logger, a.vendor, ids, func(ctx context.Context, id string) (decimal.Decimal, error) {
		doc, err := a.getDocument(ctx, h, a.url("/Product/Detail/"+url.PathEscape(id), nil))
		if err != nil {
			return decimal.Zero, err
		}
		return models.ParsePrice(text(doc.Find(".product-detail-price")))
	})
	return prices, a.fail("prices", err)
}

// cartPage loads the cart and refreshes the anti-forgery token from it
func (a *Benco) cartPage(ctx context.Context, h *session.Handle) (*goquery.Document, error) {
	doc, err := a.getDocument(ctx, h, a.url("/Cart", nil))
	if err != nil {
		return nil, err
	}
	token := attr(doc.Find("form#cartForm input[name=__RequestVerificationToken]"), "value")
	if token == "" {
		return nil, errTranslation("cart page has no anti-forgery token")
	}
	h.SetToken(session.TokenCSRF, token)
	return doc, nil
}

func (a *Benco) ClearCart(ctx context.Context, h *session.Handle) error {
	if err := a.requireLogin(h); err != nil {
		return a.fail("clear cart", err)
	}
	doc, err := a.cartPage(ctx, h)
	if err != nil {
		return a.fail("clear cart", err)
	}
	if doc.Find("tr.cart-line").Length() == 0 {
		return nil
	}
	_, err = a.postForm(ctx, h, a.url("/Cart/RemoveAll", nil), url.Values{
		"__RequestVerificationToken": {h.Token(session.TokenCSRF)},
	})
	return a.fail("clear cart", err)
}

func (a *Benco) AddToCart(ctx context.Context, h *session.Handle, items []models.CartProduct) error {
	if err := a.requireLogin(h); err != nil {
		return a.fail("add to cart", err)
	}
	if _, err := a.cartPage(ctx, h); err != nil {
		return a.fail("add to cart", err)
	}
	for _, item := range items {
		var result struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}
		err := a.postFormJSON(ctx, h, a.url("/Cart/AddItem", nil), url.Values{
			"productNumber":              {item.ProductID},
			"quantity":                   {strconv.Itoa(item.Quantity)},
			"__RequestVerificationToken": {h.Token(session.TokenCSRF)},
		}, nil, &result)
		if err != nil {
			return a.fail("add to cart", err)
		}
		if !result.Success {
			return a.fail("add to cart", errTranslation("cart rejected %s: %s", item.ProductID, result.Message))
		}
	}
	return nil
}

func (a *Benco) Checkout(ctx context.Context, h *session.Handle, items []models.CartProduct, opts CheckoutOptions) (*models.OrderConfirmation, error) {
	if err := a.ClearCart(ctx, h); err != nil {
		return nil, err
	}
	if err := a.AddToCart(ctx, h, items); err != nil {
		return nil, err
	}

	review, err := a.getDocument(ctx, h, a.url("/Checkout", nil))
	if err != nil {
		return nil, a.fail("checkout", err)
	}
	var inCart []string
	review.Find("tr.checkout-line").Each(func(_ int, s *goquery.Selection) {
		inCart = append(inCart, attr(s, "data-product-number"))
	})
	if err := checkCart(inCart, items); err != nil {
		return nil, a.fail("checkout", err)
	}
	address := parseAddress(review.Find(".shipping-address"), bencoAddress)
	total := text(review.Find(".checkout-total"))

	if opts.DryRun {
		conf := a.confirmation(items, "", total, true)
		conf.ShippingAddress = address
		return conf, nil
	}

	form := review.Find("form#placeOrderForm")
	if form.Length() == 0 {
		return nil, a.fail("checkout", errTranslation("checkout page has no place-order form"))
	}
	fields := formFields(form)
	fields.Set("PurchaseOrderNumber", opts.PONumber)
	placed, err := a.postForm(ctx, h, formAction(review, form), fields)
	if err != nil {
		return nil, a.fail("checkout", err)
	}
	orderID := text(placed.Find(".confirmation-number"))
	if orderID == "" {
		return nil, a.fail("checkout", errTranslation("no confirmation number after placing order"))
	}

	conf := a.confirmation(items, orderID, total, false)
	conf.ShippingAddress = address
	return conf, nil
}

func (a *Benco) GetOrders(ctx context.Context, h *session.Handle, q models.OrderQuery) ([]models.VendorOrderInfo, error) {
	if err := a.requireLogin(h); err != nil {
		return nil, a.fail("orders", err)
	}
	orders, err := a.collectOrders(ctx, q, func(ctx context.Context, page int) ([]models.VendorOrderInfo, bool, error) {
		doc, err := a.getDocument(ctx, h, a.url("/Account/OrderHistory", url.Values{"page": {strconv.Itoa(page)}}))
		if err != nil {
			return nil, false, err
		}

		var batch []models.VendorOrderInfo
		doc.Find("div.order-card").Each(func(_ int, card *goquery.Selection) {
			id := text(card.Find(".order-number"))
			order, err := a.parseOrderCard(card)
			if err != nil {
				a.dropped("order", id, err)
				return
			}
			batch = append(batch, order)
		})
		return batch, doc.Find("a[rel=next]").Length() > 0, nil
	})
	return orders, a.fail("orders", err)
}

// parseOrderCard reads one order; Benco renders the line items inline
func (a *Benco) parseOrderCard(card *goquery.Selection) (models.VendorOrderInfo, error) {
	date, err := vendorDate(text(card.Find(".order-date")))
	if err != nil {
		return models.VendorOrderInfo{}, err
	}
	order := models.VendorOrderInfo{
		VendorOrderID:   text(card.Find(".order-number")),
		OrderDate:       date,
		Status:          models.NormalizeOrderStatus(text(card.Find(".order-status"))),
		ShippingAddress: parseAddress(card.Find(".shipping-address"), bencoAddress),
	}
	if total, err := models.ParsePrice(text(card.Find(".order-total"))); err == nil {
		order.ReportedTotal = total
	}

	var lineErr error
	card.Find("tr.order-line").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		qty, err := models.ParseQuantity(text(s.Find(".line-qty")))
		if err != nil {
			lineErr = err
			return false
		}
		price, err := models.ParsePrice(text(s.Find(".line-price")))
		if err != nil {
			lineErr = err
			return false
		}
		order.Items = append(order.Items, models.VendorOrderProduct{
			ProductID: text(s.Find(".line-product")),
			Name:      text(s.Find(".line-description")),
			Quantity:  qty,
			UnitPrice: price,
			Status:    models.NormalizeOrderStatus(text(s.Find(".line-status"))),
		})
		return true
	})
	return order, lineErr
}

func (a *Benco) fetchAccountID(ctx context.Context, h *session.Handle) (string, error) {
	doc, err := a.getDocument(ctx, h, a.url("/Account/Profile", nil))
	if err != nil {
		return "", err
	}
	id := text(doc.Find(".account-number"))
	if id == "" {
		return "", errAuth("profile has no account number")
	}
	return id, nil
}

func (a *Benco) AccountID(ctx context.Context, h *session.Handle) (string, error) {
	if err := a.requireLogin(h); err != nil {
		return "", a.fail("account id", err)
	}
	if id := h.Value(bencoAccountKey); id != "" {
		return id, nil
	}
	id, err := a.fetchAccountID(ctx, h)
	if err != nil {
		return "", a.fail("account id", err)
	}
	h.SetValue(bencoAccountKey, id)
	return id, nil
}

var _ Adapter = (*Benco)(nil)
