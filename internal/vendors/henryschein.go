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

// HenrySchein scrapes the ASP.NET storefront at henryschein.com
type HenrySchein struct {
	base
}

// NewHenrySchein creates a new Henry Schein adapter
func NewHenrySchein(cfg Config, deps Deps) *HenrySchein {
	return &HenrySchein{base: newBase(models.VendorHenrySchein, cfg, deps)}
}

const (
	hsLoginPage     = "/us-en/Login.aspx"
	hsLoginHandler  = "/us-en/webservices/LoginRequestHandler.ashx"
	hsSearchPage    = "/us-en/Search.aspx"
	hsProductPage   = "/us-en/Product.aspx"
	hsCartPage      = "/us-en/Shopping/ShoppingCart.aspx"
	hsCartHandler   = "/us-en/webservices/CartRequestHandler.ashx"
	hsCheckoutPage  = "/us-en/Checkout/BillingShipping.aspx"
	hsOrderHistory  = "/us-en/Orders/OrderHistory.aspx"
	hsAccountPage   = "/us-en/Account/AccountInformation.aspx"
	hsEmptyCartBtn  = "ctl00$cphMainContent$btnEmptyCart"
	hsPlaceOrderBtn = "ctl00$cphMainContent$btnPlaceOrder"
	hsPONumberField = "ctl00$cphMainContent$txtPONumber"
	hsOrdersGrid    = "ctl00$cphMainContent$gvOrders"
)

var hsAddress = addressSelectors{
	Name:       ".ship-name",
	Address1:   ".ship-street1",
	Address2:   ".ship-street2",
	City:       ".ship-city",
	State:      ".ship-state",
	PostalCode: ".ship-zip",
}

func (a *HenrySchein) Login(ctx context.Context, h *session.Handle, creds models.Credentials) error {
	return a.runLogin(ctx, h, creds, loginFlow{
		prepare: func(ctx context.Context) (url.Values, error) {
			doc, err := a.getDocument(ctx, h, a.url(hsLoginPage, nil))
			if err != nil {
				return nil, err
			}
			token := attr(doc.Find("input[name=__RequestVerificationToken]"), "value")
			if token == "" {
				return nil, errTranslation("login page has no anti-forgery token")
			}
			h.SetToken(session.TokenCSRF, token)
			return url.Values{"__RequestVerificationToken": {token}}, nil
		},
		submit: func(ctx context.Context, fields url.Values) error {
			fields.Set("username", creds.Username)
			fields.Set("password", creds.Password)
			fields.Set("rememberme", "true")

			var result struct {
				IsAuthenticated bool   `json:"IsAuthenticated"`
				ErrorMessage    string `json:"ErrorMessage"`
			}
			if err := a.postFormJSON(ctx, h, a.url(hsLoginHandler, nil), fields, nil, &result); err != nil {
				return err
			}
			if !result.IsAuthenticated {
				return errAuth("%s", strings.TrimSpace(result.ErrorMessage))
			}
			return nil
		},
	})
}

func (a *HenrySchein) SearchProducts(ctx context.Context, h *session.Handle, query string, page int) (*models.ProductPage, error) {
	if page < 1 {
		page = 1
	}
	doc, err := a.getDocument(ctx, h, a.url(hsSearchPage, url.Values{
		"searchkeyWord": {query},
		"pagenumber":    {strconv.Itoa(page)},
	}))
	if err != nil {
		return nil, a.fail("search", err)
	}

	result := &models.ProductPage{Page: page}
	doc.Find("li.product").Each(func(_ int, s *goquery.Selection) {
		p := models.Product{
			ProductID:          attr(s, "data-product-id"),
			Name:               text(s.Find(".product-name")),
			URL:                resolve(doc, attr(s.Find(".product-name a"), "href")),
			ManufacturerNumber: strings.TrimPrefix(text(s.Find(".product-mfr-number")), "Mfr #: "),
			Available:          s.Find(".out-of-stock").Length() == 0,
		}
		if img := attr(s.Find(".product-image img"), "src"); img != "" {
			p.Images = []string{resolve(doc, img)}
		}
		price, err := models.ParsePrice(text(s.Find(".product-price")))
		if err != nil {
			a.dropped("product", p.ProductID, err)
			return
		}
		p.Price = price
		if a.keep(&p) {
			result.Products = append(result.Products, p)
		}
	})

	if total, err := models.ParseQuantity(text(doc.Find(".search-results-count"))); err == nil {
		result.TotalCount = total
	}
	result.HasNext = doc.Find("a.next-page").Length() > 0
	return result, nil
}

func (a *HenrySchein) GetProductPrices(ctx context.Context, h *session.Handle, ids []string) (map[string]decimal.Decimal, error) {
	if err := a.requireLogin(h); err != nil {
		return nil, a.fail("prices", err)
	}
	prices, err := pricesOneByOne(ctx, a.logger, a.vendor, ids, func(ctx context.Context, id string) (decimal.Decimal, error) {
		doc, err := a.getDocument(ctx, h, a.url(hsProductPage, url.Values{"productid": {id}}))
		if err != nil {
			return decimal.Zero, err
		}
		return models.ParsePrice(text(doc.Find("#product-price")))
	})
	return prices, a.fail("prices", err)
}

func (a *HenrySchein) ClearCart(ctx context.Context, h *session.Handle) error {
	if err := a.requireLogin(h); err != nil {
		return a.fail("clear cart", err)
	}
	doc, err := a.getDocument(ctx, h, a.url(hsCartPage, nil))
	if err != nil {
		return a.fail("clear cart", err)
	}
	if doc.Find("tr.cart-item").Length() == 0 {
		return nil
	}

	form := doc.Find("form#aspnetForm")
	fields := hiddenFields(form)
	fields.Set("__EVENTTARGET", hsEmptyCartBtn)
	fields.Set("__EVENTARGUMENT", "")
	doc, err = a.postForm(ctx, h, formAction(doc, form), fields)
	if err != nil {
		return a.fail("clear cart", err)
	}
	if n := doc.Find("tr.cart-item").Length(); n > 0 {
		return a.fail("clear cart", errTranslation("cart still has %d lines after emptying", n))
	}
	return nil
}

func (a *HenrySchein) AddToCart(ctx context.Context, h *session.Handle, items []models.CartProduct) error {
	if err := a.requireLogin(h); err != nil {
		return a.fail("add to cart", err)
	}
	for _, item := range items {
		var result struct {
			Success bool   `json:"Success"`
			Message string `json:"Message"`
		}
		err := a.postFormJSON(ctx, h, a.url(hsCartHandler, nil), url.Values{
			"action":                     {"addItem"},
			"productId":                  {item.ProductID},
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

func (a *HenrySchein) Checkout(ctx context.Context, h *session.Handle, items []models.CartProduct, opts CheckoutOptions) (*models.OrderConfirmation, error) {
	if err := a.ClearCart(ctx, h); err != nil {
		return nil, err
	}
	if err := a.AddToCart(ctx, h, items); err != nil {
		return nil, err
	}

	review, err := a.getDocument(ctx, h, a.url(hsCheckoutPage, nil))
	if err != nil {
		return nil, a.fail("checkout", err)
	}
	var inCart []string
	review.Find("tr.cart-item").Each(func(_ int, s *goquery.Selection) {
		inCart = append(inCart, attr(s, "data-product-id"))
	})
	if err := checkCart(inCart, items); err != nil {
		return nil, a.fail("checkout", err)
	}
	address := parseAddress(review.Find(".ship-to-address"), hsAddress)
	total := text(review.Find(".order-total"))

	if opts.DryRun {
		conf := a.confirmation(items, "", total, true)
		conf.ShippingAddress = address
		return conf, nil
	}

	form := review.Find("form#aspnetForm")
	fields := hiddenFields(form)
	fields.Set("__EVENTTARGET", hsPlaceOrderBtn)
	fields.Set("__EVENTARGUMENT", "")
	fields.Set(hsPONumberField, opts.PONumber)
	placed, err := a.postForm(ctx, h, formAction(review, form), fields)
	if err != nil {
		return nil, a.fail("checkout", err)
	}
	orderID := text(placed.Find(".order-confirmation-number"))
	if orderID == "" {
		return nil, a.fail("checkout", errTranslation("no confirmation number after placing order"))
	}

	conf := a.confirmation(items, orderID, total, false)
	conf.ShippingAddress = address
	return conf, nil
}

func (a *HenrySchein) GetOrders(ctx context.Context, h *session.Handle, q models.OrderQuery) ([]models.VendorOrderInfo, error) {
	if err := a.requireLogin(h); err != nil {
		return nil, a.fail("orders", err)
	}
	doc, err := a.getDocument(ctx, h, a.url(hsOrderHistory, nil))
	if err != nil {
		return nil, a.fail("orders", err)
	}

	var orders []models.VendorOrderInfo
	for page := 1; ; page++ {
		reachedCutoff := false
		var detailLinks []string
		var headers []models.VendorOrderInfo

		doc.Find("table.order-history tr.order-row").Each(func(_ int, s *goquery.Selection) {
			id := text(s.Find("td.order-number"))
			date, err := vendorDate(text(s.Find("td.order-date")))
			if err != nil {
				a.dropped("order", id, err)
				return
			}
			if !q.Includes(date) {
				reachedCutoff = true
				return
			}
			order := models.VendorOrderInfo{
				VendorOrderID: id,
				OrderDate:     date,
				Status:        models.NormalizeOrderStatus(text(s.Find("td.order-status"))),
			}
			if total, err := models.ParsePrice(text(s.Find("td.order-total"))); err == nil {
				order.ReportedTotal = total
			}
			headers = append(headers, order)
			detailLinks = append(detailLinks, resolve(doc, attr(s.Find("td.order-number a"), "href")))
		})

		for i, order := range headers {
			if err := a.orderDetail(ctx, h, detailLinks[i], &order); err != nil {
				if a.skippable("order", order.VendorOrderID, err) {
					continue
				}
				return nil, a.fail("orders", err)
			}
			if a.keepOrder(&order) {
				orders = append(orders, order)
			}
		}

		next := doc.Find("a.next-page")
		if reachedCutoff || next.Length() == 0 || (q.MaxPages > 0 && page >= q.MaxPages) {
			break
		}

		// The grid pages through ASP.NET postbacks rather than links
		form := doc.Find("form#aspnetForm")
		fields := hiddenFields(form)
		target := attr(next, "data-target")
		if target == "" {
			target = hsOrdersGrid
		}
		fields.Set("__EVENTTARGET", target)
		fields.Set("__EVENTARGUMENT", "Page$"+strconv.Itoa(page+1))
		doc, err = a.postForm(ctx, h, formAction(doc, form), fields)
		if err != nil {
			return nil, a.fail("orders", err)
		}
	}
	return orders, nil
}

func (a *HenrySchein) orderDetail(ctx context.Context, h *session.Handle, link string, order *models.VendorOrderInfo) error {
	if link == "" {
		return errTranslation("order %s has no detail link", order.VendorOrderID)
	}
	doc, err := a.getDocument(ctx, h, link)
	if err != nil {
		return err
	}

	var lineErr error
	doc.Find("tr.line-item").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		qty, err := models.ParseQuantity(text(s.Find(".item-qty")))
		if err != nil {
			lineErr = err
			return false
		}
		price, err := models.ParsePrice(text(s.Find(".item-price")))
		if err != nil {
			lineErr = err
			return false
		}
		order.Items = append(order.Items, models.VendorOrderProduct{
			ProductID: text(s.Find(".item-code")),
			Name:      text(s.Find(".item-description")),
			Quantity:  qty,
			UnitPrice: price,
			Status:    models.NormalizeOrderStatus(text(s.Find(".item-status"))),
		})
		return true
	})
	if lineErr != nil {
		return lineErr
	}
	order.ShippingAddress = parseAddress(doc.Find(".ship-to-address"), hsAddress)
	return nil
}

func (a *HenrySchein) AccountID(ctx context.Context, h *session.Handle) (string, error) {
	if err := a.requireLogin(h); err != nil {
		return "", a.fail("account id", err)
	}
	doc, err := a.getDocument(ctx, h, a.url(hsAccountPage, nil))
	if err != nil {
		return "", a.fail("account id", err)
	}
	id := text(doc.Find("#account-number"))
	if id == "" {
		return "", a.fail("account id", errTranslation("account page has no account number"))
	}
	return id, nil
}

var _ Adapter = (*HenrySchein)(nil)
