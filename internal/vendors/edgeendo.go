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

// EdgeEndo scrapes the Magento 2 storefront at shop.edgeendo.com. Every
// state-changing request carries Magento's form_key.
type EdgeEndo struct {
	base
}

// NewEdgeEndo creates a new Edge Endo adapter
func NewEdgeEndo(cfg Config, deps Deps) *EdgeEndo {
	return &EdgeEndo{base: newBase(models.VendorEdgeEndo, cfg, deps)}
}

const edgeEmailKey = "email"

var edgeAddress = addressSelectors{
	Name:       ".address-name",
	Address1:   ".address-street1",
	Address2:   ".address-street2",
	City:       ".address-city",
	State:      ".address-region",
	PostalCode: ".address-postcode",
}

func formKey(doc *goquery.Document) string {
	return attr(doc.Find("input[name=form_key]"), "value")
}

func (a *EdgeEndo) Login(ctx context.Context, h *session.Handle, creds models.Credentials) error {
	return a.runLogin(ctx, h, creds, loginFlow{
		prepare: func(ctx context.Context) (url.Values, error) {
			doc, err := a.getDocument(ctx, h, a.url("/customer/account/login/", nil))
			if err != nil {
				return nil, err
			}
			key := formKey(doc)
			if key == "" {
				return nil, errTranslation("login page has no form_key")
			}
			h.SetToken(session.TokenCSRF, key)
			return url.Values{"form_key": {key}}, nil
		},
		submit: func(ctx context.Context, fields url.Values) error {
			fields.Set("login[username]", creds.Username)
			fields.Set("login[password]", creds.Password)
			fields.Set("send", "")

			// Magento redirects back to the login page on failure and to the
			// account dashboard on success
			doc, err := a.postForm(ctx, h, a.url("/customer/account/loginPost/", nil), fields)
			if err != nil {
				return err
			}
			if msg := text(doc.Find(".message-error")); msg != "" {
				return errAuth("%s", msg)
			}
			if doc.Url != nil && strings.Contains(doc.Url.Path, "/customer/account/login") {
				return errAuth("redirected back to login")
			}
			if key := formKey(doc); key != "" {
				h.SetToken(session.TokenCSRF, key)
			}
			if email := text(doc.Find(".box-information .customer-email")); email != "" {
				h.SetValue(edgeEmailKey, email)
			}
			return nil
		},
	})
}

func (a *EdgeEndo) parseListing(doc *goquery.Document) []models.Product {
	var products []models.Product
	doc.Find("li.product-item").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("a.product-item-link")
		p := models.Product{
			ProductID: attr(s.Find("form[data-product-sku]"), "data-product-sku"),
			Name:      text(link),
			URL:       resolve(doc, attr(link, "href")),
			Available: s.Find(".stock.unavailable").Length() == 0,
		}
		p.ManufacturerNumber = p.ProductID
		if img := attr(s.Find("img.product-image-photo"), "src"); img != "" {
			p.Images = []string{resolve(doc, img)}
		}
		price, err := models.ParsePrice(attr(s.Find("[data-price-amount]"), "data-price-amount"))
		if err != nil {
			a.dropped("product", p.ProductID, err)
			return
		}
		p.Price = price
		if a.keep(&p) {
			products = append(products, p)
		}
	})
	return products
}

func (a *EdgeEndo) SearchProducts(ctx context.Context, h *session.Handle, query string, page int) (*models.ProductPage, error) {
	if page < 1 {
		page = 1
	}
	doc, err := a.getDocument(ctx, h, a.url("/catalogsearch/result/", url.Values{
		"q": {query},
		"p": {strconv.Itoa(page)},
	}))
	if err != nil {
		return nil, a.fail("search", err)
	}

	result := &models.ProductPage{Page: page, Products: a.parseListing(doc)}
	// The toolbar shows "Items 1-12 of 40" or just "40 Items"
	counts := doc.Find("#toolbar-amount .toolbar-number")
	if total, err := models.ParseQuantity(text(counts.Last())); err == nil {
		result.TotalCount = total
	}
	result.HasNext = doc.Find(".pages-item-next a").Length() > 0
	return result, nil
}

// GetProductPrices searches by SKU since Magento URLs are keyed by slug
func (a *EdgeEndo) GetProductPrices(ctx context.Context, h *session.Handle, ids []string) (map[string]decimal.Decimal, error) {
	if err := a.requireLogin(h); err != nil {
		return nil, a.fail("prices", err)
	}
	prices, err := pricesOneByOne(ctx, a.logger, a.vendor, ids, func(ctx context.Context, id string) (decimal.Decimal, error) {
		doc, err := a.getDocument(ctx, h, a.url("/catalogsearch/result/", url.Values{"q": {id}}))
		if err != nil {
			return decimal.Zero, err
		}
		for _, p := range a.parseListing(doc) {
			if p.ProductID == id {
				return p.Price, nil
			}
		}
		return decimal.Zero, errTranslation("sku %s not found", id)
	})
	return prices, a.fail("prices", err)
}

type edgeCartSection struct {
	Cart struct {
		SummaryCount int    `json:"summary_count"`
		Subtotal     string `json:"subtotalAmount"`
		Items        []struct {
			ItemID     string `json:"item_id"`
			ProductSKU string `json:"product_sku"`
			Qty        int    `json:"qty"`
		} `json:"items"`
	} `json:"cart"`
}

func (a *EdgeEndo) cartSection(ctx context.Context, h *session.Handle) (*edgeCartSection, error) {
	var section edgeCartSection
	header := http.Header{}
	header.Set("X-Requested-With", "XMLHttpRequest")
	err := a.sendJSON(ctx, h, http.MethodGet, a.url("/customer/section/load/", url.Values{
		"sections":                    {"cart"},
		"force_new_section_timestamp": {"true"},
	}), header, nil, &section)
	if err != nil {
		return nil, err
	}
	return &section, nil
}

func (a *EdgeEndo) ClearCart(ctx context.Context, h *session.Handle) error {
	if err := a.requireLogin(h); err != nil {
		return a.fail("clear cart", err)
	}
	section, err := a.cartSection(ctx, h)
	if err != nil {
		return a.fail("clear cart", err)
	}
	for _, item := range section.Cart.Items {
		var result struct {
			Success      bool   `json:"success"`
			ErrorMessage string `json:"error_message"`
		}
		err := a.postFormJSON(ctx, h, a.url("/checkout/sidebar/removeItem/", nil), url.Values{
			"item_id":  {item.ItemID},
			"form_key": {h.Token(session.TokenCSRF)},
		}, nil, &result)
		if err != nil {
			return a.fail("clear cart", err)
		}
		if !result.Success {
			return a.fail("clear cart", errTranslation("could not remove %s: %s", item.ProductSKU, result.ErrorMessage))
		}
	}
	return nil
}

func (a *EdgeEndo) AddToCart(ctx context.Context, h *session.Handle, items []models.CartProduct) error {
	if err := a.requireLogin(h); err != nil {
		return a.fail("add to cart", err)
	}
	for _, item := range items {
		doc, err := a.postForm(ctx, h, a.url("/checkout/cart/add/", nil), url.Values{
			"sku":      {item.ProductID},
			"qty":      {strconv.Itoa(item.Quantity)},
			"form_key": {h.Token(session.TokenCSRF)},
		})
		if err != nil {
			return a.fail("add to cart", err)
		}
		if msg := text(doc.Find(".message-error")); msg != "" {
			return a.fail("add to cart", errTranslation("cart rejected %s: %s", item.ProductID, msg))
		}
	}
	return nil
}

func (a *EdgeEndo) Checkout(ctx context.Context, h *session.Handle, items []models.CartProduct, opts CheckoutOptions) (*models.OrderConfirmation, error) {
	if err := a.ClearCart(ctx, h); err != nil {
		return nil, err
	}
	if err := a.AddToCart(ctx, h, items); err != nil {
		return nil, err
	}

	section, err := a.cartSection(ctx, h)
	if err != nil {
		return nil, a.fail("checkout", err)
	}
	inCart := make([]string, 0, len(section.Cart.Items))
	for _, item := range section.Cart.Items {
		inCart = append(inCart, item.ProductSKU)
	}
	if err := checkCart(inCart, items); err != nil {
		return nil, a.fail("checkout", err)
	}

	review, err := a.getDocument(ctx, h, a.url("/checkout/cart/", nil))
	if err != nil {
		return nil, a.fail("checkout", err)
	}
	address := parseAddress(review.Find(".shipping-address"), edgeAddress)
	total := attr(review.Find(".grand.totals [data-price-amount]"), "data-price-amount")
	if total == "" {
		total = section.Cart.Subtotal
	}

	if opts.DryRun {
		conf := a.confirmation(items, "", total, true)
		conf.ShippingAddress = address
		return conf, nil
	}

	// The storefront's own checkout posts here; "mine" resolves to the
	// customer behind the session cookie
	header := http.Header{}
	header.Set("X-Requested-With", "XMLHttpRequest")
	var orderID string
	err = a.sendJSON(ctx, h, http.MethodPost, a.url("/rest/default/V1/carts/mine/payment-information", nil), header, map[string]interface{}{
		"paymentMethod": map[string]interface{}{
			"method":               "purchaseorder",
			"po_number":            opts.PONumber,
			"extension_attributes": map[string]string{},
		},
	}, &orderID)
	if err != nil {
		return nil, a.fail("checkout", err)
	}
	if orderID == "" {
		return nil, a.fail("checkout", errTranslation("no order id after placing order"))
	}

	conf := a.confirmation(items, orderID, total, false)
	conf.ShippingAddress = address
	return conf, nil
}

func (a *EdgeEndo) GetOrders(ctx context.Context, h *session.Handle, q models.OrderQuery) ([]models.VendorOrderInfo, error) {
	if err := a.requireLogin(h); err != nil {
		return nil, a.fail("orders", err)
	}
	orders, err := a.collectOrders(ctx, q, func(ctx context.Context, page int) ([]models.VendorOrderInfo, bool, error) {
		doc, err := a.getDocument(ctx, h, a.url("/sales/order/history/", url.Values{"p": {strconv.Itoa(page)}}))
		if err != nil {
			return nil, false, err
		}

		var batch []models.VendorOrderInfo
		var rowErr error
		doc.Find("table#my-orders-table tbody tr").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			id := text(s.Find("td.col.id"))
			date, err := vendorDate(text(s.Find("td.col.date")))
			if err != nil {
				a.dropped("order", id, err)
				return true
			}
			order := models.VendorOrderInfo{
				VendorOrderID: id,
				OrderDate:     date,
				Status:        models.NormalizeOrderStatus(text(s.Find("td.col.status"))),
			}
			if total, err := models.ParsePrice(text(s.Find("td.col.total"))); err == nil {
				order.ReportedTotal = total
			}
			if q.Includes(date) {
				link := resolve(doc, attr(s.Find("td.col.actions a.view"), "href"))
				if err := a.orderView(ctx, h, link, &order); err != nil {
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
		return batch, doc.Find(".pages-item-next a").Length() > 0, nil
	})
	return orders, a.fail("orders", err)
}

func (a *EdgeEndo) orderView(ctx context.Context, h *session.Handle, link string, order *models.VendorOrderInfo) error {
	if link == "" {
		return errTranslation("order %s has no view link", order.VendorOrderID)
	}
	doc, err := a.getDocument(ctx, h, link)
	if err != nil {
		return err
	}
	var lineErr error
	doc.Find("table#my-orders-table tbody tr").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		qty, err := models.ParseQuantity(text(s.Find("td.col.qty .content")))
		if err != nil {
			lineErr = err
			return false
		}
		price, err := models.ParsePrice(text(s.Find("td.col.price .price")))
		if err != nil {
			lineErr = err
			return false
		}
		order.Items = append(order.Items, models.VendorOrderProduct{
			ProductID: text(s.Find("td.col.sku")),
			Name:      text(s.Find("td.col.name .product-item-name")),
			Quantity:  qty,
			UnitPrice: price,
			Status:    order.Status,
		})
		return true
	})
	if lineErr != nil {
		return lineErr
	}
	order.ShippingAddress = parseAddress(doc.Find(".box-order-shipping-address"), edgeAddress)
	return nil
}

// AccountID returns the customer email; Edge Endo has no account numbers
func (a *EdgeEndo) AccountID(ctx context.Context, h *session.Handle) (string, error) {
	if err := a.requireLogin(h); err != nil {
		return "", a.fail("account id", err)
	}
	if email := h.Value(edgeEmailKey); email != "" {
		return email, nil
	}
	doc, err := a.getDocument(ctx, h, a.url("/customer/account/", nil))
	if err != nil {
		return "", a.fail("account id", err)
	}
	email := text(doc.Find(".box-information .customer-email"))
	if email == "" {
		return "", a.fail("account id", errTranslation("account page has no customer email"))
	}
	h.SetValue(edgeEmailKey, email)
	return email, nil
}

var _ Adapter = (*EdgeEndo)(nil)
