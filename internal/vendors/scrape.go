package vendors

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/johnrirwin/ordo/internal/logging"
	"github.com/johnrirwin/ordo/internal/models"
)

// text returns the normalized text of a selection
func text(s *goquery.Selection) string {
	return models.NormalizeText(s.Text())
}

// attr returns an attribute of the first node, trimmed
func attr(s *goquery.Selection, name string) string {
	v, _ := s.First().Attr(name)
	return strings.TrimSpace(v)
}

// formFields collects the named inputs of a form as they would be submitted:
// hidden and text inputs, checked boxes, and selected options.
func formFields(form *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		name := attr(in, "name")
		switch strings.ToLower(attr(in, "type")) {
		case "submit", "button", "image", "file":
			return
		case "checkbox", "radio":
			if _, ok := in.Attr("checked"); !ok {
				return
			}
		}
		v, _ := in.Attr("value")
		values.Add(name, v)
	})
	form.Find("select[name]").Each(func(_ int, sel *goquery.Selection) {
		opt := sel.Find("option[selected]").First()
		if opt.Length() == 0 {
			opt = sel.Find("option").First()
		}
		v, _ := opt.Attr("value")
		values.Set(attr(sel, "name"), v)
	})
	form.Find("textarea[name]").Each(func(_ int, ta *goquery.Selection) {
		values.Set(attr(ta, "name"), ta.Text())
	})
	return values
}

// hiddenFields collects only hidden inputs, as used for ASP.NET postbacks and
// anti-forgery tokens.
func hiddenFields(s *goquery.Selection) url.Values {
	values := url.Values{}
	s.Find("input[type=hidden][name]").Each(func(_ int, in *goquery.Selection) {
		v, _ := in.Attr("value")
		values.Set(attr(in, "name"), v)
	})
	return values
}

// resolve makes href absolute against the document's URL
func resolve(doc *goquery.Document, href string) string {
	if href == "" || doc.Url == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return doc.Url.ResolveReference(ref).String()
}

// formAction returns the absolute action URL of a form, defaulting to the
// page itself.
func formAction(doc *goquery.Document, form *goquery.Selection) string {
	action := attr(form, "action")
	if action == "" && doc.Url != nil {
		return doc.Url.String()
	}
	return resolve(doc, action)
}

// priceFetcher looks up the current price of one product
type priceFetcher func(ctx context.Context, id string) (decimal.Decimal, error)

// pricesOneByOne looks up each id in turn. Products that cannot be found or
// translated are logged and left out; transport and auth failures stop the
// lookup.
func pricesOneByOne(ctx context.Context, logger *logging.Logger, vendor models.VendorSlug, ids []string, fetch priceFetcher) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(ids))
	for _, id := range ids {
		price, err := fetch(ctx, id)
		if err != nil {
			if models.KindOf(classify(vendor, "price", err)) == models.KindTranslation {
				logger.Debug("Skipping product without a price", logging.WithFields(map[string]interface{}{
					"vendor":    vendor,
					"productId": id,
					"error":     err.Error(),
				}))
				continue
			}
			return prices, err
		}
		prices[id] = price
	}
	return prices, nil
}

// filterPrices keeps only the requested ids from a full catalog listing
func filterPrices(products []models.Product, ids []string) map[string]decimal.Decimal {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	prices := make(map[string]decimal.Decimal, len(ids))
	for _, p := range products {
		if _, ok := want[p.ProductID]; ok {
			prices[p.ProductID] = p.Price
		}
	}
	return prices
}

// addressSelectors locate the parts of a postal address inside a container
type addressSelectors struct {
	Name       string
	Address1   string
	Address2   string
	City       string
	State      string
	PostalCode string
}

func parseAddress(s *goquery.Selection, sel addressSelectors) *models.ShippingAddress {
	if s.Length() == 0 {
		return nil
	}
	addr := &models.ShippingAddress{
		Name:       text(s.Find(sel.Name)),
		Address1:   text(s.Find(sel.Address1)),
		Address2:   text(s.Find(sel.Address2)),
		City:       text(s.Find(sel.City)),
		State:      text(s.Find(sel.State)),
		PostalCode: text(s.Find(sel.PostalCode)),
		Country:    "US",
	}
	if addr.IsZero() {
		return nil
	}
	return addr
}

// checkCart verifies that every wanted product is in the vendor's cart
func checkCart(vendorIDs []string, items []models.CartProduct) error {
	have := make(map[string]struct{}, len(vendorIDs))
	for _, id := range vendorIDs {
		have[id] = struct{}{}
	}
	for _, item := range items {
		if _, ok := have[item.ProductID]; !ok {
			return fmt.Errorf("product %s missing from vendor cart after add", item.ProductID)
		}
	}
	return nil
}
