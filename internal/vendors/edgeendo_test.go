package vendors

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/session"
)

func TestEdgeEndo_Login(t *testing.T) {
	srv := vendorServer(t, map[string]http.HandlerFunc{
		"GET /customer/account/login/": func(w http.ResponseWriter, r *http.Request) {
			writeHTML(w, `<form><input name="form_key" type="hidden" value="fk1"></form>`)
		},
		"POST /customer/account/loginPost/": func(w http.ResponseWriter, r *http.Request) {
			_ = r.ParseForm()
			if r.PostForm.Get("form_key") != "fk1" {
				t.Errorf("form_key = %q", r.PostForm.Get("form_key"))
			}
			if r.PostForm.Get("login[password]") != "secret" {
				http.Redirect(w, r, "/customer/account/login/", http.StatusFound)
				return
			}
			http.Redirect(w, r, "/customer/account/", http.StatusFound)
		},
		"GET /customer/account/": func(w http.ResponseWriter, r *http.Request) {
			writeHTML(w, `<input name="form_key" type="hidden" value="fk2">
<div class="box-information"><p class="customer-email">office@smiledental.com</p></div>`)
		},
	})
	a := NewEdgeEndo(testConfig(models.VendorEdgeEndo, srv.URL), testDeps())

	h := testHandle(models.VendorEdgeEndo, srv)
	if err := a.Login(context.Background(), h, models.Credentials{Username: "office@smiledental.com", Password: "secret"}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if h.Token(session.TokenCSRF) != "fk2" {
		t.Errorf("form_key = %q, want refreshed key", h.Token(session.TokenCSRF))
	}
	if id, _ := a.AccountID(context.Background(), h); id != "office@smiledental.com" {
		t.Errorf("AccountID() = %q", id)
	}

	bad := testHandle(models.VendorEdgeEndo, srv)
	err := a.Login(context.Background(), bad, models.Credentials{Username: "office@smiledental.com", Password: "x"})
	wantKind(t, err, models.KindAuthentication)
}

const edgeListingHTML = `<p id="toolbar-amount">Items <span class="toolbar-number">1</span>-<span class="toolbar-number">2</span> of <span class="toolbar-number">14</span></p>
<ol>
<li class="product-item">
  <a class="product-item-link" href="/edgefile-x7-files.html">EdgeFile X7 Files 21mm</a>
  <img class="product-image-photo" src="/media/x7.jpg">
  <span data-price-amount="89.5"></span>
  <form data-product-sku="X7-2104"></form>
</li>
<li class="product-item">
  <a class="product-item-link" href="/edgetaper.html">EdgeTaper Platinum</a>
  <span data-price-amount="112"></span>
  <div class="stock unavailable">Out of stock</div>
  <form data-product-sku="ETP-25"></form>
</li>
</ol>
<li class="pages-item-next"><a href="?p=2">Next</a></li>`

func TestEdgeEndo_SearchProducts(t *testing.T) {
	srv := vendorServer(t, map[string]http.HandlerFunc{
		"GET /catalogsearch/result/": func(w http.ResponseWriter, r *http.Request) {
			writeHTML(w, edgeListingHTML)
		},
	})
	a := NewEdgeEndo(testConfig(models.VendorEdgeEndo, srv.URL), testDeps())

	page, err := a.SearchProducts(context.Background(), testHandle(models.VendorEdgeEndo, srv), "files", 1)
	if err != nil {
		t.Fatalf("SearchProducts() error = %v", err)
	}
	if len(page.Products) != 2 || page.TotalCount != 14 || !page.HasNext {
		t.Fatalf("page = %+v", page)
	}
	if p := page.Products[0]; p.ProductID != "X7-2104" || !p.Price.Equal(decimal.RequireFromString("89.50")) || !p.Available {
		t.Errorf("product = %+v", p)
	}
	if page.Products[1].Available {
		t.Error("unavailable product reported as available")
	}
}

func TestEdgeEndo_GetProductPrices(t *testing.T) {
	srv := vendorServer(t, map[string]http.HandlerFunc{
		"GET /catalogsearch/result/": func(w http.ResponseWriter, r *http.Request) {
			writeHTML(w, edgeListingHTML)
		},
	})
	a := NewEdgeEndo(testConfig(models.VendorEdgeEndo, srv.URL), testDeps())
	h := loggedIn(testHandle(models.VendorEdgeEndo, srv))

	prices, err := a.GetProductPrices(context.Background(), h, []string{"ETP-25", "GONE-1"})
	if err != nil {
		t.Fatalf("GetProductPrices() error = %v", err)
	}
	if len(prices) != 1 || !prices["ETP-25"].Equal(decimal.NewFromInt(112)) {
		t.Errorf("prices = %v", prices)
	}
}

func TestEdgeEndo_CheckoutDryRun(t *testing.T) {
	var removed []string
	added := false
	srv := vendorServer(t, map[string]http.HandlerFunc{
		"GET /customer/section/load/": func(w http.ResponseWriter, r *http.Request) {
			if !added {
				writeJSON(w, map[string]interface{}{"cart": map[string]interface{}{
					"items": []map[string]interface{}{{"item_id": "31", "product_sku": "OLD-1", "qty": 1}},
				}})
				return
			}
			writeJSON(w, map[string]interface{}{"cart": map[string]interface{}{
				"subtotalAmount": "179.00",
				"items":          []map[string]interface{}{{"item_id": "32", "product_sku": "X7-2104", "qty": 2}},
			}})
		},
		"POST /checkout/sidebar/removeItem/": func(w http.ResponseWriter, r *http.Request) {
			_ = r.ParseForm()
			removed = append(removed, r.PostForm.Get("item_id"))
			writeJSON(w, map[string]interface{}{"success": true})
		},
		"POST /checkout/cart/add/": func(w http.ResponseWriter, r *http.Request) {
			added = true
			writeHTML(w, `<div class="message-success">Added</div>`)
		},
		"GET /checkout/cart/": func(w http.ResponseWriter, r *http.Request) {
			writeHTML(w, `<table><tr class="grand totals"><td><span data-price-amount="186.95"></span></td></tr></table>`)
		},
		"POST /rest/default/V1/carts/mine/payment-information": func(w http.ResponseWriter, r *http.Request) {
			t.Error("dry run must not place the order")
		},
	})
	a := NewEdgeEndo(testConfig(models.VendorEdgeEndo, srv.URL), testDeps())
	h := loggedIn(testHandle(models.VendorEdgeEndo, srv))

	items := []models.CartProduct{{ProductID: "X7-2104", Quantity: 2, UnitPrice: decimal.RequireFromString("89.50")}}
	conf, err := a.Checkout(context.Background(), h, items, CheckoutOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}
	if len(removed) != 1 || removed[0] != "31" {
		t.Errorf("removed = %v", removed)
	}
	if !conf.DryRun || !conf.ReportedTotal.Equal(decimal.RequireFromString("186.95")) {
		t.Errorf("conf = %+v", conf)
	}
}
