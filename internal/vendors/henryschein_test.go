package vendors

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/session"
)

const hsLoginHTML = `<html><body><form id="aspnetForm">
<input type="hidden" name="__RequestVerificationToken" value="tok-123" />
</form></body></html>`

const hsSearchHTML = `<html><body>
<span class="search-results-count">3 results</span>
<ul>
  <li class="product" data-product-id="1012345">
    <h3 class="product-name"><a href="/us-en/Product.aspx?productid=1012345">Nitrile  Exam Gloves,
      Medium</a></h3>
    <div class="product-image"><img src="/img/1012345.jpg"></div>
    <span class="product-price">$12.49</span>
    <span class="product-mfr-number">Mfr #: NG-200M</span>
  </li>
  <li class="product" data-product-id="1099999">
    <h3 class="product-name"><a href="#">Prophy Paste</a></h3>
    <span class="product-price">$1,204.00</span>
    <span class="out-of-stock">Out of stock</span>
  </li>
  <li class="product" data-product-id="1000001">
    <h3 class="product-name"><a href="#">Call for price</a></h3>
    <span class="product-price">Call</span>
  </li>
</ul>
<a class="next-page" href="#">Next</a>
</body></html>`

func TestHenrySchein_Login(t *testing.T) {
	srv := vendorServer(t, map[string]http.HandlerFunc{
		"GET " + hsLoginPage: func(w http.ResponseWriter, r *http.Request) {
			writeHTML(w, hsLoginHTML)
		},
		"POST " + hsLoginHandler: func(w http.ResponseWriter, r *http.Request) {
			_ = r.ParseForm()
			if r.PostForm.Get("__RequestVerificationToken") != "tok-123" {
				t.Errorf("token = %q, want tok-123", r.PostForm.Get("__RequestVerificationToken"))
			}
			ok := r.PostForm.Get("username") == "buyer" && r.PostForm.Get("password") == "secret"
			writeJSON(w, map[string]interface{}{"IsAuthenticated": ok, "ErrorMessage": "Invalid login"})
		},
	})
	a := NewHenrySchein(testConfig(models.VendorHenrySchein, srv.URL), testDeps())

	t.Run("success", func(t *testing.T) {
		h := testHandle(models.VendorHenrySchein, srv)
		if err := a.Login(context.Background(), h, models.Credentials{Username: "buyer", Password: "secret"}); err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if h.State() != session.Authenticated {
			t.Errorf("State() = %v, want authenticated", h.State())
		}
		if h.Token(session.TokenCSRF) != "tok-123" {
			t.Errorf("csrf token = %q", h.Token(session.TokenCSRF))
		}
	})

	t.Run("bad password", func(t *testing.T) {
		h := testHandle(models.VendorHenrySchein, srv)
		err := a.Login(context.Background(), h, models.Credentials{Username: "buyer", Password: "wrong"})
		wantKind(t, err, models.KindAuthentication)
		if h.State() != session.Anonymous {
			t.Errorf("State() = %v, want anonymous", h.State())
		}
	})
}

func TestHenrySchein_SearchProducts(t *testing.T) {
	srv := vendorServer(t, map[string]http.HandlerFunc{
		"GET " + hsSearchPage: func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("searchkeyWord") != "gloves" || r.URL.Query().Get("pagenumber") != "1" {
				t.Errorf("query = %v", r.URL.Query())
			}
			writeHTML(w, hsSearchHTML)
		},
	})
	a := NewHenrySchein(testConfig(models.VendorHenrySchein, srv.URL), testDeps())

	page, err := a.SearchProducts(context.Background(), testHandle(models.VendorHenrySchein, srv), "gloves", 0)
	if err != nil {
		t.Fatalf("SearchProducts() error = %v", err)
	}

	if len(page.Products) != 2 {
		t.Fatalf("got %d products, want 2 (unpriced item dropped)", len(page.Products))
	}
	if page.TotalCount != 3 || !page.HasNext || page.Page != 1 {
		t.Errorf("page = %+v", page)
	}

	p := page.Products[0]
	if p.Name != "Nitrile Exam Gloves, Medium" {
		t.Errorf("Name = %q", p.Name)
	}
	if !p.Price.Equal(decimal.RequireFromString("12.49")) {
		t.Errorf("Price = %s", p.Price)
	}
	if p.ManufacturerNumber != "NG-200M" || !p.Available || p.Vendor != models.VendorHenrySchein {
		t.Errorf("product = %+v", p)
	}
	if p.URL != srv.URL+"/us-en/Product.aspx?productid=1012345" {
		t.Errorf("URL = %q", p.URL)
	}
	if len(p.Images) != 1 || p.Images[0] != srv.URL+"/img/1012345.jpg" {
		t.Errorf("Images = %v", p.Images)
	}

	if page.Products[1].Available {
		t.Error("out of stock product should not be available")
	}
	if !page.Products[1].Price.Equal(decimal.NewFromInt(1204)) {
		t.Errorf("Price = %s", page.Products[1].Price)
	}
}

func TestHenrySchein_GetProductPrices(t *testing.T) {
	srv := vendorServer(t, map[string]http.HandlerFunc{
		"GET " + hsProductPage: func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Query().Get("productid") {
			case "1":
				writeHTML(w, `<span id="product-price">$3.10</span>`)
			case "2":
				http.NotFound(w, r)
			default:
				writeHTML(w, `<span id="product-price">n/a</span>`)
			}
		},
	})
	a := NewHenrySchein(testConfig(models.VendorHenrySchein, srv.URL), testDeps())
	h := loggedIn(testHandle(models.VendorHenrySchein, srv))

	prices, err := a.GetProductPrices(context.Background(), h, []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("GetProductPrices() error = %v", err)
	}
	if len(prices) != 1 || !prices["1"].Equal(decimal.RequireFromString("3.10")) {
		t.Errorf("prices = %v, want only 1 => 3.10", prices)
	}
}

func TestHenrySchein_RequiresLogin(t *testing.T) {
	a := NewHenrySchein(DefaultConfig(), testDeps())
	h := session.NewHandle("office-1", models.VendorHenrySchein, nil)

	_, err := a.GetOrders(context.Background(), h, models.OrderQuery{})
	wantKind(t, err, models.KindAuthentication)
}

func TestHenrySchein_CheckoutDryRun(t *testing.T) {
	var added []string
	srv := vendorServer(t, map[string]http.HandlerFunc{
		"GET " + hsCartPage: func(w http.ResponseWriter, r *http.Request) {
			writeHTML(w, `<form id="aspnetForm"></form><p>Your cart is empty</p>`)
		},
		"POST " + hsCartHandler: func(w http.ResponseWriter, r *http.Request) {
			_ = r.ParseForm()
			added = append(added, r.PostForm.Get("productId")+"x"+r.PostForm.Get("quantity"))
			writeJSON(w, map[string]interface{}{"Success": true})
		},
		"GET " + hsCheckoutPage: func(w http.ResponseWriter, r *http.Request) {
			writeHTML(w, `<form id="aspnetForm" action="BillingShipping.aspx">
<table><tr class="cart-item" data-product-id="A1"></tr><tr class="cart-item" data-product-id="B2"></tr></table>
<div class="ship-to-address"><span class="ship-name">Smile Dental</span><span class="ship-street1">1 Main St</span>
<span class="ship-city">Austin</span><span class="ship-state">TX</span><span class="ship-zip">78701</span></div>
<span class="order-total">$55.00</span></form>`)
		},
		"POST " + hsCheckoutPage: func(w http.ResponseWriter, r *http.Request) {
			t.Error("dry run must not submit the order")
		},
	})
	a := NewHenrySchein(testConfig(models.VendorHenrySchein, srv.URL), testDeps())
	h := loggedIn(testHandle(models.VendorHenrySchein, srv))

	items := []models.CartProduct{
		{ProductID: "A1", Quantity: 2, UnitPrice: decimal.NewFromInt(10)},
		{ProductID: "B2", Quantity: 1, UnitPrice: decimal.NewFromInt(35)},
	}
	conf, err := a.Checkout(context.Background(), h, items, CheckoutOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}

	if len(added) != 2 || added[0] != "A1x2" || added[1] != "B2x1" {
		t.Errorf("added = %v", added)
	}
	if !conf.DryRun || conf.VendorOrderID != "" {
		t.Errorf("conf = %+v, want dry run without order id", conf)
	}
	if !conf.ReportedTotal.Equal(decimal.NewFromInt(55)) {
		t.Errorf("ReportedTotal = %s", conf.ReportedTotal)
	}
	if conf.ShippingAddress == nil || conf.ShippingAddress.City != "Austin" {
		t.Errorf("ShippingAddress = %+v", conf.ShippingAddress)
	}
	if !models.SumItems(conf.Items).Equal(decimal.NewFromInt(55)) {
		t.Errorf("items total = %s", models.SumItems(conf.Items))
	}
}

func TestHenrySchein_GetOrders(t *testing.T) {
	recent := time.Now().AddDate(0, 0, -1).Format("01/02/2006")
	old := time.Now().AddDate(0, -3, 0).Format("01/02/2006")

	srv := vendorServer(t, map[string]http.HandlerFunc{
		"GET " + hsOrderHistory: func(w http.ResponseWriter, r *http.Request) {
			writeHTML(w, `<form id="aspnetForm"></form><table class="order-history">
<tr class="order-row"><td class="order-number"><a href="/us-en/Orders/OrderDetail.aspx?id=9001">9001</a></td>
<td class="order-date">`+recent+`</td><td class="order-status">Shipped</td><td class="order-total">$20.00</td></tr>
<tr class="order-row"><td class="order-number"><a href="/us-en/Orders/OrderDetail.aspx?id=8000">8000</a></td>
<td class="order-date">`+old+`</td><td class="order-status">Shipped</td><td class="order-total">$5.00</td></tr>
</table><a class="next-page" href="#">Next</a>`)
		},
		"POST " + hsOrderHistory: func(w http.ResponseWriter, r *http.Request) {
			t.Error("paging should stop at the cutoff")
		},
		"GET /us-en/Orders/OrderDetail.aspx": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("id") != "9001" {
				t.Errorf("detail requested for %s", r.URL.Query().Get("id"))
			}
			writeHTML(w, `<table>
<tr class="line-item"><td class="item-code">A1</td><td class="item-description">Gloves</td>
<td class="item-qty">2</td><td class="item-price">$10.00</td><td class="item-status">Shipped</td></tr>
</table>`)
		},
	})
	a := NewHenrySchein(testConfig(models.VendorHenrySchein, srv.URL), testDeps())
	h := loggedIn(testHandle(models.VendorHenrySchein, srv))

	orders, err := a.GetOrders(context.Background(), h, models.OrderQuery{Since: time.Now().AddDate(0, 0, -30)})
	if err != nil {
		t.Fatalf("GetOrders() error = %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("got %d orders, want 1", len(orders))
	}
	o := orders[0]
	if o.VendorOrderID != "9001" || o.Status != models.OrderStatusShipped || o.Vendor != models.VendorHenrySchein {
		t.Errorf("order = %+v", o)
	}
	if len(o.Items) != 1 || o.Items[0].Quantity != 2 || !o.Items[0].UnitPrice.Equal(decimal.NewFromInt(10)) {
		t.Errorf("items = %+v", o.Items)
	}
}
