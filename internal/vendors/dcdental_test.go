package vendors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/johnrirwin/ordo/internal/models"
)

func dcDentalAdapter(t *testing.T, handler http.HandlerFunc) (*DCDental, *httptest.Server) {
	t.Helper()
	srv := vendorServer(t, map[string]http.HandlerFunc{
		"/app/site/hosting/restlet.nl": func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "OAuth ") || !strings.Contains(auth, `realm="1234567_SB1"`) ||
				!strings.Contains(auth, `oauth_signature_method="HMAC-SHA256"`) || !strings.Contains(auth, `oauth_token="tok-id"`) {
				t.Errorf("Authorization = %q", auth)
			}
			handler(w, r)
		},
	})
	cfg := testConfig(models.VendorDCDental, srv.URL)
	cfg.NetSuite = NetSuiteConfig{
		RestletURL:     srv.URL + "/app/site/hosting/restlet.nl",
		Realm:          "1234567_SB1",
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		TokenID:        "tok-id",
		TokenSecret:    "tok-secret",
		SearchScript:   "customscript_search",
		OrderScript:    "customscript_orders",
		CustomerScript: "customscript_customer",
	}
	return NewDCDental(cfg, testDeps()), srv
}

func TestDCDental_Login(t *testing.T) {
	a, srv := dcDentalAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("script") != "customscript_customer" || q.Get("deploy") != "1" || q.Get("action") != "getCustomer" {
			t.Errorf("query = %v", q)
		}
		if q.Get("email") != "buyer@smile.com" {
			writeJSON(w, map[string]interface{}{"success": false, "error": map[string]string{"code": "INVALID_CUSTOMER", "message": "not found"}})
			return
		}
		writeJSON(w, map[string]interface{}{"success": true, "customer": map[string]interface{}{"id": "4412", "entityId": "C4412"}})
	})

	h := testHandle(models.VendorDCDental, srv)
	if err := a.Login(context.Background(), h, models.Credentials{Username: "buyer@smile.com"}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if id, _ := a.AccountID(context.Background(), h); id != "4412" {
		t.Errorf("AccountID() = %q", id)
	}

	bad := testHandle(models.VendorDCDental, srv)
	err := a.Login(context.Background(), bad, models.Credentials{Username: "nobody@smile.com"})
	wantKind(t, err, models.KindAuthentication)
}

func TestDCDental_NotConfigured(t *testing.T) {
	a := NewDCDental(DefaultConfig(), testDeps())
	h := testHandle(models.VendorDCDental, vendorServer(t, nil))

	err := a.Login(context.Background(), h, models.Credentials{Username: "buyer@smile.com"})
	wantKind(t, err, models.KindAuthentication)
}

func TestDCDental_SearchAndPrices(t *testing.T) {
	a, srv := dcDentalAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var body struct {
				Action string   `json:"action"`
				SKUs   []string `json:"skus"`
			}
			decodeBody(t, r, &body)
			if body.Action != "getPrices" {
				t.Errorf("action = %q", body.Action)
			}
			writeJSON(w, map[string]interface{}{"success": true, "prices": []map[string]interface{}{
				{"sku": "DCD-1", "price": "2.499"},
				{"sku": "DCD-2", "price": nil},
			}})
			return
		}
		writeJSON(w, map[string]interface{}{"success": true, "total": 1, "items": []map[string]interface{}{
			{"sku": "DCD-1", "name": "Saliva Ejectors", "price": 2.5, "available": true},
		}})
	})
	h := loggedIn(testHandle(models.VendorDCDental, srv))

	page, err := a.SearchProducts(context.Background(), h, "saliva", 1)
	if err != nil {
		t.Fatalf("SearchProducts() error = %v", err)
	}
	if len(page.Products) != 1 || page.HasNext {
		t.Errorf("page = %+v", page)
	}

	prices, err := a.GetProductPrices(context.Background(), h, []string{"DCD-1", "DCD-2"})
	if err != nil {
		t.Fatalf("GetProductPrices() error = %v", err)
	}
	if len(prices) != 1 || !prices["DCD-1"].Equal(decimal.RequireFromString("2.50")) {
		t.Errorf("prices = %v", prices)
	}
}

func TestDCDental_Checkout(t *testing.T) {
	var dryRuns []bool
	a, srv := dcDentalAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Action string         `json:"action"`
			DryRun bool           `json:"dryRun"`
			Lines  []netSuiteLine `json:"lines"`
		}
		decodeBody(t, r, &body)
		if body.Action != "createSalesOrder" || len(body.Lines) != 1 {
			t.Errorf("body = %+v", body)
		}
		dryRuns = append(dryRuns, body.DryRun)
		resp := map[string]interface{}{"success": true, "total": "10.00"}
		if !body.DryRun {
			resp["tranId"] = "SO88120"
		}
		writeJSON(w, resp)
	})
	h := loggedIn(testHandle(models.VendorDCDental, srv))
	items := []models.CartProduct{{ProductID: "DCD-1", Quantity: 4, UnitPrice: decimal.RequireFromString("2.50")}}

	dry, err := a.Checkout(context.Background(), h, items, CheckoutOptions{DryRun: true})
	if err != nil || !dry.DryRun || dry.VendorOrderID != "" {
		t.Fatalf("Checkout(dry run) = %+v, %v", dry, err)
	}
	conf, err := a.Checkout(context.Background(), h, items, CheckoutOptions{})
	if err != nil || conf.VendorOrderID != "SO88120" {
		t.Fatalf("Checkout() = %+v, %v", conf, err)
	}
	if len(dryRuns) != 2 || !dryRuns[0] || dryRuns[1] {
		t.Errorf("dryRun flags = %v", dryRuns)
	}
}
