package vendors

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/session"
)

func b2cToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "buyer@smiledental.com",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := token.SignedString([]byte("b2c-test"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func TestPatterson_Login(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	idToken := b2cToken(t, exp)

	srv := vendorServer(t, map[string]http.HandlerFunc{
		"GET /Supplies/Login": func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/b2c/oauth2/v2.0/authorize?client_id=abc", http.StatusFound)
		},
		"GET /b2c/oauth2/v2.0/authorize": func(w http.ResponseWriter, r *http.Request) {
			writeHTML(w, `<html><head><script>var SETTINGS = {"csrf":"b2c-csrf","transId":"StateProperties=eyJU","hosts":{"policy":"B2C_1A_SignIn"}};</script></head><body></body></html>`)
		},
		"POST /b2c/SelfAsserted": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-CSRF-TOKEN") != "b2c-csrf" {
				t.Errorf("X-CSRF-TOKEN = %q", r.Header.Get("X-CSRF-TOKEN"))
			}
			if r.URL.Query().Get("tx") != "StateProperties=eyJU" || r.URL.Query().Get("p") != "B2C_1A_SignIn" {
				t.Errorf("query = %v", r.URL.Query())
			}
			_ = r.ParseForm()
			if r.PostForm.Get("password") != "secret" {
				writeJSON(w, map[string]string{"status": "400", "message": "Your password is incorrect."})
				return
			}
			writeJSON(w, map[string]string{"status": "200"})
		},
		"GET /b2c/api/CombinedSigninAndSignup/confirmed": func(w http.ResponseWriter, r *http.Request) {
			writeHTML(w, `<form method="post" action="/Supplies/signin-oidc">
<input type="hidden" name="state" value="st">
<input type="hidden" name="id_token" value="`+idToken+`">
</form>`)
		},
		"POST /Supplies/signin-oidc": func(w http.ResponseWriter, r *http.Request) {
			_ = r.ParseForm()
			if r.PostForm.Get("id_token") != idToken {
				t.Error("id_token not replayed to the storefront")
			}
			writeHTML(w, `<html></html>`)
		},
		"GET /Supplies/api/account": func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeJSON(w, map[string]string{"AccountNumber": "P-77"})
		},
	})
	cfg := testConfig(models.VendorPatterson, srv.URL)
	cfg.PattersonAuthURL = srv.URL + "/b2c"
	a := NewPatterson(cfg, testDeps())

	h := testHandle(models.VendorPatterson, srv)
	if err := a.Login(context.Background(), h, models.Credentials{Username: "buyer", Password: "secret"}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !h.Authenticated() {
		t.Fatal("handle should be authenticated")
	}
	if !h.ExpiresAt().Equal(exp) {
		t.Errorf("ExpiresAt() = %v, want %v", h.ExpiresAt(), exp)
	}
	if id, _ := a.AccountID(context.Background(), h); id != "P-77" {
		t.Errorf("AccountID() = %q", id)
	}

	bad := testHandle(models.VendorPatterson, srv)
	err := a.Login(context.Background(), bad, models.Credentials{Username: "buyer", Password: "wrong"})
	wantKind(t, err, models.KindAuthentication)
	if bad.State() != session.Anonymous {
		t.Errorf("State() = %v after failed login", bad.State())
	}
}

func TestPatterson_SearchProducts(t *testing.T) {
	srv := vendorServer(t, map[string]http.HandlerFunc{
		"GET /Supplies/api/search/products": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"TotalRecords":5,"Products":[
{"PublicItemNumber":"071-0211","ItemDescription":"Cotton Rolls #2","ManufacturerItemNumber":"CR2","UnitPrice":7.5,"ProductUrl":"/Supplies/ItemDetail/071-0211","IsAvailable":true},
{"PublicItemNumber":"071-0999","ItemDescription":"Discontinued","UnitPrice":null}]}`))
		},
	})
	a := NewPatterson(testConfig(models.VendorPatterson, srv.URL), testDeps())

	page, err := a.SearchProducts(context.Background(), testHandle(models.VendorPatterson, srv), "cotton", 1)
	if err != nil {
		t.Fatalf("SearchProducts() error = %v", err)
	}
	if len(page.Products) != 1 || page.TotalCount != 5 || !page.HasNext {
		t.Fatalf("page = %+v", page)
	}
	p := page.Products[0]
	if !p.Price.Equal(decimal.RequireFromString("7.50")) || p.URL != srv.URL+"/Supplies/ItemDetail/071-0211" {
		t.Errorf("product = %+v", p)
	}
}

func TestPatterson_SessionExpired(t *testing.T) {
	srv := vendorServer(t, map[string]http.HandlerFunc{
		"DELETE /Supplies/api/cart": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		},
	})
	a := NewPatterson(testConfig(models.VendorPatterson, srv.URL), testDeps())
	h := loggedIn(testHandle(models.VendorPatterson, srv))

	err := a.ClearCart(context.Background(), h)
	wantKind(t, err, models.KindAuthentication)
}

func TestPatterson_GetOrders(t *testing.T) {
	srv := vendorServer(t, map[string]http.HandlerFunc{
		"GET /Supplies/api/orders": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("fromDate") != "2026-01-01" {
				t.Errorf("fromDate = %q", r.URL.Query().Get("fromDate"))
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"TotalPages":1,"Orders":[
{"OrderNumber":"P1","OrderDate":"2026-02-03T10:00:00","Status":"Invoiced","OrderTotal":15,
 "ShipTo":{"Name":"Smile","Address1":"1 Main","City":"Austin","State":"TX","Zip":"78701"},
 "Lines":[{"ItemNumber":"071-0211","Quantity":2,"UnitPrice":7.5,"Status":"Shipped"}]},
{"OrderNumber":"P0","OrderDate":"2026-01-15","Status":"Open","Lines":[{"ItemNumber":"x","Quantity":1,"UnitPrice":null}]}]}`))
		},
	})
	a := NewPatterson(testConfig(models.VendorPatterson, srv.URL), testDeps())
	h := loggedIn(testHandle(models.VendorPatterson, srv))

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orders, err := a.GetOrders(context.Background(), h, models.OrderQuery{Since: since})
	if err != nil {
		t.Fatalf("GetOrders() error = %v", err)
	}
	if len(orders) != 1 || orders[0].VendorOrderID != "P1" {
		t.Fatalf("orders = %+v", orders)
	}
	if orders[0].Status != models.OrderStatusShipped || orders[0].ShippingAddress.PostalCode != "78701" {
		t.Errorf("order = %+v", orders[0])
	}
}
