package vendors

import (
	"context"
	"errors"
	"testing"

	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/session"
)

func TestNewDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry(DefaultConfig(), testDeps())

	adapters := r.List()
	slugs := models.AllVendorSlugs()
	if len(adapters) != len(slugs) {
		t.Fatalf("List() returned %d adapters, want %d", len(adapters), len(slugs))
	}
	for i, a := range adapters {
		if a.Vendor() != slugs[i] {
			t.Errorf("List()[%d] = %q, want %q", i, a.Vendor(), slugs[i])
		}
		if a.BaseURL() == "" {
			t.Errorf("%s has no base URL", a.Vendor())
		}
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewDefaultRegistry(DefaultConfig(), testDeps())

	_, err := r.Get("sirona")
	if !errors.Is(err, models.ErrVendorNotSupported) {
		t.Errorf("Get(unknown) error = %v, want ErrVendorNotSupported", err)
	}
}

func TestRegistry_Unsupported(t *testing.T) {
	r := NewDefaultRegistry(DefaultConfig(), testDeps())

	a, err := r.Get(models.VendorAmazon)
	if err != nil {
		t.Fatalf("Get(amazon) error = %v", err)
	}
	h := session.NewHandle("office-1", models.VendorAmazon, nil)
	ctx := context.Background()

	checks := map[string]error{
		"login": a.Login(ctx, h, models.Credentials{Username: "u", Password: "p"}),
		"clear": a.ClearCart(ctx, h),
		"add":   a.AddToCart(ctx, h, nil),
	}
	_, checks["search"] = a.SearchProducts(ctx, h, "gloves", 1)
	_, checks["prices"] = a.GetProductPrices(ctx, h, []string{"1"})
	_, checks["checkout"] = a.Checkout(ctx, h, nil, CheckoutOptions{})
	_, checks["orders"] = a.GetOrders(ctx, h, models.OrderQuery{})
	_, checks["account"] = a.AccountID(ctx, h)

	for op, err := range checks {
		if !errors.Is(err, models.ErrVendorNotSupported) {
			t.Errorf("%s error = %v, want ErrVendorNotSupported", op, err)
		}
	}
}

func TestRegistry_VendorInfo(t *testing.T) {
	r := NewDefaultRegistry(DefaultConfig(), testDeps())

	for _, info := range r.VendorInfo() {
		if info.Integrated != info.Slug.IsIntegrated() {
			t.Errorf("%s Integrated = %v, want %v", info.Slug, info.Integrated, info.Slug.IsIntegrated())
		}
		if info.Name == "" || info.URL == "" {
			t.Errorf("%s missing name or URL: %+v", info.Slug, info)
		}
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry()
	r.Register(NewUnsupported(models.VendorDarby, DefaultConfig(), testDeps()))
	darby := NewDarby(DefaultConfig(), testDeps())
	r.Register(darby)

	got, err := r.Get(models.VendorDarby)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != Adapter(darby) {
		t.Error("Register() should replace the previous adapter")
	}
	if len(r.List()) != 1 {
		t.Errorf("List() len = %d, want 1", len(r.List()))
	}
}
