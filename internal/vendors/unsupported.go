package vendors

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/session"
)

// Unsupported stands in for vendors that are listed but have no integration.
// Every operation fails with models.ErrVendorNotSupported.
type Unsupported struct {
	base
}

// NewUnsupported creates the placeholder adapter for vendor
func NewUnsupported(vendor models.VendorSlug, cfg Config, deps Deps) *Unsupported {
	return &Unsupported{base: newBase(vendor, cfg, deps)}
}

func (u *Unsupported) err(op string) error {
	return models.NewVendorError(u.vendor, models.KindNotSupported, op, "vendor has no integration", nil)
}

func (u *Unsupported) Login(context.Context, *session.Handle, models.Credentials) error {
	return u.err("login")
}

func (u *Unsupported) SearchProducts(context.Context, *session.Handle, string, int) (*models.ProductPage, error) {
	return nil, u.err("search")
}

func (u *Unsupported) GetProductPrices(context.Context, *session.Handle, []string) (map[string]decimal.Decimal, error) {
	return nil, u.err("prices")
}

func (u *Unsupported) ClearCart(context.Context, *session.Handle) error {
	return u.err("clear cart")
}

func (u *Unsupported) AddToCart(context.Context, *session.Handle, []models.CartProduct) error {
	return u.err("add to cart")
}

func (u *Unsupported) Checkout(context.Context, *session.Handle, []models.CartProduct, CheckoutOptions) (*models.OrderConfirmation, error) {
	return nil, u.err("checkout")
}

func (u *Unsupported) GetOrders(context.Context, *session.Handle, models.OrderQuery) ([]models.VendorOrderInfo, error) {
	return nil, u.err("orders")
}

func (u *Unsupported) AccountID(context.Context, *session.Handle) (string, error) {
	return "", u.err("account id")
}

var _ Adapter = (*Unsupported)(nil)
