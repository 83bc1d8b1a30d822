package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product is the vendor-agnostic product record all adapters translate into
type Product struct {
	Vendor             VendorSlug      `json:"vendor"`
	ProductID          string          `json:"productId"`
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	URL                string          `json:"url,omitempty"`
	Images             []string        `json:"images,omitempty"`
	Price              decimal.Decimal `json:"price"`
	ManufacturerNumber string          `json:"manufacturerNumber,omitempty"`
	Category           string          `json:"category,omitempty"`
	Available          bool            `json:"available"`
	LastPriceUpdated   *time.Time      `json:"lastPriceUpdated,omitempty"`
}

// Validate checks the fields every translated product must carry. Adapters
// drop records that fail rather than zero-filling them.
func (p *Product) Validate() error {
	var missing []string
	if strings.TrimSpace(p.ProductID) == "" {
		missing = append(missing, "productId")
	}
	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "name")
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: negative price for %q", ErrTranslation, p.ProductID)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrTranslation, strings.Join(missing, ", "))
	}
	return nil
}

// ProductPage is one page of a vendor product search
type ProductPage struct {
	Products   []Product `json:"products"`
	Page       int       `json:"page"`
	TotalCount int       `json:"totalCount"`
	HasNext    bool      `json:"hasNext"`
}

// CartProduct is one line of an office's shared cart
type CartProduct struct {
	ID        string          `json:"id"`
	OfficeID  string          `json:"officeId"`
	Vendor    VendorSlug      `json:"vendor"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Subtotal returns quantity * unit price
func (c CartProduct) Subtotal() decimal.Decimal {
	return c.UnitPrice.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

// GroupCartByVendor splits cart lines per vendor, preserving order
func GroupCartByVendor(items []CartProduct) map[VendorSlug][]CartProduct {
	grouped := make(map[VendorSlug][]CartProduct)
	for _, item := range items {
		grouped[item.Vendor] = append(grouped[item.Vendor], item)
	}
	return grouped
}

// LocalProduct is the locally mirrored state of one vendor product used by
// reconciliation jobs
type LocalProduct struct {
	ProductID        string          `json:"productId"`
	Price            decimal.Decimal `json:"price"`
	Available        bool            `json:"available"`
	LastPriceUpdated *time.Time      `json:"lastPriceUpdated,omitempty"`
}

// PriceUpdate is a single price write produced by a price refresh
type PriceUpdate struct {
	ProductID string          `json:"productId"`
	Price     decimal.Decimal `json:"price"`
}
