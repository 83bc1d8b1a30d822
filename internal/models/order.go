package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a vendor order or one of its lines
type OrderStatus string

const (
	OrderStatusOpen       OrderStatus = "open"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusBackorder  OrderStatus = "backordered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusUnknown    OrderStatus = "unknown"
)

// NormalizeOrderStatus maps free-form vendor status text onto OrderStatus
func NormalizeOrderStatus(s string) OrderStatus {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return OrderStatusUnknown
	case strings.Contains(s, "cancel"):
		return OrderStatusCancelled
	case strings.Contains(s, "back"):
		return OrderStatusBackorder
	case strings.Contains(s, "deliver"):
		return OrderStatusDelivered
	case strings.Contains(s, "ship"), strings.Contains(s, "invoiced"), strings.Contains(s, "complete"), strings.Contains(s, "closed"):
		return OrderStatusShipped
	case strings.Contains(s, "process"), strings.Contains(s, "pending"), strings.Contains(s, "approval"):
		return OrderStatusProcessing
	case strings.Contains(s, "open"), strings.Contains(s, "new"), strings.Contains(s, "placed"), strings.Contains(s, "received"):
		return OrderStatusOpen
	default:
		return OrderStatusUnknown
	}
}

// ShippingAddress is a vendor-agnostic postal address
type ShippingAddress struct {
	Name       string `json:"name,omitempty"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country,omitempty"`
}

// IsZero reports whether no address was captured
func (a *ShippingAddress) IsZero() bool {
	return a == nil || (a.Address1 == "" && a.City == "" && a.PostalCode == "")
}

// VendorOrderProduct is one line item of a vendor order
type VendorOrderProduct struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Status    OrderStatus     `json:"status"`
}

// Subtotal returns quantity * unit price
func (p VendorOrderProduct) Subtotal() decimal.Decimal {
	return p.UnitPrice.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// SumItems returns the total of all line subtotals
func SumItems(items []VendorOrderProduct) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// VendorOrderInfo is an order as reported by a vendor's order history
type VendorOrderInfo struct {
	Vendor          VendorSlug           `json:"vendor"`
	VendorOrderID   string               `json:"vendorOrderId"`
	OrderDate       time.Time            `json:"orderDate"`
	Status          OrderStatus          `json:"status"`
	ReportedTotal   decimal.Decimal      `json:"reportedTotal"`
	Items           []VendorOrderProduct `json:"items"`
	ShippingAddress *ShippingAddress     `json:"shippingAddress,omitempty"`
	InvoiceURL      string               `json:"invoiceUrl,omitempty"`
}

// Validate checks the fields every translated order must carry
func (o *VendorOrderInfo) Validate() error {
	if strings.TrimSpace(o.VendorOrderID) == "" {
		return fmt.Errorf("%w: order missing vendor order id", ErrTranslation)
	}
	if o.OrderDate.IsZero() {
		return fmt.Errorf("%w: order %s missing date", ErrTranslation, o.VendorOrderID)
	}
	for _, item := range o.Items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return fmt.Errorf("%w: order %s has invalid line item", ErrTranslation, o.VendorOrderID)
		}
	}
	return nil
}

// OrderQuery bounds an order-history fetch
type OrderQuery struct {
	Since    time.Time
	MaxPages int
}

// Includes reports whether an order date falls inside the query window
func (q OrderQuery) Includes(t time.Time) bool {
	return q.Since.IsZero() || !t.Before(q.Since)
}

// OrderConfirmation is what a vendor returns after a checkout (or dry run)
type OrderConfirmation struct {
	Vendor          VendorSlug           `json:"vendor"`
	VendorOrderID   string               `json:"vendorOrderId,omitempty"`
	Items           []VendorOrderProduct `json:"items"`
	ReportedTotal   decimal.Decimal      `json:"reportedTotal"`
	ShippingAddress *ShippingAddress     `json:"shippingAddress,omitempty"`
	DryRun          bool                 `json:"dryRun"`
	PlacedAt        time.Time            `json:"placedAt"`
}

// VendorOrder is a persisted vendor order. TotalAmount always equals the sum
// of the line subtotals.
type VendorOrder struct {
	ID              string               `json:"id"`
	OrderID         string               `json:"orderId"`
	OfficeID        string               `json:"officeId"`
	Vendor          VendorSlug           `json:"vendor"`
	VendorOrderID   string               `json:"vendorOrderId"`
	OrderDate       time.Time            `json:"orderDate"`
	Status          OrderStatus          `json:"status"`
	TotalAmount     decimal.Decimal      `json:"totalAmount"`
	Items           []VendorOrderProduct `json:"items"`
	ShippingAddress *ShippingAddress     `json:"shippingAddress,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

// RecomputeTotal sets TotalAmount from the line items and returns it
func (o *VendorOrder) RecomputeTotal() decimal.Decimal {
	o.TotalAmount = SumItems(o.Items)
	return o.TotalAmount
}

// VendorOrderFromInfo builds a persistable order from a vendor history record
func VendorOrderFromInfo(officeID string, info VendorOrderInfo) VendorOrder {
	order := VendorOrder{
		OfficeID:        officeID,
		Vendor:          info.Vendor,
		VendorOrderID:   info.VendorOrderID,
		OrderDate:       info.OrderDate,
		Status:          info.Status,
		Items:           info.Items,
		ShippingAddress: info.ShippingAddress,
	}
	if order.Status == "" {
		order.Status = OrderStatusUnknown
	}
	order.RecomputeTotal()
	return order
}

// VendorOrderFromConfirmation builds a persistable order from a checkout
func VendorOrderFromConfirmation(officeID string, conf OrderConfirmation) VendorOrder {
	order := VendorOrder{
		OfficeID:        officeID,
		Vendor:          conf.Vendor,
		VendorOrderID:   conf.VendorOrderID,
		OrderDate:       conf.PlacedAt,
		Status:          OrderStatusOpen,
		Items:           conf.Items,
		ShippingAddress: conf.ShippingAddress,
	}
	order.RecomputeTotal()
	return order
}

// Order groups the vendor orders created by one checkout
type Order struct {
	ID           string          `json:"id"`
	OfficeID     string          `json:"officeId"`
	OrderDate    time.Time       `json:"orderDate"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	VendorOrders []VendorOrder   `json:"vendorOrders"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// RecomputeTotal recomputes every vendor order and the grand total
func (o *Order) RecomputeTotal() decimal.Decimal {
	total := decimal.Zero
	for i := range o.VendorOrders {
		total = total.Add(o.VendorOrders[i].RecomputeTotal())
	}
	o.TotalAmount = total
	return total
}
