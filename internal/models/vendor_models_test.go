package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "$1,234.50", want: "1234.5"},
		{in: "  12 ", want: "12"},
		{in: "USD 7.999 / box", want: "8"},
		{in: "Price: $0.45 each", want: "0.45"},
		{in: "", wantErr: true},
		{in: "Call for price", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePrice(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrTranslation) {
					t.Fatalf("ParsePrice(%q) error = %v, want ErrTranslation", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePrice(%q) unexpected error: %v", tt.in, err)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParsePrice(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseQuantity(t *testing.T) {
	if got, err := ParseQuantity("Qty: 12"); err != nil || got != 12 {
		t.Errorf("ParseQuantity(Qty: 12) = %d, %v", got, err)
	}
	if _, err := ParseQuantity("1.5"); err == nil {
		t.Error("ParseQuantity(1.5) should fail")
	}
}

func TestNormalizeText(t *testing.T) {
	got := NormalizeText("  Cavit  G\n  Temporary   Filling ")
	if got != "Cavit G Temporary Filling" {
		t.Errorf("NormalizeText() = %q", got)
	}

	if got := NormalizeText("Re\u0301servoir"); got != "R\u00e9servoir" {
		t.Errorf("NormalizeText() did not compose accents: %q", got)
	}
}

func TestProduct_Validate(t *testing.T) {
	valid := Product{ProductID: "123", Name: "Gloves", Price: decimal.NewFromInt(5)}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}

	missing := Product{Name: "Gloves"}
	if err := missing.Validate(); !errors.Is(err, ErrTranslation) {
		t.Errorf("Validate() without id = %v, want ErrTranslation", err)
	}

	negative := Product{ProductID: "1", Name: "x", Price: decimal.NewFromInt(-1)}
	if err := negative.Validate(); !errors.Is(err, ErrTranslation) {
		t.Errorf("Validate() with negative price = %v, want ErrTranslation", err)
	}
}

func TestVendorOrder_TotalMatchesLineItems(t *testing.T) {
	info := VendorOrderInfo{
		Vendor:        VendorBenco,
		VendorOrderID: "SO-1",
		OrderDate:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ReportedTotal: decimal.RequireFromString("999.99"),
		Items: []VendorOrderProduct{
			{ProductID: "A", Quantity: 3, UnitPrice: decimal.RequireFromString("10.25")},
			{ProductID: "B", Quantity: 1, UnitPrice: decimal.RequireFromString("4.50")},
		},
	}

	order := VendorOrderFromInfo("office-1", info)

	want := decimal.RequireFromString("35.25")
	if !order.TotalAmount.Equal(want) {
		t.Errorf("TotalAmount = %s, want %s", order.TotalAmount, want)
	}
	if !order.TotalAmount.Equal(SumItems(order.Items)) {
		t.Error("TotalAmount must equal the sum of line subtotals")
	}
	if order.Status != OrderStatusUnknown {
		t.Errorf("Status = %q, want unknown for empty vendor status", order.Status)
	}
}

func TestOrder_RecomputeTotal(t *testing.T) {
	order := Order{
		VendorOrders: []VendorOrder{
			{Items: []VendorOrderProduct{{ProductID: "A", Quantity: 2, UnitPrice: decimal.NewFromInt(3)}}},
			{Items: []VendorOrderProduct{{ProductID: "B", Quantity: 1, UnitPrice: decimal.NewFromInt(4)}}},
		},
	}
	if got := order.RecomputeTotal(); !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("RecomputeTotal() = %s, want 10", got)
	}
	if !order.VendorOrders[0].TotalAmount.Equal(decimal.NewFromInt(6)) {
		t.Errorf("vendor order total = %s, want 6", order.VendorOrders[0].TotalAmount)
	}
}

func TestVendorOrderInfo_Validate(t *testing.T) {
	ok := VendorOrderInfo{VendorOrderID: "1", OrderDate: time.Now(), Items: []VendorOrderProduct{{ProductID: "A", Quantity: 1}}}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
	noDate := VendorOrderInfo{VendorOrderID: "1"}
	if err := noDate.Validate(); !errors.Is(err, ErrTranslation) {
		t.Errorf("Validate() without date = %v, want ErrTranslation", err)
	}
	badLine := VendorOrderInfo{VendorOrderID: "1", OrderDate: time.Now(), Items: []VendorOrderProduct{{ProductID: "A"}}}
	if err := badLine.Validate(); !errors.Is(err, ErrTranslation) {
		t.Errorf("Validate() with zero quantity = %v, want ErrTranslation", err)
	}
}

func TestNormalizeOrderStatus(t *testing.T) {
	tests := map[string]OrderStatus{
		"Shipped":           OrderStatusShipped,
		"Partially Shipped": OrderStatusShipped,
		"Invoiced":          OrderStatusShipped,
		"Back Ordered":      OrderStatusBackorder,
		"Cancelled":         OrderStatusCancelled,
		"Pending Approval":  OrderStatusProcessing,
		"Order Placed":      OrderStatusOpen,
		"":                  OrderStatusUnknown,
		"???":               OrderStatusUnknown,
	}
	for in, want := range tests {
		if got := NormalizeOrderStatus(in); got != want {
			t.Errorf("NormalizeOrderStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVendorError_Is(t *testing.T) {
	cause := fmt.Errorf("status 403")
	err := NewVendorError(VendorBenco, KindAuthentication, "login", "bad password", cause)

	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Error("VendorError should match its kind sentinel")
	}
	if !errors.Is(err, cause) {
		t.Error("VendorError should unwrap to its cause")
	}
	if errors.Is(err, ErrNetworkConnection) {
		t.Error("VendorError should not match other sentinels")
	}

	wrapped := fmt.Errorf("checkout: %w", err)
	if got := KindOf(wrapped); got != KindAuthentication {
		t.Errorf("KindOf(wrapped) = %q, want %q", got, KindAuthentication)
	}
	if got := KindOf(fmt.Errorf("boom")); got != KindUnknown {
		t.Errorf("KindOf(plain) = %q, want unknown", got)
	}
	if got := KindOf(fmt.Errorf("x: %w", ErrOrderInProgress)); got != KindOrderInProgress {
		t.Errorf("KindOf(sentinel) = %q, want order_in_progress", got)
	}
}

func TestVendorSlug(t *testing.T) {
	if !VendorBenco.IsIntegrated() {
		t.Error("benco should be integrated")
	}
	if VendorAmazon.IsIntegrated() {
		t.Error("amazon should not be integrated")
	}
	if !VendorAmazon.IsKnown() {
		t.Error("amazon should be known")
	}
	if VendorSlug("sears").IsKnown() {
		t.Error("sears should not be known")
	}
	if VendorDisplayName(VendorDCDental) != "DC Dental" {
		t.Errorf("VendorDisplayName(dcdental) = %q", VendorDisplayName(VendorDCDental))
	}
}

func TestGroupCartByVendor(t *testing.T) {
	items := []CartProduct{
		{ID: "1", Vendor: VendorBenco},
		{ID: "2", Vendor: VendorNet32},
		{ID: "3", Vendor: VendorBenco},
	}
	grouped := GroupCartByVendor(items)
	if len(grouped[VendorBenco]) != 2 || grouped[VendorBenco][1].ID != "3" {
		t.Errorf("benco group = %+v", grouped[VendorBenco])
	}
	if len(grouped[VendorNet32]) != 1 {
		t.Errorf("net32 group = %+v", grouped[VendorNet32])
	}
}
