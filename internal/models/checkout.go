package models

import "time"

// CheckoutStatus tracks a checkout per (office, vendor) pair
type CheckoutStatus string

const (
	CheckoutNotStarted CheckoutStatus = "NOT_STARTED"
	CheckoutInProgress CheckoutStatus = "IN_PROGRESS"
	CheckoutComplete   CheckoutStatus = "COMPLETE"
)

// CheckoutProgress is the status of one (office, vendor) pair
type CheckoutProgress struct {
	OfficeID  string         `json:"officeId"`
	Vendor    VendorSlug     `json:"vendor"`
	Status    CheckoutStatus `json:"status"`
	UpdatedAt time.Time      `json:"updatedAt"`
}
