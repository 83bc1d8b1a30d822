package models

import "time"

// Credentials are the plaintext login values handed to an adapter at call time
type Credentials struct {
	Username  string
	Password  string
	AccountID string
}

// VendorCredential links one office to one vendor account
type VendorCredential struct {
	ID           string     `json:"id"`
	OfficeID     string     `json:"officeId"`
	Vendor       VendorSlug `json:"vendor"`
	Username     string     `json:"username"`
	Password     string     `json:"-"`
	AccountID    string     `json:"accountId,omitempty"`
	LoginSuccess bool       `json:"loginSuccess"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Credentials returns the plaintext login values
func (c *VendorCredential) Credentials() Credentials {
	return Credentials{
		Username:  c.Username,
		Password:  c.Password,
		AccountID: c.AccountID,
	}
}
