package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every vendor adapter and the code that drives
// them. Use errors.Is() to check against these.
var (
	ErrVendorNotSupported   = errors.New("vendor not supported")
	ErrAuthenticationFailed = errors.New("vendor authentication failed")
	ErrNetworkConnection    = errors.New("vendor network connection failed")
	ErrTranslation          = errors.New("vendor data could not be translated")
	ErrOrderInProgress      = errors.New("order already in progress")

	// ErrInvalidInput is returned by stores and handlers for malformed requests
	ErrInvalidInput = errors.New("invalid input")
)

// ErrorKind is the caller-visible classification of a vendor failure
type ErrorKind string

const (
	KindNotSupported    ErrorKind = "vendor_not_supported"
	KindAuthentication  ErrorKind = "authentication_failed"
	KindNetwork         ErrorKind = "network_connection"
	KindTranslation     ErrorKind = "translation_error"
	KindOrderInProgress ErrorKind = "order_in_progress"
	KindUnknown         ErrorKind = "unknown"
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNotSupported:
		return ErrVendorNotSupported
	case KindAuthentication:
		return ErrAuthenticationFailed
	case KindNetwork:
		return ErrNetworkConnection
	case KindTranslation:
		return ErrTranslation
	case KindOrderInProgress:
		return ErrOrderInProgress
	default:
		return nil
	}
}

// Retryable reports whether a later scheduled run may succeed
func (k ErrorKind) Retryable() bool {
	return k == KindNetwork || k == KindOrderInProgress
}

// VendorError is a failure attributed to one vendor. It unwraps to both the
// kind's sentinel and the underlying cause.
type VendorError struct {
	Vendor  VendorSlug
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *VendorError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	prefix := string(e.Vendor)
	if e.Op != "" {
		prefix += " " + e.Op
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

func (e *VendorError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewVendorError builds a VendorError of the given kind
func NewVendorError(vendor VendorSlug, kind ErrorKind, op, message string, err error) *VendorError {
	return &VendorError{Vendor: vendor, Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf returns the classification of err, or KindUnknown
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ve *VendorError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	switch {
	case errors.Is(err, ErrVendorNotSupported):
		return KindNotSupported
	case errors.Is(err, ErrAuthenticationFailed):
		return KindAuthentication
	case errors.Is(err, ErrNetworkConnection):
		return KindNetwork
	case errors.Is(err, ErrTranslation):
		return KindTranslation
	case errors.Is(err, ErrOrderInProgress):
		return KindOrderInProgress
	default:
		return KindUnknown
	}
}
