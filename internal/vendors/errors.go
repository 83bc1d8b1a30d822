package vendors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/johnrirwin/ordo/internal/models"
)

// statusError is an HTTP response the vendor answered with an error status
type statusError struct {
	Code int
	URL  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.Code)
}

func errTranslation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", models.ErrTranslation, fmt.Sprintf(format, args...))
}

func errAuth(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", models.ErrAuthenticationFailed, fmt.Sprintf(format, args...))
}

// classify maps any error raised inside an adapter onto the vendor error
// taxonomy. Nothing else crosses the adapter boundary.
func classify(vendor models.VendorSlug, op string, err error) error {
	if err == nil {
		return nil
	}

	var ve *models.VendorError
	if errors.As(err, &ve) {
		return err
	}

	kind := models.KindUnknown
	var se *statusError
	var netErr net.Error

	switch {
	case errors.Is(err, models.ErrVendorNotSupported):
		kind = models.KindNotSupported
	case errors.Is(err, models.ErrAuthenticationFailed):
		kind = models.KindAuthentication
	case errors.Is(err, models.ErrTranslation):
		kind = models.KindTranslation
	case errors.Is(err, models.ErrNetworkConnection):
		kind = models.KindNetwork
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = models.KindNetwork
	case errors.As(err, &se):
		kind = kindForStatus(se.Code)
	case errors.As(err, &netErr):
		kind = models.KindNetwork
	}

	return models.NewVendorError(vendor, kind, op, "", err)
}

func kindForStatus(code int) models.ErrorKind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return models.KindAuthentication
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return models.KindNetwork
	case code == http.StatusNotFound, code == http.StatusUnprocessableEntity:
		return models.KindTranslation
	default:
		return models.KindUnknown
	}
}
