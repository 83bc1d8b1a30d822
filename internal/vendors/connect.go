package vendors

import (
	"context"
	"fmt"

	"github.com/johnrirwin/ordo/internal/logging"
	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/session"
)

// CredentialSource is the part of credential storage a Connector needs.
// Get returns nil, nil when the office has not linked the vendor.
type CredentialSource interface {
	Get(ctx context.Context, officeID string, vendor models.VendorSlug) (*models.VendorCredential, error)
	MarkLoginResult(ctx context.Context, officeID string, vendor models.VendorSlug, success bool) error
}

// Connector hands out logged-in handles. It restores a saved session when it
// can and otherwise logs in with the office's stored credentials.
type Connector struct {
	sessions    *session.Manager
	credentials CredentialSource
	logger      *logging.Logger
}

// NewConnector creates a Connector
func NewConnector(sessions *session.Manager, credentials CredentialSource, logger *logging.Logger) *Connector {
	return &Connector{
		sessions:    sessions,
		credentials: credentials,
		logger:      logger,
	}
}

// Connect leases the handle for (officeID, adapter's vendor) and makes sure it
// is authenticated. An empty officeID leases an anonymous handle for public
// catalog calls. Every successful Connect must be paired with Release.
func (c *Connector) Connect(ctx context.Context, adapter Adapter, officeID string) (*session.Handle, error) {
	vendor := adapter.Vendor()
	h, err := c.sessions.Acquire(ctx, officeID, vendor)
	if err != nil {
		return nil, models.NewVendorError(vendor, models.KindNetwork, "connect", "session unavailable", err)
	}
	if officeID == "" || h.Authenticated() {
		return h, nil
	}

	if restored, err := c.sessions.Restore(ctx, h); err != nil {
		c.logger.Warn("Failed to restore vendor session", logging.WithFields(map[string]interface{}{
			"office": officeID,
			"vendor": vendor,
			"error":  err.Error(),
		}))
	} else if restored {
		return h, nil
	}

	if err := c.login(ctx, adapter, h); err != nil {
		c.sessions.Release(h)
		return nil, err
	}
	return h, nil
}

func (c *Connector) login(ctx context.Context, adapter Adapter, h *session.Handle) error {
	vendor := adapter.Vendor()
	if c.credentials == nil {
		return models.NewVendorError(vendor, models.KindAuthentication, "login", "no credential store", nil)
	}
	cred, err := c.credentials.Get(ctx, h.OfficeID, vendor)
	if err != nil {
		return fmt.Errorf("load %s credentials for office %s: %w", vendor, h.OfficeID, err)
	}
	if cred == nil {
		return models.NewVendorError(vendor, models.KindAuthentication, "login", "no credentials linked", nil)
	}
	// A rejected credential stays unusable until the office relinks it
	if !cred.LoginSuccess {
		return models.NewVendorError(vendor, models.KindAuthentication, "login", "credential needs relink", nil)
	}

	err = adapter.Login(ctx, h, cred.Credentials())
	switch models.KindOf(err) {
	case "":
		c.markLogin(ctx, h, true)
		if err := c.sessions.Save(ctx, h, adapter.BaseURL()); err != nil {
			c.logger.Warn("Failed to save vendor session", logging.WithFields(map[string]interface{}{
				"office": h.OfficeID,
				"vendor": vendor,
				"error":  err.Error(),
			}))
		}
		return nil
	case models.KindAuthentication:
		c.markLogin(ctx, h, false)
	}
	return err
}

// Fail records an operation failure on a leased handle. Authentication
// failures drop the session and flag the credential so the office is asked
// to relink it; other kinds leave the session alone.
func (c *Connector) Fail(ctx context.Context, h *session.Handle, err error) {
	if h == nil || models.KindOf(err) != models.KindAuthentication {
		return
	}
	if invErr := c.sessions.Invalidate(ctx, h); invErr != nil {
		c.logger.Warn("Failed to drop vendor session", logging.WithFields(map[string]interface{}{
			"office": h.OfficeID,
			"vendor": h.Vendor,
			"error":  invErr.Error(),
		}))
	}
	if h.OfficeID != "" {
		c.markLogin(ctx, h, false)
	}
}

// Release returns a handle obtained from Connect
func (c *Connector) Release(h *session.Handle) {
	c.sessions.Release(h)
}

func (c *Connector) markLogin(ctx context.Context, h *session.Handle, success bool) {
	if c.credentials == nil {
		return
	}
	if err := c.credentials.MarkLoginResult(ctx, h.OfficeID, h.Vendor, success); err != nil {
		c.logger.Error("Failed to record login result", logging.WithFields(map[string]interface{}{
			"office":  h.OfficeID,
			"vendor":  h.Vendor,
			"success": success,
			"error":   err.Error(),
		}))
	}
}
