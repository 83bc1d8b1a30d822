package vendors

import (
	"context"
	"net/url"

	"github.com/johnrirwin/ordo/internal/logging"
	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/session"
)

// loginFlow is one vendor's implementation of the scraper login sequence.
// runLogin moves the handle through the states between the steps.
type loginFlow struct {
	// prepare loads the login page and returns the fields (anti-forgery
	// token, hidden inputs, transaction ids) the credential post needs.
	prepare func(ctx context.Context) (url.Values, error)

	// submit posts the credentials with the prepared fields
	submit func(ctx context.Context, fields url.Values) error

	// verify optionally confirms the session works after submit
	verify func(ctx context.Context) error
}

// runLogin drives h from Anonymous to Authenticated. An already authenticated
// handle is left untouched so a repeated login cannot disturb a cart that is
// being filled. Any failure resets the handle.
func (b *base) runLogin(ctx context.Context, h *session.Handle, creds models.Credentials, flow loginFlow) (err error) {
	if h.Authenticated() {
		return nil
	}
	if creds.Username == "" || creds.Password == "" {
		return b.fail("login", errAuth("missing username or password"))
	}

	defer func() {
		if err != nil {
			h.Reset()
			b.logger.Warn("Vendor login failed", logging.WithFields(map[string]interface{}{
				"vendor": b.vendor,
				"office": h.OfficeID,
				"error":  err.Error(),
			}))
		}
	}()

	h.Reset()
	h.Advance(session.AwaitingCSRFToken)
	fields, err := flow.prepare(ctx)
	if err != nil {
		return b.fail("login", err)
	}

	h.Advance(session.SubmittingCredentials)
	if err := flow.submit(ctx, fields); err != nil {
		return b.fail("login", err)
	}

	if flow.verify != nil {
		if err := flow.verify(ctx); err != nil {
			return b.fail("login", err)
		}
	}

	h.Advance(session.Authenticated)
	b.logger.Info("Vendor login succeeded", logging.WithFields(map[string]interface{}{
		"vendor": b.vendor,
		"office": h.OfficeID,
	}))
	return nil
}

// apiLogin is the login path for API clients: there is no anti-forgery
// step, only a credential exchange.
func (b *base) apiLogin(ctx context.Context, h *session.Handle, creds models.Credentials, exchange func(ctx context.Context) error) error {
	if h.Authenticated() {
		return nil
	}
	if creds.Username == "" && creds.AccountID == "" {
		return b.fail("login", errAuth("missing credentials"))
	}

	h.Reset()
	h.Advance(session.SubmittingCredentials)
	if err := exchange(ctx); err != nil {
		h.Reset()
		b.logger.Warn("Vendor login failed", logging.WithFields(map[string]interface{}{
			"vendor": b.vendor,
			"office": h.OfficeID,
			"error":  err.Error(),
		}))
		return b.fail("login", err)
	}
	h.Advance(session.Authenticated)
	return nil
}
