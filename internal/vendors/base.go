package vendors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/johnrirwin/ordo/internal/logging"
	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/ratelimit"
	"github.com/johnrirwin/ordo/internal/session"
	"github.com/johnrirwin/ordo/internal/transport"
)

const maxErrorBody = 4 << 10

// base carries what every adapter shares: identity, endpoints, the limiter
// and the logger. Adapters embed it.
type base struct {
	vendor   models.VendorSlug
	baseURL  string
	pageSize int
	limiter  ratelimit.RateLimiter
	logger   *logging.Logger
}

func newBase(vendor models.VendorSlug, cfg Config, deps Deps) base {
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.New(0)
	}
	return base{
		vendor:   vendor,
		baseURL:  strings.TrimRight(cfg.baseURL(vendor), "/"),
		pageSize: cfg.pageSize(),
		limiter:  limiter,
		logger:   deps.Logger,
	}
}

func (b *base) Vendor() models.VendorSlug {
	return b.vendor
}

func (b *base) Name() string {
	return models.VendorDisplayName(b.vendor)
}

func (b *base) BaseURL() string {
	return b.baseURL
}

func (b *base) fail(op string, err error) error {
	return classify(b.vendor, op, err)
}

// url joins path onto the base URL and encodes query
func (b *base) url(path string, query url.Values) string {
	u := b.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends req with the handle's client after waiting for the host's rate
// limit slot. Error statuses are returned as *statusError with the body
// drained.
func (b *base) do(ctx context.Context, h *session.Handle, req *http.Request) (*http.Response, error) {
	return b.doWith(ctx, h.Client(), req)
}

func (b *base) doWith(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	if err := b.limiter.WaitContext(ctx, req.URL.Host); err != nil {
		return nil, err
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", transport.DefaultUserAgent)
	}

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &statusError{Code: resp.StatusCode, URL: req.URL.Path}
	}
	return resp, nil
}

// getDocument fetches and parses an HTML page
func (b *base) getDocument(ctx context.Context, h *session.Handle, rawURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	return b.document(ctx, h, req)
}

// postForm submits an urlencoded form and parses the HTML response
func (b *base) postForm(ctx context.Context, h *session.Handle, rawURL string, form url.Values) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	return b.document(ctx, h, req)
}

// postFormJSON submits an urlencoded form and decodes a JSON response
func (b *base) postFormJSON(ctx context.Context, h *session.Handle, rawURL string, form url.Values, header http.Header, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := b.do(ctx, h, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return errTranslation("failed to decode %s: %v", req.URL.Path, err)
	}
	return nil
}

func (b *base) document(ctx context.Context, h *session.Handle, req *http.Request) (*goquery.Document, error) {
	resp, err := b.do(ctx, h, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errTranslation("failed to parse %s: %v", req.URL.Path, err)
	}
	// Relative links resolve against the page that was actually served
	doc.Url = resp.Request.URL
	return doc, nil
}

// sendJSON issues a JSON request and decodes the JSON response into dst.
// body and dst may be nil.
func (b *base) sendJSON(ctx context.Context, h *session.Handle, method, rawURL string, header http.Header, body, dst interface{}) error {
	return b.sendJSONWith(ctx, h.Client(), method, rawURL, header, body, dst)
}

func (b *base) sendJSONWith(ctx context.Context, client *http.Client, method, rawURL string, header http.Header, body, dst interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.doWith(ctx, client, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if dst == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return errTranslation("failed to decode %s: %v", req.URL.Path, err)
	}
	return nil
}

// keep validates a translated product, logging and dropping it on failure
func (b *base) keep(p *models.Product) bool {
	p.Vendor = b.vendor
	p.Name = models.NormalizeText(p.Name)
	p.Description = models.NormalizeText(p.Description)
	if err := p.Validate(); err != nil {
		b.dropped("product", p.ProductID, err)
		return false
	}
	return true
}

// dropped logs a vendor record that could not be translated
func (b *base) dropped(kind, id string, err error) {
	b.logger.Warn("Dropping untranslatable "+kind, logging.WithFields(map[string]interface{}{
		"vendor": b.vendor,
		"id":     id,
		"error":  err.Error(),
	}))
}

// keepOrder validates a translated order the same way
func (b *base) keepOrder(o *models.VendorOrderInfo) bool {
	o.Vendor = b.vendor
	if err := o.Validate(); err != nil {
		b.dropped("order", o.VendorOrderID, err)
		return false
	}
	return true
}

// requireLogin fails with an authentication error on an anonymous handle
func (b *base) requireLogin(h *session.Handle) error {
	if !h.Authenticated() {
		return errAuth("%s session is not logged in", b.vendor)
	}
	return nil
}

// confirmation builds an OrderConfirmation from cart items
func (b *base) confirmation(items []models.CartProduct, orderID string, reported string, dryRun bool) *models.OrderConfirmation {
	conf := &models.OrderConfirmation{
		Vendor:        b.vendor,
		VendorOrderID: orderID,
		Items:         cartToOrderItems(items),
		DryRun:        dryRun,
		PlacedAt:      time.Now().UTC(),
	}
	if total, err := models.ParsePrice(reported); err == nil {
		conf.ReportedTotal = total
	}
	return conf
}

func cartToOrderItems(items []models.CartProduct) []models.VendorOrderProduct {
	out := make([]models.VendorOrderProduct, 0, len(items))
	for _, item := range items {
		out = append(out, models.VendorOrderProduct{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Status:    models.OrderStatusOpen,
		})
	}
	return out
}
