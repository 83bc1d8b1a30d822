// Package vendors contains one integration per supported dental supplier
// behind a common Adapter contract. Scrapers drive the vendor's website with
// goquery; API clients call the vendor's REST, RESTlet or GraphQL endpoints.
// Every adapter returns normalized models types and reports failures with
// the models error taxonomy.
package vendors

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/johnrirwin/ordo/internal/logging"
	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/ratelimit"
	"github.com/johnrirwin/ordo/internal/session"
)

// Adapter is the interface that all vendor integrations must implement.
// Calls on one handle must be made sequentially.
type Adapter interface {
	// Vendor returns the slug this adapter serves
	Vendor() models.VendorSlug

	// Name returns the display name of the vendor
	Name() string

	// BaseURL returns the vendor's website or API root
	BaseURL() string

	// Login authenticates the handle. It is a no-op on a handle that is
	// already authenticated.
	Login(ctx context.Context, h *session.Handle, creds models.Credentials) error

	// SearchProducts returns one page (1-based) of search results
	SearchProducts(ctx context.Context, h *session.Handle, query string, page int) (*models.ProductPage, error)

	// GetProductPrices returns current prices keyed by vendor product id.
	// Ids the vendor no longer lists are absent from the map.
	GetProductPrices(ctx context.Context, h *session.Handle, ids []string) (map[string]decimal.Decimal, error)

	// ClearCart empties the vendor-side cart
	ClearCart(ctx context.Context, h *session.Handle) error

	// AddToCart adds items to the vendor-side cart
	AddToCart(ctx context.Context, h *session.Handle, items []models.CartProduct) error

	// Checkout clears the vendor cart, fills it with items and places the
	// order, or only reviews it when opts.DryRun is set.
	Checkout(ctx context.Context, h *session.Handle, items []models.CartProduct, opts CheckoutOptions) (*models.OrderConfirmation, error)

	// GetOrders returns the order history inside q
	GetOrders(ctx context.Context, h *session.Handle, q models.OrderQuery) ([]models.VendorOrderInfo, error)

	// AccountID returns the vendor's customer/account number for the login
	AccountID(ctx context.Context, h *session.Handle) (string, error)
}

// CatalogFetcher is implemented by vendors that can list their entire
// catalog page by page.
type CatalogFetcher interface {
	// CatalogPageCount returns how many catalog pages exist
	CatalogPageCount(ctx context.Context, h *session.Handle) (int, error)

	// CatalogPage returns one page (1-based) of the catalog
	CatalogPage(ctx context.Context, h *session.Handle, page int) ([]models.Product, error)
}

// CheckoutOptions controls order placement
type CheckoutOptions struct {
	DryRun   bool
	PONumber string
}

// Deps are the collaborators shared by every adapter
type Deps struct {
	Limiter ratelimit.RateLimiter
	Logger  *logging.Logger
}

// NetSuiteConfig holds the token-based auth settings for a NetSuite RESTlet
type NetSuiteConfig struct {
	RestletURL     string
	Realm          string
	ConsumerKey    string
	ConsumerSecret string
	TokenID        string
	TokenSecret    string
	SearchScript   string
	OrderScript    string
	CustomerScript string
	Deploy         string
}

// Config holds per-vendor endpoints and API secrets
type Config struct {
	BaseURLs         map[models.VendorSlug]string
	PageSize         int
	CatalogPageSize  int
	DentalCityAPIKey string
	Net32FeedURL     string
	PattersonAuthURL string
	NetSuite         NetSuiteConfig
}

// DefaultConfig returns production endpoints
func DefaultConfig() Config {
	return Config{
		BaseURLs: map[models.VendorSlug]string{
			models.VendorHenrySchein: "https://www.henryschein.com",
			models.VendorNet32:       "https://www.net32.com",
			models.VendorDarby:       "https://www.darbydental.com",
			models.VendorPatterson:   "https://www.pattersondental.com",
			models.VendorBenco:       "https://shop.benco.com",
			models.VendorDentalCity:  "https://api.dentalcity.com",
			models.VendorDCDental:    "https://www.dcdental.com",
			models.VendorUltradent:   "https://www.ultradent.com",
			models.VendorEdgeEndo:    "https://shop.edgeendo.com",
			models.VendorAmazon:      "https://www.amazon.com",
			models.VendorEbay:        "https://www.ebay.com",
		},
		PageSize:         24,
		CatalogPageSize:  500,
		Net32FeedURL:     "https://www.net32.com/feeds/searchspring_windfall/google_shopping.xml",
		PattersonAuthURL: "https://pattersonb2c.b2clogin.com/pattersonb2c.onmicrosoft.com",
		NetSuite: NetSuiteConfig{
			Deploy: "1",
		},
	}
}

func (c Config) baseURL(v models.VendorSlug) string {
	if u, ok := c.BaseURLs[v]; ok && u != "" {
		return u
	}
	return DefaultConfig().BaseURLs[v]
}

func (c Config) pageSize() int {
	if c.PageSize <= 0 {
		return 24
	}
	return c.PageSize
}

func (c Config) catalogPageSize() int {
	if c.CatalogPageSize <= 0 {
		return 500
	}
	return c.CatalogPageSize
}

// vendorDate parses the date formats vendors show in order histories
func vendorDate(s string) (time.Time, error) {
	s = models.NormalizeText(s)
	layouts := []string{
		"01/02/2006",
		"1/2/2006",
		"2006-01-02",
		time.RFC3339,
		"2006-01-02T15:04:05",
		"Jan 2, 2006",
		"January 2, 2006",
		"1/2/06",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errTranslation("unrecognized date %q", s)
}
