package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/johnrirwin/ordo/internal/cache"
	"github.com/johnrirwin/ordo/internal/checkout"
	"github.com/johnrirwin/ordo/internal/config"
	"github.com/johnrirwin/ordo/internal/crypto"
	"github.com/johnrirwin/ordo/internal/database"
	"github.com/johnrirwin/ordo/internal/events"
	"github.com/johnrirwin/ordo/internal/httpapi"
	"github.com/johnrirwin/ordo/internal/jobs"
	"github.com/johnrirwin/ordo/internal/logging"
	"github.com/johnrirwin/ordo/internal/metrics"
	"github.com/johnrirwin/ordo/internal/models"
	"github.com/johnrirwin/ordo/internal/ratelimit"
	"github.com/johnrirwin/ordo/internal/session"
	"github.com/johnrirwin/ordo/internal/transport"
	"github.com/johnrirwin/ordo/internal/vendors"
)

// App holds all application dependencies
type App struct {
	Config      *config.Config
	Logger      *logging.Logger
	Metrics     *metrics.Registry
	Vendors     *vendors.Registry
	Sessions    *session.Manager
	Connector   *vendors.Connector
	Products    *database.ProductStore
	Credentials *database.CredentialStore
	Carts       *database.CartStore
	Orders      *database.OrderStore
	Checkout    *checkout.Service
	Events      events.Publisher
	HTTPServer  *httpapi.Server

	db          *database.DB
	redis       *redis.Client
	memoryCache *cache.MemoryCache
}

// New creates and initializes a new App instance
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	app.Logger = app.initLogger()
	app.Metrics = metrics.NewRegistry()

	if err := cfg.LoadVendorSecrets(ctx); err != nil {
		return nil, fmt.Errorf("load vendor secrets: %w", err)
	}

	sessionStore, limiter, tracker := app.initRedis(ctx)

	keyring, err := newKeyring(cfg.Crypto)
	if err != nil {
		return nil, fmt.Errorf("init keyring: %w", err)
	}

	if err := app.initDatabase(ctx, keyring); err != nil {
		app.Close()
		return nil, err
	}

	app.Vendors = vendors.NewDefaultRegistry(vendorConfig(cfg.Vendors), vendors.Deps{
		Limiter: limiter,
		Logger:  app.Logger,
	})
	app.Logger.Info("Registered vendor adapters", logging.WithField("count", len(app.Vendors.List())))

	app.Sessions = session.NewManager(clientFactory(cfg.Vendors.RequestTimeout), sessionStore, cfg.Cache.SessionTTL, app.Logger)
	app.Connector = vendors.NewConnector(app.Sessions, app.Credentials, app.Logger)

	app.Events = app.initEvents()

	app.Checkout = checkout.NewService(checkout.Deps{
		Vendors:   app.Vendors,
		Connector: app.Connector,
		Carts:     app.Carts,
		Orders:    app.Orders,
		Tracker:   tracker,
		Events:    app.Events,
		Metrics:   app.Metrics,
		Logger:    app.Logger,
	}, checkout.Config{Timeout: cfg.Checkout.Timeout})

	app.HTTPServer = httpapi.New(httpapi.Options{
		Checkout:    app.Checkout,
		Carts:       app.Carts,
		Credentials: app.Credentials,
		Orders:      app.Orders,
		Vendors:     app.Vendors,
		Metrics:     app.Metrics.Handler(),
		Logger:      app.Logger,
	})

	return app, nil
}

// Run serves HTTP until the server stops
func (a *App) Run(ctx context.Context) error {
	a.Logger.Info("Starting HTTP server", logging.WithField("addr", a.Config.Server.HTTPAddr))
	err := a.HTTPServer.Start(a.Config.Server.HTTPAddr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error("HTTP server shutdown error", logging.WithField("error", err.Error()))
		}
	}
	a.Close()
	return nil
}

// Close releases connections. Safe to call on a partly built App.
func (a *App) Close() {
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			a.Logger.Error("Event publisher close error", logging.WithField("error", err.Error()))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Error("Database close error", logging.WithField("error", err.Error()))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.memoryCache != nil {
		a.memoryCache.Stop()
	}
}

// JobDeps builds the collaborators shared by the reconciliation jobs
func (a *App) JobDeps() jobs.Deps {
	return jobs.Deps{
		Vendors:   a.Vendors,
		Connector: a.Connector,
		Products:  a.Products,
		Orders:    a.Orders,
		Offices:   a.Credentials,
		Metrics:   a.Metrics,
		Logger:    a.Logger,
	}
}

// JobConfig maps configuration onto the job settings
func (a *App) JobConfig() jobs.Config {
	c := a.Config.Jobs
	return jobs.Config{
		BatchSize:     c.BatchSize,
		MaxAge:        c.MaxPriceAge,
		Concurrency:   c.Concurrency,
		OfficeID:      c.OfficeID,
		OrderLookback: c.OrderLookback,
		OrderMaxPages: c.OrderMaxPages,
	}
}

func (a *App) initLogger() *logging.Logger {
	level := logging.LevelInfo
	switch a.Config.Logging.Level {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	return logging.New(level)
}

// initRedis picks the session store, rate limiter and checkout tracker. All
// three share one Redis connection when the redis backend is configured and
// reachable, and fall back to in-process versions otherwise.
func (a *App) initRedis(ctx context.Context) (cache.Cache, ratelimit.RateLimiter, checkout.ProgressTracker) {
	cfg := a.Config
	if cfg.Cache.Backend == "redis" {
		a.Logger.Info("Using Redis backend", logging.WithField("addr", cfg.Cache.RedisAddr))
		client, err := cache.NewRedisClient(ctx, cache.RedisConfig{Addr: cfg.Cache.RedisAddr})
		if err == nil {
			a.redis = client
			return cache.NewRedis(client, "ordo:session:", cfg.Cache.SessionTTL),
				ratelimit.NewRedis(client, "ordo:ratelimit:", cfg.Server.RateLimitDur),
				checkout.NewRedisTracker(client, "ordo:checkout:", cfg.Checkout.LockTTL)
		}
		a.Logger.Error("Failed to connect to Redis, falling back to memory", logging.WithField("error", err.Error()))
	} else {
		a.Logger.Info("Using in-memory session backend")
	}

	a.memoryCache = cache.NewMemory(cfg.Cache.SessionTTL)
	return a.memoryCache, ratelimit.New(cfg.Server.RateLimitDur), checkout.NewMemoryTracker()
}

func (a *App) initDatabase(ctx context.Context, keyring *crypto.Keyring) error {
	db, err := database.New(database.Config{
		Host:            a.Config.Database.Host,
		Port:            a.Config.Database.Port,
		User:            a.Config.Database.User,
		Password:        a.Config.Database.Password,
		Database:        a.Config.Database.Database,
		SSLMode:         a.Config.Database.SSLMode,
		MaxOpenConns:    database.DefaultConfig().MaxOpenConns,
		MaxIdleConns:    database.DefaultConfig().MaxIdleConns,
		ConnMaxLifetime: database.DefaultConfig().ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	a.db = db
	a.Logger.Info("Connected to PostgreSQL")

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	a.Products = database.NewProductStore(db)
	a.Credentials = database.NewCredentialStore(db, keyring, a.Logger)
	a.Carts = database.NewCartStore(db)
	a.Orders = database.NewOrderStore(db)
	return nil
}

func (a *App) initEvents() events.Publisher {
	if a.Config.Events.AMQPURL == "" {
		return events.Noop{}
	}
	publisher, err := events.NewRabbitPublisher(events.Config{
		URL:      a.Config.Events.AMQPURL,
		Exchange: a.Config.Events.Exchange,
	}, a.Logger)
	if err != nil {
		a.Logger.Error("Failed to connect to RabbitMQ, order events disabled", logging.WithField("error", err.Error()))
		return events.Noop{}
	}
	a.Logger.Info("Publishing order events", logging.WithField("exchange", a.Config.Events.Exchange))
	return publisher
}

func newKeyring(cfg config.CryptoConfig) (*crypto.Keyring, error) {
	if cfg.Keys == "" {
		return crypto.NewSingleKey(cfg.Key)
	}
	keys, err := crypto.ParseKeys(cfg.Keys)
	if err != nil {
		return nil, err
	}
	return crypto.NewKeyring(cfg.Primary, keys)
}

func vendorConfig(c config.VendorsConfig) vendors.Config {
	vc := vendors.DefaultConfig()
	if c.PageSize > 0 {
		vc.PageSize = c.PageSize
	}
	if c.CatalogPageSize > 0 {
		vc.CatalogPageSize = c.CatalogPageSize
	}
	if c.Net32FeedURL != "" {
		vc.Net32FeedURL = c.Net32FeedURL
	}
	vc.DentalCityAPIKey = c.DentalCityAPIKey
	vc.NetSuite.RestletURL = c.NetSuite.RestletURL
	vc.NetSuite.Realm = c.NetSuite.Realm
	vc.NetSuite.ConsumerKey = c.NetSuite.ConsumerKey
	vc.NetSuite.ConsumerSecret = c.NetSuite.ConsumerSecret
	vc.NetSuite.TokenID = c.NetSuite.TokenID
	vc.NetSuite.TokenSecret = c.NetSuite.TokenSecret
	vc.NetSuite.SearchScript = c.NetSuite.SearchScript
	vc.NetSuite.OrderScript = c.NetSuite.OrderScript
	vc.NetSuite.CustomerScript = c.NetSuite.CustomerScript
	if c.NetSuite.Deploy != "" {
		vc.NetSuite.Deploy = c.NetSuite.Deploy
	}
	return vc
}

// apiVendors talk to JSON or XML endpoints and do not need a browser fingerprint
var apiVendors = map[models.VendorSlug]bool{
	models.VendorNet32:      true,
	models.VendorDentalCity: true,
	models.VendorDCDental:   true,
}

// clientFactory gives scraped vendors the Chrome TLS transport and API
// vendors a plain one. Clients are built once and shared across sessions.
func clientFactory(timeout time.Duration) session.ClientFactory {
	chrome := transport.NewClient(transport.Options{Timeout: timeout, Chrome: true})
	plain := transport.NewClient(transport.Options{Timeout: timeout})
	return func(vendor models.VendorSlug) *http.Client {
		if apiVendors[vendor] {
			return plain
		}
		return chrome
	}
}

// ParseVendor resolves a command line vendor name
func ParseVendor(s string) (models.VendorSlug, error) {
	slug := models.VendorSlug(strings.ToLower(strings.TrimSpace(s)))
	if !slug.IsKnown() {
		return "", fmt.Errorf("%w: unknown vendor %q", models.ErrInvalidInput, s)
	}
	return slug, nil
}
