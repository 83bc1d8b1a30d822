package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Cache    CacheConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Crypto   CryptoConfig
	Vendors  VendorsConfig
	Jobs     JobsConfig
	Checkout CheckoutConfig
	Events   EventsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr     string
	RateLimitDur time.Duration // minimum gap between requests to one vendor host
}

// CacheConfig holds the session store configuration
type CacheConfig struct {
	Backend    string // "memory" or "redis"
	SessionTTL time.Duration
	RedisAddr  string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// CryptoConfig holds the keys used to seal vendor passwords at rest.
// Keys is "id=base64key,id=base64key" and Primary names the key new values
// are sealed with. Key is the single raw 32-byte key used when Keys is empty.
type CryptoConfig struct {
	Keys    string
	Primary string
	Key     []byte
}

// VendorsConfig holds adapter settings and API secrets
type VendorsConfig struct {
	RequestTimeout   time.Duration
	PageSize         int
	CatalogPageSize  int
	DentalCityAPIKey string
	Net32FeedURL     string
	NetSuite         NetSuiteSecrets
	// SecretsProject enables loading the secrets above from GCP Secret Manager
	SecretsProject string
	SecretName     string
}

// NetSuiteSecrets are the DC Dental token-based auth credentials and the
// RESTlet script/deploy ids each call is routed by
type NetSuiteSecrets struct {
	RestletURL     string `json:"restletUrl"`
	Realm          string `json:"realm"`
	ConsumerKey    string `json:"consumerKey"`
	ConsumerSecret string `json:"consumerSecret"`
	TokenID        string `json:"tokenId"`
	TokenSecret    string `json:"tokenSecret"`
	SearchScript   string `json:"searchScript"`
	OrderScript    string `json:"orderScript"`
	CustomerScript string `json:"customerScript"`
	Deploy         string `json:"deploy"`
}

// JobsConfig tunes the reconciliation jobs
type JobsConfig struct {
	BatchSize     int
	MaxPriceAge   time.Duration
	Concurrency   int
	OfficeID      string // office whose login catalog and price jobs use
	OrderLookback time.Duration
	OrderMaxPages int
}

// CheckoutConfig tunes the checkout orchestrator
type CheckoutConfig struct {
	Timeout time.Duration
	LockTTL time.Duration
}

// EventsConfig holds the broker settings. An empty URL disables publishing.
type EventsConfig struct {
	AMQPURL  string
	Exchange string
}

// Load reads .env, parses flags and applies environment overrides
func Load() *Config {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	cfg := &Config{}

	httpAddr := flag.String("http", ":8080", "HTTP server address")
	cacheBackend := flag.String("cache-backend", "memory", "Session store backend: memory or redis")
	sessionTTL := flag.Duration("session-ttl", 12*time.Hour, "How long saved vendor sessions are kept")
	redisAddr := flag.String("redis-addr", "localhost:6379", "Redis server address")
	rateLimitDur := flag.Duration("rate-limit", time.Second, "Minimum delay between requests to same host")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	dbHost := flag.String("db-host", "localhost", "PostgreSQL host")
	dbPort := flag.Int("db-port", 5432, "PostgreSQL port")
	dbUser := flag.String("db-user", "postgres", "PostgreSQL user")
	dbPassword := flag.String("db-password", "postgres", "PostgreSQL password")
	dbName := flag.String("db-name", "ordo", "PostgreSQL database name")
	dbSSLMode := flag.String("db-sslmode", "disable", "PostgreSQL SSL mode")

	flag.Parse()

	applyEnvOverrides(httpAddr, cacheBackend, sessionTTL, redisAddr, rateLimitDur, logLevel, dbHost, dbPort, dbUser, dbPassword, dbName, dbSSLMode)

	cfg.Server = ServerConfig{
		HTTPAddr:     *httpAddr,
		RateLimitDur: *rateLimitDur,
	}

	cfg.Cache = CacheConfig{
		Backend:    *cacheBackend,
		SessionTTL: *sessionTTL,
		RedisAddr:  *redisAddr,
	}

	cfg.Database = DatabaseConfig{
		Host:     *dbHost,
		Port:     *dbPort,
		User:     *dbUser,
		Password: *dbPassword,
		Database: *dbName,
		SSLMode:  *dbSSLMode,
	}

	cfg.Logging = LoggingConfig{
		Level: *logLevel,
	}

	cfg.Crypto = loadCryptoConfig()
	cfg.Vendors = loadVendorsConfig()
	cfg.Jobs = loadJobsConfig()
	cfg.Checkout = CheckoutConfig{
		Timeout: envDuration("CHECKOUT_TIMEOUT", 90*time.Second),
		LockTTL: envDuration("CHECKOUT_LOCK_TTL", 10*time.Minute),
	}
	cfg.Events = EventsConfig{
		AMQPURL:  os.Getenv("AMQP_URL"),
		Exchange: getEnvOrDefault("AMQP_EXCHANGE", "ordo.orders"),
	}

	return cfg
}

// loadCryptoConfig reads CREDENTIAL_KEYS for a rotating keyring, falling back
// to the single CREDENTIAL_ENCRYPTION_KEY.
func loadCryptoConfig() CryptoConfig {
	keys := strings.TrimSpace(os.Getenv("CREDENTIAL_KEYS"))
	primary := os.Getenv("CREDENTIAL_PRIMARY_KEY")
	if keys != "" && primary == "" {
		// The last listed key is the newest
		parts := strings.Split(keys, ",")
		primary, _, _ = strings.Cut(strings.TrimSpace(parts[len(parts)-1]), "=")
	}

	key := os.Getenv("CREDENTIAL_ENCRYPTION_KEY")
	if key == "" {
		// Development only, must be overridden in production
		key = "CHANGE-THIS-32-BYTE-KEY-IN-PROD!"
	}

	return CryptoConfig{Keys: keys, Primary: primary, Key: []byte(key)}
}

func loadVendorsConfig() VendorsConfig {
	return VendorsConfig{
		RequestTimeout:   envDuration("VENDOR_REQUEST_TIMEOUT", 90*time.Second),
		PageSize:         envInt("VENDOR_PAGE_SIZE", 24),
		CatalogPageSize:  envInt("VENDOR_CATALOG_PAGE_SIZE", 500),
		DentalCityAPIKey: os.Getenv("DENTALCITY_API_KEY"),
		Net32FeedURL:     os.Getenv("NET32_FEED_URL"),
		NetSuite: NetSuiteSecrets{
			RestletURL:     os.Getenv("NETSUITE_RESTLET_URL"),
			Realm:          os.Getenv("NETSUITE_REALM"),
			ConsumerKey:    os.Getenv("NETSUITE_CONSUMER_KEY"),
			ConsumerSecret: os.Getenv("NETSUITE_CONSUMER_SECRET"),
			TokenID:        os.Getenv("NETSUITE_TOKEN_ID"),
			TokenSecret:    os.Getenv("NETSUITE_TOKEN_SECRET"),
			SearchScript:   os.Getenv("NETSUITE_SEARCH_SCRIPT"),
			OrderScript:    os.Getenv("NETSUITE_ORDER_SCRIPT"),
			CustomerScript: os.Getenv("NETSUITE_CUSTOMER_SCRIPT"),
			Deploy:         os.Getenv("NETSUITE_DEPLOY"),
		},
		SecretsProject: os.Getenv("VENDOR_SECRETS_GCP_PROJECT"),
		SecretName:     getEnvOrDefault("VENDOR_SECRETS_NAME", "ordo-vendor-secrets"),
	}
}

func loadJobsConfig() JobsConfig {
	return JobsConfig{
		BatchSize:     envInt("JOBS_BATCH_SIZE", 500),
		MaxPriceAge:   envDuration("JOBS_MAX_PRICE_AGE", 24*time.Hour),
		Concurrency:   envInt("JOBS_CONCURRENCY", 4),
		OfficeID:      os.Getenv("JOBS_OFFICE_ID"),
		OrderLookback: envDuration("JOBS_ORDER_LOOKBACK", 90*24*time.Hour),
		OrderMaxPages: envInt("JOBS_ORDER_MAX_PAGES", 10),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func envDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func applyEnvOverrides(
	httpAddr *string,
	cacheBackend *string,
	sessionTTL *time.Duration,
	redisAddr *string,
	rateLimitDur *time.Duration,
	logLevel *string,
	dbHost *string,
	dbPort *int,
	dbUser *string,
	dbPassword *string,
	dbName *string,
	dbSSLMode *string,
) {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		*httpAddr = v
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		*cacheBackend = v
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*sessionTTL = d
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		*redisAddr = v
	}
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*rateLimitDur = d
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		*logLevel = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		*dbHost = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			*dbPort = p
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		*dbUser = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		*dbPassword = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		*dbName = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		*dbSSLMode = v
	}
}
