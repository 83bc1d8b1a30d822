package config

import (
	"flag"
	"io"
	"os"
	"testing"
	"time"
)

func loadWithArgs(t *testing.T, args ...string) *Config {
	t.Helper()

	if len(args) == 0 {
		args = []string{"test"}
	}

	oldCommandLine := flag.CommandLine
	oldArgs := os.Args

	flag.CommandLine = flag.NewFlagSet(args[0], flag.ContinueOnError)
	flag.CommandLine.SetOutput(io.Discard)
	os.Args = args

	t.Cleanup(func() {
		flag.CommandLine = oldCommandLine
		os.Args = oldArgs
	})

	return Load()
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadWithArgs(t, "test")

	if cfg.Checkout.Timeout != 90*time.Second {
		t.Errorf("Checkout.Timeout = %v, want 90s", cfg.Checkout.Timeout)
	}
	if cfg.Jobs.BatchSize != 500 || cfg.Jobs.MaxPriceAge != 24*time.Hour {
		t.Errorf("Jobs = %+v", cfg.Jobs)
	}
	if len(cfg.Crypto.Key) != 32 {
		t.Errorf("default key is %d bytes, want 32", len(cfg.Crypto.Key))
	}
	if cfg.Events.Exchange != "ordo.orders" {
		t.Errorf("Events.Exchange = %q", cfg.Events.Exchange)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("JOBS_BATCH_SIZE", "50")
	t.Setenv("JOBS_MAX_PRICE_AGE", "6h")
	t.Setenv("CHECKOUT_TIMEOUT", "30s")
	t.Setenv("JOBS_CONCURRENCY", "not-a-number")

	cfg := loadWithArgs(t, "test")
	if cfg.Server.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Jobs.BatchSize != 50 || cfg.Jobs.MaxPriceAge != 6*time.Hour {
		t.Errorf("Jobs = %+v", cfg.Jobs)
	}
	if cfg.Checkout.Timeout != 30*time.Second {
		t.Errorf("Checkout.Timeout = %v", cfg.Checkout.Timeout)
	}
	if cfg.Jobs.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want default for unparseable value", cfg.Jobs.Concurrency)
	}
}

func TestLoad_FlagThenEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	cfg := loadWithArgs(t, "test", "-log-level", "debug", "-session-ttl", "1h")
	if cfg.Logging.Level != "debug" || cfg.Cache.SessionTTL != time.Hour {
		t.Errorf("Logging = %+v, Cache = %+v", cfg.Logging, cfg.Cache)
	}

	t.Setenv("LOG_LEVEL", "warn")
	cfg = loadWithArgs(t, "test", "-log-level", "debug")
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, env must override flag", cfg.Logging.Level)
	}
}

func TestLoad_CredentialKeys(t *testing.T) {
	t.Setenv("CREDENTIAL_KEYS", "k1=AAAA,k2=BBBB")
	t.Setenv("CREDENTIAL_PRIMARY_KEY", "")
	cfg := loadWithArgs(t, "test")
	if cfg.Crypto.Primary != "k2" {
		t.Errorf("Primary = %q, want last listed key", cfg.Crypto.Primary)
	}

	t.Setenv("CREDENTIAL_PRIMARY_KEY", "k1")
	cfg = loadWithArgs(t, "test")
	if cfg.Crypto.Primary != "k1" {
		t.Errorf("Primary = %q, want k1", cfg.Crypto.Primary)
	}
}

func TestLoad_NetSuiteScripts(t *testing.T) {
	t.Setenv("NETSUITE_SEARCH_SCRIPT", "customscript_dc_search")
	t.Setenv("NETSUITE_ORDER_SCRIPT", "customscript_dc_order")
	t.Setenv("NETSUITE_CUSTOMER_SCRIPT", "customscript_dc_customer")
	t.Setenv("NETSUITE_DEPLOY", "3")

	ns := loadWithArgs(t, "test").Vendors.NetSuite
	if ns.SearchScript != "customscript_dc_search" ||
		ns.OrderScript != "customscript_dc_order" ||
		ns.CustomerScript != "customscript_dc_customer" ||
		ns.Deploy != "3" {
		t.Errorf("NetSuite = %+v", ns)
	}
}

func TestApplySecrets(t *testing.T) {
	v := VendorsConfig{DentalCityAPIKey: "from-env"}
	v.NetSuite.OrderScript = "901"
	payload := []byte(`{"dentalCityApiKey":"from-secret","netsuite":{"realm":"123","tokenId":"tok",` +
		`"searchScript":"customscript_search","orderScript":"777","customerScript":"customscript_customer","deploy":"2"}}`)

	if err := v.applySecrets(payload); err != nil {
		t.Fatalf("applySecrets() error = %v", err)
	}
	if v.DentalCityAPIKey != "from-env" {
		t.Errorf("DentalCityAPIKey = %q, environment must win", v.DentalCityAPIKey)
	}
	if v.NetSuite.Realm != "123" || v.NetSuite.TokenID != "tok" {
		t.Errorf("NetSuite = %+v", v.NetSuite)
	}
	ns := v.NetSuite
	if ns.SearchScript != "customscript_search" || ns.CustomerScript != "customscript_customer" || ns.Deploy != "2" {
		t.Errorf("NetSuite script ids = %+v", ns)
	}
	if ns.OrderScript != "901" {
		t.Errorf("OrderScript = %q, environment must win", ns.OrderScript)
	}

	if err := v.applySecrets([]byte("not json")); err == nil {
		t.Error("applySecrets() with bad JSON succeeded")
	}
}

func TestLoadVendorSecrets_Disabled(t *testing.T) {
	cfg := &Config{}
	if err := cfg.LoadVendorSecrets(t.Context()); err != nil {
		t.Errorf("LoadVendorSecrets() without a project error = %v", err)
	}
}
