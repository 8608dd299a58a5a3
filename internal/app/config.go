package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/metagear/storefront/internal/domain/pricing"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for relative product image paths" flag:"image-base-url"`
	Redis        RedisConfig
	Auth         AuthConfig
	Pricing      PricingConfig
	Cart         CartConfig
	Checkout     CheckoutConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// RedisConfig selects the session state backend. Without a URL carts,
// notices and revocations are kept in process memory.
type RedisConfig struct {
	URL string `usage:"Redis connection URL (STOREFRONT_REDIS_URL or REDIS_URL)" flag:"redis-url"`
}

// AuthConfig controls bearer token verification.
type AuthConfig struct {
	Secret   string        `usage:"HS256 secret shared with the identity provider" flag:"auth-secret"`
	Issuer   string        `default:"" usage:"Expected token issuer"`
	Audience string        `default:"" usage:"Expected token audience"`
	Leeway   time.Duration `default:"30s" usage:"Allowed clock skew for token times"`
}

// PricingConfig holds decimal strings for the checkout pricing policy.
type PricingConfig struct {
	FreeShippingThreshold string `default:"50000" usage:"Subtotal above which shipping is free"`
	FlatShippingFee       string `default:"250" usage:"Shipping fee below the threshold"`
	TaxRate               string `default:"0.12" usage:"Tax rate applied to the subtotal"`
}

// CartConfig controls cart persistence.
type CartConfig struct {
	TTL time.Duration `default:"168h" usage:"Idle lifetime of a stored cart" flag:"cart-ttl"`
}

// CheckoutConfig controls order submission.
type CheckoutConfig struct {
	Compensate bool `default:"true" usage:"Delete the order header when its items cannot be stored"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, flags and YAML
// config files, then applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT onto the
// STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.URL == "" {
		c.Redis.URL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	}
	if c.Auth.Secret == "" {
		return errors.New("auth secret is required: set STOREFRONT_AUTH_SECRET")
	}
	if _, err := c.Pricing.Policy(); err != nil {
		return err
	}
	return nil
}

// Policy parses the configured pricing policy.
func (p PricingConfig) Policy() (pricing.Policy, error) {
	threshold, err := decimal.NewFromString(p.FreeShippingThreshold)
	if err != nil {
		return pricing.Policy{}, errors.Wrap(err, "free shipping threshold")
	}
	fee, err := decimal.NewFromString(p.FlatShippingFee)
	if err != nil {
		return pricing.Policy{}, errors.Wrap(err, "flat shipping fee")
	}
	rate, err := decimal.NewFromString(p.TaxRate)
	if err != nil {
		return pricing.Policy{}, errors.Wrap(err, "tax rate")
	}

	policy := pricing.Policy{
		FreeShippingThreshold: threshold,
		FlatShippingFee:       fee,
		TaxRate:               rate,
	}
	if err := policy.Validate(); err != nil {
		return pricing.Policy{}, errors.Wrap(err, "pricing policy")
	}
	return policy, nil
}
