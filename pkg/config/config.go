// Package config contains the definition of the application config structure
// and the logic required to load it from the environment and flags.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"

	"github.com/ticketbridge/ticketbridge/pkg/ticket"
)

// envPrefix namespaces the environment variables, e.g.
// TICKETBRIDGE_AUTHORITY_URL.
const envPrefix = "TICKETBRIDGE"

// Config represents the configuration of the application.
type Config struct {
	// AuthorityURL is the base URL of the remote authority.
	AuthorityURL string

	// AppID and AppKey form the long-lived app credential; AppAlgorithm is
	// the MAC algorithm the authority registered for it.
	AppID        string
	AppKey       string
	AppAlgorithm string

	// RequestTimeout bounds every authority request.
	RequestTimeout time.Duration

	// TicketBuffer is the renewal safety margin before app ticket expiry.
	TicketBuffer time.Duration

	// RetryInterval is the fixed delay between failed acquisition attempts.
	RetryInterval time.Duration

	// AllowAssertions, AllowVouchers and AllowBearer select the accepted
	// inbound credential kinds; SignRSVP signs the voucher exchange.
	AllowAssertions bool
	AllowVouchers   bool
	AllowBearer     bool
	SignRSVP        bool

	// RedisAddr switches the session slot store to Redis when non-empty.
	RedisAddr     string
	RedisPassword string

	// Address is the listen address of the serve command.
	Address string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_algorithm", "sha256")
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("ticket_buffer", 10*time.Second)
	v.SetDefault("retry_interval", 5*time.Minute)
	v.SetDefault("allow_assertions", true)
	v.SetDefault("allow_vouchers", true)
	v.SetDefault("allow_bearer", true)
	v.SetDefault("sign_rsvp", false)
	v.SetDefault("address", ":8080")
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		AuthorityURL:    v.GetString("authority_url"),
		AppID:           v.GetString("app_id"),
		AppKey:          v.GetString("app_key"),
		AppAlgorithm:    v.GetString("app_algorithm"),
		RequestTimeout:  v.GetDuration("request_timeout"),
		TicketBuffer:    v.GetDuration("ticket_buffer"),
		RetryInterval:   v.GetDuration("retry_interval"),
		AllowAssertions: v.GetBool("allow_assertions"),
		AllowVouchers:   v.GetBool("allow_vouchers"),
		AllowBearer:     v.GetBool("allow_bearer"),
		SignRSVP:        v.GetBool("sign_rsvp"),
		RedisAddr:       v.GetString("redis_addr"),
		RedisPassword:   v.GetString("redis_password"),
		Address:         v.GetString("address"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for completeness.
func (c *Config) Validate() error {
	if c.AuthorityURL == "" {
		return fmt.Errorf("%s_AUTHORITY_URL is required", envPrefix)
	}
	parsed, err := url.Parse(c.AuthorityURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("%s_AUTHORITY_URL %q is not a valid http(s) URL", envPrefix, c.AuthorityURL)
	}
	if c.AppID == "" {
		return fmt.Errorf("%s_APP_ID is required", envPrefix)
	}
	if c.AppKey == "" {
		return fmt.Errorf("%s_APP_KEY is required", envPrefix)
	}
	if c.TicketBuffer <= 0 {
		return fmt.Errorf("ticket buffer must be positive")
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("retry interval must be positive")
	}
	return nil
}

// AppCredential returns the app credential described by the config.
func (c *Config) AppCredential() ticket.AppCredential {
	return ticket.AppCredential{
		ID:        c.AppID,
		Key:       c.AppKey,
		Algorithm: c.AppAlgorithm,
	}
}
