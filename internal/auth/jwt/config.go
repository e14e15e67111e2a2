package jwt

import (
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"

	"github.com/vyrodovalexey/edgegw/internal/config"
)

// ClaimNames names the claims that carry the principal fields.
type ClaimNames struct {
	Subject string
	Role    string
	Name    string
	Email   string
}

// DefaultClaimNames returns the claim names used by the user service.
func DefaultClaimNames() ClaimNames {
	return ClaimNames{Subject: "userId", Role: "role", Name: "name", Email: "email"}
}

// Config holds verification settings.
type Config struct {
	Secret    []byte
	Algorithm string
	ClockSkew time.Duration
	Claims    ClaimNames
}

// ConfigFrom builds a Config from the gateway auth section.
func ConfigFrom(cfg *config.AuthConfig) *Config {
	names := DefaultClaimNames()
	if cfg.Claims.Subject != "" {
		names.Subject = cfg.Claims.Subject
	}
	if cfg.Claims.Role != "" {
		names.Role = cfg.Claims.Role
	}
	if cfg.Claims.Name != "" {
		names.Name = cfg.Claims.Name
	}
	if cfg.Claims.Email != "" {
		names.Email = cfg.Claims.Email
	}
	return &Config{
		Secret:    []byte(cfg.JWTSecret),
		Algorithm: cfg.Algorithm,
		ClockSkew: cfg.ClockSkew.Duration(),
		Claims:    names,
	}
}

var supportedAlgorithms = map[string]jwa.SignatureAlgorithm{
	"HS256": jwa.HS256,
	"HS384": jwa.HS384,
	"HS512": jwa.HS512,
}

func (c *Config) signatureAlgorithm() (jwa.SignatureAlgorithm, error) {
	name := strings.ToUpper(c.Algorithm)
	if name == "" {
		name = "HS256"
	}
	alg, ok := supportedAlgorithms[name]
	if !ok {
		return "", fmt.Errorf("unsupported algorithm %q", c.Algorithm)
	}
	return alg, nil
}

func (c *Config) validate() error {
	if len(c.Secret) == 0 {
		return fmt.Errorf("secret is required")
	}
	if c.ClockSkew < 0 {
		return fmt.Errorf("clock skew must not be negative")
	}
	if c.Claims.Subject == "" || c.Claims.Role == "" {
		return fmt.Errorf("subject and role claim names are required")
	}
	_, err := c.signatureAlgorithm()
	return err
}

type options struct {
	now func() time.Time
}

// Option configures a Verifier or Signer.
type Option func(*options)

// WithClock overrides the time source used for expiry checks and issuance.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
