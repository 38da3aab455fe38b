package authgate

import (
	"errors"
	"time"
)

// Config carries every externally supplied knob of the core. Nothing here is
// hardcoded at use sites; Build validates the whole set once and the engine
// treats it as immutable afterwards.
type Config struct {
	Token        TokenConfig
	Password     PasswordConfig
	Session      SessionConfig
	RateLimit    RateLimitConfig
	Verification VerificationConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures the token codec. SigningMethod is "hs256" or
// "ed25519". Keys are process-wide configuration; rotation is an operational
// procedure, not something this core performs.
type TokenConfig struct {
	SigningMethod string
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries the argon2id cost parameters. Memory is in KB.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// UpgradeOnLogin re-hashes the credential after a successful login when
	// the stored digest was produced with weaker parameters.
	UpgradeOnLogin bool
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the refresh-session store key namespace.
type SessionConfig struct {
	RedisPrefix string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitRule is a request budget per fixed window for one route class.
type RateLimitRule struct {
	Budget int
	Window time.Duration
}

// RateLimitConfig configures the admission-control limiter. Classes maps a
// route class name (e.g. "login", "api") to its rule; unknown classes fall
// back to Default.
type RateLimitConfig struct {
	RedisPrefix string
	Default     RateLimitRule
	Classes     map[string]RateLimitRule
}

// Rule resolves the budget for a route class.
func (c RateLimitConfig) Rule(class string) RateLimitRule {
	if rule, ok := c.Classes[class]; ok {
		return rule
	}
	return c.Default
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig controls email-verification tickets.
type VerificationConfig struct {
	TTL         time.Duration
	RedisPrefix string
	// MailTemplate names the template handed to the mail collaborator.
	MailTemplate string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

func (c *Config) applyDefaults() {
	if c.Token.SigningMethod == "" {
		c.Token.SigningMethod = "hs256"
	}
	if c.Token.AccessTTL <= 0 {
		c.Token.AccessTTL = 15 * time.Minute
	}
	if c.Token.RefreshTTL <= 0 {
		c.Token.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.Token.Issuer == "" {
		c.Token.Issuer = "authgate"
	}

	if c.Password.Memory == 0 {
		c.Password.Memory = 64 * 1024
	}
	if c.Password.Time == 0 {
		c.Password.Time = 2
	}
	if c.Password.Parallelism == 0 {
		c.Password.Parallelism = 2
	}
	if c.Password.SaltLength == 0 {
		c.Password.SaltLength = 16
	}
	if c.Password.KeyLength == 0 {
		c.Password.KeyLength = 32
	}

	if c.Session.RedisPrefix == "" {
		c.Session.RedisPrefix = "ag:sess"
	}

	if c.RateLimit.RedisPrefix == "" {
		c.RateLimit.RedisPrefix = "ag:rl"
	}
	if c.RateLimit.Default.Budget <= 0 {
		c.RateLimit.Default.Budget = 60
	}
	if c.RateLimit.Default.Window <= 0 {
		c.RateLimit.Default.Window = time.Minute
	}

	if c.Verification.TTL <= 0 {
		c.Verification.TTL = 24 * time.Hour
	}
	if c.Verification.RedisPrefix == "" {
		c.Verification.RedisPrefix = "ag:evc"
	}
	if c.Verification.MailTemplate == "" {
		c.Verification.MailTemplate = "verify_email"
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		c.Audit.BufferSize = 256
	}
}

func (c *Config) validate() error {
	switch c.Token.SigningMethod {
	case "hs256":
		if len(c.Token.PrivateKey) < 32 {
			return errors.New("hs256 requires a signing key of at least 32 bytes")
		}
	case "ed25519":
		if len(c.Token.PrivateKey) == 0 || len(c.Token.PublicKey) == 0 {
			return errors.New("ed25519 requires both private and public keys")
		}
	default:
		return errors.New("unsupported signing method")
	}

	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("invalid leeway configuration")
	}

	for class, rule := range c.RateLimit.Classes {
		if rule.Budget <= 0 || rule.Window <= 0 {
			return errors.New("invalid rate limit rule for class " + class)
		}
	}

	return nil
}
