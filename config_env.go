package authgate

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// FromEnv builds a [Config] from environment variables, loading a .env file
// first when one is present. Unset variables fall back to the same defaults
// applyDefaults would pick; only the signing key is strictly required and is
// checked later by Build.
//
// Per-class limiter rules use AUTHGATE_RL_<CLASS>_BUDGET and
// AUTHGATE_RL_<CLASS>_WINDOW pairs, e.g. AUTHGATE_RL_LOGIN_BUDGET=5 with
// AUTHGATE_RL_LOGIN_WINDOW=1m.
func FromEnv() Config {
	_ = godotenv.Load()

	cfg := Config{
		Token: TokenConfig{
			SigningMethod: envStr("AUTHGATE_SIGNING_METHOD", "hs256"),
			PrivateKey:    []byte(os.Getenv("AUTHGATE_SIGNING_KEY")),
			PublicKey:     []byte(os.Getenv("AUTHGATE_VERIFY_KEY")),
			Issuer:        envStr("AUTHGATE_ISSUER", "authgate"),
			AccessTTL:     envDur("AUTHGATE_ACCESS_TTL", 15*time.Minute),
			RefreshTTL:    envDur("AUTHGATE_REFRESH_TTL", 7*24*time.Hour),
			Leeway:        envDur("AUTHGATE_LEEWAY", 0),
		},
		Password: PasswordConfig{
			Memory:         uint32(envInt("AUTHGATE_ARGON2_MEMORY_KB", 64*1024)),
			Time:           uint32(envInt("AUTHGATE_ARGON2_TIME", 2)),
			Parallelism:    uint8(envInt("AUTHGATE_ARGON2_PARALLELISM", 2)),
			UpgradeOnLogin: envBool("AUTHGATE_PASSWORD_UPGRADE_ON_LOGIN", true),
		},
		Session: SessionConfig{
			RedisPrefix: envStr("AUTHGATE_SESSION_PREFIX", "ag:sess"),
		},
		RateLimit: RateLimitConfig{
			RedisPrefix: envStr("AUTHGATE_RL_PREFIX", "ag:rl"),
			Default: RateLimitRule{
				Budget: envInt("AUTHGATE_RL_DEFAULT_BUDGET", 60),
				Window: envDur("AUTHGATE_RL_DEFAULT_WINDOW", time.Minute),
			},
			Classes: envClasses(),
		},
		Verification: VerificationConfig{
			TTL:          envDur("AUTHGATE_VERIFICATION_TTL", 24*time.Hour),
			MailTemplate: envStr("AUTHGATE_VERIFICATION_TEMPLATE", "verify_email"),
		},
		Audit: AuditConfig{
			Enabled:    envBool("AUTHGATE_AUDIT_ENABLED", false),
			BufferSize: envInt("AUTHGATE_AUDIT_BUFFER", 256),
			DropIfFull: envBool("AUTHGATE_AUDIT_DROP_IF_FULL", true),
		},
		Metrics: MetricsConfig{
			Enabled: envBool("AUTHGATE_METRICS_ENABLED", true),
		},
	}

	return cfg
}

func envClasses() map[string]RateLimitRule {
	classes := map[string]RateLimitRule{}
	for _, entry := range os.Environ() {
		key, _, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, "AUTHGATE_RL_") || !strings.HasSuffix(key, "_BUDGET") {
			continue
		}
		class := strings.TrimSuffix(strings.TrimPrefix(key, "AUTHGATE_RL_"), "_BUDGET")
		if class == "DEFAULT" || class == "" {
			continue
		}
		budget := envInt(key, 0)
		window := envDur("AUTHGATE_RL_"+class+"_WINDOW", time.Minute)
		if budget > 0 {
			classes[strings.ToLower(class)] = RateLimitRule{Budget: budget, Window: window}
		}
	}
	if len(classes) == 0 {
		return nil
	}
	return classes
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
