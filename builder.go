package authgate

import (
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/authgate/internal/audit"
	internalmetrics "github.com/MrEthical07/authgate/internal/metrics"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/internal/stores"
	"github.com/MrEthical07/authgate/password"
	"github.com/MrEthical07/authgate/session"
	"github.com/MrEthical07/authgate/token"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an [Engine]. Configure it during initialization, call
// Build once, and treat the result as immutable.
type Builder struct {
	config Config

	redis    redis.UniversalClient
	accounts AccountStore
	mailer   Mailer

	auditSink AuditSink
	logger    *zerolog.Logger
	now       func() time.Time

	built bool
}

// New returns a [Builder] with zero-value configuration. Build applies
// defaults for anything left unset.
func New() *Builder {
	return &Builder{}
}

// WithConfig replaces the whole configuration set.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis supplies the Redis client shared by the session store, the
// rate limiter, and the consumed-ticket store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore supplies the persistence collaborator.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithMailer supplies the outbound mail collaborator. Optional: without it
// the verification-request and signup-mail paths are disabled.
func (b *Builder) WithMailer(mailer Mailer) *Builder {
	b.mailer = mailer
	return b
}

// WithAuditSink supplies the audit event consumer. Only consulted when
// Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger supplies the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithClock injects the time source. Tests use this to step token expiry
// deterministically; production leaves it unset.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration, constructs every internal collaborator,
// and wires the flow dependency sets. A Builder can build at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}

	cfg := b.config
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}

	codec, err := token.NewCodec(token.Config{
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cfg.Token.PrivateKey,
		PublicKey:     cfg.Token.PublicKey,
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.New(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	limiterClasses := make(map[string]rate.Rule, len(cfg.RateLimit.Classes))
	for class, rule := range cfg.RateLimit.Classes {
		limiterClasses[class] = rate.Rule{Budget: rule.Budget, Window: rule.Window}
	}

	engine := &Engine{
		cfg:      cfg,
		accounts: b.accounts,
		mailer:   b.mailer,
		codec:    codec,
		hasher:   hasher,
		sessions: session.NewStore(b.redis, cfg.Session.RedisPrefix),
		tickets:  stores.NewConsumedTicketStore(b.redis, cfg.Verification.RedisPrefix),
		limiter: rate.New(b.redis, rate.Config{
			Prefix: cfg.RateLimit.RedisPrefix,
			Default: rate.Rule{
				Budget: cfg.RateLimit.Default.Budget,
				Window: cfg.RateLimit.Default.Window,
			},
			Classes: limiterClasses,
		}),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: internalmetrics.New(cfg.Metrics.Enabled),
		logger:  logger,
		now:     now,
	}
	engine.wireFlows()

	b.built = true
	return engine, nil
}
