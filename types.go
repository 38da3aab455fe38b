package authgate

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/authgate/internal/audit"
	internalmetrics "github.com/MrEthical07/authgate/internal/metrics"
	"github.com/rs/zerolog"
)

// Account is the persistence-layer record this core reads. Only the password
// hash and the verified flag are ever written back, through [AccountStore].
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Verified     bool
	CreatedAt    time.Time
}

// CreateAccountInput is passed to [AccountStore.Create] during signup.
// PasswordHash is always a digest; the raw secret never crosses this boundary.
type CreateAccountInput struct {
	Email        string
	PasswordHash string
}

// AccountStore is the record-store contract the surrounding persistence layer
// must implement. Schema details are its concern; this core treats it as a
// key-value lookup keyed by email.
//
// Implementations must return [ErrAccountNotFound] for unknown identities and
// [ErrAccountExists] from Create on duplicates (wrapping is fine). Any other
// failure is treated as [ErrStorageUnavailable].
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (Account, error)
	Create(ctx context.Context, input CreateAccountInput) (Account, error)
	MarkVerified(ctx context.Context, email string) error
	UpdatePasswordHash(ctx context.Context, email string, newHash string) error
}

// Mailer is the outbound mail collaborator. The engine supplies a rendered
// payload and destination; delivery guarantees (retry, bounces) are the
// collaborator's concern.
type Mailer interface {
	Send(ctx context.Context, destination string, template string, payload map[string]string) error
}

// TokenPair is returned by Login and Refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// ZerologSink is an [AuditSink] that logs events through a zerolog logger.
type ZerologSink = internalaudit.ZerologSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZerologSink creates a [ZerologSink] that logs through logger.
func NewZerologSink(logger zerolog.Logger) *ZerologSink {
	return internalaudit.NewZerologSink(logger)
}

// MetricID identifies a specific counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess           = internalmetrics.MetricLoginSuccess
	MetricLoginFailure           = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited       = internalmetrics.MetricLoginRateLimited
	MetricRefreshSuccess         = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure         = internalmetrics.MetricRefreshFailure
	MetricRefreshReuseDetected   = internalmetrics.MetricRefreshReuseDetected
	MetricLogout                 = internalmetrics.MetricLogout
	MetricSignupSuccess          = internalmetrics.MetricSignupSuccess
	MetricSignupDuplicate        = internalmetrics.MetricSignupDuplicate
	MetricVerificationRequested  = internalmetrics.MetricVerificationRequested
	MetricVerificationConfirmed  = internalmetrics.MetricVerificationConfirmed
	MetricVerificationReplay     = internalmetrics.MetricVerificationReplay
	MetricRateLimitHit           = internalmetrics.MetricRateLimitHit
	MetricAccessValidateSuccess  = internalmetrics.MetricAccessValidateSuccess
	MetricAccessValidateFailure  = internalmetrics.MetricAccessValidateFailure
)

// Metrics holds atomic counters for engine operations.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot
