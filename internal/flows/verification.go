package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/authgate/internal/metrics"
)

// VerificationEvents carries audit event names used by the verification flow.
type VerificationEvents struct {
	Requested string
	Confirmed string
	Replay    string
}

// VerificationErrors carries host-level sentinel errors used by the
// verification flow.
type VerificationErrors struct {
	EngineNotReady  error
	AccountNotFound error
	AlreadyVerified error
	AlreadyConsumed error
}

// VerificationDeps captures email-verification dependencies.
type VerificationDeps struct {
	ClientIPFromContext func(context.Context) string

	GetAccountByEmail func(ctx context.Context, email string) (AccountRecord, error)

	// IssueTicket signs a single-use verification ticket bound to the email.
	IssueTicket func(email string) (raw, jti string, err error)

	// SendMail delivers the ticket to the address being verified.
	SendMail func(ctx context.Context, email, rawTicket string) error

	// ValidateTicket checks signature, expiry and purpose, returning the
	// bound email, the jti, and how long the ticket could still validate.
	ValidateTicket func(raw string) (email, jti string, remaining time.Duration, err error)

	// MarkConsumed claims the jti for exactly one confirm. Returns false
	// when the ticket was already redeemed.
	MarkConsumed func(ctx context.Context, jti string, ttl time.Duration) (bool, error)

	MarkVerified func(ctx context.Context, email string) error

	MetricInc func(metrics.MetricID)
	EmitAudit EmitAuditFunc

	Events VerificationEvents
	Errors VerificationErrors
}

// RunRequestVerification issues a fresh verification ticket for the account
// and mails it out. Requesting again before an earlier ticket expires is
// allowed; every outstanding ticket stays redeemable once.
func RunRequestVerification(ctx context.Context, email string, deps VerificationDeps) error {
	if deps.MetricInc == nil {
		deps.MetricInc = func(metrics.MetricID) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.GetAccountByEmail == nil || deps.IssueTicket == nil || deps.SendMail == nil {
		return deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)

	account, err := deps.GetAccountByEmail(ctx, email)
	if err != nil {
		return err
	}
	if account.Verified {
		return deps.Errors.AlreadyVerified
	}

	raw, jti, err := deps.IssueTicket(account.Email)
	if err != nil {
		return err
	}

	if err := deps.SendMail(ctx, account.Email, raw); err != nil {
		return err
	}

	deps.MetricInc(metrics.MetricVerificationRequested)
	deps.EmitAudit(deps.Events.Requested, true, account.ID, ip, nil, func() map[string]string {
		return map[string]string{"email": email, "jti": jti}
	})

	return nil
}

// RunConfirmVerification redeems a verification ticket. The consumed marker
// is claimed before the account flips to verified, so a replayed ticket is
// rejected even when two confirms race.
func RunConfirmVerification(ctx context.Context, rawTicket string, deps VerificationDeps) error {
	if deps.MetricInc == nil {
		deps.MetricInc = func(metrics.MetricID) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.ValidateTicket == nil || deps.MarkConsumed == nil || deps.MarkVerified == nil {
		return deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)

	email, jti, remaining, err := deps.ValidateTicket(rawTicket)
	if err != nil {
		return err
	}

	claimed, err := deps.MarkConsumed(ctx, jti, remaining)
	if err != nil {
		return err
	}
	if !claimed {
		deps.MetricInc(metrics.MetricVerificationReplay)
		deps.EmitAudit(deps.Events.Replay, false, "", ip, deps.Errors.AlreadyConsumed, func() map[string]string {
			return map[string]string{"email": email, "jti": jti}
		})
		return deps.Errors.AlreadyConsumed
	}

	if err := deps.MarkVerified(ctx, email); err != nil {
		return err
	}

	deps.MetricInc(metrics.MetricVerificationConfirmed)
	deps.EmitAudit(deps.Events.Confirmed, true, "", ip, nil, func() map[string]string {
		return map[string]string{"email": email}
	})

	return nil
}
