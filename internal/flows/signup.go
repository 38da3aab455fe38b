package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authgate/internal/metrics"
)

// SignupEvents carries audit event names used by the signup flow.
type SignupEvents struct {
	Success   string
	Duplicate string
}

// SignupErrors carries host-level sentinel errors used by the signup flow.
type SignupErrors struct {
	EngineNotReady    error
	InvalidCredential error
	AccountExists     error
}

// SignupDeps captures signup dependencies.
type SignupDeps struct {
	ClientIPFromContext func(context.Context) string

	HashPassword func(secret string) (string, error)

	// CreateAccount persists the new record. Engine maps duplicate-email
	// failures to Errors.AccountExists before this func returns.
	CreateAccount func(ctx context.Context, email, passwordHash string) (AccountRecord, error)

	// DispatchVerificationMail kicks off the email-verification flow for the
	// new account. Best effort: a delivery failure does not undo the signup.
	DispatchVerificationMail func(ctx context.Context, email string) error

	MetricInc func(metrics.MetricID)
	EmitAudit EmitAuditFunc
	Warn      func(string, ...any)

	Events SignupEvents
	Errors SignupErrors
}

// RunSignup hashes the secret, creates the account record, and dispatches
// the initial verification mail. The raw secret never reaches the store.
func RunSignup(ctx context.Context, email, password string, deps SignupDeps) (AccountRecord, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(metrics.MetricID) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.HashPassword == nil || deps.CreateAccount == nil {
		return AccountRecord{}, deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)

	if password == "" {
		return AccountRecord{}, deps.Errors.InvalidCredential
	}

	hash, err := deps.HashPassword(password)
	if err != nil {
		return AccountRecord{}, err
	}
	password = ""

	account, err := deps.CreateAccount(ctx, email, hash)
	if err != nil {
		if errors.Is(err, deps.Errors.AccountExists) {
			deps.MetricInc(metrics.MetricSignupDuplicate)
			deps.EmitAudit(deps.Events.Duplicate, false, "", ip, err, func() map[string]string {
				return map[string]string{"email": email}
			})
		}
		return AccountRecord{}, err
	}

	if deps.DispatchVerificationMail != nil {
		if err := deps.DispatchVerificationMail(ctx, account.Email); err != nil {
			deps.Warn("authgate: signup verification mail dispatch failed")
		}
	}

	deps.MetricInc(metrics.MetricSignupSuccess)
	deps.EmitAudit(deps.Events.Success, true, account.ID, ip, nil, func() map[string]string {
		return map[string]string{"email": email}
	})

	return account, nil
}
