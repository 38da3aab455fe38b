package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authgate/internal/metrics"
)

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	Success     string
	Failure     string
	RateLimited string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady    error
	InvalidCredential error
	UnverifiedAccount error
	AccountNotFound   error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	RequireVerified        bool
	PasswordUpgradeOnLogin bool

	ClientIPFromContext func(context.Context) string
	Now                 func() time.Time

	AdmitLogin     func(ctx context.Context, identity string) error
	ResetLoginRate func(ctx context.Context, identity string) error

	GetAccountByEmail  func(ctx context.Context, email string) (AccountRecord, error)
	UpdatePasswordHash func(ctx context.Context, email, newHash string) error

	VerifyPassword       func(secret, digest string) (bool, error)
	PasswordNeedsUpgrade func(digest string) (bool, error)
	HashPassword         func(secret string) (string, error)

	IssueSessionTokens func(ctx context.Context, subject string) (TokenPairResult, error)

	MetricInc func(metrics.MetricID)
	EmitAudit EmitAuditFunc
	Warn      func(string, ...any)

	Events LoginEvents
	Errors LoginErrors
}

// RunLogin verifies the credential pair and, on success, issues a fresh
// access/refresh pair with a new session. Unknown accounts and wrong
// passwords collapse into the same sentinel so callers cannot probe which
// emails exist.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) (*TokenPairResult, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
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
	if deps.GetAccountByEmail == nil ||
		deps.VerifyPassword == nil ||
		deps.IssueSessionTokens == nil {
		return nil, deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)

	if deps.AdmitLogin != nil {
		if err := deps.AdmitLogin(ctx, email); err != nil {
			deps.MetricInc(metrics.MetricLoginRateLimited)
			deps.EmitAudit(deps.Events.RateLimited, false, "", ip, err, func() map[string]string {
				return map[string]string{"email": email}
			})
			return nil, err
		}
	}

	if password == "" {
		deps.MetricInc(metrics.MetricLoginFailure)
		deps.EmitAudit(deps.Events.Failure, false, "", ip, deps.Errors.InvalidCredential, func() map[string]string {
			return map[string]string{"email": email, "reason": "empty_password"}
		})
		return nil, deps.Errors.InvalidCredential
	}

	account, err := deps.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, deps.Errors.AccountNotFound) {
			deps.MetricInc(metrics.MetricLoginFailure)
			deps.EmitAudit(deps.Events.Failure, false, "", ip, deps.Errors.InvalidCredential, func() map[string]string {
				return map[string]string{"email": email, "reason": "account_not_found"}
			})
			return nil, deps.Errors.InvalidCredential
		}
		return nil, err
	}

	ok, err := deps.VerifyPassword(password, account.PasswordHash)
	if err != nil {
		deps.MetricInc(metrics.MetricLoginFailure)
		deps.EmitAudit(deps.Events.Failure, false, account.ID, ip, err, func() map[string]string {
			return map[string]string{"email": email, "reason": "corrupt_digest"}
		})
		return nil, err
	}
	if !ok {
		deps.MetricInc(metrics.MetricLoginFailure)
		deps.EmitAudit(deps.Events.Failure, false, account.ID, ip, deps.Errors.InvalidCredential, func() map[string]string {
			return map[string]string{"email": email, "reason": "password_mismatch"}
		})
		return nil, deps.Errors.InvalidCredential
	}

	if deps.RequireVerified && !account.Verified {
		deps.MetricInc(metrics.MetricLoginFailure)
		deps.EmitAudit(deps.Events.Failure, false, account.ID, ip, deps.Errors.UnverifiedAccount, func() map[string]string {
			return map[string]string{"email": email, "reason": "unverified_account"}
		})
		return nil, deps.Errors.UnverifiedAccount
	}

	if deps.PasswordUpgradeOnLogin && deps.PasswordNeedsUpgrade != nil && deps.HashPassword != nil && deps.UpdatePasswordHash != nil {
		if needsUpgrade, err := deps.PasswordNeedsUpgrade(account.PasswordHash); err == nil && needsUpgrade {
			if upgradedHash, err := deps.HashPassword(password); err == nil {
				if err := deps.UpdatePasswordHash(ctx, account.Email, upgradedHash); err != nil {
					deps.Warn("authgate: password hash upgrade update failed")
				}
			} else {
				deps.Warn("authgate: password hash upgrade generation failed")
			}
		}
	}
	password = ""

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, email); err != nil {
			deps.Warn("authgate: login rate reset failed")
		}
	}

	tokens, err := deps.IssueSessionTokens(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	deps.MetricInc(metrics.MetricLoginSuccess)
	deps.EmitAudit(deps.Events.Success, true, account.ID, ip, nil, func() map[string]string {
		return map[string]string{"email": email}
	})

	return &TokenPairResult{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, nil
}
