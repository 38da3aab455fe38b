package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authgate/internal/metrics"
)

// RefreshEvents carries audit event names used by the refresh flow.
type RefreshEvents struct {
	Success       string
	Failure       string
	ReuseDetected string
}

// RefreshErrors carries host-level sentinel errors used by the refresh flow.
type RefreshErrors struct {
	EngineNotReady  error
	ReusedToken     error
	SessionNotFound error
}

// RefreshDeps captures refresh-rotation dependencies.
type RefreshDeps struct {
	ClientIPFromContext func(context.Context) string
	Now                 func() time.Time

	// ValidateRefresh checks signature, expiry and purpose, returning the
	// subject and jti of the presented refresh token.
	ValidateRefresh func(raw string) (subject, jti string, err error)

	IssueRefresh func(subject string) (raw, jti string, err error)
	IssueAccess  func(subject string) (string, error)

	// RotateSession swaps currentJTI for nextJTI atomically. Engine maps a
	// jti mismatch to Errors.ReusedToken and a missing key to
	// Errors.SessionNotFound before this func returns.
	RotateSession func(ctx context.Context, subject, currentJTI, nextJTI string) error

	MetricInc func(metrics.MetricID)
	EmitAudit EmitAuditFunc
	Warn      func(string, ...any)

	Events RefreshEvents
	Errors RefreshErrors
}

// RunRefresh exchanges a valid refresh token for a new access/refresh pair,
// rotating the session's active jti. The new refresh token is signed before
// the rotation attempt, so of N concurrent calls with the same token exactly
// one wins the compare-and-swap; the rest see reuse detection and the whole
// session is revoked.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) (*TokenPairResult, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(metrics.MetricID) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.ValidateRefresh == nil ||
		deps.IssueRefresh == nil ||
		deps.IssueAccess == nil ||
		deps.RotateSession == nil {
		return nil, deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)

	subject, jti, err := deps.ValidateRefresh(refreshToken)
	if err != nil {
		deps.MetricInc(metrics.MetricRefreshFailure)
		deps.EmitAudit(deps.Events.Failure, false, "", ip, err, func() map[string]string {
			return map[string]string{"reason": "invalid_token"}
		})
		return nil, err
	}

	newRefresh, newJTI, err := deps.IssueRefresh(subject)
	if err != nil {
		deps.MetricInc(metrics.MetricRefreshFailure)
		return nil, err
	}

	if err := deps.RotateSession(ctx, subject, jti, newJTI); err != nil {
		switch {
		case errors.Is(err, deps.Errors.ReusedToken):
			deps.MetricInc(metrics.MetricRefreshReuseDetected)
			deps.EmitAudit(deps.Events.ReuseDetected, false, subject, ip, err, func() map[string]string {
				return map[string]string{"presented_jti": jti}
			})
		case errors.Is(err, deps.Errors.SessionNotFound):
			deps.MetricInc(metrics.MetricRefreshFailure)
			deps.EmitAudit(deps.Events.Failure, false, subject, ip, err, func() map[string]string {
				return map[string]string{"reason": "session_not_found"}
			})
		default:
			deps.MetricInc(metrics.MetricRefreshFailure)
		}
		return nil, err
	}

	access, err := deps.IssueAccess(subject)
	if err != nil {
		deps.MetricInc(metrics.MetricRefreshFailure)
		return nil, err
	}

	deps.MetricInc(metrics.MetricRefreshSuccess)
	deps.EmitAudit(deps.Events.Success, true, subject, ip, nil, nil)

	return &TokenPairResult{
		AccessToken:  access,
		RefreshToken: newRefresh,
	}, nil
}
