package flows

import (
	"context"

	"github.com/MrEthical07/authgate/internal/metrics"
)

// LogoutEvents carries audit event names used by the logout flow.
type LogoutEvents struct {
	Success string
}

// LogoutErrors carries host-level sentinel errors used by the logout flow.
type LogoutErrors struct {
	EngineNotReady error
}

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	ClientIPFromContext func(context.Context) string

	// ValidateAccess checks the caller's access token and returns its subject.
	ValidateAccess func(raw string) (subject string, err error)

	// ClearSession removes the subject's refresh session. Idempotent.
	ClearSession func(ctx context.Context, subject string) error

	MetricInc func(metrics.MetricID)
	EmitAudit EmitAuditFunc

	Events LogoutEvents
	Errors LogoutErrors
}

// RunLogout revokes the caller's refresh session. Already-issued access
// tokens keep validating until they expire; only the refresh path dies.
// Logging out with no live session succeeds.
func RunLogout(ctx context.Context, accessToken string, deps LogoutDeps) error {
	if deps.MetricInc == nil {
		deps.MetricInc = func(metrics.MetricID) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.ValidateAccess == nil || deps.ClearSession == nil {
		return deps.Errors.EngineNotReady
	}

	subject, err := deps.ValidateAccess(accessToken)
	if err != nil {
		return err
	}

	if err := deps.ClearSession(ctx, subject); err != nil {
		return err
	}

	deps.MetricInc(metrics.MetricLogout)
	deps.EmitAudit(deps.Events.Success, true, subject, deps.ClientIPFromContext(ctx), nil, nil)

	return nil
}
