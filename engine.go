package authgate

import (
	"context"
	"errors"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/authgate/internal/audit"
	"github.com/MrEthical07/authgate/internal/flows"
	internalmetrics "github.com/MrEthical07/authgate/internal/metrics"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/internal/stores"
	"github.com/MrEthical07/authgate/password"
	"github.com/MrEthical07/authgate/session"
	"github.com/MrEthical07/authgate/token"
	"github.com/rs/zerolog"
)

// ClassLogin is the limiter class consulted by Login. Route classes for the
// surrounding API are free-form; this one is fixed because the engine itself
// throttles credential checks per identity.
const ClassLogin = "login"

// Engine is the admission and identity core. Construct it with [Builder];
// all methods are safe for concurrent use.
type Engine struct {
	cfg      Config
	accounts AccountStore
	mailer   Mailer
	codec    *token.Codec
	hasher   *password.Hasher
	sessions *session.Store
	tickets  *stores.ConsumedTicketStore
	limiter  *rate.Limiter
	audit    *internalaudit.Dispatcher
	metrics  *internalmetrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time

	flows flows.Deps
}

// Close drains and stops the async audit dispatcher. Safe to call more than
// once, and safe on an engine built without audit.
func (e *Engine) Close() {
	e.audit.Close()
}

// AuditDropped reports how many audit events were discarded because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// MetricsSnapshot deep-copies the current counter values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// Ping reports Redis reachability and round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	latency, err := e.sessions.Ping(ctx)
	if err != nil {
		return latency, e.mapSessionErr(err)
	}
	return latency, nil
}

/*
====================================
PUBLIC OPERATIONS
====================================
*/

// Signup creates an account from an email/secret pair. The secret is hashed
// before anything is persisted. When a mailer is attached, the initial
// verification ticket goes out as part of the same call, best effort.
func (e *Engine) Signup(ctx context.Context, email, secret string) (Account, error) {
	record, err := flows.RunSignup(ctx, email, secret, e.flows.Signup)
	if err != nil {
		return Account{}, err
	}
	return Account{
		ID:           record.ID,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		Verified:     record.Verified,
	}, nil
}

// Login verifies the credential pair and issues a fresh token pair. The new
// refresh token replaces any previously active session for the account.
//
// Unknown emails and wrong secrets both return [ErrInvalidCredential].
// Per-identity throttling applies before the credential is ever checked; a
// denial is a [*RateLimitError].
func (e *Engine) Login(ctx context.Context, email, secret string) (TokenPair, error) {
	result, err := flows.RunLogin(ctx, email, secret, e.flows.Login)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}, nil
}

// Refresh rotates the session: the presented refresh token is retired and a
// new pair is issued atomically. Presenting a retired token revokes the
// whole session and returns [ErrReusedToken].
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	result, err := flows.RunRefresh(ctx, refreshToken, e.flows.Refresh)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}, nil
}

// Logout revokes the caller's refresh session. Issued access tokens keep
// validating until expiry. Idempotent.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	return flows.RunLogout(ctx, accessToken, e.flows.Logout)
}

// LogoutByRefreshToken revokes the session named by a refresh token instead
// of an access token. The token only needs to validate cryptographically; a
// stale-but-unexpired token still names its subject, and clearing an absent
// session is not an error.
func (e *Engine) LogoutByRefreshToken(ctx context.Context, refreshToken string) error {
	subject, _, err := e.validateRefresh(refreshToken)
	if err != nil {
		return err
	}
	if err := e.clearSession(ctx, subject); err != nil {
		return err
	}
	e.metricInc(MetricLogout)
	e.emitAudit("logout", true, subject, ClientIPFromContext(ctx), nil, nil)
	return nil
}

// RequestEmailVerification issues a single-use verification ticket for the
// account and mails it out. Returns [ErrAlreadyVerified] for confirmed
// accounts and [ErrEngineNotReady] when no mailer is attached.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) error {
	return flows.RunRequestVerification(ctx, email, e.flows.Verification)
}

// ConfirmEmailVerification redeems a verification ticket and marks the
// account verified. Each ticket redeems exactly once; replays return
// [ErrAlreadyConsumed].
func (e *Engine) ConfirmEmailVerification(ctx context.Context, rawTicket string) error {
	return flows.RunConfirmVerification(ctx, rawTicket, e.flows.Verification)
}

// ValidateAccess checks an access token and returns its subject. Validation
// is purely cryptographic: no Redis round trip, so a revoked session's
// access tokens stay valid until they expire.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (string, error) {
	claims, err := e.codec.Validate(accessToken, token.PurposeAccess)
	if err != nil {
		e.metricInc(MetricAccessValidateFailure)
		return "", e.mapTokenErr(err)
	}
	e.metricInc(MetricAccessValidateSuccess)
	return claims.Subject, nil
}

// Admit bills one request against the (class, identity) budget. A denial is
// a [*RateLimitError] carrying the retry-after hint. The unit is consumed
// whether or not the request ultimately completes.
func (e *Engine) Admit(ctx context.Context, class, identity string) error {
	decision, err := e.limiter.Admit(ctx, class, identity, 1)
	if err != nil {
		return e.mapRateErr(err)
	}
	if !decision.Allowed {
		e.metricInc(MetricRateLimitHit)
		e.emitAudit("rate_limit_hit", false, "", ClientIPFromContext(ctx), ErrRateLimited, func() map[string]string {
			return map[string]string{"class": class, "identity": identity}
		})
		return &RateLimitError{RetryAfter: decision.RetryAfter}
	}
	return nil
}

// LimiterIdentity derives the limiter key for a request. A structurally
// well-formed bearer token bills the claimed subject's pool even before the
// signature is checked; everything else bills the client IP.
func (e *Engine) LimiterIdentity(authorizationHeader, remoteIP string) string {
	raw := strings.TrimSpace(authorizationHeader)
	if rest, ok := strings.CutPrefix(raw, "Bearer "); ok {
		if subject, ok := e.codec.Peek(strings.TrimSpace(rest)); ok {
			return "sub:" + subject
		}
	}
	return "ip:" + remoteIP
}

/*
====================================
FLOW WIRING
====================================
*/

func (e *Engine) wireFlows() {
	e.flows = flows.Deps{
		Signup: flows.SignupDeps{
			ClientIPFromContext: ClientIPFromContext,
			HashPassword:        e.hasher.Hash,
			CreateAccount:       e.createAccount,
			MetricInc:           e.metricInc,
			EmitAudit:           e.emitAudit,
			Warn:                e.warn,
			Events: flows.SignupEvents{
				Success:   "signup_success",
				Duplicate: "signup_duplicate",
			},
			Errors: flows.SignupErrors{
				EngineNotReady:    ErrEngineNotReady,
				InvalidCredential: ErrInvalidCredential,
				AccountExists:     ErrAccountExists,
			},
		},
		Login: flows.LoginDeps{
			RequireVerified:        true,
			PasswordUpgradeOnLogin: e.cfg.Password.UpgradeOnLogin,
			ClientIPFromContext:    ClientIPFromContext,
			Now:                    e.now,
			AdmitLogin:             e.admitLogin,
			ResetLoginRate:         e.resetLoginRate,
			GetAccountByEmail:      e.getAccountByEmail,
			UpdatePasswordHash:     e.updatePasswordHash,
			VerifyPassword:         e.verifyPassword,
			PasswordNeedsUpgrade:   e.hasher.NeedsRehash,
			HashPassword:           e.hasher.Hash,
			IssueSessionTokens:     e.issueSessionTokens,
			MetricInc:              e.metricInc,
			EmitAudit:              e.emitAudit,
			Warn:                   e.warn,
			Events: flows.LoginEvents{
				Success:     "login_success",
				Failure:     "login_failure",
				RateLimited: "login_rate_limited",
			},
			Errors: flows.LoginErrors{
				EngineNotReady:    ErrEngineNotReady,
				InvalidCredential: ErrInvalidCredential,
				UnverifiedAccount: ErrUnverifiedAccount,
				AccountNotFound:   ErrAccountNotFound,
			},
		},
		Refresh: flows.RefreshDeps{
			ClientIPFromContext: ClientIPFromContext,
			Now:                 e.now,
			ValidateRefresh:     e.validateRefresh,
			IssueRefresh:        e.issueRefresh,
			IssueAccess:         e.issueAccess,
			RotateSession:       e.rotateSession,
			MetricInc:           e.metricInc,
			EmitAudit:           e.emitAudit,
			Warn:                e.warn,
			Events: flows.RefreshEvents{
				Success:       "refresh_success",
				Failure:       "refresh_failure",
				ReuseDetected: "refresh_reuse_detected",
			},
			Errors: flows.RefreshErrors{
				EngineNotReady:  ErrEngineNotReady,
				ReusedToken:     ErrReusedToken,
				SessionNotFound: ErrSessionNotFound,
			},
		},
		Logout: flows.LogoutDeps{
			ClientIPFromContext: ClientIPFromContext,
			ValidateAccess:      e.validateAccessSubject,
			ClearSession:        e.clearSession,
			MetricInc:           e.metricInc,
			EmitAudit:           e.emitAudit,
			Events: flows.LogoutEvents{
				Success: "logout",
			},
			Errors: flows.LogoutErrors{
				EngineNotReady: ErrEngineNotReady,
			},
		},
		Verification: flows.VerificationDeps{
			ClientIPFromContext: ClientIPFromContext,
			GetAccountByEmail:   e.getAccountByEmail,
			IssueTicket:         e.issueVerificationTicket,
			SendMail:            e.sendVerificationMail(),
			ValidateTicket:      e.validateVerificationTicket,
			MarkConsumed:        e.markTicketConsumed,
			MarkVerified:        e.markVerified,
			MetricInc:           e.metricInc,
			EmitAudit:           e.emitAudit,
			Events: flows.VerificationEvents{
				Requested: "verification_requested",
				Confirmed: "verification_confirmed",
				Replay:    "verification_replay",
			},
			Errors: flows.VerificationErrors{
				EngineNotReady:  ErrEngineNotReady,
				AccountNotFound: ErrAccountNotFound,
				AlreadyVerified: ErrAlreadyVerified,
				AlreadyConsumed: ErrAlreadyConsumed,
			},
		},
	}

	if e.mailer != nil {
		e.flows.Signup.DispatchVerificationMail = e.dispatchSignupMail
	}
}

/*
====================================
FLOW CLOSURES
====================================
*/

func (e *Engine) createAccount(ctx context.Context, email, passwordHash string) (flows.AccountRecord, error) {
	account, err := e.accounts.Create(ctx, CreateAccountInput{
		Email:        email,
		PasswordHash: passwordHash,
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			return flows.AccountRecord{}, err
		}
		return flows.AccountRecord{}, e.wrapStorage(err)
	}
	return accountRecord(account), nil
}

func (e *Engine) getAccountByEmail(ctx context.Context, email string) (flows.AccountRecord, error) {
	account, err := e.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return flows.AccountRecord{}, err
		}
		return flows.AccountRecord{}, e.wrapStorage(err)
	}
	return accountRecord(account), nil
}

func (e *Engine) updatePasswordHash(ctx context.Context, email, newHash string) error {
	if err := e.accounts.UpdatePasswordHash(ctx, email, newHash); err != nil {
		return e.wrapStorage(err)
	}
	return nil
}

func (e *Engine) markVerified(ctx context.Context, email string) error {
	if err := e.accounts.MarkVerified(ctx, email); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return err
		}
		return e.wrapStorage(err)
	}
	return nil
}

func (e *Engine) verifyPassword(secret, digest string) (bool, error) {
	ok, err := e.hasher.Verify(secret, digest)
	if err != nil {
		if errors.Is(err, password.ErrCorruptDigest) {
			return false, ErrCorruptCredential
		}
		return false, err
	}
	return ok, nil
}

func (e *Engine) admitLogin(ctx context.Context, identity string) error {
	return e.Admit(ctx, ClassLogin, "sub:"+identity)
}

func (e *Engine) resetLoginRate(ctx context.Context, identity string) error {
	if err := e.limiter.Reset(ctx, ClassLogin, "sub:"+identity); err != nil {
		return e.mapRateErr(err)
	}
	return nil
}

func (e *Engine) issueSessionTokens(ctx context.Context, subject string) (flows.TokenPairResult, error) {
	access, _, err := e.codec.Issue(subject, token.PurposeAccess, e.cfg.Token.AccessTTL)
	if err != nil {
		return flows.TokenPairResult{}, err
	}
	refresh, refreshClaims, err := e.codec.Issue(subject, token.PurposeRefresh, e.cfg.Token.RefreshTTL)
	if err != nil {
		return flows.TokenPairResult{}, err
	}
	if err := e.sessions.Start(ctx, subject, refreshClaims.ID, e.cfg.Token.RefreshTTL); err != nil {
		return flows.TokenPairResult{}, e.mapSessionErr(err)
	}
	return flows.TokenPairResult{AccessToken: access, RefreshToken: refresh}, nil
}

func (e *Engine) validateRefresh(raw string) (string, string, error) {
	claims, err := e.codec.Validate(raw, token.PurposeRefresh)
	if err != nil {
		return "", "", e.mapTokenErr(err)
	}
	return claims.Subject, claims.ID, nil
}

func (e *Engine) issueRefresh(subject string) (string, string, error) {
	raw, claims, err := e.codec.Issue(subject, token.PurposeRefresh, e.cfg.Token.RefreshTTL)
	if err != nil {
		return "", "", err
	}
	return raw, claims.ID, nil
}

func (e *Engine) issueAccess(subject string) (string, error) {
	raw, _, err := e.codec.Issue(subject, token.PurposeAccess, e.cfg.Token.AccessTTL)
	return raw, err
}

func (e *Engine) rotateSession(ctx context.Context, subject, currentJTI, nextJTI string) error {
	err := e.sessions.Rotate(ctx, subject, currentJTI, nextJTI, e.cfg.Token.RefreshTTL)
	if err != nil {
		return e.mapSessionErr(err)
	}
	return nil
}

func (e *Engine) validateAccessSubject(raw string) (string, error) {
	claims, err := e.codec.Validate(raw, token.PurposeAccess)
	if err != nil {
		return "", e.mapTokenErr(err)
	}
	return claims.Subject, nil
}

func (e *Engine) clearSession(ctx context.Context, subject string) error {
	if err := e.sessions.Clear(ctx, subject); err != nil {
		return e.mapSessionErr(err)
	}
	return nil
}

func (e *Engine) issueVerificationTicket(email string) (string, string, error) {
	raw, claims, err := e.codec.Issue(email, token.PurposeEmailVerification, e.cfg.Verification.TTL)
	if err != nil {
		return "", "", err
	}
	return raw, claims.ID, nil
}

func (e *Engine) sendVerificationMail() func(ctx context.Context, email, rawTicket string) error {
	if e.mailer == nil {
		return nil
	}
	return func(ctx context.Context, email, rawTicket string) error {
		return e.mailer.Send(ctx, email, e.cfg.Verification.MailTemplate, map[string]string{
			"token": rawTicket,
		})
	}
}

func (e *Engine) dispatchSignupMail(ctx context.Context, email string) error {
	return flows.RunRequestVerification(ctx, email, e.flows.Verification)
}

func (e *Engine) validateVerificationTicket(raw string) (string, string, time.Duration, error) {
	claims, err := e.codec.Validate(raw, token.PurposeEmailVerification)
	if err != nil {
		return "", "", 0, e.mapTokenErr(err)
	}
	remaining := claims.ExpiresAt.Sub(e.now()) + e.cfg.Token.Leeway
	return claims.Subject, claims.ID, remaining, nil
}

func (e *Engine) markTicketConsumed(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	claimed, err := e.tickets.MarkConsumed(ctx, jti, ttl)
	if err != nil {
		return false, e.wrapStorage(err)
	}
	return claimed, nil
}

/*
====================================
ERROR MAPPING / TELEMETRY
====================================
*/

func (e *Engine) mapTokenErr(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return ErrExpiredToken
	case errors.Is(err, token.ErrBadSignature):
		return ErrBadSignature
	case errors.Is(err, token.ErrWrongPurpose):
		return ErrWrongPurpose
	case errors.Is(err, token.ErrMalformed):
		return ErrMalformedToken
	default:
		return ErrBadSignature
	}
}

func (e *Engine) mapSessionErr(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, session.ErrJTIMismatch):
		return ErrReusedToken
	case errors.Is(err, session.ErrRedisUnavailable):
		return e.wrapStorage(err)
	default:
		return err
	}
}

func (e *Engine) mapRateErr(err error) error {
	if errors.Is(err, rate.ErrRedisUnavailable) {
		return e.wrapStorage(err)
	}
	return err
}

func (e *Engine) wrapStorage(err error) error {
	e.logger.Error().Err(err).Msg("storage failure")
	return ErrStorageUnavailable
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

func (e *Engine) warn(msg string, args ...any) {
	e.logger.Warn().Msg(msg)
}

func (e *Engine) emitAudit(eventType string, success bool, subject, ip string, errValue error, meta func() map[string]string) {
	if e.audit == nil {
		return
	}
	event := internalaudit.Event{
		Timestamp: e.now(),
		EventType: eventType,
		Subject:   subject,
		IP:        ip,
		Success:   success,
	}
	if errValue != nil {
		event.Error = errValue.Error()
	}
	if meta != nil {
		event.Metadata = meta()
	}
	e.audit.Emit(context.Background(), event)
}

func accountRecord(account Account) flows.AccountRecord {
	return flows.AccountRecord{
		ID:           account.ID,
		Email:        account.Email,
		PasswordHash: account.PasswordHash,
		Verified:     account.Verified,
	}
}
