package authgate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRefreshRotates(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "alice@example.com", true)
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "alice@example.com", testSecret)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	next, err := env.engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("expected a new refresh token")
	}
	if _, err := env.engine.ValidateAccess(ctx, next.AccessToken); err != nil {
		t.Fatalf("validate new access: %v", err)
	}

	// The new refresh token works in turn.
	if _, err := env.engine.Refresh(ctx, next.RefreshToken); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
}

func TestRefreshReuseRevokesSession(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "alice@example.com", true)
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "alice@example.com", testSecret)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	next, err := env.engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Replaying the retired token is reuse.
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrReusedToken) {
		t.Fatalf("expected ErrReusedToken, got %v", err)
	}

	// Reuse detection revoked the whole session, current token included.
	if _, err := env.engine.Refresh(ctx, next.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after revocation, got %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricRefreshReuseDetected.String()] != 1 {
		t.Fatalf("expected 1 reuse detection, got %d", snap.Counters[MetricRefreshReuseDetected.String()])
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "alice@example.com", true)
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "alice@example.com", testSecret)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	env.clock.Advance(2 * time.Hour)

	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "alice@example.com", true)
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "alice@example.com", testSecret)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := env.engine.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrWrongPurpose) {
		t.Fatalf("expected ErrWrongPurpose, got %v", err)
	}
}

func TestLoginReplacesSession(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "alice@example.com", true)
	ctx := context.Background()

	first, err := env.engine.Login(ctx, "alice@example.com", testSecret)
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", testSecret); err != nil {
		t.Fatalf("second login: %v", err)
	}

	// The first login's refresh token died with the session replacement.
	if _, err := env.engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrReusedToken) {
		t.Fatalf("expected ErrReusedToken for the replaced session, got %v", err)
	}
}

func TestLogoutRevokesRefresh(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "alice@example.com", true)
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "alice@example.com", testSecret)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := env.engine.Logout(ctx, pair.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}

	// Refresh path is dead.
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after logout, got %v", err)
	}

	// Access tokens stay cryptographically valid until expiry.
	if _, err := env.engine.ValidateAccess(ctx, pair.AccessToken); err != nil {
		t.Fatalf("expected access token to keep validating, got %v", err)
	}

	// Logout is idempotent.
	if err := env.engine.Logout(ctx, pair.AccessToken); err != nil {
		t.Fatalf("second logout: %v", err)
	}
}

func TestLogoutByRefreshToken(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "alice@example.com", true)
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "alice@example.com", testSecret)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := env.engine.LogoutByRefreshToken(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after logout, got %v", err)
	}

	// Idempotent, like the access-token form.
	if err := env.engine.LogoutByRefreshToken(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("second logout: %v", err)
	}
}

func TestLogoutRequiresValidAccessToken(t *testing.T) {
	env := newTestEnv(t, testConfig())

	if err := env.engine.Logout(context.Background(), "garbage"); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
}
