package authgate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authgate/password"
)

const testSecret = "correct-horse-battery"

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

/* ---------- test collaborators ---------- */

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memAccounts struct {
	mu       sync.RWMutex
	byEmail  map[string]Account
	failNext error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byEmail: map[string]Account{}}
}

func (s *memAccounts) put(account Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byEmail[account.Email] = account
}

func (s *memAccounts) takeFailure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *memAccounts) GetByEmail(_ context.Context, email string) (Account, error) {
	if err := s.takeFailure(); err != nil {
		return Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.byEmail[email]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (s *memAccounts) Create(_ context.Context, input CreateAccountInput) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[input.Email]; ok {
		return Account{}, ErrAccountExists
	}
	account := Account{
		ID:           uuid.NewString(),
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.byEmail[input.Email] = account
	return account, nil
}

func (s *memAccounts) MarkVerified(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byEmail[email]
	if !ok {
		return ErrAccountNotFound
	}
	account.Verified = true
	s.byEmail[email] = account
	return nil
}

func (s *memAccounts) UpdatePasswordHash(_ context.Context, email string, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byEmail[email]
	if !ok {
		return ErrAccountNotFound
	}
	account.PasswordHash = newHash
	s.byEmail[email] = account
	return nil
}

type memMailer struct {
	mu    sync.Mutex
	sends []map[string]string
	to    []string
	fail  error
}

func (m *memMailer) Send(_ context.Context, destination string, _ string, payload map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.to = append(m.to, destination)
	m.sends = append(m.sends, payload)
	return nil
}

func (m *memMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sends) == 0 {
		t.Fatal("no mail was sent")
	}
	token := m.sends[len(m.sends)-1]["token"]
	if token == "" {
		t.Fatal("mail payload carries no token")
	}
	return token
}

func (m *memMailer) sendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sends)
}

/* ---------- engine fixture ---------- */

type testEnv struct {
	engine   *Engine
	accounts *memAccounts
	mailer   *memMailer
	redis    *miniredis.Miniredis
	clock    *testClock
}

func testConfig() Config {
	cfg := Config{}
	cfg.Token.PrivateKey = testSigningKey
	cfg.Token.AccessTTL = 15 * time.Minute
	cfg.Token.RefreshTTL = time.Hour
	cfg.Password = PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	cfg.RateLimit.Classes = map[string]RateLimitRule{
		ClassLogin: {Budget: 5, Window: time.Minute},
	}
	cfg.Verification.TTL = 24 * time.Hour
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := newTestClock()
	accounts := newMemAccounts()
	mailer := &memMailer{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithMailer(mailer).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("engine build: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{
		engine:   engine,
		accounts: accounts,
		mailer:   mailer,
		redis:    mr,
		clock:    clock,
	}
}

func (env *testEnv) seedAccount(t *testing.T, email string, verified bool) Account {
	t.Helper()
	hasher, err := password.New(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("hasher init: %v", err)
	}
	hash, err := hasher.Hash(testSecret)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	account := Account{
		ID:           "acct-" + strings.SplitN(email, "@", 2)[0],
		Email:        email,
		PasswordHash: hash,
		Verified:     verified,
		CreatedAt:    time.Now().UTC(),
	}
	env.accounts.put(account)
	return account
}

/* ---------- login ---------- */

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t, testConfig())
	account := env.seedAccount(t, "alice@example.com", true)

	pair, err := env.engine.Login(context.Background(), "alice@example.com", testSecret)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("expected distinct access and refresh tokens")
	}

	subject, err := env.engine.ValidateAccess(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	if subject != account.ID {
		t.Fatalf("expected subject %q, got %q", account.ID, subject)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "alice@example.com", true)

	_, err := env.engine.Login(context.Background(), "alice@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "alice@example.com", true)

	_, knownErr := env.engine.Login(context.Background(), "alice@example.com", "wrong")
	_, unknownErr := env.engine.Login(context.Background(), "nobody@example.com", "wrong")

	if !errors.Is(knownErr, ErrInvalidCredential) || !errors.Is(unknownErr, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential for both, got %v and %v", knownErr, unknownErr)
	}
	if knownErr.Error() != unknownErr.Error() {
		t.Fatal("expected indistinguishable errors for unknown email and wrong password")
	}
}

func TestLoginUnverifiedAccount(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "alice@example.com", false)

	_, err := env.engine.Login(context.Background(), "alice@example.com", testSecret)
	if !errors.Is(err, ErrUnverifiedAccount) {
		t.Fatalf("expected ErrUnverifiedAccount, got %v", err)
	}
}

func TestLoginThrottledPerIdentity(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "alice@example.com", true)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := env.engine.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("attempt %d: expected ErrInvalidCredential, got %v", i, err)
		}
	}

	_, err := env.engine.Login(ctx, "alice@example.com", testSecret)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if RetryAfter(err) <= 0 {
		t.Fatal("expected a positive retry-after hint")
	}

	// A different identity is not affected.
	env.seedAccount(t, "bob@example.com", true)
	if _, err := env.engine.Login(ctx, "bob@example.com", testSecret); err != nil {
		t.Fatalf("expected bob to log in, got %v", err)
	}
}

func TestLoginThrottleRecovers(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "alice@example.com", true)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = env.engine.Login(ctx, "alice@example.com", "wrong")
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", testSecret); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	env.redis.FastForward(2 * time.Minute)

	if _, err := env.engine.Login(ctx, "alice@example.com", testSecret); err != nil {
		t.Fatalf("expected login after window expiry, got %v", err)
	}
}

func TestLoginResetsThrottleOnSuccess(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "alice@example.com", true)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = env.engine.Login(ctx, "alice@example.com", "wrong")
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", testSecret); err != nil {
		t.Fatalf("login: %v", err)
	}

	// The successful login cleared the failure streak; the budget is fresh.
	for i := 0; i < 4; i++ {
		if _, err := env.engine.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("attempt %d after reset: expected ErrInvalidCredential, got %v", i, err)
		}
	}
}

func TestLoginStorageFailure(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "alice@example.com", true)

	env.accounts.failNext = errors.New("connection refused")
	_, err := env.engine.Login(context.Background(), "alice@example.com", testSecret)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestLoginUpgradesWeakDigest(t *testing.T) {
	cfg := testConfig()
	cfg.Password.UpgradeOnLogin = true
	cfg.Password.Time = 2
	env := newTestEnv(t, cfg)

	// Seed with parameters weaker than the engine's configuration.
	env.seedAccount(t, "alice@example.com", true)
	before := env.accounts.byEmail["alice@example.com"].PasswordHash

	if _, err := env.engine.Login(context.Background(), "alice@example.com", testSecret); err != nil {
		t.Fatalf("login: %v", err)
	}

	after := env.accounts.byEmail["alice@example.com"].PasswordHash
	if before == after {
		t.Fatal("expected digest to be upgraded on login")
	}
	if !strings.Contains(after, "t=2") {
		t.Fatalf("expected upgraded digest to carry new time cost: %s", after)
	}

	// And the upgraded digest still verifies.
	if _, err := env.engine.Login(context.Background(), "alice@example.com", testSecret); err != nil {
		t.Fatalf("login after upgrade: %v", err)
	}
}

/* ---------- access validation ---------- */

func TestValidateAccessExpired(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "alice@example.com", true)

	pair, err := env.engine.Login(context.Background(), "alice@example.com", testSecret)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	env.clock.Advance(16 * time.Minute)

	if _, err := env.engine.ValidateAccess(context.Background(), pair.AccessToken); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestValidateAccessRejectsRefreshToken(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "alice@example.com", true)

	pair, err := env.engine.Login(context.Background(), "alice@example.com", testSecret)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := env.engine.ValidateAccess(context.Background(), pair.RefreshToken); !errors.Is(err, ErrWrongPurpose) {
		t.Fatalf("expected ErrWrongPurpose, got %v", err)
	}
}

func TestValidateAccessMalformed(t *testing.T) {
	env := newTestEnv(t, testConfig())

	if _, err := env.engine.ValidateAccess(context.Background(), "garbage"); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
}

/* ---------- admission ---------- */

func TestAdmitDeniesOverBudget(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Classes["api"] = RateLimitRule{Budget: 2, Window: time.Minute}
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := env.engine.Admit(ctx, "api", "ip:10.0.0.1"); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}

	err := env.engine.Admit(ctx, "api", "ip:10.0.0.1")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var rle *RateLimitError
	if !errors.As(err, &rle) || rle.RetryAfter <= 0 {
		t.Fatalf("expected a RateLimitError with retry-after, got %v", err)
	}
}

func TestLimiterIdentity(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "alice@example.com", true)

	pair, err := env.engine.Login(context.Background(), "alice@example.com", testSecret)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	identity := env.engine.LimiterIdentity("Bearer "+pair.AccessToken, "10.0.0.1")
	if !strings.HasPrefix(identity, "sub:") {
		t.Fatalf("expected subject identity for a bearer token, got %q", identity)
	}

	identity = env.engine.LimiterIdentity("", "10.0.0.1")
	if identity != "ip:10.0.0.1" {
		t.Fatalf("expected ip identity without a token, got %q", identity)
	}

	identity = env.engine.LimiterIdentity("Bearer not-a-token", "10.0.0.1")
	if identity != "ip:10.0.0.1" {
		t.Fatalf("expected ip identity for a garbage token, got %q", identity)
	}
}

/* ---------- metrics ---------- */

func TestMetricsSnapshot(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seedAccount(t, "alice@example.com", true)
	ctx := context.Background()

	if _, err := env.engine.Login(ctx, "alice@example.com", testSecret); err != nil {
		t.Fatalf("login: %v", err)
	}
	_, _ = env.engine.Login(ctx, "alice@example.com", "wrong")

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess.String()] != 1 {
		t.Fatalf("expected 1 login success, got %d", snap.Counters[MetricLoginSuccess.String()])
	}
	if snap.Counters[MetricLoginFailure.String()] != 1 {
		t.Fatalf("expected 1 login failure, got %d", snap.Counters[MetricLoginFailure.String()])
	}
}
