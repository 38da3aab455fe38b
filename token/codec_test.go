package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testCodec(t *testing.T, clock *fakeClock) *Codec {
	t.Helper()
	codec, err := NewCodec(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    testKey,
		Issuer:        "authgate-test",
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("codec init: %v", err)
	}
	return codec
}

func TestIssueValidateRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	codec := testCodec(t, clock)

	raw, issued, err := codec.Issue("acct-1", PurposeAccess, 15*time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.ID == "" {
		t.Fatal("expected a generated jti")
	}

	claims, err := codec.Validate(raw, PurposeAccess)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "acct-1" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if claims.ID != issued.ID {
		t.Fatalf("jti mismatch: issued %q, validated %q", issued.ID, claims.ID)
	}
	if claims.Purpose != PurposeAccess {
		t.Fatalf("unexpected purpose %v", claims.Purpose)
	}
}

func TestValidateExpired(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	codec := testCodec(t, clock)

	raw, _, err := codec.Issue("acct-1", PurposeAccess, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.Advance(2 * time.Minute)

	if _, err := codec.Validate(raw, PurposeAccess); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestValidateWrongPurpose(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	codec := testCodec(t, clock)

	raw, _, err := codec.Issue("acct-1", PurposeRefresh, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := codec.Validate(raw, PurposeAccess); !errors.Is(err, ErrWrongPurpose) {
		t.Fatalf("expected ErrWrongPurpose, got %v", err)
	}
	if _, err := codec.Validate(raw, PurposeRefresh); err != nil {
		t.Fatalf("expected refresh validation to pass, got %v", err)
	}
}

func TestValidateTamperedSignature(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	codec := testCodec(t, clock)

	raw, _, err := codec.Issue("acct-1", PurposeAccess, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %s", raw)
	}
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	if _, err := codec.Validate(tampered, PurposeAccess); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestValidateOtherKey(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	codec := testCodec(t, clock)

	other, err := NewCodec(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("ffffffffffffffffffffffffffffffff"),
		Issuer:        "authgate-test",
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("codec init: %v", err)
	}

	raw, _, err := other.Issue("acct-1", PurposeAccess, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := codec.Validate(raw, PurposeAccess); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestValidateMalformed(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	codec := testCodec(t, clock)

	for _, raw := range []string{"", "garbage", "a.b", "a.b.c"} {
		if _, err := codec.Validate(raw, PurposeAccess); !errors.Is(err, ErrMalformed) {
			t.Fatalf("token %q: expected ErrMalformed, got %v", raw, err)
		}
	}
}

func TestValidateLeeway(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	codec, err := NewCodec(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    testKey,
		Leeway:        30 * time.Second,
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("codec init: %v", err)
	}

	raw, _, err := codec.Issue("acct-1", PurposeAccess, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.Advance(time.Minute + 10*time.Second)
	if _, err := codec.Validate(raw, PurposeAccess); err != nil {
		t.Fatalf("expected token within leeway to validate, got %v", err)
	}

	clock.Advance(time.Minute)
	if _, err := codec.Validate(raw, PurposeAccess); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired past leeway, got %v", err)
	}
}

func TestPeek(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	codec := testCodec(t, clock)

	raw, _, err := codec.Issue("acct-1", PurposeAccess, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	subject, ok := codec.Peek(raw)
	if !ok || subject != "acct-1" {
		t.Fatalf("peek: got (%q, %v)", subject, ok)
	}

	// Peek ignores the signature: a token signed with another key still
	// yields its claimed subject.
	other, err := NewCodec(Config{
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("ffffffffffffffffffffffffffffffff"),
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("codec init: %v", err)
	}
	forged, _, err := other.Issue("mallory", PurposeAccess, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	subject, ok = codec.Peek(forged)
	if !ok || subject != "mallory" {
		t.Fatalf("peek forged: got (%q, %v)", subject, ok)
	}

	if _, ok := codec.Peek("not-a-token"); ok {
		t.Fatal("expected peek to reject garbage")
	}
}
