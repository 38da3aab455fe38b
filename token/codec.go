package token

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose is the closed set of token purposes. It is a tagged variant, not a
// free-form string: a mismatch is a type-level case.
type Purpose uint8

const (
	PurposeAccess Purpose = iota
	PurposeRefresh
	PurposeEmailVerification
)

func (p Purpose) String() string {
	switch p {
	case PurposeAccess:
		return "access"
	case PurposeRefresh:
		return "refresh"
	case PurposeEmailVerification:
		return "email_verification"
	default:
		return "unknown"
	}
}

func parsePurpose(s string) (Purpose, bool) {
	switch s {
	case "access":
		return PurposeAccess, true
	case "refresh":
		return PurposeRefresh, true
	case "email_verification":
		return PurposeEmailVerification, true
	default:
		return 0, false
	}
}

var (
	// ErrExpired is returned when the token is past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrBadSignature is returned when the signature does not verify.
	ErrBadSignature = errors.New("token signature invalid")
	// ErrWrongPurpose is returned when the purpose claim does not match the
	// caller's expectation.
	ErrWrongPurpose = errors.New("token purpose mismatch")
	// ErrMalformed is returned for tokens that cannot be parsed.
	ErrMalformed = errors.New("malformed token")
)

// SigningMethod selects the signature algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

// Config configures a [Codec]. Now is the injected clock; nil means
// time.Now. Keys are process-wide configuration, rotated operationally.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
	Now           func() time.Time
}

// Claims is the decoded claim set returned by [Codec.Validate].
type Claims struct {
	Subject   string
	Purpose   Purpose
	ID        string // jti
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type wireClaims struct {
	Purpose string `json:"pur"`
	jwt.RegisteredClaims
}

// Codec signs and validates tokens. Safe for concurrent use.
type Codec struct {
	cfg Config
}

// NewCodec validates the configuration and returns a [Codec].
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires a signing key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Codec{cfg: cfg}, nil
}

// Issue signs a token for subject with the given purpose and ttl. The
// returned [Claims] carry the generated jti; callers that record active
// session state need it before the token ever comes back.
func (c *Codec) Issue(subject string, purpose Purpose, ttl time.Duration) (string, Claims, error) {
	if subject == "" {
		return "", Claims{}, errors.New("empty subject")
	}
	if ttl <= 0 {
		return "", Claims{}, errors.New("non-positive ttl")
	}

	now := c.cfg.Now()
	claims := Claims{
		Subject:   subject,
		Purpose:   purpose,
		ID:        uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	wire := wireClaims{
		Purpose: purpose.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			ID:        claims.ID,
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	}

	tok := jwt.NewWithClaims(c.method(), wire)
	signKey, err := c.signKey()
	if err != nil {
		return "", Claims{}, err
	}

	signed, err := tok.SignedString(signKey)
	if err != nil {
		return "", Claims{}, err
	}

	return signed, claims, nil
}

// Validate checks signature, expiry, and purpose, in that order of severity:
// a forged token is [ErrBadSignature] even if it is also expired. The
// returned claims are only meaningful on a nil error.
func (c *Codec) Validate(raw string, expected Purpose) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method().Alg()}),
		jwt.WithTimeFunc(c.cfg.Now),
		jwt.WithExpirationRequired(),
	}
	if c.cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.cfg.Leeway))
	}
	if c.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.cfg.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(raw, &wireClaims{}, func(t *jwt.Token) (interface{}, error) {
		return c.verifyKey()
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	wire, ok := tok.Claims.(*wireClaims)
	if !ok || !tok.Valid {
		return nil, ErrMalformed
	}

	purpose, ok := parsePurpose(wire.Purpose)
	if !ok || purpose != expected {
		return nil, ErrWrongPurpose
	}
	if wire.Subject == "" || wire.ID == "" {
		return nil, ErrMalformed
	}

	claims := &Claims{
		Subject: wire.Subject,
		Purpose: purpose,
		ID:      wire.ID,
	}
	if wire.IssuedAt != nil {
		claims.IssuedAt = wire.IssuedAt.Time
	}
	if wire.ExpiresAt != nil {
		claims.ExpiresAt = wire.ExpiresAt.Time
	}

	return claims, nil
}

// Peek extracts the subject from a structurally well-formed token WITHOUT
// verifying the signature. It exists solely so the limiter can bill a
// request against the claimed identity's pool before full validation; never
// authorize anything with it.
func (c *Codec) Peek(raw string) (string, bool) {
	var wire wireClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &wire); err != nil {
		return "", false
	}
	if wire.Subject == "" {
		return "", false
	}
	return wire.Subject, true
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return ErrBadSignature
	}
}

func (c *Codec) method() jwt.SigningMethod {
	switch c.cfg.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (c *Codec) signKey() (interface{}, error) {
	switch c.cfg.SigningMethod {
	case MethodHS256:
		return c.cfg.PrivateKey, nil
	default:
		return parseEdPrivateKey(c.cfg.PrivateKey)
	}
}

func (c *Codec) verifyKey() (interface{}, error) {
	switch c.cfg.SigningMethod {
	case MethodHS256:
		return c.cfg.PrivateKey, nil
	default:
		return parseEdPublicKey(c.cfg.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
