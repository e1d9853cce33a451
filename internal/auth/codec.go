package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExpiryGrace tolerates clock skew between the issuing service and this
// verifier: a token is only considered expired once its exp claim is more
// than this far in the past.
const ExpiryGrace = 300 * time.Second

// Claims carried by access tokens.
type Claims struct {
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity converts verified claims into the per-request identity.
func (c *Claims) Identity() Identity {
	return Identity{
		UserID: c.Subject,
		Role:   c.Role,
		Name:   c.Name,
		Email:  c.Email,
	}
}

// Codec signs and verifies HS256 bearer tokens. Verification is a pure
// function of the token, the configured secret/issuer/audience and the
// clock; it has no side effects beyond debug logging of rejection reasons.
type Codec struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
	log      *zap.Logger
	parser   *jwt.Parser
}

// CodecOption configures Codec behavior.
type CodecOption func(*Codec)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// WithLogger sets the logger used for rejection diagnostics.
func WithLogger(log *zap.Logger) CodecOption {
	return func(c *Codec) {
		if log != nil {
			c.log = log
		}
	}
}

// NewCodec constructs a Codec. Secret, issuer and audience are process
// configuration; a mismatch on either claim is a hard failure.
func NewCodec(secret, issuer, audience string, opts ...CodecOption) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret is required")
	}
	issuer = strings.TrimSpace(issuer)
	audience = strings.TrimSpace(audience)
	if issuer == "" || audience == "" {
		return nil, errors.New("auth: issuer and audience are required")
	}
	c := &Codec{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(ExpiryGrace),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	return c, nil
}

// Sign issues a token for the identity with the given lifetime.
func (c *Codec) Sign(id Identity, ttl time.Duration) (string, time.Time, error) {
	userID := strings.TrimSpace(id.UserID)
	if userID == "" {
		return "", time.Time{}, errors.New("auth: user id is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("auth: ttl must be greater than zero")
	}
	now := c.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Role:  id.Role,
		Name:  id.Name,
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify validates signature, issuer, audience and expiry (with grace) and
// requires a subject claim. Callers only ever see ErrInvalidToken; the
// specific reason is logged for observability.
func (c *Codec) Verify(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := c.parser.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		c.log.Debug("token rejected", zap.String("reason", rejectionReason(err)))
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		c.log.Debug("token rejected", zap.String("reason", "claims type mismatch"))
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		c.log.Debug("token rejected", zap.String("reason", "missing subject"))
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature invalid"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired beyond grace"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "issuer mismatch"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "audience mismatch"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return err.Error()
	}
}
