package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL defines the fallback validity period for bearer tokens.
const DefaultAccessTokenTTL = 15 * time.Minute

// TokenCodecConfig bundles the configuration required to build a TokenCodec.
type TokenCodecConfig struct {
	Secret string
	Issuer string
	Clock  func() time.Time
}

// Subject is the identity carried inside a bearer token.
type Subject struct {
	ID   string
	Role string
}

// Claims represents the custom claims embedded in issued JWTs.
type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 bearer tokens. Given the same secret,
// subject and clock reading it always produces the same token.
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenCodec constructs a TokenCodec when provided with the required configuration.
func NewTokenCodec(cfg TokenCodecConfig) (*TokenCodec, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token codec: secret must be provided")
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &TokenCodec{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		now:    now,
	}, nil
}

// Encode issues a signed token for subject valid for ttl.
func (c *TokenCodec) Encode(subject Subject, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject.ID) == "" {
		return "", errors.New("token codec: subject id is required")
	}
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	now := c.now()
	claims := &Claims{
		UserID: subject.ID,
		Role:   subject.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.ID,
			Issuer:    c.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("token codec: sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies token and returns its subject. Failures are reported as
// ErrTokenMalformed, ErrTokenSignatureInvalid or ErrTokenExpired.
func (c *TokenCodec) Decode(token string) (Subject, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Subject{}, ErrTokenMalformed
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var claims Claims
	_, err := jwt.NewParser(opts...).ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return Subject{}, classifyParseError(err)
	}

	if claims.UserID == "" {
		return Subject{}, ErrTokenMalformed
	}

	return Subject{ID: claims.UserID, Role: claims.Role}, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenSignatureInvalid, err)
	}
}
