package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL defines the fallback validity period for session tokens.
const DefaultSessionTTL = 30 * 24 * time.Hour

// SessionTokenConfig bundles the configuration required to build a SessionTokenService.
type SessionTokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
	Clock  func() time.Time
}

// VisitorClaims represents the custom claims embedded in issued session tokens.
type VisitorClaims struct {
	VisitorID     string `json:"vid"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// SessionTokenService issues and validates the signed, stateless session
// tokens carried in the session cookie. Logout is a client-side cookie clear;
// there is no revocation list.
type SessionTokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionTokenService constructs a SessionTokenService. An empty secret is
// an error so that a missing signing secret fails at startup, not per request.
func NewSessionTokenService(cfg SessionTokenConfig) (*SessionTokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("session token: secret must be provided")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &SessionTokenService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    now,
	}, nil
}

// TTL exposes the configured validity window, used for cookie lifetimes.
func (s *SessionTokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a session token for the supplied visitor identity.
func (s *SessionTokenService) Issue(visitorID, email string, emailVerified bool) (string, error) {
	if visitorID == "" {
		return "", errors.New("session token: visitor id is required")
	}

	now := s.now()

	claims := &VisitorClaims{
		VisitorID:     visitorID,
		Email:         email,
		EmailVerified: emailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   visitorID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("session token: sign: %w", err)
	}

	return signed, nil
}

// Validate parses and validates a signed session token, returning the visitor
// claims. Any signature mismatch, malformed structure, or expiry violation is
// an error; callers normalise every failure to "no identity".
func (s *SessionTokenService) Validate(tokenString string) (*VisitorClaims, error) {
	if tokenString == "" {
		return nil, errors.New("session token: token string is empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims VisitorClaims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("session token: parse: %w", err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, errors.New("session token: invalid issuer")
	}

	if claims.VisitorID == "" {
		return nil, errors.New("session token: missing visitor id claim")
	}

	return &claims, nil
}
