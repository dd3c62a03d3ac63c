package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ehr/records/internal/platform/apperr"
)

const (
	// DefaultTokenTTL is the token lifetime when none is configured.
	DefaultTokenTTL = 24 * time.Hour
	// MinSigningKeyLen is the shortest accepted HMAC key in bytes.
	MinSigningKeyLen = 32
)

var (
	ErrInvalidCredentials    = apperr.New(apperr.KindAuthentication, "invalid_credentials", "invalid credentials")
	ErrTokenExpired          = apperr.New(apperr.KindAuthentication, "token_expired", "token expired")
	ErrTokenInvalidSignature = apperr.New(apperr.KindAuthentication, "token_invalid_signature", "token signature invalid")
	ErrTokenMalformed        = apperr.New(apperr.KindAuthentication, "token_malformed", "token malformed")
	ErrTokenRejected         = apperr.New(apperr.KindAuthentication, "token_rejected", "token rejected")
)

// Clock supplies the current time.
type Clock func() time.Time

// TokenConfig is the immutable token configuration. NewTokenService copies
// the signing key, so later mutation of the caller's slice has no effect.
type TokenConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
	TTL        time.Duration
}

// Subject is the identity a token is issued for.
type Subject struct {
	ID    uuid.UUID
	Name  string
	Email string
	Role  Role
}

// SignedToken is an issued token and the instant it stops being valid.
type SignedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Claims is the decoded token payload.
type Claims struct {
	jwt.RegisteredClaims
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// SubjectID parses the subject claim.
func (c *Claims) SubjectID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// TokenService issues and validates HS256 identity tokens.
type TokenService struct {
	issuer   string
	audience string
	key      []byte
	ttl      time.Duration
	now      Clock
}

// NewTokenService validates cfg and returns a service bound to clock. A nil
// clock means time.Now.
func NewTokenService(cfg TokenConfig, clock Clock) (*TokenService, error) {
	if len(cfg.SigningKey) < MinSigningKeyLen {
		return nil, fmt.Errorf("signing key must be at least %d bytes", MinSigningKeyLen)
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("token issuer and audience are required")
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	if ttl < 0 {
		return nil, errors.New("token ttl must be positive")
	}
	if clock == nil {
		clock = time.Now
	}
	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)
	return &TokenService{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		key:      key,
		ttl:      ttl,
		now:      clock,
	}, nil
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// IssueToken signs a token for sub valid from now until now+ttl.
func (s *TokenService) IssueToken(sub Subject) (SignedToken, error) {
	if sub.ID == uuid.Nil || !sub.Role.Valid() {
		return SignedToken{}, errors.New("issue token: subject id and valid role are required")
	}
	// NumericDate has second precision; truncating here keeps exp exactly iat+ttl.
	iat := s.now().UTC().Truncate(time.Second)
	exp := iat.Add(s.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.ID.String(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		Name:  sub.Name,
		Email: sub.Email,
		Role:  sub.Role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return SignedToken{}, fmt.Errorf("sign token: %w", err)
	}
	return SignedToken{Token: signed, ExpiresAt: exp}, nil
}

// ValidateToken verifies raw and returns its claims. There is no leeway:
// the token is rejected with ErrTokenExpired from exp onward.
func (s *TokenService) ValidateToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, classifyTokenError(err)
	}

	if _, err := claims.SubjectID(); err != nil {
		return nil, ErrTokenMalformed.WithMessage("token subject missing or invalid")
	}
	if !claims.Role.Valid() {
		return nil, ErrTokenMalformed.WithMessage("token role missing or invalid")
	}
	return claims, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed.Wrap(err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenInvalidSignature.Wrap(err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired.Wrap(err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrTokenRejected.Wrap(err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return ErrTokenMalformed.Wrap(err)
	default:
		return ErrTokenRejected.Wrap(err)
	}
}
