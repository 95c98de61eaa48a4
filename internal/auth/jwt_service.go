package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultAccessTokenTTL defines the fallback validity period for access tokens.
	DefaultAccessTokenTTL = time.Hour
	// DefaultRefreshTokenTTL is the fallback refresh token lifetime.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Token types carried in the typ claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Secret          string
	RefreshSecret   string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Clock           func() time.Time
}

// Claims represents the custom claims embedded in issued JWTs.
type Claims struct {
	UserID   string `json:"uid"`
	DeviceID string `json:"did"`
	Role     string `json:"role"`
	Type     string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenInput holds the parameters used when generating a token.
type TokenInput struct {
	UserID   string
	DeviceID string
	Role     string
}

// JWTService is responsible for issuing and validating JSON Web Tokens.
type JWTService struct {
	secret        []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewJWTService constructs a JWTService instance when provided with the required configuration.
// Refresh tokens are signed with their own secret; when none is configured a
// key derived from the access secret is used so the two token types never
// validate against each other.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}

	refreshSecret := cfg.RefreshSecret
	if refreshSecret == "" {
		refreshSecret = cfg.Secret + ":refresh"
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &JWTService{
		secret:        []byte(cfg.Secret),
		refreshSecret: []byte(refreshSecret),
		issuer:        cfg.Issuer,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           now,
	}, nil
}

// AccessTTL reports the access token lifetime.
func (s *JWTService) AccessTTL() time.Duration { return s.accessTTL }

// GenerateAccessToken issues a signed access token.
func (s *JWTService) GenerateAccessToken(input TokenInput) (string, error) {
	return s.sign(input, TokenTypeAccess, s.accessTTL, s.secret)
}

// GenerateRefreshToken issues a signed refresh token.
func (s *JWTService) GenerateRefreshToken(input TokenInput) (string, error) {
	return s.sign(input, TokenTypeRefresh, s.refreshTTL, s.refreshSecret)
}

// ValidateAccessToken parses and validates an access token.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString, TokenTypeAccess, s.secret)
}

// ValidateRefreshToken parses and validates a refresh token.
func (s *JWTService) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString, TokenTypeRefresh, s.refreshSecret)
}

func (s *JWTService) sign(input TokenInput, typ string, ttl time.Duration, key []byte) (string, error) {
	if input.UserID == "" {
		return "", errors.New("jwt: user id is required")
	}
	if input.DeviceID == "" {
		return "", errors.New("jwt: device id is required")
	}

	now := s.now()
	claims := &Claims{
		UserID:   input.UserID,
		DeviceID: input.DeviceID,
		Role:     input.Role,
		Type:     typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   input.UserID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

func (s *JWTService) parse(raw, typ string, key []byte) (*Claims, error) {
	if raw == "" {
		return nil, errors.New("jwt: token string is empty")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := new(Claims)
	keyFunc := func(*jwt.Token) (any, error) { return key, nil }
	if _, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, keyFunc); err != nil {
		return nil, fmt.Errorf("jwt: parse token: %w", err)
	}

	switch {
	case claims.Type != typ:
		return nil, fmt.Errorf("jwt: expected %s token, got %q", typ, claims.Type)
	case claims.UserID == "" || claims.DeviceID == "":
		return nil, errors.New("jwt: missing user or device claim")
	}
	return claims, nil
}
