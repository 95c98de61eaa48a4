package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type jwtFixture struct {
	svc *JWTService
	now time.Time
}

func newJWTFixture(t *testing.T, cfg JWTConfig) *jwtFixture {
	t.Helper()
	f := &jwtFixture{now: time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)}
	if cfg.Secret == "" {
		cfg.Secret = "lesson-secret"
	}
	cfg.Clock = func() time.Time { return f.now }
	svc, err := NewJWTService(cfg)
	require.NoError(t, err)
	f.svc = svc
	return f
}

var student = TokenInput{UserID: "stu-42", DeviceID: "tablet-1", Role: "STUDENT"}

func TestNewJWTServiceDefaults(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.EqualError(t, err, "jwt: secret must be provided")

	svc, err := NewJWTService(JWTConfig{Secret: "s"})
	require.NoError(t, err)
	require.Equal(t, DefaultAccessTokenTTL, svc.AccessTTL())
	require.Equal(t, DefaultRefreshTokenTTL, svc.refreshTTL)
	require.NotEqual(t, svc.secret, svc.refreshSecret)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	f := newJWTFixture(t, JWTConfig{Issuer: "happycat", AccessTokenTTL: 30 * time.Minute})

	token, err := f.svc.GenerateAccessToken(student)
	require.NoError(t, err)

	claims, err := f.svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, student.UserID, claims.UserID)
	require.Equal(t, student.UserID, claims.Subject)
	require.Equal(t, student.DeviceID, claims.DeviceID)
	require.Equal(t, student.Role, claims.Role)
	require.Equal(t, TokenTypeAccess, claims.Type)
	require.Equal(t, "happycat", claims.Issuer)
	require.True(t, claims.ExpiresAt.Time.Equal(f.now.Add(30*time.Minute)))

	again, err := f.svc.GenerateAccessToken(student)
	require.NoError(t, err)
	require.NotEqual(t, token, again)
}

func TestTokenKindsDoNotCrossValidate(t *testing.T) {
	f := newJWTFixture(t, JWTConfig{})

	access, err := f.svc.GenerateAccessToken(student)
	require.NoError(t, err)
	refresh, err := f.svc.GenerateRefreshToken(student)
	require.NoError(t, err)

	_, err = f.svc.ValidateRefreshToken(access)
	require.Error(t, err)
	_, err = f.svc.ValidateAccessToken(refresh)
	require.Error(t, err)

	claims, err := f.svc.ValidateRefreshToken(refresh)
	require.NoError(t, err)
	require.Equal(t, TokenTypeRefresh, claims.Type)
}

func TestGenerateRequiresIdentity(t *testing.T) {
	f := newJWTFixture(t, JWTConfig{})

	_, err := f.svc.GenerateAccessToken(TokenInput{DeviceID: "d"})
	require.EqualError(t, err, "jwt: user id is required")
	_, err = f.svc.GenerateRefreshToken(TokenInput{UserID: "u"})
	require.EqualError(t, err, "jwt: device id is required")
}

func TestValidateRejections(t *testing.T) {
	f := newJWTFixture(t, JWTConfig{Issuer: "happycat", AccessTokenTTL: time.Minute})
	token, err := f.svc.GenerateAccessToken(student)
	require.NoError(t, err)

	otherKey := newJWTFixture(t, JWTConfig{Secret: "another-secret", Issuer: "happycat"})
	otherIssuer := newJWTFixture(t, JWTConfig{Issuer: "someone-else"})

	_, err = otherKey.svc.ValidateAccessToken(token)
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	_, err = otherIssuer.svc.ValidateAccessToken(token)
	require.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	_, err = f.svc.ValidateAccessToken("")
	require.Error(t, err)

	f.now = f.now.Add(2 * time.Minute)
	_, err = f.svc.ValidateAccessToken(token)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}
