package providers

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func newTestGoogleVerifier(t *testing.T, now time.Time) (*GoogleVerifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	v, err := NewGoogleVerifierWithKeys(GoogleConfig{
		ClientID: "client-123",
		Now:      func() time.Time { return now },
	}, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}})
	require.NoError(t, err)
	return v, key
}

func TestGoogleVerifierAcceptsValidToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	v, key := newTestGoogleVerifier(t, now)

	raw := signIDToken(t, key, jwt.MapClaims{
		"iss":            GoogleIssuer,
		"aud":            "client-123",
		"sub":            "google-sub-1",
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
		"email":          "Learner@Example.com",
		"email_verified": true,
		"name":           "Learner One",
		"picture":        "https://img.example.com/a.png",
	})

	identity, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, "google", identity.Provider)
	require.Equal(t, "google-sub-1", identity.Subject)
	require.Equal(t, "learner@example.com", identity.Email)
	require.True(t, identity.EmailVerified)
	require.Equal(t, "Learner One", identity.DisplayName)
}

func TestGoogleVerifierRejectsWrongAudienceAndExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	v, key := newTestGoogleVerifier(t, now)

	wrongAud := signIDToken(t, key, jwt.MapClaims{
		"iss":   GoogleIssuer,
		"aud":   "someone-else",
		"sub":   "s",
		"exp":   now.Add(time.Hour).Unix(),
		"email": "a@b.c",
	})
	_, err := v.Verify(context.Background(), wrongAud)
	require.True(t, errors.Is(err, ErrInvalidCredential))

	expired := signIDToken(t, key, jwt.MapClaims{
		"iss":   GoogleIssuer,
		"aud":   "client-123",
		"sub":   "s",
		"exp":   now.Add(-time.Minute).Unix(),
		"email": "a@b.c",
	})
	_, err = v.Verify(context.Background(), expired)
	require.True(t, errors.Is(err, ErrInvalidCredential))

	_, err = v.Verify(context.Background(), "  ")
	require.True(t, errors.Is(err, ErrInvalidCredential))
}

func TestGoogleVerifierRejectsForeignSignature(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	v, _ := newTestGoogleVerifier(t, now)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	raw := signIDToken(t, other, jwt.MapClaims{
		"iss":   GoogleIssuer,
		"aud":   "client-123",
		"sub":   "s",
		"exp":   now.Add(time.Hour).Unix(),
		"email": "a@b.c",
	})

	_, err = v.Verify(context.Background(), raw)
	require.True(t, errors.Is(err, ErrInvalidCredential))
}

func TestNewGoogleVerifierRequiresClientID(t *testing.T) {
	_, err := NewGoogleVerifier(GoogleConfig{})
	require.EqualError(t, err, "google provider: client id is required")
}
