package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

// GoogleIssuer is the issuer of Google ID tokens.
const GoogleIssuer = "https://accounts.google.com"

// ErrInvalidCredential marks a credential the provider rejected.
var ErrInvalidCredential = errors.New("providers: invalid credential")

// GoogleConfig configures Google sign-in.
type GoogleConfig struct {
	ClientID   string
	Issuer     string
	HTTPClient *http.Client
	Timeout    time.Duration
	Now        func() time.Time
}

// GoogleVerifier validates Google ID tokens. Issuer discovery happens on
// first use and is retried until it succeeds.
type GoogleVerifier struct {
	cfg GoogleConfig

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
}

// NewGoogleVerifier returns a verifier for tokens issued to cfg.ClientID.
func NewGoogleVerifier(cfg GoogleConfig) (*GoogleVerifier, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("google provider: client id is required")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		cfg.Issuer = GoogleIssuer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &GoogleVerifier{cfg: cfg}, nil
}

// NewGoogleVerifierWithKeys skips discovery and verifies signatures against keys.
func NewGoogleVerifierWithKeys(cfg GoogleConfig, keys oidc.KeySet) (*GoogleVerifier, error) {
	v, err := NewGoogleVerifier(cfg)
	if err != nil {
		return nil, err
	}
	v.verifier = oidc.NewVerifier(v.cfg.Issuer, keys, v.oidcConfig())
	return v, nil
}

func (v *GoogleVerifier) Metadata() Metadata {
	return Metadata{
		Type:        "google",
		DisplayName: "Google",
		ButtonText:  "Continue with Google",
		Order:       10,
	}
}

func (v *GoogleVerifier) oidcConfig() *oidc.Config {
	return &oidc.Config{ClientID: v.cfg.ClientID, Now: v.cfg.Now}
}

func (v *GoogleVerifier) clientContext(ctx context.Context) context.Context {
	if v.cfg.HTTPClient != nil {
		return oidc.ClientContext(ctx, v.cfg.HTTPClient)
	}
	return ctx
}

func (v *GoogleVerifier) idTokenVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.verifier != nil {
		return v.verifier, nil
	}

	ctx, cancel := context.WithTimeout(v.clientContext(ctx), v.cfg.Timeout)
	defer cancel()

	issuer, err := oidc.NewProvider(ctx, v.cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("google provider: discovery failed: %w", err)
	}
	v.verifier = issuer.Verifier(v.oidcConfig())
	return v.verifier, nil
}

// Verify checks the ID token signature, audience and expiry.
func (v *GoogleVerifier) Verify(ctx context.Context, credential string) (*Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, fmt.Errorf("%w: id token is empty", ErrInvalidCredential)
	}

	verifier, err := v.idTokenVerifier(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(v.clientContext(ctx), v.cfg.Timeout)
	defer cancel()

	idToken, err := verifier.Verify(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("google provider: decode claims: %w", err)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: email claim missing", ErrInvalidCredential)
	}

	return &Identity{
		Provider:      "google",
		Subject:       idToken.Subject,
		Email:         strings.ToLower(claims.Email),
		EmailVerified: claims.EmailVerified,
		DisplayName:   claims.Name,
		AvatarURL:     claims.Picture,
	}, nil
}
