package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

// DefaultGraphURL is the Graph API base used to resolve access tokens.
const DefaultGraphURL = "https://graph.facebook.com/v19.0"

// FacebookConfig configures Facebook sign-in.
type FacebookConfig struct {
	AppID      string
	AppSecret  string
	GraphURL   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// FacebookClient resolves a user access token into an identity through the
// Graph API /me endpoint.
type FacebookClient struct {
	cfg FacebookConfig
}

// NewFacebookClient validates cfg and returns a client.
func NewFacebookClient(cfg FacebookConfig) (*FacebookClient, error) {
	if strings.TrimSpace(cfg.AppID) == "" {
		return nil, errors.New("facebook provider: app id is required")
	}
	if strings.TrimSpace(cfg.AppSecret) == "" {
		return nil, errors.New("facebook provider: app secret is required")
	}
	if strings.TrimSpace(cfg.GraphURL) == "" {
		cfg.GraphURL = DefaultGraphURL
	}
	cfg.GraphURL = strings.TrimRight(cfg.GraphURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &FacebookClient{cfg: cfg}, nil
}

func (c *FacebookClient) Metadata() Metadata {
	return Metadata{
		Type:        "facebook",
		DisplayName: "Facebook",
		ButtonText:  "Continue with Facebook",
		Order:       20,
	}
}

type graphUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Verify calls /me with the access token and an appsecret_proof.
func (c *FacebookClient) Verify(ctx context.Context, credential string) (*Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, fmt.Errorf("%w: access token is empty", ErrInvalidCredential)
	}

	if c.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.cfg.HTTPClient)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: credential,
		TokenType:   "Bearer",
	}))

	q := url.Values{}
	q.Set("fields", "id,name,email,picture.type(large)")
	q.Set("appsecret_proof", c.appSecretProof(credential))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.GraphURL+"/me?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("facebook provider: build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("facebook provider: graph request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("facebook provider: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var gerr graphError
		_ = json.Unmarshal(body, &gerr)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredential, gerr.Error.Message)
		}
		return nil, fmt.Errorf("facebook provider: graph status %d", resp.StatusCode)
	}

	var user graphUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("facebook provider: decode response: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: graph returned no id", ErrInvalidCredential)
	}
	if user.Email == "" {
		return nil, fmt.Errorf("%w: email permission not granted", ErrInvalidCredential)
	}

	return &Identity{
		Provider:      "facebook",
		Subject:       user.ID,
		Email:         strings.ToLower(user.Email),
		EmailVerified: true,
		DisplayName:   user.Name,
		AvatarURL:     user.Picture.Data.URL,
	}, nil
}

func (c *FacebookClient) appSecretProof(token string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.AppSecret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
