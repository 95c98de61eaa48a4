package app

import (
	"strings"

	"github.com/charlesng35/happycat/internal/auth"
	"github.com/charlesng35/happycat/internal/auth/providers"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	access := c.JWT.AccessTTL
	if access <= 0 {
		access = auth.DefaultAccessTokenTTL
	}
	refresh := c.JWT.RefreshTTL
	if refresh <= 0 {
		refresh = auth.DefaultRefreshTokenTTL
	}

	return auth.JWTConfig{
		Secret:          c.JWT.Secret,
		RefreshSecret:   c.JWT.RefreshSecret,
		Issuer:          c.JWT.Issuer,
		AccessTokenTTL:  access,
		RefreshTokenTTL: refresh,
	}
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c AuthConfig) GoogleEnabled() bool {
	return strings.TrimSpace(c.Google.ClientID) != ""
}

// GoogleVerifierConfig converts AuthConfig into GoogleVerifier parameters.
func (c AuthConfig) GoogleVerifierConfig() providers.GoogleConfig {
	return providers.GoogleConfig{ClientID: strings.TrimSpace(c.Google.ClientID)}
}

// FacebookEnabled reports whether Facebook sign-in is configured.
func (c AuthConfig) FacebookEnabled() bool {
	return strings.TrimSpace(c.Facebook.AppID) != "" && strings.TrimSpace(c.Facebook.AppSecret) != ""
}

// FacebookClientConfig converts AuthConfig into FacebookClient parameters.
func (c AuthConfig) FacebookClientConfig() providers.FacebookConfig {
	return providers.FacebookConfig{
		AppID:     strings.TrimSpace(c.Facebook.AppID),
		AppSecret: c.Facebook.AppSecret,
	}
}
