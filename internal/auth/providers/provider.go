package providers

import "context"

// Metadata describes the static presentation details for a sign-in provider.
type Metadata struct {
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	ButtonText  string `json:"button_text"`
	Order       int    `json:"order"`
}

// Identity represents the claims returned from an external identity provider.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	DisplayName   string
	AvatarURL     string
}

// Verifier checks a credential obtained by the client directly from the
// provider (an ID token or an access token) and returns the identity it
// vouches for.
type Verifier interface {
	Metadata() Metadata
	Verify(ctx context.Context, credential string) (*Identity, error)
}
