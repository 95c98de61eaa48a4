package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	meta Metadata
}

func (s stubVerifier) Metadata() Metadata { return s.meta }

func (s stubVerifier) Verify(context.Context, string) (*Identity, error) {
	return &Identity{Provider: s.meta.Type, Subject: "sub"}, nil
}

func TestRegistryRegisterAndList(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.Register(stubVerifier{meta: Metadata{Type: "facebook", DisplayName: "Facebook", Order: 20}}))
	require.NoError(t, reg.Register(stubVerifier{meta: Metadata{Type: " Google ", DisplayName: "Google", Order: 10}}))

	metadata := reg.Metadata()
	require.Len(t, metadata, 2)
	require.Equal(t, "google", metadata[0].Type)
	require.Equal(t, "facebook", metadata[1].Type)

	v, ok := reg.Get("GOOGLE")
	require.True(t, ok)
	identity, err := v.Verify(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, "sub", identity.Subject)

	_, ok = reg.Get("saml")
	require.False(t, ok)
}

func TestRegistryRejectsDuplicatesAndEmptyTypes(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(stubVerifier{meta: Metadata{Type: "google"}}))

	err := reg.Register(stubVerifier{meta: Metadata{Type: "google"}})
	require.True(t, errors.Is(err, ErrProviderExists))

	require.Error(t, reg.Register(stubVerifier{}))
	require.Error(t, reg.Register(nil))
}

func TestRegistryDefaultsOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(stubVerifier{meta: Metadata{Type: "x", DisplayName: "X"}}))
	require.Equal(t, 100, reg.Metadata()[0].Order)
}
