package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(stdErrors.New("disk full"), "save lesson")
	require.Equal(t, "save lesson: disk full", err.Error())
	require.Equal(t, ErrInternalServer.Code, err.Code)
	require.Equal(t, http.StatusInternalServerError, err.StatusCode)

	var nilErr *AppError
	require.Equal(t, "<nil>", nilErr.Error())
}

func TestWithInternalLeavesSentinelUntouched(t *testing.T) {
	cause := stdErrors.New("expired signature")
	got := ErrUnauthorized.WithInternal(cause)

	require.NotSame(t, ErrUnauthorized, got)
	require.Nil(t, ErrUnauthorized.Internal)
	require.ErrorIs(t, got, cause)
}

func TestFromError(t *testing.T) {
	require.Nil(t, FromError(nil))
	require.Same(t, ErrNotFound, FromError(ErrNotFound))

	wrapped := fmt.Errorf("unit service: %w", NewConflict("unit name taken"))
	require.Equal(t, "unit name taken", FromError(wrapped).Message)

	out := FromError(stdErrors.New("raw"))
	require.Equal(t, ErrInternalServer.Code, out.Code)
	require.NotNil(t, out.Internal)
}

func TestConstructorsKeepTaxonomy(t *testing.T) {
	cases := []struct {
		err    *AppError
		target *AppError
		status int
	}{
		{NewBadRequest("invalid CEFR level"), ErrBadRequest, http.StatusBadRequest},
		{NewNotFound("unit not found"), ErrNotFound, http.StatusNotFound},
		{NewConflict("email already exists"), ErrConflict, http.StatusConflict},
		{NewForbidden("not a member"), ErrForbidden, http.StatusForbidden},
	}
	for _, tc := range cases {
		require.Equal(t, tc.status, tc.err.StatusCode)
		wrapped := fmt.Errorf("lesson service: create: %w", tc.err)
		require.True(t, Is(wrapped, tc.target), tc.target.Code)
		require.False(t, Is(wrapped, ErrInternalServer))
	}
	require.False(t, Is(ErrNotFound, nil))
}
