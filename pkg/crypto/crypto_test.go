package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)

	require.True(t, VerifyPassword(hash, "secret"))
	require.False(t, VerifyPassword(hash, "incorrect"))
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(32)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	other, err := GenerateToken(32)
	require.NoError(t, err)
	require.NotEqual(t, token, other)
}

func TestGenerateNumericCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateNumericCode(6)
		require.NoError(t, err)
		require.Len(t, code, 6)
		require.NotEqual(t, byte('0'), code[0])
		for _, r := range code {
			require.True(t, r >= '0' && r <= '9')
		}
	}

	_, err := GenerateNumericCode(0)
	require.Error(t, err)
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(8)
	require.NoError(t, err)
	require.Len(t, code, 8)
	require.NotContains(t, code, "0")
	require.NotContains(t, code, "O")
	require.Equal(t, strings.ToUpper(code), code)

	_, err = GenerateCode(0)
	require.Error(t, err)
}

func TestHashTokenIsStable(t *testing.T) {
	require.Equal(t, HashToken("abc"), HashToken("abc"))
	require.NotEqual(t, HashToken("abc"), HashToken("abd"))
	require.Len(t, HashToken("abc"), 64)
}

func TestHMACSHA512(t *testing.T) {
	sig := SignHMACSHA512("secret", "amount=1000&order=1")
	require.Len(t, sig, 128)
	require.True(t, VerifyHMACSHA512("secret", "amount=1000&order=1", sig))
	require.False(t, VerifyHMACSHA512("secret", "amount=2000&order=1", sig))
	require.False(t, VerifyHMACSHA512("other", "amount=1000&order=1", sig))
}
