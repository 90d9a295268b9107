package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)
	require.NotEqual(t, "secret", hash)

	require.True(t, VerifyPassword(hash, "secret"))
	require.False(t, VerifyPassword(hash, "incorrect"))
	require.False(t, VerifyPassword("not-a-hash", "secret"))
}

func TestGenerateToken(t *testing.T) {
	first, err := GenerateToken(32)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := GenerateToken(32)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestRandomPassword(t *testing.T) {
	password, err := RandomPassword(5)
	require.NoError(t, err)
	require.Len(t, password, 5)
	for _, r := range password {
		require.True(t, strings.ContainsRune(passwordAlphabet, r), "unexpected rune %q", r)
	}

	_, err = RandomPassword(0)
	require.Error(t, err)
}
