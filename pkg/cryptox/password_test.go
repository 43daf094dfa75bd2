package cryptox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	h := NewPasswordHasher("test-pepper")

	tests := []struct {
		name     string
		password string
	}{
		{"simple password", "password123"},
		{"complex password", "P@ssw0rd!#$%^&*()"},
		{"long password", strings.Repeat("a", 100)},
		{"unicode password", "пароль🔒密码"},
		{"whitespace password", "   spaces   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := h.Hash(tt.password)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"), "hash should be in PHC format")
			require.Len(t, strings.Split(hash, "$"), 6)

			require.NoError(t, h.Verify(tt.password, hash))
			require.ErrorIs(t, h.Verify(tt.password+"x", hash), ErrPasswordMismatch)
		})
	}
}

func TestHashPassword_SaltsDiffer(t *testing.T) {
	h := NewPasswordHasher("")

	a, err := h.Hash("hunter2x")
	require.NoError(t, err)
	b, err := h.Hash("hunter2x")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestHashPassword_CustomParams(t *testing.T) {
	h := NewPasswordHasherWithParams("p", Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1})

	hash, err := h.Hash("hunter2x")
	require.NoError(t, err)
	require.Contains(t, hash, "$m=64,t=1,p=1$")

	// Verification reads parameters from the hash, not the hasher.
	require.NoError(t, NewPasswordHasher("p").Verify("hunter2x", hash))
}

func TestVerifyPassword_PepperMatters(t *testing.T) {
	hash, err := NewPasswordHasher("pepper-a").Hash("hunter2x")
	require.NoError(t, err)

	require.ErrorIs(t, NewPasswordHasher("pepper-b").Verify("hunter2x", hash), ErrPasswordMismatch)
}

func TestVerifyPassword_InvalidHash(t *testing.T) {
	h := NewPasswordHasher("")

	for _, hash := range []string{
		"",
		"plain",
		"$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$garbage$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$!!!$aGFzaA",
	} {
		require.ErrorIs(t, h.Verify("x", hash), ErrInvalidHash, hash)
	}
}

func TestLoadOrCreatePepper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pepper")

	first, err := LoadOrCreatePepper(path)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := LoadOrCreatePepper(path)
	require.NoError(t, err)
	require.Equal(t, first, second, "pepper must be stable across restarts")

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadOrCreatePepper_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pepper")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	_, err := LoadOrCreatePepper(path)
	require.Error(t, err)
}
