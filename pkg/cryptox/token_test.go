package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	tests := []struct {
		name string
		size int
		len  int
	}{
		{"128-bit token", TokenSize128, 22},
		{"256-bit token", TokenSize256, 43},
		{"custom size", 24, 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.size)
			require.NoError(t, err)
			require.Len(t, token, tt.len)

			token2, err := GenerateToken(tt.size)
			require.NoError(t, err)
			require.NotEqual(t, token, token2, "tokens should be unique")
		})
	}
}

func TestGenerateToken_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		token, err := GenerateToken(size)
		require.Error(t, err)
		require.Empty(t, token)
	}
}

func TestFingerprintToken(t *testing.T) {
	fp1a := FingerprintToken("test-token-1")
	fp1b := FingerprintToken("test-token-1")
	fp2 := FingerprintToken("test-token-2")

	require.Equal(t, fp1a, fp1b, "fingerprint should be deterministic")
	require.NotEqual(t, fp1a, fp2)

	// base64url SHA-256 is 43 chars
	require.Len(t, fp1a, 43)
}

func TestNewSecret_RoundTrip(t *testing.T) {
	s, err := NewSecret()
	require.NoError(t, err)
	require.Equal(t, s.Digest, FingerprintToken(s.Raw))
	require.NotEqual(t, s.Raw, s.Digest)
}

func TestNewSecret_NoCollisions(t *testing.T) {
	const count = 10_000
	raws := make(map[string]struct{}, count)
	digests := make(map[string]struct{}, count)

	for range count {
		s, err := NewSecret()
		require.NoError(t, err)

		_, dupRaw := raws[s.Raw]
		_, dupDigest := digests[s.Digest]
		require.False(t, dupRaw, "duplicate raw token generated")
		require.False(t, dupDigest, "duplicate digest generated")

		raws[s.Raw] = struct{}{}
		digests[s.Digest] = struct{}{}
	}
}
