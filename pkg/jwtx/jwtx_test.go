package jwtx_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/aussiebroadwan/ledgerdrop/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func newSigner(t *testing.T, kid string) *jwtx.EdDSASigner {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	s, err := jwtx.NewSignerEdDSA(kid, priv)
	require.NoError(t, err)
	return s
}

func TestSignVerify_RoundTrip(t *testing.T) {
	now := time.Now().UTC()
	s := newSigner(t, "k1")
	v := jwtx.NewVerifierEdDSA("k1", s.Public(), "ledgerdrop")

	tok, err := s.Sign(jwtx.NewSessionClaims("user-1", "sess-1", "ledgerdrop", time.Hour, now))
	require.NoError(t, err)

	claims, err := v.Verify(tok, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "sess-1", claims.SID)
	require.NotEmpty(t, claims.ID)
}

func TestVerify_Expired(t *testing.T) {
	now := time.Now().UTC()
	s := newSigner(t, "k1")
	v := jwtx.NewVerifierEdDSA("k1", s.Public(), "")

	tok, err := s.Sign(jwtx.NewSessionClaims("u", "s", "", time.Minute, now))
	require.NoError(t, err)

	_, err = v.Verify(tok, now.Add(2*time.Minute))
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestVerify_WrongIssuer(t *testing.T) {
	now := time.Now().UTC()
	s := newSigner(t, "k1")
	v := jwtx.NewVerifierEdDSA("k1", s.Public(), "ledgerdrop")

	tok, err := s.Sign(jwtx.NewSessionClaims("u", "s", "someone-else", time.Hour, now))
	require.NoError(t, err)

	_, err = v.Verify(tok, now)
	require.ErrorIs(t, err, jwtx.ErrIssuer)
}

func TestVerify_ForeignKey(t *testing.T) {
	now := time.Now().UTC()
	ours := newSigner(t, "k1")
	theirs := newSigner(t, "k1")
	v := jwtx.NewVerifierEdDSA("k1", ours.Public(), "")

	tok, err := theirs.Sign(jwtx.NewSessionClaims("u", "s", "", time.Hour, now))
	require.NoError(t, err)

	_, err = v.Verify(tok, now)
	require.ErrorIs(t, err, jwtx.ErrMalformed)
}

func TestVerify_UnknownKID(t *testing.T) {
	now := time.Now().UTC()
	s := newSigner(t, "k2")
	v := jwtx.NewVerifierEdDSA("k1", s.Public(), "")

	tok, err := s.Sign(jwtx.NewSessionClaims("u", "s", "", time.Hour, now))
	require.NoError(t, err)

	_, err = v.Verify(tok, now)
	require.ErrorIs(t, err, jwtx.ErrUnknownKID)
}

func TestVerify_Garbage(t *testing.T) {
	s := newSigner(t, "k1")
	v := jwtx.NewVerifierEdDSA("k1", s.Public(), "")

	_, err := v.Verify("not.a.jwt", time.Now())
	require.ErrorIs(t, err, jwtx.ErrMalformed)
}

func TestNewSignerEdDSA_BadKey(t *testing.T) {
	_, err := jwtx.NewSignerEdDSA("k", ed25519.PrivateKey([]byte("short")))
	require.Error(t, err)
}
