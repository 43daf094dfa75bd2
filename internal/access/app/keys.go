package app

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/ledgerdrop/pkg/cryptox"
	"github.com/aussiebroadwan/ledgerdrop/pkg/jwtx"
)

// SessionKeys signs and verifies session bearer tokens.
type SessionKeys struct {
	Signer   *jwtx.EdDSASigner
	Verifier *jwtx.EdDSAVerifier
}

// LoadSessionKeys reads the Ed25519 signing key from cfg.SessionKeyFile,
// generating it on first start. The key id is derived from the public key so
// it stays stable across restarts.
func LoadSessionKeys(cfg Config, logger *slog.Logger) (SessionKeys, error) {
	priv, err := cryptox.LoadOrCreateEd25519Key(cfg.SessionKeyFile)
	if err != nil {
		return SessionKeys{}, fmt.Errorf("failed to load session signing key: %w", err)
	}

	sum := sha256.Sum256(priv.Public().(ed25519.PublicKey))
	kid := base64.RawURLEncoding.EncodeToString(sum[:8])

	signer, err := jwtx.NewSignerEdDSA(kid, priv)
	if err != nil {
		return SessionKeys{}, err
	}

	logger.Info("session signing key loaded", "kid", kid, "path", cfg.SessionKeyFile)
	return SessionKeys{
		Signer:   signer,
		Verifier: jwtx.NewVerifierEdDSA(kid, signer.Public(), cfg.Issuer),
	}, nil
}

// LoadPasswordHasher returns the argon2id hasher keyed with the pepper at
// cfg.PepperFile.
func LoadPasswordHasher(cfg Config) (*cryptox.PasswordHasher, error) {
	pepper, err := cryptox.LoadOrCreatePepper(cfg.PepperFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}
	return cryptox.NewPasswordHasher(pepper), nil
}
