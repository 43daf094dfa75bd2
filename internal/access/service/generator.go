package service

import "github.com/aussiebroadwan/ledgerdrop/pkg/cryptox"

// SecretGenerator produces a raw token and the digest that gets stored.
type SecretGenerator interface {
	Generate() (cryptox.Secret, error)
}

// RandomSecrets draws 256-bit secrets from crypto/rand.
type RandomSecrets struct{}

func (RandomSecrets) Generate() (cryptox.Secret, error) {
	return cryptox.NewSecret()
}
