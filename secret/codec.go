package secret

import (
	"errors"

	"github.com/MrEthical07/dramauth/password"
)

// Codec is the single owner of secret handling: slow hashing of
// passwords and backup codes, and TOTP generation and verification.
type Codec struct {
	hasher *password.Argon2
	totp   TOTPConfig
}

// NewCodec builds a codec over hasher with the given TOTP parameters.
func NewCodec(hasher *password.Argon2, cfg TOTPConfig) (*Codec, error) {
	if hasher == nil {
		return nil, errors.New("secret: hasher is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Codec{hasher: hasher, totp: cfg}, nil
}

// HashSecret returns a salted slow hash of plain.
func (c *Codec) HashSecret(plain string) (string, error) {
	return c.hasher.Hash(plain)
}

// VerifySecret reports whether plain matches hash. Malformed hashes
// and oversized input are a mismatch.
func (c *Codec) VerifySecret(plain, hash string) bool {
	ok, err := c.hasher.Verify(plain, hash)
	return err == nil && ok
}

// NeedsRehash reports whether hash was produced with weaker parameters
// than the codec now uses.
func (c *Codec) NeedsRehash(hash string) bool {
	upgrade, err := c.hasher.NeedsUpgrade(hash)
	return err == nil && upgrade
}

// TOTP returns the codec's TOTP parameters.
func (c *Codec) TOTP() TOTPConfig {
	return c.totp
}
