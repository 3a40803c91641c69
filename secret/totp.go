package secret

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"github.com/pquerna/otp/totp"
)

const totpSecretBytes = 20

// TOTPConfig controls code generation and the acceptance window.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Skew      int
	Algorithm string
}

// DefaultTOTPConfig returns 6 digits, 30s steps, SHA1 and a window of ±2 steps.
func DefaultTOTPConfig() TOTPConfig {
	return TOTPConfig{
		Issuer:    "dramauth",
		Digits:    6,
		Period:    30,
		Skew:      2,
		Algorithm: "SHA1",
	}
}

func (c TOTPConfig) validate() error {
	if c.Digits != 6 && c.Digits != 8 {
		return errors.New("totp digits must be 6 or 8")
	}
	if c.Period <= 0 {
		return errors.New("totp period must be > 0")
	}
	if c.Skew < 0 || c.Skew > 10 {
		return errors.New("totp skew must be in [0,10]")
	}
	if _, err := otpAlgorithm(c.Algorithm); err != nil {
		return err
	}
	return nil
}

// TOTPKey is a freshly generated enrollment secret.
type TOTPKey struct {
	// Secret is the base32 (unpadded) shared secret.
	Secret string
	// URL is the otpauth:// provisioning URI for authenticator apps.
	URL string
}

// NewTOTPKey generates a random shared secret for accountName.
func (c *Codec) NewTOTPKey(accountName string) (*TOTPKey, error) {
	alg, err := otpAlgorithm(c.totp.Algorithm)
	if err != nil {
		return nil, err
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      c.totp.Issuer,
		AccountName: accountName,
		Period:      uint(c.totp.Period),
		SecretSize:  totpSecretBytes,
		Digits:      otp.Digits(c.totp.Digits),
		Algorithm:   alg,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}
	return &TOTPKey{Secret: key.Secret(), URL: key.URL()}, nil
}

// GenerateTOTP returns the code for secret at time t.
func (c *Codec) GenerateTOTP(secret string, t time.Time) (string, error) {
	return c.codeAt(secret, t.Unix()/int64(c.totp.Period))
}

// VerifyTOTP reports whether candidate matches any step in the window
// around t. Every step in the window is evaluated and the comparisons are
// folded together, so timing does not depend on which step matched.
// Malformed secrets and non-numeric or wrong-length candidates yield false.
func (c *Codec) VerifyTOTP(secret, candidate string, t time.Time) bool {
	_, ok := c.VerifyTOTPCounter(secret, candidate, t)
	return ok
}

// VerifyTOTPCounter is VerifyTOTP that also returns the time step the
// candidate matched. When several steps match, the latest one wins.
func (c *Codec) VerifyTOTPCounter(secret, candidate string, t time.Time) (int64, bool) {
	candidate = strings.TrimSpace(candidate)
	if len(candidate) != c.totp.Digits || !isNumeric(candidate) {
		return 0, false
	}

	base := t.Unix() / int64(c.totp.Period)
	matched := 0
	var found int64
	for step := -c.totp.Skew; step <= c.totp.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		code, err := c.codeAt(secret, counter)
		if err != nil {
			return 0, false
		}
		eq := subtle.ConstantTimeCompare([]byte(code), []byte(candidate))
		matched |= eq
		found = selectCounter(eq, counter, found)
	}
	if matched != 1 {
		return 0, false
	}
	return found, true
}

// selectCounter returns x when v is 1 and y when v is 0, without branching.
func selectCounter(v int, x, y int64) int64 {
	mask := -int64(v)
	return (x & mask) | (y &^ mask)
}

func (c *Codec) codeAt(secret string, counter int64) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("empty totp secret")
	}
	alg, err := otpAlgorithm(c.totp.Algorithm)
	if err != nil {
		return "", err
	}
	return hotp.GenerateCodeCustom(secret, uint64(counter), hotp.ValidateOpts{
		Digits:    otp.Digits(c.totp.Digits),
		Algorithm: alg,
	})
}

func otpAlgorithm(name string) (otp.Algorithm, error) {
	switch strings.ToUpper(name) {
	case "", "SHA1":
		return otp.AlgorithmSHA1, nil
	case "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	default:
		return 0, fmt.Errorf("unsupported totp algorithm %q", name)
	}
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
