package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/dramauth/internal"
	"github.com/MrEthical07/dramauth/store"
)

// Alphabet omits glyphs that are easy to misread (0/O, 1/I).
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	DefaultCount  = 10
	DefaultLength = 10
)

var (
	// ErrUnavailable wraps store and hashing failures.
	ErrUnavailable = errors.New("backup code vault unavailable")
	// ErrStale means the account changed since the caller read it.
	ErrStale = errors.New("backup code enrollment lost to a concurrent account change")
)

// Hasher is the slice of the secret codec the vault depends on.
type Hasher interface {
	HashSecret(plain string) (string, error)
	VerifySecret(plain, hash string) bool
}

// Vault issues and redeems single-use backup codes.
type Vault struct {
	store       store.BackupCodeStore
	hasher      Hasher
	count       int
	length      int
	randomIndex func(int) (int, error)
}

// New returns a vault. Non-positive count and length fall back to 10.
func New(s store.BackupCodeStore, hasher Hasher, count, length int) (*Vault, error) {
	if s == nil || hasher == nil {
		return nil, errors.New("vault: store and hasher are required")
	}
	if count <= 0 {
		count = DefaultCount
	}
	if length <= 0 {
		length = DefaultLength
	}
	if length < 8 || length > 32 {
		return nil, errors.New("vault: code length must be in [8,32]")
	}
	return &Vault{
		store:       s,
		hasher:      hasher,
		count:       count,
		length:      length,
		randomIndex: internal.RandomIndex,
	}, nil
}

// Generate returns n display-formatted plaintext codes and the rows
// holding their hashes. Nothing is persisted.
func (v *Vault) Generate(accountID string, n int) ([]string, []store.BackupCode, error) {
	plain := make([]string, 0, n)
	rows := make([]store.BackupCode, 0, n)
	seen := make(map[string]struct{}, n)

	for len(plain) < n {
		code, err := v.newCode()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}

		hash, err := v.hasher.HashSecret(code)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		plain = append(plain, Format(code))
		rows = append(rows, store.BackupCode{
			ID:        internal.NewID(),
			AccountID: accountID,
			Hash:      hash,
		})
	}
	return plain, rows, nil
}

// Enroll replaces the account's codes with a fresh set and returns the
// plaintexts. They are never retrievable again. The replace only happens
// while the account is still at version; otherwise ErrStale is returned
// and the stored codes are untouched.
func (v *Vault) Enroll(ctx context.Context, accountID string, version uint32) ([]string, error) {
	plain, rows, err := v.Generate(accountID, v.count)
	if err != nil {
		return nil, err
	}
	if err := v.store.ReplaceBackupCodes(ctx, accountID, version, rows); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrStale
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return plain, nil
}

// Redeem checks candidate against the account's stored codes in order and
// deletes the first one it matches. Losing a concurrent race for the same
// row counts as no match, so a code is redeemed at most once.
func (v *Vault) Redeem(ctx context.Context, accountID, candidate string) (bool, error) {
	canonical := Canonicalize(candidate)
	if len(canonical) != v.length || !inAlphabet(canonical) {
		return false, nil
	}

	codes, err := v.store.ListBackupCodes(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for _, code := range codes {
		if !v.hasher.VerifySecret(canonical, code.Hash) {
			continue
		}
		removed, err := v.store.DeleteBackupCode(ctx, accountID, code.ID)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return removed, nil
	}
	return false, nil
}

// Remaining returns how many unused codes the account holds.
func (v *Vault) Remaining(ctx context.Context, accountID string) (int, error) {
	codes, err := v.store.ListBackupCodes(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return len(codes), nil
}

// Clear removes every code of the account.
func (v *Vault) Clear(ctx context.Context, accountID string) error {
	if err := v.store.DeleteBackupCodes(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (v *Vault) newCode() (string, error) {
	var b strings.Builder
	b.Grow(v.length)
	for i := 0; i < v.length; i++ {
		idx, err := v.randomIndex(len(Alphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(Alphabet[idx])
	}
	return b.String(), nil
}

// Format splits a canonical code into two dash-separated halves.
func Format(code string) string {
	if len(code) < 2 {
		return code
	}
	half := len(code) / 2
	return code[:half] + "-" + code[half:]
}

// Canonicalize upper-cases the input and strips dashes and spaces.
func Canonicalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer("-", "", " ", "").Replace(code)
}

func inAlphabet(s string) bool {
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(Alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
