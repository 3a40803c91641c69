package dramauth

import (
	"context"
	"time"

	"github.com/MrEthical07/dramauth/store"
)

// timedStore gives every store call its own deadline so a stalled
// backend surfaces as ErrInternal instead of hanging a sign-in.
type timedStore struct {
	accounts      store.AccountRepository
	tokens        store.TokenStore
	codes         store.BackupCodeStore
	confirmations store.ConfirmationStore
	timeout       time.Duration
}

var _ store.AccountStore = (*timedStore)(nil)

func newTimedStore(s store.AccountStore, timeout time.Duration) *timedStore {
	return &timedStore{
		accounts:      s,
		tokens:        s,
		codes:         s,
		confirmations: s,
		timeout:       timeout,
	}
}

func (t *timedStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, t.timeout)
}

func (t *timedStore) GetAccountByEmail(ctx context.Context, email string) (*store.Account, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.accounts.GetAccountByEmail(ctx, email)
}

func (t *timedStore) GetAccountByID(ctx context.Context, id string) (*store.Account, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.accounts.GetAccountByID(ctx, id)
}

func (t *timedStore) CreateAccount(ctx context.Context, account *store.Account) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.accounts.CreateAccount(ctx, account)
}

func (t *timedStore) UpdateAccount(ctx context.Context, account *store.Account) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.accounts.UpdateAccount(ctx, account)
}

func (t *timedStore) SaveToken(ctx context.Context, record *store.TokenRecord) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.tokens.SaveToken(ctx, record)
}

func (t *timedStore) GetToken(ctx context.Context, kind store.TokenKind, token string) (*store.TokenRecord, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.tokens.GetToken(ctx, kind, token)
}

func (t *timedStore) FindTokenByEmail(ctx context.Context, kind store.TokenKind, email string) (*store.TokenRecord, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.tokens.FindTokenByEmail(ctx, kind, email)
}

func (t *timedStore) TakeToken(ctx context.Context, kind store.TokenKind, token string) (*store.TokenRecord, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.tokens.TakeToken(ctx, kind, token)
}

func (t *timedStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.tokens.DeleteExpiredTokens(ctx, now)
}

func (t *timedStore) ReplaceBackupCodes(ctx context.Context, accountID string, version uint32, codes []store.BackupCode) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.codes.ReplaceBackupCodes(ctx, accountID, version, codes)
}

func (t *timedStore) ListBackupCodes(ctx context.Context, accountID string) ([]store.BackupCode, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.codes.ListBackupCodes(ctx, accountID)
}

func (t *timedStore) DeleteBackupCode(ctx context.Context, accountID, codeID string) (bool, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.codes.DeleteBackupCode(ctx, accountID, codeID)
}

func (t *timedStore) DeleteBackupCodes(ctx context.Context, accountID string) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.codes.DeleteBackupCodes(ctx, accountID)
}

func (t *timedStore) ReplaceConfirmation(ctx context.Context, c *store.TwoFactorConfirmation) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.confirmations.ReplaceConfirmation(ctx, c)
}

func (t *timedStore) TakeConfirmation(ctx context.Context, accountID string) (*store.TwoFactorConfirmation, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.confirmations.TakeConfirmation(ctx, accountID)
}

func (t *timedStore) DeleteConfirmation(ctx context.Context, accountID string) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return t.confirmations.DeleteConfirmation(ctx, accountID)
}
