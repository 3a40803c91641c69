package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/dramauth/store"
)

type tokenKey struct {
	kind  store.TokenKind
	token string
}

type emailKey struct {
	kind  store.TokenKind
	email string
}

// Store is an in-memory store.AccountStore. Every operation takes one
// mutex, which makes token and confirmation takes trivially atomic.
type Store struct {
	mu sync.Mutex

	accounts      map[string]*store.Account
	accountEmails map[string]string

	tokens      map[tokenKey]*store.TokenRecord
	tokenEmails map[emailKey]string

	backupCodes   map[string][]store.BackupCode
	confirmations map[string]*store.TwoFactorConfirmation
}

var _ store.AccountStore = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts:      make(map[string]*store.Account),
		accountEmails: make(map[string]string),
		tokens:        make(map[tokenKey]*store.TokenRecord),
		tokenEmails:   make(map[emailKey]string),
		backupCodes:   make(map[string][]store.BackupCode),
		confirmations: make(map[string]*store.TwoFactorConfirmation),
	}
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*store.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.accountEmails[store.NormalizeEmail(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.accounts[id].Clone(), nil
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (*store.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return account.Clone(), nil
}

func (s *Store) CreateAccount(ctx context.Context, account *store.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	email := store.NormalizeEmail(account.Email)
	if _, taken := s.accountEmails[email]; taken {
		return store.ErrConflict
	}
	if _, taken := s.accounts[account.ID]; taken {
		return store.ErrConflict
	}

	stored := account.Clone()
	stored.Email = email
	stored.Version = 1
	s.accounts[stored.ID] = stored
	s.accountEmails[email] = stored.ID
	account.Version = stored.Version
	return nil
}

func (s *Store) UpdateAccount(ctx context.Context, account *store.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[account.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Version != account.Version {
		return store.ErrConflict
	}

	email := store.NormalizeEmail(account.Email)
	if owner, taken := s.accountEmails[email]; taken && owner != account.ID {
		return store.ErrConflict
	}

	stored := account.Clone()
	stored.Email = email
	stored.Version = current.Version + 1
	if email != current.Email {
		delete(s.accountEmails, current.Email)
		s.accountEmails[email] = stored.ID
	}
	s.accounts[stored.ID] = stored
	account.Version = stored.Version
	return nil
}

func (s *Store) SaveToken(ctx context.Context, record *store.TokenRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ek := emailKey{kind: record.Kind, email: store.NormalizeEmail(record.Email)}
	if previous, ok := s.tokenEmails[ek]; ok {
		delete(s.tokens, tokenKey{kind: record.Kind, token: previous})
	}

	stored := *record
	stored.Email = ek.email
	s.tokens[tokenKey{kind: record.Kind, token: record.Token}] = &stored
	s.tokenEmails[ek] = record.Token
	return nil
}

func (s *Store) GetToken(ctx context.Context, kind store.TokenKind, token string) (*store.TokenRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.tokens[tokenKey{kind: kind, token: token}]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *record
	return &out, nil
}

func (s *Store) FindTokenByEmail(ctx context.Context, kind store.TokenKind, email string) (*store.TokenRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokenEmails[emailKey{kind: kind, email: store.NormalizeEmail(email)}]
	if !ok {
		return nil, store.ErrNotFound
	}
	record, ok := s.tokens[tokenKey{kind: kind, token: token}]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *record
	return &out, nil
}

func (s *Store) TakeToken(ctx context.Context, kind store.TokenKind, token string) (*store.TokenRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tokenKey{kind: kind, token: token}
	record, ok := s.tokens[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	s.removeTokenLocked(key, record)
	return record, nil
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, record := range s.tokens {
		if record.Expired(now) {
			s.removeTokenLocked(key, record)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) removeTokenLocked(key tokenKey, record *store.TokenRecord) {
	delete(s.tokens, key)
	ek := emailKey{kind: record.Kind, email: record.Email}
	if s.tokenEmails[ek] == record.Token {
		delete(s.tokenEmails, ek)
	}
}

func (s *Store) ReplaceBackupCodes(ctx context.Context, accountID string, version uint32, codes []store.BackupCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return store.ErrNotFound
	}
	if account.Version != version {
		return store.ErrConflict
	}
	account.Version++
	s.backupCodes[accountID] = append([]store.BackupCode(nil), codes...)
	return nil
}

func (s *Store) ListBackupCodes(ctx context.Context, accountID string) ([]store.BackupCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]store.BackupCode(nil), s.backupCodes[accountID]...), nil
}

func (s *Store) DeleteBackupCode(ctx context.Context, accountID, codeID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := s.backupCodes[accountID]
	for i, code := range codes {
		if code.ID == codeID {
			s.backupCodes[accountID] = append(codes[:i:i], codes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) DeleteBackupCodes(ctx context.Context, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.backupCodes, accountID)
	return nil
}

func (s *Store) ReplaceConfirmation(ctx context.Context, c *store.TwoFactorConfirmation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *c
	s.confirmations[c.AccountID] = &stored
	return nil
}

func (s *Store) TakeConfirmation(ctx context.Context, accountID string) (*store.TwoFactorConfirmation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.confirmations[accountID]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(s.confirmations, accountID)
	return c, nil
}

func (s *Store) DeleteConfirmation(ctx context.Context, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.confirmations, accountID)
	return nil
}

// TokenCount returns the number of stored tokens, live or expired.
func (s *Store) TokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// HasConfirmation reports whether accountID has a stored confirmation.
func (s *Store) HasConfirmation(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.confirmations[accountID]
	return ok
}
