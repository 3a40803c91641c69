package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/dramauth/store"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a PostgreSQL store.AccountStore backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.AccountStore = (*Store)(nil)

// New opens a pool for dsn and pings it.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewFromPool wraps an existing pool. Close will close it.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("pgstore: goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

const accountColumns = `id, email, name, image, password_hash, registered, email_verified_at,
	role, otp_enabled, otp_secret, otp_last_counter, version, created_at, updated_at`

func scanAccount(row pgx.Row) (*store.Account, error) {
	var (
		a       store.Account
		role    string
		version int64
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.Name, &a.Image, &a.PasswordHash, &a.Registered, &a.EmailVerifiedAt,
		&role, &a.OTPEnabled, &a.OTPSecret, &a.OTPLastCounter, &version, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Role = store.Role(role)
	a.Version = uint32(version)
	return &a, nil
}

func isUniqueViolation(err error) bool {
	pgErr := new(pgconn.PgError)
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*store.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = @email`,
		pgx.NamedArgs{"email": store.NormalizeEmail(email)},
	)
	return scanAccount(row)
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (*store.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = @id`,
		pgx.NamedArgs{"id": id},
	)
	return scanAccount(row)
}

func accountArgs(a *store.Account) pgx.NamedArgs {
	return pgx.NamedArgs{
		"id":                a.ID,
		"email":             store.NormalizeEmail(a.Email),
		"name":              a.Name,
		"image":             a.Image,
		"password_hash":     a.PasswordHash,
		"registered":        a.Registered,
		"email_verified_at": a.EmailVerifiedAt,
		"role":              string(a.Role),
		"otp_enabled":       a.OTPEnabled,
		"otp_secret":        a.OTPSecret,
		"otp_last_counter":  a.OTPLastCounter,
		"version":           int64(a.Version),
		"created_at":        a.CreatedAt,
		"updated_at":        a.UpdatedAt,
	}
}

func (s *Store) CreateAccount(ctx context.Context, account *store.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES (@id, @email, @name, @image, @password_hash, @registered, @email_verified_at,
		         @role, @otp_enabled, @otp_secret, @otp_last_counter, 1, @created_at, @updated_at)`,
		accountArgs(account),
	)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("pgstore: create account: %w", err)
	}
	account.Version = 1
	return nil
}

func (s *Store) UpdateAccount(ctx context.Context, account *store.Account) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts
		 SET email = @email, name = @name, image = @image, password_hash = @password_hash,
		     registered = @registered, email_verified_at = @email_verified_at, role = @role,
		     otp_enabled = @otp_enabled, otp_secret = @otp_secret, otp_last_counter = @otp_last_counter,
		     updated_at = @updated_at,
		     version = version + 1
		 WHERE id = @id AND version = @version`,
		accountArgs(account),
	)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("pgstore: update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = @id)`,
			pgx.NamedArgs{"id": account.ID},
		).Scan(&exists); err != nil {
			return fmt.Errorf("pgstore: update account: %w", err)
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrConflict
	}
	account.Version++
	return nil
}

const tokenColumns = `id, kind, email, account_id, token, expires_at`

func scanToken(row pgx.Row) (*store.TokenRecord, error) {
	var (
		r    store.TokenRecord
		kind int16
	)
	err := row.Scan(&r.ID, &kind, &r.Email, &r.AccountID, &r.Token, &r.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Kind = store.TokenKind(kind)
	return &r, nil
}

// SaveToken upserts on (kind, email), which replaces any previous token
// for the pair in one statement.
func (s *Store) SaveToken(ctx context.Context, record *store.TokenRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO email_tokens (`+tokenColumns+`)
		 VALUES (@id, @kind, @email, @account_id, @token, @expires_at)
		 ON CONFLICT ON CONSTRAINT email_tokens_kind_email DO UPDATE
		 SET id = EXCLUDED.id, account_id = EXCLUDED.account_id,
		     token = EXCLUDED.token, expires_at = EXCLUDED.expires_at`,
		pgx.NamedArgs{
			"id":         record.ID,
			"kind":       int16(record.Kind),
			"email":      store.NormalizeEmail(record.Email),
			"account_id": record.AccountID,
			"token":      record.Token,
			"expires_at": record.ExpiresAt,
		},
	)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("pgstore: save token: %w", err)
	}
	return nil
}

func (s *Store) GetToken(ctx context.Context, kind store.TokenKind, token string) (*store.TokenRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM email_tokens WHERE kind = @kind AND token = @token`,
		pgx.NamedArgs{"kind": int16(kind), "token": token},
	)
	return scanToken(row)
}

func (s *Store) FindTokenByEmail(ctx context.Context, kind store.TokenKind, email string) (*store.TokenRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM email_tokens WHERE kind = @kind AND email = @email`,
		pgx.NamedArgs{"kind": int16(kind), "email": store.NormalizeEmail(email)},
	)
	return scanToken(row)
}

func (s *Store) TakeToken(ctx context.Context, kind store.TokenKind, token string) (*store.TokenRecord, error) {
	row := s.pool.QueryRow(ctx,
		`DELETE FROM email_tokens WHERE kind = @kind AND token = @token RETURNING `+tokenColumns,
		pgx.NamedArgs{"kind": int16(kind), "token": token},
	)
	return scanToken(row)
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM email_tokens WHERE expires_at <= @now`,
		pgx.NamedArgs{"now": now},
	)
	if err != nil {
		return 0, fmt.Errorf("pgstore: delete expired tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) ReplaceBackupCodes(ctx context.Context, accountID string, version uint32, codes []store.BackupCode) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE accounts SET version = version + 1 WHERE id = @account_id AND version = @version`,
			pgx.NamedArgs{"account_id": accountID, "version": int64(version)},
		)
		if err != nil {
			return fmt.Errorf("pgstore: claim account version: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = @id)`,
				pgx.NamedArgs{"id": accountID},
			).Scan(&exists); err != nil {
				return fmt.Errorf("pgstore: claim account version: %w", err)
			}
			if !exists {
				return store.ErrNotFound
			}
			return store.ErrConflict
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM backup_codes WHERE account_id = @account_id`,
			pgx.NamedArgs{"account_id": accountID},
		); err != nil {
			return fmt.Errorf("pgstore: clear backup codes: %w", err)
		}
		if len(codes) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, code := range codes {
			batch.Queue(
				`INSERT INTO backup_codes (id, account_id, hash) VALUES (@id, @account_id, @hash)`,
				pgx.NamedArgs{"id": code.ID, "account_id": accountID, "hash": code.Hash},
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("pgstore: insert backup codes: %w", err)
		}
		return nil
	})
}

func (s *Store) ListBackupCodes(ctx context.Context, accountID string) ([]store.BackupCode, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, hash FROM backup_codes WHERE account_id = @account_id ORDER BY seq`,
		pgx.NamedArgs{"account_id": accountID},
	)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list backup codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowToStructByPos[store.BackupCode])
	if err != nil {
		return nil, fmt.Errorf("pgstore: collect backup codes: %w", err)
	}
	return codes, nil
}

func (s *Store) DeleteBackupCode(ctx context.Context, accountID, codeID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM backup_codes WHERE account_id = @account_id AND id = @id`,
		pgx.NamedArgs{"account_id": accountID, "id": codeID},
	)
	if err != nil {
		return false, fmt.Errorf("pgstore: delete backup code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) DeleteBackupCodes(ctx context.Context, accountID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM backup_codes WHERE account_id = @account_id`,
		pgx.NamedArgs{"account_id": accountID},
	); err != nil {
		return fmt.Errorf("pgstore: delete backup codes: %w", err)
	}
	return nil
}

func (s *Store) ReplaceConfirmation(ctx context.Context, c *store.TwoFactorConfirmation) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO two_factor_confirmations (account_id, id, expires_at)
		 VALUES (@account_id, @id, @expires_at)
		 ON CONFLICT (account_id) DO UPDATE SET id = EXCLUDED.id, expires_at = EXCLUDED.expires_at`,
		pgx.NamedArgs{"account_id": c.AccountID, "id": c.ID, "expires_at": c.ExpiresAt},
	); err != nil {
		return fmt.Errorf("pgstore: replace confirmation: %w", err)
	}
	return nil
}

func (s *Store) TakeConfirmation(ctx context.Context, accountID string) (*store.TwoFactorConfirmation, error) {
	var c store.TwoFactorConfirmation
	err := s.pool.QueryRow(ctx,
		`DELETE FROM two_factor_confirmations WHERE account_id = @account_id
		 RETURNING id, account_id, expires_at`,
		pgx.NamedArgs{"account_id": accountID},
	).Scan(&c.ID, &c.AccountID, &c.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: take confirmation: %w", err)
	}
	return &c, nil
}

func (s *Store) DeleteConfirmation(ctx context.Context, accountID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM two_factor_confirmations WHERE account_id = @account_id`,
		pgx.NamedArgs{"account_id": accountID},
	); err != nil {
		return fmt.Errorf("pgstore: delete confirmation: %w", err)
	}
	return nil
}
