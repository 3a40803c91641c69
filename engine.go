package dramauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/MrEthical07/dramauth/internal/audit"
	"github.com/MrEthical07/dramauth/internal/gate"
	"github.com/MrEthical07/dramauth/internal/ledger"
	"github.com/MrEthical07/dramauth/internal/limiters"
	"github.com/MrEthical07/dramauth/internal/vault"
	"github.com/MrEthical07/dramauth/jwt"
	"github.com/MrEthical07/dramauth/secret"
	"github.com/MrEthical07/dramauth/store"
	"go.uber.org/zap"
)

// Engine is the single entry point for credential authentication. It is
// safe for concurrent use and holds no lock across store or notifier calls.
type Engine struct {
	config       Config
	accounts     store.AccountRepository
	ledger       *ledger.Ledger
	vault        *vault.Vault
	gate         *gate.Gate
	codec        *secret.Codec
	jwt          *jwt.Manager
	notifier     Notifier
	loginLimiter *limiters.AttemptLimiter
	mailLimiter  *limiters.WindowLimiter
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	logger       *zap.Logger
	now          func() time.Time
	dummyHash    string
}

// Close drains pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.accounts == nil || e.ledger == nil || e.gate == nil {
		return ErrEngineNotReady
	}
	return nil
}

// Login describes the login operation and its observable behavior.
//
// The result always carries the state the attempt reached. A session is
// issued only for accounts without a second factor. On the
// EMAIL_UNVERIFIED branch a fresh verification link is sent before
// ErrEmailNotVerified is returned; on the NOT_REGISTERED branch an
// outstanding registration link is re-sent before ErrNotRegistered.
// Unknown emails, wrong passwords and accounts without a password are
// all reported as ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricLoginLatency, time.Since(start)) }()

	account, state, err := e.authenticate(ctx, store.NormalizeEmail(email), password, true)
	if err != nil {
		if account == nil {
			return nil, err
		}
		return &LoginResult{State: state, AccountID: account.ID}, err
	}

	result := &LoginResult{State: state, AccountID: account.ID}
	if state == StateSecondFactorRequired {
		return result, nil
	}

	session, err := e.issueSession(account)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, nil, nil)

	result.State = StateSessionIssued
	result.Session = session
	return result, nil
}

// CompleteSecondFactor describes the completesecondfactor operation and its observable behavior.
//
// On success a fresh confirmation replaces any earlier one for the
// account; FinalizeSignIn must then be called to obtain the session. A
// rejected factor changes nothing.
func (e *Engine) CompleteSecondFactor(ctx context.Context, email string, factor Factor) error {
	if err := e.ready(); err != nil {
		return err
	}

	account, err := e.accounts.GetAccountByEmail(ctx, store.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return e.internal("load account", err)
	}
	if e.gate.Challenge(account) != gate.Required {
		return ErrInvalidCredentials
	}
	return e.verifyFactor(ctx, account, factor)
}

// FinalizeSignIn describes the finalizesignin operation and its observable behavior.
//
// Credentials are checked again. For accounts with a second factor the
// confirmation recorded by CompleteSecondFactor is taken before the
// session is signed; without one ErrSecondFactorRequired is returned. If
// signing fails after the take the user must repeat the second factor.
func (e *Engine) FinalizeSignIn(ctx context.Context, email, password string) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	account, state, err := e.authenticate(ctx, store.NormalizeEmail(email), password, false)
	if err != nil {
		return nil, err
	}
	return e.finalize(ctx, account, state)
}

// LoginWithSecondFactor runs Login, CompleteSecondFactor and
// FinalizeSignIn as one call with a single password check. factor is
// ignored for accounts without a second factor.
func (e *Engine) LoginWithSecondFactor(ctx context.Context, email, password string, factor Factor) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	account, state, err := e.authenticate(ctx, store.NormalizeEmail(email), password, true)
	if err != nil {
		return nil, err
	}
	if state == StateSecondFactorRequired {
		if err := e.verifyFactor(ctx, account, factor); err != nil {
			return nil, err
		}
	}
	return e.finalize(ctx, account, state)
}

// authenticate walks START → CREDENTIALS_CHECKED → {EMAIL_UNVERIFIED |
// NOT_REGISTERED | SECOND_FACTOR_REQUIRED | READY}. The account is
// returned with a non-nil error only on the unverified and unregistered
// branches. resend controls whether those branches send mail.
func (e *Engine) authenticate(ctx context.Context, email, password string, resend bool) (*store.Account, LoginState, error) {
	if err := e.checkLoginThrottle(ctx, email); err != nil {
		return nil, StateStart, err
	}

	account, err := e.checkCredentials(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			e.metricInc(MetricLoginFailure)
			e.recordLoginFailure(ctx, email)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", err, nil)
		}
		return nil, StateStart, err
	}
	e.resetLoginThrottle(ctx, email)
	e.maybeUpgradeHash(ctx, account, password)

	if !account.EmailVerified() {
		e.metricInc(MetricLoginEmailUnverified)
		if resend {
			e.resendVerification(ctx, account)
		}
		e.emitAudit(ctx, auditEventLoginEmailUnverified, false, account.ID, ErrEmailNotVerified, nil)
		return account, StateEmailUnverified, ErrEmailNotVerified
	}

	if !account.Registered {
		e.metricInc(MetricLoginNotRegistered)
		if resend {
			e.resendRegistration(ctx, account)
		}
		e.emitAudit(ctx, auditEventLoginNotRegistered, false, account.ID, ErrNotRegistered, nil)
		return account, StateNotRegistered, ErrNotRegistered
	}

	if e.gate.Challenge(account) == gate.Required {
		e.metricInc(MetricSecondFactorRequired)
		e.emitAudit(ctx, auditEventSecondFactorRequired, true, account.ID, nil, nil)
		return account, StateSecondFactorRequired, nil
	}
	return account, StateReady, nil
}

func (e *Engine) checkCredentials(ctx context.Context, email, password string) (*store.Account, error) {
	account, err := e.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.codec.VerifySecret(password, e.dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, e.internal("load account", err)
	}
	if account.PasswordHash == "" {
		e.codec.VerifySecret(password, e.dummyHash)
		return nil, ErrInvalidCredentials
	}
	if !e.codec.VerifySecret(password, account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// finalize consumes the confirmation for second-factor accounts and
// signs the session.
func (e *Engine) finalize(ctx context.Context, account *store.Account, state LoginState) (*Session, error) {
	if state == StateSecondFactorRequired {
		ok, err := e.gate.Consume(ctx, account.ID)
		if err != nil {
			return nil, e.internal("consume confirmation", err)
		}
		if !ok {
			e.metricInc(MetricSignInMissingConfirmation)
			e.emitAudit(ctx, auditEventSignInFinalized, false, account.ID, ErrSecondFactorRequired, nil)
			return nil, ErrSecondFactorRequired
		}
	}

	session, err := e.issueSession(account)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricSignInFinalized)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventSignInFinalized, true, account.ID, nil, nil)
	return session, nil
}

func (e *Engine) verifyFactor(ctx context.Context, account *store.Account, factor Factor) error {
	err := e.gate.Verify(ctx, account, factor)
	if err == nil {
		e.metricInc(MetricSecondFactorSuccess)
		if factor.Kind == FactorBackupCode {
			e.metricInc(MetricBackupCodeUsed)
			e.emitAudit(ctx, auditEventBackupCodeUsed, true, account.ID, nil, nil)
		}
		e.emitAudit(ctx, auditEventSecondFactorSuccess, true, account.ID, nil, nil)
		return nil
	}

	mapped := e.mapGateErr(err)
	switch {
	case errors.Is(mapped, ErrSecondFactorRateLimited):
		e.metricInc(MetricSecondFactorRateLimited)
		e.emitRateLimit(ctx, "second_factor", account.ID)
	case errors.Is(mapped, ErrInvalidBackupCode):
		e.metricInc(MetricBackupCodeFailed)
		e.metricInc(MetricSecondFactorFailure)
	case errors.Is(mapped, ErrInvalidSecondFactorCode):
		e.metricInc(MetricSecondFactorFailure)
	}
	e.emitAudit(ctx, auditEventSecondFactorFailure, false, account.ID, mapped, func() map[string]string {
		return map[string]string{"factor": factorName(factor.Kind)}
	})
	return mapped
}

func (e *Engine) mapGateErr(err error) error {
	switch {
	case errors.Is(err, gate.ErrInvalidTOTP):
		return ErrInvalidSecondFactorCode
	case errors.Is(err, gate.ErrInvalidBackupCode):
		return ErrInvalidBackupCode
	case errors.Is(err, gate.ErrRateLimited):
		return ErrSecondFactorRateLimited
	case errors.Is(err, gate.ErrNotEnrolled):
		return ErrInvalidCredentials
	default:
		return e.internal("second factor", err)
	}
}

func factorName(kind FactorKind) string {
	if kind == FactorBackupCode {
		return "backup_code"
	}
	return "totp"
}

/*
====================================
SESSION ISSUANCE
====================================
*/

func identityOf(account *store.Account) jwt.Identity {
	return jwt.Identity{
		AccountID:  account.ID,
		Email:      account.Email,
		Role:       string(account.Role),
		Name:       account.Name,
		Image:      account.Image,
		OTPEnabled: account.OTPEnabled,
		Version:    account.Version,
	}
}

func (e *Engine) issueSession(account *store.Account) (*Session, error) {
	id := identityOf(account)

	access, accessClaims, err := e.jwt.Issue(id, jwt.TypeAccess)
	if err != nil {
		return nil, e.internal("sign access token", err)
	}
	refresh, refreshClaims, err := e.jwt.Issue(id, jwt.TypeRefresh)
	if err != nil {
		return nil, e.internal("sign refresh token", err)
	}

	e.metricInc(MetricSessionCreated)
	return &Session{
		AccountID:        account.ID,
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}

/*
====================================
LOGIN THROTTLE
====================================
*/

func (e *Engine) checkLoginThrottle(ctx context.Context, email string) error {
	if e.loginLimiter == nil {
		return nil
	}
	err := e.loginLimiter.Check(ctx, email)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrRateLimited):
		e.metricInc(MetricLoginRateLimited)
		e.emitRateLimit(ctx, "login", "")
		return ErrLoginRateLimited
	default:
		return e.internal("login throttle", err)
	}
}

func (e *Engine) recordLoginFailure(ctx context.Context, email string) {
	if e.loginLimiter == nil {
		return
	}
	if err := e.loginLimiter.RecordFailure(ctx, email); err != nil && !errors.Is(err, limiters.ErrRateLimited) {
		e.logger.Warn("record login failure", zap.Error(err))
	}
}

func (e *Engine) resetLoginThrottle(ctx context.Context, email string) {
	if e.loginLimiter == nil {
		return
	}
	if err := e.loginLimiter.Reset(ctx, email); err != nil {
		e.logger.Warn("reset login throttle", zap.Error(err))
	}
}

// maybeUpgradeHash rehashes a password verified under weaker argon2
// parameters. A concurrent update wins; the next login retries.
func (e *Engine) maybeUpgradeHash(ctx context.Context, account *store.Account, password string) {
	if !e.config.Password.UpgradeOnLogin || !e.codec.NeedsRehash(account.PasswordHash) {
		return
	}
	hash, err := e.codec.HashSecret(password)
	if err != nil {
		e.logger.Warn("password rehash failed", zap.String("account_id", account.ID), zap.Error(err))
		return
	}
	updated := account.Clone()
	updated.PasswordHash = hash
	updated.UpdatedAt = e.now()
	if err := e.accounts.UpdateAccount(ctx, updated); err != nil {
		e.logger.Warn("password rehash not stored", zap.String("account_id", account.ID), zap.Error(err))
		return
	}
	*account = *updated
}

/*
====================================
SHARED HELPERS
====================================
*/

// internal logs err and wraps it as ErrInternal.
func (e *Engine) internal(op string, err error) error {
	e.logger.Error("store or backend failure", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrInternal, err)
}

func (e *Engine) mapLedgerErr(err error) error {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return ErrTokenNotFound
	case errors.Is(err, ledger.ErrExpired):
		return ErrTokenExpired
	default:
		return e.internal("token ledger", err)
	}
}

func (e *Engine) checkPasswordPolicy(password string) error {
	if len([]rune(password)) < e.config.Password.MinPasswordLength {
		return ErrPasswordPolicy
	}
	if len(password) > e.config.Password.MaxPasswordBytes {
		return ErrPasswordPolicy
	}
	return nil
}
